package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var attachCmd = &cobra.Command{
	Use:   "attach [agent-id]",
	Short: "Reattach to an existing agent and watch its events",
	Args:  cobra.ExactArgs(1),
	RunE:  runAttach,
}

func init() {
	rootCmd.AddCommand(attachCmd)
}

func runAttach(cmd *cobra.Command, args []string) error {
	client, err := buildClient()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sess, err := client.Attach(ctx, args[0])
	if err != nil {
		return fmt.Errorf("attaching to agent: %w", err)
	}
	defer sess.Close()

	fmt.Printf("Attached to agent %s (%s)\n\n", sess.AgentID(), sess.BehaviorType())
	unsub := printEvents(sess)
	defer unsub()

	<-ctx.Done()
	fmt.Println("\nDetached.")
	return nil
}
