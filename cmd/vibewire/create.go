package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vibewire/vibewire"
)

var (
	createProjectType string
	createNoWatch     bool
)

var createCmd = &cobra.Command{
	Use:   "create [prompt]",
	Short: "Create an app and watch the agent build it",
	Long: `Create a new build agent from a prompt, attach to it, and stream
build progress until the app is deployable.

Example:
  vibewire create "a todo app with dark mode"
  vibewire create "a landing page" --project-type static`,
	Args: cobra.ExactArgs(1),
	RunE: runCreate,
}

func init() {
	createCmd.Flags().StringVarP(&createProjectType, "project-type", "p", "", "Project type hint for the platform")
	createCmd.Flags().BoolVar(&createNoWatch, "no-watch", false, "Print the agent ID and exit instead of watching")
	rootCmd.AddCommand(createCmd)
}

func runCreate(cmd *cobra.Command, args []string) error {
	client, err := buildClient()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fmt.Println("Creating app...")
	sess, err := client.CreateApp(ctx, vibewire.CreateAppRequest{
		Query:       args[0],
		ProjectType: createProjectType,
	}, func(chunk string) {
		fmt.Print(chunk)
	})
	if err != nil {
		return fmt.Errorf("creating app: %w", err)
	}
	defer sess.Close()

	fmt.Printf("\nAgent %s (%s)\n\n", sess.AgentID(), sess.BehaviorType())
	if createNoWatch {
		return nil
	}

	unsub := printEvents(sess)
	defer unsub()

	url, err := sess.WaitDeployable(ctx)
	if err != nil {
		return fmt.Errorf("waiting for build: %w", err)
	}
	if url != "" {
		fmt.Printf("\n\033[32m✓ Preview:\033[0m %s\n", url)
	} else {
		fmt.Printf("\n\033[32m✓ Build complete\033[0m (agent %s)\n", sess.AgentID())
	}
	fmt.Fprintln(os.Stderr, "Reattach later with: vibewire attach "+sess.AgentID())
	return nil
}
