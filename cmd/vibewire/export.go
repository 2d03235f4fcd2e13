package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vibewire/vibewire/export/github"
	"github.com/vibewire/vibewire/session"
	"github.com/vibewire/vibewire/transport"
	"github.com/vibewire/vibewire/wire"
)

var (
	exportRepo    string
	exportBranch  string
	exportMessage string
)

var exportCmd = &cobra.Command{
	Use:   "export [agent-id]",
	Short: "Export the agent's workspace to a GitHub repository",
	Long: `Attach to an agent, wait for its workspace snapshot, and commit every
file onto a branch of the target repository.

Requires a GitHub token with repo scope (config key github.token or
VIBEWIRE_GITHUB_TOKEN).

Example:
  vibewire export agent-123 --repo myorg/myapp --branch main`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportRepo, "repo", "r", "", "Target repository (owner/name)")
	exportCmd.Flags().StringVarP(&exportBranch, "branch", "b", "main", "Target branch")
	exportCmd.Flags().StringVarP(&exportMessage, "message", "m", "", "Commit message")
	exportCmd.MarkFlagRequired("repo")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	owner, repo, ok := strings.Cut(exportRepo, "/")
	if !ok || owner == "" || repo == "" {
		return fmt.Errorf("invalid --repo %q, want owner/name", exportRepo)
	}

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

	fmt.Println("Waiting for workspace snapshot...")
	if err := waitForWorkspace(ctx, sess); err != nil {
		return err
	}
	fmt.Printf("Exporting %d files to %s@%s...\n", sess.Workspace().Len(), exportRepo, exportBranch)

	exp, err := github.New(viper.GetString("github.token"), owner, repo, github.WithBranch(exportBranch))
	if err != nil {
		return err
	}
	url, err := exp.Export(ctx, sess.Workspace(), exportMessage)
	if err != nil {
		return fmt.Errorf("exporting workspace: %w", err)
	}

	fmt.Printf("\033[32m✓ Exported:\033[0m %s\n", url)
	return nil
}

// waitForWorkspace blocks until a state snapshot arrives or, when the
// stream stays quiet but earlier events already populated files, gives up
// waiting and proceeds with what is there.
func waitForWorkspace(ctx context.Context, sess *session.Session) error {
	snapCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := sess.WaitFor(snapCtx, transport.EventMessage, func(m *wire.Message) bool {
		return m.Type == wire.TypeStateSnapshot
	})
	if err == nil {
		return nil
	}
	if sess.Workspace().Len() > 0 && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, session.ErrWaitTimeout)) {
		return nil
	}
	return fmt.Errorf("waiting for workspace snapshot: %w", err)
}
