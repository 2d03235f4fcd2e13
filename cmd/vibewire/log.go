package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vibewire/vibewire/store/sqlite"
)

var logAfter int64

var logCmd = &cobra.Command{
	Use:   "log [agent-id]",
	Short: "Print an agent's recorded transcript",
	Long:  "Print the event transcript recorded for an agent by `vibewire serve` with recording enabled.",
	Args:  cobra.ExactArgs(1),
	RunE:  runLog,
}

func init() {
	logCmd.Flags().Int64Var(&logAfter, "after", 0, "Only events with an ID greater than this")
	rootCmd.AddCommand(logCmd)
}

func runLog(cmd *cobra.Command, args []string) error {
	store, err := sqlite.New(filepath.Join(dataDir(), "transcripts.db"))
	if err != nil {
		return fmt.Errorf("opening transcript store: %w", err)
	}
	defer store.Close()

	events, err := store.ListEvents(args[0], logAfter)
	if err != nil {
		return fmt.Errorf("listing events: %w", err)
	}
	if len(events) == 0 {
		fmt.Println("No recorded events.")
		return nil
	}

	for _, e := range events {
		ts := e.CreatedAt.Local().Format("15:04:05")
		if e.Data == "" {
			fmt.Printf("\033[2m%s\033[0m \033[36m%-12s\033[0m (#%d, run %s)\n", ts, e.Name, e.ID, e.RunID)
			continue
		}
		fmt.Printf("\033[2m%s\033[0m \033[36m%-12s\033[0m %s\n", ts, e.Name, e.Data)
	}
	return nil
}
