package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vibewire/vibewire/httpapi"
	"github.com/vibewire/vibewire/notify/slack"
	"github.com/vibewire/vibewire/notify/telegram"
	"github.com/vibewire/vibewire/store/sqlite"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve [agent-id]",
	Short: "Attach to an agent and serve the local inspection API",
	Long: `Attach to an agent and expose its derived state, workspace, and event
feed over a local HTTP API. Slack/Telegram notifiers and the transcript
recorder are enabled when configured.`,
	Args: cobra.ExactArgs(1),
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":7990", "Listen address")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
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

	// Optional notifiers.
	if token := viper.GetString("slack.bot_token"); token != "" {
		n, err := slack.New(token, viper.GetString("slack.channel"))
		if err != nil {
			return fmt.Errorf("configuring slack notifier: %w", err)
		}
		defer n.Watch(sess)()
		log.Printf("[serve] slack notifications enabled")
	}
	if token := viper.GetString("telegram.bot_token"); token != "" {
		n, err := telegram.New(token, viper.GetInt64("telegram.chat_id"))
		if err != nil {
			return fmt.Errorf("configuring telegram notifier: %w", err)
		}
		defer n.Watch(sess)()
		log.Printf("[serve] telegram notifications enabled")
	}

	// Optional transcript recorder.
	if viper.GetBool("record") {
		if err := os.MkdirAll(dataDir(), 0o755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
		store, err := sqlite.New(filepath.Join(dataDir(), "transcripts.db"))
		if err != nil {
			return fmt.Errorf("opening transcript store: %w", err)
		}
		defer store.Close()
		runID, stop := store.Record(sess.AgentID(), sess.Bus())
		defer stop()
		log.Printf("[serve] recording transcript (run %s)", runID)
	}

	srv := &http.Server{
		Addr:    serveAddr,
		Handler: httpapi.New(sess).Router(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("[serve] agent %s on %s", sess.AgentID(), serveAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
