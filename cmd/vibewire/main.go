// vibewire - client runtime for remote build agents.
//
// Create an app from a prompt, watch the agent build it, inspect the
// reconstructed workspace, and export the result.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vibewire/vibewire"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "vibewire",
	Short: "vibewire - build agent client",
	Long: `vibewire drives remote build agents from the terminal.

  vibewire create "a todo app"              Create an app and watch the build
  vibewire attach <agent-id>                Reattach to an existing agent
  vibewire serve <agent-id>                 Serve the local inspection API
  vibewire export <agent-id> --repo o/r     Export the workspace to GitHub
  vibewire log <agent-id>                   Print a recorded transcript`,
	Version: version,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("server", "", "platform server URL")
	rootCmd.PersistentFlags().String("token", "", "platform API token")
	viper.BindPFlag("server_url", rootCmd.PersistentFlags().Lookup("server"))
	viper.BindPFlag("api_token", rootCmd.PersistentFlags().Lookup("token"))
}

// initConfig layers configuration: flags over VIBEWIRE_* environment
// variables over ~/.vibewire/config.yaml.
func initConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(filepath.Join(home, ".vibewire"))
	}
	viper.SetEnvPrefix("vibewire")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// A missing config file is fine; env and flags still apply.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "warning: reading config: %v\n", err)
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildClient constructs the vibewire client from the resolved config.
func buildClient() (*vibewire.Client, error) {
	b := vibewire.NewBuilder()
	if url := viper.GetString("server_url"); url != "" {
		b.WithBaseURL(url)
	}
	if token := viper.GetString("api_token"); token != "" {
		b.WithToken(token)
	}
	return b.Build()
}

// dataDir is where the CLI keeps transcripts (default ~/.vibewire).
func dataDir() string {
	if dir := viper.GetString("data_dir"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vibewire"
	}
	return filepath.Join(home, ".vibewire")
}
