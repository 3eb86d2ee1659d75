// Package main provides the dmrelay command, which forwards content shared in
// Instagram direct messages to a Buffer queue. It is meant to be started by a
// scheduler such as cron or a CI workflow.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/entrhq/dmrelay/pkg/config"
)

const version = "0.1.0"

var (
	configFile string
	envFile    string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "dmrelay",
	Short: "Relay Instagram DM links to Buffer",
	Long: `dmrelay signs in to Instagram with a saved browser session, scans the
most recent direct-message conversations for shared posts and reels, and
queues each new link on a Buffer profile.

Credentials are read from the environment or a .env file:
  INSTAGRAM_USERNAME, INSTAGRAM_PASSWORD, BUFFER_ACCESS_TOKEN, BUFFER_PROFILE_ID

Without a subcommand dmrelay performs a single run.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRelay,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Check the inbox once and publish new links",
	RunE:  runRelay,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "dmrelay v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to a YAML settings file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Path to a dotenv file (default: ./.env when present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	keyringCmd.AddCommand(keyringSetCmd)
	keyringCmd.AddCommand(keyringDeleteCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(keyringCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the configuration shared by all commands. Commands that
// only need the account name validate less than a run does.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile, envFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if verbose {
		cfg.Verbose = true
	}
	return cfg, nil
}
