package main

import (
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/entrhq/dmrelay/pkg/session"
)

var logoutProfile bool

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the saved session so the next run logs in again",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.ValidateAccount(); err != nil {
			return err
		}

		store := session.NewFileStore(afero.NewOsFs(), cfg.StateDir, cfg.Instagram.Username)
		if err := store.Remove(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed saved session for %s\n", cfg.Instagram.Username)

		if logoutProfile {
			dir := cfg.BrowserOptions().UserDataDir
			if err := os.RemoveAll(dir); err != nil {
				return fmt.Errorf("failed to remove browser profile: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed browser profile %s\n", dir)
		}
		return nil
	},
}

func init() {
	logoutCmd.Flags().BoolVar(&logoutProfile, "profile", false, "Also delete the persistent browser profile")
}
