package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/entrhq/dmrelay/pkg/config"
)

var keyringCmd = &cobra.Command{
	Use:   "keyring",
	Short: "Manage the Instagram password in the OS keyring",
	Long: `Stores the Instagram password in the operating system keyring so it does
not have to live in the environment. It is used when INSTAGRAM_PASSWORD is
not set.`,
}

var keyringSetCmd = &cobra.Command{
	Use:   "set [username]",
	Short: "Store the password for an account",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		username, err := accountArg(args)
		if err != nil {
			return err
		}

		password, err := readPassword(cmd, username)
		if err != nil {
			return err
		}
		if err := config.StorePassword(username, password); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Password for %s stored in keyring\n", username)
		return nil
	},
}

var keyringDeleteCmd = &cobra.Command{
	Use:   "delete [username]",
	Short: "Remove the stored password for an account",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		username, err := accountArg(args)
		if err != nil {
			return err
		}
		if err := config.DeletePassword(username); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Password for %s removed from keyring\n", username)
		return nil
	},
}

// accountArg returns the username argument or the configured account.
func accountArg(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	if cfg.Instagram.Username == "" {
		return "", &config.ConfigurationError{Missing: []string{config.EnvUsername}}
	}
	return cfg.Instagram.Username, nil
}

// readPassword prompts on a terminal, or reads one line from piped stdin.
func readPassword(cmd *cobra.Command, username string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprintf(cmd.OutOrStdout(), "Password for %s: ", username)
		pw, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.OutOrStdout())
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(pw), nil
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password from stdin: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
