package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/entrhq/dmrelay/pkg/browser"
	"github.com/entrhq/dmrelay/pkg/config"
	"github.com/entrhq/dmrelay/pkg/inbox"
	"github.com/entrhq/dmrelay/pkg/logging"
	"github.com/entrhq/dmrelay/pkg/publish"
	"github.com/entrhq/dmrelay/pkg/relay"
	"github.com/entrhq/dmrelay/pkg/session"
)

func runRelay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		var cerr *config.ConfigurationError
		if errors.As(err, &cerr) && len(cerr.Missing) > 0 {
			fmt.Fprintln(os.Stderr, "Set the missing values in the environment or a .env file.")
		}
		return err
	}

	if err := logging.Init(cfg.LogDir, cfg.Verbose); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: file logging unavailable: %v\n", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			fmt.Fprintln(os.Stderr, "\nShutting down after the current step...")
			cancel()
		case <-ctx.Done():
		}
	}()

	summary, err := execute(ctx, cfg)
	if summary != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Run %s: %s (%d published, %d failed)\n",
			summary.RunID, summary.Status, summary.Metrics.Published, summary.Metrics.Failed)
	}
	return err
}

// execute wires the collaborators for one run. The browser is closed before
// it returns.
func execute(ctx context.Context, cfg *config.Config) (*relay.Summary, error) {
	var loggers []*logging.Logger
	component := func(name string) *logging.Logger {
		// NewLogger always returns a usable logger; the error only means
		// it fell back to stderr, which it already reported.
		l, _ := logging.NewLogger(name)
		loggers = append(loggers, l)
		return l
	}
	defer func() {
		for _, l := range loggers {
			_ = l.Close()
		}
	}()
	logger := component("relay")

	client, err := publish.NewClient(cfg.Buffer.AccessToken, cfg.Buffer.ProfileID,
		publish.WithBaseURL(cfg.Buffer.BaseURL),
		publish.WithTemplate(cfg.Buffer.Template),
		publish.WithMaxRetryElapsed(cfg.Buffer.MaxRetryElapsed),
		publish.WithLogger(component("publish")),
	)
	if err != nil {
		return nil, err
	}
	if err := client.TestConnection(ctx); err != nil {
		return nil, fmt.Errorf("buffer connection failed: %w", err)
	}

	logger.Infof("launching browser (headless=%t)", cfg.Browser.Headless)
	page, err := browser.Launch(cfg.BrowserOptions())
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := page.Close(); closeErr != nil {
			logger.Warnf("failed to close browser: %v", closeErr)
		}
	}()

	sessionLogger := component("session")
	store := session.NewFileStore(afero.NewOsFs(), cfg.StateDir, cfg.Instagram.Username).WithLogger(sessionLogger)
	mgr, err := session.NewManager(page, store, cfg.Credentials(), cfg.Session, session.WithLogger(sessionLogger))
	if err != nil {
		return nil, err
	}

	scanner := inbox.NewScanner(page, cfg.Inbox, inbox.WithLogger(component("inbox")))

	opts := []relay.Option{relay.WithLogger(logger)}
	if cfg.Report {
		opts = append(opts, relay.WithReportWriter(relay.NewReportWriter(afero.NewOsFs(), cfg.StateDir)))
	}
	return relay.NewRunner(mgr, scanner, client, opts...).Run(ctx)
}
