package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/entrhq/dmrelay/pkg/browser"
	"github.com/entrhq/dmrelay/pkg/relay"
	"github.com/entrhq/dmrelay/pkg/session"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the saved session and the last run",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.ValidateAccount(); err != nil {
			return err
		}

		fsys := afero.NewOsFs()
		store := session.NewFileStore(fsys, cfg.StateDir, cfg.Instagram.Username)
		view := statusView{
			Account:        cfg.Instagram.Username,
			StateDir:       cfg.StateDir,
			PasswordSource: cfg.Instagram.PasswordSource,
			Now:            time.Now(),
		}
		view.Record, view.RecordErr = store.LoadRecord()
		view.Cookies, view.CookieErr = store.LoadCookies()
		view.LastRun, view.RunErr = relay.NewReportWriter(fsys, cfg.StateDir).Read()

		renderStatus(cmd.OutOrStdout(), view)
		return nil
	},
}

type statusView struct {
	Account        string
	StateDir       string
	PasswordSource string
	Now            time.Time

	Record    *session.Record
	RecordErr error
	Cookies   []browser.Cookie
	CookieErr error
	LastRun   *relay.Summary
	RunErr    error
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(18)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

func renderStatus(w io.Writer, v statusView) {
	var b strings.Builder
	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label) + value + "\n")
	}

	b.WriteString(titleStyle.Render("dmrelay · "+v.Account) + "\n\n")
	row("State directory", v.StateDir)
	switch v.PasswordSource {
	case "":
		row("Password", errStyle.Render("not configured"))
	default:
		row("Password", "from "+v.PasswordSource)
	}

	switch {
	case v.RecordErr != nil:
		row("Session", errStyle.Render("unreadable: "+v.RecordErr.Error()))
	case v.Record == nil:
		row("Session", warnStyle.Render("none saved, next run logs in"))
	default:
		if v.Record.LastLogin.IsZero() {
			row("Last saved", warnStyle.Render("unknown"))
		} else {
			age := v.Now.Sub(v.Record.LastLogin).Round(time.Minute)
			row("Last saved", fmt.Sprintf("%s (%s ago)", v.Record.LastLogin.Local().Format(time.RFC3339), age))
		}
		row("Processed", fmt.Sprintf("%d messages", len(v.Record.ProcessedMessages)))
	}

	switch {
	case v.CookieErr != nil:
		row("Cookies", errStyle.Render("unreadable: "+v.CookieErr.Error()))
	case len(v.Cookies) == 0:
		row("Cookies", warnStyle.Render("none"))
	default:
		row("Cookies", cookieSummary(v.Cookies, v.Now))
	}

	switch {
	case v.RunErr != nil:
		row("Last run", errStyle.Render("unreadable: "+v.RunErr.Error()))
	case v.LastRun == nil:
		row("Last run", "never")
	default:
		r := v.LastRun
		status := okStyle.Render(r.Status)
		if r.Status == relay.StatusFailed {
			status = errStyle.Render(r.Status)
		} else if r.Status == relay.StatusPartialSuccess {
			status = warnStyle.Render(r.Status)
		}
		row("Last run", fmt.Sprintf("%s at %s", status, r.EndTime.Local().Format(time.RFC3339)))
		row("Published", fmt.Sprintf("%d of %d found", r.Metrics.Published, r.Metrics.MessagesFound))
		if r.Error != "" {
			row("Error", errStyle.Render(r.Error))
		}
	}

	fmt.Fprintln(w, boxStyle.Render(strings.TrimRight(b.String(), "\n")))
}

func cookieSummary(cookies []browser.Cookie, now time.Time) string {
	expired := 0
	for _, c := range cookies {
		if c.Expired(now) {
			expired++
		}
	}
	summary := fmt.Sprintf("%d stored", len(cookies))
	if expired > 0 {
		summary += warnStyle.Render(fmt.Sprintf(", %d expired", expired))
	}
	for _, c := range cookies {
		if c.Name == "sessionid" && c.Expiry > 0 {
			exp := time.Unix(int64(c.Expiry), 0)
			summary += fmt.Sprintf(", session until %s", exp.Local().Format("2006-01-02"))
			break
		}
	}
	return summary
}
