// Package config loads the relay settings from a YAML file, the environment
// and the OS keyring.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/entrhq/dmrelay/pkg/browser"
	"github.com/entrhq/dmrelay/pkg/inbox"
	"github.com/entrhq/dmrelay/pkg/publish"
	"github.com/entrhq/dmrelay/pkg/session"
)

// Environment variables read by Load.
const (
	EnvUsername    = "INSTAGRAM_USERNAME"
	EnvPassword    = "INSTAGRAM_PASSWORD"
	EnvBufferToken = "BUFFER_ACCESS_TOKEN"
	EnvProfileID   = "BUFFER_PROFILE_ID"
	EnvStateDir    = "DMRELAY_STATE_DIR"
	EnvHeadless    = "DMRELAY_HEADLESS"
	EnvProxy       = "DMRELAY_PROXY"
)

// Password sources
const (
	PasswordFromEnv     = "environment"
	PasswordFromKeyring = "keyring"
)

// Config represents the relay configuration
type Config struct {
	Instagram InstagramConfig `yaml:"instagram" json:"instagram"`
	Buffer    BufferConfig    `yaml:"buffer" json:"buffer"`

	// StateDir holds the session files, the browser profile and the run report
	StateDir string `yaml:"state_dir" json:"state_dir"`

	// LogDir defaults to ~/.dmrelay/logs
	LogDir  string `yaml:"log_dir" json:"log_dir"`
	Verbose bool   `yaml:"verbose" json:"verbose"`

	// Report writes last-run.json after every run
	Report bool `yaml:"report" json:"report"`

	Browser browser.Options `yaml:"browser" json:"browser"`
	Session session.Options `yaml:"session" json:"session"`
	Inbox   inbox.Options   `yaml:"inbox" json:"inbox"`
}

// InstagramConfig holds the account credentials. The password never comes
// from the settings file.
type InstagramConfig struct {
	Username       string `yaml:"username" json:"username"`
	Password       string `yaml:"-" json:"-"`
	PasswordSource string `yaml:"-" json:"-"`
}

// BufferConfig configures the publishing side.
type BufferConfig struct {
	AccessToken     string        `yaml:"-" json:"-"`
	ProfileID       string        `yaml:"profile_id" json:"profile_id"`
	BaseURL         string        `yaml:"base_url" json:"base_url"`
	Template        string        `yaml:"template" json:"template"`
	MaxRetryElapsed time.Duration `yaml:"max_retry_elapsed" json:"max_retry_elapsed"`
}

// DefaultConfig returns a configuration suitable for a scheduled headless run
func DefaultConfig() *Config {
	return &Config{
		Buffer: BufferConfig{
			BaseURL:         publish.DefaultBaseURL,
			Template:        publish.DefaultTemplate,
			MaxRetryElapsed: 30 * time.Second,
		},
		StateDir: ".",
		Report:   true,
		Browser: browser.Options{
			Headless:          true,
			UserAgent:         browser.DefaultUserAgent,
			Viewports:         browser.DefaultViewports(),
			NavigationTimeout: browser.DefaultNavigationTimeout,
		},
		Session: session.DefaultOptions(),
		Inbox:   inbox.DefaultOptions(),
	}
}

// ConfigurationError lists everything wrong with a configuration.
type ConfigurationError struct {
	// Missing are the unset required keys, named by their environment variable
	Missing  []string
	Problems []string
}

func (e *ConfigurationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required configuration: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Problems) > 0 {
		parts = append(parts, "invalid configuration: "+strings.Join(e.Problems, "; "))
	}
	return strings.Join(parts, "; ")
}

// Validate validates the configuration. It returns a *ConfigurationError.
func (c *Config) Validate() error {
	cerr := &ConfigurationError{}

	required := []struct {
		key   string
		value string
	}{
		{EnvUsername, c.Instagram.Username},
		{EnvPassword, c.Instagram.Password},
		{EnvBufferToken, c.Buffer.AccessToken},
		{EnvProfileID, c.Buffer.ProfileID},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			cerr.Missing = append(cerr.Missing, r.key)
		}
	}

	if !fileSafe(c.Instagram.Username) {
		cerr.Problems = append(cerr.Problems, usernameProblem(c.Instagram.Username))
	}
	if c.StateDir == "" {
		cerr.Problems = append(cerr.Problems, "state_dir is required")
	}
	if c.Buffer.BaseURL == "" {
		cerr.Problems = append(cerr.Problems, "buffer.base_url is required")
	}
	if !strings.Contains(c.Buffer.Template, "{url}") {
		cerr.Problems = append(cerr.Problems, "buffer.template must contain {url}")
	}
	if c.Buffer.MaxRetryElapsed < 0 {
		cerr.Problems = append(cerr.Problems, "buffer.max_retry_elapsed cannot be negative")
	}
	if c.Browser.NavigationTimeout < 0 {
		cerr.Problems = append(cerr.Problems, "browser.navigation_timeout cannot be negative")
	}
	timeouts := []struct {
		name string
		d    time.Duration
	}{
		{"probe_timeout", c.Session.ProbeTimeout},
		{"challenge_timeout", c.Session.ChallengeTimeout},
		{"field_timeout", c.Session.FieldTimeout},
		{"login_timeout", c.Session.LoginTimeout},
	}
	for _, t := range timeouts {
		if t.d < 0 {
			cerr.Problems = append(cerr.Problems, fmt.Sprintf("session.%s cannot be negative", t.name))
		}
	}
	if c.Session.BaseURL == "" || c.Session.LoginURL == "" {
		cerr.Problems = append(cerr.Problems, "session.base_url and session.login_url are required")
	}
	if c.Inbox.MaxConversations < 0 || c.Inbox.MessagesPerConversation < 0 {
		cerr.Problems = append(cerr.Problems, "inbox limits cannot be negative")
	}

	if len(cerr.Missing) == 0 && len(cerr.Problems) == 0 {
		return nil
	}
	return cerr
}

// ValidateAccount checks only the username, for commands that touch the
// per-account files under the state directory. It returns a
// *ConfigurationError.
func (c *Config) ValidateAccount() error {
	switch {
	case strings.TrimSpace(c.Instagram.Username) == "":
		return &ConfigurationError{Missing: []string{EnvUsername}}
	case !fileSafe(c.Instagram.Username):
		return &ConfigurationError{Problems: []string{usernameProblem(c.Instagram.Username)}}
	}
	return nil
}

// fileSafe reports whether name can be embedded in a file name without
// leaving its directory.
func fileSafe(name string) bool {
	return !strings.ContainsAny(name, "/\\\x00") && !strings.Contains(name, "..")
}

func usernameProblem(name string) string {
	return fmt.Sprintf("username %q cannot be used in a file name", name)
}

// BrowserOptions returns the launch options with the per-account profile
// directory filled in.
func (c *Config) BrowserOptions() browser.Options {
	opts := c.Browser
	if opts.UserDataDir == "" {
		opts.UserDataDir = filepath.Join(c.StateDir, "chrome_profile_"+c.Instagram.Username)
	}
	return opts
}

// Credentials returns the Instagram login.
func (c *Config) Credentials() session.Credentials {
	return session.Credentials{Username: c.Instagram.Username, Password: c.Instagram.Password}
}
