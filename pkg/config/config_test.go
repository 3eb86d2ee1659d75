package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

// isolate clears the relay variables and moves to an empty directory so no
// ambient .env or environment leaks into a test.
func isolate(t *testing.T) string {
	t.Helper()
	for _, key := range []string{EnvUsername, EnvPassword, EnvBufferToken, EnvProfileID, EnvStateDir, EnvHeadless, EnvProxy} {
		t.Setenv(key, "")
	}
	keyring.MockInit()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Instagram.Username = "alice"
	cfg.Instagram.Password = "pw"
	cfg.Buffer.AccessToken = "tok"
	cfg.Buffer.ProfileID = "p1"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.True(t, cfg.Browser.Headless)
	assert.True(t, cfg.Report)
	assert.Equal(t, ".", cfg.StateDir)
	assert.Equal(t, 5, cfg.Inbox.MaxConversations)
	assert.Equal(t, 3, cfg.Inbox.MessagesPerConversation)
	assert.Equal(t, "https://api.bufferapp.com", cfg.Buffer.BaseURL)
	assert.Len(t, cfg.Browser.Viewports, 4)
}

func TestValidate_Valid(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_MissingCredentials(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Instagram.Username = "alice"

	err := cfg.Validate()
	var cerr *ConfigurationError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, []string{EnvPassword, EnvBufferToken, EnvProfileID}, cerr.Missing)
	assert.Empty(t, cerr.Problems)
	assert.Contains(t, err.Error(), "INSTAGRAM_PASSWORD, BUFFER_ACCESS_TOKEN, BUFFER_PROFILE_ID")
}

func TestValidate_Problems(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"path in username", func(c *Config) { c.Instagram.Username = "../etc" }, "file name"},
		{"empty state dir", func(c *Config) { c.StateDir = "" }, "state_dir"},
		{"template without url", func(c *Config) { c.Buffer.Template = "hello" }, "{url}"},
		{"negative retry", func(c *Config) { c.Buffer.MaxRetryElapsed = -time.Second }, "max_retry_elapsed"},
		{"negative probe timeout", func(c *Config) { c.Session.ProbeTimeout = -1 }, "session.probe_timeout"},
		{"negative inbox limit", func(c *Config) { c.Inbox.MaxConversations = -1 }, "inbox limits"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			var cerr *ConfigurationError
			require.True(t, errors.As(cfg.Validate(), &cerr))
			assert.Empty(t, cerr.Missing)
			require.Len(t, cerr.Problems, 1)
			assert.Contains(t, cerr.Problems[0], tt.want)
		})
	}
}

func TestValidateAccount(t *testing.T) {
	tests := []struct {
		name        string
		username    string
		wantMissing bool
		wantProblem bool
	}{
		{name: "plain", username: "alice"},
		{name: "dots inside", username: "alice.b_c"},
		{name: "empty", username: "  ", wantMissing: true},
		{name: "traversal", username: "x/../../..", wantProblem: true},
		{name: "parent only", username: "..", wantProblem: true},
		{name: "backslash", username: `a\b`, wantProblem: true},
		{name: "nul", username: "a\x00b", wantProblem: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Instagram.Username = tt.username

			err := cfg.ValidateAccount()
			if !tt.wantMissing && !tt.wantProblem {
				assert.NoError(t, err)
				return
			}

			var cerr *ConfigurationError
			require.True(t, errors.As(err, &cerr))
			if tt.wantMissing {
				assert.Equal(t, []string{EnvUsername}, cerr.Missing)
			}
			if tt.wantProblem {
				require.Len(t, cerr.Problems, 1)
				assert.Contains(t, cerr.Problems[0], "cannot be used in a file name")
			}
		})
	}
}

func TestLoad_EnvironmentOnly(t *testing.T) {
	isolate(t)
	t.Setenv(EnvUsername, "alice")
	t.Setenv(EnvPassword, "pw")
	t.Setenv(EnvBufferToken, "tok")
	t.Setenv(EnvProfileID, "p1")
	t.Setenv(EnvHeadless, "false")
	t.Setenv(EnvProxy, "http://proxy:3128")
	t.Setenv(EnvStateDir, "/var/lib/dmrelay")

	cfg, err := Load("", "")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "alice", cfg.Instagram.Username)
	assert.Equal(t, PasswordFromEnv, cfg.Instagram.PasswordSource)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, "http://proxy:3128", cfg.Browser.ProxyAddress)
	assert.Equal(t, "/var/lib/dmrelay", cfg.StateDir)
	assert.Equal(t, "/var/lib/dmrelay/chrome_profile_alice", cfg.BrowserOptions().UserDataDir)
}

func TestLoad_EnvFileAndPrecedence(t *testing.T) {
	dir := isolate(t)
	writeFile(t, dir, ".env", "INSTAGRAM_USERNAME=from_file\nINSTAGRAM_PASSWORD=file_pw\nBUFFER_ACCESS_TOKEN=file_tok\nBUFFER_PROFILE_ID=file_profile\n")
	t.Setenv(EnvBufferToken, "env_tok")

	cfg, err := Load("", "")
	require.NoError(t, err)

	assert.Equal(t, "from_file", cfg.Instagram.Username)
	assert.Equal(t, "file_pw", cfg.Instagram.Password)
	assert.Equal(t, "env_tok", cfg.Buffer.AccessToken, "process environment wins over the env file")
	assert.Equal(t, "file_profile", cfg.Buffer.ProfileID)
}

func TestLoad_MissingExplicitEnvFile(t *testing.T) {
	dir := isolate(t)

	_, err := Load("", filepath.Join(dir, "missing.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "env file")
}

func TestLoad_SettingsFile(t *testing.T) {
	dir := isolate(t)
	path := writeFile(t, dir, "dmrelay.yaml", `
instagram:
  username: alice
  password: ignored
buffer:
  profile_id: p9
  max_retry_elapsed: 45s
state_dir: /srv/state
report: false
browser:
  headless: false
  viewports:
    - width: 800
      height: 600
session:
  probe_timeout: 2s
inbox:
  max_conversations: 2
`)

	cfg, err := Load(path, "")
	require.NoError(t, err)

	assert.Equal(t, "alice", cfg.Instagram.Username)
	assert.Empty(t, cfg.Instagram.Password, "passwords are never read from the settings file")
	assert.Equal(t, "p9", cfg.Buffer.ProfileID)
	assert.Equal(t, 45*time.Second, cfg.Buffer.MaxRetryElapsed)
	assert.Equal(t, "/srv/state", cfg.StateDir)
	assert.False(t, cfg.Report)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 800, cfg.Browser.Viewports[0].Width)
	assert.Equal(t, 2*time.Second, cfg.Session.ProbeTimeout)
	assert.Equal(t, 10*time.Second, cfg.Session.LoginTimeout, "unset fields keep their defaults")
	assert.Equal(t, 2, cfg.Inbox.MaxConversations)
	assert.Equal(t, 3, cfg.Inbox.MessagesPerConversation)
	assert.NotEmpty(t, cfg.Session.LoggedInMarkers)
}

func TestLoad_BadSettingsFile(t *testing.T) {
	dir := isolate(t)

	_, err := Load(filepath.Join(dir, "nope.yaml"), "")
	assert.Error(t, err)

	path := writeFile(t, dir, "bad.yaml", "session: [unclosed")
	_, err = Load(path, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoad_KeyringFallback(t *testing.T) {
	isolate(t)
	t.Setenv(EnvUsername, "alice")
	require.NoError(t, StorePassword("alice", "from-keyring"))

	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, "from-keyring", cfg.Instagram.Password)
	assert.Equal(t, PasswordFromKeyring, cfg.Instagram.PasswordSource)
}

func TestLoad_EnvPasswordBeatsKeyring(t *testing.T) {
	isolate(t)
	t.Setenv(EnvUsername, "alice")
	t.Setenv(EnvPassword, "from-env")
	require.NoError(t, StorePassword("alice", "from-keyring"))

	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Instagram.Password)
}

func TestKeyringRoundTrip(t *testing.T) {
	keyring.MockInit()

	_, err := PasswordFromKeyringFor("bob")
	assert.True(t, errors.Is(err, ErrNoKeyringPassword))

	require.NoError(t, StorePassword("bob", "pw"))
	pw, err := PasswordFromKeyringFor("bob")
	require.NoError(t, err)
	assert.Equal(t, "pw", pw)

	require.NoError(t, DeletePassword("bob"))
	require.NoError(t, DeletePassword("bob"), "deleting twice is fine")

	assert.Error(t, StorePassword("", "pw"))
}

func TestKeyringError(t *testing.T) {
	orig := keyringGet
	t.Cleanup(func() { keyringGet = orig })
	keyringGet = func(service, user string) (string, error) {
		return "", errors.New("dbus unavailable")
	}

	_, err := PasswordFromKeyringFor("alice")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoKeyringPassword))
	assert.Contains(t, err.Error(), "dbus unavailable")
}
