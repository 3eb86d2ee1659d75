package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gobwas/glob"

	"github.com/entrhq/dmrelay/pkg/browser"
	"github.com/entrhq/dmrelay/pkg/logging"
)

// ApplyResult counts the outcome of a cookie restore.
type ApplyResult struct {
	Applied int
	Skipped int
}

// Manager produces an authenticated browser context, resuming a saved
// session when it is still valid and logging in interactively otherwise.
//
// A Manager serves a single run and is not safe for concurrent use.
type Manager struct {
	driver browser.Driver
	store  Store
	creds  Credentials
	opts   Options
	pacer  browser.Pacer
	logger *logging.Logger
	now    func() time.Time

	cookieDomains []glob.Glob

	state       State
	transitions []State
	mode        LoginMode
	processed   MessageSet
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithPacer replaces the default jitter pacer.
func WithPacer(p browser.Pacer) ManagerOption {
	return func(m *Manager) {
		m.pacer = p
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithClock overrides time.Now, used for the lastLogin timestamp.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a Manager. It fails only on invalid cookie domain
// patterns.
func NewManager(driver browser.Driver, store Store, creds Credentials, opts Options, options ...ManagerOption) (*Manager, error) {
	m := &Manager{
		driver:    driver,
		store:     store,
		creds:     creds,
		opts:      opts,
		pacer:     browser.NewJitterPacer(),
		logger:    logging.Discard(),
		now:       time.Now,
		state:     StateStart,
		processed: NewMessageSet(),
	}
	for _, opt := range options {
		opt(m)
	}

	for _, pattern := range opts.CookieDomains {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid cookie domain pattern %q: %w", pattern, err)
		}
		m.cookieDomains = append(m.cookieDomains, g)
	}

	return m, nil
}

// State returns the current state.
func (m *Manager) State() State {
	return m.state
}

// Transitions returns every state entered so far, starting with StateStart.
func (m *Manager) Transitions() []State {
	return append([]State(nil), m.transitions...)
}

// Mode reports how the session became authenticated, if it did.
func (m *Manager) Mode() LoginMode {
	return m.mode
}

// IsProcessed reports whether a message was already forwarded.
func (m *Manager) IsProcessed(id string) bool {
	return m.processed.Has(id)
}

// MarkProcessed records a forwarded message. It is saved by Persist.
func (m *Manager) MarkProcessed(id string) {
	m.processed.Add(id)
}

// ProcessedCount returns the number of known processed messages.
func (m *Manager) ProcessedCount() int {
	return len(m.processed)
}

func (m *Manager) transition(to State) {
	if len(m.transitions) > 0 {
		m.logger.Debugf("state %s -> %s", m.state, to)
	}
	m.state = to
	m.transitions = append(m.transitions, to)
}

// LoadPersisted reads the saved record and cookies. Any read or decode
// failure is logged and treated as "nothing saved".
func (m *Manager) LoadPersisted() (*Record, []browser.Cookie) {
	rec, err := m.store.LoadRecord()
	if err != nil {
		m.logger.Warnf("ignoring saved session record: %v", err)
		rec = nil
	}
	if rec != nil {
		m.processed = NewMessageSet(rec.ProcessedMessages...)
		m.logger.Infof("loaded %d processed messages from cache", len(m.processed))
	}

	cookies, err := m.store.LoadCookies()
	if err != nil {
		m.logger.Warnf("ignoring saved cookies: %v", err)
		cookies = nil
	}
	return rec, cookies
}

// ApplyCookies restores cookies into the browser. The browser is first sent
// to the base origin because cookies cannot be set before a document on a
// matching domain exists. A cookie that is filtered out, invalid, or rejected
// by the browser is skipped; the rest are still applied.
func (m *Manager) ApplyCookies(cookies []browser.Cookie) ApplyResult {
	var result ApplyResult
	if len(cookies) == 0 {
		return result
	}

	if err := m.driver.Navigate(m.opts.BaseURL); err != nil {
		m.logger.Warnf("cannot restore cookies, base origin unreachable: %v", err)
		result.Skipped = len(cookies)
		return result
	}
	m.pacer.Pause(cookieSettleMin, cookieSettleMax)

	now := m.now()
	for _, c := range cookies {
		if !m.cookieAllowed(c) {
			m.logger.Debugf("skipping cookie %q for foreign domain %q", c.Name, c.Domain)
			result.Skipped++
			continue
		}
		if c.Expired(now) {
			m.logger.Debugf("skipping expired cookie %q", c.Name)
			result.Skipped++
			continue
		}
		if err := m.driver.AddCookie(c); err != nil {
			m.logger.Debugf("skipping cookie %q: %v", c.Name, err)
			result.Skipped++
			continue
		}
		result.Applied++
	}

	m.logger.Infof("cookies restored: %d applied, %d skipped", result.Applied, result.Skipped)
	return result
}

func (m *Manager) cookieAllowed(c browser.Cookie) bool {
	if len(m.cookieDomains) == 0 {
		return true
	}
	for _, g := range m.cookieDomains {
		if g.Match(c.Domain) {
			return true
		}
	}
	return false
}

// ProbeLoggedIn loads the site root and looks for any authenticated marker,
// in order, each with a bounded wait. It is a heuristic: a changed page
// layout produces false negatives.
func (m *Manager) ProbeLoggedIn() bool {
	if err := m.driver.Navigate(m.opts.BaseURL); err != nil {
		m.logger.Warnf("probe navigation failed: %v", err)
		return false
	}
	m.pacer.Pause(pageSettleMin, pageSettleMax)

	for _, marker := range m.opts.LoggedInMarkers {
		if _, err := m.driver.FindElement(marker, m.opts.ProbeTimeout); err == nil {
			m.logger.Infof("already logged in (matched %s)", marker)
			return true
		} else if !errors.Is(err, browser.ErrElementNotFound) {
			m.logger.Debugf("probe marker %s: %v", marker, err)
		}
	}

	// The login-page check does not override the result above; it only
	// tells the log whether the form was actually seen.
	if m.onLoginPage() {
		m.logger.Infof("not logged in, login form is showing")
	} else {
		m.logger.Infof("no logged-in marker found")
	}
	return false
}

func (m *Manager) onLoginPage() bool {
	for _, marker := range m.opts.LoginPageMarkers {
		if _, err := m.driver.FindElement(marker, 0); err == nil {
			return true
		}
	}
	return false
}

// SmartLogin restores the saved session and logs in interactively only when
// the restored session is not authenticated. A nil error means the browser
// is authenticated. Interactive login is attempted at most once.
func (m *Manager) SmartLogin(ctx context.Context) error {
	m.transition(StateStart)

	_, cookies := m.LoadPersisted()
	if len(cookies) > 0 {
		m.ApplyCookies(cookies)
	}

	m.transition(StateProbing)
	if m.ProbeLoggedIn() {
		m.mode = LoginResumed
		m.transition(StateAuthenticated)
		m.logger.Infof("using existing session, no login required")
		return nil
	}
	m.transition(StateUnauthenticated)

	if err := ctx.Err(); err != nil {
		m.transition(StateFailed)
		return &AuthenticationError{Stage: "probe", Err: err}
	}

	m.logger.Infof("session expired or not found, logging in")
	m.transition(StateInteractiveLogin)
	if err := m.InteractiveLogin(); err != nil {
		m.transition(StateFailed)
		return err
	}

	m.mode = LoginInteractive
	m.transition(StateAuthenticated)

	if err := m.Persist(); err != nil {
		m.logger.Warnf("login succeeded but the session was not saved: %v", err)
	}
	return nil
}

// Persist captures the browser cookies and session metadata and writes both
// files. If reading the cookies from the browser fails nothing is written.
// The record goes first so the processed set survives a failed cookie write.
func (m *Manager) Persist() error {
	cookies, err := m.driver.Cookies()
	if err != nil {
		return &PersistenceError{Op: "save", Path: "cookies", Err: err}
	}

	rec := Record{
		LastLogin:         m.now().UTC(),
		UserAgent:         m.userAgent(),
		CurrentURL:        m.driver.CurrentURL(),
		ProcessedMessages: m.processed.Sorted(),
	}

	if err := m.store.SaveRecord(rec); err != nil {
		return err
	}
	if err := m.store.SaveCookies(cookies); err != nil {
		return err
	}

	m.logger.Infof("session saved (%d cookies, %d processed messages)", len(cookies), len(rec.ProcessedMessages))
	return nil
}

func (m *Manager) userAgent() string {
	v, err := m.driver.Evaluate("navigator.userAgent")
	if err != nil {
		m.logger.Debugf("user agent unavailable: %v", err)
		return ""
	}
	ua, _ := v.(string)
	return ua
}
