package session

import (
	"errors"
	"fmt"

	"github.com/entrhq/dmrelay/pkg/browser"
)

// InteractiveLogin drives the credential form: accept the cookie banner if
// shown, type the username and password with keystroke jitter, submit,
// dismiss optional dialogs, and wait for the post-login marker. Only a missing
// form or a missing post-login marker fails the login; the banner and the
// dialogs are optional.
func (m *Manager) InteractiveLogin() error {
	if m.creds.Username == "" || m.creds.Password == "" {
		return &AuthenticationError{Stage: "credentials", Err: errors.New("username and password are required")}
	}

	m.logger.Infof("logging in as %s", m.creds.Username)
	if err := m.driver.Navigate(m.opts.LoginURL); err != nil {
		return &AuthenticationError{Stage: "navigate", Err: err}
	}
	m.pacer.Pause(pageSettleMin, pageSettleMax)

	if m.opts.ConsentButton != "" && m.dismiss("cookie consent", m.opts.ConsentButton) {
		m.pacer.Pause(dialogGapMin, dialogGapMax)
	}

	if err := m.fillField("username", m.opts.UsernameField, m.creds.Username); err != nil {
		return err
	}
	m.pacer.Pause(fieldGapMin, fieldGapMax)

	if err := m.fillField("password", m.opts.PasswordField, m.creds.Password); err != nil {
		return err
	}
	m.pacer.Pause(fieldGapMin, fieldGapMax)

	submit, err := m.driver.FindElement(m.opts.SubmitButton, m.opts.FieldTimeout)
	if err != nil {
		return &AuthenticationError{Stage: "submit", Err: err}
	}
	if err := submit.Click(); err != nil {
		return &AuthenticationError{Stage: "submit", Err: err}
	}
	m.pacer.Pause(submitWaitMin, submitWaitMax)

	m.DismissChallenges()

	if _, err := m.driver.FindElement(m.opts.PostLoginMarker, m.opts.LoginTimeout); err != nil {
		m.logger.Errorf("login verification failed: %v", err)
		return &AuthenticationError{Stage: "verify", Err: err}
	}

	m.logger.Infof("login successful")
	return nil
}

// DismissChallenges clears the optional post-login dialogs in order and
// returns how many were dismissed. A dialog that never shows up is not an
// error.
func (m *Manager) DismissChallenges() int {
	dismissed := 0
	for _, c := range m.opts.Challenges {
		if m.dismiss(c.Name, c.Locator) {
			dismissed++
			m.pacer.Pause(dialogGapMin, dialogGapMax)
		}
	}
	return dismissed
}

func (m *Manager) dismiss(name, locator string) bool {
	el, err := m.driver.FindElement(locator, m.opts.ChallengeTimeout)
	if err != nil {
		if !errors.Is(err, browser.ErrElementNotFound) {
			m.logger.Warnf("checking %s dialog: %v", name, err)
		}
		return false
	}
	if err := el.Click(); err != nil {
		m.logger.Warnf("could not dismiss %s dialog: %v", name, err)
		return false
	}
	m.logger.Infof("dismissed %s dialog", name)
	return true
}

func (m *Manager) fillField(name, locator, value string) error {
	field, err := m.driver.FindElement(locator, m.opts.FieldTimeout)
	if err != nil {
		return &AuthenticationError{Stage: name, Err: err}
	}
	if err := field.Clear(); err != nil {
		return &AuthenticationError{Stage: name, Err: err}
	}
	for _, r := range value {
		if err := field.Type(string(r)); err != nil {
			return &AuthenticationError{Stage: name, Err: fmt.Errorf("typing: %w", err)}
		}
		m.pacer.Pause(browser.KeystrokeMin, browser.KeystrokeMax)
	}
	return nil
}
