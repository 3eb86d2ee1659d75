package browser

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrElementNotFound is returned by FindElement when no element matched the
// locator within the timeout. Callers treat it as "condition false".
var ErrElementNotFound = errors.New("element not found")

// Driver is the capability set dmrelay needs from a browser automation
// backend. Any backend that can satisfy it is substitutable.
type Driver interface {
	// Navigate loads url in the current page.
	Navigate(url string) error

	// FindElement waits up to timeout for the first element matching locator.
	// A zero timeout checks once without waiting.
	FindElement(locator string, timeout time.Duration) (Element, error)

	// FindElements returns every element currently matching locator.
	FindElements(locator string) ([]Element, error)

	// Cookies returns all cookies of the browser context.
	Cookies() ([]Cookie, error)

	// AddCookie injects a single cookie into the browser context.
	AddCookie(c Cookie) error

	// Evaluate runs a JavaScript expression in the page and returns its value.
	Evaluate(script string) (any, error)

	// CurrentURL returns the URL of the current page.
	CurrentURL() string
}

// Element is a handle to a DOM element.
type Element interface {
	Click() error
	Clear() error
	// Type sends keystrokes to the element without clearing it first.
	Type(text string) error
	// Text returns the rendered text of the element.
	Text() (string, error)
	// HTML returns the inner HTML of the element.
	HTML() (string, error)
}

// Cookie is a browser cookie in the shape it is persisted to disk.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expiry   float64 `json:"expiry,omitempty"` // Unix seconds, 0 for session cookies
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"` // Strict, Lax or None
}

// Validate reports whether the cookie can be injected at all.
func (c Cookie) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("cookie name is empty")
	}
	if strings.TrimSpace(c.Domain) == "" {
		return fmt.Errorf("cookie %q has no domain", c.Name)
	}
	switch c.SameSite {
	case "", "Strict", "Lax", "None":
	default:
		return fmt.Errorf("cookie %q has invalid sameSite %q", c.Name, c.SameSite)
	}
	if c.Expiry < 0 {
		return fmt.Errorf("cookie %q has negative expiry", c.Name)
	}
	return nil
}

// Expired reports whether the cookie had an expiry that lies before now.
func (c Cookie) Expired(now time.Time) bool {
	if c.Expiry == 0 {
		return false
	}
	return float64(now.Unix()) >= c.Expiry
}
