// Package browsertest provides a scripted in-memory browser.Driver.
package browsertest

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/dmrelay/pkg/browser"
)

// FakeDriver is a browser.Driver whose DOM is a set of locators that are
// "present". Tests script transitions with OnNavigate and OnClick hooks.
type FakeDriver struct {
	mu sync.Mutex

	url      string
	present  map[string]bool
	lists    map[string][]*FakeElement
	jar      []browser.Cookie
	onNav    []func(d *FakeDriver, url string)
	onClick  map[string]func(d *FakeDriver)
	clickErr map[string]error
	typed    map[string]string
	scripts  map[string]any
	navErr   error
	cookieFn func(browser.Cookie) error

	// Recorded calls, in order.
	Navigations []string
	Lookups     []string
	Clicks      []string
}

// NewFakeDriver returns an empty driver on about:blank.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{
		url:      "about:blank",
		present:  make(map[string]bool),
		lists:    make(map[string][]*FakeElement),
		onClick:  make(map[string]func(d *FakeDriver)),
		clickErr: make(map[string]error),
		typed:    make(map[string]string),
		scripts:  map[string]any{"navigator.userAgent": "FakeAgent/1.0"},
	}
}

// Show marks locators as present in the current document.
func (d *FakeDriver) Show(locators ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, l := range locators {
		d.present[l] = true
	}
}

// Hide removes locators from the current document.
func (d *FakeDriver) Hide(locators ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, l := range locators {
		delete(d.present, l)
	}
}

// SetList sets the elements returned by FindElements for a locator.
func (d *FakeDriver) SetList(locator string, elements ...*FakeElement) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range elements {
		e.driver = d
		if e.Locator == "" {
			e.Locator = locator
		}
	}
	d.lists[locator] = elements
}

// OnNavigate registers a hook run after every navigation.
func (d *FakeDriver) OnNavigate(fn func(d *FakeDriver, url string)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onNav = append(d.onNav, fn)
}

// OnClick registers a hook run when the element found by locator is clicked.
func (d *FakeDriver) OnClick(locator string, fn func(d *FakeDriver)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onClick[locator] = fn
}

// FailClick makes clicks on elements found by locator return err.
func (d *FakeDriver) FailClick(locator string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clickErr[locator] = err
}

// FailNavigation makes every Navigate call return err.
func (d *FakeDriver) FailNavigation(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.navErr = err
}

// RejectCookies installs a predicate that can refuse cookie injection.
func (d *FakeDriver) RejectCookies(fn func(browser.Cookie) error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cookieFn = fn
}

// SetScriptResult sets the value returned by Evaluate for a script.
func (d *FakeDriver) SetScriptResult(script string, v any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scripts[script] = v
}

// SetCookies replaces the cookie jar.
func (d *FakeDriver) SetCookies(cookies ...browser.Cookie) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jar = append([]browser.Cookie(nil), cookies...)
}

// Jar returns a copy of the cookie jar.
func (d *FakeDriver) Jar() []browser.Cookie {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]browser.Cookie(nil), d.jar...)
}

// HasCookie reports whether a cookie with the given name is in the jar.
func (d *FakeDriver) HasCookie(name string) bool {
	for _, c := range d.Jar() {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Typed returns everything typed into the element found by locator.
func (d *FakeDriver) Typed(locator string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.typed[locator]
}

// Navigate implements browser.Driver.
func (d *FakeDriver) Navigate(url string) error {
	d.mu.Lock()
	if d.navErr != nil {
		err := d.navErr
		d.mu.Unlock()
		return err
	}
	d.url = url
	d.present = make(map[string]bool)
	d.Navigations = append(d.Navigations, url)
	hooks := append([]func(*FakeDriver, string){}, d.onNav...)
	d.mu.Unlock()

	for _, fn := range hooks {
		fn(d, url)
	}
	return nil
}

// FindElement implements browser.Driver. The timeout is ignored.
func (d *FakeDriver) FindElement(locator string, _ time.Duration) (browser.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Lookups = append(d.Lookups, locator)
	if !d.present[locator] {
		return nil, fmt.Errorf("%s: %w", locator, browser.ErrElementNotFound)
	}
	return &FakeElement{Locator: locator, ClickErr: d.clickErr[locator], driver: d}, nil
}

// FindElements implements browser.Driver.
func (d *FakeDriver) FindElements(locator string) ([]browser.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Lookups = append(d.Lookups, locator)
	list := d.lists[locator]
	elements := make([]browser.Element, 0, len(list))
	for _, e := range list {
		elements = append(elements, e)
	}
	return elements, nil
}

// Cookies implements browser.Driver.
func (d *FakeDriver) Cookies() ([]browser.Cookie, error) {
	return d.Jar(), nil
}

// AddCookie implements browser.Driver.
func (d *FakeDriver) AddCookie(c browser.Cookie) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.url == "about:blank" {
		return errors.New("cannot set cookie before a document is loaded")
	}
	if err := c.Validate(); err != nil {
		return err
	}
	if d.cookieFn != nil {
		if err := d.cookieFn(c); err != nil {
			return err
		}
	}
	d.jar = append(d.jar, c)
	return nil
}

// Evaluate implements browser.Driver.
func (d *FakeDriver) Evaluate(script string) (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.scripts[script]
	if !ok {
		return nil, fmt.Errorf("no scripted result for %q", script)
	}
	return v, nil
}

// CurrentURL implements browser.Driver.
func (d *FakeDriver) CurrentURL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url
}

// FakeElement is an element handle of a FakeDriver.
type FakeElement struct {
	Locator  string
	TextBody string
	HTMLBody string
	ClickErr error
	TextErr  error
	// Clicked runs after the locator-level OnClick hook.
	Clicked func(d *FakeDriver)

	driver *FakeDriver
}

// Click implements browser.Element.
func (e *FakeElement) Click() error {
	if e.ClickErr != nil {
		return e.ClickErr
	}
	d := e.driver
	d.mu.Lock()
	d.Clicks = append(d.Clicks, e.Locator)
	hook := d.onClick[e.Locator]
	d.mu.Unlock()

	if hook != nil {
		hook(d)
	}
	if e.Clicked != nil {
		e.Clicked(d)
	}
	return nil
}

// Clear implements browser.Element.
func (e *FakeElement) Clear() error {
	d := e.driver
	d.mu.Lock()
	defer d.mu.Unlock()
	d.typed[e.Locator] = ""
	return nil
}

// Type implements browser.Element.
func (e *FakeElement) Type(text string) error {
	d := e.driver
	d.mu.Lock()
	defer d.mu.Unlock()
	d.typed[e.Locator] += text
	return nil
}

// Text implements browser.Element.
func (e *FakeElement) Text() (string, error) {
	if e.TextErr != nil {
		return "", e.TextErr
	}
	return e.TextBody, nil
}

// HTML implements browser.Element.
func (e *FakeElement) HTML() (string, error) {
	return e.HTMLBody, nil
}

var _ browser.Driver = (*FakeDriver)(nil)
