package browser

import (
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Page is a Driver backed by a Playwright Chromium persistent context.
type Page struct {
	pw      *playwright.Playwright
	context playwright.BrowserContext
	page    playwright.Page
	opts    Options
}

// Launch installs (if needed) and starts Playwright, then opens Chromium with
// a persistent profile. The returned Page must be closed by the caller.
func Launch(opts Options) (*Page, error) {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if len(opts.Viewports) == 0 {
		opts.Viewports = DefaultViewports()
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = DefaultNavigationTimeout
	}

	// Keep the Playwright driver quiet; the run log is the only output.
	runOpts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
	}

	if !opts.SkipInstall {
		if err := playwright.Install(runOpts); err != nil {
			return nil, fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	if opts.UserDataDir != "" {
		if err := os.MkdirAll(opts.UserDataDir, 0700); err != nil {
			_ = pw.Stop()
			return nil, fmt.Errorf("failed to create profile directory: %w", err)
		}
	}

	ctx, err := pw.Chromium.LaunchPersistentContext(opts.UserDataDir, launchOptions(opts, rand.IntN))
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	for _, script := range stealthScripts {
		content := script
		if err := ctx.AddInitScript(playwright.Script{Content: &content}); err != nil {
			_ = ctx.Close()
			_ = pw.Stop()
			return nil, fmt.Errorf("failed to add init script: %w", err)
		}
	}

	// A persistent context opens with one blank page already.
	var page playwright.Page
	if pages := ctx.Pages(); len(pages) > 0 {
		page = pages[0]
	} else {
		page, err = ctx.NewPage()
		if err != nil {
			_ = ctx.Close()
			_ = pw.Stop()
			return nil, fmt.Errorf("failed to create page: %w", err)
		}
	}
	page.SetDefaultNavigationTimeout(millis(opts.NavigationTimeout))

	return &Page{pw: pw, context: ctx, page: page, opts: opts}, nil
}

// launchOptions builds the persistent context options. pick chooses the
// viewport index.
func launchOptions(opts Options, pick func(n int) int) playwright.BrowserTypeLaunchPersistentContextOptions {
	viewport := opts.Viewports[pick(len(opts.Viewports))]

	launch := playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless:          playwright.Bool(opts.Headless),
		Args:              append([]string(nil), launchArgs...),
		IgnoreDefaultArgs: []string{"--enable-automation"},
		UserAgent:         playwright.String(opts.UserAgent),
		Viewport: &playwright.Size{
			Width:  viewport.Width,
			Height: viewport.Height,
		},
		Locale: playwright.String("en-US"),
	}
	if opts.ProxyAddress != "" {
		launch.Proxy = &playwright.Proxy{Server: opts.ProxyAddress}
	}
	return launch
}

// Navigate implements Driver.
func (p *Page) Navigate(url string) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(millis(p.opts.NavigationTimeout)),
	})
	if err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// FindElement implements Driver.
func (p *Page) FindElement(locator string, timeout time.Duration) (Element, error) {
	loc := p.page.Locator(locator).First()

	// Playwright treats a zero timeout as "wait forever".
	if timeout <= 0 {
		count, err := p.page.Locator(locator).Count()
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", locator, err)
		}
		if count == 0 {
			return nil, fmt.Errorf("%s: %w", locator, ErrElementNotFound)
		}
		return &element{loc: loc}, nil
	}

	err := loc.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(millis(timeout)),
	})
	if err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			return nil, fmt.Errorf("%s: %w", locator, ErrElementNotFound)
		}
		return nil, fmt.Errorf("wait for %s: %w", locator, err)
	}
	return &element{loc: loc}, nil
}

// FindElements implements Driver.
func (p *Page) FindElements(locator string) ([]Element, error) {
	loc := p.page.Locator(locator)
	count, err := loc.Count()
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", locator, err)
	}

	elements := make([]Element, 0, count)
	for i := 0; i < count; i++ {
		elements = append(elements, &element{loc: loc.Nth(i)})
	}
	return elements, nil
}

// Cookies implements Driver.
func (p *Page) Cookies() ([]Cookie, error) {
	raw, err := p.context.Cookies()
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}

	cookies := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, fromPlaywrightCookie(c))
	}
	return cookies, nil
}

// AddCookie implements Driver.
func (p *Page) AddCookie(c Cookie) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := p.context.AddCookies([]playwright.OptionalCookie{toPlaywrightCookie(c)}); err != nil {
		return fmt.Errorf("failed to add cookie %q: %w", c.Name, err)
	}
	return nil
}

// Evaluate implements Driver.
func (p *Page) Evaluate(script string) (any, error) {
	result, err := p.page.Evaluate(script)
	if err != nil {
		return nil, fmt.Errorf("evaluation failed: %w", err)
	}
	return result, nil
}

// CurrentURL implements Driver.
func (p *Page) CurrentURL() string {
	return p.page.URL()
}

// Close closes the browser context and stops Playwright.
func (p *Page) Close() error {
	var errs []error
	if err := p.context.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close context: %w", err))
	}
	if err := p.pw.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop playwright: %w", err))
	}
	return errors.Join(errs...)
}

type element struct {
	loc playwright.Locator
}

func (e *element) Click() error {
	if err := e.loc.Click(); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	return nil
}

func (e *element) Clear() error {
	if err := e.loc.Clear(); err != nil {
		return fmt.Errorf("clear failed: %w", err)
	}
	return nil
}

func (e *element) Type(text string) error {
	if err := e.loc.PressSequentially(text); err != nil {
		return fmt.Errorf("typing failed: %w", err)
	}
	return nil
}

func (e *element) Text() (string, error) {
	text, err := e.loc.InnerText()
	if err != nil {
		return "", fmt.Errorf("text extraction failed: %w", err)
	}
	return text, nil
}

func (e *element) HTML() (string, error) {
	html, err := e.loc.InnerHTML()
	if err != nil {
		return "", fmt.Errorf("html extraction failed: %w", err)
	}
	return html, nil
}

func fromPlaywrightCookie(c playwright.Cookie) Cookie {
	cookie := Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		HTTPOnly: c.HttpOnly,
		Secure:   c.Secure,
	}
	// Playwright reports session cookies with expires = -1.
	if c.Expires > 0 {
		cookie.Expiry = c.Expires
	}
	if c.SameSite != nil {
		cookie.SameSite = string(*c.SameSite)
	}
	return cookie
}

func toPlaywrightCookie(c Cookie) playwright.OptionalCookie {
	path := c.Path
	if path == "" {
		path = "/"
	}

	cookie := playwright.OptionalCookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   playwright.String(c.Domain),
		Path:     playwright.String(path),
		HttpOnly: playwright.Bool(c.HTTPOnly),
		Secure:   playwright.Bool(c.Secure),
	}
	if c.Expiry > 0 {
		cookie.Expires = playwright.Float(c.Expiry)
	}
	if c.SameSite != "" {
		sameSite := playwright.SameSiteAttribute(c.SameSite)
		cookie.SameSite = &sameSite
	}
	return cookie
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
