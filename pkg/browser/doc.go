// Package browser drives a Chromium browser through Playwright.
//
// The rest of dmrelay only sees the Driver and Element interfaces, so the
// session and inbox logic can be exercised against browsertest.FakeDriver
// without a browser.
//
// # Launch
//
// Launch starts Chromium with a persistent profile directory, a stable user
// agent, a viewport picked from a small set of common resolutions, and init
// scripts that hide the usual automation markers:
//
//	page, err := browser.Launch(browser.Options{
//	    Headless:    true,
//	    UserDataDir: "/var/lib/dmrelay/chrome_profile_alice",
//	})
//	if err != nil {
//	    return err
//	}
//	defer page.Close()
//
// # Locators and timeouts
//
// Locators are Playwright selectors. XPath expressions starting with "//" are
// accepted as-is. FindElement waits up to its timeout and returns
// ErrElementNotFound when nothing matched; a zero timeout checks once.
package browser
