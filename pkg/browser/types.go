package browser

import "time"

// Options configures the launched browser.
type Options struct {
	// Headless controls whether Chromium runs without a window
	Headless bool `yaml:"headless" json:"headless"`

	// UserDataDir is the persistent Chromium profile directory. Reusing it
	// across runs keeps local storage and the HTTP cache warm.
	UserDataDir string `yaml:"user_data_dir" json:"user_data_dir"`

	// UserAgent is sent on every request. Kept stable across runs so the
	// saved session is not invalidated by a fingerprint change.
	UserAgent string `yaml:"user_agent" json:"user_agent"`

	// Viewports lists candidate window sizes; one is picked per launch
	Viewports []Viewport `yaml:"viewports" json:"viewports"`

	// ProxyAddress is an optional proxy server, e.g. http://host:3128
	ProxyAddress string `yaml:"proxy" json:"proxy"`

	// NavigationTimeout bounds every Navigate call
	NavigationTimeout time.Duration `yaml:"navigation_timeout" json:"navigation_timeout"`

	// SkipInstall skips the Playwright driver/browser download check
	SkipInstall bool `yaml:"skip_install" json:"skip_install"`
}

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// Default values for launch options
const (
	DefaultUserAgent         = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultNavigationTimeout = 30 * time.Second
)

// DefaultViewports are common desktop resolutions.
func DefaultViewports() []Viewport {
	return []Viewport{
		{Width: 1366, Height: 768},
		{Width: 1920, Height: 1080},
		{Width: 1440, Height: 900},
		{Width: 1536, Height: 864},
	}
}

// launchArgs are the Chromium flags used for every launch.
var launchArgs = []string{
	"--no-sandbox",
	"--disable-dev-shm-usage",
	"--disable-blink-features=AutomationControlled",
	"--disable-features=VizDisplayCompositor",
	"--disable-extensions",
	"--disable-plugins",
}

// stealthScripts run before any page script to hide automation markers.
var stealthScripts = []string{
	"Object.defineProperty(navigator, 'webdriver', {get: () => undefined})",
	"Object.defineProperty(navigator, 'plugins', {get: () => [1, 2, 3, 4, 5]})",
	"Object.defineProperty(navigator, 'languages', {get: () => ['en-US', 'en']})",
}
