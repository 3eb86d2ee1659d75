package session

import "time"

// Credentials are the account login details.
type Credentials struct {
	Username string
	Password string
}

// Challenge is an optional interstitial dialog that may appear after login.
type Challenge struct {
	Name    string `yaml:"name" json:"name"`
	Locator string `yaml:"locator" json:"locator"`
}

// Options holds the site-specific locators and the wait budgets.
type Options struct {
	// BaseURL is the site origin cookies are scoped to
	BaseURL string `yaml:"base_url" json:"base_url"`

	// LoginURL is the credential entry page
	LoginURL string `yaml:"login_url" json:"login_url"`

	// LoggedInMarkers are probed in order; any match means authenticated
	LoggedInMarkers []string `yaml:"logged_in_markers" json:"logged_in_markers"`

	// LoginPageMarkers identify the login form. Informational only.
	LoginPageMarkers []string `yaml:"login_page_markers" json:"login_page_markers"`

	// ConsentButton accepts the cookie banner shown before the form
	ConsentButton string `yaml:"consent_button" json:"consent_button"`

	UsernameField string `yaml:"username_field" json:"username_field"`
	PasswordField string `yaml:"password_field" json:"password_field"`
	SubmitButton  string `yaml:"submit_button" json:"submit_button"`

	// PostLoginMarker must appear for the login to count as successful
	PostLoginMarker string `yaml:"post_login_marker" json:"post_login_marker"`

	// Challenges are dismissed in order after submitting the form
	Challenges []Challenge `yaml:"challenges" json:"challenges"`

	// CookieDomains are glob patterns; cookies for other domains are not
	// injected. Empty allows every domain.
	CookieDomains []string `yaml:"cookie_domains" json:"cookie_domains"`

	ProbeTimeout     time.Duration `yaml:"probe_timeout" json:"probe_timeout"`
	ChallengeTimeout time.Duration `yaml:"challenge_timeout" json:"challenge_timeout"`
	FieldTimeout     time.Duration `yaml:"field_timeout" json:"field_timeout"`
	LoginTimeout     time.Duration `yaml:"login_timeout" json:"login_timeout"`
}

// DefaultOptions returns the Instagram web locators.
func DefaultOptions() Options {
	return Options{
		BaseURL:  "https://www.instagram.com",
		LoginURL: "https://www.instagram.com/accounts/login/",
		LoggedInMarkers: []string{
			"//a[contains(@href, '/direct/')]",
			"//svg[@aria-label='Direct']",
			"//a[contains(@href, 'accounts/edit')]",
			"//button[contains(@class, 'follow')]",
			"//div[contains(@class, 'logged-in')]",
		},
		LoginPageMarkers: []string{
			"//input[@name='username']",
			"//input[@name='password']",
			"//button[@type='submit']",
		},
		ConsentButton:   "//button[contains(text(), 'Accept') or contains(text(), 'Allow')]",
		UsernameField:   "input[name='username']",
		PasswordField:   "input[name='password']",
		SubmitButton:    "//button[@type='submit']",
		PostLoginMarker: "//a[contains(@href, '/direct/')]",
		Challenges: []Challenge{
			{Name: "save login info", Locator: "//button[contains(text(), 'Not Now')]"},
			{Name: "notifications", Locator: "//button[contains(text(), 'Not Now') or contains(text(), 'Cancel')]"},
		},
		CookieDomains:    []string{"*instagram.com"},
		ProbeTimeout:     5 * time.Second,
		ChallengeTimeout: 5 * time.Second,
		FieldTimeout:     10 * time.Second,
		LoginTimeout:     10 * time.Second,
	}
}

// Pause windows between steps.
const (
	pageSettleMin   = 3 * time.Second
	pageSettleMax   = 5 * time.Second
	cookieSettleMin = 2 * time.Second
	cookieSettleMax = 3 * time.Second
	fieldGapMin     = 1 * time.Second
	fieldGapMax     = 2 * time.Second
	submitWaitMin   = 5 * time.Second
	submitWaitMax   = 8 * time.Second
	dialogGapMin    = 2 * time.Second
	dialogGapMax    = 3 * time.Second
)
