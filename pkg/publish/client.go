// Package publish queues content on Buffer through its REST API.
package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/entrhq/dmrelay/pkg/logging"
)

const (
	// DefaultBaseURL is the Buffer API origin.
	DefaultBaseURL = "https://api.bufferapp.com"

	// DefaultTemplate is the post text; {url} is replaced by the content link.
	DefaultTemplate = "Check out this amazing content! {url}"

	defaultMaxRetryElapsed = 30 * time.Second
	defaultRetryInterval   = 500 * time.Millisecond
	maxErrorBody           = 4096
)

// ErrMissingURL is returned for items without a content link. No request is
// made for them.
var ErrMissingURL = errors.New("no content URL to publish")

// Item is a piece of content to queue.
type Item struct {
	ID  string
	URL string
}

// Error is a failed Buffer call. StatusCode is zero when no response was
// received.
type Error struct {
	ItemID     string
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	target := "buffer"
	if e.ItemID != "" {
		target = fmt.Sprintf("buffer (item %s)", e.ItemID)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %s", target, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: %v", target, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying the call may succeed.
func (e *Error) Temporary() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500
}

// Client talks to the Buffer API on behalf of one profile.
type Client struct {
	token      string
	profileID  string
	baseURL    string
	template   string
	httpClient *http.Client
	logger     *logging.Logger

	maxRetryElapsed time.Duration
	retryInterval   time.Duration
}

// ClientOption is a function that configures a Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom API origin.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTemplate sets the post text template.
func WithTemplate(template string) ClientOption {
	return func(c *Client) {
		c.template = template
	}
}

// WithMaxRetryElapsed bounds the total time spent retrying one publish. Zero
// disables retries.
func WithMaxRetryElapsed(d time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetryElapsed = d
	}
}

// WithRetryInterval sets the first backoff interval.
func WithRetryInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryInterval = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a Buffer client.
func NewClient(token, profileID string, opts ...ClientOption) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("buffer access token is required")
	}
	if profileID == "" {
		return nil, fmt.Errorf("buffer profile ID is required")
	}

	c := &Client{
		token:           token,
		profileID:       profileID,
		baseURL:         DefaultBaseURL,
		template:        DefaultTemplate,
		httpClient:      &http.Client{Timeout: 30 * time.Second},
		logger:          logging.Discard(),
		maxRetryElapsed: defaultMaxRetryElapsed,
		retryInterval:   defaultRetryInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TestConnection checks that the token is accepted.
func (c *Client) TestConnection(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/1/user.json", nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if err := c.do(req, ""); err != nil {
		c.logger.Errorf("buffer API connection failed: %v", err)
		return err
	}
	c.logger.Infof("buffer API connection successful")
	return nil
}

// Text renders the post text for a content URL.
func (c *Client) Text(contentURL string) string {
	return strings.ReplaceAll(c.template, "{url}", contentURL)
}

// Publish queues the item's URL on the profile. Transport errors and server
// errors are retried with exponential backoff; client errors are not.
func (c *Client) Publish(ctx context.Context, item Item) error {
	if item.URL == "" {
		return fmt.Errorf("item %s: %w", item.ID, ErrMissingURL)
	}

	form := url.Values{}
	form.Set("text", c.Text(item.URL))
	form.Set("profile_ids[]", c.profileID)
	form.Set("shorten", "true")
	body := form.Encode()

	attempt := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/1/updates/create.json", strings.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		err = c.do(req, item.ID)
		var apiErr *Error
		if errors.As(err, &apiErr) && !apiErr.Temporary() {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Warnf("publish of %s failed, retrying in %s: %v", item.ID, wait.Round(time.Millisecond), err)
	}

	if err := backoff.RetryNotify(attempt, c.backOff(ctx), notify); err != nil {
		return err
	}
	c.logger.Infof("added to buffer: %s", item.URL)
	return nil
}

func (c *Client) backOff(ctx context.Context) backoff.BackOff {
	if c.maxRetryElapsed <= 0 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval
	b.MaxElapsedTime = c.maxRetryElapsed
	return backoff.WithContext(b, ctx)
}

func (c *Client) do(req *http.Request, itemID string) error {
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{ItemID: itemID, Err: err}
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode != http.StatusOK {
		return &Error{
			ItemID:     itemID,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}
	return nil
}
