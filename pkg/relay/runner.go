// Package relay runs one scheduled check: authenticate, scan the inbox,
// publish new content and save the session.
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/entrhq/dmrelay/pkg/browser"
	"github.com/entrhq/dmrelay/pkg/inbox"
	"github.com/entrhq/dmrelay/pkg/logging"
	"github.com/entrhq/dmrelay/pkg/publish"
	"github.com/entrhq/dmrelay/pkg/session"
)

// Authenticator yields a logged-in browser and tracks forwarded messages.
// *session.Manager implements it.
type Authenticator interface {
	SmartLogin(ctx context.Context) error
	Mode() session.LoginMode
	IsProcessed(id string) bool
	MarkProcessed(id string)
	Persist() error
}

// Inbox finds new messages. *inbox.Scanner implements it.
type Inbox interface {
	Open() error
	Scan(seen func(id string) bool) []inbox.Message
}

// Publisher queues content downstream. *publish.Client implements it.
type Publisher interface {
	Publish(ctx context.Context, item publish.Item) error
}

const (
	publishGapMin = 3 * time.Second
	publishGapMax = 6 * time.Second
)

// Runner executes a run.
type Runner struct {
	auth      Authenticator
	inbox     Inbox
	publisher Publisher
	reports   *ReportWriter
	pacer     browser.Pacer
	logger    *logging.Logger
	now       func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithReportWriter enables the run report.
func WithReportWriter(w *ReportWriter) Option {
	return func(r *Runner) {
		r.reports = w
	}
}

// WithPacer replaces the default jitter pacer.
func WithPacer(p browser.Pacer) Option {
	return func(r *Runner) {
		r.pacer = p
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithClock overrides time.Now for the summary timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// NewRunner creates a Runner.
func NewRunner(auth Authenticator, in Inbox, pub Publisher, opts ...Option) *Runner {
	r := &Runner{
		auth:      auth,
		inbox:     in,
		publisher: pub,
		pacer:     browser.NewJitterPacer(),
		logger:    logging.Discard(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run performs the check. The summary is returned even when the run fails.
// Publish failures do not fail the run; they make it a partial success.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{
		RunID:     logging.RunID(),
		Status:    "running",
		StartTime: r.now(),
		Published: []Item{},
	}
	r.logger.Infof("running scheduled DM check")

	if err := r.auth.SmartLogin(ctx); err != nil {
		return r.fail(summary, fmt.Errorf("authentication failed: %w", err))
	}
	summary.LoginMode = string(r.auth.Mode())

	if err := ctx.Err(); err != nil {
		return r.fail(summary, err)
	}
	if err := r.inbox.Open(); err != nil {
		return r.fail(summary, fmt.Errorf("failed to open inbox: %w", err))
	}

	messages := r.inbox.Scan(r.auth.IsProcessed)
	summary.Metrics.MessagesFound = len(messages)

	for i, msg := range messages {
		if err := ctx.Err(); err != nil {
			r.logger.Warnf("run cancelled, %d messages left", len(messages)-i)
			break
		}
		r.publishOne(ctx, summary, msg)
		if i < len(messages)-1 {
			r.pacer.Pause(publishGapMin, publishGapMax)
		}
	}

	if err := r.auth.Persist(); err != nil {
		r.logger.Warnf("failed to save session: %v", err)
	} else {
		summary.Saved = true
	}

	summary.Status = StatusSuccess
	if summary.Metrics.Failed > 0 {
		summary.Status = StatusPartialSuccess
	}
	if err := ctx.Err(); err != nil {
		return r.fail(summary, err)
	}

	r.finish(summary)
	r.logger.Infof("check complete, published %d of %d messages", summary.Metrics.Published, summary.Metrics.MessagesFound)
	return summary, nil
}

func (r *Runner) publishOne(ctx context.Context, summary *Summary, msg inbox.Message) {
	err := r.publisher.Publish(ctx, publish.Item{ID: msg.ID, URL: msg.URL})
	switch {
	case err == nil:
		r.auth.MarkProcessed(msg.ID)
		summary.Metrics.Published++
		summary.Published = append(summary.Published, Item{ID: msg.ID, URL: msg.URL})
	case errors.Is(err, publish.ErrMissingURL):
		r.logger.Warnf("no content URL found in message %s", msg.ID)
		summary.Metrics.Skipped++
	default:
		r.logger.Errorf("failed to publish %s: %v", msg.ID, err)
		summary.Metrics.Failed++
		summary.Failures = append(summary.Failures, Item{ID: msg.ID, URL: msg.URL, Error: err.Error()})
	}
}

func (r *Runner) fail(summary *Summary, err error) (*Summary, error) {
	summary.Status = StatusFailed
	summary.Error = err.Error()
	r.logger.Errorf("scheduled check failed: %v", err)
	r.finish(summary)
	return summary, err
}

func (r *Runner) finish(summary *Summary) {
	summary.EndTime = r.now()
	summary.Duration = summary.EndTime.Sub(summary.StartTime)

	if r.reports == nil {
		return
	}
	if err := r.reports.Write(summary); err != nil {
		r.logger.Warnf("failed to write run report: %v", err)
	}
}
