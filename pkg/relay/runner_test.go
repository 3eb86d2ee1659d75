package relay

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/entrhq/dmrelay/pkg/browser"
	"github.com/entrhq/dmrelay/pkg/browser/browsertest"
	"github.com/entrhq/dmrelay/pkg/inbox"
	"github.com/entrhq/dmrelay/pkg/publish"
	"github.com/entrhq/dmrelay/pkg/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeAuth struct {
	loginErr   error
	persistErr error
	processed  map[string]bool
	persisted  int
	loginCalls int
}

func newFakeAuth(processed ...string) *fakeAuth {
	a := &fakeAuth{processed: make(map[string]bool)}
	for _, id := range processed {
		a.processed[id] = true
	}
	return a
}

func (a *fakeAuth) SmartLogin(ctx context.Context) error {
	a.loginCalls++
	return a.loginErr
}

func (a *fakeAuth) Mode() session.LoginMode { return session.LoginResumed }
func (a *fakeAuth) IsProcessed(id string) bool { return a.processed[id] }
func (a *fakeAuth) MarkProcessed(id string) { a.processed[id] = true }

func (a *fakeAuth) Persist() error {
	a.persisted++
	return a.persistErr
}

type fakeInbox struct {
	openErr  error
	messages []inbox.Message
	scanned  bool
}

func (f *fakeInbox) Open() error { return f.openErr }

func (f *fakeInbox) Scan(seen func(id string) bool) []inbox.Message {
	f.scanned = true
	var out []inbox.Message
	for _, m := range f.messages {
		if !seen(m.ID) {
			out = append(out, m)
		}
	}
	return out
}

type fakePublisher struct {
	failures map[string]error
	items    []publish.Item
}

func (p *fakePublisher) Publish(ctx context.Context, item publish.Item) error {
	p.items = append(p.items, item)
	if item.URL == "" {
		return publish.ErrMissingURL
	}
	return p.failures[item.ID]
}

var fixedClock = func() time.Time { return time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC) }

func newTestRunner(auth Authenticator, in Inbox, pub Publisher, opts ...Option) *Runner {
	opts = append([]Option{WithPacer(browser.NoPacer{}), WithClock(fixedClock)}, opts...)
	return NewRunner(auth, in, pub, opts...)
}

func TestRun_Success(t *testing.T) {
	auth := newFakeAuth("0_old")
	in := &fakeInbox{messages: []inbox.Message{
		{ID: "0_old", URL: "https://instagram.com/p/old/"},
		{ID: "0_a", URL: "https://instagram.com/p/a/"},
		{ID: "1_b", URL: "https://instagram.com/reel/b/"},
	}}
	pub := &fakePublisher{}

	summary, err := newTestRunner(auth, in, pub).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, summary.Status)
	assert.Equal(t, "resumed", summary.LoginMode)
	assert.Equal(t, Metrics{MessagesFound: 2, Published: 2}, summary.Metrics)
	assert.Equal(t, []publish.Item{
		{ID: "0_a", URL: "https://instagram.com/p/a/"},
		{ID: "1_b", URL: "https://instagram.com/reel/b/"},
	}, pub.items)
	assert.True(t, auth.IsProcessed("0_a"))
	assert.True(t, auth.IsProcessed("1_b"))
	assert.Equal(t, 1, auth.persisted)
	assert.True(t, summary.Saved)
}

func TestRun_PartialSuccess(t *testing.T) {
	auth := newFakeAuth()
	in := &fakeInbox{messages: []inbox.Message{
		{ID: "0_a", URL: "https://instagram.com/p/a/"},
		{ID: "0_b", URL: "https://instagram.com/p/b/"},
		{ID: "0_c", Text: "a reel without a link"},
	}}
	pub := &fakePublisher{failures: map[string]error{
		"0_a": &publish.Error{ItemID: "0_a", StatusCode: 400, Body: "bad profile"},
	}}

	summary, err := newTestRunner(auth, in, pub).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusPartialSuccess, summary.Status)
	assert.Equal(t, Metrics{MessagesFound: 3, Published: 1, Failed: 1, Skipped: 1}, summary.Metrics)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "0_a", summary.Failures[0].ID)
	assert.Contains(t, summary.Failures[0].Error, "bad profile")

	assert.False(t, auth.IsProcessed("0_a"), "failed items are retried next run")
	assert.True(t, auth.IsProcessed("0_b"))
	assert.False(t, auth.IsProcessed("0_c"))
	assert.Equal(t, 1, auth.persisted, "publish failures still persist")
}

func TestRun_AuthenticationFailureSkipsInbox(t *testing.T) {
	auth := newFakeAuth()
	auth.loginErr = &session.AuthenticationError{Stage: "verify", Err: browser.ErrElementNotFound}
	in := &fakeInbox{}
	pub := &fakePublisher{}

	summary, err := newTestRunner(auth, in, pub).Run(context.Background())

	var authErr *session.AuthenticationError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, StatusFailed, summary.Status)
	assert.NotEmpty(t, summary.Error)
	assert.False(t, in.scanned)
	assert.Empty(t, pub.items)
	assert.Zero(t, auth.persisted)
}

func TestRun_InboxFailure(t *testing.T) {
	auth := newFakeAuth()
	in := &fakeInbox{openErr: errors.New("direct link not found")}

	summary, err := newTestRunner(auth, in, &fakePublisher{}).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, StatusFailed, summary.Status)
	assert.False(t, in.scanned)
}

func TestRun_PersistFailureIsNotFatal(t *testing.T) {
	auth := newFakeAuth()
	auth.persistErr = &session.PersistenceError{Op: "save", Path: "/x", Err: errors.New("disk full")}

	summary, err := newTestRunner(auth, &fakeInbox{}, &fakePublisher{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, summary.Status)
	assert.False(t, summary.Saved)
}

func TestRun_CancelledBetweenPublishes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	auth := newFakeAuth()
	in := &fakeInbox{messages: []inbox.Message{
		{ID: "0_a", URL: "https://instagram.com/p/a/"},
		{ID: "0_b", URL: "https://instagram.com/p/b/"},
	}}
	pub := &fakePublisher{}
	pacer := pacerFunc(func(min, max time.Duration) { cancel() })

	summary, err := newTestRunner(auth, in, pub, WithPacer(pacer)).Run(ctx)

	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, StatusFailed, summary.Status)
	assert.Len(t, pub.items, 1)
	assert.Equal(t, 1, auth.persisted, "work done before cancellation is saved")
}

type pacerFunc func(min, max time.Duration)

func (f pacerFunc) Pause(min, max time.Duration) { f(min, max) }

func TestRun_WritesReport(t *testing.T) {
	fs := afero.NewMemMapFs()
	reports := NewReportWriter(fs, "/state")
	in := &fakeInbox{messages: []inbox.Message{{ID: "0_a", URL: "https://instagram.com/p/a/"}}}

	_, err := newTestRunner(newFakeAuth(), in, &fakePublisher{}, WithReportWriter(reports)).Run(context.Background())
	require.NoError(t, err)

	got, err := reports.Read()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, StatusSuccess, got.Status)
	assert.Equal(t, []Item{{ID: "0_a", URL: "https://instagram.com/p/a/"}}, got.Published)
	assert.True(t, got.StartTime.Equal(fixedClock()))
}

func TestRun_WritesReportOnFailure(t *testing.T) {
	reports := NewReportWriter(afero.NewMemMapFs(), "/state")
	auth := newFakeAuth()
	auth.loginErr = errors.New("boom")

	_, err := newTestRunner(auth, &fakeInbox{}, &fakePublisher{}, WithReportWriter(reports)).Run(context.Background())
	require.Error(t, err)

	got, err := reports.Read()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Contains(t, got.Error, "boom")
}

func TestReportWriter_ReadMissing(t *testing.T) {
	got, err := NewReportWriter(afero.NewMemMapFs(), "/state").Read()
	require.NoError(t, err)
	assert.Nil(t, got)
}

// TestRun_EndToEnd wires the real session manager, inbox scanner and Buffer
// client against a scripted browser and a local API server.
func TestRun_EndToEnd(t *testing.T) {
	var posts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	sessOpts := session.DefaultOptions()
	inboxOpts := inbox.DefaultOptions()
	sessionCookie := browser.Cookie{Name: "sessionid", Value: "v", Domain: ".instagram.com", Path: "/"}

	d := browsertest.NewFakeDriver()
	d.OnNavigate(func(d *browsertest.FakeDriver, url string) {
		if url == sessOpts.BaseURL && d.HasCookie("sessionid") {
			d.Show(sessOpts.PostLoginMarker, inboxOpts.DirectLink)
		}
	})
	d.OnClick(inboxOpts.DirectLink, func(d *browsertest.FakeDriver) {
		d.Show(inboxOpts.InboxMarker)
		d.SetList(inboxOpts.ConversationList, &browsertest.FakeElement{
			Clicked: func(d *browsertest.FakeDriver) {
				d.SetList(inboxOpts.MessageList,
					&browsertest.FakeElement{TextBody: "https://www.instagram.com/reel/abc/"},
					&browsertest.FakeElement{TextBody: "lol"},
				)
			},
		})
	})

	store := session.NewFileStore(afero.NewMemMapFs(), "/state", "alice")
	require.NoError(t, store.SaveCookies([]browser.Cookie{sessionCookie}))

	mgr, err := session.NewManager(d, store, session.Credentials{Username: "alice", Password: "pw"}, sessOpts,
		session.WithPacer(browser.NoPacer{}))
	require.NoError(t, err)
	scanner := inbox.NewScanner(d, inboxOpts, inbox.WithPacer(browser.NoPacer{}))
	client, err := publish.NewClient("tok", "p1", publish.WithBaseURL(srv.URL), publish.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	summary, err := newTestRunner(mgr, scanner, client).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, summary.Status)
	assert.Equal(t, 1, summary.Metrics.Published)
	assert.Equal(t, int32(1), posts.Load())

	rec, err := store.LoadRecord()
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, []string{inbox.MessageID(0, "https://www.instagram.com/reel/abc/")}, rec.ProcessedMessages)

	// A second run over the same inbox publishes nothing new.
	summary, err = newTestRunner(mgr, scanner, client).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Metrics.MessagesFound)
	assert.Equal(t, int32(1), posts.Load())
}
