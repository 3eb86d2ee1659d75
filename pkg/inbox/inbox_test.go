package inbox

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/dmrelay/pkg/browser"
	"github.com/entrhq/dmrelay/pkg/browser/browsertest"
)

func TestExtractURL(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"look https://www.instagram.com/reel/Cx1_-a/ wow", "https://www.instagram.com/reel/Cx1_-a/"},
		{"http://instagram.com/p/ABC123", "http://instagram.com/p/ABC123"},
		{"two https://instagram.com/p/one/ https://instagram.com/p/two/", "https://instagram.com/p/one/"},
		{"profile https://www.instagram.com/someone/", ""},
		{"a reel without a link", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractURL(tt.text))
		})
	}
}

func TestExtractLinks(t *testing.T) {
	fragment := `<div class="message">
		<a href="/reel/Rel1/">reel</a>
		<a href="https://www.instagram.com/p/Post2/">post</a>
		<a href="https://example.com/p/Nope/">other</a>
		<a href="/reel/Rel1/">again</a>
		<a>no href</a>
	</div>`

	assert.Equal(t, []string{
		"https://www.instagram.com/reel/Rel1/",
		"https://www.instagram.com/p/Post2/",
	}, ExtractLinks(fragment))

	assert.Nil(t, ExtractLinks(""))
	assert.Empty(t, ExtractLinks("<p>plain text</p>"))
}

func TestMessageID(t *testing.T) {
	id := MessageID(2, "  https://instagram.com/p/x/ ")

	assert.Equal(t, id, MessageID(2, "https://instagram.com/p/x/"), "surrounding space is ignored")
	assert.NotEqual(t, id, MessageID(3, "https://instagram.com/p/x/"))
	assert.NotEqual(t, id, MessageID(2, "https://instagram.com/p/y/"))
	assert.Regexp(t, `^2_[0-9a-f]+$`, id)
	// FNV-1a 64 offset basis
	assert.Equal(t, "0_cbf29ce484222325", MessageID(0, ""))
}

func messages(texts ...string) []*browsertest.FakeElement {
	els := make([]*browsertest.FakeElement, 0, len(texts))
	for _, text := range texts {
		els = append(els, &browsertest.FakeElement{TextBody: text})
	}
	return els
}

// inbox scripts one conversation element per thread; clicking it shows that
// thread's messages.
func inbox(d *browsertest.FakeDriver, opts Options, threads ...[]*browsertest.FakeElement) []*browsertest.FakeElement {
	convs := make([]*browsertest.FakeElement, 0, len(threads))
	for i, thread := range threads {
		convs = append(convs, &browsertest.FakeElement{
			Locator: fmt.Sprintf("conversation-%d", i),
			Clicked: func(d *browsertest.FakeDriver) {
				d.SetList(opts.MessageList, thread...)
			},
		})
	}
	d.SetList(opts.ConversationList, convs...)
	return convs
}

func newTestScanner(d browser.Driver) *Scanner {
	return NewScanner(d, DefaultOptions(), WithPacer(browser.NoPacer{}))
}

func TestOpen(t *testing.T) {
	opts := DefaultOptions()
	d := browsertest.NewFakeDriver()
	d.Show(opts.DirectLink)
	d.OnClick(opts.DirectLink, func(d *browsertest.FakeDriver) {
		d.Show(opts.InboxMarker)
	})

	require.NoError(t, newTestScanner(d).Open())
	assert.Equal(t, []string{opts.DirectLink}, d.Clicks)
}

func TestOpen_Failures(t *testing.T) {
	opts := DefaultOptions()

	t.Run("no direct link", func(t *testing.T) {
		d := browsertest.NewFakeDriver()
		err := newTestScanner(d).Open()
		require.Error(t, err)
		assert.True(t, errors.Is(err, browser.ErrElementNotFound))
		assert.Contains(t, err.Error(), "direct link")
	})

	t.Run("inbox never renders", func(t *testing.T) {
		d := browsertest.NewFakeDriver()
		d.Show(opts.DirectLink)
		err := newTestScanner(d).Open()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "inbox did not load")
	})
}

func TestScan_LimitsAndFilters(t *testing.T) {
	opts := DefaultOptions()
	d := browsertest.NewFakeDriver()

	threads := make([][]*browsertest.FakeElement, 0, 7)
	for i := 0; i < 7; i++ {
		threads = append(threads, messages(
			fmt.Sprintf("https://instagram.com/p/old%d/", i),
			"hello",
			fmt.Sprintf("check this REEL https://www.instagram.com/reel/r%d/", i),
			"  https://instagram.com/p/dup/  ",
		))
	}
	convs := inbox(d, opts, threads...)

	found := newTestScanner(d).Scan(nil)

	for i, conv := range convs {
		clicked := false
		for _, c := range d.Clicks {
			clicked = clicked || c == conv.Locator
		}
		assert.Equal(t, i < 5, clicked, "conversation %d", i)
	}

	require.Len(t, found, 10, "two qualifying messages in each of the last three of five threads")
	for _, m := range found {
		assert.NotContains(t, m.Text, "/p/old", "only the last three messages are read")
		assert.NotEmpty(t, m.URL)
		assert.Equal(t, MessageID(m.Conversation, m.Text), m.ID)
	}
	assert.Equal(t, Message{
		ID:           MessageID(0, "check this REEL https://www.instagram.com/reel/r0/"),
		Conversation: 0,
		Text:         "check this REEL https://www.instagram.com/reel/r0/",
		URL:          "https://www.instagram.com/reel/r0/",
	}, found[0])
	assert.Equal(t, "https://instagram.com/p/dup/", found[1].Text, "text is trimmed")
}

func TestScan_SkipsSeen(t *testing.T) {
	opts := DefaultOptions()
	d := browsertest.NewFakeDriver()
	inbox(d, opts, messages(
		"https://instagram.com/p/a/",
		"https://instagram.com/p/b/",
	))

	seen := map[string]bool{MessageID(0, "https://instagram.com/p/a/"): true}
	found := newTestScanner(d).Scan(func(id string) bool { return seen[id] })

	require.Len(t, found, 1)
	assert.Equal(t, "https://instagram.com/p/b/", found[0].URL)
}

func TestScan_DeduplicatesWithinRun(t *testing.T) {
	opts := DefaultOptions()
	d := browsertest.NewFakeDriver()
	inbox(d, opts, messages(
		"https://instagram.com/p/same/",
		"https://instagram.com/p/same/",
	))

	assert.Len(t, newTestScanner(d).Scan(nil), 1)
}

func TestScan_KeywordWithoutURL(t *testing.T) {
	opts := DefaultOptions()
	d := browsertest.NewFakeDriver()
	inbox(d, opts, messages("you have to watch this reel"))

	found := newTestScanner(d).Scan(nil)
	require.Len(t, found, 1)
	assert.Empty(t, found[0].URL)
}

func TestScan_LinkOnlyInMarkup(t *testing.T) {
	opts := DefaultOptions()
	d := browsertest.NewFakeDriver()
	inbox(d, opts, []*browsertest.FakeElement{
		{TextBody: "shared a post", HTMLBody: `<a href="/p/Shared1/">shared a post</a>`},
		{TextBody: "see you tomorrow", HTMLBody: `<span>see you tomorrow</span>`},
	})

	found := newTestScanner(d).Scan(nil)
	require.Len(t, found, 1)
	assert.Equal(t, "https://www.instagram.com/p/Shared1/", found[0].URL)
}

func TestScan_ToleratesBrokenElements(t *testing.T) {
	opts := DefaultOptions()
	d := browsertest.NewFakeDriver()
	convs := inbox(d, opts,
		messages("https://instagram.com/p/first/"),
		[]*browsertest.FakeElement{
			{TextErr: errors.New("stale element")},
			{TextBody: "https://instagram.com/p/second/"},
		},
		messages("https://instagram.com/p/third/"),
	)
	convs[0].ClickErr = errors.New("element detached")

	found := newTestScanner(d).Scan(nil)

	var urls []string
	for _, m := range found {
		urls = append(urls, m.URL)
	}
	assert.Equal(t, []string{"https://instagram.com/p/second/", "https://instagram.com/p/third/"}, urls)
}

func TestScan_NoConversations(t *testing.T) {
	d := browsertest.NewFakeDriver()
	assert.Empty(t, newTestScanner(d).Scan(nil))
}
