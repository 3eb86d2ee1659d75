// Package inbox reads the direct-message inbox and picks out messages that
// share a post or reel.
package inbox

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/dmrelay/pkg/browser"
	"github.com/entrhq/dmrelay/pkg/logging"
)

// Message is an inbox message that references shareable content.
type Message struct {
	ID           string `json:"id"`
	Conversation int    `json:"conversation"`
	Text         string `json:"text"`
	// URL is empty when the text mentions content without a usable link.
	URL string `json:"url,omitempty"`
}

// Options holds the inbox locators and scan limits.
type Options struct {
	DirectLink       string `yaml:"direct_link" json:"direct_link"`
	InboxMarker      string `yaml:"inbox_marker" json:"inbox_marker"`
	ConversationList string `yaml:"conversation_list" json:"conversation_list"`
	MessageList      string `yaml:"message_list" json:"message_list"`

	MaxConversations        int      `yaml:"max_conversations" json:"max_conversations"`
	MessagesPerConversation int      `yaml:"messages_per_conversation" json:"messages_per_conversation"`
	Keywords                []string `yaml:"keywords" json:"keywords"`

	OpenTimeout time.Duration `yaml:"open_timeout" json:"open_timeout"`
}

// DefaultOptions returns the Instagram web inbox locators.
func DefaultOptions() Options {
	return Options{
		DirectLink:              "//a[contains(@href, '/direct/')]",
		InboxMarker:             "//div[contains(@class, 'message') or contains(text(), 'Direct')]",
		ConversationList:        "//div[contains(@role, 'button') and contains(@class, 'conversation')]",
		MessageList:             "//div[contains(@class, 'message') and contains(@data-testid, 'message')]",
		MaxConversations:        5,
		MessagesPerConversation: 3,
		Keywords:                []string{"instagram.com", "reel"},
		OpenTimeout:             10 * time.Second,
	}
}

const (
	openSettleMin   = 3 * time.Second
	openSettleMax   = 5 * time.Second
	threadSettleMin = 2 * time.Second
	threadSettleMax = 3 * time.Second
	threadGapMin    = 1 * time.Second
	threadGapMax    = 2 * time.Second
)

// Scanner walks the inbox of an authenticated browser.
type Scanner struct {
	driver browser.Driver
	opts   Options
	pacer  browser.Pacer
	logger *logging.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithPacer replaces the default jitter pacer.
func WithPacer(p browser.Pacer) Option {
	return func(s *Scanner) {
		s.pacer = p
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Scanner) {
		s.logger = l
	}
}

// NewScanner creates a Scanner.
func NewScanner(driver browser.Driver, opts Options, options ...Option) *Scanner {
	s := &Scanner{
		driver: driver,
		opts:   opts,
		pacer:  browser.NewJitterPacer(),
		logger: logging.Discard(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Open clicks through to the inbox and waits for it to render.
func (s *Scanner) Open() error {
	s.logger.Infof("navigating to direct messages")
	link, err := s.driver.FindElement(s.opts.DirectLink, s.opts.OpenTimeout)
	if err != nil {
		return fmt.Errorf("direct link not found: %w", err)
	}
	if err := link.Click(); err != nil {
		return fmt.Errorf("failed to open direct messages: %w", err)
	}
	s.pacer.Pause(openSettleMin, openSettleMax)

	if _, err := s.driver.FindElement(s.opts.InboxMarker, s.opts.OpenTimeout); err != nil {
		return fmt.Errorf("inbox did not load: %w", err)
	}
	s.logger.Infof("inbox open")
	return nil
}

// Scan reads the most recent messages of the first conversations and
// returns the ones that reference content. Messages for which seen returns
// true are skipped. A conversation or message that cannot be read is logged
// and skipped.
func (s *Scanner) Scan(seen func(id string) bool) []Message {
	if seen == nil {
		seen = func(string) bool { return false }
	}

	s.logger.Infof("scanning for new messages")
	conversations, err := s.driver.FindElements(s.opts.ConversationList)
	if err != nil {
		s.logger.Errorf("failed to list conversations: %v", err)
		return nil
	}
	if s.opts.MaxConversations > 0 && len(conversations) > s.opts.MaxConversations {
		conversations = conversations[:s.opts.MaxConversations]
	}

	var found []Message
	picked := make(map[string]bool)
	for i, conv := range conversations {
		msgs, err := s.scanConversation(i, conv)
		if err != nil {
			s.logger.Warnf("error processing conversation %d: %v", i, err)
			continue
		}
		for _, m := range msgs {
			if picked[m.ID] || seen(m.ID) {
				continue
			}
			picked[m.ID] = true
			found = append(found, m)
		}
		s.pacer.Pause(threadGapMin, threadGapMax)
	}

	s.logger.Infof("found %d new messages", len(found))
	return found
}

func (s *Scanner) scanConversation(index int, conv browser.Element) ([]Message, error) {
	if err := conv.Click(); err != nil {
		return nil, err
	}
	s.pacer.Pause(threadSettleMin, threadSettleMax)

	elements, err := s.driver.FindElements(s.opts.MessageList)
	if err != nil {
		return nil, err
	}
	if n := s.opts.MessagesPerConversation; n > 0 && len(elements) > n {
		elements = elements[len(elements)-n:]
	}

	var msgs []Message
	for _, el := range elements {
		m, ok, err := s.readMessage(index, el)
		if err != nil {
			s.logger.Warnf("error processing message: %v", err)
			continue
		}
		if ok {
			msgs = append(msgs, m)
		}
	}
	return msgs, nil
}

func (s *Scanner) readMessage(index int, el browser.Element) (Message, bool, error) {
	text, err := el.Text()
	if err != nil {
		return Message{}, false, err
	}
	text = strings.TrimSpace(text)

	var links []string
	if markup, err := el.HTML(); err == nil {
		links = ExtractLinks(markup)
	} else if !errors.Is(err, browser.ErrElementNotFound) {
		s.logger.Debugf("message markup unavailable: %v", err)
	}

	if !s.mentionsContent(text) && len(links) == 0 {
		return Message{}, false, nil
	}

	m := Message{
		ID:           MessageID(index, text),
		Conversation: index,
		Text:         text,
		URL:          ExtractURL(text),
	}
	if m.URL == "" && len(links) > 0 {
		m.URL = links[0]
	}
	return m, true, nil
}

func (s *Scanner) mentionsContent(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range s.opts.Keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
