package session

import (
	"encoding/json"
	"sort"
	"time"
)

// Record is the session metadata persisted next to the cookie file.
type Record struct {
	LastLogin         time.Time `json:"lastLogin"`
	UserAgent         string    `json:"userAgent"`
	CurrentURL        string    `json:"currentUrl"`
	ProcessedMessages []string  `json:"processedMessages"`
}

// Layouts accepted for lastLogin. Timestamps without an offset are UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// UnmarshalJSON decodes a record. An unreadable lastLogin leaves LastLogin
// zero instead of rejecting the record, so the processed set survives.
func (r *Record) UnmarshalJSON(data []byte) error {
	type plain Record
	aux := struct {
		*plain
		LastLogin json.RawMessage `json:"lastLogin"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	r.LastLogin = time.Time{}
	var ts string
	if len(aux.LastLogin) > 0 && json.Unmarshal(aux.LastLogin, &ts) == nil {
		r.LastLogin = parseTimestamp(ts)
	}
	return nil
}

func parseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// MessageSet holds processed message IDs.
type MessageSet map[string]struct{}

// NewMessageSet builds a set from ids.
func NewMessageSet(ids ...string) MessageSet {
	s := make(MessageSet, len(ids))
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add inserts id. Empty IDs are ignored.
func (s MessageSet) Add(id string) {
	if id == "" {
		return
	}
	s[id] = struct{}{}
}

// Has reports whether id is in the set.
func (s MessageSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the IDs in lexical order. Never nil, so the record file
// always carries an array.
func (s MessageSet) Sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
