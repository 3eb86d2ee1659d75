package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/entrhq/dmrelay/pkg/browser"
	"github.com/entrhq/dmrelay/pkg/logging"
)

// Store persists the session record and cookie set of one account.
//
// Load methods return (nil, nil) when nothing has been saved yet.
type Store interface {
	LoadRecord() (*Record, error)
	LoadCookies() ([]browser.Cookie, error)
	SaveRecord(rec Record) error
	SaveCookies(cookies []browser.Cookie) error
}

// FileStore keeps the record and the cookies in two JSON files in one
// directory.
type FileStore struct {
	fs      afero.Fs
	dir     string
	account string
	logger  *logging.Logger
}

// NewFileStore creates a store for account under dir. A nil fs means the OS
// filesystem.
func NewFileStore(fsys afero.Fs, dir, account string) *FileStore {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &FileStore{
		fs:      fsys,
		dir:     dir,
		account: account,
		logger:  logging.Discard(),
	}
}

// WithLogger sets the logger used to report dropped cookie entries.
func (s *FileStore) WithLogger(l *logging.Logger) *FileStore {
	if l != nil {
		s.logger = l
	}
	return s
}

// RecordPath returns the session record file path.
func (s *FileStore) RecordPath() string {
	return filepath.Join(s.dir, fmt.Sprintf("instagram_session_%s.json", s.account))
}

// CookiePath returns the cookie file path.
func (s *FileStore) CookiePath() string {
	return filepath.Join(s.dir, fmt.Sprintf("instagram_cookies_%s.json", s.account))
}

// LoadRecord implements Store.
func (s *FileStore) LoadRecord() (*Record, error) {
	path := s.RecordPath()
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &PersistenceError{Op: "load", Path: path, Err: err}
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, &PersistenceError{Op: "load", Path: path, Err: fmt.Errorf("failed to decode record: %w", err)}
	}
	return &rec, nil
}

// LoadCookies implements Store. Entries that do not decode as a cookie are
// dropped; the rest are returned.
func (s *FileStore) LoadCookies() ([]browser.Cookie, error) {
	path := s.CookiePath()
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &PersistenceError{Op: "load", Path: path, Err: err}
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, &PersistenceError{Op: "load", Path: path, Err: fmt.Errorf("failed to decode cookie array: %w", err)}
	}

	cookies := make([]browser.Cookie, 0, len(entries))
	for i, raw := range entries {
		var c browser.Cookie
		if err := json.Unmarshal(raw, &c); err != nil {
			s.logger.Debugf("dropping cookie entry %d: %v", i, err)
			continue
		}
		cookies = append(cookies, c)
	}
	return cookies, nil
}

// SaveRecord implements Store.
func (s *FileStore) SaveRecord(rec Record) error {
	if rec.ProcessedMessages == nil {
		rec.ProcessedMessages = []string{}
	}
	return s.writeJSON(s.RecordPath(), rec)
}

// SaveCookies implements Store.
func (s *FileStore) SaveCookies(cookies []browser.Cookie) error {
	if cookies == nil {
		cookies = []browser.Cookie{}
	}
	return s.writeJSON(s.CookiePath(), cookies)
}

// Remove deletes both files. Missing files are not an error.
func (s *FileStore) Remove() error {
	for _, path := range []string{s.RecordPath(), s.CookiePath()} {
		if err := s.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return &PersistenceError{Op: "remove", Path: path, Err: err}
		}
	}
	return nil
}

// writeJSON writes v to path through a temp file and a rename so a crash
// never leaves a half-written file behind.
func (s *FileStore) writeJSON(path string, v any) error {
	if err := s.fs.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return &PersistenceError{Op: "save", Path: path, Err: fmt.Errorf("failed to create state directory: %w", err)}
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &PersistenceError{Op: "save", Path: path, Err: fmt.Errorf("failed to encode: %w", err)}
	}

	tempPath := path + ".tmp"
	if err := afero.WriteFile(s.fs, tempPath, data, os.FileMode(0600)); err != nil {
		_ = s.fs.Remove(tempPath)
		return &PersistenceError{Op: "save", Path: path, Err: fmt.Errorf("failed to write temp file: %w", err)}
	}

	if err := s.fs.Rename(tempPath, path); err != nil {
		_ = s.fs.Remove(tempPath)
		return &PersistenceError{Op: "save", Path: path, Err: fmt.Errorf("failed to rename temp file: %w", err)}
	}
	return nil
}
