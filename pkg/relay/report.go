package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// ReportFile is the name of the run report inside the state directory.
const ReportFile = "last-run.json"

const (
	StatusSuccess        = "success"
	StatusPartialSuccess = "partial_success"
	StatusFailed         = "failed"
)

// Summary describes one run.
type Summary struct {
	RunID     string        `json:"run_id"`
	Status    string        `json:"status"`
	Error     string        `json:"error,omitempty"`
	LoginMode string        `json:"login_mode,omitempty"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Metrics   Metrics       `json:"metrics"`
	Published []Item        `json:"published"`
	Failures  []Item        `json:"failures,omitempty"`
	Saved     bool          `json:"session_saved"`
}

// Metrics counts the messages handled in a run.
type Metrics struct {
	MessagesFound int `json:"messages_found"`
	Published     int `json:"published"`
	Failed        int `json:"failed"`
	// Skipped messages had no usable link. They stay unprocessed.
	Skipped int `json:"skipped"`
}

// Item is a message outcome recorded in the summary.
type Item struct {
	ID    string `json:"id"`
	URL   string `json:"url,omitempty"`
	Error string `json:"error,omitempty"`
}

// ReportWriter stores the summary of the latest run.
type ReportWriter struct {
	fs  afero.Fs
	dir string
}

// NewReportWriter creates a writer for dir. A nil fs means the OS filesystem.
func NewReportWriter(fsys afero.Fs, dir string) *ReportWriter {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &ReportWriter{fs: fsys, dir: dir}
}

// Path returns the report file path.
func (w *ReportWriter) Path() string {
	return filepath.Join(w.dir, ReportFile)
}

// Write replaces the report with summary.
func (w *ReportWriter) Write(summary *Summary) error {
	if err := w.fs.MkdirAll(w.dir, 0750); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}

	if err := afero.WriteFile(w.fs, w.Path(), data, 0600); err != nil {
		return fmt.Errorf("failed to write run report: %w", err)
	}
	return nil
}

// Read returns the last written summary, or nil if no run was reported yet.
func (w *ReportWriter) Read() (*Summary, error) {
	data, err := afero.ReadFile(w.fs, w.Path())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read run report: %w", err)
	}

	var summary Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("failed to decode run report: %w", err)
	}
	return &summary, nil
}
