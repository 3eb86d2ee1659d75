// Package logging provides the process-wide component logger used by dmrelay.
//
// Every run gets a random run ID. Log lines from all components of a run go to
// the same file, <log dir>/<run-id>-dmrelay.log, and are mirrored to stdout so
// scheduler output (cron mail, CI logs) shows the run as it happens.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Logger writes leveled, component-tagged lines.
type Logger struct {
	runID     string
	component string
	file      *os.File
	logger    *log.Logger
	mu        sync.Mutex
	logPath   string
	closeOnce sync.Once
}

var (
	runID     string
	runIDOnce sync.Once

	// logDir is where log files are written. Set by Init.
	logDir string

	initOnce sync.Once
	initErr  error

	// stdout is the mirror destination; swapped in tests.
	stdout io.Writer = os.Stdout

	verbose bool
	stateMu sync.RWMutex
)

func getRunID() string {
	runIDOnce.Do(func() {
		runID = uuid.New().String()
	})
	return runID
}

// Init configures the log directory and verbosity. It must be called once at
// startup before any NewLogger call; later calls are no-ops. An empty dir
// selects ~/.dmrelay/logs.
func Init(dir string, debug bool) error {
	stateMu.Lock()
	verbose = debug
	stateMu.Unlock()

	initOnce.Do(func() {
		if dir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				initErr = fmt.Errorf("failed to get home directory: %w", err)
				return
			}
			dir = filepath.Join(homeDir, ".dmrelay", "logs")
		}
		if err := os.MkdirAll(dir, 0750); err != nil {
			initErr = fmt.Errorf("failed to create log directory: %w", err)
			return
		}
		logDir = dir
	})
	return initErr
}

// NewLogger creates a logger for a component.
//
// If Init was never called or failed, or the log file cannot be opened, a
// stderr logger is returned together with the error so the caller can warn
// about it.
func NewLogger(component string) (*Logger, error) {
	if err := Init("", verboseEnabled()); err != nil {
		return newFallbackLogger(component, err), err
	}

	id := getRunID()
	logPath := filepath.Join(logDir, fmt.Sprintf("%s-dmrelay.log", id))

	// Append mode: every component of the run shares the file.
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		err = fmt.Errorf("failed to open log file: %w", err)
		return newFallbackLogger(component, err), err
	}

	return &Logger{
		runID:     id,
		component: component,
		file:      file,
		logger:    log.New(io.MultiWriter(file, stdout), "", 0),
		logPath:   logPath,
	}, nil
}

// Discard returns a logger that drops everything. Useful for tests and for
// components constructed without a logger.
func Discard() *Logger {
	return &Logger{
		runID:     getRunID(),
		component: "discard",
		logger:    log.New(io.Discard, "", 0),
	}
}

func newFallbackLogger(component string, err error) *Logger {
	logger := log.New(os.Stderr, "", 0)
	l := &Logger{
		runID:     getRunID(),
		component: component,
		logger:    logger,
	}
	l.Warnf("file logging unavailable, using stderr: %v", err)
	return l
}

func verboseEnabled() bool {
	stateMu.RLock()
	defer stateMu.RUnlock()
	return verbose
}

func (l *Logger) write(level, format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	l.logger.Printf("[%s] [%s] [%s] %s", timestamp, l.component, level, fmt.Sprintf(format, v...))
}

// Debugf logs a debug-level message. Dropped unless Init enabled debug output.
func (l *Logger) Debugf(format string, v ...interface{}) {
	if !verboseEnabled() {
		return
	}
	l.write("DEBUG", format, v...)
}

// Infof logs an info-level message.
func (l *Logger) Infof(format string, v ...interface{}) {
	l.write("INFO", format, v...)
}

// Warnf logs a warning-level message.
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.write("WARN", format, v...)
}

// Errorf logs an error-level message.
func (l *Logger) Errorf(format string, v ...interface{}) {
	l.write("ERROR", format, v...)
}

// RunID returns the ID shared by all loggers of this process.
func (l *Logger) RunID() string {
	return l.runID
}

// LogPath returns the log file path, or "" for fallback loggers.
func (l *Logger) LogPath() string {
	return l.logPath
}

// Close closes the log file. Safe to call multiple times.
func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		if l.file != nil {
			err = l.file.Close()
		}
	})
	return err
}

// RunID returns the process-wide run ID.
func RunID() string {
	return getRunID()
}

// Directory returns the configured log directory.
func Directory() (string, error) {
	if err := Init("", verboseEnabled()); err != nil {
		return "", err
	}
	return logDir, nil
}
