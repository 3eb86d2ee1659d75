package session

import "fmt"

// AuthenticationError means the interactive login did not reach a verified
// post-login state. It is fatal for the run and never retried.
type AuthenticationError struct {
	Stage string
	Err   error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed at %s: %v", e.Stage, e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// PersistenceError wraps a session or cookie file read/write failure.
// Callers log it and carry on; it never aborts a run.
type PersistenceError struct {
	Op   string // "load" or "save"
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("session %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
