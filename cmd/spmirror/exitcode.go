package main

import "spmirror/internal/core"

// Exit codes: 0 success, 1 configuration error, 2 connection/auth
// error, 3 sync failed, 4 another sync already in progress.
const (
	exitOK              = 0
	exitConfigError     = 1
	exitConnectionError = 2
	exitSyncFailed      = 3
	exitAlreadyRunning  = 4
)

type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

func configErr(err error) error { return &configError{err: err} }

// exitCodeFor classifies a command error into one of the documented
// CLI exit codes.
func exitCodeFor(err error) int {
	if err == nil {
		return exitOK
	}
	if _, ok := err.(*configError); ok {
		return exitConfigError
	}
	switch {
	case core.IsKind(err, core.KindAlreadyRunning):
		return exitAlreadyRunning
	case core.IsKind(err, core.KindAuth), core.IsKind(err, core.KindTransientNetwork), core.IsKind(err, core.KindRateLimited):
		return exitConnectionError
	case core.IsKind(err, core.KindConfig):
		return exitConfigError
	default:
		return exitSyncFailed
	}
}
