package cmd

import (
	"errors"

	"github.com/audiolibrelab/audiobridge/internal/service"
)

// Process exit codes
const (
	exitOK             = 0
	exitUsage          = 1
	exitBackend        = 2
	exitTargetNotFound = 3
	exitRecorderInit   = 4
)

// exitError pins an exit code on an error regardless of its kind
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withExitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

// ExitCode maps an error returned by a command onto the process exit code
func ExitCode(err error) int {
	if err == nil {
		return exitOK
	}

	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}

	switch service.KindOf(err) {
	case service.KindAggregateCreation, service.KindPropertyNotSettable, service.KindBackend:
		return exitBackend
	case service.KindSpawn:
		return exitRecorderInit
	default:
		return exitUsage
	}
}
