package stage

import "errors"

// ErrAlreadyDone is returned from Prepare when the handler's output already
// exists for the same logical input. The workflow completes the job without
// executing it.
var ErrAlreadyDone = errors.New("stage: output already present")

// AlreadyDone reports whether err signals an idempotent short-circuit.
func AlreadyDone(err error) bool {
	return errors.Is(err, ErrAlreadyDone)
}

// ErrCancelled is returned from Execute when the handler observed the
// job's cancel flag at a poll point. The workflow marks the job
// Cancelled instead of Failed.
var ErrCancelled = errors.New("stage: job cancelled")

// Cancelled reports whether err signals a cooperative cancellation.
func Cancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
