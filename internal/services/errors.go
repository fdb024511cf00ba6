package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers used to classify stage failures. Handlers wrap errors with
// exactly one marker; the job supervisor decides retry behaviour from it.
var (
	// ErrInput marks permanently invalid requests or source material.
	ErrInput = errors.New("input error")
	// ErrTransient marks failures that are expected to clear on retry.
	ErrTransient = errors.New("transient failure")
	// ErrContract marks upstream responses that violate an agreed schema.
	ErrContract = errors.New("contract violation")
	// ErrFatal marks internal invariant violations that must not be retried.
	ErrFatal = errors.New("fatal error")

	ErrExternalTool  = errors.New("external tool error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Class names the failure class of a stage error for retry decisions and for
// the serialized job error code.
type Class string

const (
	ClassInput     Class = "input"
	ClassTransient Class = "transient"
	ClassContract  Class = "contract"
	ClassFatal     Class = "fatal"
)

// Classify maps a stage error to its failure class. Timeouts and external
// tool failures without a more specific marker count as transient.
func Classify(err error) Class {
	switch {
	case errors.Is(err, ErrInput), errors.Is(err, ErrNotFound), errors.Is(err, ErrConfiguration):
		return ClassInput
	case errors.Is(err, ErrContract):
		return ClassContract
	case errors.Is(err, ErrFatal):
		return ClassFatal
	case errors.Is(err, ErrTransient), errors.Is(err, ErrTimeout), errors.Is(err, ErrExternalTool):
		return ClassTransient
	default:
		return ClassTransient
	}
}

// Retryable reports whether the supervisor may schedule another attempt for
// an error of this class. Contract errors are retryable with a tighter
// attempt budget that the supervisor enforces.
func (c Class) Retryable() bool {
	switch c {
	case ClassTransient, ClassContract:
		return true
	default:
		return false
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
