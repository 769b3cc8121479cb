package services

import (
	"errors"
	"fmt"
	"strings"
)

// Pipeline failure markers. Every attempt outcome other than success is tagged
// with exactly one of these.
var (
	ErrTransport       = errors.New("sandbox transport failure")
	ErrSandboxProtocol = errors.New("sandbox protocol failure")
	ErrSandboxReported = errors.New("sandbox reported error")
	ErrApplication     = errors.New("command exited non-zero")
	ErrOutputMissing   = errors.New("output missing")
	ErrUnexpected      = errors.New("unexpected worker failure")
)

// Markers used outside the worker, mostly by the submission path.
var (
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrForbidden     = errors.New("forbidden")
)

// Failure is a classified attempt outcome. Reason is the exact text persisted
// as the artifact's flow error.
type Failure struct {
	Marker error
	Reason string
	Err    error
}

// NewFailure builds a Failure. A nil marker is treated as ErrUnexpected.
func NewFailure(marker error, reason string, cause error) *Failure {
	if marker == nil {
		marker = ErrUnexpected
	}
	return &Failure{Marker: marker, Reason: reason, Err: cause}
}

func (f *Failure) Error() string {
	return f.Reason
}

func (f *Failure) Unwrap() []error {
	errs := []error{f.Marker}
	if f.Err != nil {
		errs = append(errs, f.Err)
	}
	return errs
}

// FailureReason returns the flow error text to persist for err.
func FailureReason(err error) string {
	if err == nil {
		return ""
	}
	var failure *Failure
	if errors.As(err, &failure) {
		return failure.Reason
	}
	return "UNEXPECTED: " + err.Error()
}

// FailureKind returns a short stable label for the failure class of err.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrSandboxProtocol):
		return "sandbox_protocol"
	case errors.Is(err, ErrSandboxReported):
		return "sandbox_error"
	case errors.Is(err, ErrApplication):
		return "application"
	case errors.Is(err, ErrOutputMissing):
		return "output_missing"
	default:
		return "unexpected"
	}
}

// IsExpectedFailure reports whether err is an anticipated external failure
// rather than a defect in the worker.
func IsExpectedFailure(err error) bool {
	return errors.Is(err, ErrTransport) ||
		errors.Is(err, ErrSandboxProtocol) ||
		errors.Is(err, ErrSandboxReported) ||
		errors.Is(err, ErrApplication) ||
		errors.Is(err, ErrOutputMissing)
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrUnexpected
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
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
