package services_test

import (
	"errors"
	"strings"
	"testing"

	"codeflow/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrValidation, "submission", "validate", "bad name", base)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"submission", "validate", "bad name"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestFailureCarriesReasonAndMarker(t *testing.T) {
	cause := errors.New("connection refused")
	err := services.NewFailure(services.ErrTransport, "REQUEST: connection refused", cause)

	if err.Error() != "REQUEST: connection refused" {
		t.Fatalf("unexpected error text: %q", err.Error())
	}
	if !errors.Is(err, services.ErrTransport) || !errors.Is(err, cause) {
		t.Fatalf("expected marker and cause in chain: %v", err)
	}
	if got := services.FailureReason(err); got != "REQUEST: connection refused" {
		t.Fatalf("unexpected reason: %q", got)
	}
	if !services.IsExpectedFailure(err) {
		t.Fatal("transport failure should be expected")
	}
}

func TestFailureKindAndReasonForUnexpected(t *testing.T) {
	err := errors.New("nil pointer")
	if services.IsExpectedFailure(err) {
		t.Fatal("plain error must not be expected")
	}
	if got := services.FailureKind(err); got != "unexpected" {
		t.Fatalf("unexpected kind: %q", got)
	}
	if got := services.FailureReason(err); got != "UNEXPECTED: nil pointer" {
		t.Fatalf("unexpected reason: %q", got)
	}

	cases := map[error]string{
		services.ErrTransport:       "transport",
		services.ErrSandboxProtocol: "sandbox_protocol",
		services.ErrSandboxReported: "sandbox_error",
		services.ErrApplication:     "application",
		services.ErrOutputMissing:   "output_missing",
	}
	for marker, want := range cases {
		if got := services.FailureKind(services.NewFailure(marker, "x", nil)); got != want {
			t.Fatalf("FailureKind(%v) = %q, want %q", marker, got, want)
		}
	}
	if services.FailureKind(nil) != "" || services.FailureReason(nil) != "" {
		t.Fatal("nil error should yield empty kind and reason")
	}
}
