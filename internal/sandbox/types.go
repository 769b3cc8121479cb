package sandbox

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// DefaultTimeout applies when a request carries no positive timeout.
const DefaultTimeout = 10 * time.Second

// Request is the body of POST /v1/run. Timeout is expressed in seconds.
type Request struct {
	Cmd     []string `json:"cmd"`
	Timeout float64  `json:"timeout"`
	Stdin   *string  `json:"stdin,omitempty"`
}

// maxTimeoutSeconds is the largest wire timeout a time.Duration can hold.
var maxTimeoutSeconds = time.Duration(math.MaxInt64).Seconds()

// TimeoutDuration converts the wire timeout to a duration, falling back to
// DefaultTimeout when unset or non-positive. Values beyond the range of
// time.Duration saturate instead of wrapping.
func (r Request) TimeoutDuration() time.Duration {
	if r.Timeout <= 0 {
		return DefaultTimeout
	}
	if r.Timeout >= maxTimeoutSeconds {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(r.Timeout * float64(time.Second))
}

// Output is the captured result of a process that ran to completion.
type Output struct {
	ReturnCode int    `json:"returncode"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
}

// Response is the tagged result returned by the sandbox. Exactly one of OK
// and Error is populated.
type Response struct {
	OK    *Output `json:"ok"`
	Error *string `json:"error"`
}

// Validate reports whether exactly one branch of the response is populated.
func (r Response) Validate() error {
	switch {
	case r.OK != nil && r.Error != nil:
		return errors.New("response populates both ok and error")
	case r.OK == nil && r.Error == nil:
		return errors.New("response populates neither ok nor error")
	}
	return nil
}

// OKResponse wraps out as a success response.
func OKResponse(out Output) Response {
	return Response{OK: &out}
}

// ErrorResponse wraps msg as an error response.
func ErrorResponse(msg string) Response {
	return Response{Error: &msg}
}

// TimeoutError reports that the process exceeded its timeout and was killed.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command timed out after %s", e.Timeout)
}

// SpawnError reports that the process could not be started.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	if e.Command == "" {
		return fmt.Sprintf("spawn failed: %v", e.Err)
	}
	return fmt.Sprintf("spawn %s: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }
