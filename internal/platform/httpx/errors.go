// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound           = errors.New("resource not found")
	ErrDuplicate          = errors.New("duplicate entry")
	ErrValidation         = errors.New("validation failed")
	ErrForbidden          = errors.New("forbidden")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrSessionExpired     error = sessionExpired{}
	ErrTooManyRequests    = errors.New("too many requests")
	ErrServiceUnavailable = errors.New("service unavailable")
)

// RetryMethoder is implemented by errors whose recovery is a request with a
// different method than the one that failed.
type RetryMethoder interface {
	RetryMethod() string
}

// An expired session is recovered by reloading the page.
type sessionExpired struct{}

func (sessionExpired) Error() string { return "session expired" }

func (sessionExpired) RetryMethod() string { return http.MethodGet }

// HTTPError is a routed abort: a handler deliberately stopping the request
// with an explicit status code.
type HTTPError struct {
	Status  int
	Message string
	Err     error
	File    string
	Line    int
}

// Abort builds an HTTPError recording the caller as the raise site.
func Abort(status int, message string) *HTTPError {
	e := &HTTPError{Status: status, Message: message}
	if _, file, line, ok := runtime.Caller(1); ok {
		e.File, e.Line = file, line
	}
	return e
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return http.StatusText(e.Status)
}

func (e *HTTPError) Unwrap() error { return e.Err }

// ResponseError carries a response that was fully formed before the failure
// surfaced. The pipeline writes it as-is.
type ResponseError struct {
	Status int
	Header http.Header
	Body   []byte
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("http response %d", e.Status)
}

// ValidationError lists field level validation failures.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return ErrValidation.Error() }

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Frame is a single stack location.
type Frame struct {
	Function string `json:"function,omitempty"`
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
}

// TracedError remembers where an error was raised.
type TracedError struct {
	Err   error
	File  string
	Line  int
	Stack []Frame
}

func (e *TracedError) Error() string { return e.Err.Error() }

func (e *TracedError) Unwrap() error { return e.Err }

// Trace wraps err with the caller location and a short stack. Already traced
// errors are returned untouched.
func Trace(err error) error {
	if err == nil {
		return nil
	}
	var traced *TracedError
	if errors.As(err, &traced) {
		return err
	}
	return traceSkip(err, 2)
}

// TraceSkip is Trace with an explicit number of frames to skip, used by
// panic recovery where the raise site sits deeper in the stack.
func TraceSkip(err error, skip int) error {
	if err == nil {
		return nil
	}
	return traceSkip(err, skip+1)
}

func traceSkip(err error, skip int) error {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(skip+1, pcs)
	return traceFrames(err, pcs[:n], false)
}

// TracePanic records where a recovered panic was raised. It must be called
// directly from the deferred function that recovered.
func TracePanic(err error) error {
	if err == nil {
		return nil
	}
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	return traceFrames(err, pcs[:n], true)
}

func traceFrames(err error, pcs []uintptr, skipRuntime bool) error {
	frames := runtime.CallersFrames(pcs)
	traced := &TracedError{Err: err}
	for {
		frame, more := frames.Next()
		if skipRuntime && len(traced.Stack) == 0 && strings.HasPrefix(frame.Function, "runtime.") {
			if !more {
				break
			}
			continue
		}
		if traced.File == "" {
			traced.File, traced.Line = frame.File, frame.Line
		}
		traced.Stack = append(traced.Stack, Frame{Function: frame.Function, File: frame.File, Line: frame.Line})
		if !more {
			break
		}
	}
	return traced
}

// Location reports the raise site recorded on err, if any.
func Location(err error) (file string, line int, ok bool) {
	var traced *TracedError
	if errors.As(err, &traced) && traced.File != "" {
		return traced.File, traced.Line, true
	}
	var abort *HTTPError
	if errors.As(err, &abort) && abort.File != "" {
		return abort.File, abort.Line, true
	}
	return "", 0, false
}

// StackOf returns the recorded stack for err, if any.
func StackOf(err error) []Frame {
	var traced *TracedError
	if errors.As(err, &traced) {
		return traced.Stack
	}
	return nil
}
