// Package kerrors defines the error taxonomy shared by the Kronos client, its
// transport and the record stream.
//
// There are three classes:
//
//   - TransportError: the request could not be completed (network failure or a
//     non-2xx status). Streaming reads retry these up to a ceiling.
//   - DecodeError: a response line or body was not valid JSON. Terminal for
//     the current stream attempt; streaming reads re-issue the request.
//   - ProtocolMisuseError: the caller used the API incorrectly (a second
//     consumer on a stream, a missing URL). Never retried.
package kerrors

import (
	"context"
	"errors"
	"fmt"
)

// TransportError reports a failed HTTP exchange.
type TransportError struct {
	Op     string // "POST /1.0/events/get"
	Status int    // 0 when no response was received
	Err    error
}

func (e *TransportError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("%s: bad status code %d: %v", e.Op, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%s: bad status code %d", e.Op, e.Status)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DecodeError reports a malformed JSON document or NDJSON line.
type DecodeError struct {
	Line   string
	Status int // HTTP status of the response carrying the bad document; 0 if unknown
	Err    error
}

func (e *DecodeError) Error() string {
	line := e.Line
	if len(line) > 64 {
		line = line[:64] + "..."
	}
	if line == "" && e.Status != 0 {
		return fmt.Sprintf("decode response (status %d): %v", e.Status, e.Err)
	}
	if line == "" {
		return fmt.Sprintf("decode response: %v", e.Err)
	}
	return fmt.Sprintf("decode line %q: %v", line, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ProtocolMisuseError reports a programming error by the caller.
type ProtocolMisuseError struct {
	Reason string
}

func (e *ProtocolMisuseError) Error() string {
	return "protocol misuse: " + e.Reason
}

// Misuse builds a ProtocolMisuseError.
func Misuse(format string, args ...any) error {
	return &ProtocolMisuseError{Reason: fmt.Sprintf(format, args...)}
}

// IsTransport reports whether err is, or wraps, a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsDecode reports whether err is, or wraps, a DecodeError.
func IsDecode(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// IsProtocolMisuse reports whether err is, or wraps, a ProtocolMisuseError.
func IsProtocolMisuse(err error) bool {
	var pe *ProtocolMisuseError
	return errors.As(err, &pe)
}

// StatusCode returns the HTTP status carried by a TransportError, or 0.
func StatusCode(err error) int {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Status
	}
	var de *DecodeError
	if errors.As(err, &de) {
		return de.Status
	}
	return 0
}

// Retryable reports whether a streaming read should be re-issued after err.
// Caller cancellation and misuse are final.
func Retryable(err error) bool {
	if err == nil || IsProtocolMisuse(err) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return IsTransport(err) || IsDecode(err)
}
