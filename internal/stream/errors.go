package stream

import (
	"errors"
	"fmt"
)

// ErrIdleTimeout is returned by Subscription.Next when no data arrived within
// the idle window. The subscription remains usable.
var ErrIdleTimeout = errors.New("stream idle timeout")

// Rate-limit status codes. 420 is the legacy streaming "enhance your calm".
const (
	StatusEnhanceYourCalm = 420
	StatusTooManyRequests = 429
)

// StatusError is a non-success status reported by the transport.
type StatusError struct {
	Code   int
	Reason string
}

func (e *StatusError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("stream status %d: %s", e.Code, e.Reason)
	}
	return fmt.Sprintf("stream status %d", e.Code)
}

// RateLimited reports whether the status asks the client to back off.
func (e *StatusError) RateLimited() bool {
	return e.Code == StatusEnhanceYourCalm || e.Code == StatusTooManyRequests
}

// ConnectionKind distinguishes low-level connection failures.
type ConnectionKind string

const (
	ConnectionProtocol    ConnectionKind = "protocol"
	ConnectionReadTimeout ConnectionKind = "read_timeout"
)

// ConnectionError is a failure of the underlying connection while streaming.
type ConnectionError struct {
	Kind ConnectionKind
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("stream connection %s error: %v", e.Kind, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// DecodeError wraps a payload that is not a JSON object.
type DecodeError struct {
	Preview []byte
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode payload (first bytes: %q): %v", e.Preview, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// MissingFieldError reports an expected key absent from an event.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing field %q", e.Field)
}

// FieldTypeError reports a field holding an unexpected type.
type FieldTypeError struct {
	Field string
	Want  string
	Got   any
}

func (e *FieldTypeError) Error() string {
	return fmt.Sprintf("field %q: want %s, got %T", e.Field, e.Want, e.Got)
}
