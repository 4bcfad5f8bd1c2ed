package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the client. Transport and protocol failures never
// crash the process; they degrade to reconnection or to a nil request
// outcome at the call site.
var (
	ErrUnrecognizedFrame = fmt.Errorf("unrecognized frame")
	ErrRequestTimeout    = fmt.Errorf("request timed out")
	ErrConnectionClosed  = fmt.Errorf("connection closed")
	ErrTransport         = fmt.Errorf("transport failure")
	ErrNotConnected      = fmt.Errorf("not connected")
	ErrAuthFailed        = fmt.Errorf("gateway authentication failed")
	ErrConfigLoad        = fmt.Errorf("failed to load configuration")
	ErrInvalidConfig     = fmt.Errorf("invalid configuration")
)

// RemoteError is a server-reported request failure carried in a response
// frame's error field.
type RemoteError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
}

// ClientError wraps a sentinel error with operation context.
type ClientError struct {
	Op     string // operation name (e.g., "Session.Connect")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *ClientError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *ClientError) Unwrap() error { return e.Err }

// NewClientError creates a new ClientError.
func NewClientError(op string, err error, detail string) *ClientError {
	return &ClientError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRequestSettled reports whether err is one of the outcomes that settle
// a pending request without an answer (timeout or teardown).
func IsRequestSettled(err error) bool {
	return errors.Is(err, ErrRequestTimeout) || errors.Is(err, ErrConnectionClosed)
}
