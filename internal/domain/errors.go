package domain

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrNotConnected      = errors.New("broker not connected")
	ErrSessionPoolClosed = errors.New("session pool is closed")
	ErrContainerRunning  = errors.New("listener container already started")
	ErrPoolSaturated     = errors.New("dispatch pool saturated")
	ErrPoolStopped       = errors.New("dispatch pool stopped")
	ErrDuplicateRoute    = errors.New("destination already has a handler")
)

// ConnectionError means the broker could not be reached at connect time.
type ConnectionError struct {
	URL      string // sanitized
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// SendError is returned by a publish that did not reach the broker.
type SendError struct {
	Destination Destination
	Err         error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to %s: %v", e.Destination, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// ReadError means a bulk batch source could not be read. Nothing was dispatched.
type ReadError struct {
	Source string
	Err    error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Source, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// HandlerError wraps a failure inside a listener handler. It is only ever logged.
type HandlerError struct {
	Destination Destination
	Err         error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler on %s: %v", e.Destination, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }
