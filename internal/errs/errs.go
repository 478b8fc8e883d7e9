package errs

import (
	"errors"
	"fmt"
	"time"
)

// ConfigurationError indicates invalid parameters. It is never retried.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// Configf builds a ConfigurationError for a field.
func Configf(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ConnectivityError wraps a transient failure talking to an external system.
// Callers retry with fixed backoff before propagating.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("connectivity error: %s: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// Connectivity wraps err as a ConnectivityError for the given operation.
func Connectivity(op string, err error) error {
	return &ConnectivityError{Op: op, Err: err}
}

// InsufficientBalanceError rejects a single action; the run continues.
type InsufficientBalanceError struct {
	Required  float64
	Available float64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: required %.2f, available %.2f", e.Required, e.Available)
}

// ErrEmergencyStopped is returned by operations attempted after an emergency
// stop. The run is terminal; a restart is required.
var ErrEmergencyStopped = errors.New("controller emergency stopped")

// ErrTimeout is surfaced when a time-bounded external call misses its deadline.
var ErrTimeout = errors.New("operation timed out")

// Retry runs fn up to attempts times with a fixed delay between tries.
// The last error is returned on exhaustion. Delay is fixed, not exponential.
func Retry(attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < attempts-1 {
			time.Sleep(delay)
		}
	}
	return err
}
