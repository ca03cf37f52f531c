package apperrors

import (
	"errors"
	"fmt"
)

// ConfigurationError reports missing or malformed local configuration.
type ConfigurationError struct {
	Msg string
	Err error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Msg, e.Err)
	}
	return "configuration error: " + e.Msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// AuthError reports a credential the provider refused.
type AuthError struct {
	Msg string
	Err error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth error: %s: %v", e.Msg, e.Err)
	}
	return "auth error: " + e.Msg
}

func (e *AuthError) Unwrap() error { return e.Err }

// TransportError reports a failed upstream call.
// Status and Body are zero when no HTTP response was received.
type TransportError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s failed: HTTP %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Configuration creates a ConfigurationError.
func Configuration(msg string, err error) error {
	return &ConfigurationError{Msg: msg, Err: err}
}

// Auth creates an AuthError.
func Auth(msg string, err error) error {
	return &AuthError{Msg: msg, Err: err}
}

// Transport creates a TransportError without upstream response details.
func Transport(op string, err error) error {
	return &TransportError{Op: op, Err: err}
}

// IsConfiguration reports whether err is or wraps a ConfigurationError.
func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsAuth reports whether err is or wraps an AuthError.
func IsAuth(err error) bool {
	var target *AuthError
	return errors.As(err, &target)
}

// IsTransport reports whether err is or wraps a TransportError.
func IsTransport(err error) bool {
	var target *TransportError
	return errors.As(err, &target)
}
