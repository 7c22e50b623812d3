package interfaces

import (
	"errors"
	"fmt"
)

// ConfigurationError means an endpoint or credential is missing. Surfaced as a server error.
type ConfigurationError struct {
	Component string
	Missing   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s not configured: %s", e.Component, e.Missing)
}

// UpstreamError means a remote embedding or generation call failed
type UpstreamError struct {
	Service    string
	StatusCode int // 0 when no response was received
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("%s failed %d: %s", e.Service, e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s failed: %d", e.Service, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s failed: %v", e.Service, e.Err)
	default:
		return e.Service + " failed"
	}
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// ValidationError means a request body was malformed. The request is not attempted.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ModerationRejection means user content matched a blocked term
type ModerationRejection struct {
	Reason string
}

func (e *ModerationRejection) Error() string {
	return "rejected: " + e.Reason
}

// NewValidationError formats a ValidationError
func NewValidationError(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// IsConfigurationError reports whether err wraps a ConfigurationError
func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsUpstreamError reports whether err wraps an UpstreamError
func IsUpstreamError(err error) bool {
	var target *UpstreamError
	return errors.As(err, &target)
}
