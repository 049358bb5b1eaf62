package platform

import (
	"errors"
	"fmt"

	"github.com/liuran001/SongProxy-Go/proxy/upstream"
)

// Common platform errors that can be checked with errors.Is.
var (
	// ErrValidation is returned when a request is missing or has a malformed parameter.
	ErrValidation = errors.New("platform: invalid request")

	// ErrNotFound is returned when no source produced a result.
	ErrNotFound = errors.New("platform: resource not found")

	// ErrQuotaExhausted is returned when the primary resolver reports the
	// caller's allowance is used up. It never reaches the HTTP client.
	ErrQuotaExhausted = errors.New("platform: quota exhausted")

	// ErrUnsupported is returned for a source with no registered adapter.
	ErrUnsupported = errors.New("platform: source not supported")

	// ErrUpstream is returned when an upstream call failed for good.
	ErrUpstream = upstream.ErrUpstream
)

// PlatformError wraps an error with the source and resource that caused it.
type PlatformError struct {
	// Platform is the source name, e.g. "kuwo".
	Platform string

	// Resource is what was being accessed, e.g. "search", "descriptor", "parse".
	Resource string

	// ID is the keyword or external ID, when there is one.
	ID string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *PlatformError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s: %s %s: %v", e.Platform, e.Resource, e.ID, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Platform, e.Resource, e.Err)
}

// Unwrap implements error unwrapping for errors.Is and errors.As.
func (e *PlatformError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a PlatformError for a resource that was not found.
func NewNotFoundError(platform, resource, id string) error {
	return &PlatformError{Platform: platform, Resource: resource, ID: id, Err: ErrNotFound}
}

// NewQuotaError creates a PlatformError for an exhausted quota.
func NewQuotaError(platform, resource, detail string) error {
	return &PlatformError{
		Platform: platform,
		Resource: resource,
		Err:      fmt.Errorf("%w: %s", ErrQuotaExhausted, detail),
	}
}

// NewUnsupportedError creates a PlatformError for an unknown source.
func NewUnsupportedError(platform string) error {
	return &PlatformError{Platform: platform, Resource: "source", Err: ErrUnsupported}
}

// NewValidationError reports a missing required parameter.
func NewValidationError(param string) error {
	return &ValidationError{Param: param}
}

// NewInvalidParamError reports a parameter whose value cannot be used.
func NewInvalidParamError(param, value string) error {
	return &ValidationError{Param: param, Value: value, Invalid: true}
}

// ValidationError names the offending query parameter.
type ValidationError struct {
	Param   string
	Value   string
	Invalid bool
}

func (e *ValidationError) Error() string {
	if e.Invalid {
		return fmt.Sprintf("invalid parameter: %s=%q", e.Param, e.Value)
	}
	return "missing parameter: " + e.Param
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Wrap attaches platform context to err. A nil err stays nil.
func Wrap(platform, resource, id string, err error) error {
	if err == nil {
		return nil
	}
	return &PlatformError{Platform: platform, Resource: resource, ID: id, Err: err}
}
