package shared

import (
	"errors"
	"fmt"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Provider errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrTokenRefresh       = fmt.Errorf("token refresh failed")

	// Store errors
	ErrNotFound     = fmt.Errorf("not found")
	ErrConflict     = fmt.Errorf("unique constraint violated")
	ErrJobNotFound  = fmt.Errorf("job not found")
	ErrJobNotActive = fmt.Errorf("job is not processing")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// ProviderError is a non-2xx or undecodable response from an external provider.
//
// Handlers log and skip these so a single provider outage only degrades completeness.
type ProviderError struct {
	Provider string
	Endpoint string
	Status   int
	Body     string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s %s: %v", e.Provider, e.Endpoint, e.Err)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Provider, e.Endpoint, e.Status, truncate(e.Body, 200))
}

func (e *ProviderError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrAPIRequest
}

// NotFound reports whether the provider answered 404.
func (e *ProviderError) NotFound() bool { return e.Status == 404 }

// NotFoundError means an entity is absent from the store and every provider that could supply it.
type NotFoundError struct {
	EntityType string
	EntityID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.EntityType, e.EntityID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// PersistenceError wraps a failed store read or write.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("failed to %s: %v", e.Op, e.Err) }

func (e *PersistenceError) Unwrap() error { return e.Err }

// ValidationError rejects malformed task or job input before it runs.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// DependencyError signals that a job needs another entity synced first and should be retried later.
type DependencyError struct {
	EntityType string
	EntityID   string
	Needs      string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s %s waiting on %s", e.EntityType, e.EntityID, e.Needs)
}

// NewPersistenceError wraps err unless it is nil.
func NewPersistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

// IsPermanent reports whether err should fail a job without further retries.
func IsPermanent(err error) bool {
	var notFound *NotFoundError
	var invalid *ValidationError
	return errors.As(err, &notFound) || errors.As(err, &invalid)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
