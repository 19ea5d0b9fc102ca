package modguard

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorCategory classifies an error for retry and logging decisions.
type ErrorCategory string

const (
	ErrorCategoryNetwork    ErrorCategory = "network"
	ErrorCategoryRateLimit  ErrorCategory = "rate_limit"
	ErrorCategoryTimeout    ErrorCategory = "timeout"
	ErrorCategoryAuth       ErrorCategory = "auth"
	ErrorCategoryValidation ErrorCategory = "validation"
	ErrorCategoryProvider   ErrorCategory = "provider"
	ErrorCategoryStore      ErrorCategory = "store"
	ErrorCategoryInternal   ErrorCategory = "internal"
)

// Common errors
var (
	ErrStoreNotConfigured      = errors.New("modguard: store not configured")
	ErrNotFound                = errors.New("modguard: record not found")
	ErrDuplicate               = errors.New("modguard: duplicate record")
	ErrQueueItemNotFound       = errors.New("modguard: queue item not found")
	ErrQueueItemClosed         = errors.New("modguard: queue item already disposed")
	ErrQueueEmpty              = errors.New("modguard: no pending queue items")
	ErrInvalidOutcome          = errors.New("modguard: invalid disposition outcome")
	ErrInvalidAction           = errors.New("modguard: invalid sanction action")
	ErrInvalidTransition       = errors.New("modguard: invalid sanction transition")
	ErrSanctionerNotConfigured = errors.New("modguard: sanctioner not configured")
	ErrRateLimitStore          = errors.New("modguard: rate limit store unavailable")
	ErrEmptyText               = errors.New("modguard: empty text")
	ErrTimeout                 = errors.New("modguard: operation timeout")

	// Network errors
	ErrNetworkUnreachable = errors.New("modguard: network unreachable")
	ErrConnectionRefused  = errors.New("modguard: connection refused")
	ErrDNSResolution      = errors.New("modguard: DNS resolution failed")

	// Config errors
	ErrMissingConfig = errors.New("modguard: missing required configuration")
	ErrInvalidConfig = errors.New("modguard: invalid configuration")
)

// ProviderError is an error returned by an external validator.
type ProviderError struct {
	Provider   string        // function, aliyun, huawei or tencent
	Code       string        // Error code from provider
	Message    string        // Error message
	StatusCode int           // HTTP status code if applicable
	Category   ErrorCategory // Drives retry decisions
	Retryable  bool
	Err        error // Underlying error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("modguard: provider %s error [%d/%s]: %s", e.Provider, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("modguard: provider %s error [%s]: %s", e.Provider, e.Code, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a provider error in the provider category.
func NewProviderError(provider, code, message string) *ProviderError {
	return (&ProviderError{
		Provider: provider,
		Code:     code,
		Message:  message,
	}).WithCategory(ErrorCategoryProvider)
}

// WithStatusCode sets the HTTP status code and derives the category from it.
func (e *ProviderError) WithStatusCode(code int) *ProviderError {
	e.StatusCode = code
	return e.WithCategory(categoryForStatus(code))
}

// WithCategory sets the error category.
func (e *ProviderError) WithCategory(cat ErrorCategory) *ProviderError {
	e.Category = cat
	e.Retryable = retryableCategory(cat) || retryableStatus(e.StatusCode)
	return e
}

// WithCause sets the underlying error.
func (e *ProviderError) WithCause(err error) *ProviderError {
	e.Err = err
	return e
}

func retryableCategory(cat ErrorCategory) bool {
	return cat == ErrorCategoryNetwork || cat == ErrorCategoryRateLimit || cat == ErrorCategoryTimeout
}

func retryableStatus(code int) bool {
	return code == 429 || code == 500 || code == 502 || code == 503 || code == 504
}

func categoryForStatus(code int) ErrorCategory {
	switch {
	case code == 401 || code == 403:
		return ErrorCategoryAuth
	case code == 429:
		return ErrorCategoryRateLimit
	case code == 408 || code == 504:
		return ErrorCategoryTimeout
	case code >= 500:
		return ErrorCategoryInternal
	default:
		return ErrorCategoryProvider
	}
}

// ValidationError reports invalid input or configuration.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("modguard: validation error on %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// StoreError wraps a failed storage operation.
type StoreError struct {
	Operation string // create, update, query, ...
	Table     string
	Err       error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("modguard: store error during %s on %s: %v", e.Operation, e.Table, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new store error.
func NewStoreError(operation, table string, err error) *StoreError {
	return &StoreError{Operation: operation, Table: table, Err: err}
}

// IsProviderError checks if an error is a provider error.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// IsValidationError checks if an error is a validation error.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsStoreError checks if an error is a store error.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}

// IsNotFound checks if an error reports a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrQueueItemNotFound)
}

// IsRetryable reports whether retrying the failed call may succeed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return errors.Is(err, ErrTimeout) || IsNetworkError(err)
}

// networkMarkers are substrings of driver and dialer errors that do not
// implement net.Error.
var networkMarkers = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"network is unreachable",
	"i/o timeout",
	"connection timed out",
	"dial tcp",
	"dial udp",
}

// IsNetworkError checks if an error is a network-related error.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNetworkUnreachable) || errors.Is(err, ErrConnectionRefused) ||
		errors.Is(err, ErrDNSResolution) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range networkMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// GetErrorCategory returns the category of an error.
func GetErrorCategory(err error) ErrorCategory {
	var pe *ProviderError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &pe):
		return pe.Category
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ErrorCategoryTimeout
	case IsNetworkError(err):
		return ErrorCategoryNetwork
	case IsValidationError(err):
		return ErrorCategoryValidation
	case IsStoreError(err):
		return ErrorCategoryStore
	default:
		return ErrorCategoryInternal
	}
}

// networkSentinels maps error text to the sentinel WrapNetworkError adds.
var networkSentinels = []struct {
	markers  []string
	sentinel error
}{
	{[]string{"connection refused"}, ErrConnectionRefused},
	{[]string{"no such host", "dns"}, ErrDNSResolution},
	{[]string{"network is unreachable"}, ErrNetworkUnreachable},
	{[]string{"timeout", "timed out"}, ErrTimeout},
}

// WrapNetworkError wraps err with the matching network sentinel so callers
// can test it with errors.Is. Other errors are returned unchanged.
func WrapNetworkError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	for _, ns := range networkSentinels {
		for _, marker := range ns.markers {
			if strings.Contains(msg, marker) {
				return fmt.Errorf("%w: %w", ns.sentinel, err)
			}
		}
	}
	return err
}
