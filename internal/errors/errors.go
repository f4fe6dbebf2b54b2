// Package errors provides structured error handling for scanweave operations.
// It defines error codes, error types, and the transient-vs-fatal
// classification that drives the orchestrator's retry decisions.
package errors

import (
	"fmt"
)

// ErrorCode represents different types of errors that can occur.
type ErrorCode string

const (
	// General errors.
	CodeUnknown       ErrorCode = "UNKNOWN"
	CodeValidation    ErrorCode = "VALIDATION"
	CodeConfiguration ErrorCode = "CONFIGURATION"
	CodeTimeout       ErrorCode = "TIMEOUT"
	CodeCanceled      ErrorCode = "CANCELED"
	CodePermission    ErrorCode = "PERMISSION"

	// Target and scanning errors.
	CodeTargetInvalid      ErrorCode = "TARGET_INVALID"
	CodeNetworkUnreachable ErrorCode = "NETWORK_UNREACHABLE"
	CodeHostUnreachable    ErrorCode = "HOST_UNREACHABLE"
	CodeResourceBusy       ErrorCode = "RESOURCE_BUSY"
	CodeInvocation         ErrorCode = "INVOCATION"
	CodeScanFailed         ErrorCode = "SCAN_FAILED"
	CodeRetriesExhausted   ErrorCode = "RETRIES_EXHAUSTED"
	CodeParse              ErrorCode = "PARSE"

	// Store errors.
	CodeStoreConnection ErrorCode = "STORE_CONNECTION"
	CodeStoreQuery      ErrorCode = "STORE_QUERY"
)

// ScanError represents an error that occurred during scanning operations.
type ScanError struct {
	Code    ErrorCode
	Message string
	Target  string
	Cause   error
}

// Error implements the error interface.
func (e *ScanError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("[%s] %s (target: %s)", e.Code, e.Message, e.Target)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ScanError) Unwrap() error {
	return e.Cause
}

// NewScanError creates a new scan error with the specified code and message.
func NewScanError(code ErrorCode, message string) *ScanError {
	return &ScanError{Code: code, Message: message}
}

// NewScanErrorWithTarget creates a scan error for a specific target.
func NewScanErrorWithTarget(code ErrorCode, message, target string) *ScanError {
	return &ScanError{Code: code, Message: message, Target: target}
}

// WrapScanError wraps an existing error as a scan error.
func WrapScanError(code ErrorCode, message string, err error) *ScanError {
	return &ScanError{Code: code, Message: message, Cause: err}
}

// WrapScanErrorWithTarget wraps an error with target information.
func WrapScanErrorWithTarget(code ErrorCode, message, target string, err error) *ScanError {
	return &ScanError{Code: code, Message: message, Target: target, Cause: err}
}

// ParseError represents a failure to recognize the scan engine's output.
// A parse error discards the result of one job; it never aborts the run.
type ParseError struct {
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("[%s] %s", CodeParse, e.Message)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// NewParseError creates a new parse error.
func NewParseError(message string, err error) *ParseError {
	return &ParseError{Message: message, Cause: err}
}

// StoreError represents result-store errors.
type StoreError struct {
	Code      ErrorCode
	Message   string
	Operation string
	Cause     error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("[%s] %s (operation: %s)", e.Code, e.Message, e.Operation)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error {
	return e.Cause
}

// WrapStoreError wraps an existing error as a store error.
func WrapStoreError(code ErrorCode, message, operation string, err error) *StoreError {
	return &StoreError{Code: code, Message: message, Operation: operation, Cause: err}
}

// ConfigError represents configuration-related errors.
type ConfigError struct {
	Code    ErrorCode
	Message string
	Field   string
	Value   interface{}
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// NewConfigFieldError creates a configuration error for a specific field.
func NewConfigFieldError(code ErrorCode, message, field string, value interface{}) *ConfigError {
	return &ConfigError{Code: code, Message: message, Field: field, Value: value}
}

// WrapConfigError wraps an existing error as a configuration error.
func WrapConfigError(code ErrorCode, message string, err error) *ConfigError {
	return &ConfigError{Code: code, Message: message, Cause: err}
}

// GetCode extracts the error code from an error if it has one.
func GetCode(err error) ErrorCode {
	switch e := err.(type) {
	case *ScanError:
		return e.Code
	case *StoreError:
		return e.Code
	case *ConfigError:
		return e.Code
	case *ParseError:
		return CodeParse
	}
	return CodeUnknown
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// IsRetryable determines if an error indicates a transient condition the
// orchestrator should retry with backoff.
func IsRetryable(err error) bool {
	switch GetCode(err) {
	case CodeTimeout, CodeHostUnreachable, CodeNetworkUnreachable, CodeResourceBusy:
		return true
	default:
		return false
	}
}

// IsFatal determines if an error indicates a condition retrying cannot fix.
func IsFatal(err error) bool {
	switch GetCode(err) {
	case CodePermission, CodeInvocation, CodeConfiguration, CodeTargetInvalid:
		return true
	default:
		return false
	}
}

// ErrInvalidTarget creates an error for invalid scan targets.
func ErrInvalidTarget(target string) *ScanError {
	return NewScanErrorWithTarget(CodeTargetInvalid, "invalid target specification", target)
}

// ErrScanTimeout creates an error for scan timeouts.
func ErrScanTimeout(target string) *ScanError {
	return NewScanErrorWithTarget(CodeTimeout, "scan operation timed out", target)
}

// ErrHostUnreachable creates an error for unreachable hosts.
func ErrHostUnreachable(target string) *ScanError {
	return NewScanErrorWithTarget(CodeHostUnreachable, "host is unreachable", target)
}

// ErrRetriesExhausted creates the terminal error for a job whose transient
// failures used up the retry budget.
func ErrRetriesExhausted(target string, attempts int, last error) *ScanError {
	return &ScanError{
		Code:    CodeRetriesExhausted,
		Message: fmt.Sprintf("gave up after %d attempts", attempts),
		Target:  target,
		Cause:   last,
	}
}
