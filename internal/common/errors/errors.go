// Package errors provides the standardized error taxonomy of the notification pipeline.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Inbound log records
	ErrCodeDecodeFailed ErrorCode = "DECODE_FAILED"
	ErrCodeCommitFailed ErrorCode = "COMMIT_FAILED"

	// Storage
	ErrCodePersistenceFailed    ErrorCode = "PERSISTENCE_FAILED"
	ErrCodeNotificationNotFound ErrorCode = "NOTIFICATION_NOT_FOUND"
	ErrCodeInvalidTransition    ErrorCode = "INVALID_TRANSITION"

	// Delivery
	ErrCodeDeliveryFailed          ErrorCode = "DELIVERY_FAILED"
	ErrCodeDeliveryTimeout         ErrorCode = "DELIVERY_TIMEOUT"
	ErrCodeRecipientContactMissing ErrorCode = "RECIPIENT_CONTACT_MISSING"

	// Live fan-out
	ErrCodeBroadcastUnavailable ErrorCode = "BROADCAST_UNAVAILABLE"
)

// Sentinels for errors.Is checks. A StandardError matches the sentinel of its code.
var (
	ErrDecodeFailed            = errors.New(string(ErrCodeDecodeFailed))
	ErrCommitFailed            = errors.New(string(ErrCodeCommitFailed))
	ErrPersistenceFailed       = errors.New(string(ErrCodePersistenceFailed))
	ErrNotFound                = errors.New(string(ErrCodeNotificationNotFound))
	ErrInvalidTransition       = errors.New(string(ErrCodeInvalidTransition))
	ErrDeliveryFailed          = errors.New(string(ErrCodeDeliveryFailed))
	ErrDeliveryTimeout         = errors.New(string(ErrCodeDeliveryTimeout))
	ErrRecipientContactMissing = errors.New(string(ErrCodeRecipientContactMissing))
	ErrBroadcastUnavailable    = errors.New(string(ErrCodeBroadcastUnavailable))
)

var sentinels = map[ErrorCode]error{
	ErrCodeDecodeFailed:            ErrDecodeFailed,
	ErrCodeCommitFailed:            ErrCommitFailed,
	ErrCodePersistenceFailed:       ErrPersistenceFailed,
	ErrCodeNotificationNotFound:    ErrNotFound,
	ErrCodeInvalidTransition:       ErrInvalidTransition,
	ErrCodeDeliveryFailed:          ErrDeliveryFailed,
	ErrCodeDeliveryTimeout:         ErrDeliveryTimeout,
	ErrCodeRecipientContactMissing: ErrRecipientContactMissing,
	ErrCodeBroadcastUnavailable:    ErrBroadcastUnavailable,
}

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// Is matches the sentinel registered for the error's code.
func (e *StandardError) Is(target error) bool {
	if s, ok := sentinels[e.Code]; ok && s == target {
		return true
	}
	if t, ok := target.(*StandardError); ok {
		return t.Code == e.Code
	}
	return false
}

// WithMetadata attaches a key/value pair and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message string, cause error, retryable bool) *StandardError {
	se := &StandardError{
		Code:      code,
		Message:   message,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
	if cause != nil {
		se.Details = cause.Error()
	}
	return se
}

// ==========================
// 2. Error Constructors
// ==========================

// NewDecodeError creates a non-retryable error for a malformed log record.
func NewDecodeError(source, reason string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDecodeFailed,
		Message:   "Malformed booking event",
		Details:   reason,
		Retryable: false,
		Metadata:  map[string]interface{}{"source": source},
		Timestamp: time.Now().UTC(),
	}
}

// NewPersistenceError creates a retryable storage error.
func NewPersistenceError(operation string, err error) *StandardError {
	return newError(ErrCodePersistenceFailed, fmt.Sprintf("Notification store %s failed", operation), err, true).
		WithMetadata("operation", operation)
}

// NewNotFoundError creates a non-retryable lookup error.
func NewNotFoundError(id int64) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationNotFound,
		Message:   "Notification not found",
		Details:   fmt.Sprintf("id: %d", id),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidTransitionError reports a status change the lifecycle does not allow.
func NewInvalidTransitionError(from, to string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidTransition,
		Message:   "Invalid notification status transition",
		Details:   fmt.Sprintf("%s -> %s", from, to),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDeliveryError creates a retryable error for one failed channel attempt.
func NewDeliveryError(channel string, err error) *StandardError {
	return newError(ErrCodeDeliveryFailed, "Delivery attempt failed", err, true).
		WithMetadata("channel", channel)
}

// NewDeliveryTimeoutError creates a retryable error for a channel attempt that ran out of time.
func NewDeliveryTimeoutError(channel string, timeout time.Duration) *StandardError {
	return &StandardError{
		Code:      ErrCodeDeliveryTimeout,
		Message:   "Delivery attempt timed out",
		Details:   fmt.Sprintf("channel: %s, timeout: %s", channel, timeout),
		Retryable: true,
		Metadata:  map[string]interface{}{"channel": channel},
		Timestamp: time.Now().UTC(),
	}
}

// NewRecipientContactMissingError creates a non-retryable error when no address is on file.
func NewRecipientContactMissingError(channel string, recipientID int64) *StandardError {
	return &StandardError{
		Code:      ErrCodeRecipientContactMissing,
		Message:   "Recipient has no contact for channel",
		Details:   fmt.Sprintf("channel: %s, recipientId: %d", channel, recipientID),
		Retryable: false,
		Metadata:  map[string]interface{}{"channel": channel},
		Timestamp: time.Now().UTC(),
	}
}

// NewBroadcastUnavailableError is returned by a publish on a closed bus.
func NewBroadcastUnavailableError() *StandardError {
	return &StandardError{
		Code:      ErrCodeBroadcastUnavailable,
		Message:   "Broadcaster is closed",
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCommitError creates a retryable error for a failed log acknowledgment.
func NewCommitError(recordID string, err error) *StandardError {
	return newError(ErrCodeCommitFailed, "Log position commit failed", err, true).
		WithMetadata("recordId", recordID)
}

// ==========================
// 3. Utility Functions
// ==========================

// GetRetryCount returns the default retry budget for a code. The config loader
// uses it for the persistence and ack retry defaults.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodePersistenceFailed, ErrCodeCommitFailed:
		return 3
	case ErrCodeDeliveryFailed, ErrCodeDeliveryTimeout:
		return 1
	default:
		return 0
	}
}

// IsRetryable reports whether err carries a retryable StandardError.
func IsRetryable(err error) bool {
	var se *StandardError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// CodeOf extracts the ErrorCode of err, or "" when err is not a StandardError.
func CodeOf(err error) ErrorCode {
	var se *StandardError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "DECODE") || strings.HasPrefix(codeStr, "COMMIT"):
		return "INGEST"
	case strings.HasPrefix(codeStr, "PERSISTENCE") || strings.HasPrefix(codeStr, "NOTIFICATION") || strings.HasPrefix(codeStr, "INVALID"):
		return "STORAGE"
	case strings.HasPrefix(codeStr, "DELIVERY") || strings.HasPrefix(codeStr, "RECIPIENT"):
		return "DELIVERY"
	case strings.HasPrefix(codeStr, "BROADCAST"):
		return "BROADCAST"
	default:
		return "OTHER"
	}
}
