// Package errors provides standardized error handling for the notifications
// subsystem.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeUnknownChannel        ErrorCode = "UNKNOWN_CHANNEL"
	ErrCodeAmbiguousChannel      ErrorCode = "AMBIGUOUS_OR_UNKNOWN_CHANNEL"
	ErrCodeMissingMessage        ErrorCode = "MISSING_MESSAGE"
	ErrCodeMissingRedirectTarget ErrorCode = "MISSING_REDIRECT_TARGET"
	ErrCodeInvalidChannel        ErrorCode = "INVALID_CHANNEL_DEFINITION"
	ErrCodeDuplicateChannel      ErrorCode = "DUPLICATE_CHANNEL_DEFINITION"

	ErrCodeCounterUpsertFailed  ErrorCode = "COUNTER_UPSERT_FAILED"
	ErrCodeQueryExecutionFailed ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeInsertFailed         ErrorCode = "DATABASE_INSERT_FAILED"

	ErrCodePushSendFailed ErrorCode = "PUSH_SEND_FAILED"
)

// DomainError represents a structured application error.
type DomainError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Retryable bool      `json:"retryable"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("DomainError[%s]: %s", e.Code, e.Message)
}

// HasCode reports whether err is a DomainError carrying the given code.
func HasCode(err error, code ErrorCode) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// IsRetryable reports whether err is a DomainError marked retryable.
func IsRetryable(err error) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Retryable
	}
	return false
}

// NewUnknownChannelError creates a non-retryable error for an unregistered
// channel definition id.
func NewUnknownChannelError(channelID string) *DomainError {
	return &DomainError{
		Code:      ErrCodeUnknownChannel,
		Message:   "No notifications channel registered for this id",
		Details:   fmt.Sprintf("channelId: %s", channelID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewAmbiguousChannelError creates a non-retryable error for a computed
// channel id that does not resolve to exactly one definition.
func NewAmbiguousChannelError(computedID string) *DomainError {
	return &DomainError{
		Code:      ErrCodeAmbiguousChannel,
		Message:   "Could not find notifications channel matching this computed channel id",
		Details:   fmt.Sprintf("computedChannelId: %s", computedID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewMissingMessageError creates a non-retryable notification precondition error.
func NewMissingMessageError(channelID string) *DomainError {
	return &DomainError{
		Code:      ErrCodeMissingMessage,
		Message:   "Notification has no message and the channel provides no default",
		Details:   fmt.Sprintf("channelId: %s", channelID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewMissingRedirectTargetError creates a non-retryable notification
// precondition error.
func NewMissingRedirectTargetError(channelID string) *DomainError {
	return &DomainError{
		Code:      ErrCodeMissingRedirectTarget,
		Message:   "Notification resolves to an empty redirect target",
		Details:   fmt.Sprintf("channelId: %s", channelID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidChannelError creates a non-retryable channel registration error.
func NewInvalidChannelError(channelID, details string) *DomainError {
	return &DomainError{
		Code:      ErrCodeInvalidChannel,
		Message:   "Channel definition failed validation",
		Details:   fmt.Sprintf("channelId: %s, %s", channelID, details),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDuplicateChannelError creates a non-retryable channel registration error.
func NewDuplicateChannelError(channelID string) *DomainError {
	return &DomainError{
		Code:      ErrCodeDuplicateChannel,
		Message:   "Channel definition already registered",
		Details:   fmt.Sprintf("channelId: %s", channelID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCounterUpsertFailedError creates a stacking counter error. Transient
// conflicts are marked retryable so callers can re-drive the emit decision;
// permanent failures are not.
func NewCounterUpsertFailedError(err error, retryable bool) *DomainError {
	return &DomainError{
		Code:      ErrCodeCounterUpsertFailed,
		Message:   "Stacking counter upsert failed",
		Details:   err.Error(),
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

// NewQueryExecutionFailedError creates a retryable query execution error.
func NewQueryExecutionFailedError(operation string, err error) *DomainError {
	return &DomainError{
		Code:      ErrCodeQueryExecutionFailed,
		Message:   "Database query execution error",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewInsertFailedError creates a retryable database insert error.
func NewInsertFailedError(operation string, err error) *DomainError {
	return &DomainError{
		Code:      ErrCodeInsertFailed,
		Message:   "Database insert operation failed",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewPushSendFailedError creates a retryable push delivery error. Push
// failures are logged at the sending site and never propagated to the caller
// that created the notification.
func NewPushSendFailedError(err error) *DomainError {
	return &DomainError{
		Code:      ErrCodePushSendFailed,
		Message:   "Push notification delivery failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}
