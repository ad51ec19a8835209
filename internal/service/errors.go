package service

import (
	"github.com/pkg/errors"
	"github.com/yakoovad/cohort-engine/internal/db"
)

type ErrorCode string

const (
	ErrorCodeNotFound                   ErrorCode = "NOT_FOUND"
	ErrorCodeForbidden                  ErrorCode = "FORBIDDEN"
	ErrorCodeUnauthorized               ErrorCode = "UNAUTHORIZED"
	ErrorCodeAlreadyTeamed              ErrorCode = "ALREADY_TEAMED"
	ErrorCodeAlreadyMember              ErrorCode = "ALREADY_MEMBER"
	ErrorCodeNotMember                  ErrorCode = "NOT_MEMBER"
	ErrorCodeFull                       ErrorCode = "FULL"
	ErrorCodeDuplicateName              ErrorCode = "DUPLICATE_NAME"
	ErrorCodeAtCapacity                 ErrorCode = "AT_CAPACITY"
	ErrorCodeNotInTeam                  ErrorCode = "NOT_IN_TEAM"
	ErrorCodeSelfVote                   ErrorCode = "SELF_VOTE"
	ErrorCodeInvalidRating              ErrorCode = "INVALID_RATING"
	ErrorCodeInvalidComment             ErrorCode = "INVALID_COMMENT"
	ErrorCodeDuplicateVote              ErrorCode = "DUPLICATE_VOTE"
	ErrorCodeLeadershipTransferRequired ErrorCode = "LEADERSHIP_TRANSFER_REQUIRED"
	ErrorCodeInvalidTransferTarget      ErrorCode = "INVALID_TRANSFER_TARGET"
	ErrorCodeCannotRemoveLeader         ErrorCode = "CANNOT_REMOVE_LEADER"
	ErrorCodeContention                 ErrorCode = "CONTENTION"
	ErrorCodeTimeout                    ErrorCode = "TIMEOUT"
	ErrorCodeSourceReadFailure          ErrorCode = "SOURCE_READ_FAILURE"
	ErrorCodeInvalidBody                ErrorCode = "INVALID_BODY"
	ErrorCodeUnspecified                ErrorCode = "UNSPECIFIED"
)

type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`

	cause error
}

func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Retryable reports whether the caller may retry the same request with backoff.
func (e *Error) Retryable() bool {
	return e.Code == ErrorCodeContention || e.Code == ErrorCodeTimeout
}

// internalError wraps an infrastructure failure. Timeouts become TIMEOUT; the
// cause is kept so the transactor still recognises retryable conflicts.
func internalError(message string, err error) *Error {
	if db.IsTimeout(err) {
		return &Error{Code: ErrorCodeTimeout, Message: "operation timed out", cause: err}
	}
	return &Error{Code: ErrorCodeUnspecified, Message: message, cause: err}
}

// toServiceError converts whatever a transaction returned into exactly one
// categorical error. Nothing is dropped: unknown errors become UNSPECIFIED.
func toServiceError(err error) *Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, db.ErrContention) {
		return &Error{Code: ErrorCodeContention, Message: "too many concurrent updates, retry later", cause: err}
	}

	var res *Error
	if errors.As(err, &res) {
		return res
	}
	if db.IsTimeout(err) {
		return &Error{Code: ErrorCodeTimeout, Message: "operation timed out", cause: err}
	}
	return &Error{Code: ErrorCodeUnspecified, Message: "internal error", cause: err}
}
