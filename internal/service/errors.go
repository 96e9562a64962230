package service

import (
	"errors"
	"fmt"

	"github.com/setlistvote/setlistvote/internal/repository"
)

// Code is a stable, client-facing failure code.
type Code string

const (
	CodeRateLimited    Code = "RATE_LIMITED"
	CodeQuotaExceeded  Code = "QUOTA_EXCEEDED"
	CodeConflict       Code = "CONFLICT"
	CodeNotFound       Code = "NOT_FOUND"
	CodeForbidden      Code = "FORBIDDEN"
	CodeInvalidRequest Code = "INVALID_REQUEST"
	CodeTransient      Code = "TRANSIENT_STORE_ERROR"
)

// Quota scopes reported with CodeQuotaExceeded.
const (
	ScopeDaily = "daily"
	ScopeShow  = "show"
)

// VoteError is returned by the voting core. Op, UserID and EntityID are
// carried for logging; Message is safe to show to clients.
type VoteError struct {
	Code       Code
	Message    string
	Op         string
	UserID     string
	EntityID   string
	Scope      string
	RetryAfter int
	Err        error
}

func (e *VoteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (user=%s entity=%s): %v", e.Op, e.Code, e.UserID, e.EntityID, e.Err)
	}
	return fmt.Sprintf("%s: %s (user=%s entity=%s): %s", e.Op, e.Code, e.UserID, e.EntityID, e.Message)
}

func (e *VoteError) Unwrap() error { return e.Err }

// CodeOf extracts the Code from err, or CodeTransient for anything that is
// not a VoteError.
func CodeOf(err error) Code {
	var ve *VoteError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return CodeTransient
}

// IsRetryable reports whether the caller may retry the same request.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case CodeRateLimited, CodeTransient:
		return true
	}
	return false
}

func transient(op, userID, entityID string, err error) *VoteError {
	return &VoteError{
		Code:     CodeTransient,
		Message:  "Temporary storage failure, please retry",
		Op:       op,
		UserID:   userID,
		EntityID: entityID,
		Err:      err,
	}
}

func readError(op, userID, entityID, notFoundMsg string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return &VoteError{Code: CodeNotFound, Message: notFoundMsg, Op: op, UserID: userID, EntityID: entityID, Err: err}
	}
	return transient(op, userID, entityID, err)
}
