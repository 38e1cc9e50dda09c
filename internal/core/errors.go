package core

import (
	"errors"
	"fmt"

	"github.com/vovakirdan/huddle-server/internal/store"
)

// Error codes for domain errors. They are stable and part of the wire contract.
const (
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeInvalidOperation = "invalid_operation"
	ErrCodeRoomFull         = "room_full"
	ErrCodeDeliveryFailure  = "transient_delivery_failure"
	ErrCodeBadRequest       = "bad_request"
)

// Sentinels for errors.Is; any CoreError with the same code matches.
var (
	ErrUnauthorized     = &CoreError{Code: ErrCodeUnauthorized, Message: "unauthorized"}
	ErrForbidden        = &CoreError{Code: ErrCodeForbidden, Message: "forbidden"}
	ErrNotFound         = &CoreError{Code: ErrCodeNotFound, Message: "not found"}
	ErrInvalidOperation = &CoreError{Code: ErrCodeInvalidOperation, Message: "invalid operation"}
	ErrRoomFull         = &CoreError{Code: ErrCodeRoomFull, Message: "room is full"}
	ErrDeliveryFailure  = &CoreError{Code: ErrCodeDeliveryFailure, Message: "delivery failed"}
	ErrBadRequest       = &CoreError{Code: ErrCodeBadRequest, Message: "bad request"}
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

// Is matches any CoreError carrying the same code.
func (e *CoreError) Is(target error) bool {
	t, ok := target.(*CoreError)
	return ok && t.Code == e.Code
}

// NewError builds a CoreError with a formatted message.
func NewError(code, format string, args ...any) *CoreError {
	return &CoreError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// AsCoreError extracts a CoreError from err, if any.
func AsCoreError(err error) (*CoreError, bool) {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// FromStoreError maps store sentinels onto the domain taxonomy.
// Unknown errors are returned unchanged so callers can treat them as internal.
func FromStoreError(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return coreError(ErrCodeNotFound, what+" not found")
	case errors.Is(err, store.ErrRoomFull):
		return coreError(ErrCodeRoomFull, "room is full")
	case errors.Is(err, store.ErrConflict):
		return coreError(ErrCodeInvalidOperation, what+" already exists")
	}
	return err
}
