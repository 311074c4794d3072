package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument indicates a rejected input value.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConflict indicates the record is not in a state that allows the operation.
	ErrConflict = errors.New("conflict")
	// ErrInsufficientBalance occurs when a credit debit exceeds the available balance.
	ErrInsufficientBalance = fmt.Errorf("insufficient credit balance: %w", ErrConflict)
	// ErrUnauthorized indicates a missing or invalid branch credential.
	ErrUnauthorized = errors.New("unauthorized")
)

// Stable error kinds exposed to API consumers.
const (
	KindNotFound            = "NotFound"
	KindInvalidArgument     = "InvalidArgument"
	KindConflict            = "Conflict"
	KindInsufficientBalance = "InsufficientBalance"
	KindUnauthorized        = "Unauthorized"
	KindInternal            = "Internal"
)

// KindOf classifies err into one of the stable kinds.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInsufficientBalance):
		return KindInsufficientBalance
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidArgument):
		return KindInvalidArgument
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	default:
		return KindInternal
	}
}

// Invalidf wraps ErrInvalidArgument with a formatted reason.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidArgument)
}

// Conflictf wraps ErrConflict with a formatted reason.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrConflict)
}
