package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every domain error unwraps to exactly one of them.
var (
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrDependency   = errors.New("dependency failure")
)

type Error struct {
	Kind    error
	Code    string
	Message string
}

func NewError(kind error, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// DependencyError marks err as a failure of an external collaborator.
// Domain errors pass through untouched so their kind survives.
func DependencyError(err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	return errors.Join(fmt.Errorf("dependency failure: %w", err), ErrDependency)
}

// Code returns the machine readable code of a domain error, or "" for anything else.
func Code(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
