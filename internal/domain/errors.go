package domain

import (
	"errors"
	"fmt"
)

type ErrCode string

const (
	CodeValidation   ErrCode = "validation_error"
	CodeNotFound     ErrCode = "not_found"
	CodeForbidden    ErrCode = "forbidden"
	CodeInvalidState ErrCode = "invalid_state"
)

// AppError is an error the caller can act on. Code selects the HTTP status;
// Message is safe to show to clients.
type AppError struct {
	Code    ErrCode
	Message string
	Meta    map[string]string
}

func (e *AppError) Error() string {
	if len(e.Meta) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Meta)
}

// Is matches any *AppError with the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// Code sentinels for errors.Is.
var (
	ErrCodeValidation = &AppError{Code: CodeValidation}
	ErrCodeNotFound   = &AppError{Code: CodeNotFound}
	ErrCodeForbidden  = &AppError{Code: CodeForbidden}
)

func ErrValidation(msg string) error { return &AppError{Code: CodeValidation, Message: msg} }
func ErrNotFound(msg string) error   { return &AppError{Code: CodeNotFound, Message: msg} }
func ErrForbidden(msg string) error  { return &AppError{Code: CodeForbidden, Message: msg} }

// CodeOf returns the code carried by err, or "" for errors that are not
// application errors.
func CodeOf(err error) ErrCode {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

func IsNotFound(err error) bool { return errors.Is(err, ErrCodeNotFound) }
