package models

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	KindValidation ErrorKind = iota
	KindNotFound
	KindConflict
	KindDependency
)

// Error carries a classification and a stable message key the API layer
// can localize. Internal detail goes into Err and is only ever logged.
type Error struct {
	Kind ErrorKind
	Key  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Key, e.Err)
	}
	return e.Key
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(key string) error { return &Error{Kind: KindValidation, Key: key} }

func NotFound(key string) error { return &Error{Kind: KindNotFound, Key: key} }

func Conflict(key string) error { return &Error{Kind: KindConflict, Key: key} }

func Dependency(err error) error {
	return &Error{Kind: KindDependency, Key: "serverError", Err: err}
}

// KindOf classifies err; anything that is not a *Error counts as a
// dependency failure so raw detail never reaches a caller.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindDependency
}

// KeyOf returns the stable message key for err, falling back to the
// generic server-error key.
func KeyOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Key
	}
	return "serverError"
}

func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }
