package httperr

import (
	"errors"
	"fmt"
)

type BadRequestError struct {
	msg string
}

func (e *BadRequestError) Error() string { return e.msg }

func NewBadRequest(msg string) error { return &BadRequestError{msg: msg} }

func BadRequestf(format string, args ...any) error {
	return &BadRequestError{msg: fmt.Sprintf(format, args...)}
}

func IsBadRequest(err error) bool {
	_, ok := errors.AsType[*BadRequestError](err)
	return ok
}

// Message returns the user-facing text of a bad-request error anywhere in
// err's chain, or "" when there is none.
func Message(err error) string {
	if e, ok := errors.AsType[*BadRequestError](err); ok {
		return e.msg
	}
	return ""
}
