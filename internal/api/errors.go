package api

import (
	"errors"
	"fmt"
)

var (
	// ErrRequestFailed matches every non-2xx backend answer.
	ErrRequestFailed = errors.New("request failed")
	// ErrUnauthorized matches answers that require logging in again.
	ErrUnauthorized = errors.New("login required")
)

// RequestError describes a non-2xx response to one operation.
type RequestError struct {
	Op      Op
	Status  int
	Message string // backend-supplied message, when it sent one
}

func (e *RequestError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s request failed with status %d", e.Op, e.Status)
}

// Is makes every RequestError match ErrRequestFailed, and 401s also match
// ErrUnauthorized. A rejected login is bad credentials and does not.
func (e *RequestError) Is(target error) bool {
	switch target {
	case ErrRequestFailed:
		return true
	case ErrUnauthorized:
		return e.Status == 401 && e.Op != OpLogin
	}
	return false
}
