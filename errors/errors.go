package errors

import "fmt"

var (
	ErrWorkerPanic        = fmt.Errorf("worker panic")
	ErrUserNotFound       = fmt.Errorf("user not found")
	ErrUserAlreadyExists  = fmt.Errorf("user already exists")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrInvalidPassword    = fmt.Errorf("password does not meet complexity requirements")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")
	ErrPersistence        = fmt.Errorf("message persistence failed")
	ErrNotRegistered      = fmt.Errorf("connection has no registered identity")
	ErrSenderMismatch     = fmt.Errorf("sender does not match registered identity")
)
