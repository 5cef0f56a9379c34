package service

import (
	"errors"
	"fmt"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrSessionNotFound      = errors.New("session not found")
	ErrProjectNotFound      = errors.New("project not found")
	ErrFileNotFound         = errors.New("file not found")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrRegistrationFailed   = errors.New("registration failed: username or email already exists")
	ErrAuthRejected         = errors.New("invalid authentication token")
	ErrValidation           = errors.New("invalid input")
	ErrForbidden            = errors.New("forbidden")
	ErrConflict             = errors.New("concurrent update conflict")
	ErrInternalServer       = errors.New("internal server error")
)

// SessionExistsError 表示项目已有活跃会话；携带现有会话 id
// 以便调用方改为加入该会话。
type SessionExistsError struct {
	SessionID string
}

func (e *SessionExistsError) Error() string {
	return fmt.Sprintf("project already has an active session (%s)", e.SessionID)
}
