package service

import (
	"errors"

	"github.com/DeafHustle/vrs-live-final/internal/models"
)

// Join errors
var (
	ErrUnknownRoom           = errors.New("unknown room")
	ErrAlreadyWaiting        = errors.New("participant already waiting")
	ErrAlreadyInSession      = errors.New("participant already in session")
	ErrNotAuthorizedProvider = errors.New("not authorized as provider")
	ErrInvalidJoin           = errors.New("invalid join request")
	ErrInvalidRole           = errors.New("invalid role")
	ErrRoleMismatch          = errors.New("connection already joined with a different role")
)

// Room catalog errors
var (
	ErrDuplicateRoom = errors.New("duplicate room id")
	ErrInvalidRoom   = errors.New("invalid room definition")
)

var ErrInvalidSplit = errors.New("invalid billing split")

// 에러 코드 (클라이언트에 전달되는 error 이벤트의 code)
const (
	CodeUnknownRoom           = "unknown_room"
	CodeAlreadyWaiting        = "already_waiting"
	CodeAlreadyInSession      = "already_in_session"
	CodeNotAuthorizedProvider = "not_authorized_provider"
	CodeRoleConflict          = "role_conflict"
	CodeInvalidRequest        = "invalid_request"
	CodeRateLimited           = "rate_limited"
	CodeInternal              = "internal_error"
)

// ErrorCode 에러를 클라이언트용 code 로 변환
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnknownRoom):
		return CodeUnknownRoom
	case errors.Is(err, ErrAlreadyWaiting):
		return CodeAlreadyWaiting
	case errors.Is(err, ErrAlreadyInSession):
		return CodeAlreadyInSession
	case errors.Is(err, ErrNotAuthorizedProvider):
		return CodeNotAuthorizedProvider
	case errors.Is(err, ErrRoleMismatch):
		return CodeRoleConflict
	case errors.Is(err, ErrInvalidJoin), errors.Is(err, ErrInvalidRole), errors.Is(err, models.ErrMissingField):
		return CodeInvalidRequest
	default:
		return CodeInternal
	}
}
