// Package apierror maps service errors onto HTTP status codes and the
// messages clients see.
package apierror

import (
	"errors"
	"net/http"

	"github.com/zhouzirui/gemchat/backend/internal/common"
	"github.com/zhouzirui/gemchat/backend/internal/service/ai"
	"github.com/zhouzirui/gemchat/backend/internal/service/auth"
	"github.com/zhouzirui/gemchat/backend/internal/store"
)

// Resolve returns the status and client message for err.
func Resolve(err error) (int, string) {
	var validation *common.ValidationError
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, validation.Message
	case errors.Is(err, auth.ErrDuplicateEmail):
		return http.StatusBadRequest, auth.ErrDuplicateEmail.Error()
	case errors.Is(err, auth.ErrTokenMissing):
		return http.StatusUnauthorized, auth.ErrTokenMissing.Error()
	case errors.Is(err, auth.ErrTokenExpired):
		return http.StatusForbidden, auth.ErrTokenExpired.Error()
	case errors.Is(err, auth.ErrTokenInvalid):
		return http.StatusForbidden, auth.ErrTokenInvalid.Error()
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, auth.ErrInvalidCredentials.Error()
	case errors.Is(err, auth.ErrUserNotFound):
		return http.StatusNotFound, auth.ErrUserNotFound.Error()
	case errors.Is(err, store.ErrUnavailable):
		return http.StatusInternalServerError, store.ErrUnavailable.Error()
	case errors.Is(err, ai.ErrNotConfigured):
		return http.StatusInternalServerError, err.Error()
	case errors.Is(err, ai.ErrEmptyResponse):
		return http.StatusInternalServerError, ai.ErrEmptyResponse.Error()
	case errors.Is(err, ai.ErrUpstream):
		return http.StatusInternalServerError, ai.ErrUpstream.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
