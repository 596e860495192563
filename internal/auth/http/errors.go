package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/stepup/internal/auth/service"
	"github.com/aussiebroadwan/stepup/pkg/authsdk"
	"github.com/aussiebroadwan/stepup/pkg/slogx"
)

// writeError maps a service error to its wire form. Anything unexpected is
// logged and reported as a bare 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := toAPIError(err)
	if apiErr == authsdk.ErrServerError {
		slogx.FromContext(r.Context()).Error("request failed", "err", err)
	}
	apiErr.WriteError(w)
}

func toAPIError(err error) *authsdk.APIError {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return authsdk.ErrInvalidCredentials
	case errors.Is(err, service.ErrUnauthenticated),
		errors.Is(err, service.ErrSessionIndeterminate):
		return authsdk.ErrUnauthenticated
	case errors.Is(err, service.ErrMFANotEnrolled):
		return authsdk.ErrMFANotEnrolled
	case errors.Is(err, service.ErrInvalidCode),
		errors.Is(err, service.ErrInvalidTOTPCode):
		return authsdk.ErrInvalidCode
	case errors.Is(err, service.ErrUsernameTaken):
		return authsdk.ErrUsernameTaken
	case errors.Is(err, service.ErrInvalidRequest):
		desc := strings.TrimPrefix(err.Error(), service.ErrInvalidRequest.Error()+": ")
		if desc == service.ErrInvalidRequest.Error() {
			return authsdk.ErrInvalidRequest
		}
		return authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, desc)
	default:
		return authsdk.ErrServerError
	}
}

// loginError keeps "user not found" and "invalid password" apart only when
// distinct is set.
func loginError(err error, distinct bool) *authsdk.APIError {
	if distinct {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			return authsdk.ErrUserNotFound
		case errors.Is(err, service.ErrInvalidPassword):
			return authsdk.ErrInvalidPassword
		}
	}
	return toAPIError(err)
}
