package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/stepup/internal/auth/service"
	"github.com/aussiebroadwan/stepup/pkg/authsdk"
	"github.com/aussiebroadwan/stepup/pkg/httpx"
)

// MFAHandler handles the 2FA endpoints. Every route sits behind
// SessionMiddleware.
type MFAHandler struct {
	Auth *service.AuthService
	Now  func() time.Time
}

// HandleSetup handles POST /api/auth/2fa/setup
//
//	@Summary		Enroll in TOTP
//	@Description	Generates a new TOTP secret for the logged-in user, replacing any previous one.
//	@Description	Returns the secret, an otpauth:// URI and a QR code as a PNG data URL.
//	@Tags			2FA
//	@Produce		json
//	@Success		200	{object}	authsdk.MFASetupResponse
//	@Failure		401	{object}	authsdk.ErrorResponse	"No active session"
//	@Failure		500	{object}	authsdk.ErrorResponse	"Internal server error"
//	@Router			/api/auth/2fa/setup [post].
func (h *MFAHandler) HandleSetup(w http.ResponseWriter, r *http.Request) {
	user, ok := sessionUser(r)
	if !ok {
		authsdk.ErrUnauthenticated.WriteError(w)
		return
	}

	enr, err := h.Auth.EnrollMFA(r.Context(), user)
	if err != nil {
		writeError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.MFASetupResponse{
		Secret:          enr.Secret,
		ProvisioningURI: enr.ProvisioningURI,
		QRCode:          enr.QRCode,
	})
}

// HandleVerify handles POST /api/auth/2fa/verify
//
//	@Summary		Verify a TOTP code
//	@Description	Checks a 6-digit code (one step of clock drift either way) and returns a one hour step-up token.
//	@Tags			2FA
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.MFAVerifyRequest	true	"TOTP code"
//	@Success		200		{object}	authsdk.MFAVerifyResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"Invalid 2FA token"
//	@Failure		401		{object}	authsdk.ErrorResponse	"No active session or 2FA not set up"
//	@Failure		500		{object}	authsdk.ErrorResponse	"Internal server error"
//	@Router			/api/auth/2fa/verify [post].
func (h *MFAHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	user, ok := sessionUser(r)
	if !ok {
		authsdk.ErrUnauthenticated.WriteError(w)
		return
	}

	var req authsdk.MFAVerifyRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	tok, err := h.Auth.VerifyMFA(r.Context(), user, req.Token)
	if err != nil {
		writeError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.MFAVerifyResponse{
		Message:   "2FA successful",
		Token:     tok.Token,
		ExpiresIn: tok.ExpiresIn(h.now()),
	})
}

// HandleReset handles POST /api/auth/2fa/reset
//
//	@Summary		Remove TOTP
//	@Description	Clears the TOTP secret and disables 2FA for the logged-in user.
//	@Tags			2FA
//	@Produce		json
//	@Success		200	{object}	authsdk.MessageResponse
//	@Failure		401	{object}	authsdk.ErrorResponse	"No active session"
//	@Failure		500	{object}	authsdk.ErrorResponse	"Internal server error"
//	@Router			/api/auth/2fa/reset [post].
func (h *MFAHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	user, ok := sessionUser(r)
	if !ok {
		authsdk.ErrUnauthenticated.WriteError(w)
		return
	}

	if err := h.Auth.ResetMFA(r.Context(), user); err != nil {
		writeError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{Message: "2FA reset successful"})
}

// HandleStepUp handles GET /api/auth/2fa/stepup
//
//	@Summary		Introspect a step-up token
//	@Description	Returns the claims of a valid step-up token. Resource servers can use this or verify the token themselves via the JWKS.
//	@Tags			2FA
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.StepUpClaimsResponse
//	@Failure		401	{object}	authsdk.ErrorResponse	"Missing, invalid or expired token"
//	@Router			/api/auth/2fa/stepup [get].
func (h *MFAHandler) HandleStepUp(w http.ResponseWriter, r *http.Request) {
	claims, ok := httpx.ClaimsFromContext(r.Context())
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	resp := authsdk.StepUpClaimsResponse{
		Active:   true,
		Subject:  claims.Subject,
		Username: claims.Username,
		Issuer:   claims.Issuer,
		JTI:      claims.ID,
		AMR:      claims.AMR,
	}
	if claims.IssuedAt != nil {
		resp.IssuedAt = claims.IssuedAt.Unix()
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Unix()
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *MFAHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}
