package http

import (
	"net/http"

	"github.com/aussiebroadwan/stepup/internal/auth/domain"
	"github.com/aussiebroadwan/stepup/internal/auth/service"
	"github.com/aussiebroadwan/stepup/pkg/authsdk"
	"github.com/aussiebroadwan/stepup/pkg/httpx"
	"github.com/aussiebroadwan/stepup/pkg/slogx"
)

// AuthHandler serves registration, login, status and logout.
type AuthHandler struct {
	Auth    *service.AuthService
	Cookies *SessionCodec

	// DistinctLoginErrors reports unknown users and wrong passwords
	// separately instead of one "invalid username or password".
	DistinctLoginErrors bool
}

// HandleRegister handles POST /api/auth/register
//
//	@Summary		Register a user
//	@Description	Creates a user with a bcrypt (or argon2id) password hash. Usernames are case-sensitive.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.CredentialsRequest	true	"Username and password"
//	@Success		201		{object}	authsdk.MessageResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"Malformed body or missing fields"
//	@Failure		409		{object}	authsdk.ErrorResponse	"Username taken"
//	@Failure		500		{object}	authsdk.ErrorResponse	"Internal server error"
//	@Router			/api/auth/register [post].
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req authsdk.CredentialsRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		slogx.FromContext(r.Context()).Debug("bad register body", "err", err)
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	if _, err := h.Auth.Register(r.Context(), req.Username, req.Password); err != nil {
		writeError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, authsdk.MessageResponse{Message: "User registered successfully"})
}

// HandleLogin handles POST /api/auth/login
//
//	@Summary		Log in with a password
//	@Description	Verifies the password and sets the session cookie. Any session already held by the browser is revoked.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.CredentialsRequest	true	"Username and password"
//	@Success		200		{object}	authsdk.LoginResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"Malformed body"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Invalid username or password"
//	@Failure		500		{object}	authsdk.ErrorResponse	"Internal server error"
//	@Router			/api/auth/login [post].
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.CredentialsRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	res, err := h.Auth.Login(r.Context(), req.Username, req.Password, h.Cookies.Token(r))
	if err != nil {
		apiErr := loginError(err, h.DistinctLoginErrors)
		if apiErr == authsdk.ErrServerError {
			slogx.FromContext(r.Context()).Error("login failed", "err", err)
		}
		apiErr.WriteError(w)
		return
	}

	if err := h.Cookies.Save(w, r, res.Token); err != nil {
		writeError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.LoginResponse{
		Message: "User logged in successfully",
		User:    userInfo(res.User),
	})
}

// HandleStatus handles GET /api/auth/status
//
//	@Summary		Authentication status
//	@Description	Reports whether the caller holds a session and where it is in the login flow.
//	@Description	A step-up token sent as a bearer token moves the state to mfa_satisfied. Never fails.
//	@Tags			Auth
//	@Produce		json
//	@Success		200	{object}	authsdk.StatusResponse
//	@Router			/api/auth/status [get].
func (h *AuthHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	bearer, _ := httpx.BearerToken(r)
	st := h.Auth.Status(r.Context(), h.Cookies.Token(r), bearer)

	resp := authsdk.StatusResponse{
		IsAuthenticated: st.Authenticated,
		State:           string(st.State),
	}
	if st.User != nil {
		info := userInfo(*st.User)
		resp.User = &info
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleLogout handles POST /api/auth/logout
//
//	@Summary		Log out
//	@Description	Deletes the server-side session and clears the cookie.
//	@Tags			Auth
//	@Produce		json
//	@Success		200	{object}	authsdk.MessageResponse
//	@Failure		401	{object}	authsdk.ErrorResponse	"No active session"
//	@Router			/api/auth/logout [post].
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	token := h.Cookies.Token(r)
	err := h.Auth.Logout(r.Context(), token)

	if token != "" {
		if cerr := h.Cookies.Clear(w, r); cerr != nil {
			slogx.FromContext(r.Context()).Warn("failed to clear session cookie", "err", cerr)
		}
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{Message: "Logout successful"})
}

func userInfo(u domain.User) authsdk.UserInfo {
	return authsdk.UserInfo{Username: u.Username, MFAEnabled: u.MFAEnabled}
}
