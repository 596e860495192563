package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/aussiebroadwan/stepup/internal/auth/domain"
	"github.com/aussiebroadwan/stepup/internal/auth/store"
	"github.com/aussiebroadwan/stepup/pkg/cryptox"
	"github.com/aussiebroadwan/stepup/pkg/idx"
	"github.com/aussiebroadwan/stepup/pkg/slogx"
)

const maxUsernameLength = 255

// AuthService drives the login flow: password, session, TOTP, step-up.
// MFA operations take the user already resolved from the session.
type AuthService struct {
	Store    store.Store
	Sessions *SessionManager
	MFA      *MFAService
	StepUp   *StepUpIssuer
}

// LoginResult is a user with a freshly issued session.
type LoginResult struct {
	User    domain.User
	Token   string
	Session domain.Session
}

// AuthStatus describes the caller. It is always well formed.
type AuthStatus struct {
	Authenticated bool
	User          *domain.User
	State         domain.AuthState
}

// Register creates a user with a hashed password.
func (s *AuthService) Register(ctx context.Context, username, password string) (domain.User, error) {
	if err := validateCredentials(username, password); err != nil {
		return domain.User{}, err
	}

	hash, err := cryptox.HashPassword(password)
	if errors.Is(err, cryptox.ErrPasswordTooLong) {
		return domain.User{}, fmt.Errorf("%w: password too long", ErrInvalidRequest)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	user := domain.User{
		ID:           idx.NewAt(now).String(),
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	ctx, cancel := context.WithTimeout(ctx, s.Sessions.StoreTimeout)
	defer cancel()
	if err := s.Store.Users().CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, ErrUsernameTaken
		}
		return domain.User{}, fmt.Errorf("failed to create user: %w", err)
	}

	slogx.FromContext(ctx).Info("user registered", slog.String("user_id", user.ID))
	return user, nil
}

// Login checks the password and opens a session. previousToken, if set,
// is revoked so a browser never holds two live sessions.
func (s *AuthService) Login(ctx context.Context, username, password, previousToken string) (LoginResult, error) {
	if username == "" || password == "" {
		return LoginResult{}, ErrInvalidRequest
	}
	l := slogx.FromContext(ctx)

	user, err := readWithRetry(ctx, s.Sessions.StoreTimeout, func(ctx context.Context) (domain.User, error) {
		return s.Store.Users().GetUserByUsername(ctx, username)
	})
	if errors.Is(err, store.ErrNotFound) {
		// Burn the same time as a real comparison.
		_ = cryptox.VerifyPassword(password, dummyHash())
		l.Info("login failed", slog.String("reason", "unknown user"))
		return LoginResult{}, ErrUserNotFound
	}
	if err != nil {
		return LoginResult{}, fmt.Errorf("failed to load user: %w", err)
	}

	if err := cryptox.VerifyPassword(password, user.PasswordHash); err != nil {
		l.Info("login failed", slog.String("reason", "wrong password"), slog.String("user_id", user.ID))
		return LoginResult{}, ErrInvalidPassword
	}

	token, sess, err := s.Sessions.Rotate(ctx, previousToken, user)
	if err != nil {
		return LoginResult{}, err
	}

	l.Info("login succeeded", slog.String("user_id", user.ID), slog.Bool("mfa_enabled", user.MFAEnabled))
	return LoginResult{User: user, Token: token, Session: sess}, nil
}

// Status reports where the caller is in the flow. stepUpToken is optional
// and only counts when it belongs to the session's user.
func (s *AuthService) Status(ctx context.Context, sessionToken, stepUpToken string) AuthStatus {
	user, err := s.Sessions.Resolve(ctx, sessionToken)
	if err != nil {
		if errors.Is(err, ErrSessionIndeterminate) {
			slogx.FromContext(ctx).Warn("session lookup failed", slog.Any("error", err))
		}
		return AuthStatus{State: domain.StateAnonymous}
	}

	stepUp := false
	if stepUpToken != "" && s.StepUp != nil {
		claims, err := s.StepUp.Verify(stepUpToken)
		stepUp = err == nil && claims.Subject == user.ID
	}

	return AuthStatus{
		Authenticated: true,
		User:          &user,
		State:         domain.StateOf(&user, stepUp),
	}
}

// Logout ends the session named by token.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	return s.Sessions.Logout(ctx, token)
}

// EnrollMFA issues a fresh TOTP secret for user.
func (s *AuthService) EnrollMFA(ctx context.Context, user domain.User) (domain.MFAEnrollment, error) {
	enrollment, err := s.MFA.Enroll(ctx, user)
	if err != nil {
		return domain.MFAEnrollment{}, err
	}
	slogx.FromContext(ctx).Info("mfa enrolled", slog.String("user_id", user.ID), slog.String("activation", string(s.MFA.Activation)))
	return enrollment, nil
}

// VerifyMFA checks a TOTP code and, if it is valid, returns a step-up token.
func (s *AuthService) VerifyMFA(ctx context.Context, user domain.User, code string) (domain.StepUpToken, error) {
	ok, err := s.MFA.Verify(ctx, user, code)
	if err != nil {
		return domain.StepUpToken{}, err
	}
	if !ok {
		slogx.FromContext(ctx).Info("mfa verification failed", slog.String("user_id", user.ID))
		return domain.StepUpToken{}, ErrInvalidTOTPCode
	}

	tok, err := s.StepUp.Issue(user)
	if err != nil {
		return domain.StepUpToken{}, err
	}
	slogx.FromContext(ctx).Info("step-up token issued", slog.String("user_id", user.ID))
	return tok, nil
}

// ResetMFA removes the user's second factor.
func (s *AuthService) ResetMFA(ctx context.Context, user domain.User) error {
	if err := s.MFA.Reset(ctx, user); err != nil {
		return err
	}
	slogx.FromContext(ctx).Info("mfa reset", slog.String("user_id", user.ID))
	return nil
}

func validateCredentials(username, password string) error {
	switch {
	case strings.TrimSpace(username) == "":
		return fmt.Errorf("%w: username is required", ErrInvalidRequest)
	case password == "":
		return fmt.Errorf("%w: password is required", ErrInvalidRequest)
	case utf8.RuneCountInString(username) > maxUsernameLength:
		return fmt.Errorf("%w: username too long", ErrInvalidRequest)
	}
	return nil
}

// dummyHash is compared against when the username does not exist.
var dummyHash = sync.OnceValue(func() string {
	h, err := cryptox.HashPassword(cryptox.MustGenerateToken(cryptox.TokenSize128))
	if err != nil {
		return ""
	}
	return h
})
