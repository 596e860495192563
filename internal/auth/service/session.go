package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/stepup/internal/auth/domain"
	"github.com/aussiebroadwan/stepup/internal/auth/store"
	"github.com/aussiebroadwan/stepup/pkg/cryptox"
	"github.com/aussiebroadwan/stepup/pkg/idx"
	"github.com/aussiebroadwan/stepup/pkg/slogx"
)

const (
	DefaultSessionTTL   = time.Hour
	DefaultStoreTimeout = 3 * time.Second
)

// SessionManager binds authenticated users to server-side sessions. The
// browser only ever holds the opaque token; the store keeps its fingerprint.
type SessionManager struct {
	Store        store.Store
	TTL          time.Duration
	StoreTimeout time.Duration
	Now          func() time.Time
}

func NewSessionManager(st store.Store, ttl, storeTimeout time.Duration) *SessionManager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if storeTimeout <= 0 {
		storeTimeout = DefaultStoreTimeout
	}
	return &SessionManager{Store: st, TTL: ttl, StoreTimeout: storeTimeout, Now: time.Now}
}

// Login creates a session for user and returns the raw token for the cookie.
func (m *SessionManager) Login(ctx context.Context, user domain.User) (string, domain.Session, error) {
	token, fingerprint, err := cryptox.NewSessionToken()
	if err != nil {
		return "", domain.Session{}, err
	}

	now := m.now()
	sess := domain.Session{
		ID:        idx.NewAt(now).String(),
		TokenHash: fingerprint,
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.TTL),
	}

	ctx, cancel := context.WithTimeout(ctx, m.StoreTimeout)
	defer cancel()
	if err := m.Store.Sessions().CreateSession(ctx, sess); err != nil {
		return "", domain.Session{}, fmt.Errorf("failed to create session: %w", err)
	}
	return token, sess, nil
}

// Rotate revokes oldToken, if it names a live session, then logs user in.
func (m *SessionManager) Rotate(ctx context.Context, oldToken string, user domain.User) (string, domain.Session, error) {
	if oldToken != "" {
		if err := m.Logout(ctx, oldToken); err != nil && !errors.Is(err, ErrUnauthenticated) {
			slogx.FromContext(ctx).Warn("failed to revoke previous session", slog.Any("error", err))
		}
	}
	return m.Login(ctx, user)
}

// Resolve maps a session token to the current user record. The user is
// re-read on every call so MFA changes and deletions apply immediately.
func (m *SessionManager) Resolve(ctx context.Context, token string) (domain.User, error) {
	if token == "" {
		return domain.User{}, ErrUnauthenticated
	}
	hash := cryptox.FingerprintToken(token)

	sess, err := readWithRetry(ctx, m.StoreTimeout, func(ctx context.Context) (domain.Session, error) {
		return m.Store.Sessions().GetSessionByTokenHash(ctx, hash)
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		return domain.User{}, ErrUnauthenticated
	case err != nil:
		return domain.User{}, fmt.Errorf("%w: %w", ErrSessionIndeterminate, err)
	}

	if sess.Expired(m.now()) {
		m.deleteQuietly(ctx, hash)
		return domain.User{}, ErrUnauthenticated
	}

	user, err := readWithRetry(ctx, m.StoreTimeout, func(ctx context.Context) (domain.User, error) {
		return m.Store.Users().GetUserByID(ctx, sess.UserID)
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		m.deleteQuietly(ctx, hash)
		return domain.User{}, ErrUnauthenticated
	case err != nil:
		return domain.User{}, fmt.Errorf("%w: %w", ErrSessionIndeterminate, err)
	}
	return user, nil
}

// Logout deletes the session named by token.
func (m *SessionManager) Logout(ctx context.Context, token string) error {
	if token == "" {
		return ErrUnauthenticated
	}

	ctx, cancel := context.WithTimeout(ctx, m.StoreTimeout)
	defer cancel()
	err := m.Store.Sessions().DeleteSession(ctx, cryptox.FingerprintToken(token))
	if errors.Is(err, store.ErrNotFound) {
		return ErrUnauthenticated
	}
	return err
}

func (m *SessionManager) deleteQuietly(ctx context.Context, hash string) {
	ctx, cancel := context.WithTimeout(ctx, m.StoreTimeout)
	defer cancel()
	if err := m.Store.Sessions().DeleteSession(ctx, hash); err != nil && !errors.Is(err, store.ErrNotFound) {
		slogx.FromContext(ctx).Debug("failed to delete stale session", slog.Any("error", err))
	}
}

func (m *SessionManager) now() time.Time {
	if m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}

// readWithRetry runs a store read under timeout and retries it once unless
// the result is definitive (found, not found, or the caller gave up).
func readWithRetry[T any](ctx context.Context, timeout time.Duration, read func(context.Context) (T, error)) (T, error) {
	attempt := func() (T, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return read(ctx)
	}

	v, err := attempt()
	if err == nil || errors.Is(err, store.ErrNotFound) || ctx.Err() != nil {
		return v, err
	}
	slogx.FromContext(ctx).Warn("store read failed, retrying", slog.Any("error", err))
	return attempt()
}
