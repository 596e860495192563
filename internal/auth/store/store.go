package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/stepup/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (memory, sqlite,
// mysql) implement this. It exposes sub-repositories to keep concerns tidy
// and testable.
type Store interface {
	Users() Users
	Sessions() Sessions

	ApplyMigrations() error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the backing database is reachable.
	Ping(ctx context.Context) error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByUsername is used during password login. Matching is
	// case-sensitive.
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by app via ULID).
	// Returns ErrAlreadyExists when the username is taken.
	CreateUser(ctx context.Context, u domain.User) error

	// DeleteUser removes the user. SQL drivers cascade to sessions.
	DeleteUser(ctx context.Context, id string) error

	// UpdateMFA writes mfa_secret, mfa_enabled and mfa_pending_secret in a
	// single statement and bumps updated_at.
	UpdateMFA(ctx context.Context, userID string, state domain.MFAState) error

	// PromotePendingMFA makes the pending secret the active one, but only if
	// the pending secret still equals pending. Returns ErrNotFound otherwise.
	PromotePendingMFA(ctx context.Context, userID, pending string) error
}

type Sessions interface {
	// CreateSession stores a new session keyed by its token fingerprint.
	CreateSession(ctx context.Context, s domain.Session) error

	// GetSessionByTokenHash returns the session for a fingerprint. Expired
	// sessions may still be returned; callers check ExpiresAt.
	GetSessionByTokenHash(ctx context.Context, hash string) (domain.Session, error)

	// DeleteSession removes a session. Returns ErrNotFound if absent.
	DeleteSession(ctx context.Context, hash string) error

	// DeleteExpiredSessions is housekeeping; returns the number removed.
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)

	// Ping verifies the session backend is reachable.
	Ping(ctx context.Context) error
}

// WithSessions returns a Store whose sessions live in a separate backend,
// such as redis. Ping checks both; closer runs before the base Store closes.
func WithSessions(base Store, sessions Sessions, closer func() error) Store {
	return &splitStore{Store: base, sessions: sessions, closer: closer}
}

type splitStore struct {
	Store
	sessions Sessions
	closer   func() error
}

func (s *splitStore) Sessions() Sessions { return s.sessions }

func (s *splitStore) Ping(ctx context.Context) error {
	if err := s.Store.Ping(ctx); err != nil {
		return err
	}
	return s.sessions.Ping(ctx)
}

func (s *splitStore) Close() error {
	var errs []error
	if s.closer != nil {
		errs = append(errs, s.closer())
	}
	errs = append(errs, s.Store.Close())
	return errors.Join(errs...)
}
