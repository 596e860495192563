// Package memory is an in-process store.Store for tests and single-node
// development. Every mutation of a user runs under one lock, so readers never
// observe a half-written MFA state.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aussiebroadwan/stepup/internal/auth/domain"
	"github.com/aussiebroadwan/stepup/internal/auth/store"
)

type Store struct {
	mu       sync.RWMutex
	users    map[string]domain.User    // by id
	byName   map[string]string         // username -> id
	sessions map[string]domain.Session // by token hash
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{
		users:    make(map[string]domain.User),
		byName:   make(map[string]string),
		sessions: make(map[string]domain.Session),
		now:      time.Now,
	}
}

func (s *Store) Users() store.Users       { return (*usersRepo)(s) }
func (s *Store) Sessions() store.Sessions { return (*sessionsRepo)(s) }

func (s *Store) ApplyMigrations() error         { return nil }
func (s *Store) Close() error                   { return nil }
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

type usersRepo Store

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return domain.User{}, store.ErrNotFound
	}
	return cloneUser(u), nil
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[username]
	if !ok {
		return domain.User{}, store.ErrNotFound
	}
	return cloneUser(r.users[id]), nil
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[u.Username]; ok {
		return store.ErrAlreadyExists
	}
	if _, ok := r.users[u.ID]; ok {
		return store.ErrAlreadyExists
	}
	u = cloneUser(u)
	u.MFAEnabled = u.MFASecret != nil
	r.users[u.ID] = u
	r.byName[u.Username] = u.ID
	return nil
}

func (r *usersRepo) DeleteUser(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return store.ErrNotFound
	}
	delete(r.users, id)
	delete(r.byName, u.Username)
	for hash, sess := range r.sessions {
		if sess.UserID == id {
			delete(r.sessions, hash)
		}
	}
	return nil
}

func (r *usersRepo) UpdateMFA(ctx context.Context, userID string, state domain.MFAState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	u.MFASecret = cloneString(state.Secret)
	u.MFAEnabled = state.Enabled()
	u.MFAPendingSecret = cloneString(state.Pending)
	u.UpdatedAt = r.now()
	r.users[userID] = u
	return nil
}

func (r *usersRepo) PromotePendingMFA(ctx context.Context, userID, pending string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok || u.MFAPendingSecret == nil || *u.MFAPendingSecret != pending {
		return store.ErrNotFound
	}
	u.MFASecret = &pending
	u.MFAEnabled = true
	u.MFAPendingSecret = nil
	u.UpdatedAt = r.now()
	r.users[userID] = u
	return nil
}

type sessionsRepo Store

func (r *sessionsRepo) CreateSession(ctx context.Context, sess domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sess.TokenHash]; ok {
		return store.ErrAlreadyExists
	}
	r.sessions[sess.TokenHash] = sess
	return nil
}

func (r *sessionsRepo) GetSessionByTokenHash(ctx context.Context, hash string) (domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[hash]
	if !ok {
		return domain.Session{}, store.ErrNotFound
	}
	return sess, nil
}

func (r *sessionsRepo) DeleteSession(ctx context.Context, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[hash]; !ok {
		return store.ErrNotFound
	}
	delete(r.sessions, hash)
	return nil
}

func (r *sessionsRepo) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for hash, sess := range r.sessions {
		if sess.Expired(now) {
			delete(r.sessions, hash)
			n++
		}
	}
	return n, nil
}

func (r *sessionsRepo) Ping(ctx context.Context) error { return ctx.Err() }

func cloneUser(u domain.User) domain.User {
	u.MFASecret = cloneString(u.MFASecret)
	u.MFAPendingSecret = cloneString(u.MFAPendingSecret)
	return u
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
