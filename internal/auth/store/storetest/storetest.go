// Package storetest is a conformance suite run by every store driver.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/stepup/internal/auth/domain"
	"github.com/aussiebroadwan/stepup/internal/auth/store"
	"github.com/aussiebroadwan/stepup/pkg/idx"
	"github.com/stretchr/testify/require"
)

// Run exercises a complete store. open must return a migrated, empty store.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	t.Run("CreateAndGetUser", func(t *testing.T) { testCreateAndGetUser(t, open(t)) })
	t.Run("DuplicateUsername", func(t *testing.T) { testDuplicateUsername(t, open(t)) })
	t.Run("UsernameCaseSensitive", func(t *testing.T) { testUsernameCaseSensitive(t, open(t)) })
	t.Run("UpdateMFA", func(t *testing.T) { testUpdateMFA(t, open(t)) })
	t.Run("PromotePendingMFA", func(t *testing.T) { testPromotePendingMFA(t, open(t)) })
	t.Run("DeleteUserCascadesSessions", func(t *testing.T) { testDeleteUserCascades(t, open(t)) })
	t.Run("DeleteExpiredSessions", func(t *testing.T) { testDeleteExpiredSessions(t, open(t)) })
	t.Run("ConcurrentMFAInvariant", func(t *testing.T) { testConcurrentMFAInvariant(t, open(t)) })
	t.Run("Sessions", func(t *testing.T) {
		st := open(t)
		u := NewUser(t, st, "session-owner")
		RunSessions(t, st.Sessions(), u.ID)
	})
}

// RunSessions exercises a session backend. userID must reference an
// existing user when the backend enforces foreign keys.
func RunSessions(t *testing.T, sessions store.Sessions, userID string) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	sess := domain.Session{
		ID:        idx.New().String(),
		TokenHash: "hash-" + idx.New().String(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, sessions.CreateSession(ctx, sess))
	require.ErrorIs(t, sessions.CreateSession(ctx, sess), store.ErrAlreadyExists)

	got, err := sessions.GetSessionByTokenHash(ctx, sess.TokenHash)
	require.NoError(t, err)
	require.Equal(t, sess.ID, got.ID)
	require.Equal(t, userID, got.UserID)
	require.True(t, sess.ExpiresAt.Equal(got.ExpiresAt), "expires_at %v != %v", sess.ExpiresAt, got.ExpiresAt)
	require.True(t, sess.CreatedAt.Equal(got.CreatedAt))

	_, err = sessions.GetSessionByTokenHash(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, sessions.DeleteSession(ctx, sess.TokenHash))
	require.ErrorIs(t, sessions.DeleteSession(ctx, sess.TokenHash), store.ErrNotFound)

	_, err = sessions.GetSessionByTokenHash(ctx, sess.TokenHash)
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, sessions.Ping(ctx))
}

// NewUser inserts a user with a dummy password hash.
func NewUser(t *testing.T, st store.Store, username string) domain.User {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Millisecond)
	u := domain.User{
		ID:           idx.New().String(),
		Username:     username,
		PasswordHash: "$2a$10$placeholderplaceholderplaceholderplaceholderplacehol",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, st.Users().CreateUser(context.Background(), u))
	return u
}

func testCreateAndGetUser(t *testing.T, st store.Store) {
	ctx := context.Background()
	u := NewUser(t, st, "alice")

	byID, err := st.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "alice", byID.Username)
	require.Equal(t, u.PasswordHash, byID.PasswordHash)
	require.False(t, byID.MFAEnabled)
	require.Nil(t, byID.MFASecret)
	require.Nil(t, byID.MFAPendingSecret)
	require.True(t, u.CreatedAt.Equal(byID.CreatedAt))

	byName, err := st.Users().GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, u.ID, byName.ID)

	_, err = st.Users().GetUserByID(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.Users().GetUserByUsername(ctx, "bob")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, st.Ping(ctx))
}

func testDuplicateUsername(t *testing.T, st store.Store) {
	NewUser(t, st, "alice")

	dup := domain.User{ID: idx.New().String(), Username: "alice", PasswordHash: "x", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	require.ErrorIs(t, st.Users().CreateUser(context.Background(), dup), store.ErrAlreadyExists)
}

func testUsernameCaseSensitive(t *testing.T, st store.Store) {
	ctx := context.Background()
	NewUser(t, st, "alice")
	NewUser(t, st, "Alice")

	_, err := st.Users().GetUserByUsername(ctx, "ALICE")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testUpdateMFA(t *testing.T, st store.Store) {
	ctx := context.Background()
	u := NewUser(t, st, "alice")
	users := st.Users()

	require.NoError(t, users.UpdateMFA(ctx, u.ID, domain.MFAActive("SECRETA")))
	got, err := users.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, got.MFAEnabled)
	require.Equal(t, "SECRETA", *got.MFASecret)
	require.Nil(t, got.MFAPendingSecret)

	require.NoError(t, users.UpdateMFA(ctx, u.ID, domain.MFAPending("SECRETB")))
	got, err = users.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.False(t, got.MFAEnabled)
	require.Nil(t, got.MFASecret)
	require.Equal(t, "SECRETB", *got.MFAPendingSecret)

	require.NoError(t, users.UpdateMFA(ctx, u.ID, domain.MFACleared()))
	require.NoError(t, users.UpdateMFA(ctx, u.ID, domain.MFACleared()), "reset is idempotent")
	got, err = users.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.False(t, got.MFAEnabled)
	require.Nil(t, got.MFASecret)
	require.Nil(t, got.MFAPendingSecret)

	require.ErrorIs(t, users.UpdateMFA(ctx, "missing", domain.MFACleared()), store.ErrNotFound)
}

func testPromotePendingMFA(t *testing.T, st store.Store) {
	ctx := context.Background()
	u := NewUser(t, st, "alice")
	users := st.Users()

	require.ErrorIs(t, users.PromotePendingMFA(ctx, u.ID, "SECRET"), store.ErrNotFound, "nothing pending")

	require.NoError(t, users.UpdateMFA(ctx, u.ID, domain.MFAPending("SECRET")))
	require.ErrorIs(t, users.PromotePendingMFA(ctx, u.ID, "OTHER"), store.ErrNotFound)
	require.NoError(t, users.PromotePendingMFA(ctx, u.ID, "SECRET"))
	require.ErrorIs(t, users.PromotePendingMFA(ctx, u.ID, "SECRET"), store.ErrNotFound, "already promoted")

	got, err := users.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, got.MFAEnabled)
	require.Equal(t, "SECRET", *got.MFASecret)
	require.Nil(t, got.MFAPendingSecret)
}

func testDeleteUserCascades(t *testing.T, st store.Store) {
	ctx := context.Background()
	u := NewUser(t, st, "alice")
	now := time.Now().UTC()

	sess := domain.Session{ID: idx.New().String(), TokenHash: "h1", UserID: u.ID, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, st.Sessions().CreateSession(ctx, sess))

	require.NoError(t, st.Users().DeleteUser(ctx, u.ID))
	require.ErrorIs(t, st.Users().DeleteUser(ctx, u.ID), store.ErrNotFound)

	_, err := st.Sessions().GetSessionByTokenHash(ctx, "h1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testDeleteExpiredSessions(t *testing.T, st store.Store) {
	ctx := context.Background()
	u := NewUser(t, st, "alice")
	now := time.Now().UTC()

	for i, exp := range []time.Duration{-time.Hour, -time.Minute, time.Hour} {
		require.NoError(t, st.Sessions().CreateSession(ctx, domain.Session{
			ID:        idx.New().String(),
			TokenHash: fmt.Sprintf("h%d", i),
			UserID:    u.ID,
			CreatedAt: now.Add(-2 * time.Hour),
			ExpiresAt: now.Add(exp),
		}))
	}

	n, err := st.Sessions().DeleteExpiredSessions(ctx, now)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	_, err = st.Sessions().GetSessionByTokenHash(ctx, "h2")
	require.NoError(t, err)
	_, err = st.Sessions().GetSessionByTokenHash(ctx, "h0")
	require.ErrorIs(t, err, store.ErrNotFound)
}

// testConcurrentMFAInvariant races enroll, pending, promote and reset
// against readers. No reader may see the flag and the secret disagree.
func testConcurrentMFAInvariant(t *testing.T, st store.Store) {
	ctx := context.Background()
	u := NewUser(t, st, "alice")
	users := st.Users()

	const workers = 8
	const rounds = 25

	var wg sync.WaitGroup
	errs := make(chan error, workers*rounds*2)

	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range rounds {
				secret := fmt.Sprintf("S%02d%03d", w, i)
				var err error
				switch (w + i) % 4 {
				case 0:
					err = users.UpdateMFA(ctx, u.ID, domain.MFAActive(secret))
				case 1:
					err = users.UpdateMFA(ctx, u.ID, domain.MFACleared())
				case 2:
					if err = users.UpdateMFA(ctx, u.ID, domain.MFAPending(secret)); err == nil {
						if perr := users.PromotePendingMFA(ctx, u.ID, secret); perr != nil && !errors.Is(perr, store.ErrNotFound) {
							err = perr
						}
					}
				case 3:
					var got domain.User
					if got, err = users.GetUserByID(ctx, u.ID); err == nil {
						err = got.CheckMFA()
					}
				}
				if err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	final, err := users.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.NoError(t, final.CheckMFA())
}
