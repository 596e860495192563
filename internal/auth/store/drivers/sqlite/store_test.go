package sqlite_test

import (
	"path/filepath"
	"testing"

	"github.com/aussiebroadwan/stepup/internal/auth/store"
	"github.com/aussiebroadwan/stepup/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/stepup/internal/auth/store/storetest"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) store.Store {
	t.Helper()
	st, err := sqlite.NewStore(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())
	return st
}

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, openStore)
}

func TestSQLiteMigrationsIdempotent(t *testing.T) {
	st := openStore(t)
	require.NoError(t, st.ApplyMigrations())
}

func TestSQLiteRejectsInconsistentMFA(t *testing.T) {
	st := openStore(t).(*sqlite.Store)
	u := storetest.NewUser(t, st, "alice")

	_, err := st.DB().Exec(`UPDATE users SET mfa_enabled = 1 WHERE id = ?`, u.ID)
	require.Error(t, err, "check constraint must reject enabled without secret")

	_, err = st.DB().Exec(`UPDATE users SET mfa_secret = 'X' WHERE id = ?`, u.ID)
	require.Error(t, err, "check constraint must reject secret without enabled")
}
