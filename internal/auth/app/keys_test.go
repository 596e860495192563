package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/stepup/pkg/jwtx"
	"github.com/aussiebroadwan/stepup/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func TestInitStepUpKeys(t *testing.T) {
	logger := slogx.Discard()

	t.Run("shared secret", func(t *testing.T) {
		km, err := InitStepUpKeys(Config{Issuer: "test", StepUpSecret: strings.Repeat("s", 32)}, logger)
		require.NoError(t, err)
		require.Equal(t, jwtx.AlgorithmHS256, km.Algorithm())
		require.Empty(t, km.KeySet.PublicJWKS().Keys)
	})

	t.Run("ephemeral", func(t *testing.T) {
		km, err := InitStepUpKeys(Config{Issuer: "test"}, logger)
		require.NoError(t, err)
		require.Equal(t, jwtx.AlgorithmEdDSA, km.Algorithm())
		require.Len(t, km.KeySet.PublicJWKS().Keys, 1)
	})

	t.Run("key file survives restart", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "stepup.pem")
		cfg := Config{Issuer: "test", StepUpKeyFile: path}

		first, err := InitStepUpKeys(cfg, logger)
		require.NoError(t, err)

		info, err := os.Stat(path)
		require.NoError(t, err)
		require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

		second, err := InitStepUpKeys(cfg, logger)
		require.NoError(t, err)
		require.Equal(t, first.GetSigner().KID(), second.GetSigner().KID())

		claims := jwtx.NewStepUpClaims("user-1", "alice", "test", 0, time.Now())
		token, err := first.GetSigner().Sign(claims)
		require.NoError(t, err)
		_, err = second.Verifier.Verify(token)
		require.NoError(t, err)
	})

	t.Run("garbage key file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "stepup.pem")
		require.NoError(t, os.WriteFile(path, []byte("nope"), 0o600))

		_, err := InitStepUpKeys(Config{Issuer: "test", StepUpKeyFile: path}, logger)
		require.Error(t, err)
	})
}
