package app

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/aussiebroadwan/stepup/pkg/cryptox"
	"github.com/aussiebroadwan/stepup/pkg/jwtx"
)

// InitStepUpKeys creates the KeyManager that signs step-up tokens.
//
// Key sources, in order:
//   - AUTH_STEPUP_SECRET: HS256 with a shared secret. Nothing is published
//     in the JWKS; resource servers need the same secret.
//   - AUTH_STEPUP_KEY_FILE: EdDSA with a PEM key read from disk, or
//     generated and written there on first start. Tokens survive restarts.
//   - neither: EdDSA with an ephemeral key. Tokens die with the process.
func InitStepUpKeys(cfg Config, logger *slog.Logger) (*jwtx.KeyManager, error) {
	opts := jwtx.KeyManagerOptions{Issuer: cfg.Issuer}

	switch {
	case cfg.StepUpSecret != "":
		opts.Algorithm = jwtx.AlgorithmHS256
		opts.Secret = []byte(cfg.StepUpSecret)

	case cfg.StepUpKeyFile != "":
		key, err := loadOrCreateKey(cfg.StepUpKeyFile, logger)
		if err != nil {
			return nil, err
		}
		opts.Algorithm = jwtx.AlgorithmEdDSA
		opts.Keys = []ed25519.PrivateKey{key}

	default:
		opts.Algorithm = jwtx.AlgorithmEdDSA
		opts.NumKeys = 1
	}

	km, err := jwtx.NewKeyManager(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize step-up keys: %w", err)
	}

	logger.Info("step-up signer ready",
		"algorithm", km.Algorithm(),
		"num_keys", km.NumSigners(),
		"issuer", cfg.Issuer,
	)
	if cfg.StepUpSecret == "" && cfg.StepUpKeyFile == "" {
		logger.Warn("ephemeral step-up key generated; outstanding step-up tokens are invalid after a restart")
	}
	return km, nil
}

func loadOrCreateKey(path string, logger *slog.Logger) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		key, err := cryptox.ParseEd25519Key(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse step-up key %s: %w", path, err)
		}
		logger.Info("loaded step-up key", "path", path)
		return key, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read step-up key: %w", err)
	}

	key, err := cryptox.GenerateEd25519Key()
	if err != nil {
		return nil, err
	}
	pemBytes, err := cryptox.MarshalEd25519Key(key)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, pemBytes, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write step-up key: %w", err)
	}
	logger.Info("generated step-up key", "path", path)
	return key, nil
}
