package jwtx

import (
	"crypto/ed25519"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/aussiebroadwan/stepup/pkg/cryptox"
)

// KeyManager wires signing keys, the verifier and the published KeySet for
// one algorithm.
type KeyManager struct {
	Verifier Verifier
	KeySet   *KeySet

	algorithm string
	signers   []Signer
}

// KeyManagerOptions configures the KeyManager.
type KeyManagerOptions struct {
	// Algorithm is "HS256" or "EdDSA".
	Algorithm string

	// Issuer is written into and validated on every token.
	Issuer string

	// Secret is the HS256 shared secret. Ignored for EdDSA.
	Secret []byte

	// Keys are existing EdDSA signing keys. When empty, NumKeys ephemeral
	// keys are generated.
	Keys []ed25519.PrivateKey

	// NumKeys is the number of ephemeral EdDSA keys, 1 to 10. Defaults to 1.
	NumKeys int

	// Leeway for exp/nbf checks.
	Leeway time.Duration
}

// NewKeyManager creates a KeyManager. EdDSA keys that are generated here
// live only in memory, so their tokens stop verifying after a restart.
func NewKeyManager(opts KeyManagerOptions) (*KeyManager, error) {
	if opts.Issuer == "" {
		return nil, fmt.Errorf("jwtx: Issuer is required")
	}
	verifyOpts := VerifyOptions{Issuer: opts.Issuer, Leeway: opts.Leeway}

	switch opts.Algorithm {
	case AlgorithmHS256:
		signer, err := NewSignerHS256("", opts.Secret)
		if err != nil {
			return nil, err
		}
		return &KeyManager{
			Verifier:  NewVerifierHS256(opts.Secret, verifyOpts),
			KeySet:    NewKeySet(),
			algorithm: AlgorithmHS256,
			signers:   []Signer{signer},
		}, nil

	case AlgorithmEdDSA:
		keys := opts.Keys
		if len(keys) == 0 {
			n := min(max(opts.NumKeys, 1), 10)
			for range n {
				key, err := cryptox.GenerateEd25519Key()
				if err != nil {
					return nil, fmt.Errorf("jwtx: %w", err)
				}
				keys = append(keys, key)
			}
		}

		keyset := NewKeySet()
		signers := make([]Signer, 0, len(keys))
		for i, key := range keys {
			signer, err := NewSignerEdDSA(Thumbprint(key.Public().(ed25519.PublicKey)), key)
			if err != nil {
				return nil, fmt.Errorf("jwtx: signer %d: %w", i+1, err)
			}
			if err := keyset.AddSigner(signer); err != nil {
				return nil, fmt.Errorf("jwtx: failed to add signer %d to keyset: %w", i+1, err)
			}
			signers = append(signers, signer)
		}

		return &KeyManager{
			Verifier:  NewVerifierEdDSA(keyset, verifyOpts),
			KeySet:    keyset,
			algorithm: AlgorithmEdDSA,
			signers:   signers,
		}, nil

	default:
		return nil, fmt.Errorf("jwtx: unsupported algorithm %q (supported: HS256, EdDSA)", opts.Algorithm)
	}
}

// Algorithm returns the signing algorithm being used.
func (km *KeyManager) Algorithm() string {
	return km.algorithm
}

// IsReady returns true if the KeyManager can sign tokens.
func (km *KeyManager) IsReady() bool {
	return len(km.signers) > 0
}

// NumSigners returns the number of signing keys.
func (km *KeyManager) NumSigners() int {
	return len(km.signers)
}

// GetSigner returns a randomly selected signer.
func (km *KeyManager) GetSigner() Signer {
	switch len(km.signers) {
	case 0:
		return nil
	case 1:
		return km.signers[0]
	default:
		return km.signers[rand.IntN(len(km.signers))]
	}
}
