package jwtx

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// MinHMACSecretLength is the shortest accepted HS256 secret in bytes.
const MinHMACSecretLength = 32

// HS256Signer signs tokens with a shared secret. It has no public key, so it
// never appears in a JWKS.
type HS256Signer struct {
	kid    string
	secret []byte
}

// NewSignerHS256 creates an HS256 signer from a shared secret.
func NewSignerHS256(kid string, secret []byte) (*HS256Signer, error) {
	s := &HS256Signer{kid: kid, secret: append([]byte(nil), secret...)}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *HS256Signer) Alg() string { return jwt.SigningMethodHS256.Alg() }
func (s *HS256Signer) KID() string { return s.kid }

// Sign takes your claims and turns them into a signed JWT string.
func (s *HS256Signer) Sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if s.kid != "" {
		t.Header["kid"] = s.kid
	}
	return t.SignedString(s.secret)
}

// Validate rejects secrets too short to resist brute force.
func (s *HS256Signer) Validate() error {
	if len(s.secret) < MinHMACSecretLength {
		return errors.New("jwtx: HS256 secret must be at least 32 bytes")
	}
	return nil
}
