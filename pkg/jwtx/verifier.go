package jwtx

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier validates a JWT and gives you back the claims if it's legit.
type Verifier interface {
	Verify(token string) (Claims, error)
}

// VerifyOptions captures common expectations used by verifiers.
type VerifyOptions struct {
	// Issuer the token must have (claims.iss). Empty means "don't care".
	Issuer string

	// Leeway allows small clock skew when validating exp/nbf.
	Leeway time.Duration

	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

var (
	ErrMalformed    = errors.New("jwtx: malformed token")
	ErrUnknownKID   = errors.New("jwtx: unknown kid")
	ErrInvalidSig   = errors.New("jwtx: invalid signature")
	ErrIssuer       = errors.New("jwtx: issuer mismatch")
	ErrExpired      = errors.New("jwtx: token expired")
	ErrNotYetValid  = errors.New("jwtx: token not yet valid")
	ErrInvalidClaim = errors.New("jwtx: invalid claims")
)

type tokenVerifier struct {
	method  string
	keyFunc jwt.Keyfunc
	opts    VerifyOptions
}

// NewVerifierHS256 returns a Verifier for tokens signed with a shared secret.
func NewVerifierHS256(secret []byte, opts VerifyOptions) Verifier {
	key := append([]byte(nil), secret...)
	return &tokenVerifier{
		method:  jwt.SigningMethodHS256.Alg(),
		keyFunc: func(*jwt.Token) (any, error) { return key, nil },
		opts:    opts,
	}
}

// NewVerifierEdDSA returns a Verifier that resolves Ed25519 public keys from
// a KeySet by the token's kid header.
func NewVerifierEdDSA(keys *KeySet, opts VerifyOptions) Verifier {
	return &tokenVerifier{
		method: jwt.SigningMethodEdDSA.Alg(),
		keyFunc: func(t *jwt.Token) (any, error) {
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, fmt.Errorf("%w: missing kid", ErrUnknownKID)
			}
			pub, err := keys.Get(kid)
			if err != nil {
				return nil, fmt.Errorf("%w %q", ErrUnknownKID, kid)
			}
			return ed25519.PublicKey(pub), nil
		},
		opts: opts,
	}
}

// Verify checks the signature first, then exp/nbf and the issuer.
func (v *tokenVerifier) Verify(tokenStr string) (Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{v.method}),
		jwt.WithoutClaimsValidation(),
	)

	var claims Claims
	token, err := parser.ParseWithClaims(tokenStr, &claims, v.keyFunc)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		case errors.Is(err, ErrUnknownKID):
			return Claims{}, ErrUnknownKID
		default:
			return Claims{}, fmt.Errorf("%w: %v", ErrInvalidSig, err)
		}
	}
	if !token.Valid {
		return Claims{}, ErrInvalidSig
	}

	if claims.ExpiresAt == nil || claims.Subject == "" {
		return Claims{}, ErrInvalidClaim
	}

	now := time.Now()
	if v.opts.Now != nil {
		now = v.opts.Now()
	}
	if err := claims.ValidateExpiry(now, v.opts.Leeway); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateIssuer(v.opts.Issuer); err != nil {
		return Claims{}, err
	}

	return claims, nil
}
