package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/stepup/internal/auth/domain"
	"github.com/aussiebroadwan/stepup/pkg/jwtx"
)

// ErrStepUpUnavailable means no signing key is loaded.
var ErrStepUpUnavailable = errors.New("step-up signer unavailable")

// StepUpIssuer mints and checks the short-lived tokens handed out after a
// successful TOTP check. Tokens are stateless and cannot be revoked.
type StepUpIssuer struct {
	KeyManager *jwtx.KeyManager
	Issuer     string
	TTL        time.Duration
	Now        func() time.Time
}

// Issue signs a step-up token for user.
func (s *StepUpIssuer) Issue(user domain.User) (domain.StepUpToken, error) {
	signer := s.KeyManager.GetSigner()
	if signer == nil {
		return domain.StepUpToken{}, ErrStepUpUnavailable
	}

	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = jwtx.DefaultStepUpTTL
	}

	claims := jwtx.NewStepUpClaims(user.ID, user.Username, s.Issuer, ttl, now)
	token, err := signer.Sign(claims)
	if err != nil {
		return domain.StepUpToken{}, fmt.Errorf("failed to sign step-up token: %w", err)
	}
	return domain.StepUpToken{Token: token, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Verify returns the claims of a valid step-up token.
func (s *StepUpIssuer) Verify(token string) (jwtx.Claims, error) {
	claims, err := s.KeyManager.Verifier.Verify(token)
	if err != nil {
		return jwtx.Claims{}, err
	}
	if !claims.HasAMR(jwtx.AMRMFA) {
		return jwtx.Claims{}, jwtx.ErrInvalidClaim
	}
	return claims, nil
}
