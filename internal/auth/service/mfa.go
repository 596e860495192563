package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"time"

	"github.com/aussiebroadwan/stepup/internal/auth/domain"
	"github.com/aussiebroadwan/stepup/internal/auth/store"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpPeriod     = 30
	totpSecretSize = 20 // 160 bits
	totpSkew       = 1  // accept the previous and next step as well
	qrCodeSize     = 200
)

// MFAActivation decides when a freshly enrolled secret starts being enforced.
type MFAActivation string

const (
	// ActivateOnEnroll enables MFA as soon as the secret is generated.
	ActivateOnEnroll MFAActivation = "enroll"
	// ActivateOnVerify keeps the secret pending until the first valid code.
	ActivateOnVerify MFAActivation = "verify"
)

// ParseMFAActivation accepts "enroll" or "verify"; empty means enroll.
func ParseMFAActivation(s string) (MFAActivation, error) {
	switch MFAActivation(s) {
	case "", ActivateOnEnroll:
		return ActivateOnEnroll, nil
	case ActivateOnVerify:
		return ActivateOnVerify, nil
	}
	return "", fmt.Errorf("unknown MFA activation policy %q", s)
}

type MFAService struct {
	Store        store.Store
	Issuer       string // shown in authenticator apps
	Activation   MFAActivation
	StoreTimeout time.Duration
	Now          func() time.Time
}

// Enroll generates a new TOTP secret for user and stores it, replacing any
// previous secret.
func (s *MFAService) Enroll(ctx context.Context, user domain.User) (domain.MFAEnrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: user.Username,
		Period:      totpPeriod,
		SecretSize:  totpSecretSize,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return domain.MFAEnrollment{}, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	qr, err := qrCodeDataURL(key)
	if err != nil {
		return domain.MFAEnrollment{}, err
	}

	state := domain.MFAActive(key.Secret())
	if s.Activation == ActivateOnVerify {
		state = domain.MFAPending(key.Secret())
	}
	if err := s.updateMFA(ctx, user.ID, state); err != nil {
		return domain.MFAEnrollment{}, fmt.Errorf("failed to store MFA secret: %w", err)
	}

	return domain.MFAEnrollment{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
		QRCode:          qr,
		Issuer:          s.Issuer,
		Account:         user.Username,
	}, nil
}

// Verify checks code against the user's active secret, or the pending one
// under the verify policy. A pending secret that matches is promoted. Without
// a secret the result is ErrMFANotEnrolled, whatever the code.
func (s *MFAService) Verify(ctx context.Context, user domain.User, code string) (bool, error) {
	if user.MFASecret != nil {
		if !wellFormedCode(code) {
			return false, ErrInvalidCode
		}
		return s.validate(code, *user.MFASecret)
	}

	if s.Activation == ActivateOnVerify && user.MFAPendingSecret != nil {
		if !wellFormedCode(code) {
			return false, ErrInvalidCode
		}
		ok, err := s.validate(code, *user.MFAPendingSecret)
		if err != nil || !ok {
			return false, err
		}
		ctx, cancel := context.WithTimeout(ctx, s.timeout())
		defer cancel()
		err = s.Store.Users().PromotePendingMFA(ctx, user.ID, *user.MFAPendingSecret)
		if errors.Is(err, store.ErrNotFound) {
			// Re-enrolled or reset since the user was read.
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to activate MFA: %w", err)
		}
		return true, nil
	}

	return false, ErrMFANotEnrolled
}

// Reset clears the secret, any pending secret and the enabled flag.
func (s *MFAService) Reset(ctx context.Context, user domain.User) error {
	if err := s.updateMFA(ctx, user.ID, domain.MFACleared()); err != nil {
		return fmt.Errorf("failed to reset MFA: %w", err)
	}
	return nil
}

func (s *MFAService) validate(code, secret string) (bool, error) {
	ok, err := totp.ValidateCustom(code, secret, s.now(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false, fmt.Errorf("failed to validate TOTP code: %w", err)
	}
	return ok, nil
}

func (s *MFAService) updateMFA(ctx context.Context, userID string, state domain.MFAState) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()
	return s.Store.Users().UpdateMFA(ctx, userID, state)
}

func (s *MFAService) timeout() time.Duration {
	if s.StoreTimeout > 0 {
		return s.StoreTimeout
	}
	return DefaultStoreTimeout
}

func (s *MFAService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func wellFormedCode(code string) bool {
	if len(code) != int(otp.DigitsSix) {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

func qrCodeDataURL(key *otp.Key) (string, error) {
	img, err := key.Image(qrCodeSize, qrCodeSize)
	if err != nil {
		return "", fmt.Errorf("failed to render QR code: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode QR code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
