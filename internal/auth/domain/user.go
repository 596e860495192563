package domain

import (
	"errors"
	"time"
)

// ErrMFAInconsistent is reported when a user record has the MFA flag and the
// secret out of step.
var ErrMFAInconsistent = errors.New("mfa flag and secret disagree")

type User struct {
	ID           string
	Username     string // unique, case-sensitive
	PasswordHash string // bcrypt or argon2id encoded

	MFASecret        *string // TOTP secret (nullable, base32 encoded)
	MFAEnabled       bool    // true exactly when MFASecret is set
	MFAPendingSecret *string // secret awaiting its first verification

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MFAState returns the user's current MFA columns as one value.
func (u User) MFAState() MFAState {
	return MFAState{Secret: u.MFASecret, Pending: u.MFAPendingSecret}
}

// CheckMFA reports whether MFAEnabled matches the presence of MFASecret.
func (u User) CheckMFA() error {
	if u.MFAEnabled != (u.MFASecret != nil) {
		return ErrMFAInconsistent
	}
	return nil
}
