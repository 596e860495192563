package domain

// MFAState is the full set of MFA columns written in a single update. The
// enabled flag is derived from Secret, so an MFAState can never describe an
// enabled user without a secret.
type MFAState struct {
	Secret  *string
	Pending *string
}

// Enabled is the value stored in the mfa_enabled column.
func (s MFAState) Enabled() bool { return s.Secret != nil }

// MFAActive returns the state of a user whose secret is in use.
func MFAActive(secret string) MFAState { return MFAState{Secret: &secret} }

// MFAPending returns the state of a user whose secret awaits verification.
// Any previously active secret is dropped.
func MFAPending(secret string) MFAState { return MFAState{Pending: &secret} }

// MFACleared is the state after a reset.
func MFACleared() MFAState { return MFAState{} }

// MFAEnrollment is what a user needs to add the secret to an authenticator.
type MFAEnrollment struct {
	Secret          string // base32 encoded
	ProvisioningURI string // otpauth:// URI
	QRCode          string // data:image/png;base64,...
	Issuer          string
	Account         string
}
