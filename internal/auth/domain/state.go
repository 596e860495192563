package domain

// AuthState is a position in the login flow.
type AuthState string

const (
	StateAnonymous     AuthState = "anonymous"
	StateSessionActive AuthState = "session_active" // password done, no MFA enrolled
	StateMFAPending    AuthState = "mfa_pending"    // password done, TOTP outstanding
	StateMFASatisfied  AuthState = "mfa_satisfied"  // step-up token held
)

// StateOf derives the state of a caller. user is nil without a session;
// stepUp reports whether the caller presented a valid step-up token for the
// same user.
func StateOf(user *User, stepUp bool) AuthState {
	switch {
	case user == nil:
		return StateAnonymous
	case stepUp:
		return StateMFASatisfied
	case user.MFAEnabled:
		return StateMFAPending
	default:
		return StateSessionActive
	}
}

// Authenticated reports whether the state carries a session.
func (s AuthState) Authenticated() bool {
	return s != StateAnonymous
}
