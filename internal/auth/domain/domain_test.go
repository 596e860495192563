package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStateOf(t *testing.T) {
	secret := "JBSWY3DPEHPK3PXP"
	plain := &User{Username: "alice"}
	enrolled := &User{Username: "bob", MFASecret: &secret, MFAEnabled: true}

	tests := []struct {
		name   string
		user   *User
		stepUp bool
		want   AuthState
	}{
		{"no session", nil, false, StateAnonymous},
		{"no session ignores token", nil, true, StateAnonymous},
		{"password only", plain, false, StateSessionActive},
		{"mfa outstanding", enrolled, false, StateMFAPending},
		{"mfa done", enrolled, true, StateMFASatisfied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StateOf(tt.user, tt.stepUp)
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.user != nil, got.Authenticated())
		})
	}
}

func TestMFAStateConstructors(t *testing.T) {
	active := MFAActive("A")
	require.True(t, active.Enabled())
	require.Nil(t, active.Pending)

	pending := MFAPending("B")
	require.False(t, pending.Enabled())
	require.Equal(t, "B", *pending.Pending)

	require.False(t, MFACleared().Enabled())
}

func TestUserCheckMFA(t *testing.T) {
	secret := "S"
	require.NoError(t, User{}.CheckMFA())
	require.NoError(t, User{MFASecret: &secret, MFAEnabled: true}.CheckMFA())
	require.ErrorIs(t, User{MFAEnabled: true}.CheckMFA(), ErrMFAInconsistent)
	require.ErrorIs(t, User{MFASecret: &secret}.CheckMFA(), ErrMFAInconsistent)
}

func TestSessionExpired(t *testing.T) {
	now := time.Now()
	s := Session{ExpiresAt: now.Add(time.Hour)}
	require.False(t, s.Expired(now))
	require.True(t, s.Expired(now.Add(time.Hour)))
}

func TestStepUpTokenExpiresIn(t *testing.T) {
	now := time.Now()
	tok := StepUpToken{ExpiresAt: now.Add(time.Hour)}
	require.Equal(t, 3600, tok.ExpiresIn(now))
	require.Equal(t, 0, tok.ExpiresIn(now.Add(2*time.Hour)))
}
