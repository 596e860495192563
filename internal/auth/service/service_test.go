package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/stepup/internal/auth/domain"
	"github.com/aussiebroadwan/stepup/internal/auth/store"
	"github.com/aussiebroadwan/stepup/internal/auth/store/drivers/memory"
	"github.com/aussiebroadwan/stepup/pkg/jwtx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

const testIssuer = "stepup-test"

var testSecret = []byte("0123456789abcdef0123456789abcdef")

// clock is a settable time source shared by every service under test.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	auth  *AuthService
	store store.Store
	clock *clock
}

func newFixture(t *testing.T, st store.Store, activation MFAActivation) *fixture {
	t.Helper()

	// Mid-step so that ±30s stays inside neighbouring steps.
	clk := &clock{now: time.Unix(1_700_000_025, 0).UTC()}

	km, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{
		Algorithm: jwtx.AlgorithmHS256,
		Issuer:    testIssuer,
		Secret:    testSecret,
	})
	require.NoError(t, err)

	sessions := NewSessionManager(st, time.Hour, time.Second)
	sessions.Now = clk.Now

	return &fixture{
		store: st,
		clock: clk,
		auth: &AuthService{
			Store:    st,
			Sessions: sessions,
			MFA: &MFAService{
				Store:      st,
				Issuer:     "StepUp",
				Activation: activation,
				Now:        clk.Now,
			},
			StepUp: &StepUpIssuer{KeyManager: km, Issuer: testIssuer, TTL: time.Hour},
		},
	}
}

func (f *fixture) register(t *testing.T, username, password string) domain.User {
	t.Helper()
	u, err := f.auth.Register(context.Background(), username, password)
	require.NoError(t, err)
	return u
}

// reload fetches the current user record, as the session middleware would.
func (f *fixture) reload(t *testing.T, id string) domain.User {
	t.Helper()
	u, err := f.store.Users().GetUserByID(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, u.CheckMFA())
	return u
}

func codeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    totpPeriod,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture(t, memory.NewStore(), ActivateOnEnroll)
	ctx := context.Background()

	alice := f.register(t, "alice", "correct horse")

	res, err := f.auth.Login(ctx, "alice", "correct horse", "")
	require.NoError(t, err)
	require.Equal(t, alice.ID, res.User.ID)
	require.NotEmpty(t, res.Token)
	require.Equal(t, alice.ID, res.Session.UserID)

	resolved, err := f.auth.Sessions.Resolve(ctx, res.Token)
	require.NoError(t, err)
	require.Equal(t, "alice", resolved.Username)

	_, err = f.auth.Login(ctx, "alice", "wrong", "")
	require.ErrorIs(t, err, ErrInvalidPassword)
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.auth.Login(ctx, "bob", "whatever", "")
	require.ErrorIs(t, err, ErrUserNotFound)
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.auth.Login(ctx, "ALICE", "correct horse", "")
	require.ErrorIs(t, err, ErrUserNotFound, "usernames are case-sensitive")
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t, memory.NewStore(), ActivateOnEnroll)
	ctx := context.Background()

	f.register(t, "alice", "pw")

	_, err := f.auth.Register(ctx, "alice", "other")
	require.ErrorIs(t, err, ErrUsernameTaken)

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"empty username", "", "pw"},
		{"blank username", "   ", "pw"},
		{"empty password", "bob", ""},
		{"bcrypt limit", "bob", string(make([]byte, 73))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.auth.Register(ctx, tt.username, tt.password)
			require.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t, memory.NewStore(), ActivateOnEnroll)
	ctx := context.Background()
	f.register(t, "alice", "pw")

	t.Run("logout revokes", func(t *testing.T) {
		res, err := f.auth.Login(ctx, "alice", "pw", "")
		require.NoError(t, err)

		require.NoError(t, f.auth.Logout(ctx, res.Token))
		require.ErrorIs(t, f.auth.Logout(ctx, res.Token), ErrUnauthenticated)

		_, err = f.auth.Sessions.Resolve(ctx, res.Token)
		require.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("no token", func(t *testing.T) {
		require.ErrorIs(t, f.auth.Logout(ctx, ""), ErrUnauthenticated)
		_, err := f.auth.Sessions.Resolve(ctx, "")
		require.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("expires after ttl", func(t *testing.T) {
		res, err := f.auth.Login(ctx, "alice", "pw", "")
		require.NoError(t, err)

		f.clock.Advance(59 * time.Minute)
		_, err = f.auth.Sessions.Resolve(ctx, res.Token)
		require.NoError(t, err)

		f.clock.Advance(time.Minute)
		_, err = f.auth.Sessions.Resolve(ctx, res.Token)
		require.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("relogin rotates", func(t *testing.T) {
		first, err := f.auth.Login(ctx, "alice", "pw", "")
		require.NoError(t, err)
		second, err := f.auth.Login(ctx, "alice", "pw", first.Token)
		require.NoError(t, err)

		_, err = f.auth.Sessions.Resolve(ctx, first.Token)
		require.ErrorIs(t, err, ErrUnauthenticated)
		_, err = f.auth.Sessions.Resolve(ctx, second.Token)
		require.NoError(t, err)
	})

	t.Run("deleted user", func(t *testing.T) {
		bob := f.register(t, "bob", "pw")
		res, err := f.auth.Login(ctx, "bob", "pw", "")
		require.NoError(t, err)

		require.NoError(t, f.store.Users().DeleteUser(ctx, bob.ID))
		_, err = f.auth.Sessions.Resolve(ctx, res.Token)
		require.ErrorIs(t, err, ErrUnauthenticated)
	})
}

// flakySessions fails the first n reads.
type flakySessions struct {
	store.Sessions
	mu    sync.Mutex
	fails int
	reads int
}

func (s *flakySessions) GetSessionByTokenHash(ctx context.Context, hash string) (domain.Session, error) {
	s.mu.Lock()
	s.reads++
	fail := s.fails > 0
	if fail {
		s.fails--
	}
	s.mu.Unlock()
	if fail {
		return domain.Session{}, errors.New("connection reset")
	}
	return s.Sessions.GetSessionByTokenHash(ctx, hash)
}

func TestResolveRetriesOnce(t *testing.T) {
	base := memory.NewStore()
	flaky := &flakySessions{Sessions: base.Sessions()}
	f := newFixture(t, store.WithSessions(base, flaky, nil), ActivateOnEnroll)
	ctx := context.Background()

	f.register(t, "alice", "pw")
	res, err := f.auth.Login(ctx, "alice", "pw", "")
	require.NoError(t, err)

	flaky.fails = 1
	_, err = f.auth.Sessions.Resolve(ctx, res.Token)
	require.NoError(t, err)
	require.Equal(t, 2, flaky.reads)

	flaky.fails, flaky.reads = 2, 0
	_, err = f.auth.Sessions.Resolve(ctx, res.Token)
	require.ErrorIs(t, err, ErrSessionIndeterminate)
	require.Equal(t, 2, flaky.reads)

	flaky.fails = 2
	status := f.auth.Status(ctx, res.Token, "")
	require.False(t, status.Authenticated)
	require.Equal(t, domain.StateAnonymous, status.State)
}

func TestEnrollMFA(t *testing.T) {
	f := newFixture(t, memory.NewStore(), ActivateOnEnroll)
	ctx := context.Background()
	alice := f.register(t, "alice", "pw")

	enr, err := f.auth.EnrollMFA(ctx, alice)
	require.NoError(t, err)
	require.Len(t, enr.Secret, 32, "160-bit secret, base32 without padding")
	require.Contains(t, enr.ProvisioningURI, "otpauth://totp/")
	require.Contains(t, enr.ProvisioningURI, "issuer=StepUp")
	require.Contains(t, enr.QRCode, "data:image/png;base64,")
	require.Equal(t, "alice", enr.Account)

	got := f.reload(t, alice.ID)
	require.True(t, got.MFAEnabled)
	require.Equal(t, enr.Secret, *got.MFASecret)
}

func TestVerifyWindow(t *testing.T) {
	f := newFixture(t, memory.NewStore(), ActivateOnEnroll)
	ctx := context.Background()
	alice := f.register(t, "alice", "pw")

	enr, err := f.auth.EnrollMFA(ctx, alice)
	require.NoError(t, err)
	alice = f.reload(t, alice.ID)
	now := f.clock.Now()

	tests := []struct {
		offset time.Duration
		valid  bool
	}{
		{0, true},
		{-30 * time.Second, true},
		{30 * time.Second, true},
		{-60 * time.Second, false},
		{60 * time.Second, false},
	}
	for _, tt := range tests {
		t.Run(tt.offset.String(), func(t *testing.T) {
			ok, err := f.auth.MFA.Verify(ctx, alice, codeAt(t, enr.Secret, now.Add(tt.offset)))
			require.NoError(t, err)
			require.Equal(t, tt.valid, ok)
		})
	}
}

func TestVerifyMalformedCode(t *testing.T) {
	f := newFixture(t, memory.NewStore(), ActivateOnEnroll)
	ctx := context.Background()
	alice := f.register(t, "alice", "pw")
	_, err := f.auth.EnrollMFA(ctx, alice)
	require.NoError(t, err)
	alice = f.reload(t, alice.ID)

	for _, code := range []string{"", "12345", "1234567", "12a456", " 12345", "١٢٣٤٥٦"} {
		_, err := f.auth.VerifyMFA(ctx, alice, code)
		require.ErrorIs(t, err, ErrInvalidCode, "code %q", code)
	}
}

func TestVerifyWithoutSecretIgnoresCodeFormat(t *testing.T) {
	for _, activation := range []MFAActivation{ActivateOnEnroll, ActivateOnVerify} {
		t.Run(string(activation), func(t *testing.T) {
			f := newFixture(t, memory.NewStore(), activation)
			ctx := context.Background()
			alice := f.register(t, "alice", "pw")

			for _, code := range []string{"123456", "", "abc", "1234567"} {
				_, err := f.auth.VerifyMFA(ctx, alice, code)
				require.ErrorIs(t, err, ErrMFANotEnrolled, "code %q", code)
			}
		})
	}
}

func TestResetMFA(t *testing.T) {
	f := newFixture(t, memory.NewStore(), ActivateOnEnroll)
	ctx := context.Background()
	alice := f.register(t, "alice", "pw")

	enr, err := f.auth.EnrollMFA(ctx, alice)
	require.NoError(t, err)
	require.NoError(t, f.auth.ResetMFA(ctx, f.reload(t, alice.ID)))

	alice = f.reload(t, alice.ID)
	require.False(t, alice.MFAEnabled)
	require.Nil(t, alice.MFASecret)

	_, err = f.auth.VerifyMFA(ctx, alice, codeAt(t, enr.Secret, f.clock.Now()))
	require.ErrorIs(t, err, ErrMFANotEnrolled)

	require.NoError(t, f.auth.ResetMFA(ctx, alice), "reset without a secret is a no-op")
}

func TestReenrollInvalidatesOldSecret(t *testing.T) {
	f := newFixture(t, memory.NewStore(), ActivateOnEnroll)
	ctx := context.Background()
	alice := f.register(t, "alice", "pw")

	first, err := f.auth.EnrollMFA(ctx, alice)
	require.NoError(t, err)
	second, err := f.auth.EnrollMFA(ctx, f.reload(t, alice.ID))
	require.NoError(t, err)
	require.NotEqual(t, first.Secret, second.Secret)

	alice = f.reload(t, alice.ID)
	now := f.clock.Now()
	oldCode := codeAt(t, first.Secret, now)
	if oldCode == codeAt(t, second.Secret, now) {
		t.Skip("codes collided")
	}

	_, err = f.auth.VerifyMFA(ctx, alice, oldCode)
	require.ErrorIs(t, err, ErrInvalidTOTPCode)

	_, err = f.auth.VerifyMFA(ctx, alice, codeAt(t, second.Secret, now))
	require.NoError(t, err)
}

func TestStepUpRequiresSessionAndCode(t *testing.T) {
	f := newFixture(t, memory.NewStore(), ActivateOnEnroll)
	ctx := context.Background()
	f.register(t, "alice", "pw")

	login, err := f.auth.Login(ctx, "alice", "pw", "")
	require.NoError(t, err)
	alice, err := f.auth.Sessions.Resolve(ctx, login.Token)
	require.NoError(t, err)

	status := f.auth.Status(ctx, login.Token, "")
	require.Equal(t, domain.StateSessionActive, status.State)

	_, err = f.auth.VerifyMFA(ctx, alice, "123456")
	require.ErrorIs(t, err, ErrMFANotEnrolled, "no secret fails closed")

	enr, err := f.auth.EnrollMFA(ctx, alice)
	require.NoError(t, err)
	alice, err = f.auth.Sessions.Resolve(ctx, login.Token)
	require.NoError(t, err)

	status = f.auth.Status(ctx, login.Token, "")
	require.Equal(t, domain.StateMFAPending, status.State)

	now := f.clock.Now()
	wrong := codeAt(t, enr.Secret, now.Add(-5*time.Minute))
	if wrong != codeAt(t, enr.Secret, now) {
		_, err = f.auth.VerifyMFA(ctx, alice, wrong)
		require.ErrorIs(t, err, ErrInvalidTOTPCode)
		require.Equal(t, domain.StateMFAPending, f.auth.Status(ctx, login.Token, "").State)
	}

	tok, err := f.auth.VerifyMFA(ctx, alice, codeAt(t, enr.Secret, now))
	require.NoError(t, err)
	require.NotEmpty(t, tok.Token)

	claims, err := f.auth.StepUp.Verify(tok.Token)
	require.NoError(t, err)
	require.Equal(t, alice.ID, claims.Subject)
	require.Equal(t, "alice", claims.Username)
	require.Equal(t, []string{"pwd", "otp", "mfa"}, claims.AMR)
	require.WithinDuration(t, time.Now().Add(time.Hour), tok.ExpiresAt, 5*time.Second)

	status = f.auth.Status(ctx, login.Token, tok.Token)
	require.True(t, status.Authenticated)
	require.Equal(t, domain.StateMFASatisfied, status.State)

	// A step-up token without a session does not authenticate.
	status = f.auth.Status(ctx, "", tok.Token)
	require.Equal(t, domain.StateAnonymous, status.State)

	// Someone else's step-up token does not satisfy this session.
	f.register(t, "bob", "pw")
	bobLogin, err := f.auth.Login(ctx, "bob", "pw", "")
	require.NoError(t, err)
	status = f.auth.Status(ctx, bobLogin.Token, tok.Token)
	require.Equal(t, domain.StateSessionActive, status.State)
}

func TestVerifyActivationPolicy(t *testing.T) {
	f := newFixture(t, memory.NewStore(), ActivateOnVerify)
	ctx := context.Background()
	alice := f.register(t, "alice", "pw")

	enr, err := f.auth.EnrollMFA(ctx, alice)
	require.NoError(t, err)

	alice = f.reload(t, alice.ID)
	require.False(t, alice.MFAEnabled, "not enforced until verified")
	require.Nil(t, alice.MFASecret)
	require.Equal(t, enr.Secret, *alice.MFAPendingSecret)

	_, err = f.auth.VerifyMFA(ctx, alice, codeAt(t, enr.Secret, f.clock.Now()))
	require.NoError(t, err)

	alice = f.reload(t, alice.ID)
	require.True(t, alice.MFAEnabled)
	require.Equal(t, enr.Secret, *alice.MFASecret)
	require.Nil(t, alice.MFAPendingSecret)
}

func TestVerifyPendingAfterResetFails(t *testing.T) {
	f := newFixture(t, memory.NewStore(), ActivateOnVerify)
	ctx := context.Background()
	alice := f.register(t, "alice", "pw")

	enr, err := f.auth.EnrollMFA(ctx, alice)
	require.NoError(t, err)
	stale := f.reload(t, alice.ID)

	require.NoError(t, f.auth.ResetMFA(ctx, stale))

	// stale still carries the pending secret, but the store no longer does.
	_, err = f.auth.VerifyMFA(ctx, stale, codeAt(t, enr.Secret, f.clock.Now()))
	require.ErrorIs(t, err, ErrInvalidTOTPCode)
	require.False(t, f.reload(t, alice.ID).MFAEnabled)
}

func TestParseMFAActivation(t *testing.T) {
	a, err := ParseMFAActivation("")
	require.NoError(t, err)
	require.Equal(t, ActivateOnEnroll, a)

	a, err = ParseMFAActivation("verify")
	require.NoError(t, err)
	require.Equal(t, ActivateOnVerify, a)

	_, err = ParseMFAActivation("never")
	require.Error(t, err)
}

func TestConcurrentEnrollAndReset(t *testing.T) {
	for _, policy := range []MFAActivation{ActivateOnEnroll, ActivateOnVerify} {
		t.Run(string(policy), func(t *testing.T) {
			f := newFixture(t, memory.NewStore(), policy)
			ctx := context.Background()
			alice := f.register(t, "alice", "pw")

			var wg sync.WaitGroup
			for i := range 16 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for range 10 {
						if i%2 == 0 {
							_, _ = f.auth.EnrollMFA(ctx, alice)
						} else {
							_ = f.auth.ResetMFA(ctx, alice)
						}
					}
				}()
			}
			wg.Wait()

			f.reload(t, alice.ID)
		})
	}
}
