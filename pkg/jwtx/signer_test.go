package jwtx_test

import (
	"crypto/ed25519"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/stepup/pkg/cryptox"
	"github.com/aussiebroadwan/stepup/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testIssuer = "stepup-test"

var testSecret = []byte(strings.Repeat("s", 32))

func TestHS256SignAndVerify(t *testing.T) {
	signer, err := jwtx.NewSignerHS256("", testSecret)
	require.NoError(t, err)
	require.Equal(t, "HS256", signer.Alg())

	now := time.Now()
	token, err := signer.Sign(jwtx.NewStepUpClaims("user-1", "alice", testIssuer, time.Hour, now))
	require.NoError(t, err)

	v := jwtx.NewVerifierHS256(testSecret, jwtx.VerifyOptions{Issuer: testIssuer})
	claims, err := v.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, "alice", claims.Username)

	other := jwtx.NewVerifierHS256([]byte(strings.Repeat("x", 32)), jwtx.VerifyOptions{})
	_, err = other.Verify(token)
	require.ErrorIs(t, err, jwtx.ErrInvalidSig)
}

func TestNewSignerHS256_ShortSecret(t *testing.T) {
	_, err := jwtx.NewSignerHS256("", []byte("short"))
	require.Error(t, err)
}

func TestEdDSASignAndVerify(t *testing.T) {
	key, err := cryptox.GenerateEd25519Key()
	require.NoError(t, err)

	kid := jwtx.Thumbprint(key.Public().(ed25519.PublicKey))
	signer, err := jwtx.NewSignerEdDSA(kid, key)
	require.NoError(t, err)
	require.NoError(t, signer.Validate())
	require.Equal(t, "EdDSA", signer.Alg())
	require.Equal(t, kid, signer.KID())

	token, err := signer.Sign(jwtx.NewStepUpClaims("user-2", "bob", testIssuer, time.Hour, time.Now()))
	require.NoError(t, err)

	keyset := jwtx.NewKeySet()
	require.NoError(t, keyset.AddSigner(signer))

	claims, err := jwtx.NewVerifierEdDSA(keyset, jwtx.VerifyOptions{Issuer: testIssuer}).Verify(token)
	require.NoError(t, err)
	require.Equal(t, "bob", claims.Username)

	// unknown kid
	_, err = jwtx.NewVerifierEdDSA(jwtx.NewKeySet(), jwtx.VerifyOptions{}).Verify(token)
	require.ErrorIs(t, err, jwtx.ErrUnknownKID)
}

func TestVerify_Rejections(t *testing.T) {
	signer, err := jwtx.NewSignerHS256("", testSecret)
	require.NoError(t, err)
	now := time.Now()

	sign := func(c jwtx.Claims) string {
		tok, err := signer.Sign(c)
		require.NoError(t, err)
		return tok
	}

	expired := sign(jwtx.NewStepUpClaims("u", "alice", testIssuer, time.Hour, now.Add(-2*time.Hour)))
	wrongIssuer := sign(jwtx.NewStepUpClaims("u", "alice", "elsewhere", time.Hour, now))
	noSubject := sign(jwtx.NewStepUpClaims("", "alice", testIssuer, time.Hour, now))

	noneTok, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwtx.NewStepUpClaims("u", "alice", testIssuer, time.Hour, now)).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	v := jwtx.NewVerifierHS256(testSecret, jwtx.VerifyOptions{Issuer: testIssuer})

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"garbage", "not.a.jwt", jwtx.ErrMalformed},
		{"expired", expired, jwtx.ErrExpired},
		{"wrong issuer", wrongIssuer, jwtx.ErrIssuer},
		{"missing subject", noSubject, jwtx.ErrInvalidClaim},
		{"alg none", noneTok, jwtx.ErrInvalidSig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestVerify_InjectedClock(t *testing.T) {
	signer, err := jwtx.NewSignerHS256("", testSecret)
	require.NoError(t, err)

	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	token, err := signer.Sign(jwtx.NewStepUpClaims("u", "alice", testIssuer, time.Hour, issued))
	require.NoError(t, err)

	at := func(t time.Time) func() time.Time { return func() time.Time { return t } }

	_, err = jwtx.NewVerifierHS256(testSecret, jwtx.VerifyOptions{Now: at(issued.Add(59 * time.Minute))}).Verify(token)
	require.NoError(t, err)

	_, err = jwtx.NewVerifierHS256(testSecret, jwtx.VerifyOptions{Now: at(issued.Add(61 * time.Minute))}).Verify(token)
	require.ErrorIs(t, err, jwtx.ErrExpired)
}
