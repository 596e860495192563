package http_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	authhttp "github.com/aussiebroadwan/stepup/internal/auth/http"
	"github.com/aussiebroadwan/stepup/internal/auth/service"
	"github.com/aussiebroadwan/stepup/internal/auth/store/drivers/memory"
	"github.com/aussiebroadwan/stepup/pkg/authsdk"
	"github.com/aussiebroadwan/stepup/pkg/jwtx"
	"github.com/aussiebroadwan/stepup/pkg/slogx"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer = "stepup-test"
	testOrigin = "http://localhost:5173"
)

type serverOptions struct {
	algorithm string
	distinct  bool
}

func newTestServer(t *testing.T, opts serverOptions) *httptest.Server {
	t.Helper()
	if opts.algorithm == "" {
		opts.algorithm = jwtx.AlgorithmHS256
	}

	km, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{
		Algorithm: opts.algorithm,
		Issuer:    testIssuer,
		Secret:    []byte("0123456789abcdef0123456789abcdef"),
	})
	require.NoError(t, err)

	st := memory.NewStore()
	sessions := service.NewSessionManager(st, time.Hour, time.Second)
	auth := &service.AuthService{
		Store:    st,
		Sessions: sessions,
		MFA:      &service.MFAService{Store: st, Issuer: "StepUp", Activation: service.ActivateOnEnroll},
		StepUp:   &service.StepUpIssuer{KeyManager: km, Issuer: testIssuer, TTL: time.Hour},
	}

	router := authhttp.NewRouter(km, "test", st, slogx.Discard(), testOrigin)
	router.AuthService = auth
	router.Cookies = authhttp.NewSessionCodec(authhttp.CookieOptions{
		Name:    "stepup-session",
		HashKey: []byte("cookie-hash-key-cookie-hash-key-"),
		MaxAge:  time.Hour,
	})
	router.DistinctLoginErrors = opts.distinct
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func requireAPIError(t *testing.T, err error, want *authsdk.APIError) {
	t.Helper()
	var apiErr *authsdk.APIError
	require.True(t, errors.As(err, &apiErr), "expected APIError, got %v", err)
	require.Equal(t, want.StatusCode, apiErr.StatusCode)
	require.Equal(t, want.Code, apiErr.Code)
}

func TestFullFlow(t *testing.T) {
	srv := newTestServer(t, serverOptions{})
	ctx := context.Background()
	c := authsdk.NewSDKClient(srv.URL)

	status, err := c.Status(ctx)
	require.NoError(t, err)
	require.False(t, status.IsAuthenticated)
	require.Equal(t, authsdk.StateAnonymous, status.State)
	require.Nil(t, status.User)

	_, err = c.Register(ctx, "alice", "hunter22")
	require.NoError(t, err)

	_, err = c.Register(ctx, "alice", "other")
	requireAPIError(t, err, authsdk.ErrUsernameTaken)

	_, err = c.Login(ctx, "alice", "wrong")
	requireAPIError(t, err, authsdk.ErrInvalidCredentials)

	login, err := c.Login(ctx, "alice", "hunter22")
	require.NoError(t, err)
	require.Equal(t, "alice", login.User.Username)
	require.False(t, login.User.MFAEnabled)

	status, err = c.Status(ctx)
	require.NoError(t, err)
	require.True(t, status.IsAuthenticated)
	require.Equal(t, authsdk.StateSessionActive, status.State)

	setup, err := c.SetupMFA(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, setup.Secret)
	require.True(t, strings.HasPrefix(setup.ProvisioningURI, "otpauth://totp/"))
	require.True(t, strings.HasPrefix(setup.QRCode, "data:image/png;base64,"))

	status, err = c.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, authsdk.StateMFAPending, status.State)
	require.True(t, status.User.MFAEnabled)

	_, err = c.VerifyMFA(ctx, "abc")
	requireAPIError(t, err, authsdk.ErrInvalidCode)

	code, err := totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)
	verified, err := c.VerifyMFA(ctx, code)
	require.NoError(t, err)
	require.NotEmpty(t, verified.Token)
	require.InDelta(t, 3600, verified.ExpiresIn, 5)

	status, err = c.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, authsdk.StateMFASatisfied, status.State)

	claims, err := c.IntrospectStepUp(ctx, verified.Token)
	require.NoError(t, err)
	require.True(t, claims.Active)
	require.Equal(t, "alice", claims.Username)
	require.Equal(t, testIssuer, claims.Issuer)
	require.ElementsMatch(t, []string{"pwd", "otp", "mfa"}, claims.AMR)
	require.Equal(t, claims.IssuedAt+3600, claims.ExpiresAt)

	_, err = c.ResetMFA(ctx)
	require.NoError(t, err)

	status, err = c.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, authsdk.StateSessionActive, status.State)
	require.False(t, status.User.MFAEnabled)

	_, err = c.VerifyMFA(ctx, code)
	requireAPIError(t, err, authsdk.ErrMFANotEnrolled)

	_, err = c.Logout(ctx)
	require.NoError(t, err)

	status, err = c.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, authsdk.StateAnonymous, status.State)

	_, err = c.Logout(ctx)
	requireAPIError(t, err, authsdk.ErrUnauthenticated)
}

func TestMFARequiresSession(t *testing.T) {
	srv := newTestServer(t, serverOptions{})
	ctx := context.Background()
	c := authsdk.NewSDKClient(srv.URL)

	_, err := c.SetupMFA(ctx)
	requireAPIError(t, err, authsdk.ErrUnauthenticated)
	_, err = c.VerifyMFA(ctx, "123456")
	requireAPIError(t, err, authsdk.ErrUnauthenticated)
	_, err = c.ResetMFA(ctx)
	requireAPIError(t, err, authsdk.ErrUnauthenticated)
}

func TestVerifyWithoutEnrollment(t *testing.T) {
	srv := newTestServer(t, serverOptions{})
	ctx := context.Background()
	c := authsdk.NewSDKClient(srv.URL)

	_, err := c.Register(ctx, "alice", "pw")
	require.NoError(t, err)
	_, err = c.Login(ctx, "alice", "pw")
	require.NoError(t, err)

	for _, code := range []string{"123456", "", "abc", "1234567"} {
		_, err = c.VerifyMFA(ctx, code)
		requireAPIError(t, err, authsdk.ErrMFANotEnrolled)
	}
}

func TestLoginErrorMessages(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		distinct    bool
		username    string
		description string
	}{
		{"collapsed unknown user", false, "bob", "invalid username or password"},
		{"collapsed wrong password", false, "alice", "invalid username or password"},
		{"distinct unknown user", true, "bob", "user not found"},
		{"distinct wrong password", true, "alice", "invalid password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, serverOptions{distinct: tt.distinct})
			c := authsdk.NewSDKClient(srv.URL)
			_, err := c.Register(ctx, "alice", "pw")
			require.NoError(t, err)

			_, err = c.Login(ctx, tt.username, "nope")
			var apiErr *authsdk.APIError
			require.ErrorAs(t, err, &apiErr)
			require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
			require.Equal(t, tt.description, apiErr.Description)
		})
	}
}

func TestMalformedBodies(t *testing.T) {
	srv := newTestServer(t, serverOptions{})

	for _, body := range []string{"", "{", `{"username":"a","password":"b","admin":true}`, `{"username":"a"} {}`} {
		resp, err := http.Post(srv.URL+"/api/auth/register", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, "body %q", body)
	}

	c := authsdk.NewSDKClient(srv.URL)
	_, err := c.Register(context.Background(), "", "pw")
	requireAPIError(t, err, authsdk.ErrInvalidRequest)
}

func TestTamperedCookieIsAnonymous(t *testing.T) {
	srv := newTestServer(t, serverOptions{})
	ctx := context.Background()
	c := authsdk.NewSDKClient(srv.URL)

	_, err := c.Register(ctx, "alice", "pw")
	require.NoError(t, err)
	_, err = c.Login(ctx, "alice", "pw")
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/auth/status", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: "stepup-session", Value: "forged"})
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	status, err := c.Status(ctx)
	require.NoError(t, err)
	require.True(t, status.IsAuthenticated, "the genuine cookie still works")
}

func TestSessionCookieAttributes(t *testing.T) {
	srv := newTestServer(t, serverOptions{})
	ctx := context.Background()
	c := authsdk.NewSDKClient(srv.URL)
	_, err := c.Register(ctx, "alice", "pw")
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/api/auth/login", "application/json",
		strings.NewReader(`{"username":"alice","password":"pw"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cookies := resp.Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, "stepup-session", cookies[0].Name)
	require.True(t, cookies[0].HttpOnly)
	require.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)
	require.Equal(t, 3600, cookies[0].MaxAge)
}

func TestStepUpIntrospectRejects(t *testing.T) {
	srv := newTestServer(t, serverOptions{})
	ctx := context.Background()
	c := authsdk.NewSDKClient(srv.URL)

	_, err := c.IntrospectStepUp(ctx, "")
	requireAPIError(t, err, authsdk.ErrInvalidToken)

	_, err = c.IntrospectStepUp(ctx, "not.a.jwt")
	requireAPIError(t, err, authsdk.ErrInvalidToken)
}

func TestJWKS(t *testing.T) {
	ctx := context.Background()

	t.Run("EdDSA publishes keys", func(t *testing.T) {
		srv := newTestServer(t, serverOptions{algorithm: jwtx.AlgorithmEdDSA})
		jwks, err := authsdk.NewSDKClient(srv.URL).GetJWKS(ctx)
		require.NoError(t, err)
		require.Len(t, jwks.Keys, 1)
		require.Equal(t, "OKP", jwks.Keys[0].Kty)
		require.Equal(t, "Ed25519", jwks.Keys[0].Crv)
	})

	t.Run("HS256 publishes nothing", func(t *testing.T) {
		srv := newTestServer(t, serverOptions{})
		jwks, err := authsdk.NewSDKClient(srv.URL).GetJWKS(ctx)
		require.NoError(t, err)
		require.NotNil(t, jwks.Keys)
		require.Empty(t, jwks.Keys)
	})
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, serverOptions{})
	ctx := context.Background()
	c := authsdk.NewSDKClient(srv.URL)

	live, err := c.GetLiveness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", live.Status)
	require.Equal(t, "test", live.Version)

	ready, err := c.GetReadiness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", ready.Status)
	require.Equal(t, "ok", ready.Checks.Database)
	require.Equal(t, "ok", ready.Checks.Sessions)
	require.Equal(t, "ok", ready.Checks.Signer)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, serverOptions{})

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/auth/login", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", testOrigin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, testOrigin, resp.Header.Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
}
