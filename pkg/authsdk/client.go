package authsdk

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"
)

// SDKClient talks to the authentication service as a browser would: the
// session cookie lives in its cookie jar, and the step-up token from the last
// successful 2FA verification is remembered.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client

	mu     sync.RWMutex
	stepUp string
}

// NewSDKClient creates a client with an empty cookie jar.
func NewSDKClient(baseURL string) *SDKClient {
	jar, _ := cookiejar.New(nil) // never fails with nil options
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
			Jar:     jar,
		},
	}
}

// StepUpToken returns the token from the last successful VerifyMFA.
func (c *SDKClient) StepUpToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stepUp
}

func (c *SDKClient) setStepUp(token string) {
	c.mu.Lock()
	c.stepUp = token
	c.mu.Unlock()
}

// Register creates a new user.
func (c *SDKClient) Register(ctx context.Context, username, password string) (*MessageResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/auth/register",
		CredentialsRequest{Username: username, Password: password}, "")
	if err != nil {
		return nil, err
	}

	var out MessageResponse
	if err := decodeJSON(resp, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login authenticates with a password. On success the session cookie is
// stored in the client's jar.
func (c *SDKClient) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/auth/login",
		CredentialsRequest{Username: username, Password: password}, "")
	if err != nil {
		return nil, err
	}

	var out LoginResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	c.setStepUp("")
	return &out, nil
}

// Status reports the current authentication state. The remembered step-up
// token, if any, is presented so the server can report mfa_satisfied.
func (c *SDKClient) Status(ctx context.Context) (*StatusResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/auth/status", nil, c.StepUpToken())
	if err != nil {
		return nil, err
	}

	var out StatusResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout ends the session.
func (c *SDKClient) Logout(ctx context.Context) (*MessageResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/auth/logout", nil, "")
	if err != nil {
		return nil, err
	}

	var out MessageResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	c.setStepUp("")
	return &out, nil
}

// SetupMFA generates a TOTP secret for the logged-in user.
func (c *SDKClient) SetupMFA(ctx context.Context) (*MFASetupResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/auth/2fa/setup", nil, "")
	if err != nil {
		return nil, err
	}

	var out MFASetupResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyMFA submits a TOTP code and returns the step-up token.
func (c *SDKClient) VerifyMFA(ctx context.Context, code string) (*MFAVerifyResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/auth/2fa/verify", MFAVerifyRequest{Token: code}, "")
	if err != nil {
		return nil, err
	}

	var out MFAVerifyResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	c.setStepUp(out.Token)
	return &out, nil
}

// ResetMFA removes the TOTP secret of the logged-in user.
func (c *SDKClient) ResetMFA(ctx context.Context) (*MessageResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/auth/2fa/reset", nil, "")
	if err != nil {
		return nil, err
	}

	var out MessageResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	c.setStepUp("")
	return &out, nil
}

// IntrospectStepUp asks the service to verify a step-up token.
func (c *SDKClient) IntrospectStepUp(ctx context.Context, token string) (*StepUpClaimsResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/auth/2fa/stepup", nil, token)
	if err != nil {
		return nil, err
	}

	var out StepUpClaimsResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetJWKS retrieves the JSON Web Key Set for step-up token verification.
func (c *SDKClient) GetJWKS(ctx context.Context) (*JWKSResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/.well-known/jwks.json", nil, "")
	if err != nil {
		return nil, err
	}

	var jwks JWKSResponse
	if err := decodeJSON(resp, &jwks, http.StatusOK); err != nil {
		return nil, err
	}
	return &jwks, nil
}

// GetLiveness checks if the service is alive.
func (c *SDKClient) GetLiveness(ctx context.Context) (*HealthResponse, error) {
	return c.health(ctx, "/livez")
}

// GetReadiness checks if the service is ready.
func (c *SDKClient) GetReadiness(ctx context.Context) (*HealthResponse, error) {
	return c.health(ctx, "/readyz")
}

func (c *SDKClient) health(ctx context.Context, path string) (*HealthResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}

	var health HealthResponse
	if err := decodeJSON(resp, &health, http.StatusOK); err != nil {
		return nil, err
	}
	return &health, nil
}
