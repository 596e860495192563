package authsdk

import "github.com/aussiebroadwan/stepup/pkg/jwtx"

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error            string `json:"error" example:"invalid_request"`
	ErrorDescription string `json:"error_description,omitempty" example:"the request is malformed or missing required fields"`
}

// MessageResponse is returned by endpoints that only confirm an action.
type MessageResponse struct {
	Message string `json:"message" example:"Logout successful"`
}

// CredentialsRequest is the body of register and login.
type CredentialsRequest struct {
	Username string `json:"username" example:"alice"`
	Password string `json:"password" example:"correct-horse-battery-staple"`
}

// UserInfo is the public view of a user.
type UserInfo struct {
	Username   string `json:"username" example:"alice"`
	MFAEnabled bool   `json:"mfa_enabled" example:"false"`
}

// LoginResponse is returned by a successful login.
type LoginResponse struct {
	Message string   `json:"message" example:"User logged in successfully"`
	User    UserInfo `json:"user"`
}

// Auth states reported by the status endpoint.
const (
	StateAnonymous     = "anonymous"
	StateSessionActive = "session_active"
	StateMFAPending    = "mfa_pending"
	StateMFASatisfied  = "mfa_satisfied"
)

// StatusResponse describes the caller's authentication state.
type StatusResponse struct {
	IsAuthenticated bool      `json:"is_authenticated" example:"true"`
	State           string    `json:"state" example:"mfa_pending"`
	User            *UserInfo `json:"user,omitempty"`
}

// MFASetupResponse carries a freshly generated TOTP secret.
type MFASetupResponse struct {
	Secret          string `json:"secret" example:"JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"`
	ProvisioningURI string `json:"provisioning_uri" example:"otpauth://totp/stepup:alice?secret=JBSWY3DPEHPK3PXP&issuer=stepup"`
	QRCode          string `json:"qr_code" example:"data:image/png;base64,iVBORw0KGgo..."`
}

// MFAVerifyRequest carries the 6-digit TOTP code.
type MFAVerifyRequest struct {
	Token string `json:"token" example:"123456"`
}

// MFAVerifyResponse carries the step-up token.
type MFAVerifyResponse struct {
	Message   string `json:"message" example:"2FA successful"`
	Token     string `json:"token" example:"eyJhbGciOiJFZERTQSIs..."`
	ExpiresIn int    `json:"expires_in" example:"3600"`
}

// StepUpClaimsResponse is the introspection view of a step-up token.
type StepUpClaimsResponse struct {
	Active    bool     `json:"active" example:"true"`
	Subject   string   `json:"sub" example:"01JB8Z5P6V9QX3K8T4N2M7R1WC"`
	Username  string   `json:"username" example:"alice"`
	Issuer    string   `json:"iss" example:"stepup-auth"`
	IssuedAt  int64    `json:"iat" example:"1735689600"`
	ExpiresAt int64    `json:"exp" example:"1735693200"`
	JTI       string   `json:"jti" example:"x1b2c3"`
	AMR       []string `json:"amr" example:"pwd,otp,mfa"`
}

// JWKSResponse is the JSON Web Key Set.
type JWKSResponse jwtx.JWKS

// HealthResponse represents the response structure for health check endpoints.
// Used by both /livez and /readyz endpoints (readyz includes additional Checks field).
type HealthResponse struct {
	Status  string        `json:"status" example:"ok"`
	Uptime  string        `json:"uptime,omitempty" example:"1h23m45s"`
	Version string        `json:"version,omitempty" example:"dev"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports the state of each dependency in /readyz.
type HealthChecks struct {
	Database string `json:"database" example:"ok"`
	Sessions string `json:"sessions" example:"ok"`
	Signer   string `json:"signer" example:"ok"`
}
