// Package auth holds the OpenAPI document for the authentication service
// and registers it with swag so http-swagger can serve it at /swagger/.
package auth

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "AussieBroadWAN Team",
            "url": "https://github.com/aussiebroadwan/stepup"
        },
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/auth/register": {
            "post": {
                "tags": ["Auth"],
                "summary": "Register a user",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/authsdk.CredentialsRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/authsdk.MessageResponse"}},
                    "400": {"description": "Malformed body or missing fields", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}},
                    "409": {"description": "Username taken", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}},
                    "500": {"description": "Internal server error", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}}
                }
            }
        },
        "/api/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Log in with a password",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/authsdk.CredentialsRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/authsdk.LoginResponse"}},
                    "400": {"description": "Malformed body", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}},
                    "401": {"description": "Invalid username or password", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}}
                }
            }
        },
        "/api/auth/status": {
            "get": {
                "tags": ["Auth"],
                "summary": "Authentication status",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/authsdk.StatusResponse"}}
                }
            }
        },
        "/api/auth/logout": {
            "post": {
                "tags": ["Auth"],
                "summary": "Log out",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/authsdk.MessageResponse"}},
                    "401": {"description": "No active session", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}}
                }
            }
        },
        "/api/auth/2fa/setup": {
            "post": {
                "tags": ["2FA"],
                "summary": "Enroll in TOTP",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/authsdk.MFASetupResponse"}},
                    "401": {"description": "No active session", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}},
                    "500": {"description": "Internal server error", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}}
                }
            }
        },
        "/api/auth/2fa/verify": {
            "post": {
                "tags": ["2FA"],
                "summary": "Verify a TOTP code",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/authsdk.MFAVerifyRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/authsdk.MFAVerifyResponse"}},
                    "400": {"description": "Invalid 2FA token", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}},
                    "401": {"description": "No active session or 2FA not set up", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}}
                }
            }
        },
        "/api/auth/2fa/reset": {
            "post": {
                "tags": ["2FA"],
                "summary": "Remove TOTP",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/authsdk.MessageResponse"}},
                    "401": {"description": "No active session", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}}
                }
            }
        },
        "/api/auth/2fa/stepup": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["2FA"],
                "summary": "Introspect a step-up token",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/authsdk.StepUpClaimsResponse"}},
                    "401": {"description": "Missing, invalid or expired token", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}}
                }
            }
        },
        "/.well-known/jwks.json": {
            "get": {
                "tags": ["well-known"],
                "summary": "Get JWKS",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "The JSON Web Key Set", "schema": {"$ref": "#/definitions/authsdk.JWKSResponse"}}
                }
            }
        },
        "/livez": {
            "get": {
                "tags": ["Health"],
                "summary": "Liveness probe",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "status, uptime, version", "schema": {"$ref": "#/definitions/authsdk.HealthResponse"}}
                }
            }
        },
        "/readyz": {
            "get": {
                "tags": ["Health"],
                "summary": "Readiness probe",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "ready", "schema": {"$ref": "#/definitions/authsdk.HealthResponse"}},
                    "503": {"description": "not ready", "schema": {"$ref": "#/definitions/authsdk.HealthResponse"}}
                }
            }
        }
    },
    "definitions": {
        "authsdk.CredentialsRequest": {
            "type": "object",
            "properties": {
                "username": {"type": "string", "example": "alice"},
                "password": {"type": "string", "example": "correct-horse-battery-staple"}
            }
        },
        "authsdk.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string", "example": "invalid_request"},
                "error_description": {"type": "string"}
            }
        },
        "authsdk.MessageResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string", "example": "Logout successful"}
            }
        },
        "authsdk.UserInfo": {
            "type": "object",
            "properties": {
                "username": {"type": "string", "example": "alice"},
                "mfa_enabled": {"type": "boolean"}
            }
        },
        "authsdk.LoginResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string", "example": "User logged in successfully"},
                "user": {"$ref": "#/definitions/authsdk.UserInfo"}
            }
        },
        "authsdk.StatusResponse": {
            "type": "object",
            "properties": {
                "is_authenticated": {"type": "boolean"},
                "state": {"type": "string", "enum": ["anonymous", "session_active", "mfa_pending", "mfa_satisfied"]},
                "user": {"$ref": "#/definitions/authsdk.UserInfo"}
            }
        },
        "authsdk.MFASetupResponse": {
            "type": "object",
            "properties": {
                "secret": {"type": "string"},
                "provisioning_uri": {"type": "string"},
                "qr_code": {"type": "string"}
            }
        },
        "authsdk.MFAVerifyRequest": {
            "type": "object",
            "properties": {
                "token": {"type": "string", "example": "123456"}
            }
        },
        "authsdk.MFAVerifyResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string", "example": "2FA successful"},
                "token": {"type": "string"},
                "expires_in": {"type": "integer", "example": 3600}
            }
        },
        "authsdk.StepUpClaimsResponse": {
            "type": "object",
            "properties": {
                "active": {"type": "boolean"},
                "sub": {"type": "string"},
                "username": {"type": "string"},
                "iss": {"type": "string"},
                "iat": {"type": "integer"},
                "exp": {"type": "integer"},
                "jti": {"type": "string"},
                "amr": {"type": "array", "items": {"type": "string"}}
            }
        },
        "authsdk.JWKSResponse": {
            "type": "object",
            "properties": {
                "keys": {"type": "array", "items": {"type": "object"}}
            }
        },
        "authsdk.HealthChecks": {
            "type": "object",
            "properties": {
                "database": {"type": "string"},
                "sessions": {"type": "string"},
                "signer": {"type": "string"}
            }
        },
        "authsdk.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "example": "ok"},
                "uptime": {"type": "string"},
                "version": {"type": "string"},
                "checks": {"$ref": "#/definitions/authsdk.HealthChecks"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "Step-up token. Format: \"Bearer {token}\".",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "0.1.0",
	Host:             "localhost:5000",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "StepUp Authentication Service API",
	Description:      "Password login with server-side sessions, an optional TOTP second factor and short-lived step-up tokens.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
