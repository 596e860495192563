package jwtx

// Supported JWT signing algorithms
const (
	AlgorithmHS256 = "HS256"
	AlgorithmEdDSA = "EdDSA"
)

// Signer is our interface for anything that can sign JWTs.
type Signer interface {
	Alg() string
	KID() string
	Sign(Claims) (string, error)
	Validate() error
}

// PublicSigner is a Signer whose verification key can be published in a JWKS.
type PublicSigner interface {
	Signer
	PublicJWK() JWK
}
