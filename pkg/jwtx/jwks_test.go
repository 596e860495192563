package jwtx

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJWK_PEM_Ed25519(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	pemStr, err := NewEd25519JWK("kid-1", "sig", AlgorithmEdDSA, pub).PEM()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(pemStr, "-----BEGIN PUBLIC KEY-----"))

	block, _ := pem.Decode([]byte(pemStr))
	require.NotNil(t, block)

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	require.NoError(t, err)
	require.True(t, pub.Equal(parsed))
}

func TestJWK_PEM_Unsupported(t *testing.T) {
	_, err := JWK{Kty: "RSA", Kid: "k"}.PEM()
	require.Error(t, err)

	_, err = JWK{Kty: "OKP", Crv: "X25519", Kid: "k"}.PEM()
	require.Error(t, err)
}

func TestThumbprint_RFC8037Vector(t *testing.T) {
	// RFC 8037 Appendix A.3
	x := "11qYAYKxCrfVS_7TyWQHOg7hcvPapiMlrwIaaPcHURo"
	pub, err := parseJWKToKey(JWK{Kty: "OKP", Crv: "Ed25519", Kid: "k", X: x})
	require.NoError(t, err)
	require.Equal(t, "kPrK_qmxVWaYVA9wwBF6Iuo3vVzz7TxHCTwXBygrS4k", Thumbprint(pub))
}

func TestKeySet(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	ks := NewKeySet()
	require.False(t, ks.IsReady())
	require.NotNil(t, ks.PublicJWKS().Keys)

	jwk := NewEd25519JWK(Thumbprint(pub), "sig", AlgorithmEdDSA, pub)
	require.NoError(t, ks.AddJWK(jwk))
	require.NoError(t, ks.AddJWK(jwk))
	require.True(t, ks.IsReady())
	require.Len(t, ks.PublicJWKS().Keys, 1)

	got, err := ks.Get(jwk.Kid)
	require.NoError(t, err)
	require.True(t, pub.Equal(got))

	_, err = ks.Get("missing")
	require.ErrorIs(t, err, ErrNoKey)

	require.Error(t, ks.AddJWK(JWK{Kty: "OKP", Crv: "Ed25519", Kid: "bad", X: "AAAA"}))
	require.Error(t, ks.AddJWK(JWK{Kty: "OKP", Crv: "Ed25519", X: jwk.X}))
}
