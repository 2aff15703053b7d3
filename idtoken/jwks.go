package idtoken

import (
	"crypto/ed25519"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
)

type jwk struct {
	Kty string `json:"kty"`
	Use string `json:"use,omitempty"`
	Alg string `json:"alg,omitempty"`
	Kid string `json:"kid,omitempty"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
	Crv string `json:"crv,omitempty"`
	X   string `json:"x,omitempty"`
}

// JWKS renders the manager's verification key as a JSON Web Key Set, the
// document an issuer serves at its jwks_uri.
func (m *Manager) JWKS() ([]byte, error) {
	if m.config.SigningMethod == MethodHS256 {
		return nil, errors.New("hs256 keys cannot be published")
	}
	key, err := m.verifyKey()
	if err != nil {
		return nil, err
	}

	k := jwk{Use: "sig", Alg: m.method().Alg(), Kid: m.config.KeyID}
	switch pub := key.(type) {
	case *rsa.PublicKey:
		k.Kty = "RSA"
		k.N = base64.RawURLEncoding.EncodeToString(pub.N.Bytes())
		k.E = base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes())
	case ed25519.PublicKey:
		k.Kty = "OKP"
		k.Crv = "Ed25519"
		k.X = base64.RawURLEncoding.EncodeToString(pub)
	default:
		return nil, errors.New("unsupported public key type")
	}

	return json.Marshal(struct {
		Keys []jwk `json:"keys"`
	}{Keys: []jwk{k}})
}
