package jwtx

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Supported signing algorithms.
const (
	AlgorithmRS256 = "RS256"
	AlgorithmES256 = "ES256"
	AlgorithmEdDSA = "EdDSA"
)

// ErrUnsupportedAlgorithm reports an algorithm this build cannot sign with.
var ErrUnsupportedAlgorithm = errors.New("jwtx: unsupported signing algorithm")

// Signer signs JWT claims with a single key.
type Signer interface {
	Alg() string
	KID() string
	Sign(claims jwt.Claims) (string, error)
	PublicJWK() JWK
	PublicKey() any
}

type es256Signer struct {
	kid string
	key *ecdsa.PrivateKey
}

func (s *es256Signer) Alg() string    { return AlgorithmES256 }
func (s *es256Signer) KID() string    { return s.kid }
func (s *es256Signer) PublicKey() any { return &s.key.PublicKey }

func (s *es256Signer) Sign(claims jwt.Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	t.Header["kid"] = s.kid
	return t.SignedString(s.key)
}

func (s *es256Signer) PublicJWK() JWK {
	return NewES256JWK(s.kid, "sig", AlgorithmES256, &s.key.PublicKey)
}

type rs256Signer struct {
	kid string
	key *rsa.PrivateKey
}

func (s *rs256Signer) Alg() string    { return AlgorithmRS256 }
func (s *rs256Signer) KID() string    { return s.kid }
func (s *rs256Signer) PublicKey() any { return &s.key.PublicKey }

func (s *rs256Signer) Sign(claims jwt.Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	t.Header["kid"] = s.kid
	return t.SignedString(s.key)
}

func (s *rs256Signer) PublicJWK() JWK {
	return NewRSAJWK(s.kid, "sig", AlgorithmRS256, &s.key.PublicKey)
}

type eddsaSigner struct {
	kid string
	key ed25519.PrivateKey
	pub ed25519.PublicKey
}

func (s *eddsaSigner) Alg() string    { return AlgorithmEdDSA }
func (s *eddsaSigner) KID() string    { return s.kid }
func (s *eddsaSigner) PublicKey() any { return s.pub }

func (s *eddsaSigner) Sign(claims jwt.Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	t.Header["kid"] = s.kid
	return t.SignedString(s.key)
}

func (s *eddsaSigner) PublicJWK() JWK {
	return NewEd25519JWK(s.kid, "sig", AlgorithmEdDSA, s.pub)
}

// generateSigner creates a fresh keypair for the given algorithm.
func generateSigner(algorithm, kid string, rsaBits int) (Signer, error) {
	switch algorithm {
	case AlgorithmES256:
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("jwtx: generate ES256 key: %w", err)
		}
		return &es256Signer{kid: kid, key: key}, nil
	case AlgorithmRS256:
		if rsaBits < 2048 {
			rsaBits = 2048
		}
		key, err := rsa.GenerateKey(rand.Reader, rsaBits)
		if err != nil {
			return nil, fmt.Errorf("jwtx: generate RS256 key: %w", err)
		}
		return &rs256Signer{kid: kid, key: key}, nil
	case AlgorithmEdDSA:
		pub, key, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("jwtx: generate EdDSA key: %w", err)
		}
		return &eddsaSigner{kid: kid, key: key, pub: pub}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, algorithm)
	}
}
