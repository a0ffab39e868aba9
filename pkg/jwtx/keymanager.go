package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	mrand "math/rand/v2"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// KeyManager holds the server's ephemeral signing keys, grouped by
// algorithm. Tenants select an algorithm through configuration; the
// manager distributes signing across that algorithm's keys.
//
// Keys exist only in memory: a restart invalidates outstanding access
// tokens, which is acceptable because refresh tokens are opaque and
// validated against storage, not signatures.
type KeyManager struct {
	mu      sync.RWMutex
	signers map[string][]Signer // algorithm -> keys
	byKid   map[string]Signer
}

// KeyManagerOptions configures key generation.
type KeyManagerOptions struct {
	// Algorithms lists the signing algorithms to generate keys for.
	// Defaults to ES256 only.
	Algorithms []string

	// NumKeys is how many keys to generate per algorithm (default 2,
	// capped at 10). Multiple keys distribute signing load.
	NumKeys int

	// RSABits is the RSA key size for RS256 (default 2048).
	RSABits int
}

// NewEphemeralKeyManager generates fresh in-memory keypairs.
func NewEphemeralKeyManager(opts KeyManagerOptions) (*KeyManager, error) {
	algorithms := opts.Algorithms
	if len(algorithms) == 0 {
		algorithms = []string{AlgorithmES256}
	}

	numKeys := opts.NumKeys
	if numKeys <= 0 {
		numKeys = 2
	}
	if numKeys > 10 {
		numKeys = 10
	}

	km := &KeyManager{
		signers: make(map[string][]Signer, len(algorithms)),
		byKid:   make(map[string]Signer),
	}

	for _, alg := range algorithms {
		for i := 0; i < numKeys; i++ {
			kid, err := randomKeyID()
			if err != nil {
				return nil, err
			}
			signer, err := generateSigner(alg, kid, opts.RSABits)
			if err != nil {
				return nil, err
			}
			km.signers[alg] = append(km.signers[alg], signer)
			km.byKid[kid] = signer
		}
	}

	return km, nil
}

// SignerFor returns a signer for the given algorithm, chosen randomly to
// distribute load. Returns ErrUnsupportedAlgorithm when no key exists for
// the algorithm, which callers surface as a server misconfiguration.
func (km *KeyManager) SignerFor(algorithm string) (Signer, error) {
	km.mu.RLock()
	defer km.mu.RUnlock()

	signers := km.signers[algorithm]
	if len(signers) == 0 {
		return nil, fmt.Errorf("%w: no signing key for %s", ErrUnsupportedAlgorithm, algorithm)
	}
	return signers[mrand.IntN(len(signers))], nil
}

// Keyfunc returns a jwt.Keyfunc resolving verification keys by kid.
// Used by tests and the introspection path to verify our own tokens.
func (km *KeyManager) Keyfunc() jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)

		km.mu.RLock()
		defer km.mu.RUnlock()

		signer, ok := km.byKid[kid]
		if !ok {
			return nil, fmt.Errorf("jwtx: unknown kid %q", kid)
		}
		return signer.PublicKey(), nil
	}
}

// PublicJWKS returns the public half of every key for JWKS publishing.
func (km *KeyManager) PublicJWKS() JWKS {
	km.mu.RLock()
	defer km.mu.RUnlock()

	var set JWKS
	for _, signers := range km.signers {
		for _, s := range signers {
			set.Keys = append(set.Keys, s.PublicJWK())
		}
	}
	return set
}

func randomKeyID() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("jwtx: generate key id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b[:]), nil
}
