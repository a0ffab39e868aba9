package jwtx_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/relayid/grantd/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func testAccessClaims(ttl time.Duration) jwtx.AccessClaims {
	return jwtx.NewAccessClaims(
		"https://idp.test",
		"user-123",
		"tenant-1",
		"client-1",
		[]string{"openid", "profile"},
		[]string{"client-1"},
		ttl,
		time.Now().UTC(),
	)
}

func TestNewEphemeralKeyManager_AllAlgorithms(t *testing.T) {
	tests := []struct {
		name       string
		algorithms []string
		rsaBits    int
	}{
		{"ES256", []string{jwtx.AlgorithmES256}, 0},
		{"RS256 with 2048 bits", []string{jwtx.AlgorithmRS256}, 2048},
		{"EdDSA", []string{jwtx.AlgorithmEdDSA}, 0},
		{"multiple algorithms", []string{jwtx.AlgorithmES256, jwtx.AlgorithmEdDSA}, 0},
		{"default is ES256", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
				Algorithms: tt.algorithms,
				NumKeys:    1,
				RSABits:    tt.rsaBits,
			})
			require.NoError(t, err)
			require.NotNil(t, km)

			algorithms := tt.algorithms
			if len(algorithms) == 0 {
				algorithms = []string{jwtx.AlgorithmES256}
			}
			for _, alg := range algorithms {
				signer, err := km.SignerFor(alg)
				require.NoError(t, err)
				require.Equal(t, alg, signer.Alg())
				require.NotEmpty(t, signer.KID())
			}
		})
	}
}

func TestKeyManager_SignAndVerifyRoundTrip(t *testing.T) {
	algorithms := []string{jwtx.AlgorithmES256, jwtx.AlgorithmRS256, jwtx.AlgorithmEdDSA}

	for _, alg := range algorithms {
		t.Run(alg, func(t *testing.T) {
			km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
				Algorithms: []string{alg},
				NumKeys:    1,
			})
			require.NoError(t, err)

			signer, err := km.SignerFor(alg)
			require.NoError(t, err)

			claims := testAccessClaims(5 * time.Minute)
			token, err := signer.Sign(claims)
			require.NoError(t, err)
			require.NotEmpty(t, token)

			var parsed jwtx.AccessClaims
			result, err := jwt.ParseWithClaims(token, &parsed, km.Keyfunc())
			require.NoError(t, err)
			require.True(t, result.Valid)

			require.Equal(t, claims.Issuer, parsed.Issuer)
			require.Equal(t, claims.Subject, parsed.Subject)
			require.Equal(t, "openid profile", parsed.Scope)
			require.Equal(t, claims.ClientID, parsed.ClientID)
			require.Equal(t, claims.TenantID, parsed.TenantID)
			require.Equal(t, claims.ID, parsed.ID)
		})
	}
}

func TestKeyManager_SignerForUnknownAlgorithm(t *testing.T) {
	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Algorithms: []string{jwtx.AlgorithmES256},
		NumKeys:    1,
	})
	require.NoError(t, err)

	_, err = km.SignerFor(jwtx.AlgorithmRS256)
	require.ErrorIs(t, err, jwtx.ErrUnsupportedAlgorithm)

	_, err = km.SignerFor("HS256")
	require.ErrorIs(t, err, jwtx.ErrUnsupportedAlgorithm)
}

func TestNewEphemeralKeyManager_UnsupportedAlgorithm(t *testing.T) {
	_, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Algorithms: []string{"HS256"},
	})
	require.ErrorIs(t, err, jwtx.ErrUnsupportedAlgorithm)
}

func TestKeyManager_KeyfuncRejectsUnknownKid(t *testing.T) {
	signing, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Algorithms: []string{jwtx.AlgorithmES256},
		NumKeys:    1,
	})
	require.NoError(t, err)

	// A second manager with its own keys: its kids are unknown to the first.
	other, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Algorithms: []string{jwtx.AlgorithmES256},
		NumKeys:    1,
	})
	require.NoError(t, err)

	signer, err := other.SignerFor(jwtx.AlgorithmES256)
	require.NoError(t, err)

	token, err := signer.Sign(testAccessClaims(5 * time.Minute))
	require.NoError(t, err)

	_, err = jwt.Parse(token, signing.Keyfunc())
	require.Error(t, err)
}

func TestKeyManager_PublicJWKS(t *testing.T) {
	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Algorithms: []string{jwtx.AlgorithmES256, jwtx.AlgorithmEdDSA},
		NumKeys:    2,
	})
	require.NoError(t, err)

	jwks := km.PublicJWKS()
	require.Len(t, jwks.Keys, 4, "two keys per algorithm")

	kids := make(map[string]bool)
	for _, key := range jwks.Keys {
		require.NotEmpty(t, key.Kid)
		require.False(t, kids[key.Kid], "duplicate kid: %s", key.Kid)
		kids[key.Kid] = true

		require.Equal(t, "sig", key.Use)
		switch key.Alg {
		case jwtx.AlgorithmES256:
			require.Equal(t, "EC", key.Kty)
			require.Equal(t, "P-256", key.Crv)
			require.NotEmpty(t, key.X)
			require.NotEmpty(t, key.Y)
		case jwtx.AlgorithmEdDSA:
			require.Equal(t, "OKP", key.Kty)
			require.Equal(t, "Ed25519", key.Crv)
			require.NotEmpty(t, key.X)
		default:
			t.Fatalf("unexpected algorithm in JWKS: %s", key.Alg)
		}
	}
}

func TestKeyManager_NumKeysBounds(t *testing.T) {
	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Algorithms: []string{jwtx.AlgorithmEdDSA},
		NumKeys:    0, // defaults to 2
	})
	require.NoError(t, err)
	require.Len(t, km.PublicJWKS().Keys, 2)

	km, err = jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Algorithms: []string{jwtx.AlgorithmEdDSA},
		NumKeys:    15, // capped at 10
	})
	require.NoError(t, err)
	require.Len(t, km.PublicJWKS().Keys, 10)
}
