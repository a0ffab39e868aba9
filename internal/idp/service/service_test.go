package service

import (
	"context"
	"testing"
	"time"

	"github.com/relayid/grantd/internal/idp/domain"
	"github.com/relayid/grantd/internal/idp/store"
	"github.com/relayid/grantd/internal/idp/store/drivers/sqlite"
	"github.com/relayid/grantd/pkg/cryptox"
	"github.com/relayid/grantd/pkg/idx"
	"github.com/relayid/grantd/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

const testClientSecret = "test-client-secret"

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.ApplyMigrations())
	return st
}

func newTestFactory(t *testing.T) *TokenFactory {
	t.Helper()

	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Algorithms: []string{jwtx.AlgorithmES256},
		NumKeys:    1,
	})
	require.NoError(t, err)

	return &TokenFactory{KeyManager: km}
}

// newTokenService builds a TokenService with every grant strategy
// registered, the way the application wires it.
func newTokenService(st store.Store, factory *TokenFactory) *TokenService {
	consolidator := GrantConsolidator{}
	claims := ClaimsResolver{}

	registry := NewRegistry(
		&AuthorizationCodeGrantService{Store: st, Factory: factory, Consolidator: consolidator},
		&RefreshTokenGrantService{Store: st, Factory: factory},
		&ClientCredentialsGrantService{Store: st, Factory: factory},
		&PasswordGrantService{
			Store:        st,
			Factory:      factory,
			Verifier:     &StorePasswordVerifier{Store: st},
			Claims:       claims,
			Consolidator: consolidator,
		},
		&JWTBearerGrantService{
			Store:        st,
			Factory:      factory,
			Finder:       &StoreFederatedUserFinder{Store: st},
			Claims:       claims,
			Consolidator: consolidator,
		},
		&CibaGrantService{Store: st, Factory: factory, Consolidator: consolidator},
	)

	return &TokenService{Store: st, Registry: registry}
}

func seedTenant(t *testing.T, st store.Store, mutate ...func(*domain.Tenant)) domain.Tenant {
	t.Helper()

	now := time.Now().UTC()
	tenant := domain.Tenant{
		ID:     idx.New().String(),
		Issuer: "https://idp.test/" + idx.New().String(),
		SupportedClaims: []string{
			"name", "given_name", "family_name", "email", "email_verified",
			"phone_number", "address", "website", "verified_claims",
		},
		SigningAlgorithm: jwtx.AlgorithmES256,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	for _, m := range mutate {
		m(&tenant)
	}

	require.NoError(t, st.Tenants().CreateTenant(context.Background(), tenant))
	return tenant
}

func seedClient(t *testing.T, st store.Store, tenant domain.Tenant, mutate ...func(*domain.Client)) domain.Client {
	t.Helper()

	secretHash, err := cryptox.HashSecret(testClientSecret)
	require.NoError(t, err)

	now := time.Now().UTC()
	client := domain.Client{
		ID:         idx.New().String(),
		TenantID:   tenant.ID,
		Name:       "test-client",
		SecretHash: secretHash,
		Scopes:     []string{"openid", "profile", "email", "api:read"},
		RedirectURIs: []string{
			"https://app.test/callback",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, m := range mutate {
		m(&client)
	}

	require.NoError(t, st.Clients().CreateClient(context.Background(), client))
	return client
}

func seedUser(t *testing.T, st store.Store, tenant domain.Tenant, mutate ...func(*domain.User)) domain.User {
	t.Helper()

	passwordHash, err := cryptox.HashSecret("correct-password")
	require.NoError(t, err)

	now := time.Now().UTC()
	user := domain.User{
		ID:           idx.New().String(),
		TenantID:     tenant.ID,
		Username:     "alice-" + idx.New().String(),
		PasswordHash: passwordHash,
		Profile: map[string]any{
			"name":         "Alice Example",
			"given_name":   "Alice",
			"family_name":  "Example",
			"email":        "alice@example.test",
			"phone_number": "+61400000000",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, m := range mutate {
		m(&user)
	}

	require.NoError(t, st.Users().CreateUser(context.Background(), user))
	return user
}

// issueCode runs the authorization endpoint flow and returns the
// plaintext code ready for redemption.
func issueCode(t *testing.T, st store.Store, tenant domain.Tenant, client domain.Client, user domain.User, scope string) IssuedCode {
	t.Helper()

	svc := &AuthorizeService{Store: st, Claims: ClaimsResolver{}}
	issued, err := svc.IssueCode(context.Background(), AuthorizeParams{
		TenantID:    tenant.ID,
		ClientID:    client.ID,
		UserID:      user.ID,
		RedirectURI: "https://app.test/callback",
		Scope:       scope,
		Nonce:       "test-nonce",
		Authentication: domain.Authentication{
			Time:    time.Now(),
			Methods: []string{"pwd"},
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, issued.Code)
	return issued
}
