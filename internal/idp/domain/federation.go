package domain

import "time"

// Federation types.
const (
	FederationTypeIdP    = "idp"
	FederationTypeDevice = "device"
)

// Federation is a trusted external signer for the JWT-bearer grant:
// either a federation partner IdP or a provisioned device credential.
// Assertions are matched to a federation by their iss claim.
type Federation struct {
	ID       string
	TenantID string
	Issuer   string
	Type     string

	// JWKSURI is where the signer's verification keys live. Fetched over
	// HTTP and cached; fetch failures are request-time conditions, not
	// server errors.
	JWKSURI string

	// ProviderID identifies the federation towards the user-finding
	// delegate. Defaults to the issuer when empty.
	ProviderID string

	// SubjectClaim names the assertion claim mapped to the local user.
	// Empty means the type default: device_id for devices, sub otherwise.
	SubjectClaim string

	CreatedAt time.Time
}

// ResolveProviderID returns the provider identifier for delegate lookups.
func (f Federation) ResolveProviderID() string {
	if f.ProviderID != "" {
		return f.ProviderID
	}
	return f.Issuer
}

// ResolveSubjectClaim returns the claim name carrying the subject.
func (f Federation) ResolveSubjectClaim() string {
	if f.SubjectClaim != "" {
		return f.SubjectClaim
	}
	if f.Type == FederationTypeDevice {
		return "device_id"
	}
	return "sub"
}
