package domain

import "time"

// User is a tenant-scoped resource owner. Profile holds the OIDC claim
// values (name, email, phone_number, ...) keyed by standard claim name;
// the token factory reads from it when assembling ID tokens.
type User struct {
	ID           string         `json:"id"`
	TenantID     string         `json:"tenant_id"`
	Username     string         `json:"username"`
	PasswordHash string         `json:"-"`
	Profile      map[string]any `json:"profile,omitempty"`

	// UserCodeSecret is the TOTP secret backing CIBA user_code checks.
	// Empty when the user has no code registered.
	UserCodeSecret string `json:"-"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// Exists reports whether this is a real user rather than the zero value.
// Grant services use the zero User as the "no resource owner" sentinel.
func (u User) Exists() bool { return u.ID != "" }

// Claim returns the profile value for a claim name.
func (u User) Claim(name string) (any, bool) {
	v, ok := u.Profile[name]
	return v, ok
}
