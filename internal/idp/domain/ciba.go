package domain

import "time"

// CibaGrantStatus is the backchannel grant state machine. requested is
// the only non-terminal state; authorized, denied and (lazily evaluated)
// expiry are terminal.
type CibaGrantStatus string

const (
	CibaStatusRequested  CibaGrantStatus = "requested"
	CibaStatusAuthorized CibaGrantStatus = "authorized"
	CibaStatusDenied     CibaGrantStatus = "denied"
)

// CIBA defaults per the backchannel profile.
const (
	// DefaultCibaInterval is the polling interval handed to clients when
	// the tenant does not configure one.
	DefaultCibaInterval = 3 * time.Second

	// DefaultCibaExpiry bounds how long an auth_req_id stays redeemable
	// when the client did not send requested_expiry.
	DefaultCibaExpiry = 300 * time.Second
)

// BackchannelAuthRequest is the persisted backchannel authentication
// request: what the client asked for before any user decision exists.
// It lives as long as its grant: consumed with it, or reclaimed by
// housekeeping once ExpiresAt passes.
type BackchannelAuthRequest struct {
	ID              string
	TenantID        string
	ClientID        string
	Scopes          []string
	LoginHint       string
	LoginHintToken  string
	IDTokenHint     string
	BindingMessage  string
	UserCode        string
	RequestedExpiry time.Duration
	ExpiresAt       time.Time
	CreatedAt       time.Time
}

// CibaGrant binds an auth_req_id to a pending-or-decided authorization.
// It is created in the requested state, transitions exactly once on the
// user's decision, and is consumed (deleted) when redeemed for tokens.
type CibaGrant struct {
	ID        string
	TenantID  string
	AuthReqID string
	ClientID  string

	// RequestID names the originating BackchannelAuthRequest so
	// consuming the grant can reclaim the request row with it.
	RequestID string

	Status    CibaGrantStatus
	Interval  time.Duration
	Grant     AuthorizationGrant
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsExpired reports whether the grant has passed its requested expiry.
// Expiry is evaluated lazily wherever the grant is read; nothing marks
// rows expired in the background.
func (g CibaGrant) IsExpired(now time.Time) bool {
	return now.After(g.ExpiresAt)
}
