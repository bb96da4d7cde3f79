package domain

import "time"

// Identity is the minimal user record the client consumes from the identity
// provider. Attribute lookup failures degrade to Subject only.
type Identity struct {
	Subject string            `json:"subject"`
	Email   string            `json:"email,omitempty"`
	Name    string            `json:"name,omitempty"`
	Claims  map[string]string `json:"claims,omitempty"`
}

// Token is the slice of an identity-provider session the client trusts:
// the raw bearer credential and its embedded expiry. The expiry is ground
// truth; any cached authenticated flag is only a cache of it.
type Token struct {
	Raw       string
	Subject   string
	ExpiresAt time.Time
}

func (t Token) ExpiredAt(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// Credentials are opaque sign-in inputs forwarded to the identity provider.
type Credentials struct {
	Username string
	Password string
}

type SessionEvent string

const (
	// SessionWarning precedes expiry and mutates no auth state.
	SessionWarning SessionEvent = "warning"
	// SessionExpired is sticky until a successful refresh or sign-in.
	SessionExpired SessionEvent = "expired"
	// SessionAuthenticated fires on successful sign-in or refresh.
	SessionAuthenticated SessionEvent = "authenticated"
	// SessionSignedOut fires after local sign-out completes.
	SessionSignedOut SessionEvent = "signed_out"
)

// SessionSnapshot is a read-only view of session state for presentation.
type SessionSnapshot struct {
	Authenticated  bool
	Identity       *Identity
	LastActivityAt time.Time
	Expired        bool
	Warning        bool
}
