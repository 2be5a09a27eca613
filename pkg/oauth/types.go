package oauth

import (
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Token represents an OAuth access token with associated metadata.
//
// Tokens are keyed in storage by an application-chosen string key, by
// convention "<domain>:<principal>" (for example "github.com:octocat").
// The key is stable across refreshes so the refresh coordinator can
// serialize work per key.
type Token struct {
	// AccessToken is the bearer token used for authorization.
	AccessToken string `json:"access_token"`

	// RefreshToken is used to obtain new access tokens (optional).
	RefreshToken string `json:"refresh_token,omitempty"`

	// TokenType is typically "Bearer".
	TokenType string `json:"token_type"`

	// ExpiresIn is the token lifetime in seconds as reported by the server.
	ExpiresIn int64 `json:"expires_in,omitempty"`

	// ExpiresAt is the absolute expiration time in Unix seconds, computed
	// once at issuance as now+ExpiresIn. Zero means the token never expires.
	ExpiresAt int64 `json:"expires_at,omitempty"`

	// Scope is the granted scope(s), space-separated.
	Scope string `json:"scope,omitempty"`
}

// IsExpired reports whether the token has expired.
// Tokens without an expiration time never expire.
func (t *Token) IsExpired() bool {
	if t.ExpiresAt == 0 {
		return false
	}
	return time.Now().Unix() >= t.ExpiresAt
}

// SetExpiresAtFromExpiresIn computes and sets ExpiresAt from ExpiresIn.
// It is a no-op when the server did not report a lifetime or when
// ExpiresAt is already set.
func (t *Token) SetExpiresAtFromExpiresIn() {
	if t.ExpiresIn > 0 && t.ExpiresAt == 0 {
		t.ExpiresAt = time.Now().Unix() + t.ExpiresIn
	}
}

// Scopes returns the scope as a slice of individual scopes.
func (t *Token) Scopes() []string {
	if t.Scope == "" {
		return nil
	}
	return strings.Fields(t.Scope)
}

// ToOAuth2Token converts the Token to an oauth2.Token for compatibility
// with golang.org/x/oauth2 consumers.
func (t *Token) ToOAuth2Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
	}
	if t.ExpiresAt > 0 {
		tok.Expiry = time.Unix(t.ExpiresAt, 0)
	}
	return tok
}

// Session holds the transient state of one authorization attempt.
// It is saved keyed by the state parameter when the flow starts and
// deleted exactly once at successful code exchange. Abandoned sessions
// are left for the storage backend's TTL or garbage-collection policy.
type Session struct {
	// State is the unguessable correlation token round-tripped through
	// the authorization redirect.
	State string `json:"state"`

	// CodeVerifier is the PKCE verifier bound to this attempt.
	CodeVerifier string `json:"code_verifier"`

	// CreatedAt is when the attempt started, in Unix seconds.
	CreatedAt int64 `json:"created_at"`

	// Domain is an optional namespace hint used by storage backends to
	// partition sessions (for example "github.com").
	Domain string `json:"domain,omitempty"`
}

// NewSession creates a session for an authorization attempt.
func NewSession(state, codeVerifier string) *Session {
	return &Session{
		State:        state,
		CodeVerifier: codeVerifier,
		CreatedAt:    time.Now().Unix(),
	}
}

// NewSessionWithDomain creates a session carrying a domain namespace hint.
func NewSessionWithDomain(state, codeVerifier, domain string) *Session {
	s := NewSession(state, codeVerifier)
	s.Domain = domain
	return s
}

// DeviceAuthorization is the response to a device authorization request
// (RFC 8628 section 3.2). It lives only for the duration of one
// device-flow attempt.
type DeviceAuthorization struct {
	// DeviceCode is the code the client polls the token endpoint with.
	DeviceCode string `json:"device_code"`

	// UserCode is the short code the user enters at the verification URI.
	UserCode string `json:"user_code"`

	// VerificationURI is where the user approves the request.
	VerificationURI string `json:"verification_uri"`

	// VerificationURIComplete optionally embeds the user code in the URI.
	VerificationURIComplete string `json:"verification_uri_complete,omitempty"`

	// ExpiresIn is the lifetime of the device code in seconds.
	ExpiresIn int64 `json:"expires_in"`

	// Interval is the minimum polling interval in seconds. Servers that
	// omit it get the RFC 8628 default of 5 seconds.
	Interval int64 `json:"interval,omitempty"`
}

// PollInterval returns the polling interval as a duration, applying the
// RFC 8628 default when the server omitted it.
func (d *DeviceAuthorization) PollInterval() time.Duration {
	if d.Interval <= 0 {
		return DefaultDeviceInterval
	}
	return time.Duration(d.Interval) * time.Second
}
