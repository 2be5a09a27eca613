package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const (
	// pkceVerifierBytes is the number of random bytes for the PKCE code
	// verifier. 32 bytes provides 256 bits of entropy and encodes to a
	// 43-character verifier, the RFC 7636 minimum.
	pkceVerifierBytes = 32

	// stateParamBytes is the number of random bytes for the OAuth state
	// parameter.
	stateParamBytes = 32

	// CodeChallengeMethodS256 is the only challenge method this package
	// produces. Plain is not allowed in OAuth 2.1.
	CodeChallengeMethodS256 = "S256"
)

// PKCEChallenge represents a PKCE (Proof Key for Code Exchange) verifier
// and challenge pair for a single authorization attempt. It is owned by
// the attempt that generated it and discarded after code exchange.
type PKCEChallenge struct {
	// CodeVerifier is the cryptographically random secret. It is never
	// sent in the authorization request, only in the code exchange.
	CodeVerifier string

	// CodeChallenge is the base64url-encoded SHA-256 of the verifier,
	// sent in the authorization request.
	CodeChallenge string

	// CodeChallengeMethod is always "S256".
	CodeChallengeMethod string
}

// GeneratePKCE generates a new PKCE code verifier and challenge.
// The code verifier is 32 random bytes, base64url-encoded without
// padding; the challenge is the S256 hash of the verifier.
//
// The only failure mode is entropy-source exhaustion.
func GeneratePKCE() (*PKCEChallenge, error) {
	verifierBytes := make([]byte, pkceVerifierBytes)
	if _, err := rand.Read(verifierBytes); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes for PKCE: %w", err)
	}

	verifier := base64.RawURLEncoding.EncodeToString(verifierBytes)

	hash := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(hash[:])

	return &PKCEChallenge{
		CodeVerifier:        verifier,
		CodeChallenge:       challenge,
		CodeChallengeMethod: CodeChallengeMethodS256,
	}, nil
}

// GenerateState generates a random state parameter for OAuth.
// The state links the authorization response back to the originating
// request and defends against CSRF.
//
// Returns a base64url-encoded random string.
func GenerateState() (string, error) {
	buf := make([]byte, stateParamBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
