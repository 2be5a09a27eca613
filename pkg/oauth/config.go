package oauth

import "fmt"

// Config describes the OAuth endpoints and client identity for one
// provider. All flows in this package are for public clients: there is
// no client secret, and the authorization code flow always uses PKCE.
type Config struct {
	// ClientID is the OAuth client identifier.
	ClientID string `yaml:"client_id"`

	// AuthorizationEndpoint is the URL of the authorization endpoint.
	AuthorizationEndpoint string `yaml:"authorization_endpoint"`

	// TokenEndpoint is the URL of the token endpoint.
	TokenEndpoint string `yaml:"token_endpoint"`

	// RedirectURI is the registered redirect URI. When the full
	// Authorize flow is used it is superseded by the callback server's
	// ephemeral loopback address.
	RedirectURI string `yaml:"redirect_uri"`

	// Scope is the optional space-separated scope string.
	Scope string `yaml:"scope,omitempty"`

	// DeviceAuthorizationEndpoint is the optional RFC 8628 device
	// authorization endpoint. Empty means the provider does not support
	// the device flow.
	DeviceAuthorizationEndpoint string `yaml:"device_authorization_endpoint,omitempty"`
}

// SupportsDeviceFlow reports whether a device authorization endpoint is
// configured.
func (c *Config) SupportsDeviceFlow() bool {
	return c.DeviceAuthorizationEndpoint != ""
}

// GitHubConfig returns a configuration for GitHub OAuth apps.
func GitHubConfig(clientID, scope string) Config {
	return Config{
		ClientID:                    clientID,
		AuthorizationEndpoint:       "https://github.com/login/oauth/authorize",
		TokenEndpoint:               "https://github.com/login/oauth/access_token",
		RedirectURI:                 "http://127.0.0.1:8080/callback",
		Scope:                       scope,
		DeviceAuthorizationEndpoint: "https://github.com/login/device/code",
	}
}

// GoogleConfig returns a configuration for Google OAuth clients.
func GoogleConfig(clientID, scope string) Config {
	return Config{
		ClientID:                    clientID,
		AuthorizationEndpoint:       "https://accounts.google.com/o/oauth2/v2/auth",
		TokenEndpoint:               "https://oauth2.googleapis.com/token",
		RedirectURI:                 "http://127.0.0.1:8080/callback",
		Scope:                       scope,
		DeviceAuthorizationEndpoint: "https://oauth2.googleapis.com/device/code",
	}
}

// MicrosoftConfig returns a configuration for Microsoft identity
// platform applications. Pass "common" as the tenant for multi-tenant
// apps.
func MicrosoftConfig(clientID, tenant, scope string) Config {
	base := fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0", tenant)
	return Config{
		ClientID:                    clientID,
		AuthorizationEndpoint:       base + "/authorize",
		TokenEndpoint:               base + "/token",
		RedirectURI:                 "http://127.0.0.1:8080/callback",
		Scope:                       scope,
		DeviceAuthorizationEndpoint: base + "/devicecode",
	}
}

// GitLabConfig returns a configuration for GitLab applications.
// baseURL selects a self-hosted instance; empty means gitlab.com.
// GitLab does not support the device authorization flow.
func GitLabConfig(clientID, scope, baseURL string) Config {
	if baseURL == "" {
		baseURL = "https://gitlab.com"
	}
	return Config{
		ClientID:              clientID,
		AuthorizationEndpoint: baseURL + "/oauth/authorize",
		TokenEndpoint:         baseURL + "/oauth/token",
		RedirectURI:           "http://127.0.0.1:8080/callback",
		Scope:                 scope,
	}
}
