package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"latchkey/internal/browser"
)

// Client drives the OAuth flows for one provider configuration: the
// PKCE authorization code flow against a local callback server, the
// RFC 8628 device flow, and refresh token grants. It holds no token
// state of its own; credentials live in the configured Store.
type Client struct {
	config      Config
	store       Store
	httpClient  *http.Client
	logger      *slog.Logger
	openBrowser func(string) error

	// callbackTimeout bounds how long Authorize waits for the redirect.
	callbackTimeout time.Duration

	// sleep is swappable for tests of the device poll loop.
	sleep func(context.Context, time.Duration) error
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithCallbackTimeout bounds how long Authorize waits for the browser
// redirect.
func WithCallbackTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.callbackTimeout = d
	}
}

// WithBrowserOpener overrides how the authorization URL is opened.
// Useful in tests and in environments without a display.
func WithBrowserOpener(open func(url string) error) ClientOption {
	return func(c *Client) {
		c.openBrowser = open
	}
}

// NewClient creates an OAuth client for the given provider config.
// Sessions and tokens are persisted through store.
func NewClient(config Config, store Store, opts ...ClientOption) *Client {
	c := &Client{
		config:          config,
		store:           store,
		httpClient:      &http.Client{Timeout: 30 * time.Second},
		logger:          slog.Default(),
		openBrowser:     browser.Open,
		callbackTimeout: DefaultCallbackTimeout,
		sleep:           sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the provider configuration the client was built with.
func (c *Client) Config() Config {
	return c.config
}

// StartAuthFlow begins an authorization attempt: it generates a PKCE
// pair and state, persists the session, and returns the authorization
// URL to open along with the state. redirectURI overrides the configured
// redirect URI when non-empty (the full Authorize flow passes the
// callback server's ephemeral address here).
func (c *Client) StartAuthFlow(redirectURI string) (authURL, state string, err error) {
	pkce, err := GeneratePKCE()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate PKCE challenge: %w", err)
	}

	state, err = GenerateState()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate state: %w", err)
	}

	session := NewSession(state, pkce.CodeVerifier)
	if err := c.store.SaveSession(state, session); err != nil {
		return "", "", fmt.Errorf("failed to save session: %w", err)
	}

	if redirectURI == "" {
		redirectURI = c.config.RedirectURI
	}

	authURL = c.buildAuthorizationURL(redirectURI, state, pkce)

	c.logger.Debug("started authorization flow",
		"authorization_endpoint", c.config.AuthorizationEndpoint,
		"redirect_uri", redirectURI)

	return authURL, state, nil
}

// buildAuthorizationURL assembles the authorization request URL with
// PKCE parameters.
func (c *Client) buildAuthorizationURL(redirectURI, state string, pkce *PKCEChallenge) string {
	params := url.Values{}
	params.Set("response_type", "code")
	params.Set("client_id", c.config.ClientID)
	params.Set("redirect_uri", redirectURI)
	params.Set("state", state)
	params.Set("code_challenge", pkce.CodeChallenge)
	params.Set("code_challenge_method", pkce.CodeChallengeMethod)
	if c.config.Scope != "" {
		params.Set("scope", c.config.Scope)
	}

	sep := "?"
	if strings.Contains(c.config.AuthorizationEndpoint, "?") {
		sep = "&"
	}
	return c.config.AuthorizationEndpoint + sep + params.Encode()
}

// ExchangeCode exchanges an authorization code for a token using the
// configured redirect URI. The state must match a session created by
// StartAuthFlow; an unknown state fails with ErrInvalidState. The
// session is deleted after a successful exchange so a state cannot be
// replayed.
func (c *Client) ExchangeCode(ctx context.Context, code, state string) (*Token, error) {
	return c.exchangeCode(ctx, code, state, c.config.RedirectURI)
}

// exchangeCode is ExchangeCode with an explicit redirect URI; Authorize
// passes the callback server's ephemeral address so it matches the one
// sent in the authorization request.
func (c *Client) exchangeCode(ctx context.Context, code, state, redirectURI string) (*Token, error) {
	session, err := c.store.GetSession(state)
	if err != nil {
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}
	if session == nil {
		c.logger.Warn("code exchange with unknown state",
			"event", "SECURITY_AUDIT")
		return nil, ErrInvalidState
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", c.config.ClientID)
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	form.Set("code_verifier", session.CodeVerifier)

	token, err := c.doTokenRequest(ctx, form)
	if err != nil {
		return nil, err
	}

	if err := c.store.DeleteSession(state); err != nil {
		c.logger.Warn("failed to delete session after code exchange",
			"error", err)
	}

	c.logger.Info("authorization code exchanged",
		"token_type", token.TokenType,
		"expires_in", token.ExpiresIn)

	return token, nil
}

// Authorize runs the complete authorization code flow: start a loopback
// callback server, open the browser at the authorization URL, wait for
// the redirect, verify state, and exchange the code. The wait is
// bounded by the callback timeout (or a tighter ctx deadline).
func (c *Client) Authorize(ctx context.Context) (*Token, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callbackTimeout)
	defer cancel()

	server := NewCallbackServer()
	redirectURI, err := server.Start(ctx)
	if err != nil {
		return nil, err
	}
	defer server.Stop()

	authURL, state, err := c.StartAuthFlow(redirectURI)
	if err != nil {
		return nil, err
	}

	c.logger.Info("opening browser for authorization", "url", authURL)
	if err := c.openBrowser(authURL); err != nil {
		// Not fatal: the user can open the URL by hand.
		c.logger.Warn("failed to open browser", "error", err)
	}

	result, err := server.WaitForCallback(ctx)
	if err != nil {
		return nil, err
	}

	if result.State != state {
		c.logger.Warn("callback state mismatch",
			"event", "SECURITY_AUDIT")
		return nil, ErrInvalidState
	}

	return c.exchangeCode(ctx, result.Code, result.State, redirectURI)
}

// RefreshToken exchanges a refresh token for a new access token. The
// returned token keeps the old refresh token when the server did not
// rotate it.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*Token, error) {
	if refreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", c.config.ClientID)
	form.Set("refresh_token", refreshToken)
	if c.config.Scope != "" {
		form.Set("scope", c.config.Scope)
	}

	token, err := c.doTokenRequest(ctx, form)
	if err != nil {
		return nil, err
	}

	if token.RefreshToken == "" {
		token.RefreshToken = refreshToken
	}

	c.logger.Debug("token refreshed", "expires_in", token.ExpiresIn)

	return token, nil
}

// doTokenRequest POSTs a form to the token endpoint and decodes the
// response. OAuth error responses become *ServerError; a success
// response without an access token is a MissingFieldError.
func (c *Client) doTokenRequest(ctx context.Context, form url.Values) (*Token, error) {
	body, status, err := c.postForm(ctx, c.config.TokenEndpoint, form)
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK {
		return nil, decodeServerError(status, body)
	}

	var token Token
	if err := decodeJSON(body, &token); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if token.AccessToken == "" {
		return nil, &MissingFieldError{Field: "access_token"}
	}

	token.SetExpiresAtFromExpiresIn()

	return &token, nil
}

// postForm POSTs a form-encoded body and returns the raw response body
// and status code. Bodies are capped at 1 MiB.
func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request to %s failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response body: %w", err)
	}

	return body, resp.StatusCode, nil
}

// decodeJSON unmarshals body into v.
func decodeJSON(body []byte, v any) error {
	return json.Unmarshal(body, v)
}

// decodeServerError turns a non-200 token endpoint response into a
// *ServerError, falling back to the HTTP status when the body is not a
// standard OAuth error document.
func decodeServerError(status int, body []byte) error {
	var oauthErr struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &oauthErr); err == nil && oauthErr.Error != "" {
		return &ServerError{
			Code:        oauthErr.Error,
			Description: oauthErr.ErrorDescription,
		}
	}
	return &ServerError{
		Code:        fmt.Sprintf("http_%d", status),
		Description: strings.TrimSpace(string(body)),
	}
}

// GetToken returns the stored token for key, or ErrTokenNotFound.
func (c *Client) GetToken(key string) (*Token, error) {
	token, err := c.store.GetToken(key)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, ErrTokenNotFound
	}
	return token, nil
}

// SaveToken persists a token under key.
func (c *Client) SaveToken(key string, token *Token) error {
	return c.store.SaveToken(key, token)
}

// DeleteToken removes the token for key.
func (c *Client) DeleteToken(key string) error {
	return c.store.DeleteToken(key)
}

// sleepContext sleeps for d or until ctx is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
