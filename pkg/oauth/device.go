package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"
)

const (
	// DefaultDeviceInterval is the RFC 8628 default polling interval,
	// used when the server omits one.
	DefaultDeviceInterval = 5 * time.Second

	// slowDownIncrement is added to the polling interval on every
	// slow_down response (RFC 8628 section 3.5).
	slowDownIncrement = 5 * time.Second

	deviceGrantType = "urn:ietf:params:oauth:grant-type:device_code"
)

// RequestDeviceAuthorization starts a device authorization flow
// (RFC 8628). The caller must display UserCode and VerificationURI to
// the user, then call PollDeviceToken.
func (c *Client) RequestDeviceAuthorization(ctx context.Context) (*DeviceAuthorization, error) {
	if !c.config.SupportsDeviceFlow() {
		return nil, errors.New("provider has no device authorization endpoint")
	}

	form := url.Values{}
	form.Set("client_id", c.config.ClientID)
	if c.config.Scope != "" {
		form.Set("scope", c.config.Scope)
	}

	auth, err := c.doDeviceAuthRequest(ctx, form)
	if err != nil {
		return nil, err
	}

	c.logger.Info("device authorization started",
		"verification_uri", auth.VerificationURI,
		"expires_in", auth.ExpiresIn,
		"interval", auth.Interval)

	return auth, nil
}

// PollDeviceToken polls the token endpoint until the user approves or
// the flow reaches a terminal state. It honors the server's polling
// interval, adds five seconds on every slow_down response, and gives up
// with ErrDeviceCodeExpired when the device code's lifetime runs out.
//
// Terminal failures: ErrAuthorizationDenied when the user declined,
// ErrDeviceCodeExpired on expiry, ctx.Err on cancellation, and
// *ServerError for any other protocol error.
func (c *Client) PollDeviceToken(ctx context.Context, auth *DeviceAuthorization) (*Token, error) {
	deadline := time.Now().Add(time.Duration(auth.ExpiresIn) * time.Second)
	interval := auth.PollInterval()

	form := url.Values{}
	form.Set("grant_type", deviceGrantType)
	form.Set("client_id", c.config.ClientID)
	form.Set("device_code", auth.DeviceCode)

	for {
		// The lifetime is authoritative even while the server keeps
		// answering authorization_pending.
		if !time.Now().Before(deadline) {
			return nil, ErrDeviceCodeExpired
		}

		if err := c.sleep(ctx, interval); err != nil {
			return nil, err
		}

		token, err := c.doTokenRequest(ctx, form)
		if err == nil {
			c.logger.Info("device authorization approved")
			return token, nil
		}

		se, ok := AsServerError(err)
		if !ok {
			return nil, err
		}

		switch se.Code {
		case "authorization_pending":
			continue
		case "slow_down":
			interval += slowDownIncrement
			c.logger.Debug("server requested slower polling",
				"interval", interval)
		case "access_denied":
			return nil, ErrAuthorizationDenied
		case "expired_token":
			return nil, ErrDeviceCodeExpired
		default:
			return nil, se
		}
	}
}

// AuthorizeDevice runs the device flow end to end: request the device
// authorization, hand the user prompt to display, and poll until a
// terminal state. display is called once with the authorization details
// before polling starts; nil means no prompt is shown.
func (c *Client) AuthorizeDevice(ctx context.Context, display func(*DeviceAuthorization)) (*Token, error) {
	auth, err := c.RequestDeviceAuthorization(ctx)
	if err != nil {
		return nil, err
	}

	if display != nil {
		display(auth)
	}

	return c.PollDeviceToken(ctx, auth)
}

// doDeviceAuthRequest POSTs to the device authorization endpoint and
// decodes the response.
func (c *Client) doDeviceAuthRequest(ctx context.Context, form url.Values) (*DeviceAuthorization, error) {
	body, status, err := c.postForm(ctx, c.config.DeviceAuthorizationEndpoint, form)
	if err != nil {
		return nil, err
	}

	if status != 200 {
		return nil, decodeServerError(status, body)
	}

	var auth DeviceAuthorization
	if err := decodeJSON(body, &auth); err != nil {
		return nil, fmt.Errorf("failed to decode device authorization response: %w", err)
	}
	if auth.DeviceCode == "" {
		return nil, &MissingFieldError{Field: "device_code"}
	}
	if auth.UserCode == "" {
		return nil, &MissingFieldError{Field: "user_code"}
	}
	if auth.VerificationURI == "" {
		return nil, &MissingFieldError{Field: "verification_uri"}
	}

	return &auth, nil
}
