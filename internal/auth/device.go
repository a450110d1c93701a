// Package auth implements the OAuth device-code login used by `glint
// login`. The flow is plumbing around the core: it only produces an
// access token for the active profile.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Endpoints identifies the authorization server.
type Endpoints struct {
	DeviceAuthURL string
	TokenURL      string
	ClientID      string
	Scope         string
}

// DeviceCode is the server's response to a device authorization request.
type DeviceCode struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
}

// Token is the final credential.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type tokenError struct {
	Code string `json:"error"`
}

// Client drives the device flow against one authorization server.
type Client struct {
	endpoints  Endpoints
	httpClient *http.Client
}

func NewClient(endpoints Endpoints) *Client {
	return &Client{
		endpoints:  endpoints,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// RequestDeviceCode starts the flow. The caller shows UserCode and
// VerificationURI to the user, then calls PollToken.
func (c *Client) RequestDeviceCode(ctx context.Context) (*DeviceCode, error) {
	form := url.Values{
		"client_id": {c.endpoints.ClientID},
		"scope":     {c.endpoints.Scope},
	}
	var code DeviceCode
	if err := c.postForm(ctx, c.endpoints.DeviceAuthURL, form, &code); err != nil {
		return nil, fmt.Errorf("device authorization request failed: %w", err)
	}
	if code.Interval <= 0 {
		code.Interval = 5
	}
	return &code, nil
}

// PollToken polls the token endpoint until the user approves, the code
// expires, or ctx is cancelled. Honors authorization_pending and
// slow_down per RFC 8628.
func (c *Client) PollToken(ctx context.Context, code *DeviceCode) (*Token, error) {
	interval := time.Duration(code.Interval) * time.Second
	deadline := time.Now().Add(time.Duration(code.ExpiresIn) * time.Second)

	form := url.Values{
		"client_id":   {c.endpoints.ClientID},
		"device_code": {code.DeviceCode},
		"grant_type":  {"urn:ietf:params:oauth:grant-type:device_code"},
	}

	for {
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("device code expired before approval")
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}

		var token Token
		err := c.postForm(ctx, c.endpoints.TokenURL, form, &token)
		if err == nil && token.AccessToken != "" {
			return &token, nil
		}

		var pending *pendingError
		if errors.As(err, &pending) {
			switch pending.code {
			case "authorization_pending":
				continue
			case "slow_down":
				interval += 5 * time.Second
				continue
			default:
				return nil, fmt.Errorf("authorization failed: %s", pending.code)
			}
		}
		return nil, err
	}
}

// pendingError carries the OAuth error code from a non-200 token response.
type pendingError struct {
	code string
}

func (e *pendingError) Error() string {
	return "oauth error: " + e.code
}

func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var oauthErr tokenError
		if json.NewDecoder(resp.Body).Decode(&oauthErr) == nil && oauthErr.Code != "" {
			return &pendingError{code: oauthErr.Code}
		}
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, endpoint)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
