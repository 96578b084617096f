// Package auth implements the GitHub device flow and stores credentials in
// the OS keychain.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mchmarny/permitctl/pkg/net"
)

const (
	DefaultGitHubURL = "https://github.com"

	deviceCodePath  = "/login/device/code"
	accessTokenPath = "/login/oauth/access_token"
	grantType       = "urn:ietf:params:oauth:grant-type:device_code"

	// requirement documents may live in private repositories
	deviceScopes = "repo"

	slowDownStep = 5 * time.Second
)

var (
	ErrAccessDenied = errors.New("access denied by user")
	ErrCodeExpired  = errors.New("device code expired")
)

type DeviceCode struct {
	// Device verification code used when polling for the token.
	DeviceCode string `json:"device_code,omitempty"`
	// Code the user enters in the browser.
	UserCode string `json:"user_code,omitempty"`
	// Where the user enters the user code.
	VerificationURL string `json:"verification_uri,omitempty"`
	// Seconds before both codes expire.
	ExpiresInSec int `json:"expires_in,omitempty"`
	// Minimum seconds between token requests.
	Interval int `json:"interval,omitempty"`
}

type AccessTokenResponse struct {
	AccessToken string `json:"access_token,omitempty"`
	TokenType   string `json:"token_type,omitempty"`
	Scope       string `json:"scope,omitempty"`
	Error       string `json:"error,omitempty"`
	Description string `json:"error_description,omitempty"`
}

// DeviceFlow requests GitHub access tokens for a CLI without a browser redirect.
type DeviceFlow struct {
	ClientID string
	BaseURL  string
	Client   *http.Client
	Sleep    func(ctx context.Context, d time.Duration) error
}

func (f *DeviceFlow) endpoint(path string) string {
	base := f.BaseURL
	if base == "" {
		base = DefaultGitHubURL
	}
	return strings.TrimRight(base, "/") + path
}

func (f *DeviceFlow) client() (*http.Client, error) {
	if f.Client != nil {
		return f.Client, nil
	}
	return net.GetHTTPClient()
}

// postForm sends form as query parameters and decodes the JSON reply into target.
func postForm[T any](ctx context.Context, f *DeviceFlow, path string, form url.Values, target *T) error {
	if f.ClientID == "" {
		return errors.New("clientID is required")
	}
	c, err := f.client()
	if err != nil {
		return fmt.Errorf("failed to get http client: %w", err)
	}
	form.Set("client_id", f.ClientID)
	u := f.endpoint(path) + "?" + form.Encode()
	if err := net.PostJSON(ctx, c, u, struct{}{}, target); err != nil {
		return fmt.Errorf("failed to call %s: %w", path, err)
	}
	return nil
}

// DeviceCode starts the flow.
func (f *DeviceFlow) DeviceCode(ctx context.Context) (*DeviceCode, error) {
	var dc DeviceCode
	if err := postForm(ctx, f, deviceCodePath, url.Values{"scope": {deviceScopes}}, &dc); err != nil {
		return nil, err
	}
	if dc.DeviceCode == "" {
		return nil, errors.New("device code response is empty")
	}
	return &dc, nil
}

// Token polls until the user authorizes the device, the code expires or ctx ends.
func (f *DeviceFlow) Token(ctx context.Context, code *DeviceCode) (*AccessTokenResponse, error) {
	if code == nil {
		return nil, errors.New("device code is nil")
	}

	sleep := f.Sleep
	if sleep == nil {
		sleep = wait
	}
	interval := time.Duration(max(code.Interval, 1)) * time.Second
	ctx, cancel := context.WithTimeout(ctx, time.Duration(max(code.ExpiresInSec, 1))*time.Second)
	defer cancel()

	form := url.Values{"device_code": {code.DeviceCode}, "grant_type": {grantType}}
	for {
		var t AccessTokenResponse
		if err := postForm(ctx, f, accessTokenPath, form, &t); err != nil {
			return nil, err
		}

		switch t.Error {
		case "":
			if t.AccessToken == "" {
				return nil, errors.New("access token is empty")
			}
			return &t, nil
		case "authorization_pending":
		case "slow_down":
			interval += slowDownStep
		case "expired_token":
			return nil, ErrCodeExpired
		case "access_denied":
			return nil, ErrAccessDenied
		default:
			return nil, fmt.Errorf("device flow error %s: %s", t.Error, t.Description)
		}

		if err := sleep(ctx, interval); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, ErrCodeExpired
			}
			return nil, err
		}
	}
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
