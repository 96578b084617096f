package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestDeviceCode_EmptyClientID(t *testing.T) {
	f := &DeviceFlow{}
	_, err := f.DeviceCode(context.Background())
	assert.Error(t, err)
}

func TestToken_NilCode(t *testing.T) {
	f := &DeviceFlow{ClientID: "test-client"}
	_, err := f.Token(context.Background(), nil)
	assert.Error(t, err)
}

func TestDeviceCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, deviceCodePath, r.URL.Path)
		assert.Equal(t, "cid", r.URL.Query().Get("client_id"))
		assert.Equal(t, deviceScopes, r.URL.Query().Get("scope"))
		w.Write([]byte(`{"device_code":"dc_test","user_code":"ABCD-1234","verification_uri":"https://github.com/login/device","expires_in":900,"interval":5}`))
	}))
	defer srv.Close()

	f := &DeviceFlow{ClientID: "cid", BaseURL: srv.URL}
	dc, err := f.DeviceCode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "dc_test", dc.DeviceCode)
	assert.Equal(t, "ABCD-1234", dc.UserCode)
	assert.Equal(t, 900, dc.ExpiresInSec)
	assert.Equal(t, 5, dc.Interval)
}

func TestPostForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "cid", r.URL.Query().Get("client_id"))
		if r.URL.Query().Get("fail") != "" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"access_token":"tok","token_type":"bearer"}`))
	}))
	defer srv.Close()

	f := &DeviceFlow{ClientID: "cid", BaseURL: srv.URL}

	var got AccessTokenResponse
	require.NoError(t, postForm(context.Background(), f, accessTokenPath, url.Values{}, &got))
	assert.Equal(t, "tok", got.AccessToken)
	assert.Equal(t, "bearer", got.TokenType)

	err := postForm(context.Background(), f, accessTokenPath, url.Values{"fail": {"1"}}, &got)
	assert.Error(t, err)
}

func tokenServer(t *testing.T, responses ...string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, accessTokenPath, r.URL.Path)
		assert.Equal(t, grantType, r.URL.Query().Get("grant_type"))
		i := int(calls.Add(1)) - 1
		if i >= len(responses) {
			i = len(responses) - 1
		}
		w.Write([]byte(responses[i]))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestToken_PollsUntilAuthorized(t *testing.T) {
	srv, calls := tokenServer(t,
		`{"error":"authorization_pending"}`,
		`{"error":"slow_down"}`,
		`{"access_token":"gho_test123","token_type":"bearer"}`,
	)

	var waits []time.Duration
	f := &DeviceFlow{ClientID: "cid", BaseURL: srv.URL, Sleep: func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}}

	tok, err := f.Token(context.Background(), &DeviceCode{DeviceCode: "dc", ExpiresInSec: 60, Interval: 1})
	require.NoError(t, err)
	assert.Equal(t, "gho_test123", tok.AccessToken)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{time.Second, 6 * time.Second}, waits)
}

func TestToken_Errors(t *testing.T) {
	tests := []struct {
		body string
		want error
	}{
		{`{"error":"access_denied"}`, ErrAccessDenied},
		{`{"error":"expired_token"}`, ErrCodeExpired},
	}
	for _, tt := range tests {
		srv, _ := tokenServer(t, tt.body)
		f := &DeviceFlow{ClientID: "cid", BaseURL: srv.URL, Sleep: noSleep}
		_, err := f.Token(context.Background(), &DeviceCode{DeviceCode: "dc", ExpiresInSec: 60})
		assert.ErrorIs(t, err, tt.want)
	}

	srv, _ := tokenServer(t, `{"error":"unsupported_grant_type","error_description":"bad grant"}`)
	f := &DeviceFlow{ClientID: "cid", BaseURL: srv.URL, Sleep: noSleep}
	_, err := f.Token(context.Background(), &DeviceCode{DeviceCode: "dc", ExpiresInSec: 60})
	assert.ErrorContains(t, err, "bad grant")
}

func TestToken_EmptyToken(t *testing.T) {
	srv, _ := tokenServer(t, `{}`)
	f := &DeviceFlow{ClientID: "cid", BaseURL: srv.URL, Sleep: noSleep}
	_, err := f.Token(context.Background(), &DeviceCode{DeviceCode: "dc", ExpiresInSec: 60})
	assert.Error(t, err)
}

func TestAccessTokenResponse_Unmarshal(t *testing.T) {
	raw := `{"access_token":"gho_test123","token_type":"bearer","scope":""}`
	var atr AccessTokenResponse
	require.NoError(t, json.Unmarshal([]byte(raw), &atr))
	assert.Equal(t, "gho_test123", atr.AccessToken)
	assert.Equal(t, "bearer", atr.TokenType)
}

func TestWait_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, wait(ctx, time.Hour), context.Canceled)
}
