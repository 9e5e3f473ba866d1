package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPProvider exchanges a long-lived service key for a short-lived bearer
// token at an identity endpoint.
type HTTPProvider struct {
	tokenURL   string
	serviceKey string
	httpClient *http.Client
}

// NewHTTPProvider builds a provider against tokenURL. A nil client gets a
// default with a 10s timeout; token exchange is a small single round trip.
func NewHTTPProvider(tokenURL, serviceKey string, httpClient *http.Client) *HTTPProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPProvider{
		tokenURL:   tokenURL,
		serviceKey: serviceKey,
		httpClient: httpClient,
	}
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expiresIn"` // seconds
}

// Fetch requests a fresh token. 401/403 map to *Error so the caller can
// distinguish "not authenticated" from transient transport failures.
func (p *HTTPProvider) Fetch(ctx context.Context) (Credential, error) {
	body, _ := json.Marshal(map[string]string{"key": p.serviceKey})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, bytes.NewReader(body))
	if err != nil {
		return Credential{}, fmt.Errorf("auth: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Credential{}, &Error{Reason: "token endpoint unreachable", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return Credential{}, &Error{Reason: fmt.Sprintf("token endpoint rejected service key (%d)", resp.StatusCode)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Credential{}, &Error{Reason: fmt.Sprintf("token endpoint returned %d: %s", resp.StatusCode, raw)}
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return Credential{}, &Error{Reason: "decode token response", Err: err}
	}
	if tr.Token == "" {
		return Credential{}, &Error{Reason: "token endpoint returned empty token"}
	}

	return Credential{
		Token:     tr.Token,
		ExpiresIn: time.Duration(tr.ExpiresIn) * time.Second,
	}, nil
}

// StaticProvider returns a fixed token. Used in development against local
// upstreams that do not check auth.
type StaticProvider struct {
	TokenValue string
}

func (p StaticProvider) Fetch(_ context.Context) (Credential, error) {
	if p.TokenValue == "" {
		return Credential{}, &Error{Reason: "no static token configured"}
	}
	return Credential{Token: p.TokenValue, ExpiresIn: time.Hour}, nil
}
