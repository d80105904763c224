package oidc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// defaultRequestTimeout bounds provider calls when the caller's
// context has no deadline of its own.
const defaultRequestTimeout = 30 * time.Second

func withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, defaultRequestTimeout)
}

// tokenRequest is the JSON body sent to the token endpoint. The
// provider expects a JSON document, not a form post.
type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret,omitempty"`
	CodeVerifier string `json:"code_verifier,omitempty"`
	Code         string `json:"code,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Audience     string `json:"audience,omitempty"`
	RedirectURI  string `json:"redirect_uri,omitempty"`
}

func postTokenEndpoint(ctx context.Context, client *http.Client, domain string, path string, body interface{}) ([]byte, int, error) {
	const op = "oidc.postTokenEndpoint"
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	data, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: unable to marshal request body: %w", op, err)
	}
	u := fmt.Sprintf("https://%s%s", domain, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("%s: unable to create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: request failed: %w", op, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%s: unable to read response: %w", op, err)
	}
	return respBody, resp.StatusCode, nil
}

// ExchangeCode redeems an authorization code at the token endpoint.
// Exactly one of the transaction's code verifier or the config's
// client secret must be present: a public client proves possession
// with PKCE, a confidential client authenticates with its secret, and
// holding both (or neither) is a setup error caught before any network
// call.
func ExchangeCode(ctx context.Context, client *http.Client, c *Config, tx *Transaction, code string) (*SessionInfo, error) {
	const op = "oidc.ExchangeCode"
	if client == nil {
		return nil, fmt.Errorf("%s: http client is nil: %w", op, ErrNilParameter)
	}
	if c == nil {
		return nil, fmt.Errorf("%s: client config is nil: %w", op, ErrNilParameter)
	}
	if tx == nil {
		return nil, fmt.Errorf("%s: transaction is nil: %w", op, ErrNilParameter)
	}
	if code == "" {
		return nil, fmt.Errorf("%s: authorization code is empty: %w", op, ErrInvalidParameter)
	}
	switch {
	case tx.CodeVerifier == "" && c.ClientSecret == "":
		return nil, fmt.Errorf("%s: neither a code verifier nor a client secret is available: %w", op, ErrMissingCredential)
	case tx.CodeVerifier != "" && c.ClientSecret != "":
		return nil, fmt.Errorf("%s: both a code verifier and a client secret are present: %w", op, ErrDuplicateCredential)
	}

	redirectURI := tx.RedirectURI
	if redirectURI == "" {
		redirectURI = c.RedirectURL
	}
	body := tokenRequest{
		GrantType:    "authorization_code",
		ClientID:     c.ClientID,
		ClientSecret: string(c.ClientSecret),
		CodeVerifier: tx.CodeVerifier,
		Code:         code,
		Audience:     c.Audience,
		RedirectURI:  redirectURI,
	}
	respBody, status, err := postTokenEndpoint(ctx, client, c.Domain, "/oauth/token", body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%s: token endpoint returned %d: %s: %w", op, status, respBody, ErrLoginFailed)
	}
	info, err := unmarshalSessionInfo(respBody)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return info, nil
}

// RefreshGrant exchanges a refresh token for a fresh session. The
// result is shaped as an authorization response so it can flow through
// the same handling as a redirect or web message delivery.
func RefreshGrant(ctx context.Context, client *http.Client, c *Config, refreshToken RefreshToken) (*AuthorizationResponse, error) {
	const op = "oidc.RefreshGrant"
	if client == nil {
		return nil, fmt.Errorf("%s: http client is nil: %w", op, ErrNilParameter)
	}
	if c == nil {
		return nil, fmt.Errorf("%s: client config is nil: %w", op, ErrNilParameter)
	}
	if refreshToken == "" {
		return nil, fmt.Errorf("%s: refresh token is empty: %w", op, ErrInvalidParameter)
	}
	body := tokenRequest{
		GrantType:    "refresh_token",
		ClientID:     c.ClientID,
		ClientSecret: string(c.ClientSecret),
		RefreshToken: string(refreshToken),
		Audience:     c.Audience,
	}
	respBody, status, err := postTokenEndpoint(ctx, client, c.Domain, "/oauth/token", body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%s: token endpoint returned %d: %s: %w", op, status, respBody, ErrLoginFailed)
	}
	info, err := unmarshalSessionInfo(respBody)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	// The refresh grant usually omits the refresh token; keep using
	// the one we had.
	if info.RefreshToken == "" {
		info.RefreshToken = refreshToken
	}
	return &AuthorizationResponse{SessionInfo: *info}, nil
}

// revokeRequest is the JSON body sent to the revocation endpoint.
type revokeRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret,omitempty"`
	Token        string `json:"token"`
	Audience     string `json:"audience,omitempty"`
}

// RevokeRefreshToken asks the provider to revoke a refresh token.
func RevokeRefreshToken(ctx context.Context, client *http.Client, c *Config, refreshToken RefreshToken) error {
	const op = "oidc.RevokeRefreshToken"
	if client == nil {
		return fmt.Errorf("%s: http client is nil: %w", op, ErrNilParameter)
	}
	if c == nil {
		return fmt.Errorf("%s: client config is nil: %w", op, ErrNilParameter)
	}
	if refreshToken == "" {
		return fmt.Errorf("%s: refresh token is empty: %w", op, ErrInvalidParameter)
	}
	body := revokeRequest{
		ClientID:     c.ClientID,
		ClientSecret: string(c.ClientSecret),
		Token:        string(refreshToken),
		Audience:     c.Audience,
	}
	respBody, status, err := postTokenEndpoint(ctx, client, c.Domain, "/oauth/revoke", body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("%s: revocation endpoint returned %d: %s: %w", op, status, respBody, ErrLoginFailed)
	}
	return nil
}

// FetchUserInfo retrieves the user profile from the /userinfo endpoint
// using the access token as a bearer credential.
func FetchUserInfo(ctx context.Context, client *http.Client, domain string, t AccessToken) (*Identity, error) {
	const op = "oidc.FetchUserInfo"
	if client == nil {
		return nil, fmt.Errorf("%s: http client is nil: %w", op, ErrNilParameter)
	}
	if domain == "" {
		return nil, fmt.Errorf("%s: domain is empty: %w", op, ErrInvalidParameter)
	}
	if t == "" {
		return nil, fmt.Errorf("%s: access token is empty: %w", op, ErrInvalidParameter)
	}
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	u := fmt.Sprintf("https://%s/userinfo", domain)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+string(t))
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: userinfo request failed: %w", op, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to read userinfo response: %w", op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: userinfo endpoint returned %d: %w", op, resp.StatusCode, ErrUserInfoFailed)
	}
	var claims map[string]interface{}
	if err := json.Unmarshal(respBody, &claims); err != nil {
		return nil, fmt.Errorf("%s: unable to parse userinfo response: %w", op, err)
	}
	return ProjectClaims(claims), nil
}
