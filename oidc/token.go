package oidc

import (
	"encoding/json"
	"fmt"
)

// AccessToken is an OAuth access_token.
type AccessToken string

// RedactedAccessToken is the redacted string or json for an access_token.
const RedactedAccessToken = "[REDACTED: access_token]"

// String will redact the token.
func (t AccessToken) String() string {
	return RedactedAccessToken
}

// MarshalJSON will redact the token.
func (t AccessToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedAccessToken)
}

// IDToken is an OIDC id_token.
type IDToken string

// RedactedIDToken is the redacted string or json for an id_token.
const RedactedIDToken = "[REDACTED: id_token]"

// String will redact the token.
func (t IDToken) String() string {
	return RedactedIDToken
}

// MarshalJSON will redact the token.
func (t IDToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedIDToken)
}

// Claims retrieves the IDToken payload claims without verifying the
// token's signature. See UnmarshalClaims for the trust model.
func (t IDToken) Claims(claims interface{}) error {
	const op = "IDToken.Claims"
	if len(t) == 0 {
		return fmt.Errorf("%s: id_token is empty: %w", op, ErrInvalidParameter)
	}
	if claims == nil {
		return fmt.Errorf("%s: claims interface is nil: %w", op, ErrNilParameter)
	}
	return UnmarshalClaims(string(t), claims)
}

// RefreshToken is an OAuth refresh_token.
type RefreshToken string

// RedactedRefreshToken is the redacted string or json for a refresh_token.
const RedactedRefreshToken = "[REDACTED: refresh_token]"

// String will redact the token.
func (t RefreshToken) String() string {
	return RedactedRefreshToken
}

// MarshalJSON will redact the token.
func (t RefreshToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedRefreshToken)
}

// SessionInfo is the bundle of tokens making up an authenticated
// session, as returned by the provider's token endpoint or assembled
// from an implicit-grant response. Provider-specific response fields
// that are not part of the standard shape are collected in Metadata.
type SessionInfo struct {
	AccessToken  AccessToken  `json:"access_token,omitempty"`
	IDToken      IDToken      `json:"id_token,omitempty"`
	RefreshToken RefreshToken `json:"refresh_token,omitempty"`
	TokenType    string       `json:"token_type,omitempty"`
	Scope        string       `json:"scope,omitempty"`

	// ExpiresIn is the session lifetime in seconds.
	ExpiresIn int `json:"expires_in,omitempty"`

	// Metadata holds any additional fields the provider returned.
	Metadata map[string]json.RawMessage `json:"-"`
}

// sessionInfoFields are the keys the SessionInfo struct captures
// itself; everything else ends up in Metadata.
var sessionInfoFields = []string{
	"access_token", "id_token", "refresh_token", "token_type", "scope", "expires_in",
}

// unmarshalSessionInfo decodes a token endpoint response body,
// collecting unknown fields into Metadata.
func unmarshalSessionInfo(data []byte) (*SessionInfo, error) {
	const op = "oidc.unmarshalSessionInfo"
	var s struct {
		AccessToken  string `json:"access_token"`
		IDToken      string `json:"id_token"`
		RefreshToken string `json:"refresh_token"`
		TokenType    string `json:"token_type"`
		Scope        string `json:"scope"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%s: unable to parse token response: %w", op, err)
	}
	var extra map[string]json.RawMessage
	if err := json.Unmarshal(data, &extra); err != nil {
		return nil, fmt.Errorf("%s: unable to parse token response: %w", op, err)
	}
	for _, k := range sessionInfoFields {
		delete(extra, k)
	}
	if len(extra) == 0 {
		extra = nil
	}
	return &SessionInfo{
		AccessToken:  AccessToken(s.AccessToken),
		IDToken:      IDToken(s.IDToken),
		RefreshToken: RefreshToken(s.RefreshToken),
		TokenType:    s.TokenType,
		Scope:        s.Scope,
		ExpiresIn:    s.ExpiresIn,
		Metadata:     extra,
	}, nil
}

// clone returns a copy the caller may keep without sharing mutable
// state with the session manager.
func (s *SessionInfo) clone() *SessionInfo {
	if s == nil {
		return nil
	}
	cp := *s
	if s.Metadata != nil {
		cp.Metadata = make(map[string]json.RawMessage, len(s.Metadata))
		for k, v := range s.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
