package oidc

import (
	"fmt"
	"net/url"
	"strconv"
)

// implicitExpiresInFallback is used when an implicit-grant response
// carries tokens but no expires_in parameter.
const implicitExpiresInFallback = 15

// AuthorizationResponse is the normalized authorization response, from
// a redirect URI or a web_message post.
type AuthorizationResponse struct {
	SessionInfo

	// IsTrusted marks responses whose Origin could be observed (web
	// message posts). Origin validation only applies to trusted
	// responses.
	IsTrusted bool
	Origin    string
	Type      string

	State            string
	Error            string
	ErrorDescription string

	// Code is the authorization code for the code grant.
	Code string
}

// HasPayload reports whether the response carries anything at all: an
// error, a code, or tokens. An authorization response without a
// payload means the user arrived without completing a flow.
func (r *AuthorizationResponse) HasPayload() bool {
	if r == nil {
		return false
	}
	return r.Error != "" || r.Code != "" || r.AccessToken != "" || r.IDToken != ""
}

// WebMessage is the wire shape of a web_message response-mode post,
// as relayed from the provider's iframe or popup.
type WebMessage struct {
	IsTrusted        bool   `json:"isTrusted"`
	Origin           string `json:"origin"`
	Type             string `json:"type"`
	State            string `json:"state"`
	Error            string `json:"error"`
	ErrorDescription string `json:"errorDescription"`
	Code             string `json:"code"`
	AccessToken      string `json:"accessToken"`
	IDToken          string `json:"idToken"`
	Scope            string `json:"scope"`
	TokenType        string `json:"tokenType"`
	ExpiresIn        int    `json:"expiresIn"`
}

// AuthorizationResponse converts the wire message to the normalized
// response shape.
func (m *WebMessage) AuthorizationResponse() *AuthorizationResponse {
	if m == nil {
		return nil
	}
	return &AuthorizationResponse{
		SessionInfo: SessionInfo{
			AccessToken: AccessToken(m.AccessToken),
			IDToken:     IDToken(m.IDToken),
			TokenType:   m.TokenType,
			Scope:       m.Scope,
			ExpiresIn:   m.ExpiresIn,
		},
		IsTrusted:        m.IsTrusted,
		Origin:           m.Origin,
		Type:             m.Type,
		State:            m.State,
		Error:            m.Error,
		ErrorDescription: m.ErrorDescription,
		Code:             m.Code,
	}
}

// ParseResponseURI extracts the authorization response from a redirect
// URI. The code grant delivers parameters in the query; every other
// response type delivers them in the fragment. A URI with no response
// parameters at all yields (nil, nil).
func ParseResponseURI(u *url.URL, responseType ResponseType) (*AuthorizationResponse, error) {
	const op = "oidc.ParseResponseURI"
	if u == nil {
		return nil, fmt.Errorf("%s: uri is nil: %w", op, ErrNilParameter)
	}

	var values url.Values
	if responseType == ResponseTypeCode {
		values = u.Query()
	} else {
		fragment, err := url.ParseQuery(u.Fragment)
		if err != nil {
			return nil, fmt.Errorf("%s: unable to parse fragment: %w", op, err)
		}
		values = fragment
	}

	resp := &AuthorizationResponse{
		State:            values.Get("state"),
		Error:            values.Get("error"),
		ErrorDescription: values.Get("error_description"),
		Code:             values.Get("code"),
	}
	resp.AccessToken = AccessToken(values.Get("access_token"))
	resp.IDToken = IDToken(values.Get("id_token"))
	resp.Scope = values.Get("scope")
	resp.TokenType = values.Get("token_type")
	if resp.TokenType == "" {
		resp.TokenType = "bearer"
	}
	if !resp.HasPayload() {
		return nil, nil
	}

	resp.ExpiresIn = implicitExpiresInFallback
	if raw := values.Get("expires_in"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: unable to parse expires_in %q: %w", op, raw, ErrInvalidParameter)
		}
		resp.ExpiresIn = n
	}

	// Implicit grants must deliver the full token set they advertised.
	if resp.Error == "" && resp.Code == "" {
		switch responseType {
		case ResponseTypeToken, ResponseTypeTokenAndIDToken:
			if resp.AccessToken == "" {
				return nil, fmt.Errorf("%s: %w", op, ErrMissingAccessToken)
			}
		}
		if responseType.IncludesIDToken() && resp.IDToken == "" {
			return nil, fmt.Errorf("%s: %w", op, ErrMissingIDToken)
		}
	}
	return resp, nil
}
