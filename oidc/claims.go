package oidc

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// jwtParser decodes base64url JWT segments. Parsing stays unverified
// on purpose: trust is established by the channel the token arrived
// on, not by its signature.
var jwtParser = jwt.NewParser()

// UnmarshalClaims unmarshals the payload segment of a JWT into claims
// without verifying the token's signature.
func UnmarshalClaims(token string, claims interface{}) error {
	const op = "oidc.UnmarshalClaims"
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 3 {
		return fmt.Errorf("%s: jwt does not have 3 parts: %w", op, ErrMalformedToken)
	}
	raw, err := jwtParser.DecodeSegment(parts[1])
	if err != nil {
		return fmt.Errorf("%s: unable to decode payload segment: %w", op, ErrMalformedToken)
	}
	if err := json.Unmarshal(raw, claims); err != nil {
		return fmt.Errorf("%s: unable to parse payload claims: %w", op, ErrMalformedToken)
	}
	return nil
}

// AccessTokenClaims is the decoded payload of a provider access token.
// Permissions is populated by providers that embed an RBAC permission
// list when an audience is configured.
type AccessTokenClaims struct {
	Permissions     []string         `json:"permissions"`
	IssuedAt        int64            `json:"iat"`
	ExpiresAt       int64            `json:"exp"`
	Issuer          string           `json:"iss"`
	Audience        jwt.ClaimStrings `json:"aud"`
	AuthorizedParty string           `json:"azp"`
	Scope           string           `json:"scope"`
}

// Claims decodes the access token payload, without signature
// verification.
func (t AccessToken) Claims() (*AccessTokenClaims, error) {
	const op = "AccessToken.Claims"
	if len(t) == 0 {
		return nil, fmt.Errorf("%s: access_token is empty: %w", op, ErrInvalidParameter)
	}
	var claims AccessTokenClaims
	if err := UnmarshalClaims(string(t), &claims); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &claims, nil
}
