package oidc

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
)

// ValidateResponse checks an authorization response for tampering
// before any of its contents are used. The checks run in a fixed
// order and the first failure wins: origin, then provider error, then
// state.
//
// Origin is only checked for trusted responses, since redirect
// deliveries have no observable origin. expectedState may be empty
// when the transaction could not be recovered, in which case the state
// comparison is skipped; enable StrictStateCheck to fail instead.
func ValidateResponse(resp *AuthorizationResponse, domain string, expectedState string) error {
	const op = "oidc.ValidateResponse"
	if resp == nil {
		return fmt.Errorf("%s: response is nil: %w", op, ErrNilParameter)
	}
	if resp.IsTrusted {
		if resp.Origin != "https://"+domain {
			return fmt.Errorf("%s: origin %q does not match the provider domain: %w", op, resp.Origin, ErrInvalidOrigin)
		}
	}
	if resp.Error != "" {
		return fmt.Errorf("%s: %w", op, &ProviderError{
			Code:        resp.Error,
			Description: resp.ErrorDescription,
			State:       resp.State,
		})
	}
	if expectedState != "" {
		if normalizeParam(resp.State) != normalizeParam(expectedState) {
			return fmt.Errorf("%s: response state does not match the request: %w", op, ErrInvalidState)
		}
	}
	return nil
}

// normalizeParam undoes the '+' to ' ' substitution that query
// decoding applies to base64 state and nonce values.
func normalizeParam(s string) string {
	return strings.ReplaceAll(s, " ", "+")
}

// ValidateIDToken runs the strict id_token checks for an implicit
// grant: the nonce claim must match the transaction's nonce, and when
// an access token was delivered alongside, the at_hash claim must be
// present and match it. For the lenient missing-at_hash handling the
// session manager applies, see Config.StrictAccessTokenHash.
func ValidateIDToken(identity *Identity, t AccessToken, expectedNonce string) error {
	const op = "oidc.ValidateIDToken"
	if identity == nil {
		return fmt.Errorf("%s: identity is nil: %w", op, ErrNilParameter)
	}
	if err := ValidateTokenNonce(identity.Nonce, expectedNonce); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if t != "" {
		if err := ValidateAccessTokenHash(identity.AtHash, t); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}

// ValidateTokenNonce compares the nonce claim of an id_token against
// the nonce the transaction was started with.
func ValidateTokenNonce(tokenNonce string, expectedNonce string) error {
	const op = "oidc.ValidateTokenNonce"
	if expectedNonce == "" {
		return fmt.Errorf("%s: expected nonce is empty: %w", op, ErrInvalidParameter)
	}
	if normalizeParam(tokenNonce) != normalizeParam(expectedNonce) {
		return fmt.Errorf("%s: token nonce does not match the request: %w", op, ErrInvalidNonce)
	}
	return nil
}

// ValidateAccessTokenHash verifies the id_token's at_hash claim
// against the delivered access token. The expected value is the
// base64 raw-url encoding of the left half of the SHA-256 digest of
// the access token.
func ValidateAccessTokenHash(atHash string, t AccessToken) error {
	const op = "oidc.ValidateAccessTokenHash"
	if atHash == "" {
		return fmt.Errorf("%s: at_hash is empty: %w", op, ErrInvalidParameter)
	}
	if t == "" {
		return fmt.Errorf("%s: access_token is empty: %w", op, ErrInvalidParameter)
	}
	sum := sha256.Sum256([]byte(t))
	expected := base64.RawURLEncoding.EncodeToString(sum[:len(sum)/2])
	if atHash != expected {
		return fmt.Errorf("%s: at_hash does not match the access token: %w", op, ErrInvalidAccessTokenHash)
	}
	return nil
}
