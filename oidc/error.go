package oidc

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidParameter           = errors.New("invalid parameter")
	ErrNilParameter               = errors.New("nil parameter")
	ErrInvalidCACert              = errors.New("invalid CA certificate")
	ErrIDGeneratorFailed          = errors.New("id generation failed")
	ErrInvalidScope               = errors.New(`scope must contain "openid"`)
	ErrUnsupportedChallengeMethod = errors.New("unsupported challenge method")
	ErrInvalidOrigin              = errors.New("invalid origin")
	ErrInvalidState               = errors.New("invalid state")
	ErrInvalidNonce               = errors.New("invalid nonce")
	ErrInvalidAccessTokenHash     = errors.New("invalid access token hash")
	ErrLoginRequired              = errors.New("login required")
	ErrAuthorizationDenied        = errors.New("authorization denied by provider")
	ErrMalformedToken             = errors.New("malformed token")
	ErrMissingCredential          = errors.New("either a code verifier or a client secret is required")
	ErrDuplicateCredential        = errors.New("a code verifier and a client secret cannot both be present")
	ErrMissingAccessToken         = errors.New("access_token is missing")
	ErrMissingIDToken             = errors.New("id_token is missing")
	ErrLoginFailed                = errors.New("login failed")
	ErrUserInfoFailed             = errors.New("user info failed")
	ErrNotFound                   = errors.New("not found")
)

// ProviderError represents an OAuth error returned by the provider in
// an authorization response. It unwraps to ErrLoginRequired when the
// provider asked for an interactive login, and to
// ErrAuthorizationDenied otherwise, so callers can branch with
// errors.Is.
type ProviderError struct {
	// Code is the OAuth error code (for example "login_required").
	Code string

	// Description is the provider's error_description, if any.
	Description string

	// State is the state parameter the response carried, if any.
	State string
}

func (e *ProviderError) Error() string {
	msg := e.Code
	if e.Description != "" {
		msg = fmt.Sprintf("%s: %s", e.Code, e.Description)
	}
	if e.State != "" {
		msg = fmt.Sprintf("%s (state %q)", msg, e.State)
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	if e.Code == "login_required" {
		return ErrLoginRequired
	}
	return ErrAuthorizationDenied
}
