package oidc

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/authkit/authkit/oidc/internal/base62"
)

// ChallengeMethod represents a PKCE code challenge method.
type ChallengeMethod string

const (
	// S256 is the SHA-256 based PKCE challenge method. It is the only
	// method supported; "plain" is deliberately not implemented.
	S256 ChallengeMethod = "S256"
)

// verifierLen is the length of a generated code verifier, within the
// 43..128 range RFC 7636 requires.
const verifierLen = 43

// CodeVerifier represents an OAuth PKCE code verifier, along with its
// S256 challenge.
type CodeVerifier struct {
	verifier  string
	method    ChallengeMethod
	challenge string
}

// NewCodeVerifier creates a new CodeVerifier with a cryptographically
// random verifier and its derived S256 challenge.
func NewCodeVerifier() (*CodeVerifier, error) {
	const op = "oidc.NewCodeVerifier"
	data, err := base62.Random(verifierLen)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create verifier data: %w", op, err)
	}
	v := &CodeVerifier{
		verifier: data,
		method:   S256,
	}
	if v.challenge, err = CreateCodeChallenge(S256, v); err != nil {
		return nil, fmt.Errorf("%s: unable to create code challenge: %w", op, err)
	}
	return v, nil
}

func (v *CodeVerifier) Verifier() string        { return v.verifier }
func (v *CodeVerifier) Challenge() string       { return v.challenge }
func (v *CodeVerifier) Method() ChallengeMethod { return v.method }

// CreateCodeChallenge creates a code challenge for the verifier using
// the given method. Only the S256 method is supported.
func CreateCodeChallenge(method ChallengeMethod, v *CodeVerifier) (string, error) {
	const op = "oidc.CreateCodeChallenge"
	if v == nil {
		return "", fmt.Errorf("%s: verifier is nil: %w", op, ErrNilParameter)
	}
	if method != S256 {
		return "", fmt.Errorf("%s: %q: %w", op, method, ErrUnsupportedChallengeMethod)
	}
	sum := sha256.Sum256([]byte(v.verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:]), nil
}
