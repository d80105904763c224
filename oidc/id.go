package oidc

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/authkit/authkit/oidc/internal/base62"
)

// DefaultIDLength is the default length for generated IDs, which are
// used for state and nonce parameters during OIDC flows.
const DefaultIDLength = 20

// NewID generates an ID with an optional prefix. The ID generated is
// suitable for a transaction's state or nonce.
// Supported options: WithPrefix
func NewID(opt ...Option) (string, error) {
	const op = "oidc.NewID"
	opts := getIDOpts(opt...)
	id, err := base62.Random(DefaultIDLength)
	if err != nil {
		return "", fmt.Errorf("%s: unable to generate id: %w", op, ErrIDGeneratorFailed)
	}
	switch {
	case opts.withPrefix != "":
		return fmt.Sprintf("%s_%s", opts.withPrefix, id), nil
	default:
		return id, nil
	}
}

// NewNonce returns the base64 raw-url encoding of keyLength
// cryptographically random bytes. It is the entropy primitive behind
// state, nonce and app-state values.
func NewNonce(keyLength int) (string, error) {
	const op = "oidc.NewNonce"
	if keyLength <= 0 {
		return "", fmt.Errorf("%s: key length must be greater than zero: %w", op, ErrInvalidParameter)
	}
	data := make([]byte, keyLength)
	if _, err := rand.Read(data); err != nil {
		return "", fmt.Errorf("%s: unable to read random bytes: %w", op, ErrIDGeneratorFailed)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// idOptions is the set of available options for NewID
type idOptions struct {
	withPrefix string
}

// idDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func idDefaults() idOptions {
	return idOptions{}
}

func getIDOpts(opt ...Option) idOptions {
	opts := idDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithPrefix provides an optional prefix for a new ID
func WithPrefix(prefix string) Option {
	return func(o interface{}) {
		if o, ok := o.(*idOptions); ok {
			o.withPrefix = prefix
		}
	}
}
