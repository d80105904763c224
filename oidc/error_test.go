package oidc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProviderError(t *testing.T) {
	t.Parallel()
	t.Run("login-required-unwraps", func(t *testing.T) {
		assert := assert.New(t)
		err := &ProviderError{Code: "login_required"}
		assert.True(errors.Is(err, ErrLoginRequired))
		assert.False(errors.Is(err, ErrAuthorizationDenied))
	})
	t.Run("other-codes-are-denials", func(t *testing.T) {
		assert := assert.New(t)
		err := &ProviderError{Code: "consent_required"}
		assert.True(errors.Is(err, ErrAuthorizationDenied))
		assert.False(errors.Is(err, ErrLoginRequired))
	})
	t.Run("message", func(t *testing.T) {
		assert := assert.New(t)
		err := &ProviderError{Code: "access_denied", Description: "nope", State: "s1"}
		assert.Equal(`access_denied: nope (state "s1")`, err.Error())
		assert.Equal("access_denied", (&ProviderError{Code: "access_denied"}).Error())
	})
}
