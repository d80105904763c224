package oidc

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func testAuthorizeOptions() *AuthorizeOptions {
	return &AuthorizeOptions{
		Domain:       "tenant.auth0.com",
		ClientID:     "client-id",
		RedirectURI:  "https://app.example.com/callback",
		ResponseType: ResponseTypeCode,
		State:        "state-123",
		Scope:        "openid profile email",
	}
}

func TestBuildAuthorizeURL(t *testing.T) {
	t.Parallel()
	t.Run("code-flow-param-order", func(t *testing.T) {
		// The parameter order is fixed and part of the contract, so
		// the whole URL is compared as a string.
		assert, require := assert.New(t), require.New(t)
		o := testAuthorizeOptions()
		o.ChallengeMethod = S256
		o.CodeChallenge = "challenge-abc"
		o.CodeVerifier = "verifier-abc"
		got, err := BuildAuthorizeURL(o)
		require.NoError(err)
		assert.Equal(
			"https://tenant.auth0.com/authorize"+
				"?response_type=code"+
				"&state=state-123"+
				"&client_id=client-id"+
				"&scope=openid+profile+email"+
				"&code_challenge_method=S256"+
				"&code_challenge=challenge-abc"+
				"&redirect_uri=https%3A%2F%2Fapp.example.com%2Fcallback",
			got)
	})
	t.Run("all-optional-params", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		o := testAuthorizeOptions()
		o.ResponseType = ResponseTypeTokenAndIDToken
		o.ResponseMode = ResponseModeWebMessage
		o.Nonce = "nonce-456"
		o.Connection = "google-oauth2"
		o.Audience = "https://api.example.com"
		o.UILocales = []language.Tag{language.Spanish, language.English}
		got, err := BuildAuthorizeURL(o)
		require.NoError(err)
		assert.Equal(
			"https://tenant.auth0.com/authorize"+
				"?response_type=token+id_token"+
				"&state=state-123"+
				"&nonce=nonce-456"+
				"&client_id=client-id"+
				"&scope=openid+profile+email"+
				"&connection=google-oauth2"+
				"&audience=https%3A%2F%2Fapi.example.com"+
				"&ui_locales=es+en"+
				"&response_mode=web_message"+
				"&redirect_uri=https%3A%2F%2Fapp.example.com%2Fcallback",
			got)
	})
	t.Run("realm-wins-over-connection", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		o := testAuthorizeOptions()
		o.Connection = "google-oauth2"
		o.Realm = "employees"
		got, err := BuildAuthorizeURL(o)
		require.NoError(err)
		assert.Contains(got, "&connection=employees&")
		assert.NotContains(got, "google-oauth2")
	})
	t.Run("nonce-omitted-when-empty", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		o := testAuthorizeOptions()
		got, err := BuildAuthorizeURL(o)
		require.NoError(err)
		assert.NotContains(got, "nonce=")
	})
	t.Run("nonce-required-for-id-token", func(t *testing.T) {
		assert := assert.New(t)
		o := testAuthorizeOptions()
		o.ResponseType = ResponseTypeIDToken
		_, err := BuildAuthorizeURL(o)
		assert.True(errors.Is(err, ErrInvalidNonce))
	})
	t.Run("challenge-without-verifier", func(t *testing.T) {
		assert := assert.New(t)
		o := testAuthorizeOptions()
		o.ChallengeMethod = S256
		o.CodeChallenge = "challenge-abc"
		_, err := BuildAuthorizeURL(o)
		assert.True(errors.Is(err, ErrInvalidParameter))
	})
	t.Run("scope-without-openid", func(t *testing.T) {
		assert := assert.New(t)
		o := testAuthorizeOptions()
		o.Scope = "profile email"
		_, err := BuildAuthorizeURL(o)
		assert.True(errors.Is(err, ErrInvalidScope))
	})
	t.Run("missing-required-fields", func(t *testing.T) {
		assert := assert.New(t)
		_, err := BuildAuthorizeURL(&AuthorizeOptions{})
		assert.True(errors.Is(err, ErrInvalidParameter))
		for _, want := range []string{"domain", "client id", "redirect uri", "state", "scope"} {
			assert.True(strings.Contains(err.Error(), want), fmt.Sprintf("missing %q in %q", want, err.Error()))
		}
	})
}

func TestBuildLogoutURL(t *testing.T) {
	t.Parallel()
	t.Run("with-return-to", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		got, err := BuildLogoutURL("tenant.auth0.com", "client-id", "https://app.example.com/")
		require.NoError(err)
		assert.Equal("https://tenant.auth0.com/v2/logout?client_id=client-id&returnTo=https%3A%2F%2Fapp.example.com%2F", got)
	})
	t.Run("without-return-to", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		got, err := BuildLogoutURL("tenant.auth0.com", "client-id", "")
		require.NoError(err)
		assert.Equal("https://tenant.auth0.com/v2/logout?client_id=client-id", got)
	})
	t.Run("missing-domain", func(t *testing.T) {
		assert := assert.New(t)
		_, err := BuildLogoutURL("", "client-id", "")
		assert.True(errors.Is(err, ErrInvalidParameter))
	})
}
