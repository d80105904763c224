package oidc

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProviderConfig(t *testing.T, tp *TestProvider, opt ...Option) *Config {
	t.Helper()
	require := require.New(t)
	opt = append([]Option{
		WithRedirectURL("https://app.example.com/callback"),
		WithProviderCA(tp.CACert()),
	}, opt...)
	c, err := NewConfig(tp.Domain(), "client-id", opt...)
	require.NoError(err)
	return c
}

func TestExchangeCode(t *testing.T) {
	ctx := context.Background()

	t.Run("pkce", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		tp.SetClientCreds("client-id", "")
		tp.SetExpectedAuthCode("code-abc")

		v, err := NewCodeVerifier()
		require.NoError(err)
		tp.SetExpectedCodeVerifier(v.Verifier())

		c := testProviderConfig(t, tp)
		client, err := c.HTTPClient()
		require.NoError(err)

		tx := &Transaction{State: "state-123", CodeVerifier: v.Verifier()}
		info, err := ExchangeCode(ctx, client, c, tx, "code-abc")
		require.NoError(err)
		assert.NotEmpty(info.AccessToken)
		assert.NotEmpty(info.IDToken)
		assert.Equal("Bearer", info.TokenType)
		assert.Equal(3600, info.ExpiresIn)

		reqs := tp.TokenRequests()
		require.Len(reqs, 1)
		assert.Equal("authorization_code", reqs[0]["grant_type"])
		assert.Equal(v.Verifier(), reqs[0]["code_verifier"])
		assert.NotContains(reqs[0], "client_secret")
	})
	t.Run("client-secret", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		tp.SetClientCreds("client-id", "s3cr3t")
		tp.SetExpectedAuthCode("code-abc")

		c := testProviderConfig(t, tp, WithClientSecret("s3cr3t"))
		client, err := c.HTTPClient()
		require.NoError(err)

		tx := &Transaction{State: "state-123"}
		info, err := ExchangeCode(ctx, client, c, tx, "code-abc")
		require.NoError(err)
		assert.NotEmpty(info.AccessToken)
	})
	t.Run("neither-credential", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		c := testProviderConfig(t, tp)
		client, err := c.HTTPClient()
		require.NoError(err)

		_, err = ExchangeCode(ctx, client, c, &Transaction{State: "s"}, "code-abc")
		assert.True(errors.Is(err, ErrMissingCredential))
		assert.Empty(tp.TokenRequests())
	})
	t.Run("both-credentials", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		c := testProviderConfig(t, tp, WithClientSecret("s3cr3t"))
		client, err := c.HTTPClient()
		require.NoError(err)

		tx := &Transaction{State: "s", CodeVerifier: "v"}
		_, err = ExchangeCode(ctx, client, c, tx, "code-abc")
		assert.True(errors.Is(err, ErrDuplicateCredential))
		assert.Empty(tp.TokenRequests())
	})
	t.Run("wrong-code", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		tp.SetExpectedAuthCode("code-abc")

		v, err := NewCodeVerifier()
		require.NoError(err)
		tp.SetExpectedCodeVerifier(v.Verifier())

		c := testProviderConfig(t, tp)
		client, err := c.HTTPClient()
		require.NoError(err)

		tx := &Transaction{State: "s", CodeVerifier: v.Verifier()}
		_, err = ExchangeCode(ctx, client, c, tx, "wrong-code")
		assert.True(errors.Is(err, ErrLoginFailed))
	})
}

func TestRefreshGrant(t *testing.T) {
	ctx := context.Background()
	t.Run("basics", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		tp.SetClientCreds("client-id", "s3cr3t")
		tp.SetExpectedRefreshToken("rt-1")

		c := testProviderConfig(t, tp, WithClientSecret("s3cr3t"))
		client, err := c.HTTPClient()
		require.NoError(err)

		resp, err := RefreshGrant(ctx, client, c, "rt-1")
		require.NoError(err)
		assert.NotEmpty(resp.AccessToken)
		// The grant did not issue a new refresh token, so the old one
		// is carried forward.
		assert.Equal(RefreshToken("rt-1"), resp.RefreshToken)
	})
	t.Run("rejected", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		c := testProviderConfig(t, tp)
		client, err := c.HTTPClient()
		require.NoError(err)

		_, err = RefreshGrant(ctx, client, c, "unknown")
		assert.True(errors.Is(err, ErrLoginFailed))
	})
	t.Run("empty-token", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		c := testProviderConfig(t, tp)
		client, err := c.HTTPClient()
		require.NoError(err)

		_, err = RefreshGrant(ctx, client, c, "")
		assert.True(errors.Is(err, ErrInvalidParameter))
	})
}

func TestRevokeRefreshToken(t *testing.T) {
	ctx := context.Background()
	t.Run("basics", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		c := testProviderConfig(t, tp)
		client, err := c.HTTPClient()
		require.NoError(err)

		require.NoError(RevokeRefreshToken(ctx, client, c, "rt-1"))
		assert.Equal([]string{"rt-1"}, tp.RevokedTokens())
	})
	t.Run("empty-token", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		c := testProviderConfig(t, tp)
		client, err := c.HTTPClient()
		require.NoError(err)

		err = RevokeRefreshToken(ctx, client, c, "")
		assert.True(errors.Is(err, ErrInvalidParameter))
	})
}

func TestFetchUserInfo(t *testing.T) {
	ctx := context.Background()
	t.Run("basics", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		tp.SetUserInfoReply(map[string]interface{}{
			"sub":                      "auth0|123",
			"name":                     "Alice Doe",
			"https://example.com/role": "admin",
		})
		c := testProviderConfig(t, tp)
		client, err := c.HTTPClient()
		require.NoError(err)

		id, err := FetchUserInfo(ctx, client, c.Domain, "access-token")
		require.NoError(err)
		assert.Equal("auth0|123", id.Sub)
		assert.Equal("Alice Doe", id.Name)
		assert.Equal("admin", id.CustomClaims["https://example.com/role"])
	})
	t.Run("disabled", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		tp.DisableUserInfo()
		c := testProviderConfig(t, tp)
		client, err := c.HTTPClient()
		require.NoError(err)

		_, err = FetchUserInfo(ctx, client, c.Domain, "access-token")
		assert.True(errors.Is(err, ErrUserInfoFailed))
	})
	t.Run("empty-token", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		c := testProviderConfig(t, tp)
		client, err := c.HTTPClient()
		require.NoError(err)

		_, err = FetchUserInfo(ctx, client, c.Domain, "")
		assert.True(errors.Is(err, ErrInvalidParameter))
	})
}

func TestDiscover(t *testing.T) {
	ctx := context.Background()
	assert, require := assert.New(t), require.New(t)
	tp := StartTestProvider(t)
	c := testProviderConfig(t, tp)
	client, err := c.HTTPClient()
	require.NoError(err)

	md, err := Discover(ctx, client, c.Domain)
	require.NoError(err)
	assert.Equal(tp.Addr()+"/", md.Issuer)
	assert.Equal(tp.Addr()+"/oauth/token", md.TokenEndpoint)
	assert.Equal(tp.Addr()+"/userinfo", md.UserInfoEndpoint)
	assert.Equal(tp.Addr()+"/oauth/revoke", md.RevocationEndpoint)
}
