package oidc

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testUnsignedJWT builds a syntactically valid JWT with the given
// payload and a junk signature. Decoding never verifies signatures, so
// the signature content does not matter.
func testUnsignedJWT(t *testing.T, payload map[string]interface{}) string {
	t.Helper()
	require := require.New(t)
	header, err := json.Marshal(map[string]string{"alg": "none", "typ": "JWT"})
	require.NoError(err)
	body, err := json.Marshal(payload)
	require.NoError(err)
	return base64.RawURLEncoding.EncodeToString(header) + "." +
		base64.RawURLEncoding.EncodeToString(body) + "." +
		base64.RawURLEncoding.EncodeToString([]byte("sig"))
}

func TestUnmarshalClaims(t *testing.T) {
	t.Parallel()
	t.Run("basics", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		token := testUnsignedJWT(t, map[string]interface{}{
			"sub":  "alice",
			"name": "Alice Doe",
		})
		var claims map[string]interface{}
		require.NoError(UnmarshalClaims(token, &claims))
		assert.Equal("alice", claims["sub"])
		assert.Equal("Alice Doe", claims["name"])
	})
	t.Run("not-three-parts", func(t *testing.T) {
		assert := assert.New(t)
		var claims map[string]interface{}
		err := UnmarshalClaims("only.two", &claims)
		assert.True(errors.Is(err, ErrMalformedToken))
	})
	t.Run("bad-payload-encoding", func(t *testing.T) {
		assert := assert.New(t)
		var claims map[string]interface{}
		err := UnmarshalClaims("aGVhZGVy.!!!.c2ln", &claims)
		assert.True(errors.Is(err, ErrMalformedToken))
	})
	t.Run("payload-not-json", func(t *testing.T) {
		assert := assert.New(t)
		notJSON := base64.RawURLEncoding.EncodeToString([]byte("not json"))
		var claims map[string]interface{}
		err := UnmarshalClaims("aGVhZGVy."+notJSON+".c2ln", &claims)
		assert.True(errors.Is(err, ErrMalformedToken))
	})
}

func TestAccessToken_Claims(t *testing.T) {
	t.Parallel()
	t.Run("basics", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		token := AccessToken(testUnsignedJWT(t, map[string]interface{}{
			"iss":         "https://issuer.example.com/",
			"aud":         []string{"api", "client-id"},
			"azp":         "client-id",
			"exp":         float64(1893456000),
			"scope":       "openid profile",
			"permissions": []string{"read:things", "write:things"},
		}))
		claims, err := token.Claims()
		require.NoError(err)
		assert.Equal("https://issuer.example.com/", claims.Issuer)
		assert.Equal([]string{"api", "client-id"}, []string(claims.Audience))
		assert.Equal("client-id", claims.AuthorizedParty)
		assert.Equal(int64(1893456000), claims.ExpiresAt)
		assert.Equal([]string{"read:things", "write:things"}, claims.Permissions)
	})
	t.Run("single-audience-string", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		token := AccessToken(testUnsignedJWT(t, map[string]interface{}{
			"aud": "api",
		}))
		claims, err := token.Claims()
		require.NoError(err)
		assert.Equal([]string{"api"}, []string(claims.Audience))
	})
	t.Run("empty", func(t *testing.T) {
		assert := assert.New(t)
		_, err := AccessToken("").Claims()
		assert.True(errors.Is(err, ErrInvalidParameter))
	})
	t.Run("opaque-token", func(t *testing.T) {
		assert := assert.New(t)
		_, err := AccessToken("not-a-jwt").Claims()
		assert.True(errors.Is(err, ErrMalformedToken))
	})
}
