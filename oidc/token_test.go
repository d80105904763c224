package oidc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken_redaction(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)

	access := AccessToken("super-secret-access")
	assert.Equal(RedactedAccessToken, access.String())
	data, err := json.Marshal(access)
	require.NoError(err)
	assert.Equal(`"`+RedactedAccessToken+`"`, string(data))

	id := IDToken("super-secret-id")
	assert.Equal(RedactedIDToken, id.String())
	data, err = json.Marshal(id)
	require.NoError(err)
	assert.Equal(`"`+RedactedIDToken+`"`, string(data))

	refresh := RefreshToken("super-secret-refresh")
	assert.Equal(RedactedRefreshToken, refresh.String())
	data, err = json.Marshal(refresh)
	require.NoError(err)
	assert.Equal(`"`+RedactedRefreshToken+`"`, string(data))

	secret := ClientSecret("super-secret-client")
	assert.Equal(RedactedClientSecret, secret.String())
	data, err = json.Marshal(secret)
	require.NoError(err)
	assert.Equal(`"`+RedactedClientSecret+`"`, string(data))
}

func TestUnmarshalSessionInfo(t *testing.T) {
	t.Parallel()
	t.Run("basics", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		info, err := unmarshalSessionInfo([]byte(`{
			"access_token": "at",
			"id_token": "it",
			"refresh_token": "rt",
			"token_type": "Bearer",
			"scope": "openid",
			"expires_in": 3600
		}`))
		require.NoError(err)
		assert.Equal(AccessToken("at"), info.AccessToken)
		assert.Equal(IDToken("it"), info.IDToken)
		assert.Equal(RefreshToken("rt"), info.RefreshToken)
		assert.Equal("Bearer", info.TokenType)
		assert.Equal("openid", info.Scope)
		assert.Equal(3600, info.ExpiresIn)
		assert.Nil(info.Metadata)
	})
	t.Run("unknown-fields-kept", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		info, err := unmarshalSessionInfo([]byte(`{
			"access_token": "at",
			"expires_in": 60,
			"device_secret": "ds",
			"issued_token_type": "urn:ietf:params:oauth:token-type:access_token"
		}`))
		require.NoError(err)
		assert.Len(info.Metadata, 2)
		assert.JSONEq(`"ds"`, string(info.Metadata["device_secret"]))
	})
	t.Run("not-json", func(t *testing.T) {
		assert := assert.New(t)
		_, err := unmarshalSessionInfo([]byte("not json"))
		assert.Error(err)
	})
}

func TestSessionInfo_clone(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	var nilInfo *SessionInfo
	assert.Nil(nilInfo.clone())

	orig := &SessionInfo{
		AccessToken: "at",
		ExpiresIn:   10,
		Metadata:    map[string]json.RawMessage{"k": json.RawMessage(`"v"`)},
	}
	cp := orig.clone()
	assert.Equal(orig, cp)
	cp.Metadata["k2"] = json.RawMessage(`"v2"`)
	assert.NotContains(orig.Metadata, "k2")
}
