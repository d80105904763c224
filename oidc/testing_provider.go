package oidc

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"io"
	"io/ioutil"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-uuid"
	"github.com/stretchr/testify/require"
	"gopkg.in/square/go-jose.v2/jwt"
)

// TestProvider is a local server that implements the provider side of
// the protocol this package speaks, which makes writing tests much
// easier: the token endpoint accepting JSON bodies, the revocation and
// userinfo endpoints, the discovery document and the logout endpoint.
type TestProvider struct {
	httpServer *httptest.Server
	caCert     string

	mu                   sync.Mutex
	clientID             string
	clientSecret         string
	expectedAuthCode     string
	expectedAuthNonce    string
	expectedCodeVerifier string
	expectedRefreshToken string
	customClaims         map[string]interface{}
	replyUserinfo        map[string]interface{}
	replyExpiresIn       int
	permissions          []string
	audience             string
	issueRefreshToken    bool
	omitIDToken          bool
	omitAtHash           bool
	disableUserInfo      bool
	revokedTokens        []string
	tokenRequests        []map[string]interface{}

	ecdsaPublicKey  string
	ecdsaPrivateKey string

	t *testing.T
}

// StartTestProvider creates a disposable TestProvider on a random
// port. The server is stopped via t.Cleanup.
func StartTestProvider(t *testing.T) *TestProvider {
	t.Helper()
	require := require.New(t)

	p := &TestProvider{
		t: t,
		replyUserinfo: map[string]interface{}{
			"sub":   "alice@example.com",
			"name":  "Alice Doe",
			"email": "alice@example.com",
		},
		replyExpiresIn: 3600,
	}
	p.ecdsaPublicKey, p.ecdsaPrivateKey = TestGenerateKeys(t)

	p.httpServer = httptest.NewUnstartedServer(p)
	p.httpServer.Config.ErrorLog = log.New(ioutil.Discard, "", 0)
	p.httpServer.StartTLS()
	t.Cleanup(p.httpServer.Close)

	cert := p.httpServer.Certificate()

	var buf bytes.Buffer
	err := pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
	require.NoError(err)
	p.caCert = buf.String()

	return p
}

// Stop stops the running TestProvider.
func (p *TestProvider) Stop() {
	p.httpServer.Close()
}

// Domain returns the provider domain (host and port, no scheme),
// suitable for a Config.
func (p *TestProvider) Domain() string {
	return strings.TrimPrefix(p.httpServer.URL, "https://")
}

// Addr returns the provider base URL.
func (p *TestProvider) Addr() string { return p.httpServer.URL }

// CACert returns the pem-encoded CA certificate used by the
// TestProvider's https server.
func (p *TestProvider) CACert() string { return p.caCert }

// SigningKeys returns the test provider's pem-encoded keys used to
// sign JWTs.
func (p *TestProvider) SigningKeys() (pub, priv string) {
	return p.ecdsaPublicKey, p.ecdsaPrivateKey
}

// SetClientCreds is for configuring the client information required
// for the OIDC workflows.
func (p *TestProvider) SetClientCreds(clientID, clientSecret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID = clientID
	p.clientSecret = clientSecret
}

// SetExpectedAuthCode configures the allowed auth code for the token
// endpoint.
func (p *TestProvider) SetExpectedAuthCode(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthCode = code
}

// SetExpectedAuthNonce configures the nonce echoed in issued
// id_tokens.
func (p *TestProvider) SetExpectedAuthNonce(nonce string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthNonce = nonce
}

// SetExpectedCodeVerifier configures the PKCE verifier the token
// endpoint requires. The endpoint compares the S256 challenge of the
// submitted verifier, the way a real provider does.
func (p *TestProvider) SetExpectedCodeVerifier(verifier string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedCodeVerifier = verifier
}

// SetExpectedRefreshToken configures the refresh token the token and
// revocation endpoints accept.
func (p *TestProvider) SetExpectedRefreshToken(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedRefreshToken = token
}

// SetCustomClaims sets additional claims embedded in issued id_tokens.
func (p *TestProvider) SetCustomClaims(customClaims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customClaims = customClaims
}

// SetUserInfoReply sets the response body of the /userinfo endpoint.
func (p *TestProvider) SetUserInfoReply(claims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replyUserinfo = claims
}

// SetExpiresIn sets the expires_in value of token endpoint responses.
func (p *TestProvider) SetExpiresIn(seconds int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replyExpiresIn = seconds
}

// SetPermissions embeds a permissions claim in issued access tokens.
func (p *TestProvider) SetPermissions(audience string, permissions []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.audience = audience
	p.permissions = permissions
}

// IssueRefreshTokens makes token endpoint responses include a refresh
// token.
func (p *TestProvider) IssueRefreshTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.issueRefreshToken = true
}

// OmitIDTokens turns off the id_token in token endpoint responses.
func (p *TestProvider) OmitIDTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitIDToken = true
}

// OmitAtHash issues id_tokens without an at_hash claim.
func (p *TestProvider) OmitAtHash() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitAtHash = true
}

// DisableUserInfo makes the userinfo endpoint return 404.
func (p *TestProvider) DisableUserInfo() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disableUserInfo = true
}

// RevokedTokens returns the tokens the revocation endpoint has seen.
func (p *TestProvider) RevokedTokens() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.revokedTokens...)
}

// TokenRequests returns the decoded JSON bodies the token endpoint has
// seen, in order.
func (p *TestProvider) TokenRequests() []map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]map[string]interface{}(nil), p.tokenRequests...)
}

func (p *TestProvider) writeJSON(w http.ResponseWriter, out interface{}) error {
	p.t.Helper()
	enc := json.NewEncoder(w)
	return enc.Encode(out)
}

func (p *TestProvider) writeTokenErrorResponse(w http.ResponseWriter, statusCode int, errorCode, errorMessage string) {
	p.t.Helper()
	body := struct {
		Code string `json:"error"`
		Desc string `json:"error_description,omitempty"`
	}{
		Code: errorCode,
		Desc: errorMessage,
	}
	w.WriteHeader(statusCode)
	_ = p.writeJSON(w, &body)
}

// issueTokens builds a signed access token and id_token pair. The
// id_token echoes the expected nonce and carries the at_hash of the
// access token unless configured otherwise.
func (p *TestProvider) issueTokens() (accessToken, idToken string) {
	p.t.Helper()
	require := require.New(p.t)

	jti, err := uuid.GenerateUUID()
	require.NoError(err)

	now := time.Now()
	accessClaims := jwt.Claims{
		ID:       jti,
		Subject:  "alice@example.com",
		Issuer:   p.Addr() + "/",
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(time.Duration(p.replyExpiresIn) * time.Second)),
		Audience: jwt.Audience{p.clientID},
	}
	accessPrivate := map[string]interface{}{
		"scope": "openid profile email",
		"azp":   p.clientID,
	}
	if p.audience != "" {
		accessClaims.Audience = jwt.Audience{p.audience}
	}
	if len(p.permissions) > 0 {
		accessPrivate["permissions"] = p.permissions
	}
	accessToken = TestSignJWT(p.t, p.ecdsaPrivateKey, accessClaims, accessPrivate)

	idClaims := jwt.Claims{
		Subject:  "alice@example.com",
		Issuer:   p.Addr() + "/",
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(time.Duration(p.replyExpiresIn) * time.Second)),
		Audience: jwt.Audience{p.clientID},
	}
	idPrivate := map[string]interface{}{
		"name":  "Alice Doe",
		"email": "alice@example.com",
	}
	if p.expectedAuthNonce != "" {
		idPrivate["nonce"] = p.expectedAuthNonce
	}
	if !p.omitAtHash {
		idPrivate["at_hash"] = TestAccessTokenHash(accessToken)
	}
	for k, v := range p.customClaims {
		idPrivate[k] = v
	}
	idToken = TestSignJWT(p.t, p.ecdsaPrivateKey, idClaims, idPrivate)
	return accessToken, idToken
}

// ServeHTTP implements the test provider's http.Handler.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.t.Helper()

	w.Header().Set("Content-Type", "application/json")

	switch req.URL.Path {
	case "/.well-known/openid-configuration":
		if req.Method != "GET" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		reply := ProviderMetadata{
			Issuer:                p.Addr() + "/",
			AuthorizationEndpoint: p.Addr() + "/authorize",
			TokenEndpoint:         p.Addr() + "/oauth/token",
			UserInfoEndpoint:      p.Addr() + "/userinfo",
			RevocationEndpoint:    p.Addr() + "/oauth/revoke",
			JWKSURI:               p.Addr() + "/.well-known/jwks.json",
		}
		if p.disableUserInfo {
			reply.UserInfoEndpoint = ""
		}
		_ = p.writeJSON(w, &reply)

	case "/oauth/token":
		if req.Method != "POST" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(req.Body)
		if err != nil {
			p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", "unable to read body")
			return
		}
		var tr map[string]interface{}
		if err := json.Unmarshal(body, &tr); err != nil {
			p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", "body is not json")
			return
		}
		p.tokenRequests = append(p.tokenRequests, tr)

		get := func(k string) string {
			s, _ := tr[k].(string)
			return s
		}
		switch get("grant_type") {
		case "authorization_code":
			if get("code") != p.expectedAuthCode {
				p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_grant", "unexpected auth code")
				return
			}
			switch {
			case get("code_verifier") != "":
				sum := sha256.Sum256([]byte(get("code_verifier")))
				challenge := base64.RawURLEncoding.EncodeToString(sum[:])
				expectedSum := sha256.Sum256([]byte(p.expectedCodeVerifier))
				expected := base64.RawURLEncoding.EncodeToString(expectedSum[:])
				if p.expectedCodeVerifier == "" || challenge != expected {
					p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_grant", "unexpected code verifier")
					return
				}
			case get("client_secret") != "":
				if get("client_secret") != p.clientSecret {
					p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_client", "unexpected client secret")
					return
				}
			default:
				p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", "missing client credential")
				return
			}
		case "refresh_token":
			if p.expectedRefreshToken == "" || get("refresh_token") != p.expectedRefreshToken {
				p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_grant", "unexpected refresh token")
				return
			}
		default:
			p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", "bad grant_type")
			return
		}

		accessToken, idToken := p.issueTokens()
		reply := struct {
			AccessToken  string `json:"access_token"`
			IDToken      string `json:"id_token,omitempty"`
			RefreshToken string `json:"refresh_token,omitempty"`
			TokenType    string `json:"token_type"`
			ExpiresIn    int    `json:"expires_in"`
			Scope        string `json:"scope"`
		}{
			AccessToken: accessToken,
			IDToken:     idToken,
			TokenType:   "Bearer",
			ExpiresIn:   p.replyExpiresIn,
			Scope:       "openid profile email",
		}
		if p.omitIDToken {
			reply.IDToken = ""
		}
		if p.issueRefreshToken {
			rt, err := uuid.GenerateUUID()
			require.New(p.t).NoError(err)
			reply.RefreshToken = rt
			p.expectedRefreshToken = rt
		}
		_ = p.writeJSON(w, &reply)

	case "/oauth/revoke":
		if req.Method != "POST" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(req.Body)
		if err != nil {
			p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", "unable to read body")
			return
		}
		var rr struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal(body, &rr); err != nil || rr.Token == "" {
			p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", "missing token")
			return
		}
		p.revokedTokens = append(p.revokedTokens, rr.Token)
		_ = p.writeJSON(w, struct{}{})

	case "/userinfo":
		if p.disableUserInfo {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if req.Method != "GET" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !strings.HasPrefix(req.Header.Get("Authorization"), "Bearer ") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = p.writeJSON(w, p.replyUserinfo)

	case "/v2/logout":
		if req.Method != "GET" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}
