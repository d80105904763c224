package oidc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/joeshaw/envdecode"
	"golang.org/x/text/language"

	"github.com/authkit/authkit/oidc/internal/strutils"
	sdkHTTP "github.com/authkit/authkit/sdk/http"
)

// ResponseType represents the OAuth response_type parameter.
type ResponseType string

const (
	ResponseTypeCode            ResponseType = "code"
	ResponseTypeToken           ResponseType = "token"
	ResponseTypeIDToken         ResponseType = "id_token"
	ResponseTypeTokenAndIDToken ResponseType = "token id_token"
)

// IncludesIDToken reports whether the response type causes the
// provider to return an id_token directly, which in turn requires a
// nonce to be present in the authorize request.
func (t ResponseType) IncludesIDToken() bool {
	return t == ResponseTypeIDToken || t == ResponseTypeTokenAndIDToken
}

func (t ResponseType) valid() bool {
	switch t {
	case ResponseTypeCode, ResponseTypeToken, ResponseTypeIDToken, ResponseTypeTokenAndIDToken:
		return true
	}
	return false
}

// ResponseMode represents the OAuth response_mode parameter. The empty
// string means the provider default for the response type.
type ResponseMode string

const (
	ResponseModeQuery      ResponseMode = "query"
	ResponseModeFragment   ResponseMode = "fragment"
	ResponseModeFormPost   ResponseMode = "form_post"
	ResponseModeWebMessage ResponseMode = "web_message"
)

// LoginMode selects how an interactive authorize request is
// dispatched.
type LoginMode string

const (
	LoginModeRedirect LoginMode = "redirect"
	LoginModePopup    LoginMode = "popup"
)

// ClientSecret is a client secret for a confidential client.
type ClientSecret string

// RedactedClientSecret is the redacted string or json for a client secret.
const RedactedClientSecret = "[REDACTED: client secret]"

// String will redact the client secret.
func (t ClientSecret) String() string {
	return RedactedClientSecret
}

// MarshalJSON will redact the client secret.
func (t ClientSecret) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedClientSecret)
}

const (
	// DefaultScope is requested when no scope is configured.
	DefaultScope = "openid profile email"

	// DefaultNamespace prefixes transaction storage keys.
	DefaultNamespace = "com.auth0.auth."

	// DefaultKeyLength is the number of random bytes behind generated
	// state/nonce/app-state values.
	DefaultKeyLength = 32
)

// Config represents the client configuration for an OIDC provider
// tenant. It is constructed once and never mutated afterwards.
type Config struct {
	// Domain is the provider tenant domain (host only, no scheme).
	Domain string `env:"AUTHKIT_DOMAIN"`

	// ClientID is the relying party id.
	ClientID string `env:"AUTHKIT_CLIENT_ID"`

	// ClientSecret is the relying party secret. When present the
	// client is treated as confidential: the flow is forced to the
	// authorization code grant and the code exchange authenticates
	// with the secret instead of PKCE.
	ClientSecret ClientSecret `env:"AUTHKIT_CLIENT_SECRET"`

	// Audience is the optional API audience. When configured, the
	// access token payload is decoded for its permissions list.
	Audience string `env:"AUTHKIT_AUDIENCE"`

	// Scope is the space separated scope list. Must contain "openid".
	Scope string `env:"AUTHKIT_SCOPE,default=openid profile email"`

	// Connection optionally pins the provider connection to use.
	Connection string `env:"AUTHKIT_CONNECTION"`

	// Realm optionally pins the realm; preferred over Connection when
	// both are set.
	Realm string `env:"AUTHKIT_REALM"`

	// RedirectURL is where the provider sends the authorization
	// response.
	RedirectURL string `env:"AUTHKIT_REDIRECT_URL"`

	ResponseType ResponseType `env:"AUTHKIT_RESPONSE_TYPE,default=code"`
	ResponseMode ResponseMode `env:"AUTHKIT_RESPONSE_MODE,default=query"`
	LoginMode    LoginMode    `env:"AUTHKIT_LOGIN_MODE,default=redirect"`

	// SlidingExpiration keeps the session alive by silent
	// re-authentication or refresh-token exchange before expiry.
	SlidingExpiration bool `env:"AUTHKIT_SLIDING_EXPIRATION"`

	// RequireAuthenticatedUser bounces the user straight back into an
	// authorize flow whenever the session ends.
	RequireAuthenticatedUser bool `env:"AUTHKIT_REQUIRE_AUTHENTICATED_USER"`

	// GetUserInfoFromIDToken builds the user identity from the
	// id_token claims instead of calling the /userinfo endpoint. The
	// two sources are never merged.
	GetUserInfoFromIDToken bool `env:"AUTHKIT_USER_INFO_FROM_ID_TOKEN"`

	// Namespace prefixes transaction storage keys.
	Namespace string `env:"AUTHKIT_NAMESPACE,default=com.auth0.auth."`

	// KeyLength is the entropy, in bytes, of generated state and nonce
	// values.
	KeyLength int `env:"AUTHKIT_KEY_LENGTH,default=32"`

	// UILocales optionally requests provider UI languages.
	UILocales []language.Tag `env:"-"`

	// StrictStateCheck fails responses whose transaction cannot be
	// found instead of skipping the state comparison.
	StrictStateCheck bool `env:"AUTHKIT_STRICT_STATE_CHECK"`

	// StrictAccessTokenHash treats a missing at_hash claim as a
	// validation failure instead of a logged warning.
	StrictAccessTokenHash bool `env:"AUTHKIT_STRICT_AT_HASH"`

	// ProviderCA is an optional CA cert PEM to trust when calling the
	// provider.
	ProviderCA string `env:"AUTHKIT_PROVIDER_CA"`
}

// NewConfig composes a new client config.
// Supported options: WithClientSecret, WithAudience, WithScope,
// WithConnection, WithRealm, WithRedirectURL, WithResponseType,
// WithResponseMode, WithLoginMode, WithSlidingExpiration,
// WithRequireAuthenticatedUser, WithUserInfoFromIDToken,
// WithNamespace, WithKeyLength, WithUILocales, WithProviderCA
func NewConfig(domain string, clientID string, opt ...Option) (*Config, error) {
	const op = "oidc.NewConfig"
	opts := getConfigOpts(opt...)
	c := &Config{
		Domain:                   domain,
		ClientID:                 clientID,
		ClientSecret:             opts.withClientSecret,
		Audience:                 opts.withAudience,
		Scope:                    opts.withScope,
		Connection:               opts.withConnection,
		Realm:                    opts.withRealm,
		RedirectURL:              opts.withRedirectURL,
		ResponseType:             opts.withResponseType,
		ResponseMode:             opts.withResponseMode,
		LoginMode:                opts.withLoginMode,
		SlidingExpiration:        opts.withSlidingExpiration,
		RequireAuthenticatedUser: opts.withRequireAuthenticatedUser,
		GetUserInfoFromIDToken:   opts.withUserInfoFromIDToken,
		Namespace:                opts.withNamespace,
		KeyLength:                opts.withKeyLength,
		UILocales:                opts.withUILocales,
		ProviderCA:               opts.withProviderCA,
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid client config: %w", op, err)
	}
	return c, nil
}

// NewConfigFromEnv composes a client config from AUTHKIT_* environment
// variables and validates it.
func NewConfigFromEnv() (*Config, error) {
	const op = "oidc.NewConfigFromEnv"
	var c Config
	if err := envdecode.Decode(&c); err != nil {
		return nil, fmt.Errorf("%s: unable to decode environment: %w", op, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid client config: %w", op, err)
	}
	return &c, nil
}

// Validate the client configuration. Configuration errors are
// programmer errors: they are returned synchronously at setup time and
// never folded into a session state transition.
func (c *Config) Validate() error {
	const op = "Config.Validate"
	if c == nil {
		return fmt.Errorf("%s: client config is nil: %w", op, ErrNilParameter)
	}
	var result *multierror.Error
	if c.Domain == "" {
		result = multierror.Append(result, fmt.Errorf("domain is empty: %w", ErrInvalidParameter))
	}
	if c.ClientID == "" {
		result = multierror.Append(result, fmt.Errorf("client id is empty: %w", ErrInvalidParameter))
	}
	if !strutils.StrListContains(strings.Fields(c.Scope), "openid") {
		result = multierror.Append(result, ErrInvalidScope)
	}
	if !c.ResponseType.valid() {
		result = multierror.Append(result, fmt.Errorf("response type %q: %w", c.ResponseType, ErrInvalidParameter))
	}
	if c.KeyLength <= 0 {
		result = multierror.Append(result, fmt.Errorf("key length must be greater than zero: %w", ErrInvalidParameter))
	}
	return result.ErrorOrNil()
}

// HTTPClient returns a new http client for the provider, trusting the
// configured CA when one is set.
func (c *Config) HTTPClient() (*http.Client, error) {
	const op = "Config.HTTPClient"
	client, err := sdkHTTP.NewClient(c.ProviderCA)
	if err != nil {
		if err == sdkHTTP.ErrInvalidCertificatePem {
			return nil, fmt.Errorf("%s: could not parse CA PEM value: %w", op, ErrInvalidCACert)
		}
		return nil, fmt.Errorf("%s: could not get an http client: %w", op, err)
	}
	return client, nil
}

// EffectiveResponseType is the response type actually dispatched:
// a configured client secret forces the authorization code grant.
func (c *Config) EffectiveResponseType() ResponseType {
	if c.ClientSecret != "" {
		return ResponseTypeCode
	}
	return c.ResponseType
}

// configOptions is the set of available options for config functions
type configOptions struct {
	withClientSecret             ClientSecret
	withAudience                 string
	withScope                    string
	withConnection               string
	withRealm                    string
	withRedirectURL              string
	withResponseType             ResponseType
	withResponseMode             ResponseMode
	withLoginMode                LoginMode
	withSlidingExpiration        bool
	withRequireAuthenticatedUser bool
	withUserInfoFromIDToken      bool
	withNamespace                string
	withKeyLength                int
	withUILocales                []language.Tag
	withProviderCA               string
}

// configDefaults is a handy way to get the defaults at runtime and
// during unit tests.
func configDefaults() configOptions {
	return configOptions{
		withScope:        DefaultScope,
		withResponseType: ResponseTypeCode,
		withResponseMode: ResponseModeQuery,
		withLoginMode:    LoginModeRedirect,
		withNamespace:    DefaultNamespace,
		withKeyLength:    DefaultKeyLength,
	}
}

func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithClientSecret provides the secret for a confidential client.
func WithClientSecret(secret ClientSecret) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withClientSecret = secret
		}
	}
}

// WithAudience provides an optional API audience.
func WithAudience(audience string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withAudience = audience
		}
	}
}

// WithScope overrides the default "openid profile email" scope.
func WithScope(scope string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withScope = scope
		}
	}
}

// WithConnection pins the provider connection.
func WithConnection(connection string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withConnection = connection
		}
	}
}

// WithRealm pins the realm, preferred over the connection.
func WithRealm(realm string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withRealm = realm
		}
	}
}

// WithRedirectURL provides the redirect URL for authorization
// responses.
func WithRedirectURL(redirectURL string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withRedirectURL = redirectURL
		}
	}
}

// WithResponseType overrides the default "code" response type.
func WithResponseType(t ResponseType) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withResponseType = t
		}
	}
}

// WithResponseMode overrides the default "query" response mode.
func WithResponseMode(m ResponseMode) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withResponseMode = m
		}
	}
}

// WithLoginMode selects redirect or popup dispatch for interactive
// logins.
func WithLoginMode(m LoginMode) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withLoginMode = m
		}
	}
}

// WithSlidingExpiration enables silent renewal before session expiry.
func WithSlidingExpiration() Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withSlidingExpiration = true
		}
	}
}

// WithRequireAuthenticatedUser bounces the user back into an authorize
// flow whenever the session ends.
func WithRequireAuthenticatedUser() Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withRequireAuthenticatedUser = true
		}
	}
}

// WithUserInfoFromIDToken builds the identity from id_token claims
// instead of the /userinfo endpoint.
func WithUserInfoFromIDToken() Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withUserInfoFromIDToken = true
		}
	}
}

// WithNamespace overrides the transaction storage key prefix.
func WithNamespace(namespace string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withNamespace = namespace
		}
	}
}

// WithKeyLength overrides the entropy, in bytes, of generated
// state/nonce values.
func WithKeyLength(n int) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withKeyLength = n
		}
	}
}

// WithUILocales requests provider UI languages.
func WithUILocales(locales ...language.Tag) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withUILocales = locales
		}
	}
}

// WithProviderCA provides an optional CA cert PEM for provider calls.
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withProviderCA = cert
		}
	}
}
