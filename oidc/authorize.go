package oidc

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/text/language"

	"github.com/authkit/authkit/oidc/internal/strutils"
)

// AuthorizeOptions carries everything needed to build an authorize
// request URL. A TransactionManager fills in the generated values
// (state, nonce, PKCE verifier) before the URL is built.
type AuthorizeOptions struct {
	Domain       string
	ClientID     string
	RedirectURI  string
	ResponseType ResponseType
	ResponseMode ResponseMode

	State string
	Nonce string

	ChallengeMethod ChallengeMethod
	CodeChallenge   string
	CodeVerifier    string

	Scope      string
	Audience   string
	Connection string
	Realm      string

	// AppState is opaque application state restored after the redirect
	// round trip. It is persisted with the transaction, never sent to
	// the provider.
	AppState string

	Namespace string
	KeyLength int

	UILocales []language.Tag
}

// Validate the authorize options before building a URL.
func (o *AuthorizeOptions) Validate() error {
	const op = "AuthorizeOptions.Validate"
	if o == nil {
		return fmt.Errorf("%s: options are nil: %w", op, ErrNilParameter)
	}
	var result *multierror.Error
	if o.Domain == "" {
		result = multierror.Append(result, fmt.Errorf("domain is empty: %w", ErrInvalidParameter))
	}
	if o.ClientID == "" {
		result = multierror.Append(result, fmt.Errorf("client id is empty: %w", ErrInvalidParameter))
	}
	if o.RedirectURI == "" {
		result = multierror.Append(result, fmt.Errorf("redirect uri is empty: %w", ErrInvalidParameter))
	}
	if o.State == "" {
		result = multierror.Append(result, fmt.Errorf("state is empty: %w", ErrInvalidParameter))
	}
	if o.Scope == "" {
		result = multierror.Append(result, fmt.Errorf("scope is empty: %w", ErrInvalidParameter))
	} else if !strutils.StrListContains(strings.Fields(o.Scope), "openid") {
		result = multierror.Append(result, ErrInvalidScope)
	}
	if !o.ResponseType.valid() {
		result = multierror.Append(result, fmt.Errorf("response type %q: %w", o.ResponseType, ErrInvalidParameter))
	}
	if o.ResponseType.IncludesIDToken() && o.Nonce == "" {
		result = multierror.Append(result, fmt.Errorf("nonce is required when an id_token is requested: %w", ErrInvalidNonce))
	}
	if (o.CodeChallenge == "") != (o.CodeVerifier == "") {
		result = multierror.Append(result, fmt.Errorf("code challenge and verifier must be set together: %w", ErrInvalidParameter))
	}
	if o.CodeChallenge != "" && o.ChallengeMethod != S256 {
		result = multierror.Append(result, fmt.Errorf("challenge method %q: %w", o.ChallengeMethod, ErrUnsupportedChallengeMethod))
	}
	return result.ErrorOrNil()
}

// BuildAuthorizeURL assembles the provider /authorize URL. The query
// is built by hand instead of url.Values: the parameter order is part
// of the contract and url.Values encodes sorted by key.
func BuildAuthorizeURL(o *AuthorizeOptions) (string, error) {
	const op = "oidc.BuildAuthorizeURL"
	if err := o.Validate(); err != nil {
		return "", fmt.Errorf("%s: invalid authorize options: %w", op, err)
	}

	var b strings.Builder
	b.WriteString("https://")
	b.WriteString(o.Domain)
	b.WriteString("/authorize")

	params := make([]string, 0, 12)
	add := func(key, value string) {
		params = append(params, key+"="+url.QueryEscape(value))
	}

	add("response_type", string(o.ResponseType))
	add("state", o.State)
	if o.Nonce != "" {
		add("nonce", o.Nonce)
	}
	add("client_id", o.ClientID)
	add("scope", o.Scope)
	if o.CodeChallenge != "" {
		add("code_challenge_method", string(o.ChallengeMethod))
		add("code_challenge", o.CodeChallenge)
	}
	// A realm rides in the connection parameter and wins over a plain
	// connection when both are configured.
	switch {
	case o.Realm != "":
		add("connection", o.Realm)
	case o.Connection != "":
		add("connection", o.Connection)
	}
	if o.Audience != "" {
		add("audience", o.Audience)
	}
	if len(o.UILocales) > 0 {
		add("ui_locales", joinLocales(o.UILocales))
	}
	if o.ResponseMode != "" {
		add("response_mode", string(o.ResponseMode))
	}
	add("redirect_uri", o.RedirectURI)

	b.WriteString("?")
	b.WriteString(strings.Join(params, "&"))
	return b.String(), nil
}

func joinLocales(locales []language.Tag) string {
	tags := make([]string, 0, len(locales))
	for _, l := range locales {
		tags = append(tags, l.String())
	}
	return strings.Join(tags, " ")
}

// BuildLogoutURL assembles the provider logout URL. returnTo is
// optional.
func BuildLogoutURL(domain string, clientID string, returnTo string) (string, error) {
	const op = "oidc.BuildLogoutURL"
	var result *multierror.Error
	if domain == "" {
		result = multierror.Append(result, fmt.Errorf("domain is empty: %w", ErrInvalidParameter))
	}
	if clientID == "" {
		result = multierror.Append(result, fmt.Errorf("client id is empty: %w", ErrInvalidParameter))
	}
	if err := result.ErrorOrNil(); err != nil {
		return "", fmt.Errorf("%s: invalid logout options: %w", op, err)
	}
	u := fmt.Sprintf("https://%s/v2/logout?client_id=%s", domain, url.QueryEscape(clientID))
	if returnTo != "" {
		u += "&returnTo=" + url.QueryEscape(returnTo)
	}
	return u, nil
}
