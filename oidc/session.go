package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// SessionState is the authentication state of the current session.
type SessionState int

const (
	// SessionUndefined means no determination has been made yet; the
	// very first navigation starts here, and a cleared session returns
	// here when an authenticated user is required.
	SessionUndefined SessionState = iota

	// SessionActive means the user holds a valid, unexpired session.
	SessionActive

	// SessionInactive means the user is known to be logged out.
	SessionInactive
)

func (s SessionState) String() string {
	switch s {
	case SessionActive:
		return "active"
	case SessionInactive:
		return "inactive"
	default:
		return "undefined"
	}
}

// Navigation abstracts the host application's ability to send the
// user agent somewhere. A browser host navigates the window; a test
// records the URL.
type Navigation interface {
	// Navigate sends the user agent to the URL. forceReload requests a
	// full reload rather than an in-app route change.
	Navigate(url string, forceReload bool)

	// CurrentURI returns the URI the user agent is currently on.
	CurrentURI() (*url.URL, error)
}

// Dispatcher abstracts the non-navigation ways an authorize URL can be
// delivered: a popup window or a hidden iframe for silent flows.
// Hosts that cannot provide one leave it nil and the session manager
// falls back to navigation.
type Dispatcher interface {
	OpenPopup(url string) error
	DrawHiddenIframe(url string) error
}

// Capabilities describes what the hosting environment can do, so one
// session manager serves browser-embedded and server-backed hosts
// alike.
type Capabilities struct {
	// RedirectFlow means the host can perform full-page redirects.
	RedirectFlow bool

	// RefreshToken means the host may hold and use refresh tokens for
	// renewal instead of hidden-iframe silent login.
	RefreshToken bool

	// CookieSession means an external cookie-authenticated session can
	// be resumed without a browser flow.
	CookieSession bool
}

// renewalLeadTime is subtracted from the session lifetime so renewal
// fires before the tokens actually expire.
const renewalLeadTime = 5 * time.Second

// SessionManager drives the login lifecycle: it builds and dispatches
// authorize requests, handles provider responses, maintains the
// session state machine and schedules renewal before expiry.
type SessionManager struct {
	config *Config
	txMgr  *TransactionManager
	nav    Navigation
	disp   Dispatcher
	caps   Capabilities
	client *http.Client
	logger hclog.Logger

	mu          sync.Mutex
	state       SessionState
	session     *SessionInfo
	user        *Identity
	tx          *Transaction
	renewTimer  *time.Timer
	renewAt     time.Time
	subscribers []func(SessionState)
}

// NewSessionManager creates a session manager for the given client
// config, transaction store and navigation host. The initial state is
// SessionUndefined.
// Supported options: WithLogger, WithHTTPClient, WithDispatcher,
// WithCapabilities, WithTransactionTTL
func NewSessionManager(c *Config, store Store, nav Navigation, opt ...Option) (*SessionManager, error) {
	const op = "oidc.NewSessionManager"
	if c == nil {
		return nil, fmt.Errorf("%s: client config is nil: %w", op, ErrNilParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid client config: %w", op, err)
	}
	if nav == nil {
		return nil, fmt.Errorf("%s: navigation is nil: %w", op, ErrNilParameter)
	}
	opts := getSessionOpts(opt...)
	txMgr, err := NewTransactionManager(store, WithTransactionTTL(opts.withTransactionTTL))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	client := opts.withClient
	if client == nil {
		if client, err = c.HTTPClient(); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	logger := opts.withLogger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &SessionManager{
		config: c,
		txMgr:  txMgr,
		nav:    nav,
		disp:   opts.withDispatcher,
		caps:   opts.withCapabilities,
		client: client,
		logger: logger,
		state:  SessionUndefined,
	}, nil
}

// State returns the current session state.
func (m *SessionManager) State() SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Session returns a copy of the current session tokens, or nil when no
// session is active.
func (m *SessionManager) Session() *SessionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.clone()
}

// User returns the authenticated user identity, or nil.
func (m *SessionManager) User() *Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user
}

// RenewAt reports when the renewal timer will fire. The zero time
// means no renewal is scheduled.
func (m *SessionManager) RenewAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.renewAt
}

// Subscribe registers a callback invoked whenever the session state
// actually changes. Callbacks run outside the manager's lock.
func (m *SessionManager) Subscribe(fn func(SessionState)) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

func (m *SessionManager) setState(s SessionState) {
	m.mu.Lock()
	changed := m.state != s
	m.state = s
	subs := m.subscribers
	m.mu.Unlock()
	if !changed {
		return
	}
	for _, fn := range subs {
		fn(s)
	}
}

// authorizeOptions assembles the authorize options from the client
// config. Silent logins additionally force the web_message response
// mode.
func (m *SessionManager) authorizeOptions(silent bool) *AuthorizeOptions {
	o := &AuthorizeOptions{
		Domain:       m.config.Domain,
		ClientID:     m.config.ClientID,
		RedirectURI:  m.config.RedirectURL,
		ResponseType: m.config.EffectiveResponseType(),
		ResponseMode: m.config.ResponseMode,
		Scope:        m.config.Scope,
		Audience:     m.config.Audience,
		Connection:   m.config.Connection,
		Realm:        m.config.Realm,
		Namespace:    m.config.Namespace,
		KeyLength:    m.config.KeyLength,
		UILocales:    m.config.UILocales,
	}
	if silent {
		o.ResponseMode = ResponseModeWebMessage
	}
	return o
}

// Authorize starts an interactive login: it creates a transaction,
// builds the authorize URL and dispatches it via redirect or popup
// per the configured login mode. Public clients using the code grant
// get a PKCE verifier; confidential clients authenticate the exchange
// with their secret instead.
func (m *SessionManager) Authorize(ctx context.Context) error {
	const op = "SessionManager.Authorize"
	o := m.authorizeOptions(false)
	if o.ResponseType == ResponseTypeCode && m.config.ClientSecret == "" {
		verifier, err := NewCodeVerifier()
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		o.ChallengeMethod = verifier.Method()
		o.CodeChallenge = verifier.Challenge()
		o.CodeVerifier = verifier.Verifier()
	}
	tx, err := m.txMgr.Process(ctx, o)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	u, err := BuildAuthorizeURL(o)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	m.mu.Lock()
	m.tx = tx
	m.mu.Unlock()

	if m.config.LoginMode == LoginModePopup && m.disp != nil {
		if err := m.disp.OpenPopup(u); err != nil {
			return fmt.Errorf("%s: unable to open popup: %w", op, err)
		}
		return nil
	}
	m.nav.Navigate(u, true)
	return nil
}

// SilentLogin attempts a non-interactive login in a hidden iframe
// using prompt=none with the web_message response mode. The result
// arrives later through HandleWebMessage.
func (m *SessionManager) SilentLogin(ctx context.Context) error {
	const op = "SessionManager.SilentLogin"
	if m.disp == nil {
		return fmt.Errorf("%s: no dispatcher for hidden iframes: %w", op, ErrInvalidParameter)
	}
	o := m.authorizeOptions(true)
	if o.ResponseType == ResponseTypeCode && m.config.ClientSecret == "" {
		verifier, err := NewCodeVerifier()
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		o.ChallengeMethod = verifier.Method()
		o.CodeChallenge = verifier.Challenge()
		o.CodeVerifier = verifier.Verifier()
	}
	tx, err := m.txMgr.Process(ctx, o)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	u, err := BuildAuthorizeURL(o)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	m.mu.Lock()
	m.tx = tx
	m.mu.Unlock()

	if err := m.disp.DrawHiddenIframe(u + "&prompt=none"); err != nil {
		return fmt.Errorf("%s: unable to draw iframe: %w", op, err)
	}
	return nil
}

// ValidateSession inspects the current URI and decides what to do: a
// URI carrying an authorization response is handled, an empty one
// either triggers a silent login (when sliding expiration or a
// required user warrants it) or settles into the logged out state.
func (m *SessionManager) ValidateSession(ctx context.Context) error {
	const op = "SessionManager.ValidateSession"
	uri, err := m.nav.CurrentURI()
	if err != nil {
		return fmt.Errorf("%s: unable to read current uri: %w", op, err)
	}
	resp, err := ParseResponseURI(uri, m.config.EffectiveResponseType())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if resp == nil {
		if m.config.SlidingExpiration || m.config.RequireAuthenticatedUser {
			if m.disp != nil {
				return m.SilentLogin(ctx)
			}
			if m.config.RequireAuthenticatedUser {
				return m.Authorize(ctx)
			}
		}
		m.clearSession()
		return nil
	}
	// Scrub the response parameters from the address bar regardless of
	// outcome. Only redirect deliveries land here; web message posts
	// and programmatic responses never touch the address bar.
	defer m.redirectToCleanURI()
	return m.HandleResponse(ctx, resp)
}

// HandleWebMessage handles a web_message post relayed from a silent
// login iframe or a popup.
func (m *SessionManager) HandleWebMessage(ctx context.Context, raw []byte) error {
	const op = "SessionManager.HandleWebMessage"
	var msg WebMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("%s: unable to parse web message: %w", op, err)
	}
	return m.HandleResponse(ctx, msg.AuthorizationResponse())
}

// HandleResponse validates an authorization response, completes the
// grant and transitions the session state machine. On success the
// state becomes SessionActive and renewal is scheduled; on failure the
// session is cleared, and when the provider requires an interactive
// login and the configuration requires an authenticated user, a new
// authorize flow is started.
func (m *SessionManager) HandleResponse(ctx context.Context, resp *AuthorizationResponse) error {
	const op = "SessionManager.HandleResponse"
	if resp == nil {
		return fmt.Errorf("%s: response is nil: %w", op, ErrNilParameter)
	}

	// A response without a state was produced programmatically, such
	// as a refresh grant, and has no pending transaction to consume.
	var tx *Transaction
	if resp.State != "" {
		var err error
		if tx, err = m.txMgr.Consume(ctx, m.config, resp.State); err != nil {
			return m.failLogin(ctx, fmt.Errorf("%s: %w", op, err))
		}
	}
	var expectedState, expectedNonce string
	if tx != nil {
		expectedState = tx.State
		expectedNonce = tx.Nonce
	} else if m.config.StrictStateCheck {
		return m.failLogin(ctx, fmt.Errorf("%s: no transaction for response state: %w", op, ErrInvalidState))
	}

	if err := ValidateResponse(resp, m.config.Domain, expectedState); err != nil {
		return m.failLogin(ctx, fmt.Errorf("%s: %w", op, err))
	}

	info := resp.SessionInfo
	if resp.Code != "" {
		if tx == nil {
			tx = &Transaction{}
		}
		exchanged, err := ExchangeCode(ctx, m.client, m.config, tx, resp.Code)
		if err != nil {
			return m.failLogin(ctx, fmt.Errorf("%s: %w", op, err))
		}
		info = *exchanged
	}
	if info.AccessToken == "" && info.IDToken == "" {
		return m.failLogin(ctx, fmt.Errorf("%s: %w", op, ErrMissingAccessToken))
	}

	requiresNonce := m.config.EffectiveResponseType().IncludesIDToken()
	user, err := m.resolveIdentity(ctx, &info, requiresNonce)
	if err != nil {
		return m.failLogin(ctx, fmt.Errorf("%s: %w", op, err))
	}

	if requiresNonce {
		if err := ValidateTokenNonce(user.Nonce, expectedNonce); err != nil {
			return m.failLogin(ctx, fmt.Errorf("%s: %w", op, err))
		}
		if err := m.checkAccessTokenHash(user, info.AccessToken); err != nil {
			return m.failLogin(ctx, fmt.Errorf("%s: %w", op, err))
		}
	}

	if m.config.Audience != "" && info.AccessToken != "" {
		if err := user.AugmentPermissions(info.AccessToken); err != nil {
			return m.failLogin(ctx, fmt.Errorf("%s: %w", op, err))
		}
		// Server-side hosts trust the token's own expiry over the
		// transport-level expires_in.
		if claims, err := info.AccessToken.Claims(); err == nil && claims.ExpiresAt > 0 {
			if remaining := time.Until(time.Unix(claims.ExpiresAt, 0)); remaining > 0 {
				info.ExpiresIn = int(remaining / time.Second)
			}
		}
	}

	m.mu.Lock()
	m.session = &info
	m.user = user
	m.tx = nil
	m.mu.Unlock()
	m.setState(SessionActive)
	m.scheduleRenewal(info.ExpiresIn)
	return nil
}

// resolveIdentity builds the user identity either from the id_token
// claims or from the /userinfo endpoint. The id_token is used when the
// flow demands nonce validation or when the config prefers it.
func (m *SessionManager) resolveIdentity(ctx context.Context, info *SessionInfo, requiresNonce bool) (*Identity, error) {
	if requiresNonce || m.config.GetUserInfoFromIDToken {
		if info.IDToken == "" {
			return nil, ErrMissingIDToken
		}
		return IdentityFromIDToken(info.IDToken)
	}
	return FetchUserInfo(ctx, m.client, m.config.Domain, info.AccessToken)
}

// checkAccessTokenHash validates at_hash when both sides of the
// comparison exist. A token pair without an at_hash claim is logged
// and tolerated unless StrictAccessTokenHash is set.
func (m *SessionManager) checkAccessTokenHash(user *Identity, t AccessToken) error {
	if t == "" {
		return nil
	}
	if user.AtHash == "" {
		if m.config.StrictAccessTokenHash {
			return fmt.Errorf("id_token has no at_hash claim: %w", ErrInvalidAccessTokenHash)
		}
		m.logger.Warn("id_token has no at_hash claim, skipping access token hash validation")
		return nil
	}
	return ValidateAccessTokenHash(user.AtHash, t)
}

// failLogin clears the session and, when the provider asked for an
// interactive login and the host requires an authenticated user,
// starts a fresh authorize flow.
func (m *SessionManager) failLogin(ctx context.Context, err error) error {
	m.logger.Error("login failed", "error", err)
	m.clearSession()
	if errors.Is(err, ErrLoginRequired) && m.config.RequireAuthenticatedUser {
		if authErr := m.Authorize(ctx); authErr != nil {
			return fmt.Errorf("unable to restart login: %w", authErr)
		}
	}
	return err
}

// clearSession drops tokens, identity and any scheduled renewal. The
// resulting state is SessionUndefined when an authenticated user is
// required (a decision is still pending) and SessionInactive
// otherwise.
func (m *SessionManager) clearSession() {
	m.mu.Lock()
	m.session = nil
	m.user = nil
	m.tx = nil
	if m.renewTimer != nil {
		m.renewTimer.Stop()
		m.renewTimer = nil
	}
	m.renewAt = time.Time{}
	m.mu.Unlock()
	if m.config.RequireAuthenticatedUser {
		m.setState(SessionUndefined)
		return
	}
	m.setState(SessionInactive)
}

// Resume adopts a session established out of band, such as a cookie
// authenticated server-side session, without running a browser flow.
func (m *SessionManager) Resume(ctx context.Context, info *SessionInfo) error {
	const op = "SessionManager.Resume"
	if !m.caps.CookieSession {
		return fmt.Errorf("%s: host cannot resume external sessions: %w", op, ErrInvalidParameter)
	}
	if info == nil {
		return fmt.Errorf("%s: session info is nil: %w", op, ErrNilParameter)
	}
	if info.AccessToken == "" && info.IDToken == "" {
		m.clearSession()
		return nil
	}
	user, err := m.resolveIdentity(ctx, info, m.config.GetUserInfoFromIDToken)
	if err != nil {
		m.clearSession()
		return fmt.Errorf("%s: %w", op, err)
	}
	expiresIn := info.ExpiresIn
	if m.config.Audience != "" && info.AccessToken != "" {
		if err := user.AugmentPermissions(info.AccessToken); err != nil {
			m.clearSession()
			return fmt.Errorf("%s: %w", op, err)
		}
		if claims, err := info.AccessToken.Claims(); err == nil && claims.ExpiresAt > 0 {
			if remaining := time.Until(time.Unix(claims.ExpiresAt, 0)); remaining > 0 {
				expiresIn = int(remaining / time.Second)
			}
		}
	}
	cp := info.clone()
	cp.ExpiresIn = expiresIn
	m.mu.Lock()
	m.session = cp
	m.user = user
	m.mu.Unlock()
	m.setState(SessionActive)
	m.scheduleRenewal(expiresIn)
	return nil
}

// Logout ends the session: the refresh token is revoked on a best
// effort basis, the provider logout endpoint is visited and the local
// session is cleared. When no redirect URL is configured and an
// authenticated user is required, a fresh authorize flow is started
// instead of navigating to the logout endpoint.
func (m *SessionManager) Logout(ctx context.Context) error {
	const op = "SessionManager.Logout"
	m.mu.Lock()
	var refreshToken RefreshToken
	if m.session != nil {
		refreshToken = m.session.RefreshToken
	}
	m.mu.Unlock()

	if refreshToken != "" {
		if err := RevokeRefreshToken(ctx, m.client, m.config, refreshToken); err != nil {
			m.logger.Warn("unable to revoke refresh token", "error", err)
		}
	}

	if m.config.RedirectURL == "" && m.config.RequireAuthenticatedUser {
		m.clearSession()
		if err := m.Authorize(ctx); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	}
	u, err := BuildLogoutURL(m.config.Domain, m.config.ClientID, m.config.RedirectURL)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	m.nav.Navigate(u, true)
	m.clearSession()
	return nil
}

// scheduleRenewal arms the renewal timer a fixed lead time before the
// session expires. A lifetime at or under the lead time fires
// immediately.
func (m *SessionManager) scheduleRenewal(expiresIn int) {
	d := time.Duration(expiresIn)*time.Second - renewalLeadTime
	if d < 0 {
		d = 0
	}
	m.mu.Lock()
	if m.renewTimer != nil {
		m.renewTimer.Stop()
	}
	m.renewAt = time.Now().Add(d)
	m.renewTimer = time.AfterFunc(d, m.onRenewTimer)
	m.mu.Unlock()
}

// onRenewTimer runs when the session is about to expire. With sliding
// expiration the session is renewed, preferring the refresh grant when
// the host can hold refresh tokens and then falling back to a silent
// iframe login; without it the session is logged out.
func (m *SessionManager) onRenewTimer() {
	ctx := context.Background()
	if !m.config.SlidingExpiration {
		if err := m.Logout(ctx); err != nil {
			m.logger.Error("unable to log out expired session", "error", err)
		}
		return
	}

	m.mu.Lock()
	var refreshToken RefreshToken
	if m.session != nil {
		refreshToken = m.session.RefreshToken
	}
	m.mu.Unlock()

	if m.caps.RefreshToken && refreshToken != "" && m.config.ClientSecret != "" {
		resp, err := RefreshGrant(ctx, m.client, m.config, refreshToken)
		if err != nil {
			m.logger.Error("refresh grant failed", "error", err)
			m.clearSession()
			return
		}
		if err := m.HandleResponse(ctx, resp); err != nil {
			m.logger.Error("unable to adopt refreshed session", "error", err)
		}
		return
	}
	if m.disp != nil {
		if err := m.SilentLogin(ctx); err != nil {
			m.logger.Error("silent renewal failed", "error", err)
			m.clearSession()
		}
		return
	}
	if err := m.Logout(ctx); err != nil {
		m.logger.Error("unable to log out expired session", "error", err)
	}
}

// redirectToCleanURI strips the authorization response parameters from
// the address bar after a redirect delivery has been handled.
func (m *SessionManager) redirectToCleanURI() {
	uri, err := m.nav.CurrentURI()
	if err != nil {
		return
	}
	clean := *uri
	clean.RawQuery = ""
	clean.Fragment = ""
	clean.RawFragment = ""
	target := strings.TrimSuffix(clean.String(), "#")
	m.nav.Navigate(target, false)
}

// sessionOptions is the set of available options for session manager
// functions
type sessionOptions struct {
	withLogger         hclog.Logger
	withClient         *http.Client
	withDispatcher     Dispatcher
	withCapabilities   Capabilities
	withTransactionTTL time.Duration
}

// sessionDefaults is a handy way to get the defaults at runtime and
// during unit tests.
func sessionDefaults() sessionOptions {
	return sessionOptions{
		withCapabilities:   Capabilities{RedirectFlow: true},
		withTransactionTTL: DefaultTransactionTTL,
	}
}

func getSessionOpts(opt ...Option) sessionOptions {
	opts := sessionDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithLogger provides a logger for session lifecycle events.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*sessionOptions); ok {
			o.withLogger = l
		}
	}
}

// WithHTTPClient overrides the http client used for provider calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o interface{}) {
		if o, ok := o.(*sessionOptions); ok {
			o.withClient = c
		}
	}
}

// WithDispatcher provides popup and hidden iframe dispatch.
func WithDispatcher(d Dispatcher) Option {
	return func(o interface{}) {
		if o, ok := o.(*sessionOptions); ok {
			o.withDispatcher = d
		}
	}
}

// WithCapabilities declares what the hosting environment can do.
func WithCapabilities(caps Capabilities) Option {
	return func(o interface{}) {
		if o, ok := o.(*sessionOptions); ok {
			o.withCapabilities = caps
		}
	}
}
