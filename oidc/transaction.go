package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Transaction is the per-login secret material persisted between
// building an authorize URL and handling the provider's response. It
// is keyed by state and read at most once.
type Transaction struct {
	State        string `json:"state"`
	Nonce        string `json:"nonce,omitempty"`
	CodeVerifier string `json:"code_verifier,omitempty"`
	RedirectURI  string `json:"redirect_uri,omitempty"`
	AppState     string `json:"app_state,omitempty"`
	Connection   string `json:"connection,omitempty"`
}

// Store is the backing storage for pending transactions. Get must
// return an error wrapping ErrNotFound when no value exists for the
// key.
type Store interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// DefaultTransactionTTL bounds how long an abandoned login attempt
// stays in storage.
const DefaultTransactionTTL = 10 * time.Minute

// TransactionManager persists and consumes login transactions.
type TransactionManager struct {
	store Store
	ttl   time.Duration
}

// NewTransactionManager creates a manager over the given store.
// Supported options: WithTransactionTTL
func NewTransactionManager(store Store, opt ...Option) (*TransactionManager, error) {
	const op = "oidc.NewTransactionManager"
	if store == nil {
		return nil, fmt.Errorf("%s: store is nil: %w", op, ErrNilParameter)
	}
	opts := getTxOpts(opt...)
	return &TransactionManager{
		store: store,
		ttl:   opts.withTTL,
	}, nil
}

// Process fills in the generated parts of the authorize options
// (state, nonce when an id_token is requested, app state) and persists
// the transaction under the namespaced state key. Values already set
// by the caller are kept, so Process is safe to call on pre-filled
// options.
func (m *TransactionManager) Process(ctx context.Context, o *AuthorizeOptions) (*Transaction, error) {
	const op = "TransactionManager.Process"
	if o == nil {
		return nil, fmt.Errorf("%s: authorize options are nil: %w", op, ErrNilParameter)
	}
	keyLength := o.KeyLength
	if keyLength <= 0 {
		keyLength = DefaultKeyLength
	}
	var err error
	if o.State == "" {
		if o.State, err = NewNonce(keyLength); err != nil {
			return nil, fmt.Errorf("%s: unable to generate state: %w", op, err)
		}
	}
	if o.Nonce == "" && o.ResponseType.IncludesIDToken() {
		if o.Nonce, err = NewNonce(keyLength); err != nil {
			return nil, fmt.Errorf("%s: unable to generate nonce: %w", op, err)
		}
	}
	if o.AppState == "" {
		if o.AppState, err = NewNonce(keyLength); err != nil {
			return nil, fmt.Errorf("%s: unable to generate app state: %w", op, err)
		}
	}

	connection := o.Connection
	if o.Realm != "" {
		connection = o.Realm
	}
	tx := &Transaction{
		State:        o.State,
		Nonce:        o.Nonce,
		CodeVerifier: o.CodeVerifier,
		RedirectURI:  o.RedirectURI,
		AppState:     o.AppState,
		Connection:   connection,
	}
	data, err := json.Marshal(tx)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to marshal transaction: %w", op, err)
	}
	namespace := o.Namespace
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if err := m.store.Set(ctx, namespace+tx.State, data, m.ttl); err != nil {
		return nil, fmt.Errorf("%s: unable to persist transaction: %w", op, err)
	}
	return tx, nil
}

// Consume reads and deletes the transaction for the given state. A
// transaction is single use: once consumed it cannot be read again.
// When no transaction exists Consume returns (nil, nil); callers
// decide whether that is acceptable for their flow.
func (m *TransactionManager) Consume(ctx context.Context, c *Config, state string) (*Transaction, error) {
	const op = "TransactionManager.Consume"
	if c == nil {
		return nil, fmt.Errorf("%s: client config is nil: %w", op, ErrNilParameter)
	}
	if state == "" {
		return nil, fmt.Errorf("%s: state is empty: %w", op, ErrInvalidParameter)
	}
	namespace := c.Namespace
	if namespace == "" {
		namespace = DefaultNamespace
	}
	key := namespace + state
	data, err := m.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: unable to read transaction: %w", op, err)
	}
	if err := m.store.Delete(ctx, key); err != nil {
		return nil, fmt.Errorf("%s: unable to delete transaction: %w", op, err)
	}
	var tx Transaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("%s: unable to unmarshal transaction: %w", op, err)
	}
	return &tx, nil
}

// txOptions is the set of available options for transaction manager
// functions
type txOptions struct {
	withTTL time.Duration
}

// txDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func txDefaults() txOptions {
	return txOptions{
		withTTL: DefaultTransactionTTL,
	}
}

func getTxOpts(opt ...Option) txOptions {
	opts := txDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithTransactionTTL overrides how long a pending transaction may live
// in storage.
func WithTransactionTTL(ttl time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*txOptions); ok {
			o.withTTL = ttl
		}
		if o, ok := o.(*sessionOptions); ok {
			o.withTransactionTTL = ttl
		}
	}
}
