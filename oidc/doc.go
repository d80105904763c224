// Package oidc implements a client for the OAuth2/OIDC authorization
// code (with PKCE) and implicit grant flows against an identity
// provider, for embedding inside a hosting application or UI
// framework.
//
// The package is organized around a small set of collaborating pieces:
//
//   - Config: the immutable client configuration for a provider tenant.
//   - TransactionManager: per-flow state/nonce/verifier bookkeeping,
//     persisted in a Store and consumed exactly once when the
//     authorization response arrives.
//   - BuildAuthorizeURL / ExchangeCode / RefreshGrant / FetchUserInfo:
//     the fixed wire protocol to the provider.
//   - ValidateResponse / ValidateTokenNonce / ValidateAccessTokenHash:
//     origin, state, nonce and at_hash checks on inbound responses.
//   - Identity / ProjectClaims: the projection of standard and custom
//     claims into the session's user identity.
//   - SessionManager: the session state machine. It owns the mutable
//     session, drives the pieces above, and schedules silent
//     re-authentication or refresh-token renewal before expiry.
//
// The package never touches the hosting environment directly: page
// navigation, popup/iframe dispatch and key-value storage are
// interfaces (Navigation, Dispatcher, Store) implemented by the
// hosting adapter.
package oidc
