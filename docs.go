// authkit is a collection of embeddable authentication client packages.
//
// The oidc package provides the OAuth2/OIDC authorization code (with
// PKCE) and implicit grant client flows, together with a session
// manager that keeps an authenticated session alive via silent
// re-authentication or refresh-token exchange.
package authkit
