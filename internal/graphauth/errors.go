package graphauth

import "errors"

var (
	// ErrNotConfigured indicates that client id, secret, or tenant id is missing.
	ErrNotConfigured = errors.New("graph_auth.not_configured")
	// ErrNotConnected indicates that the user never completed the authorization flow.
	ErrNotConnected = errors.New("graph_auth.not_connected")
	// ErrRefreshImpossible indicates an expiring credential without a refresh token.
	ErrRefreshImpossible = errors.New("graph_auth.refresh_impossible")
	// ErrTokenEndpoint indicates that the token could not be retrieved from the provider.
	ErrTokenEndpoint = errors.New("graph_auth.token_unavailable")
	// ErrIncompleteTokenResponse indicates a token response without access token or lifetime.
	ErrIncompleteTokenResponse = errors.New("graph_auth.incomplete_token_response")
	// ErrEmptyAuthorizationCode indicates a callback without a code.
	ErrEmptyAuthorizationCode = errors.New("graph_auth.empty_code")
)
