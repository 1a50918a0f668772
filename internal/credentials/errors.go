package credentials

import "errors"

var (
	// ErrCredentialNotFound indicates that the user never connected an account or disconnected it.
	ErrCredentialNotFound = errors.New("credential_store.not_found")
	// ErrEmptyUserID indicates that an operation was attempted without an owning user.
	ErrEmptyUserID = errors.New("credential_store.empty_user_id")
	// ErrEmptyAccessToken indicates an attempt to persist a credential without an access token.
	ErrEmptyAccessToken = errors.New("credential_store.empty_access_token")
)
