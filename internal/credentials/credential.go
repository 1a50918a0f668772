package credentials

import (
	"context"
	"time"
)

// StoredCredential is the persisted form of the latest Microsoft Graph grant of one user.
type StoredCredential struct {
	ID           string
	UserID       string
	AccessToken  string
	RefreshToken string
	Scope        string
	TokenType    string
	ExpiresAt    time.Time
	UpdatedAt    time.Time
}

// HasRefreshToken reports whether the credential can be renewed without user interaction.
func (credential StoredCredential) HasRefreshToken() bool {
	return credential.RefreshToken != ""
}

// Store persists at most one credential per user id.
type Store interface {
	// Upsert inserts the credential or replaces the existing row of the same user.
	Upsert(ctx context.Context, credential StoredCredential) (StoredCredential, error)
	Get(ctx context.Context, userID string) (StoredCredential, error)
	Delete(ctx context.Context, userID string) error
}
