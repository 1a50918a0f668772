package credentialspg

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tyemirov/cellarcrm/internal/credentials"
)

// Store persists Graph credentials in PostgreSQL through a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Postgres credential store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Upsert inserts the credential or replaces the row owned by the same user.
func (store *Store) Upsert(ctx context.Context, credential credentials.StoredCredential) (credentials.StoredCredential, error) {
	if strings.TrimSpace(credential.UserID) == "" {
		return credentials.StoredCredential{}, fmt.Errorf("credential_store.upsert.pgx: %w", credentials.ErrEmptyUserID)
	}
	if credential.AccessToken == "" {
		return credentials.StoredCredential{}, fmt.Errorf("credential_store.upsert.pgx: %w", credentials.ErrEmptyAccessToken)
	}
	row := store.pool.QueryRow(ctx, `
INSERT INTO graph_credentials (id, user_id, access_token, refresh_token, scope, token_type, expires_unix, updated_at_unix)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (user_id) DO UPDATE SET
    access_token = EXCLUDED.access_token,
    refresh_token = EXCLUDED.refresh_token,
    scope = EXCLUDED.scope,
    token_type = EXCLUDED.token_type,
    expires_unix = EXCLUDED.expires_unix,
    updated_at_unix = EXCLUDED.updated_at_unix
RETURNING id, updated_at_unix
`, uuid.NewString(), credential.UserID, credential.AccessToken, credential.RefreshToken,
		credential.Scope, credential.TokenType, credential.ExpiresAt.Unix(), time.Now().UTC().Unix())
	var updatedAtUnix int64
	if scanErr := row.Scan(&credential.ID, &updatedAtUnix); scanErr != nil {
		return credentials.StoredCredential{}, fmt.Errorf("credential_store.upsert.pgx: %w", scanErr)
	}
	credential.ExpiresAt = time.Unix(credential.ExpiresAt.Unix(), 0).UTC()
	credential.UpdatedAt = time.Unix(updatedAtUnix, 0).UTC()
	return credential, nil
}

// Get loads the credential owned by userID.
func (store *Store) Get(ctx context.Context, userID string) (credentials.StoredCredential, error) {
	var credential credentials.StoredCredential
	var expiresUnix int64
	var updatedAtUnix int64
	row := store.pool.QueryRow(ctx, `
SELECT id, user_id, access_token, refresh_token, scope, token_type, expires_unix, updated_at_unix
FROM graph_credentials
WHERE user_id = $1
`, userID)
	scanErr := row.Scan(&credential.ID, &credential.UserID, &credential.AccessToken, &credential.RefreshToken,
		&credential.Scope, &credential.TokenType, &expiresUnix, &updatedAtUnix)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return credentials.StoredCredential{}, fmt.Errorf("credential_store.get.pgx: %w", credentials.ErrCredentialNotFound)
		}
		return credentials.StoredCredential{}, fmt.Errorf("credential_store.get.pgx: %w", scanErr)
	}
	credential.ExpiresAt = time.Unix(expiresUnix, 0).UTC()
	credential.UpdatedAt = time.Unix(updatedAtUnix, 0).UTC()
	return credential, nil
}

// Delete removes the credential owned by userID.
func (store *Store) Delete(ctx context.Context, userID string) error {
	tag, err := store.pool.Exec(ctx, `DELETE FROM graph_credentials WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("credential_store.delete.pgx: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("credential_store.delete.pgx: %w", credentials.ErrCredentialNotFound)
	}
	return nil
}
