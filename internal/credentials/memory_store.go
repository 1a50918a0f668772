package credentials

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory credential store intended for tests and dev.
type MemoryStore struct {
	mutex   sync.Mutex
	byUser  map[string]StoredCredential
	now     func() time.Time
	upserts int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byUser: make(map[string]StoredCredential),
		now:    time.Now,
	}
}

// Upsert stores the credential, reusing the id of an existing row for the same user.
func (store *MemoryStore) Upsert(ctx context.Context, credential StoredCredential) (StoredCredential, error) {
	if strings.TrimSpace(credential.UserID) == "" {
		return StoredCredential{}, fmt.Errorf("credential_store.upsert.memory: %w", ErrEmptyUserID)
	}
	if credential.AccessToken == "" {
		return StoredCredential{}, fmt.Errorf("credential_store.upsert.memory: %w", ErrEmptyAccessToken)
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()

	credential.ID = uuid.NewString()
	if existing, ok := store.byUser[credential.UserID]; ok {
		credential.ID = existing.ID
	}
	credential.UpdatedAt = store.now().UTC()
	store.byUser[credential.UserID] = credential
	store.upserts++
	return credential, nil
}

// Get returns the credential of userID.
func (store *MemoryStore) Get(ctx context.Context, userID string) (StoredCredential, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	credential, ok := store.byUser[userID]
	if !ok {
		return StoredCredential{}, fmt.Errorf("credential_store.get.memory: %w", ErrCredentialNotFound)
	}
	return credential, nil
}

// Delete removes the credential of userID.
func (store *MemoryStore) Delete(ctx context.Context, userID string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if _, ok := store.byUser[userID]; !ok {
		return fmt.Errorf("credential_store.delete.memory: %w", ErrCredentialNotFound)
	}
	delete(store.byUser, userID)
	return nil
}

// UpsertCount returns how many writes the store has accepted.
func (store *MemoryStore) UpsertCount() int {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.upserts
}
