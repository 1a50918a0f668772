package graphauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultStateTTL bounds how long a user may take to complete the Microsoft consent screen.
const DefaultStateTTL = 10 * time.Minute

var (
	// ErrStateNotFound indicates the state was never issued or was already consumed.
	ErrStateNotFound = errors.New("graph_auth.state_not_found")
	// ErrStateExpired indicates the state outlived its TTL.
	ErrStateExpired = errors.New("graph_auth.state_expired")
)

// StateStore issues one-time OAuth state values bound to the requesting user.
type StateStore interface {
	Issue(ctx context.Context, userID string) (string, error)
	// Consume invalidates the state and returns the user it was issued for.
	Consume(ctx context.Context, state string) (string, error)
}

type pendingState struct {
	userID    string
	expiresAt time.Time
}

type memoryStateStore struct {
	mutex     sync.Mutex
	entries   map[string]pendingState
	ttl       time.Duration
	now       func() time.Time
	stateSize int
}

// NewMemoryStateStore keeps pending states in process memory.
func NewMemoryStateStore(ttl time.Duration) StateStore {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &memoryStateStore{
		entries:   make(map[string]pendingState),
		ttl:       ttl,
		now:       time.Now,
		stateSize: 32,
	}
}

func (store *memoryStateStore) Issue(ctx context.Context, userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("graph_auth.state.issue: %w", ErrNotConnected)
	}
	state, err := newStateValue(store.stateSize)
	if err != nil {
		return "", err
	}

	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.purgeExpiredLocked()
	store.entries[state] = pendingState{userID: userID, expiresAt: store.now().Add(store.ttl)}
	return state, nil
}

func (store *memoryStateStore) Consume(ctx context.Context, state string) (string, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	defer store.purgeExpiredLocked()

	entry, ok := store.entries[state]
	if !ok {
		return "", ErrStateNotFound
	}
	delete(store.entries, state)
	if store.now().After(entry.expiresAt) {
		return "", ErrStateExpired
	}
	return entry.userID, nil
}

func (store *memoryStateStore) purgeExpiredLocked() {
	now := store.now()
	for state, entry := range store.entries {
		if now.After(entry.expiresAt) {
			delete(store.entries, state)
		}
	}
}

func newStateValue(size int) (string, error) {
	buffer := make([]byte, size)
	if _, err := rand.Read(buffer); err != nil {
		return "", fmt.Errorf("graph_auth.state.issue: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}
