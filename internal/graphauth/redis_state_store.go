package graphauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

type redisStateStore struct {
	client    redis.UniversalClient
	prefix    string
	ttl       time.Duration
	stateSize int
}

// NewRedisStateStore keeps pending states in Redis so that any replica can serve the
// callback. Redis expires the keys, so an outdated state reports ErrStateNotFound.
func NewRedisStateStore(client redis.UniversalClient, prefix string, ttl time.Duration) StateStore {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	if strings.TrimSpace(prefix) == "" {
		prefix = "cellarcrm"
	}
	return &redisStateStore{client: client, prefix: prefix, ttl: ttl, stateSize: 32}
}

func (store *redisStateStore) key(state string) string {
	return fmt.Sprintf("%s:graph_state:%s", store.prefix, state)
}

func (store *redisStateStore) Issue(ctx context.Context, userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("graph_auth.state.issue: %w", ErrNotConnected)
	}
	state, err := newStateValue(store.stateSize)
	if err != nil {
		return "", err
	}
	stored, err := store.client.SetNX(ctx, store.key(state), userID, store.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("graph_auth.state.issue.redis: %w", err)
	}
	if !stored {
		return "", fmt.Errorf("graph_auth.state.issue.redis: state collision")
	}
	return state, nil
}

func (store *redisStateStore) Consume(ctx context.Context, state string) (string, error) {
	if strings.TrimSpace(state) == "" {
		return "", ErrStateNotFound
	}
	userID, err := store.client.GetDel(ctx, store.key(state)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrStateNotFound
		}
		return "", fmt.Errorf("graph_auth.state.consume.redis: %w", err)
	}
	return userID, nil
}
