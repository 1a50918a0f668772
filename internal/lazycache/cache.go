// Package lazycache holds one process-wide value that is computed on first use and
// kept until it is explicitly invalidated.
package lazycache

import (
	"context"
	"sync"
)

// Loader computes the cached value.
type Loader[T any] func(ctx context.Context) (T, error)

// Cache memoizes the result of a Loader. Failed loads are not cached.
type Cache[T any] struct {
	mutex  sync.Mutex
	loader Loader[T]
	value  T
	loaded bool
	loads  int
}

// New constructs an empty cache around loader.
func New[T any](loader Loader[T]) *Cache[T] {
	return &Cache[T]{loader: loader}
}

// Get returns the cached value, loading it when absent.
// Concurrent callers wait for a single in-flight load.
func (cache *Cache[T]) Get(ctx context.Context) (T, error) {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()
	if cache.loaded {
		return cache.value, nil
	}
	value, err := cache.loader(ctx)
	cache.loads++
	if err != nil {
		var zero T
		return zero, err
	}
	cache.value = value
	cache.loaded = true
	return value, nil
}

// Invalidate drops the cached value so the next Get reloads it.
func (cache *Cache[T]) Invalidate() {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()
	var zero T
	cache.value = zero
	cache.loaded = false
}

// Loaded reports whether a value is currently cached.
func (cache *Cache[T]) Loaded() bool {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()
	return cache.loaded
}

// Loads returns how many times the loader ran.
func (cache *Cache[T]) Loads() int {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()
	return cache.loads
}
