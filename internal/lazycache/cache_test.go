package lazycache

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestGetLoadsOnce(t *testing.T) {
	calls := 0
	cache := New[[]string](func(ctx context.Context) ([]string, error) {
		calls++
		return []string{"Weingut", "Sorte"}, nil
	})

	var waitGroup sync.WaitGroup
	for i := 0; i < 8; i++ {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			if _, err := cache.Get(context.Background()); err != nil {
				t.Errorf("get failed: %v", err)
			}
		}()
	}
	waitGroup.Wait()

	if calls != 1 || cache.Loads() != 1 {
		t.Fatalf("expected one load, got %d", calls)
	}
	if !cache.Loaded() {
		t.Fatalf("expected cache to be loaded")
	}
}

func TestErrorsAreNotCached(t *testing.T) {
	fail := true
	cache := New[int](func(ctx context.Context) (int, error) {
		if fail {
			return 0, errors.New("boom")
		}
		return 42, nil
	})
	if _, err := cache.Get(context.Background()); err == nil {
		t.Fatalf("expected loader error")
	}
	fail = false
	value, err := cache.Get(context.Background())
	if err != nil || value != 42 {
		t.Fatalf("expected 42, got %d (%v)", value, err)
	}
	if cache.Loads() != 2 {
		t.Fatalf("expected retry after failure, got %d loads", cache.Loads())
	}
}

func TestInvalidateForcesReload(t *testing.T) {
	version := 0
	cache := New[int](func(ctx context.Context) (int, error) {
		version++
		return version, nil
	})
	first, _ := cache.Get(context.Background())
	cache.Invalidate()
	if cache.Loaded() {
		t.Fatalf("expected cache to be empty after invalidate")
	}
	second, _ := cache.Get(context.Background())
	if first != 1 || second != 2 {
		t.Fatalf("expected reload, got %d then %d", first, second)
	}
}
