package credentials

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/tyemirov/cellarcrm/internal/database"
)

func newSQLiteStore(t *testing.T) *DatabaseStore {
	t.Helper()
	gormDB, driverLabel, err := database.Open("sqlite://" + filepath.Join(t.TempDir(), "credentials.db"))
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	store, err := NewDatabaseStore(context.Background(), gormDB, driverLabel)
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}
	return store
}

func TestCredentialStoresShareSemantics(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		store func(t *testing.T) Store
	}{
		{
			name: "memory",
			store: func(t *testing.T) Store {
				t.Helper()
				return NewMemoryStore()
			},
		},
		{
			name: "sqlite",
			store: func(t *testing.T) Store {
				t.Helper()
				return newSQLiteStore(t)
			},
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			store := testCase.store(t)
			ctx := context.Background()

			if _, err := store.Get(ctx, "rep-1"); !errors.Is(err, ErrCredentialNotFound) {
				t.Fatalf("expected ErrCredentialNotFound, got %v", err)
			}

			expiry := time.Unix(1700003600, 0).UTC()
			first, err := store.Upsert(ctx, StoredCredential{
				UserID:       "rep-1",
				AccessToken:  "access-1",
				RefreshToken: "refresh-1",
				Scope:        "User.Read Calendars.Read offline_access",
				TokenType:    "Bearer",
				ExpiresAt:    expiry,
			})
			if err != nil {
				t.Fatalf("first upsert failed: %v", err)
			}
			if first.ID == "" {
				t.Fatalf("expected record id after upsert")
			}

			second, err := store.Upsert(ctx, StoredCredential{
				UserID:      "rep-1",
				AccessToken: "access-2",
				ExpiresAt:   expiry.Add(time.Hour),
			})
			if err != nil {
				t.Fatalf("second upsert failed: %v", err)
			}
			if second.ID != first.ID {
				t.Fatalf("expected stable id %s, got %s", first.ID, second.ID)
			}

			loaded, err := store.Get(ctx, "rep-1")
			if err != nil {
				t.Fatalf("get failed: %v", err)
			}
			if loaded.AccessToken != "access-2" {
				t.Fatalf("expected replaced access token, got %s", loaded.AccessToken)
			}
			if loaded.HasRefreshToken() {
				t.Fatalf("expected refresh token to be replaced by the empty value")
			}
			if !loaded.ExpiresAt.Equal(expiry.Add(time.Hour)) {
				t.Fatalf("expected expiry %v, got %v", expiry.Add(time.Hour), loaded.ExpiresAt)
			}

			if _, err := store.Upsert(ctx, StoredCredential{UserID: " ", AccessToken: "x"}); !errors.Is(err, ErrEmptyUserID) {
				t.Fatalf("expected ErrEmptyUserID, got %v", err)
			}
			if _, err := store.Upsert(ctx, StoredCredential{UserID: "rep-2"}); !errors.Is(err, ErrEmptyAccessToken) {
				t.Fatalf("expected ErrEmptyAccessToken, got %v", err)
			}

			if err := store.Delete(ctx, "rep-1"); err != nil {
				t.Fatalf("delete failed: %v", err)
			}
			if _, err := store.Get(ctx, "rep-1"); !errors.Is(err, ErrCredentialNotFound) {
				t.Fatalf("expected ErrCredentialNotFound after delete, got %v", err)
			}
			if err := store.Delete(ctx, "rep-1"); !errors.Is(err, ErrCredentialNotFound) {
				t.Fatalf("expected ErrCredentialNotFound on second delete, got %v", err)
			}
		})
	}
}

func TestDatabaseStoreKeepsOneRowPerUser(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	for index := 0; index < 3; index++ {
		if _, err := store.Upsert(ctx, StoredCredential{
			UserID:      "rep-7",
			AccessToken: "access",
			ExpiresAt:   time.Now().Add(time.Hour),
		}); err != nil {
			t.Fatalf("upsert %d failed: %v", index, err)
		}
	}

	var rowCount int64
	if err := store.db.Model(&credentialRecord{}).Where("user_id = ?", "rep-7").Count(&rowCount).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if rowCount != 1 {
		t.Fatalf("expected exactly one row, got %d", rowCount)
	}
	if store.Driver() != database.DriverSQLite {
		t.Fatalf("expected sqlite driver label, got %s", store.Driver())
	}
}

func TestMemoryStoreCountsUpserts(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Upsert(context.Background(), StoredCredential{UserID: "rep", AccessToken: "a"}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if store.UpsertCount() != 1 {
		t.Fatalf("expected one upsert, got %d", store.UpsertCount())
	}
}
