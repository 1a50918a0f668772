package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DatabaseStore persists Graph credentials using GORM.
type DatabaseStore struct {
	db          *gorm.DB
	driverLabel string
	now         func() time.Time
}

type credentialRecord struct {
	ID            string `gorm:"column:id;primaryKey"`
	UserID        string `gorm:"column:user_id;uniqueIndex;not null"`
	AccessToken   string `gorm:"column:access_token;type:text;not null"`
	RefreshToken  string `gorm:"column:refresh_token;type:text;not null;default:''"`
	Scope         string `gorm:"column:scope;not null;default:''"`
	TokenType     string `gorm:"column:token_type;not null;default:''"`
	ExpiresUnix   int64  `gorm:"column:expires_unix;not null"`
	UpdatedAtUnix int64  `gorm:"column:updated_at_unix;not null"`
}

func (credentialRecord) TableName() string {
	return "graph_credentials"
}

// NewDatabaseStore migrates the credential table on the given connection.
func NewDatabaseStore(ctx context.Context, gormDB *gorm.DB, driverLabel string) (*DatabaseStore, error) {
	if migrateErr := gormDB.WithContext(ctx).AutoMigrate(&credentialRecord{}); migrateErr != nil {
		return nil, fmt.Errorf("credential_store.migrate.%s: %w", driverLabel, migrateErr)
	}
	return &DatabaseStore{
		db:          gormDB,
		driverLabel: driverLabel,
		now:         time.Now,
	}, nil
}

// Driver exposes the selected database driver label.
func (store *DatabaseStore) Driver() string {
	return store.driverLabel
}

// Upsert replaces the user's credential row, keeping its id stable.
func (store *DatabaseStore) Upsert(ctx context.Context, credential StoredCredential) (StoredCredential, error) {
	if strings.TrimSpace(credential.UserID) == "" {
		return StoredCredential{}, fmt.Errorf("credential_store.upsert.%s: %w", store.driverLabel, ErrEmptyUserID)
	}
	if credential.AccessToken == "" {
		return StoredCredential{}, fmt.Errorf("credential_store.upsert.%s: %w", store.driverLabel, ErrEmptyAccessToken)
	}
	record := credentialRecord{
		ID:            uuid.NewString(),
		UserID:        credential.UserID,
		AccessToken:   credential.AccessToken,
		RefreshToken:  credential.RefreshToken,
		Scope:         credential.Scope,
		TokenType:     credential.TokenType,
		ExpiresUnix:   credential.ExpiresAt.Unix(),
		UpdatedAtUnix: store.now().UTC().Unix(),
	}
	err := store.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"access_token", "refresh_token", "scope", "token_type", "expires_unix", "updated_at_unix",
		}),
	}).Create(&record).Error
	if err != nil {
		return StoredCredential{}, fmt.Errorf("credential_store.upsert.%s: %w", store.driverLabel, err)
	}
	return store.Get(ctx, credential.UserID)
}

// Get loads the credential owned by userID.
func (store *DatabaseStore) Get(ctx context.Context, userID string) (StoredCredential, error) {
	if strings.TrimSpace(userID) == "" {
		return StoredCredential{}, fmt.Errorf("credential_store.get.%s: %w", store.driverLabel, ErrEmptyUserID)
	}
	var record credentialRecord
	err := store.db.WithContext(ctx).Where("user_id = ?", userID).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return StoredCredential{}, fmt.Errorf("credential_store.get.%s: %w", store.driverLabel, ErrCredentialNotFound)
		}
		return StoredCredential{}, fmt.Errorf("credential_store.get.%s: %w", store.driverLabel, err)
	}
	return record.toCredential(), nil
}

// Delete removes the credential owned by userID.
func (store *DatabaseStore) Delete(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("credential_store.delete.%s: %w", store.driverLabel, ErrEmptyUserID)
	}
	result := store.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&credentialRecord{})
	if result.Error != nil {
		return fmt.Errorf("credential_store.delete.%s: %w", store.driverLabel, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("credential_store.delete.%s: %w", store.driverLabel, ErrCredentialNotFound)
	}
	return nil
}

func (record credentialRecord) toCredential() StoredCredential {
	return StoredCredential{
		ID:           record.ID,
		UserID:       record.UserID,
		AccessToken:  record.AccessToken,
		RefreshToken: record.RefreshToken,
		Scope:        record.Scope,
		TokenType:    record.TokenType,
		ExpiresAt:    time.Unix(record.ExpiresUnix, 0).UTC(),
		UpdatedAt:    time.Unix(record.UpdatedAtUnix, 0).UTC(),
	}
}
