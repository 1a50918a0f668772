// Package crm persists the sales representative accounts and the customer mirror.
package crm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrAccountNotFound indicates that no account uses the email.
	ErrAccountNotFound = errors.New("crm.account_not_found")
	// ErrMissingIdentifier indicates a record without commerce id or email.
	ErrMissingIdentifier = errors.New("crm.missing_identifier")
)

type accountRecord struct {
	ID                 string `gorm:"column:id;primaryKey"`
	Email              string `gorm:"column:email;uniqueIndex;not null"`
	DisplayName        string `gorm:"column:display_name;not null;default:''"`
	Roles              string `gorm:"column:roles;not null;default:''"`
	PasswordHash       string `gorm:"column:password_hash;not null;default:''"`
	LegacyPasswordHash string `gorm:"column:legacy_password_hash;not null;default:''"`
	LegacyEncoder      string `gorm:"column:legacy_encoder;not null;default:''"`
	LegacySalt         string `gorm:"column:legacy_salt;not null;default:''"`
	Active             bool   `gorm:"column:active;not null"`
	SyncedAtUnix       int64  `gorm:"column:synced_at_unix;not null"`
}

func (accountRecord) TableName() string {
	return "crm_accounts"
}

type customerRecord struct {
	ID             string `gorm:"column:id;primaryKey"`
	CustomerNumber string `gorm:"column:customer_number;not null;default:''"`
	Email          string `gorm:"column:email;not null;default:''"`
	FirstName      string `gorm:"column:first_name;not null;default:''"`
	LastName       string `gorm:"column:last_name;not null;default:''"`
	Company        string `gorm:"column:company;not null;default:''"`
	City           string `gorm:"column:city;not null;default:''"`
	SalesRepEmail  string `gorm:"column:sales_rep_email;index;not null;default:''"`
	Active         bool   `gorm:"column:active;not null"`
	SyncedAtUnix   int64  `gorm:"column:synced_at_unix;not null"`
}

func (customerRecord) TableName() string {
	return "crm_customers"
}

// Store reads and writes accounts and customers with GORM.
type Store struct {
	db          *gorm.DB
	driverLabel string
}

// NewStore migrates the CRM tables on the given connection.
func NewStore(ctx context.Context, gormDB *gorm.DB, driverLabel string) (*Store, error) {
	if err := gormDB.WithContext(ctx).AutoMigrate(&accountRecord{}, &customerRecord{}); err != nil {
		return nil, fmt.Errorf("crm.migrate.%s: %w", driverLabel, err)
	}
	return &Store{db: gormDB, driverLabel: driverLabel}, nil
}

// FindAccountByEmail loads the account registered under email.
func (store *Store) FindAccountByEmail(ctx context.Context, email string) (Account, error) {
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return Account{}, fmt.Errorf("crm.find_account.%s: %w", store.driverLabel, ErrAccountNotFound)
	}
	var record accountRecord
	if err := store.db.WithContext(ctx).Where("email = ?", normalized).Take(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Account{}, fmt.Errorf("crm.find_account.%s: %w", store.driverLabel, ErrAccountNotFound)
		}
		return Account{}, fmt.Errorf("crm.find_account.%s: %w", store.driverLabel, err)
	}
	return record.toAccount(), nil
}

// FindAccountByID loads the account with the commerce id.
func (store *Store) FindAccountByID(ctx context.Context, accountID string) (Account, error) {
	var record accountRecord
	if err := store.db.WithContext(ctx).Where("id = ?", accountID).Take(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Account{}, fmt.Errorf("crm.find_account.%s: %w", store.driverLabel, ErrAccountNotFound)
		}
		return Account{}, fmt.Errorf("crm.find_account.%s: %w", store.driverLabel, err)
	}
	return record.toAccount(), nil
}

// AccountActive reports whether the account still exists and is active. Sessions of accounts a
// later sync deactivated stop working through this check.
func (store *Store) AccountActive(ctx context.Context, accountID string) (bool, error) {
	account, err := store.FindAccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return false, nil
		}
		return false, err
	}
	return account.Active, nil
}

// UpsertAccount inserts the account or replaces the row with the same id.
func (store *Store) UpsertAccount(ctx context.Context, account Account) error {
	record := accountRecord{
		ID:                 strings.TrimSpace(account.ID),
		Email:              NormalizeEmail(account.Email),
		DisplayName:        account.DisplayName,
		Roles:              joinRoles(account.Roles),
		PasswordHash:       account.PasswordHash,
		LegacyPasswordHash: account.LegacyPasswordHash,
		LegacyEncoder:      account.LegacyEncoder,
		LegacySalt:         account.LegacySalt,
		Active:             account.Active,
		SyncedAtUnix:       account.SyncedAt.Unix(),
	}
	if record.ID == "" || record.Email == "" {
		return fmt.Errorf("crm.upsert_account.%s: %w", store.driverLabel, ErrMissingIdentifier)
	}
	err := store.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"email", "display_name", "roles", "password_hash", "legacy_password_hash",
			"legacy_encoder", "legacy_salt", "active", "synced_at_unix",
		}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("crm.upsert_account.%s: %w", store.driverLabel, err)
	}
	return nil
}

// UpsertCustomer inserts the customer or replaces the row with the same id.
func (store *Store) UpsertCustomer(ctx context.Context, customer Customer) error {
	record := customerRecord{
		ID:             strings.TrimSpace(customer.ID),
		CustomerNumber: customer.CustomerNumber,
		Email:          NormalizeEmail(customer.Email),
		FirstName:      customer.FirstName,
		LastName:       customer.LastName,
		Company:        customer.Company,
		City:           customer.City,
		SalesRepEmail:  NormalizeEmail(customer.SalesRepEmail),
		Active:         customer.Active,
		SyncedAtUnix:   customer.SyncedAt.Unix(),
	}
	if record.ID == "" {
		return fmt.Errorf("crm.upsert_customer.%s: %w", store.driverLabel, ErrMissingIdentifier)
	}
	err := store.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("crm.upsert_customer.%s: %w", store.driverLabel, err)
	}
	return nil
}

// ListCustomers returns the customers assigned to salesRepEmail ordered by last name,
// or every customer when salesRepEmail is empty.
func (store *Store) ListCustomers(ctx context.Context, salesRepEmail string) ([]Customer, error) {
	query := store.db.WithContext(ctx).Model(&customerRecord{})
	if normalized := NormalizeEmail(salesRepEmail); normalized != "" {
		query = query.Where("sales_rep_email = ?", normalized)
	}
	var records []customerRecord
	if err := query.Order("last_name ASC").Order("first_name ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("crm.list_customers.%s: %w", store.driverLabel, err)
	}
	return lo.Map(records, func(record customerRecord, _ int) Customer {
		return record.toCustomer()
	}), nil
}

func (record accountRecord) toAccount() Account {
	return Account{
		ID:                 record.ID,
		Email:              record.Email,
		DisplayName:        record.DisplayName,
		Roles:              splitRoles(record.Roles),
		PasswordHash:       record.PasswordHash,
		LegacyPasswordHash: record.LegacyPasswordHash,
		LegacyEncoder:      record.LegacyEncoder,
		LegacySalt:         record.LegacySalt,
		Active:             record.Active,
		SyncedAt:           time.Unix(record.SyncedAtUnix, 0).UTC(),
	}
}

func (record customerRecord) toCustomer() Customer {
	return Customer{
		ID:             record.ID,
		CustomerNumber: record.CustomerNumber,
		Email:          record.Email,
		FirstName:      record.FirstName,
		LastName:       record.LastName,
		Company:        record.Company,
		City:           record.City,
		SalesRepEmail:  record.SalesRepEmail,
		Active:         record.Active,
		SyncedAt:       time.Unix(record.SyncedAtUnix, 0).UTC(),
	}
}
