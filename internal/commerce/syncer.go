package commerce

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tyemirov/cellarcrm/internal/crm"
)

// DefaultPageSize is the number of customers requested per search call.
const DefaultPageSize = 100

// CustomerSource pages through commerce customers.
type CustomerSource interface {
	SearchCustomers(ctx context.Context, page int, limit int) (CustomerPage, error)
}

// MirrorStore receives the mirrored customers and accounts.
type MirrorStore interface {
	UpsertCustomer(ctx context.Context, customer crm.Customer) error
	UpsertAccount(ctx context.Context, account crm.Account) error
}

// SyncReport summarizes one sync run.
type SyncReport struct {
	Pages     int `json:"pages"`
	Customers int `json:"customers"`
	Accounts  int `json:"accounts"`
	Skipped   int `json:"skipped"`
}

// Syncer copies commerce customers into the CRM store.
type Syncer struct {
	source          CustomerSource
	store           MirrorStore
	salesRepGroupID string
	pageSize        int
	now             func() time.Time
	logger          *zap.Logger
}

// NewSyncer wires a Syncer. Customers in salesRepGroupID also become login accounts.
func NewSyncer(source CustomerSource, store MirrorStore, salesRepGroupID string, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{
		source:          source,
		store:           store,
		salesRepGroupID: strings.TrimSpace(salesRepGroupID),
		pageSize:        DefaultPageSize,
		now:             time.Now,
		logger:          logger,
	}
}

// SyncCustomers walks every page and upserts customers and sales rep accounts.
func (syncer *Syncer) SyncCustomers(ctx context.Context) (SyncReport, error) {
	var report SyncReport
	syncedAt := syncer.now().UTC()
	seen := 0
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("commerce.sync: %w", err)
		}
		result, err := syncer.source.SearchCustomers(ctx, page, syncer.pageSize)
		if err != nil {
			return report, fmt.Errorf("commerce.sync.page_%d: %w", page, err)
		}
		report.Pages++
		for _, customer := range result.Customers {
			if err := syncer.mirror(ctx, customer, syncedAt, &report); err != nil {
				return report, err
			}
		}
		seen += len(result.Customers)
		if len(result.Customers) < syncer.pageSize || seen >= result.Total {
			break
		}
	}
	syncer.logger.Info("customer sync finished",
		zap.Int("pages", report.Pages),
		zap.Int("customers", report.Customers),
		zap.Int("accounts", report.Accounts),
		zap.Int("skipped", report.Skipped))
	return report, nil
}

func (syncer *Syncer) mirror(ctx context.Context, customer CommerceCustomer, syncedAt time.Time, report *SyncReport) error {
	if strings.TrimSpace(customer.ID) == "" {
		report.Skipped++
		return nil
	}
	if err := syncer.store.UpsertCustomer(ctx, toCRMCustomer(customer, syncedAt)); err != nil {
		return fmt.Errorf("commerce.sync.customer: %w", err)
	}
	report.Customers++

	if syncer.salesRepGroupID == "" || customer.GroupID != syncer.salesRepGroupID {
		return nil
	}
	if strings.TrimSpace(customer.Email) == "" {
		syncer.logger.Warn("sales rep without email skipped",
			zap.String("code", "commerce.sync.rep_without_email"),
			zap.String("customer_id", customer.ID))
		report.Skipped++
		return nil
	}
	if err := syncer.store.UpsertAccount(ctx, toCRMAccount(customer, syncedAt)); err != nil {
		return fmt.Errorf("commerce.sync.account: %w", err)
	}
	report.Accounts++
	return nil
}

func toCRMCustomer(customer CommerceCustomer, syncedAt time.Time) crm.Customer {
	return crm.Customer{
		ID:             customer.ID,
		CustomerNumber: customer.CustomerNumber,
		Email:          customer.Email,
		FirstName:      customer.FirstName,
		LastName:       customer.LastName,
		Company:        customer.Company,
		City:           customer.City,
		SalesRepEmail:  customer.SalesRepEmail,
		Active:         customer.Active,
		SyncedAt:       syncedAt,
	}
}

func toCRMAccount(customer CommerceCustomer, syncedAt time.Time) crm.Account {
	legacyHash, legacySalt := splitLegacyPassword(customer.LegacyPassword)
	return crm.Account{
		ID:                 customer.ID,
		Email:              customer.Email,
		DisplayName:        strings.TrimSpace(customer.FirstName + " " + customer.LastName),
		Roles:              []string{crm.RoleSalesRep},
		PasswordHash:       customer.PasswordHash,
		LegacyPasswordHash: legacyHash,
		LegacyEncoder:      customer.LegacyEncoder,
		LegacySalt:         legacySalt,
		Active:             customer.Active,
		SyncedAt:           syncedAt,
	}
}

// splitLegacyPassword separates the "hash:salt" form older shops stored.
func splitLegacyPassword(stored string) (string, string) {
	hash, salt, found := strings.Cut(stored, ":")
	if !found {
		return stored, ""
	}
	return hash, salt
}
