package crm

import (
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/tyemirov/cellarcrm/internal/passwords"
)

// Role names carried in session claims.
const (
	RoleSalesRep = "sales_rep"
	RoleAdmin    = "admin"
)

// Account is a sales representative allowed to sign in.
type Account struct {
	ID                 string
	Email              string
	DisplayName        string
	Roles              []string
	PasswordHash       string
	LegacyPasswordHash string
	LegacyEncoder      string
	LegacySalt         string
	Active             bool
	SyncedAt           time.Time
}

// PasswordRecord returns the hashes the password verifier needs.
func (account Account) PasswordRecord() passwords.Record {
	return passwords.Record{
		Hash:          account.PasswordHash,
		LegacyHash:    account.LegacyPasswordHash,
		LegacyEncoder: account.LegacyEncoder,
		LegacySalt:    account.LegacySalt,
	}
}

// HasRole reports whether the account carries role.
func (account Account) HasRole(role string) bool {
	return lo.Contains(account.Roles, role)
}

// Customer is a commerce customer mirrored for the CRM views.
type Customer struct {
	ID             string    `json:"id"`
	CustomerNumber string    `json:"customer_number"`
	Email          string    `json:"email"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	Company        string    `json:"company"`
	City           string    `json:"city"`
	SalesRepEmail  string    `json:"sales_rep_email"`
	Active         bool      `json:"active"`
	SyncedAt       time.Time `json:"synced_at"`
}

// NormalizeEmail lower-cases and trims an address for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func joinRoles(roles []string) string {
	cleaned := lo.Uniq(lo.Compact(lo.Map(roles, func(role string, _ int) string {
		return strings.TrimSpace(role)
	})))
	return strings.Join(cleaned, ",")
}

func splitRoles(joined string) []string {
	return lo.Compact(lo.Map(strings.Split(joined, ","), func(role string, _ int) string {
		return strings.TrimSpace(role)
	}))
}
