package authkit

import (
	"context"

	"github.com/tyemirov/cellarcrm/internal/crm"
	"github.com/tyemirov/cellarcrm/internal/passwords"
)

// AccountStore looks up sales representative accounts.
type AccountStore interface {
	FindAccountByEmail(ctx context.Context, email string) (crm.Account, error)
	FindAccountByID(ctx context.Context, accountID string) (crm.Account, error)
}

// PasswordVerifier checks a plaintext against stored hashes.
type PasswordVerifier interface {
	Verify(plain string, record passwords.Record) bool
}
