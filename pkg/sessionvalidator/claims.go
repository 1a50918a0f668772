package sessionvalidator

import (
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims identify the signed-in sales representative.
type Claims struct {
	AccountID   string   `json:"account_id"`
	Email       string   `json:"email"`
	DisplayName string   `json:"display_name"`
	Roles       []string `json:"roles"`
	jwt.RegisteredClaims
}

func (claims *Claims) GetAccountID() string {
	if claims == nil {
		return ""
	}
	return claims.AccountID
}

func (claims *Claims) GetEmail() string {
	if claims == nil {
		return ""
	}
	return claims.Email
}

// HasRole reports whether the session was minted with role.
func (claims *Claims) HasRole(role string) bool {
	return claims != nil && slices.Contains(claims.Roles, role)
}

// GetExpiresAt returns the zero time for sessions without an expiry.
func (claims *Claims) GetExpiresAt() time.Time {
	if claims == nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
