package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tyemirov/cellarcrm/internal/crm"
	"github.com/tyemirov/cellarcrm/pkg/sessionvalidator"
)

// AccountLookup loads the account behind a session.
type AccountLookup interface {
	FindAccountByID(ctx context.Context, accountID string) (crm.Account, error)
}

// HandleWhoAmI answers /api/me with the signed-in account. Accounts deactivated by a later
// sync lose access even while their cookie is still valid.
func HandleWhoAmI(logger *zap.Logger, accounts AccountLookup) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	if accounts == nil {
		panic("account lookup is required")
	}

	return func(contextGin *gin.Context) {
		claims, ok := sessionvalidator.ClaimsFromContext(contextGin)
		if !ok {
			logger.Warn("missing session claims on context", zap.String("code", "api.me.missing_claims"))
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session_required"})
			return
		}

		account, lookupErr := accounts.FindAccountByID(contextGin.Request.Context(), claims.GetAccountID())
		if lookupErr != nil {
			if errors.Is(lookupErr, crm.ErrAccountNotFound) {
				logger.Warn("session account missing",
					zap.String("code", "api.me.account_missing"),
					zap.String("account_id", claims.GetAccountID()))
				contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session_required"})
				return
			}
			logger.Error("account lookup error",
				zap.String("code", "api.me.lookup_error"),
				zap.String("account_id", claims.GetAccountID()),
				zap.Error(lookupErr))
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		if !account.Active {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "account_inactive"})
			return
		}

		contextGin.JSON(http.StatusOK, gin.H{
			"account_id":   account.ID,
			"email":        account.Email,
			"display_name": account.DisplayName,
			"roles":        claims.Roles,
			"expires":      claims.GetExpiresAt(),
		})
	}
}
