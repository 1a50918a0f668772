package web

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tyemirov/cellarcrm/internal/crm"
	"github.com/tyemirov/cellarcrm/pkg/sessionvalidator"
)

// CustomerLister reads mirrored customers. An empty salesRepEmail lists every customer.
type CustomerLister interface {
	ListCustomers(ctx context.Context, salesRepEmail string) ([]crm.Customer, error)
}

// HandleListCustomers answers GET /api/customers with the customers assigned to the caller.
// Admins may pass scope=all to see the whole mirror.
func HandleListCustomers(logger *zap.Logger, customers CustomerLister) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(contextGin *gin.Context) {
		claims, ok := sessionvalidator.ClaimsFromContext(contextGin)
		if !ok {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session_required"})
			return
		}
		salesRepEmail := claims.GetEmail()
		if strings.EqualFold(contextGin.Query("scope"), "all") {
			if !claims.HasRole(crm.RoleAdmin) {
				contextGin.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
				return
			}
			salesRepEmail = ""
		} else if strings.TrimSpace(salesRepEmail) == "" {
			contextGin.JSON(http.StatusOK, gin.H{"customers": []crm.Customer{}})
			return
		}

		listed, err := customers.ListCustomers(contextGin.Request.Context(), salesRepEmail)
		if err != nil {
			logger.Error("list customers failed", zap.String("code", "api.customers.list"), zap.Error(err))
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		if listed == nil {
			listed = []crm.Customer{}
		}
		contextGin.JSON(http.StatusOK, gin.H{"customers": listed})
	}
}
