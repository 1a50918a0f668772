package authkit

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tyemirov/cellarcrm/pkg/sessionvalidator"
)

// RequireRole rejects sessions that lack role. It must run after the session middleware.
func RequireRole(role string) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		claims, ok := sessionvalidator.ClaimsFromContext(contextGin)
		if !ok {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session_required"})
			return
		}
		if !claims.HasRole(role) {
			contextGin.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		contextGin.Next()
	}
}
