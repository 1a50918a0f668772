package sessionvalidator

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// GinMiddleware authenticates the request and stores the Claims under contextKey
// (DefaultContextKey when empty). Rejections answer 401 with an error code the frontend
// uses to pick between a login prompt and an error page.
func (validator *Validator) GinMiddleware(contextKey string) gin.HandlerFunc {
	if strings.TrimSpace(contextKey) == "" {
		contextKey = DefaultContextKey
	}
	return func(contextGin *gin.Context) {
		claims, err := validator.Authenticate(contextGin.Request.Context(), contextGin.Request)
		if err != nil {
			status, code := rejection(err)
			contextGin.AbortWithStatusJSON(status, gin.H{"error": code})
			return
		}
		contextGin.Set(contextKey, claims)
		contextGin.Next()
	}
}

func rejection(err error) (int, string) {
	switch {
	case errors.Is(err, ErrMissingCookie), errors.Is(err, ErrMissingToken):
		return http.StatusUnauthorized, "session_required"
	case errors.Is(err, ErrTokenExpired):
		return http.StatusUnauthorized, "session_expired"
	case errors.Is(err, ErrAccountInactive):
		return http.StatusUnauthorized, "account_inactive"
	case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrInvalidIssuer):
		return http.StatusUnauthorized, "session_invalid"
	default:
		return http.StatusServiceUnavailable, "session_check_failed"
	}
}

// ClaimsFromContext returns the claims GinMiddleware stored under DefaultContextKey.
func ClaimsFromContext(contextGin *gin.Context) (*Claims, bool) {
	value, exists := contextGin.Get(DefaultContextKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*Claims)
	return claims, ok && claims != nil
}
