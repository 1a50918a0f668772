package authkit

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/tyemirov/cellarcrm/internal/crm"
	"github.com/tyemirov/cellarcrm/internal/metrics"
)

// Counter names recorded by the auth routes.
const (
	MetricLoginSuccess = "auth.login.success"
	MetricLoginFailure = "auth.login.failure"
	MetricLogout       = "auth.logout"
)

type routeDependencies struct {
	clock   Clock
	logger  *zap.Logger
	metrics metrics.Recorder
}

// RouteOption customizes MountAuthRoutes.
type RouteOption func(*routeDependencies)

// WithClock replaces the clock used for token timestamps.
func WithClock(clock Clock) RouteOption {
	return func(dependencies *routeDependencies) {
		if clock != nil {
			dependencies.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) RouteOption {
	return func(dependencies *routeDependencies) {
		if logger != nil {
			dependencies.logger = logger
		}
	}
}

// WithMetrics sets the counter recorder.
func WithMetrics(recorder metrics.Recorder) RouteOption {
	return func(dependencies *routeDependencies) {
		if recorder != nil {
			dependencies.metrics = recorder
		}
	}
}

// MountAuthRoutes registers /auth/login and /auth/logout.
func MountAuthRoutes(router gin.IRouter, configuration ServerConfig, accounts AccountStore, verifier PasswordVerifier, options ...RouteOption) {
	dependencies := routeDependencies{clock: systemClock{}, logger: zap.NewNop(), metrics: metrics.Noop{}}
	for _, option := range options {
		option(&dependencies)
	}
	adminEmails := lo.Map(configuration.AdminEmails, func(email string, _ int) string {
		return crm.NormalizeEmail(email)
	})

	router.POST("/auth/login", func(contextGin *gin.Context) {
		var inbound struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := contextGin.ShouldBindJSON(&inbound); err != nil || strings.TrimSpace(inbound.Email) == "" || inbound.Password == "" {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return
		}
		if !configuration.AllowInsecureHTTP && !isHTTPS(contextGin.Request) {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "https_required"})
			return
		}

		account, lookupErr := accounts.FindAccountByEmail(contextGin.Request.Context(), inbound.Email)
		if lookupErr != nil {
			if errors.Is(lookupErr, crm.ErrAccountNotFound) {
				dependencies.metrics.Increment(MetricLoginFailure)
				contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
				return
			}
			dependencies.logger.Error("account lookup failed", zap.String("code", "auth.login.lookup"), zap.Error(lookupErr))
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		if !verifier.Verify(inbound.Password, account.PasswordRecord()) {
			dependencies.metrics.Increment(MetricLoginFailure)
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
			return
		}
		if !account.Active {
			dependencies.metrics.Increment(MetricLoginFailure)
			contextGin.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "account_inactive"})
			return
		}

		roles := account.Roles
		if lo.Contains(adminEmails, account.Email) {
			roles = lo.Uniq(append(append([]string{}, roles...), crm.RoleAdmin))
		}
		subject := SessionSubject{AccountID: account.ID, Email: account.Email, DisplayName: account.DisplayName, Roles: roles}
		sessionToken, sessionExpiresAt, mintErr := MintSessionJWT(dependencies.clock, subject, configuration.Issuer, configuration.SigningKey, configuration.SessionTTL)
		if mintErr != nil {
			dependencies.logger.Error("session mint failed", zap.String("code", "auth.login.mint"), zap.Error(mintErr))
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		writeSessionCookie(contextGin, configuration, sessionToken, sessionExpiresAt)
		dependencies.metrics.Increment(MetricLoginSuccess)
		contextGin.JSON(http.StatusOK, gin.H{
			"account_id":   account.ID,
			"email":        account.Email,
			"display_name": account.DisplayName,
			"roles":        roles,
			"expires":      sessionExpiresAt,
		})
	})

	router.POST("/auth/logout", func(contextGin *gin.Context) {
		clearCookie(contextGin, configuration.SessionCookieName, configuration.CookieDomain, configuration.SameSiteMode)
		dependencies.metrics.Increment(MetricLogout)
		contextGin.Status(http.StatusNoContent)
	})
}

func writeSessionCookie(contextGin *gin.Context, configuration ServerConfig, sessionToken string, expiresAt time.Time) {
	http.SetCookie(contextGin.Writer, &http.Cookie{
		Name:     configuration.SessionCookieName,
		Value:    sessionToken,
		Path:     "/",
		Domain:   configuration.CookieDomain,
		Expires:  expiresAt,
		Secure:   true,
		HttpOnly: true,
		SameSite: configuration.SameSiteMode,
	})
}

func clearCookie(contextGin *gin.Context, name string, domain string, sameSite http.SameSite) {
	http.SetCookie(contextGin.Writer, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   domain,
		MaxAge:   -1,
		Secure:   true,
		HttpOnly: true,
		SameSite: sameSite,
	})
}

func isHTTPS(request *http.Request) bool {
	if request.TLS != nil {
		return true
	}
	if strings.EqualFold(request.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	forwarded := request.Header.Get("Forwarded")
	if forwarded != "" && strings.Contains(strings.ToLower(forwarded), "proto=https") {
		return true
	}
	host, _, splitErr := net.SplitHostPort(request.Host)
	return splitErr == nil && host == "localhost"
}
