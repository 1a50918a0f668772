package web

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

var (
	errWildcardOrigin      = errors.New("web.cors.wildcard_origin")
	errEmptyAllowedOrigins = errors.New("web.cors.no_origins")
	errInvalidOrigin       = errors.New("web.cors.invalid_origin")
)

// ConfigureCORS returns a credentialed CORS middleware for the CRM frontend origins.
func ConfigureCORS(logger *zap.Logger, allowedOrigins []string) (gin.HandlerFunc, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	origins, err := sanitizeOrigins(logger, allowedOrigins)
	if err != nil {
		return nil, err
	}
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}), nil
}

// sanitizeOrigins normalizes origins to scheme://host and rejects anything that is not a bare
// http(s) origin. Credentials rule out the wildcard.
func sanitizeOrigins(logger *zap.Logger, allowed []string) ([]string, error) {
	normalized := make([]string, 0, len(allowed))
	for _, origin := range allowed {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			return nil, errWildcardOrigin
		}
		parsed, parseErr := url.Parse(trimmed)
		if parseErr != nil || parsed.Host == "" {
			return nil, fmt.Errorf("%w: %s", errInvalidOrigin, trimmed)
		}
		scheme := strings.ToLower(parsed.Scheme)
		switch {
		case scheme != "https" && scheme != "http":
			return nil, fmt.Errorf("%w: %s uses unsupported scheme", errInvalidOrigin, trimmed)
		case parsed.Path != "" && parsed.Path != "/":
			return nil, fmt.Errorf("%w: %s contains a path", errInvalidOrigin, trimmed)
		case parsed.RawQuery != "" || parsed.Fragment != "":
			return nil, fmt.Errorf("%w: %s contains query or fragment", errInvalidOrigin, trimmed)
		}
		if scheme == "http" && !isDevelopmentHost(parsed.Hostname()) {
			logger.Warn("plain http cors origin configured",
				zap.String("code", "web.cors.origin_unsafe"),
				zap.String("origin", trimmed))
		}
		normalized = append(normalized, scheme+"://"+strings.ToLower(parsed.Host))
	}
	normalized = lo.Uniq(normalized)
	if len(normalized) == 0 {
		return nil, errEmptyAllowedOrigins
	}
	return normalized, nil
}

func isDevelopmentHost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
