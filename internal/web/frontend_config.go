package web

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
)

// FrontendConfig holds the values the browser application reads at startup.
type FrontendConfig struct {
	BaseURL            string
	CalendarConfigured bool
	LintherConfigured  bool
}

// ServeFrontendConfig emits /config.js, which freezes the settings into window.__CELLARCRM_CONFIG.
func ServeFrontendConfig(configuration FrontendConfig) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		baseURL := strings.TrimRight(configuration.BaseURL, "/")
		if baseURL == "" {
			host := contextGin.Request.Host
			if host == "" {
				host = "localhost"
			}
			baseURL = fmt.Sprintf("%s://%s", forwardedProto(contextGin.Request), host)
		}
		encoded, encodeErr := json.Marshal(struct {
			BaseURL            string `json:"baseUrl"`
			CalendarConfigured bool   `json:"calendarConfigured"`
			LintherConfigured  bool   `json:"lintherConfigured"`
		}{
			BaseURL:            baseURL,
			CalendarConfigured: configuration.CalendarConfigured,
			LintherConfigured:  configuration.LintherConfigured,
		})
		if encodeErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "web.frontend_config.encode_failed"})
			return
		}
		contextGin.Header("Cache-Control", "no-store, no-cache, must-revalidate, private")
		contextGin.Header("Pragma", "no-cache")
		contextGin.Header("X-Content-Type-Options", "nosniff")
		contextGin.Data(http.StatusOK, "application/javascript; charset=utf-8",
			[]byte(fmt.Sprintf("window.__CELLARCRM_CONFIG=Object.freeze(%s);", encoded)))
	}
}

func forwardedProto(request *http.Request) string {
	if headerValue := strings.TrimSpace(request.Header.Get("X-Forwarded-Proto")); headerValue != "" {
		return strings.ToLower(headerValue)
	}
	if request.TLS != nil {
		return "https"
	}
	return "http"
}
