package authkit

import (
	"net/http"
	"time"
)

// ServerConfig configures the session token and cookie.
type ServerConfig struct {
	SigningKey        []byte
	Issuer            string
	CookieDomain      string
	SessionCookieName string
	SessionTTL        time.Duration
	SameSiteMode      http.SameSite
	AllowInsecureHTTP bool
	// AdminEmails receive the admin role on top of their synced roles.
	AdminEmails []string
}
