package graphauth

import (
	"strings"
	"time"
)

const (
	// DefaultAuthorityURL is the Microsoft identity platform host.
	DefaultAuthorityURL = "https://login.microsoftonline.com"
	// ExpiryMargin is subtracted from every provider-reported lifetime and is the
	// minimum remaining validity of a token handed out by the Manager.
	ExpiryMargin = 60 * time.Second
)

// DefaultScopes is the delegated permission set requested from every user.
var DefaultScopes = []string{"User.Read", "Calendars.Read", "offline_access"}

// Config carries the Microsoft Graph application registration.
type Config struct {
	ClientID     string
	ClientSecret string
	TenantID     string
	RedirectURI  string
	AuthorityURL string
	Scopes       []string
}

// Configured reports whether client id, secret, and tenant are all present.
func (config Config) Configured() bool {
	return strings.TrimSpace(config.ClientID) != "" &&
		strings.TrimSpace(config.ClientSecret) != "" &&
		strings.TrimSpace(config.TenantID) != ""
}

// AuthorizeURL is the tenant-scoped authorization endpoint.
func (config Config) AuthorizeURL() string {
	return config.tenantBase() + "/oauth2/v2.0/authorize"
}

// TokenURL is the tenant-scoped token endpoint.
func (config Config) TokenURL() string {
	return config.tenantBase() + "/oauth2/v2.0/token"
}

// ScopeString joins the requested scopes with spaces.
func (config Config) ScopeString() string {
	return strings.Join(config.scopes(), " ")
}

func (config Config) scopes() []string {
	if len(config.Scopes) == 0 {
		return DefaultScopes
	}
	return config.Scopes
}

func (config Config) tenantBase() string {
	authority := strings.TrimRight(strings.TrimSpace(config.AuthorityURL), "/")
	if authority == "" {
		authority = DefaultAuthorityURL
	}
	return authority + "/" + strings.TrimSpace(config.TenantID)
}

// DefaultRedirectURI derives the callback address from the public base URL.
func DefaultRedirectURI(publicBaseURL string) string {
	return strings.TrimRight(publicBaseURL, "/") + "/api/calendar/callback"
}
