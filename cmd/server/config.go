package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/viper"

	"github.com/tyemirov/cellarcrm/internal/authkit"
	"github.com/tyemirov/cellarcrm/internal/calendar"
	"github.com/tyemirov/cellarcrm/internal/commerce"
	"github.com/tyemirov/cellarcrm/internal/database"
	"github.com/tyemirov/cellarcrm/internal/graphauth"
	"github.com/tyemirov/cellarcrm/internal/workbook"
	"github.com/tyemirov/cellarcrm/pkg/sessionvalidator"
)

const (
	sessionIssuer = "cellarcrm"

	credentialStoreGorm   = "gorm"
	credentialStorePgx    = "pgx"
	credentialStoreMemory = "memory"

	configCodeMissingJWTSigningKey    = "config.missing_jwt_signing_key"
	configCodeInvalidSessionTTL       = "config.invalid_session_ttl"
	configCodeMissingDatabaseURL      = "config.missing_database_url"
	configCodeInvalidCredentialStore  = "config.invalid_credential_store"
	configCodePgxRequiresPostgres     = "config.pgx_requires_postgres"
	configCodeMissingCORSOrigins      = "config.missing_cors_allowed_origins"
	configCodeInvalidCalendarTimeZone = "config.invalid_calendar_timezone"
	configCodeInvalidStateRedisURL    = "config.invalid_oauth_state_redis_url"
	configCodeMissingShopware         = "config.missing_shopware"
	configCodeUninitializedServerConf = "config.uninitialized_server_config"
)

// serverConfig is everything runServer needs, resolved from flags, env, and .env.
type serverConfig struct {
	ListenAddr         string
	PublicBaseURL      string
	FrontendURL        string
	DatabaseURL        string
	CredentialStore    string
	EnableCORS         bool
	CORSAllowedOrigins []string
	Auth               authkit.ServerConfig
	Graph              graphauth.Config
	GraphAPIURL        string
	CalendarTimeZone   string
	OAuthStateTTL      time.Duration
	OAuthStateRedis    *redis.Options
	Commerce           commerce.Config
	Workbook           workbook.Config
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

// LoadServerConfig validates the viper settings and assembles a serverConfig.
func LoadServerConfig() (serverConfig, error) {
	jwtSigningKey := viper.GetString("jwt_signing_key")
	if jwtSigningKey == "" {
		return serverConfig{}, configError(configCodeMissingJWTSigningKey, "jwt_signing_key must be provided")
	}

	sessionTTL := viper.GetDuration("session_ttl")
	if sessionTTL <= 0 {
		return serverConfig{}, configError(configCodeInvalidSessionTTL, "session_ttl must be greater than zero")
	}

	databaseURL, credentialStore, err := loadStorageSettings()
	if err != nil {
		return serverConfig{}, err
	}

	enableCORS := viper.GetBool("enable_cors")
	corsAllowedOrigins := viper.GetStringSlice("cors_allowed_origins")
	if enableCORS && len(corsAllowedOrigins) == 0 {
		return serverConfig{}, configError(configCodeMissingCORSOrigins, "cors_allowed_origins must be provided when enable_cors is true")
	}

	calendarTimeZone := strings.TrimSpace(viper.GetString("calendar_timezone"))
	if calendarTimeZone == "" {
		calendarTimeZone = calendar.DefaultTimeZone
	}
	if _, zoneErr := time.LoadLocation(calendarTimeZone); zoneErr != nil {
		return serverConfig{}, configError(configCodeInvalidCalendarTimeZone, fmt.Sprintf("calendar_timezone %q is not a known IANA zone", calendarTimeZone))
	}

	oauthStateTTL := viper.GetDuration("oauth_state_ttl")
	if oauthStateTTL <= 0 {
		oauthStateTTL = graphauth.DefaultStateTTL
	}

	var stateRedis *redis.Options
	if stateRedisURL := strings.TrimSpace(viper.GetString("oauth_state_redis_url")); stateRedisURL != "" {
		options, parseErr := redis.ParseURL(stateRedisURL)
		if parseErr != nil {
			return serverConfig{}, configError(configCodeInvalidStateRedisURL, parseErr.Error())
		}
		stateRedis = options
	}

	publicBaseURL := strings.TrimRight(strings.TrimSpace(viper.GetString("public_base_url")), "/")
	redirectURI := strings.TrimSpace(viper.GetString("graph_redirect_uri"))
	if redirectURI == "" && publicBaseURL != "" {
		redirectURI = graphauth.DefaultRedirectURI(publicBaseURL)
	}

	sameSite := http.SameSiteLaxMode
	if enableCORS {
		sameSite = http.SameSiteNoneMode
	}

	graphClientID := viper.GetString("graph_client_id")
	graphClientSecret := viper.GetString("graph_client_secret")
	graphTenantID := viper.GetString("graph_tenant_id")
	graphAuthorityURL := viper.GetString("graph_authority_url")

	return serverConfig{
		ListenAddr:         viper.GetString("listen_addr"),
		PublicBaseURL:      publicBaseURL,
		FrontendURL:        viper.GetString("frontend_url"),
		DatabaseURL:        databaseURL,
		CredentialStore:    credentialStore,
		EnableCORS:         enableCORS,
		CORSAllowedOrigins: corsAllowedOrigins,
		Auth: authkit.ServerConfig{
			SigningKey:        []byte(jwtSigningKey),
			Issuer:            sessionIssuer,
			CookieDomain:      viper.GetString("cookie_domain"),
			SessionCookieName: sessionvalidator.DefaultCookieName,
			SessionTTL:        sessionTTL,
			SameSiteMode:      sameSite,
			AllowInsecureHTTP: viper.GetBool("dev_insecure_http"),
			AdminEmails:       viper.GetStringSlice("admin_emails"),
		},
		Graph: graphauth.Config{
			ClientID:     graphClientID,
			ClientSecret: graphClientSecret,
			TenantID:     graphTenantID,
			RedirectURI:  redirectURI,
			AuthorityURL: graphAuthorityURL,
		},
		GraphAPIURL:      viper.GetString("graph_api_url"),
		CalendarTimeZone: calendarTimeZone,
		OAuthStateTTL:    oauthStateTTL,
		OAuthStateRedis:  stateRedis,
		Commerce:         loadCommerceConfig(),
		Workbook: workbook.Config{
			ClientID:     graphClientID,
			ClientSecret: graphClientSecret,
			TenantID:     graphTenantID,
			AuthorityURL: graphAuthorityURL,
			GraphURL:     viper.GetString("graph_api_url"),
			DriveID:      viper.GetString("linther_drive_id"),
			ItemID:       viper.GetString("linther_item_id"),
			Table:        viper.GetString("linther_table"),
		},
	}, nil
}

// loadStorageSettings returns the database URL and the credential store kind.
func loadStorageSettings() (string, string, error) {
	databaseURL := strings.TrimSpace(viper.GetString("database_url"))
	if databaseURL == "" {
		return "", "", configError(configCodeMissingDatabaseURL, "database_url must be provided")
	}
	credentialStore := strings.ToLower(strings.TrimSpace(viper.GetString("credential_store")))
	if credentialStore == "" {
		credentialStore = credentialStoreGorm
	}
	switch credentialStore {
	case credentialStoreGorm, credentialStoreMemory:
	case credentialStorePgx:
		if !database.IsPostgresURL(databaseURL) {
			return "", "", configError(configCodePgxRequiresPostgres, "credential_store pgx requires a postgres:// database_url")
		}
	default:
		return "", "", configError(configCodeInvalidCredentialStore, fmt.Sprintf("credential_store must be one of gorm, pgx, memory; got %q", credentialStore))
	}
	return databaseURL, credentialStore, nil
}

func loadCommerceConfig() commerce.Config {
	return commerce.Config{
		BaseURL:         viper.GetString("shopware_url"),
		ClientID:        viper.GetString("shopware_client_id"),
		ClientSecret:    viper.GetString("shopware_client_secret"),
		SalesRepGroupID: viper.GetString("shopware_sales_rep_group_id"),
	}
}
