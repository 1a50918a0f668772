package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tyemirov/cellarcrm/internal/calendar"
	"github.com/tyemirov/cellarcrm/internal/graphauth"
	"github.com/tyemirov/cellarcrm/pkg/sessionvalidator"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "config.dotenv: %v\n", err)
		os.Exit(1)
	}
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// boundFlags lists every persistent flag mirrored into viper (and APP_* env variables).
var boundFlags = []string{
	"listen_addr", "public_base_url", "frontend_url", "database_url", "credential_store",
	"jwt_signing_key", "session_ttl", "cookie_domain", "dev_insecure_http", "enable_cors",
	"cors_allowed_origins", "admin_emails", "graph_client_id", "graph_client_secret",
	"graph_tenant_id", "graph_redirect_uri", "graph_authority_url", "graph_api_url",
	"calendar_timezone", "oauth_state_ttl", "oauth_state_redis_url", "shopware_url", "shopware_client_id",
	"shopware_client_secret", "shopware_sales_rep_group_id", "linther_drive_id",
	"linther_item_id", "linther_table",
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "cellarcrm",
		Short:   "Sales CRM backend with Outlook calendar, Shopware customer mirror, and Linther Liste",
		PreRunE: prepareServerConfig,
		RunE:    runServer,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("listen_addr", ":8080", "HTTP listen address")
	flags.String("public_base_url", "", "Externally visible base URL of this service")
	flags.String("frontend_url", "", "Frontend address the calendar callback returns to")
	flags.String("database_url", "sqlite://cellarcrm.db", "Database URL (postgres:// or sqlite://)")
	flags.String("credential_store", credentialStoreGorm, "Graph credential store: gorm, pgx, or memory")
	flags.String("jwt_signing_key", "", "HS256 signing secret for session JWT")
	flags.Duration("session_ttl", 12*time.Hour, "Session cookie lifetime")
	flags.String("cookie_domain", "", "Cookie domain; empty for host-only")
	flags.Bool("dev_insecure_http", false, "Allow login over plain HTTP for local dev")
	flags.Bool("enable_cors", false, "Enable CORS for a frontend on another origin (sets SameSite=None cookies)")
	flags.StringSlice("cors_allowed_origins", []string{}, "Allowed origins when CORS is enabled")
	flags.StringSlice("admin_emails", []string{}, "Accounts granted the admin role")
	flags.String("graph_client_id", "", "Microsoft Entra application (client) id")
	flags.String("graph_client_secret", "", "Microsoft Entra client secret")
	flags.String("graph_tenant_id", "", "Microsoft Entra tenant id")
	flags.String("graph_redirect_uri", "", "OAuth redirect URI; defaults to <public_base_url>/api/calendar/callback")
	flags.String("graph_authority_url", graphauth.DefaultAuthorityURL, "Microsoft identity platform authority")
	flags.String("graph_api_url", calendar.DefaultGraphURL, "Microsoft Graph API root")
	flags.String("calendar_timezone", calendar.DefaultTimeZone, "IANA zone for event times")
	flags.Duration("oauth_state_ttl", graphauth.DefaultStateTTL, "Lifetime of a pending calendar consent")
	flags.String("oauth_state_redis_url", "", "Redis URL for pending calendar consents; empty keeps them in memory")
	flags.String("shopware_url", "", "Shopware shop base URL")
	flags.String("shopware_client_id", "", "Shopware integration access key id")
	flags.String("shopware_client_secret", "", "Shopware integration secret")
	flags.String("shopware_sales_rep_group_id", "", "Customer group whose members may sign in")
	flags.String("linther_drive_id", "", "Drive id of the Linther Liste workbook")
	flags.String("linther_item_id", "", "Item id of the Linther Liste workbook")
	flags.String("linther_table", "", "Table name inside the Linther Liste workbook")

	for _, name := range boundFlags {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	rootCmd.AddCommand(newSyncCustomersCommand(), newHashPasswordCommand())
	return rootCmd
}

type contextKey string

const (
	serverConfigContextKey contextKey = "serverConfig"
	syncConfigContextKey   contextKey = "syncConfig"
)

func prepareServerConfig(command *cobra.Command, arguments []string) error {
	configuration, loadErr := LoadServerConfig()
	if loadErr != nil {
		return loadErr
	}
	setCommandValue(command, serverConfigContextKey, configuration)
	return nil
}

func setCommandValue(command *cobra.Command, key contextKey, value any) {
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, key, value))
}

func commandValue(command *cobra.Command, key contextKey) any {
	if command.Context() == nil {
		return nil
	}
	return command.Context().Value(key)
}

func runServer(command *cobra.Command, arguments []string) error {
	configuration, ok := commandValue(command, serverConfigContextKey).(serverConfig)
	if !ok {
		return configError(configCodeUninitializedServerConf, "server configuration not prepared; PreRunE must execute before RunE")
	}

	logger, loggerErr := newLogger()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	gin.SetMode(gin.ReleaseMode)
	app, err := buildApplication(command.Context(), configuration, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	if !configuration.Graph.Configured() {
		logger.Warn("graph application not configured; calendar routes answer 503",
			zap.String("code", "config.graph_unconfigured"))
	}
	if !configuration.Commerce.Configured() {
		logger.Warn("shopware not configured; customer sync disabled",
			zap.String("code", "config.shopware_unconfigured"))
	}

	server := &http.Server{
		Addr:              configuration.ListenAddr,
		Handler:           app.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(stopSignals)
		select {
		case <-stopSignals:
		case <-shutdownCtx.Done():
			return
		}
		graceCtx, graceCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", configuration.ListenAddr))
	if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", err)
	}
	return nil
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		fields := []zap.Field{
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.Duration("elapsed", time.Since(startTime)),
		}
		if claims, ok := sessionvalidator.ClaimsFromContext(contextGin); ok {
			fields = append(fields, zap.String("account_id", claims.GetAccountID()))
		}
		logger.Info("http", fields...)
	}
}
