package main

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tyemirov/cellarcrm/internal/authkit"
	"github.com/tyemirov/cellarcrm/internal/calendar"
	"github.com/tyemirov/cellarcrm/internal/commerce"
	"github.com/tyemirov/cellarcrm/internal/credentials"
	"github.com/tyemirov/cellarcrm/internal/credentialspg"
	"github.com/tyemirov/cellarcrm/internal/crm"
	"github.com/tyemirov/cellarcrm/internal/database"
	"github.com/tyemirov/cellarcrm/internal/graphauth"
	"github.com/tyemirov/cellarcrm/internal/lazycache"
	"github.com/tyemirov/cellarcrm/internal/metrics"
	"github.com/tyemirov/cellarcrm/internal/passwords"
	"github.com/tyemirov/cellarcrm/internal/web"
	"github.com/tyemirov/cellarcrm/internal/workbook"
	"github.com/tyemirov/cellarcrm/pkg/sessionvalidator"
)

// application holds the wired components behind the HTTP router.
type application struct {
	router   *gin.Engine
	crmStore *crm.Store
	counters *metrics.Counters
	closers  []func()
}

// Close releases database handles in reverse order of acquisition.
func (app *application) Close() {
	for index := len(app.closers) - 1; index >= 0; index-- {
		app.closers[index]()
	}
}

func buildApplication(ctx context.Context, configuration serverConfig, logger *zap.Logger) (*application, error) {
	app := &application{counters: metrics.NewCounters()}

	gormDB, driverLabel, err := database.Open(configuration.DatabaseURL)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, closeGormDB(gormDB))

	crmStore, err := crm.NewStore(ctx, gormDB, driverLabel)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.crmStore = crmStore

	credentialStore, err := openCredentialStore(ctx, configuration, gormDB, driverLabel, app)
	if err != nil {
		app.Close()
		return nil, err
	}
	logger.Info("credential store ready",
		zap.String("kind", configuration.CredentialStore),
		zap.String("driver", driverLabel))

	sessions, err := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: configuration.Auth.SigningKey,
		Issuer:     configuration.Auth.Issuer,
		CookieName: configuration.Auth.SessionCookieName,
		Accounts:   crmStore,
	})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("server.session_validator: %w", err)
	}

	tokenManager := graphauth.NewManager(configuration.Graph, credentialStore,
		graphauth.WithLogger(logger),
		graphauth.WithMetrics(app.counters))
	calendarClient := calendar.NewClient(
		calendar.WithBaseURL(configuration.GraphAPIURL),
		calendar.WithDefaultTimeZone(configuration.CalendarTimeZone),
		calendar.WithLogger(logger))
	calendarHandlers := web.NewCalendarHandlers(tokenManager, calendarClient,
		openStateStore(configuration, app), configuration.FrontendURL, logger)

	workbookClient := workbook.NewClient(configuration.Workbook, nil, logger)
	lintherListe := workbook.NewService(workbookClient, lazycache.New[workbook.Layout](workbookClient.FetchLayout))

	syncer := commerce.NewSyncer(commerce.NewClient(configuration.Commerce, nil, logger), crmStore,
		configuration.Commerce.SalesRepGroupID, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(zapLoggerMiddleware(logger))
	if configuration.EnableCORS {
		corsMiddleware, corsErr := web.ConfigureCORS(logger, configuration.CORSAllowedOrigins)
		if corsErr != nil {
			app.Close()
			return nil, corsErr
		}
		router.Use(corsMiddleware)
	}

	router.GET("/config.js", web.ServeFrontendConfig(web.FrontendConfig{
		BaseURL:            configuration.PublicBaseURL,
		CalendarConfigured: configuration.Graph.Configured(),
		LintherConfigured:  configuration.Workbook.Configured(),
	}))
	authkit.MountAuthRoutes(router, configuration.Auth, crmStore, passwords.NewVerifier(logger),
		authkit.WithLogger(logger),
		authkit.WithMetrics(app.counters))
	calendarHandlers.MountCallback(router)

	session := router.Group("", sessions.GinMiddleware(""))
	session.GET("/api/me", web.HandleWhoAmI(logger, crmStore))
	session.GET("/api/customers", web.HandleListCustomers(logger, crmStore))
	session.GET("/api/linther-liste", web.HandleLintherListe(logger, lintherListe))
	calendarHandlers.MountSessionRoutes(session)

	admin := session.Group("/api/admin", authkit.RequireRole(crm.RoleAdmin))
	admin.POST("/sync/customers", web.HandleSyncCustomers(logger, syncer))
	admin.POST("/linther-liste/layout/reset", web.HandleResetLintherLayout(lintherListe))
	admin.GET("/metrics", web.HandleMetrics(app.counters))

	app.router = router
	return app, nil
}

// openCredentialStore selects the Graph credential backend. The pgx store keeps its own pool
// next to the gorm handle.
func openCredentialStore(ctx context.Context, configuration serverConfig, gormDB *gorm.DB, driverLabel string, app *application) (credentials.Store, error) {
	switch configuration.CredentialStore {
	case credentialStoreMemory:
		return credentials.NewMemoryStore(), nil
	case credentialStorePgx:
		pool, err := credentialspg.BuildPool(ctx, configuration.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("server.credential_store.pgx: %w", err)
		}
		app.closers = append(app.closers, pool.Close)
		if err := credentialspg.EnsureSchema(ctx, pool); err != nil {
			return nil, fmt.Errorf("server.credential_store.pgx: %w", err)
		}
		return credentialspg.NewStore(pool), nil
	default:
		store, err := credentials.NewDatabaseStore(ctx, gormDB, driverLabel)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

// openStateStore keeps pending consents in Redis when configured so replicas share them.
func openStateStore(configuration serverConfig, app *application) graphauth.StateStore {
	if configuration.OAuthStateRedis == nil {
		return graphauth.NewMemoryStateStore(configuration.OAuthStateTTL)
	}
	client := redis.NewClient(configuration.OAuthStateRedis)
	app.closers = append(app.closers, func() { _ = client.Close() })
	return graphauth.NewRedisStateStore(client, sessionIssuer, configuration.OAuthStateTTL)
}

func closeGormDB(gormDB *gorm.DB) func() {
	return func() {
		if sqlDB, err := gormDB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
