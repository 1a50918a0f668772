package web

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tyemirov/cellarcrm/internal/calendar"
	"github.com/tyemirov/cellarcrm/internal/credentials"
	"github.com/tyemirov/cellarcrm/internal/graphauth"
	"github.com/tyemirov/cellarcrm/pkg/sessionvalidator"
)

// Query limits accepted by GET /api/calendar/events.
const (
	MaxDaysAhead = 60
	MaxItems     = 100
)

// CalendarTokens is the slice of the token lifecycle manager the calendar routes need.
type CalendarTokens interface {
	Configured() bool
	AuthorizationURL(state string) (string, error)
	Connect(ctx context.Context, userID string, code string) (credentials.StoredCredential, error)
	GetValidAccessToken(ctx context.Context, userID string) (graphauth.ValidToken, error)
	Disconnect(ctx context.Context, userID string) error
	Status(ctx context.Context, userID string) (graphauth.ConnectionStatus, error)
}

// EventFetcher reads upcoming events with a delegated access token.
type EventFetcher interface {
	FetchUpcomingEvents(ctx context.Context, accessToken string, options calendar.Options) ([]calendar.Event, error)
}

// CalendarHandlers serves the Outlook calendar integration.
type CalendarHandlers struct {
	tokens      CalendarTokens
	events      EventFetcher
	states      graphauth.StateStore
	frontendURL string
	logger      *zap.Logger
}

// NewCalendarHandlers builds the handlers. frontendURL is where the OAuth callback lands the
// browser afterwards.
func NewCalendarHandlers(tokens CalendarTokens, events EventFetcher, states graphauth.StateStore, frontendURL string, logger *zap.Logger) *CalendarHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CalendarHandlers{tokens: tokens, events: events, states: states, frontendURL: frontendURL, logger: logger}
}

// MountSessionRoutes registers the routes that need a signed-in account.
func (handlers *CalendarHandlers) MountSessionRoutes(router gin.IRouter) {
	router.GET("/api/calendar/connect", handlers.Connect)
	router.GET("/api/calendar/status", handlers.Status)
	router.DELETE("/api/calendar/connection", handlers.Disconnect)
	router.GET("/api/calendar/events", handlers.Events)
}

// MountCallback registers the OAuth redirect target. The state parameter identifies the account.
func (handlers *CalendarHandlers) MountCallback(router gin.IRouter) {
	router.GET("/api/calendar/callback", handlers.Callback)
}

// Connect redirects the browser to the Microsoft consent screen.
func (handlers *CalendarHandlers) Connect(contextGin *gin.Context) {
	accountID, ok := sessionAccountID(contextGin)
	if !ok {
		return
	}
	if !handlers.tokens.Configured() {
		handlers.writeError(contextGin, graphauth.ErrNotConfigured)
		return
	}
	state, err := handlers.states.Issue(contextGin.Request.Context(), accountID)
	if err != nil {
		handlers.logger.Error("issue oauth state", zap.String("code", "api.calendar.state_issue"), zap.Error(err))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	authorizationURL, err := handlers.tokens.AuthorizationURL(state)
	if err != nil {
		handlers.writeError(contextGin, err)
		return
	}
	contextGin.Redirect(http.StatusFound, authorizationURL)
}

// Callback redeems the authorization code and sends the browser back to the frontend with
// calendar=connected or calendar=error.
func (handlers *CalendarHandlers) Callback(contextGin *gin.Context) {
	if providerError := contextGin.Query("error"); providerError != "" {
		handlers.logger.Warn("calendar consent declined",
			zap.String("code", "api.calendar.consent_error"),
			zap.String("provider_error", providerError))
		handlers.redirectToFrontend(contextGin, "error", providerError)
		return
	}
	accountID, err := handlers.states.Consume(contextGin.Request.Context(), contextGin.Query("state"))
	if err != nil {
		handlers.logger.Warn("calendar callback state rejected",
			zap.String("code", "api.calendar.state_rejected"),
			zap.Error(err))
		handlers.redirectToFrontend(contextGin, "error", "invalid_state")
		return
	}
	if _, err := handlers.tokens.Connect(contextGin.Request.Context(), accountID, contextGin.Query("code")); err != nil {
		handlers.logger.Warn("calendar connect failed",
			zap.String("code", "api.calendar.connect_failed"),
			zap.String("account_id", accountID),
			zap.Error(err))
		handlers.redirectToFrontend(contextGin, "error", "exchange_failed")
		return
	}
	handlers.redirectToFrontend(contextGin, "connected", "")
}

// Status reports the connection state of the signed-in account.
func (handlers *CalendarHandlers) Status(contextGin *gin.Context) {
	accountID, ok := sessionAccountID(contextGin)
	if !ok {
		return
	}
	status, err := handlers.tokens.Status(contextGin.Request.Context(), accountID)
	if err != nil {
		handlers.writeError(contextGin, err)
		return
	}
	contextGin.JSON(http.StatusOK, status)
}

// Disconnect removes the stored grant.
func (handlers *CalendarHandlers) Disconnect(contextGin *gin.Context) {
	accountID, ok := sessionAccountID(contextGin)
	if !ok {
		return
	}
	if err := handlers.tokens.Disconnect(contextGin.Request.Context(), accountID); err != nil {
		handlers.writeError(contextGin, err)
		return
	}
	contextGin.Status(http.StatusNoContent)
}

// Events returns upcoming events. Optional query parameters: days, max.
func (handlers *CalendarHandlers) Events(contextGin *gin.Context) {
	accountID, ok := sessionAccountID(contextGin)
	if !ok {
		return
	}
	daysAhead, daysErr := boundedQueryInt(contextGin, "days", MaxDaysAhead)
	maxItems, maxErr := boundedQueryInt(contextGin, "max", MaxItems)
	if daysErr != nil || maxErr != nil {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_query"})
		return
	}
	token, err := handlers.tokens.GetValidAccessToken(contextGin.Request.Context(), accountID)
	if err != nil {
		handlers.writeError(contextGin, err)
		return
	}
	events, err := handlers.events.FetchUpcomingEvents(contextGin.Request.Context(), token.AccessToken, calendar.Options{
		DaysAhead: daysAhead,
		MaxItems:  maxItems,
	})
	if err != nil {
		handlers.writeError(contextGin, err)
		return
	}
	contextGin.JSON(http.StatusOK, gin.H{"events": events})
}

func (handlers *CalendarHandlers) writeError(contextGin *gin.Context, err error) {
	switch {
	case errors.Is(err, graphauth.ErrNotConfigured):
		contextGin.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "calendar_not_configured"})
	case errors.Is(err, graphauth.ErrNotConnected):
		contextGin.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "calendar_not_connected"})
	case errors.Is(err, graphauth.ErrRefreshImpossible),
		errors.Is(err, graphauth.ErrTokenEndpoint),
		errors.Is(err, graphauth.ErrIncompleteTokenResponse),
		errors.Is(err, calendar.ErrUnauthorizedAccess):
		contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "calendar_reauth_required"})
	case errors.Is(err, calendar.ErrFetchFailed):
		handlers.logger.Warn("calendar fetch failed", zap.String("code", "api.calendar.fetch_failed"), zap.Error(err))
		contextGin.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "calendar_unavailable"})
	default:
		handlers.logger.Error("calendar request failed", zap.String("code", "api.calendar.internal"), zap.Error(err))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
	}
}

func (handlers *CalendarHandlers) redirectToFrontend(contextGin *gin.Context, outcome string, reason string) {
	target, err := url.Parse(handlers.frontendURL)
	if err != nil || strings.TrimSpace(handlers.frontendURL) == "" {
		target = &url.URL{Path: "/"}
	}
	query := target.Query()
	query.Set("calendar", outcome)
	if reason != "" {
		query.Set("reason", reason)
	}
	target.RawQuery = query.Encode()
	contextGin.Redirect(http.StatusFound, target.String())
}

var errQueryOutOfRange = errors.New("web.query.out_of_range")

// boundedQueryInt returns 0 when the parameter is absent so the adapter default applies.
func boundedQueryInt(contextGin *gin.Context, name string, upper int) (int, error) {
	raw := strings.TrimSpace(contextGin.Query(name))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if value < 1 || value > upper {
		return 0, errQueryOutOfRange
	}
	return value, nil
}

func sessionAccountID(contextGin *gin.Context) (string, bool) {
	claims, ok := sessionvalidator.ClaimsFromContext(contextGin)
	if !ok || claims.GetAccountID() == "" {
		contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session_required"})
		return "", false
	}
	return claims.GetAccountID(), true
}
