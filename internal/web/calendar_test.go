package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"

	"github.com/tyemirov/cellarcrm/internal/calendar"
	"github.com/tyemirov/cellarcrm/internal/credentials"
	"github.com/tyemirov/cellarcrm/internal/graphauth"
	"github.com/tyemirov/cellarcrm/pkg/sessionvalidator"
)

type fakeCalendarTokens struct {
	configured    bool
	connectErr    error
	connectedUser string
	connectedCode string
	token         graphauth.ValidToken
	tokenErr      error
	status        graphauth.ConnectionStatus
	disconnectErr error
}

func (tokens *fakeCalendarTokens) Configured() bool {
	return tokens.configured
}

func (tokens *fakeCalendarTokens) AuthorizationURL(state string) (string, error) {
	if !tokens.configured {
		return "", graphauth.ErrNotConfigured
	}
	return "https://login.example.test/authorize?state=" + url.QueryEscape(state), nil
}

func (tokens *fakeCalendarTokens) Connect(ctx context.Context, userID string, code string) (credentials.StoredCredential, error) {
	if tokens.connectErr != nil {
		return credentials.StoredCredential{}, tokens.connectErr
	}
	tokens.connectedUser = userID
	tokens.connectedCode = code
	return credentials.StoredCredential{UserID: userID}, nil
}

func (tokens *fakeCalendarTokens) GetValidAccessToken(ctx context.Context, userID string) (graphauth.ValidToken, error) {
	return tokens.token, tokens.tokenErr
}

func (tokens *fakeCalendarTokens) Disconnect(ctx context.Context, userID string) error {
	return tokens.disconnectErr
}

func (tokens *fakeCalendarTokens) Status(ctx context.Context, userID string) (graphauth.ConnectionStatus, error) {
	return tokens.status, nil
}

type fakeEventFetcher struct {
	events      []calendar.Event
	err         error
	accessToken string
	options     calendar.Options
}

func (fetcher *fakeEventFetcher) FetchUpcomingEvents(ctx context.Context, accessToken string, options calendar.Options) ([]calendar.Event, error) {
	fetcher.accessToken = accessToken
	fetcher.options = options
	return fetcher.events, fetcher.err
}

func withSession(claims *sessionvalidator.Claims) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		if claims != nil {
			contextGin.Set(sessionvalidator.DefaultContextKey, claims)
		}
		contextGin.Next()
	}
}

func repClaims() *sessionvalidator.Claims {
	return &sessionvalidator.Claims{AccountID: "rep-1", Email: "rep@example.com", Roles: []string{"sales_rep"}}
}

type calendarHarness struct {
	router *gin.Engine
	tokens *fakeCalendarTokens
	events *fakeEventFetcher
	states graphauth.StateStore
}

func newCalendarHarness(t *testing.T, claims *sessionvalidator.Claims) calendarHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	harness := calendarHarness{
		tokens: &fakeCalendarTokens{configured: true, token: graphauth.ValidToken{AccessToken: "graph-token"}},
		events: &fakeEventFetcher{},
		states: graphauth.NewMemoryStateStore(time.Minute),
	}
	handlers := NewCalendarHandlers(harness.tokens, harness.events, harness.states, "https://crm.example.com/app", zaptest.NewLogger(t))
	router := gin.New()
	handlers.MountCallback(router)
	handlers.MountSessionRoutes(router.Group("", withSession(claims)))
	harness.router = router
	return harness
}

func (harness calendarHarness) do(method string, target string) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	harness.router.ServeHTTP(recorder, httptest.NewRequest(method, target, nil))
	return recorder
}

func TestCalendarConnectRoundTrip(t *testing.T) {
	harness := newCalendarHarness(t, repClaims())
	connect := harness.do(http.MethodGet, "/api/calendar/connect")
	if connect.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", connect.Code)
	}
	location, err := url.Parse(connect.Header().Get("Location"))
	if err != nil || location.Host != "login.example.test" {
		t.Fatalf("unexpected consent location %q", connect.Header().Get("Location"))
	}
	state := location.Query().Get("state")
	if state == "" {
		t.Fatalf("expected state in consent url")
	}

	callback := harness.do(http.MethodGet, "/api/calendar/callback?code=auth-code&state="+url.QueryEscape(state))
	if callback.Code != http.StatusFound {
		t.Fatalf("expected 302 from callback, got %d", callback.Code)
	}
	if got := callback.Header().Get("Location"); got != "https://crm.example.com/app?calendar=connected" {
		t.Fatalf("unexpected frontend redirect %q", got)
	}
	if harness.tokens.connectedUser != "rep-1" || harness.tokens.connectedCode != "auth-code" {
		t.Fatalf("unexpected connect call user=%q code=%q", harness.tokens.connectedUser, harness.tokens.connectedCode)
	}

	replay := harness.do(http.MethodGet, "/api/calendar/callback?code=auth-code&state="+url.QueryEscape(state))
	if got := replay.Header().Get("Location"); got != "https://crm.example.com/app?calendar=error&reason=invalid_state" {
		t.Fatalf("replayed state must be rejected, got %q", got)
	}
}

func TestCalendarCallbackFailures(t *testing.T) {
	harness := newCalendarHarness(t, repClaims())

	declined := harness.do(http.MethodGet, "/api/calendar/callback?error=access_denied&state=x")
	if got := declined.Header().Get("Location"); got != "https://crm.example.com/app?calendar=error&reason=access_denied" {
		t.Fatalf("unexpected redirect for declined consent %q", got)
	}

	state, err := harness.states.Issue(context.Background(), "rep-1")
	if err != nil {
		t.Fatalf("issue state: %v", err)
	}
	harness.tokens.connectErr = fmt.Errorf("exchange: %w", graphauth.ErrTokenEndpoint)
	failed := harness.do(http.MethodGet, "/api/calendar/callback?code=bad&state="+url.QueryEscape(state))
	if got := failed.Header().Get("Location"); got != "https://crm.example.com/app?calendar=error&reason=exchange_failed" {
		t.Fatalf("unexpected redirect for failed exchange %q", got)
	}
}

func TestCalendarRoutesRequireSession(t *testing.T) {
	harness := newCalendarHarness(t, nil)
	for _, target := range []string{"/api/calendar/connect", "/api/calendar/status", "/api/calendar/events"} {
		if recorder := harness.do(http.MethodGet, target); recorder.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", target, recorder.Code)
		}
	}
}

func TestCalendarConnectNotConfigured(t *testing.T) {
	harness := newCalendarHarness(t, repClaims())
	harness.tokens.configured = false
	recorder := harness.do(http.MethodGet, "/api/calendar/connect")
	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", recorder.Code)
	}
}

func TestCalendarEventsPassesQuery(t *testing.T) {
	harness := newCalendarHarness(t, repClaims())
	subject := "Weinverkostung"
	harness.events.events = []calendar.Event{{ID: "evt-1", Subject: &subject}}

	recorder := harness.do(http.MethodGet, "/api/calendar/events?days=7&max=5")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if harness.events.accessToken != "graph-token" {
		t.Fatalf("expected access token to be forwarded, got %q", harness.events.accessToken)
	}
	if harness.events.options.DaysAhead != 7 || harness.events.options.MaxItems != 5 {
		t.Fatalf("unexpected options %+v", harness.events.options)
	}
	if !strings.Contains(recorder.Body.String(), "Weinverkostung") {
		t.Fatalf("expected event in body %s", recorder.Body.String())
	}
}

func TestCalendarEventsRejectsBadQuery(t *testing.T) {
	harness := newCalendarHarness(t, repClaims())
	for _, query := range []string{"days=abc", "days=0", "days=61", "max=101", "max=-1"} {
		recorder := harness.do(http.MethodGet, "/api/calendar/events?"+query)
		if recorder.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", query, recorder.Code)
		}
	}
}

func TestCalendarEventsErrorMapping(t *testing.T) {
	testCases := []struct {
		name     string
		tokenErr error
		fetchErr error
		status   int
		errorKey string
	}{
		{name: "not configured", tokenErr: fmt.Errorf("op: %w", graphauth.ErrNotConfigured), status: http.StatusServiceUnavailable, errorKey: "calendar_not_configured"},
		{name: "not connected", tokenErr: fmt.Errorf("op: %w", graphauth.ErrNotConnected), status: http.StatusConflict, errorKey: "calendar_not_connected"},
		{name: "refresh impossible", tokenErr: fmt.Errorf("op: %w", graphauth.ErrRefreshImpossible), status: http.StatusUnauthorized, errorKey: "calendar_reauth_required"},
		{name: "token endpoint", tokenErr: fmt.Errorf("op: %w", graphauth.ErrTokenEndpoint), status: http.StatusUnauthorized, errorKey: "calendar_reauth_required"},
		{name: "graph unauthorized", fetchErr: fmt.Errorf("op: %w", calendar.ErrUnauthorizedAccess), status: http.StatusUnauthorized, errorKey: "calendar_reauth_required"},
		{name: "graph failure", fetchErr: fmt.Errorf("op: %w", calendar.ErrFetchFailed), status: http.StatusBadGateway, errorKey: "calendar_unavailable"},
		{name: "store failure", tokenErr: errors.New("disk on fire"), status: http.StatusInternalServerError},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			harness := newCalendarHarness(t, repClaims())
			harness.tokens.tokenErr = testCase.tokenErr
			harness.events.err = testCase.fetchErr
			recorder := harness.do(http.MethodGet, "/api/calendar/events")
			if recorder.Code != testCase.status {
				t.Fatalf("expected %d, got %d", testCase.status, recorder.Code)
			}
			if testCase.errorKey != "" && !strings.Contains(recorder.Body.String(), testCase.errorKey) {
				t.Fatalf("expected %s in %s", testCase.errorKey, recorder.Body.String())
			}
		})
	}
}

func TestCalendarStatusAndDisconnect(t *testing.T) {
	harness := newCalendarHarness(t, repClaims())
	harness.tokens.status = graphauth.ConnectionStatus{Configured: true, Connected: true, Scope: "Calendars.Read"}
	status := harness.do(http.MethodGet, "/api/calendar/status")
	if status.Code != http.StatusOK || !strings.Contains(status.Body.String(), `"connected":true`) {
		t.Fatalf("unexpected status response %d %s", status.Code, status.Body.String())
	}

	if recorder := harness.do(http.MethodDelete, "/api/calendar/connection"); recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", recorder.Code)
	}
	harness.tokens.disconnectErr = fmt.Errorf("op: %w", graphauth.ErrNotConnected)
	if recorder := harness.do(http.MethodDelete, "/api/calendar/connection"); recorder.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", recorder.Code)
	}
}
