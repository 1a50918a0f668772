package authkit

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"

	"github.com/tyemirov/cellarcrm/internal/crm"
	"github.com/tyemirov/cellarcrm/internal/metrics"
	"github.com/tyemirov/cellarcrm/internal/passwords"
	"github.com/tyemirov/cellarcrm/pkg/sessionvalidator"
)

type testAccountStore struct {
	accounts map[string]crm.Account
}

func (store *testAccountStore) FindAccountByEmail(ctx context.Context, email string) (crm.Account, error) {
	account, ok := store.accounts[crm.NormalizeEmail(email)]
	if !ok {
		return crm.Account{}, crm.ErrAccountNotFound
	}
	return account, nil
}

func (store *testAccountStore) FindAccountByID(ctx context.Context, accountID string) (crm.Account, error) {
	for _, account := range store.accounts {
		if account.ID == accountID {
			return account, nil
		}
	}
	return crm.Account{}, crm.ErrAccountNotFound
}

func newTestServerConfig() ServerConfig {
	return ServerConfig{
		SigningKey:        []byte("secret-key-1234567890"),
		Issuer:            "cellarcrm-test",
		SessionCookieName: "crm_session",
		SessionTTL:        time.Hour,
		SameSiteMode:      http.SameSiteLaxMode,
		AllowInsecureHTTP: true,
		AdminEmails:       []string{"Boss@Example.com"},
	}
}

type authHarness struct {
	router   *gin.Engine
	config   ServerConfig
	counters *metrics.Counters
	sessions *sessionvalidator.Validator
}

func newAuthHarness(t *testing.T, configuration ServerConfig) authHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := &testAccountStore{accounts: map[string]crm.Account{
		"rep@example.com": {
			ID: "rep-1", Email: "rep@example.com", DisplayName: "Rita Rep", Roles: []string{crm.RoleSalesRep}, Active: true,
			LegacyPasswordHash: "ce34c153ececb8d2bb0dec4781f7dc40", LegacyEncoder: "md5", LegacySalt: "abc",
		},
		"boss@example.com": {
			ID: "boss-1", Email: "boss@example.com", DisplayName: "Berta Boss", Roles: []string{crm.RoleSalesRep}, Active: true,
			LegacyPasswordHash: "ce34c153ececb8d2bb0dec4781f7dc40", LegacyEncoder: "md5", LegacySalt: "abc",
		},
		"gone@example.com": {
			ID: "gone-1", Email: "gone@example.com", Roles: []string{crm.RoleSalesRep}, Active: false,
			LegacyPasswordHash: "ce34c153ececb8d2bb0dec4781f7dc40", LegacyEncoder: "md5", LegacySalt: "abc",
		},
	}}
	sessions, err := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: configuration.SigningKey,
		Issuer:     configuration.Issuer,
		CookieName: configuration.SessionCookieName,
	})
	if err != nil {
		t.Fatalf("validator: %v", err)
	}
	counters := metrics.NewCounters()
	router := gin.New()
	MountAuthRoutes(router, configuration, store, passwords.NewVerifier(zaptest.NewLogger(t)),
		WithLogger(zaptest.NewLogger(t)), WithMetrics(counters))
	return authHarness{router: router, config: configuration, counters: counters, sessions: sessions}
}

func (harness authHarness) login(t *testing.T, email string, password string) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	request := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	harness.router.ServeHTTP(recorder, request)
	return recorder
}

func sessionCookie(recorder *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func TestLoginIssuesSessionCookie(t *testing.T) {
	harness := newAuthHarness(t, newTestServerConfig())
	recorder := harness.login(t, "Rep@Example.com", "pw1234")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	cookie := sessionCookie(recorder, "crm_session")
	if cookie == nil || cookie.Value == "" {
		t.Fatalf("expected session cookie")
	}
	if !cookie.HttpOnly || cookie.SameSite != http.SameSiteLaxMode {
		t.Fatalf("unexpected cookie attributes %+v", cookie)
	}
	if harness.counters.Count(MetricLoginSuccess) != 1 {
		t.Fatalf("expected login success counter")
	}

	claims, validateErr := harness.sessions.ValidateToken(cookie.Value)
	if validateErr != nil {
		t.Fatalf("session cookie did not validate: %v", validateErr)
	}
	if claims.GetAccountID() != "rep-1" || claims.GetEmail() != "rep@example.com" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if !claims.HasRole(crm.RoleSalesRep) || claims.HasRole(crm.RoleAdmin) {
		t.Fatalf("unexpected roles %v", claims.Roles)
	}
}

func TestLoginGrantsAdminRoleByEmail(t *testing.T) {
	harness := newAuthHarness(t, newTestServerConfig())
	recorder := harness.login(t, "boss@example.com", "pw1234")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), `"admin"`) {
		t.Fatalf("expected admin role in %s", recorder.Body.String())
	}
}

func TestLoginFailures(t *testing.T) {
	testCases := []struct {
		name     string
		email    string
		password string
		status   int
		errorKey string
	}{
		{name: "unknown account", email: "nobody@example.com", password: "pw1234", status: http.StatusUnauthorized, errorKey: "invalid_credentials"},
		{name: "wrong password", email: "rep@example.com", password: "pw12345", status: http.StatusUnauthorized, errorKey: "invalid_credentials"},
		{name: "inactive account", email: "gone@example.com", password: "pw1234", status: http.StatusForbidden, errorKey: "account_inactive"},
		{name: "missing password", email: "rep@example.com", password: "", status: http.StatusBadRequest, errorKey: "invalid_json"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			harness := newAuthHarness(t, newTestServerConfig())
			recorder := harness.login(t, testCase.email, testCase.password)
			if recorder.Code != testCase.status {
				t.Fatalf("expected %d, got %d", testCase.status, recorder.Code)
			}
			if !strings.Contains(recorder.Body.String(), testCase.errorKey) {
				t.Fatalf("expected %s in %s", testCase.errorKey, recorder.Body.String())
			}
			if sessionCookie(recorder, "crm_session") != nil {
				t.Fatalf("failed login must not set a session cookie")
			}
		})
	}
}

func TestLoginRequiresHTTPS(t *testing.T) {
	configuration := newTestServerConfig()
	configuration.AllowInsecureHTTP = false
	harness := newAuthHarness(t, configuration)
	recorder := harness.login(t, "rep@example.com", "pw1234")
	if recorder.Code != http.StatusBadRequest || !strings.Contains(recorder.Body.String(), "https_required") {
		t.Fatalf("expected https_required, got %d %s", recorder.Code, recorder.Body.String())
	}

	body := []byte(`{"email":"rep@example.com","password":"pw1234"}`)
	request := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	request.Header.Set("X-Forwarded-Proto", "https")
	forwarded := httptest.NewRecorder()
	harness.router.ServeHTTP(forwarded, request)
	if forwarded.Code != http.StatusOK {
		t.Fatalf("expected forwarded https login to succeed, got %d", forwarded.Code)
	}
}

func TestLogoutClearsCookie(t *testing.T) {
	harness := newAuthHarness(t, newTestServerConfig())
	recorder := httptest.NewRecorder()
	harness.router.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", recorder.Code)
	}
	cookie := sessionCookie(recorder, "crm_session")
	if cookie == nil || cookie.MaxAge >= 0 {
		t.Fatalf("expected expired session cookie, got %+v", cookie)
	}
}

func TestRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	configuration := newTestServerConfig()
	sessions, err := sessionvalidator.New(sessionvalidator.Config{SigningKey: configuration.SigningKey, Issuer: configuration.Issuer})
	if err != nil {
		t.Fatalf("validator: %v", err)
	}
	router := gin.New()
	router.GET("/admin", sessions.GinMiddleware(""), RequireRole(crm.RoleAdmin), func(contextGin *gin.Context) {
		contextGin.Status(http.StatusOK)
	})

	for _, testCase := range []struct {
		roles  []string
		status int
	}{
		{roles: []string{crm.RoleSalesRep}, status: http.StatusForbidden},
		{roles: []string{crm.RoleSalesRep, crm.RoleAdmin}, status: http.StatusOK},
	} {
		token, _, mintErr := MintSessionJWT(systemClock{}, SessionSubject{AccountID: "rep-1", Roles: testCase.roles}, configuration.Issuer, configuration.SigningKey, time.Minute)
		if mintErr != nil {
			t.Fatalf("mint: %v", mintErr)
		}
		request := httptest.NewRequest(http.MethodGet, "/admin", nil)
		request.AddCookie(&http.Cookie{Name: sessionvalidator.DefaultCookieName, Value: token})
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, request)
		if recorder.Code != testCase.status {
			t.Fatalf("roles %v: expected %d, got %d", testCase.roles, testCase.status, recorder.Code)
		}
	}
}
