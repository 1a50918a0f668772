package sessionvalidator

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestGinMiddlewareStoresClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	validator := newTestValidator(t, &stubGate{active: map[string]bool{"rep-7": true}})

	router := gin.New()
	router.Use(validator.GinMiddleware(""))
	router.GET("/api/me", func(contextGin *gin.Context) {
		claims, ok := ClaimsFromContext(contextGin)
		if !ok {
			contextGin.Status(http.StatusInternalServerError)
			return
		}
		contextGin.String(http.StatusOK, claims.GetAccountID())
	})

	request := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	request.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: signClaims(t, testSecret, repSession(validatorNow, time.Hour))})
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK || recorder.Body.String() != "rep-7" {
		t.Fatalf("unexpected response %d %q", recorder.Code, recorder.Body.String())
	}
}

func TestGinMiddlewareRejectionCodes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	valid := signClaims(t, testSecret, repSession(validatorNow, time.Hour))
	expired := signClaims(t, testSecret, repSession(validatorNow.Add(-2*time.Hour), time.Hour))

	testCases := []struct {
		name   string
		gate   *stubGate
		cookie string
		status int
		code   string
	}{
		{name: "no cookie", gate: &stubGate{}, status: http.StatusUnauthorized, code: "session_required"},
		{name: "expired", gate: &stubGate{}, cookie: expired, status: http.StatusUnauthorized, code: "session_expired"},
		{name: "tampered", gate: &stubGate{}, cookie: valid + "x", status: http.StatusUnauthorized, code: "session_invalid"},
		{name: "inactive", gate: &stubGate{active: map[string]bool{}}, cookie: valid, status: http.StatusUnauthorized, code: "account_inactive"},
		{name: "gate failure", gate: &stubGate{err: errors.New("db down")}, cookie: valid, status: http.StatusServiceUnavailable, code: "session_check_failed"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			router := gin.New()
			router.GET("/api/customers", newTestValidator(t, testCase.gate).GinMiddleware("custom"), func(contextGin *gin.Context) {
				contextGin.Status(http.StatusOK)
			})
			request := httptest.NewRequest(http.MethodGet, "/api/customers", nil)
			if testCase.cookie != "" {
				request.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: testCase.cookie})
			}
			recorder := httptest.NewRecorder()
			router.ServeHTTP(recorder, request)

			if recorder.Code != testCase.status || !strings.Contains(recorder.Body.String(), `"`+testCase.code+`"`) {
				t.Fatalf("expected %d %s, got %d %s", testCase.status, testCase.code, recorder.Code, recorder.Body.String())
			}
		})
	}
}

func TestClaimsFromContextWithoutMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	contextGin, _ := gin.CreateTestContext(httptest.NewRecorder())
	if _, ok := ClaimsFromContext(contextGin); ok {
		t.Fatalf("expected no claims on a bare context")
	}
	contextGin.Set(DefaultContextKey, "not claims")
	if _, ok := ClaimsFromContext(contextGin); ok {
		t.Fatalf("expected claims of the wrong type to be ignored")
	}
}
