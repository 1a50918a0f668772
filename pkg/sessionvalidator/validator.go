// Package sessionvalidator turns the crm_session cookie into Claims and guards gin routes with it.
package sessionvalidator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultCookieName is the cookie the login handler sets.
	DefaultCookieName = "crm_session"
	// DefaultContextKey is where GinMiddleware stores Claims.
	DefaultContextKey = "session_claims"
)

var (
	ErrMissingSigningKey = errors.New("session.validator.missing_signing_key")
	ErrMissingIssuer     = errors.New("session.validator.missing_issuer")
	ErrMissingToken      = errors.New("session.validator.missing_token")
	ErrMissingCookie     = errors.New("session.validator.missing_cookie")
	ErrInvalidToken      = errors.New("session.validator.invalid_token")
	ErrInvalidIssuer     = errors.New("session.validator.invalid_issuer")
	ErrTokenExpired      = errors.New("session.validator.expired")
	ErrAccountInactive   = errors.New("session.validator.account_inactive")
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// AccountGate decides whether the account behind a still-valid cookie may keep using it.
type AccountGate interface {
	AccountActive(ctx context.Context, accountID string) (bool, error)
}

// Config configures the Validator. Accounts is optional; without it any well-signed cookie
// is accepted until it expires.
type Config struct {
	SigningKey []byte
	Issuer     string
	CookieName string
	Clock      Clock
	Accounts   AccountGate
}

// Validator checks session cookies minted by the login handler.
type Validator struct {
	signingKey []byte
	issuer     string
	cookieName string
	clock      Clock
	accounts   AccountGate
	parser     *jwt.Parser
}

// New validates configuration and builds a Validator.
func New(configuration Config) (*Validator, error) {
	if len(configuration.SigningKey) == 0 {
		return nil, fmt.Errorf("session.validator.new: %w", ErrMissingSigningKey)
	}
	if strings.TrimSpace(configuration.Issuer) == "" {
		return nil, fmt.Errorf("session.validator.new: %w", ErrMissingIssuer)
	}
	validator := &Validator{
		signingKey: configuration.SigningKey,
		issuer:     configuration.Issuer,
		cookieName: strings.TrimSpace(configuration.CookieName),
		clock:      configuration.Clock,
		accounts:   configuration.Accounts,
	}
	if validator.cookieName == "" {
		validator.cookieName = DefaultCookieName
	}
	if validator.clock == nil {
		validator.clock = systemClock{}
	}
	validator.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(validator.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(validator.clock.Now),
	)
	return validator, nil
}

// CookieName is the cookie the validator reads.
func (validator *Validator) CookieName() string {
	return validator.cookieName
}

// ValidateToken checks the signature, issuer and lifetime of a session JWT.
func (validator *Validator) ValidateToken(tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, fmt.Errorf("session.validator.validate_token: %w", ErrMissingToken)
	}
	claims := &Claims{}
	_, parseErr := validator.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return validator.signingKey, nil
	})
	switch {
	case errors.Is(parseErr, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("session.validator.validate_token: %w", ErrTokenExpired)
	case errors.Is(parseErr, jwt.ErrTokenInvalidIssuer):
		return nil, fmt.Errorf("session.validator.validate_token: %w", ErrInvalidIssuer)
	case parseErr != nil:
		return nil, fmt.Errorf("session.validator.validate_token: %w", ErrInvalidToken)
	}
	if strings.TrimSpace(claims.AccountID) == "" {
		return nil, fmt.Errorf("session.validator.validate_token: %w", ErrInvalidToken)
	}
	return claims, nil
}

// Authenticate reads the session cookie from request, validates it and, when an AccountGate
// is configured, confirms the account is still active.
func (validator *Validator) Authenticate(ctx context.Context, request *http.Request) (*Claims, error) {
	if request == nil {
		return nil, fmt.Errorf("session.validator.authenticate: %w", ErrMissingCookie)
	}
	cookie, cookieErr := request.Cookie(validator.cookieName)
	if cookieErr != nil || strings.TrimSpace(cookie.Value) == "" {
		return nil, fmt.Errorf("session.validator.authenticate: %w", ErrMissingCookie)
	}
	claims, err := validator.ValidateToken(cookie.Value)
	if err != nil {
		return nil, err
	}
	if validator.accounts == nil {
		return claims, nil
	}
	active, gateErr := validator.accounts.AccountActive(ctx, claims.AccountID)
	if gateErr != nil {
		return nil, fmt.Errorf("session.validator.authenticate: %w", gateErr)
	}
	if !active {
		return nil, fmt.Errorf("session.validator.authenticate: %w", ErrAccountInactive)
	}
	return claims, nil
}
