package graphauth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

const (
	grantTypeAuthorizationCode = "authorization_code"
	grantTypeRefreshToken      = "refresh_token"

	maxLoggedResponseBytes = 2048
)

// TokenSet is the outcome of one successful grant.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	ExpiresAt    time.Time
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
	ExpiresIn    int64  `json:"expires_in"`
}

// ExchangeCodeForToken redeems an authorization code.
func (manager *Manager) ExchangeCodeForToken(ctx context.Context, code string) (TokenSet, error) {
	if !manager.config.Configured() {
		return TokenSet{}, fmt.Errorf("graph_auth.exchange: %w", ErrNotConfigured)
	}
	if strings.TrimSpace(code) == "" {
		return TokenSet{}, fmt.Errorf("graph_auth.exchange: %w", ErrEmptyAuthorizationCode)
	}
	form := url.Values{}
	form.Set("grant_type", grantTypeAuthorizationCode)
	form.Set("code", code)
	form.Set("redirect_uri", manager.config.RedirectURI)
	return manager.requestToken(ctx, form)
}

// RefreshAccessToken redeems a refresh token for a new TokenSet.
func (manager *Manager) RefreshAccessToken(ctx context.Context, refreshToken string) (TokenSet, error) {
	if !manager.config.Configured() {
		return TokenSet{}, fmt.Errorf("graph_auth.refresh: %w", ErrNotConfigured)
	}
	if refreshToken == "" {
		return TokenSet{}, fmt.Errorf("graph_auth.refresh: %w", ErrRefreshImpossible)
	}
	form := url.Values{}
	form.Set("grant_type", grantTypeRefreshToken)
	form.Set("refresh_token", refreshToken)
	tokenSet, err := manager.requestToken(ctx, form)
	if err != nil {
		return TokenSet{}, err
	}
	if tokenSet.RefreshToken == "" {
		tokenSet.RefreshToken = refreshToken
	}
	return tokenSet, nil
}

func (manager *Manager) requestToken(ctx context.Context, form url.Values) (TokenSet, error) {
	grantType := form.Get("grant_type")
	form.Set("client_id", manager.config.ClientID)
	form.Set("client_secret", manager.config.ClientSecret)
	form.Set("scope", manager.config.ScopeString())

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, manager.config.TokenURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return TokenSet{}, fmt.Errorf("graph_auth.token.%s: %w", grantType, err)
	}
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	request.Header.Set("Accept", "application/json")

	issuedAt := manager.clock.Now()
	response, err := manager.httpClient.Do(request)
	if err != nil {
		manager.logger.Warn("graph token request failed",
			zap.String("code", "graph_auth.token_transport"),
			zap.String("grant_type", grantType),
			zap.Error(err))
		return TokenSet{}, fmt.Errorf("graph_auth.token.%s: %w", grantType, ErrTokenEndpoint)
	}
	defer response.Body.Close()

	body, readErr := io.ReadAll(response.Body)
	if readErr != nil {
		return TokenSet{}, fmt.Errorf("graph_auth.token.%s: %w", grantType, ErrTokenEndpoint)
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		manager.logger.Warn("graph token endpoint rejected request",
			zap.String("code", "graph_auth.token_rejected"),
			zap.String("grant_type", grantType),
			zap.Int("status", response.StatusCode),
			zap.String("response", truncateForLog(body)))
		return TokenSet{}, fmt.Errorf("graph_auth.token.%s: %w", grantType, ErrTokenEndpoint)
	}

	var payload tokenResponse
	if decodeErr := json.Unmarshal(body, &payload); decodeErr != nil {
		manager.logger.Warn("graph token response undecodable",
			zap.String("code", "graph_auth.token_malformed"),
			zap.String("grant_type", grantType),
			zap.Error(decodeErr))
		return TokenSet{}, fmt.Errorf("graph_auth.token.%s: %w", grantType, ErrIncompleteTokenResponse)
	}
	if payload.AccessToken == "" || payload.ExpiresIn <= 0 {
		manager.logger.Warn("graph token response incomplete",
			zap.String("code", "graph_auth.token_incomplete"),
			zap.String("grant_type", grantType),
			zap.Bool("has_access_token", payload.AccessToken != ""),
			zap.Int64("expires_in", payload.ExpiresIn))
		return TokenSet{}, fmt.Errorf("graph_auth.token.%s: %w", grantType, ErrIncompleteTokenResponse)
	}
	return newTokenSet(payload, issuedAt), nil
}

func newTokenSet(payload tokenResponse, issuedAt time.Time) TokenSet {
	lifetime := time.Duration(payload.ExpiresIn) * time.Second
	return TokenSet{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		TokenType:    payload.TokenType,
		Scope:        payload.Scope,
		ExpiresAt:    issuedAt.Add(lifetime - ExpiryMargin),
	}
}

func truncateForLog(body []byte) string {
	if len(body) > maxLoggedResponseBytes {
		return string(body[:maxLoggedResponseBytes]) + "…"
	}
	return string(body)
}
