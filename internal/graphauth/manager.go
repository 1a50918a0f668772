package graphauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/tyemirov/cellarcrm/internal/credentials"
	"github.com/tyemirov/cellarcrm/internal/metrics"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// ValidToken is an access token guaranteed to stay valid for at least ExpiryMargin.
type ValidToken struct {
	AccessToken  string
	CredentialID string
}

// ConnectionStatus summarizes the stored grant of one user.
type ConnectionStatus struct {
	Configured  bool      `json:"configured"`
	Connected   bool      `json:"connected"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
	Scope       string    `json:"scope,omitempty"`
	NeedsReauth bool      `json:"needs_reauth"`
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock replaces the system clock.
func WithClock(clock Clock) Option {
	return func(manager *Manager) {
		if clock != nil {
			manager.clock = clock
		}
	}
}

// WithHTTPClient replaces the client used to call the token endpoint.
func WithHTTPClient(client *http.Client) Option {
	return func(manager *Manager) {
		if client != nil {
			manager.httpClient = client
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(manager *Manager) {
		if logger != nil {
			manager.logger = logger
		}
	}
}

// WithMetrics sets the counter recorder.
func WithMetrics(recorder metrics.Recorder) Option {
	return func(manager *Manager) {
		if recorder != nil {
			manager.metrics = recorder
		}
	}
}

// Manager keeps delegated Microsoft Graph tokens usable.
type Manager struct {
	config     Config
	store      credentials.Store
	clock      Clock
	httpClient *http.Client
	logger     *zap.Logger
	metrics    metrics.Recorder
}

// NewManager wires a Manager around the credential store.
func NewManager(config Config, store credentials.Store, options ...Option) *Manager {
	manager := &Manager{
		config:     config,
		store:      store,
		clock:      systemClock{},
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     zap.NewNop(),
		metrics:    metrics.Noop{},
	}
	for _, option := range options {
		option(manager)
	}
	return manager
}

// Configured reports whether the application registration is complete.
func (manager *Manager) Configured() bool {
	return manager.config.Configured()
}

// AuthorizationURL builds the consent screen address for the given state.
func (manager *Manager) AuthorizationURL(state string) (string, error) {
	if !manager.config.Configured() {
		return "", fmt.Errorf("graph_auth.authorization_url: %w", ErrNotConfigured)
	}
	oauthConfig := oauth2.Config{
		ClientID:     manager.config.ClientID,
		ClientSecret: manager.config.ClientSecret,
		RedirectURL:  manager.config.RedirectURI,
		Scopes:       manager.config.scopes(),
		Endpoint: oauth2.Endpoint{
			AuthURL:  manager.config.AuthorizeURL(),
			TokenURL: manager.config.TokenURL(),
		},
	}
	return oauthConfig.AuthCodeURL(state, oauth2.SetAuthURLParam("response_mode", "query")), nil
}

// Connect redeems the callback code and stores the resulting grant for userID.
func (manager *Manager) Connect(ctx context.Context, userID string, code string) (credentials.StoredCredential, error) {
	if !manager.config.Configured() {
		return credentials.StoredCredential{}, fmt.Errorf("graph_auth.connect: %w", ErrNotConfigured)
	}
	if strings.TrimSpace(userID) == "" {
		return credentials.StoredCredential{}, fmt.Errorf("graph_auth.connect: %w", credentials.ErrEmptyUserID)
	}
	tokenSet, err := manager.ExchangeCodeForToken(ctx, code)
	if err != nil {
		return credentials.StoredCredential{}, err
	}
	stored, err := manager.store.Upsert(ctx, toStoredCredential(userID, tokenSet))
	if err != nil {
		return credentials.StoredCredential{}, fmt.Errorf("graph_auth.connect: %w", err)
	}
	manager.metrics.Increment(MetricExchanged)
	return stored, nil
}

// GetValidAccessToken returns a token valid for at least ExpiryMargin, refreshing it when needed.
func (manager *Manager) GetValidAccessToken(ctx context.Context, userID string) (ValidToken, error) {
	if !manager.config.Configured() {
		return ValidToken{}, fmt.Errorf("graph_auth.valid_token: %w", ErrNotConfigured)
	}
	stored, err := manager.store.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, credentials.ErrCredentialNotFound) {
			return ValidToken{}, fmt.Errorf("graph_auth.valid_token: %w", ErrNotConnected)
		}
		return ValidToken{}, fmt.Errorf("graph_auth.valid_token: %w", err)
	}

	if !manager.needsRefresh(stored.ExpiresAt) {
		manager.metrics.Increment(MetricFastPath)
		return ValidToken{AccessToken: stored.AccessToken, CredentialID: stored.ID}, nil
	}
	if !stored.HasRefreshToken() {
		return ValidToken{}, fmt.Errorf("graph_auth.valid_token: %w", ErrRefreshImpossible)
	}

	tokenSet, err := manager.RefreshAccessToken(ctx, stored.RefreshToken)
	if err != nil {
		manager.metrics.Increment(MetricRefreshFailed)
		manager.logger.Warn("graph token refresh failed",
			zap.String("code", "graph_auth.refresh_failed"),
			zap.String("user_id", userID),
			zap.Error(err))
		return ValidToken{}, err
	}
	updated, err := manager.store.Upsert(ctx, toStoredCredential(userID, tokenSet))
	if err != nil {
		return ValidToken{}, fmt.Errorf("graph_auth.valid_token: %w", err)
	}
	manager.metrics.Increment(MetricRefreshed)
	return ValidToken{AccessToken: updated.AccessToken, CredentialID: updated.ID}, nil
}

// Disconnect forgets the stored grant of userID.
func (manager *Manager) Disconnect(ctx context.Context, userID string) error {
	if !manager.config.Configured() {
		return fmt.Errorf("graph_auth.disconnect: %w", ErrNotConfigured)
	}
	if err := manager.store.Delete(ctx, userID); err != nil {
		if errors.Is(err, credentials.ErrCredentialNotFound) {
			return fmt.Errorf("graph_auth.disconnect: %w", ErrNotConnected)
		}
		return fmt.Errorf("graph_auth.disconnect: %w", err)
	}
	return nil
}

// Status reports whether userID has a usable grant without touching the network.
func (manager *Manager) Status(ctx context.Context, userID string) (ConnectionStatus, error) {
	status := ConnectionStatus{Configured: manager.config.Configured()}
	if !status.Configured {
		return status, nil
	}
	stored, err := manager.store.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, credentials.ErrCredentialNotFound) {
			return status, nil
		}
		return ConnectionStatus{}, fmt.Errorf("graph_auth.status: %w", err)
	}
	status.Connected = true
	status.ExpiresAt = stored.ExpiresAt
	status.Scope = stored.Scope
	status.NeedsReauth = manager.needsRefresh(stored.ExpiresAt) && !stored.HasRefreshToken()
	return status, nil
}

func (manager *Manager) needsRefresh(expiresAt time.Time) bool {
	return !expiresAt.After(manager.clock.Now().Add(ExpiryMargin))
}

func toStoredCredential(userID string, tokenSet TokenSet) credentials.StoredCredential {
	return credentials.StoredCredential{
		UserID:       userID,
		AccessToken:  tokenSet.AccessToken,
		RefreshToken: tokenSet.RefreshToken,
		Scope:        tokenSet.Scope,
		TokenType:    tokenSet.TokenType,
		ExpiresAt:    tokenSet.ExpiresAt,
	}
}
