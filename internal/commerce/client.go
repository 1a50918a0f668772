// Package commerce talks to the Shopware Admin API and mirrors its customers into the CRM.
package commerce

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// SalesRepCustomField holds the email of the representative a customer is assigned to.
const SalesRepCustomField = "crm_sales_rep_email"

var (
	// ErrNotConfigured indicates a missing shop URL or integration credentials.
	ErrNotConfigured = errors.New("commerce.not_configured")
	// ErrRequestFailed indicates that the Admin API rejected or failed a request.
	ErrRequestFailed = errors.New("commerce.request_failed")
)

// Config holds the Shopware integration credentials.
type Config struct {
	BaseURL         string
	ClientID        string
	ClientSecret    string
	SalesRepGroupID string
}

// Configured reports whether the shop URL and integration credentials are present.
func (config Config) Configured() bool {
	return strings.TrimSpace(config.BaseURL) != "" &&
		strings.TrimSpace(config.ClientID) != "" &&
		strings.TrimSpace(config.ClientSecret) != ""
}

func (config Config) endpoint(path string) string {
	return strings.TrimRight(strings.TrimSpace(config.BaseURL), "/") + path
}

// CommerceCustomer is the subset of a Shopware customer the CRM mirrors.
type CommerceCustomer struct {
	ID             string
	CustomerNumber string
	Email          string
	FirstName      string
	LastName       string
	Company        string
	City           string
	GroupID        string
	Active         bool
	PasswordHash   string
	LegacyPassword string
	LegacyEncoder  string
	SalesRepEmail  string
}

// CustomerPage is one page of a customer search.
type CustomerPage struct {
	Total     int
	Customers []CommerceCustomer
}

// Client calls the Admin API with an integration token.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient builds a Client that obtains tokens from /api/oauth/token.
// baseClient, when non-nil, carries both token and API requests.
func NewClient(config Config, baseClient *http.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if baseClient == nil {
		baseClient = &http.Client{Timeout: 30 * time.Second}
	}
	credentialsConfig := clientcredentials.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		TokenURL:     config.endpoint("/api/oauth/token"),
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	tokenContext := context.WithValue(context.Background(), oauth2.HTTPClient, baseClient)
	return &Client{
		config:     config,
		httpClient: credentialsConfig.Client(tokenContext),
		logger:     logger,
	}
}

type searchCriteria struct {
	Page           int                       `json:"page"`
	Limit          int                       `json:"limit"`
	TotalCountMode int                       `json:"total-count-mode"`
	Associations   map[string]map[string]any `json:"associations"`
	Sort           []sortField               `json:"sort"`
}

type sortField struct {
	Field string `json:"field"`
	Order string `json:"order"`
}

// SearchCustomers fetches one page (1-based) of customers.
func (client *Client) SearchCustomers(ctx context.Context, page int, limit int) (CustomerPage, error) {
	if !client.config.Configured() {
		return CustomerPage{}, fmt.Errorf("commerce.search_customers: %w", ErrNotConfigured)
	}
	criteria := searchCriteria{
		Page:           page,
		Limit:          limit,
		TotalCountMode: 1,
		Associations:   map[string]map[string]any{"defaultBillingAddress": {}},
		Sort:           []sortField{{Field: "customerNumber", Order: "ASC"}},
	}
	payload, err := json.Marshal(criteria)
	if err != nil {
		return CustomerPage{}, fmt.Errorf("commerce.search_customers: %w", err)
	}
	body, err := client.post(ctx, "/api/search/customer", payload)
	if err != nil {
		return CustomerPage{}, err
	}
	return parseCustomerPage(body), nil
}

func (client *Client) post(ctx context.Context, path string, payload []byte) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, client.config.endpoint(path), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("commerce.post: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	response, err := client.httpClient.Do(request)
	if err != nil {
		client.logger.Warn("commerce request failed",
			zap.String("code", "commerce.transport"),
			zap.String("path", path),
			zap.Error(err))
		return nil, fmt.Errorf("commerce.post: %w", errors.Join(ErrRequestFailed, err))
	}
	defer response.Body.Close()
	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("commerce.post: %w", errors.Join(ErrRequestFailed, err))
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		client.logger.Warn("commerce request rejected",
			zap.String("code", "commerce.rejected"),
			zap.String("path", path),
			zap.Int("status", response.StatusCode),
			zap.String("detail", gjson.GetBytes(body, "errors.0.detail").String()))
		return nil, fmt.Errorf("commerce.post.%d: %w", response.StatusCode, ErrRequestFailed)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("commerce.post: %w: invalid json", ErrRequestFailed)
	}
	return body, nil
}

func parseCustomerPage(body []byte) CustomerPage {
	page := CustomerPage{Total: int(gjson.GetBytes(body, "total").Int())}
	gjson.GetBytes(body, "data").ForEach(func(_, item gjson.Result) bool {
		page.Customers = append(page.Customers, CommerceCustomer{
			ID:             item.Get("id").String(),
			CustomerNumber: item.Get("customerNumber").String(),
			Email:          item.Get("email").String(),
			FirstName:      item.Get("firstName").String(),
			LastName:       item.Get("lastName").String(),
			Company:        item.Get("company").String(),
			City:           item.Get("defaultBillingAddress.city").String(),
			GroupID:        item.Get("groupId").String(),
			Active:         item.Get("active").Bool(),
			PasswordHash:   item.Get("password").String(),
			LegacyPassword: item.Get("legacyPassword").String(),
			LegacyEncoder:  item.Get("legacyEncoder").String(),
			SalesRepEmail:  item.Get("customFields." + SalesRepCustomField).String(),
		})
		return true
	})
	return page
}
