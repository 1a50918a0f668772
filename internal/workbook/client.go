// Package workbook reads the Linther Liste Excel table through the Microsoft Graph workbook API
// with an application token.
package workbook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	DefaultAuthorityURL = "https://login.microsoftonline.com"
	DefaultGraphURL     = "https://graph.microsoft.com/v1.0"
	// ApplicationScope requests every application permission granted to the registration.
	ApplicationScope = "https://graph.microsoft.com/.default"
)

var (
	// ErrNotConfigured indicates missing credentials or table coordinates.
	ErrNotConfigured = errors.New("workbook.not_configured")
	// ErrFetchFailed indicates Graph could not deliver the table.
	ErrFetchFailed = errors.New("workbook.fetch_failed")
)

// Config addresses the workbook table and the app registration that may read it.
type Config struct {
	ClientID     string
	ClientSecret string
	TenantID     string
	AuthorityURL string
	GraphURL     string
	DriveID      string
	ItemID       string
	Table        string
}

// Configured reports whether credentials and table coordinates are present.
func (config Config) Configured() bool {
	for _, value := range []string{config.ClientID, config.ClientSecret, config.TenantID, config.DriveID, config.ItemID, config.Table} {
		if strings.TrimSpace(value) == "" {
			return false
		}
	}
	return true
}

func (config Config) tokenURL() string {
	authority := strings.TrimRight(strings.TrimSpace(config.AuthorityURL), "/")
	if authority == "" {
		authority = DefaultAuthorityURL
	}
	return authority + "/" + strings.TrimSpace(config.TenantID) + "/oauth2/v2.0/token"
}

func (config Config) tableURL() string {
	graphURL := strings.TrimRight(strings.TrimSpace(config.GraphURL), "/")
	if graphURL == "" {
		graphURL = DefaultGraphURL
	}
	return fmt.Sprintf("%s/drives/%s/items/%s/workbook/tables/%s",
		graphURL, url.PathEscape(config.DriveID), url.PathEscape(config.ItemID), url.PathEscape(config.Table))
}

// Column is one header of the table.
type Column struct {
	Index int
	Name  string
}

// Layout is the ordered column set of the table.
type Layout struct {
	Columns []Column
}

// Names returns the column names in table order.
func (layout Layout) Names() []string {
	names := make([]string, len(layout.Columns))
	for position, column := range layout.Columns {
		names[position] = column.Name
	}
	return names
}

// RawRow is one table row as returned by Graph, values in column order.
type RawRow struct {
	Index  int
	Values []string
}

// Client calls the Graph workbook endpoints with an app-only token.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient builds a Client whose requests carry a client-credentials token.
// baseClient, when non-nil, carries both token and Graph requests.
func NewClient(config Config, baseClient *http.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if baseClient == nil {
		baseClient = &http.Client{Timeout: 20 * time.Second}
	}
	credentialsConfig := clientcredentials.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		TokenURL:     config.tokenURL(),
		Scopes:       []string{ApplicationScope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	tokenContext := context.WithValue(context.Background(), oauth2.HTTPClient, baseClient)
	return &Client{
		config:     config,
		httpClient: credentialsConfig.Client(tokenContext),
		logger:     logger,
	}
}

// FetchLayout reads the column headers of the table.
func (client *Client) FetchLayout(ctx context.Context) (Layout, error) {
	body, err := client.get(ctx, "/columns?$select=name,index")
	if err != nil {
		return Layout{}, err
	}
	var layout Layout
	gjson.GetBytes(body, "value").ForEach(func(_, column gjson.Result) bool {
		layout.Columns = append(layout.Columns, Column{
			Index: int(column.Get("index").Int()),
			Name:  strings.TrimSpace(column.Get("name").String()),
		})
		return true
	})
	if len(layout.Columns) == 0 {
		return Layout{}, fmt.Errorf("workbook.layout: %w: table has no columns", ErrFetchFailed)
	}
	return layout, nil
}

// FetchRows reads every data row of the table.
func (client *Client) FetchRows(ctx context.Context) ([]RawRow, error) {
	body, err := client.get(ctx, "/rows")
	if err != nil {
		return nil, err
	}
	var rows []RawRow
	gjson.GetBytes(body, "value").ForEach(func(_, row gjson.Result) bool {
		raw := RawRow{Index: int(row.Get("index").Int())}
		row.Get("values.0").ForEach(func(_, cell gjson.Result) bool {
			raw.Values = append(raw.Values, cell.String())
			return true
		})
		rows = append(rows, raw)
		return true
	})
	return rows, nil
}

func (client *Client) get(ctx context.Context, suffix string) ([]byte, error) {
	if !client.config.Configured() {
		return nil, fmt.Errorf("workbook.get: %w", ErrNotConfigured)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, client.config.tableURL()+suffix, nil)
	if err != nil {
		return nil, fmt.Errorf("workbook.get: %w", err)
	}
	request.Header.Set("Accept", "application/json")
	response, err := client.httpClient.Do(request)
	if err != nil {
		client.logger.Warn("workbook request failed",
			zap.String("code", "workbook.transport"),
			zap.Error(err))
		return nil, fmt.Errorf("workbook.get: %w", errors.Join(ErrFetchFailed, err))
	}
	defer response.Body.Close()
	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("workbook.get: %w", errors.Join(ErrFetchFailed, err))
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		client.logger.Warn("workbook request rejected",
			zap.String("code", "workbook.rejected"),
			zap.Int("status", response.StatusCode),
			zap.String("graph_error", gjson.GetBytes(body, "error.code").String()))
		return nil, fmt.Errorf("workbook.get.%d: %w", response.StatusCode, ErrFetchFailed)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("workbook.get: %w: invalid json", ErrFetchFailed)
	}
	return body, nil
}
