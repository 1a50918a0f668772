package calendar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	// DefaultGraphURL is the Microsoft Graph v1.0 root.
	DefaultGraphURL = "https://graph.microsoft.com/v1.0"
	// DefaultDaysAhead is the forward size of the query window.
	DefaultDaysAhead = 14
	// DefaultMaxItems caps the number of returned events.
	DefaultMaxItems = 25
	// DefaultTimeZone is the zone Graph renders event times in.
	DefaultTimeZone = "Europe/Vienna"
	// LookBehind keeps events that started shortly before the request in the window.
	LookBehind = 12 * time.Hour

	selectedFields = "id,subject,start,end,location,isOnlineMeeting,onlineMeeting,organizer"
)

var (
	// ErrUnauthorizedAccess indicates that Graph rejected the access token (401 or 403).
	ErrUnauthorizedAccess = errors.New("calendar.unauthorized")
	// ErrFetchFailed covers every other failure to retrieve events.
	ErrFetchFailed = errors.New("calendar.fetch_failed")
	// ErrEmptyAccessToken indicates a call without a token.
	ErrEmptyAccessToken = errors.New("calendar.empty_access_token")
)

// Options controls the query window and output size.
type Options struct {
	DaysAhead int
	MaxItems  int
	TimeZone  string
}

func (options Options) withDefaults(defaultTimeZone string) Options {
	if options.DaysAhead <= 0 {
		options.DaysAhead = DefaultDaysAhead
	}
	if options.MaxItems <= 0 {
		options.MaxItems = DefaultMaxItems
	}
	if strings.TrimSpace(options.TimeZone) == "" {
		options.TimeZone = defaultTimeZone
	}
	return options
}

// Window is the half-open time range queried from Graph.
type Window struct {
	Start time.Time
	End   time.Time
}

// Client reads the signed-in user's calendar view from Microsoft Graph.
type Client struct {
	baseURL         string
	httpClient      *http.Client
	now             func() time.Time
	logger          *zap.Logger
	defaultTimeZone string
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithBaseURL points the client at another Graph root.
func WithBaseURL(baseURL string) ClientOption {
	return func(client *Client) {
		if strings.TrimSpace(baseURL) != "" {
			client.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithHTTPClient sets the transport underneath the bearer token.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(client *Client) {
		if httpClient != nil {
			client.httpClient = httpClient
		}
	}
}

// WithNow replaces the clock.
func WithNow(now func() time.Time) ClientOption {
	return func(client *Client) {
		if now != nil {
			client.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(client *Client) {
		if logger != nil {
			client.logger = logger
		}
	}
}

// WithDefaultTimeZone sets the zone used when Options leaves it empty.
func WithDefaultTimeZone(timeZone string) ClientOption {
	return func(client *Client) {
		if strings.TrimSpace(timeZone) != "" {
			client.defaultTimeZone = timeZone
		}
	}
}

// NewClient constructs a calendar client.
func NewClient(options ...ClientOption) *Client {
	client := &Client{
		baseURL:         DefaultGraphURL,
		httpClient:      &http.Client{Timeout: 20 * time.Second},
		now:             time.Now,
		logger:          zap.NewNop(),
		defaultTimeZone: DefaultTimeZone,
	}
	for _, option := range options {
		option(client)
	}
	return client
}

// QueryWindow returns the range FetchUpcomingEvents asks Graph for at instant now.
func QueryWindow(now time.Time, daysAhead int) Window {
	return Window{
		Start: now.Add(-LookBehind),
		End:   now.AddDate(0, 0, daysAhead),
	}
}

// FetchUpcomingEvents returns the events of the next days in ascending start order.
func (client *Client) FetchUpcomingEvents(ctx context.Context, accessToken string, options Options) ([]Event, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("calendar.fetch: %w", ErrEmptyAccessToken)
	}
	options = options.withDefaults(client.defaultTimeZone)
	window := QueryWindow(client.now().UTC(), options.DaysAhead)

	query := url.Values{}
	query.Set("startDateTime", window.Start.Format(time.RFC3339))
	query.Set("endDateTime", window.End.Format(time.RFC3339))
	query.Set("$top", strconv.Itoa(options.MaxItems))
	query.Set("$orderby", "start/dateTime")
	query.Set("$select", selectedFields)
	endpoint := client.baseURL + "/me/calendarView?" + query.Encode()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("calendar.fetch: %w", errors.Join(ErrFetchFailed, err))
	}
	request.Header.Set("Prefer", fmt.Sprintf("outlook.timezone=%q", options.TimeZone))
	request.Header.Set("Accept", "application/json")

	response, err := client.bearerClient(ctx, accessToken).Do(request)
	if err != nil {
		client.logger.Warn("calendar request failed",
			zap.String("code", "calendar.transport"),
			zap.Error(err))
		return nil, fmt.Errorf("calendar.fetch: %w", errors.Join(ErrFetchFailed, err))
	}
	defer response.Body.Close()

	switch {
	case response.StatusCode == http.StatusUnauthorized || response.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("calendar.fetch.%d: %w", response.StatusCode, ErrUnauthorizedAccess)
	case response.StatusCode < 200 || response.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(response.Body, 2048))
		client.logger.Warn("calendar request rejected",
			zap.String("code", "calendar.rejected"),
			zap.Int("status", response.StatusCode),
			zap.String("response", string(body)))
		return nil, fmt.Errorf("calendar.fetch.%d: %w", response.StatusCode, ErrFetchFailed)
	}

	var page graphEventPage
	if err := json.NewDecoder(response.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("calendar.fetch.decode: %w", errors.Join(ErrFetchFailed, err))
	}

	events := lo.Map(page.Value, func(native graphEvent, _ int) Event {
		return normalizeEvent(native)
	})
	sortByStart(events)
	if len(events) > options.MaxItems {
		events = events[:options.MaxItems]
	}
	return events, nil
}

func (client *Client) bearerClient(ctx context.Context, accessToken string) *http.Client {
	baseContext := context.WithValue(ctx, oauth2.HTTPClient, client.httpClient)
	return oauth2.NewClient(baseContext, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}))
}

// sortByStart orders events chronologically; events without a start go last.
// Graph renders every start in the Prefer zone, so the fixed-width strings compare chronologically.
func sortByStart(events []Event) {
	sort.SliceStable(events, func(left, right int) bool {
		leftStart, rightStart := events[left].Start, events[right].Start
		if leftStart == nil || rightStart == nil {
			return leftStart != nil && rightStart == nil
		}
		return leftStart.DateTime < rightStart.DateTime
	})
}
