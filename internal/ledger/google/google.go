package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"fincast/internal/core"
	ports "fincast/internal/ledger"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// valuesGetter reads a range as a values matrix. The Sheets service satisfies
// it through sheetsValues; tests substitute a fake.
type valuesGetter interface {
	Get(ctx context.Context, spreadsheetID, rng string) ([][]interface{}, error)
}

type sheetsValues struct {
	svc *gsheet.Service
}

func (v sheetsValues) Get(ctx context.Context, spreadsheetID, rng string) ([][]interface{}, error) {
	resp, err := v.svc.Spreadsheets.Values.Get(spreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").
		DateTimeRenderOption("FORMATTED_STRING").
		Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

type Client struct {
	values          valuesGetter
	spreadsheetID   string
	transactionsTab string
	categoriesTab   string
	recurringTab    string
	settingsTab     string
}

// Ensure interface conformance
var (
	_ ports.Reader                    = (*Client)(nil)
	_ ports.CountingTransactionReader = (*Client)(nil)
)

// NewFromEnv creates a read-only Sheets ledger using environment variables.
// Required: GOOGLE_SPREADSHEET_ID
// Credentials: GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_APPLICATION_CREDENTIALS
// Optional tab names: GOOGLE_TRANSACTIONS_SHEET (default "Transactions"),
// GOOGLE_CATEGORIES_SHEET ("Categories"), GOOGLE_RECURRING_SHEET ("Recurring"),
// GOOGLE_SETTINGS_SHEET ("Settings").
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	c := newClient(sheetsValues{svc: svc}, spreadsheetID)
	c.transactionsTab = envOr("GOOGLE_TRANSACTIONS_SHEET", c.transactionsTab)
	c.categoriesTab = envOr("GOOGLE_CATEGORIES_SHEET", c.categoriesTab)
	c.recurringTab = envOr("GOOGLE_RECURRING_SHEET", c.recurringTab)
	c.settingsTab = envOr("GOOGLE_SETTINGS_SHEET", c.settingsTab)
	return c, nil
}

func newClient(values valuesGetter, spreadsheetID string) *Client {
	return &Client{
		values:          values,
		spreadsheetID:   spreadsheetID,
		transactionsTab: "Transactions",
		categoriesTab:   "Categories",
		recurringTab:    "Recurring",
		settingsTab:     "Settings",
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// newSheetsService initializes a read-only Sheets Service using Service Account credentials.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error

	switch {
	case serviceAccountJSON != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsReadonlyScope),
		goption.WithHTTPClient(newHTTPClientWithPooling()))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created successfully")
	return service, nil
}

// newHTTPClientWithPooling creates an HTTP client for the Sheets API with
// connection pooling and bounded timeouts.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

func (c *Client) read(ctx context.Context, tab string) ([][]interface{}, error) {
	if c.values == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A:H", tab)
	values, err := c.values.Get(ctx, c.spreadsheetID, rng)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return values, nil
}

func (c *Client) ListTransactions(ctx context.Context, since core.Date) ([]core.Transaction, error) {
	txs, _, err := c.ListTransactionsCounted(ctx, since)
	return txs, err
}

// ListTransactionsCounted also reports rows dropped for an unparseable
// amount or date. Those rows have no usable date, so all of them count.
func (c *Client) ListTransactionsCounted(ctx context.Context, since core.Date) ([]core.Transaction, int, error) {
	values, err := c.read(ctx, c.transactionsTab)
	if err != nil {
		return nil, 0, err
	}
	txs, skipped, err := parseTransactions(values)
	if err != nil {
		return nil, 0, fmt.Errorf("parse %s: %w", c.transactionsTab, err)
	}
	if skipped > 0 {
		slog.WarnContext(ctx, "Skipped malformed transaction rows", "sheet", c.transactionsTab, "count", skipped)
	}
	return ports.FilterSince(txs, since), skipped, nil
}

func (c *Client) ListCategories(ctx context.Context) ([]core.CategoryRef, error) {
	values, err := c.read(ctx, c.categoriesTab)
	if err != nil {
		return nil, err
	}
	cats, err := parseCategories(values)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", c.categoriesTab, err)
	}
	return cats, nil
}

func (c *Client) ListRecurringRules(ctx context.Context, activeOnly bool) ([]core.RecurringRule, error) {
	values, err := c.read(ctx, c.recurringTab)
	if err != nil {
		return nil, err
	}
	rules, skipped, err := parseRules(values)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", c.recurringTab, err)
	}
	if skipped > 0 {
		slog.WarnContext(ctx, "Skipped malformed recurring rows", "sheet", c.recurringTab, "count", skipped)
	}
	return ports.FilterActive(rules, activeOnly), nil
}

func (c *Client) JurisdictionSettings(ctx context.Context) (core.JurisdictionSettings, error) {
	values, err := c.read(ctx, c.settingsTab)
	if err != nil {
		return core.JurisdictionSettings{}, err
	}
	return parseSettings(values), nil
}
