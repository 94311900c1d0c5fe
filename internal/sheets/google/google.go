package google

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fintrack/internal/core"
	"fintrack/internal/log"
	ports "fintrack/internal/sheets"
)

// Client mirrors ledger records into one tab of a spreadsheet.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	ledgerSheet   string
	logger        *log.Logger
}

// Ensure interface conformance
var (
	_ ports.LedgerMirror = (*Client)(nil)
	_ ports.LedgerReader = (*Client)(nil)
)

// NewFromEnv creates a Sheets client from environment variables.
// Required: GOOGLE_SPREADSHEET_ID
// Optional: GOOGLE_SHEET_NAME (default "Ledger") and the service
// account variables read by newSheetsService.
func NewFromEnv(ctx context.Context, logger *log.Logger) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return New(svc, spreadsheetID, os.Getenv("GOOGLE_SHEET_NAME"), logger), nil
}

// New wraps an existing Sheets service.
func New(svc *gsheet.Service, spreadsheetID, ledgerSheet string, logger *log.Logger) *Client {
	if strings.TrimSpace(ledgerSheet) == "" {
		ledgerSheet = "Ledger"
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		ledgerSheet:   strings.TrimSpace(ledgerSheet),
		logger:        logger.WithComponent(log.ComponentSheets),
	}
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Uses GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope),
		goption.WithHTTPClient(newHTTPClientWithPooling()))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// newHTTPClientWithPooling creates an HTTP client tuned for the Sheets API.
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
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}
}

func (c *Client) ledgerRange() string {
	return fmt.Sprintf("%s!A:%s", c.ledgerSheet, lastCol)
}

func (c *Client) readLedger(ctx context.Context) ([][]any, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, c.ledgerRange()).
		ValueRenderOption("UNFORMATTED_VALUE").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", c.ledgerRange(), err)
	}
	return resp.Values, nil
}

// Upsert rewrites rows whose id is already mirrored and appends the rest.
func (c *Client) Upsert(ctx context.Context, namespace string, records []core.Tx) error {
	if len(records) == 0 {
		return nil
	}
	values, err := c.readLedger(ctx)
	if err != nil {
		return err
	}
	rows := locateRows(values, namespace)

	var updates []*gsheet.ValueRange
	var appends [][]any
	if len(values) == 0 {
		appends = append(appends, ledgerHeader)
	}
	for _, tx := range records {
		if n, ok := rows[tx.ID]; ok {
			updates = append(updates, &gsheet.ValueRange{
				Range:  fmt.Sprintf("%s!A%d:%s%d", c.ledgerSheet, n, lastCol, n),
				Values: [][]any{rowValues(namespace, tx)},
			})
			continue
		}
		appends = append(appends, rowValues(namespace, tx))
	}

	if len(updates) > 0 {
		_, err := c.svc.Spreadsheets.Values.BatchUpdate(c.spreadsheetID, &gsheet.BatchUpdateValuesRequest{
			ValueInputOption: "RAW",
			Data:             updates,
		}).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("update ledger rows: %w", err)
		}
	}
	if len(appends) > 0 {
		if err := c.appendRows(ctx, appends); err != nil {
			return err
		}
	}

	c.logger.InfoContext(ctx, "Ledger rows mirrored",
		log.FieldNamespace, namespace,
		"updated", len(updates),
		"appended", len(appends))
	return nil
}

func (c *Client) appendRows(ctx context.Context, rows [][]any) error {
	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, c.ledgerRange(), &gsheet.ValueRange{Values: rows}).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append ledger rows: %w", err)
	}
	return nil
}

// Delete removes the rows of the given ids. Unknown ids are ignored.
func (c *Client) Delete(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	values, err := c.readLedger(ctx)
	if err != nil {
		return err
	}
	rows := locateRows(values, namespace)
	var targets []int
	for _, id := range ids {
		if n, ok := rows[id]; ok {
			targets = append(targets, n)
		}
	}
	return c.deleteRows(ctx, targets)
}

// Replace deletes every row of namespace and appends records.
func (c *Client) Replace(ctx context.Context, namespace string, records []core.Tx) error {
	values, err := c.readLedger(ctx)
	if err != nil {
		return err
	}
	var targets []int
	for _, n := range locateRows(values, namespace) {
		targets = append(targets, n)
	}
	if err := c.deleteRows(ctx, targets); err != nil {
		return err
	}
	rows := make([][]any, 0, len(records)+1)
	if len(values) == 0 {
		rows = append(rows, ledgerHeader)
	}
	for _, tx := range records {
		rows = append(rows, rowValues(namespace, tx))
	}
	if len(rows) == 0 {
		return nil
	}
	return c.appendRows(ctx, rows)
}

// deleteRows removes 1-based rows bottom-up so earlier indices stay valid.
func (c *Client) deleteRows(ctx context.Context, rows []int) error {
	if len(rows) == 0 {
		return nil
	}
	sheetID, err := c.sheetID(ctx)
	if err != nil {
		return err
	}
	sort.Sort(sort.Reverse(sort.IntSlice(rows)))
	reqs := make([]*gsheet.Request, 0, len(rows))
	for _, n := range rows {
		reqs = append(reqs, &gsheet.Request{
			DeleteDimension: &gsheet.DeleteDimensionRequest{
				Range: &gsheet.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "ROWS",
					StartIndex: int64(n - 1),
					EndIndex:   int64(n),
					// sheet 0 and row 0 are valid values
					ForceSendFields: []string{"SheetId", "StartIndex"},
				},
			},
		})
	}
	_, err = c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, &gsheet.BatchUpdateSpreadsheetRequest{Requests: reqs}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("delete ledger rows: %w", err)
	}
	return nil
}

func (c *Client) sheetID(ctx context.Context) (int64, error) {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == c.ledgerSheet {
			return sh.Properties.SheetId, nil
		}
	}
	return 0, fmt.Errorf("sheet %q not found", c.ledgerSheet)
}

// List returns the mirrored records of namespace in sheet order. Rows that
// cannot be parsed are skipped.
func (c *Client) List(ctx context.Context, namespace string) ([]core.Tx, error) {
	values, err := c.readLedger(ctx)
	if err != nil {
		return nil, err
	}
	var out []core.Tx
	for i, row := range values {
		ns, tx, err := parseLedgerRow(row)
		if err != nil {
			if i > 0 {
				c.logger.DebugContext(ctx, "Skipping unreadable ledger row", "row", i+1, log.FieldError, err)
			}
			continue
		}
		if ns == namespace {
			out = append(out, tx)
		}
	}
	return out, nil
}
