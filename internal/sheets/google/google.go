package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	oauthgoogle "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"expensecal/internal/core"
	ports "expensecal/internal/sheets"
)

// DefaultSheetName is the tab transactions are written to.
const DefaultSheetName = "Transactions"

// Header is the first row of the transactions tab.
var Header = []any{"ID", "Title", "Amount", "Category", "Schedule", "Day", "Starting month", "Logo", "Created"}

// Config selects the spreadsheet and the credentials used to reach it.
// Service account credentials win over an OAuth client and token.
type Config struct {
	SpreadsheetID      string
	SheetName          string
	ServiceAccountJSON string
	ServiceAccountFile string
	OAuthClientJSON    string
	OAuthClientFile    string
	OAuthTokenFile     string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

var (
	_ ports.TransactionWriter  = (*Client)(nil)
	_ ports.TransactionRemover = (*Client)(nil)
)

// ConfigFromEnv reads the Google settings from the environment.
func ConfigFromEnv() Config {
	env := func(k string) string { return strings.TrimSpace(os.Getenv(k)) }
	cfg := Config{
		SpreadsheetID:      env("GOOGLE_SPREADSHEET_ID"),
		SheetName:          env("GOOGLE_SHEET_NAME"),
		ServiceAccountJSON: env("GOOGLE_SERVICE_ACCOUNT_JSON"),
		ServiceAccountFile: env("GOOGLE_SERVICE_ACCOUNT_FILE"),
		OAuthClientJSON:    env("GOOGLE_OAUTH_CLIENT_JSON"),
		OAuthClientFile:    env("GOOGLE_OAUTH_CLIENT_FILE"),
		OAuthTokenFile:     env("GOOGLE_OAUTH_TOKEN_FILE"),
	}
	if cfg.ServiceAccountJSON == "" && cfg.ServiceAccountFile == "" {
		cfg.ServiceAccountFile = env("GOOGLE_APPLICATION_CREDENTIALS")
	}
	return cfg
}

// NewFromEnv creates a client from ConfigFromEnv.
func NewFromEnv(ctx context.Context) (*Client, error) {
	return New(ctx, ConfigFromEnv())
}

// New creates a Sheets client for cfg. Extra options are passed to the
// Sheets service after the credentials.
func New(ctx context.Context, cfg Config, opts ...goption.ClientOption) (*Client, error) {
	if cfg.SpreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if cfg.SheetName == "" {
		cfg.SheetName = DefaultSheetName
	}

	if len(opts) == 0 {
		auth, err := credentialOption(ctx, cfg)
		if err != nil {
			return nil, err
		}
		opts = []goption.ClientOption{auth}
	}

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets client ready",
		"spreadsheet_id", cfg.SpreadsheetID,
		"sheet", cfg.SheetName)

	return &Client{svc: svc, spreadsheetID: cfg.SpreadsheetID, sheetName: cfg.SheetName}, nil
}

func credentialOption(ctx context.Context, cfg Config) (goption.ClientOption, error) {
	switch {
	case cfg.ServiceAccountJSON != "":
		slog.InfoContext(ctx, "Using inline service account credentials")
		return serviceAccount([]byte(cfg.ServiceAccountJSON))
	case cfg.ServiceAccountFile != "":
		slog.InfoContext(ctx, "Reading service account credentials", "path", cfg.ServiceAccountFile)
		b, err := os.ReadFile(cfg.ServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return serviceAccount(b)
	case cfg.OAuthClientJSON != "" || cfg.OAuthClientFile != "":
		return oauthToken(ctx, cfg)
	default:
		return nil, errors.New("missing credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_OAUTH_CLIENT_JSON with GOOGLE_OAUTH_TOKEN_FILE)")
	}
}

func serviceAccount(b []byte) (goption.ClientOption, error) {
	if len(b) == 0 {
		return nil, errors.New("empty service account credentials")
	}
	return goption.WithCredentialsJSON(b), nil
}

// oauthToken builds a token source from an OAuth client and a token saved
// by cmd/oauth-init.
func oauthToken(ctx context.Context, cfg Config) (goption.ClientOption, error) {
	oc, err := OAuthConfig(cfg)
	if err != nil {
		return nil, err
	}
	tokenFile := TokenFile(cfg)
	tok, err := ReadToken(tokenFile)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "Using OAuth token", "path", tokenFile)
	return goption.WithTokenSource(oc.TokenSource(ctx, tok)), nil
}

// OAuthConfig loads the OAuth client of cfg with the spreadsheets scope.
func OAuthConfig(cfg Config) (*oauth2.Config, error) {
	clientJSON := []byte(cfg.OAuthClientJSON)
	if len(clientJSON) == 0 {
		if cfg.OAuthClientFile == "" {
			return nil, errors.New("missing OAuth client (set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE)")
		}
		b, err := os.ReadFile(cfg.OAuthClientFile)
		if err != nil {
			return nil, fmt.Errorf("read oauth client file: %w", err)
		}
		clientJSON = b
	}
	oc, err := oauthgoogle.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	return oc, nil
}

// TokenFile returns where the OAuth token of cfg lives.
func TokenFile(cfg Config) string {
	if cfg.OAuthTokenFile == "" {
		return "token.json"
	}
	return cfg.OAuthTokenFile
}

// Append writes tx as a new row and returns the updated range.
func (c *Client) Append(ctx context.Context, tx core.Transaction) (string, error) {
	if err := tx.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	rng := fmt.Sprintf("%s!A:I", c.sheetName)
	vr := &gsheet.ValueRange{Values: [][]any{Row(tx)}}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", c.sheetName, err)
	}

	ref := rng
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	return ref, nil
}

// EnsureHeader writes Header to the first row when the tab is empty.
func (c *Client) EnsureHeader(ctx context.Context) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A1:I1", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read %s: %w", rng, err)
	}
	if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
		return nil
	}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{Header}}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

// Remove deletes every row holding transaction id. It returns
// core.ErrNotFound when no row matches.
func (c *Client) Remove(ctx context.Context, id int64) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	rng := fmt.Sprintf("%s!A:A", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read %s: %w", rng, err)
	}
	rows := MatchingRows(resp.Values, id)
	if len(rows) == 0 {
		return core.ErrNotFound
	}

	sheetID, err := c.sheetID(ctx)
	if err != nil {
		return err
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: DeleteRequests(sheetID, rows)}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete rows of transaction %d: %w", id, err)
	}

	slog.InfoContext(ctx, "Deleted sheet rows", "id", id, "rows", len(rows))
	return nil
}

func (c *Client) sheetID(ctx context.Context) (int64, error) {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read spreadsheet: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == c.sheetName {
			return s.Properties.SheetId, nil
		}
	}
	return 0, fmt.Errorf("sheet %q not found", c.sheetName)
}

// Row renders tx in the column order of Header.
func Row(tx core.Transaction) []any {
	return []any{
		tx.ID,
		tx.Title,
		tx.Amount.Units(),
		tx.Category.Label(),
		tx.Schedule.String(),
		tx.Schedule.DayOfMonth,
		time.Month(tx.Schedule.StartingMonth + 1).String(),
		tx.LogoURL,
		tx.CreatedAt.UTC().Format(time.DateTime),
	}
}

// MatchingRows returns the zero based indexes of the rows whose first cell
// is id, highest first.
func MatchingRows(values [][]any, id int64) []int64 {
	want := strconv.FormatInt(id, 10)
	var out []int64
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		if cellID(row[0]) == want {
			out = append(out, int64(i))
		}
	}
	slices.Reverse(out)
	return out
}

func cellID(v any) string {
	switch n := v.(type) {
	case float64:
		return strconv.FormatInt(int64(n), 10)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// DeleteRequests builds one row deletion per index. Indexes must be
// ordered highest first so earlier deletions do not shift later ones.
func DeleteRequests(sheetID int64, rows []int64) []*gsheet.Request {
	reqs := make([]*gsheet.Request, 0, len(rows))
	for _, r := range rows {
		reqs = append(reqs, &gsheet.Request{
			DeleteDimension: &gsheet.DeleteDimensionRequest{
				Range: &gsheet.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "ROWS",
					StartIndex: r,
					EndIndex:   r + 1,
				},
			},
		})
	}
	return reqs
}

// ReadToken loads an OAuth token saved as JSON.
func ReadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open token file: %w", err)
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return tok, nil
}

// WriteToken saves tok as JSON readable only by the owner.
func WriteToken(path string, tok *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open token file: %w", err)
	}
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		f.Close()
		return fmt.Errorf("encode token: %w", err)
	}
	return f.Close()
}
