// Package google stores entries in a Google Sheets tab, one row per entry.
package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"budgetlens/internal/core"
	"budgetlens/internal/log"
)

const (
	DefaultSheetName     = "Entries"
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = 30 * time.Second
)

type Config struct {
	SpreadsheetID string
	SheetName     string
	Credentials   Credentials
	RetryAttempts uint
	RetryDelay    time.Duration
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheet         string
	attempts      uint
	delay         time.Duration
	logger        *log.Logger
}

// New builds a client. Extra options replace credential resolution, which
// lets tests point the client at a local server.
func New(ctx context.Context, cfg Config, logger *log.Logger, opts ...option.ClientOption) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentSheets)

	if len(opts) == 0 {
		credOpts, err := cfg.Credentials.clientOptions(ctx)
		if err != nil {
			return nil, err
		}
		opts = credOpts
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	c := &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		sheet:         cfg.SheetName,
		attempts:      cfg.RetryAttempts,
		delay:         cfg.RetryDelay,
		logger:        logger,
	}
	if c.sheet == "" {
		c.sheet = DefaultSheetName
	}
	if c.attempts == 0 {
		c.attempts = DefaultRetryAttempts
	}
	if c.delay == 0 {
		c.delay = DefaultRetryDelay
	}
	logger.Info("Google Sheets entry store ready", "spreadsheet_id", c.spreadsheetID, "sheet", c.sheet)
	return c, nil
}

// List implements entries.Lister. Row references become entry ids.
func (c *Client) List(ctx context.Context) ([]core.Entry, error) {
	rng := fmt.Sprintf("%s!A2:H", c.sheet)
	var resp *gsheet.ValueRange
	err := c.withRetry(ctx, func() error {
		var err error
		resp, err = c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).
			ValueRenderOption("UNFORMATTED_VALUE").
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}

	entries, skipped := parseRows(resp.Values)
	if skipped > 0 {
		c.logger.WarnContext(ctx, "Skipped sheet rows with unknown type", "count", skipped)
	}
	return entries, nil
}

// Add implements entries.Writer. The id is the updated A1 range.
func (c *Client) Add(ctx context.Context, e core.Entry) (string, error) {
	if err := core.ValidateEntry(e); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	rng := fmt.Sprintf("%s!A:H", c.sheet)
	vr := &gsheet.ValueRange{Values: [][]any{toRow(e)}}

	var resp *gsheet.AppendValuesResponse
	err := c.withRetry(ctx, func() error {
		var err error
		resp, err = c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
			ValueInputOption("RAW").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return "", fmt.Errorf("append to %s: %w", c.sheet, err)
	}

	ref := ""
	if resp != nil && resp.Updates != nil {
		ref = resp.Updates.UpdatedRange
	}
	c.logger.InfoContext(ctx, "Entry appended to sheet", log.NewFields().WithEntry(ref, string(e.Kind())).ToSlice()...)
	return ref, nil
}

// EnsureHeader writes the column titles into row 1.
func (c *Client) EnsureHeader(ctx context.Context) error {
	rng := fmt.Sprintf("%s!A1:H1", c.sheet)
	vr := &gsheet.ValueRange{Values: [][]any{Header}}
	return c.withRetry(ctx, func() error {
		_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
			ValueInputOption("RAW").
			Context(ctx).
			Do()
		return err
	})
}

// withRetry retries rate limiting and transient unavailability.
func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	return retry.Do(
		fn,
		retry.RetryIf(func(err error) bool {
			var apiErr *googleapi.Error
			if errors.As(err, &apiErr) &&
				(apiErr.Code == http.StatusTooManyRequests || apiErr.Code == http.StatusServiceUnavailable) {
				c.logger.WarnContext(ctx, "Sheets API throttled, will retry", log.FieldError, err)
				return true
			}
			return false
		}),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
}
