package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"esim_battle_cache/internal/app"
	"esim_battle_cache/internal/config"

	"github.com/rs/zerolog/log"
	"google.golang.org/api/googleapi"
)

// totalsColumns is the width of the totals table: id, damage, one column
// per weapon tier and the weighted hit count.
const totalsColumns = 3 + app.WeaponTiers

// TotalsExporter writes per-citizen fight totals to a spreadsheet tab
type TotalsExporter struct {
	api   SheetsAPI
	retry config.RetryConfig
	sleep func(ctx context.Context, d time.Duration) error
}

// NewTotalsExporter creates a new totals exporter
func NewTotalsExporter(api SheetsAPI, retry config.RetryConfig) *TotalsExporter {
	return &TotalsExporter{
		api:   api,
		retry: retry,
		sleep: sleepContext,
	}
}

// Export replaces the contents of sheetName with a header row followed by
// one row per citizen, in the order given.
func (e *TotalsExporter) Export(ctx context.Context, spreadsheetID, sheetName string, totals []app.CitizenTotals) error {
	if err := e.EnsureTotalsSheet(ctx, spreadsheetID, sheetName); err != nil {
		return err
	}

	if err := e.withRetry(ctx, "ensure capacity", func() error {
		return e.api.EnsureSheetCapacity(ctx, spreadsheetID, sheetName, len(totals)+1, totalsColumns)
	}); err != nil {
		return fmt.Errorf("failed to size totals sheet: %w", err)
	}

	if err := e.withRetry(ctx, "clear", func() error {
		return e.api.ClearRange(ctx, spreadsheetID, fmt.Sprintf("'%s'!A:%s", sheetName, columnLetter(totalsColumns)))
	}); err != nil {
		return fmt.Errorf("failed to clear totals sheet: %w", err)
	}

	values := append(e.GenerateTotalsHeaders(), e.ConvertTotalsToRows(totals)...)
	if err := e.withRetry(ctx, "update", func() error {
		return e.api.UpdateRange(ctx, spreadsheetID, fmt.Sprintf("'%s'!A1", sheetName), values)
	}); err != nil {
		return fmt.Errorf("failed to write totals sheet: %w", err)
	}

	log.Info().
		Str("sheet_name", sheetName).
		Int("citizens", len(totals)).
		Msg("Exported fight totals")

	return nil
}

// EnsureTotalsSheet creates the totals tab if it does not exist yet
func (e *TotalsExporter) EnsureTotalsSheet(ctx context.Context, spreadsheetID, sheetName string) error {
	var exists bool
	err := e.withRetry(ctx, "check sheet", func() error {
		var err error
		exists, err = e.api.SheetExists(ctx, spreadsheetID, sheetName)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to check if sheet exists: %w", err)
	}
	if exists {
		return nil
	}

	log.Debug().Str("sheet_name", sheetName).Msg("Creating totals sheet")

	if err := e.withRetry(ctx, "create sheet", func() error {
		return e.api.CreateSheet(ctx, spreadsheetID, sheetName)
	}); err != nil {
		return fmt.Errorf("failed to create totals sheet: %w", err)
	}
	return nil
}

// GenerateTotalsHeaders returns the header row of the totals table
func (e *TotalsExporter) GenerateTotalsHeaders() [][]interface{} {
	header := []interface{}{"Citizen ID", "Damage"}
	for q := 0; q < app.WeaponTiers; q++ {
		header = append(header, fmt.Sprintf("Q%d hits", q))
	}
	header = append(header, "Weighted hits")
	return [][]interface{}{header}
}

// ConvertTotalsToRows converts totals to sheet rows
func (e *TotalsExporter) ConvertTotalsToRows(totals []app.CitizenTotals) [][]interface{} {
	rows := make([][]interface{}, 0, len(totals))
	for _, t := range totals {
		row := make([]interface{}, 0, totalsColumns)
		row = append(row, t.CitizenID, t.Damage)
		for _, hits := range t.HitsByWeapon {
			row = append(row, hits)
		}
		row = append(row, t.WeightedHits)
		rows = append(rows, row)
	}
	return rows
}

// withRetry runs op until it succeeds, fails permanently or the SheetWrite
// budget runs out.
func (e *TotalsExporter) withRetry(ctx context.Context, op string, fn func() error) error {
	attempts := e.retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !isRetryableSheetsError(err) || attempt == attempts {
			break
		}

		wait := e.retry.Backoff(attempt)
		log.Warn().
			Err(err).
			Str("operation", op).
			Int("attempt", attempt).
			Dur("wait", wait).
			Msg("Sheets request failed, retrying")

		if sleepErr := e.sleep(ctx, wait); sleepErr != nil {
			return sleepErr
		}
	}
	return err
}

// isRetryableSheetsError reports rate limiting and server-side failures
func isRetryableSheetsError(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
}

// columnLetter converts a 1-based column number to its A1 letter (1 = "A")
func columnLetter(n int) string {
	var s []byte
	for n > 0 {
		n--
		s = append([]byte{byte('A' + n%26)}, s...)
		n /= 26
	}
	return string(s)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
