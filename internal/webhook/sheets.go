// internal/webhook/sheets.go
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"sypbackend/internal/config"
	"sypbackend/internal/data"
	"sypbackend/internal/logger"
)

var sheetsClient = &http.Client{Timeout: 15 * time.Second}

// forwardRowsToSheets mirrors the ledger rows to the operator's spreadsheet
// endpoint. Absence of SHEETS_WEBAPP_URL disables the mirror.
func forwardRowsToSheets(ctx context.Context, rows []data.OrderRow) error {
	if config.SheetsWebAppURL == "" {
		logger.LogInfo("Sheets mirror disabled, skipping %d rows", len(rows))
		return nil
	}
	if len(rows) == 0 {
		return nil
	}

	body, err := json.Marshal(map[string]interface{}{"rows": rows})
	if err != nil {
		return fmt.Errorf("failed to marshal sheet rows: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, config.SheetsWebAppURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create sheets request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := sheetsClient.Do(req)
	if err != nil {
		return fmt.Errorf("sheets request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sheets endpoint returned status %d: %s", resp.StatusCode, string(respBody))
	}

	logger.LogInfo("Forwarded %d rows to sheets for order %s", len(rows), rows[0].OrderNumber)
	return nil
}
