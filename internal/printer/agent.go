package printer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	"ms-checkin/internal/receipt"
)

// Agent talks to the local print agent: a small HTTP service in front of
// the thermal printer, authenticated with a static token header.
type Agent struct {
	BaseURL       string
	Token         string
	HTTP          *http.Client
	HealthTimeout time.Duration
	Log           *logger.Logger
}

type SettingsSource interface {
	Current(ctx context.Context) models.VenueSettings
}

func NewAgent(baseURL, token string, healthTimeout time.Duration, log *logger.Logger) *Agent {
	return &Agent{
		BaseURL:       baseURL,
		Token:         token,
		HTTP:          &http.Client{Timeout: 5 * time.Second},
		HealthTimeout: healthTimeout,
		Log:           log,
	}
}

// Healthy probes GET /health with a short budget. An unreachable or slow
// agent means printing is skipped, never that a scan fails.
func (a *Agent) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, a.HealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.BaseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := a.HTTP.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var body struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false
	}
	return body.OK
}

type printRequest struct {
	Lines  []string `json:"lines"`
	Cut    bool     `json:"cut"`
	Drawer bool     `json:"drawer"`
}

// Print posts ESC/POS lines to the agent.
func (a *Agent) Print(ctx context.Context, lines []string, cut, drawer bool) error {
	if len(lines) == 0 {
		return fmt.Errorf("print: lines must not be empty")
	}

	payload, err := json.Marshal(printRequest{Lines: lines, Cut: cut, Drawer: drawer})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/print", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Print-Token", a.Token)

	resp, err := a.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("print request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("print failed with status %d: %s", resp.StatusCode, string(detail))
	}
	return nil
}

// ScanReceiptPrinter formats and prints entry receipts for granted
// scans. Degrades gracefully: if the agent health check fails, the
// receipt is skipped with a log line and the scan is unaffected.
type ScanReceiptPrinter struct {
	Agent    *Agent
	Settings SettingsSource
	Log      *logger.Logger
}

func (p *ScanReceiptPrinter) PrintScanReceipt(ctx context.Context, ticket models.Ticket, code string, scannedAt time.Time) error {
	if !p.Agent.Healthy(ctx) {
		p.Log.LogPrinter("SKIP", fmt.Sprintf("print agent not available, skipping receipt for %s", code))
		return nil
	}

	settings := p.Settings.Current(ctx)
	lines := receipt.Lines(ticket, code, settings, scannedAt)
	return p.Agent.Print(ctx, lines, true, false)
}
