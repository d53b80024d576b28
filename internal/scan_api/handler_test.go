package scan_api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	"ms-checkin/internal/scanner"
	"ms-checkin/internal/settings"
	"ms-checkin/internal/store"
	"ms-checkin/internal/validation"
)

const testAdminSecret = "test-admin-secret"

func TestMain(m *testing.M) {
	if dir, err := os.MkdirTemp("", "scan-api-test"); err == nil {
		os.Chdir(dir)
	}
	os.Exit(m.Run())
}

type testEnv struct {
	router chi.Router
	db     *store.DB
	orch   *scanner.Orchestrator
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	ctx := context.Background()
	for _, model := range []interface{}{
		(*models.Ticket)(nil),
		(*models.ScanRecord)(nil),
		(*models.VenueSettings)(nil),
	} {
		if err := bunDB.ResetModel(ctx, model); err != nil {
			t.Fatalf("Failed to create tables: %v", err)
		}
	}
	t.Cleanup(func() { bunDB.Close() })

	db := &store.DB{Bun: bunDB}
	log := logger.NewLogger()

	orch := scanner.NewOrchestrator(validation.NewService(db), db, nil, nil, log)
	orch.Cooldown = 10 * time.Millisecond
	orch.FlashDuration = 10 * time.Millisecond

	h := &Handler{
		Orchestrator: orch,
		Store:        db,
		Settings:     settings.NewSource(db, nil, time.Minute, log),
		Log:          log,
		AdminSecret:  testAdminSecret,
	}
	return &testEnv{router: h.Routes(), db: db, orch: orch}
}

func (e *testEnv) seedTicket(t *testing.T, ticket models.Ticket) {
	t.Helper()
	if _, err := e.db.Bun.NewInsert().Model(&ticket).Exec(context.Background()); err != nil {
		t.Fatalf("Failed to seed ticket: %v", err)
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) submitScan(t *testing.T, code string) *httptest.ResponseRecorder {
	t.Helper()
	payload, _ := json.Marshal(map[string]string{"code": code})
	return e.do(t, http.MethodPost, "/scan", payload, nil)
}

func adminHeader(t *testing.T) map[string]string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"role": "admin",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testAdminSecret))
	if err != nil {
		t.Fatalf("Failed to sign admin token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + signed}
}

func decodeScanResult(t *testing.T, rec *httptest.ResponseRecorder) models.ScanResult {
	t.Helper()
	var envelope struct {
		Success bool              `json:"success"`
		Data    models.ScanResult `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return envelope.Data
}

func TestSubmitScanGrantThenExhausted(t *testing.T) {
	env := setupEnv(t)
	env.seedTicket(t, models.Ticket{Code: "ABC123", EntryLabel: "Regular Entry", RemainingEntries: 1, GroupName: "Capricci"})

	rec := env.submitScan(t, "ABC123")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	result := decodeScanResult(t, rec)
	if !result.Success {
		t.Fatalf("Expected grant, got: %s", result.Message)
	}
	if result.Message != "Access granted - 0 entries remaining" {
		t.Errorf("Unexpected message: %q", result.Message)
	}

	time.Sleep(20 * time.Millisecond) // past cooldown

	rec = env.submitScan(t, "ABC123")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	result = decodeScanResult(t, rec)
	if result.Success {
		t.Fatal("Expected exhausted ticket to be denied")
	}
	if result.Message != "No entries remaining - access denied" {
		t.Errorf("Unexpected message: %q", result.Message)
	}
}

func TestSubmitScanUnknownCode(t *testing.T) {
	env := setupEnv(t)

	rec := env.submitScan(t, "NO-SUCH-CODE")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	result := decodeScanResult(t, rec)
	if result.Success {
		t.Fatal("Expected denial for unknown code")
	}
	if result.Message != "Ticket not found" {
		t.Errorf("Unexpected message: %q", result.Message)
	}
}

func TestSubmitScanCooldownConflict(t *testing.T) {
	env := setupEnv(t)
	env.seedTicket(t, models.Ticket{Code: "ABC123", EntryLabel: "Regular Entry", RemainingEntries: 5})
	env.orch.Cooldown = time.Minute

	if rec := env.submitScan(t, "ABC123"); rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 on first scan, got %d", rec.Code)
	}
	if rec := env.submitScan(t, "ABC123"); rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 for duplicate inside cooldown, got %d", rec.Code)
	}
}

func TestSubmitScanEmptyCode(t *testing.T) {
	env := setupEnv(t)

	if rec := env.submitScan(t, "   "); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for blank code, got %d", rec.Code)
	}
}

func TestSubmitScanBadBody(t *testing.T) {
	env := setupEnv(t)

	rec := env.do(t, http.MethodPost, "/scan", []byte("{not json"), nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed body, got %d", rec.Code)
	}
}

func TestKioskStateAndClearRecent(t *testing.T) {
	env := setupEnv(t)
	env.seedTicket(t, models.Ticket{Code: "ABC123", EntryLabel: "Regular Entry", RemainingEntries: 2})

	env.submitScan(t, "ABC123")

	rec := env.do(t, http.MethodGet, "/scan/state", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var state models.KioskState
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("Failed to decode state: %v", err)
	}
	if len(state.Recent) != 1 {
		t.Errorf("Expected 1 recent scan, got %d", len(state.Recent))
	}

	if rec := env.do(t, http.MethodDelete, "/scan/recent", nil, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/scan/state", nil, nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("Failed to decode state: %v", err)
	}
	if len(state.Recent) != 0 {
		t.Errorf("Expected empty recent list after clear, got %d", len(state.Recent))
	}
}

func TestScanHistoryEndpoint(t *testing.T) {
	env := setupEnv(t)
	env.seedTicket(t, models.Ticket{Code: "ABC123", EntryLabel: "Regular Entry", RemainingEntries: 5})

	env.submitScan(t, "ABC123")
	env.submitScan(t, "NO-SUCH-CODE")

	rec := env.do(t, http.MethodGet, "/scans", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var envelope struct {
		Data []models.ScanRecord `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("Failed to decode history: %v", err)
	}
	if len(envelope.Data) != 2 {
		t.Fatalf("Expected 2 audit records, got %d", len(envelope.Data))
	}
	if envelope.Data[0].Code != "NO-SUCH-CODE" {
		t.Errorf("Expected newest record first, got %q", envelope.Data[0].Code)
	}
}

func TestScanHistoryInvalidLimit(t *testing.T) {
	env := setupEnv(t)

	if rec := env.do(t, http.MethodGet, "/scans?limit=zero", nil, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad limit, got %d", rec.Code)
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	env := setupEnv(t)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodDelete, "/scans"},
		{http.MethodDelete, "/tickets"},
		{http.MethodPost, "/tickets/import"},
		{http.MethodPut, "/settings"},
	}
	for _, tt := range tests {
		rec := env.do(t, tt.method, tt.path, nil, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: expected 401 without token, got %d", tt.method, tt.path, rec.Code)
		}
	}
}

func TestImportAndCountAndClear(t *testing.T) {
	env := setupEnv(t)
	csv := "code,entryLabel,remainingEntries,groupName\n" +
		"TICKET001,Regular Entry,1,Capricci\n" +
		"TICKET002,VIP Access,3,Intooit\n"

	rec := env.do(t, http.MethodPost, "/tickets/import", []byte(csv), adminHeader(t))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 on import, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/tickets/count", nil, nil)
	var countEnvelope struct {
		Data map[string]int `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &countEnvelope); err != nil {
		t.Fatalf("Failed to decode count: %v", err)
	}
	if countEnvelope.Data["count"] != 2 {
		t.Errorf("Expected 2 tickets, got %d", countEnvelope.Data["count"])
	}

	if rec := env.do(t, http.MethodDelete, "/tickets", nil, adminHeader(t)); rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204 on clear, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/tickets/count", nil, nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &countEnvelope); err != nil {
		t.Fatalf("Failed to decode count: %v", err)
	}
	if countEnvelope.Data["count"] != 0 {
		t.Errorf("Expected 0 tickets after clear, got %d", countEnvelope.Data["count"])
	}
}

func TestImportTemplate(t *testing.T) {
	env := setupEnv(t)

	rec := env.do(t, http.MethodGet, "/tickets/template", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Expected text/csv, got %q", ct)
	}
	if !strings.HasPrefix(rec.Body.String(), "code,entryLabel,remainingEntries,groupName") {
		t.Errorf("Expected template header row, got: %s", rec.Body.String())
	}
}

func TestImportRejectsBadFile(t *testing.T) {
	env := setupEnv(t)

	rec := env.do(t, http.MethodPost, "/tickets/import", []byte("entryLabel\nVIP\n"), adminHeader(t))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for file without code column, got %d", rec.Code)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	env := setupEnv(t)

	rec := env.do(t, http.MethodGet, "/settings", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var envelope struct {
		Data models.VenueSettings `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("Failed to decode settings: %v", err)
	}
	if envelope.Data.VenueName != models.DefaultSettings().VenueName {
		t.Errorf("Expected default venue name, got %q", envelope.Data.VenueName)
	}

	updated := envelope.Data
	updated.VenueName = "Winter Warehouse"
	payload, _ := json.Marshal(updated)

	if rec := env.do(t, http.MethodPut, "/settings", payload, adminHeader(t)); rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 on save, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/settings", nil, nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("Failed to decode settings: %v", err)
	}
	if envelope.Data.VenueName != "Winter Warehouse" {
		t.Errorf("Expected saved venue name, got %q", envelope.Data.VenueName)
	}
}

func TestClearScans(t *testing.T) {
	env := setupEnv(t)
	env.submitScan(t, "NO-SUCH-CODE")

	if rec := env.do(t, http.MethodDelete, "/scans", nil, adminHeader(t)); rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", rec.Code)
	}

	rec := env.do(t, http.MethodGet, "/scans", nil, nil)
	var envelope struct {
		Data []models.ScanRecord `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("Failed to decode history: %v", err)
	}
	if len(envelope.Data) != 0 {
		t.Errorf("Expected empty history after clear, got %d", len(envelope.Data))
	}
}

func TestHealth(t *testing.T) {
	env := setupEnv(t)
	env.seedTicket(t, models.Ticket{Code: fmt.Sprintf("HC-%d", time.Now().UnixNano()), EntryLabel: "Regular Entry", RemainingEntries: 1})

	rec := env.do(t, http.MethodGet, "/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "tickets") {
		t.Errorf("Expected ticket count in health payload, got: %s", rec.Body.String())
	}
}
