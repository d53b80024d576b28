package models

import (
	"time"

	"github.com/uptrace/bun"
)

// ScanRecord is one row of the append-only audit trail. Every scan
// attempt produces exactly one record, whatever the outcome. Records are
// never mutated; the only delete is the administrative bulk clear.
type ScanRecord struct {
	bun.BaseModel `bun:"table:scan_history"`

	ID        string    `bun:"id,pk" json:"id"`
	Code      string    `bun:"code" json:"code"`
	Timestamp time.Time `bun:"timestamp" json:"timestamp"`
	Outcome   bool      `bun:"outcome" json:"outcome"`
	Message   string    `bun:"message" json:"message"`
}

// ValidationResult is the outcome of one validation decision. Business
// denials live here, not in errors: Valid=false always carries a
// human-readable reason. Ticket is the record as of the decision instant,
// post-decrement on a grant, pre-decrement on an exhausted denial, nil
// when the code matched nothing.
type ValidationResult struct {
	Valid   bool    `json:"valid"`
	Message string  `json:"message"`
	Ticket  *Ticket `json:"ticket,omitempty"`
}

// ScanResult is the UI-facing record of one completed scan cycle.
type ScanResult struct {
	Code      string    `json:"code"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Ticket    *Ticket   `json:"ticket,omitempty"`
}

// Flash colors shown by the kiosk after a scan cycle.
const (
	FlashGreen = "green"
	FlashRed   = "red"
	FlashNone  = ""
)

// KioskState is a snapshot of the orchestrator-owned UI state: the last
// result, the bounded recent-scan list (most recent first), the current
// flash signal and whether a cycle is in flight.
type KioskState struct {
	LastResult *ScanResult  `json:"lastResult,omitempty"`
	Recent     []ScanResult `json:"recent"`
	Flash      string       `json:"flash"`
	Busy       bool         `json:"busy"`
}
