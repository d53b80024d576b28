package scanner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
)

var (
	// ErrEmptyCode rejects scans whose payload is blank after trimming.
	ErrEmptyCode = errors.New("empty scan code")

	// ErrCooldown rejects a repeat of the immediately-prior code inside
	// the cooldown window. Scanner repeat-fire, not a real scan.
	ErrCooldown = errors.New("duplicate scan within cooldown window")
)

// Cycle states, exposed for observability only.
const (
	StateIdle = iota
	StateValidating
	StateAuditing
	StateSideEffects
)

type Validator interface {
	Validate(ctx context.Context, code string) (models.ValidationResult, error)
}

type AuditLog interface {
	InsertScan(ctx context.Context, record models.ScanRecord) error
}

type RelayTrigger interface {
	Open(ctx context.Context) error
}

type ReceiptPrinter interface {
	PrintScanReceipt(ctx context.Context, ticket models.Ticket, code string, scannedAt time.Time) error
}

type EventPublisher interface {
	PublishScan(record models.ScanRecord) error
}

// Orchestrator drives one scan attempt end to end: validate, audit,
// side effects, UI state. Cycles for different codes serialize on the
// cycle lock; a repeat of the last code inside the cooldown window is
// dropped before a cycle starts.
type Orchestrator struct {
	Validator Validator
	Audit     AuditLog
	Relay     RelayTrigger
	Printer   ReceiptPrinter
	Events    EventPublisher // optional
	Log       *logger.Logger

	Cooldown      time.Duration
	FlashDuration time.Duration
	HistorySize   int

	cycleMu sync.Mutex // serializes scan cycles

	mu         sync.Mutex // guards everything below
	state      int
	lastCode   string
	lastAt     time.Time
	lastResult *models.ScanResult
	recent     []models.ScanResult
	flash      string
	flashTimer *time.Timer

	sideEffects sync.WaitGroup
}

func NewOrchestrator(v Validator, audit AuditLog, relay RelayTrigger, printer ReceiptPrinter, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		Validator:     v,
		Audit:         audit,
		Relay:         relay,
		Printer:       printer,
		Log:           log,
		Cooldown:      2 * time.Second,
		FlashDuration: 5 * time.Second,
		HistorySize:   10,
	}
}

// Process runs one scan cycle and returns its result. It fails closed:
// a store failure comes back as a denied result, never a grant.
func (o *Orchestrator) Process(ctx context.Context, code string) (*models.ScanResult, error) {
	normalized := strings.TrimSpace(code)
	if normalized == "" {
		return nil, ErrEmptyCode
	}

	if o.inCooldown(normalized) {
		return nil, ErrCooldown
	}

	o.cycleMu.Lock()
	defer o.cycleMu.Unlock()

	// A duplicate that queued behind a running cycle for the same code
	// is still repeat-fire; check again now that the cycle lock is held.
	if o.inCooldown(normalized) {
		return nil, ErrCooldown
	}
	o.markProcessing(normalized)

	result := o.runCycle(ctx, normalized)

	o.finishCycle(normalized, result)
	return &result, nil
}

func (o *Orchestrator) runCycle(ctx context.Context, code string) models.ScanResult {
	o.setState(StateValidating)
	validation, err := o.Validator.Validate(ctx, code)
	if err != nil {
		// Fail closed: the store being unreachable is a denial, with the
		// reason embedded for the operator.
		o.Log.Error("SCAN", fmt.Sprintf("Validation failed for %s: %v", code, err))
		validation = models.ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("Error processing scan: %v", err),
		}
	}

	result := models.ScanResult{
		Code:      code,
		Timestamp: time.Now(),
		Success:   validation.Valid,
		Message:   validation.Message,
		Ticket:    validation.Ticket,
	}

	o.setState(StateAuditing)
	record := models.ScanRecord{
		ID:        uuid.NewString(),
		Code:      code,
		Timestamp: result.Timestamp,
		Outcome:   result.Success,
		Message:   result.Message,
	}
	if err := o.Audit.InsertScan(ctx, record); err != nil {
		// Audit is best-effort; the decision stands.
		o.Log.Warn("AUDIT", fmt.Sprintf("Failed to record scan for %s: %v", code, err))
	}

	o.setState(StateSideEffects)
	o.fanOutSideEffects(result, record)

	o.setState(StateIdle)
	if result.Success {
		o.Log.LogScan("GRANTED", code, result.Message)
	} else {
		o.Log.LogScan("DENIED", code, result.Message)
	}
	return result
}

// fanOutSideEffects fires the physical-world effects of a decision. The
// relay call and the receipt print run on their own goroutines so one
// failing or stalling cannot suppress the other; neither can change the
// decision.
func (o *Orchestrator) fanOutSideEffects(result models.ScanResult, record models.ScanRecord) {
	o.setFlash(result.Success)

	if o.Events != nil {
		o.sideEffects.Add(1)
		go func() {
			defer o.sideEffects.Done()
			if err := o.Events.PublishScan(record); err != nil {
				o.Log.LogKafka("PUBLISH", "scan", fmt.Sprintf("failed for %s: %v", record.Code, err))
			}
		}()
	}

	if !result.Success {
		return
	}

	if o.Relay != nil {
		o.sideEffects.Add(1)
		go func() {
			defer o.sideEffects.Done()
			if err := o.Relay.Open(context.Background()); err != nil {
				o.Log.LogRelay("OPEN", fmt.Sprintf("could not trigger door for %s: %v", result.Code, err))
			} else {
				o.Log.LogRelay("OPEN", "door relay triggered")
			}
		}()
	}

	if o.Printer != nil && result.Ticket != nil {
		ticket := *result.Ticket
		o.sideEffects.Add(1)
		go func() {
			defer o.sideEffects.Done()
			if err := o.Printer.PrintScanReceipt(context.Background(), ticket, result.Code, result.Timestamp); err != nil {
				o.Log.LogPrinter("RECEIPT", fmt.Sprintf("printing failed for %s: %v", result.Code, err))
			}
		}()
	}
}

// State returns a snapshot of the kiosk-facing state for the UI layer.
func (o *Orchestrator) State() models.KioskState {
	o.mu.Lock()
	defer o.mu.Unlock()

	recent := make([]models.ScanResult, len(o.recent))
	copy(recent, o.recent)

	return models.KioskState{
		LastResult: o.lastResult,
		Recent:     recent,
		Flash:      o.flash,
		Busy:       o.state != StateIdle,
	}
}

// ClearRecent empties the bounded recent-scan list.
func (o *Orchestrator) ClearRecent() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.recent = nil
	o.lastResult = nil
}

// Quiesce waits for in-flight side effects; used during shutdown and in
// tests.
func (o *Orchestrator) Quiesce() {
	o.sideEffects.Wait()
}

func (o *Orchestrator) inCooldown(code string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return code == o.lastCode && time.Since(o.lastAt) < o.Cooldown
}

func (o *Orchestrator) markProcessing(code string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastCode = code
	o.lastAt = time.Now()
}

func (o *Orchestrator) finishCycle(code string, result models.ScanResult) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.lastCode = code
	o.lastAt = time.Now()
	o.lastResult = &result

	o.recent = append([]models.ScanResult{result}, o.recent...)
	if len(o.recent) > o.HistorySize {
		o.recent = o.recent[:o.HistorySize]
	}
}

func (o *Orchestrator) setState(state int) {
	o.mu.Lock()
	o.state = state
	o.mu.Unlock()
}

// setFlash turns the kiosk screen green or red, auto-clearing after
// FlashDuration. A new scan inside that window restarts the timer.
func (o *Orchestrator) setFlash(granted bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if granted {
		o.flash = models.FlashGreen
	} else {
		o.flash = models.FlashRed
	}

	if o.flashTimer != nil {
		o.flashTimer.Stop()
	}
	o.flashTimer = time.AfterFunc(o.FlashDuration, func() {
		o.mu.Lock()
		o.flash = models.FlashNone
		o.mu.Unlock()
	})
}
