package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-checkin/internal/models"
)

var (
	// ErrTicketNotFound is returned when no ticket matches a code.
	ErrTicketNotFound = errors.New("ticket not found")

	// ErrUpdateConflict is returned when a conditional update matched no
	// row because the remaining-entries value changed since it was read.
	ErrUpdateConflict = errors.New("ticket update conflict")
)

type DB struct {
	Bun *bun.DB
}

// TicketByCode fetches a ticket by its QR payload. The lookup also
// matches the trailing-newline variant of the code, an artifact some
// keyboard-wedge scanners append to the payload.
func (d *DB) TicketByCode(ctx context.Context, code string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("code = ?", code).
		WhereOr("code = ?", code+"\n").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// RedeemEntry decrements the remaining-entries counter by one, but only
// if it still holds the value read when the grant decision was made.
// Two kiosks racing on the same ticket will both read the same count;
// only one update can match, the other gets ErrUpdateConflict and must
// re-read. Returns the ticket as persisted after the decrement.
func (d *DB) RedeemEntry(ctx context.Context, code string, expectedRemaining int, at time.Time) (*models.Ticket, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("remaining_entries = ?", expectedRemaining-1).
		Set("last_scanned_at = ?", at).
		Where("code = ?", code).
		Where("remaining_entries = ?", expectedRemaining).
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, ErrUpdateConflict
	}

	return d.TicketByCode(ctx, code)
}

// InsertScan appends one audit record. Rows are never updated.
func (d *DB) InsertScan(ctx context.Context, record models.ScanRecord) error {
	_, err := d.Bun.NewInsert().Model(&record).Exec(ctx)
	return err
}

// ScanHistory returns the most recent audit records, newest first.
func (d *DB) ScanHistory(ctx context.Context, limit int) ([]models.ScanRecord, error) {
	var records []models.ScanRecord
	err := d.Bun.NewSelect().
		Model(&records).
		Order("timestamp DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (d *DB) TicketCount(ctx context.Context) (int, error) {
	return d.Bun.NewSelect().Model((*models.Ticket)(nil)).Count(ctx)
}

// BulkUpsertTickets inserts or replaces tickets by code. Used by the
// administrative import; callers are expected to have deduplicated the
// batch already (duplicate codes in one INSERT break the upsert).
func (d *DB) BulkUpsertTickets(ctx context.Context, tickets []models.Ticket) (int, error) {
	if len(tickets) == 0 {
		return 0, nil
	}
	_, err := d.Bun.NewInsert().
		Model(&tickets).
		On("CONFLICT (code) DO UPDATE").
		Set("entry_label = EXCLUDED.entry_label").
		Set("remaining_entries = EXCLUDED.remaining_entries").
		Set("group_name = EXCLUDED.group_name").
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("bulk upsert failed: %w", err)
	}
	return len(tickets), nil
}

func (d *DB) DeleteAllTickets(ctx context.Context) error {
	_, err := d.Bun.NewDelete().
		Model((*models.Ticket)(nil)).
		Where("1 = 1").
		Exec(ctx)
	return err
}

func (d *DB) DeleteAllScans(ctx context.Context) error {
	_, err := d.Bun.NewDelete().
		Model((*models.ScanRecord)(nil)).
		Where("1 = 1").
		Exec(ctx)
	return err
}

// Settings loads the singleton settings row. Callers fall back to
// defaults when it is missing.
func (d *DB) Settings(ctx context.Context) (*models.VenueSettings, error) {
	var settings models.VenueSettings
	err := d.Bun.NewSelect().
		Model(&settings).
		Where("id = ?", models.SettingsRowID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

func (d *DB) SaveSettings(ctx context.Context, settings models.VenueSettings) error {
	settings.ID = models.SettingsRowID
	settings.UpdatedAt = time.Now()
	_, err := d.Bun.NewInsert().
		Model(&settings).
		On("CONFLICT (id) DO UPDATE").
		Set("venue_name = EXCLUDED.venue_name").
		Set("logo_url = EXCLUDED.logo_url").
		Set("barcode = EXCLUDED.barcode").
		Set("ticket_price = EXCLUDED.ticket_price").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// Ping verifies store connectivity for the health endpoint.
func (d *DB) Ping(ctx context.Context) error {
	return d.Bun.PingContext(ctx)
}
