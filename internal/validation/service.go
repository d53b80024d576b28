package validation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-checkin/internal/models"
	"ms-checkin/internal/store"
)

// redeemAttempts bounds the re-read loop when the conditional decrement
// loses a race. Each retry re-evaluates the ticket from scratch, so a
// loser of a last-entry race lands on the exhausted denial rather than
// looping forever.
const redeemAttempts = 3

// StoreError marks a transport or database failure while talking to the
// ticket store. Business denials never take this form - they are encoded
// in the ValidationResult.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("ticket store %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// TicketStore is the slice of the store the engine needs.
type TicketStore interface {
	TicketByCode(ctx context.Context, code string) (*models.Ticket, error)
	RedeemEntry(ctx context.Context, code string, expectedRemaining int, at time.Time) (*models.Ticket, error)
}

type Service struct {
	Store TicketStore
	Now   func() time.Time
}

func NewService(ticketStore TicketStore) *Service {
	return &Service{Store: ticketStore, Now: time.Now}
}

// Validate decides grant or deny for a scanned code and, on a grant,
// redeems one entry. The returned error is non-nil only for store
// failures; every business outcome is a ValidationResult.
func (s *Service) Validate(ctx context.Context, code string) (models.ValidationResult, error) {
	normalized := strings.TrimSpace(code)
	if normalized == "" {
		return models.ValidationResult{Valid: false, Message: "Ticket not found"}, nil
	}

	for attempt := 0; attempt < redeemAttempts; attempt++ {
		ticket, err := s.Store.TicketByCode(ctx, normalized)
		if errors.Is(err, store.ErrTicketNotFound) {
			return models.ValidationResult{Valid: false, Message: "Ticket not found"}, nil
		}
		if err != nil {
			return models.ValidationResult{}, &StoreError{Op: "fetch", Err: err}
		}

		if ticket.RemainingEntries == 0 {
			return models.ValidationResult{
				Valid:   false,
				Message: "No entries remaining - access denied",
				Ticket:  ticket,
			}, nil
		}

		if ticket.RemainingEntries < 0 {
			// Upstream data corruption; kept distinct from "exhausted" as
			// an integrity signal.
			return models.ValidationResult{
				Valid:   false,
				Message: "Invalid ticket - negative entries",
				Ticket:  ticket,
			}, nil
		}

		updated, err := s.Store.RedeemEntry(ctx, ticket.Code, ticket.RemainingEntries, s.Now())
		if errors.Is(err, store.ErrUpdateConflict) {
			// Another kiosk got there first; re-read and re-decide.
			continue
		}
		if err != nil {
			return models.ValidationResult{}, &StoreError{Op: "redeem", Err: err}
		}

		return models.ValidationResult{
			Valid:   true,
			Message: fmt.Sprintf("Access granted - %d entries remaining", updated.RemainingEntries),
			Ticket:  updated,
		}, nil
	}

	return models.ValidationResult{}, &StoreError{
		Op:  "redeem",
		Err: fmt.Errorf("gave up after %d conflicting updates", redeemAttempts),
	}
}
