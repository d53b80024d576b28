package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Ticket is a redeemable entry credential. The code is the raw QR payload
// and the primary key; some handheld scanners append a trailing newline to
// the payload, so store lookups must tolerate that variant.
type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	Code             string     `bun:"code,pk" json:"code"`
	EntryLabel       string     `bun:"entry_label" json:"entryLabel"`
	RemainingEntries int        `bun:"remaining_entries" json:"remainingEntries"`
	LastScannedAt    *time.Time `bun:"last_scanned_at,nullzero" json:"lastScannedAt,omitempty"`
	GroupName        string     `bun:"group_name" json:"groupName"`
}

// Exhausted reports whether the ticket has no entries left. A negative
// count is not "exhausted" - it marks upstream data corruption and is
// denied with a distinct message.
func (t *Ticket) Exhausted() bool {
	return t.RemainingEntries == 0
}
