package models

import (
	"time"

	"github.com/uptrace/bun"
)

// SettingsRowID is the fixed primary key of the singleton settings row.
const SettingsRowID = "settings"

// VenueSettings holds the venue branding and receipt fields. Stored as a
// single row keyed by SettingsRowID.
type VenueSettings struct {
	bun.BaseModel `bun:"table:app_settings"`

	ID          string    `bun:"id,pk" json:"id"`
	VenueName   string    `bun:"venue_name" json:"venueName"`
	LogoURL     string    `bun:"logo_url" json:"logoUrl,omitempty"`
	Barcode     string    `bun:"barcode" json:"barcode,omitempty"`
	TicketPrice float64   `bun:"ticket_price" json:"ticketPrice"`
	UpdatedAt   time.Time `bun:"updated_at" json:"updatedAt"`
}

// DefaultSettings returns the fallback used when the settings row is
// missing or the store is unreachable.
func DefaultSettings() VenueSettings {
	return VenueSettings{
		ID:          SettingsRowID,
		VenueName:   "Famous Summer Club",
		Barcode:     "1234567890128",
		TicketPrice: 50,
		UpdatedAt:   time.Now(),
	}
}
