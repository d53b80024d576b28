package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"ms-checkin/internal/models"
)

// Column headers accepted in imports. The first set matches the current
// template; the second is the legacy export format still floating around
// on organizer laptops.
var headerAliases = map[string]string{
	"code":             "code",
	"entrylabel":       "entryLabel",
	"remainingentries": "remainingEntries",
	"groupname":        "groupName",
	"qrcode":           "code",
	"entryname":        "entryLabel",
	"entriesremaining": "remainingEntries",
	"club":             "groupName",
}

type TicketWriter interface {
	BulkUpsertTickets(ctx context.Context, tickets []models.Ticket) (int, error)
}

// Parse reads tabular ticket data. Requires a header row with at least a
// code column; missing label/count/group fall back to defaults.
func Parse(r io.Reader) ([]models.Ticket, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("import file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	columns := make(map[int]string, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		if canonical, ok := headerAliases[key]; ok {
			columns[i] = canonical
		}
	}

	hasCode := false
	for _, name := range columns {
		if name == "code" {
			hasCode = true
		}
	}
	if !hasCode {
		return nil, fmt.Errorf("import file is missing the code column")
	}

	var tickets []models.Ticket
	row := 1
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}

		ticket := models.Ticket{
			EntryLabel:       "Default Entry",
			RemainingEntries: 1,
			GroupName:        "Default Club",
		}
		for i, value := range fields {
			value = strings.TrimSpace(value)
			switch columns[i] {
			case "code":
				ticket.Code = value
			case "entryLabel":
				if value != "" {
					ticket.EntryLabel = value
				}
			case "remainingEntries":
				if value != "" {
					n, err := strconv.Atoi(value)
					if err != nil {
						return nil, fmt.Errorf("row %d: invalid remainingEntries %q", row, value)
					}
					ticket.RemainingEntries = n
				}
			case "groupName":
				if value != "" {
					ticket.GroupName = value
				}
			}
		}

		if ticket.Code == "" {
			continue // blank line or stray separator
		}
		tickets = append(tickets, ticket)
	}

	return tickets, nil
}

// Dedupe collapses duplicate codes within one import, keeping the last
// occurrence. Order follows each code's final appearance.
func Dedupe(tickets []models.Ticket) []models.Ticket {
	last := make(map[string]int, len(tickets))
	for i, t := range tickets {
		last[t.Code] = i
	}

	out := make([]models.Ticket, 0, len(last))
	for i, t := range tickets {
		if last[t.Code] == i {
			out = append(out, t)
		}
	}
	return out
}

// Import parses, dedupes and upserts a ticket batch, returning how many
// rows reached the store.
func Import(ctx context.Context, store TicketWriter, r io.Reader) (int, error) {
	tickets, err := Parse(r)
	if err != nil {
		return 0, err
	}
	if len(tickets) == 0 {
		return 0, fmt.Errorf("no valid tickets found in the import file")
	}
	return store.BulkUpsertTickets(ctx, Dedupe(tickets))
}

// Template returns a sample CSV for the admin screen's download link.
func Template() string {
	return "code,entryLabel,remainingEntries,groupName\n" +
		"TICKET001,Regular Entry,1,Capricci\n" +
		"TICKET002,VIP Access,3,Intooit\n" +
		"TICKET003,Backstage Pass,2,Capricci\n"
}
