package receipt

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html/template"
	"time"

	"github.com/skip2/go-qrcode"

	"ms-checkin/internal/models"
)

// Lines renders an entry receipt as ESC/POS text lines for the thermal
// print agent. Pure formatting; no I/O happens here.
func Lines(ticket models.Ticket, code string, settings models.VenueSettings, scannedAt time.Time) []string {
	lines := []string{
		AlignCenter + FontLargeBold + settings.VenueName,
		AlignCenter + FontNormal + "ENTRY RECEIPT",
		Line("="),
		AlignLeft + FontBold + ticket.EntryLabel,
		FontNormal + TwoCols("Code", code),
		TwoCols("Verified", scannedAt.Format("02/01/2006 15:04")),
		TwoCols("Entries left", fmt.Sprintf("%d", ticket.RemainingEntries)),
	}
	if ticket.GroupName != "" {
		lines = append(lines, TwoCols("Group", ticket.GroupName))
	}
	lines = append(lines,
		Line("-"),
		AlignCenter+"Keep this receipt for re-entry checks",
	)
	return lines
}

var documentTemplate = template.Must(template.New("receipt").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Receipt - {{.Code}}</title>
<style>
  body { margin: 0; font-family: monospace; }
  .receipt { width: 72mm; padding: 4mm; text-align: center; }
  .venue { font-size: 16px; font-weight: bold; }
  .entry { font-size: 14px; margin-top: 4px; }
  .meta { font-size: 11px; margin-top: 6px; text-align: left; }
  .qr { margin-top: 8px; }
  hr { border: none; border-top: 1px dashed #000; }
</style>
</head>
<body>
<div class="receipt">
  <div class="venue">{{.VenueName}}</div>
  <div class="entry">{{.EntryLabel}}</div>
  <hr>
  <div class="meta">Code: {{.Code}}</div>
  <div class="meta">Verified: {{.VerifiedAt}}</div>
  <div class="meta">Entries left: {{.Remaining}}</div>
  {{if .QRBase64}}<div class="qr"><img src="data:image/png;base64,{{.QRBase64}}" width="120" height="120"></div>{{end}}
</div>
</body>
</html>
`))

type documentData struct {
	VenueName  string
	EntryLabel string
	Code       string
	VerifiedAt string
	Remaining  int
	QRBase64   string
}

// Document renders the browser-print fallback: a self-contained HTML
// page sized for 80mm paper with the scanned code embedded as a QR
// image, so the receipt itself stays scannable for audits.
func Document(ticket models.Ticket, code string, settings models.VenueSettings, scannedAt time.Time) (string, error) {
	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		return "", fmt.Errorf("failed to encode QR: %w", err)
	}

	data := documentData{
		VenueName:  settings.VenueName,
		EntryLabel: ticket.EntryLabel,
		Code:       code,
		VerifiedAt: scannedAt.Format("02/01/2006 15:04"),
		Remaining:  ticket.RemainingEntries,
		QRBase64:   base64.StdEncoding.EncodeToString(png),
	}

	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render receipt document: %w", err)
	}
	return buf.String(), nil
}
