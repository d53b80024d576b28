package relay

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Trigger fires the door/gate relay: a single GET to a fixed local
// address. The call is best-effort - the caller logs failures and never
// retries, the next physical scan is the retry.
type Trigger struct {
	URL  string
	HTTP *http.Client
}

func NewTrigger(url string, timeout time.Duration) *Trigger {
	return &Trigger{
		URL:  url,
		HTTP: &http.Client{Timeout: timeout},
	}
}

func (t *Trigger) Open(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		return err
	}

	resp, err := t.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("relay call failed: %w", err)
	}
	defer resp.Body.Close()

	// Response content is irrelevant; drain so the connection is reused.
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("relay returned status %d", resp.StatusCode)
	}
	return nil
}
