package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// relayRequest is the JSON body posted to an HTTP mail relay.
type relayRequest struct {
	From     string   `json:"from"`
	FromName string   `json:"from_name,omitempty"`
	To       []string `json:"to"`
	Subject  string   `json:"subject"`
	Body     string   `json:"body"`
}

// Relay delivers messages by POSTing them to an HTTP mail relay.
// The URL is injected from config so tests can point to a local server.
type Relay struct {
	url        string
	httpClient *http.Client
}

func NewRelay(url string, timeout time.Duration) *Relay {
	return &Relay{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (r *Relay) Configured() bool {
	return r.url != ""
}

// Send posts the message to the relay and expects 200 or 202.
func (r *Relay) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(relayRequest{
		From:     msg.From,
		FromName: msg.FromName,
		To:       msg.To,
		Subject:  msg.Subject,
		Body:     msg.Body,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected relay status: %d", resp.StatusCode)
	}
	return nil
}

// compile-time check that Relay implements Transport
var _ Transport = (*Relay)(nil)
