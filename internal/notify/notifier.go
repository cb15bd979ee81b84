package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Notifier forwards the current present-names list to an external system.
// Delivery is best effort: the caller logs and drops any error, and the
// engine's correctness never depends on it.
type Notifier struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

type user struct {
	Username string `json:"username"`
}

type pushBody struct {
	Users []user `json:"users"`
}

// New creates a notifier for the given API base URL and key.
func New(baseURL, apiKey string) *Notifier {
	return &Notifier{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Push sends the present names to the external API.
func (n *Notifier) Push(ctx context.Context, names []string) error {
	body := pushBody{Users: make([]user, 0, len(names))}
	for _, name := range names {
		body.Users = append(body.Users, user{Username: name})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, n.baseURL+"/seuranta/users", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", n.apiKey)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("notification endpoint returned status %d", resp.StatusCode)
	}

	return nil
}
