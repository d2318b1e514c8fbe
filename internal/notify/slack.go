package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// SlackNotifier posts alerts to a Slack-compatible incoming webhook as a
// single formatted text block.
type SlackNotifier struct {
	url    string
	client *http.Client
}

// NewSlackNotifier creates a webhook notifier.
// url: the Slack incoming-webhook endpoint to POST alerts to.
func NewSlackNotifier(url string) *SlackNotifier {
	return &SlackNotifier{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (s *SlackNotifier) Send(ctx context.Context, alert Alert) error {
	text := fmt.Sprintf("*[%s] %s*\n• Time: `%s`\n• %s",
		alert.Level,
		alert.Title,
		time.Now().UTC().Format("2006-01-02 15:04:05"),
		alert.Message,
	)

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("slack: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("slack: unexpected status %d", resp.StatusCode)
	}

	log.Printf("[notify] sent alert to webhook: %s", alert.Title)
	return nil
}
