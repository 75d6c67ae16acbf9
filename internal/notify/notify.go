// Package notify delivers assembled alerts to the outbound channel.
// Delivery is at-most-once per claimed tuple from this process; the
// channel itself may retry, so duplicate delivery of the same claimed
// alert is acceptable collateral. Duplicate claims are not.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/albapepper/cyclewatch/internal/alert"
)

// Notifier is the outbound notification channel contract.
type Notifier interface {
	Send(ctx context.Context, a alert.Alert) error
}

// SlackSender posts alerts to a Slack incoming webhook.
// Nil-safe: when not configured, Send logs the alert instead.
type SlackSender struct {
	webhookURL string
	client     *retryablehttp.Client
	logger     *slog.Logger
}

// NewSlackSender creates a Slack sender. Returns nil if webhookURL is
// empty (alerts logged only).
func NewSlackSender(webhookURL string, logger *slog.Logger) *SlackSender {
	if webhookURL == "" {
		return nil
	}
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient.Timeout = 10 * time.Second
	client.Logger = nil
	return &SlackSender{
		webhookURL: webhookURL,
		client:     client,
		logger:     logger,
	}
}

// Send posts one alert. The highlight link uses Slack's <url|text>
// format when present.
func (s *SlackSender) Send(ctx context.Context, a alert.Alert) error {
	if s == nil {
		slog.Info("alert (no notifier configured)",
			"game_id", a.GameID, "player_id", a.PlayerID,
			"kind", a.Kind, "message", a.Message, "highlight", a.HighlightURL)
		return nil
	}

	text := a.Message
	if a.HighlightURL != "" {
		text += fmt.Sprintf("\n<%s|Watch the highlight>", a.HighlightURL)
	}

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("slack: encode payload: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack: unexpected status %d", resp.StatusCode)
	}

	s.logger.Info("alert sent", "game_id", a.GameID, "player_id", a.PlayerID, "kind", a.Kind)
	return nil
}
