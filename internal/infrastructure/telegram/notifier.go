package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"offerwatch/internal/ports"
)

// Notifier sends alerts to a Telegram chat via the bot API. Sends are
// best-effort: a bounded retry with a fixed delay, then the error is the
// caller's to log.
type Notifier struct {
	botToken   string
	chatID     string
	maxRetries int
	retryDelay time.Duration
	client     *http.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier.
func NewNotifier(botToken, chatID string, maxRetries int, retryDelay, timeout time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	return &Notifier{
		botToken:   botToken,
		chatID:     chatID,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		client:     &http.Client{Timeout: timeout},
	}
}

// Send posts an HTML message to the configured chat.
func (n *Notifier) Send(ctx context.Context, text string) error {
	if text == "" {
		return fmt.Errorf("refusing to send empty message")
	}
	if n.botToken == "" || n.chatID == "" {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	endpoint := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.botToken)
	payload, err := json.Marshal(map[string]any{
		"chat_id":                  n.chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= n.maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(n.retryDelay)
		}
		if lastErr = n.post(ctx, endpoint, payload); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("send telegram message after %d attempts: %w", n.maxRetries+1, lastErr)
}

func (n *Notifier) post(ctx context.Context, endpoint string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}

	var status struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !status.OK {
		return fmt.Errorf("telegram api reported failure")
	}
	return nil
}
