package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const defaultTelegramAPIBase = "https://api.telegram.org"

// ErrNotConfigured is returned when bot credentials are missing.
var ErrNotConfigured = errors.New("relay: not configured")

// TelegramClient sends messages through the Telegram Bot API.
type TelegramClient struct {
	botToken   string
	chatID     string
	apiBase    string
	httpClient *http.Client
}

// NewTelegramClient creates a TelegramClient for the given bot and chat.
func NewTelegramClient(botToken, chatID string) *TelegramClient {
	return &TelegramClient{
		botToken:   botToken,
		chatID:     chatID,
		apiBase:    defaultTelegramAPIBase,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

var _ Notifier = (*TelegramClient)(nil)

// sendMessageResponse is the subset of the Bot API response we care about.
type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send posts the message text to the configured chat. The bot token is part
// of the URL and must never be logged or echoed back.
func (c *TelegramClient) Send(ctx context.Context, msg Message) error {
	if c.botToken == "" || c.chatID == "" {
		return ErrNotConfigured
	}

	payload, err := json.Marshal(map[string]string{
		"chat_id": c.chatID,
		"text":    msg.Text,
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.apiBase, c.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("relay: telegram request: %w", err)
	}
	defer resp.Body.Close()

	var sr sendMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return fmt.Errorf("relay: decode telegram response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !sr.OK {
		return fmt.Errorf("relay: telegram rejected message (status %d): %s", resp.StatusCode, sr.Description)
	}
	return nil
}
