package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"surgeWatch/internal/ports"
)

const defaultAPIBase = "https://api.telegram.org"

// Config holds configuration for the Telegram notifier.
type Config struct {
	BotToken string
	APIBase  string        // Defaults to https://api.telegram.org
	Timeout  time.Duration // Per request, defaults to 10s
	Logger   ports.Logger
}

// Notifier implements ports.Notifier through the Bot API sendMessage method.
// The channel argument of Send is the chat ID.
type Notifier struct {
	botToken string
	baseURL  string
	client   *http.Client
	logger   ports.Logger
}

// New creates a Telegram notifier.
func New(cfg Config) (*Notifier, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Telegram notifier")
	}
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("bot token is required for Telegram notifier")
	}
	base := cfg.APIBase
	if base == "" {
		base = defaultAPIBase
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		botToken: cfg.BotToken,
		baseURL:  strings.TrimRight(base, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   cfg.Logger,
	}, nil
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send posts Markdown text to the chat identified by channel.
func (n *Notifier) Send(ctx context.Context, channel, text string) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:                channel,
		Text:                  text,
		ParseMode:             "Markdown",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w: %w", ports.ErrNotificationFailed, err)
	}
	defer resp.Body.Close()

	var result apiResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&result)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram status %d %s: %w", resp.StatusCode, result.Description, ports.ErrNotificationFailed)
	}
	if decodeErr == nil && !result.OK {
		return fmt.Errorf("telegram returned ok=false %s: %w", result.Description, ports.ErrNotificationFailed)
	}

	n.logger.Debug(ctx, "Telegram message sent", map[string]interface{}{"chatID": channel})
	return nil
}

var _ ports.Notifier = (*Notifier)(nil)
