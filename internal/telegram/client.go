package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/leonid-shevtsov/telegold"
	"github.com/yuin/goldmark"

	"github.com/VollpenTinger/tg-bot-video-analytics/internal/models"
)

// DefaultPollTimeout is the long-poll wait passed to getUpdates, in seconds
const DefaultPollTimeout = 30

// ActionTyping is the chat action shown while an answer is computed
const ActionTyping = "typing"

// APIError is a Bot API call that came back with ok=false
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s failed (%d): %s", e.Method, e.Code, e.Description)
}

// IsParseError reports whether Telegram rejected the message markup
func IsParseError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && strings.Contains(apiErr.Description, "can't parse entities")
}

// Client talks to the Telegram Bot API
type Client struct {
	baseURL       string
	token         string
	httpClient    *http.Client
	pollingClient *http.Client // longer timeout for long polling
	logger        *slog.Logger
}

// NewClient creates a Bot API client. baseURL is usually https://api.telegram.org.
func NewClient(baseURL, token string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		pollingClient: &http.Client{
			Timeout: (DefaultPollTimeout + 5) * time.Second,
		},
		logger: logger.With("component", "telegram"),
	}
}

func (c *Client) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
}

// call POSTs payload as JSON to method and decodes the result into out
func (c *Client) call(ctx context.Context, hc *http.Client, method string, payload, out any) error {
	var body io.Reader = http.NoBody
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", method, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method), body)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		// The token is part of the URL; keep it out of logs
		return fmt.Errorf("failed to call telegram %s: %w", method, redact(err, c.token))
	}
	defer resp.Body.Close()

	var envelope models.TelegramResponse[json.RawMessage]
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode telegram %s response (status %d): %w", method, resp.StatusCode, err)
	}
	if !envelope.OK {
		code := envelope.ErrorCode
		if code == 0 {
			code = resp.StatusCode
		}
		return &APIError{Method: method, Code: code, Description: envelope.Description}
	}

	if out != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("failed to decode telegram %s result: %w", method, err)
		}
	}
	return nil
}

// GetMe returns the bot's own account
func (c *Client) GetMe(ctx context.Context) (*models.TelegramUser, error) {
	var me models.TelegramUser
	if err := c.call(ctx, c.httpClient, "getMe", nil, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

// DeleteWebhook switches the bot to getUpdates mode
func (c *Client) DeleteWebhook(ctx context.Context) error {
	if err := c.call(ctx, c.httpClient, "deleteWebhook", nil, nil); err != nil {
		return err
	}
	c.logger.Info("📡 Webhook deleted, long polling enabled")
	return nil
}

// GetUpdates long-polls for message updates starting at offset
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout int) ([]models.TelegramUpdate, error) {
	payload := map[string]any{
		"timeout":         timeout,
		"allowed_updates": []string{"message"},
	}
	if offset > 0 {
		payload["offset"] = offset
	}

	var updates []models.TelegramUpdate
	if err := c.call(ctx, c.pollingClient, "getUpdates", payload, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// SendMessage sends text rendered as Telegram HTML, falling back to plain
// text when Telegram cannot parse the markup.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	err := c.call(ctx, c.httpClient, "sendMessage", map[string]any{
		"chat_id":    chatID,
		"text":       ToTelegramHTML(text),
		"parse_mode": "HTML",
	}, nil)
	if err == nil || !IsParseError(err) {
		return err
	}

	c.logger.Warn("⚠️  HTML parsing failed, retrying without parse_mode", "chat_id", chatID)
	return c.call(ctx, c.httpClient, "sendMessage", map[string]any{
		"chat_id": chatID,
		"text":    StripMarkdown(text),
	}, nil)
}

// SendChatAction shows a transient status such as "typing"
func (c *Client) SendChatAction(ctx context.Context, chatID int64, action string) error {
	return c.call(ctx, c.httpClient, "sendChatAction", map[string]any{
		"chat_id": chatID,
		"action":  action,
	}, nil)
}

var markdownConverter = goldmark.New(goldmark.WithRenderer(telegold.NewRenderer()))

// ToTelegramHTML converts Markdown into the HTML subset Telegram accepts.
// On conversion failure the input is returned unchanged.
func ToTelegramHTML(text string) string {
	var buf bytes.Buffer
	if err := markdownConverter.Convert([]byte(text), &buf); err != nil {
		slog.Warn("⚠️  Markdown conversion failed", "error", err)
		return text
	}
	return strings.TrimSpace(buf.String())
}

var (
	headerPattern = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	linkPattern   = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
)

// StripMarkdown removes Markdown markers for the plain-text fallback
func StripMarkdown(text string) string {
	for _, marker := range []string{"**", "__", "~~", "`"} {
		text = strings.ReplaceAll(text, marker, "")
	}
	text = headerPattern.ReplaceAllString(text, "")
	return linkPattern.ReplaceAllString(text, "$1 ($2)")
}

func redact(err error, token string) error {
	if token == "" {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), token, "<token>"))
}
