package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/llmstream/openrouter-bot/internal/stream"
)

// maxMessageLen is the Bot API's single-message character limit.
const maxMessageLen = 4096

// Client implements stream.Delivery over the Telegram Bot API.
type Client struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) MaxMessageLen() int { return maxMessageLen }

type inlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type inlineKeyboardMarkup struct {
	InlineKeyboard [][]inlineKeyboardButton `json:"inline_keyboard"`
}

func markupFor(controls stream.Controls) *inlineKeyboardMarkup {
	switch controls {
	case stream.ControlsCancel:
		return &inlineKeyboardMarkup{InlineKeyboard: [][]inlineKeyboardButton{{
			{Text: "❌ Stop generating", CallbackData: "cancel_stream"},
		}}}
	case stream.ControlsRegenerate:
		return &inlineKeyboardMarkup{InlineKeyboard: [][]inlineKeyboardButton{{
			{Text: "🔄 Regenerate response", CallbackData: "reload"},
		}}}
	}
	return nil
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
	Result      json.RawMessage `json:"result"`
}

func (c *Client) call(ctx context.Context, method string, payload any) (json.RawMessage, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/bot%s/%s", strings.TrimRight(c.BaseURL, "/"), c.Token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var decoded apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}
	if !decoded.OK {
		desc := strings.ToLower(decoded.Description)
		switch {
		case strings.Contains(desc, "can't parse entities"):
			return nil, fmt.Errorf("telegram: %s: %w", decoded.Description, stream.ErrBadMarkup)
		case strings.Contains(desc, "message is not modified"):
			return nil, fmt.Errorf("telegram: %s: %w", decoded.Description, stream.ErrNotModified)
		}
		return nil, fmt.Errorf("telegram: %s (code %d)", decoded.Description, decoded.ErrorCode)
	}
	return decoded.Result, nil
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, controls stream.Controls) (int, error) {
	payload := map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	if m := markupFor(controls); m != nil {
		payload["reply_markup"] = m
	}

	result, err := c.call(ctx, "sendMessage", payload)
	if err != nil {
		return 0, err
	}
	var sent struct {
		MessageID int `json:"message_id"`
	}
	if err := json.Unmarshal(result, &sent); err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (c *Client) EditMessage(ctx context.Context, chatID int64, messageID int, text string, controls stream.Controls) error {
	payload := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
		"parse_mode": "HTML",
	}
	if m := markupFor(controls); m != nil {
		payload["reply_markup"] = m
	}
	_, err := c.call(ctx, "editMessageText", payload)
	return err
}

func (c *Client) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	_, err := c.call(ctx, "deleteMessage", map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
	})
	return err
}

// ClearControls removes the inline keyboard without touching the text.
func (c *Client) ClearControls(ctx context.Context, chatID int64, messageID int) error {
	_, err := c.call(ctx, "editMessageReplyMarkup", map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
	})
	return err
}
