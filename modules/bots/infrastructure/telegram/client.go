package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultBaseURL = "https://api.telegram.org"

// ParseBotID extracts the platform's numeric bot id from a bot token of the
// form "<id>:<secret>".
func ParseBotID(token string) (int64, error) {
	idx := strings.IndexByte(token, ':')
	if idx <= 0 {
		return 0, fmt.Errorf("malformed bot token")
	}
	id, err := strconv.ParseInt(token[:idx], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed bot token: %w", err)
	}
	return id, nil
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.http.SetBaseURL(baseURL)
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.http.SetTimeout(timeout)
	}
}

// Client talks to the Bot API with one bot's credential.
type Client struct {
	http  *resty.Client
	token string
}

func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		http:  resty.New().SetBaseURL(defaultBaseURL).SetTimeout(30 * time.Second),
		token: token,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
}

func (c *Client) call(ctx context.Context, method string, body any) (json.RawMessage, error) {
	var out apiResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&out).
		SetError(&out).
		Post(fmt.Sprintf("/bot%s/%s", c.token, method))
	if err != nil {
		return nil, fmt.Errorf("bot api %s: %w", method, err)
	}
	if !out.OK {
		return nil, fmt.Errorf("bot api %s: status %d: %s", method, resp.StatusCode(), out.Description)
	}
	return out.Result, nil
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	_, err := c.call(ctx, "sendMessage", map[string]any{
		"chat_id": chatID,
		"text":    text,
	})
	return err
}

func (c *Client) SetWebhook(ctx context.Context, url, secretToken string) error {
	body := map[string]any{"url": url}
	if secretToken != "" {
		body["secret_token"] = secretToken
	}
	_, err := c.call(ctx, "setWebhook", body)
	return err
}

func (c *Client) DeleteWebhook(ctx context.Context) error {
	_, err := c.call(ctx, "deleteWebhook", map[string]any{})
	return err
}

type Me struct {
	ID       int64  `json:"id"`
	IsBot    bool   `json:"is_bot"`
	Username string `json:"username"`
}

// GetMe verifies the credential against the platform and returns the bot's
// identity.
func (c *Client) GetMe(ctx context.Context) (*Me, error) {
	result, err := c.call(ctx, "getMe", map[string]any{})
	if err != nil {
		return nil, err
	}
	var me Me
	if err := json.Unmarshal(result, &me); err != nil {
		return nil, fmt.Errorf("bot api getMe: %w", err)
	}
	return &me, nil
}
