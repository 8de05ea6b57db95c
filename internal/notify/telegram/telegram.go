// Package telegram delivers notifications through the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/JakeFAU/gameresult-crawler/internal/notify"
)

// Name identifies the channel.
const Name = "telegram"

// DefaultAPIBaseURL is the public Bot API endpoint.
const DefaultAPIBaseURL = "https://api.telegram.org"

// Config holds bot credentials.
type Config struct {
	BotToken   string
	ChatID     string
	APIBaseURL string
	Timeout    time.Duration
}

// Channel sends Markdown messages to one chat.
type Channel struct {
	cfg    Config
	client *resty.Client
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// New builds a Channel.
func New(cfg Config) *Channel {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultAPIBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	client := resty.New().
		SetBaseURL(cfg.APIBaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")
	return &Channel{cfg: cfg, client: client}
}

// Name implements notify.Channel.
func (c *Channel) Name() string { return Name }

// Configured implements notify.Channel.
func (c *Channel) Configured() bool {
	return c.cfg.BotToken != "" && c.cfg.ChatID != ""
}

// Send posts msg.Text to the configured chat.
func (c *Channel) Send(ctx context.Context, msg notify.Message) error {
	var out apiResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(sendMessageRequest{ChatID: c.cfg.ChatID, Text: msg.Text, ParseMode: "Markdown"}).
		SetResult(&out).
		SetError(&out).
		Post("/bot" + c.cfg.BotToken + "/sendMessage")
	if err != nil {
		return fmt.Errorf("telegram sendMessage: %w", redact(err))
	}
	if resp.IsError() || !out.OK {
		return fmt.Errorf("telegram sendMessage: status %d: %s", resp.StatusCode(), out.Description)
	}
	return nil
}

// redact drops the request URL, which embeds the bot token.
func redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
