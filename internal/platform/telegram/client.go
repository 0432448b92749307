package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	apperrors "github.com/open-builders/adkamai/internal/common/errors"
	"github.com/open-builders/adkamai/internal/common/logger"
	"github.com/open-builders/adkamai/internal/features/bot/models"
)

// Client adapts the Bot API to the router's Sender, MembershipChecker and GroupPoster.
type Client struct {
	api   *tgbotapi.BotAPI
	group string
	log   zerolog.Logger
}

// NewClient authorizes the bot token. group is a numeric chat id or an @username.
func NewClient(token, group string, debug bool) (*Client, error) {
	return NewClientWithEndpoint(token, group, tgbotapi.APIEndpoint, &http.Client{Timeout: 70 * time.Second}, debug)
}

// NewClientWithEndpoint is NewClient against a custom Bot API server.
func NewClientWithEndpoint(token, group, endpoint string, httpClient *http.Client, debug bool) (*Client, error) {
	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, httpClient)
	if err != nil {
		return nil, apperrors.NewTelegramAPIError("authorize bot", err)
	}
	api.Debug = debug

	c := &Client{api: api, group: strings.TrimSpace(group), log: logger.Component("telegram")}
	c.log.Info().Str("username", api.Self.UserName).Msg("Telegram bot authorized")
	return c, nil
}

func (c *Client) Username() string {
	return c.api.Self.UserName
}

func (c *Client) API() *tgbotapi.BotAPI {
	return c.api
}

func (c *Client) Send(ctx context.Context, chatID int64, msg models.Message) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	cfg := tgbotapi.NewMessage(chatID, msg.Text)
	applyMessage(&cfg, msg)

	sent, err := c.api.Send(cfg)
	if err != nil {
		return 0, apperrors.NewTelegramAPIError("send message", err).WithDetail("chat_id", chatID)
	}
	return sent.MessageID, nil
}

func (c *Client) PostToGroup(ctx context.Context, msg models.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var cfg tgbotapi.MessageConfig
	if id, err := strconv.ParseInt(c.group, 10, 64); err == nil {
		cfg = tgbotapi.NewMessage(id, msg.Text)
	} else {
		cfg = tgbotapi.NewMessageToChannel(c.group, msg.Text)
	}
	applyMessage(&cfg, msg)

	if _, err := c.api.Send(cfg); err != nil {
		return apperrors.NewTelegramAPIError("post to group", err).WithContext("group", c.group)
	}
	return nil
}

// IsMember reports whether userID belongs to the configured group. The Bot API
// call is not context-aware, so ctx only bounds how long the caller waits.
func (c *Client) IsMember(ctx context.Context, userID int64) (bool, error) {
	type result struct {
		member tgbotapi.ChatMember
		err    error
	}
	done := make(chan result, 1)
	go func() {
		m, err := c.api.GetChatMember(tgbotapi.GetChatMemberConfig{ChatConfigWithUser: c.chatWithUser(userID)})
		done <- result{member: m, err: err}
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return false, apperrors.NewTelegramAPIError("get chat member", r.err).WithUserID(userID)
		}
		return isMemberStatus(r.member), nil
	}
}

func (c *Client) chatWithUser(userID int64) tgbotapi.ChatConfigWithUser {
	if id, err := strconv.ParseInt(c.group, 10, 64); err == nil {
		return tgbotapi.ChatConfigWithUser{ChatID: id, UserID: userID}
	}
	username := c.group
	if !strings.HasPrefix(username, "@") {
		username = "@" + username
	}
	return tgbotapi.ChatConfigWithUser{SuperGroupUsername: username, UserID: userID}
}

func isMemberStatus(m tgbotapi.ChatMember) bool {
	switch m.Status {
	case "creator", "administrator", "member":
		return true
	case "restricted":
		return m.IsMember
	default:
		return false
	}
}

// SetWebhook points Telegram at link for update delivery. Telegram echoes
// secret in the X-Telegram-Bot-Api-Secret-Token header of every delivery.
func (c *Client) SetWebhook(link, secret string) error {
	wh, err := tgbotapi.NewWebhook(link)
	if err != nil {
		return fmt.Errorf("build webhook config: %w", err)
	}
	// WebhookConfig has no secret_token field, so the request is built by hand.
	params := tgbotapi.Params{"url": wh.URL.String()}
	params.AddNonEmpty("secret_token", secret)
	if _, err := c.api.MakeRequest("setWebhook", params); err != nil {
		return apperrors.NewTelegramAPIError("set webhook", err)
	}
	return nil
}

// DeleteWebhook switches the bot back to getUpdates delivery.
func (c *Client) DeleteWebhook() error {
	if _, err := c.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return apperrors.NewTelegramAPIError("delete webhook", err)
	}
	return nil
}

func applyMessage(cfg *tgbotapi.MessageConfig, msg models.Message) {
	if msg.HTML {
		cfg.ParseMode = tgbotapi.ModeHTML
	}
	cfg.DisableWebPagePreview = msg.DisableLinkPreviews

	switch {
	case msg.ForceReply:
		cfg.ReplyMarkup = tgbotapi.ForceReply{ForceReply: true, Selective: true}
	case len(msg.Inline) > 0:
		cfg.ReplyMarkup = inlineKeyboard(msg.Inline)
	case len(msg.Menu) > 0:
		cfg.ReplyMarkup = replyKeyboard(msg.Menu)
	}
}

func inlineKeyboard(rows [][]models.InlineButton) tgbotapi.InlineKeyboardMarkup {
	markup := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			switch {
			case b.URL != "":
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
			case b.SwitchQuery != "":
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonSwitch(b.Text, b.SwitchQuery))
			default:
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.CallbackData))
			}
		}
		markup = append(markup, buttons)
	}
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: markup}
}

func replyKeyboard(rows [][]string) tgbotapi.ReplyKeyboardMarkup {
	keyboard := make([][]tgbotapi.KeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.KeyboardButton, 0, len(row))
		for _, label := range row {
			buttons = append(buttons, tgbotapi.NewKeyboardButton(label))
		}
		keyboard = append(keyboard, buttons)
	}
	kb := tgbotapi.NewReplyKeyboard(keyboard...)
	kb.ResizeKeyboard = true
	return kb
}
