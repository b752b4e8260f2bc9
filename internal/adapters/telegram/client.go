package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/mikey/mail-notifier/internal/core"
	"go.uber.org/zap"
)

// maxMessageLength is the Bot API limit for one text message, in characters
const maxMessageLength = 4096

// botAPI is the subset of tgbotapi.BotAPI used by the bot
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Client sends messages to the one configured chat
type Client struct {
	bot    botAPI
	chatID int64
	logger *zap.Logger
}

// NewClient creates a new Telegram client
func NewClient(bot botAPI, chatID int64, logger *zap.Logger) *Client {
	return &Client{
		bot:    bot,
		chatID: chatID,
		logger: logger,
	}
}

// Send delivers a notification. Inline buttons go on the last part of a
// long message; messages without buttons carry the /start keyboard.
func (c *Client) Send(ctx context.Context, n core.Notification) error {
	var markup interface{} = startKeyboard()
	if len(n.Buttons) > 0 {
		markup = inlineKeyboard(n.Buttons)
	}

	parts := splitMessage(n.Text, maxMessageLength)
	for i, part := range parts {
		var m interface{}
		if i == len(parts)-1 {
			m = markup
		}
		if _, err := c.sendText(ctx, part, m); err != nil {
			return err
		}
	}
	return nil
}

// sendText sends one message and returns its id
func (c *Client) sendText(ctx context.Context, text string, markup interface{}) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	msg := tgbotapi.NewMessage(c.chatID, text)
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	sent, err := c.bot.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("failed to send telegram message: %w", err)
	}
	return sent.MessageID, nil
}

// EditText replaces the text and inline buttons of a message
func (c *Client) EditText(messageID int, text string, buttons [][]core.Button) error {
	edit := tgbotapi.NewEditMessageTextAndMarkup(c.chatID, messageID, text, inlineKeyboard(buttons))
	if _, err := c.bot.Request(edit); err != nil {
		return fmt.Errorf("failed to edit message %d: %w", messageID, err)
	}
	return nil
}

// Delete removes a message. Failures are only logged.
func (c *Client) Delete(messageID int) {
	if _, err := c.bot.Request(tgbotapi.NewDeleteMessage(c.chatID, messageID)); err != nil {
		c.logger.Warn("Could not delete message", zap.Int("message_id", messageID), zap.Error(err))
	}
}

// Answer acknowledges a callback query, optionally as an alert popup
func (c *Client) Answer(callbackID, text string, alert bool) {
	cb := tgbotapi.NewCallback(callbackID, text)
	if alert {
		cb = tgbotapi.NewCallbackWithAlert(callbackID, text)
	}
	if _, err := c.bot.Request(cb); err != nil {
		c.logger.Warn("Could not answer callback", zap.String("callback_id", callbackID), zap.Error(err))
	}
}

func inlineKeyboard(rows [][]core.Button) tgbotapi.InlineKeyboardMarkup {
	keyboard := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		keyboard = append(keyboard, buttons)
	}
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: keyboard}
}

// startKeyboard is the persistent reply keyboard with a /start button
func startKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton("/start")))
	kb.ResizeKeyboard = true
	return kb
}

// splitMessage cuts text into parts of at most limit characters,
// preferring line breaks as cut points
func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var parts []string
	for len(runes) > limit {
		cut := limit
		if i := strings.LastIndex(string(runes[:limit]), "\n"); i > 0 {
			cut = len([]rune(string(runes[:limit])[:i]))
		}
		parts = append(parts, string(runes[:cut]))
		runes = []rune(strings.TrimLeft(string(runes[cut:]), "\n"))
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
