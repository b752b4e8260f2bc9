package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/mikey/mail-notifier/internal/config"
	"github.com/mikey/mail-notifier/internal/core"
	"go.uber.org/zap"
)

// Callback payloads of the menu buttons
const (
	cbCheck          = "check"
	cbSettings       = "settings"
	cbBack           = "back"
	cbToggleRealtime = "toggle_realtime"
	cbToggleAuto     = "toggle_auto"
	cbSetInterval    = "set_interval"
	cbSnooze         = "snooze"
)

const (
	welcomeText    = "Mail notifier is ready.\n\nUse the menu button below for quick access."
	mainMenuText   = "Choose an action:"
	settingsText   = "Settings:"
	intervalPrompt = "Enter the new interval (minutes):"
	snoozePrompt   = "Snooze automatic checks for how many minutes?"
	badNumberText  = "Error! Enter a whole number greater than 0"
	autoOffAlert   = "Automatic checks are off!"
	badTokenAlert  = "This button is no longer valid"
	saveFailedText = "Could not save feedback"

	// verdictMarker separates the notification from the verdict line
	verdictMarker = "\n\nVerdict: "
)

// prompt is what the next plain text reply answers
type prompt int

const (
	promptNone prompt = iota
	promptInterval
	promptSnooze
)

// ManualChecker runs an on-demand check
type ManualChecker interface {
	RunManual(ctx context.Context) core.RunReport
}

// SettingsStore is the part of the state store the menus change
type SettingsStore interface {
	Settings() core.Settings
	ToggleAuto() (bool, error)
	ToggleRealtime() (bool, error)
	SetAutoInterval(minutes int) error
	SnoozeUntil(t time.Time) error
}

// FeedbackRecorder stores verdicts from the feedback buttons
type FeedbackRecorder interface {
	RecordToken(ctx context.Context, data string, snapshot string) (core.FeedbackToken, error)
}

// Rescheduler applies a new periodic interval
type Rescheduler interface {
	Reschedule(minutes int) error
}

// Frontend handles commands, menus and feedback buttons of the bot
type Frontend struct {
	bot      botAPI
	client   *Client
	checker  ManualChecker
	settings SettingsStore
	feedback FeedbackRecorder
	sched    Rescheduler
	cfg      config.TelegramConfig
	logger   *zap.Logger
	now      func() time.Time

	// pending is only touched by the update loop
	pending prompt

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewFrontend creates a new Telegram frontend
func NewFrontend(
	bot botAPI,
	client *Client,
	checker ManualChecker,
	settings SettingsStore,
	feedback FeedbackRecorder,
	sched Rescheduler,
	cfg config.TelegramConfig,
	logger *zap.Logger,
) *Frontend {
	return &Frontend{
		bot:      bot,
		client:   client,
		checker:  checker,
		settings: settings,
		feedback: feedback,
		sched:    sched,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Start drops updates queued while the bot was down and starts long polling
func (f *Frontend) Start(ctx context.Context) error {
	if _, err := f.bot.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: true}); err != nil {
		return fmt.Errorf("failed to drop pending updates: %w", err)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = f.cfg.PollTimeout
	updates := f.bot.GetUpdatesChan(u)

	ctx, f.cancel = context.WithCancel(ctx)
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				f.handleUpdate(ctx, update)
			}
		}
	}()

	f.logger.Info("Telegram frontend started", zap.Int64("chat_id", f.cfg.ChatID))
	return nil
}

// Stop stops long polling and waits for the current update to finish
func (f *Frontend) Stop() error {
	f.bot.StopReceivingUpdates()
	if f.cancel != nil {
		f.cancel()
	}
	f.wg.Wait()
	f.logger.Info("Telegram frontend stopped")
	return nil
}

func (f *Frontend) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		cq := update.CallbackQuery
		if cq.Message == nil || cq.Message.Chat == nil || cq.Message.Chat.ID != f.cfg.ChatID {
			f.logger.Debug("Ignoring callback from another chat")
			return
		}
		f.handleCallback(ctx, cq)
	case update.Message != nil:
		msg := update.Message
		if msg.Chat == nil || msg.Chat.ID != f.cfg.ChatID {
			f.logger.Debug("Ignoring message from another chat")
			return
		}
		f.handleMessage(ctx, msg)
	}
}

func (f *Frontend) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.IsCommand() {
		f.pending = promptNone
		switch msg.Command() {
		case "start":
			f.send(ctx, welcomeText, startKeyboard())
			f.showMainMenu(ctx)
		case "check":
			f.logger.Info("Manual check requested via command")
			f.checker.RunManual(ctx)
		}
		return
	}

	switch f.pending {
	case promptInterval:
		f.finishInterval(ctx, msg)
	case promptSnooze:
		f.finishSnooze(ctx, msg)
	}
}

func (f *Frontend) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	messageID := cq.Message.MessageID

	if core.IsFeedbackToken(cq.Data) {
		f.handleFeedback(ctx, cq)
		return
	}

	switch cq.Data {
	case cbCheck:
		f.client.Answer(cq.ID, "", false)
		f.client.Delete(messageID)
		f.logger.Info("Manual check requested via menu")
		f.checker.RunManual(ctx)
	case cbSettings:
		f.client.Answer(cq.ID, "", false)
		f.client.Delete(messageID)
		f.showSettings(ctx)
	case cbBack:
		f.client.Answer(cq.ID, "", false)
		f.client.Delete(messageID)
		f.showMainMenu(ctx)
	case cbToggleRealtime:
		f.client.Answer(cq.ID, "", false)
		on, err := f.settings.ToggleRealtime()
		if err != nil {
			f.logger.Error("Failed to persist realtime flag", zap.Error(err))
		}
		f.client.Delete(messageID)
		f.showSettings(ctx)
		f.send(ctx, "Realtime mode "+onOff(on), startKeyboard())
	case cbToggleAuto:
		f.client.Answer(cq.ID, "", false)
		on, err := f.settings.ToggleAuto()
		if err != nil {
			f.logger.Error("Failed to persist automatic checks flag", zap.Error(err))
		}
		f.client.Delete(messageID)
		f.showSettings(ctx)
		f.send(ctx, "Automatic checks "+onOff(on), startKeyboard())
	case cbSetInterval:
		f.client.Answer(cq.ID, "", false)
		f.client.Delete(messageID)
		f.pending = promptInterval
		f.send(ctx, intervalPrompt, startKeyboard())
	case cbSnooze:
		if s := f.settings.Settings(); !s.AutoEnabled || s.Realtime {
			f.client.Answer(cq.ID, autoOffAlert, true)
			return
		}
		f.client.Answer(cq.ID, "", false)
		f.client.Delete(messageID)
		f.pending = promptSnooze
		f.send(ctx, snoozePrompt, startKeyboard())
	default:
		f.logger.Debug("Unknown callback", zap.String("data", cq.Data))
		f.client.Answer(cq.ID, "", false)
	}
}

// handleFeedback records a verdict and swaps the buttons for a Change
// button, or restores the verdict buttons on Change
func (f *Frontend) handleFeedback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	messageID := cq.Message.MessageID
	text, _, _ := strings.Cut(cq.Message.Text, verdictMarker)

	token, err := core.DecodeFeedbackToken(cq.Data)
	if err != nil {
		f.client.Answer(cq.ID, badTokenAlert, true)
		return
	}

	if token.Action == core.ActionChange {
		f.client.Answer(cq.ID, "", false)
		if err := f.client.EditText(messageID, text, core.FeedbackButtons(token.UID, token.IssuedAt)); err != nil {
			f.logger.Warn("Could not restore feedback buttons", zap.Uint32("uid", token.UID), zap.Error(err))
		}
		return
	}

	token, err = f.feedback.RecordToken(ctx, cq.Data, text)
	switch {
	case errors.Is(err, core.ErrBadFeedbackToken):
		f.client.Answer(cq.ID, badTokenAlert, true)
		return
	case err != nil:
		// The verdict may be partly stored, still show it
		f.client.Answer(cq.ID, saveFailedText, true)
	default:
		f.client.Answer(cq.ID, "", false)
	}

	label, _ := token.Label()
	change := [][]core.Button{{{
		Text: "Change",
		Data: core.NewFeedbackToken(core.ActionChange, token.UID, token.IssuedAt).Encode(),
	}}}
	if err := f.client.EditText(messageID, text+verdictMarker+verdictName(label), change); err != nil {
		f.logger.Warn("Could not show verdict", zap.Uint32("uid", token.UID), zap.Error(err))
	}
}

func (f *Frontend) finishInterval(ctx context.Context, msg *tgbotapi.Message) {
	minutes, ok := parseMinutes(msg.Text)
	if !ok {
		f.send(ctx, badNumberText, startKeyboard())
		return
	}

	if err := f.settings.SetAutoInterval(minutes); err != nil {
		f.logger.Error("Failed to persist interval", zap.Int("minutes", minutes), zap.Error(err))
	}
	if err := f.sched.Reschedule(minutes); err != nil {
		f.logger.Error("Failed to reschedule periodic checks", zap.Error(err))
	}

	f.pending = promptNone
	f.client.Delete(msg.MessageID)
	f.showSettings(ctx)
}

func (f *Frontend) finishSnooze(ctx context.Context, msg *tgbotapi.Message) {
	minutes, ok := parseMinutes(msg.Text)
	if !ok {
		f.send(ctx, badNumberText, startKeyboard())
		return
	}

	until := f.now().Add(time.Duration(minutes) * time.Minute)
	if err := f.settings.SnoozeUntil(until); err != nil {
		f.logger.Error("Failed to persist snooze", zap.Error(err))
	}

	f.pending = promptNone
	f.client.Delete(msg.MessageID)
	f.send(ctx, "Automatic checks snoozed until "+until.Format("15:04"), startKeyboard())
	f.showSettings(ctx)
}

func (f *Frontend) showMainMenu(ctx context.Context) {
	f.send(ctx, mainMenuText, inlineKeyboard([][]core.Button{
		{{Text: "Check mail", Data: cbCheck}},
		{{Text: "Settings", Data: cbSettings}},
	}))
}

func (f *Frontend) showSettings(ctx context.Context) {
	s := f.settings.Settings()

	rows := [][]core.Button{
		{{Text: fmt.Sprintf("Interval: %d min", s.AutoInterval), Data: cbSetInterval}},
	}
	if s.AutoEnabled {
		rows = append(rows, []core.Button{{Text: "Snooze automatic checks", Data: cbSnooze}})
	}
	rows = append(rows,
		[]core.Button{{Text: "Realtime: " + strings.ToUpper(onOff(s.Realtime)), Data: cbToggleRealtime}},
		[]core.Button{{Text: "Auto: " + strings.ToUpper(onOff(s.AutoEnabled)), Data: cbToggleAuto}},
		[]core.Button{{Text: "Back", Data: cbBack}},
	)

	f.send(ctx, settingsText, inlineKeyboard(rows))
}

func (f *Frontend) send(ctx context.Context, text string, markup interface{}) {
	if _, err := f.client.sendText(ctx, text, markup); err != nil {
		f.logger.Error("Failed to send message", zap.Error(err))
	}
}

// parseMinutes accepts a whole number of at least one
func parseMinutes(text string) (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || v < 1 {
		return 0, false
	}
	return v, true
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func verdictName(l core.Label) string {
	if l == core.LabelSpam {
		return "Spam"
	}
	return "Important"
}
