package telegram

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/mikey/mail-notifier/internal/config"
	"github.com/mikey/mail-notifier/internal/core"
	"github.com/mikey/mail-notifier/internal/feedback"
	"github.com/mikey/mail-notifier/internal/state"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const testChatID = 42

type countingChecker struct {
	mu    sync.Mutex
	calls int
}

func (c *countingChecker) RunManual(ctx context.Context) core.RunReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return core.RunReport{}
}

type recordingScheduler struct {
	minutes []int
}

func (s *recordingScheduler) Reschedule(minutes int) error {
	s.minutes = append(s.minutes, minutes)
	return nil
}

type harness struct {
	bot      *fakeBot
	frontend *Frontend
	checker  *countingChecker
	store    *state.Store
	log      *feedback.Log
	sched    *recordingScheduler
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	logger := zap.NewNop()
	bot := newFakeBot()
	store := state.NewInMemory(logger)
	log := feedback.NewLog(afero.NewMemMapFs(), "feedback_data/all_feedback.json")
	h := &harness{
		bot:     bot,
		checker: &countingChecker{},
		store:   store,
		log:     log,
		sched:   &recordingScheduler{},
	}
	h.frontend = NewFrontend(
		bot,
		NewClient(bot, testChatID, logger),
		h.checker,
		store,
		feedback.NewRecorder(log, store, logger),
		h.sched,
		config.TelegramConfig{ChatID: testChatID, PollTimeout: 1},
		logger,
	)
	h.frontend.now = func() time.Time { return time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC) }
	return h
}

func (h *harness) handle(u tgbotapi.Update) {
	h.frontend.handleUpdate(context.Background(), u)
}

func commandUpdate(chatID int64, cmd string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 1,
		Chat:      &tgbotapi.Chat{ID: chatID},
		Text:      cmd,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}}
}

func textUpdate(text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 2,
		Chat:      &tgbotapi.Chat{ID: testChatID},
		Text:      text,
	}}
}

func callbackUpdate(data, messageText string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb",
		Data: data,
		Message: &tgbotapi.Message{
			MessageID: 7,
			Chat:      &tgbotapi.Chat{ID: testChatID},
			Text:      messageText,
		},
	}}
}

func TestForeignChatIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.handle(commandUpdate(999, "/check"))
	h.handle(commandUpdate(999, "/start"))

	if h.checker.calls != 0 || len(h.bot.sent) != 0 {
		t.Errorf("foreign chat handled: %d checks, %d messages", h.checker.calls, len(h.bot.sent))
	}
}

func TestStartShowsMenus(t *testing.T) {
	h := newHarness(t)
	h.handle(commandUpdate(testChatID, "/start"))

	texts := h.bot.texts()
	if len(texts) != 2 || texts[0] != welcomeText || texts[1] != mainMenuText {
		t.Fatalf("texts = %q", texts)
	}
	menu, ok := h.bot.sent[1].ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok || *menu.InlineKeyboard[0][0].CallbackData != cbCheck || *menu.InlineKeyboard[1][0].CallbackData != cbSettings {
		t.Errorf("main menu = %#v", h.bot.sent[1].ReplyMarkup)
	}
}

func TestCheckCommandAndButton(t *testing.T) {
	h := newHarness(t)
	h.handle(commandUpdate(testChatID, "/check"))
	h.handle(callbackUpdate(cbCheck, mainMenuText))

	if h.checker.calls != 2 {
		t.Errorf("manual checks = %d, want 2", h.checker.calls)
	}
	if h.bot.deletes() != 1 {
		t.Errorf("deletes = %d, want 1", h.bot.deletes())
	}
}

func TestToggleRealtime(t *testing.T) {
	h := newHarness(t)
	h.handle(callbackUpdate(cbToggleRealtime, settingsText))

	if !h.store.Settings().Realtime {
		t.Error("realtime not enabled")
	}
	texts := h.bot.texts()
	if len(texts) != 2 || texts[0] != settingsText || texts[1] != "Realtime mode on" {
		t.Errorf("texts = %q", texts)
	}
}

func TestSettingsMenuHidesSnoozeWhenAutoOff(t *testing.T) {
	h := newHarness(t)
	if err := h.store.SetAutoEnabled(false); err != nil {
		t.Fatal(err)
	}
	h.handle(callbackUpdate(cbSettings, mainMenuText))

	menu := h.bot.sent[0].ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	for _, row := range menu.InlineKeyboard {
		if *row[0].CallbackData == cbSnooze {
			t.Error("snooze offered while automatic checks are off")
		}
	}
	if len(menu.InlineKeyboard) != 4 {
		t.Errorf("rows = %d, want 4", len(menu.InlineKeyboard))
	}
}

func TestIntervalPrompt(t *testing.T) {
	h := newHarness(t)
	h.handle(callbackUpdate(cbSetInterval, settingsText))
	if h.frontend.pending != promptInterval {
		t.Fatal("interval prompt not pending")
	}

	for _, bad := range []string{"0", "-3", "abc", "1.5"} {
		h.handle(textUpdate(bad))
	}
	if h.frontend.pending != promptInterval {
		t.Fatal("invalid input ended the prompt")
	}

	h.handle(textUpdate(" 15 "))
	if got := h.store.Settings().AutoInterval; got != 15 {
		t.Errorf("interval = %d, want 15", got)
	}
	if len(h.sched.minutes) != 1 || h.sched.minutes[0] != 15 {
		t.Errorf("reschedules = %v", h.sched.minutes)
	}
	if h.frontend.pending != promptNone {
		t.Error("prompt still pending")
	}

	texts := h.bot.texts()
	errorsShown := 0
	for _, text := range texts {
		if text == badNumberText {
			errorsShown++
		}
	}
	if errorsShown != 4 {
		t.Errorf("error replies = %d, want 4", errorsShown)
	}
	if texts[len(texts)-1] != settingsText {
		t.Errorf("last message = %q", texts[len(texts)-1])
	}

	// Plain text without a prompt is ignored
	sent := len(texts)
	h.handle(textUpdate("20"))
	if len(h.bot.texts()) != sent || h.store.Settings().AutoInterval != 15 {
		t.Error("text without a prompt was handled")
	}
}

func TestSnooze(t *testing.T) {
	h := newHarness(t)
	if _, err := h.store.ToggleRealtime(); err != nil {
		t.Fatal(err)
	}

	h.handle(callbackUpdate(cbSnooze, settingsText))
	answers := h.bot.answers()
	if len(answers) != 1 || !answers[0].ShowAlert || answers[0].Text != autoOffAlert {
		t.Fatalf("answers = %+v", answers)
	}
	if h.frontend.pending != promptNone {
		t.Fatal("snooze prompt opened in realtime mode")
	}

	if _, err := h.store.ToggleRealtime(); err != nil {
		t.Fatal(err)
	}
	h.handle(callbackUpdate(cbSnooze, settingsText))
	h.handle(textUpdate("30"))

	until := h.store.Settings().SnoozeUntil
	want := h.frontend.now().Add(30 * time.Minute)
	if until == nil || !until.Equal(want) {
		t.Errorf("snooze until = %v, want %v", until, want)
	}
	if !contains(h.bot.texts(), "Automatic checks snoozed until 09:30") {
		t.Errorf("texts = %q", h.bot.texts())
	}
}

func TestFeedbackSpamThenChange(t *testing.T) {
	h := newHarness(t)
	issued := time.Unix(1700000000, 0)
	text := "[Important] (score 0.90)\nFrom: a@example.com"

	spam := core.NewFeedbackToken(core.ActionSpam, 12, issued).Encode()
	h.handle(callbackUpdate(spam, text))

	if !h.store.IsIgnored(12) {
		t.Error("spam verdict did not ignore the message")
	}
	entries, err := h.log.Entries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Label != core.LabelSpam || entries[0].Email != text {
		t.Fatalf("entries = %+v", entries)
	}

	edits := h.bot.edits()
	if len(edits) != 1 {
		t.Fatalf("edits = %d", len(edits))
	}
	if edits[0].Text != text+"\n\nVerdict: Spam" {
		t.Errorf("edited text = %q", edits[0].Text)
	}
	change := core.NewFeedbackToken(core.ActionChange, 12, issued).Encode()
	if kb := edits[0].ReplyMarkup; kb == nil || *kb.InlineKeyboard[0][0].CallbackData != change {
		t.Errorf("change button = %#v", kb)
	}

	h.handle(callbackUpdate(change, edits[0].Text))
	edits = h.bot.edits()
	if len(edits) != 2 || edits[1].Text != text {
		t.Fatalf("restore edit = %+v", edits)
	}
	if row := edits[1].ReplyMarkup.InlineKeyboard[0]; len(row) != 2 || *row[0].CallbackData != core.NewFeedbackToken(core.ActionImportant, 12, issued).Encode() {
		t.Errorf("restored buttons = %#v", row)
	}
	if entries, _ := h.log.Entries(); len(entries) != 1 {
		t.Errorf("change recorded an entry: %d", len(entries))
	}
}

func TestBadFeedbackToken(t *testing.T) {
	h := newHarness(t)
	for _, data := range []string{"spam_x_1", "important_0_1", "spam_1"} {
		h.handle(callbackUpdate(data, "text"))
	}

	for _, a := range h.bot.answers() {
		if !a.ShowAlert || a.Text != badTokenAlert {
			t.Errorf("answer = %+v", a)
		}
	}
	if len(h.bot.answers()) != 3 {
		t.Errorf("answers = %d, want 3", len(h.bot.answers()))
	}
	if entries, _ := h.log.Entries(); len(entries) != 0 {
		t.Errorf("entries = %d", len(entries))
	}
	if len(h.bot.edits()) != 0 {
		t.Error("message edited for a bad token")
	}
}

func TestStartDropsPendingAndStops(t *testing.T) {
	h := newHarness(t)
	if err := h.frontend.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	h.bot.mu.Lock()
	first, ok := h.bot.requests[0].(tgbotapi.DeleteWebhookConfig)
	h.bot.mu.Unlock()
	if !ok || !first.DropPendingUpdates {
		t.Errorf("first request = %#v", first)
	}

	h.bot.updates <- commandUpdate(testChatID, "/check")
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.checker.mu.Lock()
		calls := h.checker.calls
		h.checker.mu.Unlock()
		if calls == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := h.frontend.Stop(); err != nil {
		t.Fatal(err)
	}
	if !h.bot.stopped {
		t.Error("long polling not stopped")
	}
	if h.checker.calls != 1 {
		t.Errorf("manual checks = %d, want 1", h.checker.calls)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if strings.Contains(v, s) {
			return true
		}
	}
	return false
}
