package factory

import (
	"fmt"
	"os"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/mikey/mail-notifier/internal/adapters/console"
	"github.com/mikey/mail-notifier/internal/adapters/telegram"
	"github.com/mikey/mail-notifier/internal/config"
	"github.com/mikey/mail-notifier/internal/core"
	"github.com/mikey/mail-notifier/internal/ports"
	"go.uber.org/zap"
)

// FrontendFactory creates the messenger and the chat frontend. Both sides
// of one frontend share a connection, so CreateMessenger must run first.
type FrontendFactory struct {
	cfg    *config.Config
	logger *zap.Logger

	bot     *tgbotapi.BotAPI
	client  *telegram.Client
	console *console.Console
}

// NewFrontendFactory creates a new frontend factory
func NewFrontendFactory(cfg *config.Config, logger *zap.Logger) *FrontendFactory {
	return &FrontendFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateMessenger creates the outbound side of the configured frontend
func (f *FrontendFactory) CreateMessenger() (core.Messenger, error) {
	frontendType := f.cfg.GetString("frontend.type")

	switch frontendType {
	case "telegram":
		tgCfg := f.cfg.GetTelegram()
		bot, err := tgbotapi.NewBotAPI(tgCfg.Token)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Telegram: %w", err)
		}
		f.logger.Info("Authorized on Telegram", zap.String("bot", bot.Self.UserName))

		f.bot = bot
		f.client = telegram.NewClient(bot, tgCfg.ChatID, f.logger.Named("telegram"))
		return f.client, nil
	case "console":
		f.console = console.NewConsole(os.Stdout, f.logger.Named("console"))
		return f.console, nil
	default:
		return nil, fmt.Errorf("unsupported frontend type: %s", frontendType)
	}
}

// CreateFrontend creates the inbound side of the configured frontend
func (f *FrontendFactory) CreateFrontend(
	checker telegram.ManualChecker,
	settings telegram.SettingsStore,
	recorder telegram.FeedbackRecorder,
	sched telegram.Rescheduler,
) (ports.ChatFrontend, error) {
	switch {
	case f.client != nil:
		return telegram.NewFrontend(
			f.bot,
			f.client,
			checker,
			settings,
			recorder,
			sched,
			f.cfg.GetTelegram(),
			f.logger.Named("telegram"),
		), nil
	case f.console != nil:
		return f.console, nil
	default:
		return nil, fmt.Errorf("messenger for frontend %q was not created", f.cfg.GetString("frontend.type"))
	}
}
