package di

import (
	"github.com/spf13/afero"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/mail-notifier/internal/adapters/cache"
	"github.com/mikey/mail-notifier/internal/adapters/mailbox"
	"github.com/mikey/mail-notifier/internal/config"
	"github.com/mikey/mail-notifier/internal/core"
	"github.com/mikey/mail-notifier/internal/factory"
	"github.com/mikey/mail-notifier/internal/feedback"
	"github.com/mikey/mail-notifier/internal/logging"
	"github.com/mikey/mail-notifier/internal/ports"
	"github.com/mikey/mail-notifier/internal/scheduler"
	"github.com/mikey/mail-notifier/internal/state"
	"github.com/mikey/mail-notifier/internal/utils"
	"github.com/mikey/mail-notifier/internal/whitelist"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration, refusing to start without the required settings
	if err := container.Provide(func() (*config.Config, error) {
		cfg, err := config.New()
		if err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewLLMFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewCacheFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewFrontendFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewTextProcessorFactory); err != nil {
		return nil, err
	}

	// Register text processor
	if err := container.Provide(func(f *factory.TextProcessorFactory) *utils.TextProcessor {
		return f.CreateTextProcessor()
	}); err != nil {
		return nil, err
	}

	// Register LLM client
	if err := container.Provide(func(f *factory.LLMFactory) (core.LLMClient, error) {
		return f.CreateLLMClient()
	}); err != nil {
		return nil, err
	}

	// Register score cache
	if err := container.Provide(func(f *factory.CacheFactory) (cache.Cache, error) {
		return f.CreateCache()
	}); err != nil {
		return nil, err
	}

	// Register priority senders
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) *whitelist.Checker {
		domains := cfg.GetStringSlice("priority.domains")
		if len(domains) > 0 {
			logger.Info("Loaded priority senders", zap.Strings("domains", domains))
		}
		return whitelist.NewChecker(domains, logger)
	}); err != nil {
		return nil, err
	}

	// Register classifier and importance scoring
	if err := container.Provide(func(llm core.LLMClient, cfg *config.Config, logger *zap.Logger) *core.Classifier {
		cc := cfg.GetClassifier()
		return core.NewClassifier(llm, logger.Named("classifier"), cc.MaxInputChars, cc.Timeout)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(
		classifier *core.Classifier,
		scoreCache cache.Cache,
		senders *whitelist.Checker,
		f *factory.CacheFactory,
		logger *zap.Logger,
	) *core.ImportanceService {
		return core.NewImportanceService(classifier, scoreCache, senders, logger, f.IsCacheEnabled(), f.GetCacheTTL())
	}); err != nil {
		return nil, err
	}

	// Register mailbox
	if err := container.Provide(func(cfg *config.Config, text *utils.TextProcessor, logger *zap.Logger) core.Mailbox {
		logger = logger.Named("mailbox")
		return mailbox.NewIMAPMailbox(cfg.GetIMAP(), mailbox.NewParser(text, logger), logger)
	}); err != nil {
		return nil, err
	}

	// Register persisted state and feedback log
	if err := container.Provide(afero.NewOsFs); err != nil {
		return nil, err
	}
	if err := container.Provide(func(fs afero.Fs, cfg *config.Config, logger *zap.Logger) (*state.Store, error) {
		return state.Open(state.NewFilePersister(fs, cfg.GetString("state.path")), logger.Named("state"))
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(fs afero.Fs, cfg *config.Config, store *state.Store, logger *zap.Logger) *feedback.Recorder {
		log := feedback.NewLog(fs, cfg.GetString("feedback.path"))
		return feedback.NewRecorder(log, store, logger.Named("feedback"))
	}); err != nil {
		return nil, err
	}

	// Register messenger
	if err := container.Provide(func(f *factory.FrontendFactory) (core.Messenger, error) {
		return f.CreateMessenger()
	}); err != nil {
		return nil, err
	}

	// Register pipeline
	if err := container.Provide(func(
		messenger core.Messenger,
		store *state.Store,
		scorer *core.ImportanceService,
		logger *zap.Logger,
	) *core.Dispatcher {
		return core.NewDispatcher(messenger, store, scorer, logger.Named("dispatcher"))
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(
		mb core.Mailbox,
		store *state.Store,
		dispatcher *core.Dispatcher,
		logger *zap.Logger,
	) *core.NotifierService {
		return core.NewNotifierService(mb, store, dispatcher, logger.Named("notifier"))
	}); err != nil {
		return nil, err
	}

	// Register scheduler
	if err := container.Provide(func(
		svc *core.NotifierService,
		store *state.Store,
		cfg *config.Config,
		logger *zap.Logger,
	) *scheduler.Scheduler {
		return scheduler.New(svc, store, cfg.GetSchedule(), logger)
	}); err != nil {
		return nil, err
	}

	// Register chat frontend
	if err := container.Provide(func(
		f *factory.FrontendFactory,
		_ core.Messenger,
		svc *core.NotifierService,
		store *state.Store,
		recorder *feedback.Recorder,
		sched *scheduler.Scheduler,
	) (ports.ChatFrontend, error) {
		return f.CreateFrontend(svc, store, recorder, sched)
	}); err != nil {
		return nil, err
	}

	return container, nil
}
