package di

import (
	"flag"
	"strings"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/mail-notifier/internal/adapters/mailbox"
	"github.com/mikey/mail-notifier/internal/config"
	"github.com/mikey/mail-notifier/internal/core"
	"github.com/mikey/mail-notifier/internal/factory"
	"github.com/mikey/mail-notifier/internal/logging"
	"github.com/mikey/mail-notifier/internal/whitelist"
)

// CLIFlags contains all command line flags for the CLI application
type CLIFlags struct {
	// LLM provider flags
	Provider      string
	Model         string
	APIKey        string
	BaseURL       string
	BedrockRegion string
	MaxTokens     int
	Temperature   float64
	MaxInputChars int

	// Priority senders, comma separated
	Priority string

	// Input flags
	InputFile  string
	Verbose    bool
	JSONLog    bool
	ConfigFile string
}

// ParseFlags parses command line flags and returns a CLIFlags struct
func ParseFlags() *CLIFlags {
	flags := &CLIFlags{}

	// LLM provider flags
	flag.StringVar(&flags.Provider, "provider", "openai", "LLM provider (openai, gemini, bedrock)")
	flag.StringVar(&flags.Model, "model", "", "Model name (provider default if empty)")
	flag.StringVar(&flags.APIKey, "api-key", "", "API key for the provider (OPENROUTER_KEY is used if empty)")
	flag.StringVar(&flags.BaseURL, "base-url", "", "Base URL of an OpenAI-compatible endpoint")
	flag.StringVar(&flags.BedrockRegion, "bedrock-region", "us-east-1", "AWS region for Bedrock")
	flag.IntVar(&flags.MaxTokens, "max-tokens", 0, "Maximum tokens for the reply (0 for provider default)")
	flag.Float64Var(&flags.Temperature, "temperature", 0, "Temperature for LLM generation")
	flag.IntVar(&flags.MaxInputChars, "max-input-chars", 3500, "Maximum characters of the message sent to the LLM")

	flag.StringVar(&flags.Priority, "priority", "", "Comma-separated list of priority sender domains")

	// Input flags
	flag.StringVar(&flags.InputFile, "file", "", "Input email file (use stdin if not specified)")
	flag.BoolVar(&flags.Verbose, "verbose", false, "Enable verbose logging")
	flag.BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")
	flag.StringVar(&flags.ConfigFile, "config", "", "Path to config file (overrides command line flags)")

	flag.Parse()
	return flags
}

// BuildCLIContainer creates and configures a dependency injection container for the CLI application
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		if flags.ConfigFile != "" {
			v := config.NewEmptyViper()
			v.SetConfigFile(flags.ConfigFile)
			if err := v.ReadInConfig(); err != nil {
				return nil, err
			}
			logger.Info("Loaded configuration from file", zap.String("file", v.ConfigFileUsed()))
			return config.NewFromViper(v), nil
		}

		// Create config from command line flags
		return createConfigFromFlags(flags), nil
	}); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewLLMFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewTextProcessorFactory); err != nil {
		return nil, err
	}

	// Register LLM client
	if err := container.Provide(func(f *factory.LLMFactory) (core.LLMClient, error) {
		return f.CreateLLMClient()
	}); err != nil {
		return nil, err
	}

	// Register message parser
	if err := container.Provide(func(f *factory.TextProcessorFactory, logger *zap.Logger) *mailbox.Parser {
		return mailbox.NewParser(f.CreateTextProcessor(), logger)
	}); err != nil {
		return nil, err
	}

	// Register importance scoring with no cache
	if err := container.Provide(func(
		llm core.LLMClient,
		cfg *config.Config,
		logger *zap.Logger,
	) *core.ImportanceService {
		cc := cfg.GetClassifier()
		classifier := core.NewClassifier(llm, logger, cc.MaxInputChars, cc.Timeout)
		senders := whitelist.NewChecker(cfg.GetStringSlice("priority.domains"), logger)
		return core.NewImportanceService(classifier, nil, senders, logger, false, 0)
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// createConfigFromFlags creates a configuration from command line flags
func createConfigFromFlags(flags *CLIFlags) *config.Config {
	v := config.NewEmptyViper()

	v.Set("llm.provider", flags.Provider)
	v.Set("classifier.max_input_chars", flags.MaxInputChars)

	// Set provider-specific configuration, keeping defaults for empty flags
	prefix := flags.Provider
	if flags.Model != "" {
		key := prefix + ".model_name"
		if prefix == "bedrock" {
			key = "bedrock.model_id"
		}
		v.Set(key, flags.Model)
	}
	if flags.APIKey != "" {
		v.Set(prefix+".api_key", flags.APIKey)
	}
	if flags.BaseURL != "" {
		v.Set("openai.base_url", flags.BaseURL)
	}
	if prefix == "bedrock" {
		v.Set("bedrock.region", flags.BedrockRegion)
	}
	v.Set(prefix+".max_tokens", flags.MaxTokens)
	v.Set(prefix+".temperature", flags.Temperature)

	if flags.Priority != "" {
		var domains []string
		for _, d := range strings.Split(flags.Priority, ",") {
			if d = strings.TrimSpace(d); d != "" {
				domains = append(domains, d)
			}
		}
		v.Set("priority.domains", domains)
	}

	return config.NewFromViper(v)
}
