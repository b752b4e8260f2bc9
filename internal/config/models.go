package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// IMAPConfig represents the mailbox connection settings
type IMAPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Folder   string
	Security string
	Timeout  time.Duration
}

// Address returns host:port
func (c IMAPConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// TelegramConfig represents the bot settings
type TelegramConfig struct {
	Token       string
	ChatID      int64
	PollTimeout int
}

// LLMConfig represents the configuration for the LLM provider
type LLMConfig struct {
	Provider string
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
}

// OpenAIConfig represents the configuration for an OpenAI-compatible endpoint
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	ModelName   string
	MaxTokens   int
	Temperature float32
}

// ClassifierConfig holds scoring limits
type ClassifierConfig struct {
	MaxInputChars int
	Timeout       time.Duration
}

// CacheConfig represents the score cache settings
type CacheConfig struct {
	Type             string
	Enabled          bool
	TTL              time.Duration
	CleanupFrequency time.Duration
	SQLitePath       string
	MySQLDSN         string
}

// ScheduleConfig represents the trigger timing
type ScheduleConfig struct {
	RealtimeInterval    time.Duration
	RealtimeConcurrency int
	DailyTime           string
	Timezone            string
}

// GetIMAP returns the mailbox configuration
func (c *Config) GetIMAP() IMAPConfig {
	timeout, err := c.GetDuration("imap.timeout")
	if err != nil {
		timeout = 30 * time.Second
	}
	return IMAPConfig{
		Host:     c.GetString("imap.host"),
		Port:     c.GetInt("imap.port"),
		Username: c.GetString("imap.username"),
		Password: c.GetString("imap.password"),
		Folder:   c.GetString("imap.folder"),
		Security: strings.ToLower(c.GetString("imap.security")),
		Timeout:  timeout,
	}
}

// GetTelegram returns the bot configuration
func (c *Config) GetTelegram() TelegramConfig {
	return TelegramConfig{
		Token:       c.GetString("telegram.token"),
		ChatID:      c.GetInt64("telegram.chat_id"),
		PollTimeout: c.GetInt("telegram.poll_timeout"),
	}
}

// GetLLM returns the LLM configuration
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		Provider: c.GetString("llm.provider"),
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
	}
}

// GetOpenAI returns the OpenAI-compatible endpoint configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		BaseURL:     c.GetString("openai.base_url"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
	}
}

// GetClassifier returns the classifier limits
func (c *Config) GetClassifier() ClassifierConfig {
	timeout, err := c.GetDuration("classifier.timeout")
	if err != nil {
		timeout = 10 * time.Second
	}
	return ClassifierConfig{
		MaxInputChars: c.GetInt("classifier.max_input_chars"),
		Timeout:       timeout,
	}
}

// GetCache returns the score cache configuration
func (c *Config) GetCache() CacheConfig {
	ttl, err := c.GetDuration("cache.ttl")
	if err != nil {
		ttl = 24 * time.Hour
	}
	cleanup, err := c.GetDuration("cache.cleanup_frequency")
	if err != nil {
		cleanup = time.Hour
	}
	return CacheConfig{
		Type:             c.GetString("cache.type"),
		Enabled:          c.GetBool("cache.enabled"),
		TTL:              ttl,
		CleanupFrequency: cleanup,
		SQLitePath:       c.GetString("cache.sqlite_path"),
		MySQLDSN:         c.GetString("cache.mysql_dsn"),
	}
}

// GetSchedule returns the trigger timing
func (c *Config) GetSchedule() ScheduleConfig {
	interval, err := c.GetDuration("schedule.realtime_interval")
	if err != nil {
		interval = 10 * time.Second
	}
	return ScheduleConfig{
		RealtimeInterval:    interval,
		RealtimeConcurrency: c.GetInt("schedule.realtime_concurrency"),
		DailyTime:           c.GetString("schedule.daily_time"),
		Timezone:            c.GetString("schedule.timezone"),
	}
}

// Validate checks the settings the bot cannot start without.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	imapCfg := c.GetIMAP()
	if imapCfg.Host == "" {
		errs = append(errs, errors.New("imap.host is required"))
	}
	if imapCfg.Username == "" || imapCfg.Password == "" {
		errs = append(errs, errors.New("imap.username and imap.password are required"))
	}
	switch imapCfg.Security {
	case "tls", "starttls", "none":
	default:
		errs = append(errs, fmt.Errorf("unsupported imap.security %q", imapCfg.Security))
	}

	if c.GetString("frontend.type") == "telegram" {
		tg := c.GetTelegram()
		if tg.Token == "" {
			errs = append(errs, errors.New("telegram.token is required"))
		}
		if tg.ChatID == 0 {
			errs = append(errs, errors.New("telegram.chat_id is required"))
		}
	}

	switch provider := c.GetLLM().Provider; provider {
	case "openai":
		if c.GetOpenAI().APIKey == "" {
			errs = append(errs, errors.New("openai.api_key is required"))
		}
	case "gemini":
		if c.GetGemini().APIKey == "" {
			errs = append(errs, errors.New("gemini.api_key is required"))
		}
	case "bedrock":
		// credentials come from the AWS default chain
	default:
		errs = append(errs, fmt.Errorf("unsupported llm.provider %q", provider))
	}

	if _, err := c.GetDuration("schedule.realtime_interval"); err != nil {
		errs = append(errs, fmt.Errorf("invalid schedule.realtime_interval: %w", err))
	}
	if _, err := time.Parse("15:04", c.GetString("schedule.daily_time")); err != nil {
		errs = append(errs, fmt.Errorf("invalid schedule.daily_time: %w", err))
	}
	if _, err := time.LoadLocation(c.GetString("schedule.timezone")); err != nil {
		errs = append(errs, fmt.Errorf("invalid schedule.timezone: %w", err))
	}

	return errors.Join(errs...)
}
