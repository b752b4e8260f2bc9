package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// legacyEnv maps configuration keys to the plain environment variable
// names used by existing deployments.
var legacyEnv = map[string]string{
	"imap.username":    "IMAP_USER",
	"imap.password":    "IMAP_PASS",
	"telegram.token":   "TELEGRAM_TOKEN",
	"telegram.chat_id": "CHAT_ID",
	"openai.api_key":   "OPENROUTER_KEY",
}

// New creates a new configuration instance
func New() (*Config, error) {
	// A missing .env file is fine, values may come from the real environment
	if err := gotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/mail-notifier/")
	v.AddConfigPath("$HOME/.mail-notifier")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	// Set defaults
	setDefaults(v)

	// Environment variables
	bindEnv(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults and environment bindings
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	bindEnv(v)
	return v
}

func bindEnv(v *viper.Viper) {
	v.AutomaticEnv()
	v.SetEnvPrefix("MAIL_NOTIFIER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for key, name := range legacyEnv {
		// The prefixed name wins over the legacy one
		_ = v.BindEnv(key, "MAIL_NOTIFIER_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), name)
	}
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// Mailbox defaults
	v.SetDefault("imap.host", "imap.gmail.com")
	v.SetDefault("imap.port", 993)
	v.SetDefault("imap.username", "")
	v.SetDefault("imap.password", "")
	v.SetDefault("imap.folder", "INBOX")
	v.SetDefault("imap.security", "tls")
	v.SetDefault("imap.timeout", "30s")

	// Chat defaults
	v.SetDefault("frontend.type", "telegram")
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.chat_id", 0)
	v.SetDefault("telegram.poll_timeout", 30)

	// LLM provider defaults
	v.SetDefault("llm.provider", "openai")

	// Bedrock defaults
	v.SetDefault("bedrock.region", "us-east-1")
	v.SetDefault("bedrock.model_id", "anthropic.claude-3-haiku-20240307-v1:0")
	v.SetDefault("bedrock.max_tokens", 16)
	v.SetDefault("bedrock.temperature", 0.0)

	// Gemini defaults
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model_name", "gemini-1.5-flash")
	v.SetDefault("gemini.max_tokens", 16)
	v.SetDefault("gemini.temperature", 0.0)

	// OpenAI-compatible defaults, OpenRouter by default
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("openai.model_name", "deepseek/deepseek-r1-0528:free")
	v.SetDefault("openai.max_tokens", 0)
	v.SetDefault("openai.temperature", 0.0)

	// Classifier defaults
	v.SetDefault("classifier.max_input_chars", 3500)
	v.SetDefault("classifier.timeout", "10s")

	// Priority senders
	v.SetDefault("priority.domains", []string{})

	// Cache defaults
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.cleanup_frequency", "1h")
	v.SetDefault("cache.sqlite_path", "data/score_cache.db")
	v.SetDefault("cache.mysql_dsn", "user:password@tcp(localhost:3306)/mail_notifier")

	// Persistence defaults
	v.SetDefault("state.path", "state.json")
	v.SetDefault("feedback.path", "feedback_data/all_feedback.json")

	// Schedule defaults
	v.SetDefault("schedule.realtime_interval", "10s")
	v.SetDefault("schedule.realtime_concurrency", 3)
	v.SetDefault("schedule.daily_time", "08:00")
	v.SetDefault("schedule.timezone", "Europe/Moscow")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetInt64 gets a 64-bit integer value from the configuration
func (c *Config) GetInt64(key string) int64 {
	return c.v.GetInt64(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	return time.ParseDuration(c.GetString(key))
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
