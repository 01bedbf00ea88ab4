package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
)

type StoreDriver string

const (
	StoreSQLite StoreDriver = "sqlite"
	StoreFile   StoreDriver = "file"
)

type RecordsDriver string

const (
	RecordsYAML     RecordsDriver = "yaml"
	RecordsPostgres RecordsDriver = "postgres"
)

type Config struct {
	// HTTP
	HTTPAddr   string `env:"HTTP_ADDR" envDefault:":8080"`
	MCPEnabled bool   `env:"MCP_ENABLED" envDefault:"true"`

	// Document store
	StoreDriver StoreDriver `env:"STORE_DRIVER" envDefault:"sqlite"`
	StorePath   string      `env:"STORE_PATH" envDefault:"data/documents.db"`

	// Canonical records
	RecordsDriver    RecordsDriver `env:"RECORDS_DRIVER" envDefault:"yaml"`
	RecordsDir       string        `env:"RECORDS_DIR" envDefault:"data/records"`
	DatabaseURL      string        `env:"DATABASE_URL"`
	DatabaseMaxConns int           `env:"DATABASE_MAX_CONNS" envDefault:"10"`

	// Redis (optional): session memory and invalidation signals
	RedisURL                 string        `env:"REDIS_URL"`
	RedisInvalidationChannel string        `env:"REDIS_INVALIDATION_CHANNEL" envDefault:"finadvisor:invalidate"`
	SessionTTL               time.Duration `env:"SESSION_TTL" envDefault:"720h"`

	// Sync and memory
	MemoryMaxTurns int    `env:"MEMORY_MAX_TURNS" envDefault:"10"`
	SyncWorkers    int    `env:"SYNC_WORKERS" envDefault:"4"`
	SyncSchedule   string `env:"SYNC_SCHEDULE" envDefault:"*/30 * * * *"`
	ReportSchedule string `env:"REPORT_SCHEDULE" envDefault:"0 21 * * *"`
	AuditLogPath   string `env:"AUDIT_LOG_PATH" envDefault:"logs/audit.jsonl"`

	// LLM providers
	ProviderTimeout   time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"30s"`
	PreferredProvider string        `env:"PREFERRED_PROVIDER" envDefault:"openai"`
	OpenAIAPIKey      string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL     string        `env:"OPENAI_BASE_URL"`
	OpenAIModel       string        `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	AnthropicAPIKey   string        `env:"ANTHROPIC_API_KEY"`
	AnthropicBaseURL  string        `env:"ANTHROPIC_BASE_URL" envDefault:"https://api.anthropic.com/v1/"`
	AnthropicModel    string        `env:"ANTHROPIC_MODEL" envDefault:"claude-sonnet-4-20250514"`
	GeminiAPIKey      string        `env:"GEMINI_API_KEY"`
	GeminiModel       string        `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`
	YandexOAuthToken  string        `env:"YANDEX_OAUTH_TOKEN"`
	YandexFolderID    string        `env:"YANDEX_FOLDER_ID"`

	// OpenRouter (optional)
	OpenRouterReferrer string `env:"OPENROUTER_REFERRER"`
	OpenRouterTitle    string `env:"OPENROUTER_TITLE"`

	// Telegram (optional). Links are telegram_id:user_id pairs.
	TelegramBotToken  string   `env:"TELEGRAM_BOT_TOKEN"`
	TelegramUserLinks []string `env:"TELEGRAM_USER_LINKS" envSeparator:","`

	// Prompts and context budgets
	SystemPromptPath    string `env:"SYSTEM_PROMPT_PATH" envDefault:"prompts/system_prompt.txt"`
	BudgetFocused       int    `env:"BUDGET_FOCUSED" envDefault:"2000"`
	BudgetBalanced      int    `env:"BUDGET_BALANCED" envDefault:"4000"`
	BudgetComprehensive int    `env:"BUDGET_COMPREHENSIVE" envDefault:"8000"`
	DefaultInsightLevel string `env:"DEFAULT_INSIGHT_LEVEL" envDefault:"balanced"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

func New() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreSQLite, StoreFile:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.RecordsDriver {
	case RecordsYAML:
	case RecordsPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when RECORDS_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unsupported RECORDS_DRIVER %q", c.RecordsDriver)
	}
	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT must be positive")
	}
	if _, err := c.TelegramLinks(); err != nil {
		return err
	}
	return nil
}

// TelegramLinks maps Telegram user ids to advisory user ids.
func (c *Config) TelegramLinks() (map[int64]string, error) {
	out := make(map[int64]string, len(c.TelegramUserLinks))
	for _, pair := range c.TelegramUserLinks {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		tg, user, ok := strings.Cut(pair, ":")
		if !ok || strings.TrimSpace(user) == "" {
			return nil, fmt.Errorf("invalid TELEGRAM_USER_LINKS entry %q", pair)
		}
		id, err := strconv.ParseInt(strings.TrimSpace(tg), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid telegram id in %q: %w", pair, err)
		}
		out[id] = strings.TrimSpace(user)
	}
	return out, nil
}
