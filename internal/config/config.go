package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	ModeWebhook = "webhook"
	ModePolling = "polling"
)

// Config aggregates runtime configuration for the bot and supporting services.
type Config struct {
	Telegram  TelegramConfig
	Database  DatabaseConfig
	Gemini    GeminiConfig
	Chat      ChatConfig
	Redis     RedisConfig
	S3        S3Config
	HTTP      HTTPConfig
	Admin     AdminConfig
	Scheduler SchedulerConfig

	SiteBaseURL  string `env:"SITE_BASE_URL" envDefault:"https://bez-pauzy.ru" validate:"required,url"`
	SupportEmail string `env:"SUPPORT_EMAIL" envDefault:"my@bez-pauzy.ru" validate:"required,email"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=trace debug info warn error"`
	LogPretty    bool   `env:"LOG_PRETTY" envDefault:"false"`
}

type TelegramConfig struct {
	// BotToken may be empty: the transport reports that as a structured failure.
	BotToken      string `env:"TELEGRAM_BOT_TOKEN"`
	APIEndpoint   string `env:"TELEGRAM_API_ENDPOINT" envDefault:"https://api.telegram.org/bot%s/%s" validate:"required,contains=%s"`
	WebhookSecret string `env:"TELEGRAM_WEBHOOK_SECRET"`
	WebhookURL    string `env:"TELEGRAM_WEBHOOK_URL" validate:"omitempty,url"`
	Mode          string `env:"TELEGRAM_MODE" envDefault:"webhook" validate:"oneof=webhook polling"`
	Channel       string `env:"TELEGRAM_CHANNEL"`
}

type DatabaseConfig struct {
	Driver string `env:"DB_DRIVER" envDefault:"mysql" validate:"oneof=mysql sqlite"`
	DSN    string `env:"DB_DSN,required" validate:"required"`
}

type GeminiConfig struct {
	APIKey      string        `env:"GEMINI_API_KEY"`
	Model       string        `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash" validate:"required"`
	Temperature float32       `env:"GEMINI_TEMPERATURE" envDefault:"0.7" validate:"gte=0,lte=2"`
	MaxRetries  int           `env:"GEMINI_MAX_RETRIES" envDefault:"2" validate:"gte=0,lte=10"`
	RetryDelay  time.Duration `env:"GEMINI_RETRY_DELAY" envDefault:"2s"`
	Timeout     time.Duration `env:"GEMINI_TIMEOUT" envDefault:"90s" validate:"gt=0"`
}

type ChatConfig struct {
	InlineWait  time.Duration `env:"CHAT_INLINE_WAIT" envDefault:"3s" validate:"gte=0"`
	MaxInFlight int64         `env:"CHAT_MAX_INFLIGHT" envDefault:"16" validate:"gte=1"`
	RateLimit   int           `env:"CHAT_RATE_LIMIT" envDefault:"20" validate:"gte=0"`
	InitDataTTL time.Duration `env:"INIT_DATA_TTL" envDefault:"24h" validate:"gte=0"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0" validate:"gte=0"`
}

type S3Config struct {
	Endpoint     string `env:"S3_ENDPOINT"`
	Region       string `env:"S3_REGION"`
	AccessKey    string `env:"S3_ACCESS_KEY"`
	SecretKey    string `env:"S3_SECRET_KEY"`
	Bucket       string `env:"S3_BUCKET"`
	UsePathStyle bool   `env:"S3_USE_PATH_STYLE" envDefault:"false"`
	Prefix       string `env:"S3_PREFIX" envDefault:"exports"`
}

// Enabled reports whether export archiving has a bucket to write to.
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

type HTTPConfig struct {
	ListenAddr   string        `env:"HTTP_LISTEN_ADDR" envDefault:":8080" validate:"required"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"90s"`
}

// AdminConfig configures the admin API; it stays disabled without a password.
type AdminConfig struct {
	ListenAddr string `env:"ADMIN_LISTEN_ADDR" envDefault:":8081"`
	Username   string `env:"ADMIN_USERNAME" envDefault:"admin"`
	Password   string `env:"ADMIN_PASSWORD"`
}

type SchedulerConfig struct {
	StaleAfter    time.Duration `env:"QUERY_STALE_AFTER" envDefault:"10m" validate:"gt=0"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m" validate:"gt=0"`
}

// Load reads configuration from the optional env file and the environment.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}
	return Parse()
}

// Parse maps the current environment onto Config and validates it.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.SiteBaseURL = strings.TrimRight(strings.TrimSpace(cfg.SiteBaseURL), "/")
	cfg.Telegram.Channel = normalizeChannel(cfg.Telegram.Channel)
	cfg.Telegram.Mode = strings.ToLower(strings.TrimSpace(cfg.Telegram.Mode))

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}

	var missing []string
	if cfg.S3.Enabled() {
		if cfg.S3.Region == "" {
			missing = append(missing, "S3_REGION")
		}
		if cfg.S3.AccessKey == "" {
			missing = append(missing, "S3_ACCESS_KEY")
		}
		if cfg.S3.SecretKey == "" {
			missing = append(missing, "S3_SECRET_KEY")
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}

	return cfg, nil
}

func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	// Containers usually pass everything through the environment.
	return nil
}

// normalizeChannel accepts "@name", "name", "t.me/name", a full link or a numeric id.
func normalizeChannel(raw string) string {
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "/")
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		if parsed, err := url.Parse(raw); err == nil {
			raw = strings.Trim(parsed.Path, "/")
		}
	}
	raw = strings.TrimPrefix(raw, "t.me/")
	if strings.HasPrefix(raw, "-") || raw == "" {
		return raw
	}
	if raw[0] >= '0' && raw[0] <= '9' {
		return raw
	}
	return "@" + strings.TrimPrefix(raw, "@")
}

// Enabled reports whether the admin API should be started.
func (c AdminConfig) Enabled() bool {
	return c.ListenAddr != "" && c.Password != ""
}
