// Package config loads the typed process configuration once at start-up.
package config

import (
	"errors"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/robfig/cron/v3"
)

// Config is the root configuration.
type Config struct {
	AppEnv   string         `yaml:"app_env" env:"APP_ENV" env-default:"production" validate:"oneof=development production test"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Budget   BudgetConfig   `yaml:"budget"`
	Producer ProducerConfig `yaml:"producer"`
	Server   ServerConfig   `yaml:"server"`
	Notify   NotifyConfig   `yaml:"notify"`

	loc *time.Location
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info" validate:"oneof=trace debug info warn error"`
}

// DatabaseConfig holds PostgreSQL settings. An empty URL selects the
// in-memory store.
type DatabaseConfig struct {
	URL      string `yaml:"url"       env:"DATABASE_URL"`
	MaxConns int32  `yaml:"max_conns" env:"DATABASE_MAX_CONNS" env-default:"10" validate:"gte=1"`
}

// RedisConfig holds the optional Redis used for cancel flags and progress
// snapshots shared between processes.
type RedisConfig struct {
	URL         string        `yaml:"url"          env:"REDIS_URL"`
	Prefix      string        `yaml:"prefix"       env:"REDIS_PREFIX"       env-default:"autopilot"`
	ProgressTTL time.Duration `yaml:"progress_ttl" env:"REDIS_PROGRESS_TTL" env-default:"1h"`
	CancelTTL   time.Duration `yaml:"cancel_ttl"   env:"REDIS_CANCEL_TTL"   env-default:"24h"`
}

// ScheduleConfig controls the tick.
type ScheduleConfig struct {
	Timezone      string        `yaml:"timezone"        env:"SCHEDULE_TIMEZONE"        env-default:"Asia/Taipei" validate:"required"`
	TickSpec      string        `yaml:"tick_spec"       env:"SCHEDULE_TICK_SPEC"       env-default:"* * * * *"   validate:"required"`
	InterJobDelay time.Duration `yaml:"inter_job_delay" env:"SCHEDULE_INTER_JOB_DELAY" env-default:"10s"         validate:"gte=0"`
}

// BudgetConfig holds spend limits in local currency. Zero budgets are unlimited.
type BudgetConfig struct {
	DailyBudget      float64 `yaml:"daily_budget"           env:"BUDGET_DAILY"             env-default:"0"   validate:"gte=0"`
	MonthlyBudget    float64 `yaml:"monthly_budget"         env:"BUDGET_MONTHLY"           env-default:"0"   validate:"gte=0"`
	WarningThreshold float64 `yaml:"warning_threshold"      env:"BUDGET_WARNING_THRESHOLD" env-default:"80"  validate:"gte=0,lte=100"`
	PauseOnExceed    bool    `yaml:"pause_on_budget_exceed" env:"BUDGET_PAUSE_ON_EXCEED"   env-default:"false"`
	Currency         string  `yaml:"currency"               env:"BUDGET_CURRENCY"          env-default:"TWD" validate:"required"`
	ExchangeRate     float64 `yaml:"exchange_rate"          env:"BUDGET_EXCHANGE_RATE"     env-default:"32"  validate:"gt=0"`
}

// ProducerConfig configures the content and image services.
type ProducerConfig struct {
	GeminiAPIKey      string        `yaml:"gemini_api_key"      env:"GEMINI_API_KEY"`
	DefaultModel      string        `yaml:"default_model"       env:"PRODUCER_DEFAULT_MODEL"       env-default:"standard"`
	Timeout           time.Duration `yaml:"timeout"             env:"PRODUCER_TIMEOUT"             env-default:"60s" validate:"gt=0"`
	RequestsPerMinute int           `yaml:"requests_per_minute" env:"PRODUCER_REQUESTS_PER_MINUTE" env-default:"10"  validate:"gte=0"`
	Temperature       float32       `yaml:"temperature"         env:"PRODUCER_TEMPERATURE"         env-default:"0.7" validate:"gte=0,lte=2"`
	Tone              string        `yaml:"tone"                env:"PRODUCER_TONE"                env-default:"friendly and informative"`
	Language          string        `yaml:"language"            env:"PRODUCER_LANGUAGE"            env-default:"Traditional Chinese (Taiwan)"`

	ImageAPIURL            string `yaml:"image_api_url"             env:"IMAGE_API_URL"             env-default:"https://api.openai.com/v1" validate:"omitempty,url"`
	ImageAPIKey            string `yaml:"image_api_key"             env:"IMAGE_API_KEY"`
	ImageModel             string `yaml:"image_model"               env:"IMAGE_MODEL"               env-default:"dall-e-3"`
	ImageSize              string `yaml:"image_size"                env:"IMAGE_SIZE"                env-default:"1024x1024"`
	ImageRequestsPerMinute int    `yaml:"image_requests_per_minute" env:"IMAGE_REQUESTS_PER_MINUTE" env-default:"5" validate:"gte=0"`
}

// ImagesEnabled reports whether an image API key is configured.
func (p ProducerConfig) ImagesEnabled() bool {
	return p.ImageAPIKey != ""
}

// ServerConfig holds the admin API settings.
type ServerConfig struct {
	Host               string        `yaml:"host"                  env:"SERVER_HOST"                  env-default:"0.0.0.0"`
	Port               int           `yaml:"port"                  env:"SERVER_PORT"                  env-default:"8080" validate:"gte=1,lte=65535"`
	ReadTimeout        time.Duration `yaml:"read_timeout"          env:"SERVER_READ_TIMEOUT"          env-default:"15s"`
	WriteTimeout       time.Duration `yaml:"write_timeout"         env:"SERVER_WRITE_TIMEOUT"         env-default:"15m"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"      env:"SERVER_SHUTDOWN_TIMEOUT"      env-default:"15s"`
	JWTSecret          string        `yaml:"jwt_secret"            env:"JWT_SECRET"`
	JWTIssuer          string        `yaml:"jwt_issuer"            env:"JWT_ISSUER"                   env-default:"seo-autopilot"`
	TokenTTL           time.Duration `yaml:"token_ttl"             env:"JWT_TTL"                      env-default:"24h"`
	RateLimitPerMinute int           `yaml:"rate_limit_per_minute" env:"SERVER_RATE_LIMIT_PER_MINUTE" env-default:"60" validate:"gte=0"`
	ProgressRetention  time.Duration `yaml:"progress_retention"    env:"SERVER_PROGRESS_RETENTION"    env-default:"15m"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// NotifyConfig holds alert delivery settings.
type NotifyConfig struct {
	WebhookURL string        `yaml:"webhook_url" env:"NOTIFY_WEBHOOK_URL" validate:"omitempty,url"`
	Timeout    time.Duration `yaml:"timeout"     env:"NOTIFY_TIMEOUT"     env-default:"10s"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads path (YAML) when given, otherwise the environment only.
// Environment variables override file values; env-default tags fill the rest.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// Validate checks field ranges and cross-field rules and resolves the timezone.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s failed %q check (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return err
	}

	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return fmt.Errorf("schedule.timezone: %w", err)
	}
	c.loc = loc

	if _, err := cron.ParseStandard(c.Schedule.TickSpec); err != nil {
		return fmt.Errorf("schedule.tick_spec: %w", err)
	}
	if c.Budget.MonthlyBudget > 0 && c.Budget.DailyBudget > c.Budget.MonthlyBudget {
		return fmt.Errorf("budget.daily_budget (%.2f) must not exceed budget.monthly_budget (%.2f)",
			c.Budget.DailyBudget, c.Budget.MonthlyBudget)
	}
	return nil
}

// Location returns the operator timezone. It falls back to UTC before Validate.
func (c *Config) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// IsDevelopment reports whether the process runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}
