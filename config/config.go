package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable, e.g. MEDREMIND_TIMEZONE.
const Prefix = "MEDREMIND"

type Config struct {
	TelegramToken string `envconfig:"TELEGRAM_TOKEN"`
	WebhookURL    string `envconfig:"WEBHOOK_URL"`
	ServerPort    string `envconfig:"SERVER_PORT" default:"8080"`

	// Storage: sqlite (default) or postgres. DemoMode keeps everything in memory.
	DBDriver     string `envconfig:"DB_DRIVER" default:"sqlite"`
	DatabasePath string `envconfig:"DATABASE_PATH" default:"./data/medremind.db"`
	PostgresDSN  string `envconfig:"POSTGRES_DSN"`
	DemoMode     bool   `envconfig:"DEMO_MODE" default:"false"`

	TimezoneName string         `envconfig:"TIMEZONE" default:"Asia/Kolkata"`
	Timezone     *time.Location `ignored:"true"`
	MorningTime  string         `envconfig:"MORNING_TIME" default:"08:00"`
	EveningTime  string         `envconfig:"EVENING_TIME" default:"21:00"`

	APIUsername string `envconfig:"API_USERNAME"`
	APIPassword string `envconfig:"API_PASSWORD"`

	EarlyWarning        time.Duration `envconfig:"EARLY_WARNING" default:"15m"`
	SnoozeDefault       time.Duration `envconfig:"SNOOZE_DEFAULT" default:"10m"`
	ReminderExpireAfter time.Duration `envconfig:"REMINDER_EXPIRE_AFTER" default:"2h"`
	ExpiryWarnDays      int           `envconfig:"EXPIRY_WARN_DAYS" default:"7"`
	StockWarnDays       int           `envconfig:"STOCK_WARN_DAYS" default:"7"`

	TTSURL    string `envconfig:"TTS_URL"`
	TTSAPIKey string `envconfig:"TTS_API_KEY"`
	OCRURL    string `envconfig:"OCR_URL" default:"https://api.ocr.space/parse/image"`
	OCRAPIKey string `envconfig:"OCR_API_KEY"`
	SMSURL    string `envconfig:"SMS_URL"`
	SMSAPIKey string `envconfig:"SMS_API_KEY"`

	CalDAVURL      string `envconfig:"CALDAV_URL"`
	CalDAVUsername string `envconfig:"CALDAV_USERNAME"`
	CalDAVPassword string `envconfig:"CALDAV_PASSWORD"`
	CalDAVCalendar string `envconfig:"CALDAV_CALENDAR"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	tz, err := time.LoadLocation(c.TimezoneName)
	if err != nil {
		return fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	c.Timezone = tz

	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	switch c.DBDriver {
	case "sqlite":
	case "postgres":
		if c.PostgresDSN == "" && !c.DemoMode {
			return fmt.Errorf("POSTGRES_DSN is required for DB_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}

	for name, v := range map[string]string{"MORNING_TIME": c.MorningTime, "EVENING_TIME": c.EveningTime} {
		if _, err := time.Parse("15:04", v); err != nil {
			return fmt.Errorf("invalid %s %q: want HH:MM", name, v)
		}
	}

	if c.EarlyWarning < 0 || c.SnoozeDefault <= 0 || c.ReminderExpireAfter <= 0 {
		return fmt.Errorf("reminder durations must be positive")
	}
	return nil
}

// TelegramEnabled reports whether the push platform can be reached.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != ""
}

// APIAuthEnabled reports whether the REST API is protected by Basic Auth.
func (c *Config) APIAuthEnabled() bool {
	return c.APIUsername != "" && c.APIPassword != ""
}

// CronSpec converts "HH:MM" into a five-field cron expression.
func CronSpec(hhmm string) string {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return "0 9 * * *"
	}
	return fmt.Sprintf("%d %d * * *", t.Minute(), t.Hour())
}
