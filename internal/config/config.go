package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/unclebandit/outreach-backend/internal/config/configs"
	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
)

// Config aggregates every section. Nested structs are parsed with their
// envPrefix, e.g. SMTP_SERVER or FOLLOWUP_DAYS.
type Config struct {
	Env string `env:"ENV" envDefault:"prod"`

	Sender   configs.Sender   `envPrefix:"SENDER_"`
	Resend   configs.Resend   `envPrefix:"RESEND_"`
	SMTP     configs.SMTP     `envPrefix:"SMTP_"`
	OpenAI   configs.OpenAI   `envPrefix:"OPENAI_"`
	Campaign configs.Campaign `envPrefix:"CAMPAIGN_"`
	FollowUp configs.FollowUp `envPrefix:"FOLLOWUP_"`
	Psql     configs.Postgres `envPrefix:"PSQL_"`
	SQLite   configs.SQLite   `envPrefix:"SQLITE_"`
	AMQP     configs.AMQP     `envPrefix:"AMQP_"`
	HTTP     configs.HTTP     `envPrefix:"HTTP_"`
	Log      configs.Logger   `envPrefix:"LOG_"`
}

// Load reads an optional .env file and then the process environment.
// It reports whether a .env file was found so callers can log it.
func Load() (Config, bool, error) {
	dotenv := godotenv.Load() == nil

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, dotenv, appErrors.NewConfigError("environment", "parse", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, dotenv, err
	}
	return cfg, dotenv, nil
}

// Validate checks cross-field constraints that env tags cannot express.
func (c Config) Validate() error {
	switch strings.ToLower(c.Campaign.Transport) {
	case "resend":
		if c.Resend.APIKey == "" {
			return appErrors.NewConfigError("RESEND_API_KEY", "required for resend transport", nil)
		}
	case "smtp":
		if !c.SMTP.Configured() {
			return appErrors.NewConfigError("SMTP_USERNAME/SMTP_PASSWORD", "required for smtp transport", nil)
		}
	case "log":
	default:
		return appErrors.NewConfigError("CAMPAIGN_TRANSPORT", fmt.Sprintf("unknown transport %q", c.Campaign.Transport), nil)
	}

	if !strings.EqualFold(c.Campaign.Transport, "log") && c.Sender.Email == "" {
		return appErrors.NewConfigError("SENDER_EMAIL", "required", nil)
	}
	if c.Campaign.MaxAttempts < 1 {
		return appErrors.NewConfigError("CAMPAIGN_MAX_ATTEMPTS", "must be at least 1", nil)
	}
	switch c.Campaign.PlaceholderMode {
	case "strict", "permissive":
	default:
		return appErrors.NewConfigError("CAMPAIGN_PLACEHOLDER_MODE", "must be strict or permissive", nil)
	}
	switch c.FollowUp.Mode {
	case "exact", "catchup":
	default:
		return appErrors.NewConfigError("FOLLOWUP_MODE", "must be exact or catchup", nil)
	}
	if len(c.FollowUp.Days) != 3 {
		return appErrors.NewConfigError("FOLLOWUP_DAYS", "exactly three thresholds are required", nil)
	}
	for i := 1; i < len(c.FollowUp.Days); i++ {
		if c.FollowUp.Days[i] <= c.FollowUp.Days[i-1] {
			return appErrors.NewConfigError("FOLLOWUP_DAYS", "thresholds must be strictly increasing", nil)
		}
	}
	if c.FollowUp.Interval <= 0 {
		return appErrors.NewConfigError("FOLLOWUP_INTERVAL", "must be positive", nil)
	}
	if c.Campaign.UseAI && c.OpenAI.APIKey == "" {
		return appErrors.NewConfigError("OPENAI_API_KEY", "required when AI generation is enabled", nil)
	}
	return nil
}
