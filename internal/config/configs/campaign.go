package configs

import "time"

// Campaign holds dispatcher defaults.
type Campaign struct {
	// Transport is "resend", "smtp" or "log".
	Transport              string        `env:"TRANSPORT" envDefault:"resend"`
	TemplatesPath          string        `env:"TEMPLATES_PATH" envDefault:"config/message_templates.yaml"`
	Delay                  time.Duration `env:"DELAY" envDefault:"120s"`
	ABTest                 bool          `env:"AB_TEST" envDefault:"false"`
	UseAI                  bool          `env:"USE_AI_GENERATION" envDefault:"false"`
	DefaultRole            string        `env:"DEFAULT_ROLE" envDefault:"CEO"`
	MaxAttempts            int           `env:"MAX_ATTEMPTS" envDefault:"1"`
	RetryBackoff           time.Duration `env:"RETRY_BACKOFF" envDefault:"500ms"`
	MaxConsecutiveFailures int           `env:"MAX_CONSECUTIVE_FAILURES" envDefault:"5"`
	// PlaceholderMode is "permissive" or "strict".
	PlaceholderMode string `env:"PLACEHOLDER_MODE" envDefault:"permissive"`
	DefaultIndustry string `env:"DEFAULT_INDUSTRY" envDefault:"Maschinenbau"`
	AlertRecipient  string `env:"ALERT_RECIPIENT"`
}

// FollowUp configures the follow-up cadence.
type FollowUp struct {
	Days     []int         `env:"DAYS" envDefault:"3,7,14" envSeparator:","`
	Mode     string        `env:"MODE" envDefault:"exact"`
	Interval time.Duration `env:"INTERVAL" envDefault:"24h"`
}
