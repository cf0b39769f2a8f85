package configs

import "time"

// Resend holds the transactional API settings.
type Resend struct {
	APIKey  string        `env:"API_KEY"`
	BaseURL string        `env:"BASE_URL" envDefault:"https://api.resend.com"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"15s"`
}

// SMTP holds relay settings. UseSSL selects implicit TLS; otherwise the
// connection is upgraded with STARTTLS.
type SMTP struct {
	Host     string        `env:"SERVER" envDefault:"smtp.strato.de"`
	Port     int           `env:"PORT" envDefault:"465"`
	Username string        `env:"USERNAME"`
	Password string        `env:"PASSWORD"`
	UseSSL   bool          `env:"USE_SSL" envDefault:"true"`
	Timeout  time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

// Configured reports whether credentials are present.
func (s SMTP) Configured() bool {
	return s.Username != "" && s.Password != ""
}

// OpenAI configures optional AI message generation.
type OpenAI struct {
	APIKey      string        `env:"API_KEY"`
	BaseURL     string        `env:"BASE_URL" envDefault:"https://api.openai.com/v1"`
	Model       string        `env:"MODEL" envDefault:"gpt-4"`
	Temperature float64       `env:"TEMPERATURE" envDefault:"0.7"`
	Timeout     time.Duration `env:"TIMEOUT" envDefault:"60s"`
}

// AMQP configures the RabbitMQ connection used for campaign jobs. With an
// empty URL the server runs jobs in process.
type AMQP struct {
	URL        string `env:"URL"`
	MaxRetries int    `env:"MAX_RETRIES" envDefault:"3"`
}
