package configs

import "fmt"

// Sender identifies who outreach mail comes from.
type Sender struct {
	Email   string `env:"EMAIL"`
	Name    string `env:"NAME" envDefault:"Luis Schenk"`
	Title   string `env:"TITLE" envDefault:"Board of Directors"`
	Company string `env:"COMPANY" envDefault:"SBS Deutschland GmbH"`
}

// From renders the RFC 5322 display form.
func (s Sender) From() string {
	if s.Name == "" {
		return s.Email
	}
	return fmt.Sprintf("%s <%s>", s.Name, s.Email)
}
