// Package template loads outreach templates and routes contacts to them.
package template

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
)

// Follow-up tiers in escalation order.
const (
	TierDay3  = "day_3"
	TierDay7  = "day_7"
	TierDay14 = "day_14"
)

// RequiredCategories must all be present in a template document.
var RequiredCategories = []string{model.CategoryFinance, model.CategoryTechnical, model.CategoryLeadership}

// FollowUp is a single-section message sent on a follow-up tier.
type FollowUp struct {
	Tier    string `yaml:"-"`
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

// Store is read-only after Load.
type Store struct {
	templates map[string]model.Template
	followUps map[string]FollowUp
}

type document struct {
	Templates map[string]model.Template `yaml:"templates"`
	FollowUps map[string]FollowUp       `yaml:"follow_ups"`
}

// LoadFile reads the template document at path.
func LoadFile(path string) (*Store, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, appErrors.NewConfigError(path, "read template file", err)
	}
	return load(path, bytes.NewReader(raw))
}

// Load parses a template document from r.
func Load(r io.Reader) (*Store, error) {
	return load("templates", r)
}

func load(source string, r io.Reader) (*Store, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, appErrors.NewConfigError(source, "decode yaml", err)
	}
	if len(doc.Templates) == 0 {
		return nil, appErrors.NewConfigError(source, "missing templates section", nil)
	}

	s := &Store{
		templates: make(map[string]model.Template, len(doc.Templates)),
		followUps: DefaultFollowUps(),
	}

	for category, tpl := range doc.Templates {
		if err := validate(category, tpl); err != nil {
			return nil, appErrors.NewConfigError(source, err.Error(), nil)
		}
		tpl.Category = category
		s.templates[category] = tpl
	}
	for _, category := range RequiredCategories {
		if _, ok := s.templates[category]; !ok {
			return nil, appErrors.NewConfigError(source, fmt.Sprintf("missing template for category %q", category), nil)
		}
	}

	for tier, fu := range doc.FollowUps {
		if _, ok := s.followUps[tier]; !ok {
			return nil, appErrors.NewConfigError(source, fmt.Sprintf("unknown follow-up tier %q", tier), nil)
		}
		if strings.TrimSpace(fu.Subject) == "" || strings.TrimSpace(fu.Body) == "" {
			return nil, appErrors.NewConfigError(source, fmt.Sprintf("follow-up %q needs subject and body", tier), nil)
		}
		fu.Tier = tier
		s.followUps[tier] = fu
	}

	return s, nil
}

func validate(category string, tpl model.Template) error {
	if strings.TrimSpace(tpl.ID) == "" {
		return fmt.Errorf("template %q: missing id", category)
	}
	if len(tpl.SubjectVariants) == 0 {
		return fmt.Errorf("template %q: subject_variants must not be empty", category)
	}
	for i, v := range tpl.SubjectVariants {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("template %q: subject variant %d is blank", category, i)
		}
	}
	if len(tpl.Message) == 0 {
		return fmt.Errorf("template %q: message must not be empty", category)
	}
	return nil
}

// Template returns the template for a role category.
func (s *Store) Template(category string) (model.Template, bool) {
	tpl, ok := s.templates[category]
	return tpl, ok
}

// Categories lists the loaded categories in sorted order.
func (s *Store) Categories() []string {
	out := make([]string, 0, len(s.templates))
	for c := range s.templates {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// FollowUp returns the message for a tier.
func (s *Store) FollowUp(tier string) (FollowUp, bool) {
	fu, ok := s.followUps[tier]
	return fu, ok
}

// DefaultFollowUps are used for any tier the document does not override.
func DefaultFollowUps() map[string]FollowUp {
	return map[string]FollowUp{
		TierDay3: {
			Tier:    TierDay3,
			Subject: "{{first_name}}, kurze Nachfrage zu {{company_name}}",
			Body: `Hallo {{first_name}},

ich wollte nur kurz nachhaken – hatten Sie Gelegenheit, über meine Nachricht nachzudenken?

Falls der Zeitpunkt gerade ungünstig ist: Wann wäre ein besserer Moment für ein kurzes Gespräch?

Beste Grüße,
{{sender_name}}
{{sender_title}}`,
		},
		TierDay7: {
			Tier:    TierDay7,
			Subject: "{{first_name}}, konkretes Angebot für {{company_name}}",
			Body: `Hallo {{first_name}},

ich verstehe – Sie haben viel um die Ohren.

Lassen Sie mich konkret werden: Ich schicke Ihnen einen 2-Minuten-ROI-Rechner, den Sie selbst ausfüllen können.

Für {{company_name}} bedeutet das typischerweise:
• 15+ Stunden Zeitersparnis pro Monat
• 40% Kostenreduktion in der Verwaltung
• ROI in 6-9 Monaten

Interesse? Einfach mit "Ja" antworten.

Grüße,
{{sender_name}}`,
		},
		TierDay14: {
			Tier:    TierDay14,
			Subject: "Letzte Nachricht: {{company_name}}",
			Body: `Hallo {{first_name}},

ich möchte nicht drängeln – dies ist meine letzte Nachricht zu diesem Thema.

Falls sich in Zukunft etwas ändert und das Thema Prozessautomatisierung relevant wird, melden Sie sich gerne.

Alles Gute für {{company_name}}!

{{sender_name}}
{{sender_title}}`,
		},
	}
}
