// internal/service/template_service.go
package service

import (
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/unclebandit/outreach-backend/internal/config/configs"
	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/template"
)

// SectionOrder is the order in which template sections are joined.
var SectionOrder = []string{
	"opening",
	"value_proposition",
	"pain_point",
	"technical_specs",
	"business_case",
	"social_proof",
	"cta",
	"signature",
}

var placeholderPattern = regexp.MustCompile(`\{\{([^{}]*)\}\}`)

// Placeholder is a recognized {{Key}}. The first non-blank contact
// attribute listed in Attributes wins, otherwise Default is used.
type Placeholder struct {
	Key        string
	Attributes []string
	Default    string
}

// DefaultPlaceholders returns the recognized keys with their fallbacks.
func DefaultPlaceholders(sender configs.Sender, industry string) []Placeholder {
	if industry == "" {
		industry = "Maschinenbau"
	}
	return []Placeholder{
		{Key: "first_name", Attributes: []string{"first_name"}},
		{Key: "last_name", Attributes: []string{"last_name"}},
		{Key: "job_title", Attributes: []string{"job_title"}},
		{Key: "company_name", Attributes: []string{"company_name"}},
		{Key: "industry", Attributes: []string{"industry"}, Default: industry},
		{Key: "company_size", Attributes: []string{"company_size"}, Default: "100"},
		{Key: "current_system", Attributes: []string{"current_system"}, Default: "SAP"},
		{Key: "current_erp_system", Attributes: []string{"current_erp_system"}, Default: "DATEV"},
		{Key: "competitor_or_similar", Attributes: []string{"competitor", "competitor_or_similar"}, Default: "führende Unternehmen"},
		{Key: "estimated_revenue", Attributes: []string{"estimated_revenue"}, Default: "50M EUR"},
		{Key: "tech_stack_known", Attributes: []string{"tech_stack", "tech_stack_known"}, Default: "moderne Systeme"},
		{Key: "cloud_vs_onprem", Attributes: []string{"deployment", "cloud_vs_onprem"}, Default: "Hybrid"},
		{Key: "sender_name", Default: sender.Name},
		{Key: "sender_title", Default: sender.Title},
	}
}

// Personalizer fills placeholders in subjects and bodies.
type Personalizer struct {
	Placeholders []Placeholder
	// Strict turns unresolved placeholders into an error instead of a warning.
	Strict bool
	Logger *zap.Logger
}

func NewPersonalizer(placeholders []Placeholder, strict bool, logger *zap.Logger) *Personalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Personalizer{Placeholders: placeholders, Strict: strict, Logger: logger}
}

// AssembleBody joins the template's sections in SectionOrder, skipping
// sections the template does not define.
func AssembleBody(tpl model.Template) string {
	sections := make([]string, 0, len(SectionOrder))
	for _, key := range SectionOrder {
		if text, ok := tpl.Message[key]; ok {
			sections = append(sections, text)
		}
	}
	return strings.Join(sections, "\n\n")
}

// Personalize renders the template's primary subject and assembled body.
func (p *Personalizer) Personalize(tpl model.Template, contact model.Contact) (model.PersonalizedMessage, error) {
	subject, variantID := template.Primary(tpl)
	msg, err := p.PersonalizeText(subject, AssembleBody(tpl), contact)
	if err != nil {
		return msg, err
	}
	msg.TemplateID = tpl.ID
	msg.VariantID = variantID
	return msg, nil
}

// PersonalizeText applies one replacement mapping to subject and body.
func (p *Personalizer) PersonalizeText(subject, body string, contact model.Contact) (model.PersonalizedMessage, error) {
	r := p.replacer(contact)
	msg := model.PersonalizedMessage{
		Subject: r.Replace(subject),
		Body:    r.Replace(body),
	}

	msg.Unresolved = unresolved(msg.Subject, msg.Body)
	if len(msg.Unresolved) > 0 {
		if p.Strict {
			return model.PersonalizedMessage{}, &appErrors.PersonalizationError{Keys: msg.Unresolved}
		}
		p.Logger.Warn("unresolved placeholders left in message",
			zap.String("recipient", contact.Email()),
			zap.Strings("keys", msg.Unresolved))
	}
	return msg, nil
}

// Replacements returns the value for every recognized key.
func (p *Personalizer) Replacements(contact model.Contact) map[string]string {
	out := make(map[string]string, len(p.Placeholders))
	for _, ph := range p.Placeholders {
		out[ph.Key] = ph.resolve(contact)
	}
	return out
}

func (p *Personalizer) replacer(contact model.Contact) *strings.Replacer {
	pairs := make([]string, 0, 2*len(p.Placeholders))
	for _, ph := range p.Placeholders {
		pairs = append(pairs, "{{"+ph.Key+"}}", ph.resolve(contact))
	}
	// single pass: substituted values are never rescanned
	return strings.NewReplacer(pairs...)
}

func (ph Placeholder) resolve(contact model.Contact) string {
	for _, attr := range ph.Attributes {
		if v, ok := contact.Get(attr); ok {
			return v
		}
	}
	return ph.Default
}

func unresolved(texts ...string) []string {
	seen := map[string]bool{}
	for _, t := range texts {
		for _, m := range placeholderPattern.FindAllStringSubmatch(t, -1) {
			seen[m[1]] = true
		}
	}
	if len(seen) == 0 {
		return nil
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
