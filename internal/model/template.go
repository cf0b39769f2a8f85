// internal/model/template.go
package model

// Role categories a template can target.
const (
	CategoryFinance    = "finance"
	CategoryTechnical  = "technical"
	CategoryLeadership = "leadership"
)

type Template struct {
	ID              string            `yaml:"id" json:"id"`
	Category        string            `yaml:"category" json:"category"`
	SubjectVariants []string          `yaml:"subject_variants" json:"subject_variants"`
	Message         map[string]string `yaml:"message" json:"message"`
}

// PersonalizedMessage is derived per contact and never mutated.
type PersonalizedMessage struct {
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
	TemplateID string   `json:"template_id"`
	VariantID  string   `json:"variant_id,omitempty"`
	Unresolved []string `json:"unresolved,omitempty"`
}
