package template

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/unclebandit/outreach-backend/internal/model"
)

// RoutingRule maps role keywords to a category.
type RoutingRule struct {
	Category string
	Keywords []string
}

// Matches reports whether the lower-cased role contains any keyword.
func (r RoutingRule) Matches(role string) bool {
	for _, k := range r.Keywords {
		if strings.Contains(role, k) {
			return true
		}
	}
	return false
}

// DefaultRules is the routing policy. Order matters: the first matching
// rule wins, so "Technical CFO" routes to finance. Matching is by
// substring, which means "it" also matches roles such as "Digital Lead".
func DefaultRules() []RoutingRule {
	return []RoutingRule{
		{Category: model.CategoryFinance, Keywords: []string{"cfo", "finanz", "controller", "finance"}},
		{Category: model.CategoryTechnical, Keywords: []string{"cto", "it", "technical"}},
	}
}

// Router resolves a role string to a template.
type Router struct {
	Rules    []RoutingRule
	Fallback string
}

func NewRouter() *Router {
	return &Router{Rules: DefaultRules(), Fallback: model.CategoryLeadership}
}

// Category returns the category for role. It is a pure function of the
// lower-cased role.
func (r *Router) Category(role string) string {
	role = strings.ToLower(role)
	for _, rule := range r.Rules {
		if rule.Matches(role) {
			return rule.Category
		}
	}
	return r.Fallback
}

// Select picks the template for role from store.
func (r *Router) Select(role string, store *Store) (model.Template, error) {
	category := r.Category(role)
	tpl, ok := store.Template(category)
	if !ok {
		return model.Template{}, fmt.Errorf("no template for category %q", category)
	}
	return tpl, nil
}

// VariantPicker chooses subject lines for A/B tests. Safe for concurrent use.
type VariantPicker struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewVariantPicker uses rng, or a time-seeded source when rng is nil.
func NewVariantPicker(rng *rand.Rand) *VariantPicker {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &VariantPicker{rng: rng}
}

// Pick returns a uniformly random subject variant and its label.
func (p *VariantPicker) Pick(tpl model.Template) (string, string) {
	if len(tpl.SubjectVariants) == 0 {
		return "", ""
	}
	p.mu.Lock()
	i := p.rng.Intn(len(tpl.SubjectVariants))
	p.mu.Unlock()
	return tpl.SubjectVariants[i], VariantID(i)
}

// Primary returns the first subject variant.
func Primary(tpl model.Template) (string, string) {
	if len(tpl.SubjectVariants) == 0 {
		return "", ""
	}
	return tpl.SubjectVariants[0], VariantID(0)
}

func VariantID(i int) string {
	return fmt.Sprintf("variant_%d", i)
}
