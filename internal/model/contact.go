// internal/model/contact.go
package model

import "strings"

// Contact is one outreach target. Keys are lower-case attribute names
// (email, first_name, company_name, role, industry, ...).
type Contact map[string]string

// Email returns the trimmed email address.
func (c Contact) Email() string {
	return strings.TrimSpace(c["email"])
}

// Get returns the attribute and whether it holds a non-blank value.
func (c Contact) Get(key string) (string, bool) {
	v, ok := c[key]
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

func (c Contact) Company() string {
	if v, ok := c.Get("company_name"); ok {
		return v
	}
	return "Unknown"
}
