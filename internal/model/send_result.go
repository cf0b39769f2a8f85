// internal/model/send_result.go
package model

import "time"

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

type SendResult struct {
	ID         int       `db:"id" json:"id,omitempty"`
	RunID      string    `db:"run_id" json:"run_id,omitempty"`
	Recipient  string    `db:"recipient" json:"email"`
	Company    string    `db:"company" json:"company"`
	Status     string    `db:"status" json:"status"` // sent, failed
	Timestamp  time.Time `db:"sent_at" json:"timestamp"`
	TemplateID string    `db:"template_id" json:"template"`
	VariantID  string    `db:"variant_id" json:"variant,omitempty"`
	Tier       string    `db:"tier" json:"tier,omitempty"` // empty for first contact
	Attempts   int       `db:"attempts" json:"attempts"`
	LastError  string    `db:"last_error" json:"last_error,omitempty"`
}

func (r SendResult) IsFirstContact() bool {
	return r.Tier == ""
}
