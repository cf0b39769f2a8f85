// internal/model/event.go
package model

import "time"

// DeliveryEvent is a provider callback (delivered, opened, clicked, bounced).
type DeliveryEvent struct {
	ID         int       `db:"id" json:"id,omitempty"`
	ReceivedAt time.Time `db:"received_at" json:"timestamp"`
	EventType  string    `db:"event_type" json:"event_type"`
	EmailID    string    `db:"email_id" json:"email_id"`
	To         string    `db:"recipient" json:"to"`
	Subject    string    `db:"subject" json:"subject"`
	Status     string    `db:"status" json:"status"`
}

type EventSummary struct {
	TotalEvents int            `json:"total_events"`
	ByType      map[string]int `json:"by_type"`
	LastEvent   *DeliveryEvent `json:"last_event"`
}
