package repository

import (
	"context"
	"sync"

	"github.com/unclebandit/outreach-backend/internal/db"
	"github.com/unclebandit/outreach-backend/internal/model"
)

type EventRepositoryInterface interface {
	Append(ctx context.Context, e *model.DeliveryEvent) error
	Summary(ctx context.Context) (*model.EventSummary, error)
}

type EventRepository struct {
	store
}

func NewEventRepository(h *db.Handle) *EventRepository {
	return &EventRepository{store{h: h}}
}

func (r *EventRepository) Append(ctx context.Context, e *model.DeliveryEvent) error {
	query := `
        INSERT INTO delivery_events (received_at, event_type, email_id, recipient, subject, status)
        VALUES (?, ?, ?, ?, ?, ?)
    `
	_, err := r.h.DB.ExecContext(ctx, r.q(query),
		r.timeArg(e.ReceivedAt), e.EventType, e.EmailID, e.To, e.Subject, e.Status)
	return err
}

func (r *EventRepository) Summary(ctx context.Context) (*model.EventSummary, error) {
	sum := &model.EventSummary{ByType: map[string]int{}}

	rows, err := r.h.DB.QueryContext(ctx, `SELECT event_type, COUNT(*) FROM delivery_events GROUP BY event_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, err
		}
		sum.ByType[typ] = n
		sum.TotalEvents += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if sum.TotalEvents == 0 {
		return sum, nil
	}

	var e model.DeliveryEvent
	var ts any
	query := `SELECT id, received_at, event_type, email_id, recipient, subject, status
        FROM delivery_events ORDER BY id DESC LIMIT 1`
	if err := r.h.DB.QueryRowContext(ctx, query).Scan(&e.ID, &ts, &e.EventType, &e.EmailID, &e.To, &e.Subject, &e.Status); err != nil {
		return nil, err
	}
	if e.ReceivedAt, err = scanTime(ts); err != nil {
		return nil, err
	}
	sum.LastEvent = &e
	return sum, nil
}

type MemoryEventRepository struct {
	mu     sync.Mutex
	events []model.DeliveryEvent
}

func NewMemoryEventRepository() *MemoryEventRepository {
	return &MemoryEventRepository{}
}

func (m *MemoryEventRepository) Append(_ context.Context, e *model.DeliveryEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = len(m.events) + 1
	m.events = append(m.events, *e)
	return nil
}

func (m *MemoryEventRepository) Summary(_ context.Context) (*model.EventSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := &model.EventSummary{TotalEvents: len(m.events), ByType: map[string]int{}}
	for _, e := range m.events {
		sum.ByType[e.EventType]++
	}
	if n := len(m.events); n > 0 {
		last := m.events[n-1]
		sum.LastEvent = &last
	}
	return sum, nil
}
