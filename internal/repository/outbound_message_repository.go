package repository

import (
	"context"
	"sync"

	"github.com/unclebandit/outreach-backend/internal/db"
	"github.com/unclebandit/outreach-backend/internal/model"
)

// Ledger is the append-only record of send outcomes. Rows come back in
// insertion order.
type Ledger interface {
	Append(ctx context.Context, r model.SendResult) error
	List(ctx context.Context) ([]model.SendResult, error)
}

// ResultRepository is the SQL ledger, used with either Postgres or SQLite.
type ResultRepository struct {
	store
}

func NewResultRepository(h *db.Handle) *ResultRepository {
	return &ResultRepository{store{h: h}}
}

func (r *ResultRepository) Append(ctx context.Context, res model.SendResult) error {
	query := `
        INSERT INTO send_results
        (run_id, recipient, company, status, sent_at, template_id, variant_id, tier, attempts, last_error)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	_, err := r.h.DB.ExecContext(ctx, r.q(query),
		res.RunID,
		res.Recipient,
		res.Company,
		res.Status,
		r.timeArg(res.Timestamp),
		res.TemplateID,
		res.VariantID,
		res.Tier,
		res.Attempts,
		res.LastError,
	)
	return err
}

func (r *ResultRepository) List(ctx context.Context) ([]model.SendResult, error) {
	return r.list(ctx, `SELECT id, run_id, recipient, company, status, sent_at, template_id, variant_id, tier, attempts, last_error
        FROM send_results ORDER BY id`)
}

// ListByRun returns the rows written by one campaign run.
func (r *ResultRepository) ListByRun(ctx context.Context, runID string) ([]model.SendResult, error) {
	return r.list(ctx, `SELECT id, run_id, recipient, company, status, sent_at, template_id, variant_id, tier, attempts, last_error
        FROM send_results WHERE run_id = ? ORDER BY id`, runID)
}

func (r *ResultRepository) list(ctx context.Context, query string, args ...any) ([]model.SendResult, error) {
	rows, err := r.h.DB.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []model.SendResult{}
	for rows.Next() {
		var res model.SendResult
		var ts any
		if err := rows.Scan(&res.ID, &res.RunID, &res.Recipient, &res.Company, &res.Status, &ts,
			&res.TemplateID, &res.VariantID, &res.Tier, &res.Attempts, &res.LastError); err != nil {
			return nil, err
		}
		if res.Timestamp, err = scanTime(ts); err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// MemoryLedger keeps results in process; used by tests and dry runs.
type MemoryLedger struct {
	mu      sync.RWMutex
	results []model.SendResult
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

func (m *MemoryLedger) Append(_ context.Context, r model.SendResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = len(m.results) + 1
	m.results = append(m.results, r)
	return nil
}

func (m *MemoryLedger) List(_ context.Context) ([]model.SendResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.SendResult, len(m.results))
	copy(out, m.results)
	return out, nil
}
