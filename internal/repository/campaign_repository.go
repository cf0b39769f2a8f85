package repository

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/unclebandit/outreach-backend/internal/db"
	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
)

type RunRepositoryInterface interface {
	Create(ctx context.Context, run *model.RunRecord) error
	UpdateStatus(ctx context.Context, id, status string) error
	Finish(ctx context.Context, summary *model.CampaignSummary) error
	GetByID(ctx context.Context, id string) (*model.RunRecord, error)
	List(ctx context.Context, offset, limit int) ([]*model.RunRecord, int, error)
}

type RunRepository struct {
	store
}

func NewRunRepository(h *db.Handle) *RunRepository {
	return &RunRepository{store{h: h}}
}

func (r *RunRepository) Create(ctx context.Context, run *model.RunRecord) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = model.RunQueued
	}
	query := `
        INSERT INTO campaign_runs (id, status, total, sent, failed, skipped, halt_reason, created_at)
        VALUES (?, ?, ?, 0, 0, 0, '', ?)
    `
	_, err := r.h.DB.ExecContext(ctx, r.q(query), run.ID, run.Status, run.Total, r.timeArg(run.CreatedAt))
	return err
}

func (r *RunRepository) UpdateStatus(ctx context.Context, id, status string) error {
	res, err := r.h.DB.ExecContext(ctx, r.q(`UPDATE campaign_runs SET status = ? WHERE id = ?`), status, id)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

// Finish copies the final counters onto the run header.
func (r *RunRepository) Finish(ctx context.Context, s *model.CampaignSummary) error {
	query := `
        UPDATE campaign_runs
        SET status = ?, total = ?, sent = ?, failed = ?, skipped = ?, halt_reason = ?, finished_at = ?
        WHERE id = ?
    `
	res, err := r.h.DB.ExecContext(ctx, r.q(query),
		s.Status(), s.Total, s.Sent, s.Failed, s.Skipped, s.HaltReason, r.timeArg(time.Now()), s.RunID)
	if err != nil {
		return err
	}
	return requireRow(res, s.RunID)
}

func (r *RunRepository) GetByID(ctx context.Context, id string) (*model.RunRecord, error) {
	query := `
        SELECT id, status, total, sent, failed, skipped, halt_reason, created_at, finished_at
        FROM campaign_runs WHERE id = ?
    `
	run, err := scanRun(r.h.DB.QueryRowContext(ctx, r.q(query), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewRunNotFound(id)
		}
		return nil, err
	}
	return run, nil
}

func (r *RunRepository) List(ctx context.Context, offset, limit int) ([]*model.RunRecord, int, error) {
	query := `
        SELECT id, status, total, sent, failed, skipped, halt_reason, created_at, finished_at
        FROM campaign_runs ORDER BY created_at DESC LIMIT ? OFFSET ?
    `
	rows, err := r.h.DB.QueryContext(ctx, r.q(query), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	runs := []*model.RunRecord{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.h.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaign_runs`).Scan(&total); err != nil {
		return nil, 0, err
	}
	return runs, total, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.RunRecord, error) {
	var run model.RunRecord
	var created, finished any
	if err := row.Scan(&run.ID, &run.Status, &run.Total, &run.Sent, &run.Failed, &run.Skipped,
		&run.HaltReason, &created, &finished); err != nil {
		return nil, err
	}
	var err error
	if run.CreatedAt, err = scanTime(created); err != nil {
		return nil, err
	}
	if finished != nil {
		t, err := scanTime(finished)
		if err != nil {
			return nil, err
		}
		run.FinishedAt = &t
	}
	return &run, nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return appErrors.NewRunNotFound(id)
	}
	return nil
}

// MemoryRunRepository backs the server when no database is configured.
type MemoryRunRepository struct {
	mu    sync.RWMutex
	runs  map[string]*model.RunRecord
	order []string
}

func NewMemoryRunRepository() *MemoryRunRepository {
	return &MemoryRunRepository{runs: make(map[string]*model.RunRecord)}
}

func (m *MemoryRunRepository) Create(_ context.Context, run *model.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = model.RunQueued
	}
	cp := *run
	m.runs[run.ID] = &cp
	m.order = append(m.order, run.ID)
	return nil
}

func (m *MemoryRunRepository) UpdateStatus(_ context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return appErrors.NewRunNotFound(id)
	}
	run.Status = status
	return nil
}

func (m *MemoryRunRepository) Finish(_ context.Context, s *model.CampaignSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[s.RunID]
	if !ok {
		return appErrors.NewRunNotFound(s.RunID)
	}
	now := time.Now().UTC()
	run.Status = s.Status()
	run.Total, run.Sent, run.Failed, run.Skipped = s.Total, s.Sent, s.Failed, s.Skipped
	run.HaltReason = s.HaltReason
	run.FinishedAt = &now
	return nil
}

func (m *MemoryRunRepository) GetByID(_ context.Context, id string) (*model.RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, appErrors.NewRunNotFound(id)
	}
	cp := *run
	return &cp, nil
}

func (m *MemoryRunRepository) List(_ context.Context, offset, limit int) ([]*model.RunRecord, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	runs := []*model.RunRecord{}
	// newest first
	for i := len(m.order) - 1 - offset; i >= 0 && len(runs) < limit; i-- {
		cp := *m.runs[m.order[i]]
		runs = append(runs, &cp)
	}
	return runs, len(m.order), nil
}
