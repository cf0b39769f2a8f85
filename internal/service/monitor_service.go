package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/repository"
	"github.com/unclebandit/outreach-backend/internal/transport"
)

// Health thresholds, in percent.
const (
	HealthyRate = 95.0
	WarningRate = 80.0
)

// MonitorService reports delivery health from the ledger and mails alerts.
type MonitorService struct {
	Ledger    repository.Ledger
	Transport transport.Transport
	// Recipient receives alerts; alerts are only logged when empty.
	Recipient string
	Logger    *zap.Logger
	Now       func() time.Time

	mu      sync.Mutex
	alerted bool
}

// Health summarises every ledger row.
func (m *MonitorService) Health(ctx context.Context) (*model.Health, error) {
	rows, err := m.Ledger.List(ctx)
	if err != nil {
		return nil, err
	}
	return Snapshot(rows, m.now()), nil
}

// Snapshot computes health for rows as of now.
func Snapshot(rows []model.SendResult, now time.Time) *model.Health {
	h := &model.Health{Total: len(rows), Status: model.HealthNoData}
	cutoff := now.Add(-24 * time.Hour)
	for _, r := range rows {
		if r.Status == model.StatusSent {
			h.Sent++
		} else {
			h.Failed++
		}
		if r.Timestamp.After(cutoff) {
			h.Last24h++
		}
	}
	if h.Total == 0 {
		return h
	}
	h.SuccessRate = math.Round(float64(h.Sent)/float64(h.Total)*1000) / 10
	switch {
	case h.SuccessRate >= HealthyRate:
		h.Status = model.HealthHealthy
	case h.SuccessRate >= WarningRate:
		h.Status = model.HealthWarning
	default:
		h.Status = model.HealthCritical
	}
	return h
}

// Check computes health and alerts when it turns critical. It stays quiet
// while health remains critical and re-arms once it recovers.
func (m *MonitorService) Check(ctx context.Context) (*model.Health, error) {
	h, err := m.Health(ctx)
	if err != nil {
		return nil, err
	}
	m.logger().Info("health check",
		zap.String("status", h.Status),
		zap.Float64("success_rate", h.SuccessRate),
		zap.Int("total", h.Total))

	m.mu.Lock()
	defer m.mu.Unlock()
	if h.Status != model.HealthCritical {
		m.alerted = false
		return h, nil
	}
	if m.alerted {
		return h, nil
	}
	body := fmt.Sprintf("Success rate dropped to %.1f%%.\nSent: %d\nFailed: %d\nLast 24h: %d",
		h.SuccessRate, h.Sent, h.Failed, h.Last24h)
	if err := m.Alert(ctx, "Outreach health critical", body); err != nil {
		m.logger().Error("health alert failed", zap.Error(err))
		return h, nil
	}
	m.alerted = true
	return h, nil
}

// Alert mails subject and body to the configured recipient.
func (m *MonitorService) Alert(ctx context.Context, subject, body string) error {
	m.logger().Warn("alert", zap.String("subject", subject))
	if m.Recipient == "" || m.Transport == nil {
		return nil
	}
	out := m.Transport.Send(ctx, m.Recipient, "[ALERT] "+subject, body)
	if !out.Accepted {
		return errors.New(out.Error)
	}
	return nil
}

func (m *MonitorService) logger() *zap.Logger {
	if m.Logger == nil {
		return zap.NewNop()
	}
	return m.Logger
}

func (m *MonitorService) now() time.Time {
	if m.Now == nil {
		return time.Now().UTC()
	}
	return m.Now()
}
