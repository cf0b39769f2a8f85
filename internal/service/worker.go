package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/queue"
)

// RunWorker executes queued campaign runs.
type RunWorker struct {
	Dispatcher *Dispatcher
	Logger     *zap.Logger
}

func NewRunWorker(d *Dispatcher, logger *zap.Logger) *RunWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunWorker{Dispatcher: d, Logger: logger}
}

// Start subscribes to the run topic. Runs execute under ctx.
func (w *RunWorker) Start(ctx context.Context, q queue.Queue) error {
	return q.Subscribe(queue.TopicCampaignRuns, w.Handler(ctx))
}

// Handler never asks the queue to retry once a run has started: a
// repeated run would mail the same contacts twice.
func (w *RunWorker) Handler(ctx context.Context) func(payload any) error {
	return func(payload any) error {
		job, err := queue.DecodeRunJob(payload)
		if err != nil {
			w.Logger.Error("invalid run job", zap.Error(err))
			return nil
		}

		run := &model.CampaignRun{ID: job.RunID, Contacts: job.Contacts, Options: job.Options}
		summary, err := w.Dispatcher.Execute(ctx, run)
		if errors.Is(err, appErrors.ErrRunStarted) {
			w.Logger.Info("duplicate run job dropped", zap.String("run_id", job.RunID), zap.Error(err))
			return nil
		}
		if err != nil {
			w.Logger.Warn("run ended early",
				zap.String("run_id", job.RunID),
				zap.String("status", summary.Status()),
				zap.Error(err))
		}
		return nil
	}
}
