package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/outreach-backend/internal/app"
	"github.com/unclebandit/outreach-backend/internal/config"
	"github.com/unclebandit/outreach-backend/internal/queue"
	"github.com/unclebandit/outreach-backend/internal/service"
)

func main() {
	cfg, _, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger, err := cfg.Log.Build()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.AMQP.URL == "" {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		os.Exit(1)
	}
	defer a.Close()

	q, err := queue.DialAMQP(cfg.AMQP.URL, logger.Named("queue"))
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		os.Exit(1)
	}
	q.MaxRetries = cfg.AMQP.MaxRetries
	defer q.Close()

	logger.Info("worker running, waiting for campaign runs...")
	if err := runWorker(ctx, a, q, cfg.FollowUp.Interval); err != nil {
		logger.Error("worker stopped", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}

// runWorker consumes campaign runs and drives follow-ups and health checks
// until ctx is cancelled.
func runWorker(ctx context.Context, a *app.App, q queue.Queue, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("follow-up interval must be positive")
	}
	a.SharePacer()

	worker := service.NewRunWorker(a.Dispatcher, a.Logger.Named("worker"))
	if err := worker.Start(ctx, q); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	if c, ok := q.(queue.Closer); ok {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return nil
			case err, ok := <-c.Closed():
				if !ok || err == nil {
					err = errors.New("queue closed")
				}
				return err
			}
		})
	}
	g.Go(func() error {
		return a.FollowUps.Loop(ctx, interval)
	})
	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if _, err := a.Monitor.Check(ctx); err != nil {
					a.Logger.Error("health check failed", zap.Error(err))
				}
			}
		}
	})
	return g.Wait()
}
