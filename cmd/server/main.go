package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/unclebandit/outreach-backend/internal/app"
	"github.com/unclebandit/outreach-backend/internal/config"
	"github.com/unclebandit/outreach-backend/internal/controller"
	"github.com/unclebandit/outreach-backend/internal/handler"
	"github.com/unclebandit/outreach-backend/internal/queue"
	"github.com/unclebandit/outreach-backend/internal/service"
)

func main() {
	cfg, dotenv, err := config.Load()
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
	if !dotenv {
		logger.Debug("no .env file found, using process environment")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// Runs go to RabbitMQ when configured, otherwise they execute in process.
	var q queue.Queue
	if cfg.AMQP.URL != "" {
		amqpQueue, err := queue.DialAMQP(cfg.AMQP.URL, logger.Named("queue"))
		if err != nil {
			return err
		}
		amqpQueue.MaxRetries = cfg.AMQP.MaxRetries
		defer amqpQueue.Close()
		q = amqpQueue
	} else {
		memQueue := queue.NewInMemoryQueue(logger.Named("queue"))
		memQueue.MaxRetries = cfg.AMQP.MaxRetries
		a.SharePacer()
		if err := service.NewRunWorker(a.Dispatcher, logger.Named("worker")).Start(ctx, memQueue); err != nil {
			return err
		}
		go func() {
			if err := a.FollowUps.Loop(ctx, cfg.FollowUp.Interval); err != nil {
				logger.Error("follow-up loop stopped", zap.Error(err))
			}
		}()
		defer memQueue.Wait()
		q = memQueue
		logger.Info("no AMQP_URL set, running campaign jobs in process")
	}

	svc := &service.CampaignService{
		Runs:         a.Runs,
		Contacts:     a.Contacts,
		Ledger:       a.Ledger,
		Queue:        q,
		Dispatcher:   a.Dispatcher,
		Logger:       logger.Named("campaigns"),
		DefaultDelay: cfg.Campaign.Delay,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	(&controller.CampaignController{CampaignService: svc, Logger: logger.Named("http")}).Routes(r)
	handler.NewResultsHandler(a.Ledger, a.Events, a.Monitor, logger.Named("http")).Routes(r)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.Uint16("port", cfg.HTTP.Port), zap.String("transport", a.Transport.Name()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server gracefully stopped")
	return nil
}
