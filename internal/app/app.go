// Package app wires configuration into the components shared by the
// server, the worker and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/unclebandit/outreach-backend/internal/config"
	"github.com/unclebandit/outreach-backend/internal/db"
	"github.com/unclebandit/outreach-backend/internal/generator"
	"github.com/unclebandit/outreach-backend/internal/repository"
	"github.com/unclebandit/outreach-backend/internal/service"
	"github.com/unclebandit/outreach-backend/internal/template"
	"github.com/unclebandit/outreach-backend/internal/transport"
)

type App struct {
	Config config.Config
	Logger *zap.Logger

	DB       *db.Handle
	Ledger   repository.Ledger
	Runs     repository.RunRepositoryInterface
	Events   repository.EventRepositoryInterface
	Contacts repository.ContactRepositoryInterface // Postgres only

	Store        *template.Store
	Personalizer *service.Personalizer
	Transport    transport.Transport
	Pacer        *service.RatePacer

	Dispatcher *service.Dispatcher
	FollowUps  *service.FollowUpScheduler
	Monitor    *service.MonitorService
}

// New opens storage and builds every service. Callers must Close it.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	store, err := template.LoadFile(cfg.Campaign.TemplatesPath)
	if err != nil {
		return nil, err
	}
	a.Store = store

	if err := a.openStorage(ctx); err != nil {
		return nil, err
	}

	a.Transport, err = transport.New(cfg, logger.Named("transport"))
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Personalizer = service.NewPersonalizer(
		service.DefaultPlaceholders(cfg.Sender, cfg.Campaign.DefaultIndustry),
		cfg.Campaign.PlaceholderMode == "strict",
		logger.Named("personalizer"),
	)
	a.Pacer = service.NewPacer(cfg.Campaign.Delay)

	a.Monitor = &service.MonitorService{
		Ledger:    a.Ledger,
		Transport: a.Transport,
		Recipient: cfg.Campaign.AlertRecipient,
		Logger:    logger.Named("monitor"),
	}

	a.Dispatcher = &service.Dispatcher{
		Store:                  store,
		Router:                 template.NewRouter(),
		Picker:                 template.NewVariantPicker(nil),
		Personalizer:           a.Personalizer,
		Transport:              a.Transport,
		Ledger:                 a.Ledger,
		Runs:                   a.Runs,
		Alerter:                a.Monitor,
		Logger:                 logger.Named("dispatcher"),
		DefaultRole:            cfg.Campaign.DefaultRole,
		ABTest:                 cfg.Campaign.ABTest,
		MaxAttempts:            cfg.Campaign.MaxAttempts,
		RetryBackoff:           cfg.Campaign.RetryBackoff,
		MaxConsecutiveFailures: cfg.Campaign.MaxConsecutiveFailures,
	}
	if cfg.Campaign.UseAI {
		gen, err := generator.NewClient(cfg.OpenAI, cfg.Sender)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("ai generator: %w", err)
		}
		a.Dispatcher.Generator = gen
	}

	a.FollowUps = service.NewFollowUpScheduler(store, a.Personalizer, a.Transport, a.Ledger, logger.Named("followup"))
	a.FollowUps.Days = cfg.FollowUp.Days
	a.FollowUps.Mode = cfg.FollowUp.Mode
	a.FollowUps.Pacer = a.Pacer

	return a, nil
}

// SharePacer makes campaign runs and follow-ups draw from the same
// rate limit. Each run still keeps its own delay between contacts.
func (a *App) SharePacer() {
	a.Dispatcher.Pacer = a.Pacer
}

func (a *App) openStorage(ctx context.Context) error {
	cfg := a.Config
	if cfg.Psql.Addr == "" {
		h, err := db.OpenSQLite(cfg.SQLite.Path)
		if err != nil {
			return err
		}
		a.Logger.Info("using sqlite storage", zap.String("path", cfg.SQLite.Path))
		a.DB = h
	} else {
		if cfg.Psql.RunMigrations {
			if err := db.Migrate(cfg.Psql.Addr); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			a.Logger.Info("migrations applied successfully")
		}
		h, err := db.OpenPostgres(ctx, cfg.Psql.Addr)
		if err != nil {
			return err
		}
		a.Logger.Info("using postgres storage")
		a.DB = h
		a.Contacts = &repository.ContactRepository{DB: h.DB}
	}

	a.Ledger = repository.NewResultRepository(a.DB)
	a.Runs = repository.NewRunRepository(a.DB)
	a.Events = repository.NewEventRepository(a.DB)
	return nil
}

func (a *App) Close() error {
	var errs []error
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	_ = a.Logger.Sync()
	return errors.Join(errs...)
}
