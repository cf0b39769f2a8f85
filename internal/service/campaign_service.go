// internal/service/campaign_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/queue"
	"github.com/unclebandit/outreach-backend/internal/repository"
)

// ErrNoContacts is returned when a send request resolves to zero contacts.
var ErrNoContacts = errors.New("no contacts to send to")

// CampaignService is the entry point used by the HTTP API and the CLI.
type CampaignService struct {
	Runs       repository.RunRepositoryInterface
	Contacts   repository.ContactRepositoryInterface // optional
	Ledger     repository.Ledger
	Queue      queue.Queue
	Dispatcher *Dispatcher
	Logger     *zap.Logger

	DefaultDelay time.Duration
}

type SendCampaignRequest struct {
	Contacts          []model.Contact `json:"contacts"`
	UseStoredContacts bool            `json:"use_stored_contacts"`
	DelaySeconds      *int            `json:"delay_seconds,omitempty"`
	ABTest            bool            `json:"ab_test"`
}

// Result struct for SendCampaign
type SendCampaignResult struct {
	RunID          string `json:"run_id"`
	ContactsQueued int    `json:"contacts_queued"`
	Status         string `json:"status"`
}

type RunDetails struct {
	model.RunRecord
	Stats map[string]int `json:"stats"`
}

type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}

// SendCampaign records a queued run and hands it to the worker queue.
func (s *CampaignService) SendCampaign(ctx context.Context, req SendCampaignRequest) (*SendCampaignResult, error) {
	contacts := req.Contacts
	if req.UseStoredContacts {
		if s.Contacts == nil {
			return nil, errors.New("stored contacts are not available without a database")
		}
		stored, err := s.Contacts.ListAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("load contacts: %w", err)
		}
		contacts = append(contacts, stored...)
	}
	if len(contacts) == 0 {
		return nil, ErrNoContacts
	}

	delay := s.DefaultDelay
	if req.DelaySeconds != nil {
		if *req.DelaySeconds < 0 {
			return nil, fmt.Errorf("delay_seconds must not be negative")
		}
		delay = time.Duration(*req.DelaySeconds) * time.Second
	}

	run := &model.RunRecord{ID: uuid.NewString(), Status: model.RunQueued, Total: len(contacts)}
	if err := s.Runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	job := &queue.RunJob{
		RunID:    run.ID,
		Contacts: contacts,
		Options:  model.RunOptions{Delay: delay, ABTest: req.ABTest},
	}
	if err := s.Queue.Publish(queue.TopicCampaignRuns, job); err != nil {
		s.logger().Error("enqueue run failed", zap.String("run_id", run.ID), zap.Error(err))
		return nil, fmt.Errorf("enqueue run: %w", err)
	}

	s.logger().Info("run queued", zap.String("run_id", run.ID), zap.Int("contacts", len(contacts)))
	return &SendCampaignResult{RunID: run.ID, ContactsQueued: len(contacts), Status: run.Status}, nil
}

// RenderPreview composes the message a contact would receive without sending it.
func (s *CampaignService) RenderPreview(ctx context.Context, contact model.Contact, abTest bool) (model.PersonalizedMessage, error) {
	if contact.Email() == "" {
		return model.PersonalizedMessage{}, fmt.Errorf("contact email is required")
	}
	return s.Dispatcher.Compose(ctx, contact, abTest)
}

// GetRunDetails returns the run header plus per-status counts from the ledger.
func (s *CampaignService) GetRunDetails(ctx context.Context, id string) (*RunDetails, error) {
	run, err := s.Runs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	rows, err := s.Ledger.List(ctx)
	if err != nil {
		return nil, err
	}

	stats := map[string]int{model.StatusSent: 0, model.StatusFailed: 0}
	for _, r := range rows {
		if r.RunID == id && r.IsFirstContact() {
			stats[r.Status]++
		}
	}
	return &RunDetails{RunRecord: *run, Stats: stats}, nil
}

func (s *CampaignService) ListRuns(ctx context.Context, page, pageSize int) ([]*model.RunRecord, Pagination, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	runs, total, err := s.Runs.List(ctx, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, Pagination{}, err
	}
	return runs, Pagination{
		Page:       page,
		PageSize:   pageSize,
		TotalCount: total,
		TotalPages: (total + pageSize - 1) / pageSize,
	}, nil
}

func (s *CampaignService) Results(ctx context.Context) ([]model.SendResult, error) {
	return s.Ledger.List(ctx)
}

func (s *CampaignService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
