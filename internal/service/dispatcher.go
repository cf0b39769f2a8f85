// internal/service/dispatcher.go
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/repository"
	"github.com/unclebandit/outreach-backend/internal/template"
	"github.com/unclebandit/outreach-backend/internal/transport"
)

// Generator writes a whole message for a contact. Any error makes the
// dispatcher fall back to the template path.
type Generator interface {
	Name() string
	Generate(ctx context.Context, contact model.Contact) (subject, body string, err error)
}

// Alerter is told when a run halts.
type Alerter interface {
	Alert(ctx context.Context, subject, body string) error
}

// Dispatcher sends one personalized message per contact, sequentially.
type Dispatcher struct {
	Store        *template.Store
	Router       *template.Router
	Picker       *template.VariantPicker
	Personalizer *Personalizer
	Transport    transport.Transport
	Ledger       repository.Ledger

	// optional
	Generator Generator
	Runs      repository.RunRepositoryInterface
	Alerter   Alerter
	// Pacer, when set, is waited on after the per-run delay.
	Pacer Pacer

	Logger *zap.Logger
	Now    func() time.Time

	DefaultRole            string
	ABTest                 bool
	MaxAttempts            int
	RetryBackoff           time.Duration
	MaxConsecutiveFailures int
}

// Run dispatches contacts as a new run, pausing delay between contacts.
func (d *Dispatcher) Run(ctx context.Context, contacts []model.Contact, delay time.Duration) (*model.CampaignSummary, error) {
	run := &model.CampaignRun{
		ID:       uuid.NewString(),
		Contacts: contacts,
		Options:  model.RunOptions{Delay: delay, ABTest: d.ABTest},
	}
	return d.Execute(ctx, run)
}

// Execute processes run.Contacts in order and fills run.Summary.
//
// The returned summary is never nil. When ctx is cancelled the summary
// holds everything sent so far, the rest is counted as skipped and
// ctx.Err() is returned. When the consecutive failure limit is reached
// the run halts with appErrors.ErrCircuitOpen.
func (d *Dispatcher) Execute(ctx context.Context, run *model.CampaignRun) (*model.CampaignSummary, error) {
	logger := d.logger().With(zap.String("run_id", run.ID))
	summary := &model.CampaignSummary{
		RunID:     run.ID,
		Timestamp: d.now(),
		Total:     len(run.Contacts),
		Details:   make([]model.SendResult, 0, len(run.Contacts)),
	}
	run.Summary = summary
	if err := d.markSending(ctx, run, logger); err != nil {
		summary.Skipped = summary.Total
		logger.Warn("campaign run refused", zap.Error(err))
		return summary, err
	}

	var pacer Pacer = NewPacer(run.Options.Delay)
	if d.Pacer != nil {
		pacer = Chain{pacer, d.Pacer}
	}

	logger.Info("campaign run started",
		zap.Int("contacts", summary.Total),
		zap.String("transport", d.Transport.Name()),
		zap.Duration("delay", run.Options.Delay),
		zap.Bool("ab_test", run.Options.ABTest))

	var runErr error
	consecutive := 0
	for i, contact := range run.Contacts {
		if err := ctx.Err(); err != nil {
			runErr = err
			summary.Skipped = summary.Total - i
			break
		}
		if err := pacer.Wait(ctx); err != nil {
			runErr = err
			if ctx.Err() != nil {
				runErr = ctx.Err()
			}
			summary.Skipped = summary.Total - i
			break
		}

		res := d.sendOne(ctx, run, contact, logger)
		summary.Record(res)
		if err := d.Ledger.Append(ctx, res); err != nil {
			logger.Error("ledger append failed", zap.String("recipient", res.Recipient), zap.Error(err))
		}

		if res.Status == model.StatusSent {
			consecutive = 0
			continue
		}
		consecutive++
		if d.MaxConsecutiveFailures > 0 && consecutive >= d.MaxConsecutiveFailures {
			summary.Halted = true
			summary.HaltReason = fmt.Sprintf("%d consecutive failures, last: %s", consecutive, res.LastError)
			summary.Skipped = summary.Total - i - 1
			runErr = appErrors.ErrCircuitOpen
			d.alertHalt(ctx, summary, logger)
			break
		}
	}

	d.finish(ctx, summary, logger)
	logger.Info("campaign run finished",
		zap.Int("sent", summary.Sent),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("total", summary.Total),
		zap.String("status", summary.Status()))
	return summary, runErr
}

func (d *Dispatcher) sendOne(ctx context.Context, run *model.CampaignRun, contact model.Contact, logger *zap.Logger) model.SendResult {
	res := model.SendResult{
		RunID:     run.ID,
		Recipient: contact.Email(),
		Company:   contact.Company(),
		Status:    model.StatusFailed,
		Timestamp: d.now(),
	}
	if res.Recipient == "" {
		res.LastError = fmt.Sprintf("%v: missing email", appErrors.ErrInvalidContact)
		logger.Warn("contact skipped", zap.String("company", res.Company), zap.String("error", res.LastError))
		return res
	}

	msg, err := d.Compose(ctx, contact, run.Options.ABTest)
	if err != nil {
		res.LastError = err.Error()
		logger.Warn("message not composed", zap.String("recipient", res.Recipient), zap.Error(err))
		return res
	}
	res.TemplateID = msg.TemplateID
	res.VariantID = msg.VariantID

	maxAttempts := d.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			// linear backoff
			if err := sleep(ctx, time.Duration(attempt-1)*d.RetryBackoff); err != nil {
				break
			}
		}
		out := d.Transport.Send(ctx, res.Recipient, msg.Subject, msg.Body)
		res.Attempts = attempt
		res.Timestamp = d.now()
		if out.Accepted {
			res.Status = model.StatusSent
			res.LastError = ""
			logger.Info("message sent",
				zap.String("recipient", res.Recipient),
				zap.String("template", res.TemplateID),
				zap.String("variant", res.VariantID),
				zap.String("message_id", out.MessageID),
				zap.Int("attempt", attempt))
			return res
		}
		res.LastError = out.Error
		logger.Warn("send attempt failed",
			zap.String("recipient", res.Recipient),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.String("error", out.Error))
	}
	return res
}

// Compose builds the message for contact: generated when a Generator is
// configured and succeeds, otherwise from the routed template.
func (d *Dispatcher) Compose(ctx context.Context, contact model.Contact, abTest bool) (model.PersonalizedMessage, error) {
	if d.Generator != nil {
		msg, err := d.generate(ctx, contact)
		if err == nil {
			return msg, nil
		}
		d.logger().Warn("generation failed, using template",
			zap.String("recipient", contact.Email()), zap.Error(err))
	}

	tpl, err := d.Router.Select(d.role(contact), d.Store)
	if err != nil {
		return model.PersonalizedMessage{}, err
	}
	if !abTest {
		return d.Personalizer.Personalize(tpl, contact)
	}

	subject, variantID := d.Picker.Pick(tpl)
	msg, err := d.Personalizer.PersonalizeText(subject, AssembleBody(tpl), contact)
	if err != nil {
		return msg, err
	}
	msg.TemplateID = tpl.ID
	msg.VariantID = variantID
	return msg, nil
}

func (d *Dispatcher) generate(ctx context.Context, contact model.Contact) (model.PersonalizedMessage, error) {
	subject, body, err := d.Generator.Generate(ctx, contact)
	if err != nil {
		return model.PersonalizedMessage{}, err
	}
	msg, err := d.Personalizer.PersonalizeText(subject, body, contact)
	if err != nil {
		return msg, err
	}
	msg.TemplateID = d.Generator.Name()
	return msg, nil
}

func (d *Dispatcher) role(contact model.Contact) string {
	for _, key := range []string{"role", "job_title"} {
		if v, ok := contact.Get(key); ok {
			return v
		}
	}
	return d.DefaultRole
}

// markSending moves the run header to sending, creating it when missing.
// A header that is past queued means the run was already executed.
func (d *Dispatcher) markSending(ctx context.Context, run *model.CampaignRun, logger *zap.Logger) error {
	if d.Runs == nil {
		return nil
	}
	rec, err := d.Runs.GetByID(ctx, run.ID)
	var notFound *appErrors.ErrRunNotFound
	switch {
	case errors.As(err, &notFound):
		err = d.Runs.Create(ctx, &model.RunRecord{
			ID:        run.ID,
			Status:    model.RunSending,
			Total:     len(run.Contacts),
			CreatedAt: d.now(),
		})
	case err != nil:
		// logged below; the run still goes out
	case rec.Status != "" && rec.Status != model.RunQueued:
		return fmt.Errorf("%w: %s is %s", appErrors.ErrRunStarted, run.ID, rec.Status)
	default:
		err = d.Runs.UpdateStatus(ctx, run.ID, model.RunSending)
	}
	if err != nil {
		logger.Error("run status not persisted", zap.Error(err))
	}
	return nil
}

func (d *Dispatcher) finish(ctx context.Context, s *model.CampaignSummary, logger *zap.Logger) {
	if d.Runs == nil {
		return
	}
	// the run may have been cancelled; its header is still written
	if err := d.Runs.Finish(context.WithoutCancel(ctx), s); err != nil {
		logger.Error("run summary not persisted", zap.Error(err))
	}
}

func (d *Dispatcher) alertHalt(ctx context.Context, s *model.CampaignSummary, logger *zap.Logger) {
	logger.Error("campaign run halted", zap.String("reason", s.HaltReason))
	if d.Alerter == nil {
		return
	}
	subject := fmt.Sprintf("Campaign %s halted", s.RunID)
	body := fmt.Sprintf("Run %s stopped after %d of %d contacts.\nSent: %d\nFailed: %d\nReason: %s",
		s.RunID, s.Sent+s.Failed, s.Total, s.Sent, s.Failed, s.HaltReason)
	if err := d.Alerter.Alert(context.WithoutCancel(ctx), subject, body); err != nil {
		logger.Error("halt alert failed", zap.Error(err))
	}
}

func (d *Dispatcher) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

func (d *Dispatcher) now() time.Time {
	if d.Now == nil {
		return time.Now().UTC()
	}
	return d.Now()
}
