package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/repository"
	"github.com/unclebandit/outreach-backend/internal/template"
	"github.com/unclebandit/outreach-backend/internal/transport"
)

// Follow-up modes.
const (
	// FollowUpExact sends a tier only on the day its threshold is reached.
	FollowUpExact = "exact"
	// FollowUpCatchup sends the highest due tier that has not gone out yet.
	FollowUpCatchup = "catchup"
)

// Tiers are bound positionally to FollowUpScheduler.Days.
var Tiers = []string{template.TierDay3, template.TierDay7, template.TierDay14}

// FollowUpScheduler derives due follow-ups from the ledger and sends them.
type FollowUpScheduler struct {
	Store        *template.Store
	Personalizer *Personalizer
	Transport    transport.Transport
	Ledger       repository.Ledger
	Pacer        Pacer
	Logger       *zap.Logger
	Now          func() time.Time

	Days []int
	Mode string
}

func NewFollowUpScheduler(store *template.Store, p *Personalizer, t transport.Transport, ledger repository.Ledger, logger *zap.Logger) *FollowUpScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FollowUpScheduler{
		Store:        store,
		Personalizer: p,
		Transport:    t,
		Ledger:       ledger,
		Logger:       logger,
		Now:          func() time.Time { return time.Now().UTC() },
		Days:         []int{3, 7, 14},
		Mode:         FollowUpExact,
	}
}

// Check reads the ledger and sends whatever is due.
func (s *FollowUpScheduler) Check(ctx context.Context) (int, error) {
	rows, err := s.Ledger.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("read ledger: %w", err)
	}
	return s.CheckAndSend(ctx, rows)
}

// Loop checks once immediately and then every interval until ctx is done.
func (s *FollowUpScheduler) Loop(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("follow-up interval must be positive, got %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := s.Check(ctx); err != nil && ctx.Err() == nil {
			s.Logger.Error("follow-up check failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// DueFollowUp is a follow-up that should go out now.
type DueFollowUp struct {
	First       model.SendResult
	Tier        string
	DaysElapsed int
}

// CheckAndSend inspects rows and sends the follow-ups that are due now.
// It returns how many were accepted by the transport.
func (s *FollowUpScheduler) CheckAndSend(ctx context.Context, rows []model.SendResult) (int, error) {
	due := s.Due(rows)
	if len(due) == 0 {
		s.Logger.Debug("no follow-ups due", zap.Int("rows", len(rows)))
		return 0, nil
	}

	sent := 0
	for _, d := range due {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if s.Pacer != nil {
			if err := s.Pacer.Wait(ctx); err != nil {
				return sent, err
			}
		}
		if s.send(ctx, d) {
			sent++
		}
	}
	s.Logger.Info("follow-ups processed", zap.Int("due", len(due)), zap.Int("sent", sent))
	return sent, nil
}

// Due lists at most one follow-up per recipient, in ledger order.
func (s *FollowUpScheduler) Due(rows []model.SendResult) []DueFollowUp {
	firsts := map[string]model.SendResult{}
	var order []string
	done := map[string]map[string]bool{}

	for _, r := range rows {
		if r.Status != model.StatusSent || r.Recipient == "" {
			continue
		}
		if !r.IsFirstContact() {
			if done[r.Recipient] == nil {
				done[r.Recipient] = map[string]bool{}
			}
			done[r.Recipient][r.Tier] = true
			continue
		}
		prev, seen := firsts[r.Recipient]
		if !seen {
			order = append(order, r.Recipient)
		}
		if !seen || r.Timestamp.Before(prev.Timestamp) {
			firsts[r.Recipient] = r
		}
	}

	now := s.now()
	var due []DueFollowUp
	for _, email := range order {
		first := firsts[email]
		days := int(now.Sub(first.Timestamp) / (24 * time.Hour))
		if tier, ok := s.tierFor(days, done[email]); ok {
			due = append(due, DueFollowUp{First: first, Tier: tier, DaysElapsed: days})
		}
	}
	return due
}

func (s *FollowUpScheduler) tierFor(days int, done map[string]bool) (string, bool) {
	n := len(s.Days)
	if n > len(Tiers) {
		n = len(Tiers)
	}
	if s.Mode == FollowUpCatchup {
		for i := n - 1; i >= 0; i-- {
			if days >= s.Days[i] {
				if done[Tiers[i]] {
					return "", false
				}
				return Tiers[i], true
			}
		}
		return "", false
	}
	for i := 0; i < n; i++ {
		if days == s.Days[i] && !done[Tiers[i]] {
			return Tiers[i], true
		}
	}
	return "", false
}

func (s *FollowUpScheduler) send(ctx context.Context, d DueFollowUp) bool {
	logger := s.Logger.With(zap.String("recipient", d.First.Recipient), zap.String("tier", d.Tier))
	res := model.SendResult{
		RunID:      d.First.RunID,
		Recipient:  d.First.Recipient,
		Company:    d.First.Company,
		Status:     model.StatusFailed,
		TemplateID: d.Tier,
		Tier:       d.Tier,
		Timestamp:  s.now(),
	}

	fu, ok := s.Store.FollowUp(d.Tier)
	if !ok {
		res.LastError = fmt.Sprintf("no follow-up template for %s", d.Tier)
		logger.Error("follow-up not sent", zap.String("error", res.LastError))
		s.append(ctx, res, logger)
		return false
	}

	contact := model.Contact{
		"email":      d.First.Recipient,
		"first_name": FirstNameFromEmail(d.First.Recipient),
	}
	if d.First.Company != "" && d.First.Company != "Unknown" {
		contact["company_name"] = d.First.Company
	}
	msg, err := s.Personalizer.PersonalizeText(fu.Subject, fu.Body, contact)
	if err != nil {
		res.LastError = err.Error()
		logger.Error("follow-up not personalized", zap.Error(err))
		s.append(ctx, res, logger)
		return false
	}

	out := s.Transport.Send(ctx, res.Recipient, msg.Subject, msg.Body)
	res.Attempts = 1
	res.Timestamp = s.now()
	if out.Accepted {
		res.Status = model.StatusSent
		logger.Info("follow-up sent", zap.Int("days_elapsed", d.DaysElapsed), zap.String("message_id", out.MessageID))
	} else {
		res.LastError = out.Error
		logger.Warn("follow-up failed", zap.String("error", out.Error))
	}
	s.append(ctx, res, logger)
	return out.Accepted
}

func (s *FollowUpScheduler) append(ctx context.Context, res model.SendResult, logger *zap.Logger) {
	if err := s.Ledger.Append(ctx, res); err != nil {
		logger.Error("ledger append failed", zap.Error(err))
	}
}

func (s *FollowUpScheduler) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now()
}

// FirstNameFromEmail guesses a first name from the local part:
// "max.mustermann@firma.de" gives "Max".
func FirstNameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	first, _, _ := strings.Cut(local, ".")
	return titleCase(first)
}

func titleCase(s string) string {
	out := []rune(strings.ToLower(s))
	upper := true
	for i, r := range out {
		if unicode.IsLetter(r) {
			if upper {
				out[i] = unicode.ToUpper(r)
			}
			upper = false
		} else {
			upper = true
		}
	}
	return string(out)
}
