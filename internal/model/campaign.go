// internal/model/campaign.go
package model

import "time"

// Run statuses as persisted by the run repository.
const (
	RunQueued    = "queued"
	RunSending   = "sending"
	RunCompleted = "completed"
	RunHalted    = "halted"
	RunCancelled = "cancelled"
)

type CampaignSummary struct {
	RunID      string       `json:"run_id"`
	Timestamp  time.Time    `json:"timestamp"`
	Sent       int          `json:"sent"`
	Failed     int          `json:"failed"`
	Skipped    int          `json:"skipped"`
	Total      int          `json:"total"`
	Details    []SendResult `json:"details"`
	Halted     bool         `json:"halted"`
	HaltReason string       `json:"halt_reason,omitempty"`
}

// Record appends a result and bumps the matching counter.
func (s *CampaignSummary) Record(r SendResult) {
	s.Details = append(s.Details, r)
	if r.Status == StatusSent {
		s.Sent++
	} else {
		s.Failed++
	}
}

// Status derives the run status from the summary.
func (s *CampaignSummary) Status() string {
	switch {
	case s.Halted:
		return RunHalted
	case s.Skipped > 0:
		return RunCancelled
	default:
		return RunCompleted
	}
}

// RunOptions are the per-run knobs a caller may set.
type RunOptions struct {
	Delay  time.Duration `json:"delay"`
	ABTest bool          `json:"ab_test"`
}

// CampaignRun owns everything a single dispatch needs.
type CampaignRun struct {
	ID       string           `json:"id"`
	Contacts []Contact        `json:"contacts"`
	Options  RunOptions       `json:"options"`
	Summary  *CampaignSummary `json:"summary,omitempty"`
}

// RunRecord is the persisted header of a run.
type RunRecord struct {
	ID         string     `db:"id" json:"id"`
	Status     string     `db:"status" json:"status"`
	Total      int        `db:"total" json:"total"`
	Sent       int        `db:"sent" json:"sent"`
	Failed     int        `db:"failed" json:"failed"`
	Skipped    int        `db:"skipped" json:"skipped"`
	HaltReason string     `db:"halt_reason" json:"halt_reason,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	FinishedAt *time.Time `db:"finished_at" json:"finished_at,omitempty"`
}
