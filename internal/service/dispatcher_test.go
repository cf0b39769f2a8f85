package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/repository"
)

func threeContacts() []model.Contact {
	return []model.Contact{
		{"email": "anna@acme.de", "first_name": "Anna", "company_name": "Acme", "role": "CFO"},
		{"email": "bob@beta.de", "first_name": "Bob", "company_name": "Beta", "role": "CTO"},
		{"email": "cara@gamma.de", "first_name": "Cara", "company_name": "Gamma", "role": "Geschäftsführerin"},
	}
}

func TestDispatcher_Run_RecordsEveryContactInOrder(t *testing.T) {
	tr := newFakeTransport()
	tr.fail["bob@beta.de"] = -1
	ledger := repository.NewMemoryLedger()
	d := newTestDispatcher(t, tr, ledger)

	summary, err := d.Run(context.Background(), threeContacts(), 0)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Sent)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Skipped)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, model.RunCompleted, summary.Status())
	require.Len(t, summary.Details, 3)

	rows, err := ledger.List(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for i, want := range []string{"anna@acme.de", "bob@beta.de", "cara@gamma.de"} {
		assert.Equal(t, want, rows[i].Recipient)
		assert.Equal(t, summary.RunID, rows[i].RunID)
	}
	assert.Equal(t, model.StatusFailed, rows[1].Status)
	assert.Equal(t, "rejected by provider", rows[1].LastError)

	assert.Equal(t, "cfo_template", rows[0].TemplateID)
	assert.Equal(t, "cto_template", rows[1].TemplateID)
	assert.Equal(t, "ceo_template", rows[2].TemplateID)

	msgs := tr.messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "Kosten bei Acme", msgs[0].Subject)
	assert.Equal(t, "Hallo Anna,\n\nKurzes Gespräch?", msgs[0].Body)
}

func TestDispatcher_Run_EmptyAndDuplicates(t *testing.T) {
	tr := newFakeTransport()
	d := newTestDispatcher(t, tr, repository.NewMemoryLedger())

	summary, err := d.Run(context.Background(), nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Total)
	assert.Empty(t, tr.messages())

	c := model.Contact{"email": "anna@acme.de", "company_name": "Acme"}
	summary, err = d.Run(context.Background(), []model.Contact{c, c}, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Sent)
	assert.Len(t, tr.messages(), 2)
}

func TestDispatcher_Run_MissingEmailFailsWithoutSending(t *testing.T) {
	tr := newFakeTransport()
	d := newTestDispatcher(t, tr, repository.NewMemoryLedger())

	summary, err := d.Run(context.Background(), []model.Contact{{"company_name": "Ghost"}}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Details[0].Attempts)
	assert.Contains(t, summary.Details[0].LastError, "invalid contact")
	assert.Empty(t, tr.messages())
}

func TestDispatcher_Retries(t *testing.T) {
	tr := newFakeTransport()
	tr.fail["anna@acme.de"] = 2
	d := newTestDispatcher(t, tr, repository.NewMemoryLedger())
	d.MaxAttempts = 3

	summary, err := d.Run(context.Background(), threeContacts()[:1], 0)
	require.NoError(t, err)
	require.Len(t, summary.Details, 1)
	assert.Equal(t, model.StatusSent, summary.Details[0].Status)
	assert.Equal(t, 3, summary.Details[0].Attempts)
	assert.Empty(t, summary.Details[0].LastError)
	assert.Len(t, tr.messages(), 3)
}

func TestDispatcher_LedgerErrorDoesNotAbort(t *testing.T) {
	tr := newFakeTransport()
	d := newTestDispatcher(t, tr, &brokenLedger{})

	summary, err := d.Run(context.Background(), threeContacts(), 0)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Sent)
}

func TestDispatcher_CancelBetweenContacts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr := newFakeTransport()
	tr.onSend = func(n int) {
		if n == 1 {
			cancel()
		}
	}
	runs := repository.NewMemoryRunRepository()
	d := newTestDispatcher(t, tr, repository.NewMemoryLedger())
	d.Runs = runs

	start := time.Now()
	summary, err := d.Run(ctx, threeContacts(), time.Hour)
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)

	assert.Equal(t, 1, summary.Sent)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, summary.Total, summary.Sent+summary.Failed+summary.Skipped)
	assert.Len(t, tr.messages(), 1)

	rec, err := runs.GetByID(context.Background(), summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunCancelled, rec.Status)
	assert.Equal(t, 2, rec.Skipped)
}

func TestDispatcher_CircuitBreaker(t *testing.T) {
	tr := newFakeTransport()
	contacts := []model.Contact{
		{"email": "a@x.de"}, {"email": "b@x.de"}, {"email": "c@x.de"}, {"email": "d@x.de"}, {"email": "e@x.de"},
	}
	for _, c := range contacts[:3] {
		tr.fail[c.Email()] = -1
	}
	alerter := &recordingAlerter{}
	d := newTestDispatcher(t, tr, repository.NewMemoryLedger())
	d.MaxConsecutiveFailures = 2
	d.Alerter = alerter

	summary, err := d.Run(context.Background(), contacts, 0)
	require.ErrorIs(t, err, appErrors.ErrCircuitOpen)
	assert.True(t, summary.Halted)
	assert.Equal(t, model.RunHalted, summary.Status())
	assert.Equal(t, 2, summary.Failed)
	assert.Equal(t, 3, summary.Skipped)
	assert.Contains(t, summary.HaltReason, "2 consecutive failures")
	assert.Len(t, alerter.subjects, 1)
	assert.Len(t, tr.messages(), 2)
}

func TestDispatcher_SuccessResetsFailureStreak(t *testing.T) {
	tr := newFakeTransport()
	tr.fail["a@x.de"] = -1
	tr.fail["c@x.de"] = -1
	d := newTestDispatcher(t, tr, repository.NewMemoryLedger())
	d.MaxConsecutiveFailures = 2

	summary, err := d.Run(context.Background(), []model.Contact{{"email": "a@x.de"}, {"email": "b@x.de"}, {"email": "c@x.de"}}, 0)
	require.NoError(t, err)
	assert.False(t, summary.Halted)
	assert.Equal(t, 2, summary.Failed)
}

func TestDispatcher_ABTestLabelsVariant(t *testing.T) {
	tr := newFakeTransport()
	d := newTestDispatcher(t, tr, repository.NewMemoryLedger())
	d.ABTest = true

	contacts := make([]model.Contact, 30)
	for i := range contacts {
		contacts[i] = model.Contact{"email": "cfo@acme.de", "role": "CFO", "company_name": "Acme", "first_name": "Anna"}
	}
	summary, err := d.Run(context.Background(), contacts, 0)
	require.NoError(t, err)

	subjects := map[string]string{
		"variant_0": "Kosten bei Acme",
		"variant_1": "Frage an Anna",
		"variant_2": "Dritte Variante",
	}
	msgs := tr.messages()
	seen := map[string]bool{}
	for i, r := range summary.Details {
		want, ok := subjects[r.VariantID]
		require.True(t, ok, "unexpected variant %q", r.VariantID)
		assert.Equal(t, want, msgs[i].Subject)
		seen[r.VariantID] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestDispatcher_PrimaryVariantWithoutABTest(t *testing.T) {
	d := newTestDispatcher(t, newFakeTransport(), repository.NewMemoryLedger())
	summary, err := d.Run(context.Background(), threeContacts()[:1], 0)
	require.NoError(t, err)
	assert.Equal(t, "variant_0", summary.Details[0].VariantID)
}

func TestDispatcher_GeneratorAndFallback(t *testing.T) {
	tr := newFakeTransport()
	d := newTestDispatcher(t, tr, repository.NewMemoryLedger())
	d.Generator = &fakeGenerator{}

	summary, err := d.Run(context.Background(), threeContacts()[:1], 0)
	require.NoError(t, err)
	assert.Equal(t, "ai_generated", summary.Details[0].TemplateID)
	assert.Equal(t, "Hallo Anna, generiert.", tr.messages()[0].Body)

	d.Generator = &fakeGenerator{err: errors.New("quota exceeded")}
	summary, err = d.Run(context.Background(), threeContacts()[:1], 0)
	require.NoError(t, err)
	assert.Equal(t, "cfo_template", summary.Details[0].TemplateID)
}

func TestDispatcher_StrictPersonalizationFailsContact(t *testing.T) {
	tr := newFakeTransport()
	d := newTestDispatcher(t, tr, repository.NewMemoryLedger())
	d.Personalizer = NewPersonalizer(nil, true, nil)

	summary, err := d.Run(context.Background(), threeContacts()[:1], 0)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Contains(t, summary.Details[0].LastError, "unresolved placeholders")
	assert.Empty(t, tr.messages())
}

func TestDispatcher_PersistsRunHeader(t *testing.T) {
	runs := repository.NewMemoryRunRepository()
	require.NoError(t, runs.Create(context.Background(), &model.RunRecord{ID: "run-7", Total: 3}))

	d := newTestDispatcher(t, newFakeTransport(), repository.NewMemoryLedger())
	d.Runs = runs

	run := &model.CampaignRun{ID: "run-7", Contacts: threeContacts()}
	summary, err := d.Execute(context.Background(), run)
	require.NoError(t, err)
	assert.Same(t, summary, run.Summary)

	rec, err := runs.GetByID(context.Background(), "run-7")
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, rec.Status)
	assert.Equal(t, 3, rec.Sent)
	require.NotNil(t, rec.FinishedAt)
}

func TestDispatcher_RefusesStartedRun(t *testing.T) {
	for _, status := range []string{model.RunSending, model.RunCompleted, model.RunHalted, model.RunCancelled} {
		t.Run(status, func(t *testing.T) {
			runs := repository.NewMemoryRunRepository()
			require.NoError(t, runs.Create(context.Background(), &model.RunRecord{ID: "run-9", Status: status, Total: 3}))

			tr := newFakeTransport()
			ledger := repository.NewMemoryLedger()
			d := newTestDispatcher(t, tr, ledger)
			d.Runs = runs

			summary, err := d.Execute(context.Background(), &model.CampaignRun{ID: "run-9", Contacts: threeContacts()})
			require.ErrorIs(t, err, appErrors.ErrRunStarted)
			assert.Equal(t, 3, summary.Skipped)
			assert.Empty(t, tr.messages())

			rows, err := ledger.List(context.Background())
			require.NoError(t, err)
			assert.Empty(t, rows)

			rec, err := runs.GetByID(context.Background(), "run-9")
			require.NoError(t, err)
			assert.Equal(t, status, rec.Status)
		})
	}
}

func TestDispatcher_SharedPacerKeepsRunDelay(t *testing.T) {
	tr := newFakeTransport()
	d := newTestDispatcher(t, tr, repository.NewMemoryLedger())
	d.Pacer = NewPacer(0)

	start := time.Now()
	summary, err := d.Execute(context.Background(), &model.CampaignRun{
		ID:       "paced",
		Contacts: threeContacts(),
		Options:  model.RunOptions{Delay: 100 * time.Millisecond},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Sent)
	assert.GreaterOrEqual(t, time.Since(start), 190*time.Millisecond)
}

func TestChain_StopsOnFirstError(t *testing.T) {
	slow := NewPacer(time.Hour)
	require.NoError(t, slow.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := Chain{NewPacer(0), slow}.Wait(ctx)
	assert.Error(t, err)
}

func TestRatePacer(t *testing.T) {
	p := NewPacer(0)
	for i := 0; i < 100; i++ {
		require.NoError(t, p.Wait(context.Background()))
	}

	p = NewPacer(time.Hour)
	require.NoError(t, p.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, p.Wait(ctx))
}
