package service

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/repository"
	"github.com/unclebandit/outreach-backend/internal/template"
	"github.com/unclebandit/outreach-backend/internal/transport"
)

const testTemplates = `
templates:
  finance:
    id: cfo_template
    subject_variants: ["Kosten bei {{company_name}}", "Frage an {{first_name}}", "Dritte Variante"]
    message:
      opening: "Hallo {{first_name}},"
      cta: "Kurzes Gespräch?"
  technical:
    id: cto_template
    subject_variants: ["Technik bei {{company_name}}"]
    message:
      opening: "Hallo {{first_name}},"
      technical_specs: "Läuft mit {{tech_stack_known}}."
  leadership:
    id: ceo_template
    subject_variants: ["Wachstum für {{company_name}}"]
    message:
      opening: "Sehr geehrte/r {{first_name}},"
`

func loadTestStore(t *testing.T) *template.Store {
	t.Helper()
	store, err := template.Load(strings.NewReader(testTemplates))
	require.NoError(t, err)
	return store
}

type sentMessage struct {
	To, Subject, Body string
}

// fakeTransport accepts everything except recipients listed in fail.
type fakeTransport struct {
	mu     sync.Mutex
	fail   map[string]int // recipient -> number of rejections before accepting, <0 always
	sent   []sentMessage
	onSend func(n int)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{fail: map[string]int{}}
}

func (f *fakeTransport) Name() string { return "fake" }

func (f *fakeTransport) Send(_ context.Context, to, subject, body string) transport.Outcome {
	f.mu.Lock()
	f.sent = append(f.sent, sentMessage{To: to, Subject: subject, Body: body})
	n := len(f.sent)
	out := transport.Outcome{Accepted: true, MessageID: "msg-" + to}
	if left, ok := f.fail[to]; ok && left != 0 {
		if left > 0 {
			f.fail[to] = left - 1
		}
		out = transport.Outcome{Error: "rejected by provider"}
	}
	hook := f.onSend
	f.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	return out
}

func (f *fakeTransport) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type brokenLedger struct{ repository.MemoryLedger }

func (b *brokenLedger) Append(context.Context, model.SendResult) error {
	return errors.New("disk full")
}

type fakeGenerator struct {
	err error
}

func (g *fakeGenerator) Name() string { return "ai_generated" }

func (g *fakeGenerator) Generate(_ context.Context, c model.Contact) (string, string, error) {
	if g.err != nil {
		return "", "", g.err
	}
	return "Idee für " + c.Company(), "Hallo {{first_name}}, generiert.", nil
}

type recordingAlerter struct {
	mu       sync.Mutex
	subjects []string
}

func (a *recordingAlerter) Alert(_ context.Context, subject, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.subjects = append(a.subjects, subject)
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestDispatcher(t *testing.T, tr transport.Transport, ledger repository.Ledger) *Dispatcher {
	t.Helper()
	return &Dispatcher{
		Store:                  loadTestStore(t),
		Router:                 template.NewRouter(),
		Picker:                 template.NewVariantPicker(rand.New(rand.NewSource(7))),
		Personalizer:           newTestPersonalizer(false),
		Transport:              tr,
		Ledger:                 ledger,
		DefaultRole:            "CEO",
		MaxAttempts:            1,
		RetryBackoff:           time.Millisecond,
		MaxConsecutiveFailures: 0,
	}
}
