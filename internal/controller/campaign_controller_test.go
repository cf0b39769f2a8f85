package controller_test

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/outreach-backend/internal/config/configs"
	"github.com/unclebandit/outreach-backend/internal/controller"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/queue"
	"github.com/unclebandit/outreach-backend/internal/repository"
	"github.com/unclebandit/outreach-backend/internal/service"
	"github.com/unclebandit/outreach-backend/internal/template"
	"github.com/unclebandit/outreach-backend/internal/transport"
)

// --- Mocks ---

type MockQueue struct {
	jobs []*queue.RunJob
}

func (m *MockQueue) Publish(topic string, payload any) error {
	m.jobs = append(m.jobs, payload.(*queue.RunJob))
	return nil
}

func (m *MockQueue) Subscribe(string, func(any) error) error { return nil }

const templatesYAML = `
templates:
  finance:
    id: cfo_template
    subject_variants: ["Kosten bei {{company_name}}"]
    message: {opening: "Hallo {{first_name}},"}
  technical:
    id: cto_template
    subject_variants: ["Technik bei {{company_name}}"]
    message: {opening: "Hallo {{first_name}},"}
  leadership:
    id: ceo_template
    subject_variants: ["Wachstum für {{company_name}}"]
    message: {opening: "Guten Tag {{first_name}},", cta: "{{discount}}"}
`

func newRouter(t *testing.T) (http.Handler, *service.CampaignService, *MockQueue) {
	t.Helper()
	store, err := template.Load(strings.NewReader(templatesYAML))
	require.NoError(t, err)

	ledger := repository.NewMemoryLedger()
	runs := repository.NewMemoryRunRepository()
	q := &MockQueue{}
	svc := &service.CampaignService{
		Runs:   runs,
		Ledger: ledger,
		Queue:  q,
		Dispatcher: &service.Dispatcher{
			Store:        store,
			Router:       template.NewRouter(),
			Picker:       template.NewVariantPicker(rand.New(rand.NewSource(1))),
			Personalizer: service.NewPersonalizer(service.DefaultPlaceholders(configs.Sender{Name: "Max"}, ""), false, nil),
			Transport:    transport.NewLogTransport(nil),
			Ledger:       ledger,
			Runs:         runs,
		},
	}

	r := chi.NewRouter()
	(&controller.CampaignController{CampaignService: svc}).Routes(r)
	return r, svc, q
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// --- Tests ---

func TestSendCampaign_Accepted(t *testing.T) {
	h, _, q := newRouter(t)

	w := do(t, h, http.MethodPost, "/campaigns/send", map[string]any{
		"contacts":      []map[string]string{{"email": "anna@acme.de", "role": "CFO"}},
		"delay_seconds": 0,
	})
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp service.SendCampaignResult
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 1, resp.ContactsQueued)
	assert.Equal(t, "queued", resp.Status)
	require.Len(t, q.jobs, 1)
	assert.Equal(t, resp.RunID, q.jobs[0].RunID)
}

func TestSendCampaign_BadRequests(t *testing.T) {
	h, _, _ := newRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/campaigns/send", strings.NewReader("{"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/campaigns/send", map[string]any{"contacts": []any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPersonalizedPreviewHandler(t *testing.T) {
	h, _, _ := newRouter(t)

	w := do(t, h, http.MethodPost, "/campaigns/preview", map[string]any{
		"contact": map[string]string{"email": "anna@acme.de", "first_name": "Anna", "company_name": "Acme", "role": "Finanzleiterin"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var msg model.PersonalizedMessage
	require.NoError(t, json.NewDecoder(w.Body).Decode(&msg))
	assert.Equal(t, "Kosten bei Acme", msg.Subject)
	assert.Equal(t, "Hallo Anna,", msg.Body)
	assert.Equal(t, "cfo_template", msg.TemplateID)
}

func TestPersonalizedPreview_ReportsUnresolved(t *testing.T) {
	h, _, _ := newRouter(t)

	w := do(t, h, http.MethodPost, "/campaigns/preview", map[string]any{
		"contact": map[string]string{"email": "ceo@acme.de", "first_name": "Eva"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var msg model.PersonalizedMessage
	require.NoError(t, json.NewDecoder(w.Body).Decode(&msg))
	assert.Equal(t, []string{"discount"}, msg.Unresolved)
}

func TestGetCampaignDetails(t *testing.T) {
	h, svc, _ := newRouter(t)
	ctx := context.Background()
	require.NoError(t, svc.Runs.Create(ctx, &model.RunRecord{ID: "run-1", Total: 1}))
	_, err := svc.Dispatcher.Execute(ctx, &model.CampaignRun{ID: "run-1", Contacts: []model.Contact{{"email": "anna@acme.de"}}})
	require.NoError(t, err)

	w := do(t, h, http.MethodGet, "/campaigns/run-1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var details struct {
		ID     string         `json:"id"`
		Status string         `json:"status"`
		Stats  map[string]int `json:"stats"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&details))
	assert.Equal(t, "run-1", details.ID)
	assert.Equal(t, model.RunCompleted, details.Status)
	assert.Equal(t, 1, details.Stats["sent"])

	w = do(t, h, http.MethodGet, "/campaigns/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListCampaigns_Pagination(t *testing.T) {
	h, svc, _ := newRouter(t)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, svc.Runs.Create(context.Background(), &model.RunRecord{ID: id}))
	}

	w := do(t, h, http.MethodGet, "/campaigns/?page=1&page_size=2", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data       []model.RunRecord  `json:"data"`
		Pagination service.Pagination `json:"pagination"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Len(t, resp.Data, 2)
	assert.Equal(t, "c", resp.Data[0].ID)
	assert.Equal(t, 3, resp.Pagination.TotalCount)
	assert.Equal(t, 2, resp.Pagination.TotalPages)
}
