// internal/handler/results_handler.go
package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/unclebandit/outreach-backend/internal/export"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/repository"
	"github.com/unclebandit/outreach-backend/internal/service"
)

// ResultsHandler serves the ledger, delivery webhooks and health.
type ResultsHandler struct {
	Ledger  repository.Ledger
	Events  repository.EventRepositoryInterface
	Monitor *service.MonitorService
	Logger  *zap.Logger
	Now     func() time.Time
}

func NewResultsHandler(ledger repository.Ledger, events repository.EventRepositoryInterface, monitor *service.MonitorService, logger *zap.Logger) *ResultsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultsHandler{
		Ledger:  ledger,
		Events:  events,
		Monitor: monitor,
		Logger:  logger,
		Now:     func() time.Time { return time.Now().UTC() },
	}
}

func (h *ResultsHandler) Routes(r chi.Router) {
	r.Get("/results", h.ListResultsHandler)
	r.Get("/results/export", h.ExportResultsHandler)
	r.Post("/webhook/resend", h.ResendWebhookHandler)
	r.Get("/events/summary", h.EventsSummaryHandler)
	r.Get("/health", h.HealthHandler)
}

// ListResultsHandler returns every ledger row as JSON.
func (h *ResultsHandler) ListResultsHandler(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Ledger.List(r.Context())
	if err != nil {
		http.Error(w, "failed to read results: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if tier := r.URL.Query().Get("tier"); tier != "" {
		filtered := rows[:0]
		for _, row := range rows {
			if row.Tier == tier || (tier == "first" && row.IsFirstContact()) {
				filtered = append(filtered, row)
			}
		}
		rows = filtered
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"data":  rows,
		"total": len(rows),
	})
}

// ExportResultsHandler streams the ledger as CSV.
func (h *ResultsHandler) ExportResultsHandler(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Ledger.List(r.Context())
	if err != nil {
		http.Error(w, "failed to read results: "+err.Error(), http.StatusInternalServerError)
		return
	}

	name := "campaign_results_" + h.Now().Format("20060102_150405") + ".csv"
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	if err := export.WriteResults(w, rows); err != nil {
		h.Logger.Error("export failed", zap.Error(err))
	}
}

type resendWebhook struct {
	Type      string `json:"type"`
	CreatedAt string `json:"created_at"`
	Data      struct {
		EmailID string          `json:"email_id"`
		To      json.RawMessage `json:"to"`
		Subject string          `json:"subject"`
		Status  string          `json:"status"`
	} `json:"data"`
}

// ResendWebhookHandler logs a provider delivery event.
func (h *ResultsHandler) ResendWebhookHandler(w http.ResponseWriter, r *http.Request) {
	var payload resendWebhook
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if payload.Type == "" {
		http.Error(w, "missing event type", http.StatusBadRequest)
		return
	}

	event := &model.DeliveryEvent{
		ReceivedAt: h.Now(),
		EventType:  payload.Type,
		EmailID:    payload.Data.EmailID,
		To:         recipients(payload.Data.To),
		Subject:    payload.Data.Subject,
		Status:     payload.Data.Status,
	}
	if event.Status == "" {
		event.Status = strings.TrimPrefix(payload.Type, "email.")
	}

	if err := h.Events.Append(r.Context(), event); err != nil {
		h.Logger.Error("webhook event not stored", zap.Error(err))
		http.Error(w, "failed to store event", http.StatusInternalServerError)
		return
	}
	h.Logger.Info("webhook event received", zap.String("type", event.EventType), zap.String("to", event.To))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "success"})
}

// recipients accepts both a single address and a list.
func recipients(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, ",")
	}
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		return one
	}
	return ""
}

func (h *ResultsHandler) EventsSummaryHandler(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Events.Summary(r.Context())
	if err != nil {
		http.Error(w, "failed to summarise events: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}

func (h *ResultsHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	health, err := h.Monitor.Health(r.Context())
	if err != nil {
		http.Error(w, "failed to compute health: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}
