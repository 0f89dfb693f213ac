package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/atlasmedia/pulse/internal/domain"
	"github.com/atlasmedia/pulse/internal/repository/postgres"
)

// ListAlerts serves filtered anomaly alerts, newest first.
func (h *Handlers) ListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	alerts, total, err := h.alerts.List(r.Context(), postgres.AlertFilter{
		Status:   domain.AlertStatus(q.Get("status")),
		Source:   q.Get("source"),
		Severity: domain.AlertSeverity(q.Get("severity")),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	if alerts == nil {
		alerts = []domain.Alert{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"data":  alerts,
		"total": total,
	})
}

// GetAlert serves one alert.
func (h *Handlers) GetAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := h.alerts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"data": alert})
}

// AcknowledgeAlert marks an open alert as seen.
func (h *Handlers) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	h.setAlertStatus(w, r, domain.AlertAcknowledged)
}

// ResolveAlert closes an alert.
func (h *Handlers) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	h.setAlertStatus(w, r, domain.AlertResolved)
}

func (h *Handlers) setAlertStatus(w http.ResponseWriter, r *http.Request, status domain.AlertStatus) {
	id := chi.URLParam(r, "id")
	if err := h.alerts.UpdateStatus(r.Context(), id, status); err != nil {
		respondDomainError(w, r, err)
		return
	}
	alert, err := h.alerts.Get(r.Context(), id)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"data": alert})
}
