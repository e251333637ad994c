package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/salonflow/calendar-sync/services/calendar-service/internal/payments"
	"github.com/salonflow/calendar-sync/services/calendar-service/internal/session"
)

type PaymentsHandler struct {
	sessions *session.Manager
	payments *payments.Service
	logger   *slog.Logger
}

func NewPaymentsHandler(sessions *session.Manager, paymentsService *payments.Service, logger *slog.Logger) *PaymentsHandler {
	return &PaymentsHandler{sessions: sessions, payments: paymentsService, logger: logger}
}

type createIntentRequest struct {
	AppointmentID string `json:"appointment_id"`
}

// CreateIntent opens a payment for an appointment's derived total. The
// status transition to paid happens through the normal update path once
// the client confirms the intent.
func (h *PaymentsHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.payments.Enabled() {
		http.Error(w, "payments not configured", http.StatusNotImplemented)
		return
	}

	var req createIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.AppointmentID) == "" {
		http.Error(w, "appointment_id is required", http.StatusBadRequest)
		return
	}

	sess := h.sessions.Session(r.Context(), SalonFromContext(r.Context()))
	appt, ok := sess.Store().Get(req.AppointmentID)
	if !ok {
		http.Error(w, "appointment not found", http.StatusNotFound)
		return
	}

	intent, err := h.payments.CreateIntent(appt)
	if err != nil {
		if errors.Is(err, payments.ErrNothingToCharge) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		h.logger.Error("payment intent failed", "err", err, "appointment_id", appt.ID)
		http.Error(w, "payment provider unavailable, retry", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, intent)
}
