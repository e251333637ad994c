package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/salonflow/calendar-sync/services/calendar-service/internal/model"
	"github.com/salonflow/calendar-sync/services/calendar-service/internal/session"
	"github.com/salonflow/calendar-sync/services/calendar-service/internal/storage"
	"github.com/salonflow/calendar-sync/services/calendar-service/internal/store"
)

type CalendarHandler struct {
	sessions *session.Manager
	logger   *slog.Logger
}

func NewCalendarHandler(sessions *session.Manager, logger *slog.Logger) *CalendarHandler {
	return &CalendarHandler{sessions: sessions, logger: logger}
}

type calendarResponse struct {
	Appointments []model.Appointment            `json:"appointments"`
	Grouped      map[string][]model.Appointment `json:"grouped,omitempty"`
	FeedStatus   string                         `json:"feed_status"`
}

// Calendar serves the filtered working set. Filters arrive as query params:
// dates, members and statuses are comma-separated; show_deleted flips to
// the soft-deleted view; grouped adds hour buckets.
func (h *CalendarHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess := h.sessions.Session(r.Context(), SalonFromContext(r.Context()))
	view := store.View{
		Dates:       splitParam(r.URL.Query().Get("dates")),
		MemberIDs:   splitParam(r.URL.Query().Get("members")),
		Statuses:    splitParam(r.URL.Query().Get("statuses")),
		ShowDeleted: r.URL.Query().Get("show_deleted") == "true",
	}

	resp := calendarResponse{
		Appointments: sess.Appointments(view),
		FeedStatus:   string(sess.FeedStatus()),
	}
	if resp.Appointments == nil {
		resp.Appointments = []model.Appointment{}
	}
	if r.URL.Query().Get("grouped") == "true" {
		resp.Grouped = sess.GroupedByHour(view)
	}
	writeJSON(w, http.StatusOK, resp)
}

type createAppointmentRequest struct {
	Date         string              `json:"date"`
	StartTime    string              `json:"start_time"`
	EndTime      string              `json:"end_time"`
	TeamMemberID string              `json:"team_member_id"`
	Status       string              `json:"status"`
	ClientName   string              `json:"client_name"`
	Notes        string              `json:"notes"`
	ColorTag     string              `json:"color_tag"`
	CardStyle    string              `json:"card_style"`
	Services     []model.ServiceItem `json:"services"`
}

func (h *CalendarHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	req.Date = strings.TrimSpace(req.Date)
	req.TeamMemberID = strings.TrimSpace(req.TeamMemberID)
	if req.Date == "" || req.StartTime == "" || req.EndTime == "" || req.TeamMemberID == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}

	sess := h.sessions.Session(r.Context(), SalonFromContext(r.Context()))
	created, err := sess.CreateAppointment(r.Context(), model.Appointment{
		Date:         req.Date,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		TeamMemberID: req.TeamMemberID,
		Status:       req.Status,
		ClientName:   req.ClientName,
		Notes:        req.Notes,
		ColorTag:     req.ColorTag,
		CardStyle:    req.CardStyle,
		Services:     req.Services,
	})
	if err != nil {
		h.writeActionError(w, err, "create failed")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

type updateAppointmentRequest struct {
	ID           string               `json:"id"`
	Date         *string              `json:"date"`
	StartTime    *string              `json:"start_time"`
	EndTime      *string              `json:"end_time"`
	TeamMemberID *string              `json:"team_member_id"`
	Status       *string              `json:"status"`
	ClientName   *string              `json:"client_name"`
	Notes        *string              `json:"notes"`
	ColorTag     *string              `json:"color_tag"`
	CardStyle    *string              `json:"card_style"`
	Services     *[]model.ServiceItem `json:"services"`
}

func (h *CalendarHandler) Update(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch && r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req updateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	sess := h.sessions.Session(r.Context(), SalonFromContext(r.Context()))
	updated, err := sess.UpdateAppointment(r.Context(), model.AppointmentPatch{
		ID:           req.ID,
		Date:         req.Date,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		TeamMemberID: req.TeamMemberID,
		Status:       req.Status,
		ClientName:   req.ClientName,
		Notes:        req.Notes,
		ColorTag:     req.ColorTag,
		CardStyle:    req.CardStyle,
		Services:     req.Services,
	})
	if err != nil {
		h.writeActionError(w, err, "update failed")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type deleteAppointmentRequest struct {
	ID string `json:"id"`
}

// Delete soft-deletes: the appointment transitions to the terminal status
// and remains readable through the deleted view.
func (h *CalendarHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req deleteAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.ID) == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	sess := h.sessions.Session(r.Context(), SalonFromContext(r.Context()))
	deleted, err := sess.DeleteAppointment(r.Context(), req.ID)
	if err != nil {
		h.writeActionError(w, err, "delete failed")
		return
	}
	writeJSON(w, http.StatusOK, deleted)
}

type deleteLineItemRequest struct {
	AppointmentID string `json:"appointment_id"`
	LineItemID    string `json:"line_item_id"`
}

func (h *CalendarHandler) DeleteLineItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req deleteLineItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.AppointmentID == "" || req.LineItemID == "" {
		http.Error(w, "appointment_id and line_item_id are required", http.StatusBadRequest)
		return
	}

	sess := h.sessions.Session(r.Context(), SalonFromContext(r.Context()))
	parent, err := sess.DeleteLineItem(r.Context(), req.AppointmentID, req.LineItemID)
	if err != nil {
		h.writeActionError(w, err, "line-item delete failed")
		return
	}
	writeJSON(w, http.StatusOK, parent)
}

type refreshRequest struct {
	Force bool `json:"force"`
}

func (h *CalendarHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req refreshRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	sess := h.sessions.Session(r.Context(), SalonFromContext(r.Context()))
	if err := sess.Refresh(r.Context(), req.Force); err != nil {
		// Previously displayed data stays; the client gets a retry action.
		http.Error(w, "refresh failed, retry", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *CalendarHandler) TeamMembers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sess := h.sessions.Session(r.Context(), SalonFromContext(r.Context()))
	members, err := sess.TeamMembers(r.Context())
	if err != nil {
		http.Error(w, "failed to load team members", http.StatusInternalServerError)
		return
	}
	if members == nil {
		members = []model.TeamMember{}
	}
	writeJSON(w, http.StatusOK, members)
}

func (h *CalendarHandler) Statuses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sess := h.sessions.Session(r.Context(), SalonFromContext(r.Context()))
	statuses, err := sess.StatusDefinitions(r.Context())
	if err != nil {
		http.Error(w, "failed to load statuses", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}

// FeedStatus exposes the realtime connection state so the UI can indicate
// loss of live updates.
func (h *CalendarHandler) FeedStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sess := h.sessions.Session(r.Context(), SalonFromContext(r.Context()))
	writeJSON(w, http.StatusOK, map[string]string{"feed_status": string(sess.FeedStatus())})
}

func (h *CalendarHandler) writeActionError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, model.ErrInvalidTimeRange), errors.Is(err, session.ErrTenantMismatch):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case storage.IsNotFound(err):
		http.Error(w, "appointment not found", http.StatusNotFound)
	default:
		h.logger.Error(msg, "err", err)
		http.Error(w, msg+", retry", http.StatusBadGateway)
	}
}

func splitParam(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
