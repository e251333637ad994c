package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/salonflow/calendar-sync/libs/auth"
	"github.com/salonflow/calendar-sync/services/calendar-service/internal/model"
	"github.com/salonflow/calendar-sync/services/calendar-service/internal/session"
)

type memRepo struct {
	records map[string]model.Appointment
	nextID  int
}

func newMemRepo() *memRepo {
	return &memRepo{records: map[string]model.Appointment{}}
}

func (r *memRepo) ListAppointments(_ context.Context, salonID string) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, rec := range r.records {
		if rec.SalonID == salonID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *memRepo) GetAppointment(_ context.Context, salonID, id string) (model.Appointment, error) {
	rec, ok := r.records[id]
	if !ok || rec.SalonID != salonID {
		return model.Appointment{}, errors.New("not found")
	}
	return rec, nil
}

func (r *memRepo) CreateAppointment(_ context.Context, appt model.Appointment) (model.Appointment, error) {
	if appt.ID == "" {
		r.nextID++
		appt.ID = "appt-" + string(rune('0'+r.nextID))
	}
	r.records[appt.ID] = appt
	return appt, nil
}

func (r *memRepo) UpdateAppointment(_ context.Context, salonID string, patch model.AppointmentPatch) (model.Appointment, error) {
	rec, ok := r.records[patch.ID]
	if !ok || rec.SalonID != salonID {
		return model.Appointment{}, errors.New("not found")
	}
	if patch.Status != nil {
		rec.Status = *patch.Status
	}
	r.records[rec.ID] = rec
	return rec, nil
}

func (r *memRepo) SoftDeleteAppointment(_ context.Context, salonID, id string) (model.Appointment, error) {
	rec, ok := r.records[id]
	if !ok || rec.SalonID != salonID {
		return model.Appointment{}, errors.New("not found")
	}
	rec.Status = model.StatusDeleted
	r.records[id] = rec
	return rec, nil
}

func (r *memRepo) DeleteLineItem(_ context.Context, salonID, appointmentID, itemID string) (model.Appointment, error) {
	rec, ok := r.records[appointmentID]
	if !ok || rec.SalonID != salonID {
		return model.Appointment{}, errors.New("not found")
	}
	items := rec.Services[:0:0]
	for _, item := range rec.Services {
		if item.ID != itemID {
			items = append(items, item)
		}
	}
	rec.Services = items
	r.records[appointmentID] = rec
	return rec, nil
}

type memCatalog struct{}

func (memCatalog) ListTeamMembers(context.Context, string) ([]model.TeamMember, error) {
	return []model.TeamMember{{ID: "m1", Name: "Dana", Active: true}}, nil
}

func (memCatalog) ListCustomStatuses(context.Context, string) ([]model.StatusDefinition, error) {
	return nil, nil
}

func newTestHandler(repo *memRepo) *CalendarHandler {
	manager := session.NewManager(session.ManagerConfig{
		Repo:    repo,
		Catalog: memCatalog{},
		Logger:  slog.Default(),
	})
	return NewCalendarHandler(manager, slog.Default())
}

func requestWithSalon(method, target, body, salonID string) *http.Request {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	return r.WithContext(context.WithValue(r.Context(), ctxKeySalonID, salonID))
}

func TestCalendarServesFilteredWorkingSet(t *testing.T) {
	repo := newMemRepo()
	repo.records["a1"] = model.Appointment{
		ID: "a1", SalonID: "salon-1", Date: "2024-06-01",
		StartTime: "09:00", EndTime: "09:30", TeamMemberID: "m1", Status: model.StatusPending,
	}
	repo.records["a2"] = model.Appointment{
		ID: "a2", SalonID: "salon-1", Date: "2024-06-02",
		StartTime: "10:00", EndTime: "10:30", TeamMemberID: "m2", Status: model.StatusConfirmed,
	}
	h := newTestHandler(repo)

	rec := httptest.NewRecorder()
	h.Calendar(rec, requestWithSalon(http.MethodGet, "/api/v1/calendar?dates=2024-06-01&grouped=true", "", "salon-1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp calendarResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Appointments) != 1 || resp.Appointments[0].ID != "a1" {
		t.Fatalf("unexpected appointments: %+v", resp.Appointments)
	}
	if len(resp.Grouped["09"]) != 1 {
		t.Fatalf("expected one 09h bucket entry, got %+v", resp.Grouped)
	}
}

func TestCreateValidation(t *testing.T) {
	h := newTestHandler(newMemRepo())

	cases := []struct {
		name string
		body string
		want int
	}{
		{"missing fields", `{"date":"2024-06-01"}`, http.StatusBadRequest},
		{"inverted range", `{"date":"2024-06-01","start_time":"10:00","end_time":"09:00","team_member_id":"m1"}`, http.StatusBadRequest},
		{"off grid", `{"date":"2024-06-01","start_time":"09:02","end_time":"09:30","team_member_id":"m1"}`, http.StatusBadRequest},
		{"valid", `{"date":"2024-06-01","start_time":"09:00","end_time":"09:30","team_member_id":"m1"}`, http.StatusCreated},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Create(rec, requestWithSalon(http.MethodPost, "/api/v1/appointments", tc.body, "salon-1"))
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d, body = %s", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestDeleteIsSoftOverHTTP(t *testing.T) {
	repo := newMemRepo()
	repo.records["a1"] = model.Appointment{
		ID: "a1", SalonID: "salon-1", Date: "2024-06-01",
		StartTime: "09:00", EndTime: "09:30", TeamMemberID: "m1", Status: model.StatusConfirmed,
	}
	h := newTestHandler(repo)

	rec := httptest.NewRecorder()
	h.Delete(rec, requestWithSalon(http.MethodPost, "/api/v1/appointments/delete", `{"id":"a1"}`, "salon-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var deleted model.Appointment
	if err := json.Unmarshal(rec.Body.Bytes(), &deleted); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if deleted.Status != model.StatusDeleted {
		t.Fatalf("expected soft-delete status, got %q", deleted.Status)
	}
	if repo.records["a1"].Status != model.StatusDeleted {
		t.Fatal("row must remain, only transitioned")
	}
}

func TestMethodChecks(t *testing.T) {
	h := newTestHandler(newMemRepo())

	rec := httptest.NewRecorder()
	h.Calendar(rec, requestWithSalon(http.MethodPost, "/api/v1/calendar", "", "salon-1"))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.Create(rec, requestWithSalon(http.MethodGet, "/api/v1/appointments", "", "salon-1"))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestRequireSalon(t *testing.T) {
	secret := "test-secret"
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(SalonFromContext(r.Context())))
	})
	protected := RequireSalon(next, secret, nil)

	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: status = %d, want 401", rec.Code)
	}

	token, err := auth.SignHS256(auth.Claims{SalonID: "salon-1"}, secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "salon-1" {
		t.Fatalf("valid token: status = %d, body = %q", rec.Code, rec.Body.String())
	}

	noSalon, err := auth.SignHS256(auth.Claims{}, secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+noSalon)
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("salonless token: status = %d, want 403", rec.Code)
	}
}
