package store

import (
	"log/slog"
	"testing"

	"github.com/salonflow/calendar-sync/services/calendar-service/internal/model"
)

func testLogger() *slog.Logger {
	return slog.Default()
}

func appt(id, date, start, member, status string) model.Appointment {
	return model.Appointment{
		ID:           id,
		SalonID:      "salon-1",
		Date:         date,
		StartTime:    start,
		EndTime:      "23:55",
		TeamMemberID: member,
		Status:       status,
	}
}

func TestReplaceAllDedupsByID(t *testing.T) {
	s := New("salon-1", testLogger())

	first := appt("a1", "2024-06-01", "09:00", "m1", model.StatusPending)
	second := first
	second.StartTime = "10:00"

	s.ReplaceAll([]model.Appointment{first, second, appt("a2", "2024-06-01", "11:00", "m1", model.StatusPending)})

	if s.Len() != 2 {
		t.Fatalf("expected 2 records after dedup, got %d", s.Len())
	}
	got, ok := s.Get("a1")
	if !ok {
		t.Fatal("a1 missing")
	}
	if got.StartTime != "10:00" {
		t.Fatalf("last occurrence should win, got start %q", got.StartTime)
	}
}

func TestReplaceAllSkipsForeignTenant(t *testing.T) {
	s := New("salon-1", testLogger())

	foreign := appt("x1", "2024-06-01", "09:00", "m1", model.StatusPending)
	foreign.SalonID = "salon-2"

	s.ReplaceAll([]model.Appointment{foreign, appt("a1", "2024-06-01", "09:00", "m1", model.StatusPending)})

	if s.Len() != 1 {
		t.Fatalf("expected 1 record, got %d", s.Len())
	}
	if _, ok := s.Get("x1"); ok {
		t.Fatal("foreign-tenant record must not be stored")
	}
}

func TestApplyDeltaIdempotent(t *testing.T) {
	s := New("salon-1", testLogger())

	rec := appt("a1", "2024-06-01", "09:00", "m1", model.StatusPending)
	ev := model.ChangeEvent{
		Kind:    model.ChangeInsert,
		Table:   model.TableAppointments,
		SalonID: "salon-1",
		ID:      "a1",
		Record:  &rec,
	}

	s.ApplyDelta(ev)
	s.ApplyDelta(ev)

	if s.Len() != 1 {
		t.Fatalf("double delivery must yield one record, got %d", s.Len())
	}
	got, _ := s.Get("a1")
	if got.StartTime != "09:00" {
		t.Fatalf("unexpected record after double apply: %+v", got)
	}
}

func TestApplyDeltaTenantIsolation(t *testing.T) {
	s := New("salon-1", testLogger())

	rec := appt("a1", "2024-06-01", "09:00", "m1", model.StatusPending)
	rec.SalonID = "salon-2"
	applied := s.ApplyDelta(model.ChangeEvent{
		Kind:    model.ChangeInsert,
		Table:   model.TableAppointments,
		SalonID: "salon-2",
		ID:      "a1",
		Record:  &rec,
	})

	if applied {
		t.Fatal("foreign-tenant delta must not apply")
	}
	if s.Len() != 0 {
		t.Fatalf("store must stay empty, got %d records", s.Len())
	}
}

func TestApplyDeltaRejectsForeignPayload(t *testing.T) {
	s := New("salon-1", testLogger())

	// Envelope matches the store's tenant, payload does not. The record
	// must never enter the store.
	rec := appt("x1", "2024-06-01", "09:00", "m1", model.StatusPending)
	rec.SalonID = "salon-2"
	applied := s.ApplyDelta(model.ChangeEvent{
		Kind:    model.ChangeInsert,
		Table:   model.TableAppointments,
		SalonID: "salon-1",
		ID:      "x1",
		Record:  &rec,
	})

	if applied {
		t.Fatal("mismatched payload must not apply")
	}
	if s.Len() != 0 {
		t.Fatalf("foreign payload entered the store, len=%d", s.Len())
	}
}

func TestApplyDeltaDeleteWithoutLocalCopy(t *testing.T) {
	s := New("salon-1", testLogger())

	// Delete for a record we never loaded: no-op, no panic.
	applied := s.ApplyDelta(model.ChangeEvent{
		Kind:    model.ChangeDelete,
		Table:   model.TableAppointments,
		SalonID: "salon-1",
		ID:      "ghost",
	})
	if applied {
		t.Fatal("deleting an absent record should report no change")
	}

	rec := appt("a1", "2024-06-01", "09:00", "m1", model.StatusPending)
	s.ReplaceAll([]model.Appointment{rec})
	applied = s.ApplyDelta(model.ChangeEvent{
		Kind:    model.ChangeDelete,
		Table:   model.TableAppointments,
		SalonID: "salon-1",
		ID:      "a1",
	})
	if !applied || s.Len() != 0 {
		t.Fatalf("delete by id must remove the record, len=%d", s.Len())
	}
}

func TestApplyDeltaLastWriteWins(t *testing.T) {
	s := New("salon-1", testLogger())

	first := appt("a1", "2024-06-01", "09:00", "m1", model.StatusPending)
	second := appt("a1", "2024-06-01", "09:00", "m1", model.StatusConfirmed)

	s.ApplyDelta(model.ChangeEvent{Kind: model.ChangeInsert, Table: model.TableAppointments, SalonID: "salon-1", ID: "a1", Record: &first})
	s.ApplyDelta(model.ChangeEvent{Kind: model.ChangeUpdate, Table: model.TableAppointments, SalonID: "salon-1", ID: "a1", Record: &second})

	got, _ := s.Get("a1")
	if got.Status != model.StatusConfirmed {
		t.Fatalf("most recent delta must win, got status %q", got.Status)
	}
	if s.Len() != 1 {
		t.Fatalf("expected one record, got %d", s.Len())
	}
}

func TestFilterByDatesNormalizes(t *testing.T) {
	withTime := appt("a1", "2024-06-01T00:00:00Z", "09:00", "m1", model.StatusPending)
	plain := appt("a2", "2024-06-02", "09:00", "m1", model.StatusPending)

	got := FilterByDates([]model.Appointment{withTime, plain}, []string{"2024-06-01"})
	if len(got) != 1 || got[0].ID != "a1" {
		t.Fatalf("expected only a1, got %+v", got)
	}

	// Empty selection keeps everything.
	got = FilterByDates([]model.Appointment{withTime, plain}, nil)
	if len(got) != 2 {
		t.Fatalf("empty date selection must not filter, got %d", len(got))
	}
}

func TestFilterByMembers(t *testing.T) {
	records := []model.Appointment{
		appt("a1", "2024-06-01", "09:00", "m1", model.StatusPending),
		appt("a2", "2024-06-01", "10:00", "m2", model.StatusPending),
	}
	got := FilterByMembers(records, []string{"m2"})
	if len(got) != 1 || got[0].ID != "a2" {
		t.Fatalf("expected only a2, got %+v", got)
	}
	if got := FilterByMembers(records, nil); len(got) != 2 {
		t.Fatal("empty member selection must not filter")
	}
}

func TestDeletedToggleMutualExclusivity(t *testing.T) {
	records := []model.Appointment{
		appt("a1", "2024-06-01", "09:00", "m1", model.StatusConfirmed),
		appt("a2", "2024-06-01", "10:00", "m1", model.StatusDeleted),
	}

	// ShowDeleted: only soft-deleted records, the status selection is ignored.
	view := View{ShowDeleted: true, Statuses: []string{model.StatusConfirmed}}
	got := view.Apply(records)
	if len(got) != 1 || got[0].ID != "a2" {
		t.Fatalf("expected only the soft-deleted record, got %+v", got)
	}

	// Not ShowDeleted: soft-deleted records never appear, even when the
	// status selection names them explicitly.
	view = View{ShowDeleted: false, Statuses: []string{model.StatusDeleted, model.StatusConfirmed}}
	got = view.Apply(records)
	if len(got) != 1 || got[0].ID != "a1" {
		t.Fatalf("soft-deleted record leaked into the normal view: %+v", got)
	}
}

func TestGroupByHour(t *testing.T) {
	records := []model.Appointment{
		appt("a2", "2024-06-01", "09:45", "m1", model.StatusPending),
		appt("a3", "2024-06-01", "10:00", "m1", model.StatusPending),
		appt("a1", "2024-06-01", "09:05", "m1", model.StatusPending),
	}

	buckets := GroupByHour(records)
	if len(buckets) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(buckets))
	}
	nine := buckets["09"]
	if len(nine) != 2 || nine[0].StartTime != "09:05" || nine[1].StartTime != "09:45" {
		t.Fatalf("unexpected 09 bucket: %+v", nine)
	}
	ten := buckets["10"]
	if len(ten) != 1 || ten[0].StartTime != "10:00" {
		t.Fatalf("unexpected 10 bucket: %+v", ten)
	}
}

func TestSnapshotOrdering(t *testing.T) {
	s := New("salon-1", testLogger())
	s.ReplaceAll([]model.Appointment{
		appt("b", "2024-06-02", "09:00", "m1", model.StatusPending),
		appt("a", "2024-06-01", "10:00", "m1", model.StatusPending),
		appt("c", "2024-06-01", "09:00", "m1", model.StatusPending),
	})

	snap := s.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 records, got %d", len(snap))
	}
	if snap[0].ID != "c" || snap[1].ID != "a" || snap[2].ID != "b" {
		t.Fatalf("unexpected order: %s %s %s", snap[0].ID, snap[1].ID, snap[2].ID)
	}
}
