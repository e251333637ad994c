// Package store holds the in-memory working set of appointments for one
// salon. It is the single source of truth calendar consumers read from;
// only the fetch coordinator (full snapshots) and the realtime bridge
// (incremental deltas) write to it.
package store

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/salonflow/calendar-sync/services/calendar-service/internal/model"
)

type Store struct {
	salonID string
	logger  *slog.Logger

	mu      sync.RWMutex
	records map[string]model.Appointment
}

func New(salonID string, logger *slog.Logger) *Store {
	return &Store{
		salonID: salonID,
		logger:  logger,
		records: map[string]model.Appointment{},
	}
}

func (s *Store) SalonID() string {
	return s.salonID
}

// ReplaceAll swaps the working set for a full snapshot. The input may carry
// accidental duplicates from joined reads; keyed by id, the last occurrence
// wins. Records for a different salon are flagged and skipped, never
// auto-corrected.
func (s *Store) ReplaceAll(records []model.Appointment) {
	next := make(map[string]model.Appointment, len(records))
	for _, rec := range records {
		if rec.SalonID != s.salonID {
			s.logger.Warn("tenant mismatch in snapshot, record skipped",
				"record_id", rec.ID, "record_salon", rec.SalonID, "salon_id", s.salonID)
			continue
		}
		next[rec.ID] = rec
	}

	s.mu.Lock()
	s.records = next
	s.mu.Unlock()
}

// ApplyDelta upserts or removes one record by id. Deltas for another tenant
// are dropped. Deletes apply by id alone, even when the local copy is stale
// or absent. Returns whether the delta changed the store.
func (s *Store) ApplyDelta(ev model.ChangeEvent) bool {
	if ev.SalonID != s.salonID {
		s.logger.Warn("tenant mismatch on delta, not applied",
			"record_id", ev.ID, "record_salon", ev.SalonID, "salon_id", s.salonID)
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Kind {
	case model.ChangeInsert, model.ChangeUpdate:
		if ev.Record == nil {
			return false
		}
		// The payload is checked separately from the envelope: a matching
		// envelope must not smuggle in another salon's record.
		if ev.Record.SalonID != s.salonID {
			s.logger.Warn("tenant mismatch in delta payload, not applied",
				"record_id", ev.ID, "record_salon", ev.Record.SalonID, "salon_id", s.salonID)
			return false
		}
		s.records[ev.ID] = *ev.Record
		return true
	case model.ChangeDelete:
		if _, ok := s.records[ev.ID]; !ok {
			return false
		}
		delete(s.records, ev.ID)
		return true
	}
	return false
}

func (s *Store) Get(id string) (model.Appointment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	return rec, ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Snapshot returns the working set ordered by date then start time, so
// repeated reads over an unchanged store are stable.
func (s *Store) Snapshot() []model.Appointment {
	s.mu.RLock()
	out := make([]model.Appointment, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Query applies the view filters to a snapshot.
func (s *Store) Query(view View) []model.Appointment {
	return view.Apply(s.Snapshot())
}
