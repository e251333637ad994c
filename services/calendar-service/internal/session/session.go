// Package session ties one salon's sync state together: the in-memory
// store, the fetch coordinator, the realtime bridge and the event bus.
// Calendar consumers only ever talk to a Session; the store is mutated
// exclusively by the coordinator (snapshots) and the bridge (deltas).
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/salonflow/calendar-sync/services/calendar-service/internal/bridge"
	"github.com/salonflow/calendar-sync/services/calendar-service/internal/bus"
	"github.com/salonflow/calendar-sync/services/calendar-service/internal/fetch"
	"github.com/salonflow/calendar-sync/services/calendar-service/internal/model"
	"github.com/salonflow/calendar-sync/services/calendar-service/internal/store"
)

var ErrTenantMismatch = errors.New("record belongs to a different salon")

// Repository is the remote-store contract the session needs: the bulk read
// the coordinator issues plus the point writes. The pgx repository
// implements it.
type Repository interface {
	fetch.Reader
	GetAppointment(ctx context.Context, salonID, id string) (model.Appointment, error)
	CreateAppointment(ctx context.Context, appt model.Appointment) (model.Appointment, error)
	UpdateAppointment(ctx context.Context, salonID string, patch model.AppointmentPatch) (model.Appointment, error)
	SoftDeleteAppointment(ctx context.Context, salonID, id string) (model.Appointment, error)
	DeleteLineItem(ctx context.Context, salonID, appointmentID, itemID string) (model.Appointment, error)
}

// CatalogReader loads the dependent tables appointments reference weakly.
type CatalogReader interface {
	ListTeamMembers(ctx context.Context, salonID string) ([]model.TeamMember, error)
	ListCustomStatuses(ctx context.Context, salonID string) ([]model.StatusDefinition, error)
}

// Notifier publishes a change event on the tenant feed after a committed
// write. That feed is what every open session's bridge consumes, including
// the writer's own: one logical change is delivered twice (bus + feed) and
// the store's merge-by-id absorbs it.
type Notifier interface {
	PublishChange(ctx context.Context, ev model.ChangeEvent) error
}

type Session struct {
	salonID  string
	store    *store.Store
	coord    *fetch.Coordinator
	bridge   *bridge.Bridge
	bus      *bus.Bus
	repo     Repository
	catalog  CatalogReader
	notifier Notifier
	logger   *slog.Logger
	cooldown *Cooldown

	mu            sync.Mutex
	members       []model.TeamMember
	membersValid  bool
	statuses      []model.StatusDefinition
	statusesValid bool
}

type Config struct {
	SalonID        string
	Repo           Repository
	Catalog        CatalogReader
	Notifier       Notifier
	Logger         *slog.Logger
	CooldownWindow time.Duration
}

func New(cfg Config) *Session {
	logger := cfg.Logger.With("salon_id", cfg.SalonID)
	st := store.New(cfg.SalonID, logger)
	return &Session{
		salonID:  cfg.SalonID,
		store:    st,
		coord:    fetch.NewCoordinator(cfg.Repo, st, logger),
		bus:      bus.New(),
		repo:     cfg.Repo,
		catalog:  cfg.Catalog,
		notifier: cfg.Notifier,
		logger:   logger,
		cooldown: NewCooldown(cfg.CooldownWindow),
	}
}

func (s *Session) SalonID() string { return s.salonID }

// Store exposes the merge target to the bridge; consumers read through
// Appointments/GroupedByHour instead.
func (s *Session) Store() *store.Store { return s.store }

func (s *Session) Coordinator() *fetch.Coordinator { return s.coord }

// AttachBridge hands the session its realtime bridge once the manager has
// started it.
func (s *Session) AttachBridge(b *bridge.Bridge) {
	s.mu.Lock()
	s.bridge = b
	s.mu.Unlock()
}

// InvalidateCatalog is wired as the bridge's catalog-change hook.
func (s *Session) InvalidateCatalog(table string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch table {
	case model.TableTeamMembers:
		s.membersValid = false
	case model.TableStatuses:
		s.statusesValid = false
	}
}

// FeedStatus reports the realtime connection state. Without a bridge the
// session runs degraded: reads and writes work, live updates do not.
func (s *Session) FeedStatus() bridge.Status {
	s.mu.Lock()
	b := s.bridge
	s.mu.Unlock()
	if b == nil {
		return bridge.StatusDegraded
	}
	return b.Status()
}

// Appointments returns the current working set under the view's filters.
func (s *Session) Appointments(view store.View) []model.Appointment {
	return s.store.Query(view)
}

// GroupedByHour returns the filtered working set bucketed by start hour.
func (s *Session) GroupedByHour(view store.View) map[string][]model.Appointment {
	return store.GroupByHour(s.store.Query(view))
}

// Refresh re-reads the full working set. Non-forced refreshes inside the
// cooldown window are ignored; forced ones always run and may overlap an
// in-flight fetch, last completion winning.
func (s *Session) Refresh(ctx context.Context, force bool) error {
	if !force && !s.cooldown.TryAcquire() {
		return nil
	}
	return s.coord.Fetch(ctx, force)
}

func (s *Session) CreateAppointment(ctx context.Context, appt model.Appointment) (model.Appointment, error) {
	if appt.SalonID != "" && appt.SalonID != s.salonID {
		return model.Appointment{}, fmt.Errorf("%w: %s", ErrTenantMismatch, appt.SalonID)
	}
	appt.SalonID = s.salonID
	if err := model.ValidateTimeRange(appt.StartTime, appt.EndTime); err != nil {
		return model.Appointment{}, err
	}
	if appt.Status == "" {
		appt.Status = model.StatusPending
	}

	created, err := s.repo.CreateAppointment(ctx, appt)
	if err != nil {
		return model.Appointment{}, err
	}

	s.afterWrite(ctx, bus.EventAppointmentCreated, model.ChangeEvent{
		Kind:    model.ChangeInsert,
		Table:   model.TableAppointments,
		SalonID: s.salonID,
		ID:      created.ID,
		Record:  &created,
	})
	return created, nil
}

func (s *Session) UpdateAppointment(ctx context.Context, patch model.AppointmentPatch) (model.Appointment, error) {
	if patch.StartTime != nil || patch.EndTime != nil {
		current, ok := s.store.Get(patch.ID)
		if !ok {
			// Cold store: a one-sided time edit still needs the stored
			// counterpart to validate the pair.
			rec, err := s.repo.GetAppointment(ctx, s.salonID, patch.ID)
			if err != nil {
				return model.Appointment{}, err
			}
			current = rec
		}
		start, end := patch.TimeRangeAfter(current)
		if err := model.ValidateTimeRange(start, end); err != nil {
			return model.Appointment{}, err
		}
	}

	updated, err := s.repo.UpdateAppointment(ctx, s.salonID, patch)
	if err != nil {
		return model.Appointment{}, err
	}

	s.afterWrite(ctx, bus.EventAppointmentUpdated, model.ChangeEvent{
		Kind:    model.ChangeUpdate,
		Table:   model.TableAppointments,
		SalonID: s.salonID,
		ID:      updated.ID,
		Record:  &updated,
	})
	return updated, nil
}

// DeleteAppointment is a soft delete: the record transitions to the
// terminal status and stays in the working set. On the change feed this is
// an update, not a removal.
func (s *Session) DeleteAppointment(ctx context.Context, id string) (model.Appointment, error) {
	deleted, err := s.repo.SoftDeleteAppointment(ctx, s.salonID, id)
	if err != nil {
		return model.Appointment{}, err
	}

	s.afterWrite(ctx, bus.EventAppointmentDeleted, model.ChangeEvent{
		Kind:    model.ChangeUpdate,
		Table:   model.TableAppointments,
		SalonID: s.salonID,
		ID:      deleted.ID,
		Record:  &deleted,
	})
	return deleted, nil
}

// DeleteLineItem is a real delete against the line-item table, unlike
// appointment deletion. The parent appointment stays a live record and is
// re-published on the feed as an update with the item gone; an
// appointment-level delete kind never originates here.
func (s *Session) DeleteLineItem(ctx context.Context, appointmentID, itemID string) (model.Appointment, error) {
	parent, err := s.repo.DeleteLineItem(ctx, s.salonID, appointmentID, itemID)
	if err != nil {
		return model.Appointment{}, err
	}

	s.afterWrite(ctx, bus.EventAppointmentUpdated, model.ChangeEvent{
		Kind:    model.ChangeUpdate,
		Table:   model.TableAppointments,
		SalonID: s.salonID,
		ID:      parent.ID,
		Record:  &parent,
	})
	return parent, nil
}

// Subscribe and Publish expose the in-process bus to sibling consumers.
func (s *Session) Subscribe(event string, h bus.Handler) func() {
	return s.bus.Subscribe(event, h)
}

func (s *Session) Publish(event string, detail any) {
	s.bus.Publish(event, detail)
}

// TeamMembers serves the cached team-member table, reloading after a
// catalog delta invalidated it.
func (s *Session) TeamMembers(ctx context.Context) ([]model.TeamMember, error) {
	s.mu.Lock()
	if s.membersValid {
		members := s.members
		s.mu.Unlock()
		return members, nil
	}
	s.mu.Unlock()

	members, err := s.catalog.ListTeamMembers(ctx, s.salonID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.members = members
	s.membersValid = true
	s.mu.Unlock()
	return members, nil
}

// TeamMember resolves a weak reference, falling back to a placeholder for
// missing or deactivated members so rendering never breaks.
func (s *Session) TeamMember(ctx context.Context, id string) model.TeamMember {
	members, err := s.TeamMembers(ctx)
	if err != nil {
		return model.PlaceholderMember(id)
	}
	for _, m := range members {
		if m.ID == id {
			return m
		}
	}
	return model.PlaceholderMember(id)
}

// StatusDefinitions returns the system statuses unioned with the salon's
// custom ones.
func (s *Session) StatusDefinitions(ctx context.Context) ([]model.StatusDefinition, error) {
	s.mu.Lock()
	if s.statusesValid {
		statuses := s.statuses
		s.mu.Unlock()
		return statuses, nil
	}
	s.mu.Unlock()

	custom, err := s.catalog.ListCustomStatuses(ctx, s.salonID)
	if err != nil {
		return nil, err
	}
	merged := model.MergeStatuses(model.SystemStatuses(), custom)
	s.mu.Lock()
	s.statuses = merged
	s.statusesValid = true
	s.mu.Unlock()
	return merged, nil
}

// afterWrite runs the post-commit fan-out: bus notification for sibling
// consumers, change-feed publication for other sessions, then a
// refetch-on-settle. The feed also redelivers the change to this session's
// own bridge; merge-by-id keeps both paths idempotent.
func (s *Session) afterWrite(ctx context.Context, event string, ev model.ChangeEvent) {
	s.bus.Publish(event, ev)

	if s.notifier != nil {
		if err := s.notifier.PublishChange(ctx, ev); err != nil {
			// The write is durable; other sessions just lag until their
			// next refresh.
			s.logger.Warn("change feed publish failed", "err", err, "record_id", ev.ID)
		}
	}

	if err := s.coord.Fetch(ctx, false); err != nil && ctx.Err() == nil {
		s.logger.Warn("post-write refresh failed", "err", err, "record_id", ev.ID)
	}
}
