// Package fetch performs full snapshot reads of a salon's appointments into
// the store, collapsing concurrent requests into one underlying read.
package fetch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/salonflow/calendar-sync/services/calendar-service/internal/model"
	"github.com/salonflow/calendar-sync/services/calendar-service/internal/store"
)

// Reader is the bulk-read side of the remote store. The pgx repository
// satisfies it; tests substitute fakes.
type Reader interface {
	ListAppointments(ctx context.Context, salonID string) ([]model.Appointment, error)
}

type Coordinator struct {
	reader Reader
	store  *store.Store
	logger *slog.Logger

	mu       sync.Mutex
	inFlight int
}

func NewCoordinator(reader Reader, st *store.Store, logger *slog.Logger) *Coordinator {
	return &Coordinator{reader: reader, store: st, logger: logger}
}

// Fetching reports whether a snapshot read is in flight. The realtime
// bridge consults it and drops deltas for that window; the snapshot is
// authoritative for everything it covers.
func (c *Coordinator) Fetching() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight > 0
}

// Fetch reads the full working set and replaces the store contents.
//
// A non-forced call while another fetch is in flight returns immediately
// without issuing a second read. A forced call may overlap an in-flight one;
// whichever completes last overwrites the store, no further ordering is
// guaranteed. On failure the store is left untouched and the error goes back
// to the caller; there is no automatic retry. A canceled context discards
// the completion instead of applying it.
func (c *Coordinator) Fetch(ctx context.Context, force bool) error {
	c.mu.Lock()
	if c.inFlight > 0 && !force {
		c.mu.Unlock()
		return nil
	}
	c.inFlight++
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inFlight--
		c.mu.Unlock()
	}()

	records, err := c.reader.ListAppointments(ctx, c.store.SalonID())
	if err != nil {
		c.logger.Error("appointment fetch failed", "err", err, "salon_id", c.store.SalonID())
		return err
	}
	if err := ctx.Err(); err != nil {
		// Caller went away mid-fetch; last-known data stays visible.
		return err
	}

	c.store.ReplaceAll(records)
	return nil
}
