// Package bridge subscribes to a salon's change-feed channels and applies
// incremental deltas to the appointment store. Connection loss degrades to
// "no live updates": last-known data stays visible and direct writes keep
// working, so failures here are absorbed, never propagated to consumers.
package bridge

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/salonflow/calendar-sync/libs/redisx"
	"github.com/salonflow/calendar-sync/services/calendar-service/internal/model"
	"github.com/salonflow/calendar-sync/services/calendar-service/internal/store"
)

type Status string

const (
	StatusIdle     Status = "idle"
	StatusLive     Status = "live"
	StatusDegraded Status = "degraded"
	StatusClosed   Status = "closed"
)

// FetchState is the suppression flag shared with the fetch coordinator.
// While a snapshot read is in flight, appointment deltas are dropped; the
// snapshot that follows is authoritative for that window.
type FetchState interface {
	Fetching() bool
}

type Bridge struct {
	rdb    *redis.Client
	store  *store.Store
	fetch  FetchState
	logger *slog.Logger

	// onCatalogChange is invoked for team-member and status-catalog deltas
	// so cached catalogs get invalidated.
	onCatalogChange func(table string)

	backoff time.Duration
	dropped atomic.Int64

	mu     sync.Mutex
	status Status
	cancel context.CancelFunc
	done   chan struct{}
}

func New(rdb *redis.Client, st *store.Store, fetchState FetchState, logger *slog.Logger, onCatalogChange func(table string)) *Bridge {
	return &Bridge{
		rdb:             rdb,
		store:           st,
		fetch:           fetchState,
		logger:          logger,
		onCatalogChange: onCatalogChange,
		backoff:         2 * time.Second,
		status:          StatusIdle,
	}
}

// Start opens the subscription for the bridge's salon and consumes it until
// Close. One bridge serves exactly one tenant; a tenant switch goes through
// Close on the old bridge before a new one starts.
func (b *Bridge) Start(ctx context.Context) {
	b.mu.Lock()
	if b.cancel != nil {
		b.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.done = make(chan struct{})
	b.mu.Unlock()

	go b.run(runCtx)
}

// Close unsubscribes and waits for the receive loop to exit, so a stale
// subscription can never deliver into a store for a different tenant.
func (b *Bridge) Close() {
	b.mu.Lock()
	cancel, done := b.cancel, b.done
	b.cancel = nil
	b.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (b *Bridge) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Dropped counts deltas suppressed while a fetch was in flight.
func (b *Bridge) Dropped() int64 {
	return b.dropped.Load()
}

func (b *Bridge) run(ctx context.Context) {
	defer close(b.done)
	defer b.setStatus(StatusClosed)

	salonID := b.store.SalonID()
	channels := []string{
		redisx.ChangeChannel(salonID, model.TableAppointments),
		redisx.ChangeChannel(salonID, model.TableTeamMembers),
		redisx.ChangeChannel(salonID, model.TableStatuses),
	}

	for {
		sub := b.rdb.Subscribe(ctx, channels...)
		b.setStatus(StatusLive)

		for {
			msg, err := sub.ReceiveMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					_ = sub.Close()
					return
				}
				b.setStatus(StatusDegraded)
				b.logger.Warn("change feed receive failed", "err", err, "salon_id", salonID)
				break
			}
			b.handle(ctx, []byte(msg.Payload))
		}
		_ = sub.Close()

		select {
		case <-ctx.Done():
			return
		case <-time.After(b.backoff):
		}
	}
}

func (b *Bridge) handle(ctx context.Context, payload []byte) {
	_, span := otel.Tracer("changefeed").Start(ctx, "changefeed.apply",
		trace.WithAttributes(
			attribute.String("messaging.system", "redis"),
			attribute.String("salon.id", b.store.SalonID()),
		),
	)
	defer span.End()

	ev, err := model.DecodeChangeEvent(payload)
	if err != nil {
		b.logger.Warn("change event dropped", "err", err)
		span.RecordError(err)
		return
	}

	switch ev.Table {
	case model.TableAppointments:
		if b.fetch != nil && b.fetch.Fetching() {
			// A full snapshot is in flight and will cover this change.
			b.dropped.Add(1)
			b.logger.Debug("delta suppressed during fetch", "record_id", ev.ID, "kind", ev.Kind)
			return
		}
		b.store.ApplyDelta(ev)
	case model.TableTeamMembers, model.TableStatuses:
		if b.onCatalogChange != nil {
			b.onCatalogChange(ev.Table)
		}
	default:
		b.logger.Warn("change event for unknown table", "table", ev.Table)
	}
}

func (b *Bridge) setStatus(s Status) {
	b.mu.Lock()
	b.status = s
	b.mu.Unlock()
}
