package fetch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/salonflow/calendar-sync/services/calendar-service/internal/model"
	"github.com/salonflow/calendar-sync/services/calendar-service/internal/store"
)

// blockingReader parks every ListAppointments call until released.
type blockingReader struct {
	calls   atomic.Int64
	entered chan struct{}
	release chan struct{}
	records []model.Appointment
	err     error
}

func newBlockingReader(records []model.Appointment) *blockingReader {
	return &blockingReader{
		entered: make(chan struct{}, 8),
		release: make(chan struct{}),
		records: records,
	}
}

func (r *blockingReader) ListAppointments(ctx context.Context, salonID string) ([]model.Appointment, error) {
	r.calls.Add(1)
	r.entered <- struct{}{}
	select {
	case <-r.release:
	case <-ctx.Done():
	}
	if r.err != nil {
		return nil, r.err
	}
	return r.records, nil
}

func testAppointment(id string) model.Appointment {
	return model.Appointment{
		ID:        id,
		SalonID:   "salon-1",
		Date:      "2024-06-01",
		StartTime: "09:00",
		EndTime:   "09:30",
		Status:    model.StatusPending,
	}
}

func TestFetchCoalescing(t *testing.T) {
	st := store.New("salon-1", slog.Default())
	reader := newBlockingReader([]model.Appointment{testAppointment("a1")})
	c := NewCoordinator(reader, st, slog.Default())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := c.Fetch(context.Background(), false); err != nil {
			t.Errorf("fetch failed: %v", err)
		}
	}()
	<-reader.entered

	// Two more non-forced fetches while the first is in flight: both must
	// return immediately without another read.
	if err := c.Fetch(context.Background(), false); err != nil {
		t.Fatalf("coalesced fetch returned error: %v", err)
	}
	if err := c.Fetch(context.Background(), false); err != nil {
		t.Fatalf("coalesced fetch returned error: %v", err)
	}

	close(reader.release)
	wg.Wait()

	if got := reader.calls.Load(); got != 1 {
		t.Fatalf("expected exactly one underlying read, got %d", got)
	}
	if st.Len() != 1 {
		t.Fatalf("store not populated, len=%d", st.Len())
	}
}

func TestForcedFetchOverlaps(t *testing.T) {
	st := store.New("salon-1", slog.Default())
	reader := newBlockingReader([]model.Appointment{testAppointment("a1")})
	c := NewCoordinator(reader, st, slog.Default())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = c.Fetch(context.Background(), false)
	}()
	<-reader.entered
	go func() {
		defer wg.Done()
		_ = c.Fetch(context.Background(), true)
	}()
	<-reader.entered

	close(reader.release)
	wg.Wait()

	if got := reader.calls.Load(); got != 2 {
		t.Fatalf("forced fetch must issue its own read, got %d reads", got)
	}
}

func TestFetchingFlagWindow(t *testing.T) {
	st := store.New("salon-1", slog.Default())
	reader := newBlockingReader([]model.Appointment{testAppointment("a1")})
	c := NewCoordinator(reader, st, slog.Default())

	if c.Fetching() {
		t.Fatal("fetching flag set before any fetch")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Fetch(context.Background(), false)
	}()
	<-reader.entered

	if !c.Fetching() {
		t.Fatal("fetching flag must be set while a read is in flight")
	}

	// Deltas arriving now are suppressed by the bridge; the snapshot carries
	// the same record and wins once ReplaceAll runs.
	close(reader.release)
	<-done

	if c.Fetching() {
		t.Fatal("fetching flag must clear after completion")
	}
	if _, ok := st.Get("a1"); !ok {
		t.Fatal("snapshot record missing after fetch")
	}
}

func TestFetchFailureLeavesStoreUntouched(t *testing.T) {
	st := store.New("salon-1", slog.Default())
	st.ReplaceAll([]model.Appointment{testAppointment("old")})

	reader := newBlockingReader(nil)
	reader.err = errors.New("connection reset")
	c := NewCoordinator(reader, st, slog.Default())

	go func() {
		<-reader.entered
		close(reader.release)
	}()
	if err := c.Fetch(context.Background(), false); err == nil {
		t.Fatal("expected fetch error")
	}

	if _, ok := st.Get("old"); !ok {
		t.Fatal("failed fetch must not clear last-known data")
	}
	if c.Fetching() {
		t.Fatal("fetching flag stuck after failure")
	}
}

func TestCanceledFetchDiscardsCompletion(t *testing.T) {
	st := store.New("salon-1", slog.Default())
	st.ReplaceAll([]model.Appointment{testAppointment("old")})

	reader := newBlockingReader([]model.Appointment{testAppointment("new")})
	c := NewCoordinator(reader, st, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Fetch(ctx, false) }()
	<-reader.entered

	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected context error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("fetch did not return after cancellation")
	}

	if _, ok := st.Get("old"); !ok {
		t.Fatal("canceled fetch must not apply its result")
	}
	if _, ok := st.Get("new"); ok {
		t.Fatal("canceled fetch applied its result")
	}
}
