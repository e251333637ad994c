package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/salonflow/calendar-sync/services/calendar-service/internal/bridge"
)

// Manager keeps at most one live session per salon. Tenant switch is a
// Release followed by a fresh Session: the old bridge is fully closed
// before a new subscription opens, so a stale channel can never deliver
// into another tenant's store.
type Manager struct {
	repo           Repository
	catalog        CatalogReader
	notifier       Notifier
	rdb            *redis.Client
	logger         *slog.Logger
	cooldownWindow time.Duration
	baseCtx        context.Context

	mu       sync.Mutex
	sessions map[string]*Session
	bridges  map[string]*bridge.Bridge
}

type ManagerConfig struct {
	Repo           Repository
	Catalog        CatalogReader
	Notifier       Notifier
	Redis          *redis.Client // nil runs sessions degraded, without live updates
	Logger         *slog.Logger
	CooldownWindow time.Duration

	// BaseContext bounds bridge subscription lifetimes. Subscriptions must
	// outlive the request that first opened the session, so this is the
	// process context, not a request context.
	BaseContext context.Context
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	return &Manager{
		repo:           cfg.Repo,
		catalog:        cfg.Catalog,
		notifier:       cfg.Notifier,
		rdb:            cfg.Redis,
		logger:         cfg.Logger,
		cooldownWindow: cfg.CooldownWindow,
		baseCtx:        cfg.BaseContext,
		sessions:       map[string]*Session{},
		bridges:        map[string]*bridge.Bridge{},
	}
}

// Session returns the salon's live session, creating it on first use. The
// initial snapshot load runs here; if it fails the session is still handed
// out with last-known (empty) data and manual refresh available.
func (m *Manager) Session(ctx context.Context, salonID string) *Session {
	m.mu.Lock()
	if sess, ok := m.sessions[salonID]; ok {
		m.mu.Unlock()
		return sess
	}

	sess := New(Config{
		SalonID:        salonID,
		Repo:           m.repo,
		Catalog:        m.catalog,
		Notifier:       m.notifier,
		Logger:         m.logger,
		CooldownWindow: m.cooldownWindow,
	})
	m.sessions[salonID] = sess

	if m.rdb != nil {
		b := bridge.New(m.rdb, sess.Store(), sess.Coordinator(), m.logger.With("salon_id", salonID), sess.InvalidateCatalog)
		b.Start(m.baseCtx)
		sess.AttachBridge(b)
		m.bridges[salonID] = b
	} else {
		m.logger.Warn("live updates disabled, no redis client", "salon_id", salonID)
	}
	m.mu.Unlock()

	if err := sess.Refresh(ctx, true); err != nil {
		m.logger.Warn("initial snapshot load failed", "err", err, "salon_id", salonID)
	}
	return sess
}

// Release closes the salon's bridge and drops the session.
func (m *Manager) Release(salonID string) {
	m.mu.Lock()
	b := m.bridges[salonID]
	delete(m.bridges, salonID)
	delete(m.sessions, salonID)
	m.mu.Unlock()

	if b != nil {
		b.Close()
	}
}

// Close releases every session; called on shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	bridges := m.bridges
	m.bridges = map[string]*bridge.Bridge{}
	m.sessions = map[string]*Session{}
	m.mu.Unlock()

	for _, b := range bridges {
		b.Close()
	}
}
