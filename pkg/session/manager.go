package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/proxyshape/internal/logging"
	"github.com/aretw0/proxyshape/pkg/domain"
	"github.com/aretw0/proxyshape/pkg/ports"
)

// Proxy is the part of a proxy the Manager needs.
type Proxy interface {
	ID() string
	Snapshot() *domain.Snapshot
	Restore(snap *domain.Snapshot) error
	Close() error
}

// DefaultLockTTL is how long a distributed lock is held before it expires.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates access to registered proxies and their snapshots.
// It uses reference counting to garbage collect unused locks.
type Manager struct {
	store ports.SnapshotStore

	mu      sync.Mutex
	locks   map[string]*lockEntry
	proxies map[string]Proxy

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL overrides DefaultLockTTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a Manager persisting snapshots into store.
func NewManager(store ports.SnapshotStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		proxies: make(map[string]Proxy),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(id) after unlocking.
func (m *Manager) acquire(id string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[id]
	if !exists {
		entry = &lockEntry{}
		m.locks[id] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[id]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, id)
	}
}

// Register adds a proxy to the registry. IDs must be unique.
func (m *Manager) Register(p Proxy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.proxies[p.ID()]; exists {
		return fmt.Errorf("proxy %q is already registered", p.ID())
	}
	m.proxies[p.ID()] = p
	m.logger.Debug("proxy registered", "proxy_id", p.ID())
	return nil
}

// Get returns the proxy registered under id.
func (m *Manager) Get(id string) (Proxy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.proxies[id]
	if !ok {
		return nil, fmt.Errorf("%q: %w", id, domain.ErrProxyNotFound)
	}
	return p, nil
}

// IDs returns the registered proxy IDs in lexical order.
func (m *Manager) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.proxies))
	for id := range m.proxies {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Unregister closes the proxy and removes it from the registry. Its stored
// snapshot, if any, is kept.
func (m *Manager) Unregister(ctx context.Context, id string) error {
	return m.WithLock(ctx, id, func(ctx context.Context) error {
		p, err := m.Get(id)
		if err != nil {
			return err
		}
		m.mu.Lock()
		delete(m.proxies, id)
		m.mu.Unlock()
		return p.Close()
	})
}

// Save persists the current snapshot of the proxy registered under id.
func (m *Manager) Save(ctx context.Context, id string) error {
	return m.WithLock(ctx, id, func(ctx context.Context) error {
		p, err := m.Get(id)
		if err != nil {
			return err
		}
		return m.store.Save(ctx, id, p.Snapshot())
	})
}

// SaveAll persists every registered proxy, stopping at the first failure.
func (m *Manager) SaveAll(ctx context.Context) error {
	for _, id := range m.IDs() {
		if err := m.Save(ctx, id); err != nil {
			return fmt.Errorf("failed to save proxy %q: %w", id, err)
		}
	}
	return nil
}

// Load restores the proxy registered under id from its stored snapshot.
func (m *Manager) Load(ctx context.Context, id string) error {
	return m.WithLock(ctx, id, func(ctx context.Context) error {
		p, err := m.Get(id)
		if err != nil {
			return err
		}
		snap, err := m.store.Load(ctx, id)
		if err != nil {
			return err
		}
		return p.Restore(snap)
	})
}

// Snapshot returns the stored snapshot for id without touching any proxy.
func (m *Manager) Snapshot(ctx context.Context, id string) (*domain.Snapshot, error) {
	var snap *domain.Snapshot
	err := m.WithLock(ctx, id, func(ctx context.Context) error {
		var err error
		snap, err = m.store.Load(ctx, id)
		return err
	})
	return snap, err
}

// Delete removes the stored snapshot for id.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.WithLock(ctx, id, func(ctx context.Context) error {
		return m.store.Delete(ctx, id)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying snapshot store.
func (m *Manager) Store() ports.SnapshotStore {
	return m.store
}

// WithLock executes fn while holding the lock for the proxy.
func (m *Manager) WithLock(ctx context.Context, id string, fn func(context.Context) error) error {
	entry := m.acquire(id)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(id)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, id, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("failed to release distributed lock (will expire via TTL)",
					"proxy_id", id,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
