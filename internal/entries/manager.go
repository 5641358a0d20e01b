package entries

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-deebot/internal/metrics"
)

// Logger defines the logging interface used by the Manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Integration is the set of lifecycle hooks an integration exposes to the
// Manager.
type Integration interface {
	// Domain is the key entries are matched on, e.g. "deebot".
	Domain() string

	// Version is the current schema version of the entry data.
	Version() int

	// Setup runs once per process before any entry is set up.
	Setup(ctx context.Context) error

	// SetupEntry brings one entry up.
	SetupEntry(ctx context.Context, e *Entry) error

	// UnloadEntry tears one entry down. false means at least one part
	// failed to unload and the entry is still live.
	UnloadEntry(ctx context.Context, e *Entry) (bool, error)

	// MigrateEntry upgrades e.Version and e.Data in place.
	MigrateEntry(ctx context.Context, e *Entry) (bool, error)
}

// DefaultSetupTimeout bounds a single SetupEntry call.
const DefaultSetupTimeout = 30 * time.Second

// Manager supervises config entries: it persists them through a
// Repository, caches them in memory and runs the integration hooks.
//
// All public methods are thread-safe. Calls touching the same entry are
// serialised by a per-entry lock.
type Manager struct {
	repo   Repository
	logger Logger

	setupTimeout time.Duration

	integrations map[string]Integration
	intMu        sync.RWMutex

	cache   map[string]*Entry
	cacheMu sync.RWMutex

	// live holds the entries this process has set up and not yet fully
	// unloaded. Guarded by cacheMu.
	live map[string]struct{}

	locks   map[string]*sync.Mutex
	locksMu sync.Mutex

	listeners  []func(Entry)
	listenerMu sync.RWMutex
}

// NewManager creates a Manager over repo.
func NewManager(repo Repository) *Manager {
	return &Manager{
		repo:         repo,
		logger:       noopLogger{},
		setupTimeout: DefaultSetupTimeout,
		integrations: make(map[string]Integration),
		cache:        make(map[string]*Entry),
		live:         make(map[string]struct{}),
		locks:        make(map[string]*sync.Mutex),
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// SetSetupTimeout overrides DefaultSetupTimeout. Non-positive values are ignored.
func (m *Manager) SetSetupTimeout(d time.Duration) {
	if d > 0 {
		m.setupTimeout = d
	}
}

// OnStateChange registers fn to be called with a copy of an entry every
// time its state is persisted.
func (m *Manager) OnStateChange(fn func(Entry)) {
	m.listenerMu.Lock()
	m.listeners = append(m.listeners, fn)
	m.listenerMu.Unlock()
}

// Register runs the integration's process-wide Setup and makes it
// available for entries of its domain.
func (m *Manager) Register(ctx context.Context, integration Integration) error {
	domain := integration.Domain()

	m.intMu.Lock()
	defer m.intMu.Unlock()

	if _, exists := m.integrations[domain]; exists {
		return fmt.Errorf("%w: %s", ErrIntegrationExists, domain)
	}
	if err := integration.Setup(ctx); err != nil {
		return fmt.Errorf("setting up integration %s: %w", domain, err)
	}
	m.integrations[domain] = integration

	m.logger.Info("integration registered", "domain", domain, "version", integration.Version())
	return nil
}

func (m *Manager) integration(domain string) (Integration, error) {
	m.intMu.RLock()
	defer m.intMu.RUnlock()

	integration, ok := m.integrations[domain]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrIntegrationNotFound, domain)
	}
	return integration, nil
}

// RefreshCache reloads every entry from the repository.
//
// loaded and failed_unload describe a running integration, so they only
// hold for entries this Manager set up itself. Any other entry stored in
// one of those states was left behind by an earlier process; it is reset
// to not_loaded so that it can be set up again.
func (m *Manager) RefreshCache(ctx context.Context) error {
	list, err := m.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading entries: %w", err)
	}

	var stale []*Entry
	m.cacheMu.Lock()
	m.cache = make(map[string]*Entry, len(list))
	for i := range list {
		e := list[i].DeepCopy()
		if _, running := m.live[e.ID]; !running && e.State.runtime() {
			e.State = StateNotLoaded
			e.Reason = ""
			stale = append(stale, e)
		}
		m.cache[e.ID] = e
	}
	m.cacheMu.Unlock()

	for _, e := range stale {
		if err := m.repo.Update(ctx, e); err != nil {
			m.logger.Error("persisting entry state failed", "entry_id", e.ID, "state", e.State, "error", err)
		}
		m.logger.Info("reset state left by a previous run", "entry_id", e.ID)
	}
	m.updateLoadedGauge()

	m.logger.Info("entry cache refreshed", "count", len(list), "reset", len(stale))
	return nil
}

// Get returns a copy of the entry with the given ID.
func (m *Manager) Get(ctx context.Context, id string) (*Entry, error) {
	m.cacheMu.RLock()
	cached, ok := m.cache[id]
	m.cacheMu.RUnlock()
	if ok {
		return cached.DeepCopy(), nil
	}

	e, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	m.cacheMu.Lock()
	if _, running := m.live[id]; !running && e.State.runtime() {
		e.State = StateNotLoaded
		e.Reason = ""
	}
	m.cache[id] = e.DeepCopy()
	m.cacheMu.Unlock()
	return e, nil
}

// List returns copies of all cached entries, oldest first.
func (m *Manager) List() []Entry {
	m.cacheMu.RLock()
	out := make([]Entry, 0, len(m.cache))
	for _, e := range m.cache {
		out = append(out, *e.DeepCopy())
	}
	m.cacheMu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// LoadAll refreshes the cache and sets up every entry whose domain has a
// registered integration. Per-entry failures are recorded in the entry's
// state and logged; only repository failures are returned.
func (m *Manager) LoadAll(ctx context.Context) error {
	if err := m.RefreshCache(ctx); err != nil {
		return err
	}

	for _, e := range m.List() {
		if _, err := m.integration(e.Domain); err != nil {
			m.logger.Warn("skipping entry without integration", "entry_id", e.ID, "domain", e.Domain)
			continue
		}
		if err := m.Setup(ctx, e.ID); err != nil {
			m.logger.Error("entry setup failed", "entry_id", e.ID, "error", err)
		}
	}
	return nil
}

// Setup migrates the entry if it is older than its integration and then
// sets it up. Setting up a loaded entry is a no-op.
func (m *Manager) Setup(ctx context.Context, id string) error {
	unlock := m.lockEntry(id)
	defer unlock()

	e, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	switch e.State {
	case StateLoaded:
		return nil
	case StateFailedUnload:
		return fmt.Errorf("%w: entry %s must be unloaded first", ErrUnloadFailed, id)
	}

	integration, err := m.integration(e.Domain)
	if err != nil {
		m.setState(ctx, e, StateSetupError, err)
		return err
	}

	if err := m.migrate(ctx, integration, e); err != nil {
		return err
	}

	setupCtx, cancel := context.WithTimeout(ctx, m.setupTimeout)
	defer cancel()

	err = integration.SetupEntry(setupCtx, e.DeepCopy())
	metrics.RecordSetup(err == nil)
	if err != nil {
		m.setState(ctx, e, StateSetupError, err)
		return fmt.Errorf("setting up entry %s: %w", id, err)
	}

	m.setState(ctx, e, StateLoaded, nil)
	m.logger.Info("entry loaded", "entry_id", id, "domain", e.Domain)
	return nil
}

// migrate brings e up to the integration's version and persists it.
// Caller holds the entry lock.
func (m *Manager) migrate(ctx context.Context, integration Integration, e *Entry) error {
	current := integration.Version()
	if e.Version == current {
		return nil
	}
	if e.Version > current {
		err := fmt.Errorf("%w: entry is version %d, integration supports %d", ErrUnsupportedVersion, e.Version, current)
		metrics.RecordMigration(e.Version, current, false)
		m.setState(ctx, e, StateMigrationError, err)
		return err
	}

	from := e.Version
	work := e.DeepCopy()
	ok, err := integration.MigrateEntry(ctx, work)
	switch {
	case err != nil:
		err = fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	case !ok:
		err = ErrMigrationFailed
	case work.Version != current:
		err = fmt.Errorf("%w: entry still at version %d", ErrMigrationFailed, work.Version)
	}
	metrics.RecordMigration(from, current, err == nil)
	if err != nil {
		m.setState(ctx, e, StateMigrationError, err)
		return err
	}

	e.Version = work.Version
	e.Data = work.Data
	e.Reason = ""
	if err := m.repo.Update(ctx, e); err != nil {
		return fmt.Errorf("persisting migrated entry: %w", err)
	}
	m.store(e)

	m.logger.Info("entry migrated", "entry_id", e.ID, "from", from, "to", e.Version)
	return nil
}

// Unload tears an entry down. The returned bool is the aggregate result
// reported by the integration. Entries that are not loaded unload trivially.
func (m *Manager) Unload(ctx context.Context, id string) (bool, error) {
	unlock := m.lockEntry(id)
	defer unlock()
	return m.unloadLocked(ctx, id)
}

func (m *Manager) unloadLocked(ctx context.Context, id string) (bool, error) {
	e, err := m.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if e.State != StateLoaded && e.State != StateFailedUnload {
		return true, nil
	}

	integration, err := m.integration(e.Domain)
	if err != nil {
		return false, err
	}

	ok, err := integration.UnloadEntry(ctx, e.DeepCopy())
	if err != nil || !ok {
		reason := err
		if reason == nil {
			reason = ErrUnloadFailed
		}
		m.setState(ctx, e, StateFailedUnload, reason)
		m.logger.Warn("entry unload incomplete", "entry_id", id, "error", reason)
		return false, err
	}

	m.setState(ctx, e, StateNotLoaded, nil)
	m.logger.Info("entry unloaded", "entry_id", id)
	return true, nil
}

// Reload unloads and sets up an entry again.
func (m *Manager) Reload(ctx context.Context, id string) error {
	ok, err := m.Unload(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnloadFailed
	}
	return m.Setup(ctx, id)
}

// Add creates an entry at the integration's current version and sets it
// up. The entry is returned even when setup fails; its State says why.
func (m *Manager) Add(ctx context.Context, domain, title string, data map[string]any) (*Entry, error) {
	integration, err := m.integration(domain)
	if err != nil {
		return nil, err
	}

	e := &Entry{
		ID:      uuid.NewString(),
		Domain:  domain,
		Title:   title,
		Version: integration.Version(),
		Data:    deepCopyMap(data),
		State:   StateNotLoaded,
	}
	if e.Data == nil {
		e.Data = map[string]any{}
	}
	if err := m.repo.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("creating entry: %w", err)
	}
	m.store(e)
	m.logger.Info("entry added", "entry_id", e.ID, "domain", domain)

	setupErr := m.Setup(ctx, e.ID)
	out, err := m.Get(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	return out, setupErr
}

// Remove unloads and deletes an entry. An entry that fails to unload is
// kept so the unload can be retried.
func (m *Manager) Remove(ctx context.Context, id string) error {
	unlock := m.lockEntry(id)
	defer unlock()

	ok, err := m.unloadLocked(ctx, id)
	if err != nil && !errors.Is(err, ErrIntegrationNotFound) {
		return err
	}
	if !ok && err == nil {
		return ErrUnloadFailed
	}

	if err := m.repo.Delete(ctx, id); err != nil {
		return err
	}

	m.cacheMu.Lock()
	delete(m.cache, id)
	delete(m.live, id)
	m.cacheMu.Unlock()
	m.updateLoadedGauge()

	m.logger.Info("entry removed", "entry_id", id)
	return nil
}

// MigrateAll migrates every stored entry that is older than its
// integration without setting anything up. It returns the number of
// entries migrated and the combined errors.
func (m *Manager) MigrateAll(ctx context.Context) (int, error) {
	if err := m.RefreshCache(ctx); err != nil {
		return 0, err
	}

	var migrated int
	var errs []error
	for _, snapshot := range m.List() {
		integration, err := m.integration(snapshot.Domain)
		if err != nil || snapshot.Version == integration.Version() {
			continue
		}

		unlock := m.lockEntry(snapshot.ID)
		e, err := m.Get(ctx, snapshot.ID)
		if err == nil {
			err = m.migrate(ctx, integration, e)
		}
		unlock()

		if err != nil {
			errs = append(errs, fmt.Errorf("entry %s: %w", snapshot.ID, err))
			continue
		}
		migrated++
	}
	return migrated, errors.Join(errs...)
}

// UnloadAll unloads every loaded entry, used at shutdown.
func (m *Manager) UnloadAll(ctx context.Context) {
	for _, e := range m.List() {
		if e.State != StateLoaded {
			continue
		}
		if ok, err := m.Unload(ctx, e.ID); !ok || err != nil {
			m.logger.Warn("entry did not unload cleanly", "entry_id", e.ID, "error", err)
		}
	}
}

// setState records a state transition in the repository, the cache and
// listeners. Persistence failures are logged; the in-memory state is
// still updated so callers see the transition.
func (m *Manager) setState(ctx context.Context, e *Entry, state State, cause error) {
	e.State = state
	e.Reason = ""
	if cause != nil {
		e.Reason = cause.Error()
	}

	if err := m.repo.Update(ctx, e); err != nil {
		m.logger.Error("persisting entry state failed", "entry_id", e.ID, "state", state, "error", err)
	}
	m.cacheMu.Lock()
	m.cache[e.ID] = e.DeepCopy()
	if state.runtime() {
		m.live[e.ID] = struct{}{}
	} else {
		delete(m.live, e.ID)
	}
	m.cacheMu.Unlock()
	m.updateLoadedGauge()

	m.listenerMu.RLock()
	listeners := append([]func(Entry){}, m.listeners...)
	m.listenerMu.RUnlock()
	for _, fn := range listeners {
		fn(*e.DeepCopy())
	}
}

func (m *Manager) store(e *Entry) {
	m.cacheMu.Lock()
	m.cache[e.ID] = e.DeepCopy()
	m.cacheMu.Unlock()
}

func (m *Manager) updateLoadedGauge() {
	m.cacheMu.RLock()
	var n int
	for _, e := range m.cache {
		if e.State == StateLoaded {
			n++
		}
	}
	m.cacheMu.RUnlock()
	metrics.SetLoadedEntries(n)
}

func (m *Manager) lockEntry(id string) func() {
	m.locksMu.Lock()
	mu, ok := m.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		m.locks[id] = mu
	}
	m.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}
