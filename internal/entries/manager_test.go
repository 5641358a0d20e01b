package entries

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// mockIntegration records hook calls and returns configured results.
type mockIntegration struct {
	mu sync.Mutex

	version int

	setupErr      error
	setupEntryErr error
	unloadOK      bool
	unloadErr     error
	migrateErr    error

	setupCalls   int
	setupEntries []string
	unloaded     []string
	migrated     []string
}

func newMockIntegration() *mockIntegration {
	return &mockIntegration{version: 2, unloadOK: true}
}

func (m *mockIntegration) Domain() string { return "deebot" }
func (m *mockIntegration) Version() int   { return m.version }

func (m *mockIntegration) Setup(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setupCalls++
	return m.setupErr
}

func (m *mockIntegration) SetupEntry(_ context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setupEntries = append(m.setupEntries, e.ID)
	return m.setupEntryErr
}

func (m *mockIntegration) UnloadEntry(_ context.Context, e *Entry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unloaded = append(m.unloaded, e.ID)
	return m.unloadOK, m.unloadErr
}

func (m *mockIntegration) MigrateEntry(_ context.Context, e *Entry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.migrated = append(m.migrated, e.ID)
	if m.migrateErr != nil {
		return false, m.migrateErr
	}
	e.Data["migrated"] = true
	e.Version = m.version
	return true, nil
}

func newTestManager(t *testing.T) (*Manager, *SQLiteRepository, *mockIntegration) {
	t.Helper()
	repo := NewSQLiteRepository(setupTestDB(t).DB)
	mgr := NewManager(repo)
	integ := newMockIntegration()
	if err := mgr.Register(context.Background(), integ); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return mgr, repo, integ
}

func seed(t *testing.T, repo Repository, id string, version int) {
	t.Helper()
	e := testEntry(id)
	e.Version = version
	if err := repo.Create(context.Background(), e); err != nil {
		t.Fatalf("Create(%s) error = %v", id, err)
	}
}

func TestManager_Register(t *testing.T) {
	mgr, _, integ := newTestManager(t)

	if integ.setupCalls != 1 {
		t.Errorf("Setup calls = %d, want 1", integ.setupCalls)
	}
	if err := mgr.Register(context.Background(), integ); !errors.Is(err, ErrIntegrationExists) {
		t.Errorf("second Register() error = %v, want ErrIntegrationExists", err)
	}
	if integ.setupCalls != 1 {
		t.Errorf("Setup ran again on duplicate register")
	}

	failing := newMockIntegration()
	failing.setupErr = errors.New("no network")
	if err := NewManager(nil).Register(context.Background(), failing); err == nil {
		t.Error("Register() should surface Setup errors")
	}
}

func TestManager_LoadAll_MigratesOlderEntries(t *testing.T) {
	mgr, repo, integ := newTestManager(t)
	ctx := context.Background()
	seed(t, repo, "old", 1)
	seed(t, repo, "current", 2)

	if err := mgr.LoadAll(ctx); err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}

	if len(integ.migrated) != 1 || integ.migrated[0] != "old" {
		t.Errorf("migrated = %v, want [old]", integ.migrated)
	}
	if len(integ.setupEntries) != 2 {
		t.Errorf("SetupEntry calls = %v, want 2", integ.setupEntries)
	}

	stored, err := repo.GetByID(ctx, "old")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if stored.Version != 2 || stored.Data["migrated"] != true {
		t.Errorf("migrated entry not persisted: %+v", stored)
	}
	if stored.State != StateLoaded {
		t.Errorf("State = %q, want loaded", stored.State)
	}
}

func TestManager_Setup_NewerVersionRefused(t *testing.T) {
	mgr, repo, integ := newTestManager(t)
	ctx := context.Background()
	seed(t, repo, "future", 3)

	if err := mgr.RefreshCache(ctx); err != nil {
		t.Fatal(err)
	}
	err := mgr.Setup(ctx, "future")
	if !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("Setup() error = %v, want ErrUnsupportedVersion", err)
	}
	if len(integ.migrated) != 0 || len(integ.setupEntries) != 0 {
		t.Error("no hooks should run for a newer entry")
	}

	e, _ := mgr.Get(ctx, "future")
	if e.State != StateMigrationError || e.Reason == "" {
		t.Errorf("entry = %+v, want migration_error with reason", e)
	}
}

func TestManager_Setup_MigrationFailure(t *testing.T) {
	mgr, repo, integ := newTestManager(t)
	ctx := context.Background()
	integ.migrateErr = errors.New("malformed deviceid")
	seed(t, repo, "bad", 1)

	err := mgr.Setup(ctx, "bad")
	if !errors.Is(err, ErrMigrationFailed) {
		t.Fatalf("Setup() error = %v, want ErrMigrationFailed", err)
	}

	stored, _ := repo.GetByID(ctx, "bad")
	if stored.State != StateMigrationError {
		t.Errorf("State = %q, want migration_error", stored.State)
	}
	if stored.Version != 1 {
		t.Errorf("Version = %d, failed migration must not bump version", stored.Version)
	}
}

func TestManager_Setup_Error(t *testing.T) {
	mgr, repo, integ := newTestManager(t)
	ctx := context.Background()
	integ.setupEntryErr = errors.New("auth failed")
	seed(t, repo, "e", 2)

	if err := mgr.Setup(ctx, "e"); err == nil {
		t.Fatal("Setup() expected error")
	}
	e, _ := mgr.Get(ctx, "e")
	if e.State != StateSetupError || e.Reason != "auth failed" {
		t.Errorf("entry = %+v", e)
	}

	integ.setupEntryErr = nil
	if err := mgr.Setup(ctx, "e"); err != nil {
		t.Fatalf("retry Setup() error = %v", err)
	}
	e, _ = mgr.Get(ctx, "e")
	if e.State != StateLoaded || e.Reason != "" {
		t.Errorf("entry after retry = %+v", e)
	}
}

func TestManager_Unload(t *testing.T) {
	tests := []struct {
		name      string
		unloadOK  bool
		unloadErr error
		wantOK    bool
		wantState State
	}{
		{"all platforms unloaded", true, nil, true, StateNotLoaded},
		{"platform refused", false, nil, false, StateFailedUnload},
		{"platform errored", false, errors.New("camera stuck"), false, StateFailedUnload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr, repo, integ := newTestManager(t)
			ctx := context.Background()
			seed(t, repo, "e", 2)
			if err := mgr.Setup(ctx, "e"); err != nil {
				t.Fatal(err)
			}

			integ.unloadOK = tt.unloadOK
			integ.unloadErr = tt.unloadErr
			ok, _ := mgr.Unload(ctx, "e")
			if ok != tt.wantOK {
				t.Errorf("Unload() = %v, want %v", ok, tt.wantOK)
			}

			e, _ := mgr.Get(ctx, "e")
			if e.State != tt.wantState {
				t.Errorf("State = %q, want %q", e.State, tt.wantState)
			}
		})
	}
}

func TestManager_Unload_NotLoadedIsTrivial(t *testing.T) {
	mgr, repo, integ := newTestManager(t)
	seed(t, repo, "e", 2)

	ok, err := mgr.Unload(context.Background(), "e")
	if !ok || err != nil {
		t.Errorf("Unload() = %v, %v, want true, nil", ok, err)
	}
	if len(integ.unloaded) != 0 {
		t.Error("UnloadEntry should not be called for an entry that was never loaded")
	}
}

func TestManager_RemoveKeepsEntryOnFailedUnload(t *testing.T) {
	mgr, repo, integ := newTestManager(t)
	ctx := context.Background()
	seed(t, repo, "e", 2)
	if err := mgr.Setup(ctx, "e"); err != nil {
		t.Fatal(err)
	}

	integ.unloadOK = false
	if err := mgr.Remove(ctx, "e"); !errors.Is(err, ErrUnloadFailed) {
		t.Fatalf("Remove() error = %v, want ErrUnloadFailed", err)
	}
	if _, err := repo.GetByID(ctx, "e"); err != nil {
		t.Errorf("entry should still exist: %v", err)
	}
	if err := mgr.Setup(ctx, "e"); !errors.Is(err, ErrUnloadFailed) {
		t.Errorf("Setup() on failed_unload error = %v, want ErrUnloadFailed", err)
	}

	integ.unloadOK = true
	if err := mgr.Remove(ctx, "e"); err != nil {
		t.Fatalf("Remove() retry error = %v", err)
	}
	if _, err := mgr.Get(ctx, "e"); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("Get() after remove error = %v, want ErrEntryNotFound", err)
	}
}

func TestManager_AddAndReload(t *testing.T) {
	mgr, _, integ := newTestManager(t)
	ctx := context.Background()

	var states []State
	mgr.OnStateChange(func(e Entry) { states = append(states, e.State) })

	e, err := mgr.Add(ctx, "deebot", "me", map[string]any{"username": "me"})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if e.ID == "" || e.Version != 2 || e.State != StateLoaded {
		t.Errorf("Add() = %+v", e)
	}

	if err := mgr.Reload(ctx, e.ID); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if len(integ.unloaded) != 1 || len(integ.setupEntries) != 2 {
		t.Errorf("unloaded=%v setup=%v", integ.unloaded, integ.setupEntries)
	}
	want := []State{StateLoaded, StateNotLoaded, StateLoaded}
	if len(states) != len(want) {
		t.Fatalf("state changes = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("state[%d] = %q, want %q", i, states[i], want[i])
		}
	}

	if _, err := mgr.Add(ctx, "roomba", "x", nil); !errors.Is(err, ErrIntegrationNotFound) {
		t.Errorf("Add() unknown domain error = %v", err)
	}
}

func TestManager_MigrateAll(t *testing.T) {
	mgr, repo, integ := newTestManager(t)
	ctx := context.Background()
	seed(t, repo, "a", 1)
	seed(t, repo, "b", 1)
	seed(t, repo, "c", 2)
	seed(t, repo, "d", 5)

	n, err := mgr.MigrateAll(ctx)
	if n != 2 {
		t.Errorf("migrated = %d, want 2", n)
	}
	if !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("MigrateAll() error = %v, want ErrUnsupportedVersion for d", err)
	}
	if len(integ.setupEntries) != 0 {
		t.Error("MigrateAll must not set entries up")
	}
	for _, id := range []string{"a", "b"} {
		e, _ := repo.GetByID(ctx, id)
		if e.Version != 2 {
			t.Errorf("%s version = %d, want 2", id, e.Version)
		}
	}
}

func TestManager_ConcurrentSetupSerialised(t *testing.T) {
	mgr, repo, integ := newTestManager(t)
	ctx := context.Background()
	seed(t, repo, "e", 1)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = mgr.Setup(ctx, "e")
		}()
	}
	wg.Wait()

	if len(integ.migrated) != 1 {
		t.Errorf("MigrateEntry calls = %d, want 1", len(integ.migrated))
	}
	if len(integ.setupEntries) != 1 {
		t.Errorf("SetupEntry calls = %d, want 1", len(integ.setupEntries))
	}
}

// restart opens a second Manager over repo, as a new process would.
func restart(t *testing.T, repo Repository) (*Manager, *mockIntegration) {
	t.Helper()
	mgr := NewManager(repo)
	integ := newMockIntegration()
	if err := mgr.Register(context.Background(), integ); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return mgr, integ
}

func TestManager_LoadAll_AfterRestart(t *testing.T) {
	tests := []struct {
		name     string
		unloadOK bool
		unload   bool
		before   State
	}{
		{name: "exited while loaded", before: StateLoaded},
		{name: "exited after failed unload", unload: true, before: StateFailedUnload},
		{name: "exited after clean unload", unload: true, unloadOK: true, before: StateNotLoaded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			first, repo, integ := newTestManager(t)
			seed(t, repo, "e", 2)
			if err := first.Setup(ctx, "e"); err != nil {
				t.Fatalf("Setup() error = %v", err)
			}
			if tt.unload {
				integ.unloadOK = tt.unloadOK
				first.Unload(ctx, "e") //nolint:errcheck // outcome checked via state
			}
			if e, _ := first.Get(ctx, "e"); e.State != tt.before {
				t.Fatalf("state before restart = %q, want %q", e.State, tt.before)
			}

			second, integ2 := restart(t, repo)
			if err := second.LoadAll(ctx); err != nil {
				t.Fatalf("LoadAll() error = %v", err)
			}

			if len(integ2.setupEntries) != 1 || integ2.setupEntries[0] != "e" {
				t.Errorf("SetupEntry calls = %v, want [e]", integ2.setupEntries)
			}
			e, err := second.Get(ctx, "e")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if e.State != StateLoaded || e.Reason != "" {
				t.Errorf("state = %q (%q), want loaded", e.State, e.Reason)
			}

			if ok, err := second.Unload(ctx, "e"); !ok || err != nil {
				t.Errorf("Unload() after restart = %v, %v", ok, err)
			}
			if err := second.Remove(ctx, "e"); err != nil {
				t.Errorf("Remove() after restart error = %v", err)
			}
		})
	}
}

func TestManager_Get_StaleRuntimeStateBeforeRefresh(t *testing.T) {
	ctx := context.Background()
	first, repo, _ := newTestManager(t)
	seed(t, repo, "e", 2)
	if err := first.Setup(ctx, "e"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	second, integ2 := restart(t, repo)
	e, err := second.Get(ctx, "e")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if e.State != StateNotLoaded {
		t.Errorf("State = %q, want not_loaded", e.State)
	}
	if err := second.Setup(ctx, "e"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if len(integ2.setupEntries) != 1 {
		t.Errorf("SetupEntry calls = %v, want 1", integ2.setupEntries)
	}
}

func TestManager_RefreshCache_KeepsLiveEntries(t *testing.T) {
	ctx := context.Background()
	mgr, repo, integ := newTestManager(t)
	seed(t, repo, "e", 2)
	if err := mgr.Setup(ctx, "e"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	if err := mgr.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}
	if e, _ := mgr.Get(ctx, "e"); e.State != StateLoaded {
		t.Errorf("State = %q, want loaded", e.State)
	}

	if err := mgr.LoadAll(ctx); err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if len(integ.setupEntries) != 1 {
		t.Errorf("SetupEntry calls = %v, want 1 (no second setup)", integ.setupEntries)
	}

	if ok, err := mgr.Unload(ctx, "e"); !ok || err != nil {
		t.Fatalf("Unload() = %v, %v", ok, err)
	}
	if len(integ.unloaded) != 1 {
		t.Errorf("UnloadEntry calls = %v, want 1", integ.unloaded)
	}
}
