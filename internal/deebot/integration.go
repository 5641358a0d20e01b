package deebot

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-deebot/internal/entries"
	"github.com/nerrad567/gray-logic-deebot/internal/metrics"
	"github.com/nerrad567/gray-logic-deebot/internal/platform"
)

// Logger defines the logging interface used by the integration.
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

// Hub is the per-entry connection to an account's robots.
type Hub interface {
	platform.Hub

	// Initialize connects and performs the first refresh.
	Initialize(ctx context.Context) error

	Close() error
}

// HubFactory builds the hub for one entry from its decoded data.
type HubFactory func(ctx context.Context, entryID string, data DataV2) (Hub, error)

// Integration implements entries.Integration for Deebot accounts.
type Integration struct {
	registry  *Registry
	newHub    HubFactory
	platforms []platform.Platform
	logger    Logger

	setupOnce sync.Once
	setupErr  error
}

var _ entries.Integration = (*Integration)(nil)

// New creates the integration. platforms must include one platform for
// each name in Platforms; Setup fails otherwise.
func New(registry *Registry, newHub HubFactory, platforms ...platform.Platform) *Integration {
	return &Integration{
		registry:  registry,
		newHub:    newHub,
		platforms: platforms,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the integration.
func (i *Integration) SetLogger(logger Logger) {
	i.logger = logger
}

// Domain returns "deebot".
func (i *Integration) Domain() string { return Domain }

// Version returns the current entry schema version.
func (i *Integration) Version() int { return Version }

// Registry returns the hub registry the integration writes to.
func (i *Integration) Registry() *Registry { return i.registry }

// Setup performs the process-wide initialisation. Only the first call
// does any work; later calls return its result.
func (i *Integration) Setup(_ context.Context) error {
	i.setupOnce.Do(func() {
		if i.registry == nil {
			i.setupErr = fmt.Errorf("deebot: hub registry is nil")
			return
		}
		if i.newHub == nil {
			i.setupErr = fmt.Errorf("deebot: hub factory is nil")
			return
		}
		have := make(map[string]bool, len(i.platforms))
		for _, p := range i.platforms {
			have[p.Name()] = true
		}
		for _, name := range Platforms {
			if !have[name] {
				i.setupErr = fmt.Errorf("%w: %s", ErrMissingPlatform, name)
				return
			}
		}
		i.logger.Info(startupBanner)
	})
	return i.setupErr
}

// SetupEntry creates and initialises the entry's hub, registers it and
// forwards the entry to every platform. If a platform fails, the
// platforms that did set up are unloaded again, the hub is closed and
// the registration is removed.
func (i *Integration) SetupEntry(ctx context.Context, e *entries.Entry) error {
	if _, exists := i.registry.Get(e.ID); exists {
		return fmt.Errorf("%w: %s", ErrAlreadySetup, e.ID)
	}

	data, err := DecodeV2(e.Data)
	if err != nil {
		return err
	}

	h, err := i.newHub(ctx, e.ID, data)
	if err != nil {
		return fmt.Errorf("creating hub: %w", err)
	}
	if err := h.Initialize(ctx); err != nil {
		i.closeHub(e.ID, h)
		return fmt.Errorf("initialising hub: %w", err)
	}
	i.registry.Put(e.ID, h)

	var mu sync.Mutex
	var ready []platform.Platform

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range i.platforms {
		g.Go(func() error {
			if err := p.SetupEntry(gctx, e.ID, h); err != nil {
				return fmt.Errorf("platform %s: %w", p.Name(), err)
			}
			mu.Lock()
			ready = append(ready, p)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// Use the caller's context: gctx is already cancelled.
		if ok, _ := i.unloadPlatforms(ctx, e.ID, ready); !ok {
			i.logger.Warn("rollback left platforms loaded", "entry_id", e.ID)
		}
		i.registry.Remove(e.ID)
		i.closeHub(e.ID, h)
		return err
	}

	i.logger.Info("entry set up", "entry_id", e.ID, "devices", len(data.Devices))
	return nil
}

// UnloadEntry unloads the entry from every platform concurrently. The
// result is true only if every platform reported success without error;
// only then is the hub closed and removed from the registry. The returned
// error is the first platform error, if any.
func (i *Integration) UnloadEntry(ctx context.Context, e *entries.Entry) (bool, error) {
	ok, err := i.unloadPlatforms(ctx, e.ID, i.platforms)
	if !ok {
		i.logger.Warn("entry unload incomplete, keeping hub", "entry_id", e.ID, "error", err)
		return false, err
	}

	if h, found := i.registry.Remove(e.ID); found {
		i.closeHub(e.ID, h)
	}
	i.logger.Info("entry unloaded", "entry_id", e.ID)
	return true, nil
}

// unloadPlatforms runs UnloadEntry on each platform and joins the results.
// Every platform runs to completion regardless of the others.
func (i *Integration) unloadPlatforms(ctx context.Context, entryID string, platforms []platform.Platform) (bool, error) {
	results := make([]bool, len(platforms))

	var g errgroup.Group
	for idx, p := range platforms {
		g.Go(func() error {
			ok, err := p.UnloadEntry(ctx, entryID)
			results[idx] = ok && err == nil
			metrics.RecordPlatformUnload(p.Name(), results[idx])
			if err != nil {
				return fmt.Errorf("platform %s: %w", p.Name(), err)
			}
			return nil
		})
	}
	err := g.Wait()

	all := true
	for _, ok := range results {
		all = all && ok
	}
	return all, err
}

// MigrateEntry upgrades e in place to Version.
func (i *Integration) MigrateEntry(_ context.Context, e *entries.Entry) (bool, error) {
	version, data, err := MigrateData(i.logger, e.Version, e.Data)
	if err != nil {
		return false, err
	}
	e.Version = version
	e.Data = data
	return true, nil
}

func (i *Integration) closeHub(entryID string, h Hub) {
	if err := h.Close(); err != nil {
		i.logger.Warn("closing hub failed", "entry_id", entryID, "error", err)
	}
}
