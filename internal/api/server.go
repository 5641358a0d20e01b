package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-deebot/internal/entries"
	"github.com/nerrad567/gray-logic-deebot/internal/hub"
	"github.com/nerrad567/gray-logic-deebot/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-deebot/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-deebot/internal/platform"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// WebSocket event channels.
const (
	ChannelVacuumState = "vacuum.state"
	ChannelEntryState  = "entry.state"
)

// EntryManager is the subset of *entries.Manager the API drives.
type EntryManager interface {
	List() []entries.Entry
	Get(ctx context.Context, id string) (*entries.Entry, error)
	Add(ctx context.Context, domain, title string, data map[string]any) (*entries.Entry, error)
	Remove(ctx context.Context, id string) error
	Reload(ctx context.Context, id string) error
	Unload(ctx context.Context, id string) (bool, error)
}

// VacuumController sends commands to robots. *platform.Vacuum implements it.
type VacuumController interface {
	Command(ctx context.Context, entryID, device, name string, params map[string]any) error
}

// MapSource serves map images. *platform.Camera implements it.
type MapSource interface {
	Image(entryID, device string) ([]byte, error)
}

// DBStatser reports connection pool statistics. *sql.DB implements it.
type DBStatser interface {
	Stats() sql.DBStats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Logger    *logging.Logger
	Entries   EntryManager
	Platforms []platform.Platform
	Vacuum    VacuumController // optional
	Camera    MapSource        // optional
	DB        DBStatser        // optional, for system metrics
	Version   string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	entries   EntryManager
	platforms []platform.Platform
	vacuum    VacuumController
	camera    MapSource
	db        DBStatser
	version   string
	startTime time.Time
	server    *http.Server
	events    *EventHub
	cancel    context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The WebSocket hub exists from construction so that state listeners can
// be wired before Start. The server is not listening until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (logger, entry manager) and optional ones
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Entries == nil {
		return nil, fmt.Errorf("entry manager is required")
	}

	return &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		entries:   deps.Entries,
		platforms: deps.Platforms,
		vacuum:    deps.Vacuum,
		camera:    deps.Camera,
		db:        deps.DB,
		version:   deps.Version,
		startTime: time.Now(),
		events:    NewEventHub(deps.WS, deps.Logger),
	}, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub and launches the HTTP listener in a
// background goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Parent context of the hub's lifetime
//
// Returns:
//   - error: If the server is already started
func (s *Server) Start(ctx context.Context) error {
	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.events.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}

// PublishVacuumState broadcasts a robot's state on the vacuum.state channel.
func (s *Server) PublishVacuumState(entryID, device string, st hub.VacuumState) {
	s.events.Broadcast(ChannelVacuumState, entryID, map[string]any{
		"entry_id": entryID,
		"device":   device,
		"state":    st,
	})
}

// PublishEntryState broadcasts an entry's lifecycle state on the
// entry.state channel. It matches the entries.Manager listener signature.
func (s *Server) PublishEntryState(e entries.Entry) {
	s.events.Broadcast(ChannelEntryState, e.ID, map[string]any{
		"entry_id": e.ID,
		"state":    e.State,
		"reason":   e.Reason,
		"version":  e.Version,
	})
}
