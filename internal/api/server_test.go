package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-deebot/internal/deebot"
	"github.com/nerrad567/gray-logic-deebot/internal/entries"
	"github.com/nerrad567/gray-logic-deebot/internal/hub"
	"github.com/nerrad567/gray-logic-deebot/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-deebot/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-deebot/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-deebot/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-deebot/internal/platform"
	"github.com/nerrad567/gray-logic-deebot/migrations"
)

// fakeMQTT stands in for the per-entry broker connection.
type fakeMQTT struct {
	mu        sync.Mutex
	handlers  map[string]mqtt.MessageHandler
	published map[string][][]byte
}

func newFakeMQTT() *fakeMQTT {
	return &fakeMQTT{
		handlers:  make(map[string]mqtt.MessageHandler),
		published: make(map[string][][]byte),
	}
}

func (f *fakeMQTT) Subscribe(topic string, _ byte, h mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = h
	return nil
}

func (f *fakeMQTT) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, topic)
	return nil
}

func (f *fakeMQTT) Publish(topic string, payload []byte, _ byte, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[topic] = append(f.published[topic], payload)
	return nil
}

func (f *fakeMQTT) Close() error { return nil }

func (f *fakeMQTT) deliver(t *testing.T, topic string, payload []byte) {
	t.Helper()
	f.mu.Lock()
	h, ok := f.handlers[topic]
	f.mu.Unlock()
	if !ok {
		t.Fatalf("no subscription for %s", topic)
	}
	if err := h(topic, payload); err != nil {
		t.Fatalf("handler(%s) error = %v", topic, err)
	}
}

func (f *fakeMQTT) publishedTo(topic string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.published[topic]
}

// testEnv wires the API to a real entry manager, the deebot integration and
// real platforms. Only the broker is faked.
type testEnv struct {
	srv      *Server
	mgr      *entries.Manager
	repo     *entries.SQLiteRepository
	registry *deebot.Registry

	mu      sync.Mutex
	clients map[string]*fakeMQTT
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, config.DatabaseConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	env := &testEnv{
		repo:     entries.NewSQLiteRepository(db.DB),
		registry: deebot.NewRegistry(),
		clients:  make(map[string]*fakeMQTT),
	}
	env.mgr = entries.NewManager(env.repo)

	vacuum, camera := platform.NewVacuum(), platform.NewCamera()
	platforms := []platform.Platform{platform.NewSensor(nil), platform.NewBinarySensor(), vacuum, camera}

	factory := func(_ context.Context, entryID string, data deebot.DataV2) (deebot.Hub, error) {
		client := newFakeMQTT()
		env.mu.Lock()
		env.clients[entryID] = client
		env.mu.Unlock()

		h := hub.New(hub.Config{
			EntryID: entryID,
			Devices: data.Devices,
			Topics:  mqtt.NewTopics("deebot"),
			QoS:     1,
		}, client)
		h.Subscribe(func(device string, st hub.VacuumState) {
			env.srv.PublishVacuumState(entryID, device, st)
		})
		return h, nil
	}
	if err := env.mgr.Register(ctx, deebot.New(env.registry, factory, platforms...)); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	env.srv, err = New(Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger:    log,
		Entries:   env.mgr,
		Platforms: platforms,
		Vacuum:    vacuum,
		Camera:    camera,
		DB:        db.DB,
		Version:   "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	env.mgr.OnStateChange(env.srv.PublishEntryState)

	hubCtx, cancel := context.WithCancel(ctx)
	t.Cleanup(cancel)
	go env.srv.events.Run(hubCtx)

	return env
}

func (env *testEnv) client(t *testing.T, entryID string) *fakeMQTT {
	t.Helper()
	env.mu.Lock()
	defer env.mu.Unlock()
	c, ok := env.clients[entryID]
	if !ok {
		t.Fatalf("no broker connection for entry %s", entryID)
	}
	return c
}

func (env *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	env.srv.buildRouter().ServeHTTP(w, req)
	return w
}

// addEntry creates a loaded entry with one robot and returns it.
func (env *testEnv) addEntry(t *testing.T) entries.Entry {
	t.Helper()
	w := env.do(t, http.MethodPost, "/api/v1/entries", map[string]any{
		"title": "user@example.com",
		"data": map[string]any{
			"username":   "user@example.com",
			"password":   "secret",
			"country":    "gb",
			"continent":  "eu",
			"verify_ssl": true,
			"devices":    []string{"bot1"},
		},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("add entry status = %d, body = %s", w.Code, w.Body.String())
	}
	var e entries.Entry
	decode(t, w, &e)
	return e
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
}

// ─── Health & Middleware ───────────────────────────────────────────

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	env.addEntry(t)

	w := env.do(t, http.MethodGet, "/api/v1/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var resp map[string]any
	decode(t, w, &resp)
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
	if resp["loaded_entries"] != float64(1) {
		t.Errorf("loaded_entries = %v, want 1", resp["loaded_entries"])
	}
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/health", nil)
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	rec := httptest.NewRecorder()
	env.srv.buildRouter().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want client-123", got)
	}
}

func TestCORS_Preflight(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/entries", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	env.srv.buildRouter().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want http://localhost:3000", got)
	}
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	env := newTestEnv(t)
	env.srv.cfg.CORS.AllowedOrigins = []string{"http://panel.local"}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	w := httptest.NewRecorder()
	env.srv.buildRouter().ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("ACAO = %q, want empty", got)
	}
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t)
	if w := env.do(t, http.MethodGet, "/api/v1/nonexistent", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestPrometheusMetrics(t *testing.T) {
	env := newTestEnv(t)
	env.addEntry(t)

	w := env.do(t, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
	for _, name := range []string{"deebot_loaded_entries", "deebot_entry_setups_total"} {
		if !strings.Contains(w.Body.String(), name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}

func TestSystemMetrics(t *testing.T) {
	env := newTestEnv(t)
	env.addEntry(t)

	w := env.do(t, http.MethodGet, "/api/v1/system/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var m SystemMetrics
	decode(t, w, &m)
	if m.Entries.Total != 1 || m.Entries.ByState["loaded"] != 1 {
		t.Errorf("entries = %+v", m.Entries)
	}
	if m.Runtime.Goroutines == 0 {
		t.Error("goroutines = 0")
	}
	if m.Database.OpenConnections < 1 {
		t.Errorf("open connections = %d", m.Database.OpenConnections)
	}
}

// ─── Entries ───────────────────────────────────────────────────────

func TestAddEntry(t *testing.T) {
	env := newTestEnv(t)
	e := env.addEntry(t)

	if e.ID == "" {
		t.Fatal("entry has no ID")
	}
	if e.State != entries.StateLoaded {
		t.Errorf("state = %s, want loaded (reason %q)", e.State, e.Reason)
	}
	if e.Version != deebot.Version {
		t.Errorf("version = %d, want %d", e.Version, deebot.Version)
	}
	if e.Data["password"] != "********" {
		t.Errorf("password = %v, want redacted", e.Data["password"])
	}
	if _, ok := env.registry.Get(e.ID); !ok {
		t.Error("hub not registered")
	}

	refresh := env.client(t, e.ID).publishedTo("deebot/bot1/command")
	if len(refresh) != 1 || !strings.Contains(string(refresh[0]), `"refresh"`) {
		t.Errorf("refresh command = %q", refresh)
	}
}

func TestAddEntry_Validation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "invalid json", body: "{", want: http.StatusBadRequest},
		{name: "missing title", body: `{"data":{}}`, want: http.StatusUnprocessableEntity},
		{name: "unknown domain", body: `{"domain":"roomba","title":"x"}`, want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/entries", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			env.srv.buildRouter().ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
			var apiErr Error
			decode(t, w, &apiErr)
			if apiErr.Status != tt.want || apiErr.Message == "" {
				t.Errorf("error body = %+v", apiErr)
			}
		})
	}
}

func TestListAndGetEntry(t *testing.T) {
	env := newTestEnv(t)
	e := env.addEntry(t)

	w := env.do(t, http.MethodGet, "/api/v1/entries", nil)
	var list struct {
		Entries []entries.Entry `json:"entries"`
		Count   int             `json:"count"`
	}
	decode(t, w, &list)
	if list.Count != 1 || list.Entries[0].ID != e.ID {
		t.Errorf("list = %+v", list)
	}

	w = env.do(t, http.MethodGet, "/api/v1/entries/"+e.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}

	if w := env.do(t, http.MethodGet, "/api/v1/entries/missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("get missing status = %d, want 404", w.Code)
	}
}

func TestUnloadAndReloadEntry(t *testing.T) {
	env := newTestEnv(t)
	e := env.addEntry(t)

	w := env.do(t, http.MethodPost, "/api/v1/entries/"+e.ID+"/unload", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("unload status = %d, body %s", w.Code, w.Body.String())
	}
	var got entries.Entry
	decode(t, w, &got)
	if got.State != entries.StateNotLoaded {
		t.Errorf("state after unload = %s", got.State)
	}
	if env.registry.Len() != 0 {
		t.Error("registry not empty after unload")
	}

	w = env.do(t, http.MethodPost, "/api/v1/entries/"+e.ID+"/reload", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reload status = %d, body %s", w.Code, w.Body.String())
	}
	decode(t, w, &got)
	if got.State != entries.StateLoaded {
		t.Errorf("state after reload = %s", got.State)
	}
	if env.registry.Len() != 1 {
		t.Error("hub not registered after reload")
	}
}

func TestRemoveEntry(t *testing.T) {
	env := newTestEnv(t)
	e := env.addEntry(t)

	if w := env.do(t, http.MethodDelete, "/api/v1/entries/"+e.ID, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, body %s", w.Code, w.Body.String())
	}
	if w := env.do(t, http.MethodGet, "/api/v1/entries/"+e.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", w.Code)
	}
	if w := env.do(t, http.MethodDelete, "/api/v1/entries/"+e.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}

func TestLoadAll_MigratesLegacyEntry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	legacy := &entries.Entry{
		ID:      "legacy",
		Domain:  deebot.Domain,
		Title:   "old@example.com",
		Version: 1,
		Data: map[string]any{
			"username":         "old@example.com",
			"deviceid":         map[string]any{"deviceid": []any{"bot1", "bot2"}},
			"show_color_rooms": true,
			"live_map":         false,
		},
		State: entries.StateNotLoaded,
	}
	if err := env.repo.Create(ctx, legacy); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := env.mgr.LoadAll(ctx); err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}

	w := env.do(t, http.MethodGet, "/api/v1/entries/legacy", nil)
	var got entries.Entry
	decode(t, w, &got)
	if got.Version != 2 || got.State != entries.StateLoaded {
		t.Errorf("entry = version %d state %s (%s)", got.Version, got.State, got.Reason)
	}
	if got.Data["verify_ssl"] != true {
		t.Errorf("verify_ssl = %v", got.Data["verify_ssl"])
	}
	if _, ok := got.Data["deviceid"]; ok {
		t.Error("deviceid still present")
	}

	w = env.do(t, http.MethodGet, "/api/v1/entries/legacy/entities", nil)
	var ents struct {
		Count int `json:"count"`
	}
	decode(t, w, &ents)
	// two robots: 6 sensors, 2 binary sensors, 1 vacuum, 1 camera each
	if ents.Count != 20 {
		t.Errorf("entity count = %d, want 20", ents.Count)
	}
}

func TestLoadAll_RefusesNewerEntry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.repo.Create(ctx, &entries.Entry{
		ID: "future", Domain: deebot.Domain, Version: 3,
		Data: map[string]any{}, State: entries.StateNotLoaded,
	}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := env.mgr.LoadAll(ctx); err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}

	w := env.do(t, http.MethodGet, "/api/v1/entries/future", nil)
	var got entries.Entry
	decode(t, w, &got)
	if got.State != entries.StateMigrationError || got.Version != 3 {
		t.Errorf("entry = version %d state %s", got.Version, got.State)
	}
	if env.registry.Len() != 0 {
		t.Error("hub created for unmigrated entry")
	}
}

// ─── Entities, vacuums and cameras ─────────────────────────────────

func TestListEntities_FollowsState(t *testing.T) {
	env := newTestEnv(t)
	e := env.addEntry(t)

	env.client(t, e.ID).deliver(t, "deebot/bot1/state",
		[]byte(`{"status":"cleaning","battery":80,"charging":false,"mop_attached":true}`))

	w := env.do(t, http.MethodGet, "/api/v1/entries/"+e.ID+"/entities", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Entities []platform.Entity `json:"entities"`
	}
	decode(t, w, &resp)

	states := make(map[string]any)
	for _, ent := range resp.Entities {
		states[ent.ID] = ent.State
	}
	want := map[string]any{
		"sensor.bot1_battery":             float64(80),
		"binary_sensor.bot1_mop_attached": true,
		"vacuum.bot1":                     "cleaning",
	}
	for id, v := range want {
		if states[id] != v {
			t.Errorf("%s = %v, want %v", id, states[id], v)
		}
	}
	if _, ok := states["camera.bot1_map"]; !ok {
		t.Error("camera entity missing")
	}

	if w := env.do(t, http.MethodGet, "/api/v1/entries/missing/entities", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing entry status = %d, want 404", w.Code)
	}
}

func TestVacuumCommand(t *testing.T) {
	env := newTestEnv(t)
	e := env.addEntry(t)
	base := "/api/v1/entries/" + e.ID + "/vacuums/"

	tests := []struct {
		name   string
		device string
		body   map[string]any
		want   int
	}{
		{name: "clean", device: "bot1", body: map[string]any{"command": "clean"}, want: http.StatusAccepted},
		{name: "fan speed", device: "bot1", body: map[string]any{"command": "set_fan_speed", "params": map[string]any{"fan_speed": "max"}}, want: http.StatusAccepted},
		{name: "bad fan speed", device: "bot1", body: map[string]any{"command": "set_fan_speed", "params": map[string]any{"fan_speed": "warp"}}, want: http.StatusUnprocessableEntity},
		{name: "unknown command", device: "bot1", body: map[string]any{"command": "fly"}, want: http.StatusUnprocessableEntity},
		{name: "missing command", device: "bot1", body: map[string]any{}, want: http.StatusUnprocessableEntity},
		{name: "unknown device", device: "bot9", body: map[string]any{"command": "clean"}, want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, base+tt.device+"/command", tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}

	// refresh on setup plus the two accepted commands
	if got := env.client(t, e.ID).publishedTo("deebot/bot1/command"); len(got) != 3 {
		t.Errorf("published %d commands, want 3", len(got))
	}
}

func TestVacuumCommand_EntryNotLoaded(t *testing.T) {
	env := newTestEnv(t)
	e := env.addEntry(t)
	if w := env.do(t, http.MethodPost, "/api/v1/entries/"+e.ID+"/unload", nil); w.Code != http.StatusOK {
		t.Fatalf("unload status = %d", w.Code)
	}

	w := env.do(t, http.MethodPost, "/api/v1/entries/"+e.ID+"/vacuums/bot1/command", map[string]any{"command": "clean"})
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestCameraMap(t *testing.T) {
	env := newTestEnv(t)
	e := env.addEntry(t)
	path := "/api/v1/entries/" + e.ID + "/cameras/bot1/map"

	if w := env.do(t, http.MethodGet, path, nil); w.Code != http.StatusNotFound {
		t.Errorf("status before map = %d, want 404", w.Code)
	}

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	env.client(t, e.ID).deliver(t, "deebot/bot1/map", png)

	w := env.do(t, http.MethodGet, path, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", ct)
	}
	if !bytes.Equal(w.Body.Bytes(), png) {
		t.Error("body does not match map image")
	}
}

func TestOptionalDependencies(t *testing.T) {
	env := newTestEnv(t)
	e := env.addEntry(t)
	env.srv.vacuum = nil
	env.srv.camera = nil

	w := env.do(t, http.MethodPost, "/api/v1/entries/"+e.ID+"/vacuums/bot1/command", map[string]any{"command": "clean"})
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("command status = %d, want 503", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/v1/entries/"+e.ID+"/cameras/bot1/map", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("map status = %d, want 503", w.Code)
	}
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New() without logger succeeded")
	}
	if _, err := New(Deps{Logger: logging.Discard()}); err == nil {
		t.Error("New() without entry manager succeeded")
	}
}

// ─── WebSocket hub ─────────────────────────────────────────────────

func newClient(events *EventHub, subs map[string]map[string]struct{}) *WSClient {
	return &WSClient{
		hub:           events,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: subs,
	}
}

func TestEventHub_Broadcast(t *testing.T) {
	events := NewEventHub(config.WebSocketConfig{}, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go events.Run(ctx)

	all := newClient(events, map[string]map[string]struct{}{ChannelVacuumState: {allEntries: {}}})
	one := newClient(events, map[string]map[string]struct{}{ChannelVacuumState: {"e1": {}}})
	other := newClient(events, map[string]map[string]struct{}{ChannelEntryState: {allEntries: {}}})
	for _, c := range []*WSClient{all, one, other} {
		events.Register(c)
	}

	events.Broadcast(ChannelVacuumState, "e2", map[string]any{"device": "bot1"})

	select {
	case msg := <-all.send:
		var wsMsg WSMessage
		if err := json.Unmarshal(msg, &wsMsg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if wsMsg.EventType != ChannelVacuumState {
			t.Errorf("event_type = %q, want %q", wsMsg.EventType, ChannelVacuumState)
		}
	case <-time.After(time.Second):
		t.Error("timed out waiting for broadcast message")
	}

	select {
	case <-one.send:
		t.Error("client filtered to e1 received e2 event")
	case <-other.send:
		t.Error("client on another channel received event")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEventHub_ClientCount(t *testing.T) {
	events := NewEventHub(config.WebSocketConfig{}, logging.Discard())

	if events.ClientCount() != 0 {
		t.Errorf("initial client count = %d, want 0", events.ClientCount())
	}

	client := newClient(events, make(map[string]map[string]struct{}))
	events.Register(client)
	if events.ClientCount() != 1 {
		t.Errorf("after register count = %d, want 1", events.ClientCount())
	}

	events.Unregister(client)
	events.Unregister(client)
	if events.ClientCount() != 0 {
		t.Errorf("after unregister count = %d, want 0", events.ClientCount())
	}
}

// ─── WebSocket end to end ──────────────────────────────────────────

func dialWS(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(env.srv.buildRouter())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	resp.Body.Close()
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readWS(t *testing.T, ws *websocket.Conn) WSMessage {
	t.Helper()
	//nolint:errcheck // test deadline
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func subscribe(t *testing.T, ws *websocket.Conn, payload WSSubscribePayload) WSMessage {
	t.Helper()
	if err := ws.WriteJSON(WSMessage{Type: WSTypeSubscribe, ID: "sub-1", Payload: payload}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	return readWS(t, ws)
}

func TestWebSocket_VacuumState(t *testing.T) {
	env := newTestEnv(t)
	e := env.addEntry(t)
	ws := dialWS(t, env)

	if resp := subscribe(t, ws, WSSubscribePayload{Channels: []string{ChannelVacuumState}, EntryID: e.ID}); resp.Type != WSTypeResponse {
		t.Fatalf("subscribe response type = %s", resp.Type)
	}

	env.client(t, e.ID).deliver(t, "deebot/bot1/state", []byte(`{"status":"returning","battery":20}`))

	msg := readWS(t, ws)
	if msg.Type != WSTypeEvent || msg.EventType != ChannelVacuumState {
		t.Fatalf("message = %+v", msg)
	}
	payload, _ := msg.Payload.(map[string]any)
	state, _ := payload["state"].(map[string]any)
	if payload["device"] != "bot1" || state["status"] != "returning" {
		t.Errorf("payload = %v", payload)
	}
}

func TestWebSocket_EntryState(t *testing.T) {
	env := newTestEnv(t)
	e := env.addEntry(t)
	ws := dialWS(t, env)
	subscribe(t, ws, WSSubscribePayload{Channels: []string{ChannelEntryState}})

	if w := env.do(t, http.MethodPost, "/api/v1/entries/"+e.ID+"/unload", nil); w.Code != http.StatusOK {
		t.Fatalf("unload status = %d", w.Code)
	}

	msg := readWS(t, ws)
	payload, _ := msg.Payload.(map[string]any)
	if msg.EventType != ChannelEntryState || payload["state"] != string(entries.StateNotLoaded) {
		t.Errorf("message = %+v", msg)
	}
}

func TestWebSocket_Errors(t *testing.T) {
	env := newTestEnv(t)
	ws := dialWS(t, env)

	tests := []struct {
		name string
		msg  any
		want string
	}{
		{name: "unknown channel", msg: WSMessage{Type: WSTypeSubscribe, Payload: WSSubscribePayload{Channels: []string{"device.state_changed"}}}, want: WSTypeError},
		{name: "empty channels", msg: WSMessage{Type: WSTypeUnsubscribe, Payload: WSSubscribePayload{}}, want: WSTypeError},
		{name: "unknown type", msg: WSMessage{Type: "unknown_type"}, want: WSTypeError},
		{name: "ping", msg: WSMessage{Type: WSTypePing, ID: "p1"}, want: WSTypePong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ws.WriteJSON(tt.msg); err != nil {
				t.Fatalf("write: %v", err)
			}
			if got := readWS(t, ws); got.Type != tt.want {
				t.Errorf("response type = %s, want %s", got.Type, tt.want)
			}
		})
	}

	if err := ws.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := readWS(t, ws); got.Type != WSTypeError {
		t.Errorf("invalid JSON response type = %s, want error", got.Type)
	}
}
