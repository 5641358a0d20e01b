package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-deebot/internal/infrastructure/mqtt"
)

// Logger defines the logging interface used by the hub.
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

// MQTTClient is the subset of *mqtt.Client the hub uses. The hub owns the
// client and closes it on Close.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	Close() error
}

// Config describes one account's hub.
type Config struct {
	EntryID   string
	Username  string
	Country   string
	Continent string

	// Devices restricts the hub to these robots. Empty means all.
	Devices []string

	VerifySSL bool
	Topics    mqtt.Topics
	QoS       byte
}

// Hub caches robot state for one entry and relays commands.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Listeners are invoked without the hub lock held.
type Hub struct {
	cfg    Config
	client MQTTClient
	logger Logger

	selected map[string]bool

	mu      sync.RWMutex
	devices map[string]bool
	states  map[string]VacuumState
	maps    map[string][]byte
	topics  []string
	closed  bool

	listenerMu sync.RWMutex
	listeners  map[uint64]Listener
	nextID     uint64
}

// New creates a hub. Call Initialize before use.
func New(cfg Config, client MQTTClient) *Hub {
	h := &Hub{
		cfg:       cfg,
		client:    client,
		logger:    noopLogger{},
		selected:  make(map[string]bool, len(cfg.Devices)),
		devices:   make(map[string]bool, len(cfg.Devices)),
		states:    make(map[string]VacuumState),
		maps:      make(map[string][]byte),
		listeners: make(map[uint64]Listener),
	}
	for _, d := range cfg.Devices {
		h.selected[d] = true
		h.devices[d] = true
	}
	return h
}

// SetLogger sets the logger for the hub.
func (h *Hub) SetLogger(logger Logger) {
	h.logger = logger
}

// EntryID returns the owning entry's ID.
func (h *Hub) EntryID() string {
	return h.cfg.EntryID
}

// Initialize subscribes to the selected robots' state and map topics and
// asks each of them for a fresh state.
func (h *Hub) Initialize(ctx context.Context) error {
	var subs []string
	if len(h.selected) == 0 {
		subs = []string{h.cfg.Topics.State("+"), h.cfg.Topics.Map("+")}
	} else {
		for _, d := range h.cfg.Devices {
			subs = append(subs, h.cfg.Topics.State(d), h.cfg.Topics.Map(d))
		}
	}

	for _, topic := range subs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := h.client.Subscribe(topic, h.cfg.QoS, h.handleMessage); err != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
		h.mu.Lock()
		h.topics = append(h.topics, topic)
		h.mu.Unlock()
	}

	for _, d := range h.cfg.Devices {
		if err := h.SendCommand(ctx, d, Command{Name: "refresh"}); err != nil {
			return fmt.Errorf("requesting state of %s: %w", d, err)
		}
	}

	h.logger.Info("hub initialised", "entry_id", h.cfg.EntryID, "devices", len(h.cfg.Devices), "verify_ssl", h.cfg.VerifySSL)
	return nil
}

func (h *Hub) handleMessage(topic string, payload []byte) error {
	device, ok := h.cfg.Topics.DeviceFromTopic(topic)
	if !ok {
		return nil
	}
	if len(h.selected) > 0 && !h.selected[device] {
		return nil
	}

	switch topic {
	case h.cfg.Topics.State(device):
		return h.applyState(device, payload)
	case h.cfg.Topics.Map(device):
		h.applyMap(device, payload)
	}
	return nil
}

func (h *Hub) applyState(device string, payload []byte) error {
	var st VacuumState
	if err := json.Unmarshal(payload, &st); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.devices[device] = true
	h.states[device] = st
	h.mu.Unlock()

	h.listenerMu.RLock()
	listeners := make([]Listener, 0, len(h.listeners))
	for _, fn := range h.listeners {
		listeners = append(listeners, fn)
	}
	h.listenerMu.RUnlock()

	for _, fn := range listeners {
		fn(device, st)
	}
	return nil
}

func (h *Hub) applyMap(device string, payload []byte) {
	img := append([]byte(nil), payload...)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.devices[device] = true
	h.maps[device] = img
}

// Devices returns the known robot IDs in sorted order.
func (h *Hub) Devices() []string {
	h.mu.RLock()
	out := make([]string, 0, len(h.devices))
	for d := range h.devices {
		out = append(out, d)
	}
	h.mu.RUnlock()
	sort.Strings(out)
	return out
}

// State returns the last state reported by device.
func (h *Hub) State(device string) (VacuumState, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	st, ok := h.states[device]
	return st, ok
}

// MapImage returns a copy of the latest map image from device.
func (h *Hub) MapImage(device string) ([]byte, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	img, ok := h.maps[device]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), img...), true
}

// Subscribe registers fn for state updates and returns a function that
// removes it.
func (h *Hub) Subscribe(fn Listener) func() {
	h.listenerMu.Lock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = fn
	h.listenerMu.Unlock()

	return func() {
		h.listenerMu.Lock()
		delete(h.listeners, id)
		h.listenerMu.Unlock()
	}
}

// SendCommand publishes cmd to device. A request ID is generated if the
// command has none.
func (h *Hub) SendCommand(ctx context.Context, device string, cmd Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.RLock()
	closed, known := h.closed, h.devices[device]
	h.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if !known {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, device)
	}

	if cmd.RequestID == "" {
		cmd.RequestID = uuid.NewString()
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encoding command: %w", err)
	}

	if err := h.client.Publish(h.cfg.Topics.Command(device), payload, h.cfg.QoS, false); err != nil {
		return err
	}
	h.logger.Debug("command sent", "entry_id", h.cfg.EntryID, "device", device, "command", cmd.Name, "request_id", cmd.RequestID)
	return nil
}

// Close unsubscribes, drops all listeners and closes the MQTT client.
// Calling Close more than once is a no-op.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	topics := h.topics
	h.topics = nil
	h.mu.Unlock()

	h.listenerMu.Lock()
	h.listeners = make(map[uint64]Listener)
	h.listenerMu.Unlock()

	var errs []error
	for _, topic := range topics {
		if err := h.client.Unsubscribe(topic); err != nil && !errors.Is(err, mqtt.ErrNotConnected) {
			errs = append(errs, fmt.Errorf("unsubscribing %s: %w", topic, err))
		}
	}
	if err := h.client.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
