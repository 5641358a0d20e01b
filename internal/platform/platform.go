package platform

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/nerrad567/gray-logic-deebot/internal/hub"
)

// Platform names.
const (
	NameSensor       = "sensor"
	NameBinarySensor = "binary_sensor"
	NameVacuum       = "vacuum"
	NameCamera       = "camera"
)

// Hub is the view of an entry's hub that platforms need.
type Hub interface {
	EntryID() string
	Devices() []string
	State(device string) (hub.VacuumState, bool)
	MapImage(device string) ([]byte, bool)
	SendCommand(ctx context.Context, device string, cmd hub.Command) error

	// Subscribe registers fn for state updates and returns its
	// unsubscribe function.
	Subscribe(fn hub.Listener) func()
}

var _ Hub = (*hub.Hub)(nil)

// Platform is one kind of entity provider an entry is forwarded to.
type Platform interface {
	Name() string
	SetupEntry(ctx context.Context, entryID string, h Hub) error

	// UnloadEntry detaches the entry. ok reports whether the platform
	// released everything it held for it.
	UnloadEntry(ctx context.Context, entryID string) (ok bool, err error)

	Entities(entryID string) []Entity
}

// Entity is the externally visible state of one robot feature.
type Entity struct {
	ID         string         `json:"entity_id"`
	Platform   string         `json:"platform"`
	Device     string         `json:"device"`
	Name       string         `json:"name"`
	State      any            `json:"state"`
	Unit       string         `json:"unit,omitempty"`
	Available  bool           `json:"available"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

func entityID(platform, device, key string) string {
	id := strings.ToLower(device)
	if key != "" {
		id += "_" + key
	}
	return platform + "." + id
}

type attachment struct {
	hub         Hub
	unsubscribe func()
}

// attachments tracks the hubs attached to a platform, keyed by entry ID.
type attachments struct {
	mu      sync.RWMutex
	entries map[string]attachment
}

func newAttachments() attachments {
	return attachments{entries: make(map[string]attachment)}
}

func (a *attachments) attach(entryID string, h Hub, unsubscribe func()) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.entries[entryID]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyLoaded, entryID)
	}
	a.entries[entryID] = attachment{hub: h, unsubscribe: unsubscribe}
	return nil
}

// detach releases the entry. Detaching an entry that is not attached
// succeeds, so an unload interrupted on another platform can be retried.
func (a *attachments) detach(entryID string) (bool, error) {
	a.mu.Lock()
	att, ok := a.entries[entryID]
	delete(a.entries, entryID)
	a.mu.Unlock()

	if ok && att.unsubscribe != nil {
		att.unsubscribe()
	}
	return true, nil
}

func (a *attachments) hub(entryID string) (Hub, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	att, ok := a.entries[entryID]
	return att.hub, ok
}

// ids returns the attached entry IDs in sorted order.
func (a *attachments) ids() []string {
	a.mu.RLock()
	ids := make([]string, 0, len(a.entries))
	for id := range a.entries {
		ids = append(ids, id)
	}
	a.mu.RUnlock()
	sort.Strings(ids)
	return ids
}
