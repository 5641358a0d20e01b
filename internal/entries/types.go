package entries

import (
	"fmt"
	"time"
)

// State is the supervisor's view of an entry.
type State string

// Entry states.
const (
	StateNotLoaded      State = "not_loaded"
	StateLoaded         State = "loaded"
	StateSetupError     State = "setup_error"
	StateMigrationError State = "migration_error"
	StateFailedUnload   State = "failed_unload"
)

// runtime reports whether s describes an entry with live integration
// state in the current process.
func (s State) runtime() bool {
	return s == StateLoaded || s == StateFailedUnload
}

// Entry is one configured instance of an integration.
type Entry struct {
	ID      string `json:"id"`
	Domain  string `json:"domain"`
	Title   string `json:"title"`
	Version int    `json:"version"`

	// Data is the integration-defined configuration record. Its layout is
	// identified by Version.
	Data map[string]any `json:"data"`

	State State `json:"state"`

	// Reason holds the last error message for the error states.
	Reason string `json:"reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the fields every entry must carry.
func (e *Entry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidEntry)
	}
	if e.Domain == "" {
		return fmt.Errorf("%w: domain is required", ErrInvalidEntry)
	}
	return nil
}

// Loaded reports whether the entry is set up.
func (e *Entry) Loaded() bool {
	return e.State == StateLoaded
}

// DeepCopy returns a copy sharing no mutable state with e.
func (e *Entry) DeepCopy() *Entry {
	if e == nil {
		return nil
	}
	cpy := *e
	cpy.Data = deepCopyMap(e.Data)
	return &cpy
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}
