package platform

import (
	"context"

	"github.com/nerrad567/gray-logic-deebot/internal/hub"
)

type binaryDesc struct {
	key   string
	name  string
	value func(hub.VacuumState) bool
}

var binaryDescs = []binaryDesc{
	{key: "charging", name: "Charging", value: func(s hub.VacuumState) bool { return s.Charging }},
	{key: "mop_attached", name: "Mop attached", value: func(s hub.VacuumState) bool { return s.MopAttached }},
}

// BinarySensor exposes the robots' on/off conditions.
type BinarySensor struct {
	attachments
}

// NewBinarySensor creates the binary_sensor platform.
func NewBinarySensor() *BinarySensor {
	return &BinarySensor{attachments: newAttachments()}
}

// Name returns "binary_sensor".
func (b *BinarySensor) Name() string { return NameBinarySensor }

// SetupEntry attaches h.
func (b *BinarySensor) SetupEntry(ctx context.Context, entryID string, h Hub) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.attach(entryID, h, nil)
}

// UnloadEntry detaches the entry.
func (b *BinarySensor) UnloadEntry(_ context.Context, entryID string) (bool, error) {
	return b.detach(entryID)
}

// Entities returns one entity per condition per robot.
func (b *BinarySensor) Entities(entryID string) []Entity {
	h, ok := b.hub(entryID)
	if !ok {
		return nil
	}
	var out []Entity
	for _, device := range h.Devices() {
		st, found := h.State(device)
		for _, d := range binaryDescs {
			e := Entity{
				ID:        entityID(NameBinarySensor, device, d.key),
				Platform:  NameBinarySensor,
				Device:    device,
				Name:      d.name,
				Available: found,
			}
			if found {
				e.State = d.value(st)
			}
			out = append(out, e)
		}
	}
	return out
}
