package platform

import (
	"context"
	"fmt"
	"slices"
)

// Camera exposes each robot's live map.
type Camera struct {
	attachments
}

// NewCamera creates the camera platform.
func NewCamera() *Camera {
	return &Camera{attachments: newAttachments()}
}

// Name returns "camera".
func (c *Camera) Name() string { return NameCamera }

// SetupEntry attaches h.
func (c *Camera) SetupEntry(ctx context.Context, entryID string, h Hub) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.attach(entryID, h, nil)
}

// UnloadEntry detaches the entry.
func (c *Camera) UnloadEntry(_ context.Context, entryID string) (bool, error) {
	return c.detach(entryID)
}

// Entities returns one map entity per robot. It is available once a map
// has been received.
func (c *Camera) Entities(entryID string) []Entity {
	h, ok := c.hub(entryID)
	if !ok {
		return nil
	}
	devices := h.Devices()
	out := make([]Entity, 0, len(devices))
	for _, device := range devices {
		img, found := h.MapImage(device)
		e := Entity{
			ID:        entityID(NameCamera, device, "map"),
			Platform:  NameCamera,
			Device:    device,
			Name:      "Map",
			Available: found,
		}
		if found {
			e.State = "idle"
			e.Attributes = map[string]any{"size": len(img)}
		}
		out = append(out, e)
	}
	return out
}

// Image returns the latest map image of a robot.
func (c *Camera) Image(entryID, device string) ([]byte, error) {
	h, ok := c.hub(entryID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotLoaded, entryID)
	}
	if !slices.Contains(h.Devices(), device) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, device)
	}
	img, found := h.MapImage(device)
	if !found {
		return nil, ErrNoImage
	}
	return img, nil
}
