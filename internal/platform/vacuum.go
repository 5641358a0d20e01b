package platform

import (
	"context"
	"fmt"
	"slices"

	"github.com/nerrad567/gray-logic-deebot/internal/hub"
	"github.com/nerrad567/gray-logic-deebot/internal/metrics"
)

// Vacuum commands.
const (
	CommandClean        = "clean"
	CommandPause        = "pause"
	CommandResume       = "resume"
	CommandStop         = "stop"
	CommandReturnToBase = "return_to_base"
	CommandLocate       = "locate"
	CommandSetFanSpeed  = "set_fan_speed"
	CommandSpotArea     = "spot_area"
	CommandCustomArea   = "custom_area"
)

// Commands lists the accepted vacuum commands.
var Commands = []string{
	CommandClean, CommandPause, CommandResume, CommandStop, CommandReturnToBase,
	CommandLocate, CommandSetFanSpeed, CommandSpotArea, CommandCustomArea,
}

// FanSpeeds lists the accepted fan speeds, quietest first.
var FanSpeeds = []string{"quiet", "normal", "max", "max_plus"}

// Vacuum exposes one controllable entity per robot.
type Vacuum struct {
	attachments
}

// NewVacuum creates the vacuum platform.
func NewVacuum() *Vacuum {
	return &Vacuum{attachments: newAttachments()}
}

// Name returns "vacuum".
func (v *Vacuum) Name() string { return NameVacuum }

// SetupEntry attaches h.
func (v *Vacuum) SetupEntry(ctx context.Context, entryID string, h Hub) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return v.attach(entryID, h, nil)
}

// UnloadEntry detaches the entry.
func (v *Vacuum) UnloadEntry(_ context.Context, entryID string) (bool, error) {
	return v.detach(entryID)
}

// Entities returns one vacuum entity per robot. Its state is the robot's
// status.
func (v *Vacuum) Entities(entryID string) []Entity {
	h, ok := v.hub(entryID)
	if !ok {
		return nil
	}
	devices := h.Devices()
	out := make([]Entity, 0, len(devices))
	for _, device := range devices {
		st, found := h.State(device)
		e := Entity{
			ID:        entityID(NameVacuum, device, ""),
			Platform:  NameVacuum,
			Device:    device,
			Name:      device,
			Available: found,
			Attributes: map[string]any{
				"fan_speed_list": FanSpeeds,
			},
		}
		if found {
			e.State = string(st.Status)
			e.Attributes["battery_level"] = st.Battery
			e.Attributes["fan_speed"] = st.FanSpeed
			e.Attributes["error_code"] = st.ErrorCode
		}
		out = append(out, e)
	}
	return out
}

// Command validates and sends a command to one robot of the entry.
//
// Parameters:
//   - name: one of Commands
//   - params: set_fan_speed needs "fan_speed", spot_area needs "area",
//     custom_area needs "coordinates"
//
// Returns:
//   - error: ErrNotLoaded, ErrUnknownDevice, ErrInvalidCommand,
//     ErrInvalidFanSpeed, ErrMissingParam or the hub's publish error
func (v *Vacuum) Command(ctx context.Context, entryID, device, name string, params map[string]any) error {
	err := v.command(ctx, entryID, device, name, params)
	label := name
	if !slices.Contains(Commands, name) {
		label = "unknown"
	}
	metrics.RecordCommand(label, err == nil)
	return err
}

func (v *Vacuum) command(ctx context.Context, entryID, device, name string, params map[string]any) error {
	h, ok := v.hub(entryID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotLoaded, entryID)
	}
	if !slices.Contains(h.Devices(), device) {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, device)
	}
	if err := validateCommand(name, params); err != nil {
		return err
	}
	return h.SendCommand(ctx, device, hub.Command{Name: name, Params: params})
}

func validateCommand(name string, params map[string]any) error {
	if !slices.Contains(Commands, name) {
		return fmt.Errorf("%w: %q", ErrInvalidCommand, name)
	}

	switch name {
	case CommandSetFanSpeed:
		speed, _ := params["fan_speed"].(string)
		if speed == "" {
			return fmt.Errorf("%w: fan_speed", ErrMissingParam)
		}
		if !slices.Contains(FanSpeeds, speed) {
			return fmt.Errorf("%w: %q", ErrInvalidFanSpeed, speed)
		}
	case CommandSpotArea:
		if params["area"] == nil {
			return fmt.Errorf("%w: area", ErrMissingParam)
		}
	case CommandCustomArea:
		if params["coordinates"] == nil {
			return fmt.Errorf("%w: coordinates", ErrMissingParam)
		}
	}
	return nil
}
