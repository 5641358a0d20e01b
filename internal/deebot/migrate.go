package deebot

import (
	"fmt"
	"maps"

	"github.com/mitchellh/mapstructure"
)

// Entry data keys touched by the v1 upgrade.
const (
	keyDeviceID       = "deviceid"
	keyShowColorRooms = "show_color_rooms"
	keyLiveMap        = "live_map"
	keyDevices        = "devices"
	keyVerifySSL      = "verify_ssl"
)

// LegacyDeviceSelection is the v1 "deviceid" value. The selected robots
// sit one level further down, under a key with the same name.
type LegacyDeviceSelection struct {
	DeviceID []string `mapstructure:"deviceid"`
}

// DataV1 is the part of version 1 entry data the upgrade rewrites. Keys
// not named here, account fields included, are copied verbatim by
// UpgradeV1.
type DataV1 struct {
	DeviceID LegacyDeviceSelection `mapstructure:"deviceid"`
}

// DataV2 is the version 2 entry data.
type DataV2 struct {
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Country   string   `mapstructure:"country"`
	Continent string   `mapstructure:"continent"`
	VerifySSL bool     `mapstructure:"verify_ssl"`
	Devices   []string `mapstructure:"devices"`

	Extra map[string]any `mapstructure:",remain"`
}

// UpgradeV1 converts v1 entry data to v2. Every existing key is copied;
// verify_ssl is forced on, the device list is hoisted out of
// deviceid.deviceid into devices, and the legacy keys are removed.
// Missing legacy keys are not an error. data is not modified.
func UpgradeV1(data map[string]any) (map[string]any, error) {
	v1, err := decodeV1(data)
	if err != nil {
		return nil, err
	}

	devices := make([]string, len(v1.DeviceID.DeviceID))
	copy(devices, v1.DeviceID.DeviceID)

	out := maps.Clone(data)
	if out == nil {
		out = make(map[string]any, 2)
	}
	delete(out, keyDeviceID)
	delete(out, keyShowColorRooms)
	delete(out, keyLiveMap)
	out[keyDevices] = devices
	out[keyVerifySSL] = true
	return out, nil
}

// ToMap renders d as entry data. Unknown keys carried in Extra are
// written first so the typed fields win.
func (d DataV2) ToMap() map[string]any {
	out := make(map[string]any, len(d.Extra)+6)
	for k, v := range d.Extra {
		out[k] = v
	}

	out["username"] = d.Username
	out["password"] = d.Password
	out["country"] = d.Country
	out["continent"] = d.Continent

	devices := d.Devices
	if devices == nil {
		devices = []string{}
	}
	out[keyDevices] = devices
	out[keyVerifySSL] = d.VerifySSL
	return out
}

// decodeV1 reads the legacy device selection. Types are not coerced and
// keys must match exactly; a missing or null deviceid selects nothing.
func decodeV1(data map[string]any) (DataV1, error) {
	var v1 DataV1
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:    &v1,
		MatchName: func(mapKey, fieldName string) bool { return mapKey == fieldName },
	})
	if err != nil {
		return DataV1{}, fmt.Errorf("creating decoder: %w", err)
	}
	if err := decoder.Decode(data); err != nil {
		return DataV1{}, fmt.Errorf("%w: %w", ErrInvalidData, err)
	}
	return v1, nil
}

// DecodeV2 reads v2 entry data for setup. Scalars are coerced leniently.
func DecodeV2(data map[string]any) (DataV2, error) {
	var v2 DataV2
	if err := decode(data, &v2); err != nil {
		return DataV2{}, err
	}
	if v2.Devices == nil {
		v2.Devices = []string{}
	}
	return v2, nil
}

func decode(input map[string]any, output any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           output,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("creating decoder: %w", err)
	}
	if err := decoder.Decode(input); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidData, err)
	}
	return nil
}

// MigrateData upgrades entry data from version to Version.
//
// Version 1 data is upgraded to version 2. Data already at Version is
// returned untouched, as is data with a version below 1 (logged as a
// warning). Versions newer than Version fail with ErrUnsupportedVersion.
//
// A debug record with the starting version and an info record with the
// resulting version are emitted on every successful call.
//
// Parameters:
//   - logger: Receives the migration records
//   - version: Schema version of data
//   - data: Entry data; not modified
//
// Returns:
//   - int: Resulting version
//   - map[string]any: Resulting data (data itself when nothing changed)
//   - error: ErrUnsupportedVersion or ErrInvalidData
func MigrateData(logger Logger, version int, data map[string]any) (int, map[string]any, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	logger.Debug("migrating config entry", "from_version", version)

	switch {
	case version == 1:
		upgraded, err := UpgradeV1(data)
		if err != nil {
			return version, data, err
		}
		data = upgraded
		version = 2
	case version > Version:
		return version, data, fmt.Errorf("%w: %d (newest known is %d)", ErrUnsupportedVersion, version, Version)
	case version < 1:
		logger.Warn("config entry has no known version, leaving data unchanged", "version", version)
	}

	logger.Info("config entry migration successful", "version", version)
	return version, data, nil
}
