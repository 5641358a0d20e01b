package deebot

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
)

type logRecord struct {
	level string
	msg   string
	args  []any
}

// recordingLogger captures log records for assertions.
type recordingLogger struct {
	mu      sync.Mutex
	records []logRecord
}

func (l *recordingLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, logRecord{level, msg, args})
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.add("debug", msg, args) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *recordingLogger) Error(msg string, args ...any) { l.add("error", msg, args) }

func (l *recordingLogger) levels() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.records))
	for _, r := range l.records {
		out = append(out, r.level)
	}
	return out
}

func TestMigrateData_V1(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]any
		want map[string]any
	}{
		{
			name: "nested device list",
			in: map[string]any{
				"deviceid":         map[string]any{"deviceid": []any{"bot1", "bot2"}},
				"show_color_rooms": true,
				"live_map":         false,
			},
			want: map[string]any{
				"verify_ssl": true,
				"devices":    []string{"bot1", "bot2"},
			},
		},
		{
			name: "empty selection",
			in: map[string]any{
				"deviceid":         map[string]any{},
				"show_color_rooms": true,
				"live_map":         false,
			},
			want: map[string]any{
				"verify_ssl": true,
				"devices":    []string{},
			},
		},
		{
			name: "legacy flags absent",
			in: map[string]any{
				"deviceid": map[string]any{"deviceid": []any{"bot1"}},
			},
			want: map[string]any{
				"verify_ssl": true,
				"devices":    []string{"bot1"},
			},
		},
		{
			name: "deviceid absent",
			in:   map[string]any{"live_map": true},
			want: map[string]any{
				"verify_ssl": true,
				"devices":    []string{},
			},
		},
		{
			name: "account fields and unknown keys kept",
			in: map[string]any{
				"username":         "user@example.com",
				"password":         "secret",
				"country":          "gb",
				"continent":        "eu",
				"deviceid":         map[string]any{"deviceid": []string{"bot1"}},
				"show_color_rooms": false,
				"live_map":         true,
				"polling":          30,
			},
			want: map[string]any{
				"username":   "user@example.com",
				"password":   "secret",
				"country":    "gb",
				"continent":  "eu",
				"verify_ssl": true,
				"devices":    []string{"bot1"},
				"polling":    30,
			},
		},
		{
			name: "empty account fields kept",
			in: map[string]any{
				"username":  "",
				"password":  "",
				"country":   "gb",
				"continent": "",
				"deviceid":  map[string]any{"deviceid": []any{"bot1"}},
			},
			want: map[string]any{
				"username":   "",
				"password":   "",
				"country":    "gb",
				"continent":  "",
				"verify_ssl": true,
				"devices":    []string{"bot1"},
			},
		},
		{
			name: "values and key case copied verbatim",
			in: map[string]any{
				"username": 12345,
				"Username": "other",
				"DeviceID": "kept",
				"deviceid": map[string]any{"deviceid": []any{"bot1"}},
			},
			want: map[string]any{
				"username":   12345,
				"Username":   "other",
				"DeviceID":   "kept",
				"verify_ssl": true,
				"devices":    []string{"bot1"},
			},
		},
		{
			name: "null selection",
			in:   map[string]any{"deviceid": nil},
			want: map[string]any{
				"verify_ssl": true,
				"devices":    []string{},
			},
		},
		{
			name: "verify_ssl forced on",
			in: map[string]any{
				"verify_ssl": false,
				"deviceid":   map[string]any{},
			},
			want: map[string]any{
				"verify_ssl": true,
				"devices":    []string{},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, got, err := MigrateData(nil, 1, tt.in)
			if err != nil {
				t.Fatalf("MigrateData() error = %v", err)
			}
			if version != 2 {
				t.Errorf("version = %d, want 2", version)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("data = %#v, want %#v", got, tt.want)
			}
			for _, key := range []string{"deviceid", "show_color_rooms", "live_map"} {
				if _, ok := got[key]; ok {
					t.Errorf("key %q still present", key)
				}
			}
		})
	}
}

func TestMigrateData_V1DoesNotModifyInput(t *testing.T) {
	in := map[string]any{
		"deviceid": map[string]any{"deviceid": []any{"bot1"}},
		"live_map": true,
	}
	if _, _, err := MigrateData(nil, 1, in); err != nil {
		t.Fatalf("MigrateData() error = %v", err)
	}
	if _, ok := in["deviceid"]; !ok {
		t.Error("input map was modified")
	}
}

func TestMigrateData_Idempotent(t *testing.T) {
	in := map[string]any{
		"username":   "user@example.com",
		"verify_ssl": false,
		"devices":    []any{"bot1"},
	}
	snapshot := map[string]any{
		"username":   "user@example.com",
		"verify_ssl": false,
		"devices":    []any{"bot1"},
	}

	log := &recordingLogger{}
	version, got, err := MigrateData(log, 2, in)
	if err != nil {
		t.Fatalf("MigrateData() error = %v", err)
	}
	if version != 2 {
		t.Errorf("version = %d, want 2", version)
	}
	if !reflect.DeepEqual(got, snapshot) {
		t.Errorf("data = %#v, want unchanged %#v", got, snapshot)
	}
	if levels := log.levels(); !reflect.DeepEqual(levels, []string{"debug", "info"}) {
		t.Errorf("log levels = %v, want [debug info]", levels)
	}
}

func TestMigrateData_ChainedTwice(t *testing.T) {
	in := map[string]any{"deviceid": map[string]any{"deviceid": []any{"bot1"}}}

	v, once, err := MigrateData(nil, 1, in)
	if err != nil {
		t.Fatalf("first MigrateData() error = %v", err)
	}
	v2, twice, err := MigrateData(nil, v, once)
	if err != nil {
		t.Fatalf("second MigrateData() error = %v", err)
	}
	if v2 != 2 || !reflect.DeepEqual(once, twice) {
		t.Errorf("second migration changed data: %#v -> %#v", once, twice)
	}
}

func TestMigrateData_LogRecords(t *testing.T) {
	log := &recordingLogger{}
	if _, _, err := MigrateData(log, 1, map[string]any{}); err != nil {
		t.Fatalf("MigrateData() error = %v", err)
	}

	if len(log.records) != 2 {
		t.Fatalf("got %d records, want 2", len(log.records))
	}
	first, last := log.records[0], log.records[1]
	if first.level != "debug" || fmt.Sprint(first.args) != "[from_version 1]" {
		t.Errorf("first record = %+v", first)
	}
	if last.level != "info" || last.msg != "config entry migration successful" || fmt.Sprint(last.args) != "[version 2]" {
		t.Errorf("last record = %+v", last)
	}
}

func TestMigrateData_Errors(t *testing.T) {
	tests := []struct {
		name    string
		version int
		data    map[string]any
		wantErr error
	}{
		{
			name:    "future version",
			version: 3,
			data:    map[string]any{"devices": []any{}},
			wantErr: ErrUnsupportedVersion,
		},
		{
			name:    "deviceid not a mapping",
			version: 1,
			data:    map[string]any{"deviceid": "bot1"},
			wantErr: ErrInvalidData,
		},
		{
			name:    "nested deviceid not a list",
			version: 1,
			data:    map[string]any{"deviceid": map[string]any{"deviceid": map[string]any{"a": 1}}},
			wantErr: ErrInvalidData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, data, err := MigrateData(nil, tt.version, tt.data)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("MigrateData() error = %v, want %v", err, tt.wantErr)
			}
			if version != tt.version {
				t.Errorf("version = %d, want %d unchanged", version, tt.version)
			}
			if !reflect.DeepEqual(data, tt.data) {
				t.Errorf("data changed on error: %#v", data)
			}
		})
	}
}

func TestMigrateData_BelowOnePassesThrough(t *testing.T) {
	in := map[string]any{"deviceid": map[string]any{}}
	log := &recordingLogger{}

	version, got, err := MigrateData(log, 0, in)
	if err != nil {
		t.Fatalf("MigrateData() error = %v", err)
	}
	if version != 0 || !reflect.DeepEqual(got, in) {
		t.Errorf("MigrateData() = %d, %#v; want pass-through", version, got)
	}
	if levels := log.levels(); !reflect.DeepEqual(levels, []string{"debug", "warn", "info"}) {
		t.Errorf("log levels = %v, want [debug warn info]", levels)
	}
}

func TestUpgradeV1(t *testing.T) {
	selected := []string{"bot1"}
	in := map[string]any{
		"username": "u",
		"deviceid": map[string]any{"deviceid": selected},
		"live_map": true,
	}

	got, err := UpgradeV1(in)
	if err != nil {
		t.Fatalf("UpgradeV1() error = %v", err)
	}
	if got["verify_ssl"] != true {
		t.Errorf("verify_ssl = %v, want true", got["verify_ssl"])
	}
	if got["username"] != "u" {
		t.Errorf("username = %v, want u", got["username"])
	}
	devices, ok := got["devices"].([]string)
	if !ok || !reflect.DeepEqual(devices, []string{"bot1"}) {
		t.Fatalf("devices = %#v", got["devices"])
	}

	selected[0] = "changed"
	if devices[0] != "bot1" {
		t.Error("devices shares backing array with input")
	}
	if _, ok := in["deviceid"]; !ok || len(in) != 3 {
		t.Errorf("input modified: %#v", in)
	}
}

func TestUpgradeV1_NilData(t *testing.T) {
	got, err := UpgradeV1(nil)
	if err != nil {
		t.Fatalf("UpgradeV1(nil) error = %v", err)
	}
	want := map[string]any{"verify_ssl": true, "devices": []string{}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("UpgradeV1(nil) = %#v, want %#v", got, want)
	}
}

func TestDataV2_ToMapKeepsEmptyAccountFields(t *testing.T) {
	got := DataV2{Username: "u", VerifySSL: true}.ToMap()
	want := map[string]any{
		"username":   "u",
		"password":   "",
		"country":    "",
		"continent":  "",
		"verify_ssl": true,
		"devices":    []string{},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ToMap() = %#v, want %#v", got, want)
	}
}

func TestDecodeV2(t *testing.T) {
	got, err := DecodeV2(map[string]any{
		"username":   "u",
		"verify_ssl": "true",
		"devices":    []any{"bot1"},
		"extra":      1,
	})
	if err != nil {
		t.Fatalf("DecodeV2() error = %v", err)
	}
	if got.Username != "u" || !got.VerifySSL || len(got.Devices) != 1 {
		t.Errorf("DecodeV2() = %+v", got)
	}
	if got.Extra["extra"] != 1 {
		t.Errorf("Extra = %v", got.Extra)
	}

	empty, err := DecodeV2(map[string]any{})
	if err != nil {
		t.Fatalf("DecodeV2(empty) error = %v", err)
	}
	if empty.Devices == nil {
		t.Error("Devices is nil, want empty slice")
	}
}
