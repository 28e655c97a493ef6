package device

import (
	"reflect"
	"testing"
)

func TestEncodeStatus(t *testing.T) {
	tests := []struct {
		name        string
		channelType int
		raw         map[string]int
		previous    StatusVector
		want        StatusVector
	}{
		{
			name:        "door open from zone report",
			channelType: TypeDoor,
			raw:         map[string]int{"alarm1": 1, "tamper": 0},
			want:        StatusVector{{Type: "closeopen", Value: 1}},
		},
		{
			name:        "door closed",
			channelType: TypeDoor,
			raw:         map[string]int{"alarm1": 0},
			want:        StatusVector{{Type: "closeopen", Value: 0}},
		},
		{
			name:        "pir motion",
			channelType: TypePIR,
			raw:         map[string]int{"alarm1": 1},
			want:        StatusVector{{Type: "present", Value: 1}},
		},
		{
			name:        "smoke detector triggered",
			channelType: TypeSmoke,
			raw:         map[string]int{"alarm1": 1, "low_battery": 1},
			want:        StatusVector{{Type: "smoke", Value: 1}},
		},
		{
			name:        "water leak maps to onoff",
			channelType: TypeWaterleak,
			raw:         map[string]int{"alarm1": 1},
			want:        StatusVector{{Type: "onoff", Value: 1}},
		},
		{
			name:        "generic switch",
			channelType: TypeGeneric,
			raw:         map[string]int{"onoff": 1},
			want:        StatusVector{{Type: "onoff", Value: 1}},
		},
		{
			name:        "remote sos press",
			channelType: TypeRemote,
			raw:         map[string]int{"alarm1": 1},
			want: StatusVector{
				{Type: "sos", Value: 1},
				{Type: "athome", Value: 0},
				{Type: "armed", Value: 0},
				{Type: "disarmed", Value: 0},
			},
		},
		{
			name:        "sos button",
			channelType: TypeSOSButton,
			raw:         map[string]int{"alarm1": 1},
			want:        StatusVector{{Type: "sos", Value: 1}},
		},
		{
			name:        "siren defaults when report omits fields",
			channelType: TypeSiren,
			raw:         map[string]int{"tamper": 1},
			want: StatusVector{
				{Type: "volume", Value: defaultSirenVolume},
				{Type: "duration", Value: defaultSirenDuration},
				{Type: "tamper", Value: 1},
			},
		},
		{
			name:        "pet pir defaults to present",
			channelType: TypePIRPet,
			raw:         map[string]int{},
			want: StatusVector{
				{Type: "present", Value: 1},
				{Type: "tamper", Value: 0},
			},
		},
		{
			name:        "environment defaults on first report",
			channelType: TypeEnvironment,
			raw:         map[string]int{"temperature": 31},
			want: StatusVector{
				{Type: "temperature", Value: 31},
				{Type: "humidity", Value: defaultHumidity},
			},
		},
		{
			name:        "environment keeps stored temperature on humidity-only report",
			channelType: TypeEnvironment,
			raw:         map[string]int{"humidity": 72},
			previous: StatusVector{
				{Type: "temperature", Value: 31},
				{Type: "humidity", Value: 50},
			},
			want: StatusVector{
				{Type: "temperature", Value: 31},
				{Type: "humidity", Value: 72},
			},
		},
		{
			name:        "unknown type yields no status",
			channelType: 99,
			raw:         map[string]int{"onoff": 1},
			want:        nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EncodeStatus(tt.channelType, tt.raw, tt.previous)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("EncodeStatus() = %v, want %v", got, tt.want)
			}
		})
	}
}

// Re-encoding a vector through ToRaw must reproduce it unchanged.
func TestEncodeStatusIdempotent(t *testing.T) {
	types := []int{
		TypeGeneric, TypeDoor, TypePIR, TypeSmoke, TypeWaterleak,
		TypeRemote, TypeSOSButton, TypeSiren, TypePIRPet, TypeEnvironment,
	}
	for _, channelType := range types {
		first := EncodeStatus(channelType, map[string]int{"alarm1": 1, "temperature": 19}, nil)
		second := EncodeStatus(channelType, first.ToRaw(), first)
		if !reflect.DeepEqual(first, second) {
			t.Errorf("type %d: re-encode changed vector: %v -> %v", channelType, first, second)
		}
	}
}

func TestDecodeZoneStatus(t *testing.T) {
	z := DecodeZoneStatus(0b0000_0000_0000_0101)
	if z.Alarm1 != 1 || z.Tamper != 1 || z.Alarm2 != 0 {
		t.Errorf("unexpected decode: %+v", z)
	}

	z = DecodeZoneStatus(1 << 12)
	if z.AtHome != 1 {
		t.Errorf("athome bit not decoded: %+v", z)
	}

	if DecodeZoneStatus(0) != (ZoneStatus{}) {
		t.Error("zero word should decode to all-clear")
	}
}

func TestSignal(t *testing.T) {
	tests := []struct {
		lqi  int
		want int
	}{
		{0, 0},
		{255, 100},
		{128, 50},
		{64, 25},
	}
	for _, tt := range tests {
		d := Device{LQI: tt.lqi}
		if got := d.Signal(); got != tt.want {
			t.Errorf("Signal(lqi=%d) = %d, want %d", tt.lqi, got, tt.want)
		}
	}
}
