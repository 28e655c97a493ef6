package device

// ZoneStatus is the decoded IAS zone flag word reported by security
// sensors on cluster 1280. Fields are 0/1.
type ZoneStatus struct {
	Alarm1        int `json:"alarm1"`
	Alarm2        int `json:"alarm2"`
	Tamper        int `json:"tamper"`
	LowBattery    int `json:"low_battery"`
	Supervision   int `json:"supervision"`
	Restore       int `json:"restore"`
	Trouble       int `json:"trouble"`
	ACFault       int `json:"ac_fault"`
	TestMode      int `json:"test_mode"`
	BatteryDefect int `json:"battery_defect"`
	Armed         int `json:"armed"`
	Disarmed      int `json:"disarmed"`
	AtHome        int `json:"athome"`
}

// DecodeZoneStatus expands the raw zone-status flag word into its
// named bits. Bits follow the report order on the wire: alarm1 is the
// least significant bit, athome bit 12.
func DecodeZoneStatus(raw uint16) ZoneStatus {
	bit := func(n uint) int {
		return int(raw>>n) & 1
	}
	return ZoneStatus{
		Alarm1:        bit(0),
		Alarm2:        bit(1),
		Tamper:        bit(2),
		LowBattery:    bit(3),
		Supervision:   bit(4),
		Restore:       bit(5),
		Trouble:       bit(6),
		ACFault:       bit(7),
		TestMode:      bit(8),
		BatteryDefect: bit(9),
		Armed:         bit(10),
		Disarmed:      bit(11),
		AtHome:        bit(12),
	}
}

// ToRaw returns the decoded flags as the raw key/value form consumed
// by EncodeStatus.
func (z ZoneStatus) ToRaw() map[string]int {
	return map[string]int{
		"alarm1":         z.Alarm1,
		"alarm2":         z.Alarm2,
		"tamper":         z.Tamper,
		"low_battery":    z.LowBattery,
		"supervision":    z.Supervision,
		"restore":        z.Restore,
		"trouble":        z.Trouble,
		"ac_fault":       z.ACFault,
		"test_mode":      z.TestMode,
		"battery_defect": z.BatteryDefect,
		"armed":          z.Armed,
		"disarmed":       z.Disarmed,
		"athome":         z.AtHome,
	}
}
