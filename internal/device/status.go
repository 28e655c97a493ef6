package device

// Default status values used when a report omits a field.
const (
	defaultSirenVolume   = 1
	defaultSirenDuration = 180
	defaultTemperature   = 25
	defaultHumidity      = 50
)

// EncodeStatus derives the typed status vector for a channel from a
// raw report. The output shape is fixed per channel type; fields the
// report does not carry fall back to their defaults, except for the
// environment type where previous carries the last stored vector so a
// temperature-only report does not erase humidity (and vice versa).
//
// The function is pure and idempotent: feeding a returned vector back
// in via StatusVector.ToRaw yields the same vector.
func EncodeStatus(channelType int, raw map[string]int, previous StatusVector) StatusVector {
	switch channelType {
	case TypeSiren:
		return StatusVector{
			{Type: "volume", Value: pick(raw, defaultSirenVolume, "volume")},
			{Type: "duration", Value: pick(raw, defaultSirenDuration, "duration")},
			{Type: "tamper", Value: pick(raw, 0, "tamper")},
		}
	case TypeGeneric, TypeWaterleak:
		return StatusVector{
			{Type: "onoff", Value: pick(raw, 0, "onoff", "alarm1")},
		}
	case TypeDoor:
		return StatusVector{
			{Type: "closeopen", Value: pick(raw, 0, "closeopen", "alarm1")},
		}
	case TypePIR:
		return StatusVector{
			{Type: "present", Value: pick(raw, 0, "present", "alarm1")},
		}
	case TypeSmoke:
		return StatusVector{
			{Type: "smoke", Value: pick(raw, 0, "smoke", "alarm1")},
		}
	case TypeRemote:
		return StatusVector{
			{Type: "sos", Value: pick(raw, 0, "sos", "alarm1")},
			{Type: "athome", Value: pick(raw, 0, "athome")},
			{Type: "armed", Value: pick(raw, 0, "armed")},
			{Type: "disarmed", Value: pick(raw, 0, "disarmed")},
		}
	case TypeSOSButton:
		return StatusVector{
			{Type: "sos", Value: pick(raw, 0, "sos", "alarm1")},
		}
	case TypeEnvironment:
		return encodeEnvironment(raw, previous)
	case TypePIRPet:
		return StatusVector{
			{Type: "present", Value: pick(raw, 1, "present", "alarm1")},
			{Type: "tamper", Value: pick(raw, 0, "tamper")},
		}
	}
	return nil
}

// encodeEnvironment merges a partial temperature/humidity report with
// the previously stored vector.
func encodeEnvironment(raw map[string]int, previous StatusVector) StatusVector {
	temperature := defaultTemperature
	humidity := defaultHumidity
	if v, ok := previous.Get("temperature"); ok {
		temperature = v
	}
	if v, ok := previous.Get("humidity"); ok {
		humidity = v
	}
	if v, ok := raw["temperature"]; ok {
		temperature = v
	}
	if v, ok := raw["humidity"]; ok {
		humidity = v
	}
	return StatusVector{
		{Type: "temperature", Value: temperature},
		{Type: "humidity", Value: humidity},
	}
}

// pick returns the first key present in raw, else the fallback.
func pick(raw map[string]int, fallback int, keys ...string) int {
	for _, key := range keys {
		if v, ok := raw[key]; ok {
			return v
		}
	}
	return fallback
}
