// Package radio abstracts the sensor-mesh coordinator. The gateway
// core drives hardware exclusively through Driver and receives mesh
// events through Sink, so the control plane is testable without a
// coordinator attached.
package radio

import (
	"context"

	"github.com/dicomiot/dhome-core/internal/device"
)

// Driver issues commands to the mesh coordinator.
type Driver interface {
	// PermitJoin opens the network for new devices for the given
	// number of seconds; zero closes it.
	PermitJoin(ctx context.Context, seconds int) error

	// RemoveDevice evicts a node from the mesh.
	RemoveDevice(ctx context.Context, ieee string) error

	// ArmZone pushes an armed/disarmed state to one security sensor.
	ArmZone(ctx context.Context, ieee string, zoneStatus int) error

	// SetWarningEnabled switches the coordinator's warning mode on or
	// off; it gates whether zone alarms propagate.
	SetWarningEnabled(ctx context.Context, enabled bool) error

	// SetInHomeMode selects the coordinator's at-home profile.
	SetInHomeMode(ctx context.Context) error

	// SoundSiren drives a siren for duration seconds at the given
	// volume level.
	SoundSiren(ctx context.Context, ieee string, duration, level int) error
}

// Sink receives events from the mesh. The gateway orchestrator
// implements it; drivers call it from their receive loop.
type Sink interface {
	DeviceJoined(ctx context.Context, join device.JoinInfo)
	AttributeReported(ctx context.Context, report device.Report)
	DeviceLeft(ctx context.Context, ieee string)
}

// NopDriver discards all commands. It stands in when the gateway runs
// without a coordinator, and in tests.
type NopDriver struct{}

var _ Driver = NopDriver{}

func (NopDriver) PermitJoin(context.Context, int) error              { return nil }
func (NopDriver) RemoveDevice(context.Context, string) error         { return nil }
func (NopDriver) ArmZone(context.Context, string, int) error         { return nil }
func (NopDriver) SetWarningEnabled(context.Context, bool) error      { return nil }
func (NopDriver) SetInHomeMode(context.Context) error                { return nil }
func (NopDriver) SoundSiren(context.Context, string, int, int) error { return nil }
