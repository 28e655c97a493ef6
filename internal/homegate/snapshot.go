package homegate

import (
	"context"
	"fmt"

	"github.com/dicomiot/dhome-core/internal/alarm"
	"github.com/dicomiot/dhome-core/internal/camera"
	"github.com/dicomiot/dhome-core/internal/device"
	"github.com/dicomiot/dhome-core/internal/room"
)

// Snapshot is the full gateway state published to the cloud on
// reconnect, so apps resynchronise from one message.
type Snapshot struct {
	ID       string              `json:"id"`
	Devices  []device.DeviceView `json:"devices"`
	Rules    []alarm.RuleView    `json:"rules"`
	Homegate *Homegate           `json:"homegate"`
	Rooms    []room.Room         `json:"rooms"`
	Cameras  []camera.Camera     `json:"camera"`
	Groups   any                 `json:"groups"`
}

// Snapshotter assembles full-state snapshots from the domain stores.
type Snapshotter struct {
	homegate Repository
	devices  *device.Store
	rules    alarm.Repository
	rooms    room.Repository
	cameras  camera.Repository
}

// NewSnapshotter wires the snapshot sources.
func NewSnapshotter(hg Repository, devices *device.Store, rules alarm.Repository, rooms room.Repository, cameras camera.Repository) *Snapshotter {
	return &Snapshotter{
		homegate: hg,
		devices:  devices,
		rules:    rules,
		rooms:    rooms,
		cameras:  cameras,
	}
}

// Build assembles the current full state.
func (s *Snapshotter) Build(ctx context.Context) (*Snapshot, error) {
	hg, err := s.homegate.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading homegate: %w", err)
	}
	devices, err := s.devices.ListDeviceChannels(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading devices: %w", err)
	}
	rules, err := s.rules.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading rules: %w", err)
	}
	rooms, err := s.rooms.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading rooms: %w", err)
	}
	cameras, err := s.cameras.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading cameras: %w", err)
	}

	return &Snapshot{
		ID:       hg.ID,
		Devices:  devices,
		Rules:    rules,
		Homegate: hg,
		Rooms:    rooms,
		Cameras:  cameras,
	}, nil
}
