// Package gateway wires the mesh to the control plane. The
// orchestrator is the radio's sink: every join, report and departure
// flows through it into the store, the alarm engine and the
// notification center, and only committed state reaches the buses.
package gateway

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dicomiot/dhome-core/internal/alarm"
	"github.com/dicomiot/dhome-core/internal/device"
	"github.com/dicomiot/dhome-core/internal/event"
	"github.com/dicomiot/dhome-core/internal/infrastructure/influxdb"
	"github.com/dicomiot/dhome-core/internal/notification"
	"github.com/dicomiot/dhome-core/internal/radio"
	"github.com/dicomiot/dhome-core/internal/room"
	"github.com/dicomiot/dhome-core/internal/user"
)

var _ radio.Sink = (*Orchestrator)(nil)

// RuleRunner executes one rule end to end.
type RuleRunner interface {
	RunRule(ctx context.Context, ruleID string) error
}

// Orchestrator implements radio.Sink.
type Orchestrator struct {
	store     *device.Store
	engine    *alarm.Engine
	rules     alarm.Repository
	runner    RuleRunner
	center    *notification.Center
	rooms     room.Repository
	users     user.Repository
	events    *event.Bus
	telemetry *influxdb.Client
	log       *slog.Logger
}

// New creates the orchestrator. telemetry may be nil when influx is
// disabled; runner may be set later with SetRunner to break the
// startup ordering knot with the bus layer.
func New(store *device.Store, engine *alarm.Engine, rules alarm.Repository,
	center *notification.Center, rooms room.Repository, users user.Repository,
	events *event.Bus, telemetry *influxdb.Client, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:     store,
		engine:    engine,
		rules:     rules,
		center:    center,
		rooms:     rooms,
		users:     users,
		events:    events,
		telemetry: telemetry,
		log:       logger,
	}
}

// SetRunner attaches the rule runner once the bus layer exists.
func (o *Orchestrator) SetRunner(runner RuleRunner) {
	o.runner = runner
}

// DeviceJoined commits a join interview, enrolls any security
// channels into the alarm modes and announces the device.
func (o *Orchestrator) DeviceJoined(ctx context.Context, join device.JoinInfo) {
	view, bindings, err := o.store.UpsertDevice(ctx, join)
	if err != nil {
		if errors.Is(err, device.ErrUnknownModel) {
			o.log.Warn("ignoring unknown device model",
				"ieee", join.Info.IEEE, "error", err)
			return
		}
		o.log.Error("committing device join", "ieee", join.Info.IEEE, "error", err)
		return
	}

	for _, b := range bindings {
		if err := o.engine.Bind(ctx, b); err != nil {
			o.log.Error("enrolling security channel",
				"channel", b.ChannelID, "error", err)
		}
	}

	secure, err := o.rules.ListSecure(ctx)
	if err != nil {
		o.log.Error("listing alarm rules after join", "error", err)
	}
	o.events.Publish(ctx, event.DeviceAdded{View: view, SecureRules: secure})

	if o.telemetry != nil {
		o.telemetry.WriteLinkQuality(view.ID, view.Signal, view.LowBattery)
	}
	o.log.Info("device joined", "device", view.ID, "ieee", view.IEEE,
		"model", view.Model, "channels", len(view.Channels))
}

// AttributeReported commits one mesh report and drives everything
// that hangs off a status change: bus publication, door shadowing,
// alarm and channel notifications, remote-control rules, telemetry.
func (o *Orchestrator) AttributeReported(ctx context.Context, rep device.Report) {
	result, err := o.store.IngestAttributeReport(ctx, rep)
	if err != nil {
		if errors.Is(err, device.ErrChannelNotFound) {
			o.log.Debug("report for unknown channel",
				"ieee", rep.IEEE, "endpoint", rep.Endpoint)
			return
		}
		o.log.Error("committing attribute report", "ieee", rep.IEEE, "error", err)
		return
	}
	if !result.Changed {
		return
	}

	if !o.secureClearAllowed(ctx, result) {
		return
	}

	o.events.Publish(ctx, event.ChannelUpdated{Update: result.Update})
	o.shadowDoor(result)
	o.notify(ctx, result)
	o.runSecureCommand(ctx, result)
	o.writeTelemetry(result)
}

// DeviceLeft notes a departure; removal is always user-driven, so a
// node leaving on its own only gets logged.
func (o *Orchestrator) DeviceLeft(ctx context.Context, ieee string) {
	_ = ctx
	o.log.Warn("device left the mesh", "ieee", ieee)
}

// secureClearAllowed holds back a zone channel's clearing report
// while other armed zones of the engaged alarm rule are still
// tripped. The stored status is already committed; only the fan-out
// waits, so the rule keeps its armed posture until the last zone
// clears.
func (o *Orchestrator) secureClearAllowed(ctx context.Context, result *device.IngestResult) bool {
	if !result.Alarm || tripped(result) {
		return true
	}
	blocking, ok, err := o.engine.CheckSecureTransition(ctx, result.ChannelID, result.Update.Status)
	if err != nil {
		o.log.Error("checking secure transition", "channel", result.ChannelID, "error", err)
		return true
	}
	if !ok {
		o.log.Info("zone clear held back", "channel", result.ChannelID,
			"blocking", len(blocking))
	}
	return ok
}

// shadowDoor keeps the open-door shadow current for the reminder
// checker.
func (o *Orchestrator) shadowDoor(result *device.IngestResult) {
	if result.ChannelType != device.TypeDoor {
		return
	}
	open, _ := result.Update.Status.Get("closeopen")
	o.engine.ObserveDoor(result.ChannelID, result.ChannelName, open == 1,
		result.Update.Updated, result.RoomID)
}

// notify fans the change out as notifications: an alarm entry when an
// armed zone trips while a mode is engaged, otherwise a plain channel
// entry when the channel has notifications enabled.
func (o *Orchestrator) notify(ctx context.Context, result *device.IngestResult) {
	roomName, err := o.rooms.NameByID(ctx, result.RoomID)
	if err != nil {
		o.log.Warn("resolving room name", "room", result.RoomID, "error", err)
	}
	body := notification.ChannelBody{
		ChannelID: result.ChannelID,
		Type:      result.ChannelType,
		Status:    result.Update.Status,
		RoomName:  roomName,
	}

	if o.isIntrusion(ctx, result) {
		o.emitAll(ctx, result.ChannelName, body, true)
		return
	}
	if result.Notification == 1 {
		o.emitAll(ctx, result.ChannelName, body, false)
	}
}

// isIntrusion reports whether this change must raise an alarm: the
// report tripped an armed zone while an alarm mode is engaged.
func (o *Orchestrator) isIntrusion(ctx context.Context, result *device.IngestResult) bool {
	if !result.Alarm || result.ZoneStatus != 1 || !tripped(result) {
		return false
	}
	active, err := o.engine.Active(ctx)
	if err != nil {
		o.log.Error("checking alarm mode", "error", err)
		return false
	}
	return active
}

// tripped reports whether the alarm-carrying status field is set.
func tripped(result *device.IngestResult) bool {
	var field string
	switch result.ChannelType {
	case device.TypeDoor:
		field = "closeopen"
	case device.TypePIR, device.TypePIRPet:
		field = "present"
	case device.TypeSmoke:
		field = "smoke"
	case device.TypeGeneric, device.TypeWaterleak:
		field = "onoff"
	default:
		return false
	}
	v, ok := result.Update.Status.Get(field)
	return ok && v == 1
}

func (o *Orchestrator) emitAll(ctx context.Context, title string, body notification.ChannelBody, intrusion bool) {
	users, err := o.users.List(ctx)
	if err != nil {
		o.log.Error("listing users for notification", "error", err)
		return
	}
	for i := range users {
		var n *notification.Notification
		if intrusion {
			n, err = o.center.EmitAlarm(ctx, users[i].ID, title, body)
		} else {
			n, err = o.center.EmitChannel(ctx, users[i].ID, title, body)
		}
		if err != nil {
			o.log.Error("recording notification", "user", users[i].ID, "error", err)
			continue
		}
		o.events.Publish(ctx, event.NotificationAdded{Notification: n})
	}
}

// runSecureCommand maps a remote-control or SOS-button press onto its
// system rule and runs it.
func (o *Orchestrator) runSecureCommand(ctx context.Context, result *device.IngestResult) {
	if o.runner == nil {
		return
	}
	var mode int
	switch result.ChannelType {
	case device.TypeRemote:
		m, err := o.engine.SecureCommand(ctx, result.ChannelID, result.Update.Status)
		if err != nil {
			o.log.Error("resolving remote command", "channel", result.ChannelID, "error", err)
			return
		}
		mode = m
	case device.TypeSOSButton:
		if v, ok := result.Update.Status.Get("sos"); ok && v == 1 {
			mode = alarm.TypeSOS
		}
	}
	if mode == 0 {
		return
	}

	rule, err := o.rules.SystemRule(ctx, mode)
	if err != nil {
		o.log.Error("resolving system rule", "mode", mode, "error", err)
		return
	}
	if err := o.runner.RunRule(ctx, rule.ID); err != nil {
		o.log.Error("running system rule", "rule", rule.ID, "error", err)
	}
}

func (o *Orchestrator) writeTelemetry(result *device.IngestResult) {
	if o.telemetry == nil {
		return
	}
	for _, f := range result.Update.Status {
		o.telemetry.WriteChannelStatus(result.ChannelID, result.ChannelType,
			f.Type, float64(f.Value))
	}
}
