package bus

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/dicomiot/dhome-core/internal/event"
	"github.com/dicomiot/dhome-core/internal/homegate"
	"github.com/dicomiot/dhome-core/internal/infrastructure/mqtt"
)

// RuleRunner executes a rule end to end, hardware side effects
// included. *LocalSync implements it.
type RuleRunner interface {
	RunRule(ctx context.Context, ruleID string) error
}

// CloudSync mirrors the gateway onto the remote broker. The cloud
// connection is authenticated at the transport (gateway id and token
// as broker credentials), so inbound requests are trusted without a
// per-message token check.
type CloudSync struct {
	conn  Conn
	cfg   Config
	deps  Deps
	rules RuleRunner
	log   *slog.Logger
}

// NewCloudSync creates the cloud-bus sync layer.
func NewCloudSync(conn Conn, cfg Config, deps Deps, rules RuleRunner) *CloudSync {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &CloudSync{conn: conn, cfg: cfg, deps: deps, rules: rules, log: log}
}

// Will returns the retained offline testament for the cloud broker.
func (s *CloudSync) Will() (*mqtt.Will, error) {
	payload, err := Marshal("update", "", "state", map[string]int{"state": 0})
	if err != nil {
		return nil, err
	}
	return &mqtt.Will{
		Topic:    CloudTopic(s.cfg.RootTopic, s.cfg.GatewayID, "response", SubjectInfo),
		Payload:  payload,
		QoS:      s.cfg.QoS,
		Retained: true,
	}, nil
}

// Start subscribes to the cloud request tree, announces the gateway,
// refreshes the recorded LAN address and pushes a full state snapshot
// so the cloud side converges after any gap.
func (s *CloudSync) Start(ctx context.Context) error {
	prefix := s.cfg.RootTopic + "/" + s.cfg.GatewayID
	if err := s.conn.Subscribe(prefix+"/request/#", s.cfg.QoS, s.handleMessage); err != nil {
		return err
	}
	if err := s.Resync(ctx); err != nil {
		return err
	}
	s.deps.Events.Subscribe(s.handleEvent)
	return nil
}

// Resync pushes the online state, the LAN address, the full snapshot
// and the user roster. Called on start and again on every reconnect.
func (s *CloudSync) Resync(ctx context.Context) error {
	if err := s.publishState(1, true); err != nil {
		return err
	}
	s.refreshLocalIP(ctx)
	if err := s.publishSnapshot(ctx); err != nil {
		return err
	}
	return s.publishRoster(ctx)
}

func (s *CloudSync) publishState(state int, retained bool) error {
	payload, err := Marshal("update", "", "state", map[string]int{"state": state})
	if err != nil {
		return err
	}
	return s.conn.Publish(
		CloudTopic(s.cfg.RootTopic, s.cfg.GatewayID, "response", SubjectInfo),
		payload, s.cfg.QoS, retained)
}

// refreshLocalIP records the current LAN address so the apps can
// switch to the local broker when they are on the same network.
func (s *CloudSync) refreshLocalIP(ctx context.Context) {
	if s.deps.Net == nil {
		return
	}
	ip, err := s.deps.Net.LocalIP(ctx)
	if err != nil {
		s.log.Warn("resolving local address", "error", err)
		return
	}
	if err := s.deps.Homegate.UpdateField(ctx, "ip_local", ip); err != nil {
		s.log.Warn("recording local address", "error", err)
	}
}

func (s *CloudSync) publishSnapshot(ctx context.Context) error {
	snap, err := s.deps.Snapshot.Build(ctx)
	if err != nil {
		return err
	}
	return s.publish(SubjectHomegate, "update", "all", homegateReload{snap})
}

// homegateReload wraps the snapshot under the action name the cloud
// side watches for.
type homegateReload struct {
	Reload any `json:"reload"`
}

// publishRoster tells the cloud which user ids belong to this
// gateway so it can route push notifications. Tokens never leave the
// gateway.
func (s *CloudSync) publishRoster(ctx context.Context) error {
	users, err := s.deps.Users.List(ctx)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return s.publish(SubjectUser, "join", "user_id", ids)
}

func (s *CloudSync) handleMessage(topic string, payload []byte) error {
	addr, ok := ParseCloudTopic(topic)
	if !ok || addr.Direction != "request" || addr.GatewayID != s.cfg.GatewayID {
		return nil
	}
	env, err := Unmarshal(payload)
	if err != nil {
		s.log.Warn("dropping malformed cloud request", "topic", topic, "error", err)
		return nil
	}

	ctx := context.Background()
	if err := s.dispatch(ctx, addr.Subject, env); err != nil {
		s.log.Error("handling cloud request", "subject", addr.Subject,
			"action", env.Action, "error", err)
	}
	return nil
}

func (s *CloudSync) dispatch(ctx context.Context, subject string, env *Envelope) error {
	switch subject {
	case SubjectDoorbell:
		return s.handleDoorbell(ctx)
	case SubjectRule:
		if env.Action == "run" {
			var req idRequest
			if err := json.Unmarshal(env.Value, &req); err != nil || req.ID == "" {
				return nil
			}
			return s.rules.RunRule(ctx, req.ID)
		}
	case SubjectHomegate:
		switch env.Action {
		case "get", "reload":
			return s.publishSnapshot(ctx)
		case "update":
			var req struct {
				Field string `json:"field"`
				Value any    `json:"value"`
			}
			if err := json.Unmarshal(env.Value, &req); err != nil || req.Field == "" {
				return nil
			}
			if err := s.deps.Homegate.UpdateField(ctx, req.Field, req.Value); err != nil {
				if err == homegate.ErrInvalidField {
					return nil
				}
				return err
			}
		}
	case SubjectUser:
		if env.Action == "get" {
			return s.publishRoster(ctx)
		}
	case SubjectConfig:
		if env.Type == "update" {
			var req struct {
				Version string `json:"version"`
			}
			if err := json.Unmarshal(env.Value, &req); err != nil || req.Version == "" {
				return nil
			}
			return s.deps.Net.UpdateSoftware(ctx, req.Version)
		}
	}
	return nil
}

// handleDoorbell records a doorbell press for every user and lets the
// local fan-out deliver it from the committed notifications.
func (s *CloudSync) handleDoorbell(ctx context.Context) error {
	users, err := s.deps.Users.List(ctx)
	if err != nil {
		return err
	}
	for i := range users {
		n, err := s.deps.Center.EmitDoorbell(ctx, users[i].ID)
		if err != nil {
			return err
		}
		s.deps.Events.Publish(ctx, event.NotificationAdded{Notification: n})
	}
	s.deps.Events.Publish(ctx, event.DoorbellRang{})
	return nil
}

func (s *CloudSync) publish(subject, action, typ string, value any) error {
	payload, err := Marshal(action, "", typ, value)
	if err != nil {
		return err
	}
	return s.conn.Publish(
		CloudTopic(s.cfg.RootTopic, s.cfg.GatewayID, "response", subject),
		payload, s.cfg.QoS, false)
}

// handleEvent mirrors committed core events onto the cloud broker so
// remote apps stay in sync over one connection.
func (s *CloudSync) handleEvent(ctx context.Context, e any) {
	var err error
	switch ev := e.(type) {
	case event.DeviceAdded:
		err = s.publish(SubjectDevice, "add", "add_new", ev.View)
	case event.ChannelUpdated:
		err = s.publish(SubjectChannel, "update", "status", ev.Update)
	case event.NotificationAdded:
		err = s.publish(SubjectNotification, "add", "channel", ev.Notification)
	case event.RuleExecuted:
		err = s.publish(SubjectRule, "run", ruleTypeName(ev.Rule.Type),
			map[string]string{"id": ev.Rule.ID})
	case event.DeviceRemoved:
		err = s.publish(SubjectDevice, "delete", "device",
			map[string]string{"id": ev.DeviceID})
	case event.ChannelRemoved:
		err = s.publish(SubjectChannel, "delete", "channel",
			map[string]any{"id": ev.ChannelID, "device_removed": ev.DeviceRemoved})
	}
	if err != nil {
		s.log.Error("mirroring event to cloud", "error", err)
	}
}
