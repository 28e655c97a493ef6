package bus

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/dicomiot/dhome-core/internal/alarm"
	"github.com/dicomiot/dhome-core/internal/camera"
	"github.com/dicomiot/dhome-core/internal/device"
	"github.com/dicomiot/dhome-core/internal/event"
	"github.com/dicomiot/dhome-core/internal/homegate"
	"github.com/dicomiot/dhome-core/internal/infrastructure/mqtt"
	"github.com/dicomiot/dhome-core/internal/netconf"
	"github.com/dicomiot/dhome-core/internal/notification"
	"github.com/dicomiot/dhome-core/internal/radio"
	"github.com/dicomiot/dhome-core/internal/room"
	"github.com/dicomiot/dhome-core/internal/user"
)

// Conn is the MQTT surface the sync layers publish and subscribe
// through. *mqtt.Client implements it.
type Conn interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Config identifies this gateway on the buses.
type Config struct {
	RootTopic    string
	QoS          byte
	GatewayID    string
	GatewayToken string
	AppID        string
}

// Deps are the domain components the sync layers drive.
type Deps struct {
	Users    user.Repository
	Devices  *device.Store
	Rules    alarm.Repository
	Engine   *alarm.Engine
	Rooms    room.Repository
	Cameras  camera.Repository
	Homegate homegate.Repository
	Snapshot *homegate.Snapshotter
	Center   *notification.Center
	Radio    radio.Driver
	Net      *netconf.Runner
	Events   *event.Bus
	Logger   *slog.Logger
}

// LocalSync bridges the gateway core and the LAN broker. Every
// connected app holds a per-user token; outbound broadcasts are
// re-enveloped per recipient and inbound requests are authenticated
// by token match. Unauthenticated requests are dropped without reply.
type LocalSync struct {
	conn Conn
	cfg  Config
	deps Deps
	log  *slog.Logger
}

// NewLocalSync creates the local-bus sync layer.
func NewLocalSync(conn Conn, cfg Config, deps Deps) *LocalSync {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &LocalSync{conn: conn, cfg: cfg, deps: deps, log: log}
}

// Will returns the testament the broker publishes if this gateway
// drops: an offline state broadcast.
func (s *LocalSync) Will() (*mqtt.Will, error) {
	payload, err := Marshal("update", "", "state", map[string]int{"state": 0})
	if err != nil {
		return nil, err
	}
	return &mqtt.Will{
		Topic:   LocalTopic(s.cfg.RootTopic, "response", AudienceAll, SubjectInfo),
		Payload: payload,
		QoS:     s.cfg.QoS,
	}, nil
}

// Start subscribes to the request tree, announces the gateway online
// and attaches the event fan-out.
func (s *LocalSync) Start(ctx context.Context) error {
	if err := s.conn.Subscribe(s.cfg.RootTopic+"/request/#", s.cfg.QoS, s.handleMessage); err != nil {
		return err
	}
	if err := s.announceOnline(); err != nil {
		return err
	}
	s.deps.Events.Subscribe(s.handleEvent)
	return nil
}

func (s *LocalSync) announceOnline() error {
	payload, err := Marshal("update", "", "state", map[string]int{"state": 1})
	if err != nil {
		return err
	}
	return s.conn.Publish(
		LocalTopic(s.cfg.RootTopic, "response", AudienceAll, SubjectInfo),
		payload, s.cfg.QoS, false)
}

// handleMessage routes one inbound request.
func (s *LocalSync) handleMessage(topic string, payload []byte) error {
	addr, ok := ParseLocalTopic(topic)
	if !ok || addr.Direction != "request" {
		return nil
	}
	env, err := Unmarshal(payload)
	if err != nil {
		s.log.Warn("dropping malformed request", "topic", topic, "error", err)
		return nil
	}

	ctx := context.Background()

	// Login is the only request allowed without an access token.
	if addr.Subject == SubjectUser && env.Type == "login" {
		return s.handleLogin(ctx, addr.Audience, env)
	}

	sender, err := s.deps.Users.GetByToken(ctx, env.Token)
	if err != nil {
		// Unknown token: silent drop, an attacker learns nothing.
		if !errors.Is(err, user.ErrTokenUnknown) {
			s.log.Error("authenticating request", "error", err)
		}
		return nil
	}
	if err := s.deps.Users.TouchLastSeen(ctx, sender.ID); err != nil {
		s.log.Warn("recording user activity", "error", err)
	}

	if err := s.dispatch(ctx, addr, sender, env); err != nil {
		s.log.Error("handling request", "subject", addr.Subject,
			"action", env.Action, "error", err)
	}
	return nil
}

// loginRequest is the value of a login envelope.
type loginRequest struct {
	AppID string `json:"app_id"`
	Token string `json:"token"`
}

// handleLogin verifies the pairing credentials and mints a per-user
// access token. The requesting user id is the audience segment of the
// request topic.
func (s *LocalSync) handleLogin(ctx context.Context, userID string, env *Envelope) error {
	var req loginRequest
	if err := json.Unmarshal(env.Value, &req); err != nil || userID == "" || userID == AudienceAll {
		return s.replyError(userID, SubjectUser, CodeMissingParam)
	}
	if req.AppID != s.cfg.AppID || req.Token != s.cfg.GatewayToken {
		return s.replyError(userID, SubjectUser, CodeInvalidRequest)
	}

	token, err := user.GenerateToken()
	if err != nil {
		return err
	}
	u := &user.User{
		ID:             userID,
		Name:           "Admin",
		PermissionType: user.PermissionUnrestricted,
		AccessToken:    token,
	}
	if err := s.deps.Users.Upsert(ctx, u); err != nil {
		return err
	}

	return s.reply(userID, SubjectUser, "add", token, "login",
		map[string]string{"access_token": token})
}

func (s *LocalSync) dispatch(ctx context.Context, addr LocalAddress, sender *user.User, env *Envelope) error {
	switch addr.Subject {
	case SubjectDevice:
		return s.handleDevice(ctx, sender, env)
	case SubjectChannel:
		return s.handleChannel(ctx, sender, env)
	case SubjectRule:
		return s.handleRule(ctx, sender, env)
	case SubjectRoom:
		return s.handleRoom(ctx, sender, env)
	case SubjectCamera:
		return s.handleCamera(ctx, sender, env)
	case SubjectUser:
		return s.handleUser(ctx, sender, env)
	case SubjectNotification:
		return s.handleNotification(ctx, sender, env)
	case SubjectHomegate:
		return s.handleHomegate(ctx, sender, env)
	case SubjectConfig:
		return s.handleConfig(ctx, sender, env)
	}
	return s.replyError(sender.ID, addr.Subject, CodeInvalidRequest)
}

type idRequest struct {
	ID string `json:"id"`
}

func (s *LocalSync) handleDevice(ctx context.Context, sender *user.User, env *Envelope) error {
	switch env.Action {
	case "get":
		views, err := s.deps.Devices.ListDeviceChannels(ctx)
		if err != nil {
			return err
		}
		return s.reply(sender.ID, SubjectDevice, "get", sender.AccessToken, "all", views)
	case "update":
		var req struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		}
		if err := json.Unmarshal(env.Value, &req); err != nil || req.ID == "" {
			return s.replyError(sender.ID, SubjectDevice, CodeMissingParam)
		}
		if err := s.deps.Devices.UpdateDeviceName(ctx, req.ID, req.Name); err != nil {
			if errors.Is(err, device.ErrDeviceNotFound) {
				return s.replyError(sender.ID, SubjectDevice, CodeNotFound)
			}
			return err
		}
		return s.Broadcast(ctx, SubjectDevice, "update", "name", req, "")
	case "delete", "remove":
		var req idRequest
		if err := json.Unmarshal(env.Value, &req); err != nil || req.ID == "" {
			return s.replyError(sender.ID, SubjectDevice, CodeMissingParam)
		}
		ieee, err := s.deps.Devices.RemoveDevice(ctx, req.ID)
		if err != nil {
			if errors.Is(err, device.ErrDeviceNotFound) {
				return s.replyError(sender.ID, SubjectDevice, CodeNotFound)
			}
			return err
		}
		if err := s.deps.Radio.RemoveDevice(ctx, ieee); err != nil {
			s.log.Warn("evicting device from mesh", "ieee", ieee, "error", err)
		}
		s.deps.Events.Publish(ctx, event.DeviceRemoved{DeviceID: req.ID, IEEE: ieee})
		return nil
	case "permit_join":
		var req struct {
			Duration int `json:"duration"`
		}
		if err := json.Unmarshal(env.Value, &req); err != nil {
			return s.replyError(sender.ID, SubjectDevice, CodeMissingParam)
		}
		return s.deps.Radio.PermitJoin(ctx, req.Duration)
	}
	return s.replyError(sender.ID, SubjectDevice, CodeInvalidRequest)
}

func (s *LocalSync) handleChannel(ctx context.Context, sender *user.User, env *Envelope) error {
	switch env.Action {
	case "update":
		var req struct {
			ID string `json:"id"`
			device.ChannelInfoUpdate
		}
		if err := json.Unmarshal(env.Value, &req); err != nil || req.ID == "" {
			return s.replyError(sender.ID, SubjectChannel, CodeMissingParam)
		}
		if err := s.deps.Devices.UpdateChannelInfo(ctx, req.ID, req.ChannelInfoUpdate); err != nil {
			if errors.Is(err, device.ErrChannelNotFound) {
				return s.replyError(sender.ID, SubjectChannel, CodeNotFound)
			}
			return err
		}
		return s.Broadcast(ctx, SubjectChannel, "update", "info", req, req.ID)
	case "delete", "remove":
		var req idRequest
		if err := json.Unmarshal(env.Value, &req); err != nil || req.ID == "" {
			return s.replyError(sender.ID, SubjectChannel, CodeMissingParam)
		}
		ieee, deviceRemoved, err := s.deps.Devices.RemoveChannel(ctx, req.ID)
		if err != nil {
			if errors.Is(err, device.ErrChannelNotFound) {
				return s.replyError(sender.ID, SubjectChannel, CodeNotFound)
			}
			return err
		}
		if deviceRemoved {
			if err := s.deps.Radio.RemoveDevice(ctx, ieee); err != nil {
				s.log.Warn("evicting device from mesh", "ieee", ieee, "error", err)
			}
		}
		s.deps.Events.Publish(ctx, event.ChannelRemoved{
			ChannelID: req.ID, IEEE: ieee, DeviceRemoved: deviceRemoved,
		})
		return nil
	}
	return s.replyError(sender.ID, SubjectChannel, CodeInvalidRequest)
}

func (s *LocalSync) handleRule(ctx context.Context, sender *user.User, env *Envelope) error {
	switch env.Action {
	case "get":
		views, err := s.deps.Rules.List(ctx)
		if err != nil {
			return err
		}
		return s.reply(sender.ID, SubjectRule, "get", sender.AccessToken, "all", views)
	case "run":
		var req idRequest
		if err := json.Unmarshal(env.Value, &req); err != nil || req.ID == "" {
			return s.replyError(sender.ID, SubjectRule, CodeMissingParam)
		}
		return s.RunRule(ctx, req.ID)
	case "add":
		var view alarm.RuleView
		if err := json.Unmarshal(env.Value, &view); err != nil {
			return s.replyError(sender.ID, SubjectRule, CodeMissingParam)
		}
		view.UserID = sender.ID
		if err := s.deps.Rules.CreateScene(ctx, &view); err != nil {
			return err
		}
		return s.Broadcast(ctx, SubjectRule, "add", "rule", view, "")
	case "update":
		var view alarm.RuleView
		if err := json.Unmarshal(env.Value, &view); err != nil || view.ID == "" {
			return s.replyError(sender.ID, SubjectRule, CodeMissingParam)
		}
		if err := s.deps.Rules.UpdateScene(ctx, &view); err != nil {
			if errors.Is(err, alarm.ErrRuleNotFound) {
				return s.replyError(sender.ID, SubjectRule, CodeNotFound)
			}
			return err
		}
		return s.Broadcast(ctx, SubjectRule, "update", "rule", view, "")
	case "delete", "remove":
		var req idRequest
		if err := json.Unmarshal(env.Value, &req); err != nil || req.ID == "" {
			return s.replyError(sender.ID, SubjectRule, CodeMissingParam)
		}
		if err := s.deps.Rules.Delete(ctx, req.ID); err != nil {
			if errors.Is(err, alarm.ErrRuleNotFound) {
				return s.replyError(sender.ID, SubjectRule, CodeNotFound)
			}
			return err
		}
		return s.Broadcast(ctx, SubjectRule, "delete", "rule", req, "")
	}
	return s.replyError(sender.ID, SubjectRule, CodeInvalidRequest)
}

// RunRule executes a rule, applies the hardware side effects and
// broadcasts the execution. The cloud sync and the scheduler reuse it.
func (s *LocalSync) RunRule(ctx context.Context, ruleID string) error {
	result, err := s.deps.Engine.Run(ctx, ruleID)
	if err != nil {
		return err
	}
	s.applyRuleHardware(ctx, result)
	s.deps.Events.Publish(ctx, event.RuleExecuted{Rule: result.Rule})
	return nil
}

func (s *LocalSync) applyRuleHardware(ctx context.Context, result *alarm.RunResult) {
	switch result.Rule.Type {
	case alarm.TypeArm:
		if err := s.deps.Radio.SetWarningEnabled(ctx, true); err != nil {
			s.log.Warn("enabling warning mode", "error", err)
		}
	case alarm.TypeDisarm:
		if err := s.deps.Radio.SetWarningEnabled(ctx, false); err != nil {
			s.log.Warn("disabling warning mode", "error", err)
		}
	case alarm.TypeAtHome:
		if err := s.deps.Radio.SetInHomeMode(ctx); err != nil {
			s.log.Warn("selecting at-home mode", "error", err)
		}
	}
	for _, z := range result.Zones {
		if err := s.deps.Radio.ArmZone(ctx, z.IEEE, z.ZoneStatus); err != nil {
			s.log.Warn("arming zone", "ieee", z.IEEE, "error", err)
		}
	}
	for _, siren := range result.Sirens {
		if err := s.deps.Radio.SoundSiren(ctx, siren.IEEE, siren.Duration, siren.Level); err != nil {
			s.log.Warn("sounding siren", "ieee", siren.IEEE, "error", err)
		}
	}
}

func (s *LocalSync) handleRoom(ctx context.Context, sender *user.User, env *Envelope) error {
	switch env.Action {
	case "get":
		rooms, err := s.deps.Rooms.List(ctx)
		if err != nil {
			return err
		}
		return s.reply(sender.ID, SubjectRoom, "get", sender.AccessToken, "all", rooms)
	case "add":
		var rm room.Room
		if err := json.Unmarshal(env.Value, &rm); err != nil || rm.Name == "" {
			return s.replyError(sender.ID, SubjectRoom, CodeMissingParam)
		}
		if err := s.deps.Rooms.Create(ctx, &rm); err != nil {
			return err
		}
		return s.Broadcast(ctx, SubjectRoom, "add", "room", rm, "")
	case "update":
		var rm room.Room
		if err := json.Unmarshal(env.Value, &rm); err != nil || rm.ID == "" {
			return s.replyError(sender.ID, SubjectRoom, CodeMissingParam)
		}
		if err := s.deps.Rooms.Update(ctx, &rm); err != nil {
			if errors.Is(err, room.ErrRoomNotFound) {
				return s.replyError(sender.ID, SubjectRoom, CodeNotFound)
			}
			return err
		}
		return s.Broadcast(ctx, SubjectRoom, "update", "room", rm, "")
	case "delete", "remove":
		var req idRequest
		if err := json.Unmarshal(env.Value, &req); err != nil || req.ID == "" {
			return s.replyError(sender.ID, SubjectRoom, CodeMissingParam)
		}
		if err := s.deps.Rooms.Delete(ctx, req.ID); err != nil {
			if errors.Is(err, room.ErrRoomNotFound) {
				return s.replyError(sender.ID, SubjectRoom, CodeNotFound)
			}
			return err
		}
		return s.Broadcast(ctx, SubjectRoom, "delete", "room", req, "")
	}
	return s.replyError(sender.ID, SubjectRoom, CodeInvalidRequest)
}

func (s *LocalSync) handleCamera(ctx context.Context, sender *user.User, env *Envelope) error {
	switch env.Action {
	case "get":
		cams, err := s.deps.Cameras.List(ctx)
		if err != nil {
			return err
		}
		return s.reply(sender.ID, SubjectCamera, "get", sender.AccessToken, "all", cams)
	case "add":
		var cam camera.Camera
		if err := json.Unmarshal(env.Value, &cam); err != nil {
			return s.replyError(sender.ID, SubjectCamera, CodeMissingParam)
		}
		if err := s.deps.Cameras.Create(ctx, &cam); err != nil {
			return err
		}
		return s.Broadcast(ctx, SubjectCamera, "add", "camera", cam, "")
	case "update":
		var cam camera.Camera
		if err := json.Unmarshal(env.Value, &cam); err != nil || cam.ID == "" {
			return s.replyError(sender.ID, SubjectCamera, CodeMissingParam)
		}
		if err := s.deps.Cameras.Update(ctx, &cam); err != nil {
			if errors.Is(err, camera.ErrCameraNotFound) {
				return s.replyError(sender.ID, SubjectCamera, CodeNotFound)
			}
			return err
		}
		return s.Broadcast(ctx, SubjectCamera, "update", "camera", cam, "")
	case "delete", "remove":
		var req idRequest
		if err := json.Unmarshal(env.Value, &req); err != nil || req.ID == "" {
			return s.replyError(sender.ID, SubjectCamera, CodeMissingParam)
		}
		if err := s.deps.Cameras.Delete(ctx, req.ID); err != nil {
			if errors.Is(err, camera.ErrCameraNotFound) {
				return s.replyError(sender.ID, SubjectCamera, CodeNotFound)
			}
			return err
		}
		return s.Broadcast(ctx, SubjectCamera, "delete", "camera", req, "")
	}
	return s.replyError(sender.ID, SubjectCamera, CodeInvalidRequest)
}

func (s *LocalSync) handleUser(ctx context.Context, sender *user.User, env *Envelope) error {
	switch env.Action {
	case "get":
		users, err := s.deps.Users.List(ctx)
		if err != nil {
			return err
		}
		return s.reply(sender.ID, SubjectUser, "get", sender.AccessToken, "all", users)
	case "delete", "remove":
		var req idRequest
		if err := json.Unmarshal(env.Value, &req); err != nil || req.ID == "" {
			return s.replyError(sender.ID, SubjectUser, CodeMissingParam)
		}
		if err := s.deps.Users.Remove(ctx, req.ID); err != nil {
			if errors.Is(err, user.ErrUserNotFound) {
				return s.replyError(sender.ID, SubjectUser, CodeNotFound)
			}
			return err
		}
		return nil
	case "grant":
		var req struct {
			UserID    string `json:"user_id"`
			ChannelID string `json:"channel_id"`
		}
		if err := json.Unmarshal(env.Value, &req); err != nil || req.UserID == "" || req.ChannelID == "" {
			return s.replyError(sender.ID, SubjectUser, CodeMissingParam)
		}
		return s.deps.Users.GrantChannel(ctx, req.UserID, req.ChannelID)
	}
	return s.replyError(sender.ID, SubjectUser, CodeInvalidRequest)
}

func (s *LocalSync) handleNotification(ctx context.Context, sender *user.User, env *Envelope) error {
	if env.Action != "get" {
		return s.replyError(sender.ID, SubjectNotification, CodeInvalidRequest)
	}
	list, err := s.deps.Center.List(ctx)
	if err != nil {
		return err
	}
	return s.reply(sender.ID, SubjectNotification, "get", sender.AccessToken, "all", list)
}

func (s *LocalSync) handleHomegate(ctx context.Context, sender *user.User, env *Envelope) error {
	switch env.Action {
	case "get":
		hg, err := s.deps.Homegate.Get(ctx)
		if err != nil {
			return err
		}
		return s.reply(sender.ID, SubjectHomegate, "get", sender.AccessToken, "info", hg)
	case "update":
		var req struct {
			Field string `json:"field"`
			Value any    `json:"value"`
		}
		if err := json.Unmarshal(env.Value, &req); err != nil || req.Field == "" {
			return s.replyError(sender.ID, SubjectHomegate, CodeMissingParam)
		}
		if err := s.deps.Homegate.UpdateField(ctx, req.Field, req.Value); err != nil {
			if errors.Is(err, homegate.ErrInvalidField) {
				return s.replyError(sender.ID, SubjectHomegate, CodeInvalidRequest)
			}
			return err
		}
		return s.Broadcast(ctx, SubjectHomegate, "update", req.Field, req, "")
	}
	return s.replyError(sender.ID, SubjectHomegate, CodeInvalidRequest)
}

func (s *LocalSync) handleConfig(ctx context.Context, sender *user.User, env *Envelope) error {
	switch env.Type {
	case "wifi":
		var req struct {
			SSID     string `json:"ssid"`
			Password string `json:"password"`
		}
		if err := json.Unmarshal(env.Value, &req); err != nil || req.SSID == "" {
			return s.replyError(sender.ID, SubjectConfig, CodeMissingParam)
		}
		return s.deps.Net.AddWifi(ctx, req.SSID, req.Password)
	case "update":
		var req struct {
			Version string `json:"version"`
		}
		if err := json.Unmarshal(env.Value, &req); err != nil || req.Version == "" {
			return s.replyError(sender.ID, SubjectConfig, CodeMissingParam)
		}
		return s.deps.Net.UpdateSoftware(ctx, req.Version)
	}
	return s.replyError(sender.ID, SubjectConfig, CodeInvalidRequest)
}

// reply publishes a response addressed to one user.
func (s *LocalSync) reply(userID, subject, action, token, typ string, value any) error {
	payload, err := Marshal(action, token, typ, value)
	if err != nil {
		return err
	}
	return s.conn.Publish(
		LocalTopic(s.cfg.RootTopic, "response", userID, subject),
		payload, s.cfg.QoS, false)
}

func (s *LocalSync) replyError(userID, subject string, code int) error {
	if userID == "" || userID == AudienceAll {
		return nil
	}
	payload, err := MarshalError("", subject, code)
	if err != nil {
		return err
	}
	return s.conn.Publish(
		LocalTopic(s.cfg.RootTopic, "response", userID, subject),
		payload, s.cfg.QoS, false)
}

// Broadcast re-envelopes a message per recipient: unrestricted users
// receive everything, restricted users only messages about channels
// they were granted. channelID may be empty for non-channel payloads,
// which then reach unrestricted users only.
func (s *LocalSync) Broadcast(ctx context.Context, subject, action, typ string, value any, channelID string) error {
	users, err := s.deps.Users.List(ctx)
	if err != nil {
		return err
	}
	for i := range users {
		u := &users[i]
		if u.PermissionType != user.PermissionUnrestricted {
			if channelID == "" {
				continue
			}
			ok, err := s.deps.Users.CanAccess(ctx, u.ID, channelID)
			if err != nil {
				s.log.Error("checking channel access", "user", u.ID, "error", err)
				continue
			}
			if !ok {
				continue
			}
		}
		// The envelope token identifies the recipient's session.
		payload, err := Marshal(action, u.AccessToken, typ, value)
		if err != nil {
			return err
		}
		topic := LocalTopic(s.cfg.RootTopic, "response", u.ID, subject)
		if err := s.conn.Publish(topic, payload, s.cfg.QoS, false); err != nil {
			s.log.Error("broadcasting", "topic", topic, "error", err)
		}
	}
	return nil
}

// handleEvent fans committed core events out to the apps.
func (s *LocalSync) handleEvent(ctx context.Context, e any) {
	var err error
	switch ev := e.(type) {
	case event.DeviceAdded:
		err = s.Broadcast(ctx, SubjectDevice, "add", "add_new", ev.View, "")
		if err == nil && len(ev.SecureRules) > 0 {
			err = s.Broadcast(ctx, SubjectRule, "update", "rule_channel", ev.SecureRules, "")
		}
	case event.ChannelUpdated:
		err = s.Broadcast(ctx, SubjectChannel, "update", "status", ev.Update, ev.Update.ID)
	case event.NotificationAdded:
		err = s.Broadcast(ctx, SubjectNotification, "add", "channel", ev.Notification, "")
	case event.RuleExecuted:
		err = s.Broadcast(ctx, SubjectRule, "run", ruleTypeName(ev.Rule.Type),
			map[string]string{"id": ev.Rule.ID}, "")
	case event.DeviceRemoved:
		err = s.Broadcast(ctx, SubjectDevice, "delete", "device",
			map[string]string{"id": ev.DeviceID}, "")
	case event.ChannelRemoved:
		err = s.Broadcast(ctx, SubjectChannel, "delete", "channel",
			map[string]any{"id": ev.ChannelID, "device_removed": ev.DeviceRemoved}, "")
	}
	if err != nil {
		s.log.Error("fanning out event", "error", err)
	}
}

// ruleTypeName renders the rule type for the run broadcast.
func ruleTypeName(ruleType int) string {
	switch ruleType {
	case alarm.TypeArm:
		return "1"
	case alarm.TypeDisarm:
		return "2"
	case alarm.TypeAtHome:
		return "3"
	case alarm.TypeSOS:
		return "4"
	case alarm.TypeDoorReminder:
		return "5"
	default:
		return "0"
	}
}
