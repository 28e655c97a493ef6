package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/dicomiot/dhome-core/internal/alarm"
	"github.com/dicomiot/dhome-core/internal/camera"
	"github.com/dicomiot/dhome-core/internal/device"
	"github.com/dicomiot/dhome-core/internal/event"
	"github.com/dicomiot/dhome-core/internal/homegate"
	"github.com/dicomiot/dhome-core/internal/infrastructure/database"
	"github.com/dicomiot/dhome-core/internal/infrastructure/mqtt"
	"github.com/dicomiot/dhome-core/internal/notification"
	"github.com/dicomiot/dhome-core/internal/radio"
	"github.com/dicomiot/dhome-core/internal/room"
	"github.com/dicomiot/dhome-core/internal/user"
	_ "github.com/dicomiot/dhome-core/migrations"
)

type published struct {
	topic    string
	payload  []byte
	retained bool
}

// fakeConn records publishes and subscriptions in memory.
type fakeConn struct {
	mu            sync.Mutex
	messages      []published
	subscriptions []string
}

func (c *fakeConn) Publish(topic string, payload []byte, qos byte, retained bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, published{topic: topic, payload: payload, retained: retained})
	return nil
}

func (c *fakeConn) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions = append(c.subscriptions, topic)
	return nil
}

func (c *fakeConn) onTopic(topic string) []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []published
	for _, m := range c.messages {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
}

// recordingDriver notes every hardware command it receives.
type recordingDriver struct {
	radio.NopDriver
	mu  sync.Mutex
	ops []string
}

func (d *recordingDriver) record(op string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ops = append(d.ops, op)
}

func (d *recordingDriver) ArmZone(_ context.Context, ieee string, zoneStatus int) error {
	d.record(fmt.Sprintf("arm %s %d", ieee, zoneStatus))
	return nil
}

func (d *recordingDriver) SetWarningEnabled(_ context.Context, enabled bool) error {
	d.record(fmt.Sprintf("warning %v", enabled))
	return nil
}

func (d *recordingDriver) SoundSiren(_ context.Context, ieee string, duration, level int) error {
	d.record(fmt.Sprintf("siren %s %d %d", ieee, duration, level))
	return nil
}

type harness struct {
	sync   *LocalSync
	conn   *fakeConn
	db     *database.DB
	deps   Deps
	driver *recordingDriver
	cfg    Config
}

func openHarness(t *testing.T) *harness {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "bus.db"),
		WALMode:     true,
		BusyTimeout: 1,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	identity := homegate.Identity{
		ID: "HG-0001", Site: "home", Name: "Dhome Gateway",
		Model: "DH-GW01", Serial: "SN0001", Token: "gw-token",
	}
	if err := homegate.Provision(ctx, db.DB, identity); err != nil {
		t.Fatalf("Provision() error = %v", err)
	}

	devices := device.NewStore(db.DB)
	rules := alarm.NewSQLiteRepository(db.DB)
	rooms := room.NewSQLiteRepository(db.DB)
	cams := camera.NewSQLiteRepository(db.DB)
	hg := homegate.NewSQLiteRepository(db.DB)
	driver := &recordingDriver{}

	deps := Deps{
		Users:    user.NewSQLiteRepository(db.DB),
		Devices:  devices,
		Rules:    rules,
		Engine:   alarm.NewEngine(db.DB, rules, alarm.Options{}),
		Rooms:    rooms,
		Cameras:  cams,
		Homegate: hg,
		Snapshot: homegate.NewSnapshotter(hg, devices, rules, rooms, cams),
		Center:   notification.NewCenter(db.DB, notification.DefaultCapacity),
		Radio:    driver,
		Events:   event.NewBus(nil),
	}
	cfg := Config{
		RootTopic:    "dhome",
		GatewayID:    "HG-0001",
		GatewayToken: "gw-token",
		AppID:        "app-1",
	}
	conn := &fakeConn{}
	s := NewLocalSync(conn, cfg, deps)
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	conn.reset()
	return &harness{sync: s, conn: conn, db: db, deps: deps, driver: driver, cfg: cfg}
}

func (h *harness) addUser(t *testing.T, id string, permission int, token string) {
	t.Helper()
	err := h.deps.Users.Upsert(context.Background(), &user.User{
		ID:             id,
		Name:           "Admin",
		PermissionType: permission,
		AccessToken:    token,
	})
	if err != nil {
		t.Fatalf("Upsert(%s) error = %v", id, err)
	}
}

func (h *harness) seedChannel(t *testing.T, deviceID, channelID, ieee string) {
	t.Helper()
	ctx := context.Background()
	_, err := h.db.ExecContext(ctx,
		`INSERT INTO devices (id, ieee) VALUES (?, ?)`, deviceID, ieee)
	if err != nil {
		t.Fatalf("seeding device %s: %v", deviceID, err)
	}
	_, err = h.db.ExecContext(ctx,
		`INSERT INTO channels (id, ieee, endpoint_id, type, device_id) VALUES (?, ?, 1, ?, ?)`,
		channelID, ieee, device.TypeDoor, deviceID)
	if err != nil {
		t.Fatalf("seeding channel %s: %v", channelID, err)
	}
}

func (h *harness) request(t *testing.T, userID, subject, action, token, typ string, value any) {
	t.Helper()
	payload, err := Marshal(action, token, typ, value)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	topic := LocalTopic(h.cfg.RootTopic, "request", userID, subject)
	if err := h.sync.handleMessage(topic, payload); err != nil {
		t.Fatalf("handleMessage() error = %v", err)
	}
}

func decodeEnvelope(t *testing.T, m published) *Envelope {
	t.Helper()
	env, err := Unmarshal(m.payload)
	if err != nil {
		t.Fatalf("Unmarshal(%s) error = %v", m.topic, err)
	}
	return env
}

func TestLoginMintsToken(t *testing.T) {
	h := openHarness(t)
	ctx := context.Background()

	h.request(t, "user-1", SubjectUser, "add", "", "login",
		loginRequest{AppID: "app-1", Token: "gw-token"})

	replies := h.conn.onTopic("dhome/response/user-1/user")
	if len(replies) != 1 {
		t.Fatalf("replies = %d, want 1", len(replies))
	}
	env := decodeEnvelope(t, replies[0])
	if env.Action != "add" || env.Type != "login" {
		t.Fatalf("envelope = %+v", env)
	}
	var value struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(env.Value, &value); err != nil {
		t.Fatalf("unmarshal value: %v", err)
	}
	if value.AccessToken == "" {
		t.Fatal("empty access token")
	}

	u, err := h.deps.Users.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if u.PermissionType != user.PermissionUnrestricted || u.Name != "Admin" {
		t.Fatalf("user = %+v", u)
	}
	if u.AccessToken != value.AccessToken {
		t.Fatal("stored token differs from reply")
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	h := openHarness(t)

	h.request(t, "user-1", SubjectUser, "add", "", "login",
		loginRequest{AppID: "app-1", Token: "wrong"})

	replies := h.conn.onTopic("dhome/response/user-1/user")
	if len(replies) != 1 {
		t.Fatalf("replies = %d, want 1", len(replies))
	}
	env := decodeEnvelope(t, replies[0])
	if env.Action != "error" {
		t.Fatalf("Action = %q, want error", env.Action)
	}
	var value struct {
		Code int `json:"code"`
	}
	if err := json.Unmarshal(env.Value, &value); err != nil {
		t.Fatalf("unmarshal value: %v", err)
	}
	if value.Code != CodeInvalidRequest {
		t.Fatalf("code = %d, want %d", value.Code, CodeInvalidRequest)
	}
	if _, err := h.deps.Users.Get(context.Background(), "user-1"); err == nil {
		t.Fatal("user was created despite bad credentials")
	}
}

func TestUnknownTokenSilentlyDropped(t *testing.T) {
	h := openHarness(t)
	h.addUser(t, "user-1", user.PermissionUnrestricted, "tok-1")

	h.request(t, "user-1", SubjectDevice, "get", "forged", "all", nil)

	h.conn.mu.Lock()
	defer h.conn.mu.Unlock()
	if len(h.conn.messages) != 0 {
		t.Fatalf("published %d messages, want silence", len(h.conn.messages))
	}
}

func TestBroadcastAuthorization(t *testing.T) {
	h := openHarness(t)
	ctx := context.Background()
	h.addUser(t, "owner", user.PermissionUnrestricted, "tok-owner")
	h.addUser(t, "guest", user.PermissionRestricted, "tok-guest")
	h.addUser(t, "granted", user.PermissionRestricted, "tok-granted")
	h.seedChannel(t, "dev-1", "ch-1", "00:aa")
	if err := h.deps.Users.GrantChannel(ctx, "granted", "ch-1"); err != nil {
		t.Fatalf("GrantChannel() error = %v", err)
	}

	err := h.sync.Broadcast(ctx, SubjectChannel, "update", "status",
		map[string]string{"id": "ch-1"}, "ch-1")
	if err != nil {
		t.Fatalf("Broadcast() error = %v", err)
	}

	if got := h.conn.onTopic("dhome/response/owner/channel"); len(got) != 1 {
		t.Fatalf("owner deliveries = %d, want 1", len(got))
	} else if decodeEnvelope(t, got[0]).Token != "tok-owner" {
		t.Fatal("owner envelope not stamped with owner token")
	}
	if got := h.conn.onTopic("dhome/response/granted/channel"); len(got) != 1 {
		t.Fatalf("granted deliveries = %d, want 1", len(got))
	} else if decodeEnvelope(t, got[0]).Token != "tok-granted" {
		t.Fatal("granted envelope not stamped with recipient token")
	}
	if got := h.conn.onTopic("dhome/response/guest/channel"); len(got) != 0 {
		t.Fatalf("guest deliveries = %d, want 0", len(got))
	}

	// Non-channel payloads stay with unrestricted users.
	h.conn.reset()
	if err := h.sync.Broadcast(ctx, SubjectRule, "run", "1", map[string]string{"id": "r"}, ""); err != nil {
		t.Fatalf("Broadcast() error = %v", err)
	}
	if got := h.conn.onTopic("dhome/response/owner/rule"); len(got) != 1 {
		t.Fatalf("owner rule deliveries = %d, want 1", len(got))
	}
	if got := h.conn.onTopic("dhome/response/granted/rule"); len(got) != 0 {
		t.Fatalf("granted rule deliveries = %d, want 0", len(got))
	}
}

func TestRunRuleArmDrivesHardware(t *testing.T) {
	h := openHarness(t)
	ctx := context.Background()
	h.addUser(t, "owner", user.PermissionUnrestricted, "tok-owner")

	arm, err := h.deps.Rules.SystemRule(ctx, alarm.TypeArm)
	if err != nil {
		t.Fatalf("SystemRule(arm) error = %v", err)
	}
	atHome, err := h.deps.Rules.SystemRule(ctx, alarm.TypeAtHome)
	if err != nil {
		t.Fatalf("SystemRule(at-home) error = %v", err)
	}
	// A motion sensor bound as at-home-exempt; full arm promotes it.
	_, err = h.db.ExecContext(ctx,
		`INSERT INTO condition_alarm_mode (id, channel_id, ieee, zone_status) VALUES (?, ?, ?, ?)`,
		atHome.ID, "ch-pir", "00:11:22", 0)
	if err != nil {
		t.Fatalf("seeding binding: %v", err)
	}

	if err := h.sync.RunRule(ctx, arm.ID); err != nil {
		t.Fatalf("RunRule() error = %v", err)
	}

	h.driver.mu.Lock()
	ops := strings.Join(h.driver.ops, ",")
	h.driver.mu.Unlock()
	if !strings.Contains(ops, "warning true") {
		t.Fatalf("ops = %q, want warning enabled", ops)
	}
	if !strings.Contains(ops, "arm 00:11:22 1") {
		t.Fatalf("ops = %q, want zone armed", ops)
	}

	runs := h.conn.onTopic("dhome/response/owner/rule")
	if len(runs) != 1 {
		t.Fatalf("rule broadcasts = %d, want 1", len(runs))
	}
	env := decodeEnvelope(t, runs[0])
	if env.Action != "run" || env.Type != "1" {
		t.Fatalf("envelope = %+v", env)
	}
}

func TestDeviceDeleteFansOut(t *testing.T) {
	h := openHarness(t)
	ctx := context.Background()
	h.addUser(t, "owner", user.PermissionUnrestricted, "tok-owner")
	h.seedChannel(t, "dev-1", "ch-1", "00:aa")
	h.seedChannel(t, "dev-2", "ch-2", "00:bb")

	h.request(t, "owner", SubjectDevice, "delete", "tok-owner", "device", idRequest{ID: "dev-1"})

	if _, err := h.deps.Devices.RemoveDevice(ctx, "dev-1"); !errors.Is(err, device.ErrDeviceNotFound) {
		t.Fatalf("device still present after delete, RemoveDevice error = %v", err)
	}
	got := h.conn.onTopic("dhome/response/owner/device")
	if len(got) != 1 {
		t.Fatalf("device broadcasts = %d, want 1", len(got))
	}
	if env := decodeEnvelope(t, got[0]); env.Action != "delete" || env.Type != "device" {
		t.Fatalf("envelope = %+v", env)
	}

	// The legacy action name still works.
	h.conn.reset()
	h.request(t, "owner", SubjectDevice, "remove", "tok-owner", "device", idRequest{ID: "dev-2"})
	if got := h.conn.onTopic("dhome/response/owner/device"); len(got) != 1 {
		t.Fatalf("legacy remove broadcasts = %d, want 1", len(got))
	}
}

func TestChannelDeleteFansOut(t *testing.T) {
	h := openHarness(t)
	h.addUser(t, "owner", user.PermissionUnrestricted, "tok-owner")
	h.seedChannel(t, "dev-1", "ch-1", "00:aa")

	h.request(t, "owner", SubjectChannel, "delete", "tok-owner", "channel", idRequest{ID: "ch-1"})

	got := h.conn.onTopic("dhome/response/owner/channel")
	if len(got) != 1 {
		t.Fatalf("channel broadcasts = %d, want 1", len(got))
	}
	env := decodeEnvelope(t, got[0])
	if env.Action != "delete" || env.Type != "channel" {
		t.Fatalf("envelope = %+v", env)
	}
	var value struct {
		ID            string `json:"id"`
		DeviceRemoved bool   `json:"device_removed"`
	}
	if err := json.Unmarshal(env.Value, &value); err != nil {
		t.Fatalf("unmarshal value: %v", err)
	}
	// Removing a device's last channel removes the device with it.
	if value.ID != "ch-1" || !value.DeviceRemoved {
		t.Fatalf("value = %+v", value)
	}
}

func TestEventFanOut(t *testing.T) {
	h := openHarness(t)
	ctx := context.Background()
	h.addUser(t, "owner", user.PermissionUnrestricted, "tok-owner")

	h.deps.Events.Publish(ctx, event.DeviceAdded{
		View:        &device.DeviceView{},
		SecureRules: []alarm.RuleView{{}},
	})

	if got := h.conn.onTopic("dhome/response/owner/device"); len(got) != 1 {
		t.Fatalf("device broadcasts = %d, want 1", len(got))
	} else if env := decodeEnvelope(t, got[0]); env.Action != "add" || env.Type != "add_new" {
		t.Fatalf("device envelope = %+v", env)
	}
	if got := h.conn.onTopic("dhome/response/owner/rule"); len(got) != 1 {
		t.Fatalf("rule broadcasts = %d, want 1", len(got))
	} else if env := decodeEnvelope(t, got[0]); env.Type != "rule_channel" {
		t.Fatalf("rule envelope = %+v", env)
	}
}

func TestWillAndOnline(t *testing.T) {
	h := openHarness(t)

	will, err := h.sync.Will()
	if err != nil {
		t.Fatalf("Will() error = %v", err)
	}
	if will.Topic != "dhome/response/all/info" {
		t.Fatalf("will topic = %q", will.Topic)
	}
	env, err := Unmarshal(will.Payload)
	if err != nil {
		t.Fatalf("Unmarshal(will) error = %v", err)
	}
	var value struct {
		State int `json:"state"`
	}
	if err := json.Unmarshal(env.Value, &value); err != nil {
		t.Fatalf("unmarshal value: %v", err)
	}
	if value.State != 0 {
		t.Fatalf("will state = %d, want 0", value.State)
	}

	if err := h.sync.announceOnline(); err != nil {
		t.Fatalf("announceOnline() error = %v", err)
	}
	online := h.conn.onTopic("dhome/response/all/info")
	if len(online) != 1 {
		t.Fatalf("online announcements = %d, want 1", len(online))
	}
}
