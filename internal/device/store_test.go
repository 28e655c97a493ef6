package device

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/dicomiot/dhome-core/internal/infrastructure/database"
	_ "github.com/dicomiot/dhome-core/migrations"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "homegate.db"),
		WALMode:     true,
		BusyTimeout: 1,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewStore(db.DB)
}

// doorJoin is a join interview of a single-endpoint door contact with
// the zone already reporting open.
func doorJoin(ieee string) JoinInfo {
	return JoinInfo{
		Addr: "0x4521",
		Info: NodeInfo{IEEE: ieee, LQI: 200},
		Endpoints: []EndpointInfo{{
			Endpoint:   1,
			Profile:    260,
			Device:     1026,
			InClusters: []int{ClusterBasic, ClusterIASZone},
			Clusters: []ClusterReport{
				{Cluster: ClusterBasic, Attributes: []Report{
					{Attribute: AttrModelIdentifier, Name: "model_identifier", Type: "string", Value: "DH-DS01"},
				}},
				{Cluster: ClusterIASZone, Attributes: []Report{
					{Attribute: 2, Name: "zone_status", Type: "bitmap", Value: "1"},
				}},
			},
		}},
	}
}

func environmentJoin(ieee string) JoinInfo {
	return JoinInfo{
		Addr: "0x77ab",
		Info: NodeInfo{IEEE: ieee, LQI: 120},
		Endpoints: []EndpointInfo{{
			Endpoint:   1,
			Profile:    260,
			Device:     770,
			InClusters: []int{ClusterBasic, ClusterTemperature, ClusterHumidity},
			Clusters: []ClusterReport{
				{Cluster: ClusterBasic, Attributes: []Report{
					{Attribute: AttrModelIdentifier, Name: "model_identifier", Type: "string", Value: "DH-ES01"},
				}},
				{Cluster: ClusterTemperature, Attributes: []Report{
					{Attribute: 0, Name: "measured_value", Type: "int16", Value: "24"},
				}},
			},
		}},
	}
}

func TestUpsertDeviceNewDoorSensor(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	view, bindings, err := store.UpsertDevice(ctx, doorJoin("00:15:8d:00:01"))
	if err != nil {
		t.Fatalf("UpsertDevice() error = %v", err)
	}

	if view.Name != "Cảm biến cửa" || view.Model != "DH-DS01" || view.Manufacturer != "DICOM" {
		t.Errorf("device not classified: %+v", view.Device)
	}
	if view.Type != 1 {
		t.Errorf("device type = %d, want 1", view.Type)
	}
	if len(view.Channels) != 1 {
		t.Fatalf("channels = %d, want 1", len(view.Channels))
	}

	ch := view.Channels[0]
	if ch.Type != TypeDoor {
		t.Errorf("channel type = %d, want %d", ch.Type, TypeDoor)
	}
	if ch.ZoneID != 1 {
		t.Errorf("zone id = %d, want 1", ch.ZoneID)
	}
	if v, ok := ch.Status.Get("closeopen"); !ok || v != 1 {
		t.Errorf("status = %v, want closeopen=1", ch.Status)
	}

	if len(bindings) != 1 || bindings[0].ChannelType != TypeDoor || bindings[0].ChannelID != ch.ID {
		t.Errorf("bindings = %+v, want one door binding for %s", bindings, ch.ID)
	}
}

func TestUpsertDeviceIdempotent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first, _, err := store.UpsertDevice(ctx, doorJoin("00:15:8d:00:02"))
	if err != nil {
		t.Fatalf("first UpsertDevice() error = %v", err)
	}
	// Nodes come back with a fresh short address after a rejoin.
	rejoin := doorJoin("00:15:8d:00:02")
	rejoin.Addr = "0x9f3c"
	second, bindings, err := store.UpsertDevice(ctx, rejoin)
	if err != nil {
		t.Fatalf("second UpsertDevice() error = %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("re-join created a new device: %s != %s", second.ID, first.ID)
	}
	if second.Addr != "0x9f3c" {
		t.Errorf("re-join addr = %q, want 0x9f3c", second.Addr)
	}
	if bindings != nil {
		t.Errorf("re-join returned bindings: %+v", bindings)
	}
	if len(second.Channels) != 1 {
		t.Errorf("re-join duplicated channels: %d", len(second.Channels))
	}

	views, err := store.ListDeviceChannels(ctx)
	if err != nil {
		t.Fatalf("ListDeviceChannels() error = %v", err)
	}
	if len(views) != 1 {
		t.Errorf("devices = %d, want 1", len(views))
	}
}

func TestUpsertDeviceUnknownModelRollsBack(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	join := doorJoin("00:15:8d:00:03")
	join.Endpoints[0].Clusters[0].Attributes[0].Value = "XX-UNKNOWN"

	_, _, err := store.UpsertDevice(ctx, join)
	if !errors.Is(err, ErrUnknownModel) {
		t.Fatalf("UpsertDevice() error = %v, want ErrUnknownModel", err)
	}

	views, err := store.ListDeviceChannels(ctx)
	if err != nil {
		t.Fatalf("ListDeviceChannels() error = %v", err)
	}
	if len(views) != 0 {
		t.Errorf("half-built device survived rollback: %+v", views)
	}
}

func TestIngestAttributeReport(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	view, _, err := store.UpsertDevice(ctx, doorJoin("00:15:8d:00:04"))
	if err != nil {
		t.Fatalf("UpsertDevice() error = %v", err)
	}

	res, err := store.IngestAttributeReport(ctx, Report{
		IEEE: "00:15:8d:00:04", Endpoint: 1, Cluster: ClusterIASZone,
		Attribute: 2, Name: "zone_status", Type: "bitmap", Value: "0",
	})
	if err != nil {
		t.Fatalf("IngestAttributeReport() error = %v", err)
	}
	if !res.Changed || !res.Alarm {
		t.Errorf("Changed = %v, Alarm = %v, want both true", res.Changed, res.Alarm)
	}
	if res.ChannelID != view.Channels[0].ID {
		t.Errorf("channel id = %s, want %s", res.ChannelID, view.Channels[0].ID)
	}
	if v, ok := res.Update.Status.Get("closeopen"); !ok || v != 0 {
		t.Errorf("status = %v, want closeopen=0", res.Update.Status)
	}

	ch, err := store.GetChannel(ctx, res.ChannelID)
	if err != nil {
		t.Fatalf("GetChannel() error = %v", err)
	}
	if v, _ := ch.Status.Get("closeopen"); v != 0 {
		t.Errorf("stored status = %v, want closeopen=0", ch.Status)
	}
}

func TestIngestAttributeReportUnknownChannel(t *testing.T) {
	store := openTestStore(t)

	_, err := store.IngestAttributeReport(context.Background(), Report{
		IEEE: "no:such:node", Endpoint: 1, Cluster: ClusterIASZone,
		Name: "zone_status", Value: "1",
	})
	if !errors.Is(err, ErrChannelNotFound) {
		t.Errorf("error = %v, want ErrChannelNotFound", err)
	}
}

func TestIngestAttributeReportUninterpretedCluster(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, _, err := store.UpsertDevice(ctx, doorJoin("00:15:8d:00:05")); err != nil {
		t.Fatalf("UpsertDevice() error = %v", err)
	}

	res, err := store.IngestAttributeReport(ctx, Report{
		IEEE: "00:15:8d:00:05", Endpoint: 1, Cluster: 1,
		Attribute: 33, Name: "battery_voltage", Type: "uint8", Value: "30",
	})
	if err != nil {
		t.Fatalf("IngestAttributeReport() error = %v", err)
	}
	if res.Changed {
		t.Error("uninterpreted cluster should not change the status vector")
	}
	if v, ok := res.Update.Status.Get("closeopen"); !ok || v != 1 {
		t.Errorf("previous status not preserved: %v", res.Update.Status)
	}
}

func TestIngestEnvironmentMerge(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, _, err := store.UpsertDevice(ctx, environmentJoin("00:15:8d:00:06")); err != nil {
		t.Fatalf("UpsertDevice() error = %v", err)
	}

	res, err := store.IngestAttributeReport(ctx, Report{
		IEEE: "00:15:8d:00:06", Endpoint: 1, Cluster: ClusterHumidity,
		Attribute: 0, Name: "measured_value", Type: "uint16", Value: "67",
	})
	if err != nil {
		t.Fatalf("IngestAttributeReport() error = %v", err)
	}
	if v, _ := res.Update.Status.Get("temperature"); v != 24 {
		t.Errorf("temperature = %d, want 24 from the join interview", v)
	}
	if v, _ := res.Update.Status.Get("humidity"); v != 67 {
		t.Errorf("humidity = %d, want 67", v)
	}
}

func TestRemoveDeviceCleansRuleBindings(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	view, _, err := store.UpsertDevice(ctx, doorJoin("00:15:8d:00:07"))
	if err != nil {
		t.Fatalf("UpsertDevice() error = %v", err)
	}
	channelID := view.Channels[0].ID

	// Simulate the alarm engine having bound the channel to a rule.
	_, err = store.db.ExecContext(ctx,
		`INSERT INTO rules (id, name, status, type) VALUES ('rule-1', 'Bật báo động', 0, 1)`)
	if err != nil {
		t.Fatalf("seeding rule: %v", err)
	}
	_, err = store.db.ExecContext(ctx,
		`INSERT INTO condition_alarm_mode (id, channel_id, ieee, zone_status) VALUES ('rule-1', ?, ?, 1)`,
		channelID, "00:15:8d:00:07")
	if err != nil {
		t.Fatalf("seeding rule binding: %v", err)
	}

	ieee, err := store.RemoveDevice(ctx, view.ID)
	if err != nil {
		t.Fatalf("RemoveDevice() error = %v", err)
	}
	if ieee != "00:15:8d:00:07" {
		t.Errorf("ieee = %s, want 00:15:8d:00:07", ieee)
	}

	for _, q := range []string{
		`SELECT COUNT(*) FROM devices`,
		`SELECT COUNT(*) FROM channels`,
		`SELECT COUNT(*) FROM attributes`,
		`SELECT COUNT(*) FROM clusters`,
		`SELECT COUNT(*) FROM condition_alarm_mode`,
	} {
		var n int
		if err := store.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
			t.Fatalf("%s: %v", q, err)
		}
		if n != 0 {
			t.Errorf("%s = %d, want 0", q, n)
		}
	}

	if _, err := store.RemoveDevice(ctx, view.ID); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("second remove error = %v, want ErrDeviceNotFound", err)
	}
}

func TestRemoveChannelLastChannelRemovesDevice(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	view, _, err := store.UpsertDevice(ctx, doorJoin("00:15:8d:00:08"))
	if err != nil {
		t.Fatalf("UpsertDevice() error = %v", err)
	}

	ieee, deviceRemoved, err := store.RemoveChannel(ctx, view.Channels[0].ID)
	if err != nil {
		t.Fatalf("RemoveChannel() error = %v", err)
	}
	if !deviceRemoved {
		t.Error("removing the only channel should remove the device")
	}
	if ieee != "00:15:8d:00:08" {
		t.Errorf("ieee = %s, want 00:15:8d:00:08", ieee)
	}

	if _, err := store.GetDeviceChannel(ctx, view.ID); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetDeviceChannel() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestZoneIDReuse(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first, _, err := store.UpsertDevice(ctx, doorJoin("00:15:8d:00:09"))
	if err != nil {
		t.Fatalf("first UpsertDevice() error = %v", err)
	}
	second, _, err := store.UpsertDevice(ctx, doorJoin("00:15:8d:00:0a"))
	if err != nil {
		t.Fatalf("second UpsertDevice() error = %v", err)
	}
	if second.Channels[0].ZoneID != 2 {
		t.Fatalf("second zone id = %d, want 2", second.Channels[0].ZoneID)
	}

	if _, err := store.RemoveDevice(ctx, first.ID); err != nil {
		t.Fatalf("RemoveDevice() error = %v", err)
	}

	third, _, err := store.UpsertDevice(ctx, doorJoin("00:15:8d:00:0b"))
	if err != nil {
		t.Fatalf("third UpsertDevice() error = %v", err)
	}
	if third.Channels[0].ZoneID != 1 {
		t.Errorf("freed zone id not reused: got %d, want 1", third.Channels[0].ZoneID)
	}
}

func TestUpdateChannelInfo(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	view, _, err := store.UpsertDevice(ctx, doorJoin("00:15:8d:00:0c"))
	if err != nil {
		t.Fatalf("UpsertDevice() error = %v", err)
	}

	upd := ChannelInfoUpdate{
		Name:         "Cửa chính",
		Status:       view.Channels[0].Status,
		ZoneStatus:   0,
		Favorite:     true,
		Notification: 1,
		RoomID:       "room-1",
	}
	if err := store.UpdateChannelInfo(ctx, view.Channels[0].ID, upd); err != nil {
		t.Fatalf("UpdateChannelInfo() error = %v", err)
	}

	ch, err := store.GetChannel(ctx, view.Channels[0].ID)
	if err != nil {
		t.Fatalf("GetChannel() error = %v", err)
	}
	if ch.Name != "Cửa chính" || !ch.Favorite || ch.Notification != 1 || ch.ZoneStatus != 0 || ch.RoomID != "room-1" {
		t.Errorf("update not applied: %+v", ch)
	}

	if err := store.UpdateChannelInfo(ctx, "nope", upd); !errors.Is(err, ErrChannelNotFound) {
		t.Errorf("error = %v, want ErrChannelNotFound", err)
	}
}
