package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the persistent device/channel/cluster/attribute model.
//
// All mutating operations run under a single store-wide mutex and
// commit atomically per call; a partially written ingestion is never
// observable. Read-only snapshot queries run without the mutex and may
// serve a slightly stale view.
type Store struct {
	db *sql.DB
	mu sync.Mutex

	now func() int64
}

// NewStore creates a device store on an open database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db: db,
		now: func() int64 {
			return time.Now().Unix()
		},
	}
}

// querier abstracts *sql.DB and *sql.Tx for the read helpers.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// UpsertDevice persists a device-join event. It is idempotent on the
// ieee address: a re-join of a fully known device only refreshes its
// link info, a join of a known device without channels completes the
// channel inventory, and an unknown ieee creates the device.
//
// The returned bindings identify newly classified security channels
// the caller must register with the alarm engine. If the reported
// model identifier is unrecognized the whole join is rolled back and
// ErrUnknownModel is returned.
func (s *Store) UpsertDevice(ctx context.Context, join JoinInfo) (*DeviceView, []SecurityBinding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ieee := join.Info.IEEE
	if ieee == "" {
		return nil, nil, fmt.Errorf("%w: missing ieee", ErrInvalidReport)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("beginning device upsert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	now := s.now()

	var deviceID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM devices WHERE ieee = ?`, ieee).Scan(&deviceID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		deviceID = uuid.NewString()
		if err := insertDevice(ctx, tx, deviceID, join, now); err != nil {
			return nil, nil, err
		}
	case err != nil:
		return nil, nil, fmt.Errorf("querying device by ieee: %w", err)
	default:
		var channels int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM channels WHERE ieee = ?`, ieee).Scan(&channels); err != nil {
			return nil, nil, fmt.Errorf("counting channels: %w", err)
		}
		if channels > 0 {
			// Known device re-announcing itself: refresh the short
			// address it rejoined with and the link info.
			_, err := tx.ExecContext(ctx,
				`UPDATE devices SET addr = ?, lqi = ?, updated = ?, last_seen = ? WHERE id = ?`,
				join.Addr, join.Info.LQI, now, now, deviceID)
			if err != nil {
				return nil, nil, fmt.Errorf("refreshing device: %w", err)
			}
			view, err := deviceView(ctx, tx, deviceID)
			if err != nil {
				return nil, nil, err
			}
			if err := tx.Commit(); err != nil {
				return nil, nil, fmt.Errorf("committing device upsert: %w", err)
			}
			return view, nil, nil
		}
	}

	bindings, err := s.insertChannels(ctx, tx, deviceID, ieee, join.Endpoints, now)
	if err != nil {
		// Rolling back removes the half-built device and channels.
		return nil, nil, err
	}

	view, err := deviceView(ctx, tx, deviceID)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("committing device upsert: %w", err)
	}
	return view, bindings, nil
}

func insertDevice(ctx context.Context, tx *sql.Tx, id string, join JoinInfo, now int64) error {
	info := join.Info
	_, err := tx.ExecContext(ctx, `
		INSERT INTO devices (
			id, name, addr, ieee, discovery, type, model, manufacturer,
			serial_number, sw_version, hw_version, generictype, ids,
			bit_field, descriptor_capability, lqi, mac_capability,
			manufacturer_code, power_type, low_battery, server_mask,
			rejoin_status, created, updated, last_seen)
		VALUES (?, '', ?, ?, ?, 0, '', '', '', '', '', ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?, ?)`,
		id, join.Addr, info.IEEE, join.Discovery, join.GenericType, info.ID,
		info.BitField, info.DescriptorCapability, info.LQI, info.MACCapability,
		info.ManufacturerCode, info.PowerType, info.ServerMask,
		info.RejoinStatus, now, now, now)
	if err != nil {
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

// insertChannels creates one channel per endpoint and processes the
// interview attributes: classification from the basic-cluster model
// identifier, IAS zone decoding, and scalar status derivation.
func (s *Store) insertChannels(ctx context.Context, tx *sql.Tx, deviceID, ieee string, endpoints []EndpointInfo, now int64) ([]SecurityBinding, error) {
	var bindings []SecurityBinding

	for _, ep := range endpoints {
		channelID := uuid.NewString()
		zoneID, err := nextZoneID(ctx, tx)
		if err != nil {
			return nil, err
		}
		inClusters, err := json.Marshal(ep.InClusters)
		if err != nil {
			return nil, fmt.Errorf("encoding in_clusters: %w", err)
		}
		outClusters, err := json.Marshal(ep.OutClusters)
		if err != nil {
			return nil, fmt.Errorf("encoding out_clusters: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO channels (
				id, name, ieee, endpoint_id, type, status, config,
				profile_id, device_type, in_clusters, out_clusters,
				zone_id, zone_status, created, updated, favorite,
				notification, room_id, device_id)
			VALUES (?, '', ?, ?, 0, '[]', '', ?, ?, ?, ?, ?, 1, ?, ?, 0, 0, '', ?)`,
			channelID, ieee, ep.Endpoint, ep.Profile, ep.Device,
			string(inClusters), string(outClusters), zoneID, now, now, deviceID)
		if err != nil {
			return nil, fmt.Errorf("inserting channel: %w", err)
		}

		for _, cluster := range ep.InClusters {
			_, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO clusters (ieee, endpoint_id, cluster) VALUES (?, ?, ?)`,
				ieee, ep.Endpoint, cluster)
			if err != nil {
				return nil, fmt.Errorf("inserting cluster: %w", err)
			}
		}

		channelType := TypeGeneric
		notification := 0
		pending := map[string]int{}
		var zone *ZoneStatus

		for _, cl := range ep.Clusters {
			for _, attr := range cl.Attributes {
				rep := attr
				rep.IEEE = ieee
				rep.Endpoint = ep.Endpoint
				rep.Cluster = cl.Cluster

				switch {
				case cl.Cluster == ClusterBasic && rep.Attribute == AttrModelIdentifier:
					info, ok := LookupModel(rep.Value)
					if !ok {
						return nil, fmt.Errorf("%w: %q", ErrUnknownModel, rep.Value)
					}
					channelType = info.ChannelType
					// Smoke detectors alert regardless of the user's
					// per-channel notification setting.
					if channelType == TypeSmoke {
						notification = 1
					}
					if err := classify(ctx, tx, deviceID, channelID, info); err != nil {
						return nil, err
					}
					if err := upsertAttribute(ctx, tx, rep, ""); err != nil {
						return nil, err
					}
				case cl.Cluster == ClusterIASZone && rep.Name == "zone_status":
					word, err := strconv.ParseUint(rep.Value, 10, 16)
					if err != nil {
						return nil, fmt.Errorf("%w: zone status %q", ErrInvalidReport, rep.Value)
					}
					z := DecodeZoneStatus(uint16(word))
					zone = &z
					zoneJSON, err := json.Marshal(z)
					if err != nil {
						return nil, fmt.Errorf("encoding zone status: %w", err)
					}
					if err := upsertAttribute(ctx, tx, rep, string(zoneJSON)); err != nil {
						return nil, err
					}
				default:
					switch cl.Cluster {
					case ClusterTemperature, ClusterHumidity, ClusterOnOff:
						v, err := reportInt(rep.Value)
						if err != nil {
							return nil, err
						}
						pending[scalarKey(cl.Cluster)] = v
					}
					if err := upsertAttribute(ctx, tx, rep, ""); err != nil {
						return nil, err
					}
				}
			}
		}

		if zone != nil {
			for k, v := range zone.ToRaw() {
				pending[k] = v
			}
		}
		if len(pending) > 0 {
			status := EncodeStatus(channelType, pending, nil)
			statusJSON, err := json.Marshal(status)
			if err != nil {
				return nil, fmt.Errorf("encoding status: %w", err)
			}
			_, err = tx.ExecContext(ctx,
				`UPDATE channels SET status = ?, notification = ? WHERE id = ?`,
				string(statusJSON), notification, channelID)
			if err != nil {
				return nil, fmt.Errorf("updating channel status: %w", err)
			}
		}

		if isSecurityType(channelType) {
			bindings = append(bindings, SecurityBinding{
				ChannelID:   channelID,
				ChannelType: channelType,
				IEEE:        ieee,
			})
		}
	}

	return bindings, nil
}

// classify applies the model-table entry to the device and its channel
// and assigns the default room.
func classify(ctx context.Context, tx *sql.Tx, deviceID, channelID string, info ModelInfo) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE devices SET name = ?, type = 1, model = ?, manufacturer = 'DICOM',
			sw_version = '1.0', hw_version = '1.0', serial_number = ''
		WHERE id = ?`,
		info.Name, info.Model, deviceID)
	if err != nil {
		return fmt.Errorf("classifying device: %w", err)
	}

	roomID, err := defaultRoomID(ctx, tx)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE channels SET name = ?, type = ?, room_id = ? WHERE id = ?`,
		info.Name, info.ChannelType, roomID, channelID)
	if err != nil {
		return fmt.Errorf("classifying channel: %w", err)
	}
	return nil
}

// IngestAttributeReport persists a live attribute report, re-derives
// the channel status when the cluster is interpreted, and returns the
// committed result for publication. Reports from uninterpreted
// clusters are stored but produce Changed=false.
func (s *Store) IngestAttributeReport(ctx context.Context, rep Report) (*IngestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning ingest: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var (
		channelID    string
		channelType  int
		statusJSON   sql.NullString
		channelName  string
		notification int
		roomID       sql.NullString
		zoneStatus   int
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, type, status, name, notification, room_id, zone_status
		FROM channels WHERE ieee = ? AND endpoint_id = ?`,
		rep.IEEE, rep.Endpoint).
		Scan(&channelID, &channelType, &statusJSON, &channelName, &notification, &roomID, &zoneStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrChannelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying channel by ieee/endpoint: %w", err)
	}

	var previous StatusVector
	if statusJSON.Valid && statusJSON.String != "" {
		if err := json.Unmarshal([]byte(statusJSON.String), &previous); err != nil {
			return nil, fmt.Errorf("decoding stored status: %w", err)
		}
	}

	raw := map[string]int{}
	alarm := false
	zoneJSON := ""
	switch {
	case rep.Cluster == ClusterIASZone && rep.Name == "zone_status":
		word, err := strconv.ParseUint(rep.Value, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("%w: zone status %q", ErrInvalidReport, rep.Value)
		}
		z := DecodeZoneStatus(uint16(word))
		raw = z.ToRaw()
		alarm = true
		b, err := json.Marshal(z)
		if err != nil {
			return nil, fmt.Errorf("encoding zone status: %w", err)
		}
		zoneJSON = string(b)
	case rep.Cluster == ClusterTemperature, rep.Cluster == ClusterHumidity, rep.Cluster == ClusterOnOff:
		v, err := reportInt(rep.Value)
		if err != nil {
			return nil, err
		}
		raw[scalarKey(rep.Cluster)] = v
	}

	if err := upsertAttribute(ctx, tx, rep, zoneJSON); err != nil {
		return nil, err
	}

	now := s.now()
	status := previous
	changed := len(raw) > 0
	if changed {
		status = EncodeStatus(channelType, raw, previous)
		b, err := json.Marshal(status)
		if err != nil {
			return nil, fmt.Errorf("encoding status: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE channels SET status = ?, updated = ? WHERE id = ?`,
			string(b), now, channelID)
		if err != nil {
			return nil, fmt.Errorf("updating channel status: %w", err)
		}
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE devices SET last_seen = ? WHERE ieee = ?`, now, rep.IEEE)
	if err != nil {
		return nil, fmt.Errorf("touching device: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing ingest: %w", err)
	}

	return &IngestResult{
		Update:       ChannelUpdate{ID: channelID, Status: status, Updated: now},
		ChannelID:    channelID,
		ChannelType:  channelType,
		ChannelName:  channelName,
		RoomID:       roomID.String,
		Notification: notification,
		ZoneStatus:   zoneStatus,
		Alarm:        alarm,
		Changed:      changed,
	}, nil
}

// RemoveDevice deletes a device with all its channels, clusters,
// attributes, access grants, group memberships and rule bindings.
// Returns the device's ieee so the caller can evict it from the mesh.
func (s *Store) RemoveDevice(ctx context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning device removal: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var ieee string
	err = tx.QueryRowContext(ctx, `SELECT ieee FROM devices WHERE id = ?`, id).Scan(&ieee)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrDeviceNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying device: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `SELECT id FROM channels WHERE device_id = ?`, id)
	if err != nil {
		return "", fmt.Errorf("querying channels: %w", err)
	}
	var channelIDs []string
	for rows.Next() {
		var channelID string
		if err := rows.Scan(&channelID); err != nil {
			rows.Close()
			return "", fmt.Errorf("scanning channel id: %w", err)
		}
		channelIDs = append(channelIDs, channelID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return "", fmt.Errorf("iterating channels: %w", err)
	}
	rows.Close()

	for _, channelID := range channelIDs {
		if err := deleteRuleBindings(ctx, tx, channelID); err != nil {
			return "", err
		}
	}

	// Cascades: channels, then clusters/attributes/user_access/group_members.
	if _, err := tx.ExecContext(ctx, `DELETE FROM devices WHERE id = ?`, id); err != nil {
		return "", fmt.Errorf("deleting device: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing device removal: %w", err)
	}
	return ieee, nil
}

// RemoveChannel deletes a channel and its dependents. When it is the
// device's last channel the device itself is removed too and
// deviceRemoved is true; the returned ieee identifies the device.
func (s *Store) RemoveChannel(ctx context.Context, id string) (ieee string, deviceRemoved bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, fmt.Errorf("beginning channel removal: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var deviceID string
	err = tx.QueryRowContext(ctx,
		`SELECT ieee, device_id FROM channels WHERE id = ?`, id).Scan(&ieee, &deviceID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, ErrChannelNotFound
	}
	if err != nil {
		return "", false, fmt.Errorf("querying channel: %w", err)
	}

	if err := deleteRuleBindings(ctx, tx, id); err != nil {
		return "", false, err
	}

	var siblings int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM channels WHERE device_id = ?`, deviceID).Scan(&siblings); err != nil {
		return "", false, fmt.Errorf("counting channels: %w", err)
	}

	if siblings == 1 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM devices WHERE id = ?`, deviceID); err != nil {
			return "", false, fmt.Errorf("deleting device: %w", err)
		}
		deviceRemoved = true
	} else {
		if _, err := tx.ExecContext(ctx, `DELETE FROM channels WHERE id = ?`, id); err != nil {
			return "", false, fmt.Errorf("deleting channel: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("committing channel removal: %w", err)
	}
	return ieee, deviceRemoved, nil
}

// deleteRuleBindings removes a channel from every rule condition and
// action that references it. The binding tables have no foreign key to
// channels, so the cleanup is explicit.
func deleteRuleBindings(ctx context.Context, tx *sql.Tx, channelID string) error {
	for _, table := range []string{"condition_alarm_mode", "conditions_bind_channel", "action_channels"} {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM `+table+` WHERE channel_id = ?`, channelID); err != nil {
			return fmt.Errorf("deleting %s bindings: %w", table, err)
		}
	}
	return nil
}

// UpdateChannelInfo applies the caller-editable channel fields.
func (s *Store) UpdateChannelInfo(ctx context.Context, id string, upd ChannelInfoUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	statusJSON, err := json.Marshal(upd.Status)
	if err != nil {
		return fmt.Errorf("encoding status: %w", err)
	}
	favorite := 0
	if upd.Favorite {
		favorite = 1
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE channels SET name = ?, status = ?, zone_status = ?, favorite = ?,
			notification = ?, room_id = ?, updated = ?
		WHERE id = ?`,
		upd.Name, string(statusJSON), upd.ZoneStatus, favorite,
		upd.Notification, upd.RoomID, s.now(), id)
	if err != nil {
		return fmt.Errorf("updating channel info: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating channel info: %w", err)
	}
	if affected == 0 {
		return ErrChannelNotFound
	}
	return nil
}

// UpdateDeviceName renames a device.
func (s *Store) UpdateDeviceName(ctx context.Context, id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE devices SET name = ?, updated = ? WHERE id = ?`, name, s.now(), id)
	if err != nil {
		return fmt.Errorf("renaming device: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("renaming device: %w", err)
	}
	if affected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// GetDeviceChannel returns one device with its channels.
func (s *Store) GetDeviceChannel(ctx context.Context, id string) (*DeviceView, error) {
	return deviceView(ctx, s.db, id)
}

// ListDeviceChannels returns all devices with their channels, for bus
// payloads and the full-state snapshot.
func (s *Store) ListDeviceChannels(ctx context.Context) ([]DeviceView, error) {
	rows, err := s.db.QueryContext(ctx, deviceSelect+` ORDER BY created`)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var views []DeviceView
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		views = append(views, DeviceView{Device: *d, Signal: d.Signal()})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}

	for i := range views {
		channels, err := listChannels(ctx, s.db, views[i].ID)
		if err != nil {
			return nil, err
		}
		views[i].Channels = channels
	}
	return views, nil
}

// GetChannel returns one channel by id.
func (s *Store) GetChannel(ctx context.Context, id string) (*Channel, error) {
	rows, err := s.db.QueryContext(ctx, channelSelect+` WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("querying channel: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("querying channel: %w", err)
		}
		return nil, ErrChannelNotFound
	}
	return scanChannel(rows)
}

const deviceSelect = `
	SELECT id, name, addr, ieee, type, model, manufacturer, serial_number,
		sw_version, hw_version, lqi, low_battery, created, updated
	FROM devices`

const channelSelect = `
	SELECT id, name, ieee, endpoint_id, type, status, config, zone_id,
		zone_status, created, updated, favorite, notification, room_id, device_id
	FROM channels`

// deviceView loads one device with its channels.
func deviceView(ctx context.Context, q querier, id string) (*DeviceView, error) {
	rows, err := q.QueryContext(ctx, deviceSelect+` WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("querying device: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("querying device: %w", err)
		}
		return nil, ErrDeviceNotFound
	}
	d, err := scanDevice(rows)
	if err != nil {
		return nil, err
	}
	rows.Close()

	channels, err := listChannels(ctx, q, id)
	if err != nil {
		return nil, err
	}
	return &DeviceView{Device: *d, Signal: d.Signal(), Channels: channels}, nil
}

func listChannels(ctx context.Context, q querier, deviceID string) ([]Channel, error) {
	rows, err := q.QueryContext(ctx, channelSelect+` WHERE device_id = ? ORDER BY endpoint_id`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("querying channels: %w", err)
	}
	defer rows.Close()

	var channels []Channel
	for rows.Next() {
		c, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating channels: %w", err)
	}
	return channels, nil
}

// scanDevice maps a deviceSelect row to a Device. All row-to-entity
// mapping for devices happens here.
func scanDevice(rows *sql.Rows) (*Device, error) {
	var d Device
	err := rows.Scan(&d.ID, &d.Name, &d.Addr, &d.IEEE, &d.Type, &d.Model,
		&d.Manufacturer, &d.SerialNumber, &d.SWVersion, &d.HWVersion,
		&d.LQI, &d.LowBattery, &d.Created, &d.Updated)
	if err != nil {
		return nil, fmt.Errorf("scanning device: %w", err)
	}
	return &d, nil
}

// scanChannel maps a channelSelect row to a Channel. All row-to-entity
// mapping for channels happens here.
func scanChannel(rows *sql.Rows) (*Channel, error) {
	var (
		c          Channel
		statusJSON sql.NullString
		favorite   int
	)
	err := rows.Scan(&c.ID, &c.Name, &c.IEEE, &c.EndpointID, &c.Type,
		&statusJSON, &c.Config, &c.ZoneID, &c.ZoneStatus, &c.Created,
		&c.Updated, &favorite, &c.Notification, &c.RoomID, &c.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("scanning channel: %w", err)
	}
	c.Favorite = favorite != 0
	if statusJSON.Valid && statusJSON.String != "" {
		if err := json.Unmarshal([]byte(statusJSON.String), &c.Status); err != nil {
			return nil, fmt.Errorf("decoding channel status: %w", err)
		}
	}
	return &c, nil
}

// upsertAttribute inserts or refreshes a raw attribute row keyed by
// (ieee, endpoint, cluster, attribute).
func upsertAttribute(ctx context.Context, tx *sql.Tx, rep Report, zoneJSON string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO attributes (ieee, endpoint_id, cluster, attribute, expire,
			zone_status, data, name, type, value)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ieee, endpoint_id, cluster, attribute) DO UPDATE SET
			expire = excluded.expire, zone_status = excluded.zone_status,
			data = excluded.data, value = excluded.value`,
		rep.IEEE, rep.Endpoint, rep.Cluster, rep.Attribute, rep.Expire,
		zoneJSON, rep.Data, rep.Name, rep.Type, rep.Value)
	if err != nil {
		return fmt.Errorf("upserting attribute: %w", err)
	}
	return nil
}

// nextZoneID returns the smallest positive zone id not yet assigned.
func nextZoneID(ctx context.Context, q querier) (int, error) {
	rows, err := q.QueryContext(ctx, `SELECT zone_id FROM channels ORDER BY zone_id`)
	if err != nil {
		return 0, fmt.Errorf("querying zone ids: %w", err)
	}
	defer rows.Close()

	next := 1
	for rows.Next() {
		var zoneID int
		if err := rows.Scan(&zoneID); err != nil {
			return 0, fmt.Errorf("scanning zone id: %w", err)
		}
		if zoneID == next {
			next++
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterating zone ids: %w", err)
	}
	return next, nil
}

// defaultRoomID returns the id of the provisioning-seeded default
// room, or empty when rooms have not been seeded.
func defaultRoomID(ctx context.Context, q querier) (string, error) {
	var id string
	err := q.QueryRowContext(ctx, `SELECT id FROM rooms WHERE name = 'Mặc định'`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying default room: %w", err)
	}
	return id, nil
}

// reportInt parses a scalar attribute value. Some sensors report
// decimals; they are truncated to the integer the status vector carries.
func reportInt(value string) (int, error) {
	if v, err := strconv.Atoi(value); err == nil {
		return v, nil
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return int(f), nil
	}
	return 0, fmt.Errorf("%w: non-numeric value %q", ErrInvalidReport, value)
}

// scalarKey maps an interpreted scalar cluster to its status key.
func scalarKey(cluster int) string {
	switch cluster {
	case ClusterTemperature:
		return "temperature"
	case ClusterHumidity:
		return "humidity"
	default:
		return "onoff"
	}
}
