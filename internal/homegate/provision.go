package homegate

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dicomiot/dhome-core/internal/alarm"
)

// First-boot defaults for the gateway record.
const (
	defaultIPLocal  = "192.168.10.1"
	defaultIPPublic = "0.0.0.0"
)

// systemRules are the rules every gateway ships with: the five alarm
// rules plus three starter scenes.
var systemRules = []struct {
	name     string
	ruleType int
	status   int
}{
	{"Bật báo động", alarm.TypeArm, 0},
	{"Tắt báo động", alarm.TypeDisarm, 1},
	{"Báo động ở nhà", alarm.TypeAtHome, 0},
	{"Khẩn cấp", alarm.TypeSOS, 0},
	{"Nhắc cửa mở", alarm.TypeDoorReminder, 0},
	{"Về nhà", alarm.TypeScene, 0},
	{"Ra ngoài", alarm.TypeScene, 0},
	{"Đi ngủ", alarm.TypeScene, 0},
}

// defaultRooms are the rooms seeded at first boot; the first one
// receives newly classified channels.
var defaultRooms = []string{
	"Mặc định",
	"Phòng khách",
	"Phòng ngủ",
	"Phòng bếp",
	"Sân vườn",
}

// virtualAccessControl marks a system rule as app-triggerable without
// bound channels.
const virtualAccessControl = `{"virtual":1,"bind_channel_ids":null}`

// Provision creates the gateway record, system rules and default
// rooms on first boot. It is idempotent: a provisioned database is
// left untouched.
func Provision(ctx context.Context, db *sql.DB, identity Identity) error {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM homegate`).Scan(&n); err != nil {
		return fmt.Errorf("checking provisioning state: %w", err)
	}
	if n > 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning provisioning: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	now := time.Now().Unix()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO homegate (id, site, name, token, wan_mac, wwan_mac,
			ip_local, ip_public, model, serial, state, config,
			zig_version, hw_version, sw_version, created, updated,
			last_update, last_seen)
		VALUES (?, ?, ?, ?, '', '', ?, ?, ?, ?, 1, '', '', '', '', ?, ?, ?, ?)`,
		identity.ID, identity.Site, identity.Name, identity.Token,
		defaultIPLocal, defaultIPPublic, identity.Model, identity.Serial,
		now, now, now, now)
	if err != nil {
		return fmt.Errorf("inserting homegate: %w", err)
	}

	for i, r := range systemRules {
		ruleID := uuid.NewString()
		// Stagger created so system-rule lookups are deterministic.
		created := now + int64(i)
		_, err = tx.ExecContext(ctx, `
			INSERT INTO rules (id, name, status, created, updated, user_id,
				homegate_id, type, favorite)
			VALUES (?, ?, ?, ?, ?, '', ?, ?, 0)`,
			ruleID, r.name, r.status, created, created, identity.ID, r.ruleType)
		if err != nil {
			return fmt.Errorf("inserting rule %q: %w", r.name, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO conditions (id, auto_mode, timer, access_control)
			VALUES (?, '', '', ?)`,
			ruleID, virtualAccessControl)
		if err != nil {
			return fmt.Errorf("inserting conditions for %q: %w", r.name, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO actions (id, delay, rules, active_notification)
			VALUES (?, 0, 'null', 1)`,
			ruleID)
		if err != nil {
			return fmt.Errorf("inserting actions for %q: %w", r.name, err)
		}
	}

	for _, name := range defaultRooms {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO rooms (id, name, icon, channels, floor_id, created, updated)
			VALUES (?, ?, '', '', '', ?, ?)`,
			uuid.NewString(), name, now, now)
		if err != nil {
			return fmt.Errorf("inserting room %q: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing provisioning: %w", err)
	}
	return nil
}
