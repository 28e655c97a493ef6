package homegate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotProvisioned is returned when the gateway record is absent.
	ErrNotProvisioned = errors.New("homegate not provisioned")

	// ErrInvalidField is returned for an UpdateField outside the
	// editable set.
	ErrInvalidField = errors.New("invalid homegate field")
)

// editableFields are the columns UpdateField may touch.
var editableFields = map[string]bool{
	"name":        true,
	"ip_local":    true,
	"ip_public":   true,
	"state":       true,
	"config":      true,
	"sw_version":  true,
	"zig_version": true,
}

// Repository defines the interface for gateway-record persistence.
type Repository interface {
	Get(ctx context.Context) (*Homegate, error)
	UpdateField(ctx context.Context, field string, value any) error
	TouchLastSeen(ctx context.Context) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed homegate repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Get returns the single gateway record.
func (r *SQLiteRepository) Get(ctx context.Context) (*Homegate, error) {
	const query = `SELECT id, site, name, token, wan_mac, wwan_mac, ip_local,
		ip_public, model, serial, state, config, zig_version, hw_version,
		sw_version, created, updated, last_update, last_seen
		FROM homegate LIMIT 1`
	row := r.db.QueryRowContext(ctx, query)

	var hg Homegate
	var ipLocal, ipPublic, cfg, zig, hw, sw sql.NullString
	var state sql.NullInt64
	err := row.Scan(&hg.ID, &hg.Site, &hg.Name, &hg.Token, &hg.WanMAC, &hg.WwanMAC,
		&ipLocal, &ipPublic, &hg.Model, &hg.Serial, &state, &cfg, &zig, &hw, &sw,
		&hg.Created, &hg.Updated, &hg.LastUpdate, &hg.LastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotProvisioned
	}
	if err != nil {
		return nil, fmt.Errorf("scanning homegate: %w", err)
	}
	hg.IPLocal = ipLocal.String
	hg.IPPublic = ipPublic.String
	hg.Config = cfg.String
	hg.ZigVersion = zig.String
	hg.HWVersion = hw.String
	hg.SWVersion = sw.String
	hg.State = int(state.Int64)
	return &hg, nil
}

// UpdateField sets one editable column of the gateway record.
func (r *SQLiteRepository) UpdateField(ctx context.Context, field string, value any) error {
	if !editableFields[field] {
		return fmt.Errorf("%w: %s", ErrInvalidField, field)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE homegate SET `+field+` = ?, updated = ?`, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("updating homegate %s: %w", field, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotProvisioned
	}
	return nil
}

// TouchLastSeen records cloud-bus liveness.
func (r *SQLiteRepository) TouchLastSeen(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE homegate SET last_seen = ?`, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("touching homegate: %w", err)
	}
	return nil
}
