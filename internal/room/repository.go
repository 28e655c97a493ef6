package room

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for room persistence operations.
type Repository interface {
	Create(ctx context.Context, room *Room) error
	List(ctx context.Context) ([]Room, error)
	Get(ctx context.Context, id string) (*Room, error)
	Update(ctx context.Context, room *Room) error
	Delete(ctx context.Context, id string) error

	// NameByID resolves a room name for notification bodies; empty
	// when the channel has no room assigned.
	NameByID(ctx context.Context, id string) (string, error)

	// DefaultID returns the id of the seeded default room.
	DefaultID(ctx context.Context) (string, error)

	CreateFloor(ctx context.Context, floor *Floor) error
	ListFloors(ctx context.Context) ([]Floor, error)
	DeleteFloor(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed room repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a new room. A missing id is generated.
func (r *SQLiteRepository) Create(ctx context.Context, room *Room) error {
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	now := time.Now().Unix()
	room.Created = now
	room.Updated = now

	const query = `INSERT INTO rooms (id, name, icon, channels, floor_id, created, updated)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		room.ID, room.Name, room.Icon, room.Channels, room.FloorID, room.Created, room.Updated)
	if err != nil {
		return fmt.Errorf("inserting room %s: %w", room.ID, err)
	}
	return nil
}

// List returns all rooms ordered by creation time.
func (r *SQLiteRepository) List(ctx context.Context) ([]Room, error) {
	const query = `SELECT id, name, icon, channels, floor_id, created, updated
		FROM rooms ORDER BY created`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying rooms: %w", err)
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		rm, err := scanRoomRow(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, *rm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating room rows: %w", err)
	}
	return rooms, nil
}

// Get returns a single room by ID.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Room, error) {
	const query = `SELECT id, name, icon, channels, floor_id, created, updated
		FROM rooms WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)

	var rm Room
	err := row.Scan(&rm.ID, &rm.Name, &rm.Icon, &rm.Channels, &rm.FloorID, &rm.Created, &rm.Updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning room: %w", err)
	}
	return &rm, nil
}

// Update modifies a room's editable fields.
func (r *SQLiteRepository) Update(ctx context.Context, room *Room) error {
	room.Updated = time.Now().Unix()
	const query = `UPDATE rooms SET name = ?, icon = ?, channels = ?, floor_id = ?, updated = ?
		WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query,
		room.Name, room.Icon, room.Channels, room.FloorID, room.Updated, room.ID)
	if err != nil {
		return fmt.Errorf("updating room %s: %w", room.ID, err)
	}
	return requireAffected(res, ErrRoomNotFound)
}

// Delete removes a room. Channels keep their room_id; the application
// treats a dangling room reference as unassigned.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting room %s: %w", id, err)
	}
	return requireAffected(res, ErrRoomNotFound)
}

// NameByID resolves a room name, returning empty for unknown ids.
func (r *SQLiteRepository) NameByID(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", nil
	}
	var name string
	err := r.db.QueryRowContext(ctx, `SELECT name FROM rooms WHERE id = ?`, id).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying room name: %w", err)
	}
	return name, nil
}

// DefaultID returns the id of the seeded default room.
func (r *SQLiteRepository) DefaultID(ctx context.Context) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM rooms WHERE name = ?`, DefaultName).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrRoomNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying default room: %w", err)
	}
	return id, nil
}

// CreateFloor inserts a new floor.
func (r *SQLiteRepository) CreateFloor(ctx context.Context, floor *Floor) error {
	if floor.ID == "" {
		floor.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO floors (id, name) VALUES (?, ?)`, floor.ID, floor.Name)
	if err != nil {
		return fmt.Errorf("inserting floor %s: %w", floor.ID, err)
	}
	return nil
}

// ListFloors returns all floors.
func (r *SQLiteRepository) ListFloors(ctx context.Context) ([]Floor, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM floors ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying floors: %w", err)
	}
	defer rows.Close()

	var floors []Floor
	for rows.Next() {
		var f Floor
		if err := rows.Scan(&f.ID, &f.Name); err != nil {
			return nil, fmt.Errorf("scanning floor row: %w", err)
		}
		floors = append(floors, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating floor rows: %w", err)
	}
	return floors, nil
}

// DeleteFloor removes a floor.
func (r *SQLiteRepository) DeleteFloor(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM floors WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting floor %s: %w", id, err)
	}
	return requireAffected(res, ErrFloorNotFound)
}

// scanRoomRow scans a room from a Rows cursor.
func scanRoomRow(rows *sql.Rows) (*Room, error) {
	var rm Room
	err := rows.Scan(&rm.ID, &rm.Name, &rm.Icon, &rm.Channels, &rm.FloorID, &rm.Created, &rm.Updated)
	if err != nil {
		return nil, fmt.Errorf("scanning room row: %w", err)
	}
	return &rm, nil
}

// requireAffected converts a zero-row update/delete into notFound.
func requireAffected(res sql.Result, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if affected == 0 {
		return notFound
	}
	return nil
}
