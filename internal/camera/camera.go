// Package camera persists IP cameras registered with the gateway. The
// gateway only stores their metadata and stream endpoints; video never
// passes through it.
package camera

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrCameraNotFound is returned when a camera ID does not exist.
var ErrCameraNotFound = errors.New("camera not found")

// Camera is one registered IP camera.
type Camera struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	RoomID      string `json:"room_id"`
	CameraIP    string `json:"camera_ip"`
	CameraInfo  string `json:"camera_info"`
	StreamURI   string `json:"stream_uri"`
	SnapshotURI string `json:"snapshot_uri"`
	Created     int64  `json:"created"`
	Updated     int64  `json:"updated"`
}

// Repository defines the interface for camera persistence operations.
type Repository interface {
	Create(ctx context.Context, cam *Camera) error
	List(ctx context.Context) ([]Camera, error)
	Get(ctx context.Context, id string) (*Camera, error)
	Update(ctx context.Context, cam *Camera) error
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed camera repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a new camera. A missing id is generated.
func (r *SQLiteRepository) Create(ctx context.Context, cam *Camera) error {
	if cam.ID == "" {
		cam.ID = uuid.NewString()
	}
	now := time.Now().Unix()
	cam.Created = now
	cam.Updated = now

	const query = `INSERT INTO cameras (id, name, room_id, camera_ip, camera_info,
		stream_uri, snapshot_uri, created, updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		cam.ID, cam.Name, cam.RoomID, cam.CameraIP, cam.CameraInfo,
		cam.StreamURI, cam.SnapshotURI, cam.Created, cam.Updated)
	if err != nil {
		return fmt.Errorf("inserting camera %s: %w", cam.ID, err)
	}
	return nil
}

// List returns all cameras ordered by creation time.
func (r *SQLiteRepository) List(ctx context.Context) ([]Camera, error) {
	const query = `SELECT id, name, room_id, camera_ip, camera_info,
		stream_uri, snapshot_uri, created, updated
		FROM cameras ORDER BY created`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying cameras: %w", err)
	}
	defer rows.Close()

	var cams []Camera
	for rows.Next() {
		var c Camera
		err := rows.Scan(&c.ID, &c.Name, &c.RoomID, &c.CameraIP, &c.CameraInfo,
			&c.StreamURI, &c.SnapshotURI, &c.Created, &c.Updated)
		if err != nil {
			return nil, fmt.Errorf("scanning camera row: %w", err)
		}
		cams = append(cams, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating camera rows: %w", err)
	}
	return cams, nil
}

// Get returns a single camera by ID.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Camera, error) {
	const query = `SELECT id, name, room_id, camera_ip, camera_info,
		stream_uri, snapshot_uri, created, updated
		FROM cameras WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)

	var c Camera
	err := row.Scan(&c.ID, &c.Name, &c.RoomID, &c.CameraIP, &c.CameraInfo,
		&c.StreamURI, &c.SnapshotURI, &c.Created, &c.Updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCameraNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning camera: %w", err)
	}
	return &c, nil
}

// Update modifies a camera's editable fields.
func (r *SQLiteRepository) Update(ctx context.Context, cam *Camera) error {
	cam.Updated = time.Now().Unix()
	const query = `UPDATE cameras SET name = ?, room_id = ?, camera_ip = ?,
		camera_info = ?, stream_uri = ?, snapshot_uri = ?, updated = ?
		WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query,
		cam.Name, cam.RoomID, cam.CameraIP, cam.CameraInfo,
		cam.StreamURI, cam.SnapshotURI, cam.Updated, cam.ID)
	if err != nil {
		return fmt.Errorf("updating camera %s: %w", cam.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if affected == 0 {
		return ErrCameraNotFound
	}
	return nil
}

// Delete removes a camera.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cameras WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting camera %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if affected == 0 {
		return ErrCameraNotFound
	}
	return nil
}
