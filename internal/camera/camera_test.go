package camera

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE cameras (
			id           TEXT PRIMARY KEY,
			name         TEXT,
			room_id      TEXT,
			camera_ip    TEXT,
			camera_info  TEXT,
			stream_uri   TEXT,
			snapshot_uri TEXT,
			created      INTEGER,
			updated      INTEGER
		);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func TestCameraCRUD(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	cam := &Camera{
		Name:        "Cổng trước",
		RoomID:      "room-1",
		CameraIP:    "192.168.10.23",
		StreamURI:   "rtsp://192.168.10.23:554/stream1",
		SnapshotURI: "http://192.168.10.23/snapshot.jpg",
	}
	if err := repo.Create(ctx, cam); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if cam.ID == "" {
		t.Fatal("Create() did not assign an id")
	}

	got, err := repo.Get(ctx, cam.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Name != cam.Name || got.StreamURI != cam.StreamURI {
		t.Errorf("Get() = %+v", got)
	}

	got.RoomID = "room-2"
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	updated, err := repo.Get(ctx, cam.ID)
	if err != nil {
		t.Fatalf("Get() after update error = %v", err)
	}
	if updated.RoomID != "room-2" {
		t.Errorf("room_id = %s, want room-2", updated.RoomID)
	}

	cams, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(cams) != 1 {
		t.Errorf("List() = %d cameras, want 1", len(cams))
	}

	if err := repo.Delete(ctx, cam.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.Get(ctx, cam.ID); !errors.Is(err, ErrCameraNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrCameraNotFound", err)
	}
	if err := repo.Update(ctx, cam); !errors.Is(err, ErrCameraNotFound) {
		t.Errorf("Update() after delete error = %v, want ErrCameraNotFound", err)
	}
}
