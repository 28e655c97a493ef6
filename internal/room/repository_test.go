package room

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the rooms and
// floors tables.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE rooms (
			id       TEXT PRIMARY KEY,
			name     TEXT,
			icon     TEXT,
			channels TEXT,
			floor_id TEXT,
			created  INTEGER,
			updated  INTEGER
		);
		CREATE TABLE floors (
			id   TEXT PRIMARY KEY,
			name TEXT
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

func TestRoomCRUD(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	created := &Room{Name: "Phòng khách", Icon: "sofa"}
	if err := repo.Create(ctx, created); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.ID == "" {
		t.Fatal("Create() did not assign an id")
	}

	got, err := repo.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Name != "Phòng khách" || got.Icon != "sofa" {
		t.Errorf("Get() = %+v", got)
	}

	got.Name = "Phòng ngủ"
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	updated, err := repo.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get() after update error = %v", err)
	}
	if updated.Name != "Phòng ngủ" {
		t.Errorf("name = %s, want Phòng ngủ", updated.Name)
	}

	rooms, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(rooms) != 1 {
		t.Errorf("List() = %d rooms, want 1", len(rooms))
	}

	if err := repo.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.Get(ctx, created.ID); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrRoomNotFound", err)
	}
	if err := repo.Delete(ctx, created.ID); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("second Delete() error = %v, want ErrRoomNotFound", err)
	}
}

func TestNameByID(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	rm := &Room{Name: "Sân vườn"}
	if err := repo.Create(ctx, rm); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	name, err := repo.NameByID(ctx, rm.ID)
	if err != nil {
		t.Fatalf("NameByID() error = %v", err)
	}
	if name != "Sân vườn" {
		t.Errorf("NameByID() = %q", name)
	}

	// Unknown and empty ids resolve to no room, not an error.
	for _, id := range []string{"missing", ""} {
		name, err := repo.NameByID(ctx, id)
		if err != nil || name != "" {
			t.Errorf("NameByID(%q) = %q, %v, want empty", id, name, err)
		}
	}
}

func TestDefaultID(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	if _, err := repo.DefaultID(ctx); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("DefaultID() on empty table error = %v, want ErrRoomNotFound", err)
	}

	rm := &Room{Name: DefaultName}
	if err := repo.Create(ctx, rm); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	id, err := repo.DefaultID(ctx)
	if err != nil {
		t.Fatalf("DefaultID() error = %v", err)
	}
	if id != rm.ID {
		t.Errorf("DefaultID() = %s, want %s", id, rm.ID)
	}
}

func TestFloors(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.CreateFloor(ctx, &Floor{Name: "Tầng 1"}); err != nil {
		t.Fatalf("CreateFloor() error = %v", err)
	}
	floors, err := repo.ListFloors(ctx)
	if err != nil {
		t.Fatalf("ListFloors() error = %v", err)
	}
	if len(floors) != 1 || floors[0].Name != "Tầng 1" {
		t.Errorf("ListFloors() = %+v", floors)
	}

	if err := repo.DeleteFloor(ctx, floors[0].ID); err != nil {
		t.Fatalf("DeleteFloor() error = %v", err)
	}
	if err := repo.DeleteFloor(ctx, floors[0].ID); !errors.Is(err, ErrFloorNotFound) {
		t.Errorf("DeleteFloor() error = %v, want ErrFloorNotFound", err)
	}
}
