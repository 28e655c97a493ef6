package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dicomiot/dhome-core/internal/alarm"
	"github.com/dicomiot/dhome-core/internal/event"
	"github.com/dicomiot/dhome-core/internal/homegate"
	"github.com/dicomiot/dhome-core/internal/infrastructure/config"
	"github.com/dicomiot/dhome-core/internal/infrastructure/database"
	"github.com/dicomiot/dhome-core/internal/notification"
	"github.com/dicomiot/dhome-core/internal/room"
	"github.com/dicomiot/dhome-core/internal/user"
	_ "github.com/dicomiot/dhome-core/migrations"
)

type fakeRunner struct {
	mu   sync.Mutex
	runs []string
}

func (r *fakeRunner) RunRule(_ context.Context, ruleID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, ruleID)
	return nil
}

func (r *fakeRunner) ran() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.runs...)
}

func openTestChecker(t *testing.T) (*Checker, *fakeRunner, *database.DB) {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "scheduler.db"),
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

	rules := alarm.NewSQLiteRepository(db.DB)
	engine := alarm.NewEngine(db.DB, rules, alarm.Options{})
	runner := &fakeRunner{}
	checker := New(engine, runner, notification.NewCenter(db.DB, 0),
		room.NewSQLiteRepository(db.DB), user.NewSQLiteRepository(db.DB),
		event.NewBus(nil), config.SchedulerConfig{RuleInterval: 1, DoorInterval: 1}, nil)
	return checker, runner, db
}

func seedScene(t *testing.T, db *database.DB, id, timer string) {
	t.Helper()
	ctx := context.Background()
	_, err := db.ExecContext(ctx, `
		INSERT INTO rules (id, name, status, created, updated, user_id, homegate_id, type, favorite)
		VALUES (?, 'Đi ngủ', 1, 1, 1, 'user-1', 'HG-0001', 0, 0)`, id)
	if err != nil {
		t.Fatalf("seeding rule: %v", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO conditions (id, auto_mode, timer, access_control)
		VALUES (?, '', ?, 'null')`, id, timer)
	if err != nil {
		t.Fatalf("seeding condition: %v", err)
	}
}

func TestCheckScenesRunsDueRules(t *testing.T) {
	checker, runner, db := openTestChecker(t)

	// 2026-01-05 is a Monday.
	at := time.Date(2026, 1, 5, 22, 30, 0, 0, time.UTC)
	checker.now = func() time.Time { return at }

	seedScene(t, db, "scene-due", `{"type":"moment","start":"22:30","repeat":[2]}`)
	seedScene(t, db, "scene-later", `{"type":"moment","start":"23:00"}`)

	checker.checkScenes(context.Background())
	if got := runner.ran(); len(got) != 1 || got[0] != "scene-due" {
		t.Fatalf("ran = %v, want [scene-due]", got)
	}

	// The same minute never fires twice.
	checker.checkScenes(context.Background())
	if got := runner.ran(); len(got) != 1 {
		t.Fatalf("ran = %v after re-check, want one run", got)
	}
}

func TestCheckDoorsEmitsReminders(t *testing.T) {
	checker, _, db := openTestChecker(t)
	ctx := context.Background()

	users := user.NewSQLiteRepository(db.DB)
	for _, id := range []string{"user-1", "user-2"} {
		err := users.Upsert(ctx, &user.User{
			ID: id, Name: "Admin",
			PermissionType: user.PermissionUnrestricted,
			AccessToken:    "tok-" + id,
		})
		if err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}

	reminder, err := alarm.NewSQLiteRepository(db.DB).SystemRule(ctx, alarm.TypeDoorReminder)
	if err != nil {
		t.Fatalf("SystemRule(door reminder) error = %v", err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO condition_alarm_mode (id, channel_id, ieee, zone_status) VALUES (?, ?, ?, 1)`,
		reminder.ID, "ch-door", "00:aa:bb")
	if err != nil {
		t.Fatalf("enrolling door: %v", err)
	}

	var added int
	checker.events.Subscribe(func(_ context.Context, e any) {
		if _, ok := e.(event.NotificationAdded); ok {
			added++
		}
	})

	opened := time.Now().Add(-5 * time.Minute)
	checker.engine.ObserveDoor("ch-door", "Cửa chính", true, opened.Unix(), "")
	checker.checkDoors(ctx)

	if added != 2 {
		t.Fatalf("notification events = %d, want one per user", added)
	}
	list, err := checker.center.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("notifications = %d, want 2", len(list))
	}
	for _, n := range list {
		if n.Kind != notification.KindDoorbell {
			t.Fatalf("kind = %d, want %d", n.Kind, notification.KindDoorbell)
		}
	}

	// A door reported once is reminded once per open interval.
	checker.checkDoors(ctx)
	list, err = checker.center.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("notifications = %d after re-check, want 2", len(list))
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	checker, _, _ := openTestChecker(t)
	checker.ruleInterval = 5 * time.Millisecond
	checker.doorInterval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
