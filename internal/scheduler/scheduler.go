// Package scheduler runs the periodic rule checker: one loop that
// fires scheduled scenes at their timer moments and raises reminders
// for doors left open past the threshold.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/dicomiot/dhome-core/internal/alarm"
	"github.com/dicomiot/dhome-core/internal/event"
	"github.com/dicomiot/dhome-core/internal/infrastructure/config"
	"github.com/dicomiot/dhome-core/internal/notification"
	"github.com/dicomiot/dhome-core/internal/room"
	"github.com/dicomiot/dhome-core/internal/user"
)

// RuleRunner executes one rule end to end, hardware and broadcast
// included.
type RuleRunner interface {
	RunRule(ctx context.Context, ruleID string) error
}

// Checker is the periodic loop. It owns no state of its own; every
// tick reads through the engine so restarts pick up where the
// database left off.
type Checker struct {
	engine *alarm.Engine
	runner RuleRunner
	center *notification.Center
	rooms  room.Repository
	users  user.Repository
	events *event.Bus
	log    *slog.Logger

	ruleInterval time.Duration
	doorInterval time.Duration
	now          func() time.Time
}

// New creates a checker from the configured tick intervals (seconds).
func New(engine *alarm.Engine, runner RuleRunner, center *notification.Center,
	rooms room.Repository, users user.Repository, events *event.Bus,
	cfg config.SchedulerConfig, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	ruleInterval := time.Duration(cfg.RuleInterval) * time.Second
	if ruleInterval <= 0 {
		ruleInterval = 10 * time.Second
	}
	doorInterval := time.Duration(cfg.DoorInterval) * time.Second
	if doorInterval <= 0 {
		doorInterval = 10 * time.Second
	}
	return &Checker{
		engine:       engine,
		runner:       runner,
		center:       center,
		rooms:        rooms,
		users:        users,
		events:       events,
		log:          logger,
		ruleInterval: ruleInterval,
		doorInterval: doorInterval,
		now:          time.Now,
	}
}

// Run ticks until the context is cancelled.
func (c *Checker) Run(ctx context.Context) {
	ruleTicker := time.NewTicker(c.ruleInterval)
	defer ruleTicker.Stop()
	doorTicker := time.NewTicker(c.doorInterval)
	defer doorTicker.Stop()

	c.log.Info("rule checker started",
		"rule_interval", c.ruleInterval, "door_interval", c.doorInterval)
	for {
		select {
		case <-ctx.Done():
			c.log.Info("rule checker stopped")
			return
		case <-ruleTicker.C:
			c.checkScenes(ctx)
		case <-doorTicker.C:
			c.checkDoors(ctx)
		}
	}
}

// checkScenes fires every scene whose timer matches the current
// minute. The engine deduplicates per minute, so overlapping ticks
// never double-fire.
func (c *Checker) checkScenes(ctx context.Context) {
	due, err := c.engine.DueScenes(ctx, c.now())
	if err != nil {
		c.log.Error("checking scheduled scenes", "error", err)
		return
	}
	for i := range due {
		rule := &due[i]
		c.log.Info("running scheduled scene", "rule", rule.ID, "name", rule.Name)
		if err := c.runner.RunRule(ctx, rule.ID); err != nil {
			c.log.Error("running scheduled scene", "rule", rule.ID, "error", err)
		}
	}
}

// checkDoors raises a reminder for every door left open past the
// threshold, once per open interval, for every user.
func (c *Checker) checkDoors(ctx context.Context) {
	reminders, err := c.engine.CheckDoorOpen(ctx)
	if err != nil {
		c.log.Error("checking open doors", "error", err)
		return
	}
	for _, reminder := range reminders {
		c.emitReminder(ctx, reminder)
	}
}

func (c *Checker) emitReminder(ctx context.Context, reminder alarm.Reminder) {
	roomName, err := c.rooms.NameByID(ctx, reminder.RoomID)
	if err != nil {
		c.log.Warn("resolving room name", "room", reminder.RoomID, "error", err)
	}
	body := notification.ReminderBody{
		RuleID: reminder.RuleID,
		Type:   alarm.TypeDoorReminder,
		Channel: map[string]any{
			"id":      reminder.ChannelID,
			"name":    reminder.Name,
			"status":  reminder.Status,
			"updated": reminder.Updated,
		},
		RoomName: roomName,
	}

	users, err := c.users.List(ctx)
	if err != nil {
		c.log.Error("listing users for reminder", "error", err)
		return
	}
	for i := range users {
		n, err := c.center.EmitDoorReminder(ctx, users[i].ID, reminder.RuleName, body)
		if err != nil {
			c.log.Error("recording door reminder", "user", users[i].ID, "error", err)
			continue
		}
		c.events.Publish(ctx, event.NotificationAdded{Notification: n})
	}
	c.log.Info("door open reminder", "channel", reminder.ChannelID, "name", reminder.Name)
}
