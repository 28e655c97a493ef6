package alarm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// doorEntry shadows one currently open door. The shadow lives in
// memory only; reminders restart cleanly after a process restart.
type doorEntry struct {
	channelID string
	name      string
	status    int
	updated   int64
	roomID    string
	reminded  bool
}

// ObserveDoor tracks a door channel's state for reminder checks: an
// opening enters the shadow, a closing clears it.
func (e *Engine) ObserveDoor(channelID, name string, open bool, updated int64, roomID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !open {
		delete(e.doors, channelID)
		return
	}
	e.doors[channelID] = &doorEntry{
		channelID: channelID,
		name:      name,
		status:    1,
		updated:   updated,
		roomID:    roomID,
	}
}

// CheckDoorOpen returns the reminders due now: doors enrolled in the
// reminder rule that have stayed open past the threshold, within the
// rule's schedule. Each open interval reminds at most once.
func (e *Engine) CheckDoorOpen(ctx context.Context) ([]Reminder, error) {
	rule, err := e.repo.SystemRule(ctx, TypeDoorReminder)
	if err != nil {
		if errors.Is(err, ErrSystemRuleMissing) {
			return nil, nil
		}
		return nil, err
	}

	schedule, err := e.reminderSchedule(ctx, rule.ID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	if schedule != nil && !schedule.Matches(now) {
		return nil, nil
	}

	enrolled, err := listAlarmModes(ctx, e.db, rule.ID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	threshold := int64(e.opts.DoorReminderThreshold.Seconds())
	var due []Reminder
	for _, entry := range enrolled {
		door, ok := e.doors[entry.ChannelID]
		if !ok || door.reminded {
			continue
		}
		if now.Unix()-door.updated <= threshold {
			continue
		}
		door.reminded = true
		due = append(due, Reminder{
			RuleID:    rule.ID,
			RuleName:  rule.Name,
			ChannelID: door.channelID,
			Name:      door.name,
			Status:    door.status,
			Updated:   door.updated,
			RoomID:    door.roomID,
		})
	}
	return due, nil
}

func (e *Engine) reminderSchedule(ctx context.Context, ruleID string) (*Schedule, error) {
	var timer string
	err := e.db.QueryRowContext(ctx,
		`SELECT timer FROM conditions WHERE id = ?`, ruleID).Scan(&timer)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying reminder timer: %w", err)
	}
	return ParseSchedule(timer)
}
