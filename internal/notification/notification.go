// Package notification is the bounded notification center. Every emit
// prunes the table to its capacity in the same transaction, so the
// store never grows past the newest N entries regardless of crash
// timing.
package notification

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Notification kinds stored in notification.type.
const (
	KindChannel  = 0 // channel status change the user subscribed to
	KindAlarm    = 1 // security event while the alarm is active
	KindRule     = 2 // scene/rule execution
	KindDoorbell = 4 // doorbell ring and door-open reminders
)

// DefaultCapacity is the number of notifications retained.
const DefaultCapacity = 200

// Doorbell notification text.
const (
	doorbellTitle = "Chuông cửa"
	doorbellBody  = "Chuông cửa đang gọi"
)

// Notification is one persisted entry. Body is a JSON document whose
// shape depends on Kind; for doorbell rings it is a plain string.
type Notification struct {
	ID      string `json:"id"`
	UserID  string `json:"user_id"`
	Kind    int    `json:"type"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	Created int64  `json:"created"`
}

// ChannelBody is the body of KindChannel and KindAlarm entries.
type ChannelBody struct {
	ChannelID string `json:"channel_id"`
	Type      int    `json:"type"`
	Status    any    `json:"status"`
	RoomName  string `json:"room_name"`
}

// RuleBody is the body of KindRule entries.
type RuleBody struct {
	RuleID   string `json:"rule_id"`
	Type     int    `json:"type"`
	Status   any    `json:"status"`
	RoomName string `json:"room_name"`
}

// ReminderBody is the body of door-open reminder entries.
type ReminderBody struct {
	RuleID   string `json:"rule_id"`
	Type     int    `json:"type"`
	Channel  any    `json:"channel"`
	RoomName string `json:"room_name"`
}

// Center emits and lists notifications over a shared database.
type Center struct {
	db       *sql.DB
	capacity int

	mu  sync.Mutex
	now func() int64
}

// NewCenter creates a notification center. capacity <= 0 selects
// DefaultCapacity.
func NewCenter(db *sql.DB, capacity int) *Center {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Center{
		db:       db,
		capacity: capacity,
		now: func() int64 {
			return time.Now().Unix()
		},
	}
}

// EmitChannel records a subscribed channel status change for a user.
func (c *Center) EmitChannel(ctx context.Context, userID, title string, body ChannelBody) (*Notification, error) {
	return c.emit(ctx, userID, KindChannel, title, body)
}

// EmitAlarm records a security event that fired while the alarm was
// active.
func (c *Center) EmitAlarm(ctx context.Context, userID, title string, body ChannelBody) (*Notification, error) {
	return c.emit(ctx, userID, KindAlarm, title, body)
}

// EmitRule records a scene/rule execution.
func (c *Center) EmitRule(ctx context.Context, userID, title string, body RuleBody) (*Notification, error) {
	return c.emit(ctx, userID, KindRule, title, body)
}

// EmitDoorReminder records a door-left-open reminder.
func (c *Center) EmitDoorReminder(ctx context.Context, userID, title string, body ReminderBody) (*Notification, error) {
	return c.emit(ctx, userID, KindDoorbell, title, body)
}

// EmitDoorbell records a doorbell ring.
func (c *Center) EmitDoorbell(ctx context.Context, userID string) (*Notification, error) {
	return c.emit(ctx, userID, KindDoorbell, doorbellTitle, doorbellBody)
}

func (c *Center) emit(ctx context.Context, userID string, kind int, title string, body any) (*Notification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var bodyJSON string
	switch b := body.(type) {
	case string:
		bodyJSON = b
	default:
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding notification body: %w", err)
		}
		bodyJSON = string(encoded)
	}

	n := &Notification{
		ID:      uuid.NewString(),
		UserID:  userID,
		Kind:    kind,
		Title:   title,
		Body:    bodyJSON,
		Created: c.now(),
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning notification emit: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO notification (id, user_id, type, title, body, created)
		VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.Kind, n.Title, n.Body, n.Created)
	if err != nil {
		return nil, fmt.Errorf("inserting notification: %w", err)
	}

	// Prune in the same transaction: the cap holds even if the process
	// dies right after commit.
	_, err = tx.ExecContext(ctx, `
		DELETE FROM notification WHERE id NOT IN (
			SELECT id FROM notification ORDER BY created DESC, id LIMIT ?)`,
		c.capacity)
	if err != nil {
		return nil, fmt.Errorf("pruning notifications: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing notification emit: %w", err)
	}
	return n, nil
}

// List returns the retained notifications, newest first.
func (c *Center) List(ctx context.Context) ([]Notification, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, user_id, type, title, body, created
		FROM notification ORDER BY created DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Kind, &n.Title, &n.Body, &n.Created); err != nil {
			return nil, fmt.Errorf("scanning notification row: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating notification rows: %w", err)
	}
	return out, nil
}
