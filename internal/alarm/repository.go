package alarm

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for rule persistence operations.
// Mode transitions are handled by the Engine; the repository covers
// CRUD and the read side.
type Repository interface {
	Get(ctx context.Context, id string) (*Rule, error)
	GetView(ctx context.Context, id string) (*RuleView, error)
	List(ctx context.Context) ([]RuleView, error)
	ListSecure(ctx context.Context) ([]RuleView, error)
	SystemRule(ctx context.Context, ruleType int) (*Rule, error)
	CreateScene(ctx context.Context, view *RuleView) error
	UpdateScene(ctx context.Context, view *RuleView) error
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed rule repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const ruleSelect = `SELECT id, name, status, created, updated, user_id,
	homegate_id, type, favorite FROM rules`

// Get returns a single rule by ID.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Rule, error) {
	return getRule(ctx, r.db, id)
}

func getRule(ctx context.Context, q queryRower, id string) (*Rule, error) {
	row := q.QueryRowContext(ctx, ruleSelect+` WHERE id = ?`, id)
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRuleNotFound
	}
	return rule, err
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// GetView returns a rule with its conditions and actions.
func (r *SQLiteRepository) GetView(ctx context.Context, id string) (*RuleView, error) {
	rule, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	view := RuleView{Rule: *rule}
	if err := r.loadDetails(ctx, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// List returns all rules with details, ordered by creation time.
func (r *SQLiteRepository) List(ctx context.Context) ([]RuleView, error) {
	return r.listViews(ctx, ruleSelect+` ORDER BY created`)
}

// ListSecure returns the system alarm rules (types 1-5), the set the
// app renders as the security panel.
func (r *SQLiteRepository) ListSecure(ctx context.Context) ([]RuleView, error) {
	return r.listViews(ctx, ruleSelect+` WHERE type > 0 AND type < 6 ORDER BY type`)
}

func (r *SQLiteRepository) listViews(ctx context.Context, query string, args ...any) ([]RuleView, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying rules: %w", err)
	}
	defer rows.Close()

	var views []RuleView
	for rows.Next() {
		var rule Rule
		err := rows.Scan(&rule.ID, &rule.Name, &rule.Status, &rule.Created,
			&rule.Updated, &rule.UserID, &rule.HomegateID, &rule.Type, &rule.Favorite)
		if err != nil {
			return nil, fmt.Errorf("scanning rule row: %w", err)
		}
		views = append(views, RuleView{Rule: rule})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rule rows: %w", err)
	}

	for i := range views {
		if err := r.loadDetails(ctx, &views[i]); err != nil {
			return nil, err
		}
	}
	return views, nil
}

func (r *SQLiteRepository) loadDetails(ctx context.Context, view *RuleView) error {
	var cond Condition
	err := r.db.QueryRowContext(ctx,
		`SELECT auto_mode, timer, access_control FROM conditions WHERE id = ?`,
		view.ID).Scan(&cond.AutoMode, &cond.Timer, &cond.AccessControl)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("querying conditions: %w", err)
	default:
		view.Condition = &cond
	}

	var action Action
	err = r.db.QueryRowContext(ctx,
		`SELECT delay, rules, active_notification FROM actions WHERE id = ?`,
		view.ID).Scan(&action.Delay, &action.Rules, &action.ActiveNotification)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("querying actions: %w", err)
	default:
		view.Action = &action
	}

	alarmModes, err := listAlarmModes(ctx, r.db, view.ID)
	if err != nil {
		return err
	}
	view.AlarmModes = alarmModes

	bindChannels, err := listBindChannels(ctx, r.db, view.ID)
	if err != nil {
		return err
	}
	view.BindChannels = bindChannels

	actionChannels, err := listActionChannels(ctx, r.db, view.ID)
	if err != nil {
		return err
	}
	view.ActionChannels = actionChannels
	return nil
}

// SystemRule returns the seeded rule of the given alarm type.
func (r *SQLiteRepository) SystemRule(ctx context.Context, ruleType int) (*Rule, error) {
	row := r.db.QueryRowContext(ctx,
		ruleSelect+` WHERE type = ? ORDER BY created LIMIT 1`, ruleType)
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: type %d", ErrSystemRuleMissing, ruleType)
	}
	return rule, err
}

// CreateScene inserts a user-defined scene with its conditions and
// actions in one transaction.
func (r *SQLiteRepository) CreateScene(ctx context.Context, view *RuleView) error {
	if view.ID == "" {
		view.ID = uuid.NewString()
	}
	now := time.Now().Unix()
	view.Created = now
	view.Updated = now
	view.Type = TypeScene

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning scene create: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rules (id, name, status, created, updated, user_id,
			homegate_id, type, favorite)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		view.ID, view.Name, view.Status, view.Created, view.Updated,
		view.UserID, view.HomegateID, view.Type, view.Favorite)
	if err != nil {
		return fmt.Errorf("inserting rule %s: %w", view.ID, err)
	}

	if err := insertDetails(ctx, tx, view); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing scene create: %w", err)
	}
	return nil
}

// UpdateScene replaces a scene's fields, conditions and actions.
func (r *SQLiteRepository) UpdateScene(ctx context.Context, view *RuleView) error {
	view.Updated = time.Now().Unix()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning scene update: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx, `
		UPDATE rules SET name = ?, status = ?, updated = ?, favorite = ?
		WHERE id = ?`,
		view.Name, view.Status, view.Updated, view.Favorite, view.ID)
	if err != nil {
		return fmt.Errorf("updating rule %s: %w", view.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if affected == 0 {
		return ErrRuleNotFound
	}

	for _, table := range []string{"conditions", "condition_alarm_mode", "conditions_bind_channel", "actions", "action_channels"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, view.ID); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}
	if err := insertDetails(ctx, tx, view); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing scene update: %w", err)
	}
	return nil
}

func insertDetails(ctx context.Context, tx *sql.Tx, view *RuleView) error {
	if view.Condition != nil {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO conditions (id, auto_mode, timer, access_control)
			VALUES (?, ?, ?, ?)`,
			view.ID, view.Condition.AutoMode, view.Condition.Timer, view.Condition.AccessControl)
		if err != nil {
			return fmt.Errorf("inserting conditions: %w", err)
		}
	}
	if view.Action != nil {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO actions (id, delay, rules, active_notification)
			VALUES (?, ?, ?, ?)`,
			view.ID, view.Action.Delay, view.Action.Rules, view.Action.ActiveNotification)
		if err != nil {
			return fmt.Errorf("inserting actions: %w", err)
		}
	}
	for _, entry := range view.AlarmModes {
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO condition_alarm_mode (id, channel_id, ieee, zone_status)
			VALUES (?, ?, ?, ?)`,
			view.ID, entry.ChannelID, entry.IEEE, entry.ZoneStatus)
		if err != nil {
			return fmt.Errorf("inserting alarm-mode entry: %w", err)
		}
	}
	for _, entry := range view.BindChannels {
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO conditions_bind_channel (id, channel_id, channel_ieee, channel_type, channel_status)
			VALUES (?, ?, ?, ?, '')`,
			view.ID, entry.ChannelID, entry.ChannelIEEE, entry.ChannelType)
		if err != nil {
			return fmt.Errorf("inserting bind-channel entry: %w", err)
		}
	}
	for _, entry := range view.ActionChannels {
		statusJSON, err := json.Marshal(entry.ChannelStatus)
		if err != nil {
			return fmt.Errorf("encoding action-channel status: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO action_channels (id, channel_id, channel_icon, channel_ieee, channel_type, channel_status)
			VALUES (?, ?, ?, ?, ?, ?)`,
			view.ID, entry.ChannelID, entry.ChannelIcon, entry.ChannelIEEE,
			entry.ChannelType, string(statusJSON))
		if err != nil {
			return fmt.Errorf("inserting action-channel entry: %w", err)
		}
	}
	return nil
}

// Delete removes a rule; its conditions and actions cascade.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting rule %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if affected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

func scanRule(row *sql.Row) (*Rule, error) {
	var rule Rule
	err := row.Scan(&rule.ID, &rule.Name, &rule.Status, &rule.Created,
		&rule.Updated, &rule.UserID, &rule.HomegateID, &rule.Type, &rule.Favorite)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning rule: %w", err)
	}
	return &rule, nil
}

func listAlarmModes(ctx context.Context, db *sql.DB, ruleID string) ([]AlarmModeEntry, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, channel_id, ieee, zone_status FROM condition_alarm_mode WHERE id = ?`, ruleID)
	if err != nil {
		return nil, fmt.Errorf("querying alarm-mode entries: %w", err)
	}
	defer rows.Close()

	var entries []AlarmModeEntry
	for rows.Next() {
		var e AlarmModeEntry
		if err := rows.Scan(&e.RuleID, &e.ChannelID, &e.IEEE, &e.ZoneStatus); err != nil {
			return nil, fmt.Errorf("scanning alarm-mode entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating alarm-mode entries: %w", err)
	}
	return entries, nil
}

func listBindChannels(ctx context.Context, db *sql.DB, ruleID string) ([]BindChannelEntry, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, channel_id, channel_ieee, channel_type FROM conditions_bind_channel WHERE id = ?`, ruleID)
	if err != nil {
		return nil, fmt.Errorf("querying bind-channel entries: %w", err)
	}
	defer rows.Close()

	var entries []BindChannelEntry
	for rows.Next() {
		var e BindChannelEntry
		if err := rows.Scan(&e.RuleID, &e.ChannelID, &e.ChannelIEEE, &e.ChannelType); err != nil {
			return nil, fmt.Errorf("scanning bind-channel entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating bind-channel entries: %w", err)
	}
	return entries, nil
}

func listActionChannels(ctx context.Context, db *sql.DB, ruleID string) ([]ActionChannelEntry, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, channel_id, channel_icon, channel_ieee, channel_type, channel_status
		FROM action_channels WHERE id = ?`, ruleID)
	if err != nil {
		return nil, fmt.Errorf("querying action-channel entries: %w", err)
	}
	defer rows.Close()

	var entries []ActionChannelEntry
	for rows.Next() {
		var e ActionChannelEntry
		var statusJSON string
		if err := rows.Scan(&e.RuleID, &e.ChannelID, &e.ChannelIcon, &e.ChannelIEEE, &e.ChannelType, &statusJSON); err != nil {
			return nil, fmt.Errorf("scanning action-channel entry: %w", err)
		}
		if statusJSON != "" {
			if err := json.Unmarshal([]byte(statusJSON), &e.ChannelStatus); err != nil {
				return nil, fmt.Errorf("decoding action-channel status: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating action-channel entries: %w", err)
	}
	return entries, nil
}
