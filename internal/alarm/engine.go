package alarm

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dicomiot/dhome-core/internal/device"
)

// Default hardware parameters for sirens driven by alarm rules.
const (
	DefaultSirenLevel    = 1
	DefaultSirenDuration = 180
)

// DefaultDoorReminderThreshold is how long a door may stay open before
// a reminder fires.
const DefaultDoorReminderThreshold = 160 * time.Second

// Options tunes the engine. Zero values select the defaults.
type Options struct {
	DoorReminderThreshold time.Duration
	SirenDuration         int
	SirenLevel            int
}

// Engine drives the alarm modes. Mode transitions are mutually
// exclusive and committed in a single transaction; the engine also
// owns the in-memory shadow of open doors for reminder checks.
type Engine struct {
	db   *sql.DB
	repo Repository
	opts Options

	mu    sync.Mutex
	doors map[string]*doorEntry
	now   func() time.Time
}

// NewEngine creates the alarm engine.
func NewEngine(db *sql.DB, repo Repository, opts Options) *Engine {
	if opts.DoorReminderThreshold <= 0 {
		opts.DoorReminderThreshold = DefaultDoorReminderThreshold
	}
	if opts.SirenDuration <= 0 {
		opts.SirenDuration = DefaultSirenDuration
	}
	if opts.SirenLevel <= 0 {
		opts.SirenLevel = DefaultSirenLevel
	}
	return &Engine{
		db:    db,
		repo:  repo,
		opts:  opts,
		doors: make(map[string]*doorEntry),
		now:   time.Now,
	}
}

// SetMode activates one alarm mode and deactivates the others in a
// single transaction. Arm and AtHome return the zone commands the
// radio driver must push to the sensors; for Arm every zone is armed
// regardless of its at-home setting.
func (e *Engine) SetMode(ctx context.Context, mode int) ([]ZoneCommand, error) {
	var deactivate [2]int
	switch mode {
	case TypeArm:
		deactivate = [2]int{TypeDisarm, TypeAtHome}
	case TypeDisarm:
		deactivate = [2]int{TypeArm, TypeAtHome}
	case TypeAtHome:
		deactivate = [2]int{TypeArm, TypeDisarm}
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidMode, mode)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning mode change: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	now := e.now().Unix()
	_, err = tx.ExecContext(ctx,
		`UPDATE rules SET status = 0, updated = ? WHERE type IN (?, ?)`,
		now, deactivate[0], deactivate[1])
	if err != nil {
		return nil, fmt.Errorf("deactivating modes: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE rules SET status = 1, updated = ? WHERE type = ?`, now, mode)
	if err != nil {
		return nil, fmt.Errorf("activating mode %d: %w", mode, err)
	}

	var zones []ZoneCommand
	if mode == TypeArm || mode == TypeAtHome {
		zones, err = zoneCommands(ctx, tx, mode == TypeArm)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing mode change: %w", err)
	}
	return zones, nil
}

// zoneCommands reads the zone map of the at-home rule, the rule that
// records every security sensor's per-zone arming preference. When
// armAll is set, zones the user keeps disarmed at home (motion
// sensors) are armed as well.
func zoneCommands(ctx context.Context, tx *sql.Tx, armAll bool) ([]ZoneCommand, error) {
	var atHomeID string
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM rules WHERE type = ? ORDER BY created LIMIT 1`,
		TypeAtHome).Scan(&atHomeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: type %d", ErrSystemRuleMissing, TypeAtHome)
	}
	if err != nil {
		return nil, fmt.Errorf("querying at-home rule: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT channel_id, ieee, zone_status FROM condition_alarm_mode WHERE id = ?`,
		atHomeID)
	if err != nil {
		return nil, fmt.Errorf("querying zone map: %w", err)
	}
	defer rows.Close()

	var zones []ZoneCommand
	for rows.Next() {
		var z ZoneCommand
		if err := rows.Scan(&z.ChannelID, &z.IEEE, &z.ZoneStatus); err != nil {
			return nil, fmt.Errorf("scanning zone entry: %w", err)
		}
		if armAll && z.ZoneStatus == 0 {
			z.ZoneStatus = 1
		}
		zones = append(zones, z)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating zone entries: %w", err)
	}
	return zones, nil
}

// TriggerSOS returns the siren commands of the SOS rule. The alarm
// mode statuses are left untouched: SOS is an immediate action, not a
// standing mode.
func (e *Engine) TriggerSOS(ctx context.Context) ([]SirenCommand, error) {
	sosRule, err := e.repo.SystemRule(ctx, TypeSOS)
	if err != nil {
		return nil, err
	}
	entries, err := listActionChannels(ctx, e.db, sosRule.ID)
	if err != nil {
		return nil, err
	}

	var sirens []SirenCommand
	for _, entry := range entries {
		if entry.ChannelType != device.TypeSiren {
			continue
		}
		cmd := SirenCommand{
			IEEE:     entry.ChannelIEEE,
			Duration: e.opts.SirenDuration,
			Level:    e.opts.SirenLevel,
		}
		if v, ok := entry.ChannelStatus.Get("volume"); ok {
			cmd.Level = v
		}
		if v, ok := entry.ChannelStatus.Get("duration"); ok {
			cmd.Duration = v
		}
		sirens = append(sirens, cmd)
	}
	return sirens, nil
}

// Active reports whether a security mode (Arm or AtHome) is engaged.
func (e *Engine) Active(ctx context.Context) (bool, error) {
	var n int
	err := e.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM rules WHERE type IN (?, ?) AND status = 1`,
		TypeArm, TypeAtHome).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("querying alarm state: %w", err)
	}
	return n > 0, nil
}

// CheckSecureTransition decides whether a zone channel reporting
// clear may propagate while an alarm mode is engaged. The clear is
// held back until every other armed zone of the active rule has also
// cleared, so the rule keeps its armed status for as long as any zone
// is still tripped. The blocking zones are returned either way.
func (e *Engine) CheckSecureTransition(ctx context.Context, channelID string, status device.StatusVector) ([]ZoneCommand, bool, error) {
	var chType int
	err := e.db.QueryRowContext(ctx,
		`SELECT type FROM channels WHERE id = ?`, channelID).Scan(&chType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("querying channel type: %w", err)
	}

	// Only a clearing report can stand a zone down; trips and channels
	// without an alarm-carrying field pass through untouched.
	field := zoneTripField(chType)
	if field == "" {
		return nil, true, nil
	}
	if v, ok := status.Get(field); !ok || v == 1 {
		return nil, true, nil
	}

	var ruleID string
	var ruleType int
	err = e.db.QueryRowContext(ctx,
		`SELECT id, type FROM rules WHERE type IN (?, ?) AND status = 1 ORDER BY created LIMIT 1`,
		TypeArm, TypeAtHome).Scan(&ruleID, &ruleType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("querying active alarm rule: %w", err)
	}

	var bound int
	err = e.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM condition_alarm_mode WHERE id = ? AND channel_id = ?`,
		ruleID, channelID).Scan(&bound)
	if err != nil {
		return nil, false, fmt.Errorf("querying channel binding: %w", err)
	}
	if bound == 0 {
		return nil, true, nil
	}

	blocking, err := e.trippedZones(ctx, ruleID, ruleType, channelID)
	if err != nil {
		return nil, false, err
	}
	return blocking, len(blocking) == 0, nil
}

// trippedZones returns the other zones of the rule whose stored status
// still carries an active trip. Under full arming every zone counts;
// at home only zones armed for at-home mode do.
func (e *Engine) trippedZones(ctx context.Context, ruleID string, ruleType int, skipChannelID string) ([]ZoneCommand, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT m.channel_id, m.ieee, m.zone_status, c.type, c.status
		FROM condition_alarm_mode m JOIN channels c ON c.id = m.channel_id
		WHERE m.id = ? AND m.channel_id != ?`,
		ruleID, skipChannelID)
	if err != nil {
		return nil, fmt.Errorf("querying rule zones: %w", err)
	}
	defer rows.Close()

	var blocking []ZoneCommand
	for rows.Next() {
		var (
			zone       ZoneCommand
			chType     int
			statusJSON sql.NullString
		)
		if err := rows.Scan(&zone.ChannelID, &zone.IEEE, &zone.ZoneStatus, &chType, &statusJSON); err != nil {
			return nil, fmt.Errorf("scanning rule zone: %w", err)
		}
		if ruleType == TypeAtHome && zone.ZoneStatus == 0 {
			continue
		}
		field := zoneTripField(chType)
		if field == "" || !statusJSON.Valid || statusJSON.String == "" {
			continue
		}
		var status device.StatusVector
		if err := json.Unmarshal([]byte(statusJSON.String), &status); err != nil {
			continue
		}
		if v, ok := status.Get(field); ok && v == 1 {
			blocking = append(blocking, zone)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rule zones: %w", err)
	}
	return blocking, nil
}

// zoneTripField names the status field that carries a zone sensor's
// alarm bit, or "" for channel types without one.
func zoneTripField(channelType int) string {
	switch channelType {
	case device.TypeDoor:
		return "closeopen"
	case device.TypePIR, device.TypePIRPet:
		return "present"
	case device.TypeSmoke:
		return "smoke"
	case device.TypeGeneric, device.TypeWaterleak:
		return "onoff"
	}
	return ""
}

// Bind enrols a newly classified security channel into the system
// rules: sensors into the zone maps of Arm and AtHome, remotes into
// the bind lists of Arm, AtHome and SOS, sirens into the action lists
// of the same three. Other channel types are not security-relevant.
func (e *Engine) Bind(ctx context.Context, b device.SecurityBinding) error {
	switch b.ChannelType {
	case device.TypeDoor, device.TypeSmoke, device.TypeWaterleak, device.TypePIRPet:
		return e.bindZone(ctx, b, 1)
	case device.TypePIR:
		// Motion stays disarmed in at-home mode so residents can move
		// around; arming the full system promotes it.
		return e.bindZone(ctx, b, 0)
	case device.TypeRemote:
		return e.bindRemote(ctx, b)
	case device.TypeSiren:
		return e.bindSiren(ctx, b)
	}
	return nil
}

func (e *Engine) bindZone(ctx context.Context, b device.SecurityBinding, zoneStatus int) error {
	for _, ruleType := range []int{TypeArm, TypeAtHome} {
		rule, err := e.repo.SystemRule(ctx, ruleType)
		if err != nil {
			return err
		}
		_, err = e.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO condition_alarm_mode (id, channel_id, ieee, zone_status)
			VALUES (?, ?, ?, ?)`,
			rule.ID, b.ChannelID, b.IEEE, zoneStatus)
		if err != nil {
			return fmt.Errorf("binding zone to rule %s: %w", rule.ID, err)
		}
	}
	return nil
}

func (e *Engine) bindRemote(ctx context.Context, b device.SecurityBinding) error {
	for _, ruleType := range []int{TypeArm, TypeAtHome, TypeSOS} {
		rule, err := e.repo.SystemRule(ctx, ruleType)
		if err != nil {
			return err
		}
		_, err = e.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO conditions_bind_channel (id, channel_id, channel_ieee, channel_type, channel_status)
			VALUES (?, ?, ?, ?, '')`,
			rule.ID, b.ChannelID, b.IEEE, b.ChannelType)
		if err != nil {
			return fmt.Errorf("binding remote to rule %s: %w", rule.ID, err)
		}
	}
	return nil
}

func (e *Engine) bindSiren(ctx context.Context, b device.SecurityBinding) error {
	status := device.StatusVector{
		{Type: "volume", Value: e.opts.SirenLevel},
		{Type: "duration", Value: e.opts.SirenDuration},
	}
	statusJSON, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("encoding siren status: %w", err)
	}
	for _, ruleType := range []int{TypeArm, TypeAtHome, TypeSOS} {
		rule, err := e.repo.SystemRule(ctx, ruleType)
		if err != nil {
			return err
		}
		_, err = e.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO action_channels (id, channel_id, channel_icon, channel_ieee, channel_type, channel_status)
			VALUES (?, ?, '', ?, ?, ?)`,
			rule.ID, b.ChannelID, b.IEEE, b.ChannelType, string(statusJSON))
		if err != nil {
			return fmt.Errorf("binding siren to rule %s: %w", rule.ID, err)
		}
	}
	return nil
}

// SecureCommand maps a bound remote control's status report to the
// alarm rule type it requests, or 0 when the channel is not bound or
// no button is pressed.
func (e *Engine) SecureCommand(ctx context.Context, channelID string, status device.StatusVector) (int, error) {
	var n int
	err := e.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conditions_bind_channel WHERE channel_id = ?`,
		channelID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("querying channel bindings: %w", err)
	}
	if n == 0 {
		return 0, nil
	}

	for _, m := range []struct {
		field    string
		ruleType int
	}{
		{"sos", TypeSOS},
		{"armed", TypeArm},
		{"disarmed", TypeDisarm},
		{"athome", TypeAtHome},
	} {
		if v, ok := status.Get(m.field); ok && v == 1 {
			return m.ruleType, nil
		}
	}
	return 0, nil
}

// Run executes a rule by id: alarm modes switch the mode and return
// the hardware commands, SOS returns the siren commands, scenes and
// reminders have no direct hardware effect.
func (e *Engine) Run(ctx context.Context, ruleID string) (*RunResult, error) {
	rule, err := e.repo.Get(ctx, ruleID)
	if err != nil {
		return nil, err
	}

	result := &RunResult{Rule: rule}
	switch rule.Type {
	case TypeArm, TypeDisarm, TypeAtHome:
		result.Zones, err = e.SetMode(ctx, rule.Type)
	case TypeSOS:
		result.Sirens, err = e.TriggerSOS(ctx)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DueScenes returns the user scenes whose timer fires at now, at most
// once per scene per minute. The dedup survives restarts: executions
// are recorded in rule_execute.
func (e *Engine) DueScenes(ctx context.Context, now time.Time) ([]Rule, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT r.id, r.name, r.status, r.created, r.updated, r.user_id,
			r.homegate_id, r.type, r.favorite, c.timer
		FROM rules r JOIN conditions c ON c.id = r.id
		WHERE r.type = ? AND c.timer != '' AND c.timer != 'null'`,
		TypeScene)
	if err != nil {
		return nil, fmt.Errorf("querying scheduled scenes: %w", err)
	}
	defer rows.Close()

	type candidate struct {
		rule  Rule
		timer string
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		err := rows.Scan(&c.rule.ID, &c.rule.Name, &c.rule.Status, &c.rule.Created,
			&c.rule.Updated, &c.rule.UserID, &c.rule.HomegateID, &c.rule.Type,
			&c.rule.Favorite, &c.timer)
		if err != nil {
			return nil, fmt.Errorf("scanning scheduled scene: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scheduled scenes: %w", err)
	}

	minute := now.Truncate(time.Minute).Unix()
	var due []Rule
	for _, c := range candidates {
		schedule, err := ParseSchedule(c.timer)
		if err != nil || schedule == nil {
			continue
		}
		if schedule.Type != "moment" || !schedule.Matches(now) {
			continue
		}

		executed, err := e.markExecuted(ctx, c.rule.ID, minute)
		if err != nil {
			return nil, err
		}
		if executed {
			due = append(due, c.rule)
		}
	}
	return due, nil
}

// markExecuted records a timer execution for the minute and reports
// whether this call was the first for that minute.
func (e *Engine) markExecuted(ctx context.Context, ruleID string, minute int64) (bool, error) {
	var last int64
	err := e.db.QueryRowContext(ctx,
		`SELECT updated FROM rule_execute WHERE rule_id = ? AND type = 'timer'`,
		ruleID).Scan(&last)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return false, fmt.Errorf("querying rule execution: %w", err)
	case last == minute:
		return false, nil
	}

	_, err = e.db.ExecContext(ctx, `
		INSERT INTO rule_execute (rule_id, type, updated) VALUES (?, 'timer', ?)
		ON CONFLICT(rule_id, type) DO UPDATE SET updated = excluded.updated`,
		ruleID, minute)
	if err != nil {
		return false, fmt.Errorf("recording rule execution: %w", err)
	}
	return true, nil
}
