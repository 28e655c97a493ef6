package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository defines the interface for user persistence operations.
type Repository interface {
	Upsert(ctx context.Context, u *User) error
	Get(ctx context.Context, id string) (*User, error)
	GetByToken(ctx context.Context, token string) (*User, error)
	List(ctx context.Context) ([]User, error)
	Remove(ctx context.Context, id string) error
	TouchLastSeen(ctx context.Context, id string) error

	GrantChannel(ctx context.Context, userID, channelID string) error
	RevokeChannel(ctx context.Context, userID, channelID string) error

	// CanAccess reports whether the user may receive and act on the
	// channel: unrestricted users always, restricted users only with
	// an explicit grant.
	CanAccess(ctx context.Context, userID, channelID string) (bool, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed user repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Upsert inserts a user or, when the id already exists, refreshes its
// name, permission and access token. A returning app re-logging-in
// replaces its previous token.
func (r *SQLiteRepository) Upsert(ctx context.Context, u *User) error {
	now := time.Now().Unix()
	const query = `INSERT INTO users (id, name, password, email, status,
			permission_type, access_token, last_seen, created, updated)
		VALUES (?, ?, '', ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			permission_type = excluded.permission_type,
			access_token = excluded.access_token,
			last_seen = excluded.last_seen,
			updated = excluded.updated`
	_, err := r.db.ExecContext(ctx, query,
		u.ID, u.Name, u.Email, u.Status, u.PermissionType, u.AccessToken,
		now, now, now)
	if err != nil {
		return fmt.Errorf("upserting user %s: %w", u.ID, err)
	}
	return nil
}

const userSelect = `SELECT id, name, email, status, permission_type,
	access_token, last_seen, created, updated FROM users`

// Get returns a single user by ID.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*User, error) {
	row := r.db.QueryRowContext(ctx, userSelect+` WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// GetByToken authenticates an inbound message by its bearer token.
func (r *SQLiteRepository) GetByToken(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, ErrTokenUnknown
	}
	row := r.db.QueryRowContext(ctx, userSelect+` WHERE access_token = ?`, token)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTokenUnknown
	}
	return u, err
}

// List returns all users, the broadcast roster.
func (r *SQLiteRepository) List(ctx context.Context) ([]User, error) {
	rows, err := r.db.QueryContext(ctx, userSelect+` ORDER BY created`)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Status, &u.PermissionType,
			&u.AccessToken, &u.LastSeen, &u.Created, &u.Updated)
		if err != nil {
			return nil, fmt.Errorf("scanning user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating user rows: %w", err)
	}
	return users, nil
}

// Remove deletes a user; channel grants cascade.
func (r *SQLiteRepository) Remove(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting user %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// TouchLastSeen records bus activity for the user.
func (r *SQLiteRepository) TouchLastSeen(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_seen = ? WHERE id = ?`, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("touching user %s: %w", id, err)
	}
	return nil
}

// GrantChannel allows a restricted user to access a channel.
func (r *SQLiteRepository) GrantChannel(ctx context.Context, userID, channelID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO user_access (user_id, channel_id, created) VALUES (?, ?, ?)`,
		userID, channelID, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("granting channel %s to user %s: %w", channelID, userID, err)
	}
	return nil
}

// RevokeChannel removes a channel grant.
func (r *SQLiteRepository) RevokeChannel(ctx context.Context, userID, channelID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM user_access WHERE user_id = ? AND channel_id = ?`, userID, channelID)
	if err != nil {
		return fmt.Errorf("revoking channel %s from user %s: %w", channelID, userID, err)
	}
	return nil
}

// CanAccess reports whether the user may receive and act on the channel.
func (r *SQLiteRepository) CanAccess(ctx context.Context, userID, channelID string) (bool, error) {
	u, err := r.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	if u.PermissionType == PermissionUnrestricted {
		return true, nil
	}
	var n int
	err = r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_access WHERE user_id = ? AND channel_id = ?`,
		userID, channelID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("querying channel grant: %w", err)
	}
	return n > 0, nil
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Status, &u.PermissionType,
		&u.AccessToken, &u.LastSeen, &u.Created, &u.Updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	return &u, nil
}
