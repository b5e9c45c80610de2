package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/containerd/errdefs"
	_ "modernc.org/sqlite"

	"github.com/ashureev/ecotrace/internal/domain"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Repository = (*SQLiteStore)(nil)

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_users_last_seen ON users(last_seen_at);

	CREATE TABLE IF NOT EXISTS activity_profiles (
		user_id TEXT PRIMARY KEY REFERENCES users(user_id) ON DELETE CASCADE,
		activities_json TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS snapshots (
		user_id TEXT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
		day TEXT NOT NULL,
		transport REAL NOT NULL,
		energy REAL NOT NULL,
		food REAL NOT NULL,
		total REAL NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, day)
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_day ON snapshots(day);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, username, last_seen_at, created_at, updated_at
		FROM users WHERE user_id = ?`

	var user domain.User
	var lastSeen, createdAt, updatedAt int64

	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&user.UserID, &user.Username, &lastSeen, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.LastSeenAt = time.Unix(lastSeen, 0)
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)

	return &user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, username, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		username = excluded.username,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		user.UserID, user.Username, user.LastSeenAt.Unix(),
		user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// UpdateLastSeen updates the last_seen_at timestamp for a user.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	query := `UPDATE users SET last_seen_at = ?, updated_at = ? WHERE user_id = ?`
	result, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "user_id", userID)
	}

	return nil
}

// DeleteInactiveUsers removes users not seen within ttl and returns their
// IDs. Profiles and snapshots go with them through ON DELETE CASCADE.
func (s *SQLiteStore) DeleteInactiveUsers(ctx context.Context, ttl time.Duration) ([]string, error) {
	threshold := time.Now().Add(-ttl).Unix()
	rows, err := s.db.QueryContext(ctx, `DELETE FROM users WHERE last_seen_at < ? RETURNING user_id`, threshold)
	if err != nil {
		return nil, fmt.Errorf("delete inactive users: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close deleted user rows", "error", closeErr)
		}
	}()

	var deleted []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan deleted user: %w", err)
		}
		deleted = append(deleted, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("delete inactive users: %w", err)
	}
	return deleted, nil
}

// GetActivities retrieves a user's activity profile.
func (s *SQLiteStore) GetActivities(ctx context.Context, userID string) (*domain.ActivityProfile, error) {
	query := `SELECT user_id, activities_json, updated_at FROM activity_profiles WHERE user_id = ?`

	var profile domain.ActivityProfile
	var activitiesJSON string
	var updatedAt int64

	err := s.db.QueryRowContext(ctx, query, userID).Scan(&profile.UserID, &activitiesJSON, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan activity profile: %w", err)
	}

	if err := json.Unmarshal([]byte(activitiesJSON), &profile.Activities); err != nil {
		return nil, fmt.Errorf("decode activities for %s: %w", userID, err)
	}
	profile.UpdatedAt = time.Unix(updatedAt, 0)

	return &profile, nil
}

// SaveActivities creates or replaces a user's activity profile.
func (s *SQLiteStore) SaveActivities(ctx context.Context, profile *domain.ActivityProfile) error {
	data, err := json.Marshal(profile.Activities)
	if err != nil {
		return fmt.Errorf("encode activities: %w", err)
	}

	query := `
	INSERT INTO activity_profiles (user_id, activities_json, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		activities_json = excluded.activities_json,
		updated_at = excluded.updated_at`

	if _, err := s.db.ExecContext(ctx, query, profile.UserID, string(data), profile.UpdatedAt.Unix()); err != nil {
		return fmt.Errorf("save activities: %w", err)
	}
	return nil
}

// DeleteActivities removes a user's activity profile.
func (s *SQLiteStore) DeleteActivities(ctx context.Context, userID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM activity_profiles WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("delete activities: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("activity profile for %s: %w", userID, errdefs.ErrNotFound)
	}
	return nil
}

// ListProfiles returns every stored activity profile.
func (s *SQLiteStore) ListProfiles(ctx context.Context) ([]*domain.ActivityProfile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, activities_json, updated_at FROM activity_profiles ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("query activity profiles: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close activity profile rows", "error", closeErr)
		}
	}()

	var profiles []*domain.ActivityProfile
	for rows.Next() {
		var profile domain.ActivityProfile
		var activitiesJSON string
		var updatedAt int64
		if err := rows.Scan(&profile.UserID, &activitiesJSON, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan activity profile row: %w", err)
		}
		if err := json.Unmarshal([]byte(activitiesJSON), &profile.Activities); err != nil {
			slog.Warn("skipping undecodable activity profile", "user_id", profile.UserID, "error", err)
			continue
		}
		profile.UpdatedAt = time.Unix(updatedAt, 0)
		profiles = append(profiles, &profile)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity profiles: %w", err)
	}
	return profiles, nil
}

// UpsertSnapshot records a daily snapshot.
func (s *SQLiteStore) UpsertSnapshot(ctx context.Context, snapshot *domain.Snapshot) error {
	query := `
	INSERT INTO snapshots (user_id, day, transport, energy, food, total, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id, day) DO UPDATE SET
		transport = excluded.transport,
		energy = excluded.energy,
		food = excluded.food,
		total = excluded.total,
		created_at = excluded.created_at`

	_, err := s.db.ExecContext(ctx, query,
		snapshot.UserID, snapshot.Day,
		snapshot.Emissions.Transport, snapshot.Emissions.Energy, snapshot.Emissions.Food,
		snapshot.Total, snapshot.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

// ListSnapshots returns a user's snapshots on or after sinceDay, oldest first.
func (s *SQLiteStore) ListSnapshots(ctx context.Context, userID string, sinceDay string) ([]*domain.Snapshot, error) {
	query := `
		SELECT user_id, day, transport, energy, food, total, created_at
		FROM snapshots WHERE user_id = ? AND day >= ?
		ORDER BY day ASC`

	rows, err := s.db.QueryContext(ctx, query, userID, sinceDay)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close snapshot rows", "error", closeErr)
		}
	}()

	snapshots := []*domain.Snapshot{}
	for rows.Next() {
		var snap domain.Snapshot
		var createdAt int64
		if err := rows.Scan(
			&snap.UserID, &snap.Day,
			&snap.Emissions.Transport, &snap.Emissions.Energy, &snap.Emissions.Food,
			&snap.Total, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		snap.CreatedAt = time.Unix(createdAt, 0)
		snapshots = append(snapshots, &snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return snapshots, nil
}

// DeleteSnapshotsBefore removes snapshots older than day.
func (s *SQLiteStore) DeleteSnapshotsBefore(ctx context.Context, day string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE day < ?`, day)
	if err != nil {
		return 0, fmt.Errorf("delete old snapshots: %w", err)
	}
	return result.RowsAffected()
}
