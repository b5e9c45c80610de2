// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/ecotrace/internal/domain"
)

// Repository defines the interface for persisting users, activity profiles
// and daily snapshots.
type Repository interface {
	// GetUser retrieves a user by their user ID. Returns nil, nil if absent.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// DeleteInactiveUsers removes users not seen within ttl together with
	// their profiles and snapshots, returning the removed user IDs.
	DeleteInactiveUsers(ctx context.Context, ttl time.Duration) ([]string, error)

	// GetActivities retrieves a user's activity profile. Returns nil, nil if
	// the user has not saved one.
	GetActivities(ctx context.Context, userID string) (*domain.ActivityProfile, error)

	// SaveActivities creates or replaces a user's activity profile.
	SaveActivities(ctx context.Context, profile *domain.ActivityProfile) error

	// DeleteActivities removes a user's activity profile. Returns an
	// errdefs.ErrNotFound error if there was none.
	DeleteActivities(ctx context.Context, userID string) error

	// ListProfiles returns every stored activity profile.
	ListProfiles(ctx context.Context) ([]*domain.ActivityProfile, error)

	// UpsertSnapshot records a daily snapshot, replacing one for the same day.
	UpsertSnapshot(ctx context.Context, snapshot *domain.Snapshot) error

	// ListSnapshots returns a user's snapshots on or after sinceDay, oldest first.
	ListSnapshots(ctx context.Context, userID string, sinceDay string) ([]*domain.Snapshot, error)

	// DeleteSnapshotsBefore removes snapshots older than day.
	DeleteSnapshotsBefore(ctx context.Context, day string) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
