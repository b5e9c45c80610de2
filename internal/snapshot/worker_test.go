package snapshot

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/ecotrace/internal/config"
	"github.com/ashureev/ecotrace/internal/domain"
	"github.com/ashureev/ecotrace/internal/store"
)

func newTestWorker(t *testing.T) (*Worker, *store.SQLiteStore) {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "snapshot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	w := NewWorker(repo, config.SnapshotConfig{
		Schedule:          "0 0 * * *",
		Retention:         90 * 24 * time.Hour,
		UserInactivityTTL: 180 * 24 * time.Hour,
	}, config.RetryConfig{DatabaseMaxRetries: 3, DatabaseRetryBaseDelay: time.Millisecond})
	return w, repo
}

func seedUser(t *testing.T, repo store.Repository, userID string, lastSeen time.Time) {
	t.Helper()
	require.NoError(t, repo.UpsertUser(context.Background(), &domain.User{
		UserID:     userID,
		Username:   "anon-" + userID,
		LastSeenAt: lastSeen,
		CreatedAt:  lastSeen,
		UpdatedAt:  lastSeen,
	}))
}

func TestRunOnce(t *testing.T) {
	w, repo := newTestWorker(t)
	ctx := context.Background()
	now := time.Now()

	seedUser(t, repo, "active", now)
	seedUser(t, repo, "empty", now)
	seedUser(t, repo, "gone", now.Add(-200*24*time.Hour))

	require.NoError(t, repo.SaveActivities(ctx, &domain.ActivityProfile{
		UserID:     "active",
		Activities: domain.Activities{DietType: "vegan", FoodWaste: "low", MealRatio: "mostly_home"},
		UpdatedAt:  now,
	}))
	require.NoError(t, repo.SaveActivities(ctx, &domain.ActivityProfile{
		UserID:     "gone",
		Activities: domain.Activities{TransportMethod: "cycling"},
		UpdatedAt:  now,
	}))
	require.NoError(t, repo.UpsertSnapshot(ctx, domain.NewSnapshot("active", domain.Emissions{Food: 9}, now.Add(-120*24*time.Hour))))

	var swept []string
	w.SetUserDeletedCallback(func(userID string) { swept = append(swept, userID) })

	res, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, []string{"gone"}, swept)
	assert.Equal(t, 2, res.Snapshots)
	assert.Zero(t, res.Failed)
	assert.Equal(t, int64(1), res.SnapshotsPruned)
	assert.Equal(t, int64(1), res.UsersDeleted)

	today := now.UTC().Format(domain.SnapshotDayLayout)
	snaps, err := repo.ListSnapshots(ctx, "active", "2000-01-01")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, today, snaps[0].Day)
	assert.InDelta(t, 2.32, snaps[0].Emissions.Food, 1e-9)
	assert.InDelta(t, snaps[0].Emissions.Total(), snaps[0].Total, 1e-9)

	user, err := repo.GetUser(ctx, "gone")
	require.NoError(t, err)
	assert.Nil(t, user)

	snaps, err = repo.ListSnapshots(ctx, "empty", "2000-01-01")
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestRunOnceIsIdempotentPerDay(t *testing.T) {
	w, repo := newTestWorker(t)
	ctx := context.Background()
	now := time.Now()

	seedUser(t, repo, "u1", now)
	require.NoError(t, repo.SaveActivities(ctx, &domain.ActivityProfile{
		UserID:     "u1",
		Activities: domain.Activities{HomeType: "apartment"},
		UpdatedAt:  now,
	}))

	_, err := w.RunOnce(ctx)
	require.NoError(t, err)
	require.NoError(t, repo.SaveActivities(ctx, &domain.ActivityProfile{
		UserID:     "u1",
		Activities: domain.Activities{HomeType: "large_house"},
		UpdatedAt:  now,
	}))
	_, err = w.RunOnce(ctx)
	require.NoError(t, err)

	snaps, err := repo.ListSnapshots(ctx, "u1", "2000-01-01")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.InDelta(t, 40*1.2, snaps[0].Emissions.Energy, 1e-9)
}

func TestStart(t *testing.T) {
	w, _ := newTestWorker(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, w.Start(ctx))

	w.cfg.Schedule = "not a schedule"
	assert.Error(t, w.Start(ctx))
}
