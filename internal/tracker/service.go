// Package tracker ties the estimation engine to stored activity profiles.
// HTTP, websocket and gRPC transports all go through Service.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/containerd/errdefs"

	"github.com/ashureev/ecotrace/internal/config"
	"github.com/ashureev/ecotrace/internal/domain"
	"github.com/ashureev/ecotrace/internal/footprint"
	"github.com/ashureev/ecotrace/internal/observability"
	"github.com/ashureev/ecotrace/internal/shared"
	"github.com/ashureev/ecotrace/internal/store"
)

const (
	DefaultHistoryDays = 30
	MaxHistoryDays     = 365
)

// Publisher receives a user's new dashboard after their profile changes.
// originSession is the session that made the change, or "" for none.
type Publisher interface {
	Publish(userID, originSession string, d *Dashboard)
}

// Dashboard is the estimate view of one activity record.
type Dashboard struct {
	Activities domain.Activities `json:"activities" yaml:"activities"`
	Emissions  domain.Emissions  `json:"emissions" yaml:"emissions"`
	Total      float64           `json:"total" yaml:"total"`
	Breakdown  []domain.Slice    `json:"breakdown" yaml:"breakdown"`
	Tips       []domain.Tip      `json:"tips" yaml:"tips"`
	UpdatedAt  *time.Time        `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// Summary is a Dashboard without tips or activities.
type Summary struct {
	Emissions domain.Emissions `json:"emissions" yaml:"emissions"`
	Total     float64          `json:"total" yaml:"total"`
	Breakdown []domain.Slice   `json:"breakdown" yaml:"breakdown"`
}

// Summary drops the tips and activities of d.
func (d *Dashboard) Summary() Summary {
	return Summary{Emissions: d.Emissions, Total: d.Total, Breakdown: d.Breakdown}
}

// Insights is the trend view of one activity record.
type Insights struct {
	Emissions domain.Emissions         `json:"emissions" yaml:"emissions"`
	Total     float64                  `json:"total" yaml:"total"`
	Breakdown []domain.Slice           `json:"breakdown" yaml:"breakdown"`
	Week      []domain.WeeklyDataPoint `json:"week" yaml:"week"`
}

// Service computes estimates and manages activity profiles.
type Service struct {
	repo      store.Repository
	engine    *footprint.Engine
	publisher Publisher
	retry     config.RetryConfig
	now       func() time.Time
}

// NewService creates a tracker service. engine may be nil to use the
// default engine.
func NewService(repo store.Repository, engine *footprint.Engine, retry config.RetryConfig) *Service {
	if engine == nil {
		engine = footprint.NewEngine(nil)
	}
	return &Service{
		repo:   repo,
		engine: engine,
		retry:  retry,
		now:    time.Now,
	}
}

// SetPublisher sets the receiver of profile change notifications.
func (s *Service) SetPublisher(p Publisher) {
	s.publisher = p
}

// Estimate computes the dashboard for a without touching storage. source
// labels the caller in metrics.
func (s *Service) Estimate(source string, a domain.Activities) *Dashboard {
	em := s.engine.Calculate(a)
	observability.RecordEstimate(source, em.Total())
	return &Dashboard{
		Activities: a,
		Emissions:  em,
		Total:      em.Total(),
		Breakdown:  em.Breakdown(),
		Tips:       s.engine.GenerateTips(em),
	}
}

// Tips selects tips for em.
func (s *Service) Tips(em domain.Emissions) []domain.Tip {
	return s.engine.GenerateTips(em)
}

// Week builds a synthetic week around em.
func (s *Service) Week(em domain.Emissions) []domain.WeeklyDataPoint {
	return s.engine.GenerateHistoricalData(em)
}

// Activities returns the stored record for userID; an empty record and nil
// profile if none was saved.
func (s *Service) Activities(ctx context.Context, userID string) (*domain.ActivityProfile, error) {
	profile, err := s.repo.GetActivities(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load activities: %w", err)
	}
	if profile == nil {
		return &domain.ActivityProfile{UserID: userID}, nil
	}
	return profile, nil
}

// Dashboard estimates the stored record of userID.
func (s *Service) Dashboard(ctx context.Context, source, userID string) (*Dashboard, error) {
	profile, err := s.Activities(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.dashboardFor(source, profile), nil
}

// Insights returns the breakdown and a synthetic week for the stored record.
func (s *Service) Insights(ctx context.Context, userID string) (*Insights, error) {
	profile, err := s.Activities(ctx, userID)
	if err != nil {
		return nil, err
	}
	em := s.engine.Calculate(profile.Activities)
	observability.RecordEstimate("insights", em.Total())
	return &Insights{
		Emissions: em,
		Total:     em.Total(),
		Breakdown: em.Breakdown(),
		Week:      s.engine.GenerateHistoricalData(em),
	}, nil
}

// Replace stores a as the full record of userID.
func (s *Service) Replace(ctx context.Context, userID, sessionID string, a domain.Activities) (*Dashboard, error) {
	return s.save(ctx, userID, sessionID, a)
}

// Patch applies patch to the stored record: set fields overwrite, cleared
// fields are reset.
func (s *Service) Patch(ctx context.Context, userID, sessionID string, patch domain.ActivityPatch) (*Dashboard, error) {
	if patch.IsEmpty() {
		return nil, fmt.Errorf("patch sets no fields: %w", errdefs.ErrInvalidArgument)
	}
	current, err := s.Activities(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.save(ctx, userID, sessionID, current.Activities.Apply(patch))
}

// Clear deletes the stored record of userID.
func (s *Service) Clear(ctx context.Context, userID, sessionID string) error {
	err := shared.RetryOnConflict(ctx, s.retry.DatabaseMaxRetries, s.retry.DatabaseRetryBaseDelay, func() error {
		return s.repo.DeleteActivities(ctx, userID)
	})
	if err != nil {
		return err
	}
	slog.Info("Activities cleared", "user_id", userID)
	s.publish(userID, sessionID, s.dashboardFor("publish", &domain.ActivityProfile{UserID: userID}))
	return nil
}

// History returns the recorded snapshots of the last days days, oldest first.
func (s *Service) History(ctx context.Context, userID string, days int) ([]*domain.Snapshot, error) {
	if days == 0 {
		days = DefaultHistoryDays
	}
	if days < 1 || days > MaxHistoryDays {
		return nil, fmt.Errorf("days must be between 1 and %d: %w", MaxHistoryDays, errdefs.ErrInvalidArgument)
	}
	since := s.now().UTC().AddDate(0, 0, -(days - 1)).Format(domain.SnapshotDayLayout)
	snaps, err := s.repo.ListSnapshots(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return snaps, nil
}

func (s *Service) save(ctx context.Context, userID, sessionID string, a domain.Activities) (*Dashboard, error) {
	if unknown := domain.UnknownOptions(a); len(unknown) > 0 {
		slog.Warn("Saving unlisted activity options", "user_id", userID, "fields", unknown)
	}
	profile := &domain.ActivityProfile{
		UserID:     userID,
		Activities: a,
		UpdatedAt:  s.now(),
	}
	err := shared.RetryOnConflict(ctx, s.retry.DatabaseMaxRetries, s.retry.DatabaseRetryBaseDelay, func() error {
		return s.repo.SaveActivities(ctx, profile)
	})
	if err != nil {
		return nil, err
	}

	d := s.dashboardFor("save", profile)
	s.publish(userID, sessionID, d)
	return d, nil
}

func (s *Service) dashboardFor(source string, profile *domain.ActivityProfile) *Dashboard {
	d := s.Estimate(source, profile.Activities)
	if !profile.UpdatedAt.IsZero() {
		updated := profile.UpdatedAt
		d.UpdatedAt = &updated
	}
	return d
}

func (s *Service) publish(userID, sessionID string, d *Dashboard) {
	if s.publisher != nil {
		s.publisher.Publish(userID, sessionID, d)
	}
}
