package domain

import "time"

// SnapshotDayLayout is the calendar-day format used to key snapshots.
const SnapshotDayLayout = "2006-01-02"

// Snapshot is one recorded daily estimate for a user.
type Snapshot struct {
	UserID    string    `json:"user_id"`
	Day       string    `json:"day"`
	Emissions Emissions `json:"emissions"`
	Total     float64   `json:"total"`
	CreatedAt time.Time `json:"created_at"`
}

// NewSnapshot records e for userID on the calendar day of at (UTC).
func NewSnapshot(userID string, e Emissions, at time.Time) *Snapshot {
	return &Snapshot{
		UserID:    userID,
		Day:       at.UTC().Format(SnapshotDayLayout),
		Emissions: e,
		Total:     e.Total(),
		CreatedAt: at,
	}
}
