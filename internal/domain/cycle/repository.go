package cycle

import (
	"context"
	"time"
)

// StartSource tells how a period start entered the history.
type StartSource string

const (
	StartFromSetup StartSource = "setup"     // Entered with /setup, replaced by a later setup
	StartConfirmed StartSource = "confirmed" // Confirmed by the user
)

// Repository persists cycle profiles and the recorded period-start history.
type Repository interface {
	GetProfile(ctx context.Context, userID int64) (*Profile, error)
	SaveProfile(ctx context.Context, p *Profile) error // Upsert by UserID
	ListProfiles(ctx context.Context) ([]*Profile, error)

	AppendHistory(ctx context.Context, userID int64, start time.Time) error // No-op if already recorded
	// RecordSetupStart makes start the newest history entry, replacing a start
	// left by an earlier setup that was never confirmed.
	RecordSetupStart(ctx context.Context, userID int64, start time.Time) error
	// GetConfirmedHistory returns up to limit most recent starts, oldest first.
	GetConfirmedHistory(ctx context.Context, userID int64, limit int) ([]time.Time, error)
}
