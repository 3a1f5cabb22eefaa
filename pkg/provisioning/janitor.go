package provisioning

import (
	"context"
	"database/sql"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// Janitor sweeps the invitation ledger on a schedule. Expiry itself is
// derived lazily from timestamps at read time; the janitor only
// soft-deletes invitations that expired long ago and were never
// accepted, keeping the ledger from growing without bound.
type Janitor struct {
	db        *sql.DB
	retention time.Duration
	schedule  string
	metrics   *observability.Metrics
	logger    *observability.Logger
	cron      *cron.Cron
}

// NewJanitor creates a new invitation janitor. schedule is a cron
// expression; retention is how long past expiry an unaccepted
// invitation is kept before removal.
func NewJanitor(db *sql.DB, schedule string, retention time.Duration, metrics *observability.Metrics, logger *observability.Logger) *Janitor {
	return &Janitor{
		db:        db,
		retention: retention,
		schedule:  schedule,
		metrics:   metrics,
		logger:    logger,
	}
}

// Start begins the scheduled sweeps
func (j *Janitor) Start() error {
	j.cron = cron.New()
	_, err := j.cron.AddFunc(j.schedule, func() {
		if _, err := j.Sweep(context.Background()); err != nil {
			j.logger.WithError(err).Error("invitation retention sweep failed")
		}
	})
	if err != nil {
		return err
	}
	j.cron.Start()
	j.logger.WithField("schedule", j.schedule).Info("invitation janitor started")
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish
func (j *Janitor) Stop() {
	if j.cron != nil {
		<-j.cron.Stop().Done()
	}
}

// Sweep soft-deletes unaccepted invitations whose expiry is older than
// the retention window, and reports how many were removed.
func (j *Janitor) Sweep(ctx context.Context) (int64, error) {
	query := `
		UPDATE invitations
		SET deleted_at = $1
		WHERE accepted_at IS NULL
		  AND deleted_at IS NULL
		  AND expires_at < $2
	`

	now := time.Now()
	result, err := j.db.ExecContext(ctx, query, now, now.Add(-j.retention))
	if err != nil {
		return 0, err
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		j.logger.WithField("removed", removed).Info("swept expired invitations")
		if j.metrics != nil {
			j.metrics.InvitationsTotal.WithLabelValues("swept").Add(float64(removed))
		}
	}
	return removed, nil
}
