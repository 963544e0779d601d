package sched

import (
	"context"

	"github.com/rs/zerolog"
)

// AssignPurger is the slice of the license use case this job needs.
type AssignPurger interface {
	PurgeStaleAssigns(ctx context.Context) (int64, error)
}

// AssignPurgeJob drops expired "code being assigned" stagings.
type AssignPurgeJob struct {
	licenses AssignPurger
	log      *zerolog.Logger
}

func NewAssignPurgeJob(licenses AssignPurger, logger *zerolog.Logger) *AssignPurgeJob {
	l := logger.With().Str("component", "AssignPurgeJob").Logger()
	return &AssignPurgeJob{licenses: licenses, log: &l}
}

func (j *AssignPurgeJob) Name() string { return "purge_pending_assigns" }

func (j *AssignPurgeJob) Run(ctx context.Context) error {
	n, err := j.licenses.PurgeStaleAssigns(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		j.log.Info().Int64("count", n).Msg("stale assign stagings purged")
	}
	return nil
}
