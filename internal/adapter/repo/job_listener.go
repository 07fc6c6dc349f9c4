package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"sona/internal/domain"
	"sona/internal/infra"
	"sona/internal/notify"
)

const jobUpdatesChannel = "job_updates"

// JobListener turns Postgres job_updates notifications into hub broadcasts.
// It holds one dedicated connection in LISTEN mode; the payload of each
// notification is the mutated job id, which is re-read through the
// repository so subscribers always see a full, current record.
type JobListener struct {
	pool   *pgxpool.Pool
	jobs   domain.JobRepository
	hub    *notify.Hub
	logger infra.Logger
}

func NewJobListener(pool *pgxpool.Pool, jobs domain.JobRepository, hub *notify.Hub, logger infra.Logger) *JobListener {
	return &JobListener{pool: pool, jobs: jobs, hub: hub, logger: logger}
}

// Run blocks until ctx is cancelled, re-acquiring the listen connection
// after transient failures.
func (l *JobListener) Run(ctx context.Context) error {
	for {
		if err := l.listen(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.logger.Warn().Err(err).Msg("job listener: connection lost, reacquiring")
		}
	}
}

func (l *JobListener) listen(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "listen "+jobUpdatesChannel); err != nil {
		return fmt.Errorf("listen %s: %w", jobUpdatesChannel, err)
	}

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		l.dispatch(ctx, notification.Payload)
	}
}

func (l *JobListener) dispatch(ctx context.Context, jobID string) {
	if jobID == "" {
		return
	}
	job, err := l.jobs.GetByID(ctx, jobID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			l.logger.Warn().Err(err).Str("job_id", jobID).Msg("job listener: reload failed")
		}
		return
	}
	l.hub.Publish(job)
}
