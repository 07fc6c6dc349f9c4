package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"sona/internal/domain"
	"sona/internal/infra"
	"sona/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository on PostgreSQL.
//
// Every mutation bumps updated_at inside the statement itself and is
// followed by a pg_notify so listening API processes can push the change to
// subscribers. The conditional updates (claim, complete, fail) rely on the
// row-level atomicity of a single UPDATE; the repository never does
// read-modify-write.
type JobRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewJobRepository creates a job repository backed by the given executor.
func NewJobRepository(sql infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql}
}

// Create inserts a new job row and fills in the DB-assigned timestamps.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	row := r.sql.QueryRow(ctx, sqlinline.QInsertJob,
		job.ID,
		job.UserID,
		job.Prompt,
		job.Duration,
		job.Quality,
		job.Mode,
		job.Status,
	)
	if err := row.Scan(&job.CreatedAt, &job.UpdatedAt); err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	r.notify(ctx, job.ID)
	return nil
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectJob, jobID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// ListByUser returns the principal's most recent jobs, newest first.
func (r *JobRepositoryPG) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.sql.Query(ctx, sqlinline.QListJobsForUser, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// NextReady returns the oldest claimable job, or domain.ErrNotFound when no
// job is waiting.
func (r *JobRepositoryPG) NextReady(ctx context.Context) (*domain.Job, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectNextReady)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// Claim attempts the ready→processing compare-and-set. A false return with
// nil error means the row's status no longer matched expected: another
// worker won the race.
func (r *JobRepositoryPG) Claim(ctx context.Context, jobID string, expected domain.JobStatus) (bool, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QClaimJob, jobID, expected)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	r.notify(ctx, jobID)
	return true, nil
}

// MarkCompleted records both artifact URLs and stamps completed_at. The
// update only applies while the job is still processing, so a terminal row
// can never regress.
func (r *JobRepositoryPG) MarkCompleted(ctx context.Context, jobID, wavURL, mp3URL string) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QCompleteJob, jobID, wavURL, mp3URL)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("complete job %s: %w", jobID, domain.ErrNotFound)
	}
	r.notify(ctx, jobID)
	return nil
}

// MarkFailed records the terminal failure cause.
func (r *JobRepositoryPG) MarkFailed(ctx context.Context, jobID, errMsg string) error {
	if errMsg == "" {
		errMsg = "unknown error"
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QFailJob, jobID, errMsg)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("fail job %s: %w", jobID, domain.ErrNotFound)
	}
	r.notify(ctx, jobID)
	return nil
}

// notify is best effort: a missed notification only delays subscribers
// until their next poll.
func (r *JobRepositoryPG) notify(ctx context.Context, jobID string) {
	_, _ = r.sql.Exec(ctx, sqlinline.QNotifyJob, jobID)
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	var completedAt *time.Time
	if err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.Prompt,
		&job.Duration,
		&job.Quality,
		&job.Mode,
		&job.Status,
		&job.ErrorMessage,
		&job.ResultURL,
		&job.WavURL,
		&job.MP3URL,
		&job.CreatedAt,
		&job.UpdatedAt,
		&completedAt,
	); err != nil {
		return nil, err
	}
	job.CompletedAt = completedAt
	return &job, nil
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
