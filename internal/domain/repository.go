package domain

import "context"

// JobRepository defines persistence for job entities.
//
// Claim is the concurrency foundation: it performs a single atomic
// compare-and-set ("update status iff the current status still equals the
// expected one") and reports whether the transition took effect. All
// cross-worker coordination goes through it; callers never hold locks.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]Job, error)

	// NextReady returns the oldest claimable job, or ErrNotFound when the
	// queue is empty.
	NextReady(ctx context.Context) (*Job, error)

	// Claim transitions jobID from expected to JobStatusProcessing. It
	// returns false with a nil error when another worker won the race or
	// the status changed concurrently.
	Claim(ctx context.Context, jobID string, expected JobStatus) (bool, error)

	// MarkCompleted records both artifact references and the completion
	// timestamp. The legacy result reference mirrors the preview (MP3) URL.
	MarkCompleted(ctx context.Context, jobID, wavURL, mp3URL string) error

	// MarkFailed records a terminal failure with a human-readable cause.
	MarkFailed(ctx context.Context, jobID, errMsg string) error
}
