package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"sona/internal/domain"
	"sona/internal/notify"
)

// fakeJobRepo is an in-memory domain.JobRepository for handler tests.
type fakeJobRepo struct {
	mu        sync.Mutex
	jobs      map[string]*domain.Job
	createErr error
	listErr   error
}

func newFakeJobRepo(jobs ...*domain.Job) *fakeJobRepo {
	r := &fakeJobRepo{jobs: map[string]*domain.Job{}}
	for _, j := range jobs {
		r.jobs[j.ID] = j
	}
	return r
}

func (r *fakeJobRepo) Create(ctx context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now
	copied := *job
	r.jobs[job.ID] = &copied
	return nil
}

func (r *fakeJobRepo) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (r *fakeJobRepo) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []domain.Job
	for _, j := range r.jobs {
		if j.UserID == userID && len(out) < limit {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (r *fakeJobRepo) NextReady(ctx context.Context) (*domain.Job, error) {
	return nil, domain.ErrNotFound
}

func (r *fakeJobRepo) Claim(ctx context.Context, jobID string, expected domain.JobStatus) (bool, error) {
	return false, nil
}

func (r *fakeJobRepo) MarkCompleted(ctx context.Context, jobID, wavURL, mp3URL string) error {
	return nil
}

func (r *fakeJobRepo) MarkFailed(ctx context.Context, jobID, errMsg string) error {
	return nil
}

var _ domain.JobRepository = (*fakeJobRepo)(nil)

func newTestApp(repo *fakeJobRepo) (*App, *notify.Hub) {
	hub := notify.NewHub()
	return NewApp(repo, hub, zerolog.Nop()), hub
}

func newTestRouter(app *App) http.Handler {
	r := chi.NewRouter()
	r.Post("/v1/generate", app.Generate)
	r.Get("/v1/jobs", app.ListJobs)
	r.Get("/v1/jobs/{id}", app.GetJob)
	r.Get("/v1/jobs/{id}/events", app.JobEvents)
	return r
}
