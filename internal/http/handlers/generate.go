package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"sona/internal/domain"
	"sona/internal/middleware"
)

type generateResponse struct {
	Success bool             `json:"success"`
	JobID   string           `json:"job_id"`
	Status  domain.JobStatus `json:"status"`
	Message string           `json:"message"`
	Job     jobSummary       `json:"job"`
}

// jobSummary is the slice of the record echoed back on submission. Artifact
// fields are omitted on purpose: they do not exist yet.
type jobSummary struct {
	ID        string           `json:"id"`
	Prompt    string           `json:"prompt"`
	Duration  int              `json:"duration"`
	Quality   domain.Quality   `json:"quality"`
	Mode      string           `json:"mode"`
	Status    domain.JobStatus `json:"status"`
	CreatedAt int64            `json:"created_at"`
}

type validationErrorResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Details []string `json:"details"`
}

// Generate accepts a prompt-to-audio request, persists it as a pending job
// and returns immediately. The worker picks the job up asynchronously;
// clients follow progress via the job read endpoints or the event stream.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}

	var input domain.CreateJobInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		a.json(w, http.StatusBadRequest, validationErrorResponse{
			Error:   "Validation failed",
			Message: "request body must be valid JSON",
			Details: []string{"invalid JSON payload"},
		})
		return
	}

	input.Normalize()
	if details := input.Validate(); len(details) > 0 {
		a.json(w, http.StatusBadRequest, validationErrorResponse{
			Error:   "Validation failed",
			Message: "the request contains invalid fields",
			Details: details,
		})
		return
	}

	job := &domain.Job{
		ID:       uuid.NewString(),
		UserID:   userID,
		Prompt:   input.Prompt,
		Duration: *input.Duration,
		Quality:  *input.Quality,
		Mode:     input.Mode,
		Status:   domain.JobStatusPending,
	}
	if err := a.Jobs.Create(r.Context(), job); err != nil {
		a.Logger.Error().Err(err).
			Str("user_id", userID).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Msg("handlers: persist job failed")
		a.error(w, http.StatusInternalServerError, "Internal server error", "failed to queue generation job")
		return
	}

	a.Logger.Info().
		Str("job_id", job.ID).
		Str("user_id", userID).
		Int("duration", job.Duration).
		Msg("handlers: job accepted")

	a.json(w, http.StatusCreated, generateResponse{
		Success: true,
		JobID:   job.ID,
		Status:  job.Status,
		Message: "audio generation job queued, subscribe to job updates for progress",
		Job: jobSummary{
			ID:        job.ID,
			Prompt:    job.Prompt,
			Duration:  job.Duration,
			Quality:   job.Quality,
			Mode:      job.Mode,
			Status:    job.Status,
			CreatedAt: job.CreatedAt.UnixMilli(),
		},
	})
}
