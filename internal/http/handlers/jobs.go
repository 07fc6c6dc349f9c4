package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"sona/internal/domain"
)

const listJobsLimit = 50

// GetJob returns one job owned by the caller. Jobs belonging to other users
// are reported as not found rather than forbidden.
func (a *App) GetJob(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	jobID := chi.URLParam(r, "id")

	job, err := a.Jobs.GetByID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "Not found", "job not found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("handlers: load job failed")
		a.error(w, http.StatusInternalServerError, "Internal server error", "failed to load job")
		return
	}
	if job.UserID != userID {
		a.error(w, http.StatusNotFound, "Not found", "job not found")
		return
	}
	a.json(w, http.StatusOK, job)
}

// ListJobs returns the caller's most recent jobs, newest first.
func (a *App) ListJobs(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}

	jobs, err := a.Jobs.ListByUser(r.Context(), userID, listJobsLimit)
	if err != nil {
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("handlers: list jobs failed")
		a.error(w, http.StatusInternalServerError, "Internal server error", "failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []domain.Job{}
	}
	a.json(w, http.StatusOK, map[string]any{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// JobEvents streams status updates for one job as server-sent events. The
// stream opens with a snapshot of the current record and closes once the
// job reaches a terminal status.
func (a *App) JobEvents(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	jobID := chi.URLParam(r, "id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		a.error(w, http.StatusInternalServerError, "Internal server error", "streaming unsupported")
		return
	}

	// Subscribe before the snapshot read so a transition in between is not
	// lost; an update for the pre-snapshot state is harmless.
	updates, cancel := a.Hub.Subscribe(jobID)
	defer cancel()

	job, err := a.Jobs.GetByID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "Not found", "job not found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("handlers: load job failed")
		a.error(w, http.StatusInternalServerError, "Internal server error", "failed to load job")
		return
	}
	if job.UserID != userID {
		a.error(w, http.StatusNotFound, "Not found", "job not found")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// The server's write timeout would sever long-lived streams.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
	w.WriteHeader(http.StatusOK)

	writeJobEvent(w, job)
	flusher.Flush()
	if job.Status.IsTerminal() {
		return
	}

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			writeJobEvent(w, update)
			flusher.Flush()
			if update.Status.IsTerminal() {
				return
			}
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

func writeJobEvent(w http.ResponseWriter, job *domain.Job) {
	payload, err := json.Marshal(job)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: status\ndata: %s\n\n", payload)
}
