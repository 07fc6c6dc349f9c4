// Package handlers implements the submission gateway endpoints.
package handlers

import (
	"encoding/json"
	"net/http"

	"sona/internal/domain"
	"sona/internal/infra"
	"sona/internal/middleware"
	"sona/internal/notify"
)

// App carries the dependencies shared by all HTTP handlers.
type App struct {
	Jobs   domain.JobRepository
	Hub    *notify.Hub
	Logger infra.Logger
}

func NewApp(jobs domain.JobRepository, hub *notify.Hub, logger infra.Logger) *App {
	return &App{Jobs: jobs, Hub: hub, Logger: logger}
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, label, message string) {
	a.json(w, code, map[string]string{"error": label, "message": message})
}
