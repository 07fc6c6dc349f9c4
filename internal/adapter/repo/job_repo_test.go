package repo

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"sona/internal/domain"
)

type execCall struct {
	query string
	args  []any
}

type stubExecutor struct {
	execTag  pgconn.CommandTag
	execErr  error
	rowScan  func(dest ...any) error
	execLog  []execCall
	queryErr error
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.execLog = append(s.execLog, execCall{query: query, args: args})
	return s.execTag, s.execErr
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	return stubRow{scan: s.rowScan}
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, s.queryErr
}

type stubRow struct {
	scan func(dest ...any) error
}

func (r stubRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

func updateTag(rows string) pgconn.CommandTag {
	return pgconn.NewCommandTag("UPDATE " + rows)
}

func TestClaimWinsRace(t *testing.T) {
	exec := &stubExecutor{execTag: updateTag("1")}
	jobs := NewJobRepository(exec)

	claimed, err := jobs.Claim(context.Background(), "job-1", domain.JobStatusPending)
	if err != nil {
		t.Fatalf("Claim error: %v", err)
	}
	if !claimed {
		t.Fatal("expected claim to succeed")
	}
	// One claim update plus one notify.
	if len(exec.execLog) != 2 {
		t.Fatalf("exec calls = %d, want 2", len(exec.execLog))
	}
	if got := exec.execLog[0].args; len(got) != 2 || got[0] != "job-1" || got[1] != domain.JobStatusPending {
		t.Fatalf("claim args mismatch: %v", got)
	}
	if !strings.Contains(exec.execLog[1].query, "pg_notify") {
		t.Fatalf("second exec should notify, got %q", exec.execLog[1].query)
	}
}

func TestClaimLosesRaceIsNotAnError(t *testing.T) {
	exec := &stubExecutor{execTag: updateTag("0")}
	jobs := NewJobRepository(exec)

	claimed, err := jobs.Claim(context.Background(), "job-1", domain.JobStatusQueued)
	if err != nil {
		t.Fatalf("Claim error: %v", err)
	}
	if claimed {
		t.Fatal("expected claim to report no-op")
	}
	if len(exec.execLog) != 1 {
		t.Fatalf("lost claim must not notify, exec calls = %d", len(exec.execLog))
	}
}

func TestClaimSurfacesStorageError(t *testing.T) {
	exec := &stubExecutor{execErr: errors.New("connection reset")}
	jobs := NewJobRepository(exec)

	if _, err := jobs.Claim(context.Background(), "job-1", domain.JobStatusPending); err == nil {
		t.Fatal("expected storage error")
	}
}

func TestGetByIDNotFound(t *testing.T) {
	jobs := NewJobRepository(&stubExecutor{})

	_, err := jobs.GetByID(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestNextReadyEmptyQueue(t *testing.T) {
	jobs := NewJobRepository(&stubExecutor{})

	_, err := jobs.NextReady(context.Background())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCreateFillsTimestamps(t *testing.T) {
	now := time.Now().UTC()
	exec := &stubExecutor{
		execTag: updateTag("1"),
		rowScan: func(dest ...any) error {
			*dest[0].(*time.Time) = now
			*dest[1].(*time.Time) = now
			return nil
		},
	}
	jobs := NewJobRepository(exec)

	job := &domain.Job{ID: "job-1", UserID: "user-1", Prompt: "warm pad", Status: domain.JobStatusPending}
	if err := jobs.Create(context.Background(), job); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if !job.CreatedAt.Equal(now) || !job.UpdatedAt.Equal(now) {
		t.Fatalf("timestamps not filled: %+v", job)
	}
	if !job.UpdatedAt.Equal(job.CreatedAt) {
		t.Fatal("updated_at must equal created_at on insert")
	}
}

func TestMarkFailedNeverStoresEmptyMessage(t *testing.T) {
	exec := &stubExecutor{execTag: updateTag("1")}
	jobs := NewJobRepository(exec)

	if err := jobs.MarkFailed(context.Background(), "job-1", ""); err != nil {
		t.Fatalf("MarkFailed error: %v", err)
	}
	if got := exec.execLog[0].args[1]; got == "" {
		t.Fatal("empty error message must be replaced")
	}
}

func TestMarkCompletedRequiresProcessingRow(t *testing.T) {
	exec := &stubExecutor{execTag: updateTag("0")}
	jobs := NewJobRepository(exec)

	err := jobs.MarkCompleted(context.Background(), "job-1", "http://x/a.wav", "http://x/a.mp3")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound for non-processing row", err)
	}
}
