package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"sona/internal/audio"
	"sona/internal/domain"
	"sona/internal/providers/stableaudio"
)

type memStore struct {
	mu    sync.Mutex
	jobs  map[string]*domain.Job
	order []string
}

func newMemStore(jobs ...*domain.Job) *memStore {
	s := &memStore{jobs: map[string]*domain.Job{}}
	for _, j := range jobs {
		s.jobs[j.ID] = j
		s.order = append(s.order, j.ID)
	}
	return s
}

func (s *memStore) NextReady(ctx context.Context) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		if s.jobs[id].Status.IsReady() {
			j := *s.jobs[id]
			return &j, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *memStore) Claim(ctx context.Context, jobID string, expected domain.JobStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok || job.Status != expected {
		return false, nil
	}
	job.Status = domain.JobStatusProcessing
	return true, nil
}

func (s *memStore) MarkCompleted(ctx context.Context, jobID, wavURL, mp3URL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	job.Status = domain.JobStatusCompleted
	job.WavURL = wavURL
	job.MP3URL = mp3URL
	job.ResultURL = mp3URL
	return nil
}

func (s *memStore) MarkFailed(ctx context.Context, jobID, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	job.Status = domain.JobStatusFailed
	job.ErrorMessage = errMsg
	return nil
}

func (s *memStore) snapshot(jobID string) domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.jobs[jobID]
}

func (s *memStore) countStatus(status domain.JobStatus) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, j := range s.jobs {
		if j.Status == status {
			n++
		}
	}
	return n
}

type fakeGenerator struct {
	active   atomic.Int32
	peak     atomic.Int32
	calls    atomic.Int32
	hold     time.Duration
	err      error
	panicMsg string
}

func (g *fakeGenerator) Generate(ctx context.Context, req stableaudio.Request) (*stableaudio.Audio, error) {
	g.calls.Add(1)
	if g.panicMsg != "" {
		panic(g.panicMsg)
	}
	cur := g.active.Add(1)
	for {
		peak := g.peak.Load()
		if cur <= peak || g.peak.CompareAndSwap(peak, cur) {
			break
		}
	}
	if g.hold > 0 {
		time.Sleep(g.hold)
	}
	g.active.Add(-1)
	if g.err != nil {
		return nil, g.err
	}
	return &stableaudio.Audio{Data: []byte("RIFF....WAVE"), Format: "wav"}, nil
}

type putCall struct {
	key         string
	contentType string
	size        int
}

type memArtifacts struct {
	mu   sync.Mutex
	puts []putCall
	err  error
}

func (a *memArtifacts) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return "", a.err
	}
	a.puts = append(a.puts, putCall{key: key, contentType: contentType, size: len(data)})
	return "https://cdn.test/" + key, nil
}

func newTestScheduler(t *testing.T, opts Options) *Scheduler {
	t.Helper()
	logger := zerolog.Nop()
	if opts.Processor == nil {
		opts.Processor = audio.NewProcessor(nil, logger)
	}
	opts.Logger = logger
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Millisecond
	}
	s, err := New(opts)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return s
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}

func pendingJob(id string) *domain.Job {
	return &domain.Job{
		ID:       id,
		UserID:   "user-1",
		Prompt:   "gentle rain on a tin roof",
		Duration: 10,
		Quality:  domain.QualityMedium,
		Mode:     domain.DefaultMode,
		Status:   domain.JobStatusPending,
	}
}

func TestSchedulerNeverExceedsConcurrencyBudget(t *testing.T) {
	store := newMemStore(
		pendingJob("j1"), pendingJob("j2"), pendingJob("j3"),
		pendingJob("j4"), pendingJob("j5"),
	)
	gen := &fakeGenerator{hold: 40 * time.Millisecond}
	artifacts := &memArtifacts{}
	s := newTestScheduler(t, Options{
		Store:             store,
		Generator:         gen,
		Artifacts:         artifacts,
		MaxConcurrentJobs: 2,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()

	waitFor(t, func() bool { return s.Running() })
	waitFor(t, func() bool { return store.countStatus(domain.JobStatusCompleted) == 5 })
	cancel()
	<-done

	if peak := gen.peak.Load(); peak > 2 {
		t.Fatalf("peak concurrent generations = %d, want <= 2", peak)
	}
	if calls := gen.calls.Load(); calls != 5 {
		t.Fatalf("generator calls = %d, want 5", calls)
	}
	if s.Running() {
		t.Fatalf("scheduler still reports running after Run returned")
	}
}

func TestTickCompletesJobWithBothArtifacts(t *testing.T) {
	store := newMemStore(pendingJob("job-1"))
	gen := &fakeGenerator{}
	artifacts := &memArtifacts{}
	s := newTestScheduler(t, Options{
		Store:      store,
		Generator:  gen,
		Artifacts:  artifacts,
		PathPrefix: "generated",
	})

	if err := s.tick(context.Background()); err != nil {
		t.Fatalf("tick error: %v", err)
	}
	waitFor(t, func() bool { return store.snapshot("job-1").Status.IsTerminal() })

	job := store.snapshot("job-1")
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %s, error = %q", job.Status, job.ErrorMessage)
	}
	if job.WavURL == "" || job.MP3URL == "" {
		t.Fatalf("artifact urls missing: wav=%q mp3=%q", job.WavURL, job.MP3URL)
	}
	if job.ResultURL != job.MP3URL {
		t.Fatalf("result url %q does not mirror mp3 url %q", job.ResultURL, job.MP3URL)
	}

	artifacts.mu.Lock()
	defer artifacts.mu.Unlock()
	if len(artifacts.puts) != 2 {
		t.Fatalf("puts = %d, want 2", len(artifacts.puts))
	}
	wav, mp3 := artifacts.puts[0], artifacts.puts[1]
	if !strings.HasPrefix(wav.key, "generated/job-1_") || !strings.HasSuffix(wav.key, ".wav") {
		t.Fatalf("wav key = %q", wav.key)
	}
	if !strings.HasPrefix(mp3.key, "generated/job-1_") || !strings.HasSuffix(mp3.key, ".mp3") {
		t.Fatalf("mp3 key = %q", mp3.key)
	}
	if wav.contentType != "audio/wav" || mp3.contentType != "audio/mpeg" {
		t.Fatalf("content types = %q, %q", wav.contentType, mp3.contentType)
	}
	if strings.TrimSuffix(wav.key, ".wav") != strings.TrimSuffix(mp3.key, ".mp3") {
		t.Fatalf("artifact keys should share a stem: %q vs %q", wav.key, mp3.key)
	}
}

func TestTickRecordsGenerationFailure(t *testing.T) {
	store := newMemStore(pendingJob("job-1"))
	gen := &fakeGenerator{err: fmt.Errorf("%w: 4 attempts exhausted: upstream exploded", domain.ErrProviderFailure)}
	s := newTestScheduler(t, Options{
		Store:     store,
		Generator: gen,
		Artifacts: &memArtifacts{},
	})

	if err := s.tick(context.Background()); err != nil {
		t.Fatalf("tick error: %v", err)
	}
	waitFor(t, func() bool { return store.snapshot("job-1").Status.IsTerminal() })

	job := store.snapshot("job-1")
	if job.Status != domain.JobStatusFailed {
		t.Fatalf("status = %s", job.Status)
	}
	if !strings.Contains(job.ErrorMessage, "audio generation failed") ||
		!strings.Contains(job.ErrorMessage, "upstream exploded") {
		t.Fatalf("error message = %q", job.ErrorMessage)
	}
}

func TestTickRecordsUploadFailure(t *testing.T) {
	store := newMemStore(pendingJob("job-1"))
	s := newTestScheduler(t, Options{
		Store:     store,
		Generator: &fakeGenerator{},
		Artifacts: &memArtifacts{err: errors.New("bucket unreachable")},
	})

	if err := s.tick(context.Background()); err != nil {
		t.Fatalf("tick error: %v", err)
	}
	waitFor(t, func() bool { return store.snapshot("job-1").Status.IsTerminal() })

	job := store.snapshot("job-1")
	if job.Status != domain.JobStatusFailed {
		t.Fatalf("status = %s", job.Status)
	}
	if !strings.Contains(job.ErrorMessage, "upload wav artifact") {
		t.Fatalf("error message = %q", job.ErrorMessage)
	}
}

func TestTickRecoversFromPanic(t *testing.T) {
	store := newMemStore(pendingJob("job-1"))
	s := newTestScheduler(t, Options{
		Store:     store,
		Generator: &fakeGenerator{panicMsg: "nil map write"},
		Artifacts: &memArtifacts{},
	})

	if err := s.tick(context.Background()); err != nil {
		t.Fatalf("tick error: %v", err)
	}
	waitFor(t, func() bool { return store.snapshot("job-1").Status.IsTerminal() })

	job := store.snapshot("job-1")
	if job.Status != domain.JobStatusFailed {
		t.Fatalf("status = %s", job.Status)
	}
	if !strings.Contains(job.ErrorMessage, "panic while processing job") ||
		!strings.Contains(job.ErrorMessage, "nil map write") {
		t.Fatalf("error message = %q", job.ErrorMessage)
	}
}

type racingStore struct {
	*memStore
}

func (s *racingStore) Claim(ctx context.Context, jobID string, expected domain.JobStatus) (bool, error) {
	// Another worker always gets there first.
	return false, nil
}

func TestTickLostClaimIsNotAnError(t *testing.T) {
	store := &racingStore{memStore: newMemStore(pendingJob("job-1"))}
	gen := &fakeGenerator{}
	s := newTestScheduler(t, Options{
		Store:     store,
		Generator: gen,
		Artifacts: &memArtifacts{},
	})

	if err := s.tick(context.Background()); err != nil {
		t.Fatalf("tick error: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if calls := gen.calls.Load(); calls != 0 {
		t.Fatalf("generator called %d times after lost claim", calls)
	}
	if got := store.snapshot("job-1").Status; got != domain.JobStatusPending {
		t.Fatalf("status = %s, want pending", got)
	}
}

func TestTickEmptyQueueIsQuiet(t *testing.T) {
	store := newMemStore()
	s := newTestScheduler(t, Options{
		Store:     store,
		Generator: &fakeGenerator{},
		Artifacts: &memArtifacts{},
	})
	if err := s.tick(context.Background()); err != nil {
		t.Fatalf("tick error on empty queue: %v", err)
	}
}

func TestNewRejectsMissingCollaborators(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatalf("New should reject empty options")
	}
	if _, err := New(Options{Store: newMemStore()}); err == nil {
		t.Fatalf("New should reject missing generator")
	}
}
