// Package worker drives jobs through their lifecycle: it polls for ready
// work, claims it atomically, and executes the generate→process→upload
// pipeline under a fixed concurrency budget.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"sona/internal/audio"
	"sona/internal/domain"
	"sona/internal/infra"
	"sona/internal/providers/stableaudio"
	"sona/internal/storage"
)

// JobStore is the slice of the job repository the scheduler depends on.
type JobStore interface {
	NextReady(ctx context.Context) (*domain.Job, error)
	Claim(ctx context.Context, jobID string, expected domain.JobStatus) (bool, error)
	MarkCompleted(ctx context.Context, jobID, wavURL, mp3URL string) error
	MarkFailed(ctx context.Context, jobID, errMsg string) error
}

// Generator produces audio for a prompt.
type Generator interface {
	Generate(ctx context.Context, req stableaudio.Request) (*stableaudio.Audio, error)
}

// Options wires the scheduler's collaborators and tuning knobs.
type Options struct {
	Store     JobStore
	Generator Generator
	Artifacts storage.Store
	Processor *audio.Processor
	Logger    infra.Logger

	MaxConcurrentJobs int
	PollInterval      time.Duration
	JobTimeout        time.Duration
	PathPrefix        string
	ShutdownGrace     time.Duration
}

// Scheduler owns the polling loop and the admission semaphore. There are no
// ambient globals: the running flag and slot pool live here, and all
// cross-worker coordination happens through the store's compare-and-set.
type Scheduler struct {
	store     JobStore
	generator Generator
	artifacts storage.Store
	processor *audio.Processor
	logger    infra.Logger

	pollInterval time.Duration
	jobTimeout   time.Duration
	pathPrefix   string
	grace        time.Duration

	running atomic.Bool
	slots   *semaphore.Weighted
	wg      sync.WaitGroup
}

func New(opts Options) (*Scheduler, error) {
	if opts.Store == nil {
		return nil, errors.New("worker: store is required")
	}
	if opts.Generator == nil {
		return nil, errors.New("worker: generator is required")
	}
	if opts.Artifacts == nil {
		return nil, errors.New("worker: artifact store is required")
	}
	if opts.Processor == nil {
		return nil, errors.New("worker: audio processor is required")
	}
	if opts.MaxConcurrentJobs < 1 {
		opts.MaxConcurrentJobs = 2
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 5 * time.Minute
	}
	if opts.PathPrefix == "" {
		opts.PathPrefix = "generated"
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = 5 * time.Second
	}

	return &Scheduler{
		store:        opts.Store,
		generator:    opts.Generator,
		artifacts:    opts.Artifacts,
		processor:    opts.Processor,
		logger:       opts.Logger,
		pollInterval: opts.PollInterval,
		jobTimeout:   opts.JobTimeout,
		pathPrefix:   opts.PathPrefix,
		grace:        opts.ShutdownGrace,
		slots:        semaphore.NewWeighted(int64(opts.MaxConcurrentJobs)),
	}, nil
}

// Running reports whether the polling loop is active.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Run polls until ctx is cancelled. Each tick claims at most one job and
// hands it to an execution slot; a lost claim race yields nothing and the
// loop simply sleeps until the next tick. Cancellation stops polling and
// waits up to the shutdown grace period for in-flight jobs.
func (s *Scheduler) Run(ctx context.Context) error {
	s.running.Store(true)
	defer s.running.Store(false)

	s.logger.Info().
		Dur("poll_interval", s.pollInterval).
		Msg("worker: started")

	for {
		select {
		case <-ctx.Done():
			return s.drain()
		default:
		}

		if err := s.tick(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("worker: poll failed")
		}

		select {
		case <-ctx.Done():
			return s.drain()
		case <-time.After(s.pollInterval):
		}
	}
}

// tick reads the oldest ready job and tries to claim it with the status
// observed at read time. Claim races are not errors.
func (s *Scheduler) tick(ctx context.Context) error {
	job, err := s.store.NextReady(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}

	claimed, err := s.store.Claim(ctx, job.ID, job.Status)
	if err != nil {
		return err
	}
	if !claimed {
		s.logger.Debug().Str("job_id", job.ID).Msg("worker: lost claim race")
		return nil
	}
	job.Status = domain.JobStatusProcessing

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		// Admission, not polling, enforces the concurrency bound. The
		// slot wait deliberately ignores loop cancellation so claimed
		// jobs still run during shutdown.
		if err := s.slots.Acquire(context.Background(), 1); err != nil {
			return
		}
		defer s.slots.Release(1)
		s.process(job)
	}()
	return nil
}

func (s *Scheduler) drain() error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info().Msg("worker: stopped")
	case <-time.After(s.grace):
		s.logger.Warn().Dur("grace", s.grace).Msg("worker: grace period expired with jobs in flight")
	}
	return nil
}

// process runs one claimed job to a terminal state. Any error, including a
// panic, becomes a failed transition; nothing propagates to the loop.
func (s *Scheduler) process(job *domain.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
	defer cancel()

	start := time.Now()
	s.logger.Info().
		Str("job_id", job.ID).
		Int("duration", job.Duration).
		Str("quality", string(job.Quality)).
		Msg("worker: processing job")

	defer func() {
		if r := recover(); r != nil {
			s.fail(job.ID, fmt.Sprintf("panic while processing job: %v", r))
		}
	}()

	generated, err := s.generator.Generate(ctx, stableaudio.Request{
		Prompt:   job.Prompt,
		Duration: job.Duration,
		Quality:  job.Quality,
	})
	if err != nil {
		s.fail(job.ID, fmt.Sprintf("audio generation failed: %v", err))
		return
	}

	files, err := s.processor.Process(generated.Data, generated.Format)
	if err != nil {
		s.fail(job.ID, fmt.Sprintf("audio processing failed: %v", err))
		return
	}

	timestamp := time.Now().UnixMilli()
	wavKey := fmt.Sprintf("%s/%s_%d.wav", s.pathPrefix, job.ID, timestamp)
	mp3Key := fmt.Sprintf("%s/%s_%d.mp3", s.pathPrefix, job.ID, timestamp)

	wavURL, err := s.artifacts.Put(ctx, wavKey, files.WAV, "audio/wav")
	if err != nil {
		s.fail(job.ID, fmt.Sprintf("upload wav artifact: %v", err))
		return
	}
	mp3URL, err := s.artifacts.Put(ctx, mp3Key, files.MP3, "audio/mpeg")
	if err != nil {
		s.fail(job.ID, fmt.Sprintf("upload mp3 artifact: %v", err))
		return
	}

	if err := s.store.MarkCompleted(ctx, job.ID, wavURL, mp3URL); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("worker: record completion failed")
		s.fail(job.ID, fmt.Sprintf("record completion: %v", err))
		return
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Dur("took", time.Since(start)).
		Str("wav_url", wavURL).
		Str("mp3_url", mp3URL).
		Msg("worker: job completed")
}

// fail records the terminal failure with its own deadline; the per-job
// context may already be expired by the time we get here.
func (s *Scheduler) fail(jobID, cause string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.logger.Error().Str("job_id", jobID).Str("cause", cause).Msg("worker: job failed")
	if err := s.store.MarkFailed(ctx, jobID, cause); err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("worker: record failure failed")
	}
}
