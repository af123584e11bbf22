package jobs

import (
	"context"
	"fmt"
	"os"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/rcastellanos/chatrecap/internal/logger"
	"github.com/rcastellanos/chatrecap/internal/transcriber"
)

// idAlphabet keeps job ids short, readable, and filesystem-safe.
const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

const defaultMaxWorkers = 3

// CoordinatorConfig configures the shared directories and concurrency cap.
type CoordinatorConfig struct {
	ProcessingDir string
	OutputDir     string
	MaxWorkers    int
	Language      string
	Images        bool
}

// Coordinator owns the job registry and dispatches jobs across a bounded
// worker pool. The registry map is the only shared mutable structure;
// every access goes through the mutex.
type Coordinator struct {
	mu   sync.Mutex
	jobs map[string]*Job

	cfg         CoordinatorConfig
	transcriber transcriber.Transcriber
	logger      logger.Logger
}

// NewCoordinator creates a Coordinator and ensures its directories exist.
func NewCoordinator(cfg CoordinatorConfig, tr transcriber.Transcriber, log logger.Logger) (*Coordinator, error) {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = defaultMaxWorkers
	}

	for _, dir := range []string{cfg.ProcessingDir, cfg.OutputDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return &Coordinator{
		jobs:        make(map[string]*Job),
		cfg:         cfg,
		transcriber: tr,
		logger:      log,
	}, nil
}

// Submit registers a new job for the archive and returns its id.
func (c *Coordinator) Submit(archivePath, archiveName string) (string, error) {
	id, err := gonanoid.Generate(idAlphabet, 8)
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}

	job := newJob(id, archivePath, archiveName, c.cfg.ProcessingDir, c.cfg.OutputDir,
		c.transcriber, c.cfg.Language, c.cfg.Images, c.logger)

	c.mu.Lock()
	c.jobs[id] = job
	c.mu.Unlock()

	c.logger.Info(context.Background(), "Job %s registered for %s", id, archiveName)
	return id, nil
}

// Status returns a snapshot of one job, or false for an unknown id.
func (c *Coordinator) Status(jobID string) (Snapshot, bool) {
	c.mu.Lock()
	job, ok := c.jobs[jobID]
	c.mu.Unlock()

	if !ok {
		return Snapshot{}, false
	}
	return job.Snapshot(), true
}

// StatusAll returns snapshots for every registered job.
func (c *Coordinator) StatusAll() map[string]Snapshot {
	c.mu.Lock()
	jobs := make([]*Job, 0, len(c.jobs))
	for _, job := range c.jobs {
		jobs = append(jobs, job)
	}
	c.mu.Unlock()

	out := make(map[string]Snapshot, len(jobs))
	for _, job := range jobs {
		out[job.ID()] = job.Snapshot()
	}
	return out
}

// RunAll executes every registered job under the worker pool and returns
// results keyed by job id in completion order. A job that blows up is
// still recorded with a synthesized failure result, never dropped.
func (c *Coordinator) RunAll(ctx context.Context) map[string]Result {
	c.mu.Lock()
	pending := make([]*Job, 0, len(c.jobs))
	for _, job := range c.jobs {
		pending = append(pending, job)
	}
	c.mu.Unlock()

	if len(pending) == 0 {
		c.logger.Warn(ctx, "No jobs to process")
		return map[string]Result{}
	}

	c.logger.Info(ctx, "Processing %d jobs with %d workers", len(pending), c.cfg.MaxWorkers)

	sem := make(chan struct{}, c.cfg.MaxWorkers)
	var wg sync.WaitGroup
	var resultsMu sync.Mutex
	results := make(map[string]Result, len(pending))

	for _, job := range pending {
		wg.Add(1)
		go func(job *Job) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			res := c.runGuarded(ctx, job)

			resultsMu.Lock()
			results[job.ID()] = res
			resultsMu.Unlock()
		}(job)
	}

	wg.Wait()
	c.logger.Info(ctx, "All jobs processed: %d results", len(results))
	return results
}

// RunOne executes a single job synchronously.
func (c *Coordinator) RunOne(ctx context.Context, jobID string) Result {
	c.mu.Lock()
	job, ok := c.jobs[jobID]
	c.mu.Unlock()

	if !ok {
		return Result{JobID: jobID, Success: false, Error: fmt.Sprintf("job %s not found", jobID)}
	}
	return c.runGuarded(ctx, job)
}

// runGuarded converts anything a job run throws into a failure result so
// one job can never take down the dispatch loop or its siblings.
func (c *Coordinator) runGuarded(ctx context.Context, job *Job) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error(ctx, "Job %s panicked: %v", job.ID(), r)
			result = Result{
				JobID:       job.ID(),
				ArchiveName: job.archiveName,
				Success:     false,
				Error:       fmt.Sprintf("unexpected error: %v", r),
			}
		}
	}()

	result = job.Run(ctx)
	if result.Success {
		c.logger.Info(ctx, "Job %s finished successfully", job.ID())
	} else {
		c.logger.Error(ctx, "Job %s failed: %s", job.ID(), result.Error)
	}
	return result
}

// Cancel marks a job cancelled; it succeeds only while the job is pending.
func (c *Coordinator) Cancel(jobID string) bool {
	c.mu.Lock()
	job, ok := c.jobs[jobID]
	c.mu.Unlock()

	if !ok {
		return false
	}
	return job.cancel()
}

// CleanupFinished removes every terminal job from the registry, cleaning
// up its work dir, and returns how many were removed.
func (c *Coordinator) CleanupFinished(ctx context.Context) int {
	c.mu.Lock()
	finished := make([]*Job, 0)
	for id, job := range c.jobs {
		if job.Snapshot().State.Terminal() {
			finished = append(finished, job)
			delete(c.jobs, id)
		}
	}
	c.mu.Unlock()

	for _, job := range finished {
		job.Cleanup(ctx)
	}

	if len(finished) > 0 {
		c.logger.Info(ctx, "Cleaned up %d finished jobs", len(finished))
	}
	return len(finished)
}
