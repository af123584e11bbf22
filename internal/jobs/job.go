// Package jobs runs the end-to-end pipeline for uploaded WhatsApp export
// archives: one Job per archive, coordinated across a bounded worker pool.
package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rcastellanos/chatrecap/internal/logger"
	"github.com/rcastellanos/chatrecap/internal/reconcile"
	"github.com/rcastellanos/chatrecap/internal/transcriber"
	"github.com/rcastellanos/chatrecap/internal/transcript"
)

// State tracks each lifecycle stage of a processing job.
type State string

const (
	StatePending        State = "pending"
	StatePreprocessing  State = "preprocessing"
	StateProcessing     State = "processing"
	StatePostprocessing State = "postprocessing"
	StateCompleted      State = "completed"
	StateFailed         State = "failed"
	StateCancelled      State = "cancelled"
)

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// validTransition enforces the allowed state machine edges.
func validTransition(from, to State) bool {
	switch from {
	case StatePending:
		return to == StatePreprocessing || to == StateCancelled || to == StateFailed
	case StatePreprocessing:
		return to == StateProcessing || to == StateFailed
	case StateProcessing:
		return to == StatePostprocessing || to == StateFailed
	case StatePostprocessing:
		return to == StateCompleted || to == StateFailed
	default:
		return false
	}
}

// Counts aggregates the reconciliation tallies for one job.
type Counts struct {
	Found       int
	Transcribed int
	Inserted    int
}

// Result is the final outcome of one job run. Failures carry a
// human-readable Error instead of a Go error so coordinator callers never
// handle raw exceptions from sibling jobs.
type Result struct {
	JobID       string
	ArchiveName string
	Success     bool
	OutputFile  string
	Counts      Counts
	Error       string
	StartedAt   time.Time
	EndedAt     time.Time
}

// Snapshot is an immutable copy of a job's observable state.
type Snapshot struct {
	ID          string
	ArchiveName string
	State       State
	Progress    float64
	Error       string
	OutputFile  string
	StartedAt   time.Time
	EndedAt     time.Time
}

// Job executes the full pipeline for a single archive: unpack, reconcile,
// finalize. Mutable fields are only written by the job's own run but are
// read concurrently by status queries, hence the mutex.
type Job struct {
	id          string
	archivePath string
	archiveName string

	workDir        string
	mediaDir       string
	tempTranscript string
	finalOutput    string

	transcriber transcriber.Transcriber
	logger      logger.Logger
	language    string
	images      bool

	mu        sync.Mutex
	state     State
	progress  float64
	errMsg    string
	counts    Counts
	startedAt time.Time
	endedAt   time.Time
}

func newJob(id, archivePath, archiveName, processingDir, outputDir string, tr transcriber.Transcriber, language string, images bool, log logger.Logger) *Job {
	stem := strings.TrimSuffix(archiveName, filepath.Ext(archiveName))

	// Work dir and snapshot names embed the job id so two uploads of
	// identically named archives never collide.
	workDir := filepath.Join(processingDir, fmt.Sprintf("%s_%s", stem, id))

	return &Job{
		id:             id,
		archivePath:    archivePath,
		archiveName:    archiveName,
		workDir:        workDir,
		mediaDir:       filepath.Join(workDir, "media"),
		tempTranscript: filepath.Join(outputDir, fmt.Sprintf("%s_%s.txt", stem, id)),
		finalOutput:    filepath.Join(outputDir, stem+".txt"),
		transcriber:    tr,
		logger:         log,
		language:       language,
		images:         images,
		state:          StatePending,
	}
}

// ID returns the job's identifier.
func (j *Job) ID() string {
	return j.id
}

// Snapshot returns a consistent copy of the job's current state.
func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()

	snap := Snapshot{
		ID:          j.id,
		ArchiveName: j.archiveName,
		State:       j.state,
		Progress:    j.progress,
		Error:       j.errMsg,
		StartedAt:   j.startedAt,
		EndedAt:     j.endedAt,
	}
	if j.state == StateCompleted {
		snap.OutputFile = j.finalOutput
	}
	return snap
}

// transition applies a state change, failing loudly on an illegal edge.
func (j *Job) transition(to State) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !validTransition(j.state, to) {
		return fmt.Errorf("invalid transition: %s -> %s", j.state, to)
	}
	j.state = to
	return nil
}

// setProgress raises the progress fraction; it never moves backward.
func (j *Job) setProgress(p float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if p > j.progress {
		j.progress = p
	}
}

// fail marks the job failed with a reason, from any non-terminal state.
func (j *Job) fail(msg string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state.Terminal() {
		return
	}
	j.state = StateFailed
	j.errMsg = msg
	j.endedAt = time.Now()
}

// cancel succeeds only while the job has not started.
func (j *Job) cancel() bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state != StatePending {
		return false
	}
	j.state = StateCancelled
	return true
}

// preprocess extracts the archive into an isolated work dir, locates the
// transcript, renames it to the canonical working name, and copies a
// snapshot to the output area under a collision-proof temporary name.
func (j *Job) preprocess(ctx context.Context) bool {
	if err := j.transition(StatePreprocessing); err != nil {
		j.fail(err.Error())
		return false
	}
	j.setProgress(0.1)
	j.logger.Info(ctx, "Job %s: preprocessing %s", j.id, j.archiveName)

	if err := os.MkdirAll(j.mediaDir, 0755); err != nil {
		j.fail("create work dir: " + logger.FormatError(err))
		return false
	}
	if err := extractArchive(j.archivePath, j.mediaDir); err != nil {
		j.fail("extract archive: " + logger.FormatError(err))
		return false
	}

	transcriptPath, err := findTranscript(j.mediaDir)
	if err != nil {
		j.fail(err.Error())
		return false
	}

	canonical := filepath.Join(j.mediaDir, "chat.txt")
	if transcriptPath != canonical {
		if err := os.Rename(transcriptPath, canonical); err != nil {
			j.fail("rename transcript: " + logger.FormatError(err))
			return false
		}
	}

	if err := copyFile(canonical, j.tempTranscript); err != nil {
		j.fail("copy working transcript: " + logger.FormatError(err))
		return false
	}

	j.setProgress(0.5)
	j.logger.Info(ctx, "Job %s: preprocessing completed", j.id)
	return true
}

// process validates preconditions and runs the reconciliation engine
// against the job's media dir and working transcript snapshot.
func (j *Job) process(ctx context.Context) bool {
	if err := j.transition(StateProcessing); err != nil {
		j.fail(err.Error())
		return false
	}
	j.setProgress(0.6)
	j.logger.Info(ctx, "Job %s: processing media", j.id)

	if _, err := os.Stat(j.mediaDir); err != nil {
		j.fail("media directory missing: " + logger.FormatError(err))
		return false
	}

	store, err := transcript.Load(j.tempTranscript)
	if err != nil {
		j.fail("load working transcript: " + logger.FormatError(err))
		return false
	}

	engine := reconcile.New(j.mediaDir, store, j.transcriber, j.language, j.logger)
	if err := engine.Validate(); err != nil {
		j.fail("validation failed: " + logger.FormatError(err))
		return false
	}
	j.setProgress(0.7)

	result := engine.ProcessAll(ctx, j.images)

	j.mu.Lock()
	j.counts = Counts{
		Found:       result.Audio.TotalFound + result.Images.TotalFound,
		Transcribed: result.Audio.Transcribed,
		Inserted:    result.Audio.Inserted + result.Images.Inserted,
	}
	j.mu.Unlock()
	j.setProgress(0.8)

	if !result.Success {
		msg := result.Audio.Message
		if msg == "" {
			msg = result.Images.Message
		}
		j.fail(fmt.Sprintf("reconciliation failed: %s", msg))
		return false
	}

	j.logger.Info(ctx, "Job %s: processing completed", j.id)
	return true
}

// postprocess promotes the working snapshot to its public output path.
// When a sibling job already claimed the preferred name (two uploads of
// identically named archives), the output falls back to a job-id suffixed
// name so neither job clobbers the other.
func (j *Job) postprocess(ctx context.Context) bool {
	if err := j.transition(StatePostprocessing); err != nil {
		j.fail(err.Error())
		return false
	}
	j.setProgress(0.9)

	final, err := j.claimFinalOutput()
	if err != nil {
		j.fail("claim output path: " + logger.FormatError(err))
		return false
	}
	if err := os.Rename(j.tempTranscript, final); err != nil {
		j.fail("finalize output: " + logger.FormatError(err))
		return false
	}
	j.mu.Lock()
	j.finalOutput = final
	j.state = StateCompleted
	j.progress = 1.0
	j.endedAt = time.Now()
	j.mu.Unlock()

	j.logger.Info(ctx, "Job %s: completed, output %s", j.id, final)
	return true
}

// claimFinalOutput reserves the output path with an exclusive create. The
// first job to claim <stem>.txt keeps it; later claimants get the job-id
// suffixed fallback.
func (j *Job) claimFinalOutput() (string, error) {
	j.mu.Lock()
	preferred := j.finalOutput
	j.mu.Unlock()

	f, err := os.OpenFile(preferred, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err == nil {
		f.Close()
		return preferred, nil
	}
	if !os.IsExist(err) {
		return "", err
	}

	fallback := strings.TrimSuffix(preferred, ".txt") + "_" + j.id + ".txt"
	if fallback == j.tempTranscript {
		// The working snapshot already carries this exact name; renaming
		// onto itself is the claim.
		return fallback, nil
	}
	f, err = os.OpenFile(fallback, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", err
	}
	f.Close()
	return fallback, nil
}

// Run executes the three phases in order, short-circuiting on the first
// failure. Panics are recovered and folded into the failure result so
// nothing escapes to the coordinator.
func (j *Job) Run(ctx context.Context) (result Result) {
	j.mu.Lock()
	j.startedAt = time.Now()
	cancelled := j.state == StateCancelled
	j.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			j.fail(fmt.Sprintf("unexpected error: %v", r))
			result = j.failureResult()
		}
	}()

	if cancelled {
		return j.failureResult()
	}

	if !j.preprocess(ctx) {
		return j.failureResult()
	}
	if !j.process(ctx) {
		return j.failureResult()
	}
	if !j.postprocess(ctx) {
		return j.failureResult()
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	return Result{
		JobID:       j.id,
		ArchiveName: j.archiveName,
		Success:     true,
		OutputFile:  j.finalOutput,
		Counts:      j.counts,
		StartedAt:   j.startedAt,
		EndedAt:     j.endedAt,
	}
}

func (j *Job) failureResult() Result {
	j.mu.Lock()
	defer j.mu.Unlock()

	errMsg := j.errMsg
	if errMsg == "" && j.state == StateCancelled {
		errMsg = "job cancelled"
	}
	return Result{
		JobID:       j.id,
		ArchiveName: j.archiveName,
		Success:     false,
		Counts:      j.counts,
		Error:       errMsg,
		StartedAt:   j.startedAt,
		EndedAt:     j.endedAt,
	}
}

// Cleanup removes the job's work dir, any stray working snapshot, and the
// pre-splice backup the reconciliation pass left beside it. Failures are
// logged, never raised.
func (j *Job) Cleanup(ctx context.Context) {
	if err := os.RemoveAll(j.workDir); err != nil {
		j.logger.Warn(ctx, "Job %s: cleanup work dir: %v", j.id, err)
	}
	if err := os.Remove(j.tempTranscript); err != nil && !os.IsNotExist(err) {
		j.logger.Warn(ctx, "Job %s: cleanup temp transcript: %v", j.id, err)
	}
	backup := strings.TrimSuffix(j.tempTranscript, ".txt") + ".backup"
	if err := os.Remove(backup); err != nil && !os.IsNotExist(err) {
		j.logger.Warn(ctx, "Job %s: cleanup backup: %v", j.id, err)
	}
}
