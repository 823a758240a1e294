// Package cleanup_book runs the deterministic cleanup pipeline for one book
// as a staged, resumable job.
//
// Each stage writes its output text and pending chapters/flags to the blob
// store and records the refs on the job before the next stage starts. The
// final stage creates the revision and attaches chapters and flags in one
// batch, so a revision either has its full chapter set or none.
package cleanup_book

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackzampolin/folio/internal/blob"
	"github.com/jackzampolin/folio/internal/cleanup"
	"github.com/jackzampolin/folio/internal/defra"
	"github.com/jackzampolin/folio/internal/jobs"
	"github.com/jackzampolin/folio/internal/revision"
	"github.com/jackzampolin/folio/internal/types"
)

// JobType is the identifier for this job type.
const JobType = jobs.KindCleanup

var (
	// ErrStageFailure marks a job that stopped in a stage. The job record
	// keeps the failing stage and error; Resume continues from there.
	ErrStageFailure = errors.New("cleanup_book: stage failed")

	// ErrNotResumable is returned for jobs that completed.
	ErrNotResumable = errors.New("cleanup_book: job is not resumable")
)

// StageError is the error a failed stage returns.
type StageError struct {
	Stage jobs.Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("cleanup stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Is reports ErrStageFailure as a match.
func (e *StageError) Is(target error) bool { return target == ErrStageFailure }

// Config configures an Orchestrator.
type Config struct {
	Revisions *revision.Service
	Jobs      *jobs.Manager
	Active    *jobs.ActiveJobs
	Logger    *slog.Logger

	// Defaults returns the cleanup config for jobs started without one.
	// It is called at Start, so config reloads apply to later jobs.
	Defaults func() cleanup.Config
}

// Orchestrator starts, runs and resumes cleanup jobs.
type Orchestrator struct {
	revs     *revision.Service
	blobs    blob.Store
	jobs     *jobs.Manager
	active   *jobs.ActiveJobs
	logger   *slog.Logger
	defaults func() cleanup.Config
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	defaults := cfg.Defaults
	if defaults == nil {
		defaults = cleanup.DefaultConfig
	}
	return &Orchestrator{
		revs:     cfg.Revisions,
		blobs:    cfg.Revisions.Blobs(),
		jobs:     cfg.Jobs,
		active:   cfg.Active,
		logger:   logger,
		defaults: defaults,
	}
}

// Options selects what a job cleans and how.
type Options struct {
	// OriginalID defaults to the book's latest original.
	OriginalID string

	// Config defaults to the orchestrator's current defaults.
	Config *cleanup.Config
}

// Start creates a queued cleanup job for bookID and takes the book's active
// job token. It fails with jobs.ErrJobActive while another job holds it.
func (o *Orchestrator) Start(ctx context.Context, bookID string, opts Options) (*jobs.Record, error) {
	if err := defra.ValidateID(bookID); err != nil {
		return nil, fmt.Errorf("%w: book id: %v", revision.ErrInvalidInput, err)
	}

	var original *revision.Original
	var err error
	if opts.OriginalID != "" {
		original, err = o.revs.Repository().GetOriginal(ctx, opts.OriginalID)
		if err == nil && original.BookID != bookID {
			err = fmt.Errorf("%w: original %s belongs to book %s", revision.ErrInvalidInput, original.ID, original.BookID)
		}
	} else {
		original, err = o.revs.Repository().LatestOriginal(ctx, bookID)
	}
	if err != nil {
		return nil, err
	}

	cfg := o.defaults()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", revision.ErrInvalidInput, err)
	}
	encoded, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cleanup config: %w", err)
	}

	rec, err := o.jobs.Create(ctx, &jobs.Record{
		BookID:     bookID,
		Kind:       JobType,
		OriginalID: original.ID,
		Config:     string(encoded),
	})
	if err != nil {
		return nil, err
	}
	if err := o.active.Acquire(ctx, bookID, rec.ID, JobType); err != nil {
		if derr := o.jobs.Delete(context.WithoutCancel(ctx), rec.ID); derr != nil {
			o.logger.Warn("failed to delete rejected job", "job_id", rec.ID, "error", derr)
		}
		return nil, err
	}
	return rec, nil
}

// Resume prepares a stopped job to run again from its last checkpoint. A
// failed job is terminal, so resuming it creates a new job that carries the
// checkpoint and points back at it. A job interrupted without recording a
// failure is returned as is. Either way the caller then calls Run.
func (o *Orchestrator) Resume(ctx context.Context, jobID string) (*jobs.Record, error) {
	rec, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if rec.Kind != JobType {
		return nil, fmt.Errorf("%w: job %s is a %s job", ErrNotResumable, jobID, rec.Kind)
	}
	switch rec.Stage {
	case jobs.StageCompleted:
		return nil, fmt.Errorf("%w: job %s already completed", ErrNotResumable, jobID)
	case jobs.StageFailed:
	default:
		if err := o.active.Acquire(ctx, rec.BookID, rec.ID, JobType); err != nil {
			return nil, err
		}
		return rec, nil
	}

	next, err := o.jobs.Create(ctx, &jobs.Record{
		BookID:           rec.BookID,
		Kind:             JobType,
		OriginalID:       rec.OriginalID,
		Config:           rec.Config,
		Checkpoint:       rec.Checkpoint,
		Progress:         rec.Progress,
		ChaptersDetected: rec.ChaptersDetected,
		FlagsCreated:     rec.FlagsCreated,
		RevisionID:       rec.RevisionID,
		ResumedFrom:      rec.ID,
	})
	if err != nil {
		return nil, err
	}
	if err := o.active.Acquire(ctx, next.BookID, next.ID, JobType); err != nil {
		if derr := o.jobs.Delete(context.WithoutCancel(ctx), next.ID); derr != nil {
			o.logger.Warn("failed to delete rejected job", "job_id", next.ID, "error", derr)
		}
		return nil, err
	}
	o.logger.Info("job resumed", "job_id", next.ID, "resumed_from", rec.ID, "checkpoint", rec.Checkpoint.Stage)
	return next, nil
}

// Job adapts a job record for execution on a jobs.Pool.
func (o *Orchestrator) Job(jobID string) jobs.Job {
	return &poolJob{o: o, id: jobID}
}

type poolJob struct {
	o  *Orchestrator
	id string
}

func (j *poolJob) ID() string      { return j.id }
func (j *poolJob) Kind() jobs.Kind { return JobType }

func (j *poolJob) Execute(ctx context.Context) error {
	_, err := j.o.Run(ctx, j.id)
	return err
}

// pending is the chapter and flag set carried between stages.
type pending struct {
	Chapters []types.Chapter `json:"chapters,omitempty"`
	Flags    []types.Flag    `json:"flags,omitempty"`
}

// runState is the in-memory view of the last checkpoint.
type runState struct {
	text    string
	textRef blob.Ref
	pending
}

// Run executes the job's remaining stages in order. A stage failure moves
// the job to failed and returns a *StageError.
func (o *Orchestrator) Run(ctx context.Context, jobID string) (*jobs.Record, error) {
	rec, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if rec.Stage.IsTerminal() {
		return rec, fmt.Errorf("%w: job %s is %s", ErrNotResumable, jobID, rec.Stage)
	}
	if err := o.active.Acquire(ctx, rec.BookID, rec.ID, JobType); err != nil {
		return rec, err
	}
	logger := o.logger.With("job_id", rec.ID, "book_id", rec.BookID)

	var cfg cleanup.Config
	if err := json.Unmarshal([]byte(rec.Config), &cfg); err != nil {
		return rec, o.fail(ctx, rec, rec.Checkpoint.Stage.After(), fmt.Errorf("decode cleanup config: %w", err))
	}

	first := rec.Checkpoint.Stage.After()
	state, err := o.load(ctx, rec.Checkpoint)
	if err != nil {
		return rec, o.fail(ctx, rec, first, err)
	}
	if rec.Stage != first {
		if err := o.jobs.Advance(ctx, rec, jobs.Transition{Stage: first}); err != nil {
			return rec, o.fail(ctx, rec, first, err)
		}
	}
	logger.Info("cleanup running", "from_stage", first)

	for stage := first; stage != jobs.StageCompleted; stage = stage.After() {
		if err := ctx.Err(); err != nil {
			return rec, o.fail(ctx, rec, stage, err)
		}
		if err := o.runStage(ctx, rec, stage, state, cfg); err != nil {
			return rec, o.fail(ctx, rec, stage, err)
		}
	}

	if err := o.active.Release(context.WithoutCancel(ctx), rec.BookID, rec.ID); err != nil {
		logger.Warn("failed to release active job", "error", err)
	}
	logger.Info("cleanup completed", "revision_id", rec.RevisionID, "chapters", rec.ChaptersDetected, "flags", rec.FlagsCreated)
	return rec, nil
}

// fail records a stage failure and releases the book. Both writes ignore
// cancellation of ctx so a cancelled job still ends failed.
func (o *Orchestrator) fail(ctx context.Context, rec *jobs.Record, stage jobs.Stage, cause error) error {
	serr := &StageError{Stage: stage, Err: cause}
	bg := context.WithoutCancel(ctx)
	if err := o.jobs.Fail(bg, rec, stage, serr); err != nil {
		o.logger.Error("failed to record job failure", "job_id", rec.ID, "stage", stage, "error", err)
	}
	if err := o.active.Release(bg, rec.BookID, rec.ID); err != nil {
		o.logger.Warn("failed to release active job", "job_id", rec.ID, "error", err)
	}
	return serr
}

func (o *Orchestrator) load(ctx context.Context, cp jobs.Checkpoint) (*runState, error) {
	state := &runState{}
	if cp.Stage == "" {
		return state, nil
	}
	text, err := o.blobs.Get(ctx, cp.TextRef)
	if err != nil {
		return nil, fmt.Errorf("load %s checkpoint text: %w", cp.Stage, err)
	}
	state.text = string(text)
	state.textRef = cp.TextRef
	if cp.PendingRef != "" {
		data, err := o.blobs.Get(ctx, cp.PendingRef)
		if err != nil {
			return nil, fmt.Errorf("load %s checkpoint chapters: %w", cp.Stage, err)
		}
		if err := json.Unmarshal(data, &state.pending); err != nil {
			return nil, fmt.Errorf("decode %s checkpoint chapters: %w", cp.Stage, err)
		}
	}
	return state, nil
}

func (o *Orchestrator) runStage(ctx context.Context, rec *jobs.Record, stage jobs.Stage, state *runState, cfg cleanup.Config) error {
	switch stage {
	case jobs.StageLoading:
		return o.loadOriginal(ctx, rec, state)
	case jobs.StageBoilerplate:
		text, flags := cleanup.RemoveBoilerplate(state.text)
		if strings.TrimSpace(text) == "" {
			return cleanup.ErrEmptySource
		}
		state.Flags = append(state.Flags, flags...)
		return o.checkpoint(ctx, rec, stage, state, text, false)
	case jobs.StageUnwrap:
		text, flags, err := cleanup.Unwrap(state.text, cfg)
		if err != nil {
			return err
		}
		state.Flags = append(state.Flags, flags...)
		return o.checkpoint(ctx, rec, stage, state, text, false)
	case jobs.StageDetection:
		chapters, flags, err := cleanup.DetectChapters(state.text, cfg)
		if err != nil {
			return err
		}
		state.Chapters = chapters
		state.Flags = append(state.Flags, flags...)
		return o.checkpoint(ctx, rec, stage, state, state.text, true)
	case jobs.StagePunctuation:
		return o.commit(ctx, rec, state, cfg)
	}
	return fmt.Errorf("unknown cleanup stage %q", stage)
}

func (o *Orchestrator) loadOriginal(ctx context.Context, rec *jobs.Record, state *runState) error {
	original, err := o.revs.Repository().GetOriginal(ctx, rec.OriginalID)
	if err != nil {
		return err
	}
	body, err := o.revs.OriginalBody(ctx, original)
	if err != nil {
		return err
	}
	if strings.TrimSpace(string(body)) == "" {
		return cleanup.ErrEmptySource
	}

	ref := original.Body.Ref()
	if !original.Body.IsRef() {
		if ref, err = o.blobs.Put(ctx, body); err != nil {
			return fmt.Errorf("store original text: %w", err)
		}
	}
	state.text = string(body)
	state.textRef = ref
	return o.jobs.Advance(ctx, rec, jobs.Transition{
		Stage:      jobs.StageLoading.After(),
		Completed:  jobs.StageLoading,
		Checkpoint: &jobs.Checkpoint{Stage: jobs.StageLoading, TextRef: ref},
	})
}

// checkpoint stores a stage's output and advances the job past it.
func (o *Orchestrator) checkpoint(ctx context.Context, rec *jobs.Record, stage jobs.Stage, state *runState, text string, chapters bool) error {
	ref := state.textRef
	if text != state.text || ref == "" {
		var err error
		if ref, err = o.blobs.Put(ctx, []byte(text)); err != nil {
			return fmt.Errorf("store %s text: %w", stage, err)
		}
	}
	encoded, err := json.Marshal(state.pending)
	if err != nil {
		return fmt.Errorf("encode %s chapters: %w", stage, err)
	}
	pendingRef, err := o.blobs.Put(ctx, encoded)
	if err != nil {
		return fmt.Errorf("store %s chapters: %w", stage, err)
	}

	t := jobs.Transition{
		Stage:      stage.After(),
		Completed:  stage,
		Checkpoint: &jobs.Checkpoint{Stage: stage, TextRef: ref, PendingRef: pendingRef},
	}
	flagCount := len(state.Flags)
	t.FlagsCreated = &flagCount
	if chapters {
		chapterCount := len(state.Chapters)
		t.ChaptersDetected = &chapterCount
	}
	if err := o.jobs.Advance(ctx, rec, t); err != nil {
		return err
	}
	state.text = text
	state.textRef = ref
	return nil
}

// commit normalizes punctuation, then creates the revision and attaches the
// final chapters and flags. A revision already assigned to the job is
// reused, and one that already has chapters is left alone.
func (o *Orchestrator) commit(ctx context.Context, rec *jobs.Record, state *runState, cfg cleanup.Config) error {
	result := cleanup.Finish(state.text, state.Chapters, state.Flags, cfg)

	var rev *revision.Revision
	var err error
	if rec.RevisionID != "" {
		if rev, err = o.revs.Repository().GetRevision(ctx, rec.RevisionID); err != nil {
			return err
		}
	} else {
		rev, err = o.revs.CreateRevision(ctx, revision.CreateInput{
			BookID:          rec.BookID,
			OriginalID:      rec.OriginalID,
			Provenance:      types.ProvenanceSystem,
			IsDeterministic: true,
			PreserveArchaic: cfg.PreserveArchaic,
			Body:            []byte(result.NormalizedText),
		})
		if err != nil {
			return err
		}
		if err := o.jobs.Advance(ctx, rec, jobs.Transition{Stage: jobs.StagePunctuation, RevisionID: rev.ID}); err != nil {
			return err
		}
	}
	if err := o.active.SetRevision(ctx, rec.BookID, rec.ID, rev.ID); err != nil {
		return err
	}

	if !rev.ChaptersAttached {
		if err := o.revs.AttachChapters(ctx, rev.ID, result.Chapters, result.Flags); err != nil {
			return err
		}
	}

	chapterCount, flagCount := len(result.Chapters), len(result.Flags)
	return o.jobs.Advance(ctx, rec, jobs.Transition{
		Stage:            jobs.StageCompleted,
		Completed:        jobs.StagePunctuation,
		Checkpoint:       &jobs.Checkpoint{Stage: jobs.StagePunctuation, TextRef: rev.Body.Ref()},
		ChaptersDetected: &chapterCount,
		FlagsCreated:     &flagCount,
	})
}

// ErrorStage returns the stage a Run error stopped in, if any.
func ErrorStage(err error) (jobs.Stage, bool) {
	var serr *StageError
	if errors.As(err, &serr) {
		return serr.Stage, true
	}
	return "", false
}
