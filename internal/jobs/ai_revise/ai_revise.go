// Package ai_revise produces an AI-assisted revision from an existing one.
//
// Each chapter is sent to the correction provider separately and the
// results are reassembled with recomputed spans. Text outside chapters is
// copied verbatim. The output is always a new revision whose parent is the
// source; the source is never modified. If any call fails or the job is
// cancelled, no revision is written.
package ai_revise

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/folio/internal/jobs"
	"github.com/jackzampolin/folio/internal/providers"
	"github.com/jackzampolin/folio/internal/revision"
	"github.com/jackzampolin/folio/internal/types"
)

// JobType is the identifier for this job type.
const JobType = jobs.KindAIRevise

// Defaults used when Config leaves them zero.
const (
	DefaultConcurrency   = 4
	DefaultMaxChunkBytes = 12000
)

// ErrNoCorrector is returned when AI correction is not configured.
var ErrNoCorrector = errors.New("ai_revise: no correction provider")

// CorrectorSource returns the provider to use for a job.
// providers.Registry satisfies it.
type CorrectorSource interface {
	Corrector() (providers.Corrector, error)
}

// Config configures a Reviser.
type Config struct {
	Revisions *revision.Service
	Jobs      *jobs.Manager
	Active    *jobs.ActiveJobs
	Providers CorrectorSource
	Logger    *slog.Logger

	// Concurrency bounds in-flight provider calls per job.
	Concurrency int

	// MaxChunkBytes splits long chapters at paragraph breaks.
	MaxChunkBytes int
}

// Reviser runs AI revision jobs.
type Reviser struct {
	revs        *revision.Service
	jobs        *jobs.Manager
	active      *jobs.ActiveJobs
	providers   CorrectorSource
	logger      *slog.Logger
	concurrency int
	maxChunk    int
}

// New creates a Reviser.
func New(cfg Config) *Reviser {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.MaxChunkBytes <= 0 {
		cfg.MaxChunkBytes = DefaultMaxChunkBytes
	}
	return &Reviser{
		revs:        cfg.Revisions,
		jobs:        cfg.Jobs,
		active:      cfg.Active,
		providers:   cfg.Providers,
		logger:      logger,
		concurrency: cfg.Concurrency,
		maxChunk:    cfg.MaxChunkBytes,
	}
}

type jobConfig struct {
	Instructions string `json:"instructions,omitempty"`
	Provider     string `json:"provider"`
}

// Start creates an AI revision job for sourceID and takes the book's active
// job token. The source must have its chapters attached.
func (r *Reviser) Start(ctx context.Context, sourceID, instructions string) (*jobs.Record, error) {
	corrector, err := r.corrector()
	if err != nil {
		return nil, err
	}
	source, err := r.revs.Repository().GetRevision(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if !source.ChaptersAttached {
		return nil, fmt.Errorf("%w: revision %s has no chapters attached", revision.ErrInvalidInput, sourceID)
	}

	encoded, err := json.Marshal(jobConfig{Instructions: instructions, Provider: corrector.Name()})
	if err != nil {
		return nil, err
	}
	rec, err := r.jobs.Create(ctx, &jobs.Record{
		BookID:           source.BookID,
		Kind:             JobType,
		OriginalID:       source.OriginalID,
		SourceRevisionID: source.ID,
		Config:           string(encoded),
	})
	if err != nil {
		return nil, err
	}
	if err := r.active.Acquire(ctx, source.BookID, rec.ID, JobType); err != nil {
		if derr := r.jobs.Delete(context.WithoutCancel(ctx), rec.ID); derr != nil {
			r.logger.Warn("failed to delete rejected job", "job_id", rec.ID, "error", derr)
		}
		return nil, err
	}
	return rec, nil
}

// Revise starts a job for sourceID and runs it to completion.
func (r *Reviser) Revise(ctx context.Context, sourceID, instructions string) (*jobs.Record, error) {
	rec, err := r.Start(ctx, sourceID, instructions)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx, rec.ID)
}

// Job adapts a job record for execution on a jobs.Pool.
func (r *Reviser) Job(jobID string) jobs.Job {
	return &poolJob{r: r, id: jobID}
}

type poolJob struct {
	r  *Reviser
	id string
}

func (j *poolJob) ID() string      { return j.id }
func (j *poolJob) Kind() jobs.Kind { return JobType }

func (j *poolJob) Execute(ctx context.Context) error {
	_, err := j.r.Run(ctx, j.id)
	return err
}

// Run executes a queued job.
func (r *Reviser) Run(ctx context.Context, jobID string) (*jobs.Record, error) {
	rec, err := r.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if rec.Kind != JobType || rec.Stage.IsTerminal() {
		return rec, fmt.Errorf("ai_revise: job %s is a %s job in stage %s", jobID, rec.Kind, rec.Stage)
	}
	if err := r.active.Acquire(ctx, rec.BookID, rec.ID, JobType); err != nil {
		return rec, err
	}
	logger := r.logger.With("job_id", rec.ID, "book_id", rec.BookID, "source_revision_id", rec.SourceRevisionID)

	if err := r.run(ctx, rec, logger); err != nil {
		bg := context.WithoutCancel(ctx)
		if ferr := r.jobs.Fail(bg, rec, jobs.StageAICorrection, err); ferr != nil {
			logger.Error("failed to record job failure", "error", ferr)
		}
		if rerr := r.active.Release(bg, rec.BookID, rec.ID); rerr != nil {
			logger.Warn("failed to release active job", "error", rerr)
		}
		return rec, err
	}
	if err := r.active.Release(context.WithoutCancel(ctx), rec.BookID, rec.ID); err != nil {
		logger.Warn("failed to release active job", "error", err)
	}
	logger.Info("ai revision completed", "revision_id", rec.RevisionID)
	return rec, nil
}

func (r *Reviser) run(ctx context.Context, rec *jobs.Record, logger *slog.Logger) error {
	var cfg jobConfig
	if err := json.Unmarshal([]byte(rec.Config), &cfg); err != nil {
		return fmt.Errorf("decode job config: %w", err)
	}
	corrector, err := r.corrector()
	if err != nil {
		return err
	}
	if err := r.jobs.Advance(ctx, rec, jobs.Transition{Stage: jobs.StageAICorrection}); err != nil {
		return err
	}

	source, err := r.revs.Repository().GetRevision(ctx, rec.SourceRevisionID)
	if err != nil {
		return err
	}
	body, err := r.revs.Body(ctx, source)
	if err != nil {
		return err
	}
	chapters, err := r.revs.Repository().Chapters(ctx, source.ID)
	if err != nil {
		return err
	}

	out, revised, err := r.correct(ctx, corrector, string(body), chapters, cfg.Instructions)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	rev, err := r.revs.CreateRevision(ctx, revision.CreateInput{
		BookID:          source.BookID,
		ParentID:        source.ID,
		OriginalID:      source.OriginalID,
		Provenance:      types.ProvenanceAI,
		IsAIAssisted:    true,
		PreserveArchaic: source.PreserveArchaic,
		Body:            []byte(out),
		Chapters:        revised,
	})
	if err != nil {
		return err
	}
	logger.Info("ai revision written", "revision_id", rev.ID, "chapters", len(revised), "provider", corrector.Name())

	n := len(revised)
	return r.jobs.Advance(ctx, rec, jobs.Transition{
		Stage:            jobs.StageCompleted,
		Completed:        jobs.StageAICorrection,
		ChaptersDetected: &n,
		RevisionID:       rev.ID,
	})
}

func (r *Reviser) corrector() (providers.Corrector, error) {
	if r.providers == nil {
		return nil, ErrNoCorrector
	}
	c, err := r.providers.Corrector()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoCorrector, err)
	}
	if c == nil {
		return nil, ErrNoCorrector
	}
	return c, nil
}

// correct sends every chapter chunk through c and reassembles the body.
// Chapters come back with spans into the new body.
func (r *Reviser) correct(ctx context.Context, c providers.Corrector, body string, chapters []types.Chapter, instructions string) (string, []types.Chapter, error) {
	type piece struct {
		text    string
		chapter int // index into chapters, or -1 for verbatim text
		correct bool
	}
	var pieces []piece
	pos := 0
	for i, ch := range chapters {
		if ch.Span.Start > pos {
			pieces = append(pieces, piece{text: body[pos:ch.Span.Start], chapter: -1})
		}
		for _, chunk := range splitChunks(body[ch.Span.Start:ch.Span.End], r.maxChunk) {
			pieces = append(pieces, piece{text: chunk, chapter: i, correct: true})
		}
		pos = ch.Span.End
	}
	if pos < len(body) {
		pieces = append(pieces, piece{text: body[pos:], chapter: -1})
	}

	results := make([]string, len(pieces))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, p := range pieces {
		if !p.correct {
			results[i] = p.text
			continue
		}
		g.Go(func() error {
			out, err := correctPadded(gctx, c, p.text, instructions)
			if err != nil {
				return fmt.Errorf("chapter %d: %w", chapters[p.chapter].Number, err)
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	revised := make([]types.Chapter, len(chapters))
	for i, ch := range chapters {
		revised[i] = types.Chapter{
			Number:          ch.Number,
			Title:           ch.Title,
			SectionType:     ch.SectionType,
			DetectedHeading: ch.DetectedHeading,
			IsUserConfirmed: ch.IsUserConfirmed,
			Span:            types.Span{Start: -1},
		}
	}
	for i, p := range pieces {
		if p.chapter >= 0 && revised[p.chapter].Span.Start < 0 {
			revised[p.chapter].Span.Start = sb.Len()
		}
		sb.WriteString(results[i])
		if p.chapter >= 0 {
			revised[p.chapter].Span.End = sb.Len()
		}
	}
	return sb.String(), revised, nil
}

// correctPadded corrects the text between leading and trailing whitespace,
// which is kept as is. Whitespace-only text is not sent.
func correctPadded(ctx context.Context, c providers.Corrector, text, instructions string) (string, error) {
	core := strings.TrimSpace(text)
	if core == "" {
		return text, nil
	}
	lead := text[:strings.Index(text, core)]
	trail := text[len(lead)+len(core):]
	out, err := c.Correct(ctx, core, instructions)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", providers.ErrEmptyResponse
	}
	return lead + out + trail, nil
}

// splitChunks cuts text at paragraph breaks into pieces of at most max
// bytes. A paragraph longer than max is one piece. Joining the pieces
// gives back text.
func splitChunks(text string, max int) []string {
	if len(text) <= max {
		return []string{text}
	}
	var chunks []string
	start, last := 0, 0
	for {
		i := strings.Index(text[last:], "\n\n")
		if i < 0 {
			break
		}
		cut := last + i + 2
		if cut-start > max && last > start {
			chunks = append(chunks, text[start:last])
			start = last
		}
		last = cut
	}
	if len(text)-start > max && last > start {
		chunks = append(chunks, text[start:last])
		start = last
	}
	return append(chunks, text[start:])
}
