package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jackzampolin/folio/internal/blob"
	"github.com/jackzampolin/folio/internal/defra"
	"github.com/jackzampolin/folio/internal/store"
)

// CollectionJob holds job records.
const CollectionJob = "CleanupJob"

var jobFields = []string{
	"book_id", "kind", "stage", "failed_stage", "progress", "chapters_detected", "flags_created",
	"error", "original_id", "source_revision_id", "revision_id", "resumed_from", "config",
	"checkpoint_stage", "text_ref", "pending_ref",
	"created_at", "updated_at", "started_at", "completed_at",
}

// Manager handles job record CRUD operations.
// It does not execute jobs; orchestrators update job state via the manager.
type Manager struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewManager creates a new job manager.
func NewManager(s store.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:  s,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new job record and returns it with its ID.
func (m *Manager) Create(ctx context.Context, rec *Record) (*Record, error) {
	now := m.now()
	out := *rec
	if out.Stage == "" {
		out.Stage = StageQueued
	}
	out.CreatedAt = now
	out.UpdatedAt = now

	input := recordDoc(&out)
	res, err := m.store.Create(ctx, CollectionJob, input)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	out.ID = res.DocID

	m.logger.Info("job created", "job_id", out.ID, "kind", out.Kind, "book_id", out.BookID)
	return &out, nil
}

// Get returns a job record by ID.
func (m *Manager) Get(ctx context.Context, jobID string) (*Record, error) {
	doc, err := store.GetByID(ctx, m.store, CollectionJob, jobID, jobFields...)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("job %s: %w", jobID, store.ErrNotFound)
		}
		return nil, err
	}
	return parseRecord(doc), nil
}

// ListFilter specifies criteria for listing jobs.
type ListFilter struct {
	BookID string // empty = all
	Kind   Kind   // empty = all
	Stage  Stage  // empty = all
	Limit  int    // 0 = default 100
}

// List returns jobs matching the filter, newest first.
func (m *Manager) List(ctx context.Context, filter ListFilter) ([]*Record, error) {
	q := defra.NewQuery(CollectionJob).Fields(jobFields...)
	if filter.BookID != "" {
		q.Filter("book_id", filter.BookID)
	}
	if filter.Kind != "" {
		q.Filter("kind", string(filter.Kind))
	}
	if filter.Stage != "" {
		q.Filter("stage", string(filter.Stage))
	}
	docs, err := q.Execute(ctx, m.store)
	if err != nil {
		return nil, err
	}

	records := make([]*Record, 0, len(docs))
	for _, d := range docs {
		records = append(records, parseRecord(d))
	}
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.After(records[j].CreatedAt)
		}
		return records[i].ID > records[j].ID
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Transition is one persisted stage change.
type Transition struct {
	// Stage is the stage the job moves to.
	Stage Stage

	// Completed, when set, is the stage whose output is now persisted.
	Completed Stage

	Checkpoint       *Checkpoint
	ChaptersDetected *int
	FlagsCreated     *int
	RevisionID       string
}

// Advance persists a stage transition. Progress never decreases.
func (m *Manager) Advance(ctx context.Context, rec *Record, t Transition) error {
	now := m.now()
	input := map[string]any{
		"stage":      string(t.Stage),
		"updated_at": store.FormatTime(now),
	}
	progress := rec.Progress
	if p := t.Completed.Progress(); p > progress {
		progress = p
	}
	if t.Stage == StageCompleted {
		progress = StageCompleted.Progress()
		input["completed_at"] = store.FormatTime(now)
	}
	input["progress"] = progress
	if rec.StartedAt == nil && t.Stage != StageQueued {
		input["started_at"] = store.FormatTime(now)
	}
	if t.Checkpoint != nil {
		input["checkpoint_stage"] = string(t.Checkpoint.Stage)
		input["text_ref"] = string(t.Checkpoint.TextRef)
		input["pending_ref"] = string(t.Checkpoint.PendingRef)
	}
	if t.ChaptersDetected != nil {
		input["chapters_detected"] = *t.ChaptersDetected
	}
	if t.FlagsCreated != nil {
		input["flags_created"] = *t.FlagsCreated
	}
	if t.RevisionID != "" {
		input["revision_id"] = t.RevisionID
	}

	if _, err := m.store.Update(ctx, CollectionJob, rec.ID, input); err != nil {
		return fmt.Errorf("failed to advance job %s to %s: %w", rec.ID, t.Stage, err)
	}

	rec.Stage = t.Stage
	rec.Progress = progress
	rec.UpdatedAt = now
	if rec.StartedAt == nil && t.Stage != StageQueued {
		rec.StartedAt = &now
	}
	if t.Stage == StageCompleted {
		rec.CompletedAt = &now
	}
	if t.Checkpoint != nil {
		rec.Checkpoint = *t.Checkpoint
	}
	if t.ChaptersDetected != nil {
		rec.ChaptersDetected = *t.ChaptersDetected
	}
	if t.FlagsCreated != nil {
		rec.FlagsCreated = *t.FlagsCreated
	}
	if t.RevisionID != "" {
		rec.RevisionID = t.RevisionID
	}

	m.logger.Info("job stage", "job_id", rec.ID, "book_id", rec.BookID, "stage", rec.Stage, "progress", rec.Progress)
	return nil
}

// Fail moves a job to failed, recording the stage that failed and why.
// Persisted stage output is left in place.
func (m *Manager) Fail(ctx context.Context, rec *Record, stage Stage, cause error) error {
	now := m.now()
	msg := cause.Error()
	input := map[string]any{
		"stage":        string(StageFailed),
		"failed_stage": string(stage),
		"error":        msg,
		"updated_at":   store.FormatTime(now),
		"completed_at": store.FormatTime(now),
	}
	if _, err := m.store.Update(ctx, CollectionJob, rec.ID, input); err != nil {
		return fmt.Errorf("failed to record failure of job %s: %w", rec.ID, err)
	}
	rec.Stage = StageFailed
	rec.FailedStage = stage
	rec.Error = msg
	rec.UpdatedAt = now
	rec.CompletedAt = &now

	m.logger.Warn("job failed", "job_id", rec.ID, "book_id", rec.BookID, "stage", stage, "error", msg)
	return nil
}

// Delete removes a job record that never started.
func (m *Manager) Delete(ctx context.Context, jobID string) error {
	return m.store.Delete(ctx, CollectionJob, jobID)
}

func recordDoc(r *Record) map[string]any {
	doc := map[string]any{
		"book_id":           r.BookID,
		"kind":              string(r.Kind),
		"stage":             string(r.Stage),
		"progress":          r.Progress,
		"chapters_detected": r.ChaptersDetected,
		"flags_created":     r.FlagsCreated,
		"created_at":        store.FormatTime(r.CreatedAt),
		"updated_at":        store.FormatTime(r.UpdatedAt),
	}
	optional := map[string]string{
		"original_id":        r.OriginalID,
		"source_revision_id": r.SourceRevisionID,
		"revision_id":        r.RevisionID,
		"resumed_from":       r.ResumedFrom,
		"config":             r.Config,
		"checkpoint_stage":   string(r.Checkpoint.Stage),
		"text_ref":           string(r.Checkpoint.TextRef),
		"pending_ref":        string(r.Checkpoint.PendingRef),
	}
	for k, v := range optional {
		if v != "" {
			doc[k] = v
		}
	}
	return doc
}

func parseRecord(doc map[string]any) *Record {
	r := &Record{
		ID:               store.String(doc, "_docID"),
		BookID:           store.String(doc, "book_id"),
		Kind:             Kind(store.String(doc, "kind")),
		Stage:            Stage(store.String(doc, "stage")),
		FailedStage:      Stage(store.String(doc, "failed_stage")),
		Progress:         store.Int(doc, "progress"),
		ChaptersDetected: store.Int(doc, "chapters_detected"),
		FlagsCreated:     store.Int(doc, "flags_created"),
		Error:            store.String(doc, "error"),
		OriginalID:       store.String(doc, "original_id"),
		SourceRevisionID: store.String(doc, "source_revision_id"),
		RevisionID:       store.String(doc, "revision_id"),
		ResumedFrom:      store.String(doc, "resumed_from"),
		Config:           store.String(doc, "config"),
		Checkpoint: Checkpoint{
			Stage:      Stage(store.String(doc, "checkpoint_stage")),
			TextRef:    blob.Ref(store.String(doc, "text_ref")),
			PendingRef: blob.Ref(store.String(doc, "pending_ref")),
		},
		CreatedAt: store.Time(doc, "created_at"),
		UpdatedAt: store.Time(doc, "updated_at"),
	}
	if t := store.Time(doc, "started_at"); !t.IsZero() {
		r.StartedAt = &t
	}
	if t := store.Time(doc, "completed_at"); !t.IsZero() {
		r.CompletedAt = &t
	}
	return r
}
