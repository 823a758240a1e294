package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackzampolin/folio/internal/blob"
)

// ErrJobActive is returned when a book already has an active job.
var ErrJobActive = errors.New("jobs: a job is already active for this book")

// Job is a unit of work the Pool executes.
type Job interface {
	// ID returns the job record ID.
	ID() string

	// Kind returns the job type.
	Kind() Kind

	// Execute runs the job. It should respect context cancellation.
	//
	// Execute must be resumable: a job may be re-run after a crash or
	// failure, so it starts from the last persisted checkpoint rather than
	// assuming a clean starting state.
	Execute(ctx context.Context) error
}

// Kind identifies a job type.
type Kind string

const (
	KindCleanup  Kind = "cleanup"
	KindAIRevise Kind = "ai_revise"
)

// Stage is a job's position in its pipeline.
type Stage string

const (
	StageQueued       Stage = "queued"
	StageLoading      Stage = "loading_original"
	StageBoilerplate  Stage = "boilerplate_removal"
	StageUnwrap       Stage = "paragraph_unwrap"
	StageDetection    Stage = "chapter_detection"
	StagePunctuation  Stage = "punctuation_normalization"
	StageAICorrection Stage = "ai_correction"
	StageCompleted    Stage = "completed"
	StageFailed       Stage = "failed"
)

// CleanupStages lists the deterministic cleanup stages in run order.
var CleanupStages = []Stage{StageLoading, StageBoilerplate, StageUnwrap, StageDetection, StagePunctuation}

// stageProgress is the progress reported once a stage completes.
var stageProgress = map[Stage]int{
	StageLoading:      10,
	StageBoilerplate:  25,
	StageUnwrap:       45,
	StageDetection:    70,
	StagePunctuation:  95,
	StageAICorrection: 90,
	StageCompleted:    100,
}

// ParseStage converts a string to a Stage.
func ParseStage(s string) (Stage, error) {
	switch st := Stage(s); st {
	case StageQueued, StageLoading, StageBoilerplate, StageUnwrap, StageDetection,
		StagePunctuation, StageAICorrection, StageCompleted, StageFailed:
		return st, nil
	}
	return "", fmt.Errorf("unknown stage %q", s)
}

// IsTerminal reports whether no further transition is possible.
func (s Stage) IsTerminal() bool {
	return s == StageCompleted || s == StageFailed
}

// Progress returns the percentage reached when s completes.
func (s Stage) Progress() int { return stageProgress[s] }

// After returns the cleanup stage that follows s. The stage after the last
// cleanup stage is StageCompleted; queued is followed by the first stage.
func (s Stage) After() Stage {
	if s == StageQueued || s == "" {
		return CleanupStages[0]
	}
	for i, st := range CleanupStages {
		if st == s {
			if i+1 < len(CleanupStages) {
				return CleanupStages[i+1]
			}
			return StageCompleted
		}
	}
	return StageCompleted
}

// Checkpoint is the persisted output of the last completed stage.
type Checkpoint struct {
	// Stage is the last stage whose output is persisted.
	Stage Stage `json:"stage,omitempty"`

	// TextRef addresses the text that stage produced.
	TextRef blob.Ref `json:"text_ref,omitempty"`

	// PendingRef addresses the JSON encoded chapters and flags produced so
	// far, not yet attached to any revision.
	PendingRef blob.Ref `json:"pending_ref,omitempty"`
}

// Record is a job record stored in the CleanupJob collection.
type Record struct {
	ID               string     `json:"id"`
	BookID           string     `json:"book_id"`
	Kind             Kind       `json:"kind"`
	Stage            Stage      `json:"stage"`
	FailedStage      Stage      `json:"failed_stage,omitempty"`
	Progress         int        `json:"progress"`
	ChaptersDetected int        `json:"chapters_detected"`
	FlagsCreated     int        `json:"flags_created"`
	Error            string     `json:"error,omitempty"`
	OriginalID       string     `json:"original_id,omitempty"`
	SourceRevisionID string     `json:"source_revision_id,omitempty"`
	RevisionID       string     `json:"revision_id,omitempty"`
	ResumedFrom      string     `json:"resumed_from,omitempty"`
	Config           string     `json:"config,omitempty"`
	Checkpoint       Checkpoint `json:"checkpoint"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// NewRecord creates a queued job record for submission.
func NewRecord(kind Kind, bookID string) *Record {
	return &Record{
		BookID: bookID,
		Kind:   kind,
		Stage:  StageQueued,
	}
}
