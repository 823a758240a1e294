package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackzampolin/folio/internal/defra"
	"github.com/jackzampolin/folio/internal/store"
)

// CollectionActiveJob holds one ownership token per book. Its book_id
// field carries a unique index, which is what makes Acquire atomic.
const CollectionActiveJob = "ActiveJob"

var activeFields = []string{"book_id", "job_id", "revision_id", "kind", "acquired_at"}

// ActiveJob is the ownership token a running job holds for its book.
type ActiveJob struct {
	ID         string    `json:"id"`
	BookID     string    `json:"book_id"`
	JobID      string    `json:"job_id"`
	RevisionID string    `json:"revision_id,omitempty"`
	Kind       Kind      `json:"kind"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// ActiveJobs grants at most one active job per book.
type ActiveJobs struct {
	store  store.Store
	logger *slog.Logger
}

// NewActiveJobs creates an ActiveJobs over s.
func NewActiveJobs(s store.Store, logger *slog.Logger) *ActiveJobs {
	if logger == nil {
		logger = slog.Default()
	}
	return &ActiveJobs{store: s, logger: logger}
}

// Acquire takes the token for bookID on behalf of jobID. It fails with
// ErrJobActive when another job holds it. Re-acquiring a token the same
// job already holds succeeds.
func (a *ActiveJobs) Acquire(ctx context.Context, bookID, jobID string, kind Kind) error {
	_, err := a.store.Create(ctx, CollectionActiveJob, map[string]any{
		"book_id":     bookID,
		"job_id":      jobID,
		"kind":        string(kind),
		"acquired_at": store.FormatTime(time.Now()),
	})
	if err == nil {
		a.logger.Debug("active job acquired", "book_id", bookID, "job_id", jobID)
		return nil
	}
	if !errors.Is(err, defra.ErrUniqueViolation) {
		return fmt.Errorf("failed to acquire active job for book %s: %w", bookID, err)
	}

	cur, cerr := a.Current(ctx, bookID)
	if cerr != nil {
		return fmt.Errorf("%w: book %s", ErrJobActive, bookID)
	}
	if cur != nil && cur.JobID == jobID {
		return nil
	}
	holder := "unknown"
	if cur != nil {
		holder = cur.JobID
	}
	return fmt.Errorf("%w: book %s is held by job %s", ErrJobActive, bookID, holder)
}

// Release drops the token if jobID still holds it.
func (a *ActiveJobs) Release(ctx context.Context, bookID, jobID string) error {
	cur, err := a.Current(ctx, bookID)
	if err != nil {
		return err
	}
	if cur == nil {
		return nil
	}
	if cur.JobID != jobID {
		a.logger.Warn("active job held by another job; not releasing", "book_id", bookID, "job_id", jobID, "holder", cur.JobID)
		return nil
	}
	if err := a.store.Delete(ctx, CollectionActiveJob, cur.ID); err != nil {
		return fmt.Errorf("failed to release active job for book %s: %w", bookID, err)
	}
	a.logger.Debug("active job released", "book_id", bookID, "job_id", jobID)
	return nil
}

// SetRevision records the revision the holding job is writing.
func (a *ActiveJobs) SetRevision(ctx context.Context, bookID, jobID, revisionID string) error {
	cur, err := a.Current(ctx, bookID)
	if err != nil {
		return err
	}
	if cur == nil || cur.JobID != jobID {
		return fmt.Errorf("job %s does not hold the active job for book %s", jobID, bookID)
	}
	if _, err := a.store.Update(ctx, CollectionActiveJob, cur.ID, map[string]any{"revision_id": revisionID}); err != nil {
		return fmt.Errorf("failed to record revision on active job: %w", err)
	}
	return nil
}

// Current returns the token for bookID, or nil when the book is idle.
func (a *ActiveJobs) Current(ctx context.Context, bookID string) (*ActiveJob, error) {
	doc, err := store.FindOne(ctx, a.store, defra.NewQuery(CollectionActiveJob).Filter("book_id", bookID).Fields(activeFields...))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ActiveJob{
		ID:         store.String(doc, "_docID"),
		BookID:     store.String(doc, "book_id"),
		JobID:      store.String(doc, "job_id"),
		RevisionID: store.String(doc, "revision_id"),
		Kind:       Kind(store.String(doc, "kind")),
		AcquiredAt: store.Time(doc, "acquired_at"),
	}, nil
}

// Busy reports whether the active job for bookID is writing revisionID.
func (a *ActiveJobs) Busy(ctx context.Context, bookID, revisionID string) (bool, error) {
	cur, err := a.Current(ctx, bookID)
	if err != nil {
		return false, err
	}
	return cur != nil && cur.RevisionID != "" && cur.RevisionID == revisionID, nil
}
