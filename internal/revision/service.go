// Package revision implements the versioning model: immutable originals,
// an append-only DAG of revisions, and the chapter and flag sets each
// revision owns.
package revision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/jackzampolin/folio/internal/blob"
	"github.com/jackzampolin/folio/internal/defra"
	"github.com/jackzampolin/folio/internal/store"
	"github.com/jackzampolin/folio/internal/types"
)

var (
	// ErrInvalidInput is returned for requests rejected before any write.
	ErrInvalidInput = errors.New("revision: invalid input")

	// ErrDuplicateOriginal is returned when a book already has an original
	// with the same content.
	ErrDuplicateOriginal = errors.New("revision: original already captured")

	// ErrChaptersAttached is returned when attaching to a settled revision.
	ErrChaptersAttached = errors.New("revision: chapters already attached")
)

// Config configures a Service.
type Config struct {
	Store  store.Store
	Blobs  blob.Store
	Logger *slog.Logger
	Now    func() time.Time
}

// Service applies the revision lifecycle rules on top of a Repository.
type Service struct {
	repo   *Repository
	blobs  blob.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a Service.
func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:   NewRepository(cfg.Store),
		blobs:  cfg.Blobs,
		logger: logger,
		now:    now,
	}
}

// Repository returns the record repository.
func (s *Service) Repository() *Repository { return s.repo }

// Blobs returns the blob store.
func (s *Service) Blobs() blob.Store { return s.blobs }

// Now returns the service clock's current time in UTC.
func (s *Service) Now() time.Time { return s.now().UTC() }

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// OriginalInput describes a source capture.
type OriginalInput struct {
	BookID string
	Format types.SourceFormat
	Title  string
	Author string
	Body   []byte
}

// CreateOriginal stores a new original. A book may hold several originals
// but never two with the same content.
func (s *Service) CreateOriginal(ctx context.Context, in OriginalInput) (*Original, error) {
	if err := defra.ValidateID(in.BookID); err != nil {
		return nil, invalid("book id: %v", err)
	}
	if _, err := types.ParseSourceFormat(string(in.Format)); err != nil {
		return nil, invalid("%v", err)
	}

	hash := string(blob.RefFor(in.Body))
	existing, err := s.repo.Originals(ctx, in.BookID)
	if err != nil {
		return nil, err
	}
	for _, o := range existing {
		if o.ContentHash == hash {
			return nil, fmt.Errorf("%w: book %s original %s", ErrDuplicateOriginal, in.BookID, o.ID)
		}
	}

	body, err := blob.Write(ctx, s.blobs, in.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to store original body: %w", err)
	}

	now := s.Now()
	doc := body.Fields()
	doc["book_id"] = in.BookID
	doc["format"] = string(in.Format)
	doc["title"] = in.Title
	doc["author"] = in.Author
	doc["content_hash"] = hash
	doc["created_at"] = store.FormatTime(now)

	id, seq, err := s.createSequenced(ctx, CollectionOriginal, in.BookID, func(ctx context.Context) (int, error) {
		originals, err := s.repo.Originals(ctx, in.BookID)
		if err != nil {
			return 0, err
		}
		return len(originals) + 1, nil
	}, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to create original: %w", err)
	}

	s.logger.Info("original captured", "book_id", in.BookID, "original_id", id, "sequence", seq, "size", body.Size())
	return &Original{
		Original: types.Original{
			ID: id, BookID: in.BookID, Sequence: seq, Format: in.Format,
			Title: in.Title, Author: in.Author, Size: body.Size(),
			ContentHash: hash, CreatedAt: now,
		},
		Body: body,
	}, nil
}

// CreateInput describes a new revision.
type CreateInput struct {
	BookID          string
	ParentID        string // optional; must belong to BookID
	OriginalID      string // optional; must belong to BookID
	Provenance      types.Provenance
	IsDeterministic bool
	IsAIAssisted    bool
	PreserveArchaic bool

	// Body is the revision text. Nil inherits the parent's body.
	Body []byte

	// Chapters are attached right after the record is created.
	// Empty leaves the revision in the created state.
	Chapters []types.Chapter
}

// CreateRevision validates in, stores the body, creates the revision record
// and, when chapters are given, attaches them in one batch. Everything is
// validated before the first write.
func (s *Service) CreateRevision(ctx context.Context, in CreateInput) (*Revision, error) {
	if err := defra.ValidateID(in.BookID); err != nil {
		return nil, invalid("book id: %v", err)
	}
	if _, err := types.ParseProvenance(string(in.Provenance)); err != nil {
		return nil, invalid("%v", err)
	}

	var parent *Revision
	if in.ParentID != "" {
		p, err := s.repo.GetRevision(ctx, in.ParentID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, invalid("parent revision %s not found", in.ParentID)
			}
			return nil, err
		}
		if p.BookID != in.BookID {
			return nil, invalid("parent revision %s belongs to book %s, not %s", p.ID, p.BookID, in.BookID)
		}
		parent = p
	}
	if in.OriginalID != "" {
		o, err := s.repo.GetOriginal(ctx, in.OriginalID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, invalid("original %s not found", in.OriginalID)
			}
			return nil, err
		}
		if o.BookID != in.BookID {
			return nil, invalid("original %s belongs to book %s, not %s", o.ID, o.BookID, in.BookID)
		}
	}
	if in.Body == nil && parent == nil {
		return nil, invalid("a revision without a body needs a parent to inherit from")
	}

	size := len(in.Body)
	if in.Body == nil {
		size = parent.Body.Size()
	}
	chapters := numberedCopy(in.Chapters)
	if len(chapters) > 0 {
		if err := ValidateChapters(chapters, size); err != nil {
			return nil, err
		}
	}

	body, err := s.storeBody(ctx, in.Body, parent)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	doc := body.Fields()
	doc["book_id"] = in.BookID
	doc["provenance"] = string(in.Provenance)
	doc["is_deterministic"] = in.IsDeterministic
	doc["is_ai_assisted"] = in.IsAIAssisted
	doc["preserve_archaic"] = in.PreserveArchaic
	doc["chapters_attached"] = false
	doc["created_at"] = store.FormatTime(now)
	if in.ParentID != "" {
		doc["parent_id"] = in.ParentID
	}
	if in.OriginalID != "" {
		doc["original_id"] = in.OriginalID
	}

	id, seq, err := s.createSequenced(ctx, CollectionRevision, in.BookID, func(ctx context.Context) (int, error) {
		revisions, err := s.repo.Revisions(ctx, in.BookID)
		if err != nil {
			return 0, err
		}
		if n := len(revisions); n > 0 {
			return revisions[n-1].Sequence + 1, nil
		}
		return 1, nil
	}, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to create revision: %w", err)
	}

	rev := &Revision{
		Revision: types.Revision{
			ID: id, BookID: in.BookID, Sequence: seq, Provenance: in.Provenance,
			IsDeterministic: in.IsDeterministic, IsAIAssisted: in.IsAIAssisted,
			PreserveArchaic: in.PreserveArchaic, ParentID: in.ParentID,
			OriginalID: in.OriginalID, Size: body.Size(), CreatedAt: now,
		},
		Body: body,
	}
	s.logger.Info("revision created", "book_id", in.BookID, "revision_id", id, "sequence", seq, "provenance", in.Provenance)

	if len(chapters) > 0 {
		if err := s.AttachChapters(ctx, id, chapters, nil); err != nil {
			return nil, fmt.Errorf("attach chapters to revision %s: %w", id, err)
		}
		rev.ChaptersAttached = true
	}
	return rev, nil
}

// storeBody writes data, or reuses the parent's body when data is nil.
// A legacy inline parent body is rewritten by reference.
func (s *Service) storeBody(ctx context.Context, data []byte, parent *Revision) (blob.Content, error) {
	if data == nil {
		if parent.Body.IsRef() {
			return parent.Body, nil
		}
		inherited, err := parent.Body.Resolve(ctx, s.blobs)
		if err != nil {
			return blob.Content{}, fmt.Errorf("failed to read parent body: %w", err)
		}
		data = inherited
	}
	body, err := blob.Write(ctx, s.blobs, data)
	if err != nil {
		return blob.Content{}, fmt.Errorf("failed to store revision body: %w", err)
	}
	return body, nil
}

// createSequenced creates a record with the next per-book sequence number.
// The book_seq field carries a unique index, so a concurrent writer that
// took the same number makes the create fail and it is retried.
func (s *Service) createSequenced(ctx context.Context, collection, bookID string, next func(context.Context) (int, error), doc map[string]any) (string, int, error) {
	var id string
	var seq int
	err := retry.Do(
		func() error {
			n, err := next(ctx)
			if err != nil {
				return err
			}
			doc["sequence"] = n
			doc["book_seq"] = fmt.Sprintf("%s#%d", bookID, n)
			res, err := s.repo.store.Create(ctx, collection, doc)
			if err != nil {
				return err
			}
			id, seq = res.DocID, n
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(5),
		retry.Delay(5*time.Millisecond),
		retry.RetryIf(func(err error) bool { return errors.Is(err, defra.ErrUniqueViolation) }),
		retry.LastErrorOnly(true),
	)
	return id, seq, err
}

// AttachChapters writes chapters and flags for a revision in one batch and
// marks it chapters_attached. A revision accepts chapters only once.
func (s *Service) AttachChapters(ctx context.Context, revisionID string, chapters []types.Chapter, flags []types.Flag) error {
	rev, err := s.repo.GetRevision(ctx, revisionID)
	if err != nil {
		return err
	}
	if rev.ChaptersAttached {
		return fmt.Errorf("%w: %s", ErrChaptersAttached, revisionID)
	}

	chapters = numberedCopy(chapters)
	if err := ValidateChapters(chapters, rev.Size); err != nil {
		return err
	}
	if err := ValidateFlags(flags, rev.Size); err != nil {
		return err
	}

	if _, err := s.repo.store.Batch(ctx, AttachOps(revisionID, chapters, flags)); err != nil {
		return fmt.Errorf("failed to attach chapters: %w", err)
	}
	s.logger.Info("chapters attached", "revision_id", revisionID, "chapters", len(chapters), "flags", len(flags))
	return nil
}

// numberedCopy returns chapters with Number filled from position when the
// caller left every number unset.
func numberedCopy(chapters []types.Chapter) []types.Chapter {
	out := append([]types.Chapter(nil), chapters...)
	for _, ch := range out {
		if ch.Number != 0 {
			return out
		}
	}
	for i := range out {
		out[i].Number = i + 1
	}
	return out
}

// State derives a revision's lifecycle state from stored facts.
func (s *Service) State(ctx context.Context, revisionID string) (types.RevisionState, error) {
	st, err := s.Status(ctx, revisionID)
	if err != nil {
		return "", err
	}
	return st.State, nil
}

// Status is a revision with its derived state.
type Status struct {
	*Revision
	State           types.RevisionState `json:"state"`
	UnresolvedFlags int                 `json:"unresolved_flags"`
	Approval        *types.Approval     `json:"approval,omitempty"`
}

// Status loads a revision and derives its state.
func (s *Service) Status(ctx context.Context, revisionID string) (*Status, error) {
	rev, err := s.repo.GetRevision(ctx, revisionID)
	if err != nil {
		return nil, err
	}
	unresolved, err := s.repo.CountUnresolved(ctx, revisionID)
	if err != nil {
		return nil, err
	}
	approval, err := s.repo.LatestApproval(ctx, revisionID)
	if err != nil {
		return nil, err
	}
	return &Status{
		Revision:        rev,
		State:           types.DeriveState(rev.ChaptersAttached, unresolved, approval != nil),
		UnresolvedFlags: unresolved,
		Approval:        approval,
	}, nil
}

// Body returns a revision's text.
func (s *Service) Body(ctx context.Context, rev *Revision) ([]byte, error) {
	return rev.Body.Resolve(ctx, s.blobs)
}

// OriginalBody returns an original's text.
func (s *Service) OriginalBody(ctx context.Context, o *Original) ([]byte, error) {
	return o.Body.Resolve(ctx, s.blobs)
}
