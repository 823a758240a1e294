// Package review implements flag resolution and the approval gate.
//
// Every write here touches a revision whose chapters are already attached.
// A revision that a running cleanup job still targets is not reviewable.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/jackzampolin/folio/internal/cleanup"
	"github.com/jackzampolin/folio/internal/defra"
	"github.com/jackzampolin/folio/internal/revision"
	"github.com/jackzampolin/folio/internal/store"
	"github.com/jackzampolin/folio/internal/types"
)

var (
	// ErrBlocked is returned by Approve while flags are unresolved or the
	// checklist is incomplete.
	ErrBlocked = errors.New("review: approval blocked")

	// ErrAlreadyResolved is returned when resolving a terminal flag.
	ErrAlreadyResolved = errors.New("review: flag already resolved")

	// ErrNotReviewable is returned for revisions with no chapters or with a
	// cleanup job still running against them.
	ErrNotReviewable = errors.New("review: revision not reviewable")

	// ErrActorRequired is returned when no actor identity is given.
	ErrActorRequired = errors.New("review: actor required")

	// ErrInvalidResolution is returned for resolutions that cannot apply.
	ErrInvalidResolution = errors.New("review: invalid resolution")
)

// BlockedError details why an approval was refused.
type BlockedError struct {
	RevisionID string
	Unresolved int
	Missing    []string
}

func (e *BlockedError) Error() string {
	var parts []string
	if e.Unresolved > 0 {
		parts = append(parts, fmt.Sprintf("%d unresolved flags", e.Unresolved))
	}
	if len(e.Missing) > 0 {
		parts = append(parts, "checklist incomplete: "+strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("%s: revision %s: %s", ErrBlocked, e.RevisionID, strings.Join(parts, "; "))
}

func (e *BlockedError) Unwrap() error { return ErrBlocked }

// JobGuard reports whether a cleanup job still owns a revision.
type JobGuard interface {
	Busy(ctx context.Context, bookID, revisionID string) (bool, error)
}

// Config configures a Service.
type Config struct {
	Revisions *revision.Service
	Guard     JobGuard
	Logger    *slog.Logger
}

// Service resolves flags and records approvals.
type Service struct {
	revs   *revision.Service
	repo   *revision.Repository
	store  store.Store
	guard  JobGuard
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService creates a Service.
func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	repo := cfg.Revisions.Repository()
	return &Service{
		revs:   cfg.Revisions,
		repo:   repo,
		store:  repo.Store(),
		guard:  cfg.Guard,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// lock serializes writes to one revision within this process.
func (s *Service) lock(revisionID string) func() {
	s.mu.Lock()
	m, ok := s.locks[revisionID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[revisionID] = m
	}
	s.mu.Unlock()
	m.Lock()
	return m.Unlock
}

func (s *Service) reviewable(ctx context.Context, rev *revision.Revision) error {
	if !rev.ChaptersAttached {
		return fmt.Errorf("%w: revision %s has no chapters attached", ErrNotReviewable, rev.ID)
	}
	if s.guard == nil {
		return nil
	}
	busy, err := s.guard.Busy(ctx, rev.BookID, rev.ID)
	if err != nil {
		return fmt.Errorf("failed to check active job: %w", err)
	}
	if busy {
		return fmt.Errorf("%w: a cleanup job is still writing revision %s", ErrNotReviewable, rev.ID)
	}
	return nil
}

// Resolution is the outcome an operator picks for a flag.
type Resolution struct {
	Status types.FlagStatus `json:"status"`

	// Offset is the boundary to promote when overriding an
	// unlabeled_boundary_candidate. It defaults to the flag start and must
	// lie inside the flag span on a character boundary.
	Offset *int `json:"offset,omitempty"`

	// Title and SectionType label the promoted chapter. They default to the
	// line at Offset and the section type its first word implies.
	Title       string            `json:"title,omitempty"`
	SectionType types.SectionType `json:"section_type,omitempty"`
}

// Resolved is the result of ResolveFlag.
type Resolved struct {
	Flag    types.Flag     `json:"flag"`
	Chapter *types.Chapter `json:"chapter,omitempty"`
}

// ResolveFlag moves a flag out of unresolved. Overriding a boundary
// candidate also inserts the promoted chapter and renumbers the revision's
// chapters and flags, all in one batch.
func (s *Service) ResolveFlag(ctx context.Context, flagID string, res Resolution, actor, note string) (*Resolved, error) {
	if strings.TrimSpace(actor) == "" {
		return nil, ErrActorRequired
	}
	if st, err := types.ParseFlagStatus(string(res.Status)); err != nil || !st.IsTerminal() {
		return nil, fmt.Errorf("%w: status %q is not a resolution", ErrInvalidResolution, res.Status)
	}
	if res.SectionType != "" {
		if _, err := types.ParseSectionType(string(res.SectionType)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidResolution, err)
		}
	}

	flag, err := s.repo.GetFlag(ctx, flagID)
	if err != nil {
		return nil, err
	}
	unlock := s.lock(flag.RevisionID)
	defer unlock()

	// Re-read under the lock so a concurrent resolve is seen.
	flag, err = s.repo.GetFlag(ctx, flagID)
	if err != nil {
		return nil, err
	}
	if flag.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: flag %s is %s", ErrAlreadyResolved, flagID, flag.Status)
	}

	rev, err := s.repo.GetRevision(ctx, flag.RevisionID)
	if err != nil {
		return nil, err
	}
	if err := s.reviewable(ctx, rev); err != nil {
		return nil, err
	}

	now := s.revs.Now()
	flag.Status = res.Status
	flag.ResolvedAt = &now
	flag.ResolvedBy = actor
	flag.ReviewerNote = note
	update := map[string]any{
		"status":        string(res.Status),
		"resolved_at":   store.FormatTime(now),
		"resolved_by":   actor,
		"reviewer_note": note,
	}

	out := &Resolved{}
	var ops []defra.WriteOp
	if res.Status == types.FlagOverridden && flag.Type == types.FlagUnlabeledBoundary {
		p, err := s.promote(ctx, rev, flag, res)
		if err != nil {
			return nil, err
		}
		ops = p.ops
		out.Chapter = &p.split.Added
		if n := types.ChapterAt(p.split.Chapters, flag.Span.Start); n != flag.ChapterNumber {
			flag.ChapterNumber = n
			update["chapter_number"] = n
		}
	}
	ops = append(ops, defra.WriteOp{Collection: revision.CollectionFlag, DocID: flag.ID, Document: update, Op: defra.OpUpdate})

	results, err := s.store.Batch(ctx, ops)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve flag %s: %w", flagID, err)
	}
	if out.Chapter != nil {
		out.Chapter.ID = results[0].DocID
		out.Chapter.RevisionID = rev.ID
	}
	out.Flag = flag

	attrs := []any{"flag_id", flagID, "revision_id", rev.ID, "status", res.Status, "actor", actor}
	if out.Chapter != nil {
		attrs = append(attrs, "chapter_number", out.Chapter.Number, "offset", out.Chapter.Span.Start)
	}
	s.logger.Info("flag resolved", attrs...)
	return out, nil
}

type promotion struct {
	split *Split
	ops   []defra.WriteOp
}

// promote builds the writes that insert a chapter at the resolution offset.
// The resolved flag's own update is left to the caller.
func (s *Service) promote(ctx context.Context, rev *revision.Revision, flag types.Flag, res Resolution) (*promotion, error) {
	body, err := s.revs.Body(ctx, rev)
	if err != nil {
		return nil, fmt.Errorf("failed to read revision body: %w", err)
	}
	at := flag.Span.Start
	if res.Offset != nil {
		at = *res.Offset
		if err := checkOffset(body, flag.Span, at); err != nil {
			return nil, err
		}
	}

	title := strings.TrimSpace(res.Title)
	if title == "" {
		title = lineAt(body, at)
	}
	section := res.SectionType
	if section == "" {
		section = cleanup.ClassifyTitle(title)
	}

	chapters, err := s.repo.Chapters(ctx, rev.ID)
	if err != nil {
		return nil, err
	}
	split, err := SplitChapters(chapters, at, rev.Size, title, section)
	if err != nil {
		return nil, err
	}

	ops := []defra.WriteOp{{
		Collection: revision.CollectionChapter,
		Document:   revision.ChapterDoc(rev.ID, split.Added),
		Op:         defra.OpCreate,
	}}
	for _, ch := range split.Changed {
		ops = append(ops, defra.WriteOp{
			Collection: revision.CollectionChapter,
			DocID:      ch.ID,
			Document: map[string]any{
				"number":       ch.Number,
				"start_offset": ch.Span.Start,
				"end_offset":   ch.Span.End,
			},
			Op: defra.OpUpdate,
		})
	}

	flags, err := s.repo.Flags(ctx, rev.ID)
	if err != nil {
		return nil, err
	}
	for _, f := range flags {
		if f.ID == flag.ID {
			continue
		}
		if n := types.ChapterAt(split.Chapters, f.Span.Start); n != f.ChapterNumber {
			ops = append(ops, defra.WriteOp{
				Collection: revision.CollectionFlag,
				DocID:      f.ID,
				Document:   map[string]any{"chapter_number": n},
				Op:         defra.OpUpdate,
			})
		}
	}
	return &promotion{split: split, ops: ops}, nil
}

// maxTitle caps a title taken from the body.
const maxTitle = 120

// lineAt returns the trimmed line starting at off.
func lineAt(body []byte, off int) string {
	if off < 0 || off >= len(body) {
		return ""
	}
	rest := string(body[off:])
	if i := strings.IndexByte(rest, '\n'); i >= 0 {
		rest = rest[:i]
	}
	rest = strings.TrimSpace(rest)
	if len(rest) > maxTitle {
		cut := maxTitle
		for cut > 0 && !isRuneStart(rest[cut]) {
			cut--
		}
		rest = rest[:cut]
	}
	return rest
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

// Approve records an approval for a clean revision. It fails with a
// *BlockedError while any flag is unresolved or a checklist item is
// unchecked. Approvals are append-only; the latest one is authoritative.
func (s *Service) Approve(ctx context.Context, revisionID string, checklist types.Checklist, actor string) (string, error) {
	if strings.TrimSpace(actor) == "" {
		return "", ErrActorRequired
	}
	rev, err := s.repo.GetRevision(ctx, revisionID)
	if err != nil {
		return "", err
	}

	unlock := s.lock(rev.ID)
	defer unlock()

	if err := s.reviewable(ctx, rev); err != nil {
		return "", err
	}
	unresolved, err := s.repo.CountUnresolved(ctx, rev.ID)
	if err != nil {
		return "", err
	}
	if missing := checklist.Missing(); unresolved > 0 || len(missing) > 0 {
		return "", &BlockedError{RevisionID: rev.ID, Unresolved: unresolved, Missing: missing}
	}

	now := s.revs.Now()
	res, err := s.store.Create(ctx, revision.CollectionApproval, map[string]any{
		"revision_id":          rev.ID,
		"actor":                actor,
		"token":                uuid.NewString(),
		"created_at":           store.FormatTime(now),
		"boilerplate_removed":  checklist.BoilerplateRemoved,
		"boundaries_verified":  checklist.BoundariesVerified,
		"punctuation_reviewed": checklist.PunctuationReviewed,
		"archaic_preserved":    checklist.ArchaicPreserved,
	})
	if err != nil {
		return "", fmt.Errorf("failed to record approval: %w", err)
	}
	s.logger.Info("revision approved", "revision_id", rev.ID, "book_id", rev.BookID, "approval_id", res.DocID, "actor", actor)
	return res.DocID, nil
}
