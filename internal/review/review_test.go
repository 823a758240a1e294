package review

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackzampolin/folio/internal/blob"
	"github.com/jackzampolin/folio/internal/revision"
	"github.com/jackzampolin/folio/internal/store"
	"github.com/jackzampolin/folio/internal/types"
)

const text = "CHAPTER I\n\nIntro text here.\n\nII.\n\nHidden chapter text.\n\nCHAPTER III\n\nLast part.\n"

type fakeGuard struct {
	busy map[string]bool
}

func (g *fakeGuard) Busy(_ context.Context, _, revisionID string) (bool, error) {
	return g.busy[revisionID], nil
}

type fixture struct {
	ms    *store.MemoryStore
	revs  *revision.Service
	svc   *Service
	guard *fakeGuard
	revID string
}

func (f *fixture) flag(t *testing.T, typ types.FlagType) types.Flag {
	t.Helper()
	flags, err := f.revs.Repository().Flags(context.Background(), f.revID)
	if err != nil {
		t.Fatal(err)
	}
	for _, fl := range flags {
		if fl.Type == typ {
			return fl
		}
	}
	t.Fatalf("no %s flag", typ)
	return types.Flag{}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	ms := store.NewMemoryStore()
	revs := revision.NewService(revision.Config{
		Store: ms,
		Blobs: blob.NewMemoryStore(),
		Now:   func() time.Time { return time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC) },
	})
	guard := &fakeGuard{busy: map[string]bool{}}
	svc := NewService(Config{Revisions: revs, Guard: guard})

	rev, err := revs.CreateRevision(ctx, revision.CreateInput{BookID: "book-1", Provenance: types.ProvenanceSystem, IsDeterministic: true, Body: []byte(text)})
	if err != nil {
		t.Fatal(err)
	}
	chapters := []types.Chapter{
		{Number: 1, Title: "CHAPTER I", SectionType: types.SectionChapter, Span: types.Span{Start: 0, End: 56}, DetectedHeading: "CHAPTER I"},
		{Number: 2, Title: "CHAPTER III", SectionType: types.SectionChapter, Span: types.Span{Start: 56, End: 80}, DetectedHeading: "CHAPTER III"},
	}
	flags := []types.Flag{
		{Type: types.FlagUnlabeledBoundary, ChapterNumber: 1, Span: types.Span{Start: 29, End: 32}, Context: "II."},
		{Type: types.FlagAmbiguousPunct, ChapterNumber: 2, Span: types.Span{Start: 69, End: 73}, Context: "Last part."},
	}
	if err := revs.AttachChapters(ctx, rev.ID, chapters, flags); err != nil {
		t.Fatal(err)
	}
	return &fixture{ms: ms, revs: revs, svc: svc, guard: guard, revID: rev.ID}
}

func TestSplitChapters(t *testing.T) {
	base := []types.Chapter{
		{ID: "a", Number: 1, Span: types.Span{Start: 10, End: 40}, SectionType: types.SectionChapter},
		{ID: "b", Number: 2, Span: types.Span{Start: 50, End: 90}, SectionType: types.SectionChapter},
	}
	tests := []struct {
		name      string
		at        int
		wantSpans []types.Span
		wantAdded int // index of the added chapter
		changed   []string
	}{
		{"inside first", 25, []types.Span{{Start: 10, End: 25}, {Start: 25, End: 40}, {Start: 50, End: 90}}, 1, []string{"a", "b"}},
		{"inside last", 60, []types.Span{{Start: 10, End: 40}, {Start: 50, End: 60}, {Start: 60, End: 90}}, 2, []string{"b"}},
		{"leading gap", 0, []types.Span{{Start: 0, End: 10}, {Start: 10, End: 40}, {Start: 50, End: 90}}, 0, []string{"a", "b"}},
		{"middle gap", 45, []types.Span{{Start: 10, End: 40}, {Start: 45, End: 50}, {Start: 50, End: 90}}, 1, []string{"b"}},
		{"trailing gap", 95, []types.Span{{Start: 10, End: 40}, {Start: 50, End: 90}, {Start: 95, End: 100}}, 2, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			split, err := SplitChapters(base, tt.at, 100, "New", types.SectionChapter)
			if err != nil {
				t.Fatalf("SplitChapters() error = %v", err)
			}
			if len(split.Chapters) != len(tt.wantSpans) {
				t.Fatalf("got %d chapters, want %d", len(split.Chapters), len(tt.wantSpans))
			}
			for i, ch := range split.Chapters {
				if ch.Span != tt.wantSpans[i] || ch.Number != i+1 {
					t.Errorf("chapter %d = %d %s, want %d %s", i, ch.Number, ch.Span, i+1, tt.wantSpans[i])
				}
			}
			if split.Added.Number != tt.wantAdded+1 || !split.Added.IsUserConfirmed || split.Added.Span.Start != tt.at {
				t.Errorf("added = %+v", split.Added)
			}
			var changed []string
			for _, ch := range split.Changed {
				changed = append(changed, ch.ID)
			}
			if len(changed) != len(tt.changed) {
				t.Fatalf("changed = %v, want %v", changed, tt.changed)
			}
			for i := range changed {
				if changed[i] != tt.changed[i] {
					t.Errorf("changed = %v, want %v", changed, tt.changed)
				}
			}
		})
	}

	if base[0].Span.End != 40 {
		t.Error("SplitChapters modified its input")
	}
	for _, at := range []int{10, 50, -1, 100} {
		if _, err := SplitChapters(base, at, 100, "x", types.SectionChapter); !errors.Is(err, ErrInvalidResolution) {
			t.Errorf("SplitChapters(at=%d) error = %v, want ErrInvalidResolution", at, err)
		}
	}
}

func TestResolveFlag_OverrideSplitsChapter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	candidate := f.flag(t, types.FlagUnlabeledBoundary)

	got, err := f.svc.ResolveFlag(ctx, candidate.ID, Resolution{Status: types.FlagOverridden}, "editor@example.com", "real chapter")
	if err != nil {
		t.Fatalf("ResolveFlag() error = %v", err)
	}
	if got.Chapter == nil || got.Chapter.Span != (types.Span{Start: 29, End: 56}) || got.Chapter.Title != "II." {
		t.Fatalf("new chapter = %+v", got.Chapter)
	}

	chapters, err := f.revs.Repository().Chapters(ctx, f.revID)
	if err != nil {
		t.Fatal(err)
	}
	want := []struct {
		title string
		span  types.Span
	}{
		{"CHAPTER I", types.Span{Start: 0, End: 29}},
		{"II.", types.Span{Start: 29, End: 56}},
		{"CHAPTER III", types.Span{Start: 56, End: 80}},
	}
	if len(chapters) != len(want) {
		t.Fatalf("got %d chapters, want 3", len(chapters))
	}
	for i, ch := range chapters {
		if ch.Number != i+1 || ch.Title != want[i].title || ch.Span != want[i].span {
			t.Errorf("chapter %d = %d %q %s, want %d %q %s", i, ch.Number, ch.Title, ch.Span, i+1, want[i].title, want[i].span)
		}
	}
	if err := revision.ValidateChapters(chapters, len(text)); err != nil {
		t.Errorf("layout after split is invalid: %v", err)
	}
	if !chapters[1].IsUserConfirmed {
		t.Error("promoted chapter should be user confirmed")
	}

	resolved := f.flag(t, types.FlagUnlabeledBoundary)
	if resolved.Status != types.FlagOverridden || resolved.ResolvedBy != "editor@example.com" || resolved.ResolvedAt == nil || resolved.ChapterNumber != 2 {
		t.Errorf("resolved flag = %+v", resolved)
	}
	if later := f.flag(t, types.FlagAmbiguousPunct); later.ChapterNumber != 3 {
		t.Errorf("later flag chapter = %d, want 3", later.ChapterNumber)
	}
}

func TestResolveFlag_ExplicitOffsetAndTitle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	candidate := f.flag(t, types.FlagUnlabeledBoundary)

	// Outside the flag span [29,32).
	far := 34
	if _, err := f.svc.ResolveFlag(ctx, candidate.ID, Resolution{Status: types.FlagOverridden, Offset: &far}, "editor", ""); !errors.Is(err, ErrInvalidResolution) {
		t.Fatalf("ResolveFlag() at %d error = %v, want ErrInvalidResolution", far, err)
	}
	if n := f.ms.Count(revision.CollectionChapter); n != 2 {
		t.Fatalf("rejected offset changed chapters: %d", n)
	}

	at := 30
	got, err := f.svc.ResolveFlag(ctx, candidate.ID, Resolution{
		Status:      types.FlagOverridden,
		Offset:      &at,
		Title:       "Interlude",
		SectionType: types.SectionNotes,
	}, "editor", "")
	if err != nil {
		t.Fatalf("ResolveFlag() error = %v", err)
	}
	if got.Chapter.Span.Start != 30 || got.Chapter.Title != "Interlude" || got.Chapter.SectionType != types.SectionNotes {
		t.Errorf("new chapter = %+v", got.Chapter)
	}
	// The flag start, 29, stays in the first chapter.
	if got.Flag.ChapterNumber != 1 {
		t.Errorf("flag chapter = %d, want 1", got.Flag.ChapterNumber)
	}
}

func TestCheckOffset(t *testing.T) {
	body := []byte("Intro.\n\nÉPILOGUE\n\nEnd.\n")
	span := types.Span{Start: 8, End: 17} // ÉPILOGUE
	tests := []struct {
		name    string
		at      int
		wantErr bool
	}{
		{"flag start", 8, false},
		{"inside span", 10, false},
		{"inside multibyte rune", 9, true},
		{"before span", 7, true},
		{"span end", 17, true},
		{"far away", 20, true},
		{"negative", -1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkOffset(body, span, tt.at)
			if (err != nil) != tt.wantErr {
				t.Fatalf("checkOffset(%d) error = %v, wantErr %v", tt.at, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidResolution) {
				t.Errorf("checkOffset(%d) error = %v, want ErrInvalidResolution", tt.at, err)
			}
		})
	}
}

func TestResolveFlag_OneWay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	punct := f.flag(t, types.FlagAmbiguousPunct)

	if _, err := f.svc.ResolveFlag(ctx, punct.ID, Resolution{Status: types.FlagConfirmed}, "editor", ""); err != nil {
		t.Fatalf("first ResolveFlag() error = %v", err)
	}
	for _, st := range []types.FlagStatus{types.FlagConfirmed, types.FlagRejected, types.FlagOverridden} {
		_, err := f.svc.ResolveFlag(ctx, punct.ID, Resolution{Status: st}, "editor", "")
		if !errors.Is(err, ErrAlreadyResolved) {
			t.Errorf("re-resolve as %s error = %v, want ErrAlreadyResolved", st, err)
		}
	}
	if n := f.ms.Count(revision.CollectionChapter); n != 2 {
		t.Errorf("confirming a punctuation flag changed chapters: %d", n)
	}
}

func TestResolveFlag_Concurrent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	candidate := f.flag(t, types.FlagUnlabeledBoundary)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.ResolveFlag(ctx, candidate.ID, Resolution{Status: types.FlagOverridden}, "editor", "")
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case !errors.Is(err, ErrAlreadyResolved):
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Errorf("%d resolves succeeded, want 1", ok)
	}
	if n := f.ms.Count(revision.CollectionChapter); n != 3 {
		t.Errorf("chapters = %d, want 3", n)
	}
}

func TestResolveFlag_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	candidate := f.flag(t, types.FlagUnlabeledBoundary)

	tests := []struct {
		name  string
		res   Resolution
		actor string
		setup func()
		want  error
	}{
		{name: "no actor", res: Resolution{Status: types.FlagConfirmed}, want: ErrActorRequired},
		{name: "not a resolution", res: Resolution{Status: types.FlagUnresolved}, actor: "ed", want: ErrInvalidResolution},
		{name: "bad section", res: Resolution{Status: types.FlagOverridden, SectionType: "epilogue"}, actor: "ed", want: ErrInvalidResolution},
		{name: "job running", res: Resolution{Status: types.FlagConfirmed}, actor: "ed", setup: func() { f.guard.busy[f.revID] = true }, want: ErrNotReviewable},
		{name: "missing flag", res: Resolution{Status: types.FlagConfirmed}, actor: "ed", want: store.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				tt.setup()
				defer func() { f.guard.busy = map[string]bool{} }()
			}
			id := candidate.ID
			if tt.name == "missing flag" {
				id = "no-such-flag"
			}
			_, err := f.svc.ResolveFlag(ctx, id, tt.res, tt.actor, "")
			if !errors.Is(err, tt.want) {
				t.Errorf("ResolveFlag() error = %v, want %v", err, tt.want)
			}
		})
	}

	t.Run("revision without chapters", func(t *testing.T) {
		rev, err := f.revs.CreateRevision(ctx, revision.CreateInput{BookID: "book-1", Provenance: types.ProvenanceUser, Body: []byte(text)})
		if err != nil {
			t.Fatal(err)
		}
		f.ms.SetDoc(revision.CollectionFlag, "orphan", revision.FlagDoc(rev.ID, types.Flag{Type: types.FlagLowConfidence, Span: types.Span{Start: 0, End: 3}}))
		_, err = f.svc.ResolveFlag(ctx, "orphan", Resolution{Status: types.FlagRejected}, "ed", "")
		if !errors.Is(err, ErrNotReviewable) {
			t.Errorf("ResolveFlag() error = %v, want ErrNotReviewable", err)
		}
	})

	t.Run("batch failure changes nothing", func(t *testing.T) {
		f.ms.BatchErr = errors.New("connection reset")
		defer f.ms.ClearErrors()

		if _, err := f.svc.ResolveFlag(ctx, candidate.ID, Resolution{Status: types.FlagOverridden}, "ed", ""); err == nil {
			t.Fatal("ResolveFlag() should fail")
		}
		if n := f.ms.Count(revision.CollectionChapter); n != 2 {
			t.Errorf("chapters = %d, want 2", n)
		}
		if fl := f.flag(t, types.FlagUnlabeledBoundary); fl.Status != types.FlagUnresolved {
			t.Errorf("flag status = %s, want unresolved", fl.Status)
		}
	})
}

func TestApprove(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	full := types.Checklist{BoilerplateRemoved: true, BoundariesVerified: true, PunctuationReviewed: true, ArchaicPreserved: true}

	_, err := f.svc.Approve(ctx, f.revID, full, "editor")
	var blocked *BlockedError
	if !errors.As(err, &blocked) || !errors.Is(err, ErrBlocked) {
		t.Fatalf("Approve() error = %v, want *BlockedError", err)
	}
	if blocked.Unresolved != 2 {
		t.Errorf("Unresolved = %d, want 2", blocked.Unresolved)
	}

	for _, typ := range []types.FlagType{types.FlagUnlabeledBoundary, types.FlagAmbiguousPunct} {
		fl := f.flag(t, typ)
		if _, err := f.svc.ResolveFlag(ctx, fl.ID, Resolution{Status: types.FlagRejected}, "editor", ""); err != nil {
			t.Fatal(err)
		}
	}
	if st, _ := f.revs.State(ctx, f.revID); st != types.StateClean {
		t.Errorf("state = %s, want clean", st)
	}

	_, err = f.svc.Approve(ctx, f.revID, types.Checklist{BoilerplateRemoved: true}, "editor")
	if !errors.As(err, &blocked) || blocked.Unresolved != 0 || len(blocked.Missing) != 3 {
		t.Errorf("incomplete checklist error = %v", err)
	}
	if _, err := f.svc.Approve(ctx, f.revID, full, ""); !errors.Is(err, ErrActorRequired) {
		t.Errorf("Approve() without actor error = %v", err)
	}

	first, err := f.svc.Approve(ctx, f.revID, full, "editor")
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	second, err := f.svc.Approve(ctx, f.revID, full, "chief")
	if err != nil {
		t.Fatalf("second Approve() error = %v", err)
	}
	if first == second {
		t.Error("approvals should be distinct records")
	}

	status, err := f.revs.Status(ctx, f.revID)
	if err != nil {
		t.Fatal(err)
	}
	if status.State != types.StateApproved || status.Approval == nil || status.Approval.ID != second {
		t.Errorf("status = %s approval %+v, want approved by %s", status.State, status.Approval, second)
	}
	if n := f.ms.Count(revision.CollectionApproval); n != 2 {
		t.Errorf("approval records = %d, want 2", n)
	}
}
