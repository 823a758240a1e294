package cleanup_book

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackzampolin/folio/internal/blob"
	"github.com/jackzampolin/folio/internal/cleanup"
	"github.com/jackzampolin/folio/internal/jobs"
	"github.com/jackzampolin/folio/internal/revision"
	"github.com/jackzampolin/folio/internal/store"
	"github.com/jackzampolin/folio/internal/types"
)

const book = `The Project Gutenberg eBook of Test
*** START OF THE PROJECT GUTENBERG EBOOK TEST ***

CHAPTER I.

It was a dark and stormy night; the rain fell in torrents, except at
occasional intervals, when it was checked by a violent gust of wind.

CHAPTER II.

“Hello,” said the stranger, who had been waiting by the door for an
hour or more, and who seemed in no hurry at all to come inside.

*** END OF THE PROJECT GUTENBERG EBOOK TEST ***
License text.
`

type fixture struct {
	ms     *store.MemoryStore
	blobs  *blob.MemoryStore
	revs   *revision.Service
	jobs   *jobs.Manager
	active *jobs.ActiveJobs
	orch   *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ms := store.NewMemoryStore()
	ms.UniqueIndex(jobs.CollectionActiveJob, "book_id")
	ms.UniqueIndex(revision.CollectionRevision, "book_seq")
	ms.UniqueIndex(revision.CollectionOriginal, "book_seq")
	blobs := blob.NewMemoryStore()

	f := &fixture{ms: ms, blobs: blobs}
	f.revs = revision.NewService(revision.Config{Store: ms, Blobs: blobs, Now: func() time.Time {
		return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	}})
	f.jobs = jobs.NewManager(ms, nil)
	f.active = jobs.NewActiveJobs(ms, nil)
	f.orch = New(Config{Revisions: f.revs, Jobs: f.jobs, Active: f.active})
	return f
}

func (f *fixture) original(t *testing.T, bookID, body string) *revision.Original {
	t.Helper()
	o, err := f.revs.CreateOriginal(context.Background(), revision.OriginalInput{
		BookID: bookID, Format: types.FormatGutenbergTxt, Body: []byte(body),
	})
	if err != nil {
		t.Fatalf("CreateOriginal() error = %v", err)
	}
	return o
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.original(t, "book-1", book)

	rec, err := f.orch.Start(ctx, "book-1", Options{})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if rec.Stage != jobs.StageQueued {
		t.Fatalf("new job stage = %s", rec.Stage)
	}

	rec, err = f.orch.Run(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rec.Stage != jobs.StageCompleted || rec.Progress != 100 || rec.RevisionID == "" {
		t.Fatalf("finished job = %+v", rec)
	}

	want, err := cleanup.Run(book, cleanup.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	rev, err := f.revs.Repository().GetRevision(ctx, rec.RevisionID)
	if err != nil {
		t.Fatal(err)
	}
	if rev.Provenance != types.ProvenanceSystem || !rev.IsDeterministic || !rev.ChaptersAttached {
		t.Errorf("revision = %+v", rev.Revision)
	}
	got, err := f.revs.Body(ctx, rev)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != want.NormalizedText {
		t.Errorf("staged body differs from a direct run:\n%q\n%q", got, want.NormalizedText)
	}

	chapters, _ := f.revs.Repository().Chapters(ctx, rev.ID)
	if len(chapters) != len(want.Chapters) || rec.ChaptersDetected != len(want.Chapters) {
		t.Errorf("chapters = %d (job says %d), want %d", len(chapters), rec.ChaptersDetected, len(want.Chapters))
	}
	if cur, _ := f.active.Current(ctx, "book-1"); cur != nil {
		t.Errorf("active job not released: %+v", cur)
	}
	if state, _ := f.revs.State(ctx, rev.ID); state != types.StateClean {
		t.Errorf("state = %s, want clean", state)
	}
}

func TestStart_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	other := f.original(t, "book-2", book)

	if _, err := f.orch.Start(ctx, "book-1", Options{}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Start() with no original error = %v, want ErrNotFound", err)
	}
	if _, err := f.orch.Start(ctx, "book-1", Options{OriginalID: other.ID}); !errors.Is(err, revision.ErrInvalidInput) {
		t.Errorf("Start() with another book's original error = %v, want ErrInvalidInput", err)
	}
	bad := cleanup.DefaultConfig()
	bad.Locale = "de"
	if _, err := f.orch.Start(ctx, "book-2", Options{Config: &bad}); !errors.Is(err, revision.ErrInvalidInput) {
		t.Errorf("Start() with bad config error = %v, want ErrInvalidInput", err)
	}

	first, err := f.orch.Start(ctx, "book-2", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.orch.Start(ctx, "book-2", Options{}); !errors.Is(err, jobs.ErrJobActive) {
		t.Errorf("second Start() error = %v, want ErrJobActive", err)
	}
	list, _ := f.jobs.List(ctx, jobs.ListFilter{BookID: "book-2"})
	if len(list) != 1 || list[0].ID != first.ID {
		t.Errorf("rejected start left a job record: %+v", list)
	}
}

func TestRun_EmptySource(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.original(t, "book-1", "*** START OF X ***\n\n*** END OF X ***\n")

	rec, err := f.orch.Start(ctx, "book-1", Options{})
	if err != nil {
		t.Fatal(err)
	}
	rec, err = f.orch.Run(ctx, rec.ID)
	if !errors.Is(err, ErrStageFailure) || !errors.Is(err, cleanup.ErrEmptySource) {
		t.Fatalf("Run() error = %v, want stage failure wrapping ErrEmptySource", err)
	}
	if stage, _ := ErrorStage(err); stage != jobs.StageBoilerplate {
		t.Errorf("failed in %s, want %s", stage, jobs.StageBoilerplate)
	}
	if rec.Stage != jobs.StageFailed || rec.FailedStage != jobs.StageBoilerplate || rec.Error == "" {
		t.Errorf("job = %+v", rec)
	}
	if f.ms.Count(revision.CollectionRevision) != 0 {
		t.Error("failed job created a revision")
	}
	if cur, _ := f.active.Current(ctx, "book-1"); cur != nil {
		t.Error("failed job kept the active token")
	}
}

func TestRun_InvariantViolation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.original(t, "book-1", book)

	rec, err := f.orch.Start(ctx, "book-1", Options{})
	if err != nil {
		t.Fatal(err)
	}
	f.ms.BatchErr = &revision.InvariantError{Op: "attach", Detail: "chapter 2 overlaps chapter 1"}
	rec, err = f.orch.Run(ctx, rec.ID)
	f.ms.ClearErrors()

	if !errors.Is(err, revision.ErrInvariantViolation) || !errors.Is(err, ErrStageFailure) {
		t.Fatalf("Run() error = %v, want stage failure wrapping ErrInvariantViolation", err)
	}
	if stage, _ := ErrorStage(err); stage != jobs.StagePunctuation {
		t.Errorf("failed in %s, want %s", stage, jobs.StagePunctuation)
	}

	got, err := f.jobs.Get(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Stage != jobs.StageFailed || got.FailedStage != jobs.StagePunctuation || got.Error == "" {
		t.Errorf("job = %+v", got)
	}
	if got.RevisionID == "" {
		t.Fatal("job lost its revision id")
	}
	rev, err := f.revs.Repository().GetRevision(ctx, got.RevisionID)
	if err != nil {
		t.Fatal(err)
	}
	if rev.ChaptersAttached {
		t.Error("revision marked attached after a failed commit")
	}
	if n := f.ms.Count(revision.CollectionChapter); n != 0 {
		t.Errorf("chapters = %d, want 0", n)
	}
	if n := f.ms.Count(revision.CollectionFlag); n != 0 {
		t.Errorf("flags = %d, want 0", n)
	}
	if state, _ := f.revs.State(ctx, rev.ID); state != types.StateCreated {
		t.Errorf("state = %s, want created", state)
	}
	if cur, _ := f.active.Current(ctx, "book-1"); cur != nil {
		t.Error("failed job kept the active token")
	}
}

func TestRun_Cancelled(t *testing.T) {
	f := newFixture(t)
	f.original(t, "book-1", book)

	rec, err := f.orch.Start(context.Background(), "book-1", Options{})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.orch.Run(ctx, rec.ID)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	got, _ := f.jobs.Get(context.Background(), rec.ID)
	if got.Stage != jobs.StageFailed || got.FailedStage != jobs.StageLoading {
		t.Errorf("cancelled job = %+v", got)
	}
}

func TestResume(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.original(t, "book-1", book)

	rec, err := f.orch.Start(ctx, "book-1", Options{})
	if err != nil {
		t.Fatal(err)
	}

	f.ms.BatchErr = errors.New("defra unavailable")
	failed, err := f.orch.Run(ctx, rec.ID)
	if stage, ok := ErrorStage(err); !ok || stage != jobs.StagePunctuation {
		t.Fatalf("Run() error = %v, want failure in %s", err, jobs.StagePunctuation)
	}
	if failed.Checkpoint.Stage != jobs.StageDetection || failed.RevisionID == "" {
		t.Fatalf("failed job = %+v", failed)
	}
	if chapters, _ := f.revs.Repository().Chapters(ctx, failed.RevisionID); len(chapters) != 0 {
		t.Fatalf("failed attach left %d chapters", len(chapters))
	}
	if state, _ := f.revs.State(ctx, failed.RevisionID); state != types.StateCreated {
		t.Errorf("unattached revision state = %s, want created", state)
	}
	f.ms.ClearErrors()

	resumed, err := f.orch.Resume(ctx, failed.ID)
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if resumed.ID == failed.ID || resumed.ResumedFrom != failed.ID || resumed.Checkpoint != failed.Checkpoint {
		t.Fatalf("resumed job = %+v", resumed)
	}
	putsBefore := f.blobs.Len()

	done, err := f.orch.Run(ctx, resumed.ID)
	if err != nil {
		t.Fatalf("Run() after resume error = %v", err)
	}
	if done.Stage != jobs.StageCompleted || done.RevisionID != failed.RevisionID {
		t.Errorf("resumed job = %+v, want completed on revision %s", done, failed.RevisionID)
	}
	if f.ms.Count(revision.CollectionRevision) != 1 {
		t.Errorf("resume created %d revisions, want 1", f.ms.Count(revision.CollectionRevision))
	}
	if f.blobs.Len() != putsBefore {
		t.Error("resume recomputed stages before the checkpoint")
	}
	chapters, _ := f.revs.Repository().Chapters(ctx, done.RevisionID)
	if len(chapters) != 2 {
		t.Errorf("chapters = %d, want 2", len(chapters))
	}

	if _, err := f.orch.Resume(ctx, done.ID); !errors.Is(err, ErrNotResumable) {
		t.Errorf("Resume() of a completed job error = %v, want ErrNotResumable", err)
	}
	if _, err := f.orch.Run(ctx, failed.ID); !errors.Is(err, ErrNotResumable) {
		t.Errorf("Run() of a failed job error = %v, want ErrNotResumable", err)
	}
}

func TestResume_Interrupted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.original(t, "book-1", book)

	rec, err := f.orch.Start(ctx, "book-1", Options{})
	if err != nil {
		t.Fatal(err)
	}
	// Writes stop after the unwrap checkpoint, so neither the failure nor
	// the release can be recorded: the job looks like it crashed.
	f.ms.SetErrorAfterNWrites(5)
	if _, err := f.orch.Run(ctx, rec.ID); err == nil {
		t.Fatal("Run() should fail once writes stop")
	}
	f.ms.ClearErrors()

	stuck, _ := f.jobs.Get(ctx, rec.ID)
	if stuck.Stage.IsTerminal() || stuck.Checkpoint.Stage != jobs.StageUnwrap {
		t.Fatalf("interrupted job = %+v", stuck)
	}
	if _, err := f.orch.Start(ctx, "book-1", Options{}); !errors.Is(err, jobs.ErrJobActive) {
		t.Errorf("Start() during an interrupted job error = %v, want ErrJobActive", err)
	}

	resumed, err := f.orch.Resume(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if resumed.ID != rec.ID {
		t.Errorf("interrupted job resumed as %s, want %s", resumed.ID, rec.ID)
	}
	done, err := f.orch.Run(ctx, resumed.ID)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if done.Stage != jobs.StageCompleted || done.ChaptersDetected != 2 {
		t.Errorf("job = %+v", done)
	}
}

func TestPoolJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t)
	f.original(t, "book-1", book)

	pool := jobs.NewPool(jobs.PoolConfig{WorkerCount: 1, QueueSize: 4})
	go pool.Start(ctx)

	rec, err := f.orch.Start(ctx, "book-1", Options{})
	if err != nil {
		t.Fatal(err)
	}
	j := f.orch.Job(rec.ID)
	if j.ID() != rec.ID || j.Kind() != jobs.KindCleanup {
		t.Fatalf("job adapter = %s/%s", j.ID(), j.Kind())
	}
	if err := pool.Submit(j); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		got, err := f.jobs.Get(ctx, rec.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Stage == jobs.StageCompleted {
			break
		}
		if got.Stage == jobs.StageFailed || time.Now().After(deadline) {
			t.Fatalf("pooled job = %+v", got)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
