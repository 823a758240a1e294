package endpoints

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/cleanup"
	"github.com/jackzampolin/folio/internal/ingest"
	"github.com/jackzampolin/folio/internal/jobs"
	"github.com/jackzampolin/folio/internal/jobs/cleanup_book"
	"github.com/jackzampolin/folio/internal/svcctx"
	"github.com/jackzampolin/folio/internal/types"
)

// CreateOriginalRequest is the request body for capturing an original.
// Plain text goes in Text; an EPUB goes base64 encoded in Data.
type CreateOriginalRequest struct {
	Kind   string `json:"kind,omitempty"`
	Text   string `json:"text,omitempty"`
	Data   []byte `json:"data,omitempty"`
	Title  string `json:"title,omitempty"`
	Author string `json:"author,omitempty"`
}

// CreateOriginalResponse is the response for capturing an original.
type CreateOriginalResponse struct {
	Original *types.Original `json:"original"`
	Chapters int             `json:"source_chapters"`
	Warnings int             `json:"warnings"`
}

// CreateOriginalEndpoint handles POST /api/books/{book_id}/originals.
type CreateOriginalEndpoint struct{}

func (e *CreateOriginalEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/books/{book_id}/originals", e.handler
}

func (e *CreateOriginalEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Capture an original
//	@Description	Store the source text of a book. EPUB input is normalized to markdown.
//	@Tags			books
//	@Accept			json
//	@Produce		json
//	@Param			book_id	path		string					true	"Book ID"
//	@Param			body	body		CreateOriginalRequest	true	"Source"
//	@Success		201		{object}	CreateOriginalResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Router			/api/books/{book_id}/originals [post]
func (e *CreateOriginalEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req CreateOriginalRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	data := req.Data
	if len(data) == 0 {
		data = []byte(req.Text)
	}

	revs := svcctx.RevisionsFrom(r.Context())
	if revs == nil {
		writeError(w, http.StatusServiceUnavailable, "revision service not initialized")
		return
	}

	res, err := ingest.Ingest(r.Context(), revs, ingest.Request{
		BookID: r.PathValue("book_id"),
		Kind:   req.Kind,
		Data:   data,
		Title:  req.Title,
		Author: req.Author,
		Logger: svcctx.LoggerFrom(r.Context()),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateOriginalResponse{
		Original: &res.Original.Original,
		Chapters: len(res.Document.Chapters),
		Warnings: len(res.Document.Warnings),
	})
}

func (e *CreateOriginalEndpoint) Command(getServerURL func() string) *cobra.Command {
	var title, author string
	cmd := &cobra.Command{
		Use:   "ingest <book_id> <file>",
		Short: "Capture an original from a text or EPUB file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[1], err)
			}
			if title == "" {
				title = strings.TrimSuffix(filepath.Base(args[1]), filepath.Ext(args[1]))
			}
			req := CreateOriginalRequest{Kind: ingest.DetectKind(data), Title: title, Author: author}
			if req.Kind == ingest.KindText {
				req.Text = string(data)
			} else {
				req.Data = data
			}

			client := api.NewClient(getServerURL())
			var resp CreateOriginalResponse
			if err := client.Post(cmd.Context(), "/api/books/"+args[0]+"/originals", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Title (default: EPUB metadata or file name)")
	cmd.Flags().StringVar(&author, "author", "", "Author")
	return cmd
}

// StartCleanupRequest is the request body for starting a cleanup job.
// Unset fields take the server's current defaults.
type StartCleanupRequest struct {
	OriginalID          string   `json:"original_id,omitempty"`
	Locale              string   `json:"locale,omitempty"`
	PreserveArchaic     *bool    `json:"preserve_archaic,omitempty"`
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
	MinChapterChars     *int     `json:"min_chapter_chars,omitempty"`
}

func (req StartCleanupRequest) config(defaults cleanup.Config) *cleanup.Config {
	if req.Locale == "" && req.PreserveArchaic == nil && req.ConfidenceThreshold == nil && req.MinChapterChars == nil {
		return nil
	}
	cfg := defaults
	if req.Locale != "" {
		cfg.Locale = req.Locale
	}
	if req.PreserveArchaic != nil {
		cfg.PreserveArchaic = *req.PreserveArchaic
	}
	if req.ConfidenceThreshold != nil {
		cfg.ConfidenceThreshold = *req.ConfidenceThreshold
	}
	if req.MinChapterChars != nil {
		cfg.MinChapterChars = *req.MinChapterChars
	}
	return &cfg
}

// JobAcceptedResponse is returned when a job is queued.
type JobAcceptedResponse struct {
	JobID  string     `json:"job_id"`
	BookID string     `json:"book_id"`
	Stage  jobs.Stage `json:"stage"`
}

// StartCleanupEndpoint handles POST /api/books/{book_id}/cleanup.
type StartCleanupEndpoint struct{}

func (e *StartCleanupEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/books/{book_id}/cleanup", e.handler
}

func (e *StartCleanupEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Start a cleanup job
//	@Description	Queue the deterministic cleanup of a book's original.
//	@Tags			books
//	@Accept			json
//	@Produce		json
//	@Param			book_id	path		string				true	"Book ID"
//	@Param			body	body		StartCleanupRequest	false	"Options"
//	@Success		202		{object}	JobAcceptedResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Router			/api/books/{book_id}/cleanup [post]
func (e *StartCleanupEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req StartCleanupRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	orch := svcctx.CleanupFrom(r.Context())
	pool := svcctx.PoolFrom(r.Context())
	rt := svcctx.RuntimeFrom(r.Context())
	if orch == nil || pool == nil || rt == nil {
		writeError(w, http.StatusServiceUnavailable, "job services not initialized")
		return
	}

	rec, err := orch.Start(r.Context(), r.PathValue("book_id"), cleanup_book.Options{
		OriginalID: req.OriginalID,
		Config:     req.config(rt.CleanupDefaults()),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if err := submit(r, pool, orch.Job(rec.ID), rec); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, JobAcceptedResponse{JobID: rec.ID, BookID: rec.BookID, Stage: rec.Stage})
}

func (e *StartCleanupEndpoint) Command(getServerURL func() string) *cobra.Command {
	var req StartCleanupRequest
	var archaic bool
	cmd := &cobra.Command{
		Use:   "cleanup <book_id>",
		Short: "Start a cleanup job for a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("preserve-archaic") {
				req.PreserveArchaic = &archaic
			}
			client := api.NewClient(getServerURL())
			var resp JobAcceptedResponse
			if err := client.Post(cmd.Context(), "/api/books/"+args[0]+"/cleanup", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&req.OriginalID, "original", "", "Original ID (default: latest)")
	cmd.Flags().StringVar(&req.Locale, "locale", "", "Punctuation locale (en or fr)")
	cmd.Flags().BoolVar(&archaic, "preserve-archaic", false, "Keep archaic apostrophe forms")
	return cmd
}

// ListRevisionsResponse lists a book's revisions.
type ListRevisionsResponse struct {
	Revisions []*types.Revision `json:"revisions"`
}

// ListRevisionsEndpoint handles GET /api/books/{book_id}/revisions.
type ListRevisionsEndpoint struct{}

func (e *ListRevisionsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/books/{book_id}/revisions", e.handler
}

func (e *ListRevisionsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	List a book's revisions
//	@Tags		books
//	@Produce	json
//	@Param		book_id	path		string	true	"Book ID"
//	@Success	200		{object}	ListRevisionsResponse
//	@Router		/api/books/{book_id}/revisions [get]
func (e *ListRevisionsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	revs := svcctx.RevisionsFrom(r.Context())
	if revs == nil {
		writeError(w, http.StatusServiceUnavailable, "revision service not initialized")
		return
	}
	list, err := revs.Repository().Revisions(r.Context(), r.PathValue("book_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	resp := ListRevisionsResponse{Revisions: make([]*types.Revision, 0, len(list))}
	for _, rev := range list {
		resp.Revisions = append(resp.Revisions, &rev.Revision)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (e *ListRevisionsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "revisions <book_id>",
		Short: "List a book's revisions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ListRevisionsResponse
			if err := client.Get(cmd.Context(), "/api/books/"+args[0]+"/revisions", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// submit queues job on pool. A job the pool refuses is failed and its
// token released so the book is not left locked.
func submit(r *http.Request, pool *jobs.Pool, job jobs.Job, rec *jobs.Record) error {
	err := pool.Submit(job)
	if err == nil {
		return nil
	}
	ctx := r.Context()
	if s := svcctx.ServicesFrom(ctx); s != nil {
		if ferr := s.Jobs.Fail(ctx, rec, rec.Stage, err); ferr != nil {
			svcctx.LoggerFrom(ctx).Warn("failed to record rejected job", "job_id", rec.ID, "error", ferr)
		}
		if rerr := s.Active.Release(ctx, rec.BookID, rec.ID); rerr != nil {
			svcctx.LoggerFrom(ctx).Warn("failed to release rejected job", "job_id", rec.ID, "error", rerr)
		}
	}
	return err
}
