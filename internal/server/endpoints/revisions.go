package endpoints

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/revision"
	"github.com/jackzampolin/folio/internal/svcctx"
	"github.com/jackzampolin/folio/internal/types"
)

// CreateRevisionRequest is the request body for a user edited revision.
// A nil Text inherits the parent's body.
type CreateRevisionRequest struct {
	BookID          string          `json:"book_id"`
	ParentID        string          `json:"parent_id,omitempty"`
	OriginalID      string          `json:"original_id,omitempty"`
	Text            *string         `json:"text,omitempty"`
	PreserveArchaic bool            `json:"preserve_archaic,omitempty"`
	Chapters        []types.Chapter `json:"chapters,omitempty"`
}

// CreateRevisionEndpoint handles POST /api/revisions.
type CreateRevisionEndpoint struct{}

func (e *CreateRevisionEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/revisions", e.handler
}

func (e *CreateRevisionEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Create a revision
//	@Description	Store a user edited revision. Chapters, when given, are attached at once.
//	@Tags			revisions
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateRevisionRequest	true	"Revision"
//	@Success		201		{object}	revision.Status
//	@Failure		400		{object}	ErrorResponse
//	@Failure		422		{object}	ErrorResponse
//	@Router			/api/revisions [post]
func (e *CreateRevisionEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req CreateRevisionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	revs := svcctx.RevisionsFrom(r.Context())
	if revs == nil {
		writeError(w, http.StatusServiceUnavailable, "revision service not initialized")
		return
	}

	in := revision.CreateInput{
		BookID:          req.BookID,
		ParentID:        req.ParentID,
		OriginalID:      req.OriginalID,
		Provenance:      types.ProvenanceUser,
		PreserveArchaic: req.PreserveArchaic,
		Chapters:        req.Chapters,
	}
	if req.Text != nil {
		in.Body = []byte(*req.Text)
	}
	rev, err := revs.CreateRevision(r.Context(), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	st, err := revs.Status(r.Context(), rev.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (e *CreateRevisionEndpoint) Command(getServerURL func() string) *cobra.Command {
	var req CreateRevisionRequest
	var file string
	cmd := &cobra.Command{
		Use:   "create <book_id>",
		Short: "Create a user edited revision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.BookID = args[0]
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", file, err)
				}
				text := string(data)
				req.Text = &text
			}
			client := api.NewClient(getServerURL())
			var st revision.Status
			if err := client.Post(cmd.Context(), "/api/revisions", req, &st); err != nil {
				return err
			}
			return api.Output(st)
		},
	}
	cmd.Flags().StringVar(&req.ParentID, "parent", "", "Parent revision ID")
	cmd.Flags().StringVar(&req.OriginalID, "original", "", "Original ID")
	cmd.Flags().StringVar(&file, "file", "", "Revision text (default: inherit the parent's)")
	cmd.Flags().BoolVar(&req.PreserveArchaic, "preserve-archaic", false, "Mark archaic forms as preserved")
	return cmd
}

// GetRevisionEndpoint handles GET /api/revisions/{id}.
type GetRevisionEndpoint struct{}

func (e *GetRevisionEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/revisions/{id}", e.handler
}

func (e *GetRevisionEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Get a revision with its derived state
//	@Tags		revisions
//	@Produce	json
//	@Param		id	path		string	true	"Revision ID"
//	@Success	200	{object}	revision.Status
//	@Failure	404	{object}	ErrorResponse
//	@Router		/api/revisions/{id} [get]
func (e *GetRevisionEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	revs := svcctx.RevisionsFrom(r.Context())
	if revs == nil {
		writeError(w, http.StatusServiceUnavailable, "revision service not initialized")
		return
	}
	st, err := revs.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (e *GetRevisionEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get a revision and its review state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var st revision.Status
			if err := client.Get(cmd.Context(), "/api/revisions/"+args[0], &st); err != nil {
				return err
			}
			return api.Output(st)
		},
	}
}

// RevisionTextResponse carries a revision body.
type RevisionTextResponse struct {
	RevisionID string `json:"revision_id"`
	Text       string `json:"text"`
}

// GetRevisionTextEndpoint handles GET /api/revisions/{id}/text.
type GetRevisionTextEndpoint struct{}

func (e *GetRevisionTextEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/revisions/{id}/text", e.handler
}

func (e *GetRevisionTextEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Get a revision's text
//	@Tags		revisions
//	@Produce	json
//	@Param		id	path		string	true	"Revision ID"
//	@Success	200	{object}	RevisionTextResponse
//	@Failure	404	{object}	ErrorResponse
//	@Router		/api/revisions/{id}/text [get]
func (e *GetRevisionTextEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	revs := svcctx.RevisionsFrom(r.Context())
	if revs == nil {
		writeError(w, http.StatusServiceUnavailable, "revision service not initialized")
		return
	}
	rev, err := revs.Repository().GetRevision(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	body, err := revs.Body(r.Context(), rev)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RevisionTextResponse{RevisionID: rev.ID, Text: string(body)})
}

func (e *GetRevisionTextEndpoint) Command(getServerURL func() string) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "text <id>",
		Short: "Print or save a revision's text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp RevisionTextResponse
			if err := client.Get(cmd.Context(), "/api/revisions/"+args[0]+"/text", &resp); err != nil {
				return err
			}
			if out != "" {
				return os.WriteFile(out, []byte(resp.Text), 0o644)
			}
			_, err := fmt.Fprint(cmd.OutOrStdout(), resp.Text)
			return err
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "Write the text to a file")
	return cmd
}

// ChaptersResponse lists a revision's chapters.
type ChaptersResponse struct {
	Chapters []types.Chapter `json:"chapters"`
}

// ListChaptersEndpoint handles GET /api/revisions/{id}/chapters.
type ListChaptersEndpoint struct{}

func (e *ListChaptersEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/revisions/{id}/chapters", e.handler
}

func (e *ListChaptersEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	List a revision's chapters
//	@Tags		revisions
//	@Produce	json
//	@Param		id	path		string	true	"Revision ID"
//	@Success	200	{object}	ChaptersResponse
//	@Failure	404	{object}	ErrorResponse
//	@Router		/api/revisions/{id}/chapters [get]
func (e *ListChaptersEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	revs := svcctx.RevisionsFrom(r.Context())
	if revs == nil {
		writeError(w, http.StatusServiceUnavailable, "revision service not initialized")
		return
	}
	id := r.PathValue("id")
	if _, err := revs.Repository().GetRevision(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	chapters, err := revs.Repository().Chapters(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if chapters == nil {
		chapters = []types.Chapter{}
	}
	writeJSON(w, http.StatusOK, ChaptersResponse{Chapters: chapters})
}

func (e *ListChaptersEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "chapters <id>",
		Short: "List a revision's chapters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ChaptersResponse
			if err := client.Get(cmd.Context(), "/api/revisions/"+args[0]+"/chapters", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// FlagsResponse lists a revision's flags.
type FlagsResponse struct {
	Flags []types.Flag `json:"flags"`
}

// ListFlagsEndpoint handles GET /api/revisions/{id}/flags.
type ListFlagsEndpoint struct{}

func (e *ListFlagsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/revisions/{id}/flags", e.handler
}

func (e *ListFlagsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	List a revision's flags
//	@Tags		revisions
//	@Produce	json
//	@Param		id		path		string	true	"Revision ID"
//	@Param		status	query		string	false	"Filter by status"
//	@Success	200		{object}	FlagsResponse
//	@Failure	400		{object}	ErrorResponse
//	@Failure	404		{object}	ErrorResponse
//	@Router		/api/revisions/{id}/flags [get]
func (e *ListFlagsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	revs := svcctx.RevisionsFrom(r.Context())
	if revs == nil {
		writeError(w, http.StatusServiceUnavailable, "revision service not initialized")
		return
	}
	var status types.FlagStatus
	if s := r.URL.Query().Get("status"); s != "" {
		st, err := types.ParseFlagStatus(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		status = st
	}

	id := r.PathValue("id")
	if _, err := revs.Repository().GetRevision(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	flags, err := revs.Repository().Flags(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]types.Flag, 0, len(flags))
	for _, f := range flags {
		if status == "" || f.Status == status {
			out = append(out, f)
		}
	}
	writeJSON(w, http.StatusOK, FlagsResponse{Flags: out})
}

func (e *ListFlagsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "flags <id>",
		Short: "List a revision's flags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/revisions/" + args[0] + "/flags"
			if status != "" {
				path += "?" + url.Values{"status": {status}}.Encode()
			}
			client := api.NewClient(getServerURL())
			var resp FlagsResponse
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (unresolved, confirmed, rejected, overridden)")
	return cmd
}

// LayoutResponse lists records whose large bodies are stored inline.
type LayoutResponse struct {
	BookID     string                     `json:"book_id"`
	Threshold  int                        `json:"threshold"`
	Violations []revision.LayoutViolation `json:"violations"`
}

// CheckLayoutEndpoint handles GET /api/books/{book_id}/layout.
type CheckLayoutEndpoint struct{}

func (e *CheckLayoutEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/books/{book_id}/layout", e.handler
}

func (e *CheckLayoutEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Check body storage layout
//	@Tags		books
//	@Produce	json
//	@Param		book_id		path		string	true	"Book ID"
//	@Param		threshold	query		int		false	"Inline size limit in bytes"
//	@Success	200			{object}	LayoutResponse
//	@Router		/api/books/{book_id}/layout [get]
func (e *CheckLayoutEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	revs := svcctx.RevisionsFrom(r.Context())
	if revs == nil {
		writeError(w, http.StatusServiceUnavailable, "revision service not initialized")
		return
	}
	threshold := 0
	if s := r.URL.Query().Get("threshold"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "threshold must be a non-negative integer")
			return
		}
		threshold = n
	}
	bookID := r.PathValue("book_id")
	violations, err := revs.CheckLayout(r.Context(), bookID, threshold)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if violations == nil {
		violations = []revision.LayoutViolation{}
	}
	writeJSON(w, http.StatusOK, LayoutResponse{BookID: bookID, Threshold: threshold, Violations: violations})
}

func (e *CheckLayoutEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "layout <book_id>",
		Short: "Report large bodies stored inline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp LayoutResponse
			if err := client.Get(cmd.Context(), "/api/books/"+args[0]+"/layout", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
