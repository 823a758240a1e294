package endpoints

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/jobs"
	"github.com/jackzampolin/folio/internal/svcctx"
)

// ListJobsResponse is the response for listing jobs.
type ListJobsResponse struct {
	Jobs []*jobs.Record `json:"jobs"`
}

// ListJobsEndpoint handles GET /api/jobs.
type ListJobsEndpoint struct{}

func (e *ListJobsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/jobs", e.handler
}

func (e *ListJobsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List jobs
//	@Description	List job records, newest first
//	@Tags			jobs
//	@Produce		json
//	@Param			book_id	query		string	false	"Filter by book"
//	@Param			kind	query		string	false	"Filter by kind (cleanup, ai_revise)"
//	@Param			stage	query		string	false	"Filter by stage"
//	@Param			limit	query		int		false	"Maximum records"
//	@Success		200		{object}	ListJobsResponse
//	@Failure		400		{object}	ErrorResponse
//	@Router			/api/jobs [get]
func (e *ListJobsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	jm := svcctx.JobManagerFrom(r.Context())
	if jm == nil {
		writeError(w, http.StatusServiceUnavailable, "job manager not initialized")
		return
	}

	q := r.URL.Query()
	filter := jobs.ListFilter{
		BookID: q.Get("book_id"),
		Kind:   jobs.Kind(q.Get("kind")),
	}
	if s := q.Get("stage"); s != "" {
		stage, err := jobs.ParseStage(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Stage = stage
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}

	list, err := jm.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if list == nil {
		list = []*jobs.Record{}
	}
	writeJSON(w, http.StatusOK, ListJobsResponse{Jobs: list})
}

func (e *ListJobsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var bookID, kind, stage string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/jobs"
			params := url.Values{}
			if bookID != "" {
				params.Set("book_id", bookID)
			}
			if kind != "" {
				params.Set("kind", kind)
			}
			if stage != "" {
				params.Set("stage", stage)
			}
			if len(params) > 0 {
				path += "?" + params.Encode()
			}

			client := api.NewClient(getServerURL())
			var resp ListJobsResponse
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&bookID, "book", "", "Filter by book ID")
	cmd.Flags().StringVar(&kind, "kind", "", "Filter by kind (cleanup, ai_revise)")
	cmd.Flags().StringVar(&stage, "stage", "", "Filter by stage")
	return cmd
}

// GetJobEndpoint handles GET /api/jobs/{id}.
type GetJobEndpoint struct{}

func (e *GetJobEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/jobs/{id}", e.handler
}

func (e *GetJobEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Get a job
//	@Tags		jobs
//	@Produce	json
//	@Param		id	path		string	true	"Job ID"
//	@Success	200	{object}	jobs.Record
//	@Failure	404	{object}	ErrorResponse
//	@Router		/api/jobs/{id} [get]
func (e *GetJobEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	jm := svcctx.JobManagerFrom(r.Context())
	if jm == nil {
		writeError(w, http.StatusServiceUnavailable, "job manager not initialized")
		return
	}

	rec, err := jm.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (e *GetJobEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get a job by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var rec jobs.Record
			if err := client.Get(cmd.Context(), "/api/jobs/"+args[0], &rec); err != nil {
				return err
			}
			return api.Output(rec)
		},
	}
}

// ResumeJobEndpoint handles POST /api/jobs/{id}/resume.
type ResumeJobEndpoint struct{}

func (e *ResumeJobEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/jobs/{id}/resume", e.handler
}

func (e *ResumeJobEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Resume a failed cleanup job
//	@Description	Start a new job from the failed job's last checkpoint. Interrupted jobs resume on server start.
//	@Tags			jobs
//	@Produce		json
//	@Param			id	path		string	true	"Job ID"
//	@Success		202	{object}	JobAcceptedResponse
//	@Failure		404	{object}	ErrorResponse
//	@Failure		409	{object}	ErrorResponse
//	@Router			/api/jobs/{id}/resume [post]
func (e *ResumeJobEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	jm := svcctx.JobManagerFrom(r.Context())
	orch := svcctx.CleanupFrom(r.Context())
	pool := svcctx.PoolFrom(r.Context())
	if jm == nil || orch == nil || pool == nil {
		writeError(w, http.StatusServiceUnavailable, "job services not initialized")
		return
	}

	id := r.PathValue("id")
	prev, err := jm.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	// A job that is not terminal may still be on a worker.
	if prev.Stage != jobs.StageFailed {
		writeError(w, http.StatusConflict, fmt.Sprintf("job %s is %s; only failed jobs can be resumed", id, prev.Stage))
		return
	}

	rec, err := orch.Resume(r.Context(), id)
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

func (e *ResumeJobEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <id>",
		Short: "Resume a failed cleanup job from its last checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp JobAcceptedResponse
			if err := client.Post(cmd.Context(), "/api/jobs/"+args[0]+"/resume", nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
