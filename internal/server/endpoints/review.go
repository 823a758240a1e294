package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/review"
	"github.com/jackzampolin/folio/internal/svcctx"
	"github.com/jackzampolin/folio/internal/types"
)

// ResolveFlagRequest is the request body for resolving a flag.
type ResolveFlagRequest struct {
	review.Resolution
	Actor string `json:"actor"`
	Note  string `json:"note,omitempty"`
}

// ResolveFlagEndpoint handles POST /api/flags/{id}/resolve.
type ResolveFlagEndpoint struct{}

func (e *ResolveFlagEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/flags/{id}/resolve", e.handler
}

func (e *ResolveFlagEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Resolve a flag
//	@Description	Confirm, reject or override a flag. Overriding a boundary candidate promotes it to a chapter.
//	@Tags			review
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Flag ID"
//	@Param			body	body		ResolveFlagRequest	true	"Resolution"
//	@Success		200		{object}	review.Resolved
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Router			/api/flags/{id}/resolve [post]
func (e *ResolveFlagEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req ResolveFlagRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	svc := svcctx.ReviewFrom(r.Context())
	if svc == nil {
		writeError(w, http.StatusServiceUnavailable, "review service not initialized")
		return
	}

	res, err := svc.ResolveFlag(r.Context(), r.PathValue("id"), req.Resolution, req.Actor, req.Note)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (e *ResolveFlagEndpoint) Command(getServerURL func() string) *cobra.Command {
	var req ResolveFlagRequest
	var status, sectionType string
	var offset int
	cmd := &cobra.Command{
		Use:   "resolve <flag_id>",
		Short: "Resolve a review flag",
		Long: `Resolve a review flag as confirmed, rejected or overridden.

Overriding an unlabeled boundary candidate promotes it to a chapter
starting at --offset (default: the flag's start).

Examples:
  folio api flags resolve <id> --status confirmed --actor alice
  folio api flags resolve <id> --status overridden --title "Chapter IV" --actor alice`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Status = types.FlagStatus(status)
			req.SectionType = types.SectionType(sectionType)
			if cmd.Flags().Changed("offset") {
				req.Offset = &offset
			}
			client := api.NewClient(getServerURL())
			var resp review.Resolved
			if err := client.Post(cmd.Context(), "/api/flags/"+args[0]+"/resolve", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "confirmed, rejected or overridden")
	cmd.Flags().StringVar(&req.Actor, "actor", "", "Reviewer name")
	cmd.Flags().StringVar(&req.Note, "note", "", "Reviewer note")
	cmd.Flags().IntVar(&offset, "offset", 0, "Boundary offset for a promoted chapter")
	cmd.Flags().StringVar(&req.Title, "title", "", "Title for a promoted chapter")
	cmd.Flags().StringVar(&sectionType, "section-type", "", "Section type for a promoted chapter")
	_ = cmd.MarkFlagRequired("status")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

// ApproveRequest is the request body for approving a revision.
type ApproveRequest struct {
	Checklist types.Checklist `json:"checklist"`
	Actor     string          `json:"actor"`
}

// ApproveResponse is returned for a recorded approval.
type ApproveResponse struct {
	ApprovalID string `json:"approval_id"`
	RevisionID string `json:"revision_id"`
}

// ApproveEndpoint handles POST /api/revisions/{id}/approve.
type ApproveEndpoint struct{}

func (e *ApproveEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/revisions/{id}/approve", e.handler
}

func (e *ApproveEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Approve a revision
//	@Description	Record an approval. Blocked while flags are unresolved or the checklist is incomplete.
//	@Tags			review
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Revision ID"
//	@Param			body	body		ApproveRequest	true	"Checklist"
//	@Success		201		{object}	ApproveResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Failure		422		{object}	ErrorResponse
//	@Router			/api/revisions/{id}/approve [post]
func (e *ApproveEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	svc := svcctx.ReviewFrom(r.Context())
	if svc == nil {
		writeError(w, http.StatusServiceUnavailable, "review service not initialized")
		return
	}

	id := r.PathValue("id")
	approvalID, err := svc.Approve(r.Context(), id, req.Checklist, req.Actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ApproveResponse{ApprovalID: approvalID, RevisionID: id})
}

func (e *ApproveEndpoint) Command(getServerURL func() string) *cobra.Command {
	var req ApproveRequest
	cmd := &cobra.Command{
		Use:   "approve <revision_id>",
		Short: "Approve a reviewed revision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ApproveResponse
			if err := client.Post(cmd.Context(), "/api/revisions/"+args[0]+"/approve", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&req.Actor, "actor", "", "Reviewer name")
	cmd.Flags().BoolVar(&req.Checklist.BoilerplateRemoved, "boilerplate-removed", false, "Boilerplate removal verified")
	cmd.Flags().BoolVar(&req.Checklist.BoundariesVerified, "boundaries-verified", false, "Chapter boundaries verified")
	cmd.Flags().BoolVar(&req.Checklist.PunctuationReviewed, "punctuation-reviewed", false, "Punctuation changes reviewed")
	cmd.Flags().BoolVar(&req.Checklist.ArchaicPreserved, "archaic-preserved", false, "Archaic forms preserved as intended")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

// AIReviseRequest is the request body for an AI revision job.
type AIReviseRequest struct {
	Instructions string `json:"instructions,omitempty"`
}

// AIReviseEndpoint handles POST /api/revisions/{id}/ai-revise.
type AIReviseEndpoint struct{}

func (e *AIReviseEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/revisions/{id}/ai-revise", e.handler
}

func (e *AIReviseEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Start an AI revision job
//	@Description	Queue an AI-assisted correction of a revision. The result is a new child revision.
//	@Tags			revisions
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Source revision ID"
//	@Param			body	body		AIReviseRequest	false	"Instructions"
//	@Success		202		{object}	JobAcceptedResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/revisions/{id}/ai-revise [post]
func (e *AIReviseEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req AIReviseRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	reviser := svcctx.ReviserFrom(r.Context())
	pool := svcctx.PoolFrom(r.Context())
	if reviser == nil || pool == nil {
		writeError(w, http.StatusServiceUnavailable, "job services not initialized")
		return
	}

	rec, err := reviser.Start(r.Context(), r.PathValue("id"), req.Instructions)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if err := submit(r, pool, reviser.Job(rec.ID), rec); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, JobAcceptedResponse{JobID: rec.ID, BookID: rec.BookID, Stage: rec.Stage})
}

func (e *AIReviseEndpoint) Command(getServerURL func() string) *cobra.Command {
	var req AIReviseRequest
	cmd := &cobra.Command{
		Use:   "ai-revise <revision_id>",
		Short: "Start an AI revision of a revision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp JobAcceptedResponse
			if err := client.Post(cmd.Context(), "/api/revisions/"+args[0]+"/ai-revise", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&req.Instructions, "instructions", "", "Extra instructions for the corrector")
	return cmd
}
