package endpoints

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/jackzampolin/folio/internal/cleanup"
	"github.com/jackzampolin/folio/internal/config"
	"github.com/jackzampolin/folio/internal/defra"
	"github.com/jackzampolin/folio/internal/ingest"
	"github.com/jackzampolin/folio/internal/jobs"
	"github.com/jackzampolin/folio/internal/jobs/ai_revise"
	"github.com/jackzampolin/folio/internal/jobs/cleanup_book"
	"github.com/jackzampolin/folio/internal/review"
	"github.com/jackzampolin/folio/internal/revision"
	"github.com/jackzampolin/folio/internal/store"
)

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error string `json:"error"`

	// Set when an approval is blocked.
	Unresolved *int     `json:"unresolved,omitempty"`
	Missing    []string `json:"missing,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, defra.ErrInvalidID):
		return http.StatusNotFound
	case errors.Is(err, revision.ErrInvalidInput),
		errors.Is(err, review.ErrActorRequired),
		errors.Is(err, review.ErrInvalidResolution),
		errors.Is(err, config.ErrInvalidKey),
		errors.Is(err, config.ErrUnknownKey),
		errors.Is(err, config.ErrInvalidValue),
		errors.Is(err, cleanup.ErrEmptySource),
		errors.Is(err, ingest.ErrUnknownKind):
		return http.StatusBadRequest
	case errors.Is(err, jobs.ErrJobActive),
		errors.Is(err, revision.ErrDuplicateOriginal),
		errors.Is(err, revision.ErrChaptersAttached),
		errors.Is(err, review.ErrAlreadyResolved),
		errors.Is(err, review.ErrNotReviewable),
		errors.Is(err, cleanup_book.ErrNotResumable):
		return http.StatusConflict
	case errors.Is(err, review.ErrBlocked),
		errors.Is(err, revision.ErrInvariantViolation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ai_revise.ErrNoCorrector),
		errors.Is(err, jobs.ErrQueueFull),
		errors.Is(err, jobs.ErrPoolStopped):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeServiceError writes err with the status statusFor picks.
func writeServiceError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: err.Error()}
	var blocked *review.BlockedError
	if errors.As(err, &blocked) {
		resp.Unresolved = &blocked.Unresolved
		resp.Missing = blocked.Missing
	}
	writeJSON(w, statusFor(err), resp)
}

// decodeBody decodes a JSON request body into v. An empty body leaves v
// unchanged.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
