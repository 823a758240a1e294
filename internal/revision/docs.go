package revision

import (
	"github.com/jackzampolin/folio/internal/blob"
	"github.com/jackzampolin/folio/internal/store"
	"github.com/jackzampolin/folio/internal/types"
)

// Collection names.
const (
	CollectionOriginal = "Original"
	CollectionRevision = "Revision"
	CollectionChapter  = "Chapter"
	CollectionFlag     = "Flag"
	CollectionApproval = "Approval"
)

// Fields requested for each collection.
var (
	originalFields = []string{"book_id", "sequence", "format", "title", "author", "content_hash", "created_at", blob.FieldBodyRef, blob.FieldBodyInline, blob.FieldSize}
	revisionFields = []string{"book_id", "sequence", "provenance", "is_deterministic", "is_ai_assisted", "preserve_archaic", "parent_id", "original_id", "chapters_attached", "created_at", blob.FieldBodyRef, blob.FieldBodyInline, blob.FieldSize}
	chapterFields  = []string{"revision_id", "number", "title", "section_type", "start_offset", "end_offset", "detected_heading", "is_user_confirmed"}
	flagFields     = []string{"revision_id", "chapter_number", "type", "status", "start_offset", "end_offset", "context", "suggested_action", "reviewer_note", "resolved_at", "resolved_by"}
	approvalFields = []string{"revision_id", "actor", "created_at", "boilerplate_removed", "boundaries_verified", "punctuation_reviewed", "archaic_preserved"}
)

// Original is an original record with its body accessor.
type Original struct {
	types.Original
	Body blob.Content `json:"-"`
}

// Revision is a revision record with its body accessor.
type Revision struct {
	types.Revision
	Body blob.Content `json:"-"`
}

func originalFromDoc(doc map[string]any) *Original {
	body := blob.FromDoc(doc)
	return &Original{
		Original: types.Original{
			ID:          store.String(doc, "_docID"),
			BookID:      store.String(doc, "book_id"),
			Sequence:    store.Int(doc, "sequence"),
			Format:      types.SourceFormat(store.String(doc, "format")),
			Title:       store.String(doc, "title"),
			Author:      store.String(doc, "author"),
			Size:        body.Size(),
			ContentHash: store.String(doc, "content_hash"),
			CreatedAt:   store.Time(doc, "created_at"),
		},
		Body: body,
	}
}

func revisionFromDoc(doc map[string]any) *Revision {
	body := blob.FromDoc(doc)
	return &Revision{
		Revision: types.Revision{
			ID:               store.String(doc, "_docID"),
			BookID:           store.String(doc, "book_id"),
			Sequence:         store.Int(doc, "sequence"),
			Provenance:       types.Provenance(store.String(doc, "provenance")),
			IsDeterministic:  store.Bool(doc, "is_deterministic"),
			IsAIAssisted:     store.Bool(doc, "is_ai_assisted"),
			PreserveArchaic:  store.Bool(doc, "preserve_archaic"),
			ParentID:         store.String(doc, "parent_id"),
			OriginalID:       store.String(doc, "original_id"),
			Size:             body.Size(),
			ChaptersAttached: store.Bool(doc, "chapters_attached"),
			CreatedAt:        store.Time(doc, "created_at"),
		},
		Body: body,
	}
}

// ChapterDoc renders a chapter for a write.
func ChapterDoc(revisionID string, ch types.Chapter) map[string]any {
	return map[string]any{
		"revision_id":       revisionID,
		"number":            ch.Number,
		"title":             ch.Title,
		"section_type":      string(ch.SectionType),
		"start_offset":      ch.Span.Start,
		"end_offset":        ch.Span.End,
		"detected_heading":  ch.DetectedHeading,
		"is_user_confirmed": ch.IsUserConfirmed,
	}
}

func chapterFromDoc(doc map[string]any) types.Chapter {
	return types.Chapter{
		ID:              store.String(doc, "_docID"),
		RevisionID:      store.String(doc, "revision_id"),
		Number:          store.Int(doc, "number"),
		Title:           store.String(doc, "title"),
		SectionType:     types.SectionType(store.String(doc, "section_type")),
		Span:            types.Span{Start: store.Int(doc, "start_offset"), End: store.Int(doc, "end_offset")},
		DetectedHeading: store.String(doc, "detected_heading"),
		IsUserConfirmed: store.Bool(doc, "is_user_confirmed"),
	}
}

// FlagDoc renders a flag for a write.
func FlagDoc(revisionID string, f types.Flag) map[string]any {
	status := f.Status
	if status == "" {
		status = types.FlagUnresolved
	}
	doc := map[string]any{
		"revision_id":      revisionID,
		"chapter_number":   f.ChapterNumber,
		"type":             string(f.Type),
		"status":           string(status),
		"start_offset":     f.Span.Start,
		"end_offset":       f.Span.End,
		"context":          f.Context,
		"suggested_action": f.SuggestedAction,
	}
	if f.ReviewerNote != "" {
		doc["reviewer_note"] = f.ReviewerNote
	}
	if f.ResolvedAt != nil {
		doc["resolved_at"] = store.FormatTime(*f.ResolvedAt)
		doc["resolved_by"] = f.ResolvedBy
	}
	return doc
}

func flagFromDoc(doc map[string]any) types.Flag {
	f := types.Flag{
		ID:              store.String(doc, "_docID"),
		RevisionID:      store.String(doc, "revision_id"),
		ChapterNumber:   store.Int(doc, "chapter_number"),
		Type:            types.FlagType(store.String(doc, "type")),
		Status:          types.FlagStatus(store.String(doc, "status")),
		Span:            types.Span{Start: store.Int(doc, "start_offset"), End: store.Int(doc, "end_offset")},
		Context:         store.String(doc, "context"),
		SuggestedAction: store.String(doc, "suggested_action"),
		ReviewerNote:    store.String(doc, "reviewer_note"),
		ResolvedBy:      store.String(doc, "resolved_by"),
	}
	if t := store.Time(doc, "resolved_at"); !t.IsZero() {
		f.ResolvedAt = &t
	}
	return f
}

func approvalFromDoc(doc map[string]any) types.Approval {
	return types.Approval{
		ID:         store.String(doc, "_docID"),
		RevisionID: store.String(doc, "revision_id"),
		Actor:      store.String(doc, "actor"),
		CreatedAt:  store.Time(doc, "created_at"),
		Checklist: types.Checklist{
			BoilerplateRemoved:  store.Bool(doc, "boilerplate_removed"),
			BoundariesVerified:  store.Bool(doc, "boundaries_verified"),
			PunctuationReviewed: store.Bool(doc, "punctuation_reviewed"),
			ArchaicPreserved:    store.Bool(doc, "archaic_preserved"),
		},
	}
}
