package types

import (
	"fmt"
	"time"
)

// Provenance records who produced a revision.
type Provenance string

const (
	ProvenanceSystem Provenance = "system"
	ProvenanceAI     Provenance = "ai"
	ProvenanceUser   Provenance = "user"
)

// ParseProvenance converts a string to a Provenance.
func ParseProvenance(s string) (Provenance, error) {
	switch p := Provenance(s); p {
	case ProvenanceSystem, ProvenanceAI, ProvenanceUser:
		return p, nil
	}
	return "", fmt.Errorf("unknown provenance %q", s)
}

// SourceFormat tags how an original body is encoded.
type SourceFormat string

const (
	FormatGutenbergTxt SourceFormat = "gutenberg_txt"
	FormatMarkdown     SourceFormat = "markdown"
)

// ParseSourceFormat converts a string to a SourceFormat.
func ParseSourceFormat(s string) (SourceFormat, error) {
	switch f := SourceFormat(s); f {
	case FormatGutenbergTxt, FormatMarkdown:
		return f, nil
	}
	return "", fmt.Errorf("unknown source format %q", s)
}

// RevisionState is derived from persisted facts, never stored.
type RevisionState string

const (
	StateCreated          RevisionState = "created"
	StateChaptersAttached RevisionState = "chapters_attached"
	StateFlagged          RevisionState = "flagged"
	StateClean            RevisionState = "clean"
	StateApproved         RevisionState = "approved"
)

// DeriveState computes a revision's lifecycle state. A revision with
// chapters attached and no unresolved flags is clean.
func DeriveState(chaptersAttached bool, unresolved int, approved bool) RevisionState {
	switch {
	case !chaptersAttached:
		return StateCreated
	case approved:
		return StateApproved
	case unresolved > 0:
		return StateFlagged
	default:
		return StateClean
	}
}

// Original is the immutable capture of one book's source text.
type Original struct {
	ID          string       `json:"id"`
	BookID      string       `json:"book_id"`
	Sequence    int          `json:"sequence"`
	Format      SourceFormat `json:"format"`
	Title       string       `json:"title,omitempty"`
	Author      string       `json:"author,omitempty"`
	Size        int          `json:"size"`
	ContentHash string       `json:"content_hash"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Revision is one versioned cleaned document for a book. ParentID may name
// any earlier revision of the same book, so the chain is a DAG.
type Revision struct {
	ID               string     `json:"id"`
	BookID           string     `json:"book_id"`
	Sequence         int        `json:"sequence"`
	Provenance       Provenance `json:"provenance"`
	IsDeterministic  bool       `json:"is_deterministic"`
	IsAIAssisted     bool       `json:"is_ai_assisted"`
	PreserveArchaic  bool       `json:"preserve_archaic"`
	ParentID         string     `json:"parent_id,omitempty"`
	OriginalID       string     `json:"original_id,omitempty"`
	Size             int        `json:"size"`
	ChaptersAttached bool       `json:"chapters_attached"`
	CreatedAt        time.Time  `json:"created_at"`
}
