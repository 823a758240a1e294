package types

import (
	"fmt"
	"sort"
	"time"
)

// FlagType names the kind of ambiguity a flag records.
type FlagType string

const (
	FlagUnlabeledBoundary FlagType = "unlabeled_boundary_candidate"
	FlagLowConfidence     FlagType = "low_confidence_cleanup"
	FlagOCRCorruption     FlagType = "ocr_corruption_detected"
	FlagAmbiguousPunct    FlagType = "ambiguous_punctuation"
	FlagBoundaryDisputed  FlagType = "chapter_boundary_disputed"
)

// ParseFlagType converts a string to a FlagType.
func ParseFlagType(s string) (FlagType, error) {
	switch t := FlagType(s); t {
	case FlagUnlabeledBoundary, FlagLowConfidence, FlagOCRCorruption, FlagAmbiguousPunct, FlagBoundaryDisputed:
		return t, nil
	}
	return "", fmt.Errorf("unknown flag type %q", s)
}

// FlagStatus is the resolution state of a flag. Every status other than
// unresolved is terminal.
type FlagStatus string

const (
	FlagUnresolved FlagStatus = "unresolved"
	FlagConfirmed  FlagStatus = "confirmed"
	FlagRejected   FlagStatus = "rejected"
	FlagOverridden FlagStatus = "overridden"
)

// ParseFlagStatus converts a string to a FlagStatus.
func ParseFlagStatus(s string) (FlagStatus, error) {
	switch st := FlagStatus(s); st {
	case FlagUnresolved, FlagConfirmed, FlagRejected, FlagOverridden:
		return st, nil
	}
	return "", fmt.Errorf("unknown flag status %q", s)
}

// IsTerminal reports whether the status is a final resolution.
func (s FlagStatus) IsTerminal() bool {
	return s == FlagConfirmed || s == FlagRejected || s == FlagOverridden
}

// Flag is a reviewable ambiguity raised during cleanup.
type Flag struct {
	ID              string     `json:"id,omitempty"`
	RevisionID      string     `json:"revision_id,omitempty"`
	ChapterNumber   int        `json:"chapter_number,omitempty"` // 0 when outside every chapter
	Type            FlagType   `json:"type"`
	Status          FlagStatus `json:"status"`
	Span            Span       `json:"span"`
	Context         string     `json:"context"`
	SuggestedAction string     `json:"suggested_action,omitempty"`
	ReviewerNote    string     `json:"reviewer_note,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy      string     `json:"resolved_by,omitempty"`
}

// SortFlags orders flags by (start, end, type).
func SortFlags(flags []Flag) {
	sort.SliceStable(flags, func(i, j int) bool {
		a, b := flags[i], flags[j]
		if a.Span.Start != b.Span.Start {
			return a.Span.Start < b.Span.Start
		}
		if a.Span.End != b.Span.End {
			return a.Span.End < b.Span.End
		}
		return a.Type < b.Type
	})
}
