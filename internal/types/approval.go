package types

import "time"

// Checklist is the operator's sign-off snapshot taken at approval time.
type Checklist struct {
	BoilerplateRemoved  bool `json:"boilerplate_removed"`
	BoundariesVerified  bool `json:"boundaries_verified"`
	PunctuationReviewed bool `json:"punctuation_reviewed"`
	ArchaicPreserved    bool `json:"archaic_preserved"`
}

// Missing lists unchecked items in a fixed order.
func (c Checklist) Missing() []string {
	var missing []string
	if !c.BoilerplateRemoved {
		missing = append(missing, "boilerplate_removed")
	}
	if !c.BoundariesVerified {
		missing = append(missing, "boundaries_verified")
	}
	if !c.PunctuationReviewed {
		missing = append(missing, "punctuation_reviewed")
	}
	if !c.ArchaicPreserved {
		missing = append(missing, "archaic_preserved")
	}
	return missing
}

// Complete reports whether every item is checked.
func (c Checklist) Complete() bool { return len(c.Missing()) == 0 }

// Approval is an append-only audit record. The latest one per revision is authoritative.
type Approval struct {
	ID         string    `json:"id"`
	RevisionID string    `json:"revision_id"`
	Actor      string    `json:"actor"`
	CreatedAt  time.Time `json:"created_at"`
	Checklist  Checklist `json:"checklist"`
}
