package types

import "testing"

func TestSpan(t *testing.T) {
	s := Span{Start: 10, End: 20}

	if s.Len() != 10 {
		t.Errorf("Len() = %d, want 10", s.Len())
	}
	if !s.Contains(10) || s.Contains(20) || s.Contains(9) {
		t.Error("Contains() does not honor half-open bounds")
	}
	if !s.Overlaps(Span{19, 25}) || s.Overlaps(Span{20, 25}) || s.Overlaps(Span{0, 10}) {
		t.Error("Overlaps() does not honor half-open bounds")
	}

	tests := []struct {
		name string
		span Span
		size int
		want bool
	}{
		{"inside", Span{0, 5}, 5, true},
		{"empty", Span{3, 3}, 5, false},
		{"inverted", Span{4, 3}, 5, false},
		{"past end", Span{2, 6}, 5, false},
		{"negative", Span{-1, 2}, 5, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.span.Within(tt.size); got != tt.want {
				t.Errorf("Within(%d) = %v, want %v", tt.size, got, tt.want)
			}
		})
	}
}

func TestParseEnums(t *testing.T) {
	if _, err := ParseSectionType("appendix"); err != nil {
		t.Errorf("ParseSectionType(appendix) error = %v", err)
	}
	if _, err := ParseSectionType("epilogue"); err == nil {
		t.Error("ParseSectionType(epilogue) should fail")
	}
	if _, err := ParseFlagType("ocr_corruption_detected"); err != nil {
		t.Errorf("ParseFlagType error = %v", err)
	}
	if _, err := ParseProvenance("robot"); err == nil {
		t.Error("ParseProvenance(robot) should fail")
	}
	if f, err := ParseSourceFormat("markdown"); err != nil || f != FormatMarkdown {
		t.Errorf("ParseSourceFormat(markdown) = %v, %v", f, err)
	}
}

func TestFlagStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status FlagStatus
		want   bool
	}{
		{FlagUnresolved, false},
		{FlagConfirmed, true},
		{FlagRejected, true},
		{FlagOverridden, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.want {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDeriveState(t *testing.T) {
	tests := []struct {
		name       string
		attached   bool
		unresolved int
		approved   bool
		want       RevisionState
	}{
		{"no chapters", false, 0, false, StateCreated},
		{"flagged", true, 2, false, StateFlagged},
		{"clean", true, 0, false, StateClean},
		{"approved", true, 0, true, StateApproved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveState(tt.attached, tt.unresolved, tt.approved); got != tt.want {
				t.Errorf("DeriveState() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestChecklist(t *testing.T) {
	full := Checklist{true, true, true, true}
	if !full.Complete() {
		t.Error("full checklist should be complete")
	}
	partial := Checklist{BoilerplateRemoved: true, PunctuationReviewed: true}
	missing := partial.Missing()
	if len(missing) != 2 || missing[0] != "boundaries_verified" || missing[1] != "archaic_preserved" {
		t.Errorf("Missing() = %v", missing)
	}
}

func TestSortFlags(t *testing.T) {
	flags := []Flag{
		{Type: FlagOCRCorruption, Span: Span{5, 9}},
		{Type: FlagAmbiguousPunct, Span: Span{5, 9}},
		{Type: FlagLowConfidence, Span: Span{0, 20}},
		{Type: FlagLowConfidence, Span: Span{0, 4}},
	}
	SortFlags(flags)

	want := []Span{{0, 4}, {0, 20}, {5, 9}, {5, 9}}
	for i, f := range flags {
		if f.Span != want[i] {
			t.Errorf("flag %d span = %v, want %v", i, f.Span, want[i])
		}
	}
	if flags[2].Type != FlagAmbiguousPunct {
		t.Errorf("tie not broken by type: %s", flags[2].Type)
	}
}
