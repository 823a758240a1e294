package cleanup

import (
	"fmt"
	"strings"

	"github.com/jackzampolin/folio/internal/types"
)

// precededPenalty is taken off a heading that does not follow a blank line.
const precededPenalty = 0.2

// BodyTitle is the title of the single chapter produced when a text has no
// committed headings.
const BodyTitle = "Body"

// DetectChapters scans text for heading lines. Headings at or above the
// confidence threshold become chapter boundaries; weaker ones become
// unlabeled_boundary_candidate flags. Each chapter runs from its heading
// line to the next committed heading or the end of the text.
func DetectChapters(text string, cfg Config) ([]types.Chapter, []types.Flag, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil, ErrEmptySource
	}
	rules, err := compilePatterns(cfg.Patterns)
	if err != nil {
		return nil, nil, err
	}

	type committed struct {
		line line
		h    heading
	}
	var heads []committed
	var flags []types.Flag

	lines := splitLines(text)
	for i, l := range lines {
		h, ok := matchHeading(rules, l.trimmed())
		if !ok {
			continue
		}
		if i > 0 && !lines[i-1].blank() {
			h.confidence -= precededPenalty
		}
		if h.confidence >= cfg.ConfidenceThreshold {
			heads = append(heads, committed{line: l, h: h})
			continue
		}
		flags = append(flags, types.Flag{
			Type:            types.FlagUnlabeledBoundary,
			Status:          types.FlagUnresolved,
			Span:            l.Span,
			Context:         contextOf(text, l.Span),
			SuggestedAction: fmt.Sprintf("promote %q to a chapter boundary (%s, confidence %.2f)", h.title, h.rule, h.confidence),
		})
	}

	if len(heads) == 0 {
		return []types.Chapter{{
			Number:      1,
			Title:       BodyTitle,
			SectionType: types.SectionBody,
			Span:        types.Span{Start: 0, End: len(text)},
		}}, flags, nil
	}

	if gap := text[:heads[0].line.Start]; nonSpace(gap) >= cfg.MinChapterChars && cfg.MinChapterChars > 0 {
		span := types.Span{Start: 0, End: heads[0].line.Start}
		flags = append(flags, types.Flag{
			Type:            types.FlagLowConfidence,
			Status:          types.FlagUnresolved,
			Span:            span,
			Context:         contextOf(text, span),
			SuggestedAction: "text before the first heading is outside every chapter",
		})
	}

	chapters := make([]types.Chapter, 0, len(heads))
	for i, hd := range heads {
		end := len(text)
		if i+1 < len(heads) {
			end = heads[i+1].line.Start
		}
		ch := types.Chapter{
			Number:          i + 1,
			Title:           hd.h.title,
			SectionType:     hd.h.section,
			Span:            types.Span{Start: hd.line.Start, End: end},
			DetectedHeading: hd.line.trimmed(),
		}
		chapters = append(chapters, ch)

		if body := text[min(hd.line.End, end):end]; nonSpace(body) < cfg.MinChapterChars {
			flags = append(flags, types.Flag{
				Type:            types.FlagBoundaryDisputed,
				Status:          types.FlagUnresolved,
				Span:            ch.Span,
				Context:         contextOf(text, ch.Span),
				SuggestedAction: fmt.Sprintf("chapter %d %q has almost no body; merge it or confirm the boundary", ch.Number, ch.Title),
			})
		}
	}
	return chapters, flags, nil
}

// ClassifyTitle maps a heading title to a section type by its first word.
// Titles with no matter keyword are chapters.
func ClassifyTitle(title string) types.SectionType {
	word := strings.ToLower(strings.Trim(firstWord(title), ".:"))
	switch word {
	case "preface", "foreword":
		return types.SectionPreface
	case "introduction", "introductory":
		return types.SectionIntroduction
	case "notes", "endnotes":
		return types.SectionNotes
	case "appendix":
		return types.SectionAppendix
	}
	return types.SectionChapter
}

func firstWord(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return f[0]
	}
	return ""
}
