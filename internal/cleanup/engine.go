// Package cleanup implements the deterministic cleanup stages: boilerplate
// removal, paragraph unwrapping, chapter detection and punctuation
// normalization. Every function here is pure; identical input and config
// always give byte-identical output.
package cleanup

import (
	"sort"
	"strings"

	"github.com/jackzampolin/folio/internal/types"
)

// Result is the output of a full deterministic run. Chapter and flag
// spans are byte offsets into NormalizedText.
type Result struct {
	Chapters       []types.Chapter `json:"chapters"`
	Flags          []types.Flag    `json:"flags"`
	NormalizedText string          `json:"normalized_text"`
}

// Run applies every stage in order. Line endings are folded to LF first, so
// offsets refer to the folded text.
func Run(text string, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	text = foldLineEndings(text)
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptySource
	}

	stripped, flags := RemoveBoilerplate(text)
	if strings.TrimSpace(stripped) == "" {
		return nil, ErrEmptySource
	}

	unwrapped, unwrapFlags, err := Unwrap(stripped, cfg)
	if err != nil {
		return nil, err
	}
	flags = append(flags, unwrapFlags...)

	chapters, detectFlags, err := DetectChapters(unwrapped, cfg)
	if err != nil {
		return nil, err
	}
	flags = append(flags, detectFlags...)

	return Finish(unwrapped, chapters, flags, cfg), nil
}

// Finish runs punctuation normalization over text and carries chapters and
// flags from earlier stages into the normalized offsets. It also assigns
// each flag the number of the chapter holding its start and sorts flags by
// (start, end, type).
func Finish(text string, chapters []types.Chapter, flags []types.Flag, cfg Config) *Result {
	out, m, punctFlags := NormalizePunctuation(text, cfg)

	mapped := make([]types.Chapter, len(chapters))
	for i, ch := range chapters {
		ch.Span = m.MapSpan(ch.Span)
		ch.Title, _, _ = NormalizePunctuation(ch.Title, cfg)
		ch.DetectedHeading, _, _ = NormalizePunctuation(ch.DetectedHeading, cfg)
		mapped[i] = ch
	}
	sort.SliceStable(mapped, func(i, j int) bool { return mapped[i].Span.Start < mapped[j].Span.Start })

	all := make([]types.Flag, 0, len(flags)+len(punctFlags))
	for _, f := range flags {
		f.Span = m.MapSpan(f.Span)
		f.Context = contextOf(out, f.Span)
		all = append(all, f)
	}
	all = append(all, punctFlags...)

	for i := range all {
		all[i].ChapterNumber = types.ChapterAt(mapped, all[i].Span.Start)
	}
	types.SortFlags(all)

	return &Result{Chapters: mapped, Flags: all, NormalizedText: out}
}
