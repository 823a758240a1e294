package cleanup

import (
	"fmt"
	"regexp"

	"github.com/jackzampolin/folio/internal/types"
)

// Supported punctuation locales.
const (
	LocaleEN = "en"
	LocaleFR = "fr"
)

// Defaults used by DefaultConfig.
const (
	DefaultConfidenceThreshold = 0.7
	DefaultMinChapterChars     = 80
)

// Config controls one deterministic cleanup run.
type Config struct {
	PreserveArchaic     bool             `mapstructure:"preserve_archaic" yaml:"preserve_archaic" json:"preserve_archaic"`
	Locale              string           `mapstructure:"locale" yaml:"locale" json:"locale"`
	ConfidenceThreshold float64          `mapstructure:"confidence_threshold" yaml:"confidence_threshold" json:"confidence_threshold"`
	MinChapterChars     int              `mapstructure:"min_chapter_chars" yaml:"min_chapter_chars" json:"min_chapter_chars"`
	Patterns            []HeadingPattern `mapstructure:"-" yaml:"-" json:"patterns,omitempty"`
}

// DefaultConfig returns the config used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Locale:              LocaleEN,
		ConfidenceThreshold: DefaultConfidenceThreshold,
		MinChapterChars:     DefaultMinChapterChars,
		Patterns:            DefaultPatterns(),
	}
}

// Validate checks the config and compiles every heading pattern.
func (c Config) Validate() error {
	if c.Locale != LocaleEN && c.Locale != LocaleFR {
		return fmt.Errorf("cleanup: unsupported locale %q", c.Locale)
	}
	if c.ConfidenceThreshold <= 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("cleanup: confidence_threshold must be in (0, 1], got %v", c.ConfidenceThreshold)
	}
	if c.MinChapterChars < 0 {
		return fmt.Errorf("cleanup: min_chapter_chars must not be negative")
	}
	_, err := compilePatterns(c.Patterns)
	return err
}

// WithRules returns a copy of c using the patterns from r.
// Loaded patterns are tried before the built-in ones unless r replaces them.
func (c Config) WithRules(r *Rules) Config {
	if r == nil {
		return c
	}
	out := c
	if r.ReplaceDefaults {
		out.Patterns = append([]HeadingPattern(nil), r.Patterns...)
	} else {
		out.Patterns = append(append([]HeadingPattern(nil), r.Patterns...), c.Patterns...)
	}
	if r.Threshold > 0 {
		out.ConfidenceThreshold = r.Threshold
	}
	return out
}

// HeadingPattern is one lexical rule for recognizing a heading line.
// Match is tested against the line with surrounding whitespace trimmed.
// A subexpression named "title" selects the chapter title; otherwise the
// whole line is the title. An empty SectionType classifies by title keyword.
type HeadingPattern struct {
	Name        string            `yaml:"name" json:"name"`
	Match       string            `yaml:"match" json:"match"`
	Confidence  float64           `yaml:"confidence" json:"confidence"`
	SectionType types.SectionType `yaml:"section_type,omitempty" json:"section_type,omitempty"`
	MaxLen      int               `yaml:"max_len,omitempty" json:"max_len,omitempty"`
}

const numeral = `(?:[0-9]+|[ivxlcdm]+|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve|thirteen|fourteen|fifteen|sixteen|seventeen|eighteen|nineteen|twenty[a-z-]*|thirty[a-z-]*|forty[a-z-]*|fifty[a-z-]*|first|second|third|fourth|fifth|sixth|seventh|eighth|ninth|tenth|last)`

// DefaultPatterns returns the built-in heading rules, strongest first.
func DefaultPatterns() []HeadingPattern {
	return []HeadingPattern{
		{Name: "section_marker", Match: `^##\s+(?P<title>\S.*)$`, Confidence: 1.0},
		{Name: "chapter_numeral", Match: `(?i)^(?:chapter|chap\.)\s+` + numeral + `\b[.:]?(?:\s+.*)?$`, Confidence: 0.95, SectionType: types.SectionChapter, MaxLen: 120},
		{Name: "matter_keyword", Match: `(?i)^(?:preface|foreword|introduction|introductory|notes|endnotes|appendix)\b[.:]?(?:\s+.*)?$`, Confidence: 0.9, MaxLen: 60},
		{Name: "book_part", Match: `(?i)^(?:book|part|volume)\s+` + numeral + `\b[.:]?(?:\s+.*)?$`, Confidence: 0.9, SectionType: types.SectionChapter, MaxLen: 120},
		{Name: "roman_numeral", Match: `^[IVXLCDM]+\.?$`, Confidence: 0.6, SectionType: types.SectionChapter, MaxLen: 12},
		{Name: "all_caps", Match: `^[^a-z]*[A-Z][^a-z]*[A-Z][^a-z]*$`, Confidence: 0.5, SectionType: types.SectionChapter, MaxLen: 60},
	}
}

type rule struct {
	HeadingPattern
	re       *regexp.Regexp
	titleIdx int
}

func compilePatterns(patterns []HeadingPattern) ([]rule, error) {
	rules := make([]rule, 0, len(patterns))
	for i, p := range patterns {
		if p.Match == "" {
			return nil, fmt.Errorf("cleanup: pattern %d (%s): empty match", i, p.Name)
		}
		if p.Confidence < 0 || p.Confidence > 1 {
			return nil, fmt.Errorf("cleanup: pattern %d (%s): confidence %v out of range", i, p.Name, p.Confidence)
		}
		if p.SectionType != "" {
			if _, err := types.ParseSectionType(string(p.SectionType)); err != nil {
				return nil, fmt.Errorf("cleanup: pattern %d (%s): %w", i, p.Name, err)
			}
		}
		re, err := regexp.Compile(p.Match)
		if err != nil {
			return nil, fmt.Errorf("cleanup: pattern %d (%s): %w", i, p.Name, err)
		}
		rules = append(rules, rule{HeadingPattern: p, re: re, titleIdx: re.SubexpIndex("title")})
	}
	return rules, nil
}

// heading is a line recognized by a rule.
type heading struct {
	rule       string
	title      string
	confidence float64
	section    types.SectionType
}

// matchHeading returns the first rule that accepts the trimmed line.
func matchHeading(rules []rule, line string) (heading, bool) {
	if line == "" {
		return heading{}, false
	}
	for _, r := range rules {
		if r.MaxLen > 0 && len(line) > r.MaxLen {
			continue
		}
		m := r.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		title := line
		if r.titleIdx > 0 && m[r.titleIdx] != "" {
			title = m[r.titleIdx]
		}
		section := r.SectionType
		if section == "" {
			section = ClassifyTitle(title)
		}
		return heading{rule: r.Name, title: title, confidence: r.Confidence, section: section}, true
	}
	return heading{}, false
}
