package cleanup

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// Rules is a heading rule file.
//
//	replace_defaults: false
//	threshold: 0.75
//	patterns:
//	  - name: letter
//	    match: '(?i)^letter\s+[ivxlc]+\.?$'
//	    confidence: 0.9
//	    section_type: chapter
type Rules struct {
	ReplaceDefaults bool             `yaml:"replace_defaults"`
	Threshold       float64          `yaml:"threshold"`
	Patterns        []HeadingPattern `yaml:"patterns"`
}

var rulesSchema = []byte(`{
  "type": "object",
  "additionalProperties": false,
  "required": ["patterns"],
  "properties": {
    "replace_defaults": {"type": "boolean"},
    "threshold": {"type": "number", "exclusiveMinimum": 0, "maximum": 1},
    "patterns": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["name", "match", "confidence"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "match": {"type": "string", "minLength": 1},
          "confidence": {"type": "number", "minimum": 0, "maximum": 1},
          "section_type": {"enum": ["chapter", "preface", "introduction", "notes", "appendix", "body"]},
          "max_len": {"type": "integer", "minimum": 0}
        }
      }
    }
  }
}`)

// LoadRules parses and validates a YAML rule file.
func LoadRules(r io.Reader) (*Rules, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules: %w", err)
	}

	var generic any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	if err := validateRules(generic); err != nil {
		return nil, err
	}

	var rules Rules
	if err := yaml.Unmarshal(raw, &rules); err != nil {
		return nil, fmt.Errorf("failed to decode rules: %w", err)
	}
	if _, err := compilePatterns(rules.Patterns); err != nil {
		return nil, err
	}
	return &rules, nil
}

// LoadRulesFile reads rules from path.
func LoadRulesFile(path string) (*Rules, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadRules(f)
}

func validateRules(doc any) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("rules.json", bytes.NewReader(rulesSchema)); err != nil {
		return fmt.Errorf("failed to load rules schema: %w", err)
	}
	schema, err := compiler.Compile("rules.json")
	if err != nil {
		return fmt.Errorf("failed to compile rules schema: %w", err)
	}

	// The validator expects JSON-decoded values.
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("rules are not representable as JSON: %w", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("invalid rules: %s", strings.TrimSpace(err.Error()))
	}
	return nil
}
