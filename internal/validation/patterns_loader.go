package validation

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// PatternDefinition is one blocked-content rule from a patterns file.
type PatternDefinition struct {
	Name        string `yaml:"name"`
	Pattern     string `yaml:"pattern"`
	Description string `yaml:"description"`
	// CaseSensitive disables the implicit (?i) flag.
	CaseSensitive bool `yaml:"case_sensitive"`
}

// PatternFile is the layout of a blocked patterns YAML file.
type PatternFile struct {
	Patterns []PatternDefinition `yaml:"patterns"`
}

// LoadPatterns reads and compiles blocked patterns from a YAML file.
func LoadPatterns(path string) ([]Pattern, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read blocked patterns file %s: %w", path, err)
	}

	var file PatternFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse blocked patterns file %s: %w", path, err)
	}

	return CompilePatterns(file.Patterns)
}

// CompilePatterns compiles definitions in order. Unnamed rules are named by
// their position.
func CompilePatterns(defs []PatternDefinition) ([]Pattern, error) {
	patterns := make([]Pattern, 0, len(defs))
	for i, def := range defs {
		name := def.Name
		if name == "" {
			name = fmt.Sprintf("pattern_%d", i+1)
		}
		if def.Pattern == "" {
			return nil, fmt.Errorf("blocked pattern %s is empty", name)
		}
		expr := def.Pattern
		if !def.CaseSensitive {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("failed to compile blocked pattern %s: %w", name, err)
		}
		patterns = append(patterns, Pattern{Name: name, Re: re})
	}
	return patterns, nil
}
