// Package validation cleans and screens user text before it reaches a model
// provider, and validates the request bodies of the AI endpoints.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MaxPromptLength = 2000
	MaxInputLength  = 5000
)

var (
	ErrPromptTooLong  = fmt.Errorf("Prompt too long. Maximum %d characters.", MaxPromptLength)
	ErrPromptEmpty    = errors.New("Prompt cannot be empty.")
	ErrBlockedContent = errors.New("Input contains blocked content.")
)

// Pattern is a compiled blocked-content rule.
type Pattern struct {
	Name string
	Re   *regexp.Regexp
}

var controlChars = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)

var defaultPatterns = []Pattern{
	{Name: "url_shortener", Re: regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?(?:bit\.ly|tinyurl|t\.co|goo\.gl)/\S+`)},
	{Name: "inline_credential", Re: regexp.MustCompile(`(?i)(?:password|api[_-]?key|secret|token)\s*[:=]\s*\S+`)},
	{Name: "script_injection", Re: regexp.MustCompile(`(?i)(?:<script|javascript:|on\w+\s*=)`)},
}

// DefaultPatterns returns the built-in blocked-content rules.
func DefaultPatterns() []Pattern {
	out := make([]Pattern, len(defaultPatterns))
	copy(out, defaultPatterns)
	return out
}

// Sanitize removes NUL and control characters other than tab, newline and
// carriage return, then trims surrounding whitespace.
func Sanitize(s string) string {
	return strings.TrimSpace(controlChars.ReplaceAllString(s, ""))
}

// Guard screens prompts against length limits and blocked patterns.
type Guard struct {
	patterns []Pattern
}

// NewGuard returns a guard using the default patterns plus extra.
func NewGuard(extra ...Pattern) *Guard {
	return &Guard{patterns: append(DefaultPatterns(), extra...)}
}

// Patterns lists the active rule names.
func (g *Guard) Patterns() []string {
	names := make([]string, 0, len(g.patterns))
	for _, p := range g.patterns {
		names = append(names, p.Name)
	}
	return names
}

// ValidatePrompt checks an already sanitized prompt. The returned error's
// text is safe to show to the caller.
func (g *Guard) ValidatePrompt(prompt string) error {
	if utf8.RuneCountInString(prompt) > MaxPromptLength {
		return ErrPromptTooLong
	}
	if prompt == "" {
		return ErrPromptEmpty
	}
	for _, p := range g.patterns {
		if p.Re.MatchString(prompt) {
			return ErrBlockedContent
		}
	}
	return nil
}

var defaultGuard = NewGuard()

// ValidatePrompt checks prompt with the default patterns.
func ValidatePrompt(prompt string) error {
	return defaultGuard.ValidatePrompt(prompt)
}
