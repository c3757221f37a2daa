package adapter

import (
	"context"
	"fmt"
	"strings"
)

// Provider identifies an upstream model service.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// Providers returns every known provider in stable preference order.
func Providers() []Provider {
	return []Provider{ProviderOpenAI, ProviderAnthropic}
}

// ParseProvider maps a case-insensitive name to a Provider.
func ParseProvider(s string) (Provider, error) {
	switch Provider(strings.ToLower(strings.TrimSpace(s))) {
	case ProviderOpenAI:
		return ProviderOpenAI, nil
	case ProviderAnthropic:
		return ProviderAnthropic, nil
	}
	return "", fmt.Errorf("adapter: unknown provider %q", s)
}

// Request is a provider-agnostic completion request.
type Request struct {
	Prompt          string
	SystemPrompt    string
	MaxOutputTokens int
	Temperature     float64
}

// TokenUsage reports token accounting returned by the provider.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// Total returns input plus output tokens.
func (u TokenUsage) Total() int { return u.Input + u.Output }

// Completion is the text produced by a provider. Usage is nil when the
// provider did not report token counts.
type Completion struct {
	Text  string
	Model string
	Usage *TokenUsage
}

// Completer issues a single completion call against one provider. Failures
// should be returned as *Error so callers can classify them.
type Completer interface {
	Complete(ctx context.Context, req Request) (Completion, error)
	// Endpoint names the logical upstream operation for usage records.
	Endpoint() string
}
