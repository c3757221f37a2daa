package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tokligence/labgate/internal/adapter"
)

// Ensure Client implements Completer.
var _ adapter.Completer = (*Client)(nil)

const (
	DefaultBaseURL      = "https://api.anthropic.com"
	DefaultVersion      = "2023-06-01"
	DefaultModel        = "claude-3-5-sonnet-20241022"
	DefaultSystemPrompt = "You are a helpful engineering assistant."
	defaultMaxTokens    = 2000
	endpointName        = "messages.create"
)

// Client sends prompts to the Anthropic Messages API.
type Client struct {
	apiKey     string
	baseURL    string
	version    string
	model      string
	httpClient *http.Client
}

// Config holds configuration for the Anthropic binding.
type Config struct {
	APIKey         string
	BaseURL        string // optional, defaults to https://api.anthropic.com
	Version        string // optional, defaults to 2023-06-01
	Model          string // optional, defaults to claude-3-5-sonnet-20241022
	RequestTimeout time.Duration
	HTTPClient     *http.Client // optional, overrides RequestTimeout
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("anthropic: api key required")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	version := strings.TrimSpace(cfg.Version)
	if version == "" {
		version = DefaultVersion
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.RequestTimeout
		if timeout == 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		version:    version,
		model:      model,
		httpClient: httpClient,
	}, nil
}

// Endpoint names the upstream operation.
func (c *Client) Endpoint() string { return endpointName }

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type messagesResponse struct {
	Model      string         `json:"model"`
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete sends a single Messages API request.
func (c *Client) Complete(ctx context.Context, req adapter.Request) (adapter.Completion, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return adapter.Completion{}, &adapter.Error{
			Provider: adapter.ProviderAnthropic,
			Kind:     adapter.KindInvalidRequest,
			Message:  "no prompt provided",
		}
	}

	system := req.SystemPrompt
	if system == "" {
		system = DefaultSystemPrompt
	}
	// Anthropic requires max_tokens.
	maxTokens := req.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	payload := messagesRequest{
		Model:     c.model,
		System:    system,
		Messages:  []message{{Role: "user", Content: req.Prompt}},
		MaxTokens: maxTokens,
	}
	if req.Temperature > 0 {
		temp := req.Temperature
		payload.Temperature = &temp
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return adapter.Completion{}, fmt.Errorf("anthropic: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return adapter.Completion{}, fmt.Errorf("anthropic: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", c.version)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return adapter.Completion{}, adapter.TransportError(adapter.ProviderAnthropic, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return adapter.Completion{}, adapter.TransportError(adapter.ProviderAnthropic, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return adapter.Completion{}, adapter.StatusError(adapter.ProviderAnthropic, resp.StatusCode, errorMessage(respBody))
	}

	var parsed messagesResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return adapter.Completion{}, &adapter.Error{
			Provider: adapter.ProviderAnthropic,
			Kind:     adapter.KindTransient,
			Message:  "malformed response body",
			Err:      err,
		}
	}

	// Only the first content block is used; non-text blocks yield empty text.
	out := adapter.Completion{Model: parsed.Model}
	if len(parsed.Content) > 0 && parsed.Content[0].Type == "text" {
		out.Text = parsed.Content[0].Text
	}
	if parsed.Usage != nil {
		out.Usage = &adapter.TokenUsage{
			Input:  parsed.Usage.InputTokens,
			Output: parsed.Usage.OutputTokens,
		}
	}
	return out, nil
}

func errorMessage(body []byte) string {
	var errResp struct {
		Type  string `json:"type"`
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		if errResp.Error.Type != "" {
			return fmt.Sprintf("%s (type=%s)", errResp.Error.Message, errResp.Error.Type)
		}
		return errResp.Error.Message
	}
	return strings.TrimSpace(string(body))
}
