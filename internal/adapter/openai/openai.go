package openai

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
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"
	endpointName   = "chat.completions"
)

// Client sends prompts to the OpenAI chat completions API.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	org        string
	httpClient *http.Client
}

// Config holds configuration for the OpenAI binding.
type Config struct {
	APIKey         string
	BaseURL        string // optional, defaults to https://api.openai.com/v1
	Model          string // optional, defaults to gpt-4o-mini
	Organization   string // optional
	RequestTimeout time.Duration
	HTTPClient     *http.Client // optional, overrides RequestTimeout
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai: api key required")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

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
		model:      model,
		org:        cfg.Organization,
		httpClient: httpClient,
	}, nil
}

// Endpoint names the upstream operation.
func (c *Client) Endpoint() string { return endpointName }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Complete sends a single chat completion request.
func (c *Client) Complete(ctx context.Context, req adapter.Request) (adapter.Completion, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return adapter.Completion{}, &adapter.Error{
			Provider: adapter.ProviderOpenAI,
			Kind:     adapter.KindInvalidRequest,
			Message:  "no prompt provided",
		}
	}

	messages := make([]chatMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	payload := chatRequest{
		Model:     c.model,
		Messages:  messages,
		MaxTokens: req.MaxOutputTokens,
	}
	if req.Temperature > 0 {
		temp := req.Temperature
		payload.Temperature = &temp
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return adapter.Completion{}, fmt.Errorf("openai: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return adapter.Completion{}, fmt.Errorf("openai: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.org != "" {
		httpReq.Header.Set("OpenAI-Organization", c.org)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return adapter.Completion{}, adapter.TransportError(adapter.ProviderOpenAI, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return adapter.Completion{}, adapter.TransportError(adapter.ProviderOpenAI, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return adapter.Completion{}, adapter.StatusError(adapter.ProviderOpenAI, resp.StatusCode, errorMessage(respBody))
	}

	var completion chatResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		return adapter.Completion{}, &adapter.Error{
			Provider: adapter.ProviderOpenAI,
			Kind:     adapter.KindTransient,
			Message:  "malformed response body",
			Err:      err,
		}
	}

	out := adapter.Completion{Model: completion.Model}
	if len(completion.Choices) > 0 {
		out.Text = completion.Choices[0].Message.Content
	}
	if completion.Usage != nil {
		out.Usage = &adapter.TokenUsage{
			Input:  completion.Usage.PromptTokens,
			Output: completion.Usage.CompletionTokens,
		}
	}
	return out, nil
}

func errorMessage(body []byte) string {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    any    `json:"code"`
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
