package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAIModel   = "gpt-4o-mini"
	openAIBackend        = "openai"
	maxOpenAIRetries     = 2
)

// OpenAIConfig holds the settings of an OpenAI chat completions client. BaseURL can point to any
// compatible endpoint
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OpenAI is a Completer calling the chat completions api
type OpenAI struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	backoff    time.Duration
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	Temperature    float32               `json:"temperature"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewOpenAI returns an OpenAI completer. Empty BaseURL and Model use the public api and gpt-4o-mini
func NewOpenAI(cfg OpenAIConfig) (c *OpenAI, err error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}

	c = &OpenAI{apiKey: cfg.APIKey, baseURL: strings.TrimSuffix(cfg.BaseURL, "/"), model: cfg.Model, backoff: time.Second}
	if c.baseURL == "" {
		c.baseURL = defaultOpenAIBaseURL
	}

	if c.model == "" {
		c.model = defaultOpenAIModel
	}

	c.httpClient = &http.Client{Timeout: cfg.Timeout}

	return c, nil
}

// Complete sends the request to the chat completions endpoint. Rate limited and server side
// failures are retried with a short backoff
func (c *OpenAI) Complete(ctx context.Context, req Request) (text string, err error) {
	body := openAIRequest{
		Model:       c.model,
		Messages:    []openAIMessage{{Role: "system", Content: req.SystemPrompt}, {Role: "user", Content: req.UserPrompt}},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxOutputTokens,
	}

	if req.JSON {
		body.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal openai request")
	}

	var lastErr error
	for attempt := 0; attempt <= maxOpenAIRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", &TransportError{Backend: openAIBackend, Err: ctx.Err()}
			case <-time.After(time.Duration(attempt) * c.backoff):
			}
		}

		var retryable bool
		text, retryable, lastErr = c.do(ctx, payload)
		if lastErr == nil {
			return text, nil
		}

		if !retryable {
			return "", lastErr
		}
	}

	return "", lastErr
}

// do runs one request and reports whether a failure is worth retrying
func (c *OpenAI) do(ctx context.Context, payload []byte) (text string, retryable bool, err error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", false, &TransportError{Backend: openAIBackend, Err: err}
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", ctx.Err() == nil, &TransportError{Backend: openAIBackend, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", true, &TransportError{Backend: openAIBackend, Err: errors.Wrap(err, "failed to read response")}
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return "", true, &TransportError{Backend: openAIBackend, Err: fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(raw), 200))}
	}

	if resp.StatusCode != http.StatusOK {
		return "", false, &TransportError{Backend: openAIBackend, Err: fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(raw), 200))}
	}

	var parsed openAIResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", false, &MalformedOutputError{Reason: "response is not json: " + err.Error(), Output: truncate(string(raw), 200)}
	}

	if parsed.Error != nil {
		return "", false, &TransportError{Backend: openAIBackend, Err: errors.New(parsed.Error.Message)}
	}

	if len(parsed.Choices) == 0 {
		return "", false, &MalformedOutputError{Reason: "no completion choices returned"}
	}

	text = strings.TrimSpace(parsed.Choices[0].Message.Content)
	if text == "" {
		return "", false, &MalformedOutputError{Reason: "empty completion"}
	}

	return text, false, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n] + "..."
}
