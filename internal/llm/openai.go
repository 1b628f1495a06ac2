package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ciciliostudio/probe/internal/logging"
)

// OpenAIRequest represents the request structure for the OpenAI API
type OpenAIRequest struct {
	Model               string          `json:"model"`
	Messages            []OpenAIMessage `json:"messages"`
	MaxCompletionTokens *int            `json:"max_completion_tokens,omitempty"`
}

// OpenAIMessage represents a message in the OpenAI format
type OpenAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// OpenAIResponse represents the response from the OpenAI API
type OpenAIResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []OpenAIChoice `json:"choices"`
	Usage   OpenAIUsage    `json:"usage"`
	Error   *OpenAIError   `json:"error,omitempty"`
}

// OpenAIChoice represents a completion choice
type OpenAIChoice struct {
	Index        int           `json:"index"`
	Message      OpenAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

// OpenAIUsage represents token usage information
type OpenAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// OpenAIError represents an error from the OpenAI API
type OpenAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// openAIClient talks to the OpenAI chat completions endpoint
type openAIClient struct {
	apiKey     string
	model      string
	baseURL    string
	maxTokens  int
	httpClient *http.Client
	lastUsage  *UsageStats
}

func newOpenAIClient(apiKey string, options map[string]interface{}) (Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	return &openAIClient{
		apiKey:    apiKey,
		model:     optionString(options, "model", "gpt-4o-mini"),
		baseURL:   optionString(options, "base_url", "https://api.openai.com/v1"),
		maxTokens: optionInt(options, "max_tokens", 4000),
		httpClient: &http.Client{
			Timeout: 180 * time.Second, // generated test files can be large
		},
	}, nil
}

// Complete implements the Client interface with a real OpenAI API call
func (c *openAIClient) Complete(ctx context.Context, req Request) (string, error) {
	messages := []OpenAIMessage{
		{Role: "system", Content: req.System},
		{Role: "user", Content: req.User},
	}

	maxTokens := c.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	request := OpenAIRequest{
		Model:    c.model,
		Messages: messages,
	}
	if maxTokens > 0 {
		request.MaxCompletionTokens = &maxTokens
	}

	jsonData, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	logging.Debug("OpenAI response in %v, status %d, %d bytes", time.Since(start), resp.StatusCode, len(body))

	var openAIResp OpenAIResponse
	if err := json.Unmarshal(body, &openAIResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if openAIResp.Error != nil {
		return "", fmt.Errorf("OpenAI API error: %s", openAIResp.Error.Message)
	}
	if len(openAIResp.Choices) == 0 {
		return "", fmt.Errorf("no response from OpenAI - empty choices array")
	}

	if openAIResp.Usage.TotalTokens > 0 {
		c.lastUsage = &UsageStats{
			Provider:     "openai",
			Model:        c.model,
			InputTokens:  int64(openAIResp.Usage.PromptTokens),
			OutputTokens: int64(openAIResp.Usage.CompletionTokens),
			TotalTokens:  int64(openAIResp.Usage.TotalTokens),
			RequestTime:  time.Now(),
		}
	}

	content := openAIResp.Choices[0].Message.Content
	if content == "" {
		return "", fmt.Errorf("OpenAI returned empty response - model: %s, finish_reason: %s",
			c.model, openAIResp.Choices[0].FinishReason)
	}
	return content, nil
}

func (c *openAIClient) LastUsage() *UsageStats {
	return c.lastUsage
}
