// Package llm provides chat-completion clients for the AI providers Probe
// can generate tests with. Higher layers build prompts and parse responses;
// this package only moves text to a model and back.
package llm

import (
	"context"
	"fmt"
	"time"
)

// Provider represents different LLM providers
type Provider string

const (
	OpenAI    Provider = "openai"
	Anthropic Provider = "anthropic"
	Mock      Provider = "mock"
)

// Request is one chat completion call: a system instruction and a user
// prompt. MaxTokens of 0 means the client default.
type Request struct {
	System    string
	User      string
	MaxTokens int
}

// Client interface for LLM completion operations
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
	LastUsage() *UsageStats
}

// UsageStats tracks token consumption for the most recent request
type UsageStats struct {
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	TotalTokens  int64     `json:"total_tokens"`
	RequestTime  time.Time `json:"request_time"`
}

// NewClient creates a new LLM client based on provider
func NewClient(provider Provider, apiKey string, options map[string]interface{}) (Client, error) {
	switch provider {
	case OpenAI:
		return newOpenAIClient(apiKey, options)
	case Anthropic:
		return newAnthropicClient(apiKey, options)
	case Mock:
		return newMockClient(options)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
}

// optionString reads a string option with a fallback
func optionString(options map[string]interface{}, key, fallback string) string {
	if v, ok := options[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// optionInt reads an int option with a fallback, tolerating YAML's habit of
// decoding numbers as several Go types
func optionInt(options map[string]interface{}, key string, fallback int) int {
	switch v := options[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}
