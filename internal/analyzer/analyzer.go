// Package analyzer explains failed test runs by asking the language model
// what went wrong and what to change.
package analyzer

import (
	"context"
	"fmt"

	"github.com/ciciliostudio/probe/internal/chat"
	"github.com/ciciliostudio/probe/internal/generator"
	"github.com/ciciliostudio/probe/internal/llm"
	"github.com/ciciliostudio/probe/internal/logging"
	"github.com/ciciliostudio/probe/internal/prompts"
	"github.com/ciciliostudio/probe/internal/session"
)

const systemPrompt = "You are an expert test automation engineer. Follow the output format instructions exactly."

// Analyzer implements failure analysis on top of an LLM client.
type Analyzer struct {
	client  llm.Client
	prompts *prompts.Manager
}

func New(client llm.Client, pm *prompts.Manager) *Analyzer {
	return &Analyzer{client: client, prompts: pm}
}

// AnalyzeFailure asks the model to explain a failed run. A response that
// cannot be parsed still yields a usable analysis carrying the raw
// explanation text.
func (a *Analyzer) AnalyzeFailure(ctx context.Context, tc session.TestCase, code *session.GeneratedCode, result *session.ExecutionResult) (*chat.FailureAnalysis, error) {
	prompt, err := a.prompts.Render(prompts.FailureAnalysis, map[string]interface{}{
		"Title":            tc.Title,
		"ExpectedBehavior": tc.ExpectedBehavior,
		"Code":             code.Code,
		"Output":           result.Output,
		"Error":            result.Error,
	})
	if err != nil {
		return nil, err
	}

	raw, err := a.client.Complete(ctx, llm.Request{System: systemPrompt, User: prompt})
	if err != nil {
		return nil, fmt.Errorf("failure analysis failed: %w", err)
	}

	var analysis chat.FailureAnalysis
	if err := generator.UnmarshalLenient(raw, &analysis); err != nil {
		logging.Warn("Could not parse failure analysis, keeping raw explanation: %v", err)
		analysis = chat.FailureAnalysis{Explanation: raw}
	}
	fillDefaults(&analysis)
	return &analysis, nil
}

// fillDefaults ensures every field downstream prompts rely on is populated.
func fillDefaults(a *chat.FailureAnalysis) {
	if a.Explanation == "" {
		a.Explanation = "The test failed; see the execution output for details."
	}
	if len(a.LikelyCauses) == 0 {
		a.LikelyCauses = []string{"Unknown cause"}
	}
	if len(a.Suggestions) == 0 {
		a.Suggestions = []string{"Review the test code and the execution output"}
	}
	switch a.FixPriority {
	case "low", "medium", "high":
	default:
		a.FixPriority = "medium"
	}
}
