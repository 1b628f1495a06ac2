package analyzer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ciciliostudio/probe/internal/llm"
	"github.com/ciciliostudio/probe/internal/prompts"
	"github.com/ciciliostudio/probe/internal/session"
)

func newAnalyzerForTest(t *testing.T, responses ...string) *Analyzer {
	t.Helper()
	pm, err := prompts.NewManager("")
	require.NoError(t, err)
	t.Cleanup(func() { pm.Close() })

	options := map[string]interface{}{}
	if len(responses) > 0 {
		options["responses"] = responses
	}
	client, err := llm.NewClient(llm.Mock, "", options)
	require.NoError(t, err)
	return New(client, pm)
}

func failedRun() (session.TestCase, *session.GeneratedCode, *session.ExecutionResult) {
	tc := session.TestCase{Title: "Login form submits", ExpectedBehavior: "redirect to dashboard"}
	code := &session.GeneratedCode{Code: "def test(): assert False", Filename: "test_login.py"}
	res := &session.ExecutionResult{Status: session.StatusFailure, Output: "1 failed", Error: "AssertionError"}
	return tc, code, res
}

func TestAnalyzeFailure(t *testing.T) {
	a := newAnalyzerForTest(t)
	tc, code, res := failedRun()

	analysis, err := a.AnalyzeFailure(context.Background(), tc, code, res)
	require.NoError(t, err)
	assert.Contains(t, analysis.Explanation, "had not finished loading")
	assert.NotEmpty(t, analysis.LikelyCauses)
	assert.NotEmpty(t, analysis.Suggestions)
	assert.Equal(t, "high", analysis.FixPriority)
}

func TestAnalyzeFailureUnparseableResponseKeepsRawText(t *testing.T) {
	a := newAnalyzerForTest(t, "The selector was wrong, plain and simple.")
	tc, code, res := failedRun()

	analysis, err := a.AnalyzeFailure(context.Background(), tc, code, res)
	require.NoError(t, err)
	assert.Equal(t, "The selector was wrong, plain and simple.", analysis.Explanation)
	assert.Equal(t, "medium", analysis.FixPriority)
	assert.NotEmpty(t, analysis.LikelyCauses)
	assert.NotEmpty(t, analysis.Suggestions)
}

func TestAnalyzeFailureNormalizesPriority(t *testing.T) {
	a := newAnalyzerForTest(t, `{"explanation": "timeout", "fix_priority": "URGENT"}`)
	tc, code, res := failedRun()

	analysis, err := a.AnalyzeFailure(context.Background(), tc, code, res)
	require.NoError(t, err)
	assert.Equal(t, "medium", analysis.FixPriority)
	assert.Equal(t, "timeout", analysis.Explanation)
}
