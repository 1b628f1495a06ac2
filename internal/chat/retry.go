package chat

import (
	"context"
	"fmt"

	"github.com/ciciliostudio/probe/internal/logging"
	"github.com/ciciliostudio/probe/internal/session"
)

// DefaultMaxAttempts bounds the auto-fix loop when no limit is configured.
const DefaultMaxAttempts = 3

// RetryController runs a single test case through the bounded auto-fix loop:
//
//	Pending -> Running -> Passed
//	                   -> Failed -> Analyzing -> Regenerating -> Running ...
//	                                                          -> Exhausted
//
// A pass halts the loop immediately even when attempts remain; exhaustion is
// terminal for the turn. The attempt cap bounds total model and browser
// spend regardless of per-call latency.
type RetryController struct {
	runner      Runner
	analyzer    Analyzer
	generator   Generator
	maxAttempts int
}

// NewRetryController creates a controller capped at maxAttempts per test
// case per turn.
func NewRetryController(runner Runner, analyzer Analyzer, generator Generator, maxAttempts int) *RetryController {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	return &RetryController{
		runner:      runner,
		analyzer:    analyzer,
		generator:   generator,
		maxAttempts: maxAttempts,
	}
}

// Execute runs the test case at index through the auto-fix loop, mutating
// the session's generated code and execution result as attempts proceed.
// The returned result is the final attempt's result.
func (r *RetryController) Execute(ctx context.Context, sess *session.Session, index int, requirements string, em *emitter) *session.ExecutionResult {
	tc := sess.TestCases[index]
	code := sess.GeneratedCode[index]

	var result *session.ExecutionResult
	autoFixed := false

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		em.emitCtx(EventStatus, fmt.Sprintf("attempt_%d_start", attempt), map[string]interface{}{
			"message":        fmt.Sprintf("Executing test attempt %d/%d", attempt, r.maxAttempts),
			"test_name":      tc.Title,
			"attempt":        attempt,
			"total_attempts": r.maxAttempts,
		}, map[string]interface{}{"test_code": code.Code})

		res, err := r.runner.RunTest(ctx, tc, code)
		if err != nil {
			res = &session.ExecutionResult{
				Status: session.StatusError,
				Error:  err.Error(),
			}
		}
		res.Attempts = attempt
		res.AutoFixed = autoFixed
		result = res
		sess.SetResult(index, res)

		em.emit(EventTestResult, fmt.Sprintf("attempt_%d_result", attempt), map[string]interface{}{
			"attempt":        attempt,
			"status":         res.Status,
			"output":         res.Output,
			"error":          res.Error,
			"execution_time": res.Duration,
			"test_name":      tc.Title,
		})

		if res.Status == session.StatusSuccess {
			logging.Info("Test %q passed on attempt %d/%d", tc.Title, attempt, r.maxAttempts)
			em.emit(EventSuccess, "final_success", map[string]interface{}{
				"message":        fmt.Sprintf("Test passed on attempt %d", attempt),
				"test_name":      tc.Title,
				"total_attempts": attempt,
				"auto_fixed":     res.AutoFixed,
				"execution_time": res.Duration,
			})
			return res
		}

		if attempt == r.maxAttempts {
			break
		}

		// Failed with attempts remaining: analyze and regenerate.
		logging.Info("Test %q failed on attempt %d, analyzing", tc.Title, attempt)
		em.emit(EventAnalysis, fmt.Sprintf("attempt_%d_analysis", attempt), map[string]interface{}{
			"message":   fmt.Sprintf("Analyzing test failure for attempt %d", attempt),
			"attempt":   attempt,
			"test_name": tc.Title,
			"error":     truncate(res.Error, 200),
		})

		analysis, err := r.analyzer.AnalyzeFailure(ctx, tc, code, res)
		if err != nil {
			logging.Warn("Failure analysis for %q failed: %v", tc.Title, err)
			analysis = &FailureAnalysis{
				Explanation: "Automatic analysis was not available for this failure.",
				FixPriority: "medium",
			}
		}
		em.emit(EventAnalysisComplete, fmt.Sprintf("attempt_%d_analysis_complete", attempt), map[string]interface{}{
			"attempt":      attempt,
			"explanation":  analysis.Explanation,
			"suggestions":  analysis.Suggestions,
			"fix_priority": analysis.FixPriority,
		})

		fixed, err := r.generator.RegenerateTestCode(ctx, FixRequest{
			URL:          sess.CurrentURL,
			TestCase:     tc,
			Code:         code,
			Result:       res,
			Analysis:     analysis,
			Requirements: requirements,
		})
		if err != nil {
			// Without replacement code another run would just repeat
			// the same failure; stop early and report exhaustion.
			logging.Error("Code regeneration for %q failed: %v", tc.Title, err)
			break
		}
		fixed.Status = session.CodeStatusAutoFixed
		sess.SetCode(index, fixed)
		code = fixed
		autoFixed = true

		em.emit(EventCodeUpdate, fmt.Sprintf("attempt_%d_code_generated", attempt), map[string]interface{}{
			"message":   fmt.Sprintf("Generated improved test code for attempt %d", attempt+1),
			"test_name": tc.Title,
			"new_code":  fixed.Code,
			"attempt":   attempt + 1,
		})
	}

	// Exhausted: every attempt failed.
	result.AutoFixed = false
	sess.SetResult(index, result)
	em.emit(EventFinalFailure, "final_failure", map[string]interface{}{
		"message":        fmt.Sprintf("Test failed after %d attempts", result.Attempts),
		"test_name":      tc.Title,
		"total_attempts": result.Attempts,
		"last_error":     result.Error,
		"last_output":    result.Output,
	})
	return result
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
