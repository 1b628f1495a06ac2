package chat

import (
	"context"
	"fmt"

	"github.com/ciciliostudio/probe/internal/logging"
	"github.com/ciciliostudio/probe/internal/session"
)

// Executor runs planned actions strictly in order, updating session state
// and emitting progress events as each action completes. No reordering and
// no parallelism within a turn: a deterministic session-state timeline is
// worth more than latency here.
type Executor struct {
	extractor Extractor
	generator Generator
	embedder  Embedder
	retry     *RetryController
}

// NewExecutor wires the executor to its capability clients. The runner and
// analyzer are owned by the retry controller, which the executor delegates
// to for execute_tests.
func NewExecutor(extractor Extractor, generator Generator, embedder Embedder, retry *RetryController) *Executor {
	return &Executor{
		extractor: extractor,
		generator: generator,
		embedder:  embedder,
		retry:     retry,
	}
}

// Run executes the planned actions against the session. Capability failures
// become error-status results and the turn continues, unless the failed
// action is a hard prerequisite for everything that follows. If the caller's
// context is cancelled the in-flight action finishes and the remaining plan
// is abandoned, leaving the session in the last fully committed state.
func (e *Executor) Run(ctx context.Context, actions []Action, sess *session.Session, em *emitter) []ActionResult {
	results := make([]ActionResult, 0, len(actions))

	// Capability calls run on a detached context so an in-flight action
	// completes its session mutation even when the caller goes away.
	actionCtx := context.WithoutCancel(ctx)

	for i, action := range actions {
		if ctx.Err() != nil {
			logging.Info("Turn cancelled for session %s, abandoning %d remaining actions", sess.ID, len(actions)-i)
			break
		}

		em.emit(EventStatus, fmt.Sprintf("action_%d_start", i+1), map[string]interface{}{
			"message":       fmt.Sprintf("Running %s", action.Type),
			"action":        action.Type,
			"action_number": i + 1,
			"total_actions": len(actions),
		})

		result := e.execute(actionCtx, action, sess, em)
		results = append(results, result)

		if result.Status == ResultError && hardPrerequisite(action, actions[i+1:]) {
			logging.Warn("Action %s failed and blocks the rest of the plan for session %s", action.Type, sess.ID)
			break
		}
		if result.Status == ResultSuccess {
			sess.LastAction = string(action.Type)
		}
	}
	return results
}

// hardPrerequisite reports whether a failed action makes the remaining
// planned actions pointless. Page extraction and test case generation feed
// every downstream generation and execution step.
func hardPrerequisite(failed Action, remaining []Action) bool {
	if failed.Type != ActionExtractURL && failed.Type != ActionGenerateTestCases {
		return false
	}
	for _, a := range remaining {
		switch a.Type {
		case ActionGenerateTestCases, ActionGenerateTestCode, ActionExecuteTests, ActionCreateEmbeddings:
			return true
		}
	}
	return false
}

func (e *Executor) execute(ctx context.Context, action Action, sess *session.Session, em *emitter) ActionResult {
	switch action.Type {
	case ActionExtractURL:
		return e.extractURL(ctx, action, sess)
	case ActionCreateEmbeddings:
		return e.createEmbeddings(ctx, action, sess)
	case ActionGenerateTestCases:
		return e.generateTestCases(ctx, action, sess)
	case ActionGenerateTestCode:
		return e.generateTestCode(ctx, action, sess, em)
	case ActionExecuteTests:
		return e.executeTests(ctx, action, sess, em)
	case ActionAnalyzeFailure:
		return e.analyzeFailure(ctx, action, sess, em)
	case ActionModifyTest:
		return e.modifyTest(action, sess)
	case ActionShowResults:
		return e.showResults(sess)
	case ActionClearSession:
		sess.Reset()
		return ActionResult{Status: ResultSuccess, Action: ActionClearSession, SessionCleared: true}
	case ActionNoAction:
		return ActionResult{Status: ResultNoAction, Action: ActionNoAction}
	default:
		return errorResult(action.Type, fmt.Errorf("unknown action %q", action.Type))
	}
}

// extractURL fetches the rendered page, commits it to the session, and
// indexes its content so later generation steps have page context.
func (e *Executor) extractURL(ctx context.Context, action Action, sess *session.Session) ActionResult {
	url := action.Params.URL
	if url == "" {
		return errorResult(ActionExtractURL, fmt.Errorf("no URL provided"))
	}

	page, err := e.extractor.ExtractPage(ctx, url)
	if err != nil {
		return errorResult(ActionExtractURL, fmt.Errorf("failed to extract %s: %w", url, err))
	}

	sess.CurrentURL = page.URL
	sess.PageTitle = page.Title
	sess.Context = fmt.Sprintf("Analyzing %s (%s)", page.URL, page.Title)

	// Indexing failure is not fatal to the turn; generation degrades to
	// working without embedding context.
	created := false
	if e.embedder != nil {
		created, err = e.embedder.IndexPage(ctx, page)
		if err != nil {
			logging.Warn("Failed to index page %s: %v", url, err)
		}
	}

	return ActionResult{
		Status:            ResultSuccess,
		Action:            ActionExtractURL,
		URL:               page.URL,
		EmbeddingsCreated: created,
	}
}

func (e *Executor) createEmbeddings(ctx context.Context, action Action, sess *session.Session) ActionResult {
	url := action.Params.URL
	if url == "" {
		url = sess.CurrentURL
	}
	if url == "" {
		return errorResult(ActionCreateEmbeddings, fmt.Errorf("no URL available for embeddings"))
	}
	if e.embedder == nil {
		return errorResult(ActionCreateEmbeddings, fmt.Errorf("embeddings are not configured"))
	}

	page, err := e.extractor.ExtractPage(ctx, url)
	if err != nil {
		return errorResult(ActionCreateEmbeddings, fmt.Errorf("failed to extract %s: %w", url, err))
	}
	created, err := e.embedder.IndexPage(ctx, page)
	if err != nil {
		return errorResult(ActionCreateEmbeddings, err)
	}
	return ActionResult{
		Status:            ResultSuccess,
		Action:            ActionCreateEmbeddings,
		URL:               url,
		EmbeddingsCreated: created,
	}
}

func (e *Executor) generateTestCases(ctx context.Context, action Action, sess *session.Session) ActionResult {
	if sess.CurrentURL == "" {
		return errorResult(ActionGenerateTestCases, fmt.Errorf("no URL available for test generation"))
	}

	cases, err := e.generator.GenerateTestCases(ctx, CaseRequest{
		URL:          sess.CurrentURL,
		Requirements: action.Params.Requirements,
		PageContext:  e.pageContext(ctx, action.Params.Requirements, sess),
		Conversation: sess.ConversationContext(6),
	})
	if err != nil {
		return errorResult(ActionGenerateTestCases, err)
	}

	// Generation replaces the working set; stale code and results for the
	// old cases go with it.
	sess.TestCases = cases
	sess.GeneratedCode = make(map[int]*session.GeneratedCode)
	sess.ExecutionResults = make(map[int]*session.ExecutionResult)

	return ActionResult{
		Status:    ResultSuccess,
		Action:    ActionGenerateTestCases,
		URL:       sess.CurrentURL,
		TestCases: cases,
	}
}

// generateTestCode produces code for the referenced case, or for every case
// still lacking code when no specific case is referenced.
func (e *Executor) generateTestCode(ctx context.Context, action Action, sess *session.Session, em *emitter) ActionResult {
	if len(sess.TestCases) == 0 {
		return errorResult(ActionGenerateTestCode, fmt.Errorf("no test cases available for code generation"))
	}

	indexes := sess.CasesWithoutCode()
	if idx := action.Params.CaseIndex; idx >= 0 {
		if idx >= len(sess.TestCases) {
			return errorResult(ActionGenerateTestCode, fmt.Errorf("test case index %d out of range", idx))
		}
		indexes = []int{idx}
	}
	if len(indexes) == 0 {
		return ActionResult{Status: ResultNoAction, Action: ActionGenerateTestCode}
	}

	pageContext := e.pageContext(ctx, action.Params.Requirements, sess)

	var generated []*session.GeneratedCode
	var firstErr error
	for _, idx := range indexes {
		code, err := e.generator.GenerateTestCode(ctx, CodeRequest{
			URL:         sess.CurrentURL,
			TestCase:    sess.TestCases[idx],
			PageContext: pageContext,
		})
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			logging.Error("Code generation failed for case %d: %v", idx, err)
			continue
		}
		sess.SetCode(idx, code)
		generated = append(generated, code)
		em.emit(EventCodeUpdate, fmt.Sprintf("case_%d_code_generated", idx), map[string]interface{}{
			"test_name": sess.TestCases[idx].Title,
			"filename":  code.Filename,
			"new_code":  code.Code,
		})
	}

	if len(generated) == 0 && firstErr != nil {
		return errorResult(ActionGenerateTestCode, firstErr)
	}
	return ActionResult{
		Status:        ResultSuccess,
		Action:        ActionGenerateTestCode,
		GeneratedCode: generated,
	}
}

// executeTests runs the selected cases through the retry controller, one
// case at a time.
func (e *Executor) executeTests(ctx context.Context, action Action, sess *session.Session, em *emitter) ActionResult {
	indexes := make([]int, 0, len(sess.TestCases))
	if idx := action.Params.CaseIndex; idx >= 0 {
		if idx >= len(sess.TestCases) {
			return errorResult(ActionExecuteTests, fmt.Errorf("test case index %d out of range", idx))
		}
		indexes = append(indexes, idx)
	} else {
		for i := range sess.TestCases {
			indexes = append(indexes, i)
		}
	}

	var results []*session.ExecutionResult
	ran := false
	for _, idx := range indexes {
		if _, ok := sess.GeneratedCode[idx]; !ok {
			logging.Warn("Skipping test case %d: no generated code", idx)
			continue
		}
		ran = true
		results = append(results, e.retry.Execute(ctx, sess, idx, action.Params.Requirements, em))
	}
	if !ran {
		return errorResult(ActionExecuteTests, fmt.Errorf("no test code available for execution"))
	}
	out := ActionResult{
		Status:           ResultSuccess,
		Action:           ActionExecuteTests,
		ExecutionResults: results,
	}
	// A single-case run mirrors the final attempt at the top level.
	if len(results) == 1 {
		out.TestName = sess.TestCases[results[0].CaseIndex].Title
		out.ExecutionTime = results[0].Duration
		out.Attempts = results[0].Attempts
		out.AutoFixed = results[0].AutoFixed
	}
	return out
}

// analyzeFailure re-analyzes a stored failing result on explicit request,
// outside the auto-fix loop.
func (e *Executor) analyzeFailure(ctx context.Context, action Action, sess *session.Session, em *emitter) ActionResult {
	idx := action.Params.CaseIndex
	if idx < 0 {
		idx = latestFailedCase(sess)
	}
	if idx < 0 || idx >= len(sess.TestCases) {
		return errorResult(ActionAnalyzeFailure, fmt.Errorf("no failed execution result to analyze"))
	}
	res, ok := sess.ExecutionResults[idx]
	if !ok || res.Status == session.StatusSuccess {
		return errorResult(ActionAnalyzeFailure, fmt.Errorf("test case %d has no failing result", idx))
	}
	code := sess.GeneratedCode[idx]
	if code == nil {
		return errorResult(ActionAnalyzeFailure, fmt.Errorf("test case %d has no generated code", idx))
	}

	analysis, err := e.retry.analyzer.AnalyzeFailure(ctx, sess.TestCases[idx], code, res)
	if err != nil {
		return errorResult(ActionAnalyzeFailure, err)
	}
	em.emit(EventAnalysisComplete, fmt.Sprintf("case_%d_analysis", idx), map[string]interface{}{
		"test_name":    sess.TestCases[idx].Title,
		"explanation":  analysis.Explanation,
		"suggestions":  analysis.Suggestions,
		"fix_priority": analysis.FixPriority,
	})
	return ActionResult{
		Status:   ResultSuccess,
		Action:   ActionAnalyzeFailure,
		TestName: sess.TestCases[idx].Title,
	}
}

func latestFailedCase(sess *session.Session) int {
	for i := len(sess.TestCases) - 1; i >= 0; i-- {
		if res, ok := sess.ExecutionResults[i]; ok && res.Status != session.StatusSuccess {
			return i
		}
	}
	return -1
}

func (e *Executor) modifyTest(action Action, sess *session.Session) ActionResult {
	idx := action.Params.CaseIndex
	if idx < 0 {
		idx = len(sess.TestCases) - 1
	}
	if idx < 0 || idx >= len(sess.TestCases) {
		return errorResult(ActionModifyTest, fmt.Errorf("test case index %d out of range", idx))
	}

	switch action.Params.Operation {
	case "remove":
		title := sess.TestCases[idx].Title
		if err := sess.RemoveTestCase(idx); err != nil {
			return errorResult(ActionModifyTest, err)
		}
		return ActionResult{Status: ResultSuccess, Action: ActionModifyTest, TestName: title}
	case "retitle":
		if action.Params.Title == "" {
			return errorResult(ActionModifyTest, fmt.Errorf("no title provided"))
		}
		sess.TestCases[idx].Title = action.Params.Title
		return ActionResult{Status: ResultSuccess, Action: ActionModifyTest, TestName: action.Params.Title}
	default:
		return errorResult(ActionModifyTest, fmt.Errorf("unknown modify operation %q", action.Params.Operation))
	}
}

func (e *Executor) showResults(sess *session.Session) ActionResult {
	results := make([]*session.ExecutionResult, 0, len(sess.ExecutionResults))
	for i := range sess.TestCases {
		if res, ok := sess.ExecutionResults[i]; ok {
			results = append(results, res)
		}
	}
	return ActionResult{
		Status:           ResultSuccess,
		Action:           ActionShowResults,
		TestCases:        sess.TestCases,
		ExecutionResults: results,
	}
}

// pageContext fetches relevant embedding chunks for the query, falling back
// to an empty context when embeddings are unavailable.
func (e *Executor) pageContext(ctx context.Context, query string, sess *session.Session) string {
	if e.embedder == nil || sess.CurrentURL == "" {
		return ""
	}
	if query == "" {
		query = sess.PageTitle
	}
	snippet, err := e.embedder.RelevantContext(ctx, query, sess.CurrentURL)
	if err != nil {
		logging.Debug("No embedding context for %s: %v", sess.CurrentURL, err)
		return ""
	}
	return snippet
}
