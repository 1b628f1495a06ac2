// Package chat implements the session-scoped action-orchestration engine:
// one user message is planned into an ordered sequence of actions, executed
// against the pipeline's capability clients, and reported back as an ordered
// stream of progress events plus a final aggregated response.
package chat

import "github.com/ciciliostudio/probe/internal/session"

// ActionType identifies a single planned unit of work within a turn.
type ActionType string

const (
	ActionExtractURL        ActionType = "extract_url"
	ActionCreateEmbeddings  ActionType = "create_embeddings"
	ActionGenerateTestCases ActionType = "generate_test_cases"
	ActionGenerateTestCode  ActionType = "generate_test_code"
	ActionExecuteTests      ActionType = "execute_tests"
	ActionAnalyzeFailure    ActionType = "analyze_failure"
	ActionModifyTest        ActionType = "modify_test"
	ActionShowResults       ActionType = "show_results"
	ActionClearSession      ActionType = "clear_session"
	ActionNoAction          ActionType = "no_action"
)

// ActionParams carries the per-action payload. Which fields are meaningful
// depends on the action type.
type ActionParams struct {
	URL          string `json:"url,omitempty"`
	Requirements string `json:"requirements,omitempty"`
	// CaseIndex selects a test case for modify_test and single-case
	// execution. -1 means "all cases" for execute_tests and "the last
	// case" for modify_test.
	CaseIndex int    `json:"case_index,omitempty"`
	Operation string `json:"operation,omitempty"` // modify_test: remove, retitle
	Title     string `json:"title,omitempty"`
}

// Action is ephemeral: planned, executed, and discarded within one turn.
// Only its effects persist in the session.
type Action struct {
	Type   ActionType   `json:"action"`
	Params ActionParams `json:"parameters,omitempty"`
}

// Result statuses for executed actions.
const (
	ResultSuccess  = "success"
	ResultError    = "error"
	ResultNoAction = "no_action_needed"
)

// ActionResult records the outcome of one executed action. Fields beyond
// Status and Action are populated depending on the action type.
type ActionResult struct {
	Status            string                     `json:"status"`
	Action            ActionType                 `json:"action"`
	Error             string                     `json:"error,omitempty"`
	URL               string                     `json:"url,omitempty"`
	TestCases         []session.TestCase         `json:"test_cases,omitempty"`
	GeneratedCode     []*session.GeneratedCode   `json:"generated_code,omitempty"`
	ExecutionResults  []*session.ExecutionResult `json:"execution_results,omitempty"`
	TestName          string                     `json:"test_name,omitempty"`
	ExecutionTime     float64                    `json:"execution_time,omitempty"`
	Attempts          int                        `json:"attempts,omitempty"`
	AutoFixed         bool                       `json:"auto_fixed,omitempty"`
	EmbeddingsCreated bool                       `json:"embeddings_created,omitempty"`
	SessionCleared    bool                       `json:"session_cleared,omitempty"`
}

func errorResult(action ActionType, err error) ActionResult {
	return ActionResult{Status: ResultError, Action: action, Error: err.Error()}
}

// TurnInput is one user chat message bound to an optional session.
type TurnInput struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// TurnOutput is the aggregated response for one completed turn.
type TurnOutput struct {
	SessionID     string          `json:"session_id"`
	UserResponse  string          `json:"user_response"`
	Actions       []Action        `json:"actions"`
	ActionResults []ActionResult  `json:"action_results"`
	SessionState  session.Summary `json:"session_state"`
}
