package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ciciliostudio/probe/internal/logging"
	"github.com/ciciliostudio/probe/internal/session"
)

// Orchestrator drives one chat turn end to end: load or create the session,
// plan the message into actions, execute them in order, compose the natural
// language response, and persist the updated session. Turns on the same
// session are serialized; turns on different sessions run independently.
type Orchestrator struct {
	store    session.Store
	planner  *Planner
	executor *Executor
}

func NewOrchestrator(store session.Store, planner *Planner, executor *Executor) *Orchestrator {
	return &Orchestrator{
		store:    store,
		planner:  planner,
		executor: executor,
	}
}

// ProcessMessage handles one turn without a live event consumer. Events are
// buffered and discarded; callers that want the stream use
// ProcessMessageWith.
func (o *Orchestrator) ProcessMessage(ctx context.Context, in TurnInput) (*TurnOutput, error) {
	return o.ProcessMessageWith(ctx, in, &BufferPublisher{})
}

// ProcessMessageWith handles one turn, streaming progress events to pub as
// the plan executes. A turn on a busy session waits its turn rather than
// failing.
func (o *Orchestrator) ProcessMessageWith(ctx context.Context, in TurnInput, pub Publisher) (*TurnOutput, error) {
	if strings.TrimSpace(in.Message) == "" {
		return nil, fmt.Errorf("empty message")
	}
	sessionID := in.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	o.store.Acquire(sessionID)
	defer o.store.Release(sessionID)

	sess, created := o.store.GetOrCreate(sessionID)
	if created {
		logging.Info("Created session %s", sessionID)
	}
	sess.Touch()

	actions := o.planner.Plan(in.Message, sess)
	sess.AddMessage(session.RoleUser, in.Message, actionNames(actions))
	logging.Info("Session %s: planned %d actions for message", sessionID, len(actions))

	em := newEmitter(pub)
	em.emit(EventStatus, "planning_complete", map[string]interface{}{
		"message": fmt.Sprintf("Planned %d actions", len(actions)),
		"actions": actionNames(actions),
	})

	results := o.executor.Run(ctx, actions, sess, em)

	response := composeResponse(in.Message, actions, results, sess)
	sess.AddMessage(session.RoleAssistant, response, nil)

	if err := o.store.Save(sess); err != nil {
		logging.Error("Failed to persist session %s: %v", sessionID, err)
	}

	out := &TurnOutput{
		SessionID:     sessionID,
		UserResponse:  response,
		Actions:       actions,
		ActionResults: results,
		SessionState:  sess.Summary(),
	}
	em.emit(EventFinalResponse, "turn_complete", out)
	return out, nil
}

func actionNames(actions []Action) []string {
	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = string(a.Type)
	}
	return names
}

// composeResponse folds the per-action outcomes into one user-facing
// message. Errors are reported inline instead of aborting the summary, so
// a half-successful turn still reads coherently.
func composeResponse(message string, actions []Action, results []ActionResult, sess *session.Session) string {
	var parts []string

	for _, res := range results {
		switch res.Action {
		case ActionExtractURL:
			if res.Status == ResultSuccess {
				title := sess.PageTitle
				if title == "" {
					title = res.URL
				}
				parts = append(parts, fmt.Sprintf("I analyzed %s (%s).", res.URL, title))
			} else {
				parts = append(parts, fmt.Sprintf("I couldn't analyze the page: %s.", res.Error))
			}
		case ActionCreateEmbeddings:
			if res.Status == ResultSuccess {
				if res.EmbeddingsCreated {
					parts = append(parts, "I indexed the page content for smarter test generation.")
				} else {
					parts = append(parts, "The page content was already indexed.")
				}
			} else {
				parts = append(parts, fmt.Sprintf("Indexing the page failed: %s.", res.Error))
			}
		case ActionGenerateTestCases:
			if res.Status == ResultSuccess {
				parts = append(parts, fmt.Sprintf("I generated %d test cases:", len(res.TestCases)))
				for i, tc := range res.TestCases {
					parts = append(parts, fmt.Sprintf("%d. %s (%s)", i+1, tc.Title, tc.TestType))
				}
			} else {
				parts = append(parts, fmt.Sprintf("Test case generation failed: %s.", res.Error))
			}
		case ActionGenerateTestCode:
			switch res.Status {
			case ResultSuccess:
				parts = append(parts, fmt.Sprintf("I generated test code for %d case(s).", len(res.GeneratedCode)))
			case ResultNoAction:
				parts = append(parts, "All test cases already have code.")
			default:
				parts = append(parts, fmt.Sprintf("Code generation failed: %s.", res.Error))
			}
		case ActionExecuteTests:
			if res.Status == ResultSuccess {
				parts = append(parts, executionSummary(res.ExecutionResults, sess))
			} else {
				parts = append(parts, fmt.Sprintf("Test execution failed: %s.", res.Error))
			}
		case ActionAnalyzeFailure:
			if res.Status == ResultSuccess {
				parts = append(parts, fmt.Sprintf("I analyzed the failure in %q; see the analysis above.", res.TestName))
			} else {
				parts = append(parts, fmt.Sprintf("Failure analysis was not possible: %s.", res.Error))
			}
		case ActionModifyTest:
			if res.Status == ResultSuccess {
				parts = append(parts, fmt.Sprintf("Done. %d test case(s) remain.", len(sess.TestCases)))
			} else {
				parts = append(parts, fmt.Sprintf("I couldn't modify the test cases: %s.", res.Error))
			}
		case ActionShowResults:
			parts = append(parts, resultsOverview(sess))
		case ActionClearSession:
			parts = append(parts, "Session cleared. Give me a URL to start over.")
		}
	}

	if len(parts) == 0 {
		return noActionResponse(sess)
	}
	return strings.Join(parts, "\n")
}

func executionSummary(results []*session.ExecutionResult, sess *session.Session) string {
	passed, fixed := 0, 0
	for _, r := range results {
		if r.Status == session.StatusSuccess {
			passed++
			if r.AutoFixed {
				fixed++
			}
		}
	}
	line := fmt.Sprintf("Test run finished: %d/%d passed.", passed, len(results))
	if fixed > 0 {
		line += fmt.Sprintf(" %d test(s) needed automatic fixes before passing.", fixed)
	}
	if passed < len(results) {
		line += " The remaining failures are listed above with their error output."
	}
	return line
}

func resultsOverview(sess *session.Session) string {
	if len(sess.TestCases) == 0 {
		return "No test cases yet. Give me a URL and I'll generate some."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Current session: %d test case(s) for %s.\n", len(sess.TestCases), sess.CurrentURL)
	for i, tc := range sess.TestCases {
		status := "not run"
		if res, ok := sess.ExecutionResults[i]; ok {
			status = res.Status
			if res.AutoFixed {
				status += ", auto-fixed"
			}
		} else if _, ok := sess.GeneratedCode[i]; ok {
			status = "code ready"
		}
		fmt.Fprintf(&b, "%d. %s [%s]\n", i+1, tc.Title, status)
	}
	return strings.TrimRight(b.String(), "\n")
}

func noActionResponse(sess *session.Session) string {
	if sess.CurrentURL == "" {
		return "I can generate and run web tests for you. Share a URL to get started, for example: \"Test the login flow on https://example.com\"."
	}
	return fmt.Sprintf("I'm currently working with %s. Ask me to generate test cases, write test code, or run the tests.", sess.CurrentURL)
}
