package chat

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ciciliostudio/probe/internal/session"
)

var (
	urlPattern   = regexp.MustCompile(`https?://[^\s]+`)
	indexPattern = regexp.MustCompile(`(?:test|case)\s*(?:#|number\s*)?(\d+)`)
	// Whole words only: "brunch" or "executed" must not read as a run request.
	runPattern = regexp.MustCompile(`\b(?:run|rerun|execute)\b`)
)

// Planner maps a raw chat message plus the current session state to the
// ordered list of actions for this turn. Classification is rule-based and
// conservative: the smallest action set that satisfies the explicit request
// wins over speculative extra steps.
type Planner struct{}

// NewPlanner creates a planner.
func NewPlanner() *Planner {
	return &Planner{}
}

// Plan classifies the message into zero or more actions. An unrecognizable
// request yields a single no_action; it is never an error.
func (p *Planner) Plan(message string, sess *session.Session) []Action {
	lower := strings.ToLower(message)
	url := extractURL(message)
	requirements := strings.TrimSpace(urlPattern.ReplaceAllString(message, ""))

	// Session-level intents short-circuit the pipeline intents.
	if containsAny(lower, "clear session", "reset session", "start over", "new session", "clear everything") {
		return []Action{{Type: ActionClearSession}}
	}
	if containsAny(lower, "show result", "show the result", "show me the result", "previous result", "session status", "what happened") {
		return []Action{{Type: ActionShowResults}}
	}

	var actions []Action

	// A new or changed URL is always extracted first so every following
	// action sees consistent page state.
	if url != "" && url != sess.CurrentURL {
		actions = append(actions, Action{Type: ActionExtractURL, Params: ActionParams{URL: url, Requirements: requirements}})
	}

	haveURL := url != "" || sess.CurrentURL != ""
	haveCases := len(sess.TestCases) > 0

	switch {
	case containsAny(lower, "remove test", "delete test", "drop test"):
		actions = append(actions, Action{Type: ActionModifyTest, Params: ActionParams{
			Operation: "remove",
			CaseIndex: extractCaseIndex(lower),
		}})

	case containsAny(lower, "embed", "index the page", "index this page", "create embeddings"):
		actions = append(actions, Action{Type: ActionCreateEmbeddings, Params: ActionParams{URL: url}})

	case runPattern.MatchString(lower):
		// Running implies code for every case; the executor only
		// generates for the cases still lacking it.
		if !haveCases && haveURL {
			actions = append(actions, Action{Type: ActionGenerateTestCases, Params: ActionParams{Requirements: requirements}})
		}
		actions = append(actions,
			Action{Type: ActionGenerateTestCode, Params: ActionParams{CaseIndex: -1}},
			Action{Type: ActionExecuteTests, Params: ActionParams{CaseIndex: extractCaseIndex(lower), Requirements: requirements}},
		)

	case containsAny(lower, "analyze", "why did", "what went wrong", "explain the failure"):
		actions = append(actions, Action{Type: ActionAnalyzeFailure, Params: ActionParams{CaseIndex: extractCaseIndex(lower)}})

	case containsAny(lower, "code", "script"):
		if !haveCases && haveURL {
			actions = append(actions, Action{Type: ActionGenerateTestCases, Params: ActionParams{Requirements: requirements}})
		}
		actions = append(actions, Action{Type: ActionGenerateTestCode, Params: ActionParams{CaseIndex: extractCaseIndex(lower), Requirements: requirements}})

	case strings.Contains(lower, "test") && haveURL:
		actions = append(actions, Action{Type: ActionGenerateTestCases, Params: ActionParams{Requirements: requirements}})
	}

	if len(actions) == 0 {
		return []Action{{Type: ActionNoAction}}
	}
	return actions
}

// extractURL returns the first URL in the message, with trailing sentence
// punctuation stripped.
func extractURL(message string) string {
	url := urlPattern.FindString(message)
	return strings.TrimRight(url, ".,;:!?)")
}

// extractCaseIndex parses a one-based test case reference ("test 2") into a
// zero-based index. -1 means no specific case was referenced.
func extractCaseIndex(lower string) int {
	m := indexPattern.FindStringSubmatch(lower)
	if m == nil {
		return -1
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 {
		return -1
	}
	return n - 1
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
