package session

import (
	"fmt"
	"strings"
	"time"
)

// Test types recognized by the pipeline.
const (
	TestFunctional    = "functional"
	TestValidation    = "validation"
	TestNegative      = "negative"
	TestPositive      = "positive"
	TestErrorHandling = "error_handling"
	TestPerformance   = "performance"
	TestSecurity      = "security"
)

// Element types a test case can target.
const (
	ElementForms   = "forms"
	ElementLinks   = "links"
	ElementButtons = "buttons"
	ElementInputs  = "inputs"
	ElementImages  = "images"
	ElementTables  = "tables"
)

// Generated code statuses.
const (
	CodeStatusGenerated = "generated"
	CodeStatusAutoFixed = "auto_fixed"
	CodeStatusFallback  = "fallback"
)

// Execution result statuses.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusError   = "error"
)

// Conversation message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// TestCase describes one derived browser test for the current page.
type TestCase struct {
	Title            string   `json:"title"`
	TestType         string   `json:"test_type"`
	ElementType      string   `json:"element_type"`
	Description      string   `json:"description"`
	ExpectedBehavior string   `json:"expected_behavior"`
	Steps            []string `json:"test_steps"`
	HTMLChunk        string   `json:"html_chunk,omitempty"`
	ChunkID          string   `json:"chunk_id,omitempty"`
}

// NormalizeTestType maps unknown test type strings onto the supported set.
func NormalizeTestType(t string) string {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case TestValidation:
		return TestValidation
	case TestNegative:
		return TestNegative
	case TestPositive:
		return TestPositive
	case TestErrorHandling, "error handling":
		return TestErrorHandling
	case TestPerformance:
		return TestPerformance
	case TestSecurity:
		return TestSecurity
	default:
		return TestFunctional
	}
}

// GeneratedCode holds the executable test script for one test case.
// Regeneration during auto-fix replaces the previous code entirely.
type GeneratedCode struct {
	CaseIndex int    `json:"case_index"`
	Code      string `json:"test_code"`
	Filename  string `json:"filename"`
	Status    string `json:"status"` // generated, auto_fixed, fallback
}

// ExecutionResult records the outcome of the last run attempt for a test case.
type ExecutionResult struct {
	CaseIndex int     `json:"case_index"`
	Status    string  `json:"status"` // success, failure, error
	Duration  float64 `json:"execution_time"`
	Output    string  `json:"output,omitempty"`
	Error     string  `json:"error,omitempty"`
	Attempts  int     `json:"attempts"`
	AutoFixed bool    `json:"auto_fixed"`
}

// ChatMessage is one entry in the session's conversation history.
type ChatMessage struct {
	Role    string    `json:"role"` // user, assistant
	Content string    `json:"content"`
	Time    time.Time `json:"timestamp"`
	Actions []string  `json:"actions,omitempty"`
}

// Session holds the conversational and pipeline state for one chat session.
// Mutation happens only inside a turn, and the Store serializes turns per
// session, so Session itself carries no locking.
type Session struct {
	ID               string                   `json:"session_id"`
	CreatedAt        time.Time                `json:"created_at"`
	LastActive       time.Time                `json:"last_active"`
	CurrentURL       string                   `json:"current_url,omitempty"`
	PageTitle        string                   `json:"page_title,omitempty"`
	TestCases        []TestCase               `json:"test_cases"`
	GeneratedCode    map[int]*GeneratedCode   `json:"generated_code"`
	ExecutionResults map[int]*ExecutionResult `json:"execution_results"`
	LastAction       string                   `json:"last_action,omitempty"`
	Context          string                   `json:"context,omitempty"`
	Messages         []ChatMessage            `json:"messages"`
}

// New creates an empty session with the given id.
func New(id string) *Session {
	now := time.Now()
	return &Session{
		ID:               id,
		CreatedAt:        now,
		LastActive:       now,
		GeneratedCode:    make(map[int]*GeneratedCode),
		ExecutionResults: make(map[int]*ExecutionResult),
	}
}

// Touch updates the last-active timestamp.
func (s *Session) Touch() {
	s.LastActive = time.Now()
}

// AddMessage appends a message to the conversation history.
func (s *Session) AddMessage(role, content string, actions []string) {
	s.Messages = append(s.Messages, ChatMessage{
		Role:    role,
		Content: content,
		Time:    time.Now(),
		Actions: actions,
	})
	s.Touch()
}

// ConversationContext returns the most recent messages formatted for prompts.
func (s *Session) ConversationContext(maxMessages int) string {
	if len(s.Messages) == 0 {
		return ""
	}
	start := 0
	if len(s.Messages) > maxMessages {
		start = len(s.Messages) - maxMessages
	}
	var b strings.Builder
	for _, msg := range s.Messages[start:] {
		fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
	}
	return b.String()
}

// SetCode stores generated code for a test case, replacing any previous code.
func (s *Session) SetCode(index int, code *GeneratedCode) {
	code.CaseIndex = index
	s.GeneratedCode[index] = code
}

// SetResult stores the latest execution result for a test case.
func (s *Session) SetResult(index int, result *ExecutionResult) {
	result.CaseIndex = index
	s.ExecutionResults[index] = result
}

// CasesWithoutCode returns the indexes of test cases that have no
// generated code yet, in order.
func (s *Session) CasesWithoutCode() []int {
	var missing []int
	for i := range s.TestCases {
		if _, ok := s.GeneratedCode[i]; !ok {
			missing = append(missing, i)
		}
	}
	return missing
}

// RemoveTestCase deletes the test case at index and renumbers the trailing
// entries along with their generated code and execution results. Entries
// below the removed index are untouched.
func (s *Session) RemoveTestCase(index int) error {
	if index < 0 || index >= len(s.TestCases) {
		return fmt.Errorf("test case index %d out of range (have %d)", index, len(s.TestCases))
	}
	s.TestCases = append(s.TestCases[:index], s.TestCases[index+1:]...)

	delete(s.GeneratedCode, index)
	delete(s.ExecutionResults, index)
	for i := index + 1; i <= len(s.TestCases); i++ {
		if code, ok := s.GeneratedCode[i]; ok {
			delete(s.GeneratedCode, i)
			code.CaseIndex = i - 1
			s.GeneratedCode[i-1] = code
		}
		if res, ok := s.ExecutionResults[i]; ok {
			delete(s.ExecutionResults, i)
			res.CaseIndex = i - 1
			s.ExecutionResults[i-1] = res
		}
	}
	return nil
}

// Reset clears all pipeline state but keeps the session identity and
// conversation history.
func (s *Session) Reset() {
	s.CurrentURL = ""
	s.PageTitle = ""
	s.TestCases = nil
	s.GeneratedCode = make(map[int]*GeneratedCode)
	s.ExecutionResults = make(map[int]*ExecutionResult)
	s.LastAction = ""
	s.Context = ""
	s.Touch()
}

// Summary is the externally visible snapshot of a session's state.
type Summary struct {
	SessionID           string    `json:"session_id"`
	CurrentURL          string    `json:"current_url,omitempty"`
	TestCasesCount      int       `json:"test_cases_count"`
	HasGeneratedCode    bool      `json:"has_generated_code"`
	HasExecutionResults bool      `json:"has_execution_results"`
	LastAction          string    `json:"last_action,omitempty"`
	Context             string    `json:"context,omitempty"`
	MessageCount        int       `json:"message_count"`
	CreatedAt           time.Time `json:"created_at"`
	LastActive          time.Time `json:"last_active"`
}

// Summary builds a snapshot of the session state.
func (s *Session) Summary() Summary {
	return Summary{
		SessionID:           s.ID,
		CurrentURL:          s.CurrentURL,
		TestCasesCount:      len(s.TestCases),
		HasGeneratedCode:    len(s.GeneratedCode) > 0,
		HasExecutionResults: len(s.ExecutionResults) > 0,
		LastAction:          s.LastAction,
		Context:             s.Context,
		MessageCount:        len(s.Messages),
		CreatedAt:           s.CreatedAt,
		LastActive:          s.LastActive,
	}
}
