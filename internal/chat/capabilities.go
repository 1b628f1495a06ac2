package chat

import (
	"context"

	"github.com/ciciliostudio/probe/internal/session"
)

// The capability clients are the engine's external collaborators. Each
// exposes one slow, fallible operation; the executor treats every call as a
// suspension point and converts failures into structured action results.

// PageData is the extracted content of one rendered web page.
type PageData struct {
	URL             string `json:"url"`
	Title           string `json:"title"`
	MetaDescription string `json:"meta_description,omitempty"`
	HTML            string `json:"html"`
	Text            string `json:"text"`
}

// Extractor fetches and simplifies a rendered web page.
type Extractor interface {
	ExtractPage(ctx context.Context, url string) (*PageData, error)
}

// CaseRequest asks the generator to derive test cases for the current page.
type CaseRequest struct {
	URL          string
	Requirements string
	PageContext  string // relevant embedding chunks, may be empty
	Conversation string // recent chat history, for follow-up requests
	MaxCases     int
}

// CodeRequest asks the generator to produce executable code for a test case.
type CodeRequest struct {
	URL         string
	TestCase    session.TestCase
	PageContext string
}

// FixRequest asks the generator to regenerate code after a failed run.
type FixRequest struct {
	URL          string
	TestCase     session.TestCase
	Code         *session.GeneratedCode
	Result       *session.ExecutionResult
	Analysis     *FailureAnalysis
	Requirements string
}

// Generator produces test cases and executable test code via the language
// model.
type Generator interface {
	GenerateTestCases(ctx context.Context, req CaseRequest) ([]session.TestCase, error)
	GenerateTestCode(ctx context.Context, req CodeRequest) (*session.GeneratedCode, error)
	RegenerateTestCode(ctx context.Context, req FixRequest) (*session.GeneratedCode, error)
}

// Runner executes one generated test and reports the attempt outcome.
// A failing test is a valid result, not an error; the error return is for
// runs that could not be started at all.
type Runner interface {
	RunTest(ctx context.Context, tc session.TestCase, code *session.GeneratedCode) (*session.ExecutionResult, error)
}

// FailureAnalysis explains a failed test run and ranks fix suggestions.
type FailureAnalysis struct {
	Explanation  string   `json:"explanation"`
	LikelyCauses []string `json:"likely_causes"`
	Suggestions  []string `json:"suggestions"`
	FixPriority  string   `json:"fix_priority"` // low, medium, high
}

// Analyzer explains failed test runs.
type Analyzer interface {
	AnalyzeFailure(ctx context.Context, tc session.TestCase, code *session.GeneratedCode, result *session.ExecutionResult) (*FailureAnalysis, error)
}

// Embedder indexes page content and retrieves relevant context for prompts.
type Embedder interface {
	// IndexPage stores the page's content chunks. It reports whether new
	// embeddings were created (false when the page was already indexed).
	IndexPage(ctx context.Context, page *PageData) (bool, error)
	// RelevantContext returns prompt-ready context for a query against
	// the indexed content of url's domain. Empty when nothing relevant
	// is stored.
	RelevantContext(ctx context.Context, query, url string) (string, error)
}
