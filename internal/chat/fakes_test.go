package chat

import (
	"context"
	"fmt"

	"github.com/ciciliostudio/probe/internal/session"
)

// Shared in-memory fakes for the capability interfaces.

type fakeExtractor struct {
	page  *PageData
	err   error
	calls int
}

func (f *fakeExtractor) ExtractPage(_ context.Context, url string) (*PageData, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.page != nil {
		return f.page, nil
	}
	return &PageData{
		URL:   url,
		Title: "Example Domain",
		HTML:  "<html><body><form id='login'></form></body></html>",
		Text:  "Example Domain. Log in to continue.",
	}, nil
}

type fakeGenerator struct {
	cases      []session.TestCase
	casesErr   error
	codeErr    error
	fixErr     error
	fixedCode  string
	codeCalls  int
	fixCalls   int
	caseCalls  int
	lastFixReq FixRequest
}

func (f *fakeGenerator) GenerateTestCases(_ context.Context, req CaseRequest) ([]session.TestCase, error) {
	f.caseCalls++
	if f.casesErr != nil {
		return nil, f.casesErr
	}
	if f.cases != nil {
		return f.cases, nil
	}
	return []session.TestCase{
		{Title: "Page loads", TestType: session.TestFunctional, ElementType: session.ElementLinks},
		{Title: "Login form submits", TestType: session.TestValidation, ElementType: session.ElementForms},
	}, nil
}

func (f *fakeGenerator) GenerateTestCode(_ context.Context, req CodeRequest) (*session.GeneratedCode, error) {
	f.codeCalls++
	if f.codeErr != nil {
		return nil, f.codeErr
	}
	return &session.GeneratedCode{
		Code:     "def test_" + fmt.Sprint(f.codeCalls) + "(): pass",
		Filename: "test_generated.py",
		Status:   session.CodeStatusGenerated,
	}, nil
}

func (f *fakeGenerator) RegenerateTestCode(_ context.Context, req FixRequest) (*session.GeneratedCode, error) {
	f.fixCalls++
	f.lastFixReq = req
	if f.fixErr != nil {
		return nil, f.fixErr
	}
	code := f.fixedCode
	if code == "" {
		code = fmt.Sprintf("def test_fixed_%d(): pass", f.fixCalls)
	}
	return &session.GeneratedCode{
		Code:     code,
		Filename: req.Code.Filename,
		Status:   session.CodeStatusGenerated,
	}, nil
}

// fakeRunner returns scripted results in order, repeating the last one.
type fakeRunner struct {
	results []*session.ExecutionResult
	errs    []error
	calls   int
}

func (f *fakeRunner) RunTest(_ context.Context, tc session.TestCase, code *session.GeneratedCode) (*session.ExecutionResult, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if len(f.results) == 0 {
		return &session.ExecutionResult{Status: session.StatusSuccess, Duration: 0.1}, nil
	}
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	res := *f.results[i]
	return &res, nil
}

func failing(output string) *session.ExecutionResult {
	return &session.ExecutionResult{Status: session.StatusFailure, Duration: 0.2, Output: output, Error: "assertion failed"}
}

func passing() *session.ExecutionResult {
	return &session.ExecutionResult{Status: session.StatusSuccess, Duration: 0.2, Output: "1 passed"}
}

type fakeAnalyzer struct {
	err   error
	calls int
}

func (f *fakeAnalyzer) AnalyzeFailure(_ context.Context, tc session.TestCase, code *session.GeneratedCode, result *session.ExecutionResult) (*FailureAnalysis, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &FailureAnalysis{
		Explanation:  "selector did not match",
		LikelyCauses: []string{"missing wait"},
		Suggestions:  []string{"wait for networkidle"},
		FixPriority:  "high",
	}, nil
}

type fakeEmbedder struct {
	indexed map[string]bool
	context string
	err     error
}

func (f *fakeEmbedder) IndexPage(_ context.Context, page *PageData) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.indexed == nil {
		f.indexed = make(map[string]bool)
	}
	if f.indexed[page.URL] {
		return false, nil
	}
	f.indexed[page.URL] = true
	return true, nil
}

func (f *fakeEmbedder) RelevantContext(_ context.Context, query, url string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.context, nil
}

func newTestSession(id string) *session.Session {
	return session.New(id)
}
