// Package generator turns pages and test cases into LLM-generated test
// artifacts: structured test cases, executable test code, and corrected
// code after failed runs.
package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/ciciliostudio/probe/internal/chat"
	"github.com/ciciliostudio/probe/internal/llm"
	"github.com/ciciliostudio/probe/internal/logging"
	"github.com/ciciliostudio/probe/internal/prompts"
	"github.com/ciciliostudio/probe/internal/session"
)

const systemPrompt = "You are an expert web test automation engineer. Follow the output format instructions exactly."

// Generator implements test case and test code generation on top of an LLM
// client.
type Generator struct {
	client  llm.Client
	prompts *prompts.Manager
}

func New(client llm.Client, pm *prompts.Manager) *Generator {
	return &Generator{client: client, prompts: pm}
}

// GenerateTestCases derives structured test cases for the current page.
// An unparseable model response degrades to a single fallback case rather
// than failing the turn.
func (g *Generator) GenerateTestCases(ctx context.Context, req chat.CaseRequest) ([]session.TestCase, error) {
	prompt, err := g.prompts.Render(prompts.TestCases, map[string]interface{}{
		"URL":          req.URL,
		"Requirements": req.Requirements,
		"PageContext":  req.PageContext,
		"Conversation": req.Conversation,
	})
	if err != nil {
		return nil, err
	}

	raw, err := g.client.Complete(ctx, llm.Request{System: systemPrompt, User: prompt})
	if err != nil {
		return nil, fmt.Errorf("test case generation failed: %w", err)
	}

	var cases []session.TestCase
	if err := UnmarshalLenient(raw, &cases); err != nil {
		cases = salvageTestCases(raw)
		if len(cases) == 0 {
			logging.Warn("Could not parse test cases from model output, using fallback: %v", err)
			cases = []session.TestCase{fallbackTestCase(req.URL)}
		}
	}
	if len(cases) == 0 {
		cases = []session.TestCase{fallbackTestCase(req.URL)}
	}

	for i := range cases {
		cases[i].TestType = session.NormalizeTestType(cases[i].TestType)
		if cases[i].Title == "" {
			cases[i].Title = fmt.Sprintf("Test case %d", i+1)
		}
	}
	if req.MaxCases > 0 && len(cases) > req.MaxCases {
		cases = cases[:req.MaxCases]
	}
	return cases, nil
}

// GenerateTestCode produces an executable test file for one test case.
func (g *Generator) GenerateTestCode(ctx context.Context, req chat.CodeRequest) (*session.GeneratedCode, error) {
	prompt, err := g.prompts.Render(prompts.TestCode, map[string]interface{}{
		"URL":              req.URL,
		"Title":            req.TestCase.Title,
		"Description":      req.TestCase.Description,
		"ExpectedBehavior": req.TestCase.ExpectedBehavior,
		"Steps":            req.TestCase.Steps,
		"PageContext":      req.PageContext,
	})
	if err != nil {
		return nil, err
	}

	raw, err := g.client.Complete(ctx, llm.Request{System: systemPrompt, User: prompt})
	if err != nil {
		return nil, fmt.Errorf("test code generation failed: %w", err)
	}

	code := StripCodeFences(raw)
	if strings.TrimSpace(code) == "" {
		logging.Warn("Model returned no code for %q, using fallback stub", req.TestCase.Title)
		return &session.GeneratedCode{
			Code:     fallbackTestCode(req.URL, req.TestCase),
			Filename: TestFilename(req.TestCase.Title),
			Status:   session.CodeStatusFallback,
		}, nil
	}

	return &session.GeneratedCode{
		Code:     code,
		Filename: TestFilename(req.TestCase.Title),
		Status:   session.CodeStatusGenerated,
	}, nil
}

// RegenerateTestCode produces corrected code for a failed test run.
func (g *Generator) RegenerateTestCode(ctx context.Context, req chat.FixRequest) (*session.GeneratedCode, error) {
	analysisText := ""
	if req.Analysis != nil {
		analysisText = req.Analysis.Explanation
		if len(req.Analysis.Suggestions) > 0 {
			analysisText += "\nSuggestions: " + strings.Join(req.Analysis.Suggestions, "; ")
		}
	}

	output := ""
	errText := ""
	if req.Result != nil {
		output = req.Result.Output
		errText = req.Result.Error
	}
	if errText != "" {
		output = output + "\n" + errText
	}

	prompt, err := g.prompts.Render(prompts.FixCode, map[string]interface{}{
		"URL":              req.URL,
		"Title":            req.TestCase.Title,
		"ExpectedBehavior": req.TestCase.ExpectedBehavior,
		"Code":             req.Code.Code,
		"Output":           output,
		"Analysis":         analysisText,
	})
	if err != nil {
		return nil, err
	}

	raw, err := g.client.Complete(ctx, llm.Request{System: systemPrompt, User: prompt})
	if err != nil {
		return nil, fmt.Errorf("test code regeneration failed: %w", err)
	}

	code := StripCodeFences(raw)
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("model returned no corrected code for %q", req.TestCase.Title)
	}

	return &session.GeneratedCode{
		Code:     code,
		Filename: req.Code.Filename,
		Status:   session.CodeStatusAutoFixed,
	}, nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-z0-9]+`)

// TestFilename derives a pytest-discoverable filename from a test title
func TestFilename(title string) string {
	name := unsafeFilenameChars.ReplaceAllString(strings.ToLower(title), "_")
	name = strings.Trim(name, "_")
	if name == "" {
		name = "generated"
	}
	return "test_" + name + ".py"
}

// salvageTestCases recovers individual case objects from output whose
// surrounding array did not parse.
func salvageTestCases(raw string) []session.TestCase {
	var cases []session.TestCase
	for _, obj := range SalvageObjects(raw) {
		var tc session.TestCase
		if err := json.Unmarshal([]byte(CleanJSON(obj)), &tc); err != nil {
			continue
		}
		if tc.Title != "" {
			cases = append(cases, tc)
		}
	}
	return cases
}

func fallbackTestCase(url string) session.TestCase {
	return session.TestCase{
		Title:            "Page loads successfully",
		TestType:         session.TestFunctional,
		ElementType:      session.ElementLinks,
		Description:      "Verify the page at " + url + " loads and renders",
		ExpectedBehavior: "The page responds and its title is non-empty",
		Steps:            []string{"Navigate to " + url, "Wait for the page to render", "Assert the title is non-empty"},
	}
}

func fallbackTestCode(url string, tc session.TestCase) string {
	return fmt.Sprintf(`from playwright.sync_api import sync_playwright


def test_%s():
    with sync_playwright() as p:
        browser = p.chromium.launch(headless=True)
        page = browser.new_page()
        page.goto(%q)
        assert page.title() != ""
        browser.close()
`, strings.Trim(unsafeFilenameChars.ReplaceAllString(strings.ToLower(tc.Title), "_"), "_"), url)
}
