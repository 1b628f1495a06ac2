package llm

import (
	"context"
	"strings"
	"time"
)

// mockClient returns deterministic canned completions. It keys off markers
// in the prompt text so offline development and tests exercise the full
// planning, generation, and analysis path without network calls.
type mockClient struct {
	responses []string // optional scripted responses, consumed in order
	next      int
	lastUsage *UsageStats
}

func newMockClient(options map[string]interface{}) (Client, error) {
	c := &mockClient{}
	if scripted, ok := options["responses"].([]string); ok {
		c.responses = scripted
	}
	return c, nil
}

// Complete implements the Client interface with canned responses
func (c *mockClient) Complete(_ context.Context, req Request) (string, error) {
	c.lastUsage = &UsageStats{
		Provider:     "mock",
		Model:        "mock",
		InputTokens:  int64(len(req.System)+len(req.User)) / 4,
		OutputTokens: 128,
		RequestTime:  time.Now(),
	}

	if c.next < len(c.responses) {
		resp := c.responses[c.next]
		c.next++
		return resp, nil
	}

	prompt := req.System + "\n" + req.User
	switch {
	case strings.Contains(prompt, "generate test cases"):
		return mockTestCasesJSON, nil
	case strings.Contains(prompt, "analyze the test failure"):
		return mockAnalysisJSON, nil
	case strings.Contains(prompt, "fix the test code"):
		return mockFixedCode, nil
	case strings.Contains(prompt, "generate test code"):
		return mockTestCode, nil
	default:
		return mockTestCode, nil
	}
}

func (c *mockClient) LastUsage() *UsageStats {
	return c.lastUsage
}

const mockTestCasesJSON = `[
  {
    "title": "Page loads successfully",
    "test_type": "functional",
    "element_type": "links",
    "description": "Verify the page loads and renders its main content",
    "expected_behavior": "The page responds with status 200 and the title is visible",
    "test_steps": ["Navigate to the page", "Wait for the body to render", "Assert the title is present"]
  },
  {
    "title": "Primary form accepts input",
    "test_type": "form",
    "element_type": "forms",
    "description": "Verify the main form accepts and submits input",
    "expected_behavior": "Submitting valid input does not produce a validation error",
    "test_steps": ["Navigate to the page", "Fill the first form field", "Submit the form", "Assert no error message appears"]
  }
]`

const mockTestCode = `from playwright.sync_api import sync_playwright


def test_page_loads():
    with sync_playwright() as p:
        browser = p.chromium.launch(headless=True)
        page = browser.new_page()
        page.goto("https://example.com")
        assert page.title() != ""
        browser.close()
`

const mockFixedCode = `from playwright.sync_api import sync_playwright


def test_page_loads():
    with sync_playwright() as p:
        browser = p.chromium.launch(headless=True)
        page = browser.new_page()
        page.goto("https://example.com", wait_until="networkidle")
        assert page.title() != ""
        browser.close()
`

const mockAnalysisJSON = `{
  "explanation": "The test failed because the page content had not finished loading before the assertion ran.",
  "likely_causes": ["Missing wait for page load", "Network latency"],
  "suggestions": ["Wait for the networkidle state before asserting", "Increase the navigation timeout"],
  "fix_priority": "high"
}`
