package runner

import (
	"regexp"
	"strings"
)

// Generated code sometimes launches a visible browser despite the prompt
// instructions. ForceHeadless rewrites the launch calls so every run stays
// headless.

var (
	headlessFalse = regexp.MustCompile(`headless\s*=\s*False`)
	launchNoArgs  = regexp.MustCompile(`\.launch\(\s*\)`)
)

// ForceHeadless rewrites Playwright launch calls in Python test code to run
// headless. Code that already passes headless=True is returned unchanged.
func ForceHeadless(code string) string {
	if strings.Contains(code, "headless=True") && !headlessFalse.MatchString(code) {
		return code
	}
	code = headlessFalse.ReplaceAllString(code, "headless=True")
	code = launchNoArgs.ReplaceAllString(code, ".launch(headless=True)")
	return code
}
