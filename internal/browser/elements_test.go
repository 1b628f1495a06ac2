package browser

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const loginPage = `<html><body>
<form id="login-form" action="/login" method="post">
  <input type="email" name="email" placeholder="Email address">
  <input type="password" name="password">
  <button type="submit" data-testid="login-submit">Sign in</button>
</form>
<a href="/forgot">Forgot password?</a>
<a href="/signup">Create account</a>
<img src="/logo.png" alt="Company logo">
<table><tr><td>Plan</td></tr></table>
</body></html>`

func TestExtractElements(t *testing.T) {
	pe, err := ExtractElements(loginPage)
	require.NoError(t, err)

	counts := pe.Counts()
	assert.Equal(t, 1, counts["forms"])
	assert.Equal(t, 1, counts["buttons"])
	assert.Equal(t, 2, counts["links"])
	assert.Equal(t, 2, counts["inputs"])
	assert.Equal(t, 1, counts["images"])
	assert.Equal(t, 1, counts["tables"])

	assert.Equal(t, "#login-form", pe.Forms[0].Selector)
	assert.Equal(t, "/forgot", pe.Links[0].Href)
	assert.Equal(t, "Forgot password?", pe.Links[0].Text)
	assert.Equal(t, "Company logo", pe.Images[0].Text)
}

func TestBuildSelectorPreference(t *testing.T) {
	pe, err := ExtractElements(loginPage)
	require.NoError(t, err)

	// Test ids beat element ids and attribute selectors.
	assert.Equal(t, "[data-testid='login-submit']", pe.Buttons[0].Selector)
	assert.Equal(t, "input[name='email']", pe.Inputs[0].Selector)
}

func TestSummarizeFallsBackToPlaceholder(t *testing.T) {
	pe, err := ExtractElements(loginPage)
	require.NoError(t, err)
	assert.Equal(t, "Email address", pe.Inputs[0].Text)
}

func TestExtractElementsCapsPerKind(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&b, `<a href="/page-%d">Page %d</a>`, i, i)
	}
	b.WriteString("</body></html>")

	pe, err := ExtractElements(b.String())
	require.NoError(t, err)
	assert.Len(t, pe.Links, elementKindLimit)
}

func TestElementsSummary(t *testing.T) {
	pe, err := ExtractElements(loginPage)
	require.NoError(t, err)

	summary := pe.Summary()
	assert.Contains(t, summary, "Forms (1):")
	assert.Contains(t, summary, "Links (2):")
	assert.Contains(t, summary, "- [data-testid='login-submit'] Sign in")
	assert.Contains(t, summary, "- #login-form")
	assert.Contains(t, summary, "-> /forgot")
	assert.False(t, strings.HasSuffix(summary, "\n"))
}

func TestExtractElementsEmptyPage(t *testing.T) {
	pe, err := ExtractElements("<html><body><p>Nothing interactive</p></body></html>")
	require.NoError(t, err)
	assert.Empty(t, pe.Summary())
	for _, n := range pe.Counts() {
		assert.Zero(t, n)
	}
}
