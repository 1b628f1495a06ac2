package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ciciliostudio/probe/internal/session"
)

func TestForceHeadless(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"already headless",
			`browser = p.chromium.launch(headless=True)`,
			`browser = p.chromium.launch(headless=True)`,
		},
		{
			"headless false rewritten",
			`browser = p.chromium.launch(headless=False)`,
			`browser = p.chromium.launch(headless=True)`,
		},
		{
			"spaced assignment",
			`browser = p.chromium.launch(headless = False)`,
			`browser = p.chromium.launch(headless=True)`,
		},
		{
			"bare launch call",
			`browser = p.chromium.launch()`,
			`browser = p.chromium.launch(headless=True)`,
		},
		{
			"mixed true and false",
			"a = p.chromium.launch(headless=True)\nb = p.firefox.launch(headless=False)",
			"a = p.chromium.launch(headless=True)\nb = p.firefox.launch(headless=True)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ForceHeadless(tt.in))
		})
	}
}

func TestFailureSummaryPicksInformativeLines(t *testing.T) {
	output := `============================= test session starts ==============================
collected 1 item

test_login.py::test_login FAILED                                         [100%]

=================================== FAILURES ===================================
    def test_login():
>       assert page.title() == "Dashboard"
E       AssertionError: assert 'Login' == 'Dashboard'
FAILED test_login.py::test_login - AssertionError
=========================== short test summary info ============================`

	summary := failureSummary(output)
	assert.Contains(t, summary, "E       AssertionError")
	assert.Contains(t, summary, "FAILED test_login.py::test_login")
	assert.NotContains(t, summary, "test session starts")
}

func TestFailureSummaryFallback(t *testing.T) {
	assert.Equal(t, "test exited non-zero", failureSummary("nothing useful here"))
}

func TestCombineOutput(t *testing.T) {
	assert.Equal(t, "out", combineOutput("out\n", ""))
	assert.Equal(t, "err", combineOutput("", "err\n"))
	assert.Equal(t, "out\nerr", combineOutput("out", "err"))
	assert.Empty(t, combineOutput("", ""))
}

func TestRunTestSuccess(t *testing.T) {
	r := New(Options{Command: "true", WorkDir: t.TempDir(), Timeout: 10 * time.Second})

	res, err := r.RunTest(context.Background(),
		session.TestCase{Title: "passes"},
		&session.GeneratedCode{Code: "def test(): pass", Filename: "test_ok.py"})
	require.NoError(t, err)
	assert.Equal(t, session.StatusSuccess, res.Status)
	assert.Empty(t, res.Error)
}

func TestRunTestFailure(t *testing.T) {
	r := New(Options{Command: "false", WorkDir: t.TempDir(), Timeout: 10 * time.Second})

	res, err := r.RunTest(context.Background(),
		session.TestCase{Title: "fails"},
		&session.GeneratedCode{Code: "def test(): assert False", Filename: "test_bad.py"})
	require.NoError(t, err)
	assert.Equal(t, session.StatusFailure, res.Status)
	assert.NotEmpty(t, res.Error)
}

func TestRunTestMissingCommand(t *testing.T) {
	r := New(Options{Command: "definitely-not-a-real-binary-xyz", WorkDir: t.TempDir()})

	_, err := r.RunTest(context.Background(),
		session.TestCase{Title: "broken"},
		&session.GeneratedCode{Code: "def test(): pass", Filename: "test_x.py"})
	assert.Error(t, err)
}

func TestNewDefaults(t *testing.T) {
	r := New(Options{})
	assert.Equal(t, "python -m pytest -v --tb=short", r.command)
	assert.NotEmpty(t, r.workDir)
	assert.Equal(t, 2*time.Minute, r.timeout)
}
