// Package runner executes generated test files in a subprocess and converts
// the outcome into structured execution results.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/ciciliostudio/probe/internal/logging"
	"github.com/ciciliostudio/probe/internal/session"
)

// Runner writes generated test code to a work directory and runs it with
// the configured command, one test file per run.
type Runner struct {
	command string // e.g. "python -m pytest -v --tb=short"
	workDir string
	timeout time.Duration
}

// Options configures a Runner. Zero values fall back to defaults.
type Options struct {
	Command string
	WorkDir string
	Timeout time.Duration
}

func New(opts Options) *Runner {
	if opts.Command == "" {
		opts.Command = "python -m pytest -v --tb=short"
	}
	if opts.WorkDir == "" {
		opts.WorkDir = filepath.Join(os.TempDir(), "probe-tests")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	return &Runner{
		command: opts.Command,
		workDir: opts.WorkDir,
		timeout: opts.Timeout,
	}
}

// RunTest executes one generated test. A failing test is reported as a
// failure-status result; the error return is reserved for runs that could
// not be started at all.
func (r *Runner) RunTest(ctx context.Context, tc session.TestCase, code *session.GeneratedCode) (*session.ExecutionResult, error) {
	if err := os.MkdirAll(r.workDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}

	// Generated code is rewritten to force headless mode before it touches
	// a browser; a visible window on a server kills the run.
	testPath := filepath.Join(r.workDir, code.Filename)
	if err := os.WriteFile(testPath, []byte(ForceHeadless(code.Code)), 0644); err != nil {
		return nil, fmt.Errorf("failed to write test file: %w", err)
	}
	defer os.Remove(testPath)

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	parts := strings.Fields(r.command)
	args := append(parts[1:], testPath)
	cmd := exec.CommandContext(runCtx, parts[0], args...)
	cmd.Dir = r.workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logging.Info("Running test %q: %s %s", tc.Title, r.command, code.Filename)
	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start).Seconds()

	result := &session.ExecutionResult{
		Status:   session.StatusSuccess,
		Duration: duration,
		Output:   combineOutput(stdout.String(), stderr.String()),
	}

	switch {
	case err == nil:
		// exit 0, test passed
	case runCtx.Err() == context.DeadlineExceeded:
		result.Status = session.StatusError
		result.Error = fmt.Sprintf("test timed out after %s", r.timeout)
	case isExitError(err):
		result.Status = session.StatusFailure
		result.Error = failureSummary(result.Output)
	default:
		// The command itself could not run (missing interpreter etc.)
		return nil, fmt.Errorf("failed to run test command: %w", err)
	}

	logging.Info("Test %q finished: %s in %.2fs", tc.Title, result.Status, duration)
	return result, nil
}

func isExitError(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}

func combineOutput(stdout, stderr string) string {
	out := strings.TrimSpace(stdout)
	if errOut := strings.TrimSpace(stderr); errOut != "" {
		if out != "" {
			out += "\n"
		}
		out += errOut
	}
	return out
}

// failureSummary pulls the most informative lines out of pytest output so
// the analysis prompt is not dominated by boilerplate.
func failureSummary(output string) string {
	lines := strings.Split(output, "\n")
	var picked []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "E ") ||
			strings.HasPrefix(trimmed, "FAILED") ||
			strings.HasPrefix(trimmed, "ERROR") ||
			strings.Contains(trimmed, "Error:") {
			picked = append(picked, trimmed)
		}
	}
	if len(picked) == 0 {
		return "test exited non-zero"
	}
	if len(picked) > 10 {
		picked = picked[:10]
	}
	return strings.Join(picked, "\n")
}
