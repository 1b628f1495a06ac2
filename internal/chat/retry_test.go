package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ciciliostudio/probe/internal/session"
)

func sessionWithCodedCase() *session.Session {
	sess := session.New("s1")
	sess.CurrentURL = "https://example.com"
	sess.TestCases = []session.TestCase{{Title: "Login form submits", ExpectedBehavior: "redirect to dashboard"}}
	sess.SetCode(0, &session.GeneratedCode{
		Code:     "def test_login(): assert False",
		Filename: "test_login.py",
		Status:   session.CodeStatusGenerated,
	})
	return sess
}

func TestRetryPassesOnThirdAttempt(t *testing.T) {
	sess := sessionWithCodedCase()
	runner := &fakeRunner{results: []*session.ExecutionResult{failing("boom"), failing("boom"), passing()}}
	analyzer := &fakeAnalyzer{}
	gen := &fakeGenerator{}
	pub := NewBufferPublisher()

	rc := NewRetryController(runner, analyzer, gen, 3)
	result := rc.Execute(context.Background(), sess, 0, "", newEmitter(pub))

	assert.Equal(t, session.StatusSuccess, result.Status)
	assert.Equal(t, 3, result.Attempts)
	assert.True(t, result.AutoFixed)
	assert.Equal(t, 3, runner.calls)
	assert.Equal(t, 2, analyzer.calls)
	assert.Equal(t, 2, gen.fixCalls)

	// The session holds the fixed code and the final result.
	assert.Equal(t, session.CodeStatusAutoFixed, sess.GeneratedCode[0].Status)
	assert.Same(t, result, sess.ExecutionResults[0])

	events := pub.Events()
	last := events[len(events)-1]
	assert.Equal(t, EventSuccess, last.Type)
	assert.Equal(t, "final_success", last.Step)
}

func TestRetryHaltsImmediatelyOnFirstPass(t *testing.T) {
	sess := sessionWithCodedCase()
	runner := &fakeRunner{results: []*session.ExecutionResult{passing()}}
	analyzer := &fakeAnalyzer{}
	gen := &fakeGenerator{}

	rc := NewRetryController(runner, analyzer, gen, 3)
	result := rc.Execute(context.Background(), sess, 0, "", newEmitter(NewBufferPublisher()))

	assert.Equal(t, session.StatusSuccess, result.Status)
	assert.Equal(t, 1, result.Attempts)
	assert.False(t, result.AutoFixed)
	assert.Zero(t, analyzer.calls)
	assert.Zero(t, gen.fixCalls)
}

func TestRetryExhaustionReportsFinalFailure(t *testing.T) {
	sess := sessionWithCodedCase()
	runner := &fakeRunner{results: []*session.ExecutionResult{failing("always broken")}}
	analyzer := &fakeAnalyzer{}
	gen := &fakeGenerator{}
	pub := NewBufferPublisher()

	rc := NewRetryController(runner, analyzer, gen, 3)
	result := rc.Execute(context.Background(), sess, 0, "", newEmitter(pub))

	assert.Equal(t, session.StatusFailure, result.Status)
	assert.Equal(t, 3, result.Attempts)
	assert.False(t, result.AutoFixed)
	assert.Equal(t, 3, runner.calls)
	// No regeneration after the final attempt.
	assert.Equal(t, 2, gen.fixCalls)

	events := pub.Events()
	last := events[len(events)-1]
	assert.Equal(t, EventFinalFailure, last.Type)
}

func TestRetryStopsEarlyWhenRegenerationFails(t *testing.T) {
	sess := sessionWithCodedCase()
	runner := &fakeRunner{results: []*session.ExecutionResult{failing("boom")}}
	gen := &fakeGenerator{fixErr: errors.New("model unavailable")}
	pub := NewBufferPublisher()

	rc := NewRetryController(runner, &fakeAnalyzer{}, gen, 3)
	result := rc.Execute(context.Background(), sess, 0, "", newEmitter(pub))

	// One run, one regeneration attempt, then exhaustion.
	assert.Equal(t, 1, runner.calls)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, session.StatusFailure, result.Status)
	assert.Equal(t, EventFinalFailure, pub.Events()[len(pub.Events())-1].Type)
}

func TestRetryAnalyzerErrorUsesFallbackAnalysis(t *testing.T) {
	sess := sessionWithCodedCase()
	runner := &fakeRunner{results: []*session.ExecutionResult{failing("boom"), passing()}}
	gen := &fakeGenerator{}

	rc := NewRetryController(runner, &fakeAnalyzer{err: errors.New("timeout")}, gen, 3)
	result := rc.Execute(context.Background(), sess, 0, "", newEmitter(NewBufferPublisher()))

	// The loop continues despite the analysis failure.
	require.Equal(t, session.StatusSuccess, result.Status)
	assert.Equal(t, 2, result.Attempts)
	assert.True(t, result.AutoFixed)
	assert.NotNil(t, gen.lastFixReq.Analysis)
	assert.Equal(t, "medium", gen.lastFixReq.Analysis.FixPriority)
}

func TestRetryRunnerErrorBecomesErrorResult(t *testing.T) {
	sess := sessionWithCodedCase()
	runner := &fakeRunner{errs: []error{errors.New("pytest not installed")}}

	rc := NewRetryController(runner, &fakeAnalyzer{}, &fakeGenerator{}, 1)
	result := rc.Execute(context.Background(), sess, 0, "", newEmitter(NewBufferPublisher()))

	assert.Equal(t, session.StatusError, result.Status)
	assert.Contains(t, result.Error, "pytest not installed")
	assert.Equal(t, 1, result.Attempts)
}

func TestRetryEventSequenceIsMonotonic(t *testing.T) {
	sess := sessionWithCodedCase()
	runner := &fakeRunner{results: []*session.ExecutionResult{failing("boom"), passing()}}
	pub := NewBufferPublisher()

	rc := NewRetryController(runner, &fakeAnalyzer{}, &fakeGenerator{}, 3)
	rc.Execute(context.Background(), sess, 0, "", newEmitter(pub))

	events := pub.Events()
	require.NotEmpty(t, events)
	for i, ev := range events {
		assert.Equal(t, i+1, ev.Seq)
	}
}
