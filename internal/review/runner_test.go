package review

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"crev/internal/client"
	"crev/internal/config"
	"crev/internal/index"
	"crev/internal/session"
)

// fakeClient returns scripted responses in order, falling back to a plain
// text response when the script runs out.
type fakeClient struct {
	script []*client.Response
	pos    int

	sentMessages  []string
	funcResults   [][]*genai.FunctionResponse
	histories     [][]*genai.Content
	funcHistories [][]*genai.Content
}

func (f *fakeClient) next() *client.Response {
	if f.pos < len(f.script) {
		r := f.script[f.pos]
		f.pos++
		return r
	}
	return &client.Response{Text: "fallback review"}
}

func (f *fakeClient) SendMessage(_ context.Context, history []*genai.Content, message string) (*client.Response, error) {
	f.sentMessages = append(f.sentMessages, message)
	f.histories = append(f.histories, history)
	return f.next(), nil
}

func (f *fakeClient) SendFunctionResponse(_ context.Context, history []*genai.Content, results []*genai.FunctionResponse) (*client.Response, error) {
	f.funcResults = append(f.funcResults, results)
	f.histories = append(f.histories, history)
	f.funcHistories = append(f.funcHistories, append([]*genai.Content(nil), history...))
	return f.next(), nil
}

func (f *fakeClient) SetTools([]*genai.Tool)      {}
func (f *fakeClient) SetSystemInstruction(string) {}
func (f *fakeClient) GetModel() string            { return "fake-model" }
func (f *fakeClient) Close() error                { return nil }

func callResp(name string, args map[string]any) *client.Response {
	return &client.Response{
		FunctionCalls: []*genai.FunctionCall{{ID: "c1", Name: name, Args: args}},
		InputTokens:   10,
		OutputTokens:  5,
	}
}

func textResp(text string) *client.Response {
	return &client.Response{Text: text, InputTokens: 10, OutputTokens: 20}
}

func testProject(t *testing.T) (string, *index.Index) {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"a.py": "class Greeter:\n    def greet(self):\n        return 'hi'\n",
		"b.py": "from a import Greeter\n\ndef run():\n    return Greeter().greet()\n",
	}
	for rel, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, rel), []byte(content), 0o644))
	}
	idx, err := index.NewBuilder(root, nil).Build(context.Background())
	require.NoError(t, err)
	return root, idx
}

func newRunner(c client.Client, store *session.Store, cfg config.ReviewConfig) *Runner {
	return NewRunner(c, store, cfg, config.DefaultMaxSessionHistory)
}

func defaultBounds() config.ReviewConfig {
	return config.ReviewConfig{
		MaxToolCalls: 10,
		MaxDuration:  time.Minute,
		MaxFilesRead: 10,
		MaxFileBytes: 100_000,
	}
}

func TestRunNormalTermination(t *testing.T) {
	t.Parallel()
	root, idx := testProject(t)
	store := session.NewStore(t.TempDir())
	fake := &fakeClient{script: []*client.Response{
		callResp("read_file", map[string]any{"filepath": "a.py"}),
		callResp("search_symbol", map[string]any{"symbol_name": "Greeter"}),
		textResp("Review: the change looks correct."),
	}}

	r := newRunner(fake, store, defaultBounds())
	res, err := r.Run(context.Background(), &Request{
		ProjectRoot: root,
		SessionName: "default",
		Diff:        "--- a/a.py\n+++ b/a.py\n",
	}, idx)
	require.NoError(t, err)

	assert.Equal(t, TerminatedNormal, res.Termination)
	assert.Equal(t, "Review: the change looks correct.", res.Review)
	assert.Equal(t, 1, res.Iteration)
	assert.Equal(t, 2, res.Navigation.TotalCalls)
	assert.Equal(t, 1, res.Navigation.FilesExplored)
	assert.Equal(t, "fake-model", res.Model)
	assert.Equal(t, int64(30), res.InputTokens)

	// First tool result answered the read_file with real file content.
	require.Len(t, fake.funcResults, 2)
	first := fake.funcResults[0][0]
	assert.Equal(t, "read_file", first.Name)
	assert.Equal(t, true, first.Response["success"])
	assert.Contains(t, first.Response["content"], "class Greeter")
}

// countFunctionResponseParts counts function-response parts across a
// history slice.
func countFunctionResponseParts(history []*genai.Content) int {
	n := 0
	for _, content := range history {
		for _, part := range content.Parts {
			if part.FunctionResponse != nil {
				n++
			}
		}
	}
	return n
}

func TestRunSendsEachToolResultOnce(t *testing.T) {
	t.Parallel()
	root, idx := testProject(t)
	store := session.NewStore(t.TempDir())
	fake := &fakeClient{script: []*client.Response{
		callResp("read_file", map[string]any{"filepath": "a.py"}),
		callResp("read_file", map[string]any{"filepath": "b.py"}),
		textResp("done"),
	}}

	r := newRunner(fake, store, defaultBounds())
	_, err := r.Run(context.Background(), &Request{ProjectRoot: root, SessionName: "default"}, idx)
	require.NoError(t, err)

	// The backend appends the current results to the outgoing request
	// itself, so the history handed to it must hold only the results of
	// earlier turns, and must end with the model turn that asked.
	require.Len(t, fake.funcHistories, 2)
	assert.Equal(t, 0, countFunctionResponseParts(fake.funcHistories[0]))
	assert.Equal(t, 1, countFunctionResponseParts(fake.funcHistories[1]))
	for _, history := range fake.funcHistories {
		last := history[len(history)-1]
		require.NotEmpty(t, last.Parts)
		assert.NotNil(t, last.Parts[len(last.Parts)-1].FunctionCall)
	}

	// The persisted transcript still carries every result exactly once.
	sess, err := store.Load(root, "default")
	require.NoError(t, err)
	responses := 0
	for _, content := range sess.History {
		for _, part := range content.Parts {
			if part.Type == "function_response" {
				responses++
			}
		}
	}
	assert.Equal(t, 2, responses)
}

func TestRunToolCallBoundForcesSummary(t *testing.T) {
	t.Parallel()
	root, idx := testProject(t)
	store := session.NewStore(t.TempDir())

	// The model never stops asking on its own.
	script := []*client.Response{
		callResp("read_file", map[string]any{"filepath": "a.py"}),
		callResp("search_symbol", map[string]any{"symbol_name": "Greeter"}),
		callResp("find_usages", map[string]any{"symbol_name": "Greeter"}),
		callResp("read_file", map[string]any{"filepath": "b.py"}),
		textResp("Bounded review."),
	}
	fake := &fakeClient{script: script}

	cfg := defaultBounds()
	cfg.MaxToolCalls = 3
	r := newRunner(fake, store, cfg)

	res, err := r.Run(context.Background(), &Request{ProjectRoot: root, SessionName: "default"}, idx)
	require.NoError(t, err)

	assert.Equal(t, TerminatedBound, res.Termination)
	assert.Equal(t, "max_tool_calls", res.BoundHit)
	assert.Equal(t, "Bounded review.", res.Review)
	assert.Equal(t, 3, res.Navigation.TotalCalls)

	// The 4th call was refused, not executed, and the model was told to
	// summarize.
	last := fake.sentMessages[len(fake.sentMessages)-1]
	assert.Contains(t, last, "budget is exhausted")
}

func TestRunFileReadBoundForcesSummary(t *testing.T) {
	t.Parallel()
	root, idx := testProject(t)
	store := session.NewStore(t.TempDir())
	fake := &fakeClient{script: []*client.Response{
		callResp("read_file", map[string]any{"filepath": "a.py"}),
		callResp("read_file", map[string]any{"filepath": "a.py"}),
		callResp("read_file", map[string]any{"filepath": "b.py"}),
		textResp("Covered what I could."),
	}}

	cfg := defaultBounds()
	cfg.MaxFilesRead = 1
	r := newRunner(fake, store, cfg)

	res, err := r.Run(context.Background(), &Request{ProjectRoot: root, SessionName: "default"}, idx)
	require.NoError(t, err)

	// Re-reading a.py does not consume budget; asking for b.py crosses
	// the distinct-files bound and forces the summary.
	assert.Equal(t, TerminatedBound, res.Termination)
	assert.Equal(t, "max_files_read", res.BoundHit)
	assert.Equal(t, "Covered what I could.", res.Review)
	assert.Equal(t, 1, res.Navigation.FilesExplored)

	require.Len(t, fake.funcResults, 2)
	assert.Equal(t, true, fake.funcResults[0][0].Response["success"])
	assert.Equal(t, true, fake.funcResults[1][0].Response["success"])

	last := fake.sentMessages[len(fake.sentMessages)-1]
	assert.Contains(t, last, "budget is exhausted")
}

func TestRunContinuationSeed(t *testing.T) {
	t.Parallel()
	root, idx := testProject(t)
	store := session.NewStore(t.TempDir())

	first := &fakeClient{script: []*client.Response{textResp("First review: rename run().")}}
	r := newRunner(first, store, defaultBounds())
	res1, err := r.Run(context.Background(), &Request{ProjectRoot: root, SessionName: "default"}, idx)
	require.NoError(t, err)
	require.Equal(t, 1, res1.Iteration)

	second := &fakeClient{script: []*client.Response{textResp("Second review.")}}
	r2 := newRunner(second, store, defaultBounds())
	res2, err := r2.Run(context.Background(), &Request{ProjectRoot: root, SessionName: "default"}, idx)
	require.NoError(t, err)

	assert.Equal(t, 2, res2.Iteration)
	require.NotEmpty(t, second.sentMessages)
	seed := second.sentMessages[0]
	assert.Contains(t, seed, "iteration 2")
	assert.Contains(t, seed, "First review: rename run().")
	// Prior conversation is carried in the resubmitted history.
	require.NotEmpty(t, second.histories[0])
}

func TestRunSessionBusy(t *testing.T) {
	t.Parallel()
	root, idx := testProject(t)
	store := session.NewStore(t.TempDir())

	release, err := store.Acquire(root, "default")
	require.NoError(t, err)
	defer release()

	fake := &fakeClient{}
	r := newRunner(fake, store, defaultBounds())
	_, err = r.Run(context.Background(), &Request{ProjectRoot: root, SessionName: "default"}, idx)
	assert.ErrorIs(t, err, session.ErrSessionBusy)
	assert.Empty(t, fake.sentMessages)
}

func TestRunPersistsSession(t *testing.T) {
	t.Parallel()
	root, idx := testProject(t)
	store := session.NewStore(t.TempDir())
	fake := &fakeClient{script: []*client.Response{
		callResp("read_file", map[string]any{"filepath": "a.py"}),
		textResp("Persisted review."),
	}}

	r := newRunner(fake, store, defaultBounds())
	_, err := r.Run(context.Background(), &Request{ProjectRoot: root, SessionName: "audit"}, idx)
	require.NoError(t, err)

	sess, err := store.Load(root, "audit")
	require.NoError(t, err)
	assert.Equal(t, 1, sess.Iteration)
	assert.Equal(t, "Persisted review.", sess.LastReview)
	assert.Equal(t, "fake-model", sess.Model)
	assert.NotEmpty(t, sess.History)

	// The seed, the model's call, the tool result and the final text all
	// survive the round trip.
	var kinds []string
	for _, content := range sess.History {
		for _, part := range content.Parts {
			kinds = append(kinds, part.Type)
		}
	}
	joined := strings.Join(kinds, ",")
	assert.Contains(t, joined, "function_call")
	assert.Contains(t, joined, "function_response")
	assert.Contains(t, joined, "text")
}

type failingClient struct {
	fakeClient
	err error
}

func (f *failingClient) SendMessage(context.Context, []*genai.Content, string) (*client.Response, error) {
	return nil, f.err
}

func TestRunEngineFailureStillPersists(t *testing.T) {
	t.Parallel()
	root, idx := testProject(t)
	store := session.NewStore(t.TempDir())
	fake := &failingClient{err: client.ErrEngineUnreachable}

	r := newRunner(fake, store, defaultBounds())
	res, err := r.Run(context.Background(), &Request{ProjectRoot: root, SessionName: "default"}, idx)
	require.ErrorIs(t, err, client.ErrEngineUnreachable)
	require.NotNil(t, res)
	assert.Equal(t, TerminatedError, res.Termination)

	// The session survives the failure for a later resume.
	sess, serr := store.Load(root, "default")
	require.NoError(t, serr)
	assert.Equal(t, 0, sess.Iteration)
}

func TestSeedMessageContents(t *testing.T) {
	t.Parallel()
	_, idx := testProject(t)
	sess := session.New("/p", "default")

	seed := seedMessage(&Request{
		Diff:         "+ new line",
		Instructions: "focus on error handling",
	}, idx, sess)

	assert.Contains(t, seed, "# Codebase")
	assert.Contains(t, seed, "# File tree")
	assert.Contains(t, seed, "a.py")
	assert.Contains(t, seed, "b.py")
	assert.Contains(t, seed, "# Change under review")
	assert.Contains(t, seed, "+ new line")
	assert.Contains(t, seed, "focus on error handling")
	assert.NotContains(t, seed, "# Continuation")
}
