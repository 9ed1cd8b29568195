// Package review runs the turn-by-turn loop between the reasoning model and
// the navigation tools, under explicit exploration bounds.
package review

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"crev/internal/client"
	"crev/internal/config"
	"crev/internal/index"
	"crev/internal/logging"
	"crev/internal/security"
	"crev/internal/session"
	"crev/internal/tools"
)

// State tracks where a running review is in its lifecycle.
type State string

const (
	StateInit      State = "init"
	StateSeeded    State = "seeded"
	StateExploring State = "exploring"
	StateDone      State = "done"
)

// Termination says why a review stopped.
type Termination string

const (
	// TerminatedNormal: the model finished on its own.
	TerminatedNormal Termination = "normal"
	// TerminatedBound: an exploration bound forced the review to conclude.
	TerminatedBound Termination = "bound"
	// TerminatedError: the review failed before producing a result.
	TerminatedError Termination = "error"
)

// Request describes one review to run.
type Request struct {
	ProjectRoot string
	SessionName string

	// Diff is the change under review, unified diff or pasted snippet.
	Diff string

	// Instructions optionally narrows the review focus.
	Instructions string
}

// Result is a finished review.
type Result struct {
	Review      string        `json:"review"`
	Termination Termination   `json:"termination"`
	BoundHit    string        `json:"bound_hit,omitempty"`
	Iteration   int           `json:"iteration"`
	SessionID   string        `json:"session_id"`
	Model       string        `json:"model"`
	Navigation  tools.Summary `json:"navigation"`
	Duration    time.Duration `json:"duration"`

	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Runner executes reviews against one project.
type Runner struct {
	client client.Client
	store  *session.Store
	cfg    config.ReviewConfig

	maxHistory int
}

// NewRunner creates a review runner.
func NewRunner(c client.Client, store *session.Store, cfg config.ReviewConfig, maxHistory int) *Runner {
	return &Runner{
		client:     c,
		store:      store,
		cfg:        cfg,
		maxHistory: maxHistory,
	}
}

// Run drives one review to completion. The index is a snapshot: changes to
// the tree made while the model explores are not observed mid-review.
// On engine failure the returned error is accompanied by a partial Result
// with Termination set to TerminatedError.
func (r *Runner) Run(ctx context.Context, req *Request, idx *index.Index) (*Result, error) {
	release, err := r.store.Acquire(req.ProjectRoot, req.SessionName)
	if err != nil {
		return nil, err
	}
	defer release()

	sess, err := r.store.LoadOrCreate(req.ProjectRoot, req.SessionName)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	logging.Debug("review state", "state", StateInit, "session", req.SessionName)

	env := tools.NewEnv(idx, security.NewPathValidator(req.ProjectRoot), r.cfg.MaxFileBytes)
	registry := env.NewRegistry()
	r.client.SetSystemInstruction(systemPrompt)
	r.client.SetTools([]*genai.Tool{{FunctionDeclarations: registry.Declarations()}})

	history := sess.GenaiHistory()
	seed := seedMessage(req, idx, sess)
	logging.Debug("review state", "state", StateSeeded, "session", req.SessionName)

	result := &Result{
		SessionID: sess.ID,
		Model:     r.client.GetModel(),
	}

	// fail persists what was accumulated and still hands the caller a
	// structured outcome next to the error.
	fail := func(err error) (*Result, error) {
		result.Termination = TerminatedError
		result.Navigation = env.Trace.Summary()
		result.Duration = time.Since(start)
		return result, err
	}

	// Sessions are saved on every exit path, success or failure, so a
	// crashed review still leaves its navigation behind.
	persist := func() {
		sess.History = nil
		sess.AppendHistory(history...)
		sess.TrimHistory(r.maxHistory)
		sess.Model = r.client.GetModel()
		sess.Touch()
		if err := r.store.Save(sess); err != nil {
			logging.Error("failed to persist session", "session", sess.Name, "error", err)
		}
	}

	logging.Info("review started",
		"session", req.SessionName,
		"iteration", sess.Iteration+1,
		"model", result.Model)

	resp, err := r.client.SendMessage(ctx, history, seed)
	if err != nil {
		persist()
		return fail(fmt.Errorf("seeding review: %w", err))
	}
	history = append(history, genai.NewContentFromText(seed, genai.RoleUser))

	// maxTurns is a hard cap on model turns; the tool-call bound normally
	// triggers first since a turn can carry several calls.
	maxTurns := r.cfg.MaxToolCalls + 4
	logging.Debug("review state", "state", StateExploring, "session", req.SessionName)

	for turn := 0; turn < maxTurns; turn++ {
		history = append(history, modelContent(resp))
		result.InputTokens += int64(resp.InputTokens)
		result.OutputTokens += int64(resp.OutputTokens)

		if !resp.HasFunctionCalls() {
			result.Review = resp.Text
			result.Termination = TerminatedNormal
			break
		}

		if bound := r.boundCrossed(env, start, resp.FunctionCalls); bound != "" {
			logging.Info("exploration bound crossed", "bound", bound, "session", req.SessionName)
			// Pending calls still get answers so the call/response pairing in
			// the history stays valid; each answer is a refusal.
			refused := make([]*genai.FunctionResponse, 0, len(resp.FunctionCalls))
			for _, call := range resp.FunctionCalls {
				refused = append(refused, &genai.FunctionResponse{
					ID:   call.ID,
					Name: call.Name,
					Response: tools.NewErrorResult(
						fmt.Sprintf("exploration bound reached (%s); no further navigation is available", bound)).ToMap(),
				})
			}
			history = append(history, functionResponseContent(refused))

			final, ferr := r.client.SendMessage(ctx, history, summarizePrompt)
			if ferr != nil {
				persist()
				return fail(fmt.Errorf("forcing summary after %s bound: %w", bound, ferr))
			}
			history = append(history,
				genai.NewContentFromText(summarizePrompt, genai.RoleUser),
				modelContent(final))
			result.InputTokens += int64(final.InputTokens)
			result.OutputTokens += int64(final.OutputTokens)
			result.Review = final.Text
			result.Termination = TerminatedBound
			result.BoundHit = bound
			break
		}

		responses := r.executeCalls(ctx, registry, env, resp.FunctionCalls)

		// The client appends the function responses to the outgoing
		// request itself; appending them to history before the call would
		// put each response on the wire twice. The local copy is added
		// only after the call, mirroring how the seed message is handled.
		resp, err = r.client.SendFunctionResponse(ctx, history, responses)
		history = append(history, functionResponseContent(responses))
		if err != nil {
			persist()
			return fail(fmt.Errorf("returning tool results: %w", err))
		}
	}

	if result.Termination == "" {
		// Ran out of turns without a final answer. Keep whatever text the
		// last turn carried.
		result.Review = resp.Text
		result.Termination = TerminatedBound
		result.BoundHit = "max_turns"
	}

	logging.Debug("review state", "state", StateDone, "session", req.SessionName)

	sess.Iteration++
	sess.LastReview = result.Review
	sess.InputTokens += result.InputTokens
	sess.OutputTokens += result.OutputTokens
	persist()

	result.Iteration = sess.Iteration
	result.Navigation = env.Trace.Summary()
	result.Duration = time.Since(start)

	logging.Info("review finished",
		"session", req.SessionName,
		"termination", string(result.Termination),
		"tool_calls", result.Navigation.TotalCalls,
		"duration", result.Duration.Round(time.Millisecond))
	return result, nil
}

// boundCrossed reports which exploration bound, if any, the pending calls
// would cross. Crossing any bound forces the final summary.
func (r *Runner) boundCrossed(env *tools.Env, start time.Time, calls []*genai.FunctionCall) string {
	if r.cfg.MaxToolCalls > 0 && env.Trace.TotalCalls() >= r.cfg.MaxToolCalls {
		return "max_tool_calls"
	}
	if r.cfg.MaxDuration > 0 && time.Since(start) >= r.cfg.MaxDuration {
		return "max_duration"
	}
	// A read of a file not yet counted against the distinct-files budget
	// crosses the bound; re-reads of already-read files stay free.
	for _, call := range calls {
		if r.isNewReadPastBudget(env, call) {
			return "max_files_read"
		}
	}
	return ""
}

// executeCalls runs a batch of requested tool calls.
func (r *Runner) executeCalls(ctx context.Context, registry *tools.Registry, env *tools.Env, calls []*genai.FunctionCall) []*genai.FunctionResponse {
	responses := make([]*genai.FunctionResponse, 0, len(calls))
	for _, call := range calls {
		result := registry.Dispatch(ctx, call.Name, call.Args)
		logging.Debug("tool call",
			"tool", call.Name,
			"success", result.Success)
		responses = append(responses, &genai.FunctionResponse{
			ID:       call.ID,
			Name:     call.Name,
			Response: result.ToMap(),
		})
	}
	return responses
}

// isNewReadPastBudget reports whether the call asks to read a file not yet
// counted while the distinct-files budget is already spent.
func (r *Runner) isNewReadPastBudget(env *tools.Env, call *genai.FunctionCall) bool {
	if call.Name != "read_file" || r.cfg.MaxFilesRead <= 0 {
		return false
	}
	if env.Trace.FilesRead() < r.cfg.MaxFilesRead {
		return false
	}
	path, _ := tools.GetString(call.Args, "filepath")
	return !env.Trace.HasReadFile(path)
}

func functionResponseContent(responses []*genai.FunctionResponse) *genai.Content {
	parts := make([]*genai.Part, len(responses))
	for i, fr := range responses {
		parts[i] = genai.NewPartFromFunctionResponse(fr.Name, fr.Response)
		parts[i].FunctionResponse.ID = fr.ID
	}
	return &genai.Content{Role: genai.RoleUser, Parts: parts}
}

func modelContent(resp *client.Response) *genai.Content {
	var parts []*genai.Part
	if resp.Text != "" {
		parts = append(parts, genai.NewPartFromText(resp.Text))
	}
	for _, fc := range resp.FunctionCalls {
		parts = append(parts, &genai.Part{FunctionCall: fc})
	}
	if len(parts) == 0 {
		parts = append(parts, genai.NewPartFromText(" "))
	}
	return &genai.Content{Role: genai.RoleModel, Parts: parts}
}
