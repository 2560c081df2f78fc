package agent

import (
	"context"
	"slices"
	"time"

	"github.com/adrianliechti/wingman-pilot/pkg/conversation"
	"github.com/adrianliechti/wingman-pilot/pkg/metricskey"
	"github.com/adrianliechti/wingman-pilot/pkg/tool"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
)

//go:generate mockgen -source=agent.go -destination=../../mocks/mockagent/agent_mock.gen.go -package mockagent

var logger = xlog.NewPackageLogger("github.com/adrianliechti/wingman-pilot/pkg", "agent")

// DefaultMaxIterations is the number of model calls allowed per query.
const DefaultMaxIterations = 3

// Model produces the next assistant turn for a transcript. Tools are
// advertised as callable functions; nil means tool calling is not offered.
type Model interface {
	Complete(ctx context.Context, turns []conversation.Turn, tools []tool.Tool) (conversation.Turn, error)
}

// ToolCallFunc is notified before a requested tool runs.
type ToolCallFunc func(call conversation.ToolCall)

type Agent struct {
	name string

	model    Model
	registry *tool.Registry

	prompt        string
	maxIterations int

	history      bool
	conversation *conversation.Conversation

	onToolCall ToolCallFunc
}

type Option func(*Agent)

func WithName(name string) Option {
	return func(a *Agent) {
		a.name = name
	}
}

func WithSystemPrompt(prompt string) Option {
	return func(a *Agent) {
		a.prompt = prompt
	}
}

// WithMaxIterations sets the number of model calls allowed per query.
// Values below one fall back to DefaultMaxIterations.
func WithMaxIterations(n int) Option {
	return func(a *Agent) {
		a.maxIterations = n
	}
}

// WithHistory keeps one conversation across queries instead of starting a
// fresh one for every query.
func WithHistory(history bool) Option {
	return func(a *Agent) {
		a.history = history
	}
}

func WithToolCallHandler(fn ToolCallFunc) Option {
	return func(a *Agent) {
		a.onToolCall = fn
	}
}

func New(model Model, registry *tool.Registry, opts ...Option) *Agent {
	a := &Agent{
		name: "pilot",

		model:    model,
		registry: registry,

		maxIterations: DefaultMaxIterations,
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.maxIterations < 1 {
		a.maxIterations = DefaultMaxIterations
	}

	if a.registry == nil {
		a.registry = tool.NewRegistry()
	}

	return a
}

// Result is the outcome of one query.
type Result struct {
	Content string

	// Iterations is the number of model calls made.
	Iterations int
	// ToolCalls is the number of tool calls answered.
	ToolCalls int
	// Capped is set when the query stopped at the iteration cap while the
	// model was still requesting tools.
	Capped bool
}

// Process runs one query through the model, executing requested tools
// until the model answers without tool calls or the iteration cap is
// reached. Tool failures are fed back to the model as tool results; only
// model failures are returned.
func (a *Agent) Process(ctx context.Context, query string) (*Result, error) {
	started := time.Now()
	defer metricskey.PerfQuery.MeasureSince(started, a.name)

	conv := a.begin(query)

	var tools []tool.Tool

	if a.registry.Len() > 0 {
		tools = a.registry.List()
	}

	result := &Result{}

	for {
		turn, err := a.model.Complete(ctx, conv.Snapshot(), tools)
		result.Iterations++

		if err != nil {
			return nil, errors.WithMessagef(err, "model call %d failed", result.Iterations)
		}

		result.Content = turn.Content

		if len(turn.ToolCalls) == 0 {
			conv.Append(conversation.Assistant(turn.Content))
			return result, nil
		}

		// the model owns turn.ToolCalls
		calls := slices.Clone(turn.ToolCalls)

		for i := range calls {
			if calls[i].ID == "" {
				calls[i].ID = "call_" + uuid.NewString()
			}
		}

		conv.Append(conversation.Assistant(turn.Content, calls...))

		for _, call := range calls {
			content := a.execute(ctx, call)
			conv.Append(conversation.ToolResult(call.ID, content))

			result.ToolCalls++
		}

		if result.Iterations >= a.maxIterations {
			metricskey.StatsIterationCapReached.IncrCounter(1, a.name)

			logger.ContextKV(ctx, xlog.WARNING,
				"status", "iteration_cap_reached",
				"iterations", result.Iterations,
				"tool_calls", result.ToolCalls,
			)

			result.Capped = true
			return result, nil
		}
	}
}

func (a *Agent) begin(query string) *conversation.Conversation {
	if a.history && a.conversation != nil {
		a.conversation.Append(conversation.User(query))
		return a.conversation
	}

	conv := conversation.New(
		conversation.System(a.prompt),
		conversation.User(query),
	)

	a.conversation = conv

	return conv
}

// Transcript returns the conversation of the last query, or of the whole
// session when history is enabled.
func (a *Agent) Transcript() []conversation.Turn {
	if a.conversation == nil {
		return nil
	}

	return a.conversation.Snapshot()
}

// Reset drops the kept conversation.
func (a *Agent) Reset() {
	a.conversation = nil
}

func (a *Agent) execute(ctx context.Context, call conversation.ToolCall) string {
	if a.onToolCall != nil {
		a.onToolCall(call)
	}

	provider, err := a.registry.Resolve(call.Name)

	if err != nil {
		metricskey.StatsToolCallsNotFound.IncrCounter(1, call.Name)

		logger.ContextKV(ctx, xlog.WARNING,
			"status", "tool_not_found",
			"tool", call.Name,
		)

		return "Error: " + err.Error()
	}

	args, err := call.ParseArguments()

	if err != nil {
		metricskey.StatsToolCallsFailed.IncrCounter(1, call.Name)

		logger.ContextKV(ctx, xlog.WARNING,
			"status", "tool_invalid_arguments",
			"tool", call.Name,
			"err", err.Error(),
		)

		return "Error: " + err.Error()
	}

	started := time.Now()
	content, err := provider.Call(ctx, call.Name, args)
	metricskey.PerfToolCall.MeasureSince(started, call.Name)

	if err != nil {
		metricskey.StatsToolCallsFailed.IncrCounter(1, call.Name)

		logger.ContextKV(ctx, xlog.WARNING,
			"status", "tool_call_failed",
			"tool", call.Name,
			"provider", provider.Name(),
			"err", err.Error(),
		)

		return "Error: " + err.Error()
	}

	metricskey.StatsToolCallsSucceeded.IncrCounter(1, call.Name)

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "tool_called",
		"tool", call.Name,
		"provider", provider.Name(),
	)

	return content
}
