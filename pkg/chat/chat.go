package chat

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/adrianliechti/wingman-pilot/pkg/agent"
	"github.com/adrianliechti/wingman-pilot/pkg/cli"
	"github.com/adrianliechti/wingman-pilot/pkg/conversation"
	"github.com/adrianliechti/wingman-pilot/pkg/markdown"
	"github.com/adrianliechti/wingman-pilot/pkg/mcp"
	"github.com/adrianliechti/wingman-pilot/pkg/tool"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/muesli/termenv"
)

var logger = xlog.NewPackageLogger("github.com/adrianliechti/wingman-pilot/pkg", "chat")

// Processor answers one query.
type Processor interface {
	Process(ctx context.Context, query string) (*agent.Result, error)
}

// Run reads queries until the user types quit or ends the input. A failed
// query is reported and the loop continues with the next one.
func Run(ctx context.Context, p Processor, r cli.Reader, w io.Writer) error {
	output := termenv.NewOutput(w)

	cli.Info("🤗 Type your queries or 'quit' to exit.")
	cli.Info()

	for {
		if ctx.Err() != nil {
			return nil
		}

		query, err := r.ReadLine("Query:")

		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}

			return err
		}

		if query == "" {
			continue
		}

		if strings.EqualFold(query, "quit") {
			return nil
		}

		result, err := p.Process(ctx, query)

		if err != nil {
			logger.ContextKV(ctx, xlog.ERROR,
				"status", "query_failed",
				"err", err.Error(),
			)

			output.WriteString(output.String("Error: " + err.Error()).Foreground(termenv.ANSIRed).String() + "\n\n")
			continue
		}

		output.WriteString("\n")
		markdown.Render(w, result.Content)
		output.WriteString("\n")
	}
}

// PrintStatus reports the outcome of connecting each provider.
func PrintStatus(statuses []mcp.Status) {
	for _, s := range statuses {
		cli.Info(StatusLine(s))
	}

	cli.Info()
}

func StatusLine(s mcp.Status) string {
	if s.Err != nil {
		return fmt.Sprintf("Failed to connect to %s: %s", s.Name, s.Err)
	}

	return fmt.Sprintf("Connected to %s with tools: %v", s.Name, s.Tools)
}

// WithThinking shows a spinner while m produces a turn.
func WithThinking(m agent.Model) agent.Model {
	return &thinkingModel{
		Model: m,
	}
}

type thinkingModel struct {
	agent.Model
}

func (m *thinkingModel) Complete(ctx context.Context, turns []conversation.Turn, tools []tool.Tool) (conversation.Turn, error) {
	var turn conversation.Turn

	fn := func() error {
		var err error
		turn, err = m.Model.Complete(ctx, turns, tools)
		return err
	}

	if err := cli.Run("Thinking...", fn); err != nil {
		return conversation.Turn{}, err
	}

	return turn, nil
}

// ToolCallPrinter returns a handler announcing each tool call on w.
func ToolCallPrinter(w io.Writer) agent.ToolCallFunc {
	output := termenv.NewOutput(w)

	return func(call conversation.ToolCall) {
		args := call.Arguments

		if args == "" {
			args = "{}"
		}

		output.WriteString(output.String(fmt.Sprintf("⚡️ Calling tool %s with args %s", call.Name, args)).Faint().String() + "\n")
	}
}
