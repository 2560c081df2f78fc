package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/adrianliechti/wingman-pilot/pkg/agent"
	"github.com/adrianliechti/wingman-pilot/pkg/chat"
	"github.com/adrianliechti/wingman-pilot/pkg/cli"
	"github.com/adrianliechti/wingman-pilot/pkg/llm"
	"github.com/adrianliechti/wingman-pilot/pkg/markdown"
	"github.com/adrianliechti/wingman-pilot/pkg/mcp"
	"github.com/adrianliechti/wingman-pilot/pkg/mcp/config"
	"github.com/adrianliechti/wingman-pilot/pkg/prompt"
	"github.com/adrianliechti/wingman-pilot/pkg/tool"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/metrics"
	"github.com/effective-security/xlog"
	"github.com/joho/godotenv"
	"github.com/openai/openai-go"
)

var version string

var logger = xlog.NewPackageLogger("github.com/adrianliechti/wingman-pilot", "main")

func main() {
	if err := loadDotenv(); err != nil {
		logger.KV(xlog.WARNING,
			"status", "dotenv_failed",
			"err", err.Error(),
		)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := initApp()

	if err := app.Run(ctx, os.Args); err != nil {
		cli.Fatal(err)
	}
}

// loadDotenv loads .env, or the given files, into the environment. A
// missing file is not an error.
func loadDotenv(files ...string) error {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	return nil
}

func initApp() cli.Command {
	defaultModel := os.Getenv("OPENAI_MODEL")

	if defaultModel == "" {
		defaultModel = openai.ChatModelGPT4o
	}

	return cli.Command{
		Name:  "pilot",
		Usage: "Wingman Pilot: chat with tools from MCP servers",

		Suggest: true,
		Version: version,

		HideHelpCommand: true,

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "server configuration file (default: first of " + strings.Join(config.Files, ", ") + ")",
				Sources: cli.EnvVars("PILOT_CONFIG"),
			},

			&cli.StringFlag{
				Name:    "prompt",
				Usage:   "custom system prompt file (default: first of " + strings.Join(prompt.Files, ", ") + ")",
				Sources: cli.EnvVars("PILOT_PROMPT"),
			},

			&cli.StringFlag{
				Name:  "model",
				Usage: "model name",
				Value: defaultModel,
			},

			&cli.IntFlag{
				Name:    "max-iterations",
				Usage:   "model calls allowed per query",
				Value:   agent.DefaultMaxIterations,
				Sources: cli.EnvVars("PILOT_MAX_ITERATIONS"),
			},

			&cli.BoolFlag{
				Name:    "history",
				Usage:   "keep the conversation across queries",
				Sources: cli.EnvVars("PILOT_HISTORY"),
			},

			&cli.BoolFlag{
				Name:    "strict-tools",
				Usage:   "reject tools whose name is already provided by another server",
				Sources: cli.EnvVars("PILOT_STRICT_TOOLS"),
			},

			&cli.DurationFlag{
				Name:    "timeout",
				Usage:   "server handshake timeout",
				Value:   30 * time.Second,
				Sources: cli.EnvVars("PILOT_CONNECT_TIMEOUT"),
			},

			&cli.BoolFlag{
				Name:    "metrics",
				Usage:   "collect metrics in memory, dumped on " + metrics.DefaultSignal.String(),
				Sources: cli.EnvVars("PILOT_METRICS"),
			},

			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "debug, info, warning or error",
				Value:   "warning",
				Sources: cli.EnvVars("PILOT_LOG_LEVEL"),
			},
		},

		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			xlog.SetFormatter(xlog.NewStringFormatter(os.Stderr))
			xlog.SetGlobalLogLevel(parseLevel(cmd.String("log-level")))

			if cmd.Bool("metrics") {
				if err := startMetrics(); err != nil {
					return ctx, err
				}
			}

			return ctx, nil
		},

		After: func(ctx context.Context, cmd *cli.Command) error {
			if inmemSignal != nil {
				inmemSignal.Stop()
			}

			return nil
		},

		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() > 0 {
				return runAsk(ctx, cmd)
			}

			return runChat(ctx, cmd)
		},

		Commands: []*cli.Command{
			{
				Name:  "chat",
				Usage: "Interactive chat",

				HideHelp: true,

				Action: runChat,
			},

			{
				Name:      "ask",
				Usage:     "Answer a single query",
				ArgsUsage: "<query>",

				HideHelp: true,

				Action: runAsk,
			},

			{
				Name:  "tools",
				Usage: "List the tools of all configured servers",

				HideHelp: true,

				Action: runTools,
			},
		},
	}
}

func parseLevel(level string) xlog.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return xlog.DEBUG
	case "info":
		return xlog.INFO
	case "error":
		return xlog.ERROR
	}

	return xlog.WARNING
}

var inmemSignal *metrics.InmemSignal

// startMetrics collects metrics in memory. The current values are written
// to stderr when the process receives metrics.DefaultSignal.
func startMetrics() error {
	sink := metrics.NewInmemSink(10*time.Second, time.Minute)

	cfg := metrics.DefaultConfig("pilot")
	cfg.EnableRuntimeMetrics = false

	if _, err := metrics.NewGlobal(cfg, sink); err != nil {
		return errors.Wrap(err, "failed to start metrics")
	}

	inmemSignal = metrics.DefaultInmemSignal(sink)

	return nil
}

type session struct {
	manager *mcp.Manager
	agent   *agent.Agent
}

// startup connects the configured servers and builds the agent. The caller
// must call manager.Shutdown once the session ends.
func startup(ctx context.Context, cmd *cli.Command, quiet bool) (*session, error) {
	path := cmd.String("config")

	if path == "" {
		p, err := config.Find("")

		if err != nil {
			return nil, err
		}

		path = p
	}

	cfg, err := config.Parse(path)

	if err != nil {
		return nil, err
	}

	registry := tool.NewRegistry(tool.WithStrict(cmd.Bool("strict-tools")))
	manager := mcp.New(registry, mcp.WithTimeout(cmd.Duration("timeout")))

	statuses := manager.Startup(ctx, cfg.Servers)

	if !quiet {
		chat.PrintStatus(statuses)
	}

	data := prompt.Data{
		Tools: registry.List(),
	}

	for _, s := range statuses {
		if s.Err == nil && s.Instructions != "" {
			data.Servers = append(data.Servers, prompt.Server{Name: s.Name, Instructions: s.Instructions})
		}
	}

	system, err := prompt.Load(cmd.String("prompt"), data)

	if err != nil {
		manager.Shutdown()
		return nil, err
	}

	client, err := llm.NewClient(llm.Config{
		APIKey:  os.Getenv("OPENAI_API_KEY"),
		BaseURL: os.Getenv("OPENAI_BASE_URL"),

		AzureEndpoint:   os.Getenv("AZURE_OPENAI_ENDPOINT"),
		AzureAPIVersion: os.Getenv("AZURE_OPENAI_API_VERSION"),
		AzureAPIKey:     os.Getenv("AZURE_OPENAI_API_KEY"),
	})

	if err != nil {
		manager.Shutdown()
		return nil, err
	}

	var model agent.Model = llm.New(client, cmd.String("model"), llm.WithUser(os.Getenv("OPENAI_USER")))

	if !quiet && cli.IsTerminal(os.Stdout) {
		model = chat.WithThinking(model)
	}

	a := agent.New(model, registry,
		agent.WithSystemPrompt(system),
		agent.WithMaxIterations(cmd.Int("max-iterations")),
		agent.WithHistory(cmd.Bool("history")),
		agent.WithToolCallHandler(chat.ToolCallPrinter(os.Stderr)),
	)

	return &session{
		manager: manager,
		agent:   a,
	}, nil
}

func runChat(ctx context.Context, cmd *cli.Command) error {
	s, err := startup(ctx, cmd, false)

	if err != nil {
		return err
	}

	defer s.manager.Shutdown()

	return chat.Run(ctx, s.agent, cli.NewReader(), os.Stdout)
}

func runAsk(ctx context.Context, cmd *cli.Command) error {
	query := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))

	if input := cli.ReadPipe(); input != "" {
		if query != "" {
			query += "\n\n"
		}

		query += "Input:\n" + input
	}

	if query == "" {
		return cli.ShowAppHelp(cmd.Root())
	}

	s, err := startup(ctx, cmd, true)

	if err != nil {
		return err
	}

	defer s.manager.Shutdown()

	result, err := s.agent.Process(ctx, query)

	if err != nil {
		return err
	}

	markdown.Render(os.Stdout, result.Content)

	return nil
}

func runTools(ctx context.Context, cmd *cli.Command) error {
	s, err := startup(ctx, cmd, false)

	if err != nil {
		return err
	}

	defer s.manager.Shutdown()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TOOL\tSERVER\tDESCRIPTION")

	for _, e := range s.manager.Registry().Entries() {
		description, _, _ := strings.Cut(strings.TrimSpace(e.Tool.Description), "\n")
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.Tool.Name, e.Provider.Name(), description)
	}

	return w.Flush()
}
