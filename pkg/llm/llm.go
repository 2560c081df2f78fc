package llm

import (
	"context"
	"strings"
	"time"

	"github.com/adrianliechti/wingman-pilot/pkg/agent"
	"github.com/adrianliechti/wingman-pilot/pkg/conversation"
	"github.com/adrianliechti/wingman-pilot/pkg/metricskey"
	"github.com/adrianliechti/wingman-pilot/pkg/tool"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

var logger = xlog.NewPackageLogger("github.com/adrianliechti/wingman-pilot/pkg", "llm")

// Config selects an OpenAI compatible endpoint or an Azure OpenAI deployment.
type Config struct {
	APIKey  string
	BaseURL string

	AzureEndpoint   string
	AzureAPIVersion string
	AzureAPIKey     string
}

// NewClient builds the openai client for cfg. Without an API key the
// endpoint defaults to a local server.
func NewClient(cfg Config) (openai.Client, error) {
	if cfg.AzureEndpoint != "" {
		version := cfg.AzureAPIVersion

		if version == "" {
			version = "2024-10-21"
		}

		options := []option.RequestOption{
			azure.WithEndpoint(cfg.AzureEndpoint, version),
		}

		if cfg.AzureAPIKey != "" {
			options = append(options, azure.WithAPIKey(cfg.AzureAPIKey))
		} else {
			credential, err := azidentity.NewDefaultAzureCredential(nil)

			if err != nil {
				return openai.Client{}, errors.Wrap(err, "failed to create azure credential")
			}

			options = append(options, azure.WithTokenCredential(credential))
		}

		return openai.NewClient(options...), nil
	}

	apiKey := cfg.APIKey

	if apiKey == "" {
		apiKey = "-"
	}

	baseURL := cfg.BaseURL

	if baseURL == "" {
		baseURL = "https://api.openai.com/v1/"

		if apiKey == "-" {
			baseURL = "http://localhost:8080/v1/"
		}
	}

	return openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"),
	), nil
}

// Model runs chat completions with function calling.
type Model struct {
	client openai.Client

	model string
	user  string
}

var _ agent.Model = (*Model)(nil)

type Option func(*Model)

// WithUser sets the end-user identifier sent with every request.
func WithUser(user string) Option {
	return func(m *Model) {
		m.user = user
	}
}

func New(client openai.Client, model string, opts ...Option) *Model {
	m := &Model{
		client: client,
		model:  model,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

func (m *Model) Name() string {
	return m.model
}

func (m *Model) Complete(ctx context.Context, turns []conversation.Turn, tools []tool.Tool) (conversation.Turn, error) {
	params := openai.ChatCompletionNewParams{
		Model: m.model,

		Messages: toMessages(turns),
	}

	if len(tools) > 0 {
		params.Tools = toTools(tools)
	}

	if m.user != "" {
		params.User = openai.String(m.user)
	}

	started := time.Now()
	completion, err := m.client.Chat.Completions.New(ctx, params)
	metricskey.PerfModelCall.MeasureSince(started, m.model)

	if err != nil {
		metricskey.StatsModelCallsFailed.IncrCounter(1, m.model)
		return conversation.Turn{}, errors.Wrap(err, "chat completion failed")
	}

	metricskey.StatsModelCallsSucceeded.IncrCounter(1, m.model)
	metricskey.StatsModelInputTokens.IncrCounter(float64(completion.Usage.PromptTokens), m.model)
	metricskey.StatsModelOutputTokens.IncrCounter(float64(completion.Usage.CompletionTokens), m.model)

	if len(completion.Choices) == 0 {
		return conversation.Turn{}, errors.New("chat completion returned no choices")
	}

	message := completion.Choices[0].Message

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "completed",
		"model", m.model,
		"finish_reason", completion.Choices[0].FinishReason,
		"tool_calls", len(message.ToolCalls),
		"input_tokens", completion.Usage.PromptTokens,
		"output_tokens", completion.Usage.CompletionTokens,
	)

	var calls []conversation.ToolCall

	for _, c := range message.ToolCalls {
		calls = append(calls, conversation.ToolCall{
			ID:   c.ID,
			Name: c.Function.Name,

			Arguments: c.Function.Arguments,
		})
	}

	return conversation.Assistant(message.Content, calls...), nil
}

func toMessages(turns []conversation.Turn) []openai.ChatCompletionMessageParamUnion {
	var result []openai.ChatCompletionMessageParamUnion

	for _, t := range turns {
		switch t.Role {
		case conversation.RoleSystem:
			result = append(result, openai.SystemMessage(t.Content))

		case conversation.RoleUser:
			result = append(result, openai.UserMessage(t.Content))

		case conversation.RoleTool:
			result = append(result, openai.ToolMessage(t.Content, t.CallID))

		case conversation.RoleAssistant:
			result = append(result, toAssistantMessage(t))
		}
	}

	return result
}

func toAssistantMessage(t conversation.Turn) openai.ChatCompletionMessageParamUnion {
	message := &openai.ChatCompletionAssistantMessageParam{}

	if t.Content != "" {
		message.Content.OfString = openai.String(t.Content)
	}

	for _, c := range t.ToolCalls {
		message.ToolCalls = append(message.ToolCalls, openai.ChatCompletionMessageToolCallParam{
			ID: c.ID,

			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      c.Name,
				Arguments: c.Arguments,
			},
		})
	}

	return openai.ChatCompletionMessageParamUnion{
		OfAssistant: message,
	}
}

func toTools(tools []tool.Tool) []openai.ChatCompletionToolParam {
	var result []openai.ChatCompletionToolParam

	for _, t := range tools {
		result = append(result, toTool(t))
	}

	return result
}

func toTool(t tool.Tool) openai.ChatCompletionToolParam {
	schema := t.Schema

	if len(schema) == 0 {
		schema = tool.EmptySchema()
	}

	return openai.ChatCompletionToolParam{
		Function: shared.FunctionDefinitionParam{
			Name:        t.Name,
			Description: openai.String(t.Description),

			Parameters: shared.FunctionParameters(schema),
		},
	}
}
