package agent_test

import (
	"context"
	"testing"
	"time"

	"github.com/adrianliechti/wingman-pilot/mocks/mockagent"
	"github.com/adrianliechti/wingman-pilot/mocks/mocktool"
	"github.com/adrianliechti/wingman-pilot/pkg/agent"
	"github.com/adrianliechti/wingman-pilot/pkg/conversation"
	"github.com/adrianliechti/wingman-pilot/pkg/metricskey"
	"github.com/adrianliechti/wingman-pilot/pkg/tool"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newProvider(ctrl *gomock.Controller, name string) *mocktool.MockProvider {
	p := mocktool.NewMockProvider(ctrl)
	p.EXPECT().Name().Return(name).AnyTimes()
	return p
}

func call(id, name, args string) conversation.ToolCall {
	return conversation.ToolCall{ID: id, Name: name, Arguments: args}
}

func TestProcess_DirectAnswer(t *testing.T) {
	ctrl := gomock.NewController(t)
	model := mockagent.NewMockModel(ctrl)

	var seen []conversation.Turn

	model.EXPECT().Complete(gomock.Any(), gomock.Any(), gomock.Nil()).DoAndReturn(
		func(ctx context.Context, turns []conversation.Turn, tools []tool.Tool) (conversation.Turn, error) {
			seen = turns
			return conversation.Assistant("2+2 is 4."), nil
		}).Times(1)

	a := agent.New(model, tool.NewRegistry(), agent.WithSystemPrompt("be brief"))

	result, err := a.Process(context.Background(), "What is 2+2?")
	require.NoError(t, err)

	assert.Equal(t, "2+2 is 4.", result.Content)
	assert.Equal(t, 1, result.Iterations)
	assert.Equal(t, 0, result.ToolCalls)
	assert.False(t, result.Capped)

	require.Len(t, seen, 2)
	assert.Equal(t, conversation.System("be brief"), seen[0])
	assert.Equal(t, conversation.User("What is 2+2?"), seen[1])
}

func TestProcess_TwoToolRounds(t *testing.T) {
	ctrl := gomock.NewController(t)
	model := mockagent.NewMockModel(ctrl)
	research := newProvider(ctrl, "research")

	registry := tool.NewRegistry()
	require.NoError(t, registry.Register(research, []tool.Tool{
		{Name: "search_papers", Description: "search"},
		{Name: "extract_info", Description: "extract"},
	}))

	gomock.InOrder(
		research.EXPECT().Call(gomock.Any(), "search_papers", map[string]any{"topic": "moe", "max_results": float64(2)}).
			Return(`["2024.01234", "2024.05678"]`, nil),
		research.EXPECT().Call(gomock.Any(), "extract_info", map[string]any{"paper_id": "2024.01234"}).
			Return(`{"title": "Mixture of Experts"}`, nil),
	)

	var transcripts [][]conversation.Turn

	responses := []conversation.Turn{
		conversation.Assistant("", call("c1", "search_papers", `{"topic":"moe","max_results":2}`)),
		conversation.Assistant("", call("c2", "extract_info", `{"paper_id":"2024.01234"}`)),
		conversation.Assistant("The paper is about Mixture of Experts."),
	}

	model.EXPECT().Complete(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, turns []conversation.Turn, tools []tool.Tool) (conversation.Turn, error) {
			assert.Len(t, tools, 2)

			transcripts = append(transcripts, turns)
			return responses[len(transcripts)-1], nil
		}).Times(3)

	a := agent.New(model, registry)

	result, err := a.Process(context.Background(), "Tell me about moe papers")
	require.NoError(t, err)

	assert.Equal(t, "The paper is about Mixture of Experts.", result.Content)
	assert.Equal(t, 3, result.Iterations)
	assert.Equal(t, 2, result.ToolCalls)
	assert.False(t, result.Capped)

	require.Len(t, transcripts, 3)
	assert.Len(t, transcripts[0], 2)

	second := transcripts[1]
	require.Len(t, second, 4)
	assert.Equal(t, conversation.RoleAssistant, second[2].Role)
	assert.Equal(t, conversation.ToolResult("c1", `["2024.01234", "2024.05678"]`), second[3])

	third := transcripts[2]
	require.Len(t, third, 6)
	assert.Equal(t, conversation.ToolResult("c2", `{"title": "Mixture of Experts"}`), third[5])
}

func TestProcess_IterationCap(t *testing.T) {
	for _, maxIterations := range []int{1, 3, 5} {
		ctrl := gomock.NewController(t)
		model := mockagent.NewMockModel(ctrl)
		news := newProvider(ctrl, "news")

		registry := tool.NewRegistry()
		require.NoError(t, registry.Register(news, []tool.Tool{{Name: "search"}}))

		news.EXPECT().Call(gomock.Any(), "search", gomock.Any()).Return("nothing new", nil).Times(maxIterations)

		// the same turn is handed back every round
		again := conversation.Assistant("let me search again", call("", "search", `{}`))

		model.EXPECT().Complete(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(again, nil).
			Times(maxIterations)

		a := agent.New(model, registry, agent.WithMaxIterations(maxIterations))

		result, err := a.Process(context.Background(), "news?")
		require.NoError(t, err)

		assert.Equal(t, maxIterations, result.Iterations)
		assert.Equal(t, maxIterations, result.ToolCalls)
		assert.True(t, result.Capped)
		assert.Equal(t, "let me search again", result.Content)

		// every call got an id and exactly one result
		turns := a.Transcript()
		results := map[string]int{}

		for _, turn := range turns {
			for _, c := range turn.ToolCalls {
				assert.NotEmpty(t, c.ID)
				results[c.ID] += 0
			}

			if turn.Role == conversation.RoleTool {
				results[turn.CallID]++
			}
		}

		assert.Len(t, results, maxIterations)

		for id, n := range results {
			assert.Equal(t, 1, n, "call %s", id)
		}

		assert.Empty(t, again.ToolCalls[0].ID)
	}
}

func TestProcess_Metrics(t *testing.T) {
	sink := metrics.NewInmemSink(time.Minute, time.Minute)

	cfg := metrics.DefaultConfig("")
	cfg.EnableRuntimeMetrics = false

	_, err := metrics.NewGlobal(cfg, sink)
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = metrics.NewGlobal(cfg, &metrics.BlackholeSink{})
	})

	ctrl := gomock.NewController(t)
	model := mockagent.NewMockModel(ctrl)

	model.EXPECT().Complete(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(conversation.Assistant("", call("x", "geocode", `{"q":"Bern"}`)), nil).
		Times(2)

	result, err := agent.New(model, nil, agent.WithMaxIterations(2)).Process(context.Background(), "where is Bern?")
	require.NoError(t, err)
	assert.True(t, result.Capped)

	counters := map[string]float64{}

	for _, interval := range sink.Data() {
		for _, v := range interval.Counters {
			counters[v.Name] += v.Sum
		}
	}

	assert.Equal(t, float64(2), counters[metricskey.StatsToolCallsNotFound.Name])
	assert.Equal(t, float64(1), counters[metricskey.StatsIterationCapReached.Name])
	assert.Zero(t, counters[metricskey.StatsToolCallsSucceeded.Name])
}

func TestProcess_DefaultCap(t *testing.T) {
	ctrl := gomock.NewController(t)
	model := mockagent.NewMockModel(ctrl)

	model.EXPECT().Complete(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(conversation.Assistant("", call("x", "missing", "")), nil).
		Times(agent.DefaultMaxIterations)

	a := agent.New(model, nil, agent.WithMaxIterations(0))

	result, err := a.Process(context.Background(), "loop forever")
	require.NoError(t, err)
	assert.Equal(t, agent.DefaultMaxIterations, result.Iterations)
	assert.True(t, result.Capped)
}

func TestProcess_ToolErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	model := mockagent.NewMockModel(ctrl)
	weather := newProvider(ctrl, "weather")

	registry := tool.NewRegistry()
	require.NoError(t, registry.Register(weather, []tool.Tool{{Name: "forecast"}}))

	weather.EXPECT().Call(gomock.Any(), "forecast", map[string]any{"city": "Bern"}).
		Return("", tool.InvocationError(errors.New("upstream timeout"), "forecast"))
	weather.EXPECT().Call(gomock.Any(), "forecast", map[string]any{"city": "Zurich"}).
		Return("sunny", nil)

	var observed []string

	model.EXPECT().Complete(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(conversation.Assistant("",
			call("1", "geocode", `{"q":"Bern"}`),
			call("2", "forecast", `{"city":"Bern"}`),
			call("3", "forecast", `{"city":`),
			call("4", "forecast", `{"city":"Zurich"}`),
		), nil)

	var last []conversation.Turn

	model.EXPECT().Complete(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, turns []conversation.Turn, tools []tool.Tool) (conversation.Turn, error) {
			last = turns
			return conversation.Assistant("Only Zurich is available: sunny."), nil
		})

	a := agent.New(model, registry, agent.WithToolCallHandler(func(c conversation.ToolCall) {
		observed = append(observed, c.ID)
	}))

	result, err := a.Process(context.Background(), "weather in Bern and Zurich")
	require.NoError(t, err)
	assert.Equal(t, "Only Zurich is available: sunny.", result.Content)
	assert.Equal(t, 2, result.Iterations)
	assert.Equal(t, 4, result.ToolCalls)

	assert.Equal(t, []string{"1", "2", "3", "4"}, observed)

	require.Len(t, last, 7)
	assert.Equal(t, "Error: unknown tool: geocode", last[3].Content)
	assert.Equal(t, "Error: tool forecast: upstream timeout", last[4].Content)
	assert.Contains(t, last[5].Content, "Error: invalid arguments for tool forecast")
	assert.Equal(t, "sunny", last[6].Content)

	for i, id := range []string{"1", "2", "3", "4"} {
		assert.Equal(t, id, last[3+i].CallID)
	}
}

func TestProcess_DuplicateCalls(t *testing.T) {
	ctrl := gomock.NewController(t)
	model := mockagent.NewMockModel(ctrl)
	news := newProvider(ctrl, "news")

	registry := tool.NewRegistry()
	require.NoError(t, registry.Register(news, []tool.Tool{{Name: "search"}}))

	news.EXPECT().Call(gomock.Any(), "search", map[string]any{"q": "go"}).Return("result", nil).Times(2)

	gomock.InOrder(
		model.EXPECT().Complete(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(conversation.Assistant("", call("a", "search", `{"q":"go"}`), call("b", "search", `{"q":"go"}`)), nil),
		model.EXPECT().Complete(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(conversation.Assistant("done"), nil),
	)

	result, err := agent.New(model, registry).Process(context.Background(), "go news")
	require.NoError(t, err)
	assert.Equal(t, 2, result.ToolCalls)
}

func TestProcess_ModelError(t *testing.T) {
	ctrl := gomock.NewController(t)
	model := mockagent.NewMockModel(ctrl)

	model.EXPECT().Complete(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(conversation.Turn{}, errors.New("503 service unavailable"))

	_, err := agent.New(model, nil).Process(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503 service unavailable")
}

func TestProcess_History(t *testing.T) {
	ctrl := gomock.NewController(t)
	model := mockagent.NewMockModel(ctrl)

	var lens []int

	model.EXPECT().Complete(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, turns []conversation.Turn, tools []tool.Tool) (conversation.Turn, error) {
			lens = append(lens, len(turns))
			return conversation.Assistant("ok"), nil
		}).Times(4)

	withHistory := agent.New(model, nil, agent.WithSystemPrompt("sys"), agent.WithHistory(true))

	_, err := withHistory.Process(context.Background(), "first")
	require.NoError(t, err)
	_, err = withHistory.Process(context.Background(), "second")
	require.NoError(t, err)

	turns := withHistory.Transcript()
	require.Len(t, turns, 5)
	assert.Equal(t, conversation.System("sys"), turns[0])
	assert.Equal(t, conversation.User("second"), turns[3])

	perQuery := agent.New(model, nil, agent.WithSystemPrompt("sys"))

	_, err = perQuery.Process(context.Background(), "first")
	require.NoError(t, err)
	_, err = perQuery.Process(context.Background(), "second")
	require.NoError(t, err)

	assert.Equal(t, []int{2, 4, 2, 2}, lens)
	assert.Len(t, perQuery.Transcript(), 3)

	withHistory.Reset()
	assert.Empty(t, withHistory.Transcript())
}
