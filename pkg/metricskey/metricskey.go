package metricskey

import "github.com/effective-security/metrics"

// Stats
var (
	// StatsModelCallsSucceeded is base for counter metric for model calls that returned a completion
	StatsModelCallsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_model_calls_succeeded",
		Help:         "stats_model_calls_succeeded provides total model calls succeeded",
		RequiredTags: []string{"model"},
	}

	StatsModelCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_model_calls_failed",
		Help:         "stats_model_calls_failed provides total model calls failed",
		RequiredTags: []string{"model"},
	}

	StatsModelInputTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_model_input_tokens",
		Help:         "stats_model_input_tokens provides total input tokens sent to the model",
		RequiredTags: []string{"model"},
	}

	StatsModelOutputTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_model_output_tokens",
		Help:         "stats_model_output_tokens provides total output tokens received from the model",
		RequiredTags: []string{"model"},
	}

	StatsToolCallsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_succeeded",
		Help:         "stats_tool_calls_succeeded provides total tool calls succeeded",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_failed",
		Help:         "stats_tool_calls_failed provides total tool calls failed",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsNotFound = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_not_found",
		Help:         "stats_tool_calls_not_found provides total tool calls not found",
		RequiredTags: []string{"tool"},
	}

	StatsIterationCapReached = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_iteration_cap_reached",
		Help:         "stats_iteration_cap_reached provides total queries stopped at the iteration cap",
		RequiredTags: []string{"agent"},
	}
)

// Perf
var (
	PerfQuery = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_query",
		Help:         "perf_query provides duration of a query through the orchestration loop",
		RequiredTags: []string{"agent"},
	}

	PerfModelCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_model_call",
		Help:         "perf_model_call provides duration of model call",
		RequiredTags: []string{"model"},
	}

	PerfToolCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_tool_call",
		Help:         "perf_tool_call provides duration of tool call",
		RequiredTags: []string{"tool"},
	}
)

// Metrics returns slice of metrics from this repo
// keep sorted by name
var Metrics = []*metrics.Describe{
	&PerfModelCall,
	&PerfQuery,
	&PerfToolCall,
	&StatsIterationCapReached,
	&StatsModelCallsFailed,
	&StatsModelCallsSucceeded,
	&StatsModelInputTokens,
	&StatsModelOutputTokens,
	&StatsToolCallsFailed,
	&StatsToolCallsNotFound,
	&StatsToolCallsSucceeded,
}
