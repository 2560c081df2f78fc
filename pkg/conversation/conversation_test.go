package conversation_test

import (
	"testing"

	"github.com/adrianliechti/wingman-pilot/pkg/conversation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversation_AppendSnapshot(t *testing.T) {
	c := conversation.New(
		conversation.System("be helpful"),
		conversation.User("hi"),
	)

	calls := []conversation.ToolCall{{ID: "1", Name: "search", Arguments: `{"topic":"moe"}`}}
	c.Append(conversation.Assistant("", calls...))
	c.Append(conversation.ToolResult("1", "found"))

	snap := c.Snapshot()
	require.Len(t, snap, 4)
	assert.Equal(t, 4, c.Len())

	assert.Equal(t, conversation.RoleSystem, snap[0].Role)
	assert.Equal(t, conversation.RoleUser, snap[1].Role)
	assert.Equal(t, conversation.RoleAssistant, snap[2].Role)
	assert.Equal(t, conversation.RoleTool, snap[3].Role)
	assert.Equal(t, "1", snap[3].CallID)

	// changes to inputs and snapshots do not leak into the transcript
	calls[0].Name = "changed"
	snap[2].ToolCalls[0].ID = "changed"
	snap[0].Content = "changed"

	again := c.Snapshot()
	assert.Equal(t, "search", again[2].ToolCalls[0].Name)
	assert.Equal(t, "1", again[2].ToolCalls[0].ID)
	assert.Equal(t, "be helpful", again[0].Content)
}

func TestToolCall_ParseArguments(t *testing.T) {
	tcases := []struct {
		args string
		exp  map[string]any
		err  string
	}{
		{args: "", exp: map[string]any{}},
		{args: "null", exp: map[string]any{}},
		{args: `{"topic":"moe","max_results":2}`, exp: map[string]any{"topic": "moe", "max_results": float64(2)}},
		{args: `{"topic":`, err: "invalid arguments for tool search"},
	}

	for _, tc := range tcases {
		call := conversation.ToolCall{ID: "1", Name: "search", Arguments: tc.args}

		args, err := call.ParseArguments()
		if tc.err != "" {
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.err)
			continue
		}

		require.NoError(t, err)
		assert.Equal(t, tc.exp, args)
	}
}
