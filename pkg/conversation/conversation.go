package conversation

import (
	"encoding/json"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a model request to run a tool. Arguments hold the raw JSON
// object produced by the model.
type ToolCall struct {
	ID   string
	Name string

	Arguments string
}

// ParseArguments decodes the call arguments. Empty arguments decode to an
// empty object.
func (c ToolCall) ParseArguments() (map[string]any, error) {
	args := map[string]any{}

	if strings.TrimSpace(c.Arguments) == "" {
		return args, nil
	}

	if err := json.Unmarshal([]byte(c.Arguments), &args); err != nil {
		return nil, errors.Wrapf(err, "invalid arguments for tool %s", c.Name)
	}

	if args == nil {
		args = map[string]any{}
	}

	return args, nil
}

// Turn is one entry of the transcript. ToolCalls are only set on assistant
// turns, CallID only on tool turns.
type Turn struct {
	Role    Role
	Content string

	ToolCalls []ToolCall
	CallID    string
}

func System(content string) Turn {
	return Turn{Role: RoleSystem, Content: content}
}

func User(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

func Assistant(content string, calls ...ToolCall) Turn {
	return Turn{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

func ToolResult(callID, content string) Turn {
	return Turn{Role: RoleTool, Content: content, CallID: callID}
}

// Conversation is an append-only transcript.
type Conversation struct {
	turns []Turn
}

func New(turns ...Turn) *Conversation {
	c := &Conversation{}
	c.Append(turns...)

	return c
}

func (c *Conversation) Append(turns ...Turn) {
	for _, t := range turns {
		t.ToolCalls = slices.Clone(t.ToolCalls)
		c.turns = append(c.turns, t)
	}
}

// Snapshot returns a copy of the transcript in append order.
func (c *Conversation) Snapshot() []Turn {
	result := make([]Turn, len(c.turns))

	for i, t := range c.turns {
		t.ToolCalls = slices.Clone(t.ToolCalls)
		result[i] = t
	}

	return result
}

func (c *Conversation) Len() int {
	return len(c.turns)
}
