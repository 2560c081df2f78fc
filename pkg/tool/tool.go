package tool

import (
	"context"
)

//go:generate mockgen -source=tool.go -destination=../../mocks/mocktool/tool_mock.gen.go -package mocktool

// Provider is a source of tools, usually one connected tool server.
type Provider interface {
	Name() string

	Tools(ctx context.Context) ([]Tool, error)
	Call(ctx context.Context, name string, args map[string]any) (string, error)
}

type Schema map[string]any

// Tool describes a callable tool as advertised to the model.
type Tool struct {
	Name        string
	Description string

	Schema Schema
}

// EmptySchema is advertised for tools that take no arguments.
func EmptySchema() Schema {
	return Schema{
		"type":                 "object",
		"properties":           map[string]any{},
		"additionalProperties": false,
	}
}
