package tool

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrUnknownTool is reported when a name does not resolve to a registered tool.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrToolInvocation marks failures reported by a provider while running a tool.
	ErrToolInvocation = errors.New("tool invocation failed")

	// ErrToolConflict is returned by a strict registry when two providers claim the same name.
	ErrToolConflict = errors.New("tool name conflict")
)

// InvocationError wraps err and marks it as ErrToolInvocation.
func InvocationError(err error, name string) error {
	return errors.Mark(errors.Wrapf(err, "tool %s", name), ErrToolInvocation)
}
