package prompt

import (
	_ "embed"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/adrianliechti/wingman-pilot/pkg/tool"

	"github.com/Masterminds/sprig/v3"
	"github.com/cockroachdb/errors"
)

var (
	//go:embed prompt.txt
	DefaultPrompt string
)

// Files are the custom prompt file names looked up in the working directory.
var Files = []string{".prompt.md", ".prompt.txt", "prompt.md", "prompt.txt"}

// Data is passed to prompt templates.
type Data struct {
	Tools   []tool.Tool
	Servers []Server
}

// Server carries the instructions a connected server sent in its handshake.
type Server struct {
	Name         string
	Instructions string
}

// Render executes text as a template with the sprig functions.
func Render(text string, data Data) (string, error) {
	tmpl, err := template.New("prompt").
		Funcs(sprig.TxtFuncMap()).
		Parse(text)

	if err != nil {
		return "", errors.Wrap(err, "invalid prompt template")
	}

	var sb strings.Builder

	if err := tmpl.Execute(&sb, data); err != nil {
		return "", errors.Wrap(err, "failed to render prompt")
	}

	return strings.TrimSpace(sb.String()), nil
}

// Find returns the first custom prompt file present in dir, or an empty
// string when there is none.
func Find(dir string) string {
	for _, name := range Files {
		path := filepath.Join(dir, name)

		if _, err := os.Stat(path); err != nil {
			continue
		}

		return path
	}

	return ""
}

// Load returns the system prompt. A custom prompt file replaces the
// default prompt entirely; without one the default prompt lists tools and
// server instructions.
func Load(path string, data Data) (string, error) {
	if path == "" {
		path = Find("")
	}

	if path == "" {
		return Render(DefaultPrompt, data)
	}

	text, err := os.ReadFile(path)

	if err != nil {
		return "", errors.Wrap(err, "failed to read prompt")
	}

	return Render(strings.TrimSpace(string(text)), data)
}
