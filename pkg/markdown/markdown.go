package markdown

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
)

// Render writes content styled for the terminal. Writers that are not a
// terminal, and content glamour cannot render, get the plain text.
func Render(w io.Writer, content string) {
	content = strings.TrimSpace(content)

	if !isTerminal(w) {
		fmt.Fprintln(w, content)
		return
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithEmoji(),
		glamour.WithWordWrap(100),
	)

	if err != nil {
		fmt.Fprintln(w, content)
		return
	}

	md, err := r.Render(content)

	if err != nil {
		fmt.Fprintln(w, content)
		return
	}

	fmt.Fprintln(w, md)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)

	if !ok {
		return false
	}

	fi, err := f.Stat()

	if err != nil {
		return false
	}

	return fi.Mode()&os.ModeCharDevice != 0
}
