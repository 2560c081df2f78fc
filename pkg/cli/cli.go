package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	termcli "github.com/adrianliechti/go-cli"
	"github.com/charmbracelet/huh"
	"github.com/cockroachdb/errors"
	"github.com/urfave/cli/v3"
)

type Command = cli.Command

type Flag = cli.Flag
type IntFlag = cli.IntFlag
type StringFlag = cli.StringFlag
type BoolFlag = cli.BoolFlag
type DurationFlag = cli.DurationFlag

func EnvVars(keys ...string) cli.ValueSourceChain {
	return cli.EnvVars(keys...)
}

func ShowAppHelp(cmd *Command) error {
	return cli.ShowAppHelp(cmd)
}

var (
	Info  = termcli.Info
	Infof = termcli.Infof
	Fatal = termcli.Fatal

	// Run shows a spinner with title while fn runs.
	Run = termcli.Run
)

// Reader reads one line of user input. It returns io.EOF when the user
// ends the input.
type Reader interface {
	ReadLine(label string) (string, error)
}

// NewReader returns a terminal prompt when stdin is a terminal and a plain
// line reader otherwise.
func NewReader() Reader {
	if IsTerminal(os.Stdin) {
		return &terminalReader{}
	}

	return NewLineReader(os.Stdin, os.Stderr)
}

type lineReader struct {
	r *bufio.Reader
	w io.Writer
}

// NewLineReader reads lines from r and writes the label to w.
func NewLineReader(r io.Reader, w io.Writer) Reader {
	return &lineReader{
		r: bufio.NewReader(r),
		w: w,
	}
}

func (l *lineReader) ReadLine(label string) (string, error) {
	if label != "" && l.w != nil {
		fmt.Fprint(l.w, label+" ")
	}

	s, err := l.r.ReadString('\n')

	if err != nil {
		if errors.Is(err, io.EOF) && s != "" {
			return strings.TrimSpace(s), nil
		}

		return "", err
	}

	return strings.TrimSpace(s), nil
}

type terminalReader struct{}

func (t *terminalReader) ReadLine(label string) (string, error) {
	var s string

	if err := huh.NewInput().
		Title(label).
		Value(&s).
		Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return "", io.EOF
		}

		return "", err
	}

	return strings.TrimSpace(s), nil
}

func IsTerminal(f *os.File) bool {
	fi, err := f.Stat()

	if err != nil {
		return false
	}

	return fi.Mode()&os.ModeCharDevice != 0
}

// ReadPipe returns stdin when it is a pipe and an empty string otherwise.
func ReadPipe() string {
	fi, err := os.Stdin.Stat()

	if err != nil {
		return ""
	}

	if fi.Mode()&os.ModeNamedPipe == 0 {
		return ""
	}

	data, err := io.ReadAll(os.Stdin)

	if err != nil {
		return ""
	}

	return string(data)
}
