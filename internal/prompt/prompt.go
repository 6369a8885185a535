// Package prompt asks the operator questions. The Terminal implementation
// reads from a TTY (bubbletea lists for selections, no-echo input for
// secrets) and degrades to numbered line input when stdin is piped.
// Scripted answers prompts from a fixed list and is used by tests.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

// ErrAborted is returned when the operator cancels a prompt (Ctrl+C, Esc or
// end of input).
var ErrAborted = errors.New("prompt aborted")

// Prompter is the set of questions homeproxy asks.
type Prompter interface {
	// Ask reads a line. An empty answer yields def. validate may be nil;
	// invalid answers are rejected and asked again.
	Ask(label, def string, validate func(string) error) (string, error)
	Confirm(label string, def bool) (bool, error)
	// Secret reads a value without echoing it.
	Secret(label string) (string, error)
	// Select returns the index of one chosen option.
	Select(label string, options []string, def int) (int, error)
	// MultiSelect returns the indexes of the chosen options in option
	// order. Choosing nothing is not an error.
	MultiSelect(label string, options []string) ([]int, error)
}

// Terminal prompts on an interactive terminal.
type Terminal struct {
	in     io.Reader
	fd     int
	reader *bufio.Reader
	out    io.Writer
	tty    bool
}

// NewTerminal prompts on stdin, writing questions to out.
func NewTerminal(out io.Writer) *Terminal {
	fd := int(os.Stdin.Fd())
	return &Terminal{
		in:     os.Stdin,
		fd:     fd,
		reader: bufio.NewReader(os.Stdin),
		out:    out,
		tty:    term.IsTerminal(fd),
	}
}

// NewLineTerminal prompts with plain line input read from in.
func NewLineTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: in, fd: -1, reader: bufio.NewReader(in), out: out}
}

func (t *Terminal) readLine() (string, error) {
	line, err := t.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimSpace(line), nil
		}
		if errors.Is(err, io.EOF) {
			return "", ErrAborted
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (t *Terminal) Ask(label, def string, validate func(string) error) (string, error) {
	for {
		if def != "" {
			fmt.Fprintf(t.out, "%s (%s): ", label, def)
		} else {
			fmt.Fprintf(t.out, "%s: ", label)
		}
		answer, err := t.readLine()
		if err != nil {
			return "", err
		}
		if answer == "" {
			answer = def
		}
		if validate == nil {
			return answer, nil
		}
		if err := validate(answer); err != nil {
			fmt.Fprintf(t.out, "  %v\n", err)
			continue
		}
		return answer, nil
	}
}

func (t *Terminal) Confirm(label string, def bool) (bool, error) {
	hint := "y/N"
	if def {
		hint = "Y/n"
	}
	for {
		fmt.Fprintf(t.out, "%s [%s]: ", label, hint)
		answer, err := t.readLine()
		if err != nil {
			return false, err
		}
		if v, ok := parseYesNo(answer, def); ok {
			return v, nil
		}
		fmt.Fprintln(t.out, "  please answer y or n")
	}
}

func (t *Terminal) Secret(label string) (string, error) {
	if !t.tty {
		fmt.Fprintf(t.out, "%s: ", label)
		return t.readLine()
	}

	fmt.Fprintf(t.out, "%s: ", label)
	secret, err := term.ReadPassword(t.fd)
	fmt.Fprintln(t.out)
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	return strings.TrimSpace(string(secret)), nil
}

func (t *Terminal) Select(label string, options []string, def int) (int, error) {
	if len(options) == 0 {
		return 0, fmt.Errorf("select %q: no options", label)
	}
	if t.tty {
		chosen, err := runList(t.in, t.out, label, options, false, def)
		if err != nil {
			return 0, err
		}
		return chosen[0], nil
	}

	printNumbered(t.out, label, options)
	answer, err := t.Ask("Choice", strconv.Itoa(def+1), func(s string) error {
		_, err := parseChoices(s, len(options), false)
		return err
	})
	if err != nil {
		return 0, err
	}
	chosen, _ := parseChoices(answer, len(options), false)
	return chosen[0], nil
}

func (t *Terminal) MultiSelect(label string, options []string) ([]int, error) {
	if len(options) == 0 {
		return nil, nil
	}
	if t.tty {
		return runList(t.in, t.out, label, options, true, 0)
	}

	printNumbered(t.out, label, options)
	answer, err := t.Ask("Choices (comma separated, empty for none)", "", func(s string) error {
		_, err := parseChoices(s, len(options), true)
		return err
	})
	if err != nil {
		return nil, err
	}
	return parseChoices(answer, len(options), true)
}

func printNumbered(w io.Writer, label string, options []string) {
	fmt.Fprintln(w, label)
	for i, opt := range options {
		fmt.Fprintf(w, "  %d) %s\n", i+1, opt)
	}
}

// parseChoices parses "1, 3" into zero-based indexes in option order.
func parseChoices(s string, n int, multi bool) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		if multi {
			return nil, nil
		}
		return nil, errors.New("a choice is required")
	}

	seen := make(map[int]bool)
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		i, err := strconv.Atoi(field)
		if err != nil || i < 1 || i > n {
			return nil, fmt.Errorf("%q is not a number between 1 and %d", field, n)
		}
		seen[i-1] = true
	}
	if !multi && len(seen) != 1 {
		return nil, errors.New("choose exactly one option")
	}

	out := make([]int, 0, len(seen))
	for i := 0; i < n; i++ {
		if seen[i] {
			out = append(out, i)
		}
	}
	return out, nil
}

func parseYesNo(s string, def bool) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return def, true
	case "y", "yes":
		return true, true
	case "n", "no":
		return false, true
	}
	return false, false
}
