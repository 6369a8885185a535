// Package console prints the colored, human-facing status lines of a
// homeproxy run. Diagnostics belong in the zerolog logger; the console is
// what the operator reads while answering prompts.
package console

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Console writes styled lines to an output stream. Colors are dropped
// automatically when the stream is not a terminal.
type Console struct {
	out io.Writer

	step    lipgloss.Style
	success lipgloss.Style
	warn    lipgloss.Style
	fail    lipgloss.Style
	info    lipgloss.Style
	detail  lipgloss.Style
	plain   lipgloss.Style
}

// New creates a Console writing to w.
func New(w io.Writer) *Console {
	r := lipgloss.NewRenderer(w)
	return &Console{
		out:     w,
		step:    r.NewStyle().Foreground(lipgloss.Color("3")).Bold(true),
		success: r.NewStyle().Foreground(lipgloss.Color("2")),
		warn:    r.NewStyle().Foreground(lipgloss.Color("3")),
		fail:    r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		info:    r.NewStyle().Foreground(lipgloss.Color("6")),
		detail:  r.NewStyle().Foreground(lipgloss.Color("8")),
		plain:   r.NewStyle().Foreground(lipgloss.Color("7")),
	}
}

// Stdout returns a Console on os.Stdout.
func Stdout() *Console {
	return New(os.Stdout)
}

// Discard returns a Console that prints nothing.
func Discard() *Console {
	return New(io.Discard)
}

// Writer exposes the underlying stream, e.g. for prompts.
func (c *Console) Writer() io.Writer {
	return c.out
}

// Step announces an external call or a new phase of the run.
func (c *Console) Step(format string, args ...any) {
	c.line(c.step, "\n==> ", format, args...)
}

func (c *Console) Success(format string, args ...any) {
	c.line(c.success, "✓ ", format, args...)
}

func (c *Console) Warn(format string, args ...any) {
	c.line(c.warn, "! ", format, args...)
}

func (c *Console) Fail(format string, args ...any) {
	c.line(c.fail, "✗ ", format, args...)
}

func (c *Console) Info(format string, args ...any) {
	c.line(c.info, "", format, args...)
}

// Detail prints indented secondary information.
func (c *Console) Detail(format string, args ...any) {
	c.line(c.detail, "   ", format, args...)
}

// Plain prints an unprefixed line.
func (c *Console) Plain(format string, args ...any) {
	c.line(c.plain, "", format, args...)
}

// Rule prints a horizontal separator of width n.
func (c *Console) Rule(n int) {
	fmt.Fprintln(c.out, c.detail.Render(strings.Repeat("━", n)))
}

// Blank prints an empty line.
func (c *Console) Blank() {
	fmt.Fprintln(c.out)
}

func (c *Console) line(style lipgloss.Style, prefix, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	lead := ""
	if strings.HasPrefix(prefix, "\n") {
		lead = "\n"
		prefix = strings.TrimPrefix(prefix, "\n")
	}
	fmt.Fprintln(c.out, lead+style.Render(prefix+msg))
}
