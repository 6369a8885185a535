package prompt

import (
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	labelStyle    = lipgloss.NewStyle().Bold(true)
	cursorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	hintStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// listModel is a bubbletea model for single and multiple choice lists.
type listModel struct {
	label   string
	options []string
	multi   bool

	cursor  int
	chosen  map[int]bool
	done    bool
	aborted bool
}

func newListModel(label string, options []string, multi bool, cursor int) listModel {
	if cursor < 0 || cursor >= len(options) {
		cursor = 0
	}
	return listModel{
		label:   label,
		options: options,
		multi:   multi,
		cursor:  cursor,
		chosen:  make(map[int]bool),
	}
}

func (m listModel) Init() tea.Cmd { return nil }

func (m listModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch key.String() {
	case "ctrl+c", "esc", "q":
		m.aborted = true
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.options)-1 {
			m.cursor++
		}
	case " ":
		if m.multi {
			m.chosen[m.cursor] = !m.chosen[m.cursor]
		}
	case "a":
		if m.multi {
			all := len(m.selection()) < len(m.options)
			for i := range m.options {
				m.chosen[i] = all
			}
		}
	case "enter":
		if !m.multi {
			m.chosen = map[int]bool{m.cursor: true}
		}
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m listModel) View() string {
	if m.done || m.aborted {
		return ""
	}

	var b strings.Builder
	b.WriteString(labelStyle.Render(m.label))
	b.WriteString("\n")
	for i, opt := range m.options {
		pointer := "  "
		if i == m.cursor {
			pointer = cursorStyle.Render("> ")
		}
		box := ""
		if m.multi {
			box = "[ ] "
			if m.chosen[i] {
				box = selectedStyle.Render("[x] ")
			}
		}
		fmt.Fprintf(&b, "%s%s%s\n", pointer, box, opt)
	}
	if m.multi {
		b.WriteString(hintStyle.Render("space: toggle  a: all  enter: confirm  esc: cancel"))
	} else {
		b.WriteString(hintStyle.Render("enter: choose  esc: cancel"))
	}
	b.WriteString("\n")
	return b.String()
}

// selection returns chosen indexes in option order.
func (m listModel) selection() []int {
	var out []int
	for i := range m.options {
		if m.chosen[i] {
			out = append(out, i)
		}
	}
	return out
}

func runList(in io.Reader, out io.Writer, label string, options []string, multi bool, cursor int) ([]int, error) {
	program := tea.NewProgram(newListModel(label, options, multi, cursor), tea.WithInput(in), tea.WithOutput(out))
	final, err := program.Run()
	if err != nil {
		return nil, fmt.Errorf("run prompt: %w", err)
	}

	m := final.(listModel)
	if m.aborted {
		return nil, ErrAborted
	}

	chosen := m.selection()
	for _, i := range chosen {
		fmt.Fprintf(out, "%s %s\n", selectedStyle.Render("✓"), options[i])
	}
	return chosen, nil
}
