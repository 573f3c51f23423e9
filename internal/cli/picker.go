package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	pickerTitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FFA07A")).
				Bold(true).
				Padding(0, 1)
	pickerSelectedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FFA07A")).
				Bold(true)
	pickerMutedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#808080"))
)

type pickerKeys struct {
	Up     key.Binding
	Down   key.Binding
	Choose key.Binding
	Cancel key.Binding
}

var defaultPickerKeys = pickerKeys{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	Choose: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "choose"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("esc", "q", "ctrl+c"),
		key.WithHelp("esc/q", "use default"),
	),
}

// pickerModel lets the user choose the vault before a run starts
type pickerModel struct {
	profiles []string
	def      string
	cursor   int
	chosen   string
	done     bool
	keys     pickerKeys
}

func newPickerModel(profiles []string, def string) pickerModel {
	m := pickerModel{profiles: profiles, def: def, keys: defaultPickerKeys}
	for i, p := range profiles {
		if p == def {
			m.cursor = i
		}
	}
	return m
}

func (m pickerModel) Init() tea.Cmd {
	return nil
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch {
	case key.Matches(keyMsg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(keyMsg, m.keys.Down):
		if m.cursor < len(m.profiles)-1 {
			m.cursor++
		}
	case key.Matches(keyMsg, m.keys.Choose):
		if len(m.profiles) > 0 {
			m.chosen = m.profiles[m.cursor]
		}
		m.done = true
		return m, tea.Quit
	case key.Matches(keyMsg, m.keys.Cancel):
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m pickerModel) View() string {
	if m.done {
		return ""
	}

	var b strings.Builder
	b.WriteString(pickerTitleStyle.Render("Search which vault?"))
	b.WriteString("\n\n")
	for i, p := range m.profiles {
		line := "  " + p
		if p == m.def {
			line += pickerMutedStyle.Render(" (default)")
		}
		if i == m.cursor {
			line = pickerSelectedStyle.Render("> " + p)
			if p == m.def {
				line += pickerMutedStyle.Render(" (default)")
			}
		}
		b.WriteString(line + "\n")
	}

	help := []string{}
	for _, k := range []key.Binding{m.keys.Up, m.keys.Down, m.keys.Choose, m.keys.Cancel} {
		h := k.Help()
		help = append(help, h.Key+" "+h.Desc)
	}
	b.WriteString("\n" + pickerMutedStyle.Render(strings.Join(help, " • ")) + "\n")
	return b.String()
}

// pickProfile shows the picker and returns the chosen profile, or "" when
// the user backs out
func pickProfile(profiles []string, def string, in io.Reader, out io.Writer) (string, error) {
	p := tea.NewProgram(newPickerModel(profiles, def), tea.WithInput(in), tea.WithOutput(out))
	final, err := p.Run()
	if err != nil {
		return "", fmt.Errorf("profile picker failed: %w", err)
	}
	m, ok := final.(pickerModel)
	if !ok {
		return "", nil
	}
	return m.chosen, nil
}
