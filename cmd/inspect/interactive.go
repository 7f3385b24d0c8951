package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/typemesh/wirepack/reflector"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#5F5FD7")).
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#5F5FD7"))

	itemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type viewState int

const (
	stateSelectType viewState = iota
	stateShowLayout
	stateShowDemo
)

type inspectModel struct {
	cfg      config
	entries  []catalogEntry
	filter   textinput.Model
	selected int
	state    viewState
	layout   *reflector.Layout
	layName  string
	demoOut  string
	err      error
}

type demoDoneMsg struct {
	out string
	err error
}

func newInspectModel(cfg config) *inspectModel {
	filter := textinput.New()
	filter.Placeholder = "filter types"
	filter.Prompt = "/ "
	filter.CharLimit = 32

	return &inspectModel{
		cfg:     cfg,
		entries: catalog(),
		filter:  filter,
	}
}

func (m *inspectModel) Init() tea.Cmd {
	return nil
}

func (m *inspectModel) visible() []catalogEntry {
	needle := strings.ToLower(m.filter.Value())
	if needle == "" {
		return m.entries
	}
	var out []catalogEntry
	for _, e := range m.entries {
		if strings.Contains(strings.ToLower(e.name), needle) {
			out = append(out, e)
		}
	}
	return out
}

func (m *inspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case demoDoneMsg:
		m.demoOut, m.err = msg.out, msg.err
		m.state = stateShowDemo
		return m, nil

	case tea.KeyMsg:
		switch m.state {
		case stateSelectType:
			return m.updateSelect(msg)
		case stateShowLayout, stateShowDemo:
			switch msg.String() {
			case "q", "esc", "enter":
				m.state = stateSelectType
				m.err = nil
				return m, nil
			case "ctrl+c":
				return m, tea.Quit
			}
		}
	}
	return m, nil
}

func (m *inspectModel) updateSelect(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.filter.Focused() {
		switch msg.String() {
		case "enter", "esc":
			m.filter.Blur()
			return m, nil
		case "ctrl+c":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.filter, cmd = m.filter.Update(msg)
		m.selected = 0
		return m, cmd
	}

	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "/":
		m.filter.Focus()
		return m, textinput.Blink
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
	case "down", "j":
		if m.selected < len(m.visible())-1 {
			m.selected++
		}
	case "d":
		cfg := m.cfg
		return m, func() tea.Msg {
			out, err := captureDemo(cfg)
			return demoDoneMsg{out: out, err: err}
		}
	case "enter":
		visible := m.visible()
		if m.selected < len(visible) {
			e := visible[m.selected]
			m.layout, m.err = e.derive()
			m.layName = e.name
			m.state = stateShowLayout
		}
	}
	return m, nil
}

func (m *inspectModel) View() string {
	switch m.state {
	case stateShowLayout:
		if m.err != nil {
			return errorStyle.Render(fmt.Sprintf("%s: %v", m.layName, m.err)) +
				"\n\n" + helpStyle.Render("enter/esc: back  ctrl+c: quit") + "\n"
		}
		return renderLayout(m.layName, m.layout) +
			"\n\n" + helpStyle.Render("enter/esc: back  ctrl+c: quit") + "\n"

	case stateShowDemo:
		var b strings.Builder
		b.WriteString(titleStyle.Render("demo exchange") + "\n\n")
		if m.err != nil {
			b.WriteString(errorStyle.Render(m.err.Error()) + "\n")
		} else {
			b.WriteString(m.demoOut)
		}
		b.WriteString("\n" + helpStyle.Render("enter/esc: back  ctrl+c: quit") + "\n")
		return b.String()
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("wirepack layout inspector") + "\n\n")
	b.WriteString(m.filter.View() + "\n\n")
	for i, e := range m.visible() {
		line := "  " + e.name
		if i == m.selected {
			b.WriteString(selectedStyle.Render("> "+e.name) + "\n")
		} else {
			b.WriteString(itemStyle.Render(line) + "\n")
		}
	}
	b.WriteString("\n" + helpStyle.Render("up/down: move  enter: layout  /: filter  d: demo  q: quit") + "\n")
	return b.String()
}

func runInteractive(cfg config) error {
	p := tea.NewProgram(newInspectModel(cfg))
	_, err := p.Run()
	return err
}
