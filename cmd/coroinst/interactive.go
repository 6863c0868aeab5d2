package main

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/wippyai/resumable/coroutine"
	"github.com/wippyai/resumable/vm"
)

type keyMap struct {
	Step  key.Binding
	Reset key.Binding
	Up    key.Binding
	Down  key.Binding
	Quit  key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Step, k.Reset, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Step, k.Reset}, {k.Up, k.Down, k.Quit}}
}

var keys = keyMap{
	Step:  key.NewBinding(key.WithKeys("n", " ", "enter"), key.WithHelp("n/space", "run until next suspend")),
	Reset: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "restart")),
	Up:    key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "scroll up")),
	Down:  key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "scroll down")),
	Quit:  key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

type stepperModel struct {
	err       error
	opts      *options
	machine   *vm.Machine
	thread    *vm.Thread
	co        *coroutine.Coroutine
	out       *bytes.Buffer
	view      viewport.Model
	help      help.Model
	class     string
	runs      int
	stackSize int
	plain     bool
	ready     bool
}

type stepMsg struct {
	err error
}

func newStepperModel(opts *options, class string, stackSize int, plain bool) *stepperModel {
	return &stepperModel{
		opts:      opts,
		class:     class,
		stackSize: stackSize,
		plain:     plain,
		help:      help.New(),
	}
}

func (m *stepperModel) Init() tea.Cmd {
	return m.reset
}

func (m *stepperModel) reset() tea.Msg {
	m.out = &bytes.Buffer{}
	m.machine = m.opts.newMachine(m.out, m.plain)
	m.runs = 0
	th, co, err := newCoroutine(context.Background(), m.machine, m.class, m.stackSize)
	if err != nil {
		return stepMsg{err: err}
	}
	m.thread, m.co = th, co
	return stepMsg{}
}

func (m *stepperModel) step() tea.Msg {
	if m.co == nil || m.co.State() == coroutine.StateFinished {
		return stepMsg{}
	}
	m.runs++
	return stepMsg{err: m.co.Run(m.thread)}
}

func (m *stepperModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		height := msg.Height - 6
		if height < 3 {
			height = 3
		}
		if !m.ready {
			m.view = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.view.Width = msg.Width
			m.view.Height = height
		}
		m.help.Width = msg.Width
		m.refresh()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Step):
			return m, m.step
		case key.Matches(msg, keys.Reset):
			m.err = nil
			return m, m.reset
		}

	case stepMsg:
		m.err = msg.err
		m.refresh()
		return m, nil
	}

	var cmd tea.Cmd
	if m.ready {
		m.view, cmd = m.view.Update(msg)
	}
	return m, cmd
}

func (m *stepperModel) refresh() {
	if !m.ready {
		return
	}
	var b strings.Builder
	if m.co != nil {
		b.WriteString(titleStyle.Render("Saved frames"))
		b.WriteString("\n")
		if frames := m.co.Stack().Frames(); len(frames) > 0 && m.co.State() == coroutine.StateSuspended {
			b.WriteString(describeFrames(frames))
		} else {
			b.WriteString(helpStyle.Render("(none)"))
			b.WriteString("\n")
		}
	}
	if m.out != nil {
		b.WriteString("\n")
		b.WriteString(titleStyle.Render("Output"))
		b.WriteString("\n")
		b.WriteString(m.out.String())
	}
	m.view.SetContent(b.String())
	m.view.GotoBottom()
}

func (m *stepperModel) View() string {
	if !m.ready {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Coroutine"))
	b.WriteString(" ")
	b.WriteString(m.class)
	if m.co != nil {
		state := m.co.State().String()
		style := skipStyle
		if m.co.State() == coroutine.StateFinished {
			style = okStyle
		}
		b.WriteString(fmt.Sprintf("  %s  runs: %d", style.Render(state), m.runs))
	}
	b.WriteString("\n\n")
	b.WriteString(m.view.View())
	b.WriteString("\n")
	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n")
	}
	b.WriteString(m.help.View(keys))
	return b.String()
}

func runInteractive(opts *options, class string, stackSize int, plain bool) error {
	p := tea.NewProgram(newStepperModel(opts, class, stackSize, plain), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
