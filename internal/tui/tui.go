// Package tui is a terminal chat front end for a running DeepHat server.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"deephat/internal/client"
)

// historyWindow is how many prior messages accompany each request.
const historyWindow = 10

var (
	titleStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("52")).
			Foreground(lipgloss.Color("230")).
			Padding(0, 1).
			Bold(true)
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	docStyle       = lipgloss.NewStyle().Padding(1, 2)
)

// Streamer delivers a reply token by token.
type Streamer interface {
	Stream(ctx context.Context, message string, history []client.Message, onToken func(string)) error
}

type tokenMsg string

type streamDoneMsg struct{ err error }

type Model struct {
	streamer Streamer
	input    textinput.Model
	spinner  spinner.Model

	messages []client.Message
	partial  strings.Builder
	events   chan tea.Msg
	cancel   context.CancelFunc
	waiting  bool
	err      error
	width    int
}

func New(s Streamer) *Model {
	ti := textinput.New()
	ti.Placeholder = "Ask about a host, a service or a hardening step"
	ti.Prompt = "> "
	ti.CharLimit = 4000
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return &Model{streamer: s, input: ti, spinner: sp, width: 80}
}

func (m *Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.stop()
			return m, tea.Quit
		case tea.KeyEnter:
			return m, m.submit(strings.TrimSpace(m.input.Value()))
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = msg.Width - 8

	case tokenMsg:
		m.partial.WriteString(string(msg))
		return m, waitFor(m.events)

	case streamDoneMsg:
		m.waiting = false
		m.cancel()
		if msg.err != nil {
			// Drop the unanswered turn so history keeps alternating, and
			// hand the text back for a retry.
			m.err = msg.err
			if n := len(m.messages); n > 0 && m.messages[n-1].Role == "user" {
				m.input.SetValue(m.messages[n-1].Content)
				m.messages = m.messages[:n-1]
			}
		} else {
			m.messages = append(m.messages, client.Message{Role: "assistant", Content: m.partial.String()})
		}
		m.partial.Reset()
		return m, nil

	case spinner.TickMsg:
		if !m.waiting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit starts streaming a reply to text. Input typed while a reply is in
// flight is ignored.
func (m *Model) submit(text string) tea.Cmd {
	if text == "" || m.waiting {
		return nil
	}
	m.input.Reset()
	if text == "/clear" {
		m.messages = nil
		m.err = nil
		return nil
	}

	history := recent(m.messages, historyWindow)
	m.messages = append(m.messages, client.Message{Role: "user", Content: text})
	m.err = nil
	m.waiting = true

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	events := make(chan tea.Msg, 64)
	m.events = events

	go func() {
		defer close(events)
		err := m.streamer.Stream(ctx, text, history, func(tok string) {
			select {
			case events <- tokenMsg(tok):
			case <-ctx.Done():
			}
		})
		select {
		case events <- streamDoneMsg{err: err}:
		case <-ctx.Done():
		}
	}()

	return tea.Batch(m.spinner.Tick, waitFor(events))
}

func (m *Model) stop() {
	if m.cancel != nil {
		m.cancel()
	}
}

func waitFor(events <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-events
		if !ok {
			return nil
		}
		return msg
	}
}

// recent returns a copy of the last n messages.
func recent(msgs []client.Message, n int) []client.Message {
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return append([]client.Message(nil), msgs...)
}

func (m *Model) View() string {
	wrap := lipgloss.NewStyle().Width(max(m.width-6, 20))

	var b strings.Builder
	b.WriteString(titleStyle.Render("DeepHat") + "\n\n")
	for _, msg := range m.messages {
		b.WriteString(renderMessage(wrap, msg.Role, msg.Content))
	}
	if m.waiting {
		if m.partial.Len() == 0 {
			b.WriteString(m.spinner.View() + " thinking...\n\n")
		} else {
			b.WriteString(renderMessage(wrap, "assistant", m.partial.String()))
		}
	}
	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("error: %v", m.err)) + "\n\n")
	}
	b.WriteString(m.input.View() + "\n")
	b.WriteString(helpStyle.Render("enter send • /clear reset • esc quit"))
	return docStyle.Render(b.String())
}

func renderMessage(wrap lipgloss.Style, role, content string) string {
	label := userStyle.Render("You")
	if role == "assistant" {
		label = assistantStyle.Render("DeepHat")
	}
	return label + "\n" + wrap.Render(content) + "\n\n"
}

// Run starts the chat UI and blocks until the user quits.
func Run(s Streamer) error {
	_, err := tea.NewProgram(New(s), tea.WithAltScreen()).Run()
	return err
}
