package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chat-popup/pkg/gateway"
	"github.com/go-go-golems/chat-popup/pkg/orchestrator"
	"github.com/go-go-golems/chat-popup/pkg/transcript"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Padding(0, 1).Background(lipgloss.Color("4")).Foreground(lipgloss.Color("15"))
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	panelStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	launcherText = "💬 Chat (ctrl+t to open)"
)

const helpText = "enter send · /attach PATH · /clear · /copy · /save [PATH] · ctrl+t hide · ctrl+c quit"

// Model is the terminal chat panel. All transcript mutations go through the
// orchestrator; the model only re-renders when told the transcript changed.
type Model struct {
	ctx        context.Context
	orch       *orchestrator.Orchestrator
	transcript *transcript.Transcript
	renderer   *Renderer

	input    textinput.Model
	viewport viewport.Model

	open   bool
	width  int
	height int
	status string
	err    bool
}

type ModelOption func(*Model)

// WithClosed starts with the panel collapsed to its launcher line.
func WithClosed() ModelOption {
	return func(m *Model) { m.open = false }
}

func NewModel(ctx context.Context, orch *orchestrator.Orchestrator, renderer *Renderer, opts ...ModelOption) Model {
	ti := textinput.New()
	ti.Placeholder = "Type a message..."
	ti.Prompt = "> "
	ti.CharLimit = 4000
	ti.Focus()

	width := renderer.Width()
	m := Model{
		ctx:        ctx,
		orch:       orch,
		transcript: orch.Transcript(),
		renderer:   renderer,
		input:      ti,
		viewport:   viewport.New(width, 15),
		open:       true,
		width:      width,
		height:     20,
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		m.refresh()
		return m, nil

	case TranscriptChangedMsg:
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "ctrl+t":
			m.open = !m.open
			if m.open {
				m.input.Focus()
				m.refresh()
			} else {
				m.input.Blur()
			}
			return m, nil
		case "esc":
			if m.open {
				m.open = false
				m.input.Blur()
			}
			return m, nil
		}
		if !m.open {
			return m, nil
		}
		if msg.Type == tea.KeyEnter {
			return m.submit()
		}
		switch msg.String() {
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	line := m.input.Value()
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "/") {
		m.input.SetValue("")
		return m.command(trimmed)
	}

	sub := m.orch.SubmitStaged(m.ctx, line)
	if sub == nil {
		// blank input and nothing staged
		return m, nil
	}
	m.input.SetValue("")
	m.setStatus("", false)
	log.Debug().Str("submission_id", sub.ID).Msg("submitted from chat panel")
	m.refresh()
	return m, nil
}

func (m Model) command(line string) (tea.Model, tea.Cmd) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return m, tea.Quit

	case "/attach":
		if arg == "" {
			m.setStatus("usage: /attach PATH", true)
			return m, nil
		}
		att, err := gateway.AttachmentFromFile(arg)
		if err != nil {
			m.setStatus(err.Error(), true)
			return m, nil
		}
		m.orch.StageAttachment(att)
		m.setStatus(fmt.Sprintf("attached %s", att.Name), false)

	case "/clear":
		m.orch.ClearAttachment()
		m.setStatus("attachment cleared", false)

	case "/copy":
		reply, ok := m.transcript.LastBotReply()
		if !ok {
			m.setStatus("no reply to copy", true)
			return m, nil
		}
		if err := CopyToClipboard(reply.Content); err != nil {
			m.setStatus(err.Error(), true)
			return m, nil
		}
		m.setStatus("copied last reply", false)

	case "/save":
		if m.orch.StagedAttachment() == nil {
			m.setStatus("attach a file to enable saving the report", true)
			return m, nil
		}
		reply, ok := m.transcript.LastBotReply()
		if !ok {
			m.setStatus("no reply to save", true)
			return m, nil
		}
		path, err := SaveMarkdown(arg, reply.Content)
		if err != nil {
			m.setStatus(err.Error(), true)
			return m, nil
		}
		m.setStatus("saved "+path, false)

	default:
		m.setStatus(fmt.Sprintf("unknown command %s", name), true)
	}
	return m, nil
}

func (m *Model) setStatus(s string, isErr bool) {
	m.status = s
	m.err = isErr
}

func (m *Model) layout() {
	// border and padding
	inner := m.width - 4
	if inner < 20 {
		inner = 20
	}
	m.renderer.Resize(inner)
	m.viewport.Width = inner
	// title, footer, input, border
	h := m.height - 7
	if h < 3 {
		h = 3
	}
	m.viewport.Height = h
	m.input.Width = inner - len(m.input.Prompt) - 1
}

// refresh re-renders the transcript and scrolls to the newest entry.
func (m *Model) refresh() {
	entries := m.transcript.Entries()
	if len(entries) == 0 {
		m.viewport.SetContent(statusStyle.Render("Ask me anything, or /attach a report."))
		return
	}
	m.viewport.SetContent(m.renderer.Entries(entries))
	m.viewport.GotoBottom()
}

func (m Model) footer() string {
	var parts []string
	if att := m.orch.StagedAttachment(); att != nil {
		parts = append(parts, fileStyle.Render("📎 "+att.Name))
	}
	if m.orch.Busy() {
		n := m.orch.QueueLen()
		if n > 0 {
			parts = append(parts, statusStyle.Render(fmt.Sprintf("waiting for reply (%d queued)", n)))
		} else {
			parts = append(parts, statusStyle.Render("waiting for reply"))
		}
	}
	if m.status != "" {
		if m.err {
			parts = append(parts, errorStyle.Render(m.status))
		} else {
			parts = append(parts, statusStyle.Render(m.status))
		}
	}
	if len(parts) == 0 {
		return statusStyle.Render(helpText)
	}
	return strings.Join(parts, "  ")
}

func (m Model) View() string {
	if !m.open {
		return titleStyle.Render(launcherText) + "\n"
	}
	body := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Chat"),
		m.viewport.View(),
		m.footer(),
		m.input.View(),
	)
	return panelStyle.Render(body) + "\n"
}

// Open reports whether the panel is expanded.
func (m Model) Open() bool { return m.open }

// Status is the last feedback line shown in the footer.
func (m Model) Status() string { return m.status }
