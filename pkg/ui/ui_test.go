package ui

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/chat-popup/pkg/events"
	"github.com/go-go-golems/chat-popup/pkg/gateway"
	"github.com/go-go-golems/chat-popup/pkg/orchestrator"
	"github.com/go-go-golems/chat-popup/pkg/session"
	"github.com/go-go-golems/chat-popup/pkg/transcript"
)

type echoGateway struct{}

func (echoGateway) CreateSession(ctx context.Context, seed string) (gateway.Session, error) {
	return gateway.Session{ID: "s1"}, nil
}

func (echoGateway) SendText(ctx context.Context, sessionID, text string) (gateway.BotReply, error) {
	return gateway.BotReply{Content: "**echo** " + text}, nil
}

func (echoGateway) UploadAttachment(ctx context.Context, sessionID string, a *gateway.Attachment) (gateway.Ack, error) {
	return gateway.Ack{StatusCode: 200, Accepted: true}, nil
}

func newTestModel(t *testing.T) (Model, *orchestrator.Orchestrator) {
	t.Helper()
	o, err := orchestrator.New(orchestrator.Config{Store: session.NewMemoryStore(), Gateway: echoGateway{}})
	require.NoError(t, err)
	r, err := NewRenderer("notty", 60)
	require.NoError(t, err)
	return NewModel(context.Background(), o, r), o
}

func waitIdle(t *testing.T, o *orchestrator.Orchestrator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, o.Wait(ctx))
}

func typeAndEnter(m Model, text string) Model {
	m.input.SetValue(text)
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(Model)
}

func TestRenderer_Entries(t *testing.T) {
	r, err := NewRenderer("notty", 60)
	require.NoError(t, err)

	out := r.Entries([]transcript.Entry{
		{Role: transcript.RoleUser, Content: "hi", Attachment: &transcript.AttachmentRef{Name: "r.pdf"}},
		{Role: transcript.RoleBot, Content: "# Title\n\nsome *text*", Status: transcript.StatusFinal},
		{Role: transcript.RoleBot, Content: "Thinking...", Status: transcript.StatusPending},
	})
	require.Contains(t, out, "You: hi")
	require.Contains(t, out, "r.pdf")
	require.Contains(t, out, "Title")
	require.Contains(t, out, "some")
	require.Contains(t, out, "Thinking...")
}

func TestRenderer_Resize(t *testing.T) {
	r, err := NewRenderer("dark", 0)
	require.NoError(t, err)
	require.Equal(t, defaultWidth, r.Width())
	r.Resize(40)
	require.Equal(t, 40, r.Width())
	r.Resize(-1)
	require.Equal(t, 40, r.Width())
}

func TestSaveMarkdown(t *testing.T) {
	dir := t.TempDir()
	p, err := SaveMarkdown(filepath.Join(dir, "out", "report.md"), "# Report")
	require.NoError(t, err)
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	require.Equal(t, "# Report", string(b))

	_, err = SaveMarkdown(filepath.Join(dir, "empty.md"), "  ")
	require.Error(t, err)
}

func TestCopyToClipboard(t *testing.T) {
	var got string
	old := writeClipboard
	writeClipboard = func(s string) error { got = s; return nil }
	t.Cleanup(func() { writeClipboard = old })

	require.NoError(t, CopyToClipboard("reply"))
	require.Equal(t, "reply", got)
	require.Error(t, CopyToClipboard(""))

	writeClipboard = func(string) error { return errors.New("no clipboard") }
	require.Error(t, CopyToClipboard("reply"))
}

type recordingSender struct {
	msgs []tea.Msg
}

func (s *recordingSender) Send(msg tea.Msg) { s.msgs = append(s.msgs, msg) }

func TestTranscriptForwardFunc(t *testing.T) {
	s := &recordingSender{}
	fn := TranscriptForwardFunc(s)

	ev := events.TranscriptEvent{Seq: 7, Kind: "resolved", EntryID: "e1", Content: "done"}
	payload := []byte(`{"seq":7,"kind":"resolved","entry_id":"e1","content":"done"}`)
	require.NoError(t, fn(message.NewMessage(watermill.NewUUID(), payload)))
	require.Error(t, fn(message.NewMessage(watermill.NewUUID(), []byte("{"))))

	require.Len(t, s.msgs, 1)
	got := s.msgs[0].(TranscriptChangedMsg)
	require.Equal(t, ev.Seq, got.Event.Seq)
	require.Equal(t, ev.EntryID, got.Event.EntryID)
	require.Equal(t, ev.Content, got.Event.Content)
}

func TestModel_SubmitAndRender(t *testing.T) {
	m, o := newTestModel(t)

	m = typeAndEnter(m, "hello")
	require.Equal(t, "", m.input.Value())
	waitIdle(t, o)

	next, _ := m.Update(TranscriptChangedMsg{})
	m = next.(Model)
	view := m.View()
	require.Contains(t, view, "You: hello")
	require.Contains(t, view, "echo")
	require.Equal(t, 2, o.Transcript().Len())
}

func TestModel_BlankEnterIsIgnored(t *testing.T) {
	m, o := newTestModel(t)
	m = typeAndEnter(m, "   ")
	require.Equal(t, "   ", m.input.Value())
	require.Equal(t, 0, o.Transcript().Len())
}

func TestModel_AttachSaveClear(t *testing.T) {
	m, o := newTestModel(t)
	dir := t.TempDir()
	file := filepath.Join(dir, "esg.csv")
	require.NoError(t, os.WriteFile(file, []byte("a,b"), 0o600))

	m = typeAndEnter(m, "/save")
	require.Contains(t, m.Status(), "attach a file")

	m = typeAndEnter(m, "/attach "+file)
	require.Equal(t, "esg.csv", o.StagedAttachment().Name)
	require.Contains(t, m.View(), "esg.csv")

	m = typeAndEnter(m, "/save")
	require.Contains(t, m.Status(), "no reply")

	m = typeAndEnter(m, "/clear")
	require.Nil(t, o.StagedAttachment())

	m = typeAndEnter(m, "/attach "+filepath.Join(dir, "missing.csv"))
	require.Nil(t, o.StagedAttachment())
	require.NotEmpty(t, m.Status())

	m = typeAndEnter(m, "/bogus")
	require.Contains(t, m.Status(), "unknown command")
}

func TestModel_SaveAfterReplyWithStagedFile(t *testing.T) {
	m, o := newTestModel(t)
	dir := t.TempDir()
	file := filepath.Join(dir, "esg.csv")
	require.NoError(t, os.WriteFile(file, []byte("a,b"), 0o600))

	m = typeAndEnter(m, "summarize")
	waitIdle(t, o)
	m = typeAndEnter(m, "/attach "+file)

	out := filepath.Join(dir, "report.md")
	m = typeAndEnter(m, "/save "+out)
	require.Contains(t, m.Status(), "saved")
	b, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, "**echo** summarize", string(b))
}

func TestModel_CopyUsesLastReply(t *testing.T) {
	var got string
	old := writeClipboard
	writeClipboard = func(s string) error { got = s; return nil }
	t.Cleanup(func() { writeClipboard = old })

	m, o := newTestModel(t)
	m = typeAndEnter(m, "/copy")
	require.Contains(t, m.Status(), "no reply")

	m = typeAndEnter(m, "x")
	waitIdle(t, o)
	m = typeAndEnter(m, "/copy")
	require.Equal(t, "**echo** x", got)
}

func TestModel_TogglePanel(t *testing.T) {
	m, o := newTestModel(t)
	require.True(t, m.Open())

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlT})
	m = next.(Model)
	require.False(t, m.Open())
	require.Contains(t, m.View(), "ctrl+t")

	// typing while collapsed does nothing
	m = typeAndEnter(m, "hidden")
	require.Equal(t, 0, o.Transcript().Len())

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlT})
	m = next.(Model)
	require.True(t, m.Open())

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = next.(Model)
	require.False(t, m.Open())
}

func TestModel_WindowResize(t *testing.T) {
	m, _ := newTestModel(t)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m = next.(Model)
	require.Equal(t, 96, m.renderer.Width())
	require.Equal(t, 23, m.viewport.Height)
	for _, line := range strings.Split(m.View(), "\n") {
		require.LessOrEqual(t, len([]rune(line)), 120)
	}
}

func TestModel_QuitKeys(t *testing.T) {
	m, _ := newTestModel(t)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	require.IsType(t, tea.QuitMsg{}, cmd())

	m.input.SetValue("/quit")
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	require.IsType(t, tea.QuitMsg{}, cmd())
}
