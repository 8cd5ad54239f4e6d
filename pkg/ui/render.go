package ui

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chat-popup/pkg/transcript"
)

const defaultWidth = 80

var (
	userLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	botLabelStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	pendingStyle   = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("8"))
	fileStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
)

// Renderer turns transcript entries into terminal text. Bot replies are
// markdown and go through glamour; user text is shown as typed.
type Renderer struct {
	md    *glamour.TermRenderer
	style string
	width int
}

// NewRenderer builds a renderer for a glamour style (auto, dark, light,
// notty) wrapping at width.
func NewRenderer(style string, width int) (*Renderer, error) {
	if width <= 0 {
		width = defaultWidth
	}
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	switch strings.ToLower(strings.TrimSpace(style)) {
	case "", "auto":
		style = "auto"
		opts = append(opts, glamour.WithAutoStyle())
	default:
		opts = append(opts, glamour.WithStandardStyle(style))
	}
	md, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return nil, err
	}
	return &Renderer{md: md, style: style, width: width}, nil
}

func (r *Renderer) Width() int { return r.width }

// Resize rebuilds the markdown renderer when the wrap width changes.
func (r *Renderer) Resize(width int) {
	if width <= 0 || width == r.width {
		return
	}
	nr, err := NewRenderer(r.style, width)
	if err != nil {
		log.Warn().Err(err).Int("width", width).Msg("could not resize markdown renderer")
		return
	}
	*r = *nr
}

// Markdown renders s, falling back to the raw text when glamour fails.
func (r *Renderer) Markdown(s string) string {
	out, err := r.md.Render(s)
	if err != nil {
		log.Debug().Err(err).Msg("markdown render failed, showing raw text")
		return s
	}
	return strings.Trim(out, "\n")
}

func (r *Renderer) Entry(e transcript.Entry) string {
	var b strings.Builder
	switch e.Role {
	case transcript.RoleUser:
		b.WriteString(userLabelStyle.Render("You:"))
		b.WriteString(" ")
		b.WriteString(e.Content)
	default:
		b.WriteString(botLabelStyle.Render("Bot:"))
		if e.IsPending() {
			b.WriteString(" ")
			b.WriteString(pendingStyle.Render(e.Content))
		} else {
			b.WriteString("\n")
			b.WriteString(r.Markdown(e.Content))
		}
	}
	if e.Attachment != nil {
		b.WriteString("\n")
		b.WriteString(fileStyle.Render("📎 " + e.Attachment.Name))
	}
	return b.String()
}

func (r *Renderer) Entries(entries []transcript.Entry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, r.Entry(e))
	}
	return strings.Join(parts, "\n\n")
}
