package ui

import (
	"github.com/ThreeDotsLabs/watermill/message"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chat-popup/pkg/events"
)

// Sender is the part of *tea.Program the forwarder needs.
type Sender interface {
	Send(msg tea.Msg)
}

var _ Sender = &tea.Program{}

// TranscriptChangedMsg tells the chat model that the transcript changed.
type TranscriptChangedMsg struct {
	Event events.TranscriptEvent
}

// TranscriptForwardFunc forwards watermill transcript events to the UI by
// turning them into bubbletea messages and injecting them into p.
func TranscriptForwardFunc(p Sender) func(msg *message.Message) error {
	return func(msg *message.Message) error {
		msg.Ack()

		ev, err := events.Decode(msg)
		if err != nil {
			log.Error().Err(err).Str("payload", string(msg.Payload)).Msg("Failed to parse transcript event")
			return err
		}
		log.Debug().Uint64("seq", ev.Seq).Str("kind", ev.Kind).Str("entry_id", ev.EntryID).Msg("Dispatching transcript event to UI")
		p.Send(TranscriptChangedMsg{Event: ev})
		return nil
	}
}
