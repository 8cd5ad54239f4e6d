package events

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/go-go-golems/chat-popup/pkg/transcript"
)

// TopicTranscript carries one message per transcript change.
const TopicTranscript = "chat-popup.transcript"

const forwardBuffer = 256

// TranscriptEvent is the wire form of a transcript.Change. Seq increases by
// one per change of a given Forwarder; consumers of the in-memory bus may see
// events out of order and should use it to reorder or to re-read the
// transcript.
type TranscriptEvent struct {
	Seq        uint64    `json:"seq"`
	Kind       string    `json:"kind"`
	Index      int       `json:"index"`
	EntryID    string    `json:"entry_id"`
	Role       string    `json:"role"`
	Status     string    `json:"status"`
	Content    string    `json:"content"`
	Attachment string    `json:"attachment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func NewTranscriptEvent(seq uint64, c transcript.Change) TranscriptEvent {
	ev := TranscriptEvent{
		Seq:       seq,
		Kind:      string(c.Kind),
		Index:     c.Index,
		EntryID:   c.Entry.ID,
		Role:      string(c.Entry.Role),
		Status:    string(c.Entry.Status),
		Content:   c.Entry.Content,
		CreatedAt: c.Entry.CreatedAt,
	}
	if c.Entry.Attachment != nil {
		ev.Attachment = c.Entry.Attachment.Name
	}
	return ev
}

func (e TranscriptEvent) Pending() bool {
	return e.Status == string(transcript.StatusPending)
}

// Decode parses the payload of a message published on TopicTranscript.
func Decode(msg *message.Message) (TranscriptEvent, error) {
	var ev TranscriptEvent
	if msg == nil {
		return ev, errors.New("events: nil message")
	}
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return ev, errors.Wrap(err, "events: decode transcript event")
	}
	return ev, nil
}

// Forwarder publishes transcript changes on TopicTranscript. Changes are
// queued and published from a single goroutine, so a slow transport never
// blocks the writer of the transcript.
type Forwarder struct {
	pub    message.Publisher
	logger zerolog.Logger

	seq         atomic.Uint64
	ch          chan TranscriptEvent
	unsubscribe func()
	done        chan struct{}

	mu     sync.Mutex
	closed bool
}

// Forward starts publishing changes of t on pub. Call Close to stop.
func Forward(t *transcript.Transcript, pub message.Publisher, logger zerolog.Logger) *Forwarder {
	f := &Forwarder{
		pub:    pub,
		logger: logger.With().Str("component", "transcript_forwarder").Logger(),
		ch:     make(chan TranscriptEvent, forwardBuffer),
		done:   make(chan struct{}),
	}
	go f.run()
	f.unsubscribe = t.OnChange(f.enqueue)
	return f
}

func (f *Forwarder) enqueue(c transcript.Change) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	ev := NewTranscriptEvent(f.seq.Add(1), c)
	select {
	case f.ch <- ev:
	default:
		f.logger.Warn().Uint64("seq", ev.Seq).Str("entry_id", ev.EntryID).Msg("event buffer full, dropping transcript event")
	}
}

func (f *Forwarder) run() {
	defer close(f.done)
	for ev := range f.ch {
		payload, err := json.Marshal(ev)
		if err != nil {
			f.logger.Error().Err(err).Msg("marshal transcript event")
			continue
		}
		msg := message.NewMessage(watermill.NewUUID(), payload)
		msg.Metadata.Set("kind", ev.Kind)
		if err := f.pub.Publish(TopicTranscript, msg); err != nil {
			f.logger.Warn().Err(err).Uint64("seq", ev.Seq).Msg("publish transcript event")
		}
	}
}

// Close stops listening to the transcript and waits until queued events were
// published.
func (f *Forwarder) Close() {
	f.unsubscribe()
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	close(f.ch)
	f.mu.Unlock()
	<-f.done
}
