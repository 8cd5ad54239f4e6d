package orchestrator

import (
	"context"
	"strings"
	"sync"

	"github.com/go-go-golems/chat-popup/pkg/gateway"
)

// State is the lifecycle position of one submission.
type State string

const (
	StateIdle             State = "idle"
	StateDrafted          State = "drafted"
	StateSessionResolving State = "session-resolving"
	StateDispatching      State = "dispatching"
	StateSettling         State = "settling"
	StateResolved         State = "resolved"
	StateFailed           State = "failed"
)

// TitleSeedLength is how many characters of the first message label a newly
// created backend session.
const TitleSeedLength = 30

// Messages are the fixed strings the orchestrator writes into the transcript.
type Messages struct {
	FilePlaceholder string `yaml:"file_placeholder"`
	Thinking        string `yaml:"thinking"`
	NoResponse      string `yaml:"no_response"`
	Failure         string `yaml:"failure"`
}

func DefaultMessages() Messages {
	return Messages{
		FilePlaceholder: "(file sent)",
		Thinking:        "Thinking...",
		NoResponse:      "Bot did not respond.",
		Failure:         "Something went wrong while sending the message!",
	}
}

func (m Messages) withDefaults() Messages {
	d := DefaultMessages()
	if m.FilePlaceholder == "" {
		m.FilePlaceholder = d.FilePlaceholder
	}
	if m.Thinking == "" {
		m.Thinking = d.Thinking
	}
	if m.NoResponse == "" {
		m.NoResponse = d.NoResponse
	}
	if m.Failure == "" {
		m.Failure = d.Failure
	}
	return m
}

// PendingInput is one user action: text, a file, or both.
type PendingInput struct {
	Text       string
	Attachment *gateway.Attachment
}

// Valid reports whether the input carries non-blank text or an attachment.
func (in PendingInput) Valid() bool {
	return strings.TrimSpace(in.Text) != "" || in.Attachment != nil
}

func (in PendingInput) hasText() bool { return strings.TrimSpace(in.Text) != "" }

// Outcome is the settled result of a submission.
type Outcome struct {
	SubmissionID string
	State        State
	SessionID    string
	// Reply is the content the pending entry was resolved with.
	Reply string
	// ErrorKind is one of the gateway.Kind* constants when State is StateFailed.
	ErrorKind string
	Err       error
}

func (o Outcome) Failed() bool { return o.State == StateFailed }

// Submission tracks one accepted input through the state machine.
type Submission struct {
	ID             string
	UserEntryID    string
	PendingEntryID string

	input PendingInput
	ctx   context.Context

	mu      sync.Mutex
	state   State
	outcome Outcome
	done    chan struct{}
}

func (s *Submission) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Submission) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Done is closed once the submission settled.
func (s *Submission) Done() <-chan struct{} { return s.done }

// Outcome returns the settled outcome, and false while still in flight.
func (s *Submission) Outcome() (Outcome, bool) {
	select {
	case <-s.done:
	default:
		return Outcome{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome, true
}

// Wait blocks until the submission settled or ctx is done. Giving up on the
// wait does not cancel the submission.
func (s *Submission) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-s.done:
		o, _ := s.Outcome()
		return o, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func (s *Submission) finish(o Outcome) {
	s.mu.Lock()
	s.state = o.State
	s.outcome = o
	s.mu.Unlock()
	close(s.done)
}
