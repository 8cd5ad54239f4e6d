package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chat-popup/pkg/gateway"
	"github.com/go-go-golems/chat-popup/pkg/session"
	"github.com/go-go-golems/chat-popup/pkg/transcript"
)

type Config struct {
	Store      session.Store
	Gateway    gateway.Gateway
	Transcript *transcript.Transcript
	Messages   Messages
	Logger     *zerolog.Logger
}

// Orchestrator turns user input into backend calls and keeps the transcript
// consistent with their results.
//
// Every accepted submission immediately appends its user entry and a pending
// bot entry, then waits in a FIFO queue. The queue is drained by at most one
// goroutine, so backend calls of different submissions never overlap and
// pending entries settle in the order they were appended.
type Orchestrator struct {
	store      session.Store
	gw         gateway.Gateway
	transcript *transcript.Transcript
	messages   Messages
	logger     zerolog.Logger

	mu      sync.Mutex
	queue   []*Submission
	running bool
	idle    chan struct{}
	staged  *gateway.Attachment
}

func New(cfg Config) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, errors.New("orchestrator: session store is required")
	}
	if cfg.Gateway == nil {
		return nil, errors.New("orchestrator: gateway is required")
	}
	t := cfg.Transcript
	if t == nil {
		t = transcript.New()
	}
	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	idle := make(chan struct{})
	close(idle)
	return &Orchestrator{
		store:      cfg.Store,
		gw:         cfg.Gateway,
		transcript: t,
		messages:   cfg.Messages.withDefaults(),
		logger:     logger.With().Str("component", "orchestrator").Logger(),
		idle:       idle,
	}, nil
}

func (o *Orchestrator) Transcript() *transcript.Transcript { return o.transcript }

func (o *Orchestrator) Messages() Messages { return o.messages }

// StageAttachment sets the file that the next SubmitStaged call will send.
func (o *Orchestrator) StageAttachment(a *gateway.Attachment) {
	o.mu.Lock()
	o.staged = a
	o.mu.Unlock()
}

func (o *Orchestrator) ClearAttachment() { o.StageAttachment(nil) }

func (o *Orchestrator) StagedAttachment() *gateway.Attachment {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.staged
}

// SubmitStaged submits text together with the currently staged attachment.
func (o *Orchestrator) SubmitStaged(ctx context.Context, text string) *Submission {
	return o.Submit(ctx, PendingInput{Text: text, Attachment: o.StagedAttachment()})
}

// Submit accepts a user action. Invalid input (blank text, no attachment) is
// dropped and nil is returned. Otherwise the user and pending entries are in
// the transcript when Submit returns, and the backend work continues in the
// background; failures end up in the transcript, never as a returned error.
func (o *Orchestrator) Submit(ctx context.Context, in PendingInput) *Submission {
	if !in.Valid() {
		o.logger.Debug().Msg("ignoring empty submission")
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	sub := &Submission{
		ID:    uuid.NewString(),
		input: in,
		// backend calls must run to settlement even if the caller goes away
		ctx:   context.WithoutCancel(ctx),
		state: StateDrafted,
		done:  make(chan struct{}),
	}

	o.mu.Lock()
	userEntry := transcript.Entry{Role: transcript.RoleUser, Content: in.Text}
	if !in.hasText() {
		userEntry.Content = o.messages.FilePlaceholder
	}
	if in.Attachment != nil {
		userEntry.Attachment = &transcript.AttachmentRef{Name: in.Attachment.Name}
	}
	sub.UserEntryID = o.transcript.AppendFinal(userEntry).ID
	o.staged = nil
	sub.PendingEntryID = o.transcript.AppendPending(transcript.Entry{
		Role:    transcript.RoleBot,
		Content: o.messages.Thinking,
	}).ID

	position := o.enqueueLocked(sub)
	start := !o.running
	if start {
		o.running = true
		o.idle = make(chan struct{})
	}
	o.mu.Unlock()

	o.logger.Debug().
		Str("submission_id", sub.ID).
		Int("queue_position", position).
		Bool("has_attachment", in.Attachment != nil).
		Msg("submission accepted")

	if start {
		go o.drain()
	}
	return sub
}

// SubmitAndWait submits and blocks until the submission settled. Blank input
// yields a zero Outcome with StateIdle.
func (o *Orchestrator) SubmitAndWait(ctx context.Context, in PendingInput) Outcome {
	sub := o.Submit(ctx, in)
	if sub == nil {
		return Outcome{State: StateIdle}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	out, err := sub.Wait(ctx)
	if err != nil {
		return Outcome{SubmissionID: sub.ID, State: sub.State(), Err: err}
	}
	return out
}

// Busy reports whether a submission is in flight or queued.
func (o *Orchestrator) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.isBusyLocked()
}

// QueueLen is the number of accepted submissions not yet started.
func (o *Orchestrator) QueueLen() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

// Wait blocks until every accepted submission settled.
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	idle := o.idle
	o.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) isBusyLocked() bool {
	return o.running || len(o.queue) > 0
}

func (o *Orchestrator) enqueueLocked(sub *Submission) int {
	o.queue = append(o.queue, sub)
	return len(o.queue)
}

func (o *Orchestrator) claimNextLocked() (*Submission, bool) {
	if len(o.queue) == 0 {
		return nil, false
	}
	sub := o.queue[0]
	o.queue[0] = nil
	o.queue = o.queue[1:]
	return sub, true
}

func (o *Orchestrator) drain() {
	for {
		o.mu.Lock()
		sub, ok := o.claimNextLocked()
		if !ok {
			o.running = false
			close(o.idle)
			o.mu.Unlock()
			return
		}
		o.mu.Unlock()

		o.settle(sub, o.run(sub))
	}
}

// run drives one submission from SessionResolving to Settling.
func (o *Orchestrator) run(sub *Submission) (out Outcome) {
	logger := o.logger.With().Str("submission_id", sub.ID).Logger()
	out = Outcome{SubmissionID: sub.ID}

	defer func() {
		if r := recover(); r != nil {
			st := sub.State()
			out.State = StateFailed
			out.Err = errors.Errorf("panic during %s: %v", st, r)
			out.ErrorKind = kindForState(st)
			logger.Error().Interface("panic", r).Str("state", string(st)).Msg("submission panicked")
		}
	}()

	o.transition(sub, logger, StateSessionResolving)
	sessionID, err := o.resolveSession(sub.ctx, sub, logger)
	if err != nil {
		return o.failed(out, logger, err)
	}
	out.SessionID = sessionID

	o.transition(sub, logger, StateDispatching)
	reply, err := o.dispatch(sub.ctx, sessionID, sub, logger)
	if err != nil {
		return o.failed(out, logger, err)
	}

	o.transition(sub, logger, StateSettling)
	out.State = StateResolved
	out.Reply = reply.Content
	if strings.TrimSpace(out.Reply) == "" {
		out.Reply = o.messages.NoResponse
	}
	return out
}

func (o *Orchestrator) resolveSession(ctx context.Context, sub *Submission, logger zerolog.Logger) (string, error) {
	if id, ok := o.store.SessionID(ctx); ok {
		return id, nil
	}

	seed := TitleSeed(sub.input.Text)
	s, err := o.gw.CreateSession(ctx, seed)
	if err != nil {
		return "", err
	}
	// the id must be durable before any message is attributed to it
	if err := o.store.SetSessionID(ctx, s.ID); err != nil {
		return "", &gateway.SessionCreateError{Err: errors.Wrap(err, "persist session id")}
	}
	logger.Info().Str("session_id", s.ID).Str("title", seed).Msg("created backend session")
	return s.ID, nil
}

func (o *Orchestrator) dispatch(ctx context.Context, sessionID string, sub *Submission, logger zerolog.Logger) (gateway.BotReply, error) {
	att := sub.input.Attachment
	if att != nil {
		ack, err := o.gw.UploadAttachment(ctx, sessionID, att)
		if err != nil {
			return gateway.BotReply{}, err
		}
		if !ack.Accepted {
			logger.Warn().
				Str("session_id", sessionID).
				Str("attachment", att.Name).
				Int("status", ack.StatusCode).
				Msg("upload not accepted, sending message anyway")
		}
	}

	reply, err := o.gw.SendText(ctx, sessionID, sub.input.Text)
	if err != nil {
		if att != nil {
			// no compensation: the upload stays associated with the session
			logger.Warn().
				Str("session_id", sessionID).
				Str("attachment", att.Name).
				Msg("attachment uploaded but the accompanying message failed")
		}
		return gateway.BotReply{}, err
	}
	return reply, nil
}

func (o *Orchestrator) failed(out Outcome, logger zerolog.Logger, err error) Outcome {
	out.State = StateFailed
	out.Err = err
	out.ErrorKind = gateway.ErrorKind(err)
	logger.Warn().Err(err).Str("error_kind", out.ErrorKind).Msg("submission failed")
	return out
}

func (o *Orchestrator) settle(sub *Submission, out Outcome) {
	content := out.Reply
	if out.State == StateFailed {
		content = o.messages.Failure
		out.Reply = content
	}
	if _, ok := o.transcript.ResolvePending(sub.PendingEntryID, content); !ok {
		o.logger.Error().
			Str("submission_id", sub.ID).
			Str("entry_id", sub.PendingEntryID).
			Msg("pending entry could not be resolved")
	}
	o.logger.Debug().
		Str("submission_id", sub.ID).
		Str("state", string(out.State)).
		Msg("submission settled")
	sub.finish(out)
}

func (o *Orchestrator) transition(sub *Submission, logger zerolog.Logger, st State) {
	logger.Debug().Str("from", string(sub.State())).Str("to", string(st)).Msg("transition")
	sub.setState(st)
}

// TitleSeed is the label a new backend session gets: the first
// TitleSeedLength characters of the message.
func TitleSeed(text string) string {
	r := []rune(text)
	if len(r) > TitleSeedLength {
		r = r[:TitleSeedLength]
	}
	return string(r)
}

func kindForState(st State) string {
	switch st {
	case StateSessionResolving:
		return gateway.KindSessionCreate
	default:
		return gateway.KindMessageSend
	}
}

func (o Outcome) String() string {
	if o.State == StateFailed {
		return fmt.Sprintf("%s (%s): %v", o.State, o.ErrorKind, o.Err)
	}
	return string(o.State)
}
