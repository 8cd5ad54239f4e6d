package chatrunner

import (
	"context"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	input "github.com/tcnksm/go-input"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/chat-popup/pkg/events"
	"github.com/go-go-golems/chat-popup/pkg/orchestrator"
	"github.com/go-go-golems/chat-popup/pkg/transcript"
	"github.com/go-go-golems/chat-popup/pkg/ui"
)

// RunMode defines the execution mode for the chat session.
type RunMode string

const (
	RunModeChat        RunMode = "chat"
	RunModeInteractive RunMode = "interactive"
	RunModeBlocking    RunMode = "blocking"
)

// ErrSubmissionFailed is returned in strict mode when the reply is the
// failure message.
var ErrSubmissionFailed = errors.New("submission failed")

// ChatSession holds the validated configuration and executes the chat logic.
// It's typically created and run by the ChatBuilder.
type ChatSession struct {
	ctx            context.Context
	orch           *orchestrator.Orchestrator
	renderer       *ui.Renderer
	eventSettings  events.Settings
	bus            *events.Bus
	modelOptions   []ui.ModelOption
	programOptions []tea.ProgramOption
	mode           RunMode
	outputWriter   io.Writer
	prompt         orchestrator.PendingInput
	strict         bool
	promptReader   io.Reader
	promptWriter   io.Writer
}

// Run executes the chat session based on its configured mode.
func (cs *ChatSession) Run() error {
	switch cs.mode {
	case RunModeChat:
		return cs.runChatInternal()
	case RunModeInteractive:
		return cs.runInteractiveInternal()
	case RunModeBlocking:
		return cs.runBlockingInternal()
	default:
		return errors.Errorf("unknown run mode: %v", cs.mode)
	}
}

// runChatInternal runs the terminal panel. Transcript changes travel over the
// event bus: a forwarder publishes them and a consumer injects them into the
// bubbletea program.
func (cs *ChatSession) runChatInternal() error {
	bus := cs.bus
	if bus == nil {
		var err error
		bus, err = events.Build(cs.eventSettings, log.Logger)
		if err != nil {
			return errors.Wrap(err, "failed to create event bus")
		}
		defer func() {
			log.Debug().Msg("Closing event bus")
			_ = bus.Close()
		}()
		if cs.eventSettings.RedisEnabled {
			if err := events.EnsureGroupAtTail(cs.ctx, cs.eventSettings.RedisAddr, events.TopicTranscript, cs.eventSettings.Group); err != nil {
				return errors.Wrap(err, "failed to prepare redis consumer group")
			}
		}
	}

	forwarder := events.Forward(cs.orch.Transcript(), bus.Publisher, log.Logger)
	defer forwarder.Close()

	eg, childCtx := errgroup.WithContext(cs.ctx)
	childCtx, cancel := context.WithCancel(childCtx)
	defer cancel()

	model := ui.NewModel(childCtx, cs.orch, cs.renderer, cs.modelOptions...)
	opts := append([]tea.ProgramOption{tea.WithContext(childCtx)}, cs.programOptions...)
	p := tea.NewProgram(model, opts...)

	eg.Go(func() error {
		defer cancel()
		log.Debug().Str("component", "chatrunner").Msg("Consuming transcript events")
		return events.Consume(childCtx, bus.Subscriber, events.TopicTranscript, ui.TranscriptForwardFunc(p))
	})

	eg.Go(func() error {
		// If the UI exits (even successfully), cancel the context so the
		// consumer stops.
		defer cancel()
		log.Debug().Str("component", "chatrunner").Msg("Starting Bubble Tea program")
		_, runErr := p.Run()
		log.Debug().Err(runErr).Str("component", "chatrunner").Msg("Bubble Tea program finished")

		if runErr != nil && childCtx.Err() != nil &&
			(errors.Is(runErr, tea.ErrProgramKilled) || errors.Is(runErr, context.Canceled)) {
			return nil
		}
		return runErr
	})

	err := eg.Wait()
	if errors.Is(err, context.Canceled) && cs.ctx.Err() == context.Canceled {
		return nil
	}
	return err
}

// runBlockingInternal sends the prompt, waits for it to settle and prints the
// exchange.
func (cs *ChatSession) runBlockingInternal() error {
	sub := cs.orch.Submit(cs.ctx, cs.prompt)
	if sub == nil {
		return errors.New("nothing to send: empty message and no file")
	}

	out, err := sub.Wait(cs.ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) && cs.ctx.Err() == context.Canceled {
			log.Debug().Msg("Blocking send cancelled by context")
			return nil
		}
		return errors.Wrap(err, "waiting for reply")
	}

	var exchange []transcript.Entry
	for _, e := range cs.orch.Transcript().Entries() {
		if e.ID == sub.UserEntryID || e.ID == sub.PendingEntryID {
			exchange = append(exchange, e)
		}
	}
	if _, err := fmt.Fprintln(cs.outputWriter, cs.renderer.Entries(exchange)); err != nil {
		return errors.Wrap(err, "failed to write output")
	}

	if out.Failed() {
		log.Warn().Err(out.Err).Str("error_kind", out.ErrorKind).Msg("message could not be delivered")
		if cs.strict {
			return errors.Wrap(ErrSubmissionFailed, out.ErrorKind)
		}
	}
	return nil
}

// runInteractiveInternal handles initial blocking run + optional chat transition.
func (cs *ChatSession) runInteractiveInternal() error {
	if err := cs.runBlockingInternal(); err != nil {
		return errors.Wrap(err, "error during initial send")
	}

	// Use Stderr for prompt asking, as Stdout might be redirected.
	if f, ok := cs.promptWriter.(*os.File); ok && !isatty.IsTerminal(f.Fd()) {
		log.Debug().Msg("Prompt output is not a TTY, skipping chat continuation prompt")
		return nil
	}

	continueInChat, err := askForChatContinuation(cs.promptReader, cs.promptWriter)
	if err != nil {
		return errors.Wrap(err, "failed to ask for chat continuation")
	}
	if !continueInChat {
		log.Debug().Msg("User chose not to continue in chat mode")
		return nil
	}

	log.Debug().Msg("User chose to continue, starting chat UI")
	return cs.runChatInternal()
}

// --- ChatBuilder ---

// ChatBuilder provides a fluent API for configuring and running a chat session.
type ChatBuilder struct {
	err            error // To collect errors during build steps
	ctx            context.Context
	orch           *orchestrator.Orchestrator
	renderer       *ui.Renderer
	eventSettings  events.Settings
	bus            *events.Bus
	modelOptions   []ui.ModelOption
	programOptions []tea.ProgramOption
	mode           RunMode
	outputWriter   io.Writer
	prompt         orchestrator.PendingInput
	strict         bool
	promptReader   io.Reader
	promptWriter   io.Writer
}

// NewChatBuilder creates a new builder with default settings.
func NewChatBuilder() *ChatBuilder {
	return &ChatBuilder{
		ctx:            context.Background(),
		eventSettings:  events.DefaultSettings(),
		programOptions: []tea.ProgramOption{tea.WithAltScreen()},
		outputWriter:   os.Stdout,
		promptReader:   os.Stdin,
		promptWriter:   os.Stderr,
		mode:           RunModeChat,
	}
}

// WithContext sets the context for the chat session.
func (b *ChatBuilder) WithContext(ctx context.Context) *ChatBuilder {
	if b.err != nil {
		return b
	}
	if ctx == nil {
		b.err = errors.New("context cannot be nil")
		return b
	}
	b.ctx = ctx
	return b
}

// WithOrchestrator sets the orchestrator that owns the transcript. (Required)
func (b *ChatBuilder) WithOrchestrator(o *orchestrator.Orchestrator) *ChatBuilder {
	if b.err != nil {
		return b
	}
	if o == nil {
		b.err = errors.New("orchestrator cannot be nil")
		return b
	}
	b.orch = o
	return b
}

// WithRenderer sets the renderer used for output. (Required)
func (b *ChatBuilder) WithRenderer(r *ui.Renderer) *ChatBuilder {
	if b.err != nil {
		return b
	}
	if r == nil {
		b.err = errors.New("renderer cannot be nil")
		return b
	}
	b.renderer = r
	return b
}

// WithEventSettings selects the event transport of an internally built bus.
func (b *ChatBuilder) WithEventSettings(s events.Settings) *ChatBuilder {
	if b.err != nil {
		return b
	}
	b.eventSettings = s
	return b
}

// WithExternalBus provides an existing event bus. It is not closed by the
// session.
func (b *ChatBuilder) WithExternalBus(bus *events.Bus) *ChatBuilder {
	if b.err != nil {
		return b
	}
	b.bus = bus
	return b
}

// WithModelOptions adds options for configuring the chat panel.
func (b *ChatBuilder) WithModelOptions(opts ...ui.ModelOption) *ChatBuilder {
	if b.err != nil {
		return b
	}
	b.modelOptions = append(b.modelOptions, opts...)
	return b
}

// WithProgramOptions replaces the options for the bubbletea program.
func (b *ChatBuilder) WithProgramOptions(opts ...tea.ProgramOption) *ChatBuilder {
	if b.err != nil {
		return b
	}
	b.programOptions = opts
	return b
}

// WithMode sets the execution mode (chat, interactive, blocking).
func (b *ChatBuilder) WithMode(mode RunMode) *ChatBuilder {
	if b.err != nil {
		return b
	}
	switch mode {
	case RunModeChat, RunModeInteractive, RunModeBlocking:
		b.mode = mode
	default:
		b.err = errors.Errorf("invalid run mode: %s", mode)
	}
	return b
}

// WithOutputWriter sets the writer for blocking or interactive modes.
// Defaults to os.Stdout.
func (b *ChatBuilder) WithOutputWriter(w io.Writer) *ChatBuilder {
	if b.err != nil {
		return b
	}
	if w == nil {
		b.err = errors.New("output writer cannot be nil")
		return b
	}
	b.outputWriter = w
	return b
}

// WithPrompt sets what blocking and interactive modes send first.
func (b *ChatBuilder) WithPrompt(in orchestrator.PendingInput) *ChatBuilder {
	if b.err != nil {
		return b
	}
	b.prompt = in
	return b
}

// WithStrict makes a failed submission an error in blocking mode.
func (b *ChatBuilder) WithStrict(strict bool) *ChatBuilder {
	if b.err != nil {
		return b
	}
	b.strict = strict
	return b
}

// WithPromptIO sets where the chat continuation question is read and asked.
func (b *ChatBuilder) WithPromptIO(r io.Reader, w io.Writer) *ChatBuilder {
	if b.err != nil {
		return b
	}
	if r == nil || w == nil {
		b.err = errors.New("prompt reader and writer cannot be nil")
		return b
	}
	b.promptReader, b.promptWriter = r, w
	return b
}

// Build validates the builder configuration and returns the session.
func (b *ChatBuilder) Build() (*ChatSession, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.orch == nil {
		return nil, errors.New("orchestrator is required (use WithOrchestrator)")
	}
	if b.renderer == nil {
		return nil, errors.New("renderer is required (use WithRenderer)")
	}
	if (b.mode == RunModeBlocking || b.mode == RunModeInteractive) && !b.prompt.Valid() {
		return nil, errors.New("a message or file is required for blocking or interactive mode (use WithPrompt)")
	}

	return &ChatSession{
		ctx:            b.ctx,
		orch:           b.orch,
		renderer:       b.renderer,
		eventSettings:  b.eventSettings,
		bus:            b.bus,
		modelOptions:   b.modelOptions,
		programOptions: b.programOptions,
		mode:           b.mode,
		outputWriter:   b.outputWriter,
		prompt:         b.prompt,
		strict:         b.strict,
		promptReader:   b.promptReader,
		promptWriter:   b.promptWriter,
	}, nil
}

// askForChatContinuation asks on w whether to continue in chat mode and reads
// the answer from r.
func askForChatContinuation(r io.Reader, w io.Writer) (bool, error) {
	ui := &input.UI{
		Writer: w,
		Reader: r,
	}

	_, _ = fmt.Fprint(w, "\n")
	query := "Do you want to continue in chat mode? [Y/n]"
	answer, err := ui.Ask(query, &input.Options{
		Default:  "y",
		Required: true,
		Loop:     true,
		ValidateFunc: func(answer string) error {
			switch answer {
			case "y", "Y", "n", "N", "":
				return nil
			default:
				return errors.Errorf("please enter 'y' or 'n'")
			}
		},
	})
	if err != nil {
		return false, errors.Wrap(err, "failed to get user input")
	}

	_, _ = fmt.Fprint(w, "\n")

	return answer == "y" || answer == "Y" || answer == "", nil
}
