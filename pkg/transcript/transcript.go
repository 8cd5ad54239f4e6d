package transcript

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

type Status string

const (
	StatusFinal   Status = "final"
	StatusPending Status = "pending"
)

// AttachmentRef points at a file that was sent along with an entry. The
// transcript never owns the bytes.
type AttachmentRef struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// Entry is one item of the chat log.
type Entry struct {
	ID         string         `json:"id"`
	Role       Role           `json:"role"`
	Content    string         `json:"content"`
	Status     Status         `json:"status"`
	Attachment *AttachmentRef `json:"attachment,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

func (e Entry) IsPending() bool { return e.Status == StatusPending }

type ChangeKind string

const (
	ChangeAppended ChangeKind = "appended"
	ChangeResolved ChangeKind = "resolved"
)

// Change describes a single mutation of the transcript.
type Change struct {
	Kind  ChangeKind `json:"kind"`
	Index int        `json:"index"`
	Entry Entry      `json:"entry"`
}

type pendingSlot struct {
	id    string
	index int
}

// Transcript is an append-only, ordered chat log. The only in-place mutation
// is the resolution of a pending bot entry, which happens exactly once and
// keeps the entry at its original position.
//
// Pending entries form a FIFO: they must be resolved in the order they were
// appended.
type Transcript struct {
	mu        sync.RWMutex
	entries   []Entry
	pending   []pendingSlot
	observers map[int]func(Change)
	nextObsID int

	logger zerolog.Logger
	now    func() time.Time
}

type Option func(*Transcript)

func WithLogger(logger zerolog.Logger) Option {
	return func(t *Transcript) {
		t.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(t *Transcript) {
		if now != nil {
			t.now = now
		}
	}
}

func New(opts ...Option) *Transcript {
	t := &Transcript{
		observers: map[int]func(Change){},
		logger:    log.Logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// OnChange registers an observer that is called after every mutation. The
// returned function removes it again.
//
// Observers run synchronously on the mutating goroutine and must not block or
// call back into whoever is mutating the transcript.
func (t *Transcript) OnChange(fn func(Change)) func() {
	if fn == nil {
		return func() {}
	}
	t.mu.Lock()
	id := t.nextObsID
	t.nextObsID++
	t.observers[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.observers, id)
		t.mu.Unlock()
	}
}

// AppendFinal appends a completed entry.
func (t *Transcript) AppendFinal(e Entry) Entry {
	e.Status = StatusFinal
	return t.append(e)
}

// AppendPending appends a placeholder bot entry that will later be replaced by
// ResolvePending.
func (t *Transcript) AppendPending(e Entry) Entry {
	e.Status = StatusPending
	if e.Role == "" {
		e.Role = RoleBot
	}
	return t.append(e)
}

func (t *Transcript) append(e Entry) Entry {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = t.now()
	}

	t.mu.Lock()
	idx := len(t.entries)
	t.entries = append(t.entries, e)
	if e.Status == StatusPending {
		if len(t.pending) > 0 {
			t.logger.Debug().
				Int("pending", len(t.pending)).
				Str("entry_id", e.ID).
				Msg("queueing pending entry behind unresolved ones")
		}
		t.pending = append(t.pending, pendingSlot{id: e.ID, index: idx})
	}
	observers := t.observersLocked()
	t.mu.Unlock()

	notify(observers, Change{Kind: ChangeAppended, Index: idx, Entry: e})
	return e
}

// ResolvePending replaces the pending entry with the given id by a final bot
// entry carrying content. It returns false when id does not name the oldest
// unresolved pending entry; that is an internal consistency problem of the
// caller and is only logged.
func (t *Transcript) ResolvePending(id string, content string) (Entry, bool) {
	t.mu.Lock()
	if len(t.pending) == 0 {
		t.mu.Unlock()
		t.logger.Warn().Str("entry_id", id).Msg("resolve requested but no pending entry exists")
		return Entry{}, false
	}
	head := t.pending[0]
	if head.id != id {
		t.mu.Unlock()
		t.logger.Warn().
			Str("entry_id", id).
			Str("oldest_pending_id", head.id).
			Msg("refusing out-of-order resolve of pending entry")
		return Entry{}, false
	}

	prev := t.entries[head.index]
	resolved := Entry{
		ID:        prev.ID,
		Role:      RoleBot,
		Content:   content,
		Status:    StatusFinal,
		CreatedAt: prev.CreatedAt,
	}
	t.entries[head.index] = resolved
	t.pending = t.pending[1:]
	observers := t.observersLocked()
	t.mu.Unlock()

	notify(observers, Change{Kind: ChangeResolved, Index: head.index, Entry: resolved})
	return resolved, true
}

// Entries returns a copy of the log in display order.
func (t *Transcript) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

func (t *Transcript) PendingCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.pending)
}

func (t *Transcript) Last() (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.entries) == 0 {
		return Entry{}, false
	}
	return t.entries[len(t.entries)-1], true
}

// LastBotReply returns the newest resolved bot entry.
func (t *Transcript) LastBotReply() (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i := len(t.entries) - 1; i >= 0; i-- {
		e := t.entries[i]
		if e.Role == RoleBot && e.Status == StatusFinal {
			return e, true
		}
	}
	return Entry{}, false
}

func (t *Transcript) observersLocked() []func(Change) {
	if len(t.observers) == 0 {
		return nil
	}
	out := make([]func(Change), 0, len(t.observers))
	for i := 0; i < t.nextObsID; i++ {
		if fn, ok := t.observers[i]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func notify(observers []func(Change), c Change) {
	for _, fn := range observers {
		fn(c)
	}
}
