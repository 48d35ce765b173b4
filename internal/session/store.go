// Package session holds per-conversation state: the ordered turn
// history, the cached idea set, and the last generated visualization.
// Sessions are created lazily and live for the process lifetime; the
// optional archive journals turns to SQLite for transcript rendering.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/coldwatch/coldwatch/internal/llm"
)

// ErrSessionBusy is returned when a session already has an active
// request. Callers reject the second request synchronously rather than
// queueing it.
var ErrSessionBusy = errors.New("session busy")

// Turn is one unit of conversation history. Turns are append-only.
type Turn struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []llm.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolName   string         `json:"tool_name,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Idea is a visualization suggestion produced by ideation. Immutable
// once created.
type Idea struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Icon        string         `json:"icon"`
	Reasoning   string         `json:"reasoning"`
	Spec        map[string]any `json:"spec,omitempty"`
}

// VisualizationSpec is the final artifact of visualization generation:
// gathered data plus renderable code.
type VisualizationSpec struct {
	Type   string         `json:"type"`
	Title  string         `json:"title"`
	Data   map[string]any `json:"data"`
	Code   string         `json:"code,omitempty"`
	IdeaID string         `json:"idea_id,omitempty"`
}

// Session is one conversation's state. Mutate only while holding the
// store's busy lock for the session.
type Session struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time

	turns    []Turn
	ideas    []Idea
	lastSpec *VisualizationSpec
}

// Append adds a turn to the history.
func (s *Session) Append(t Turn) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	s.turns = append(s.turns, t)
	s.UpdatedAt = t.CreatedAt
}

// Turns returns a copy of the full history.
func (s *Session) Turns() []Turn {
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// History converts the most recent window turns into completion
// messages. window <= 0 means the full history.
func (s *Session) History(window int) []llm.Message {
	turns := s.turns
	if window > 0 && len(turns) > window {
		turns = turns[len(turns)-window:]
		// A suffix cut can land inside a tool batch. Drop tool results
		// whose tool_use turn fell outside the window; providers reject
		// a tool result with no preceding tool call.
		for len(turns) > 0 && turns[0].Role == "tool" {
			turns = turns[1:]
		}
	}
	out := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		out = append(out, llm.Message{
			Role:       t.Role,
			Content:    t.Content,
			ToolCalls:  t.ToolCalls,
			ToolCallID: t.ToolCallID,
		})
	}
	return out
}

// SetIdeas replaces the cached idea set.
func (s *Session) SetIdeas(ideas []Idea) {
	s.ideas = ideas
}

// Ideas returns the cached idea set, or nil.
func (s *Session) Ideas() []Idea {
	return s.ideas
}

// IdeaByID finds a cached idea.
func (s *Session) IdeaByID(id string) (Idea, bool) {
	for _, idea := range s.ideas {
		if idea.ID == id {
			return idea, true
		}
	}
	return Idea{}, false
}

// SetSpec overwrites the single last-generated-spec slot.
func (s *Session) SetSpec(spec *VisualizationSpec) {
	s.lastSpec = spec
}

// Spec returns the last generated visualization, or nil.
func (s *Session) Spec() *VisualizationSpec {
	return s.lastSpec
}

// Store is the session-keyed conversation store. It enforces at most
// one active request per session: Acquire hands out the session
// together with a release func, and a second Acquire for the same ID
// fails with ErrSessionBusy until release is called.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	busy     map[string]bool
	archive  *Archive
}

// NewStore creates an empty store. archive may be nil.
func NewStore(archive *Archive) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		busy:     make(map[string]bool),
		archive:  archive,
	}
}

// Acquire returns the session for id, creating it on first use, and
// marks it busy. The returned release func must be called exactly once
// when the request finishes; it is safe to call from a deferred path.
func (st *Store) Acquire(id string) (*Session, func(), error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.busy[id] {
		return nil, nil, ErrSessionBusy
	}

	s, ok := st.sessions[id]
	if !ok {
		now := time.Now().UTC()
		s = &Session{ID: id, CreatedAt: now, UpdatedAt: now}
		st.sessions[id] = s
	}

	st.busy[id] = true
	var once sync.Once
	release := func() {
		once.Do(func() {
			st.mu.Lock()
			delete(st.busy, id)
			st.mu.Unlock()
		})
	}
	return s, release, nil
}

// Peek returns the session for id without acquiring it, or nil when the
// session does not exist. Use for read-only access such as transcript
// rendering.
func (st *Store) Peek(id string) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.sessions[id]
}

// Append records a turn on the session and journals it to the archive
// when one is configured. Call only while holding the session via
// Acquire.
func (st *Store) Append(s *Session, t Turn) {
	s.Append(t)
	if st.archive != nil {
		// Archive failures must not break the conversation.
		st.archive.record(s.ID, s.turns[len(s.turns)-1])
	}
}
