package agent

import (
	"sync"
	"time"

	"github.com/coldwatch/coldwatch/internal/session"
)

// Stream event types, in the order a client may observe them. Every
// stream ends with exactly one EventDone; nothing follows it.
const (
	EventText          = "text"
	EventToolUse       = "tool_use"
	EventProgress      = "progress"
	EventVisualization = "visualization"
	EventIdeas         = "ideas"
	EventError         = "error"
	EventDone          = "done"
)

// Tool status values carried by tool_use events.
const (
	ToolRunning = "running"
	ToolDone    = "done"
)

// StreamEvent is one element of a node execution's ordered event
// stream. Only the fields relevant to Type are set.
type StreamEvent struct {
	Type string `json:"type"`

	// text
	Content string `json:"content,omitempty"`

	// tool_use
	Tool    string `json:"tool,omitempty"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`

	// progress reuses Message; Stage names the phase.
	Stage string `json:"stage,omitempty"`

	// visualization
	Spec   *session.VisualizationSpec `json:"spec,omitempty"`
	IdeaID string                     `json:"ideaId,omitempty"`
	Title  string                     `json:"title,omitempty"`

	// ideas
	Ideas []session.Idea `json:"ideas,omitempty"`
}

// emitSendTimeout bounds how long an emit may wait on a full stream
// buffer. A consumer that hasn't drained in this long is treated as
// detached, so the producing node can finish and release its session.
const emitSendTimeout = 30 * time.Second

// emitter serializes a node's events onto its stream channel and
// guarantees the terminal contract: exactly one done event, after
// which the channel is closed and further emits are ignored. stop is
// the consumer's cancellation signal; once it fires (or a send times
// out) the stream is closed and remaining events are dropped, so the
// node is never wedged on an abandoned stream.
type emitter struct {
	ch   chan StreamEvent
	stop <-chan struct{}
	mu   sync.Mutex
	done bool
}

func newEmitter(buf int, stop <-chan struct{}) *emitter {
	return &emitter{ch: make(chan StreamEvent, buf), stop: stop}
}

// Events returns the consumer side of the stream.
func (e *emitter) Events() <-chan StreamEvent { return e.ch }

func (e *emitter) emit(ev StreamEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done {
		return
	}
	e.sendLocked(ev)
}

// sendLocked delivers one event with e.mu held. When the buffer is
// full it waits for the consumer, but a cancelled or stalled consumer
// detaches the stream instead of wedging the producer.
func (e *emitter) sendLocked(ev StreamEvent) {
	select {
	case e.ch <- ev:
		return
	default:
	}
	t := time.NewTimer(emitSendTimeout)
	defer t.Stop()
	select {
	case e.ch <- ev:
	case <-e.stop:
		e.detachLocked()
	case <-t.C:
		e.detachLocked()
	}
}

// detachLocked closes the stream without a done event. Called with
// e.mu held when the consumer is gone; later emits become no-ops.
func (e *emitter) detachLocked() {
	e.done = true
	close(e.ch)
}

func (e *emitter) Text(content string) {
	e.emit(StreamEvent{Type: EventText, Content: content})
}

func (e *emitter) ToolUse(tool, status, message string) {
	e.emit(StreamEvent{Type: EventToolUse, Tool: tool, Status: status, Message: message})
}

func (e *emitter) Progress(stage, message string) {
	e.emit(StreamEvent{Type: EventProgress, Stage: stage, Message: message})
}

func (e *emitter) Ideas(ideas []session.Idea) {
	e.emit(StreamEvent{Type: EventIdeas, Ideas: ideas})
}

func (e *emitter) Visualization(spec *session.VisualizationSpec) {
	e.emit(StreamEvent{Type: EventVisualization, Spec: spec, IdeaID: spec.IdeaID, Title: spec.Title})
}

func (e *emitter) Error(message string) {
	e.emit(StreamEvent{Type: EventError, Message: message})
}

// Done emits the terminal event and closes the stream. Idempotent.
// A stream already detached by consumer cancellation stays closed.
func (e *emitter) Done() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done {
		return
	}
	e.sendLocked(StreamEvent{Type: EventDone})
	if !e.done {
		e.done = true
		close(e.ch)
	}
}
