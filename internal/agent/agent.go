// Package agent implements the conversational core: a router that
// dispatches inbound requests to one of three nodes (chat, ideation,
// visualization generation), each of which streams ordered events back
// to the caller while mutating exactly one session.
package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/coldwatch/coldwatch/internal/events"
	"github.com/coldwatch/coldwatch/internal/facility"
	"github.com/coldwatch/coldwatch/internal/llm"
	"github.com/coldwatch/coldwatch/internal/prompts"
	"github.com/coldwatch/coldwatch/internal/session"
	"github.com/coldwatch/coldwatch/internal/tools"
)

const (
	defaultMaxIterations     = 8
	defaultHistoryWindow     = 10
	defaultCompletionTimeout = 120 * time.Second
	defaultToolTimeout       = 15 * time.Second

	streamBuffer = 64
)

// Options configures an Agent. Zero values get sensible defaults.
type Options struct {
	Logger   *slog.Logger
	LLM      llm.Client
	Registry *tools.Registry
	Sessions *session.Store
	Facility facility.Store
	Bus      *events.Bus

	ChatModel    string
	VizModel     string
	CodegenModel string

	MaxIterations     int
	HistoryWindow     int
	CompletionTimeout time.Duration
	ToolTimeout       time.Duration

	// UseDataClock anchors "now" to the newest reading instead of the
	// wall clock, so seeded datasets stay addressable as "today".
	UseDataClock bool
}

// Agent routes requests and runs node executions.
type Agent struct {
	logger   *slog.Logger
	llm      llm.Client
	registry *tools.Registry
	sessions *session.Store
	facility facility.Store
	bus      *events.Bus

	chatModel    string
	vizModel     string
	codegenModel string

	maxIterations     int
	historyWindow     int
	completionTimeout time.Duration
	toolTimeout       time.Duration
	useDataClock      bool
}

// New creates an agent from options.
func New(opts Options) *Agent {
	a := &Agent{
		logger:            opts.Logger,
		llm:               opts.LLM,
		registry:          opts.Registry,
		sessions:          opts.Sessions,
		facility:          opts.Facility,
		bus:               opts.Bus,
		chatModel:         opts.ChatModel,
		vizModel:          opts.VizModel,
		codegenModel:      opts.CodegenModel,
		maxIterations:     opts.MaxIterations,
		historyWindow:     opts.HistoryWindow,
		completionTimeout: opts.CompletionTimeout,
		toolTimeout:       opts.ToolTimeout,
		useDataClock:      opts.UseDataClock,
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.maxIterations <= 0 {
		a.maxIterations = defaultMaxIterations
	}
	if a.historyWindow <= 0 {
		a.historyWindow = defaultHistoryWindow
	}
	if a.completionTimeout <= 0 {
		a.completionTimeout = defaultCompletionTimeout
	}
	if a.toolTimeout <= 0 {
		a.toolTimeout = defaultToolTimeout
	}
	if a.vizModel == "" {
		a.vizModel = a.chatModel
	}
	if a.codegenModel == "" {
		a.codegenModel = a.vizModel
	}
	return a
}

// Result is the outcome of routing one request. Exactly one of Static
// and Events is set: Static for the synchronous help shortcut, Events
// for every streaming path.
type Result struct {
	Static string
	Events <-chan StreamEvent
}

// Handle routes a raw message for a session and starts the matching
// node execution. Returns session.ErrSessionBusy synchronously when the
// session already has an active execution; no stream is opened in that
// case. The returned event stream always terminates with a single done
// event. Cancelling ctx cancels the in-flight completion and tool
// calls.
func (a *Agent) Handle(ctx context.Context, sessionID, message string) (*Result, error) {
	in, idea := route(message)

	sess, release, err := a.sessions.Acquire(sessionID)
	if err != nil {
		return nil, err
	}

	// The user turn is committed before dispatch, for every intent.
	a.sessions.Append(sess, session.Turn{Role: "user", Content: message})

	if in == intentHelp {
		a.sessions.Append(sess, session.Turn{Role: "assistant", Content: prompts.HelpResponse})
		release()
		return &Result{Static: prompts.HelpResponse}, nil
	}

	requestID := newRequestID()
	em := newEmitter(streamBuffer, ctx.Done())
	started := time.Now()

	a.bus.Publish(events.Event{
		Source: events.SourceAgent,
		Kind:   events.KindRequestStart,
		Data: map[string]any{
			"request_id": requestID,
			"session_id": sessionID,
			"node":       in.String(),
		},
	})

	go func() {
		defer release()
		defer em.Done()

		var ok bool
		switch in {
		case intentIdeas:
			ok = a.runIdeation(ctx, em, sess, requestID)
		case intentGenerate:
			ok = a.runGenerate(ctx, em, sess, requestID, idea)
		default:
			ok = a.runChat(ctx, em, sess, requestID)
		}

		a.bus.Publish(events.Event{
			Source: events.SourceAgent,
			Kind:   events.KindRequestComplete,
			Data: map[string]any{
				"request_id": requestID,
				"node":       in.String(),
				"elapsed_ms": time.Since(started).Milliseconds(),
				"ok":         ok,
			},
		})
	}()

	return &Result{Events: em.Events()}, nil
}

// now returns the agent's notion of the current time: the data clock
// when enabled and the store has readings, otherwise the wall clock.
func (a *Agent) now(ctx context.Context) time.Time {
	if a.useDataClock && a.facility != nil {
		if ts, err := a.facility.LatestTimestamp(ctx); err == nil && !ts.IsZero() {
			return ts
		}
	}
	return time.Now().UTC()
}

func newRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
