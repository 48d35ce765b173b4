package agent

import (
	"encoding/json"
	"strings"

	"github.com/coldwatch/coldwatch/internal/session"
)

// intent is the resolved dispatch target for one inbound request.
type intent int

const (
	intentChat intent = iota
	intentHelp
	intentIdeas
	intentGenerate
)

func (i intent) String() string {
	switch i {
	case intentHelp:
		return "help"
	case intentIdeas:
		return "ideation"
	case intentGenerate:
		return "generate"
	default:
		return "chat"
	}
}

// helpToken is the reserved message that short-circuits to a static
// answer without touching the model or the tools.
const helpToken = "help"

// envelope is the structured request shape. Anything that fails to
// parse as one of these is treated as free-text chat.
type envelope struct {
	Type string       `json:"type"`
	Idea session.Idea `json:"idea"`
}

// route resolves a raw message to exactly one intent. Malformed
// envelopes and unknown type tags fall back to chat with the raw text
// as the message; routing never fails.
func route(message string) (intent, session.Idea) {
	if strings.EqualFold(strings.TrimSpace(message), helpToken) {
		return intentHelp, session.Idea{}
	}

	trimmed := strings.TrimSpace(message)
	if !strings.HasPrefix(trimmed, "{") {
		return intentChat, session.Idea{}
	}

	var env envelope
	if err := json.Unmarshal([]byte(trimmed), &env); err != nil {
		return intentChat, session.Idea{}
	}
	switch env.Type {
	case "request_ideas":
		return intentIdeas, session.Idea{}
	case "generate_viz":
		return intentGenerate, env.Idea
	default:
		return intentChat, session.Idea{}
	}
}
