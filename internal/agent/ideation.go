package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/coldwatch/coldwatch/internal/llm"
	"github.com/coldwatch/coldwatch/internal/prompts"
	"github.com/coldwatch/coldwatch/internal/session"
)

// maxIdeas caps how many suggestions one ideation run can return.
const maxIdeas = 5

// runIdeation executes the ideation node: one tool-free completion over
// recent conversation context, parsed into a validated idea set that
// replaces the session's cache. Malformed entries are dropped; an
// unusable response falls back to the default ideas rather than
// failing.
func (a *Agent) runIdeation(ctx context.Context, em *emitter, sess *session.Session, requestID string) bool {
	em.Progress("ideating", "Thinking of visualizations...")

	messages := []llm.Message{
		{Role: "system", Content: prompts.Ideation},
		{Role: "user", Content: ideationContext(sess)},
	}

	ideas := defaultIdeas()
	resp, err := a.chatOnce(ctx, requestID, 0, a.vizModel, messages, nil)
	if err != nil {
		a.logger.Warn("ideation completion failed, using defaults", "request_id", requestID, "error", err)
	} else if parsed := parseIdeas(resp.Message.Content); len(parsed) > 0 {
		ideas = parsed
	} else {
		a.logger.Warn("no valid ideas in response, using defaults", "request_id", requestID)
	}

	sess.SetIdeas(ideas)
	em.Ideas(ideas)
	return true
}

// ideationContext renders recent user/assistant turns as plain text,
// skipping structured envelopes and tool turns.
func ideationContext(sess *session.Session) string {
	var lines []string
	for _, t := range sess.Turns() {
		if strings.HasPrefix(strings.TrimSpace(t.Content), "{") {
			continue
		}
		switch t.Role {
		case "user":
			lines = append(lines, "User: "+t.Content)
		case "assistant":
			content := t.Content
			if len(content) > 200 {
				content = content[:200] + "..."
			}
			if content != "" {
				lines = append(lines, "Assistant: "+content)
			}
		}
	}
	if len(lines) > 10 {
		lines = lines[len(lines)-10:]
	}

	context := strings.Join(lines, "\n")
	if context == "" {
		context = "No prior conversation - suggest general facility visualizations."
	}
	return fmt.Sprintf("## Conversation History\n\n%s\n\nGenerate 3-4 relevant visualization ideas.", context)
}

// parseIdeas extracts valid ideas from the model's JSON output. Entries
// missing an id, title, or description are dropped individually.
func parseIdeas(content string) []session.Idea {
	var payload struct {
		Ideas []session.Idea `json:"ideas"`
	}
	if err := json.Unmarshal([]byte(stripFences(content)), &payload); err != nil {
		return nil
	}

	var out []session.Idea
	for _, idea := range payload.Ideas {
		if idea.ID == "" || idea.Title == "" || idea.Description == "" {
			continue
		}
		out = append(out, idea)
		if len(out) == maxIdeas {
			break
		}
	}
	return out
}

// stripFences removes a surrounding markdown code fence, if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if idx := strings.Index(s, "\n"); idx != -1 {
		s = s[idx+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// defaultIdeas is the fallback set when generation fails or returns
// nothing usable.
func defaultIdeas() []session.Idea {
	return []session.Idea{
		{
			ID:          "zone-health-1",
			Title:       "Zone Health Overview",
			Description: "Current temperatures across all zones compared to targets",
			Icon:        "thermometer",
			Reasoning:   "Get a quick overview of facility status",
			Spec:        map[string]any{"type": "zone-health", "timeRange": "24h"},
		},
		{
			ID:          "timeline-all",
			Title:       "24-Hour Temperature Timeline",
			Description: "Temperature readings across all zones for the past 24 hours",
			Icon:        "clock",
			Reasoning:   "See how temperatures have changed over time",
			Spec:        map[string]any{"type": "timeline", "timeRange": "24h", "metrics": []any{"temperature"}},
		},
		{
			ID:          "heatmap-doors",
			Title:       "Door Activity Heatmap",
			Description: "Door open/close patterns by hour and day",
			Icon:        "activity",
			Reasoning:   "Understand facility usage patterns",
			Spec:        map[string]any{"type": "heatmap", "metric": "door_opens", "timeRange": "7d"},
		},
	}
}
