package agent

import (
	"context"

	"github.com/coldwatch/coldwatch/internal/llm"
	"github.com/coldwatch/coldwatch/internal/prompts"
	"github.com/coldwatch/coldwatch/internal/session"
)

// runChat executes the chat node: the reasoning loop over the session's
// history, ending in exactly one text event and one final assistant
// turn. Returns false when the execution failed.
func (a *Agent) runChat(ctx context.Context, em *emitter, sess *session.Session, requestID string) bool {
	em.Progress("thinking", "Analyzing your question...")

	messages := []llm.Message{{Role: "system", Content: prompts.ChatSystem(a.now(ctx))}}
	messages = append(messages, sess.History(a.historyWindow)...)

	res, err := a.react(ctx, em, reactParams{
		requestID: requestID,
		model:     a.chatModel,
		messages:  messages,
		sess:      sess,
	})
	if err != nil {
		a.logger.Error("chat node failed", "request_id", requestID, "error", err)
		em.Error("I couldn't reach the model. Please try again.")
		return false
	}

	em.Text(res.Content)
	a.sessions.Append(sess, session.Turn{Role: "assistant", Content: res.Content})
	return true
}
