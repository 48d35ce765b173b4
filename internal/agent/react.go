package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coldwatch/coldwatch/internal/events"
	"github.com/coldwatch/coldwatch/internal/llm"
	"github.com/coldwatch/coldwatch/internal/prompts"
	"github.com/coldwatch/coldwatch/internal/session"
	"github.com/coldwatch/coldwatch/internal/tools"
)

// toolPayload is one settled tool call, kept in call order so the
// generate node can assemble gathered data from the loop's trace.
type toolPayload struct {
	Name   string
	Result *tools.Result
}

// reactResult is the outcome of one reasoning loop run.
type reactResult struct {
	Content    string
	Iterations int
	Payloads   []toolPayload
}

// reactParams configures one loop run.
type reactParams struct {
	requestID string
	model     string
	messages  []llm.Message
	// sess, when set, receives assistant and tool turns as the loop
	// progresses. The final answer turn is the caller's to append.
	sess *session.Session
}

// react runs the reasoning loop: call the model, execute any requested
// tools concurrently, feed the settled batch back, repeat. A response
// with zero tool calls is final. When the iteration bound is exhausted
// the model gets one last tool-free call to force a text answer.
func (a *Agent) react(ctx context.Context, em *emitter, p reactParams) (*reactResult, error) {
	messages := p.messages
	res := &reactResult{}
	schemas := a.registry.Schemas()

	for iter := 0; iter < a.maxIterations; iter++ {
		resp, err := a.chatOnce(ctx, p.requestID, iter, p.model, messages, schemas)
		if err != nil {
			return nil, err
		}

		if resp.Final() {
			content := strings.TrimSpace(resp.Message.Content)
			if content == "" {
				// One nudge, then give up with the fallback answer.
				if !hasNudge(messages) {
					messages = append(messages, llm.Message{Role: "user", Content: prompts.EmptyResponseNudge})
					continue
				}
				content = prompts.EmptyResponseFallback
			}
			res.Content = content
			res.Iterations = iter + 1
			return res, nil
		}

		messages = append(messages, resp.Message)
		if p.sess != nil {
			a.sessions.Append(p.sess, session.Turn{
				Role:      "assistant",
				Content:   resp.Message.Content,
				ToolCalls: resp.Message.ToolCalls,
			})
		}

		settled, err := a.executeBatch(ctx, em, p.requestID, resp.Message.ToolCalls)
		if err != nil {
			return nil, err
		}
		for _, s := range settled {
			messages = append(messages, llm.Message{
				Role:       "tool",
				Content:    s.content,
				ToolCallID: s.callID,
			})
			if p.sess != nil {
				a.sessions.Append(p.sess, session.Turn{
					Role:       "tool",
					Content:    s.content,
					ToolCallID: s.callID,
					ToolName:   s.name,
				})
			}
			if s.result != nil {
				res.Payloads = append(res.Payloads, toolPayload{Name: s.name, Result: s.result})
			}
		}
		res.Iterations = iter + 1
	}

	// Iteration bound exhausted: force a text answer without tools.
	a.logger.Warn("reasoning loop exhausted", "request_id", p.requestID, "max_iterations", a.maxIterations)
	messages = append(messages, llm.Message{Role: "user", Content: prompts.EmptyResponseNudge})
	resp, err := a.chatOnce(ctx, p.requestID, a.maxIterations, p.model, messages, nil)
	if err != nil {
		return nil, err
	}
	content := strings.TrimSpace(resp.Message.Content)
	if content == "" {
		content = prompts.EmptyResponseFallback
	}
	res.Content = content
	return res, nil
}

// chatOnce makes one completion call under the configured timeout.
func (a *Agent) chatOnce(ctx context.Context, requestID string, iter int, model string, messages []llm.Message, schemas []llm.ToolSchema) (*llm.Response, error) {
	a.bus.Publish(events.Event{
		Source: events.SourceAgent,
		Kind:   events.KindLLMCall,
		Data:   map[string]any{"request_id": requestID, "iter": iter, "model": model},
	})

	callCtx, cancel := context.WithTimeout(ctx, a.completionTimeout)
	defer cancel()

	resp, err := a.llm.Chat(callCtx, model, messages, schemas)
	if err != nil {
		return nil, fmt.Errorf("completion call: %w", err)
	}

	a.bus.Publish(events.Event{
		Source: events.SourceAgent,
		Kind:   events.KindLLMResponse,
		Data: map[string]any{
			"request_id": requestID,
			"iter":       iter,
			"model":      resp.Model,
			"tokens_in":  resp.InputTokens,
			"tokens_out": resp.OutputTokens,
			"tool_calls": len(resp.Message.ToolCalls),
		},
	})
	return resp, nil
}

// settledCall is one finished tool call from a batch.
type settledCall struct {
	callID  string
	name    string
	content string
	result  *tools.Result // nil when the call failed
}

// executeBatch runs one reasoning step's tool calls concurrently and
// waits for every one to settle before returning. Validation failures
// are fed back to the model verbatim; execution failures are retried
// once first. The batch errors only when the context is cancelled, in
// which case it is incomplete and the loop must stop.
func (a *Agent) executeBatch(ctx context.Context, em *emitter, requestID string, calls []llm.ToolCall) ([]settledCall, error) {
	settled := make([]settledCall, len(calls))
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		go func(i int, call llm.ToolCall) {
			defer wg.Done()
			settled[i] = a.executeOne(ctx, em, requestID, call)
		}(i, call)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("tool batch interrupted: %w", err)
	}
	return settled, nil
}

func (a *Agent) executeOne(ctx context.Context, em *emitter, requestID string, call llm.ToolCall) settledCall {
	if em != nil {
		em.ToolUse(call.Name, ToolRunning, a.registry.FriendlyName(call.Name)+"...")
	}
	a.bus.Publish(events.Event{
		Source: events.SourceTools,
		Kind:   events.KindToolCall,
		Data:   map[string]any{"request_id": requestID, "tool": call.Name},
	})

	started := time.Now()
	result, err := a.runTool(ctx, call)

	a.bus.Publish(events.Event{
		Source: events.SourceTools,
		Kind:   events.KindToolDone,
		Data: map[string]any{
			"request_id":  requestID,
			"tool":        call.Name,
			"ok":          err == nil,
			"duration_ms": time.Since(started).Milliseconds(),
		},
	})
	if em != nil {
		em.ToolUse(call.Name, ToolDone, "Done")
	}

	s := settledCall{callID: call.ID, name: call.Name}
	if err != nil {
		a.logger.Warn("tool call failed", "request_id", requestID, "tool", call.Name, "error", err)
		// The failure becomes the tool result so reasoning can adjust.
		s.content = fmt.Sprintf(`{"data":[],"summary":"Error: %s"}`, strings.ReplaceAll(err.Error(), `"`, `'`))
		return s
	}
	s.content = result.JSON()
	s.result = result
	return s
}

// runTool executes one call under the tool timeout, retrying exactly
// once on execution failure. Invalid arguments are never retried.
func (a *Agent) runTool(ctx context.Context, call llm.ToolCall) (*tools.Result, error) {
	toolCtx, cancel := context.WithTimeout(ctx, a.toolTimeout)
	defer cancel()

	result, err := a.registry.Execute(toolCtx, call.Name, call.Arguments)
	var execErr *tools.ErrExecutionFailed
	if err != nil && errors.As(err, &execErr) && ctx.Err() == nil {
		retryCtx, retryCancel := context.WithTimeout(ctx, a.toolTimeout)
		defer retryCancel()
		result, err = a.registry.Execute(retryCtx, call.Name, call.Arguments)
	}
	return result, err
}

func hasNudge(messages []llm.Message) bool {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" && messages[i].Content == prompts.EmptyResponseNudge {
			return true
		}
	}
	return false
}
