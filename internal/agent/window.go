package agent

import (
	"github.com/soyeahso/gaia/internal/domain"
	"github.com/soyeahso/gaia/internal/llm"
)

// DefaultWindowSize is how many reply messages follow the system prompt in
// the model's view of a session.
const DefaultWindowSize = 6

// TrimWindow returns the leading system message of history followed by its
// last n reply messages (see domain.Message.IsReply). Tool traffic from
// earlier turns never enters the window.
func TrimWindow(history []domain.Message, n int) []domain.Message {
	if n <= 0 {
		n = DefaultWindowSize
	}

	var out []domain.Message
	rest := history
	if len(history) > 0 && history[0].Role == domain.RoleSystem {
		out = append(out, history[0])
		rest = history[1:]
	}

	replies := make([]domain.Message, 0, len(rest))
	for _, m := range rest {
		if m.IsReply() {
			replies = append(replies, m)
		}
	}
	if len(replies) > n {
		replies = replies[len(replies)-n:]
	}
	return append(out, replies...)
}

// toLLMMessages converts session messages into the provider-neutral form.
// System messages are skipped; they travel in CompletionRequest.System.
func toLLMMessages(msgs []domain.Message) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == domain.RoleSystem {
			continue
		}
		lm := llm.Message{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.ToolName,
		}
		for _, tc := range m.ToolCalls {
			lm.ToolCalls = append(lm.ToolCalls, llm.ToolCall{ID: tc.ID, Name: tc.Name, Input: tc.Input})
		}
		out = append(out, lm)
	}
	return out
}

func toDomainCalls(calls []llm.ToolCall) []domain.ToolCall {
	out := make([]domain.ToolCall, len(calls))
	for i, c := range calls {
		out[i] = domain.ToolCall{ID: c.ID, Name: c.Name, Input: c.Input}
	}
	return out
}
