package model

import (
	"context"
	"fmt"
)

// Session wraps a ChatModel into the stateful conversation facade the
// sub-agent bridge and Runtime facade need (spec §6): an accumulating
// message history, a streaming send (chunked after the fact since
// ChatModel.Chat is request/response), summarization, and context-usage
// reporting. One Session belongs to one sub-agent spawn; it is not
// reused across executions.
type Session struct {
	model    ChatModel
	history  []Message
	tools    []ToolSpec
	destroyed bool

	// contextUsage reports this session's running token fraction (0-1);
	// populated by whatever CostTracker the caller wires in, via
	// SetContextUsage after each Send.
	contextUsage float64
}

// NewSession starts a session against model, seeded with an optional
// system prompt and tool specs.
func NewSession(model ChatModel, systemPrompt string, tools []ToolSpec) *Session {
	s := &Session{model: model, tools: tools}
	if systemPrompt != "" {
		s.history = append(s.history, Message{Role: RoleSystem, Content: systemPrompt})
	}
	return s
}

// Send appends a user message, runs one Chat round, appends the
// assistant's reply to history, and returns it.
func (s *Session) Send(ctx context.Context, content string) (ChatOut, error) {
	if s.destroyed {
		return ChatOut{}, fmt.Errorf("session destroyed")
	}
	s.history = append(s.history, Message{Role: RoleUser, Content: content})
	out, err := s.model.Chat(ctx, s.history, s.tools)
	if err != nil {
		return ChatOut{}, err
	}
	s.history = append(s.history, Message{Role: RoleAssistant, Content: out.Text})
	return out, nil
}

// StreamChunk is one piece of a Stream call's output.
type StreamChunk struct {
	Text string
	Done bool
}

// Stream behaves like Send but delivers the reply as chunks over a
// channel, since the underlying ChatModel has no native streaming
// transport — the full response is split on word boundaries so callers
// exercising the streaming code path see incremental output rather than
// one large chunk.
func (s *Session) Stream(ctx context.Context, content string) (<-chan StreamChunk, error) {
	if s.destroyed {
		return nil, fmt.Errorf("session destroyed")
	}
	out, err := s.Send(ctx, content)
	if err != nil {
		return nil, err
	}

	ch := make(chan StreamChunk)
	go func() {
		defer close(ch)
		words := splitWords(out.Text)
		for _, w := range words {
			select {
			case <-ctx.Done():
				return
			case ch <- StreamChunk{Text: w}:
			}
		}
		ch <- StreamChunk{Done: true}
	}()
	return ch, nil
}

// Summarize asks the model to condense the session's history into a
// short summary, without mutating history — used to shed context before
// a context_window_warning threshold is hit.
func (s *Session) Summarize(ctx context.Context) (string, error) {
	if s.destroyed {
		return "", fmt.Errorf("session destroyed")
	}
	req := append(append([]Message{}, s.history...), Message{
		Role:    RoleUser,
		Content: "Summarize the conversation so far in a few sentences.",
	})
	out, err := s.model.Chat(ctx, req, nil)
	if err != nil {
		return "", err
	}
	return out.Text, nil
}

// GetContextUsage returns the session's last-recorded token usage
// fraction (0-1), set via SetContextUsage.
func (s *Session) GetContextUsage() float64 {
	return s.contextUsage
}

// SetContextUsage records the session's current context-window fraction,
// typically sourced from a CostTracker keyed by the session's model.
func (s *Session) SetContextUsage(usage float64) {
	s.contextUsage = usage
}

// Destroy marks the session unusable; further Send/Stream/Summarize
// calls fail. Idempotent.
func (s *Session) Destroy() {
	s.destroyed = true
	s.history = nil
}

func splitWords(text string) []string {
	var words []string
	var cur []rune
	for _, r := range text {
		if r == ' ' {
			if len(cur) > 0 {
				words = append(words, string(cur)+" ")
				cur = nil
			}
			continue
		}
		cur = append(cur, r)
	}
	if len(cur) > 0 {
		words = append(words, string(cur))
	}
	return words
}
