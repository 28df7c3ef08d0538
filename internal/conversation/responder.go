package conversation

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/whatsapp-concierge/internal/llm"
)

// LLMResponder answers chat turns with an llm.Client, using the stored
// message log as conversation context.
type LLMResponder struct {
	client       llm.Client
	systemPrompt string
	historyLimit int
	maxTokens    int32
	temperature  float32
	tracer       trace.Tracer
}

var _ ResponseGenerator = (*LLMResponder)(nil)

// ResponderOption customizes an LLMResponder.
type ResponderOption func(*LLMResponder)

// WithHistoryLimit caps how many recent log entries are sent to the model.
func WithHistoryLimit(limit int) ResponderOption {
	return func(r *LLMResponder) {
		if limit > 0 {
			r.historyLimit = limit
		}
	}
}

// WithGenerationParams sets max tokens and temperature for completions.
func WithGenerationParams(maxTokens int, temperature float64) ResponderOption {
	return func(r *LLMResponder) {
		if maxTokens > 0 {
			r.maxTokens = int32(maxTokens)
		}
		if temperature > 0 {
			r.temperature = float32(temperature)
		}
	}
}

func NewLLMResponder(client llm.Client, systemPrompt string, opts ...ResponderOption) *LLMResponder {
	if client == nil {
		panic("conversation: llm client cannot be nil")
	}
	r := &LLMResponder{
		client:       client,
		systemPrompt: systemPrompt,
		historyLimit: 20,
		tracer:       otel.Tracer("concierge.internal.conversation.responder"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *LLMResponder) Reply(ctx context.Context, conversationID string, history []MessageLogEntry) (string, error) {
	ctx, span := r.tracer.Start(ctx, "conversation.reply")
	defer span.End()

	messages := historyToMessages(history, r.historyLimit)
	span.SetAttributes(
		attribute.String("conversation.id", conversationID),
		attribute.Int("conversation.history_len", len(messages)),
	)

	req := llm.Request{
		Messages:    messages,
		MaxTokens:   r.maxTokens,
		Temperature: r.temperature,
	}
	if strings.TrimSpace(r.systemPrompt) != "" {
		req.System = []string{r.systemPrompt}
	}

	resp, err := r.client.Complete(ctx, req)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return resp.Text, nil
}

// historyToMessages keeps the most recent limit entries and drops leading
// assistant turns so the context always opens with the user.
func historyToMessages(history []MessageLogEntry, limit int) []llm.Message {
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	messages := make([]llm.Message, 0, len(history))
	for _, entry := range history {
		if strings.TrimSpace(entry.Text) == "" {
			continue
		}
		role := llm.RoleUser
		if entry.Direction == DirectionOutbound {
			role = llm.RoleAssistant
		}
		if len(messages) == 0 && role == llm.RoleAssistant {
			continue
		}
		messages = append(messages, llm.Message{Role: role, Content: entry.Text})
	}
	return messages
}
