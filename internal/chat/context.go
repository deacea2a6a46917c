package chat

import (
	"context"

	"github.com/llmstream/openrouter-bot/internal/ai"
)

const (
	// DefaultContextLimit is assumed when a model's context length is
	// unknown.
	DefaultContextLimit = 4096

	// trimThreshold keeps headroom below the model limit for the reply.
	trimThreshold = 0.95
)

// TrimToContext evicts the oldest messages until the estimated total
// fits within trimThreshold of the limit, never evicting the last
// remaining message. Returns the surviving messages and the usage
// percentage computed over the post-trim total.
func TrimToContext(messages []ai.Message, limit int) ([]ai.Message, float64) {
	if limit <= 0 {
		limit = DefaultContextLimit
	}

	total := 0
	for _, m := range messages {
		total += EstimateTokens(m.Content)
	}

	for float64(total) > float64(limit)*trimThreshold && len(messages) > 1 {
		total -= EstimateTokens(messages[0].Content)
		messages = messages[1:]
	}

	return messages, float64(total) / float64(limit) * 100
}

// BuildContext assembles the message list for one generation: the
// dialog's displayed history plus the current user message, trimmed to
// the model's context budget. A history read failure is propagated and
// the caller decides whether to fall back to the bare current message.
func (s *Service) BuildContext(ctx context.Context, userID, dialogNumber int64, modelID, currentMessage string, limit int) ([]ai.Message, float64, error) {
	if limit <= 0 {
		limit = s.repo.ModelContextLength(ctx, modelID)
		if limit <= 0 {
			limit = DefaultContextLimit
		}
	}

	history, err := s.repo.DialogHistory(ctx, userID, dialogNumber)
	if err != nil {
		return nil, 0, err
	}

	messages := history
	if n := len(messages); n == 0 || messages[n-1].Role != "user" || messages[n-1].Content != currentMessage {
		messages = append(messages, ai.Message{Role: "user", Content: currentMessage})
	}

	messages, usage := TrimToContext(messages, limit)
	return messages, usage, nil
}
