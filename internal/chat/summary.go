package chat

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kurious/kurio/internal/model"
)

const (
	// summaryTokenThreshold triggers compaction once a thread's estimated
	// token count exceeds it.
	summaryTokenThreshold = 2000
	// summaryKeepMessages is how many recent messages survive verbatim.
	summaryKeepMessages = 10
)

// Summarizer compacts old conversation history into a single summary
// message once the thread grows past the token threshold.
type Summarizer struct {
	completer Completer
	logger    *zap.Logger
}

// NewSummarizer creates a history summarizer backed by the given model.
func NewSummarizer(completer Completer, logger *zap.Logger) *Summarizer {
	return &Summarizer{completer: completer, logger: logger}
}

// Compact returns a compacted history and whether compaction happened.
// The most recent messages are kept verbatim; everything older is replaced
// by one model-written summary message.
func (z *Summarizer) Compact(ctx context.Context, history []model.Message) ([]model.Message, bool, error) {
	if estimateTokens(history) <= summaryTokenThreshold || len(history) <= summaryKeepMessages {
		return history, false, nil
	}

	cut := len(history) - summaryKeepMessages
	// Never orphan tool results from the assistant message that issued
	// their calls.
	for cut > 0 && history[cut].Role == model.RoleTool {
		cut--
	}
	if cut == 0 {
		return history, false, nil
	}
	older, recent := history[:cut], history[cut:]

	summary, err := z.summarize(ctx, older)
	if err != nil {
		return history, false, fmt.Errorf("summarize history: %w", err)
	}

	compacted := make([]model.Message, 0, len(recent)+1)
	compacted = append(compacted, model.Message{
		Role:    model.RoleSystem,
		Content: "Summary of the earlier conversation:\n" + summary,
	})
	compacted = append(compacted, recent...)

	z.logger.Info("history compacted",
		zap.Int("summarized", len(older)),
		zap.Int("kept", len(recent)))
	return compacted, true, nil
}

func (z *Summarizer) summarize(ctx context.Context, msgs []model.Message) (string, error) {
	var transcript strings.Builder
	for _, m := range msgs {
		text := FlattenContent(m.Content)
		if text == "" {
			continue
		}
		fmt.Fprintf(&transcript, "%s: %s\n", m.Role, text)
	}

	prompt := []model.Message{
		{
			Role: model.RoleSystem,
			Content: "Summarize the following conversation transcript. " +
				"Keep facts, decisions, and open tasks. Be concise.",
		},
		{Role: model.RoleUser, Content: transcript.String()},
	}
	comp, err := z.completer.Complete(ctx, prompt, nil)
	if err != nil {
		return "", err
	}
	return FlattenContent(comp.Message.Content), nil
}

// estimateTokens approximates token usage as one token per four
// characters of flattened content, plus a small per-message overhead.
func estimateTokens(msgs []model.Message) int {
	total := 0
	for _, m := range msgs {
		total += len(FlattenContent(m.Content))/4 + 4
	}
	return total
}
