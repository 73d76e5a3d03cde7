// Package chat drives one agent turn per call against durable,
// thread-scoped checkpoint state and normalizes the outcome for clients.
package chat

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kurious/kurio/internal/checkpoint"
	"github.com/kurious/kurio/internal/model"
)

// DefaultThreadID is substituted when the caller supplies no
// conversation id.
const DefaultThreadID = "default"

// maxToolRounds bounds how many tool-call rounds one turn may take.
const maxToolRounds = 5

// Completer runs one inference request against the configured model.
type Completer interface {
	Complete(ctx context.Context, msgs []model.Message, tools []model.Tool) (*model.Completion, error)
}

// ToolSource provides the external toolset and executes tool calls.
type ToolSource interface {
	FetchTools(ctx context.Context) ([]model.Tool, error)
	CallTool(ctx context.Context, name, argsJSON string) (string, error)
}

// Checkpointer is the durable per-thread turn store. A value is scoped to
// one service call and released on every exit path.
type Checkpointer interface {
	Setup(ctx context.Context) error
	LoadThread(ctx context.Context, threadID string) ([]model.Message, error)
	AppendMessages(ctx context.Context, threadID string, msgs []model.Message) error
	ReplaceThread(ctx context.Context, threadID string, msgs []model.Message) error
	DeleteThread(ctx context.Context, threadID string) error
	Close(ctx context.Context) error
}

// SaverOpener acquires a checkpointer for one call.
type SaverOpener func(ctx context.Context, connString string) (Checkpointer, error)

// TurnResult is the normalized outcome of one orchestration call.
type TurnResult struct {
	Content        string           `json:"content"`
	ToolCalls      []ToolCallRecord `json:"tool_calls"`
	ConversationID string           `json:"conversation_id"`
	ResponseID     string           `json:"response_id"`
}

// NotFoundError reports a reset against a thread whose deletion failed.
type NotFoundError struct {
	Thread string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("thread %s not found", e.Thread)
}

// Service orchestrates agent turns.
type Service struct {
	connString string
	openSaver  SaverOpener
	completer  Completer
	tools      ToolSource
	summarizer *Summarizer
	logger     *zap.Logger
}

// NewService creates the orchestration service. connString is the
// checkpoint store's connection target derived by the config.
func NewService(connString string, completer Completer, tools ToolSource, logger *zap.Logger) *Service {
	return &Service{
		connString: connString,
		openSaver: func(ctx context.Context, cs string) (Checkpointer, error) {
			return checkpoint.Open(ctx, cs)
		},
		completer:  completer,
		tools:      tools,
		summarizer: NewSummarizer(completer, logger),
		logger:     logger,
	}
}

// GenerateResponse drives exactly one agent turn: scoped checkpoint
// acquisition, toolset assembly, bounded tool-call rounds against the
// model, checkpointing of the turn, and result normalization.
func (s *Service) GenerateResponse(ctx context.Context, message, threadID string) (*TurnResult, error) {
	if threadID == "" {
		threadID = DefaultThreadID
	}

	saver, err := s.openSaver(ctx, s.connString)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}
	defer saver.Close(ctx)

	if err := saver.Setup(ctx); err != nil {
		return nil, fmt.Errorf("checkpoint setup: %w", err)
	}

	// Registry failure degrades to zero tools; the turn still runs.
	tools, err := s.tools.FetchTools(ctx)
	if err != nil {
		s.logger.Warn("tool registry unavailable, continuing without tools",
			zap.String("thread_id", threadID), zap.Error(err))
		tools = nil
	}

	history, err := saver.LoadThread(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("load thread: %w", err)
	}

	history, compacted, err := s.summarizer.Compact(ctx, history)
	if err != nil {
		s.logger.Warn("history compaction failed, using full history",
			zap.String("thread_id", threadID), zap.Error(err))
	} else if compacted {
		if err := saver.ReplaceThread(ctx, threadID, history); err != nil {
			return nil, fmt.Errorf("persist compacted thread: %w", err)
		}
	}

	userMsg := model.Message{Role: model.RoleUser, Content: message}
	msgs := append(history, userMsg)
	turn := []model.Message{userMsg}

	var comp *model.Completion
	for round := 0; round < maxToolRounds; round++ {
		comp, err = s.completer.Complete(ctx, msgs, tools)
		if err != nil {
			return nil, fmt.Errorf("agent turn: %w", err)
		}

		assistant := comp.Message
		msgs = append(msgs, assistant)
		turn = append(turn, assistant)

		if len(assistant.ToolCalls) == 0 || comp.FinishReason != "tool_calls" {
			break
		}

		for _, tc := range assistant.ToolCalls {
			result, callErr := s.tools.CallTool(ctx, tc.Function.Name, tc.Function.Arguments)
			if callErr != nil {
				result = fmt.Sprintf(`{"error":%q}`, callErr.Error())
				s.logger.Warn("tool call failed",
					zap.String("tool", tc.Function.Name), zap.Error(callErr))
			}
			toolMsg := model.Message{
				Role:       model.RoleTool,
				Content:    result,
				Name:       tc.Function.Name,
				ToolCallID: tc.ID,
			}
			msgs = append(msgs, toolMsg)
			turn = append(turn, toolMsg)
		}

		s.logger.Debug("tool round complete",
			zap.Int("round", round+1),
			zap.Int("tool_calls", len(assistant.ToolCalls)))
	}

	if err := saver.AppendMessages(ctx, threadID, turn); err != nil {
		return nil, fmt.Errorf("checkpoint turn: %w", err)
	}

	responseID := comp.ID
	if responseID == "" {
		responseID = uuid.NewString()
	}

	toolCalls := ReconcileToolCalls(turn)
	if toolCalls == nil {
		toolCalls = []ToolCallRecord{}
	}

	return &TurnResult{
		Content:        FlattenContent(comp.Message.Content),
		ToolCalls:      toolCalls,
		ConversationID: threadID,
		ResponseID:     responseID,
	}, nil
}

// ResetThread deletes all checkpointed state for a thread. Any failure,
// storage errors included, surfaces as NotFoundError for the thread.
func (s *Service) ResetThread(ctx context.Context, threadID string) error {
	if threadID == "" {
		threadID = DefaultThreadID
	}
	if err := s.resetThread(ctx, threadID); err != nil {
		s.logger.Error("failed to reset thread",
			zap.String("thread_id", threadID), zap.Error(err))
		return &NotFoundError{Thread: threadID}
	}
	return nil
}

func (s *Service) resetThread(ctx context.Context, threadID string) error {
	saver, err := s.openSaver(ctx, s.connString)
	if err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}
	defer saver.Close(ctx)

	return saver.DeleteThread(ctx, threadID)
}
