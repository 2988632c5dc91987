package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-haven/backend/internal/logger"
)

// ErrEmptyCompletion is returned when the model answers with blank text.
var ErrEmptyCompletion = errors.New("model returned an empty completion")

// Service hands one complete prompt to the model and returns a single reply.
type Service struct {
	chain compose.Runnable[map[string]any, *schema.Message]
	log   *zap.Logger
}

// NewService compiles the prompt-in/text-out chain around chatModel.
func NewService(ctx context.Context, chatModel model.ChatModel, log *zap.Logger) (*Service, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.UserMessage("{prompt}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile completion chain: %w", err)
	}

	return &Service{
		chain: runnable,
		log:   logger.Module(log, "ai"),
	}, nil
}

// Complete sends prompt as a single user turn and returns the reply text unchanged.
func (s *Service) Complete(ctx context.Context, prompt string) (string, error) {
	response, err := s.chain.Invoke(ctx, map[string]any{"prompt": prompt})
	if err != nil {
		return "", fmt.Errorf("failed to run completion chain: %w", err)
	}
	if response == nil || strings.TrimSpace(response.Content) == "" {
		return "", ErrEmptyCompletion
	}

	s.log.Debug("generated completion", zap.Int("prompt_len", len(prompt)), zap.Int("length", len(response.Content)))
	return response.Content, nil
}
