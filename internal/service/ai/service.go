package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/site-concierge/backend/internal/analysis/reply"
	"github.com/zhouzirui/site-concierge/backend/internal/model/chat"
)

const historyLimit = 10

// Service runs the reply pipeline: transcript history plus the new message
// through a compiled eino chain ending in the keyword model.
type Service struct {
	chain compose.Runnable[[]*schema.Message, *schema.Message]
}

// NewService compiles the reply chain around selector.
func NewService(ctx context.Context, selector *reply.Selector) (*Service, error) {
	chain := compose.NewChain[[]*schema.Message, *schema.Message]()
	chain.AppendChatModel(NewKeywordModel(selector))

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile reply chain: %w", err)
	}

	return &Service{chain: runnable}, nil
}

// Reply computes the bot reply for userMessage given the prior transcript.
func (s *Service) Reply(ctx context.Context, history []chat.Message, userMessage string) (string, error) {
	input := append(buildHistoryMessages(history), schema.UserMessage(userMessage))

	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run reply chain: %w", err)
	}

	log.Debug().
		Str("component", "ai").
		Interface("category", response.Extra["category"]).
		Int("length", len(response.Content)).
		Msg("reply selected")
	return response.Content, nil
}

func buildHistoryMessages(messages []chat.Message) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	startIdx := 0
	if len(messages) > historyLimit {
		startIdx = len(messages) - historyLimit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx+1)
	for _, msg := range messages[startIdx:] {
		switch msg.Author {
		case chat.AuthorUser:
			history = append(history, schema.UserMessage(msg.Text))
		case chat.AuthorBot:
			history = append(history, schema.AssistantMessage(msg.Text, nil))
		}
	}

	return history
}
