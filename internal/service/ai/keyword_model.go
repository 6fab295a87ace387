package ai

import (
	"context"
	"errors"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/site-concierge/backend/internal/analysis/reply"
)

var errNoUserMessage = errors.New("no user message in input")

// KeywordModel adapts the keyword selector to eino's ChatModel so the reply
// pipeline can be composed like any other model.
type KeywordModel struct {
	selector *reply.Selector
}

var _ model.ChatModel = (*KeywordModel)(nil)

// NewKeywordModel wraps selector.
func NewKeywordModel(selector *reply.Selector) *KeywordModel {
	return &KeywordModel{selector: selector}
}

// Generate answers the most recent user message.
func (m *KeywordModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	query, ok := lastUserContent(input)
	if !ok {
		return nil, errNoUserMessage
	}

	decision := m.selector.Decide(query)
	out := schema.AssistantMessage(decision.Reply, nil)
	out.Extra = map[string]any{
		"category": decision.CategoryID,
		"fallback": decision.Fallback,
	}
	return out, nil
}

// Stream emits the whole reply as a single chunk.
func (m *KeywordModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	out, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{out}), nil
}

// BindTools is a no-op; keyword replies never call tools.
func (m *KeywordModel) BindTools(_ []*schema.ToolInfo) error {
	return nil
}

func lastUserContent(input []*schema.Message) (string, bool) {
	for i := len(input) - 1; i >= 0; i-- {
		if input[i] != nil && input[i].Role == schema.User {
			return input[i].Content, true
		}
	}
	return "", false
}
