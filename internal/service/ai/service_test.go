package ai

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/site-concierge/backend/internal/analysis/reply"
	"github.com/zhouzirui/site-concierge/backend/internal/model/chat"
	model "github.com/zhouzirui/site-concierge/backend/internal/model/reply"
)

func newSelector() *reply.Selector {
	return reply.NewSelector(model.Seed(), model.SeedFallbacks(), rand.NewPCG(3, 3))
}

func TestServiceReplyUsesLatestMessage(t *testing.T) {
	svc, err := NewService(context.Background(), newSelector())
	if err != nil {
		t.Fatalf("NewService err: %v", err)
	}

	history := []chat.Message{
		chat.NewUserMessage("m1", "s1", "thanks", time.Now()),
		chat.NewBotMessage("m2", "s1", "You're welcome!", time.Now()),
	}

	got, err := svc.Reply(context.Background(), history, "How much does a website cost?")
	if err != nil {
		t.Fatalf("Reply err: %v", err)
	}

	want, _ := model.NewMemoryStore(model.Seed(), nil).FindByID("pricing")
	if got != want.Reply {
		t.Fatalf("expected pricing reply, got %q", got)
	}
}

func TestKeywordModelRequiresUserMessage(t *testing.T) {
	m := NewKeywordModel(newSelector())

	if _, err := m.Generate(context.Background(), []*schema.Message{schema.SystemMessage("hi")}); err == nil {
		t.Fatal("expected error without a user message")
	}
}

func TestBuildHistoryMessagesKeepsTail(t *testing.T) {
	messages := make([]chat.Message, 0, 15)
	for i := 0; i < 15; i++ {
		messages = append(messages, chat.NewUserMessage("id", "s1", "msg", time.Now()))
	}

	history := buildHistoryMessages(messages)
	if len(history) != historyLimit {
		t.Fatalf("expected %d history messages, got %d", historyLimit, len(history))
	}
	if history[0].Role != schema.User {
		t.Fatalf("unexpected role %s", history[0].Role)
	}
}
