package widget

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zhouzirui/site-concierge/backend/internal/analysis/reply"
	"github.com/zhouzirui/site-concierge/backend/internal/model/chat"
	model "github.com/zhouzirui/site-concierge/backend/internal/model/reply"
	"github.com/zhouzirui/site-concierge/backend/internal/service/ai"
	chatsvc "github.com/zhouzirui/site-concierge/backend/internal/service/chat"
)

type manualTask struct {
	mu      sync.Mutex
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTask) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

type manualScheduler struct {
	mu    sync.Mutex
	tasks []*manualTask
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Task {
	task := &manualTask{delay: d, f: f}
	s.mu.Lock()
	s.tasks = append(s.tasks, task)
	s.mu.Unlock()
	return task
}

func (s *manualScheduler) pending() []*manualTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*manualTask, 0, len(s.tasks))
	for _, task := range s.tasks {
		task.mu.Lock()
		if !task.stopped && !task.fired {
			out = append(out, task)
		}
		task.mu.Unlock()
	}
	return out
}

// fire runs every pending task as if its timer elapsed, even stopped ones,
// so tests can check the driver ignores late callbacks.
func (s *manualScheduler) fire(includeStopped bool) {
	s.mu.Lock()
	tasks := append([]*manualTask(nil), s.tasks...)
	s.mu.Unlock()

	for _, task := range tasks {
		task.mu.Lock()
		run := !task.fired && (includeStopped || !task.stopped)
		task.fired = true
		task.mu.Unlock()
		if run {
			task.f()
		}
	}
}

type recordingView struct {
	mu       sync.Mutex
	events   []string
	messages []chat.Message
	open     bool
}

func (v *recordingView) record(event string) {
	v.mu.Lock()
	v.events = append(v.events, event)
	v.mu.Unlock()
}

func (v *recordingView) AppendMessage(msg chat.Message) {
	v.mu.Lock()
	v.messages = append(v.messages, msg)
	v.mu.Unlock()
	v.record("message:" + string(msg.Author))
}
func (v *recordingView) ShowTyping()     { v.record("typing") }
func (v *recordingView) HideTyping()     { v.record("typing_end") }
func (v *recordingView) ClearInput()     { v.record("clear_input") }
func (v *recordingView) ScrollToLatest() { v.record("scroll") }
func (v *recordingView) SetWindowOpen(open bool) {
	v.mu.Lock()
	v.open = open
	v.mu.Unlock()
	if open {
		v.record("window:open")
	} else {
		v.record("window:closed")
	}
}

func (v *recordingView) snapshot() ([]string, []chat.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.events...), append([]chat.Message(nil), v.messages...)
}

type fixture struct {
	svc       *chatsvc.Service
	store     *chatsvc.MemoryStore
	session   *chatsvc.Session
	view      *recordingView
	scheduler *manualScheduler
	driver    *Driver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store := chatsvc.NewMemoryStore()
	svc := chatsvc.NewService(store, store, chatsvc.Options{})
	session, err := svc.CreateSession(ctx, "visitor-1")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	selector := reply.NewSelector(model.Seed(), model.SeedFallbacks(), rand.NewPCG(9, 9))
	responder, err := ai.NewService(ctx, selector)
	if err != nil {
		t.Fatalf("ai.NewService err: %v", err)
	}

	scheduler := &manualScheduler{}
	opts := DefaultOptions()
	opts.Scheduler = scheduler
	view := &recordingView{}

	return &fixture{
		svc:       svc,
		store:     store,
		session:   session,
		view:      view,
		scheduler: scheduler,
		driver:    New(session, view, responder, svc, opts),
	}
}

func pricingReply(t *testing.T) string {
	t.Helper()
	category, ok := model.NewMemoryStore(model.Seed(), nil).FindByID("pricing")
	if !ok {
		t.Fatal("pricing category missing")
	}
	return category.Reply
}

func TestTypingDelayIsBounded(t *testing.T) {
	opts := DefaultOptions()

	if got := opts.TypingDelay(""); got != time.Second {
		t.Fatalf("expected 1s for empty reply, got %s", got)
	}
	if got := opts.TypingDelay(strings.Repeat("x", 50)); got != 1500*time.Millisecond {
		t.Fatalf("expected 1.5s, got %s", got)
	}
	if got := opts.TypingDelay(strings.Repeat("x", 500)); got != 3*time.Second {
		t.Fatalf("expected cap at 3s, got %s", got)
	}
}

func TestSubmitBlankInputIsIgnored(t *testing.T) {
	f := newFixture(t)

	for _, input := range []string{"", "   ", "\t\n"} {
		if err := f.driver.Submit(context.Background(), input); err != nil {
			t.Fatalf("Submit(%q) err: %v", input, err)
		}
	}

	events, _ := f.view.snapshot()
	if len(events) != 0 {
		t.Fatalf("expected no render calls, got %v", events)
	}
	if f.session.Len() != 0 {
		t.Fatalf("expected empty transcript, got %d", f.session.Len())
	}
	if len(f.scheduler.pending()) != 0 {
		t.Fatal("expected nothing scheduled")
	}
}

func TestSubmitEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.driver.Submit(ctx, "  What is your pricing?  "); err != nil {
		t.Fatalf("Submit err: %v", err)
	}

	events, messages := f.view.snapshot()
	wantBefore := []string{"message:user", "clear_input", "typing", "scroll"}
	if strings.Join(events, ",") != strings.Join(wantBefore, ",") {
		t.Fatalf("unexpected events before delay: %v", events)
	}
	if len(messages) != 1 || messages[0].Text != "What is your pricing?" {
		t.Fatalf("unexpected user message: %+v", messages)
	}
	if f.session.Len() != 1 {
		t.Fatalf("expected user message persisted immediately, got %d", f.session.Len())
	}

	pending := f.scheduler.pending()
	if len(pending) != 1 {
		t.Fatalf("expected one scheduled reply, got %d", len(pending))
	}
	want := pricingReply(t)
	if pending[0].delay != DefaultOptions().TypingDelay(want) {
		t.Fatalf("unexpected delay %s", pending[0].delay)
	}
	if pending[0].delay < time.Second || pending[0].delay > 3*time.Second {
		t.Fatalf("delay out of bounds: %s", pending[0].delay)
	}

	f.scheduler.fire(false)

	events, messages = f.view.snapshot()
	wantAfter := append(wantBefore, "typing_end", "message:bot", "scroll")
	if strings.Join(events, ",") != strings.Join(wantAfter, ",") {
		t.Fatalf("unexpected events after delay: %v", events)
	}
	if len(messages) != 2 || messages[1].Author != chat.AuthorBot || messages[1].Text != want {
		t.Fatalf("expected pricing bot reply, got %+v", messages)
	}
	if f.session.Len() != 2 {
		t.Fatalf("expected 2 persisted messages, got %d", f.session.Len())
	}
	if f.session.ReplyPending() {
		t.Fatal("expected pending flag cleared")
	}
}

func TestSubmitPricesFallsBackToPool(t *testing.T) {
	f := newFixture(t)

	if err := f.driver.Submit(context.Background(), "What are your prices?"); err != nil {
		t.Fatalf("Submit err: %v", err)
	}
	f.scheduler.fire(false)

	_, messages := f.view.snapshot()
	if len(messages) != 2 {
		t.Fatalf("expected exactly one bot message, got %d messages", len(messages))
	}
	inPool := false
	for _, fallback := range model.SeedFallbacks() {
		if messages[1].Text == fallback {
			inPool = true
		}
	}
	if !inPool {
		t.Fatalf("expected fallback reply, got %q", messages[1].Text)
	}
}

func TestSubmitEscapesHTML(t *testing.T) {
	f := newFixture(t)

	if err := f.driver.Submit(context.Background(), `<script>alert(1)</script>`); err != nil {
		t.Fatalf("Submit err: %v", err)
	}

	_, messages := f.view.snapshot()
	if len(messages) != 1 {
		t.Fatalf("expected one message, got %d", len(messages))
	}
	if strings.ContainsAny(messages[0].Text, `<>"'`) {
		t.Fatalf("user text not escaped: %s", messages[0].Text)
	}
	if strings.Contains(messages[0].Markup, "<script>") {
		t.Fatalf("markup carries executable script: %s", messages[0].Markup)
	}
}

func TestSubmitWhileReplyPendingIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.driver.Submit(ctx, "hello"); err != nil {
		t.Fatalf("first Submit err: %v", err)
	}
	if err := f.driver.Submit(ctx, "hello again"); !errors.Is(err, ErrReplyPending) {
		t.Fatalf("expected ErrReplyPending, got %v", err)
	}
	if f.session.Len() != 1 {
		t.Fatalf("rejected send must not reach the transcript, got %d", f.session.Len())
	}

	f.scheduler.fire(false)

	if err := f.driver.Submit(ctx, "hello again"); err != nil {
		t.Fatalf("Submit after reply err: %v", err)
	}
}

func TestCloseCancelsPendingReply(t *testing.T) {
	f := newFixture(t)

	if err := f.driver.Submit(context.Background(), "thanks"); err != nil {
		t.Fatalf("Submit err: %v", err)
	}
	before, _ := f.view.snapshot()

	f.driver.Close()
	f.scheduler.fire(true)

	after, _ := f.view.snapshot()
	if len(after) != len(before) {
		t.Fatalf("view changed after close: %v", after[len(before):])
	}
	if f.session.Len() != 1 {
		t.Fatalf("cancelled reply must not be persisted, got %d", f.session.Len())
	}
	if f.session.ReplyPending() {
		t.Fatal("expected pending flag cleared on close")
	}
	if err := f.driver.Submit(context.Background(), "hi"); !errors.Is(err, ErrDriverClosed) {
		t.Fatalf("expected ErrDriverClosed, got %v", err)
	}
}

func TestAttachReplaysTranscriptInOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, text := range []string{"thanks", "what do you offer"} {
		if err := f.driver.Submit(ctx, text); err != nil {
			t.Fatalf("Submit err: %v", err)
		}
		f.scheduler.fire(false)
	}
	f.driver.Close()

	// A reload: the same session attached to a fresh view.
	view := &recordingView{}
	reloaded := New(f.session, view, nil, nil, Options{Scheduler: f.scheduler})
	if err := reloaded.Attach(ctx); err != nil {
		t.Fatalf("Attach err: %v", err)
	}

	_, replayed := view.snapshot()
	original := f.session.Transcript()
	if len(replayed) != len(original) {
		t.Fatalf("expected %d replayed messages, got %d", len(original), len(replayed))
	}
	for i := range original {
		if replayed[i].ID != original[i].ID || replayed[i].Markup != original[i].Markup {
			t.Fatalf("message %d out of order", i)
		}
	}
}

func TestAutoOpenFiresOncePerVisitor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.driver.Attach(ctx); err != nil {
		t.Fatalf("Attach err: %v", err)
	}
	pending := f.scheduler.pending()
	if len(pending) != 1 || pending[0].delay != 5*time.Second {
		t.Fatalf("expected auto-open scheduled after 5s, got %+v", pending)
	}

	f.scheduler.fire(false)

	if f.driver.Window() != chat.WindowOpen {
		t.Fatalf("expected window open, got %s", f.driver.Window())
	}
	if greeted, _ := f.svc.HasGreeted(ctx, "visitor-1"); !greeted {
		t.Fatal("expected greeted flag set")
	}

	second := New(f.session, &recordingView{}, nil, f.svc, Options{Scheduler: f.scheduler, AutoOpenDelay: 5 * time.Second})
	if err := second.Attach(ctx); err != nil {
		t.Fatalf("Attach err: %v", err)
	}
	if len(f.scheduler.pending()) != 0 {
		t.Fatal("auto-open must not be scheduled for a greeted visitor")
	}
}

func TestCloseCancelsAutoOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.driver.Attach(ctx); err != nil {
		t.Fatalf("Attach err: %v", err)
	}
	f.driver.Close()
	f.scheduler.fire(true)

	events, _ := f.view.snapshot()
	if len(events) != 0 {
		t.Fatalf("expected no renders after close, got %v", events)
	}
	if greeted, _ := f.svc.HasGreeted(ctx, "visitor-1"); greeted {
		t.Fatal("cancelled auto-open must not consume the greeting")
	}
}

func TestToggleWindow(t *testing.T) {
	f := newFixture(t)

	if state := f.driver.ToggleWindow(); state != chat.WindowOpen {
		t.Fatalf("expected open, got %s", state)
	}
	if state := f.driver.ToggleWindow(); state != chat.WindowClosed {
		t.Fatalf("expected closed, got %s", state)
	}
	f.driver.CloseWindow()

	events, _ := f.view.snapshot()
	if strings.Join(events, ",") != "window:open,window:closed" {
		t.Fatalf("unexpected window events: %v", events)
	}
}

func TestSweepSparesSessionWithAttachedDriver(t *testing.T) {
	ctx := context.Background()
	store := chatsvc.NewMemoryStore()
	svc := chatsvc.NewService(store, store, chatsvc.Options{TTL: 30 * time.Minute})
	session, err := svc.CreateSession(ctx, "visitor-1")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	selector := reply.NewSelector(model.Seed(), model.SeedFallbacks(), rand.NewPCG(1, 1))
	responder, err := ai.NewService(ctx, selector)
	if err != nil {
		t.Fatalf("ai.NewService err: %v", err)
	}
	opts := DefaultOptions()
	opts.Scheduler = &manualScheduler{}
	driver := New(session, &recordingView{}, responder, nil, opts)

	if err := driver.Attach(ctx); err != nil {
		t.Fatalf("Attach err: %v", err)
	}
	if n := svc.Sweep(ctx, time.Now().Add(31*time.Minute)); n != 0 {
		t.Fatalf("expected attached session to survive, got %d expired", n)
	}
	if err := driver.Submit(ctx, "hello"); err != nil {
		t.Fatalf("Submit after sweep err: %v", err)
	}

	driver.Close()
	if session.Views() != 0 {
		t.Fatalf("expected view to be released on close, got %d", session.Views())
	}
	if n := svc.Sweep(ctx, time.Now().Add(31*time.Minute)); n != 1 {
		t.Fatalf("expected detached session to expire, got %d", n)
	}
}
