package widget

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/site-concierge/backend/internal/model/chat"
	chatsvc "github.com/zhouzirui/site-concierge/backend/internal/service/chat"
)

var (
	ErrDriverClosed = errors.New("chat view closed")
	ErrReplyPending = errors.New("a reply is still pending")
	ErrRateLimited  = errors.New("too many messages")
)

// Responder computes the bot reply for a user message.
type Responder interface {
	Reply(ctx context.Context, history []chat.Message, userMessage string) (string, error)
}

// Greeter gates the one-time auto-open per visitor.
type Greeter interface {
	HasGreeted(ctx context.Context, visitorID string) (bool, error)
	MarkGreeted(ctx context.Context, visitorID string) error
}

// Options controls reply pacing and the auto-open timer.
type Options struct {
	TypingBase    time.Duration
	TypingPerChar time.Duration
	TypingMax     time.Duration
	AutoOpenDelay time.Duration
	Scheduler     Scheduler
}

// DefaultOptions returns a 1s base, 10ms per character, 3s cap and a 5s
// auto-open delay.
func DefaultOptions() Options {
	return Options{
		TypingBase:    time.Second,
		TypingPerChar: 10 * time.Millisecond,
		TypingMax:     3 * time.Second,
		AutoOpenDelay: 5 * time.Second,
		Scheduler:     TimerScheduler{},
	}
}

// TypingDelay returns min(base + perChar*len(reply), max).
func (o Options) TypingDelay(reply string) time.Duration {
	delay := o.TypingBase + time.Duration(utf8.RuneCountInString(reply))*o.TypingPerChar
	if o.TypingMax > 0 && delay > o.TypingMax {
		return o.TypingMax
	}
	return delay
}

// Driver renders one conversation session into one view. All view calls are
// serialized by the driver's lock.
type Driver struct {
	session   *chatsvc.Session
	view      View
	responder Responder
	greeter   Greeter
	opts      Options

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	window    chat.WindowState
	replyTask Task
	replySeq  uint64
	openTask  Task
	attached  bool
	closed    bool
}

// New binds a session to a view. greeter may be nil to disable auto-open.
func New(session *chatsvc.Session, view View, responder Responder, greeter Greeter, opts Options) *Driver {
	if opts.Scheduler == nil {
		opts.Scheduler = TimerScheduler{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Driver{
		session:   session,
		view:      view,
		responder: responder,
		greeter:   greeter,
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
		window:    chat.WindowClosed,
	}
}

// Attach replays the persisted transcript into the view and arms the
// auto-open timer for visitors that have never been greeted.
func (d *Driver) Attach(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDriverClosed
	}
	if !d.attached {
		d.attached = true
		d.session.AttachView()
	}

	transcript := d.session.Transcript()
	for _, msg := range transcript {
		d.view.AppendMessage(msg)
	}
	if len(transcript) > 0 {
		d.view.ScrollToLatest()
	}

	if d.shouldAutoOpen(ctx) {
		d.openTask = d.opts.Scheduler.AfterFunc(d.opts.AutoOpenDelay, d.autoOpen)
	}
	return nil
}

// Submit sends raw visitor input. Blank input is ignored without error.
func (d *Driver) Submit(ctx context.Context, raw string) error {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDriverClosed
	}
	if !d.session.AllowSend() {
		return ErrRateLimited
	}
	if !d.session.BeginReply() {
		return ErrReplyPending
	}

	history := d.session.Transcript()
	userMsg := chat.NewUserMessage(uuid.NewString(), d.session.ID(), text, time.Now().UTC())
	if err := d.session.Append(ctx, userMsg); err != nil {
		if errors.Is(err, chatsvc.ErrSessionEnded) {
			d.session.EndReply()
			return err
		}
		log.Warn().Err(err).Str("component", "widget").Str("session", d.session.ID()).Msg("user message not persisted")
	}

	d.view.AppendMessage(userMsg)
	d.view.ClearInput()
	d.view.ShowTyping()
	d.view.ScrollToLatest()

	reply, err := d.responder.Reply(ctx, history, text)
	if err != nil {
		d.view.HideTyping()
		d.session.EndReply()
		return fmt.Errorf("compute reply: %w", err)
	}

	delay := d.opts.TypingDelay(reply)
	d.replySeq++
	seq := d.replySeq
	d.replyTask = d.opts.Scheduler.AfterFunc(delay, func() { d.deliver(seq, reply) })

	log.Debug().Str("component", "widget").Str("session", d.session.ID()).Dur("delay", delay).Msg("reply scheduled")
	return nil
}

func (d *Driver) deliver(seq uint64, reply string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed || d.replyTask == nil || d.replySeq != seq {
		return
	}
	d.replyTask = nil

	d.view.HideTyping()

	botMsg := chat.NewBotMessage(uuid.NewString(), d.session.ID(), reply, time.Now().UTC())
	if err := d.session.Append(d.ctx, botMsg); err != nil {
		log.Warn().Err(err).Str("component", "widget").Str("session", d.session.ID()).Msg("bot message not persisted")
	}
	d.session.EndReply()

	d.view.AppendMessage(botMsg)
	d.view.ScrollToLatest()
}

func (d *Driver) shouldAutoOpen(ctx context.Context) bool {
	visitorID := d.session.VisitorID()
	if d.greeter == nil || visitorID == "" {
		return false
	}
	greeted, err := d.greeter.HasGreeted(ctx, visitorID)
	if err != nil {
		log.Warn().Err(err).Str("component", "widget").Str("visitor", visitorID).Msg("greeting flag unavailable")
		return false
	}
	return !greeted
}

func (d *Driver) autoOpen() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed || d.openTask == nil {
		return
	}
	d.openTask = nil

	// Another tab of the same visitor may have fired first.
	if !d.shouldAutoOpen(d.ctx) {
		return
	}
	if err := d.greeter.MarkGreeted(d.ctx, d.session.VisitorID()); err != nil {
		log.Warn().Err(err).Str("component", "widget").Str("visitor", d.session.VisitorID()).Msg("failed to record greeting")
	}

	if d.window == chat.WindowClosed {
		d.window = chat.WindowOpen
		d.view.SetWindowOpen(true)
	}
}

// ToggleWindow flips the window between open and closed.
func (d *Driver) ToggleWindow() chat.WindowState {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.window == chat.WindowOpen {
		d.setWindow(chat.WindowClosed)
	} else {
		d.setWindow(chat.WindowOpen)
	}
	return d.window
}

// OpenWindow opens the chat window.
func (d *Driver) OpenWindow() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.setWindow(chat.WindowOpen)
}

// CloseWindow closes the chat window.
func (d *Driver) CloseWindow() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.setWindow(chat.WindowClosed)
}

// Window returns the current window state.
func (d *Driver) Window() chat.WindowState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.window
}

func (d *Driver) setWindow(state chat.WindowState) {
	if d.closed || d.window == state {
		return
	}
	d.window = state
	d.view.SetWindowOpen(state == chat.WindowOpen)
}

// Close tears the driver down and cancels pending callbacks so nothing is
// rendered into a detached view. A cancelled reply is never delivered.
func (d *Driver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.closed = true
	d.cancel()

	if d.replyTask != nil {
		d.replyTask.Stop()
		d.replyTask = nil
		d.session.EndReply()
	}
	if d.openTask != nil {
		d.openTask.Stop()
		d.openTask = nil
	}
	if d.attached {
		d.attached = false
		d.session.DetachView()
	}
}
