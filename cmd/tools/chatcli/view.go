package main

import (
	"fmt"
	"html"
	"io"
	"sync"

	"github.com/zhouzirui/site-concierge/backend/internal/model/chat"
)

// terminalView prints driver render calls as plain lines. Writes go through
// readline's stdout so the prompt is redrawn after asynchronous replies.
type terminalView struct {
	mu  sync.Mutex
	out io.Writer
}

func newTerminalView(out io.Writer) *terminalView {
	return &terminalView{out: out}
}

func (v *terminalView) AppendMessage(msg chat.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.printMessage(msg)
}

func (v *terminalView) ShowTyping() {
	v.println("bot is typing...")
}

func (v *terminalView) HideTyping() {}

func (v *terminalView) ClearInput() {}

func (v *terminalView) ScrollToLatest() {}

func (v *terminalView) SetWindowOpen(open bool) {
	if open {
		v.println("[chat window opened]")
		return
	}
	v.println("[chat window closed]")
}

func (v *terminalView) notice(text string) {
	v.println("! " + text)
}

func (v *terminalView) printHistory(messages []chat.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(messages) == 0 {
		fmt.Fprintln(v.out, "(no messages yet)")
		return
	}
	for _, msg := range messages {
		v.printMessage(msg)
	}
}

func (v *terminalView) printMessage(msg chat.Message) {
	label := "bot"
	if msg.Author == chat.AuthorUser {
		label = "you"
	}
	fmt.Fprintf(v.out, "%s %s: %s\n", msg.CreatedAt.Format("15:04:05"), label, html.UnescapeString(msg.Text))
}

func (v *terminalView) println(line string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintln(v.out, line)
}
