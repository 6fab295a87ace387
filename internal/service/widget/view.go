package widget

import "github.com/zhouzirui/site-concierge/backend/internal/model/chat"

// View is the rendering capability the driver talks to. Implementations
// must not call back into the Driver from these methods.
type View interface {
	AppendMessage(msg chat.Message)
	ShowTyping()
	HideTyping()
	ClearInput()
	ScrollToLatest()
	SetWindowOpen(open bool)
}
