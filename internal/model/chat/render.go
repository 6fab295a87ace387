package chat

import "strings"

var textEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#039;",
)

// TypingMarkup is the transient placeholder shown while a reply is pending.
const TypingMarkup = `<div class="chat-message bot-message typing-indicator"><div class="message-content"><p><span>.</span><span>.</span><span>.</span></p></div></div>`

// EscapeText encodes the five HTML-reserved characters.
func EscapeText(s string) string {
	return textEscaper.Replace(s)
}

// RenderMarkup wraps already display-safe text in the widget's message fragment.
func RenderMarkup(author Author, text string) string {
	class := "bot-message"
	if author == AuthorUser {
		class = "user-message"
	}

	var b strings.Builder
	b.WriteString(`<div class="chat-message `)
	b.WriteString(class)
	b.WriteString(`"><div class="message-content"><p>`)
	b.WriteString(text)
	b.WriteString(`</p></div></div>`)
	return b.String()
}
