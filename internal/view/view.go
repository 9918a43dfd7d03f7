package view

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/suPer8Hu/hackchat/internal/chat"
)

const (
	PreviewLimit = 40
	EmptyPreview = "No messages"
)

var emojiMarkup = regexp.MustCompile(`:([a-zA-Z0-9_+-]+):`)

// Summary is one sidebar row.
type Summary struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Avatar       string `json:"avatar"`
	Online       bool   `json:"online"`
	Preview      string `json:"preview"`
	Time         string `json:"time"`
	Unread       int    `json:"unread"`
	Active       bool   `json:"active"`
	ReplyPending bool   `json:"reply_pending"`
}

// FilterConversations keeps conversations whose name or last message text
// contains term, ignoring case, in insertion order. An empty term keeps all.
func FilterConversations(st chat.State, term string) []Summary {
	needle := strings.ToLower(term)
	out := []Summary{}
	st.Conversations.Each(func(c *chat.Conversation) bool {
		last, hasLast := c.LastMessage()
		if needle != "" &&
			!strings.Contains(strings.ToLower(c.Name), needle) &&
			!(hasLast && strings.Contains(strings.ToLower(last.Text), needle)) {
			return true
		}
		out = append(out, summarize(c, st.ActiveConversationID))
		return true
	})
	return out
}

func summarize(c *chat.Conversation, activeID string) Summary {
	s := Summary{
		ID:           c.ID,
		Name:         c.Name,
		Avatar:       chat.AvatarLabel(c.Name, c.Avatar),
		Online:       c.Online,
		Preview:      EmptyPreview,
		Unread:       c.UnreadCount(),
		Active:       c.ID == activeID,
		ReplyPending: c.ReplyPending(),
	}
	if last, ok := c.LastMessage(); ok {
		s.Preview = Preview(last.Text)
		s.Time = last.Timestamp
	}
	return s
}

// Preview strips :emoji: markup and truncates to PreviewLimit characters.
func Preview(text string) string {
	clean := emojiMarkup.ReplaceAllString(text, "")
	if utf8.RuneCountInString(clean) <= PreviewLimit {
		return clean
	}
	return string([]rune(clean)[:PreviewLimit]) + "..."
}
