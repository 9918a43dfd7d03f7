package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

func (s Sender) Valid() bool { return s == SenderUser || s == SenderBot }

func (s *Sender) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if !Sender(raw).Valid() {
		return fmt.Errorf("unknown sender %q", raw)
	}
	*s = Sender(raw)
	return nil
}

type Status string

const (
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusSending, StatusSent, StatusDelivered, StatusRead, StatusFailed:
		return true
	}
	return false
}

func (s *Status) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if !Status(raw).Valid() {
		return fmt.Errorf("unknown message status %q", raw)
	}
	*s = Status(raw)
	return nil
}

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

func (t Theme) Valid() bool { return t == ThemeLight || t == ThemeDark }

func (t *Theme) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if !Theme(raw).Valid() {
		return fmt.Errorf("unknown theme %q", raw)
	}
	*t = Theme(raw)
	return nil
}

type Message struct {
	ID        int64  `json:"id"`
	Text      string `json:"text"`
	Sender    Sender `json:"sender"`
	Timestamp string `json:"timestamp"`
	Status    Status `json:"status"`
}

type Conversation struct {
	ID       string    `json:"-"`
	Name     string    `json:"name"`
	Avatar   string    `json:"avatar"`
	Online   bool      `json:"online"`
	Messages []Message `json:"messages"`

	// queued replies; never persisted
	pending int
}

// ReplyPending reports whether a reply window is open for the conversation.
func (c *Conversation) ReplyPending() bool { return c.pending > 0 }

// LastMessage returns the most recent message, if any.
func (c *Conversation) LastMessage() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// UnreadCount counts bot messages that have not been read yet.
func (c *Conversation) UnreadCount() int {
	n := 0
	for i := range c.Messages {
		if c.Messages[i].Sender == SenderBot && c.Messages[i].Status != StatusRead {
			n++
		}
	}
	return n
}

// validate checks what a decoded conversation must hold: known sender and
// status on every message and positive ids, strictly increasing.
func (c *Conversation) validate() error {
	var prev int64
	for i := range c.Messages {
		m := &c.Messages[i]
		if m.ID <= 0 {
			return fmt.Errorf("message %d: invalid id %d", i, m.ID)
		}
		if m.ID <= prev {
			return fmt.Errorf("message %d: id %d not after %d", i, m.ID, prev)
		}
		if !m.Sender.Valid() {
			return fmt.Errorf("message %d: invalid sender %q", m.ID, m.Sender)
		}
		if !m.Status.Valid() {
			return fmt.Errorf("message %d: invalid status %q", m.ID, m.Status)
		}
		prev = m.ID
	}
	return nil
}

func (c *Conversation) clone() *Conversation {
	cp := *c
	cp.Messages = make([]Message, len(c.Messages))
	copy(cp.Messages, c.Messages)
	return &cp
}

// AvatarLabel falls back to the upper-cased first letter of the name.
func AvatarLabel(name, avatar string) string {
	if a := strings.TrimSpace(avatar); a != "" {
		return a
	}
	r, _ := utf8.DecodeRuneInString(strings.TrimSpace(name))
	if r == utf8.RuneError {
		return "?"
	}
	return strings.ToUpper(string(r))
}

// Conversations is an insertion-ordered id -> Conversation mapping.
type Conversations struct {
	order []string
	items map[string]*Conversation
}

func NewConversations() Conversations {
	return Conversations{items: make(map[string]*Conversation)}
}

func (cs *Conversations) Len() int { return len(cs.order) }

// IDs returns the keys in insertion order.
func (cs *Conversations) IDs() []string { return append([]string(nil), cs.order...) }

func (cs *Conversations) Get(id string) (*Conversation, bool) {
	c, ok := cs.items[id]
	return c, ok
}

// Put appends a new key or replaces an existing entry in place.
func (cs *Conversations) Put(c *Conversation) {
	if cs.items == nil {
		cs.items = make(map[string]*Conversation)
	}
	if _, ok := cs.items[c.ID]; !ok {
		cs.order = append(cs.order, c.ID)
	}
	cs.items[c.ID] = c
}

func (cs *Conversations) Delete(id string) bool {
	if _, ok := cs.items[id]; !ok {
		return false
	}
	delete(cs.items, id)
	for i, k := range cs.order {
		if k == id {
			cs.order = append(cs.order[:i:i], cs.order[i+1:]...)
			break
		}
	}
	return true
}

// Each visits conversations in insertion order until fn returns false.
func (cs *Conversations) Each(fn func(*Conversation) bool) {
	for _, id := range cs.order {
		if !fn(cs.items[id]) {
			return
		}
	}
}

func (cs Conversations) clone() Conversations {
	out := Conversations{
		order: append([]string(nil), cs.order...),
		items: make(map[string]*Conversation, len(cs.items)),
	}
	for id, c := range cs.items {
		out.items[id] = c.clone()
	}
	return out
}

// MarshalJSON writes the object keys in insertion order.
func (cs Conversations) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range cs.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(cs.items[id])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON keeps the document order of the object keys.
func (cs *Conversations) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("conversations: expected object, got %v", tok)
	}
	out := NewConversations()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		id, _ := tok.(string)
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("conversations: empty id")
		}
		if _, dup := out.items[id]; dup {
			return fmt.Errorf("conversations: duplicate id %q", id)
		}
		var c Conversation
		if err := dec.Decode(&c); err != nil {
			return fmt.Errorf("conversation %q: %w", id, err)
		}
		if err := c.validate(); err != nil {
			return fmt.Errorf("conversation %q: %w", id, err)
		}
		c.ID = id
		if c.Messages == nil {
			c.Messages = []Message{}
		}
		out.Put(&c)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*cs = out
	return nil
}

// State is the process-wide chat state and also the snapshot document.
type State struct {
	Conversations        Conversations `json:"conversations"`
	ActiveConversationID string        `json:"activeConversationId"`
	Theme                Theme         `json:"theme"`
}

// Clone returns a deep copy that shares nothing with s.
func (s *State) Clone() State {
	return State{
		Conversations:        s.Conversations.clone(),
		ActiveConversationID: s.ActiveConversationID,
		Theme:                s.Theme,
	}
}

// normalize repairs the active id and theme after a load.
func (s *State) normalize() {
	if s.Conversations.items == nil {
		s.Conversations = NewConversations()
	}
	if _, ok := s.Conversations.Get(s.ActiveConversationID); !ok {
		s.ActiveConversationID = ""
		if s.Conversations.Len() > 0 {
			s.ActiveConversationID = s.Conversations.order[0]
		}
	}
	if !s.Theme.Valid() {
		s.Theme = ThemeLight
	}
}

// maxMessageID returns the largest message id across all conversations.
func (s *State) maxMessageID() int64 {
	var top int64
	s.Conversations.Each(func(c *Conversation) bool {
		for i := range c.Messages {
			if c.Messages[i].ID > top {
				top = c.Messages[i].ID
			}
		}
		return true
	})
	return top
}
