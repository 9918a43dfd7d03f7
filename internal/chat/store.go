package chat

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// TimestampLayout is the display format captured on every message.
const TimestampLayout = "15:04"

// Scheduler receives reply work from the Store. Implementations must not
// call back into the Store while holding their own locks.
type Scheduler interface {
	ScheduleReply(conversationID string, replyTo int64, userText string)
	Forget(conversationID string)
}

type ChangeKind string

const (
	ChangeUserMessage ChangeKind = "user_message"
	ChangeBotMessage  ChangeKind = "bot_message"
	ChangeReplyFailed ChangeKind = "reply_failed"
	ChangeActive      ChangeKind = "active_switched"
	ChangeTheme       ChangeKind = "theme_changed"
	ChangeRead        ChangeKind = "messages_read"
	ChangeCreated     ChangeKind = "conversation_created"
	ChangeDeleted     ChangeKind = "conversation_deleted"
)

// Change describes one committed mutation. Seq is strictly increasing.
type Change struct {
	Seq            uint64     `json:"seq"`
	Kind           ChangeKind `json:"kind"`
	ConversationID string     `json:"conversation_id,omitempty"`
	MessageID      int64      `json:"message_id,omitempty"`
	At             time.Time  `json:"at"`
}

// Observer is notified synchronously, in commit order, after every mutation.
// The state is a private copy. Observers must not call Store mutators.
type Observer interface {
	Committed(ctx context.Context, change Change, state State)
}

type ObserverFunc func(ctx context.Context, change Change, state State)

func (f ObserverFunc) Committed(ctx context.Context, change Change, state State) {
	f(ctx, change, state)
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store owns the ChatState. It is the only write path into it.
type Store struct {
	mu        sync.Mutex
	state     State
	lastID    int64
	seq       uint64
	scheduler Scheduler
	observers []Observer

	now    func() time.Time
	logger *slog.Logger
}

// NewStore takes ownership of a copy of st.
func NewStore(st State, opts ...Option) *Store {
	s := &Store{
		state:  st.Clone(),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.state.normalize()
	s.lastID = s.state.maxMessageID()
	if s.state.ActiveConversationID == "" {
		s.logger.Warn("chat state has no conversations")
	}
	return s
}

// InitialState returns the loaded snapshot or, when it is nil, the seed set.
func InitialState(loaded *State, now time.Time) State {
	if loaded != nil {
		return *loaded
	}
	return SeedState(now)
}

// UseScheduler wires the reply scheduler. Without one no replies are produced.
func (s *Store) UseScheduler(sch Scheduler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduler = sch
}

func (s *Store) Observe(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

func (s *Store) AppendUserMessage(ctx context.Context, conversationID, text string) (Message, error) {
	if strings.TrimSpace(text) == "" {
		return Message{}, fmt.Errorf("%w: message text is empty", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.state.Conversations.Get(conversationID)
	if !ok {
		return Message{}, fmt.Errorf("%w: unknown conversation %q", ErrInvalidInput, conversationID)
	}

	msg := s.newMessageLocked(text, SenderUser)
	c.Messages = append(c.Messages, msg)
	if s.scheduler != nil {
		c.pending++
	}
	s.commitLocked(ctx, ChangeUserMessage, conversationID, msg.ID)

	// scheduled under the store lock so two sends keep their order
	if s.scheduler != nil {
		s.scheduler.ScheduleReply(conversationID, msg.ID, text)
	}
	return msg, nil
}

// AppendBotMessage commits a generated reply. It returns false when the
// conversation no longer holds the user message replyTo, which includes a
// conversation deleted and re-created under the same id: message ids are
// never reused.
func (s *Store) AppendBotMessage(ctx context.Context, conversationID, text string, replyTo int64) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.state.Conversations.Get(conversationID)
	if !ok || userMessageIndex(c, replyTo) < 0 {
		s.logger.Info("bot reply dropped, conversation gone", "conversation_id", conversationID, "reply_to", replyTo)
		return Message{}, false
	}

	msg := s.newMessageLocked(text, SenderBot)
	c.Messages = append(c.Messages, msg)
	setStatus(c, replyTo, StatusRead)
	if c.pending > 0 {
		c.pending--
	}
	s.commitLocked(ctx, ChangeBotMessage, conversationID, msg.ID)
	return msg, true
}

// FailReply closes the pending slot of a reply that could not be generated
// and marks the triggering user message failed.
func (s *Store) FailReply(ctx context.Context, conversationID string, replyTo int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.state.Conversations.Get(conversationID)
	if !ok || userMessageIndex(c, replyTo) < 0 {
		return false
	}
	setStatus(c, replyTo, StatusFailed)
	if c.pending > 0 {
		c.pending--
	}
	s.commitLocked(ctx, ChangeReplyFailed, conversationID, replyTo)
	return true
}

// SwitchActiveConversation never cancels replies of other conversations.
func (s *Store) SwitchActiveConversation(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.Conversations.Get(conversationID); !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, conversationID)
	}
	s.state.ActiveConversationID = conversationID
	s.commitLocked(ctx, ChangeActive, conversationID, 0)
	return nil
}

func (s *Store) UnreadCount(conversationID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.state.Conversations.Get(conversationID)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrNotFound, conversationID)
	}
	return c.UnreadCount(), nil
}

// MarkRead moves every bot message of the conversation to read.
func (s *Store) MarkRead(ctx context.Context, conversationID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.state.Conversations.Get(conversationID)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrNotFound, conversationID)
	}
	changed := 0
	for i := range c.Messages {
		if c.Messages[i].Sender == SenderBot && c.Messages[i].Status != StatusRead {
			c.Messages[i].Status = StatusRead
			changed++
		}
	}
	if changed > 0 {
		s.commitLocked(ctx, ChangeRead, conversationID, 0)
	}
	return changed, nil
}

func (s *Store) SetTheme(ctx context.Context, theme Theme) error {
	if !theme.Valid() {
		return fmt.Errorf("%w: theme %q", ErrInvalidInput, theme)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Theme = theme
	s.commitLocked(ctx, ChangeTheme, "", 0)
	return nil
}

func (s *Store) ToggleTheme(ctx context.Context) Theme {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Theme == ThemeDark {
		s.state.Theme = ThemeLight
	} else {
		s.state.Theme = ThemeDark
	}
	s.commitLocked(ctx, ChangeTheme, "", 0)
	return s.state.Theme
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

func (s *Store) CreateConversation(ctx context.Context, name, avatar string, online bool) (Conversation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Conversation{}, fmt.Errorf("%w: conversation name is empty", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := strings.Trim(slugRe.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if _, taken := s.state.Conversations.Get(id); taken || id == "" {
		suffix := strings.ToLower(ulid.Make().String())
		id = strings.TrimPrefix(id+"-"+suffix[len(suffix)-8:], "-")
	}

	c := &Conversation{
		ID:       id,
		Name:     name,
		Avatar:   AvatarLabel(name, avatar),
		Online:   online,
		Messages: []Message{},
	}
	s.state.Conversations.Put(c)
	if s.state.ActiveConversationID == "" {
		s.state.ActiveConversationID = id
	}
	s.commitLocked(ctx, ChangeCreated, id, 0)
	return *c.clone(), nil
}

// DeleteConversation removes a conversation and drops its queued replies.
func (s *Store) DeleteConversation(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.Conversations.Delete(conversationID) {
		return fmt.Errorf("%w: %q", ErrNotFound, conversationID)
	}
	if s.scheduler != nil {
		s.scheduler.Forget(conversationID)
	}
	s.state.normalize()
	s.commitLocked(ctx, ChangeDeleted, conversationID, 0)
	return nil
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

func (s *Store) Conversation(conversationID string) (Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.state.Conversations.Get(conversationID)
	if !ok {
		return Conversation{}, false
	}
	return *c.clone(), true
}

func (s *Store) HasConversation(conversationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.state.Conversations.Get(conversationID)
	return ok
}

// ActiveConversation returns ErrNoActiveConversation when the state is empty.
func (s *Store) ActiveConversation() (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.state.Conversations.Get(s.state.ActiveConversationID)
	if !ok {
		return Conversation{}, ErrNoActiveConversation
	}
	return *c.clone(), nil
}

func (s *Store) Theme() Theme {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Theme
}

func (s *Store) newMessageLocked(text string, sender Sender) Message {
	now := s.now()
	id := now.UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return Message{
		ID:        id,
		Text:      text,
		Sender:    sender,
		Timestamp: now.Format(TimestampLayout),
		Status:    StatusSent,
	}
}

func (s *Store) commitLocked(ctx context.Context, kind ChangeKind, conversationID string, messageID int64) {
	s.seq++
	if len(s.observers) == 0 {
		return
	}
	change := Change{
		Seq:            s.seq,
		Kind:           kind,
		ConversationID: conversationID,
		MessageID:      messageID,
		At:             s.now(),
	}
	snap := s.state.Clone()
	// the mutation is already committed; a caller that goes away must not
	// cut the snapshot write short
	octx := context.WithoutCancel(ctx)
	for _, o := range s.observers {
		o.Committed(octx, change, snap)
	}
}

func userMessageIndex(c *Conversation, messageID int64) int {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].ID == messageID {
			if c.Messages[i].Sender == SenderUser {
				return i
			}
			return -1
		}
	}
	return -1
}

// setStatus updates a user message unless it already failed.
func setStatus(c *Conversation, messageID int64, status Status) {
	if i := userMessageIndex(c, messageID); i >= 0 && c.Messages[i].Status != StatusFailed {
		c.Messages[i].Status = status
	}
}
