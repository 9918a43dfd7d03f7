package chat

import "errors"

var (
	// ErrInvalidInput covers empty messages, unknown ids on user-facing calls and bad enum values.
	ErrInvalidInput = errors.New("chat: invalid input")
	// ErrNotFound is returned when switching to or addressing a conversation that does not exist.
	ErrNotFound = errors.New("chat: conversation not found")
	// ErrNoActiveConversation means the state holds no conversations at all.
	ErrNoActiveConversation = errors.New("chat: no active conversation")
)
