package ai

import "context"

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Provider turns a conversation history (oldest first) into a reply.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}
