package chat

import "time"

// SeedState returns the fixed set of conversations used on first start or
// when the persisted snapshot cannot be read.
func SeedState(now time.Time) State {
	ts := now.Format(TimestampLayout)
	base := now.UnixMilli()

	st := State{Conversations: NewConversations(), Theme: ThemeLight}
	st.Conversations.Put(&Conversation{
		ID:     "hackathon-bot",
		Name:   "Hackathon Bot",
		Avatar: "B",
		Online: true,
		Messages: []Message{{
			ID:        base,
			Text:      "Welcome to HackChat! I'm here to help you with your hackathon project. :rocket:",
			Sender:    SenderBot,
			Timestamp: ts,
			Status:    StatusRead,
		}},
	})
	st.Conversations.Put(&Conversation{
		ID:     "john-doe",
		Name:   "John Doe",
		Avatar: "J",
		Online: true,
		Messages: []Message{{
			ID:        base + 1,
			Text:      "Hey! How can I help you today? :wave:",
			Sender:    SenderBot,
			Timestamp: ts,
			Status:    StatusRead,
		}},
	})
	st.Conversations.Put(&Conversation{
		ID:     "sarah-wilson",
		Name:   "Sarah Wilson",
		Avatar: "S",
		Online: false,
		Messages: []Message{{
			ID:        base + 2,
			Text:      "Let's discuss the project timeline and milestones :star:",
			Sender:    SenderBot,
			Timestamp: ts,
			Status:    StatusSent,
		}},
	})
	st.ActiveConversationID = "hackathon-bot"
	return st
}
