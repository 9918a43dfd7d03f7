package reply

import "time"

type TaskStatus string

const (
	TaskQueued    TaskStatus = "queued"
	TaskRunning   TaskStatus = "running"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
	TaskDropped   TaskStatus = "dropped"
)

// Task is one scheduled reply.
type Task struct {
	ID string // ULID

	ConversationID string
	ReplyTo        int64
	Prompt         string

	Status TaskStatus

	CreatedAt time.Time
	DueAt     time.Time
}
