package reply

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/suPer8Hu/hackchat/internal/ai"
	"github.com/suPer8Hu/hackchat/internal/chat"
)

// Sink is the part of the conversation store the scheduler writes to.
type Sink interface {
	HasConversation(conversationID string) bool
	AppendBotMessage(ctx context.Context, conversationID, text string, replyTo int64) (chat.Message, bool)
	FailReply(ctx context.Context, conversationID string, replyTo int64) bool
}

// Recorder receives delivery outcomes, typically for metrics.
type Recorder interface {
	ReplyScheduled()
	ReplyDelivered(latency time.Duration)
	ReplyDropped(reason string, n int)
	ReplyFailed()
}

type Option func(*Scheduler)

// WithDelay overrides the delay distribution.
func WithDelay(fn func() time.Duration) Option {
	return func(s *Scheduler) { s.delay = fn }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) { s.rec = r }
}

func WithGenerateTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.generateTimeout = d }
}

// UniformDelay draws delays uniformly from [lo, hi].
func UniformDelay(rng *rand.Rand, lo, hi time.Duration) func() time.Duration {
	var mu sync.Mutex
	return func() time.Duration {
		if hi <= lo {
			return lo
		}
		mu.Lock()
		defer mu.Unlock()
		return lo + time.Duration(rng.Int63n(int64(hi-lo)+1))
	}
}

// Scheduler delays and then commits simulated replies. Each conversation
// has its own FIFO queue and only the head of a queue is eligible, so
// replies land in the order they were scheduled whatever their delays.
type Scheduler struct {
	sink            Sink
	provider        ai.Provider
	delay           func() time.Duration
	now             func() time.Time
	logger          *slog.Logger
	rec             Recorder
	generateTimeout time.Duration

	mu     sync.Mutex
	queues map[string][]*Task
	size   int
	wake   chan struct{}
}

func NewScheduler(sink Sink, provider ai.Provider, opts ...Option) *Scheduler {
	s := &Scheduler{
		sink:            sink,
		provider:        provider,
		delay:           UniformDelay(rand.New(rand.NewSource(time.Now().UnixNano())), 800*time.Millisecond, 2300*time.Millisecond),
		now:             time.Now,
		logger:          slog.Default(),
		generateTimeout: 30 * time.Second,
		queues:          make(map[string][]*Task),
		wake:            make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScheduleReply queues a reply for userText. It never blocks on delivery.
func (s *Scheduler) ScheduleReply(conversationID string, replyTo int64, userText string) {
	now := s.now()
	t := &Task{
		ID:             ulid.Make().String(),
		ConversationID: conversationID,
		ReplyTo:        replyTo,
		Prompt:         userText,
		Status:         TaskQueued,
		CreatedAt:      now,
		DueAt:          now.Add(s.delay()),
	}

	s.mu.Lock()
	s.queues[conversationID] = append(s.queues[conversationID], t)
	s.size++
	s.mu.Unlock()

	s.signal()
	if s.rec != nil {
		s.rec.ReplyScheduled()
	}
	s.logger.Debug("reply scheduled", "task_id", t.ID, "conversation_id", conversationID, "due_in", t.DueAt.Sub(now))
}

// Forget drops every queued reply of a conversation.
func (s *Scheduler) Forget(conversationID string) {
	s.mu.Lock()
	n := len(s.queues[conversationID])
	delete(s.queues, conversationID)
	s.size -= n
	s.mu.Unlock()

	if n == 0 {
		return
	}
	if s.rec != nil {
		s.rec.ReplyDropped("conversation_deleted", n)
	}
	s.logger.Info("queued replies dropped", "conversation_id", conversationID, "count", n)
}

// Pending returns the number of queued replies.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Run is the delivery loop. It returns when ctx is done; replies still
// queued at that point are abandoned. Call it from a single goroutine.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			s.abandon()
			return ctx.Err()
		}

		task, wait := s.next()
		if task != nil {
			s.deliver(ctx, task)
			continue
		}

		var timerC <-chan time.Time
		var timer *time.Timer
		if wait > 0 {
			timer = time.NewTimer(wait)
			timerC = timer.C
		}
		select {
		case <-ctx.Done():
		case <-s.wake:
		case <-timerC:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// next pops the earliest due queue head, or reports how long to wait.
// A zero wait with a nil task means nothing is queued.
func (s *Scheduler) next() (*Task, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *Task
	for _, q := range s.queues {
		head := q[0]
		if best == nil || head.DueAt.Before(best.DueAt) ||
			(head.DueAt.Equal(best.DueAt) && head.ID < best.ID) {
			best = head
		}
	}
	if best == nil {
		return nil, 0
	}

	now := s.now()
	if best.DueAt.After(now) {
		return nil, best.DueAt.Sub(now)
	}

	q := s.queues[best.ConversationID]
	if len(q) == 1 {
		delete(s.queues, best.ConversationID)
	} else {
		s.queues[best.ConversationID] = q[1:]
	}
	s.size--
	return best, 0
}

func (s *Scheduler) deliver(ctx context.Context, t *Task) {
	log := s.logger.With("task_id", t.ID, "conversation_id", t.ConversationID)

	if !s.sink.HasConversation(t.ConversationID) {
		s.drop(t, log)
		return
	}

	t.Status = TaskRunning
	gctx, cancel := context.WithTimeout(ctx, s.generateTimeout)
	text, err := s.provider.Chat(gctx, []ai.Message{{Role: ai.RoleUser, Content: t.Prompt}})
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			// shutting down; the reply is abandoned like every other queued one
			return
		}
		t.Status = TaskFailed
		log.Warn("reply generation failed", "error", err)
		s.sink.FailReply(ctx, t.ConversationID, t.ReplyTo)
		if s.rec != nil {
			s.rec.ReplyFailed()
		}
		return
	}

	if _, ok := s.sink.AppendBotMessage(ctx, t.ConversationID, text, t.ReplyTo); !ok {
		s.drop(t, log)
		return
	}
	t.Status = TaskSucceeded
	latency := s.now().Sub(t.CreatedAt)
	if s.rec != nil {
		s.rec.ReplyDelivered(latency)
	}
	log.Debug("reply delivered", "latency", latency)
}

func (s *Scheduler) drop(t *Task, log *slog.Logger) {
	t.Status = TaskDropped
	if s.rec != nil {
		s.rec.ReplyDropped("conversation_gone", 1)
	}
	log.Info("reply dropped, conversation gone")
}

func (s *Scheduler) abandon() {
	s.mu.Lock()
	n := s.size
	s.queues = make(map[string][]*Task)
	s.size = 0
	s.mu.Unlock()

	if n > 0 {
		if s.rec != nil {
			s.rec.ReplyDropped("shutdown", n)
		}
		s.logger.Info("pending replies abandoned on shutdown", "count", n)
	}
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
