package rabbitmq

import (
	"context"
	"log/slog"
	"sync"

	"github.com/suPer8Hu/hackchat/internal/chat"
)

// ChangePublisher is satisfied by *Publisher.
type ChangePublisher interface {
	PublishChange(ctx context.Context, change chat.Change) error
}

type FailureCounter interface {
	PublishFailed()
}

// Notifier forwards store changes to a publisher off the commit path.
// When the buffer is full the change is dropped and counted.
type Notifier struct {
	pub      ChangePublisher
	buf      chan chat.Change
	logger   *slog.Logger
	failures FailureCounter

	done     chan struct{}
	stopOnce sync.Once
}

func NewNotifier(pub ChangePublisher, size int, logger *slog.Logger, failures FailureCounter) *Notifier {
	if size <= 0 {
		size = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		pub:      pub,
		buf:      make(chan chat.Change, size),
		logger:   logger,
		failures: failures,
		done:     make(chan struct{}),
	}
}

// Committed enqueues change. After Run has returned changes are ignored.
func (n *Notifier) Committed(_ context.Context, change chat.Change, _ chat.State) {
	select {
	case <-n.done:
		return
	default:
	}
	select {
	case n.buf <- change:
	default:
		n.logger.Warn("change notification dropped, buffer full", "seq", change.Seq, "kind", change.Kind)
		n.failed()
	}
}

// Run publishes buffered changes in order until ctx is done.
func (n *Notifier) Run(ctx context.Context) {
	defer n.stopOnce.Do(func() { close(n.done) })
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-n.buf:
			if err := n.pub.PublishChange(ctx, c); err != nil {
				n.logger.Warn("publish change failed", "seq", c.Seq, "kind", c.Kind, "error", err)
				n.failed()
			}
		}
	}
}

func (n *Notifier) failed() {
	if n.failures != nil {
		n.failures.PublishFailed()
	}
}
