package persist

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/suPer8Hu/hackchat/internal/chat"
)

// ErrNoSnapshot is returned by a Backend that holds nothing yet.
var ErrNoSnapshot = errors.New("persist: no snapshot")

// Backend stores one opaque snapshot document.
type Backend interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, payload []byte) error
	Delete(ctx context.Context) error
}

// FailureCounter is notified of every failed read or write.
type FailureCounter interface {
	PersistFailed(op string)
}

type Option func(*Adapter)

func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

func WithFailureCounter(fc FailureCounter) Option {
	return func(a *Adapter) { a.failures = fc }
}

// Adapter maps chat.State to a Backend. Storage failures are logged and
// counted, never returned: the in-memory state stays authoritative.
type Adapter struct {
	backend  Backend
	logger   *slog.Logger
	failures FailureCounter
}

func NewAdapter(b Backend, opts ...Option) *Adapter {
	a := &Adapter{backend: b, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Load returns nil when nothing is stored or the snapshot cannot be used.
func (a *Adapter) Load(ctx context.Context) *chat.State {
	raw, err := a.backend.Read(ctx)
	if errors.Is(err, ErrNoSnapshot) {
		a.logger.Info("no stored snapshot, starting from seed")
		return nil
	}
	if err != nil {
		a.fail("read", err)
		return nil
	}
	st, err := Decode(raw)
	if err != nil {
		a.fail("decode", err)
		return nil
	}
	return &st
}

func (a *Adapter) Save(ctx context.Context, st chat.State) {
	raw, err := Encode(st)
	if err != nil {
		a.fail("encode", err)
		return
	}
	if err := a.backend.Write(ctx, raw); err != nil {
		a.fail("write", err)
	}
}

// Committed snapshots the state after every store mutation.
func (a *Adapter) Committed(ctx context.Context, change chat.Change, st chat.State) {
	a.Save(ctx, st)
}

func (a *Adapter) Reset(ctx context.Context) error {
	return a.backend.Delete(ctx)
}

func (a *Adapter) fail(op string, err error) {
	a.logger.Error("persistence failure", "op", op, "error", err)
	if a.failures != nil {
		a.failures.PersistFailed(op)
	}
}

func Encode(st chat.State) ([]byte, error) {
	return json.Marshal(st)
}

func Decode(raw []byte) (chat.State, error) {
	var st chat.State
	if err := json.Unmarshal(raw, &st); err != nil {
		return chat.State{}, err
	}
	if st.Conversations.Len() == 0 && st.ActiveConversationID == "" && st.Theme == "" {
		return chat.State{}, errors.New("persist: snapshot has no chat state")
	}
	return st, nil
}

// MemoryBackend keeps the snapshot in process memory.
type MemoryBackend struct {
	mu      sync.Mutex
	payload []byte
}

func NewMemoryBackend() *MemoryBackend { return &MemoryBackend{} }

func (m *MemoryBackend) Read(context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.payload == nil {
		return nil, ErrNoSnapshot
	}
	return append([]byte(nil), m.payload...), nil
}

func (m *MemoryBackend) Write(_ context.Context, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payload = append([]byte(nil), payload...)
	return nil
}

func (m *MemoryBackend) Delete(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payload = nil
	return nil
}
