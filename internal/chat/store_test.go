package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

type scheduled struct {
	conversationID string
	replyTo        int64
	text           string
}

type recordingScheduler struct {
	scheduled []scheduled
	forgotten []string
}

func (r *recordingScheduler) ScheduleReply(conversationID string, replyTo int64, userText string) {
	r.scheduled = append(r.scheduled, scheduled{conversationID, replyTo, userText})
}

func (r *recordingScheduler) Forget(conversationID string) {
	r.forgotten = append(r.forgotten, conversationID)
}

func fixedClock() func() time.Time {
	t := time.Date(2026, 10, 16, 9, 5, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func newTestStore(t *testing.T) (*Store, *recordingScheduler) {
	t.Helper()
	now := fixedClock()
	s := NewStore(SeedState(now()), WithClock(now))
	sch := &recordingScheduler{}
	s.UseScheduler(sch)
	return s, sch
}

func TestAppendUserMessage_AppendsAndSchedules(t *testing.T) {
	s, sch := newTestStore(t)
	ctx := context.Background()

	before, _ := s.Conversation("john-doe")
	msg, err := s.AppendUserMessage(ctx, "john-doe", "hello there")
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	after, _ := s.Conversation("john-doe")
	if len(after.Messages) != len(before.Messages)+1 {
		t.Fatalf("expected exactly one new message, got %d -> %d", len(before.Messages), len(after.Messages))
	}
	last, _ := after.LastMessage()
	if last != msg {
		t.Fatalf("last message = %+v, want %+v", last, msg)
	}
	if msg.Sender != SenderUser || msg.Status != StatusSent {
		t.Fatalf("unexpected sender/status: %s/%s", msg.Sender, msg.Status)
	}
	if msg.Timestamp != "09:05" {
		t.Fatalf("timestamp = %q", msg.Timestamp)
	}
	if !after.ReplyPending() {
		t.Fatalf("expected reply pending")
	}
	if len(sch.scheduled) != 1 || sch.scheduled[0] != (scheduled{"john-doe", msg.ID, "hello there"}) {
		t.Fatalf("unexpected scheduled work: %+v", sch.scheduled)
	}
}

func TestAppendUserMessage_RejectsInvalidInput(t *testing.T) {
	s, sch := newTestStore(t)
	ctx := context.Background()

	for _, text := range []string{"", "   ", "\n\t"} {
		if _, err := s.AppendUserMessage(ctx, "john-doe", text); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("text %q: expected ErrInvalidInput, got %v", text, err)
		}
	}
	if _, err := s.AppendUserMessage(ctx, "nobody", "hi"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("unknown conversation: expected ErrInvalidInput, got %v", err)
	}

	c, _ := s.Conversation("john-doe")
	if len(c.Messages) != 1 || c.ReplyPending() {
		t.Fatalf("rejected input must not change state: %+v", c)
	}
	if len(sch.scheduled) != 0 {
		t.Fatalf("rejected input must not schedule replies")
	}
}

func TestMessageIDs_StrictlyIncreasing(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	var last int64
	seed, _ := s.Conversation("sarah-wilson")
	last = seed.Messages[0].ID
	for i := 0; i < 5; i++ {
		m, err := s.AppendUserMessage(ctx, "sarah-wilson", "msg")
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if m.ID <= last {
			t.Fatalf("id %d not greater than previous %d", m.ID, last)
		}
		last = m.ID
	}
}

func TestAppendBotMessage_ClosesPendingWindowInOrder(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	first, _ := s.AppendUserMessage(ctx, "hackathon-bot", "hello")
	second, _ := s.AppendUserMessage(ctx, "hackathon-bot", "how are you?")

	if _, ok := s.AppendBotMessage(ctx, "hackathon-bot", "Hi there!", first.ID); !ok {
		t.Fatalf("expected bot message to land")
	}
	c, _ := s.Conversation("hackathon-bot")
	if !c.ReplyPending() {
		t.Fatalf("second reply still queued, window must stay open")
	}

	bot, ok := s.AppendBotMessage(ctx, "hackathon-bot", "Great question!", second.ID)
	if !ok {
		t.Fatalf("expected bot message to land")
	}
	c, _ = s.Conversation("hackathon-bot")
	if c.ReplyPending() {
		t.Fatalf("window must close after last reply")
	}
	if bot.Sender != SenderBot || bot.Status != StatusSent {
		t.Fatalf("unexpected bot message: %+v", bot)
	}

	var senders []string
	for _, m := range c.Messages {
		senders = append(senders, string(m.Sender)+":"+m.Text)
	}
	want := "bot:Welcome to HackChat! I'm here to help you with your hackathon project. :rocket:|user:hello|user:how are you?|bot:Hi there!|bot:Great question!"
	if got := strings.Join(senders, "|"); got != want {
		t.Fatalf("order mismatch:\n got %s\nwant %s", got, want)
	}
	if c.Messages[1].Status != StatusRead || c.Messages[2].Status != StatusRead {
		t.Fatalf("answered user messages should be read: %+v", c.Messages)
	}
}

func TestAppendBotMessage_MissingConversationIsNoop(t *testing.T) {
	s, _ := newTestStore(t)
	before := s.Snapshot()

	if _, ok := s.AppendBotMessage(context.Background(), "ghost", "boo", 1); ok {
		t.Fatalf("expected no-op for missing conversation")
	}
	after := s.Snapshot()
	if after.Conversations.Len() != before.Conversations.Len() {
		t.Fatalf("state changed on no-op")
	}
}

func TestAppendBotMessage_IgnoresRecreatedConversation(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	old, err := s.AppendUserMessage(ctx, "john-doe", "hello")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.DeleteConversation(ctx, "john-doe"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	c, err := s.CreateConversation(ctx, "John Doe", "", true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.ID != "john-doe" {
		t.Fatalf("expected the slug to be reused, got %q", c.ID)
	}

	if _, ok := s.AppendBotMessage(ctx, "john-doe", "late reply", old.ID); ok {
		t.Fatalf("reply to a message of the deleted conversation must be dropped")
	}
	if s.FailReply(ctx, "john-doe", old.ID) {
		t.Fatalf("failure of a reply to the deleted conversation must be dropped")
	}
	got, _ := s.Conversation("john-doe")
	if len(got.Messages) != 0 {
		t.Fatalf("re-created conversation must stay empty, got %+v", got.Messages)
	}
}

func TestAppendBotMessage_RequiresUserMessage(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	c, _ := s.Conversation("sarah-wilson")
	botMsg, _ := c.LastMessage()
	if _, ok := s.AppendBotMessage(ctx, "sarah-wilson", "echo", botMsg.ID); ok {
		t.Fatalf("a bot message cannot be replied to")
	}
	if _, ok := s.AppendBotMessage(ctx, "sarah-wilson", "echo", 42); ok {
		t.Fatalf("unknown message id must be dropped")
	}
}

func TestFailReply_MarksUserMessageFailed(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	msg, _ := s.AppendUserMessage(ctx, "john-doe", "build it")
	if !s.FailReply(ctx, "john-doe", msg.ID) {
		t.Fatalf("expected fail reply to apply")
	}
	c, _ := s.Conversation("john-doe")
	last, _ := c.LastMessage()
	if last.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", last.Status)
	}
	if c.ReplyPending() {
		t.Fatalf("failed reply must close the pending window")
	}
}

func TestSwitchActiveConversation(t *testing.T) {
	s, sch := newTestStore(t)
	ctx := context.Background()

	_, _ = s.AppendUserMessage(ctx, "hackathon-bot", "hello")
	if err := s.SwitchActiveConversation(ctx, "john-doe"); err != nil {
		t.Fatalf("switch: %v", err)
	}
	if c, _ := s.ActiveConversation(); c.ID != "john-doe" {
		t.Fatalf("active = %q", c.ID)
	}
	if len(sch.forgotten) != 0 {
		t.Fatalf("switching must not cancel replies, forgot %v", sch.forgotten)
	}
	if c, _ := s.Conversation("hackathon-bot"); !c.ReplyPending() {
		t.Fatalf("reply for previous conversation should still be pending")
	}

	err := s.SwitchActiveConversation(ctx, "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if c, _ := s.ActiveConversation(); c.ID != "john-doe" {
		t.Fatalf("failed switch changed active to %q", c.ID)
	}
}

func TestUnreadCountAndMarkRead(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if n, _ := s.UnreadCount("sarah-wilson"); n != 1 {
		t.Fatalf("seed unread = %d, want 1", n)
	}
	if n, _ := s.UnreadCount("john-doe"); n != 0 {
		t.Fatalf("seed unread = %d, want 0", n)
	}

	msg, _ := s.AppendUserMessage(ctx, "sarah-wilson", "ok")
	s.AppendBotMessage(ctx, "sarah-wilson", "sure", msg.ID)
	if n, _ := s.UnreadCount("sarah-wilson"); n != 2 {
		t.Fatalf("unread = %d, want 2", n)
	}

	changed, err := s.MarkRead(ctx, "sarah-wilson")
	if err != nil || changed != 2 {
		t.Fatalf("mark read changed=%d err=%v", changed, err)
	}
	if n, _ := s.UnreadCount("sarah-wilson"); n != 0 {
		t.Fatalf("unread after mark read = %d", n)
	}
	if _, err := s.UnreadCount("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTheme(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.SetTheme(ctx, ThemeDark); err != nil || s.Theme() != ThemeDark {
		t.Fatalf("set theme: %v %s", err, s.Theme())
	}
	if err := s.SetTheme(ctx, Theme("blue")); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if got := s.ToggleTheme(ctx); got != ThemeLight {
		t.Fatalf("toggle = %s", got)
	}
}

func TestObserversSeeEveryCommitInOrder(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	var kinds []ChangeKind
	var seqs []uint64
	s.Observe(ObserverFunc(func(_ context.Context, ch Change, st State) {
		kinds = append(kinds, ch.Kind)
		seqs = append(seqs, ch.Seq)
		// observers get a private copy
		if c, ok := st.Conversations.Get("john-doe"); ok {
			c.Messages = nil
		}
	}))

	msg, _ := s.AppendUserMessage(ctx, "john-doe", "hi")
	s.AppendBotMessage(ctx, "john-doe", "hello", msg.ID)
	_ = s.SwitchActiveConversation(ctx, "sarah-wilson")
	_ = s.SetTheme(ctx, ThemeDark)

	want := []ChangeKind{ChangeUserMessage, ChangeBotMessage, ChangeActive, ChangeTheme}
	if len(kinds) != len(want) {
		t.Fatalf("kinds = %v", kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("kinds = %v, want %v", kinds, want)
		}
		if i > 0 && seqs[i] <= seqs[i-1] {
			t.Fatalf("seq not increasing: %v", seqs)
		}
	}
	if c, _ := s.Conversation("john-doe"); len(c.Messages) != 3 {
		t.Fatalf("observer mutated store state: %d messages", len(c.Messages))
	}
}

func TestObserversOutliveCallerContext(t *testing.T) {
	s, _ := newTestStore(t)

	var seen []error
	s.Observe(ObserverFunc(func(ctx context.Context, _ Change, _ State) {
		seen = append(seen, ctx.Err())
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.SetTheme(ctx, ThemeDark); err != nil {
		t.Fatalf("set theme: %v", err)
	}
	if _, err := s.AppendUserMessage(ctx, "john-doe", "still sent"); err != nil {
		t.Fatalf("append: %v", err)
	}

	if len(seen) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(seen))
	}
	for i, err := range seen {
		if err != nil {
			t.Fatalf("notification %d got a cancelled context: %v", i, err)
		}
	}
}

func TestCreateAndDeleteConversation(t *testing.T) {
	s, sch := newTestStore(t)
	ctx := context.Background()

	c, err := s.CreateConversation(ctx, "  Ada Lovelace ", "", true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.ID != "ada-lovelace" || c.Avatar != "A" || c.Name != "Ada Lovelace" {
		t.Fatalf("unexpected conversation: %+v", c)
	}
	dup, err := s.CreateConversation(ctx, "Ada Lovelace", "AL", false)
	if err != nil {
		t.Fatalf("create dup: %v", err)
	}
	if dup.ID == c.ID || !strings.HasPrefix(dup.ID, "ada-lovelace-") {
		t.Fatalf("duplicate name must get a distinct id, got %q", dup.ID)
	}
	if _, err := s.CreateConversation(ctx, " ", "", false); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	if err := s.SwitchActiveConversation(ctx, c.ID); err != nil {
		t.Fatalf("switch: %v", err)
	}
	if err := s.DeleteConversation(ctx, c.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(sch.forgotten) != 1 || sch.forgotten[0] != c.ID {
		t.Fatalf("delete must forget queued replies: %v", sch.forgotten)
	}
	active, err := s.ActiveConversation()
	if err != nil || active.ID != "hackathon-bot" {
		t.Fatalf("active must fall back to first key, got %q err=%v", active.ID, err)
	}
	if err := s.DeleteConversation(ctx, c.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEmptyStateHasNoActiveConversation(t *testing.T) {
	s := NewStore(State{Conversations: NewConversations()})
	if _, err := s.ActiveConversation(); !errors.Is(err, ErrNoActiveConversation) {
		t.Fatalf("expected ErrNoActiveConversation, got %v", err)
	}

	c, err := s.CreateConversation(context.Background(), "First", "", true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	active, err := s.ActiveConversation()
	if err != nil || active.ID != c.ID {
		t.Fatalf("first conversation should become active, got %q err=%v", active.ID, err)
	}
}

func TestNewStore_RepairsDanglingActiveID(t *testing.T) {
	st := SeedState(time.Now())
	st.ActiveConversationID = "deleted-long-ago"
	st.Theme = ""

	s := NewStore(st)
	snap := s.Snapshot()
	if snap.ActiveConversationID != "hackathon-bot" {
		t.Fatalf("active = %q", snap.ActiveConversationID)
	}
	if snap.Theme != ThemeLight {
		t.Fatalf("theme = %q", snap.Theme)
	}
}

func TestStateJSON_PreservesInsertionOrder(t *testing.T) {
	st := State{Conversations: NewConversations(), Theme: ThemeDark}
	for _, id := range []string{"zeta", "alpha", "mid"} {
		st.Conversations.Put(&Conversation{ID: id, Name: id, Avatar: "X", Messages: []Message{}})
	}
	st.ActiveConversationID = "alpha"

	b, err := json.Marshal(st)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), `{"conversations":{"zeta":`) {
		t.Fatalf("unexpected document: %s", b)
	}

	var back State
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := strings.Join(back.Conversations.IDs(), ","); got != "zeta,alpha,mid" {
		t.Fatalf("order = %s", got)
	}
}

func TestStateJSON_RejectsUnknownEnums(t *testing.T) {
	docs := []string{
		`{"conversations":{"a":{"name":"A","messages":[{"id":1,"text":"x","sender":"alien","timestamp":"","status":"sent"}]}},"theme":"light"}`,
		`{"conversations":{"a":{"name":"A","messages":[{"id":1,"text":"x","sender":"bot","timestamp":"","status":"lost"}]}},"theme":"light"}`,
		`{"conversations":{},"theme":"sepia"}`,
		`{"conversations":[],"theme":"light"}`,
		`{"conversations":{"a":{},"a":{}},"theme":"light"}`,
	}
	for _, doc := range docs {
		var st State
		if err := json.Unmarshal([]byte(doc), &st); err == nil {
			t.Fatalf("expected error for %s", doc)
		}
	}
}

func TestStateJSON_RejectsMalformedMessages(t *testing.T) {
	wrap := func(messages string) string {
		return `{"conversations":{"a":{"name":"A","avatar":"A","online":true,"messages":` + messages + `}},"activeConversationId":"a","theme":"light"}`
	}
	docs := map[string]string{
		"missing sender": wrap(`[{"id":1,"text":"x","timestamp":"10:00","status":"sent"}]`),
		"null sender":    wrap(`[{"id":1,"text":"x","sender":null,"timestamp":"10:00","status":"sent"}]`),
		"missing status": wrap(`[{"id":1,"text":"x","sender":"user","timestamp":"10:00"}]`),
		"null status":    wrap(`[{"id":1,"text":"x","sender":"user","timestamp":"10:00","status":null}]`),
		"missing id":     wrap(`[{"text":"x","sender":"user","timestamp":"10:00","status":"sent"}]`),
		"duplicate ids":  wrap(`[{"id":5,"text":"x","sender":"user","timestamp":"10:00","status":"read"},{"id":5,"text":"y","sender":"bot","timestamp":"10:00","status":"sent"}]`),
		"decreasing ids": wrap(`[{"id":7,"text":"x","sender":"user","timestamp":"10:00","status":"read"},{"id":6,"text":"y","sender":"bot","timestamp":"10:00","status":"sent"}]`),
	}
	for name, doc := range docs {
		var st State
		if err := json.Unmarshal([]byte(doc), &st); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}

	var st State
	ok := wrap(`[{"id":5,"text":"x","sender":"user","timestamp":"10:00","status":"read"},{"id":6,"text":"y","sender":"bot","timestamp":"10:00","status":"sent"}]`)
	if err := json.Unmarshal([]byte(ok), &st); err != nil {
		t.Fatalf("well-formed document rejected: %v", err)
	}
}
