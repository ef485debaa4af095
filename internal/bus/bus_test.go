package bus

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/AgentSquad/internal/domain"
)

// stepClock возвращает время, растущее на секунду при каждом вызове.
func stepClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

// --- Send Tests ---

func TestSend_AppendsInInsertionOrder(t *testing.T) {
	b := New(Config{Clock: stepClock()})

	for _, body := range []string{"one", "two", "three"} {
		if _, err := b.Send("orchestrator", "w1", body, domain.MessageAssignment, ""); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	msgs := b.GetMessages("w1", time.Time{}, 0)
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i, want := range []string{"one", "two", "three"} {
		if msgs[i].Body != want {
			t.Errorf("msgs[%d] = %s, want %s", i, msgs[i].Body, want)
		}
	}
}

func TestSend_UnknownRecipientAccumulates(t *testing.T) {
	b := New(Config{})

	if _, err := b.Send("a", "ghost", "hello", domain.MessageQuestion, ""); err != nil {
		t.Fatalf("bus without validation should accept any recipient: %v", err)
	}
	if got := len(b.GetMessages("ghost", time.Time{}, 0)); got != 1 {
		t.Errorf("expected message to accumulate, got %d", got)
	}
}

func TestSend_ValidateRecipients(t *testing.T) {
	b := New(Config{ValidateRecipients: true})

	_, err := b.Send("a", "ghost", "hello", domain.MessageQuestion, "")
	if !errors.Is(err, ErrUnknownRecipient) {
		t.Fatalf("expected ErrUnknownRecipient, got %v", err)
	}

	if b.IsKnown("ghost") {
		t.Error("ghost should be unknown before Register")
	}
	b.Register("ghost")
	if !b.IsKnown("ghost") {
		t.Error("ghost should be known after Register")
	}
	if _, err := b.Send("a", "ghost", "hello", domain.MessageQuestion, ""); err != nil {
		t.Errorf("registered recipient should be accepted: %v", err)
	}
}

func TestSend_InvalidInput(t *testing.T) {
	b := New(Config{})

	if _, err := b.Send("a", "", "x", domain.MessageSystem, ""); !errors.Is(err, ErrEmptyRecipient) {
		t.Errorf("expected ErrEmptyRecipient, got %v", err)
	}
	if _, err := b.Send("a", "b", "x", "gossip", ""); !errors.Is(err, ErrInvalidKind) {
		t.Errorf("expected ErrInvalidKind, got %v", err)
	}
}

func TestSend_ClosedCorrelation(t *testing.T) {
	b := New(Config{})
	b.CloseCorrelation("exec-1")

	_, err := b.Send("w1", "orchestrator", "late", domain.MessageStatusUpdate, "exec-1")
	if !errors.Is(err, ErrCorrelationClosed) {
		t.Errorf("expected ErrCorrelationClosed, got %v", err)
	}
	if _, err := b.Send("w1", "orchestrator", "other", domain.MessageStatusUpdate, "exec-2"); err != nil {
		t.Errorf("other correlations must still be accepted: %v", err)
	}
}

func TestCloseCorrelation_ExpiresAfterRetention(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := New(Config{ClosedRetention: time.Minute, Clock: func() time.Time { return now }})

	b.CloseCorrelation("exec-1")
	b.CloseCorrelation("exec-2")
	if n := b.PruneClosed(); n != 0 {
		t.Errorf("nothing should be pruned before retention, got %d", n)
	}

	now = now.Add(time.Minute)
	if _, err := b.Send("w1", "orchestrator", "late", domain.MessageStatusUpdate, "exec-1"); err != nil {
		t.Errorf("expired correlation should be accepted again: %v", err)
	}
	if n := b.PruneClosed(); n != 2 {
		t.Errorf("expected 2 pruned, got %d", n)
	}
	if n := b.ClosedCount(); n != 0 {
		t.Errorf("expected empty closed set, got %d", n)
	}
}

func TestCloseCorrelation_SetStaysBounded(t *testing.T) {
	b := New(Config{ClosedRetention: 10 * time.Second, Clock: stepClock()})

	for i := 0; i < 10*minPruneAt; i++ {
		b.CloseCorrelation(fmt.Sprintf("exec-%d", i))
		if n := b.ClosedCount(); n > minPruneAt {
			t.Fatalf("closed set grew to %d after %d closes", n, i+1)
		}
	}

	last := fmt.Sprintf("exec-%d", 10*minPruneAt-1)
	_, err := b.Send("w1", "orchestrator", "late", domain.MessageStatusUpdate, last)
	if !errors.Is(err, ErrCorrelationClosed) {
		t.Errorf("recent correlation must stay closed, got %v", err)
	}
}

// --- Broadcast Tests ---

func TestBroadcast_SkipsSender(t *testing.T) {
	b := New(Config{})
	received := make(map[string]int)
	var mu sync.Mutex

	for _, id := range []string{"X", "Y", "Z"} {
		id := id
		b.Subscribe(id, func(domain.Message) {
			mu.Lock()
			received[id]++
			mu.Unlock()
		})
	}

	_, n, err := b.Broadcast("X", "standup", domain.MessageSystem, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 recipients, got %d", n)
	}
	if received["X"] != 0 {
		t.Error("sender must not receive its own broadcast")
	}
	if received["Y"] != 1 || received["Z"] != 1 {
		t.Errorf("Y and Z should receive once, got %v", received)
	}
	if len(b.GetMessages("X", time.Time{}, 0)) != 0 {
		t.Error("sender inbox must stay empty")
	}
	if len(b.GetMessages("Y", time.Time{}, 0)) != 1 {
		t.Error("Y inbox should hold the broadcast")
	}
}

func TestBroadcast_OnlySubscribed(t *testing.T) {
	b := New(Config{})
	b.Register("registered-only")
	unsubscribe := b.Subscribe("gone", func(domain.Message) {})
	unsubscribe()
	b.Subscribe("live", func(domain.Message) {})

	_, n, _ := b.Broadcast("orchestrator", "hi", domain.MessageSystem, "")
	if n != 1 {
		t.Errorf("expected only the live subscriber, got %d", n)
	}
}

// --- Query Tests ---

func TestGetMessages_SinceAndLimit(t *testing.T) {
	b := New(Config{Clock: stepClock()})

	var mid time.Time
	for i := 0; i < 5; i++ {
		msg, _ := b.Send("a", "b", "m", domain.MessageAnswer, "")
		if i == 2 {
			mid = msg.Timestamp
		}
	}

	if got := len(b.GetMessages("b", mid, 0)); got != 3 {
		t.Errorf("since should be inclusive, got %d messages", got)
	}
	if got := len(b.GetMessages("b", time.Time{}, 2)); got != 2 {
		t.Errorf("limit 2 returned %d", got)
	}
}

func TestGetConversation(t *testing.T) {
	b := New(Config{Clock: stepClock()})
	b.Subscribe("A", func(domain.Message) {})
	b.Subscribe("B", func(domain.Message) {})

	_, _ = b.Send("A", "B", "q1", domain.MessageQuestion, "")
	_, _ = b.Send("B", "A", "a1", domain.MessageAnswer, "")
	_, _ = b.Send("C", "A", "noise", domain.MessageQuestion, "")
	_, _, _ = b.Broadcast("B", "all hands", domain.MessageSystem, "")
	_, _ = b.Send("A", "B", "q2", domain.MessageQuestion, "")

	conv := b.GetConversation("A", "B")
	want := []string{"q1", "a1", "q2"}
	if len(conv) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(conv))
	}
	for i := range want {
		if conv[i].Body != want[i] {
			t.Errorf("conv[%d] = %s, want %s", i, conv[i].Body, want[i])
		}
	}
}

// --- Subscribe Tests ---

func TestSubscribe_MultipleCallbacksSynchronous(t *testing.T) {
	b := New(Config{})
	calls := 0
	b.Subscribe("w1", func(domain.Message) { calls++ })
	b.Subscribe("w1", func(domain.Message) { calls++ })

	_, _ = b.Send("o", "w1", "go", domain.MessageAssignment, "")
	if calls != 2 {
		t.Errorf("both callbacks should run before Send returns, got %d", calls)
	}
}

func TestSubscribe_CallbackMaySend(t *testing.T) {
	b := New(Config{})
	b.Subscribe("w1", func(msg domain.Message) {
		_, _ = b.Send("w1", msg.SenderID, "ack", domain.MessageStatusUpdate, msg.CorrelationID)
	})

	_, _ = b.Send("o", "w1", "go", domain.MessageAssignment, "d1")
	if got := b.GetMessages("o", time.Time{}, 0); len(got) != 1 || got[0].Body != "ack" {
		t.Errorf("expected reply from callback, got %v", got)
	}
}

func TestTap_SeesAllMessages(t *testing.T) {
	b := New(Config{})
	b.Subscribe("y", func(domain.Message) {})
	var seen []domain.MessageKind
	untap := b.Tap(func(msg domain.Message) { seen = append(seen, msg.Kind) })

	_, _ = b.Send("x", "nobody", "1", domain.MessageQuestion, "")
	_, _, _ = b.Broadcast("x", "2", domain.MessageSystem, "")
	untap()
	_, _ = b.Send("x", "nobody", "3", domain.MessageQuestion, "")

	if len(seen) != 2 {
		t.Errorf("tap should see 2 messages, got %d", len(seen))
	}
}

func TestRelay_PreservesIdentity(t *testing.T) {
	src := New(Config{})
	dst := New(Config{})

	msg, _ := src.Send("orchestrator", "w1", "task", domain.MessageAssignment, "d1")
	if err := dst.Relay(msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := dst.GetMessages("w1", time.Time{}, 0)
	if len(got) != 1 || got[0].ID != msg.ID || !got[0].Timestamp.Equal(msg.Timestamp) {
		t.Errorf("relayed message should keep id and timestamp")
	}
}

// --- Concurrency Tests ---

func TestSend_Concurrent(t *testing.T) {
	b := New(Config{})
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = b.Send("s", "inbox", "x", domain.MessageStatusUpdate, "")
			}
		}()
	}
	wg.Wait()

	if got := len(b.GetMessages("inbox", time.Time{}, 0)); got != 1000 {
		t.Errorf("expected 1000 messages, got %d", got)
	}
}
