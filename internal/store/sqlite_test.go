package store

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func newTestCache(t *testing.T) Cache {
	t.Helper()
	c, err := NewSQLiteCache(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteCache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func userMsg(content string) *MessageRecord {
	return &MessageRecord{Role: "user", Content: content, Status: "complete"}
}

func assistantMsg(content string) *MessageRecord {
	return &MessageRecord{Role: "assistant", Content: content, Status: "complete", InputTokens: 12, OutputTokens: 40}
}

func TestAppendTurnAndRecentMessages(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.AppendTurn(ctx, "agent-1", "sess-abc", userMsg("hello"), assistantMsg("hi there")); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	if err := c.AppendTurn(ctx, "agent-1", "sess-abc", userMsg("second"), assistantMsg("reply")); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}

	msgs, err := c.RecentMessages(ctx, "agent-1", 0)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[0].Content != "hello" {
		t.Errorf("unexpected first message: %+v", msgs[0])
	}
	if msgs[3].Role != "assistant" || msgs[3].Content != "reply" {
		t.Errorf("unexpected last message: %+v", msgs[3])
	}
	if msgs[1].InputTokens != 12 || msgs[1].OutputTokens != 40 {
		t.Errorf("token counts not persisted: %+v", msgs[1])
	}
}

func TestRecentMessagesLimitKeepsNewest(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		u := userMsg(fmt.Sprintf("q%d", i))
		a := assistantMsg(fmt.Sprintf("a%d", i))
		if err := c.AppendTurn(ctx, "agent-1", "", u, a); err != nil {
			t.Fatalf("AppendTurn %d: %v", i, err)
		}
	}

	msgs, err := c.RecentMessages(ctx, "agent-1", 4)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	// Newest two turns, oldest first.
	if msgs[0].Content != "q3" || msgs[3].Content != "a4" {
		t.Errorf("unexpected window: first=%q last=%q", msgs[0].Content, msgs[3].Content)
	}
}

func TestSessionHandleLifecycle(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	// Nothing cached yet.
	h, err := c.SessionHandle(ctx, "agent-1")
	if err != nil {
		t.Fatalf("SessionHandle: %v", err)
	}
	if h != "" {
		t.Errorf("expected empty handle, got %q", h)
	}

	if err := c.AppendTurn(ctx, "agent-1", "sess-1", userMsg("x"), assistantMsg("y")); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	if h, _ = c.SessionHandle(ctx, "agent-1"); h != "sess-1" {
		t.Errorf("expected sess-1, got %q", h)
	}

	// A later turn under a new handle wins.
	if err := c.AppendTurn(ctx, "agent-1", "sess-2", userMsg("x"), assistantMsg("y")); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	if h, _ = c.SessionHandle(ctx, "agent-1"); h != "sess-2" {
		t.Errorf("expected sess-2, got %q", h)
	}

	// A sessionless turn leaves the handle alone.
	if err := c.AppendTurn(ctx, "agent-1", "", userMsg("x"), assistantMsg("y")); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	if h, _ = c.SessionHandle(ctx, "agent-1"); h != "sess-2" {
		t.Errorf("expected sess-2 after sessionless turn, got %q", h)
	}
}

func TestReplaceTranscript(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.AppendTurn(ctx, "agent-1", "old-sess", userMsg("stale"), assistantMsg("stale")); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}

	fresh := []*MessageRecord{userMsg("fresh question"), assistantMsg("fresh answer")}
	if err := c.ReplaceTranscript(ctx, "agent-1", "new-sess", fresh); err != nil {
		t.Fatalf("ReplaceTranscript: %v", err)
	}

	msgs, err := c.RecentMessages(ctx, "agent-1", 0)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Content != "fresh question" {
		t.Errorf("stale transcript survived replace: %+v", msgs[0])
	}
	if h, _ := c.SessionHandle(ctx, "agent-1"); h != "new-sess" {
		t.Errorf("expected new-sess, got %q", h)
	}
}

func TestClearAgentIsScoped(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.AppendTurn(ctx, "agent-1", "sess-1", userMsg("a"), assistantMsg("b")); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	if err := c.AppendTurn(ctx, "agent-2", "sess-2", userMsg("c"), assistantMsg("d")); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}

	if err := c.ClearAgent(ctx, "agent-1"); err != nil {
		t.Fatalf("ClearAgent: %v", err)
	}

	msgs, _ := c.RecentMessages(ctx, "agent-1", 0)
	if len(msgs) != 0 {
		t.Errorf("expected empty transcript for agent-1, got %d messages", len(msgs))
	}
	if h, _ := c.SessionHandle(ctx, "agent-1"); h != "" {
		t.Errorf("expected cleared handle, got %q", h)
	}

	// Other agents are untouched.
	msgs, _ = c.RecentMessages(ctx, "agent-2", 0)
	if len(msgs) != 2 {
		t.Errorf("expected agent-2 transcript intact, got %d messages", len(msgs))
	}
	if h, _ := c.SessionHandle(ctx, "agent-2"); h != "sess-2" {
		t.Errorf("expected sess-2, got %q", h)
	}
}

func TestCreatedAtRoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	when := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	u := userMsg("timed")
	u.CreatedAt = when
	if err := c.AppendTurn(ctx, "agent-1", "", u, assistantMsg("ok")); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}

	msgs, err := c.RecentMessages(ctx, "agent-1", 0)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if !msgs[0].CreatedAt.Equal(when) {
		t.Errorf("expected %v, got %v", when, msgs[0].CreatedAt)
	}
}
