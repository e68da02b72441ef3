package chat

import "testing"

func TestAssembler_AppendsInOrder(t *testing.T) {
	a := NewAssembler()

	if got := a.Append("Hello"); got != "Hello" {
		t.Errorf("expected %q, got %q", "Hello", got)
	}
	if got := a.Append(", world"); got != "Hello, world" {
		t.Errorf("expected %q, got %q", "Hello, world", got)
	}
	if got := a.Current(); got != "Hello, world" {
		t.Errorf("Current: expected %q, got %q", "Hello, world", got)
	}
}

func TestAssembler_EmptyChunkIsNoOp(t *testing.T) {
	a := NewAssembler()
	a.Append("partial")

	if got := a.Append(""); got != "partial" {
		t.Errorf("empty append changed accumulator: %q", got)
	}
}

func TestAssembler_Reset(t *testing.T) {
	a := NewAssembler()
	a.Append("stale content")
	a.Reset()

	if got := a.Current(); got != "" {
		t.Errorf("expected empty after reset, got %q", got)
	}
	if got := a.Append("fresh"); got != "fresh" {
		t.Errorf("expected %q, got %q", "fresh", got)
	}
}
