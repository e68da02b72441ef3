package chat

import (
	"strings"
	"sync"
)

// Assembler accumulates the in-progress assistant reply. It only ever
// appends; the accumulator is cleared by Reset when a turn begins or
// finalizes, never rewound or truncated mid-stream.
type Assembler struct {
	mu  sync.Mutex
	buf strings.Builder
}

// NewAssembler returns an empty assembler.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Append adds a chunk to the accumulator and returns the accumulated text.
// An empty chunk is a no-op: the accumulated text is returned unchanged.
func (a *Assembler) Append(chunk string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if chunk != "" {
		a.buf.WriteString(chunk)
	}
	return a.buf.String()
}

// Current returns the accumulated text without modifying it.
func (a *Assembler) Current() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buf.String()
}

// Reset clears the accumulator.
func (a *Assembler) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buf.Reset()
}
