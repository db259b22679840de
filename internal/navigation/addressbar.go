package navigation

import "sync"

// AddressBar is the single piece of shared text the engine synchronizes
// against. Implementations must be safe for concurrent use and cheap: the
// engine reads it on every tick.
type AddressBar interface {
	Fragment() string
	SetFragment(text string)
}

// ChangeNotifier is implemented by address bars that can signal edits.
// Each receive is treated as an immediate tick; polling continues
// regardless.
type ChangeNotifier interface {
	Changes() <-chan struct{}
}

// MemoryBar is an in-process AddressBar. It records every write so callers
// can inspect the history the way a browser would accumulate entries.
type MemoryBar struct {
	mu      sync.Mutex
	text    string
	history []string
	changes chan struct{}
}

// NewMemoryBar returns a bar holding initial.
func NewMemoryBar(initial string) *MemoryBar {
	return &MemoryBar{
		text:    initial,
		changes: make(chan struct{}, 1),
	}
}

func (b *MemoryBar) Fragment() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text
}

func (b *MemoryBar) SetFragment(text string) {
	b.mu.Lock()
	b.text = text
	b.history = append(b.history, text)
	b.mu.Unlock()

	select {
	case b.changes <- struct{}{}:
	default:
	}
}

// Changes implements ChangeNotifier.
func (b *MemoryBar) Changes() <-chan struct{} {
	return b.changes
}

// Writes returns how many times SetFragment was called.
func (b *MemoryBar) Writes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.history)
}

// History returns every text written, oldest first.
func (b *MemoryBar) History() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.history))
	copy(out, b.history)
	return out
}
