package tui

import "sync"

// Bar is the terminal client's address bar. The engine and the user both
// write it; every write is signalled on Changes so the engine reacts
// without waiting for its next poll.
type Bar struct {
	mu      sync.Mutex
	text    string
	changes chan struct{}
}

// NewBar returns a bar holding initial.
func NewBar(initial string) *Bar {
	return &Bar{text: initial, changes: make(chan struct{}, 1)}
}

// Fragment implements navigation.AddressBar.
func (b *Bar) Fragment() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text
}

// SetFragment implements navigation.AddressBar.
func (b *Bar) SetFragment(text string) {
	b.mu.Lock()
	b.text = text
	b.mu.Unlock()

	select {
	case b.changes <- struct{}{}:
	default:
	}
}

// Changes implements navigation.ChangeNotifier.
func (b *Bar) Changes() <-chan struct{} {
	return b.changes
}
