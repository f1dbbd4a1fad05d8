package board

import (
	"context"
	"sync"
)

//MemoryBoard keeps the list in process memory. Appends are serialized so
//concurrent writers never lose each other's messages.
type MemoryBoard struct {
	mu       sync.Mutex
	messages []Message
}

func NewMemoryBoard() *MemoryBoard {
	return &MemoryBoard{}
}

func (b *MemoryBoard) Append(_ context.Context, msg Message) error {
	b.mu.Lock()
	b.messages = append(b.messages, msg)
	b.mu.Unlock()
	return nil
}

//List returns a snapshot; later appends do not show up in it.
func (b *MemoryBoard) List(context.Context) ([]Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Message, len(b.messages))
	copy(out, b.messages)
	return out, nil
}

func (b *MemoryBoard) Close() error { return nil }
