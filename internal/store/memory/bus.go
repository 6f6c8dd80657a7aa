package memory

import (
	"context"
	"strconv"
	"sync"

	"github.com/knowton/ipbond/internal/domain"
)

// SignalBus is an in-process domain.SignalBus used by tests and DSN-less
// runs. Published payloads fan out to live subscribers; stream appends are
// kept in order for replay.
type SignalBus struct {
	mu      sync.Mutex
	subs    map[string][]chan []byte
	streams map[string][]domain.StreamMessage
}

// NewSignalBus creates an empty SignalBus.
func NewSignalBus() *SignalBus {
	return &SignalBus{
		subs:    make(map[string][]chan []byte),
		streams: make(map[string][]domain.StreamMessage),
	}
}

func (b *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs[channel] {
		select {
		case ch <- payload:
		default: // drop rather than block a slow subscriber
		}
	}
	return nil
}

func (b *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 128)

	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[channel]
		for i, c := range subs {
			if c == ch {
				b.subs[channel] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}()

	return ch, nil
}

func (b *SignalBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := strconv.Itoa(len(b.streams[stream]) + 1)
	b.streams[stream] = append(b.streams[stream], domain.StreamMessage{ID: id, Payload: payload})
	return nil
}

func (b *SignalBus) StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	msgs := b.streams[stream]
	start := 0
	if lastID != "" && lastID != "0" && lastID != "0-0" {
		if n, err := strconv.Atoi(lastID); err == nil {
			start = n
		}
	}
	if start >= len(msgs) {
		return nil, nil
	}
	end := len(msgs)
	if count > 0 && start+count < end {
		end = start + count
	}
	return append([]domain.StreamMessage(nil), msgs[start:end]...), nil
}

var _ domain.SignalBus = (*SignalBus)(nil)
