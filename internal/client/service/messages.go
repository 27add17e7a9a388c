package service

import (
	"log/slog"
	"sync"

	"github.com/membuddy/linkauth/internal/client/domain"
	"github.com/membuddy/linkauth/pkg/idx"
)

// MessageBus is the same-process completion channel: a confirming surface that
// shares this process (the analogue of a login popup posting back to its
// opener) publishes its outcome here.
//
// The bus is a security boundary, not a convenience: a message whose declared
// origin differs from ours is discarded unconditionally and silently, since it
// may be noise from an unrelated surface. Validation happens here, at the
// boundary, so subscribers only ever see well-formed messages from our origin.
type MessageBus struct {
	Origin string
	Logger *slog.Logger

	mu   sync.Mutex
	subs []busSubscriber
}

type busSubscriber struct {
	id idx.ID
	fn func(domain.CompletionMessage)
}

func NewMessageBus(origin string, logger *slog.Logger) *MessageBus {
	return &MessageBus{Origin: origin, Logger: logger}
}

// Subscribe registers a handler for accepted messages. The returned handle
// removes exactly this registration and is safe to call more than once.
func (b *MessageBus) Subscribe(fn func(domain.CompletionMessage)) func() {
	id := idx.New()

	b.mu.Lock()
	b.subs = append(b.subs, busSubscriber{id: id, fn: fn})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers a message to subscribers, synchronously, after boundary
// validation. Rejections are never surfaced to the user.
func (b *MessageBus) Publish(msg domain.CompletionMessage) {
	if msg.Origin != b.Origin {
		b.Logger.Debug("discarding message from foreign origin", "origin", msg.Origin)
		return
	}

	switch msg.Kind {
	case domain.CompletionSuccess, domain.CompletionError:
	default:
		b.Logger.Debug("discarding message of unknown kind", "kind", msg.Kind)
		return
	}

	b.mu.Lock()
	snapshot := make([]busSubscriber, len(b.subs))
	copy(snapshot, b.subs)
	b.mu.Unlock()

	for _, s := range snapshot {
		s.fn(msg)
	}
}
