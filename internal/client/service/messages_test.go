package service

import (
	"testing"

	"github.com/membuddy/linkauth/internal/client/domain"

	"github.com/stretchr/testify/require"
)

func TestMessageBusDelivers(t *testing.T) {
	bus := NewMessageBus("app://membuddy", testLogger())

	var got []domain.CompletionMessage
	bus.Subscribe(func(msg domain.CompletionMessage) { got = append(got, msg) })

	msg := domain.CompletionMessage{
		Origin:    "app://membuddy",
		Kind:      domain.CompletionSuccess,
		AttemptID: "code-1",
		User:      testUser(),
		Token:     "tok",
	}
	bus.Publish(msg)

	require.Len(t, got, 1)
	require.Equal(t, msg, got[0])
}

func TestMessageBusDiscardsForeignOrigin(t *testing.T) {
	bus := NewMessageBus("app://membuddy", testLogger())

	called := false
	bus.Subscribe(func(domain.CompletionMessage) { called = true })

	// Well-formed payload, wrong origin. Dropped without any user-visible
	// error: it may just be noise from an unrelated surface.
	bus.Publish(domain.CompletionMessage{
		Origin:    "https://evil.example.com",
		Kind:      domain.CompletionSuccess,
		AttemptID: "code-1",
		Token:     "tok",
	})

	require.False(t, called)
}

func TestMessageBusDiscardsUnknownKind(t *testing.T) {
	bus := NewMessageBus("app://membuddy", testLogger())

	called := false
	bus.Subscribe(func(domain.CompletionMessage) { called = true })

	bus.Publish(domain.CompletionMessage{
		Origin: "app://membuddy",
		Kind:   domain.CompletionKind("SOMETHING_ELSE"),
	})

	require.False(t, called)
}

func TestMessageBusUnsubscribe(t *testing.T) {
	bus := NewMessageBus("app://membuddy", testLogger())

	var a, b int
	unsubA := bus.Subscribe(func(domain.CompletionMessage) { a++ })
	bus.Subscribe(func(domain.CompletionMessage) { b++ })

	msg := domain.CompletionMessage{Origin: "app://membuddy", Kind: domain.CompletionError, Reason: "nope"}
	bus.Publish(msg)
	require.Equal(t, 1, a)
	require.Equal(t, 1, b)

	unsubA()
	unsubA() // no-op
	bus.Publish(msg)
	require.Equal(t, 1, a)
	require.Equal(t, 2, b)
}
