package gateway

import (
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qidu/webot/internal/domain"
)

func TestDispatcherDeliversInSubscriptionOrder(t *testing.T) {
	d := NewDispatcher(slog.Default())

	var order []int
	d.OnEvent(func(Frame) { order = append(order, 1) })
	d.OnEvent(func(Frame) { order = append(order, 2) })
	d.OnEvent(func(Frame) { order = append(order, 3) })

	d.DispatchEvent(Frame{Type: FrameTypeEvent, Event: "tick"})

	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestDispatcherPanickingSubscriberDoesNotBlockOthers(t *testing.T) {
	d := NewDispatcher(slog.Default())

	var delivered bool
	d.OnEvent(func(Frame) { panic("boom") })
	d.OnEvent(func(Frame) { delivered = true })

	d.DispatchEvent(Frame{Type: FrameTypeEvent, Event: "tick"})

	assert.True(t, delivered, "subscriber after the panicking one must still run")
}

func TestDispatcherChatRouting(t *testing.T) {
	d := NewDispatcher(slog.Default())

	var generic int
	var chat []domain.ChatEvent
	d.OnEvent(func(Frame) { generic++ })
	d.OnChatEvent(func(ev domain.ChatEvent) { chat = append(chat, ev) })

	d.DispatchEvent(Frame{
		Type:    FrameTypeEvent,
		Event:   EventChat,
		Payload: json.RawMessage(`{"runId":"run1","sessionKey":"s1","state":"final","message":{"content":[{"type":"text","text":"hey"}]}}`),
	})
	d.DispatchEvent(Frame{Type: FrameTypeEvent, Event: "presence"})

	assert.Equal(t, 2, generic, "generic subscribers see every event")
	require.Len(t, chat, 1, "chat subscribers see only chat events")
	assert.Equal(t, domain.ChatStateFinal, chat[0].State)
	assert.Equal(t, "hey", chat[0].Message.Text())
}

func TestDispatcherMalformedChatPayloadDropped(t *testing.T) {
	d := NewDispatcher(slog.Default())

	var called bool
	d.OnChatEvent(func(domain.ChatEvent) { called = true })

	d.DispatchEvent(Frame{
		Type:    FrameTypeEvent,
		Event:   EventChat,
		Payload: json.RawMessage(`"not an object"`),
	})

	assert.False(t, called)
}

func TestDispatcherUnsubscribe(t *testing.T) {
	d := NewDispatcher(slog.Default())

	var count int
	unsub := d.OnEvent(func(Frame) { count++ })

	d.DispatchEvent(Frame{Type: FrameTypeEvent, Event: "tick"})
	unsub()
	d.DispatchEvent(Frame{Type: FrameTypeEvent, Event: "tick"})

	assert.Equal(t, 1, count)
}

func TestDispatcherConnectDisconnect(t *testing.T) {
	d := NewDispatcher(slog.Default())

	var connects int
	var lastErr error
	d.OnConnect(func() { connects++ })
	d.OnDisconnect(func(err error) { lastErr = err })

	d.DispatchConnect()
	d.DispatchDisconnect(domain.ErrTransport)

	assert.Equal(t, 1, connects)
	assert.ErrorIs(t, lastErr, domain.ErrTransport)
}
