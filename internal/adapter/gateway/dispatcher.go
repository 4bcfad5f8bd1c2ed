package gateway

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/qidu/webot/internal/domain"
)

// EventChat is the event name carrying chat-domain payloads.
const EventChat = "chat"

type subscription[T any] struct {
	id      uint64
	handler func(T)
}

// Dispatcher fans inbound event frames out to subscribers. Delivery is
// synchronous, best-effort, at most once per subscriber registered at
// dispatch time. A panicking subscriber
// is recovered and logged and does not prevent delivery to the rest.
type Dispatcher struct {
	mu             sync.Mutex
	nextID         uint64
	connectSubs    []subscription[struct{}]
	disconnectSubs []subscription[error]
	eventSubs      []subscription[Frame]
	chatSubs       []subscription[domain.ChatEvent]
	logger         *slog.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{logger: logger}
}

// OnConnect registers a handler invoked after authentication completes.
// Returns an unsubscribe function.
func (d *Dispatcher) OnConnect(handler func()) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := d.nextID
	d.connectSubs = append(d.connectSubs, subscription[struct{}]{id: id, handler: func(struct{}) { handler() }})
	return func() { d.remove(id) }
}

// OnDisconnect registers a handler invoked when the session leaves the
// connected state. err is nil for an explicit disconnect.
func (d *Dispatcher) OnDisconnect(handler func(error)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := d.nextID
	d.disconnectSubs = append(d.disconnectSubs, subscription[error]{id: id, handler: handler})
	return func() { d.remove(id) }
}

// OnEvent registers a handler for every inbound event frame.
func (d *Dispatcher) OnEvent(handler func(Frame)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := d.nextID
	d.eventSubs = append(d.eventSubs, subscription[Frame]{id: id, handler: handler})
	return func() { d.remove(id) }
}

// OnChatEvent registers a handler for chat-domain events with the
// narrower payload shape.
func (d *Dispatcher) OnChatEvent(handler func(domain.ChatEvent)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := d.nextID
	d.chatSubs = append(d.chatSubs, subscription[domain.ChatEvent]{id: id, handler: handler})
	return func() { d.remove(id) }
}

// DispatchEvent delivers an event frame to every generic subscriber, then
// additionally routes "chat" events to chat subscribers. Events are not
// queued or buffered beyond this call.
func (d *Dispatcher) DispatchEvent(frame Frame) {
	d.mu.Lock()
	eventSubs := make([]subscription[Frame], len(d.eventSubs))
	copy(eventSubs, d.eventSubs)
	chatSubs := make([]subscription[domain.ChatEvent], len(d.chatSubs))
	copy(chatSubs, d.chatSubs)
	d.mu.Unlock()

	for _, sub := range eventSubs {
		deliver(d.logger, "event", sub.handler, frame)
	}

	if frame.Event != EventChat || len(chatSubs) == 0 {
		return
	}
	var payload domain.ChatEvent
	if len(frame.Payload) > 0 {
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			d.logger.Warn("malformed chat event payload", "error", err)
			return
		}
	}
	for _, sub := range chatSubs {
		deliver(d.logger, "chat event", sub.handler, payload)
	}
}

// DispatchConnect notifies connect subscribers.
func (d *Dispatcher) DispatchConnect() {
	d.mu.Lock()
	subs := make([]subscription[struct{}], len(d.connectSubs))
	copy(subs, d.connectSubs)
	d.mu.Unlock()

	for _, sub := range subs {
		deliver(d.logger, "connect", sub.handler, struct{}{})
	}
}

// DispatchDisconnect notifies disconnect subscribers.
func (d *Dispatcher) DispatchDisconnect(err error) {
	d.mu.Lock()
	subs := make([]subscription[error], len(d.disconnectSubs))
	copy(subs, d.disconnectSubs)
	d.mu.Unlock()

	for _, sub := range subs {
		deliver(d.logger, "disconnect", sub.handler, err)
	}
}

func deliver[T any](logger *slog.Logger, kind string, handler func(T), arg T) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("subscriber panicked", "kind", kind, "panic", r)
		}
	}()
	handler(arg)
}

func (d *Dispatcher) remove(id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connectSubs = removeSub(d.connectSubs, id)
	d.disconnectSubs = removeSub(d.disconnectSubs, id)
	d.eventSubs = removeSub(d.eventSubs, id)
	d.chatSubs = removeSub(d.chatSubs, id)
}

func removeSub[T any](subs []subscription[T], id uint64) []subscription[T] {
	for i, s := range subs {
		if s.id == id {
			return append(subs[:i], subs[i+1:]...)
		}
	}
	return subs
}
