package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qidu/webot/internal/adapter/gateway"
	"github.com/qidu/webot/internal/domain"
)

// --- test doubles ---

type fakeSurface struct {
	mu       sync.Mutex
	messages []domain.ChatMessage
	loading  []bool
	errors   []string
}

func (f *fakeSurface) AppendMessage(msg domain.ChatMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
}

func (f *fakeSurface) SetLoading(loading bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loading = append(f.loading, loading)
}

func (f *fakeSurface) ShowError(message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, message)
}

func (f *fakeSurface) contents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.messages))
	for i, m := range f.messages {
		out[i] = m.Content
	}
	return out
}

func (f *fakeSurface) lastLoading() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.loading) == 0 {
		return false
	}
	return f.loading[len(f.loading)-1]
}

type fakeGateway struct {
	onConnect    func()
	onDisconnect func(error)
	onChatEvent  func(domain.ChatEvent)

	mu        sync.Mutex
	requests  []string
	responses map[string]json.RawMessage
	errors    map[string]error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		responses: make(map[string]json.RawMessage),
		errors:    make(map[string]error),
	}
}

func (g *fakeGateway) OnConnect(h func()) func()         { g.onConnect = h; return func() {} }
func (g *fakeGateway) OnDisconnect(h func(error)) func() { g.onDisconnect = h; return func() {} }
func (g *fakeGateway) OnChatEvent(h func(domain.ChatEvent)) func() {
	g.onChatEvent = h
	return func() {}
}

func (g *fakeGateway) SendWithResponse(_ context.Context, method string, _ any) (json.RawMessage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, method)
	if err, ok := g.errors[method]; ok {
		return nil, err
	}
	return g.responses[method], nil
}

func newChatSession(t *testing.T) (*Session, *fakeGateway, *fakeSurface) {
	t.Helper()
	gw := newFakeGateway()
	surface := &fakeSurface{}
	s := NewSession(gw, surface, "s1", slog.Default())
	return s, gw, surface
}

// --- tests ---

func TestHistoryReplayChronological(t *testing.T) {
	s, gw, surface := newChatSession(t)

	// Server order is newest-first.
	gw.responses[gateway.MethodChatHistory] = json.RawMessage(`{
		"sessionKey": "s1",
		"sessionId": "abc",
		"messages": [
			{"role":"assistant","content":[{"type":"text","text":"third"}],"timestamp":3000},
			{"role":"user","content":[{"type":"text","text":"second"}],"timestamp":2000},
			{"role":"user","content":[{"type":"text","text":"first"}],"timestamp":1000}
		]
	}`)

	s.replayHistory(context.Background())

	assert.Equal(t, []string{"first", "second", "third"}, surface.contents())
}

func TestHistoryNoAnswerIsQuiet(t *testing.T) {
	s, _, surface := newChatSession(t)

	// Fake gateway returns (nil, nil): timeout or disconnect.
	s.replayHistory(context.Background())

	assert.Empty(t, surface.contents())
	assert.Empty(t, surface.errors)
}

func TestSendOptimisticRender(t *testing.T) {
	s, gw, surface := newChatSession(t)
	gw.responses[gateway.MethodChatSend] = json.RawMessage(`{"runId":"r1"}`)

	s.Send(context.Background(), "hello there")

	msgs := surface.contents()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello there", msgs[0])
	assert.Equal(t, domain.RoleUser, surface.messages[0].Role)
	// Ack received: the indicator stays on until the chat event arrives.
	assert.True(t, surface.lastLoading())
}

func TestSendNoAnswerClearsLoading(t *testing.T) {
	s, _, surface := newChatSession(t)

	s.Send(context.Background(), "hello?")

	assert.False(t, surface.lastLoading())
	require.NotEmpty(t, surface.errors)
}

func TestSendRemoteErrorSurfaced(t *testing.T) {
	s, gw, surface := newChatSession(t)
	gw.errors[gateway.MethodChatSend] = &domain.RemoteError{Code: 429, Message: "slow down"}

	s.Send(context.Background(), "hi")

	assert.False(t, surface.lastLoading())
	require.Len(t, surface.errors, 1)
	assert.Contains(t, surface.errors[0], "slow down")
}

func TestFinalEventConcatenatesSegments(t *testing.T) {
	s, gw, surface := newChatSession(t)
	_ = s

	gw.onChatEvent(domain.ChatEvent{
		State: domain.ChatStateStarted,
	})
	require.True(t, surface.lastLoading())

	gw.onChatEvent(domain.ChatEvent{
		State: domain.ChatStateFinal,
		Message: &domain.ChatEventMessage{
			Role: domain.RoleAssistant,
			Content: []domain.ContentSegment{
				{Type: "text", Text: "Hello"},
				{Type: "text", Text: " world"},
			},
		},
	})

	assert.Equal(t, []string{"Hello world"}, surface.contents())
	assert.False(t, surface.lastLoading())
}

func TestErrorEventClearsLoading(t *testing.T) {
	s, gw, surface := newChatSession(t)
	_ = s

	gw.onChatEvent(domain.ChatEvent{State: domain.ChatStateStarted})
	gw.onChatEvent(domain.ChatEvent{
		State:        domain.ChatStateError,
		ErrorMessage: "model unavailable",
	})

	assert.False(t, surface.lastLoading())
	require.Len(t, surface.errors, 1)
	assert.Equal(t, "model unavailable", surface.errors[0])
}

func TestOtherSessionEventsIgnored(t *testing.T) {
	s, gw, surface := newChatSession(t)
	_ = s

	gw.onChatEvent(domain.ChatEvent{
		SessionKey: "someone-else",
		State:      domain.ChatStateFinal,
		Message: &domain.ChatEventMessage{
			Content: []domain.ContentSegment{{Type: "text", Text: "nope"}},
		},
	})

	assert.Empty(t, surface.contents())
}

func TestDisconnectWhileLoading(t *testing.T) {
	s, gw, surface := newChatSession(t)
	_ = s

	gw.onChatEvent(domain.ChatEvent{State: domain.ChatStateStreaming})
	require.True(t, surface.lastLoading())

	gw.onDisconnect(domain.ErrTransport)

	assert.False(t, surface.lastLoading())
	assert.NotEmpty(t, surface.errors)
}

func TestConnectTriggersHistory(t *testing.T) {
	s, gw, _ := newChatSession(t)
	_ = s

	gw.responses[gateway.MethodChatHistory] = json.RawMessage(`{"sessionKey":"s1","messages":[]}`)

	done := make(chan struct{})
	go func() {
		gw.onConnect()
		close(done)
	}()
	<-done

	assert.Eventually(t, func() bool {
		gw.mu.Lock()
		defer gw.mu.Unlock()
		for _, m := range gw.requests {
			if m == gateway.MethodChatHistory {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}
