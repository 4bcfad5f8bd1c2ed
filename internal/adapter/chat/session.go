// Package chat adapts gateway chat events and responses into ordered UI
// operations: message appends, a loading indicator, and history replay.
package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/qidu/webot/internal/adapter/gateway"
	"github.com/qidu/webot/internal/domain"
	"github.com/qidu/webot/internal/infra/logger"
)

// DefaultHistoryLimit bounds the history replay issued after connect.
const DefaultHistoryLimit = 50

// Surface is the rendering boundary. The actual presentation (browser
// DOM, terminal, log) lives outside this package.
type Surface interface {
	AppendMessage(msg domain.ChatMessage)
	SetLoading(loading bool)
	ShowError(message string)
}

// Gateway is the slice of the gateway session this adapter consumes.
type Gateway interface {
	OnConnect(handler func()) func()
	OnDisconnect(handler func(error)) func()
	OnChatEvent(handler func(domain.ChatEvent)) func()
	SendWithResponse(ctx context.Context, method string, params any) (json.RawMessage, error)
}

// historyResult is the chat.history response payload.
type historyResult struct {
	SessionKey string                    `json:"sessionKey"`
	SessionID  string                    `json:"sessionId,omitempty"`
	Messages   []domain.ChatEventMessage `json:"messages"`
}

// Session consumes a gateway session and drives a chat surface. One chat
// session follows one sessionKey.
type Session struct {
	gw         Gateway
	surface    Surface
	logger     *slog.Logger
	sessionKey string
	limit      int

	mu      sync.Mutex
	loading bool
}

// NewSession wires a chat session onto gw. History replay happens on every
// (re)connect; chat events stream in through the gateway dispatcher.
func NewSession(gw Gateway, surface Surface, sessionKey string, log *slog.Logger) *Session {
	s := &Session{
		gw:         gw,
		surface:    surface,
		logger:     logger.Component(log, "chat"),
		sessionKey: sessionKey,
		limit:      DefaultHistoryLimit,
	}
	gw.OnConnect(func() { go s.replayHistory(context.Background()) })
	gw.OnChatEvent(s.handleChatEvent)
	gw.OnDisconnect(s.handleDisconnect)
	return s
}

// Send renders the user's message optimistically, shows the loading
// indicator, and issues chat.send with a fresh idempotency key. The
// indicator is cleared by exactly one of: the final chat event, an error
// chat event, a send failure, a timeout, or a disconnect.
func (s *Session) Send(ctx context.Context, text string) {
	if text == "" {
		return
	}

	s.surface.AppendMessage(domain.ChatMessage{
		Role:      domain.RoleUser,
		Content:   text,
		Timestamp: time.Now(),
	})
	s.setLoading(true)

	params := gateway.ChatSendParams{
		SessionKey:     s.sessionKey,
		Message:        text,
		IdempotencyKey: uuid.NewString(),
	}
	payload, err := s.gw.SendWithResponse(ctx, gateway.MethodChatSend, params)
	if err != nil {
		s.failLoading(err.Error())
		return
	}
	if payload == nil {
		// No answer: timed out or the connection dropped.
		s.failLoading("no response from gateway")
		return
	}
	// The ack only confirms receipt; the reply arrives as a chat event
	// and clears the indicator there.
}

// replayHistory fetches recent messages and renders them oldest-first.
// The server returns newest-first; the reversal is what keeps the
// display chronological.
func (s *Session) replayHistory(ctx context.Context) {
	payload, err := s.gw.SendWithResponse(ctx, gateway.MethodChatHistory, gateway.ChatHistoryParams{
		SessionKey: s.sessionKey,
		Limit:      s.limit,
	})
	if err != nil {
		s.logger.Warn("history fetch failed", "error", err)
		return
	}
	if payload == nil {
		s.logger.Warn("history fetch got no answer")
		return
	}

	var result historyResult
	if err := json.Unmarshal(payload, &result); err != nil {
		s.logger.Warn("malformed history payload", "error", err)
		return
	}

	for i := len(result.Messages) - 1; i >= 0; i-- {
		msg := result.Messages[i]
		s.surface.AppendMessage(domain.ChatMessage{
			Role:      msg.Role,
			Content:   msg.Text(),
			Timestamp: time.UnixMilli(msg.Timestamp),
		})
	}
	s.logger.Debug("history replayed", "messages", len(result.Messages))
}

func (s *Session) handleChatEvent(ev domain.ChatEvent) {
	if ev.SessionKey != "" && ev.SessionKey != s.sessionKey {
		return
	}

	switch ev.State {
	case domain.ChatStateStarted, domain.ChatStateStreaming:
		s.setLoading(true)
	case domain.ChatStateFinal:
		text := ev.Message.Text()
		if text != "" {
			s.surface.AppendMessage(domain.ChatMessage{
				Role:      domain.RoleAssistant,
				Content:   text,
				Timestamp: time.Now(),
			})
		}
		s.setLoading(false)
	case domain.ChatStateError:
		msg := ev.ErrorMessage
		if msg == "" {
			msg = "chat run failed"
		}
		s.failLoading(msg)
	}
}

func (s *Session) handleDisconnect(err error) {
	s.mu.Lock()
	wasLoading := s.loading
	s.loading = false
	s.mu.Unlock()

	if wasLoading {
		s.surface.SetLoading(false)
		s.surface.ShowError("connection lost")
	}
}

func (s *Session) setLoading(loading bool) {
	s.mu.Lock()
	changed := s.loading != loading
	s.loading = loading
	s.mu.Unlock()
	if changed {
		s.surface.SetLoading(loading)
	}
}

// failLoading clears the indicator and surfaces the failure as a chat
// bubble instead of leaving the UI stuck.
func (s *Session) failLoading(message string) {
	s.setLoading(false)
	s.surface.ShowError(message)
}
