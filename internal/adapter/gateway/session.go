package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/oklog/ulid/v2"
	"nhooyr.io/websocket"

	"github.com/qidu/webot/internal/domain"
	"github.com/qidu/webot/internal/infra/logger"
)

const (
	// DefaultRequestTimeout bounds how long a request waits for its response.
	DefaultRequestTimeout = 10 * time.Second
	// DefaultReconnectDelay is the fixed delay before the single scheduled
	// reconnect attempt after an unexpected transport close.
	DefaultReconnectDelay = 3 * time.Second

	dialTimeout = 10 * time.Second
)

// SessionConfig configures a gateway session.
type SessionConfig struct {
	URL         string
	Token       string
	Password    string
	ClientID    string
	DisplayName string
	Version     string
	Mode        string
	Role        string
	Scopes      []string

	RequestTimeout time.Duration
	ReconnectDelay time.Duration
	// MaxReconnectDelay, when larger than ReconnectDelay, upgrades the
	// reconnect policy to exponential backoff with jitter capped at this
	// value. A single attempt is still scheduled at a time.
	MaxReconnectDelay time.Duration
}

func (c *SessionConfig) applyDefaults() {
	if c.ClientID == "" {
		c.ClientID = "webot"
	}
	if c.Version == "" {
		c.Version = "webot/1.0"
	}
	if c.Mode == "" {
		c.Mode = "backend"
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
}

// Session owns one logical gateway connection: the transport handle, the
// challenge handshake, request correlation, event dispatch, and the
// reconnect policy. All state transitions are serialized behind one mutex.
type Session struct {
	cfg        SessionConfig
	logger     *slog.Logger
	correlator *Correlator
	dispatcher *Dispatcher

	mu              sync.Mutex
	status          domain.Status
	conn            *websocket.Conn
	connGen         uint64 // bumped per transport; stale read loops are ignored
	reconnectTimer  *time.Timer
	manualClose     bool
	retryPolicy     backoff.BackOff
	lastErr         error
	lastConnectedAt time.Time
	disconnectedAt  time.Time

	writeMu sync.Mutex // serializes socket writes
}

// NewSession creates a disconnected session.
func NewSession(cfg SessionConfig, log *slog.Logger) *Session {
	cfg.applyDefaults()
	s := &Session{
		cfg:        cfg,
		logger:     logger.Component(log, "gateway"),
		correlator: NewCorrelator(log),
		dispatcher: NewDispatcher(log),
		status:     domain.StatusDisconnected,
	}
	s.retryPolicy = s.newRetryPolicy()
	return s
}

func (s *Session) newRetryPolicy() backoff.BackOff {
	if s.cfg.MaxReconnectDelay > s.cfg.ReconnectDelay {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = s.cfg.ReconnectDelay
		b.MaxInterval = s.cfg.MaxReconnectDelay
		b.MaxElapsedTime = 0 // retry forever
		return b
	}
	return backoff.NewConstantBackOff(s.cfg.ReconnectDelay)
}

// OnConnect registers a handler invoked once authentication completes.
func (s *Session) OnConnect(handler func()) func() { return s.dispatcher.OnConnect(handler) }

// OnDisconnect registers a handler invoked when the connection is lost or
// torn down. err is nil for an explicit disconnect.
func (s *Session) OnDisconnect(handler func(error)) func() {
	return s.dispatcher.OnDisconnect(handler)
}

// OnEvent registers a handler for every inbound event frame.
func (s *Session) OnEvent(handler func(Frame)) func() { return s.dispatcher.OnEvent(handler) }

// OnChatEvent registers a handler for chat-domain events.
func (s *Session) OnChatEvent(handler func(domain.ChatEvent)) func() {
	return s.dispatcher.OnChatEvent(handler)
}

// State returns the current session status.
func (s *Session) State() domain.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// ConnState returns an observable snapshot of the connection.
func (s *Session) ConnState() domain.ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.ConnState{
		Status:          s.status,
		LastError:       s.lastErr,
		LastConnectedAt: s.lastConnectedAt,
		DisconnectedAt:  s.disconnectedAt,
	}
}

// Connect opens the transport. It is idempotent while connecting or
// connected, and returns once the transport is open: authentication
// completes asynchronously and is signaled via OnConnect. A dial failure
// transitions back to disconnected and schedules a reconnect attempt.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.status != domain.StatusDisconnected {
		s.mu.Unlock()
		return nil
	}
	s.manualClose = false
	s.stopReconnectLocked()
	s.status = domain.StatusConnecting
	url := s.cfg.URL
	s.mu.Unlock()

	s.logger.Info("connecting to gateway", "url", url)

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	conn, _, err := websocket.Dial(dialCtx, url, nil)
	cancel()
	if err != nil {
		s.mu.Lock()
		s.status = domain.StatusDisconnected
		s.disconnectedAt = time.Now()
		s.lastErr = err
		manual := s.manualClose
		s.mu.Unlock()

		s.dispatcher.DispatchDisconnect(err)
		if !manual {
			s.scheduleReconnect()
		}
		return domain.NewClientError("Session.Connect", domain.ErrTransport, err.Error())
	}

	s.mu.Lock()
	if s.manualClose || s.status != domain.StatusConnecting {
		// Disconnect won the race while the dial was in flight: drop the
		// fresh transport instead of resurrecting the session.
		s.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "client disconnect")
		return nil
	}
	s.conn = conn
	s.connGen++
	gen := s.connGen
	s.status = domain.StatusAwaitingChallenge
	s.mu.Unlock()

	go s.readLoop(gen, conn)
	return nil
}

// Disconnect tears the session down: it cancels any scheduled reconnect,
// closes the transport, and deterministically settles every pending
// request with a closed-connection outcome before returning. The next
// automatic reconnect is suppressed.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.manualClose = true
	s.stopReconnectLocked()
	conn := s.conn
	s.conn = nil
	s.connGen++ // orphan the read loop so teardown is reported exactly once
	wasDisconnected := s.status == domain.StatusDisconnected
	s.status = domain.StatusDisconnected
	s.disconnectedAt = time.Now()
	s.retryPolicy.Reset()
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	s.correlator.CancelAll(domain.ErrConnectionClosed)
	if !wasDisconnected {
		s.dispatcher.DispatchDisconnect(nil)
	}
}

// Reconnect tears down the current connection and dials again immediately.
func (s *Session) Reconnect(ctx context.Context) error {
	s.Disconnect()
	return s.Connect(ctx)
}

// Send writes a frame without expecting a response. Outside the connected
// state it silently drops the frame; the handshake request is sent on an
// internal path and is the only frame permitted earlier.
func (s *Session) Send(ctx context.Context, frame Frame) error {
	s.mu.Lock()
	conn := s.conn
	connected := s.status == domain.StatusConnected
	s.mu.Unlock()

	if !connected || conn == nil {
		s.logger.Debug("dropping frame, not connected", "method", frame.Method, "event", frame.Event)
		return nil
	}
	return s.writeFrame(ctx, conn, frame)
}

// SendWithResponse sends a request frame and waits for the matching
// response. It returns the response payload on success, the remote error
// when the server reports a failure, and (nil, nil) when the request
// times out or the connection closes first, so callers can treat "no
// answer" uniformly.
func (s *Session) SendWithResponse(ctx context.Context, method string, params any) (json.RawMessage, error) {
	s.mu.Lock()
	conn := s.conn
	connected := s.status == domain.StatusConnected
	s.mu.Unlock()

	if !connected || conn == nil {
		s.logger.Debug("request while not connected", "method", method)
		return nil, nil
	}

	frame := Frame{Type: FrameTypeRequest, ID: ulid.Make().String(), Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, domain.WrapOp("Session.SendWithResponse", err)
		}
		frame.Params = raw
	}

	ch := s.correlator.Register(frame.ID, s.cfg.RequestTimeout)
	if err := s.writeFrame(ctx, conn, frame); err != nil {
		s.correlator.Cancel(frame.ID, err)
		<-ch
		return nil, nil
	}

	select {
	case out := <-ch:
		if out.Err != nil {
			if domain.IsRequestSettled(out.Err) {
				return nil, nil
			}
			var remote *domain.RemoteError
			if errors.As(out.Err, &remote) {
				return nil, remote
			}
			return nil, nil
		}
		return out.Payload, nil
	case <-ctx.Done():
		s.correlator.Cancel(frame.ID, ctx.Err())
		return nil, ctx.Err()
	}
}

func (s *Session) writeFrame(ctx context.Context, conn *websocket.Conn, frame Frame) error {
	data, err := EncodeFrame(frame)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	writeCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		return domain.NewClientError("Session.write", domain.ErrTransport, err.Error())
	}
	return nil
}

// readLoop drains the transport until it fails or the session moves on to
// a newer connection generation.
func (s *Session) readLoop(gen uint64, conn *websocket.Conn) {
	ctx := context.Background()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			s.handleTransportClose(gen, err)
			return
		}

		frame, err := DecodeFrame(data)
		if err != nil {
			// Malformed frames are dropped; the connection stays up.
			s.logger.Warn("dropping undecodable frame", "error", err)
			continue
		}
		s.route(gen, conn, frame)
	}
}

func (s *Session) route(gen uint64, conn *websocket.Conn, frame Frame) {
	switch frame.Type {
	case FrameTypeResponse:
		s.correlator.Resolve(frame.ID, frame.OK, frame.Payload, frame.Error)
	case FrameTypeEvent:
		if frame.Event == EventConnectChallenge {
			s.startHandshake(gen, conn, frame)
			return
		}
		if frame.Event == EventShutdown {
			s.logger.Info("gateway announced shutdown")
		}
		s.dispatcher.DispatchEvent(frame)
	case FrameTypeRequest:
		// The gateway never issues requests to this client.
		s.logger.Debug("ignoring request frame from server", "method", frame.Method)
	}
}

// startHandshake answers the connect.challenge event with the handshake
// request. The wait for the hello runs on its own goroutine: the read
// loop must stay free to deliver the response. Envelope ok alone is not
// enough: only a hello-ok payload discriminator completes authentication.
func (s *Session) startHandshake(gen uint64, conn *websocket.Conn, frame Frame) {
	s.mu.Lock()
	if s.connGen != gen || s.status != domain.StatusAwaitingChallenge {
		s.mu.Unlock()
		return
	}
	s.status = domain.StatusAuthenticating
	s.mu.Unlock()

	var challenge ChallengePayload
	if len(frame.Payload) > 0 {
		if err := json.Unmarshal(frame.Payload, &challenge); err != nil {
			s.logger.Warn("malformed challenge payload", "error", err)
		}
	}

	params := ConnectParams{
		MinProtocol: ProtocolVersion,
		MaxProtocol: ProtocolVersion,
		Client: ClientInfo{
			ID:          s.cfg.ClientID,
			DisplayName: s.cfg.DisplayName,
			Version:     s.cfg.Version,
			Platform:    runtime.GOOS,
			Mode:        s.cfg.Mode,
		},
		Role:   s.cfg.Role,
		Scopes: s.cfg.Scopes,
		Nonce:  challenge.Nonce,
	}
	if s.cfg.Token != "" || s.cfg.Password != "" {
		params.Auth = &AuthInfo{Token: s.cfg.Token, Password: s.cfg.Password}
	}

	raw, err := json.Marshal(params)
	if err != nil {
		s.failAuth(gen, conn, err)
		return
	}
	req := Frame{Type: FrameTypeRequest, ID: ulid.Make().String(), Method: MethodConnect, Params: raw}

	ch := s.correlator.Register(req.ID, s.cfg.RequestTimeout)
	if err := s.writeFrame(context.Background(), conn, req); err != nil {
		s.correlator.Cancel(req.ID, err)
		<-ch
		s.failAuth(gen, conn, err)
		return
	}

	go s.awaitHello(gen, conn, ch)
}

func (s *Session) awaitHello(gen uint64, conn *websocket.Conn, ch <-chan Outcome) {
	out := <-ch
	if out.Err != nil {
		s.failAuth(gen, conn, out.Err)
		return
	}

	var hello HelloOK
	if err := json.Unmarshal(out.Payload, &hello); err != nil || hello.Type != HelloOKType {
		// ok:true with any other payload shape is not a login.
		s.failAuth(gen, conn, domain.ErrAuthFailed)
		return
	}

	s.mu.Lock()
	if s.connGen != gen || s.status != domain.StatusAuthenticating {
		s.mu.Unlock()
		return
	}
	s.status = domain.StatusConnected
	s.lastConnectedAt = time.Now()
	s.lastErr = nil
	s.retryPolicy.Reset()
	s.mu.Unlock()

	s.logger.Info("gateway session authenticated", "client_id", s.cfg.ClientID)
	s.dispatcher.DispatchConnect()
}

func (s *Session) failAuth(gen uint64, conn *websocket.Conn, err error) {
	s.mu.Lock()
	stale := s.connGen != gen
	s.mu.Unlock()
	if stale {
		return
	}
	s.logger.Warn("gateway handshake failed", "error", err)
	// Closing the transport funnels the failure through the normal
	// close path, which triggers the reconnect policy.
	_ = conn.Close(websocket.StatusPolicyViolation, "handshake failed")
}

func (s *Session) handleTransportClose(gen uint64, err error) {
	s.mu.Lock()
	if s.connGen != gen {
		s.mu.Unlock()
		return // superseded by a newer connection or an explicit disconnect
	}
	s.conn = nil
	s.status = domain.StatusDisconnected
	s.disconnectedAt = time.Now()
	s.lastErr = err
	manual := s.manualClose
	s.mu.Unlock()

	status := websocket.CloseStatus(err)
	s.logger.Info("gateway connection closed", "code", int(status), "error", err)

	s.correlator.CancelAll(domain.ErrConnectionClosed)
	s.dispatcher.DispatchDisconnect(err)
	if !manual {
		s.scheduleReconnect()
	}
}

// scheduleReconnect arms exactly one reconnect attempt. Repeated failures
// re-enter here through the close path, each arming the next attempt, so
// failures never spin without delay.
func (s *Session) scheduleReconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.manualClose || s.reconnectTimer != nil || s.status != domain.StatusDisconnected {
		return
	}
	delay := s.retryPolicy.NextBackOff()
	if delay == backoff.Stop {
		delay = s.cfg.ReconnectDelay
	}
	s.logger.Info("scheduling reconnect", "delay", delay)
	s.reconnectTimer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		s.reconnectTimer = nil
		manual := s.manualClose
		s.mu.Unlock()
		if manual {
			return
		}
		_ = s.Connect(context.Background())
	})
}

func (s *Session) stopReconnectLocked() {
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
}
