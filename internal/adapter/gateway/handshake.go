package gateway

// Wire shapes for the challenge/response handshake. The gateway pushes a
// connect.challenge event after the transport opens; the client answers
// with a connect request carrying protocol bounds, its identity, and
// optional credentials. The only signal that authentication succeeded is
// a hello-ok discriminator inside the response payload.

// ProtocolVersion is the protocol version this client speaks.
const ProtocolVersion = 3

const (
	// EventConnectChallenge is pushed by the gateway to start the handshake.
	EventConnectChallenge = "connect.challenge"
	// EventTick is the gateway heartbeat.
	EventTick = "tick"
	// EventShutdown announces a gateway restart; the transport close that
	// follows is handled by the reconnect policy.
	EventShutdown = "shutdown"

	// MethodConnect is the handshake request method.
	MethodConnect = "connect"
	// MethodChatSend and MethodChatHistory are the chat-domain methods.
	MethodChatSend    = "chat.send"
	MethodChatHistory = "chat.history"
)

// HelloOKType is the payload discriminator for a successful handshake.
const HelloOKType = "hello-ok"

// ChallengePayload is the connect.challenge event payload.
type ChallengePayload struct {
	Nonce string `json:"nonce,omitempty"`
	TS    int64  `json:"ts,omitempty"`
}

// ConnectParams is the handshake request body.
type ConnectParams struct {
	MinProtocol int        `json:"minProtocol"`
	MaxProtocol int        `json:"maxProtocol"`
	Client      ClientInfo `json:"client"`
	Auth        *AuthInfo  `json:"auth,omitempty"`
	Role        string     `json:"role,omitempty"`
	Scopes      []string   `json:"scopes,omitempty"`
	Nonce       string     `json:"nonce,omitempty"` // echoed from the challenge
}

// ClientInfo identifies this client to the gateway.
type ClientInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Version     string `json:"version"`
	Platform    string `json:"platform"`
	Mode        string `json:"mode"`
}

// AuthInfo carries handshake credentials.
type AuthInfo struct {
	Token    string `json:"token,omitempty"`
	Password string `json:"password,omitempty"`
}

// HelloOK is the successful handshake response payload. Only Type is
// load-bearing for the state machine; the rest is informational.
type HelloOK struct {
	Type     string `json:"type"`
	Protocol int    `json:"protocol,omitempty"`
	Server   struct {
		Version string `json:"version,omitempty"`
		ConnID  string `json:"connId,omitempty"`
	} `json:"server"`
	Role   string   `json:"role,omitempty"`
	Scopes []string `json:"scopes,omitempty"`
}

// ChatSendParams is the body of a chat.send request.
type ChatSendParams struct {
	SessionKey     string `json:"sessionKey"`
	Message        string `json:"message"`
	IdempotencyKey string `json:"idempotencyKey"`
}

// ChatHistoryParams is the body of a chat.history request.
type ChatHistoryParams struct {
	SessionKey string `json:"sessionKey"`
	Limit      int    `json:"limit,omitempty"`
	Before     int64  `json:"before,omitempty"`
	After      int64  `json:"after,omitempty"`
}
