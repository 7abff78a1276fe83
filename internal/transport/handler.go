package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"chatrelay/internal/auth"
	"chatrelay/internal/constants"
	apperrors "chatrelay/internal/errors"
	"chatrelay/internal/httputil"
	"chatrelay/internal/metrics"
	"chatrelay/internal/privacy"
	"chatrelay/internal/relay"
	"chatrelay/internal/tracing"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
)

// Relay is the engine side of the socket: lifecycle notifications plus
// message sends.
type Relay interface {
	ConnectionOpened(conn relay.Conn)
	IdentityAnnounced(conn relay.Conn, userID string) error
	ConnectionClosed(conn relay.Conn)
	HandleSend(ctx context.Context, event relay.MessageEvent) (relay.Outcome, error)
}

// TokenVerifier checks session tokens presented on the upgrade request.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// Options tune the WebSocket endpoint.
type Options struct {
	// AllowedOrigins are host patterns accepted in addition to same-origin.
	AllowedOrigins []string
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	ReadLimit      int64
	// RequireToken rejects upgrades without a valid token and pins the
	// connection to the token's user.
	RequireToken bool
	Verbose      bool
}

func (o *Options) setDefaults() {
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = constants.DefaultWSWriteTimeoutSec * time.Second
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = constants.DefaultWSReadLimitBytes
	}
}

// Handler upgrades HTTP requests to WebSockets and feeds their events to the
// relay.
type Handler struct {
	relay  Relay
	tokens TokenVerifier
	opts   Options
	logger *logrus.Logger

	mu      sync.Mutex
	clients map[*Client]struct{}
}

// NewHandler builds the endpoint. tokens may be nil when RequireToken is off;
// a token presented anyway is then ignored.
func NewHandler(relay Relay, tokens TokenVerifier, opts Options, logger *logrus.Logger) *Handler {
	opts.setDefaults()
	return &Handler{
		relay:   relay,
		tokens:  tokens,
		opts:    opts,
		logger:  logger,
		clients: make(map[*Client]struct{}),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	subject, err := h.authenticate(r)
	if err != nil {
		metrics.IncrementCounter("ws_rejected_total", map[string]string{"reason": "auth"}, "Rejected WebSocket upgrades")
		writeError(w, r, err)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.opts.AllowedOrigins,
	})
	if err != nil {
		// Accept has already written the HTTP error.
		metrics.IncrementCounter("ws_rejected_total", map[string]string{"reason": "upgrade"}, "Rejected WebSocket upgrades")
		h.logger.WithError(err).WithField("remote_addr", r.RemoteAddr).Debug("WebSocket upgrade failed")
		return
	}
	ws.SetReadLimit(h.opts.ReadLimit)

	client := newClient(ws, subject, h.opts.WriteTimeout, h.logger)
	// The relay forgets the client before it reports closed, so a closed
	// client is never resolved as a receiver.
	client.onClose = func() { h.relay.ConnectionClosed(client) }
	h.track(client)
	defer h.untrack(client)

	// The request context is cancelled once the handler returns, which ends
	// the ping loop as well.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	h.relay.ConnectionOpened(client)
	go client.pingLoop(ctx, h.opts.PingInterval)

	h.readLoop(ctx, client)
	_ = client.Close("")
}

func (h *Handler) authenticate(r *http.Request) (string, error) {
	if !h.opts.RequireToken || h.tokens == nil {
		return "", nil
	}

	token := httputil.BearerToken(r)
	if token == "" {
		return "", apperrors.NewAuthError("missing token")
	}

	claims, err := h.tokens.Verify(token)
	if err != nil {
		return "", apperrors.NewAuthError("invalid token")
	}
	return claims.UserID, nil
}

func (h *Handler) readLoop(ctx context.Context, client *Client) {
	for {
		msgType, data, err := client.ws.Read(ctx)
		if err != nil {
			h.logReadEnd(client, err)
			return
		}

		if msgType != websocket.MessageText {
			client.sendError(ctx, "binary frames are not supported")
			continue
		}

		var env inboundEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			metrics.IncrementCounter("ws_events_total", map[string]string{"type": "malformed"}, "WebSocket events received")
			client.sendError(ctx, "malformed message")
			continue
		}

		h.dispatch(ctx, client, env)
	}
}

func (h *Handler) dispatch(ctx context.Context, client *Client, env inboundEnvelope) {
	switch env.Type {
	case EventAddUser:
		metrics.IncrementCounter("ws_events_total", map[string]string{"type": EventAddUser}, "WebSocket events received")
		h.handleAddUser(ctx, client, env.Data)
	case EventSendMessage:
		metrics.IncrementCounter("ws_events_total", map[string]string{"type": EventSendMessage}, "WebSocket events received")
		h.handleSendMessage(ctx, client, env.Data)
	default:
		metrics.IncrementCounter("ws_events_total", map[string]string{"type": "unknown"}, "WebSocket events received")
		client.sendError(ctx, "unsupported event type: "+env.Type)
	}
}

func (h *Handler) handleAddUser(ctx context.Context, client *Client, raw json.RawMessage) {
	var userID string
	if err := json.Unmarshal(raw, &userID); err != nil {
		client.sendError(ctx, "addUser expects a user id string")
		return
	}

	if client.Subject() != "" && userID != client.Subject() {
		h.logger.WithFields(logrus.Fields{
			"conn_id": client.ID(),
			"user_id": h.maskID(userID),
		}).Warn("Announce rejected, identity does not match token")
		client.sendError(ctx, "identity does not match token")
		return
	}

	if err := h.relay.IdentityAnnounced(client, userID); err != nil {
		client.sendError(ctx, apperrors.GetUserMessage(err))
	}
}

func (h *Handler) handleSendMessage(ctx context.Context, client *Client, raw json.RawMessage) {
	var event relay.MessageEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		client.sendError(ctx, "malformed sendMessage payload")
		return
	}

	if client.Subject() != "" && event.SenderID != client.Subject() {
		client.sendError(ctx, "sender does not match token")
		return
	}

	ctx = tracing.WithRequest(ctx, "")
	if _, err := h.relay.HandleSend(ctx, event); err != nil {
		client.sendError(ctx, apperrors.GetUserMessage(err))
	}
}

func (h *Handler) logReadEnd(client *Client, err error) {
	entry := h.logger.WithField("conn_id", client.ID())

	status := websocket.CloseStatus(err)
	switch {
	case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
		entry.Debug("Client closed connection")
	case errors.Is(err, context.Canceled) || client.isClosed():
		entry.Debug("Connection closed by server")
	case status == websocket.StatusMessageTooBig:
		entry.Warn("Client exceeded read limit")
	default:
		entry.WithError(err).Debug("Connection read ended")
	}
}

// Shutdown closes every open socket, including ones that never announced an
// identity.
func (h *Handler) Shutdown() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		_ = c.Close(relay.ReasonShutdown)
	}
	h.logger.WithField("count", len(clients)).Info("WebSocket handler closed open connections")
}

// Connections reports how many sockets are open.
func (h *Handler) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Handler) track(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.SetGauge("ws_open_connections", float64(n), nil, "Open WebSocket connections")
}

func (h *Handler) untrack(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	metrics.SetGauge("ws_open_connections", float64(n), nil, "Open WebSocket connections")
}

func (h *Handler) maskID(id string) string {
	if h.opts.Verbose {
		return id
	}
	return privacy.MaskID(id)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperrors.HTTPStatusCode(err))
	_ = json.NewEncoder(w).Encode(apperrors.ToHTTPResponse(err, tracing.GetRequestID(r.Context())))
}
