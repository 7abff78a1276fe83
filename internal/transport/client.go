package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"chatrelay/internal/relay"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrClientClosed is returned by Forward once the client has been closed.
var ErrClientClosed = errors.New("client connection closed")

// Client is one accepted WebSocket. It implements relay.Conn.
type Client struct {
	id           string
	ws           *websocket.Conn
	subject      string
	writeTimeout time.Duration
	logger       *logrus.Logger

	// onClose runs once, before done is closed, whichever side ends the
	// connection. It must be set before the client is shared.
	onClose   func()
	closeOnce sync.Once
	done      chan struct{}
}

var _ relay.Conn = (*Client)(nil)

func newClient(ws *websocket.Conn, subject string, writeTimeout time.Duration, logger *logrus.Logger) *Client {
	return &Client{
		id:           uuid.NewString(),
		ws:           ws,
		subject:      subject,
		writeTimeout: writeTimeout,
		logger:       logger,
		done:         make(chan struct{}),
	}
}

func (c *Client) ID() string { return c.id }

// Subject is the user the connection's token was issued to, empty when the
// socket is unauthenticated.
func (c *Client) Subject() string { return c.subject }

// Forward writes a getMessage event to the socket.
func (c *Client) Forward(ctx context.Context, payload relay.Payload) error {
	return c.send(ctx, Envelope{Type: EventGetMessage, Data: payload})
}

// Close runs the close hook, then starts the closing handshake in the
// background and returns. Later calls are no-ops.
func (c *Client) Close(reason string) error {
	c.closeOnce.Do(func() {
		c.markClosed()
		go func() {
			if err := c.ws.Close(closeStatus(reason), reason); err != nil {
				c.logger.WithError(err).WithField("conn_id", c.id).Debug("Close handshake did not complete")
			}
		}()
	})
	return nil
}

// abort drops the connection without a handshake, for peers that have
// stopped responding. The pending read fails at once.
func (c *Client) abort() {
	c.closeOnce.Do(func() {
		c.markClosed()
		_ = c.ws.CloseNow()
	})
}

func (c *Client) markClosed() {
	if c.onClose != nil {
		c.onClose()
	}
	close(c.done)
}

// Done is closed once Close has been called.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Client) send(ctx context.Context, env Envelope) error {
	if c.isClosed() {
		return ErrClientClosed
	}

	ctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, c.ws, env)
}

func (c *Client) sendError(ctx context.Context, message string) {
	if err := c.send(ctx, Envelope{Type: EventError, Data: ErrorData{Message: message}}); err != nil {
		c.logger.WithError(err).WithField("conn_id", c.id).Debug("Failed to send error event")
	}
}

// pingLoop keeps idle connections alive and closes the client when the peer
// stops answering.
func (c *Client) pingLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, c.writeTimeout)
			err := c.ws.Ping(pingCtx)
			cancel()
			if err != nil {
				c.logger.WithError(err).WithField("conn_id", c.id).Debug("Ping failed, dropping connection")
				c.abort()
				return
			}
		}
	}
}

func closeStatus(reason string) websocket.StatusCode {
	if reason == relay.ReasonShutdown {
		return websocket.StatusGoingAway
	}
	return websocket.StatusNormalClosure
}
