package relay

import (
	"context"
	"sync/atomic"
	"time"

	apperrors "chatrelay/internal/errors"
	"chatrelay/internal/metrics"
	"chatrelay/internal/privacy"
	"chatrelay/internal/tracing"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// Close reasons sent to clients whose connection the relay ends.
const (
	ReasonReplaced = "replaced by a newer connection"
	ReasonShutdown = "server shutting down"
)

// Engine relays message events between live connections and keeps the
// registry in sync with transport lifecycle events.
type Engine struct {
	registry *Registry
	dedup    *DedupWindow
	logger   *logrus.Logger
	verbose  atomic.Bool
}

// NewEngine wires an engine around its registry and dedup window.
func NewEngine(registry *Registry, dedup *DedupWindow, logger *logrus.Logger) *Engine {
	return &Engine{
		registry: registry,
		dedup:    dedup,
		logger:   logger,
	}
}

// SetVerbose makes the engine log message text and full identities. It may
// be called while the engine is serving.
func (e *Engine) SetVerbose(verbose bool) {
	e.verbose.Store(verbose)
}

// ConnectionOpened records a freshly accepted connection. Nothing is
// registered until the client announces its identity.
func (e *Engine) ConnectionOpened(conn Conn) {
	metrics.IncrementCounter("relay_connections_opened_total", nil, "Accepted relay connections")
	e.logger.WithField("conn_id", conn.ID()).Debug("Connection opened")
}

// IdentityAnnounced binds userID to conn, replacing and closing any other
// connection the user had.
func (e *Engine) IdentityAnnounced(conn Conn, userID string) error {
	if userID == "" {
		return apperrors.NewValidationError("userId", userID, "user identity is required")
	}

	previous, hadIdentity := e.registry.UserOf(conn)
	superseded := e.registry.Announce(conn, userID, ReasonReplaced)

	fields := logrus.Fields{
		"conn_id": conn.ID(),
		"user_id": e.maskID(userID),
	}
	if hadIdentity && previous != userID {
		metrics.IncrementCounter("relay_identity_switches_total", nil, "Connections that announced a different identity")
		e.logger.WithFields(fields).WithField("previous_user_id", e.maskID(previous)).Info("Connection switched identity")
	}
	if superseded != nil {
		fields["superseded_conn_id"] = superseded.ID()
		metrics.IncrementCounter("relay_connections_replaced_total", nil, "Connections closed because the user reconnected")
		e.logger.WithFields(fields).Info("User reconnected, previous connection closed")
	} else {
		e.logger.WithFields(fields).Debug("User announced")
	}

	metrics.SetGauge("relay_online_users", float64(e.registry.Len()), nil, "Users with a live connection")
	return nil
}

// ConnectionClosed forgets conn if it is still the active one for its user.
func (e *Engine) ConnectionClosed(conn Conn) {
	userID, released := e.registry.Remove(conn)

	entry := e.logger.WithField("conn_id", conn.ID())
	if released {
		entry = entry.WithField("user_id", e.maskID(userID))
	}
	entry.Debug("Connection closed")

	metrics.IncrementCounter("relay_connections_closed_total", nil, "Closed relay connections")
	metrics.SetGauge("relay_online_users", float64(e.registry.Len()), nil, "Users with a live connection")
}

// HandleSend relays event to its receiver's live connection. Duplicates of
// an attempt still in flight and messages to offline receivers are dropped.
// The returned error is non-nil only for malformed events.
func (e *Engine) HandleSend(ctx context.Context, event MessageEvent) (Outcome, error) {
	if event.SenderID == "" {
		return "", apperrors.NewValidationError("senderId", "", "sender identity is required")
	}
	if event.ReceiverID == "" {
		return "", apperrors.NewValidationError("receiverId", "", "receiver identity is required")
	}

	ctx, span := tracing.StartSpan(ctx, "relay.handle_send",
		attribute.String("relay.conversation_id", event.ConversationID),
	)
	defer span.End()

	start := time.Now()
	outcome := e.relay(ctx, event)

	span.SetAttributes(attribute.String("relay.outcome", string(outcome)))
	metrics.IncrementCounter("relay_messages_total", map[string]string{"outcome": string(outcome)}, "Relay attempts by outcome")
	metrics.RecordTimer("relay_handle_duration", time.Since(start), nil, "Time spent relaying one message")

	return outcome, nil
}

func (e *Engine) relay(ctx context.Context, event MessageEvent) Outcome {
	fp := event.Fingerprint()
	release, ok := e.dedup.Begin(fp)
	if !ok {
		e.logger.WithFields(e.eventFields(event)).Debug("Skipping duplicate message")
		return OutcomeDuplicate
	}
	defer release()

	conn, ok := e.registry.Resolve(event.ReceiverID)
	if !ok {
		e.logger.WithFields(e.eventFields(event)).Debug("Receiver offline, message not relayed")
		return OutcomeOffline
	}

	if err := conn.Forward(ctx, PayloadFrom(event)); err != nil {
		tracing.RecordError(ctx, err)
		fields := e.eventFields(event)
		fields["conn_id"] = conn.ID()
		e.logger.WithFields(fields).WithError(err).Warn("Failed to forward message")
		return OutcomeForwardFailed
	}

	return OutcomeDelivered
}

// Sweep evicts expired dedup markers.
func (e *Engine) Sweep() int {
	return e.dedup.Sweep()
}

// Stats reports the size of the registry and of the dedup window.
func (e *Engine) Stats() Stats {
	return Stats{
		Online:   e.registry.Len(),
		InFlight: e.dedup.Len(),
	}
}

// Online lists users with a live connection.
func (e *Engine) Online() []string {
	return e.registry.Online()
}

// Shutdown closes every registered connection.
func (e *Engine) Shutdown() {
	closed := e.registry.CloseAll(ReasonShutdown)
	e.logger.WithField("count", closed).Info("Relay engine stopped, connections closed")
}

func (e *Engine) eventFields(event MessageEvent) logrus.Fields {
	return logrus.Fields{
		"sender_id":       e.maskID(event.SenderID),
		"receiver_id":     e.maskID(event.ReceiverID),
		"conversation_id": event.ConversationID,
		"message":         e.maskText(event.Text),
	}
}

func (e *Engine) maskID(id string) string {
	if e.verbose.Load() {
		return id
	}
	return privacy.MaskID(id)
}

func (e *Engine) maskText(text string) string {
	if e.verbose.Load() {
		return text
	}
	return privacy.MaskText(text)
}
