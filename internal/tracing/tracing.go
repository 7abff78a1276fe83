package tracing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type requestKey struct{}

// RequestInfo identifies one HTTP request or relayed WebSocket frame in logs.
type RequestInfo struct {
	RequestID string    `json:"request_id"`
	TraceID   string    `json:"trace_id,omitempty"`
	StartTime time.Time `json:"start_time"`
}

func NewRequestID() string {
	return "req_" + uuid.NewString()
}

// WithRequest stamps ctx with a request ID and the current time. A non-empty
// incomingID is kept so a caller's ID survives across hops.
func WithRequest(ctx context.Context, incomingID string) context.Context {
	if incomingID == "" {
		incomingID = NewRequestID()
	}
	return context.WithValue(ctx, requestKey{}, RequestInfo{
		RequestID: incomingID,
		StartTime: time.Now(),
	})
}

// GetRequestInfo returns what WithRequest stored, with the trace ID taken from
// the active span.
func GetRequestInfo(ctx context.Context) RequestInfo {
	info, _ := ctx.Value(requestKey{}).(RequestInfo)
	info.TraceID = OtelTraceID(ctx)
	return info
}

func GetRequestID(ctx context.Context) string {
	info, _ := ctx.Value(requestKey{}).(RequestInfo)
	return info.RequestID
}

// Duration is the time elapsed since WithRequest, or zero for an unstamped ctx.
func Duration(ctx context.Context) time.Duration {
	info, ok := ctx.Value(requestKey{}).(RequestInfo)
	if !ok {
		return 0
	}
	return time.Since(info.StartTime)
}
