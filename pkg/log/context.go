package log

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// contextKey is the private key type for storing RequestContext.
type contextKey string

const requestContextKey contextKey = "shiprelay_request_context"

// RequestContext carries request tracing information across functions and
// modules via Context.
type RequestContext struct {
	RequestID string                 // short unique request ID, e.g. mgrn0zfqda
	Operator  string                 // authenticated operator, if any
	StartTime time.Time              // request start time
	Metadata  map[string]interface{} // extension metadata
}

var (
	randSource = rand.NewSource(time.Now().UnixNano())
	randMutex  sync.Mutex
	// base36 character set (lowercase letters + digits)
	base36Chars = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// GenerateRequestID generates a 10-character random request ID in base36,
// e.g. mgrn0zfqda. Cheaper than a UUID for log correlation.
func GenerateRequestID() string {
	randMutex.Lock()
	defer randMutex.Unlock()

	b := make([]byte, 10)
	for i := range b {
		b[i] = base36Chars[randSource.Int63()%36]
	}
	return string(b)
}

// WithRequestContext injects a RequestContext, typically from middleware, so
// the whole request lifecycle shares tracing information.
func WithRequestContext(ctx context.Context, requestID, operator string) context.Context {
	reqCtx := &RequestContext{
		RequestID: requestID,
		Operator:  operator,
		StartTime: time.Now(),
		Metadata:  make(map[string]interface{}),
	}
	return context.WithValue(ctx, requestContextKey, reqCtx)
}

// GetRequestContext extracts the RequestContext, returning an empty default
// when none was injected so callers never need a nil check.
func GetRequestContext(ctx context.Context) *RequestContext {
	if ctx == nil {
		return &RequestContext{
			RequestID: "unknown",
			Metadata:  make(map[string]interface{}),
		}
	}

	if reqCtx, ok := ctx.Value(requestContextKey).(*RequestContext); ok {
		return reqCtx
	}

	return &RequestContext{
		RequestID: "unknown",
		Metadata:  make(map[string]interface{}),
	}
}

// GetRequestID extracts just the request ID.
func GetRequestID(ctx context.Context) string {
	return GetRequestContext(ctx).RequestID
}

// GetOperator extracts the authenticated operator.
func GetOperator(ctx context.Context) string {
	return GetRequestContext(ctx).Operator
}

// SetMetadata attaches extra tracing information mid-request.
func SetMetadata(ctx context.Context, key string, value interface{}) {
	reqCtx := GetRequestContext(ctx)
	if reqCtx.Metadata == nil {
		reqCtx.Metadata = make(map[string]interface{})
	}
	reqCtx.Metadata[key] = value
}

// GetMetadata reads tracing metadata set earlier in the request.
func GetMetadata(ctx context.Context, key string) (interface{}, bool) {
	reqCtx := GetRequestContext(ctx)
	if reqCtx.Metadata == nil {
		return nil, false
	}
	value, ok := reqCtx.Metadata[key]
	return value, ok
}

// GetElapsedTime returns how long the request has been running, in
// milliseconds.
func GetElapsedTime(ctx context.Context) int64 {
	reqCtx := GetRequestContext(ctx)
	if reqCtx.StartTime.IsZero() {
		return 0
	}
	return time.Since(reqCtx.StartTime).Milliseconds()
}
