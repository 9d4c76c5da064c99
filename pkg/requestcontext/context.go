// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values. Middleware sets them; services read them without
// importing net/http.
//
//	requestID := requestcontext.RequestID(ctx)
//	now := requestcontext.Now(ctx)
package requestcontext

import (
	"context"
	"time"
)

type (
	requestIDKey    struct{}
	requestTimeKey  struct{}
	adminSubjectKey struct{}
	clientIPKey     struct{}
	clientAgentKey  struct{}
)

// RequestID returns the correlation ID set by the request ID middleware.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithRequestID injects a correlation ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now returns the request-scoped time, falling back to the wall clock.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime pins the request-scoped time.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}

// AdminSubject returns the subject of a validated admin token, if any.
func AdminSubject(ctx context.Context) string {
	if v, ok := ctx.Value(adminSubjectKey{}).(string); ok {
		return v
	}
	return ""
}

// WithAdminSubject records the admin token subject on the context.
func WithAdminSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, adminSubjectKey{}, subject)
}

// ClientIP returns the caller address recorded by the client metadata
// middleware.
func ClientIP(ctx context.Context) string {
	if v, ok := ctx.Value(clientIPKey{}).(string); ok {
		return v
	}
	return ""
}

// ClientAgent returns the summarized User-Agent, e.g. "Firefox 128.0 (Linux x86_64)".
func ClientAgent(ctx context.Context) string {
	if v, ok := ctx.Value(clientAgentKey{}).(string); ok {
		return v
	}
	return ""
}

// WithClient injects client metadata. Useful for service tests that do not
// run the HTTP middleware chain.
func WithClient(ctx context.Context, ip, agent string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey{}, ip)
	return context.WithValue(ctx, clientAgentKey{}, agent)
}
