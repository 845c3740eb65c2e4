package correlation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Header names used to carry correlation identifiers over HTTP
const (
	HeaderCorrelationID = "X-Correlation-ID"
	HeaderRequestID     = "X-Request-ID"
	HeaderTraceID       = "X-Trace-ID"
)

// Context is an immutable-on-capture snapshot of the identifiers tied to one
// logical request. It is carried on context.Context and must never be mutated
// after capture; derive a child instead.
type Context struct {
	CorrelationID string
	RequestID     string
	TraceID       string
	SpanID        string
	ParentID      string
	UserID        string
	TenantID      string
	SessionID     string
	Timestamp     time.Time
	Properties    map[string]string
}

type ctxKey struct{}

// New creates a fresh context with generated correlation and request IDs
func New() *Context {
	return &Context{
		CorrelationID: uuid.New().String(),
		RequestID:     uuid.New().String(),
		TraceID:       uuid.New().String(),
		SpanID:        uuid.New().String()[:8],
		Timestamp:     time.Now().UTC(),
		Properties:    make(map[string]string),
	}
}

// Child derives a new context for a nested unit of work. The child inherits
// the request, user, tenant and session identifiers, gets a fresh
// correlationId, and records the parent's correlationId as ParentID.
func (c *Context) Child() *Context {
	props := make(map[string]string, len(c.Properties))
	for k, v := range c.Properties {
		props[k] = v
	}
	return &Context{
		CorrelationID: uuid.New().String(),
		RequestID:     c.RequestID,
		TraceID:       c.TraceID,
		SpanID:        uuid.New().String()[:8],
		ParentID:      c.CorrelationID,
		UserID:        c.UserID,
		TenantID:      c.TenantID,
		SessionID:     c.SessionID,
		Timestamp:     time.Now().UTC(),
		Properties:    props,
	}
}

// WithTenant returns a copy of c with the tenant fixed. Used by the resolver
// once the tenant is authoritative for the rest of the request.
func (c *Context) WithTenant(tenantID string) *Context {
	cp := *c
	cp.TenantID = tenantID
	return &cp
}

// WithUser returns a copy of c carrying the authenticated principal's identifiers
func (c *Context) WithUser(userID, sessionID string) *Context {
	cp := *c
	cp.UserID = userID
	cp.SessionID = sessionID
	return &cp
}

// Install attaches c to ctx. All operations spawned from the returned
// context observe c via FromContext.
func Install(ctx context.Context, c *Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// FromContext returns the correlation context attached to ctx. It never
// returns nil: an uninitialized context yields a fresh snapshot.
func FromContext(ctx context.Context) *Context {
	if c, ok := ctx.Value(ctxKey{}).(*Context); ok {
		return c
	}
	return New()
}

// BeginScope installs child on ctx and returns the derived context together
// with the scope's correlation snapshot. The parent ctx is untouched, so the
// previous context is restored simply by using ctx again after the scope.
func BeginScope(ctx context.Context, child *Context) (context.Context, *Context) {
	return Install(ctx, child), child
}
