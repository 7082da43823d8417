// Package audit writes security-relevant events (logins, key lifecycle,
// suspensions) as structured log entries.
package audit

import (
	"context"
	"errors"
	"strings"

	"warden.dev/internal/obs"
	"warden.dev/internal/principal"
)

type ctxKey struct{}

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(ctxKey{}).(string)
	return v
}

// LogEvent writes an audit entry enriched with the request id and the
// acting principal, when the context carries them.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("audit: event name is required")
	}
	logger := obs.Logger()
	ev := logger.Info().Str("type", "audit").Str("event", event)
	if rid := requestIDFromContext(ctx); rid != "" {
		ev = ev.Str("request_id", rid)
	}
	if id, ok := principal.IdentityFromContext(ctx); ok {
		ev = ev.Str("actor_id", id.ID).Str("actor_kind", string(id.Kind))
		if id.TenantID != "" {
			ev = ev.Str("actor_tenant_id", id.TenantID)
		}
	}
	if fields == nil {
		fields = map[string]any{}
	}
	ev.Interface("fields", fields).Send()
	return nil
}
