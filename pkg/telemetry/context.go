package telemetry

import "context"

// Request-scoped identifiers carried on context and folded into every log
// line emitted while serving the request.

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
	ctxKeyClient
	ctxKeyRole
	ctxKeyMethod
	ctxKeyPath
)

// WithRequestID attaches a request identifier to the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

// RequestIDFromContext returns the request identifier, if any.
func RequestIDFromContext(ctx context.Context) string {
	return ctxString(ctx, ctxKeyRequestID)
}

// WithClient attaches the authenticated client name.
func WithClient(ctx context.Context, client string) context.Context {
	return context.WithValue(ctx, ctxKeyClient, client)
}

// ClientFromContext returns the authenticated client name, if any.
func ClientFromContext(ctx context.Context) string {
	return ctxString(ctx, ctxKeyClient)
}

// WithRole attaches the authenticated role.
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, ctxKeyRole, role)
}

// RoleFromContext returns the authenticated role, if any.
func RoleFromContext(ctx context.Context) string {
	return ctxString(ctx, ctxKeyRole)
}

// WithRequest attaches the HTTP method and path.
func WithRequest(ctx context.Context, method, path string) context.Context {
	ctx = context.WithValue(ctx, ctxKeyMethod, method)
	return context.WithValue(ctx, ctxKeyPath, path)
}

func ctxString(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(key).(string)
	return s
}

// requestFields collects the non-empty request-scoped values for logging.
func requestFields(ctx context.Context) map[string]string {
	if ctx == nil {
		return nil
	}
	out := make(map[string]string, 5)
	if v := ctxString(ctx, ctxKeyRequestID); v != "" {
		out["request_id"] = v
	}
	if v := ctxString(ctx, ctxKeyClient); v != "" {
		out["client"] = v
	}
	if v := ctxString(ctx, ctxKeyRole); v != "" {
		out["role"] = v
	}
	if v := ctxString(ctx, ctxKeyMethod); v != "" {
		out["method"] = v
	}
	if v := ctxString(ctx, ctxKeyPath); v != "" {
		out["path"] = v
	}
	return out
}
