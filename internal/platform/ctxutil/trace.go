package ctxutil

import "context"

// TraceData correlates a request with the jobs and outbound calls it causes.
type TraceData struct {
	TraceID   string
	RequestID string
}

type traceKey struct{}

// Default turns a nil context into context.Background().
func Default(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(Default(ctx), traceKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	if ctx == nil {
		return nil
	}
	td, _ := ctx.Value(traceKey{}).(*TraceData)
	return td
}

// LogFields returns the non-empty trace ids as logger key/value pairs.
func LogFields(ctx context.Context) []interface{} {
	td := GetTraceData(ctx)
	if td == nil {
		return nil
	}
	var kv []interface{}
	if td.TraceID != "" {
		kv = append(kv, "trace_id", td.TraceID)
	}
	if td.RequestID != "" {
		kv = append(kv, "request_id", td.RequestID)
	}
	return kv
}
