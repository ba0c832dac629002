package daemon

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/ipc-subnet/subnet-agent/internal/metrics"
)

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

type methodLabelKey struct{}

// withMethodLabel records the JSON-RPC method name in ctx so the outer
// InstrumentHandler can label metrics by it; the request's single POST
// endpoint carries no path to label by, unlike the teacher's REST routes.
// InstrumentHandler puts a label slot into the request context, and
// withMethodLabel fills that slot so the outer handler sees the name.
func withMethodLabel(ctx context.Context, method string) context.Context {
	if slot, ok := ctx.Value(methodLabelKey{}).(*string); ok {
		*slot = method
		return ctx
	}
	return context.WithValue(ctx, methodLabelKey{}, &method)
}

func requestMethod(ctx context.Context) string {
	if m, ok := ctx.Value(methodLabelKey{}).(*string); ok && *m != "" {
		return *m
	}
	return "unknown"
}

// InstrumentHandler wraps an HTTP handler with Prometheus metrics, labeled
// by the JSON-RPC method recorded into the request context rather than by
// URL path, since every request hits the same endpoint. If m is nil the
// handler is returned unchanged, the same nil-safe convention the teacher
// uses throughout pkg/p2pnet.
func InstrumentHandler(next http.Handler, m *metrics.Metrics) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		r = r.WithContext(context.WithValue(r.Context(), methodLabelKey{}, new(string)))

		next.ServeHTTP(rec, r)

		duration := time.Since(start).Seconds()
		method := requestMethod(r.Context())
		status := strconv.Itoa(rec.status)

		m.DaemonRequestsTotal.WithLabelValues(method, status).Inc()
		m.DaemonRequestDurationSeconds.WithLabelValues(method, status).Observe(duration)
	})
}
