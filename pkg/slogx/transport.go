package slogx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/beezwax/fmrest-go/pkg/idx"
)

// RequestIDHeader carries the request id to the server.
const RequestIDHeader = "X-Request-ID"

// Transport logs outbound requests and attaches a contextual logger to the
// request context. The Authorization header is never logged.
type Transport struct {
	Next http.RoundTripper

	// Logger defaults to the logger found in the request context.
	Logger *slog.Logger

	// Level for successful requests. Failures are always logged at warn.
	Level slog.Level
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	ctx := req.Context()

	base := t.Logger
	if base == nil {
		base = FromContext(ctx)
	}

	// Generate a request ID if not provided via X-Request-ID header
	reqID := req.Header.Get(RequestIDHeader)
	if reqID == "" {
		reqID = idx.New().String()
	}

	reqCtx := WithRequestID(WithContext(ctx, base), reqID)
	logger := FromContext(reqCtx).With(
		"method", req.Method,
		"path", req.URL.Path,
	)
	if scope := ScopeFrom(ctx); scope != "" {
		logger = logger.With("scope", scope)
	}

	r := req.Clone(WithContext(reqCtx, logger))
	r.Header.Set(RequestIDHeader, reqID)

	next := t.Next
	if next == nil {
		next = http.DefaultTransport
	}

	resp, err := next.RoundTrip(r)
	duration := time.Since(start).Milliseconds()
	if err != nil {
		logger.Warn("http_request_failed", "duration_ms", duration, "err", err)
		return nil, err
	}

	logger.Log(ctx, t.Level, "http_request",
		"status", resp.StatusCode,
		"duration_ms", duration,
	)
	return resp, nil
}
