package logging

import (
	"net/http"
	"time"
)

// DebugTransport logs method, URL, status and latency of each request.
// Header values are never logged.
type DebugTransport struct {
	Base   http.RoundTripper
	Logger Logger
}

// NewDebugTransport wraps base, falling back to http.DefaultTransport.
func NewDebugTransport(base http.RoundTripper, logger Logger) *DebugTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &DebugTransport{Base: base, Logger: logger}
}

// Wrap returns a copy of t that delegates to base.
func (t *DebugTransport) Wrap(base http.RoundTripper) *DebugTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &DebugTransport{Base: base, Logger: t.Logger}
}

func (t *DebugTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	logger := t.Logger.WithContext(req.Context())
	start := time.Now()

	logger.Debug("http request",
		F("method", req.Method),
		F("url", req.URL.Redacted()),
		F("contentLength", req.ContentLength),
	)

	resp, err := t.Base.RoundTrip(req)
	elapsed := time.Since(start)
	if err != nil {
		logger.Debug("http request failed",
			F("method", req.Method),
			F("url", req.URL.Redacted()),
			F("duration", elapsed.String()),
			F("error", err),
		)
		return nil, err
	}

	logger.Debug("http response",
		F("method", req.Method),
		F("url", req.URL.Redacted()),
		F("status", resp.StatusCode),
		F("duration", elapsed.String()),
	)
	return resp, nil
}
