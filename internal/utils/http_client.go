package utils

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// LoggingTransport implements http.RoundTripper and logs each outbound call.
// Bodies are not logged: they carry audio payloads and signed URLs.
type LoggingTransport struct {
	Transport http.RoundTripper
	Log       *zap.Logger
}

// RoundTrip executes a single HTTP transaction and logs the result
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	transport := t.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	log := t.Log
	if log == nil {
		log = zap.NewNop()
	}

	start := time.Now()
	resp, err := transport.RoundTrip(req)
	duration := time.Since(start)

	if err != nil {
		log.Warn("http request failed",
			zap.String("method", req.Method),
			zap.String("url", RedactURL(req)),
			zap.Duration("duration", duration),
			zap.Error(err))
		return nil, err
	}

	log.Debug("http request",
		zap.String("method", req.Method),
		zap.String("url", RedactURL(req)),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", duration))
	return resp, nil
}

// RedactURL drops the query string, which holds signatures for presigned URLs.
func RedactURL(req *http.Request) string {
	u := *req.URL
	u.RawQuery = ""
	u.User = nil
	return u.String()
}

// NewHTTPClient returns a new http.Client with logging enabled
func NewHTTPClient(timeout time.Duration, log *zap.Logger) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &LoggingTransport{
			Transport: http.DefaultTransport,
			Log:       log,
		},
	}
}
