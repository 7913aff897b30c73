package api

import (
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/jmcleod/oaclient/internal/uuid"
)

// RequestIDHeader carries a per-request correlation ID.
const RequestIDHeader = "X-Request-ID"

// authTransport is the pre-request hook: it attaches the bearer token when
// the client's token source has one, stamps a request ID and traces the
// exchange.
type authTransport struct {
	next   http.RoundTripper
	client *Client
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not modify the caller's request.
	req = req.Clone(req.Context())

	if tok, ok := t.client.token(); ok {
		(&oauth2.Token{AccessToken: tok, TokenType: "Bearer"}).SetAuthHeader(req)
	} else {
		req.Header.Del("Authorization")
	}

	requestID := req.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.New()
		req.Header.Set(RequestIDHeader, requestID)
	}

	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	attrs := []any{
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
		slog.String("request_id", requestID),
		slog.Duration("duration", time.Since(start)),
	}
	if err != nil {
		t.client.logger.Debug("api request failed", append(attrs, slog.Any("error", err))...)
		return nil, err
	}
	t.client.logger.Debug("api request", append(attrs, slog.Int("status", resp.StatusCode))...)
	return resp, nil
}
