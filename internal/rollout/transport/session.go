// Package transport provides the resolve-retry, TLS-pinned HTTP session the
// orchestrator issues its control, deployment, and feedback requests
// through. A Session wraps a single *http.Client configured for one host;
// callers stream each response body to a per-request handler instead of
// buffering it in the transport layer.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/edgefleet/rollout-agent/pkg/log"
)

const (
	resolveAttempts = 10
	resolveDelay    = time.Millisecond

	// defaultRequestTimeout applies when TLSConfig.Timeout is left zero.
	defaultRequestTimeout = 300 * time.Second

	// chunkSize bounds how much of the response body is read before the
	// handler is invoked with a non-final slice.
	chunkSize = 4096
)

// Kind tags a request with what it fetches. It is recorded only in the
// transport's own failure log; ChunkHandler does not receive it.
type Kind int

const (
	KindControl Kind = iota
	KindDeployment
	KindArtifact
	KindFeedback
)

// ErrResolveFailed is returned when the host could not be resolved within
// the retry budget.
var ErrResolveFailed = errors.New("transport: host resolution failed")

// ChunkHandler receives body slices as they arrive. final is set on the
// last invocation for a request (which may carry a zero-length slice).
// contentLength is the response's advertised Content-Length (-1 if the
// server didn't send one), constant across every call for a given
// request. A non-nil return aborts the request with that error.
type ChunkHandler func(chunk []byte, final bool, contentLength int64) error

// TLSConfig describes the CA-pinning and SNI settings for a TLS session,
// plus the per-request timeout every Session built from it uses. Enabled
// is false for plain HTTP sessions. A zero Timeout falls back to
// defaultRequestTimeout.
type TLSConfig struct {
	Enabled    bool
	ServerName string
	CACert     []byte
	Timeout    time.Duration
}

// Session is a resolve-retried, optionally TLS-pinned connection to a
// single rollout server, reused across a probe cycle's sub-requests.
type Session struct {
	client  *http.Client
	baseURL string
}

// Open resolves host and builds a Session targeting it. Resolution is
// retried up to resolveAttempts times with a resolveDelay pause between
// attempts before failing with ErrResolveFailed.
func Open(ctx context.Context, host string, port int, tlsCfg TLSConfig) (*Session, error) {
	if err := resolveWithRetry(ctx, host); err != nil {
		return nil, err
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
	}

	scheme := "http"
	if tlsCfg.Enabled {
		scheme = "https"
		pool := x509.NewCertPool()
		if len(tlsCfg.CACert) > 0 {
			if !pool.AppendCertsFromPEM(tlsCfg.CACert) {
				return nil, fmt.Errorf("transport: failed to parse pinned CA certificate")
			}
		}
		transport.TLSClientConfig = &tls.Config{
			RootCAs:    pool,
			ServerName: tlsCfg.ServerName,
			MinVersion: tls.VersionTLS12,
		}
	}

	timeout := tlsCfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	return &Session{
		client:  &http.Client{Transport: transport, Timeout: timeout},
		baseURL: fmt.Sprintf("%s://%s:%d", scheme, host, port),
	}, nil
}

// resolveWithRetry mirrors the original firmware client's bounded DNS
// resolution loop: a handful of quick retries before surfacing a
// networking error, rather than hanging on a flaky resolver.
func resolveWithRetry(ctx context.Context, host string) error {
	var lastErr error
	for attempt := 0; attempt < resolveAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(resolveDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return fmt.Errorf("%w: %s: %v", ErrResolveFailed, host, lastErr)
}

// Request issues a single HTTP request against the session's host and
// streams the response body to handler in chunkSize slices, calling it a
// final time with final=true once the body is exhausted. The request kind
// is passed neither to the server nor to handler; it appears only in the
// log line written when the request fails.
func (s *Session) Request(ctx context.Context, method, path string, headers map[string]string, body []byte, kind Kind, handler ChunkHandler) error {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("transport: build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		log.Warn("transport request failed", "method", method, "path", path, "kind", int(kind), "error", err)
		return fmt.Errorf("transport: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("transport: %s %s: unexpected status %s", method, path, resp.Status)
	}

	buf := make([]byte, chunkSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if handleErr := handler(buf[:n], false, resp.ContentLength); handleErr != nil {
				return handleErr
			}
		}
		if readErr == io.EOF {
			return handler(nil, true, resp.ContentLength)
		}
		if readErr != nil {
			return fmt.Errorf("transport: %s %s: read body: %w", method, path, readErr)
		}
	}
}

// Close releases the session's idle connections. Sessions are cycle-scoped
// and never reused across probe runs.
func (s *Session) Close() {
	if transport, ok := s.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
