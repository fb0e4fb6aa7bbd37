package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"stayhub/internal/domain/shared/apperr"
)

// httpClient wraps the JSON request/response plumbing shared by adapters.
type httpClient struct {
	name   string
	client *http.Client
	logger *slog.Logger
}

func newHTTPClient(name string, client *http.Client, logger *slog.Logger) httpClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return httpClient{name: name, client: client, logger: logger.With("gateway", name)}
}

func (h httpClient) failf(format string, args ...any) error {
	return gatewayErr(h.name, format, args...)
}

func gatewayErr(name, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", apperr.ErrGateway, name, fmt.Sprintf(format, args...))
}

// postJSON sends body as JSON and decodes a 2xx response into out.
func (h httpClient) postJSON(ctx context.Context, url string, headers map[string]string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return h.do(req, out)
}

func (h httpClient) do(req *http.Request, out any) error {
	resp, err := h.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			h.logger.Warn("gateway request timed out", "url", req.URL.Path)
			return h.failf("request timed out")
		}
		h.logger.Error("gateway request failed", "url", req.URL.Path, "error", err)
		return h.failf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		h.logger.Error("gateway returned error", "url", req.URL.Path, "status", resp.StatusCode, "body", strings.TrimSpace(string(snippet)))
		return h.failf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		h.logger.Error("gateway decode failed", "url", req.URL.Path, "error", err)
		return h.failf("decode response: %v", err)
	}
	return nil
}

// tokenCache holds an OAuth access token until shortly before it expires.
type tokenCache struct {
	mu      sync.Mutex
	token   string
	expires time.Time
}

func (c *tokenCache) get(ctx context.Context, now time.Time, fetch func(context.Context) (string, time.Duration, error)) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && now.Before(c.expires.Add(-10*time.Second)) {
		return c.token, nil
	}
	token, ttl, err := fetch(ctx)
	if err != nil {
		return "", err
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	c.token = token
	c.expires = now.Add(ttl)
	return token, nil
}
