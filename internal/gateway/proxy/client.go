// Package proxy implements the gateway's HTTP client for the inference
// service. A single shared client with a deep idle connection pool keeps
// per-request TCP setup off the hot path, and a circuit breaker sheds load
// fast when the upstream is down.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/hemmokarja/High-Performance-ML-API/internal/correlation"
	"github.com/hemmokarja/High-Performance-ML-API/internal/observability/tracing"
	"github.com/hemmokarja/High-Performance-ML-API/internal/resilience/circuitbreaker"

	"github.com/sony/gobreaker"
)

// Timeouts for calls to the inference service. The embed timeout covers the
// whole upstream exchange including queueing and batching; there are no
// retries, a request either completes or fails once.
const (
	EmbedTimeout  = 30 * time.Second
	HealthTimeout = 2 * time.Second
)

// Classified upstream failures. Handlers map ErrUpstream to 502 and
// ErrUpstreamTimeout to 504.
var (
	ErrUpstream        = errors.New("inference service error")
	ErrUpstreamTimeout = errors.New("inference request timed out")
)

// EmbedResult is the decoded upstream embedding response.
type EmbedResult struct {
	Embedding []float32 `json:"embedding"`
	Model     string    `json:"model"`
}

type embedRequest struct {
	InputText string `json:"input_text"`
}

// Client is a persistent HTTP client for the inference service.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *circuitbreaker.CircuitBreaker
}

// New creates a proxy client for the inference service at baseURL.
//
// The connection pool is sized for sustained concurrency well above typical
// load so that bursts never pay connection setup latency.
func New(baseURL string) *Client {
	transport := &http.Transport{
		MaxIdleConns:        200,
		MaxIdleConnsPerHost: 200,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Transport: transport,
			Timeout:   EmbedTimeout,
		},
		breaker: circuitbreaker.New(circuitbreaker.InferenceConfig()),
	}
}

// Embed sends one text to the inference service and decodes the embedding.
//
// Failures are classified for the handler's status mapping: deadline expiry
// becomes ErrUpstreamTimeout; connection errors, non-2xx upstream statuses,
// malformed success bodies and an open circuit all become ErrUpstream.
func (c *Client) Embed(ctx context.Context, text string) (*EmbedResult, error) {
	ctx, cancel := context.WithTimeout(ctx, EmbedTimeout)
	defer cancel()

	body, err := json.Marshal(embedRequest{InputText: text})
	if err != nil {
		return nil, fmt.Errorf("encode embed request: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.embed(ctx, body)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: circuit open", ErrUpstream)
		}
		return nil, err
	}
	return result.(*EmbedResult), nil
}

func (c *Client) embed(ctx context.Context, body []byte) (*EmbedResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.propagate(ctx, req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classify(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUpstream, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: upstream returned %d: %s",
			ErrUpstream, resp.StatusCode, truncate(respBody, 200))
	}

	var result EmbedResult
	if err := json.Unmarshal(respBody, &result); err != nil || len(result.Embedding) == 0 {
		return nil, fmt.Errorf("%w: malformed upstream response", ErrUpstream)
	}
	return &result, nil
}

// Health fetches the inference service's health document with a short
// deadline so gateway health checks stay fast even when the upstream hangs.
// On any failure it returns a synthetic unhealthy document instead of an
// error, so the gateway health endpoint always renders.
func (c *Client) Health(ctx context.Context) map[string]any {
	ctx, cancel := context.WithTimeout(ctx, HealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return unhealthy(err)
	}
	c.propagate(ctx, req)

	resp, err := c.http.Do(req)
	if err != nil {
		return unhealthy(err)
	}
	defer resp.Body.Close()

	var doc map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return unhealthy(err)
	}
	if doc == nil {
		// A body of JSON null decodes without error into a nil map.
		doc = map[string]any{}
	}
	if resp.StatusCode != http.StatusOK {
		doc["status"] = "unhealthy"
	}
	return doc
}

func unhealthy(err error) map[string]any {
	return map[string]any{
		"status": "unhealthy",
		"error":  err.Error(),
	}
}

// propagate copies the correlation ID and trace context onto the outbound
// request so inference logs and spans join the gateway's.
func (c *Client) propagate(ctx context.Context, req *http.Request) {
	if id := correlation.FromContext(ctx); id != "" {
		req.Header.Set(correlation.HeaderCorrelationID, id)
	}
	tracing.Inject(ctx, req.Header)
}

// classify sorts transport errors into the timeout and generic upstream
// buckets.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUpstream, err)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
