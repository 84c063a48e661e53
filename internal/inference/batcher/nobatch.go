package batcher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hemmokarja/High-Performance-ML-API/internal/inference/model"
)

// NoBatcher serves each request as a singleton batch through a single
// execution slot. It exists for benchmarking batching against the naive
// approach and for degenerate low-load deployments; the HTTP layer is
// identical either way.
type NoBatcher struct {
	model model.Model

	mu       sync.Mutex
	started  atomic.Bool
	stopping atomic.Bool
	inflight atomic.Int64
}

// NewNoBatcher creates a pass-through predictor over the model.
func NewNoBatcher(m model.Model) *NoBatcher {
	return &NoBatcher{model: m}
}

// Start implements Predictor.
func (n *NoBatcher) Start() {
	n.started.Store(true)
}

// Predict implements Predictor. Calls are serialized so the model sees the
// same one-batch-at-a-time discipline as under the Batcher.
func (n *NoBatcher) Predict(ctx context.Context, text string) ([]float32, error) {
	if !n.started.Load() || n.stopping.Load() {
		return nil, ErrNotStarted
	}
	if err := ctx.Err(); err != nil {
		requestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	start := time.Now()

	n.mu.Lock()
	n.inflight.Store(1)
	batchSize.Observe(1)

	inferStart := time.Now()
	vectors, err := n.model.Predict([]string{text})
	inferenceTime.Observe(time.Since(inferStart).Seconds())

	n.inflight.Store(0)
	n.mu.Unlock()

	requestLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		requestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if len(vectors) != 1 {
		requestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("model returned %d results for 1 input", len(vectors))
	}
	requestsTotal.WithLabelValues("success").Inc()
	return vectors[0], nil
}

// Shutdown implements Predictor.
func (n *NoBatcher) Shutdown(ctx context.Context) error {
	n.stopping.Store(true)
	return nil
}

// QueueSize implements Predictor. There is no queue.
func (n *NoBatcher) QueueSize() int { return 0 }

// InflightBatches implements Predictor.
func (n *NoBatcher) InflightBatches() int { return int(n.inflight.Load()) }
