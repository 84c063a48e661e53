// Package batcher implements dynamic request batching in front of a
// blocking embedding model.
//
// Requests enter a bounded FIFO queue. Collector workers pull the first
// request, then keep collecting until the batch is full or a deadline
// relative to the first arrival expires, and hand the batch to a single
// executor. Exactly one batch runs in the model at a time; while it runs,
// the other collectors keep forming the next batches. Results fan back out
// to per-request completion slots in input order.
package batcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hemmokarja/High-Performance-ML-API/internal/inference/model"
)

// Predictor is the single-text inference interface served by the HTTP
// handlers. Batcher and NoBatcher both implement it.
type Predictor interface {
	Predict(ctx context.Context, text string) ([]float32, error)
	Start()
	Shutdown(ctx context.Context) error
	QueueSize() int
	InflightBatches() int
}

// Predict failure modes surfaced to the HTTP layer.
var (
	ErrNotStarted   = errors.New("batcher not started")
	ErrShuttingDown = errors.New("batcher shutting down")
	ErrQueueFull    = errors.New("request queue full")
)

// Config controls batch formation.
type Config struct {
	// MaxBatchSize caps how many requests one model call may coalesce.
	MaxBatchSize int
	// BatchTimeout is how long a collector waits after the first request
	// before dispatching a partial batch. Zero dispatches immediately.
	BatchTimeout time.Duration
	// NumWorkers is the number of collector goroutines.
	NumWorkers int
	// QueueCapacity bounds the pending queue; a full queue rejects with
	// ErrQueueFull.
	QueueCapacity int
}

type outcome struct {
	vec []float32
	err error
}

// pending is one queued request. The done channel is buffered so fan-out
// never blocks on a caller that gave up.
type pending struct {
	text       string
	done       chan outcome
	enqueuedAt time.Time
}

type job struct {
	texts []string
	reply chan execResult
}

type execResult struct {
	vectors [][]float32
	err     error
}

// Batcher schedules requests into batches over a Model.
type Batcher struct {
	model model.Model
	cfg   Config

	queue chan *pending
	jobs  chan *job

	started  atomic.Bool
	stopping atomic.Bool
	inflight atomic.Int64

	collectors   sync.WaitGroup
	executorDone chan struct{}
	samplerDone  chan struct{}
	terminated   chan struct{}
	shutdownOnce sync.Once
}

// New creates a Batcher. Call Start before Predict.
func New(m model.Model, cfg Config) *Batcher {
	if cfg.MaxBatchSize < 1 {
		cfg.MaxBatchSize = 1
	}
	if cfg.NumWorkers < 1 {
		cfg.NumWorkers = 1
	}
	if cfg.QueueCapacity < 1 {
		cfg.QueueCapacity = 1
	}
	return &Batcher{
		model:        m,
		cfg:          cfg,
		queue:        make(chan *pending, cfg.QueueCapacity),
		jobs:         make(chan *job),
		executorDone: make(chan struct{}),
		samplerDone:  make(chan struct{}),
		terminated:   make(chan struct{}),
	}
}

// Start launches the collector workers, the executor and the gauge sampler.
func (b *Batcher) Start() {
	if !b.started.CompareAndSwap(false, true) {
		return
	}

	go b.runExecutor()

	b.collectors.Add(b.cfg.NumWorkers)
	for i := 0; i < b.cfg.NumWorkers; i++ {
		go b.runCollector()
	}

	go b.runSampler()
}

// Predict embeds one text through the batching queue. It blocks until the
// request's batch has executed, the context is cancelled, or shutdown fails
// the request.
//
// Cancellation abandons the completion slot only; the batch still executes
// and fan-out completes through the buffered channel.
func (b *Batcher) Predict(ctx context.Context, text string) ([]float32, error) {
	if !b.started.Load() || b.stopping.Load() {
		return nil, ErrNotStarted
	}

	start := time.Now()
	p := &pending{
		text:       text,
		done:       make(chan outcome, 1),
		enqueuedAt: start,
	}

	select {
	case b.queue <- p:
	default:
		requestsTotal.WithLabelValues("error").Inc()
		return nil, ErrQueueFull
	}

	select {
	case out := <-p.done:
		return finish(start, out)
	case <-ctx.Done():
		requestsTotal.WithLabelValues("error").Inc()
		return nil, ctx.Err()
	case <-b.terminated:
		// The request raced shutdown and may have landed in the queue after
		// the final drain. A result that arrived concurrently still wins.
		select {
		case out := <-p.done:
			return finish(start, out)
		default:
		}
		requestsTotal.WithLabelValues("error").Inc()
		return nil, ErrShuttingDown
	}
}

func finish(start time.Time, out outcome) ([]float32, error) {
	requestLatency.Observe(time.Since(start).Seconds())
	if out.err != nil {
		requestsTotal.WithLabelValues("error").Inc()
		return nil, out.err
	}
	requestsTotal.WithLabelValues("success").Inc()
	return out.vec, nil
}

// Shutdown stops the batcher: collectors finish their current batch, the
// executor drains, and any requests still queued behind the sentinels are
// failed with ErrShuttingDown so every completion slot resolves exactly
// once. Idempotent; the context bounds how long to wait for workers.
func (b *Batcher) Shutdown(ctx context.Context) error {
	if !b.started.Load() {
		return nil
	}

	var err error
	b.shutdownOnce.Do(func() {
		b.stopping.Store(true)

		// One sentinel per collector. A full queue delays the send until
		// collectors drain it, which is the desired backpressure.
		for i := 0; i < b.cfg.NumWorkers; i++ {
			select {
			case b.queue <- nil:
			case <-ctx.Done():
				err = fmt.Errorf("shutdown interrupted: %w", ctx.Err())
				return
			}
		}

		collectorsDone := make(chan struct{})
		go func() {
			b.collectors.Wait()
			close(collectorsDone)
		}()

		select {
		case <-collectorsDone:
		case <-ctx.Done():
			err = fmt.Errorf("shutdown interrupted: %w", ctx.Err())
			return
		}

		close(b.jobs)
		<-b.executorDone
		close(b.samplerDone)

		b.drainQueue()
		close(b.terminated)
	})
	return err
}

// QueueSize reports requests currently waiting in the queue.
func (b *Batcher) QueueSize() int {
	return len(b.queue)
}

// InflightBatches reports batches currently executing.
func (b *Batcher) InflightBatches() int {
	return int(b.inflight.Load())
}

// runCollector pulls the first request, forms a batch bounded by size and
// the arrival deadline, and executes it. A sentinel (nil item) finalizes
// the batch in hand before the collector exits.
func (b *Batcher) runCollector() {
	defer b.collectors.Done()

	for {
		first, ok := <-b.queue
		if !ok || first == nil {
			return
		}

		batch := []*pending{first}
		sentinelSeen := false

		// A non-positive window dispatches the first request alone instead
		// of racing an already-fired timer against the queue.
		if b.cfg.BatchTimeout > 0 {
			timer := time.NewTimer(b.cfg.BatchTimeout)
		collect:
			for len(batch) < b.cfg.MaxBatchSize {
				select {
				case p := <-b.queue:
					if p == nil {
						sentinelSeen = true
						break collect
					}
					batch = append(batch, p)
				case <-timer.C:
					break collect
				}
			}
			timer.Stop()
		}

		batchWaitTime.Observe(time.Since(first.enqueuedAt).Seconds())
		batchSize.Observe(float64(len(batch)))

		b.execute(batch)

		if sentinelSeen {
			return
		}
	}
}

// execute hands the batch to the executor, waits for the reply and fans
// results out to each completion slot in input order.
func (b *Batcher) execute(batch []*pending) {
	texts := make([]string, len(batch))
	for i, p := range batch {
		texts[i] = p.text
	}

	j := &job{texts: texts, reply: make(chan execResult, 1)}
	b.jobs <- j
	res := <-j.reply

	if res.err == nil && len(res.vectors) != len(batch) {
		res.err = fmt.Errorf("model returned %d results for %d inputs",
			len(res.vectors), len(batch))
	}

	for i, p := range batch {
		if res.err != nil {
			p.done <- outcome{err: res.err}
			continue
		}
		p.done <- outcome{vec: res.vectors[i]}
	}
}

// runExecutor serializes model calls: exactly one batch is in the model at
// any time, while collectors keep forming the next batches.
func (b *Batcher) runExecutor() {
	defer close(b.executorDone)

	for j := range b.jobs {
		b.inflight.Add(1)

		start := time.Now()
		vectors, err := b.model.Predict(j.texts)
		inferenceTime.Observe(time.Since(start).Seconds())

		b.inflight.Add(-1)
		j.reply <- execResult{vectors: vectors, err: err}
	}
}

// runSampler refreshes the queue and inflight gauges once per second.
func (b *Batcher) runSampler() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			queueSizeGauge.Set(float64(len(b.queue)))
			inflightBatches.Set(float64(b.inflight.Load()))
		case <-b.samplerDone:
			queueSizeGauge.Set(0)
			inflightBatches.Set(0)
			return
		}
	}
}

// drainQueue fails requests that were still queued behind the shutdown
// sentinels.
func (b *Batcher) drainQueue() {
	for {
		select {
		case p := <-b.queue:
			if p != nil {
				p.done <- outcome{err: ErrShuttingDown}
			}
		default:
			return
		}
	}
}
