package batcher

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingModel embeds each text as its index-tagged vector and records
// every batch it sees.
type recordingModel struct {
	mu      sync.Mutex
	batches [][]string
	delay   time.Duration
	err     error
	// block, when set, holds Predict until released.
	block chan struct{}
}

func (m *recordingModel) Predict(texts []string) ([][]float32, error) {
	if m.block != nil {
		<-m.block
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	m.mu.Lock()
	m.batches = append(m.batches, append([]string(nil), texts...))
	m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = encode(text)
	}
	return out, nil
}

func (m *recordingModel) Name() string   { return "recording" }
func (m *recordingModel) Device() string { return "test" }
func (m *recordingModel) Dim() int       { return 1 }

func (m *recordingModel) batchSizes() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	sizes := make([]int, len(m.batches))
	for i, b := range m.batches {
		sizes[i] = len(b)
	}
	return sizes
}

// encode maps "text-N" to the vector [N].
func encode(text string) []float32 {
	n, _ := strconv.Atoi(strings.TrimPrefix(text, "text-"))
	return []float32{float32(n)}
}

func startBatcher(t *testing.T, m *recordingModel, cfg Config) *Batcher {
	t.Helper()
	b := New(m, cfg)
	b.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = b.Shutdown(ctx)
	})
	return b
}

func TestPredict_BeforeStart(t *testing.T) {
	b := New(&recordingModel{}, Config{MaxBatchSize: 4, NumWorkers: 1, QueueCapacity: 8})

	_, err := b.Predict(context.Background(), "text-1")
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestPredict_SingleRequest(t *testing.T) {
	m := &recordingModel{}
	b := startBatcher(t, m, Config{
		MaxBatchSize: 4, BatchTimeout: 5 * time.Millisecond,
		NumWorkers: 1, QueueCapacity: 8,
	})

	vec, err := b.Predict(context.Background(), "text-7")
	require.NoError(t, err)
	assert.Equal(t, []float32{7}, vec)
}

func TestPredict_CoalescesFullBatch(t *testing.T) {
	// Hold the model so all 8 requests pile up, then release: the collector
	// must coalesce them into a single batch of 8.
	m := &recordingModel{block: make(chan struct{})}
	b := startBatcher(t, m, Config{
		MaxBatchSize: 8, BatchTimeout: 20 * time.Millisecond,
		NumWorkers: 1, QueueCapacity: 64,
	})

	// Prime the executor with a throwaway request and wait past the batch
	// window, so the model is busy and the collector is parked waiting on
	// the executor when the real requests arrive.
	go func() { _, _ = b.Predict(context.Background(), "text-0") }()
	time.Sleep(40 * time.Millisecond)

	var wg sync.WaitGroup
	results := make([][]float32, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			vec, err := b.Predict(context.Background(), fmt.Sprintf("text-%d", i+1))
			require.NoError(t, err)
			results[i] = vec
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(m.block)
	wg.Wait()

	// Every caller got its own vector back, regardless of batch position.
	for i, vec := range results {
		assert.Equal(t, []float32{float32(i + 1)}, vec)
	}

	sizes := m.batchSizes()
	require.Len(t, sizes, 2)
	assert.Equal(t, 1, sizes[0])
	assert.Equal(t, 8, sizes[1])
}

func TestPredict_PartialBatchOnTimeout(t *testing.T) {
	m := &recordingModel{block: make(chan struct{})}
	b := startBatcher(t, m, Config{
		MaxBatchSize: 32, BatchTimeout: 20 * time.Millisecond,
		NumWorkers: 1, QueueCapacity: 64,
	})

	go func() { _, _ = b.Predict(context.Background(), "text-0") }()
	time.Sleep(40 * time.Millisecond)

	var wg sync.WaitGroup
	for i := 1; i <= 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := b.Predict(context.Background(), fmt.Sprintf("text-%d", i))
			require.NoError(t, err)
		}(i)
	}
	time.Sleep(15 * time.Millisecond)
	close(m.block)
	wg.Wait()

	sizes := m.batchSizes()
	require.Len(t, sizes, 2)
	// Only 3 requests arrived within the window: a partial batch dispatches
	// at the deadline instead of waiting for 32.
	assert.Equal(t, 3, sizes[1])
}

func TestPredict_ModelErrorFailsWholeBatch(t *testing.T) {
	boom := errors.New("forward pass failed")
	m := &recordingModel{err: boom, block: make(chan struct{})}
	b := startBatcher(t, m, Config{
		MaxBatchSize: 8, BatchTimeout: 20 * time.Millisecond,
		NumWorkers: 1, QueueCapacity: 64,
	})

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = b.Predict(context.Background(), fmt.Sprintf("text-%d", i))
		}(i)
	}
	time.Sleep(10 * time.Millisecond)
	close(m.block)
	wg.Wait()

	for _, err := range errs {
		assert.ErrorIs(t, err, boom)
	}
}

func TestPredict_QueueFull(t *testing.T) {
	m := &recordingModel{block: make(chan struct{})}
	defer close(m.block)
	b := startBatcher(t, m, Config{
		MaxBatchSize: 1, BatchTimeout: 0,
		NumWorkers: 1, QueueCapacity: 1,
	})

	// First request occupies the collector/model; the queue then fills.
	go func() { _, _ = b.Predict(context.Background(), "text-0") }()
	time.Sleep(10 * time.Millisecond)

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func(i int) {
			_, err := b.Predict(context.Background(), fmt.Sprintf("text-%d", i))
			done <- err
		}(i)
	}
	time.Sleep(10 * time.Millisecond)

	var full int
	for i := 0; i < 8; i++ {
		select {
		case err := <-done:
			if errors.Is(err, ErrQueueFull) {
				full++
			}
		default:
		}
	}
	assert.GreaterOrEqual(t, full, 1, "saturated queue must reject with ErrQueueFull")
}

func TestPredict_ContextCancellationAbandonsSlot(t *testing.T) {
	m := &recordingModel{block: make(chan struct{})}
	b := startBatcher(t, m, Config{
		MaxBatchSize: 2, BatchTimeout: 5 * time.Millisecond,
		NumWorkers: 1, QueueCapacity: 8,
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := b.Predict(ctx, "text-1")
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	err := <-errCh
	assert.ErrorIs(t, err, context.Canceled)

	// The batch still executes; fan-out into the abandoned buffered slot
	// must not wedge the collector.
	close(m.block)
	vec, err := func() ([]float32, error) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return b.Predict(ctx, "text-2")
	}()
	require.NoError(t, err)
	assert.Equal(t, []float32{2}, vec)
}

func TestShutdown_Idempotent(t *testing.T) {
	b := New(&recordingModel{}, Config{MaxBatchSize: 4, NumWorkers: 2, QueueCapacity: 8})
	b.Start()

	ctx := context.Background()
	require.NoError(t, b.Shutdown(ctx))
	require.NoError(t, b.Shutdown(ctx))
}

func TestShutdown_RejectsNewRequests(t *testing.T) {
	b := New(&recordingModel{}, Config{MaxBatchSize: 4, NumWorkers: 2, QueueCapacity: 8})
	b.Start()
	require.NoError(t, b.Shutdown(context.Background()))

	_, err := b.Predict(context.Background(), "text-1")
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestShutdown_CompletesInflightWork(t *testing.T) {
	m := &recordingModel{delay: 20 * time.Millisecond}
	b := New(m, Config{
		MaxBatchSize: 8, BatchTimeout: 5 * time.Millisecond,
		NumWorkers: 2, QueueCapacity: 64,
	})
	b.Start()

	var wg sync.WaitGroup
	errs := make([]error, 6)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = b.Predict(context.Background(), fmt.Sprintf("text-%d", i))
		}(i)
	}
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, b.Shutdown(ctx))
	wg.Wait()

	// Every slot resolved exactly once: either with a vector or with
	// ErrShuttingDown, never hung.
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, ErrShuttingDown)
		}
	}
}

func TestPredict_ConcurrentWithShutdownNeverHangs(t *testing.T) {
	// Callers racing Shutdown may slip a request into the queue after the
	// final drain. Every such caller must still return, with ErrShuttingDown
	// at worst, even on a background context.
	m := &recordingModel{delay: time.Millisecond}
	b := New(m, Config{
		MaxBatchSize: 4, BatchTimeout: time.Millisecond,
		NumWorkers: 2, QueueCapacity: 4,
	})
	b.Start()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_, err := b.Predict(context.Background(), fmt.Sprintf("text-%d", i))
				if err != nil &&
					!errors.Is(err, ErrNotStarted) &&
					!errors.Is(err, ErrShuttingDown) &&
					!errors.Is(err, ErrQueueFull) {
					t.Errorf("unexpected predict error: %v", err)
					return
				}
			}
		}(i)
	}

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, b.Shutdown(context.Background()))

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("a caller blocked across shutdown")
	}
}

func TestDegenerateModes(t *testing.T) {
	t.Run("max batch size one", func(t *testing.T) {
		m := &recordingModel{}
		b := startBatcher(t, m, Config{
			MaxBatchSize: 1, BatchTimeout: 10 * time.Millisecond,
			NumWorkers: 1, QueueCapacity: 8,
		})

		for i := 1; i <= 3; i++ {
			vec, err := b.Predict(context.Background(), fmt.Sprintf("text-%d", i))
			require.NoError(t, err)
			assert.Equal(t, []float32{float32(i)}, vec)
		}
		for _, size := range m.batchSizes() {
			assert.Equal(t, 1, size)
		}
	})

	t.Run("zero batch timeout", func(t *testing.T) {
		// Even with requests already waiting in the queue, a zero window
		// must dispatch singleton batches, never coalesce.
		m := &recordingModel{block: make(chan struct{})}
		b := startBatcher(t, m, Config{
			MaxBatchSize: 8, BatchTimeout: 0,
			NumWorkers: 1, QueueCapacity: 16,
		})

		var wg sync.WaitGroup
		for i := 1; i <= 4; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				vec, err := b.Predict(context.Background(), fmt.Sprintf("text-%d", i))
				assert.NoError(t, err)
				assert.Equal(t, []float32{float32(i)}, vec)
			}(i)
		}
		time.Sleep(10 * time.Millisecond)
		close(m.block)
		wg.Wait()

		sizes := m.batchSizes()
		assert.Len(t, sizes, 4)
		for _, size := range sizes {
			assert.Equal(t, 1, size)
		}
	})
}

func TestNoBatcher(t *testing.T) {
	m := &recordingModel{}
	n := NewNoBatcher(m)

	_, err := n.Predict(context.Background(), "text-1")
	assert.ErrorIs(t, err, ErrNotStarted)

	n.Start()

	vec, err := n.Predict(context.Background(), "text-9")
	require.NoError(t, err)
	assert.Equal(t, []float32{9}, vec)
	assert.Equal(t, []int{1}, m.batchSizes())
	assert.Equal(t, 0, n.QueueSize())

	require.NoError(t, n.Shutdown(context.Background()))
	_, err = n.Predict(context.Background(), "text-1")
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestNoBatcher_ModelError(t *testing.T) {
	boom := errors.New("forward pass failed")
	n := NewNoBatcher(&recordingModel{err: boom})
	n.Start()

	_, err := n.Predict(context.Background(), "text-1")
	assert.ErrorIs(t, err, boom)
}
