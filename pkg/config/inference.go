package config

import (
	"flag"
	"fmt"
	"time"
)

// Inference defaults. Overridable via flags or INFERENCE_* environment
// variables.
const (
	DefaultInferenceHost = "0.0.0.0"
	DefaultInferencePort = 8001
	DefaultMaxBatchSize  = 32
	DefaultBatchTimeout  = 10 * time.Millisecond
	DefaultNumWorkers    = 2
	DefaultQueueCapacity = 4096
	DefaultModelDim      = 768
)

// InferenceConfig holds the configuration for the inference service.
type InferenceConfig struct {
	// Host and Port to bind the HTTP server to.
	Host string
	Port int

	// MaxBatchSize is the maximum number of requests coalesced into one
	// model forward pass.
	MaxBatchSize int

	// BatchTimeout is the maximum time a collector waits after the first
	// request before dispatching a partial batch.
	BatchTimeout time.Duration

	// NumWorkers is the number of batch collector workers.
	NumWorkers int

	// NoBatching processes each request as a singleton batch. Provided for
	// benchmarking and degenerate low-load operation.
	NoBatching bool

	// QueueCapacity bounds the pending request queue. When the queue is
	// full new requests are rejected with 503.
	QueueCapacity int

	// ModelDim is the embedding dimension of the served model.
	ModelDim int

	// ModelBaseLatency and ModelPerItemLatency simulate CPU/GPU-bound
	// compute in the built-in model. Zero disables the simulation.
	ModelBaseLatency    time.Duration
	ModelPerItemLatency time.Duration
}

// LoadInferenceConfig parses inference configuration from the given
// command-line arguments, falling back to environment variables and then to
// defaults.
func LoadInferenceConfig(args []string) (*InferenceConfig, error) {
	cfg := &InferenceConfig{}

	fs := flag.NewFlagSet("inference", flag.ContinueOnError)
	fs.StringVar(&cfg.Host, "host",
		GetEnvString("INFERENCE_HOST", DefaultInferenceHost),
		"host to bind the server to")
	fs.IntVar(&cfg.Port, "port",
		GetEnvInt("INFERENCE_PORT", DefaultInferencePort),
		"port to bind the server to")
	fs.IntVar(&cfg.MaxBatchSize, "max-batch-size",
		GetEnvInt("MAX_BATCH_SIZE", DefaultMaxBatchSize),
		"maximum batch size for dynamic batching")
	fs.DurationVar(&cfg.BatchTimeout, "batch-timeout",
		GetEnvDuration("BATCH_TIMEOUT", DefaultBatchTimeout),
		"maximum wait time for dynamic batching before processing a partial batch")
	fs.IntVar(&cfg.NumWorkers, "num-batching-workers",
		GetEnvInt("NUM_BATCHING_WORKERS", DefaultNumWorkers),
		"number of batch collector workers")
	fs.BoolVar(&cfg.NoBatching, "no-batching",
		GetEnvBool("NO_BATCHING", false),
		"process each request individually instead of batching")
	fs.IntVar(&cfg.QueueCapacity, "queue-capacity",
		GetEnvInt("QUEUE_CAPACITY", DefaultQueueCapacity),
		"pending request queue capacity")
	fs.IntVar(&cfg.ModelDim, "model-dim",
		GetEnvInt("MODEL_DIM", DefaultModelDim),
		"embedding dimension of the served model")
	fs.DurationVar(&cfg.ModelBaseLatency, "model-base-latency",
		GetEnvDuration("MODEL_BASE_LATENCY", 0),
		"simulated base inference latency per batch")
	fs.DurationVar(&cfg.ModelPerItemLatency, "model-per-item-latency",
		GetEnvDuration("MODEL_PER_ITEM_LATENCY", 0),
		"simulated additional inference latency per batch item")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *InferenceConfig) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.MaxBatchSize < 1 {
		return fmt.Errorf("max batch size must be at least 1, got %d", c.MaxBatchSize)
	}
	if c.BatchTimeout < 0 {
		return fmt.Errorf("batch timeout must not be negative, got %s", c.BatchTimeout)
	}
	if c.NumWorkers < 1 {
		return fmt.Errorf("number of batching workers must be at least 1, got %d", c.NumWorkers)
	}
	if c.QueueCapacity < 1 {
		return fmt.Errorf("queue capacity must be at least 1, got %d", c.QueueCapacity)
	}
	if c.ModelDim < 1 {
		return fmt.Errorf("model dimension must be at least 1, got %d", c.ModelDim)
	}
	return nil
}

// Addr returns the host:port listen address for the inference server.
func (c *InferenceConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
