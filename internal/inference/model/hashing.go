package model

import (
	"hash/fnv"
	"math"
	"strings"
	"time"
)

// maxTokens caps tokenization so pathological inputs cannot dominate a
// batch's compute.
const maxTokens = 256

// HashingModel is a deterministic feature-hashing text encoder. Each token
// is FNV-hashed into a fixed-dimension vector, token vectors are mean-pooled
// and the result is L2-normalized. It stands in for a real transformer
// encoder with the same serving characteristics: batch-oriented, CPU-bound
// and strictly one output vector per input.
//
// BaseLatency and PerItemLatency optionally simulate a real model's batch
// latency envelope for load testing.
type HashingModel struct {
	dim            int
	baseLatency    time.Duration
	perItemLatency time.Duration
}

// NewHashingModel creates a hashing encoder with the given embedding
// dimension. Non-positive dimensions fall back to 768.
func NewHashingModel(dim int, baseLatency, perItemLatency time.Duration) *HashingModel {
	if dim <= 0 {
		dim = 768
	}
	return &HashingModel{
		dim:            dim,
		baseLatency:    baseLatency,
		perItemLatency: perItemLatency,
	}
}

// Predict implements Model.
func (m *HashingModel) Predict(texts []string) ([][]float32, error) {
	if m.baseLatency > 0 || m.perItemLatency > 0 {
		time.Sleep(m.baseLatency + time.Duration(len(texts))*m.perItemLatency)
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = m.embed(text)
	}
	return out, nil
}

// Name implements Model.
func (m *HashingModel) Name() string { return "hashing-encoder" }

// Device implements Model.
func (m *HashingModel) Device() string { return "cpu" }

// Dim implements Model.
func (m *HashingModel) Dim() int { return m.dim }

func (m *HashingModel) embed(text string) []float32 {
	vec := make([]float32, m.dim)

	tokens := strings.Fields(strings.ToLower(text))
	if len(tokens) > maxTokens {
		tokens = tokens[:maxTokens]
	}
	if len(tokens) == 0 {
		return vec
	}

	for _, token := range tokens {
		h := fnv.New64a()
		_, _ = h.Write([]byte(token))
		sum := h.Sum64()

		idx := int(sum % uint64(m.dim))
		// Second hash bit decides the sign, which keeps hash collisions from
		// biasing the vector positive.
		sign := float32(1)
		if (sum>>63)&1 == 1 {
			sign = -1
		}
		vec[idx] += sign
	}

	// Mean pool over tokens.
	inv := float32(1) / float32(len(tokens))
	for i := range vec {
		vec[i] *= inv
	}

	// L2 normalize. All-zero vectors (possible when signed counts cancel)
	// are left as zeros.
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}
