package model

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashingModel_OneVectorPerInput(t *testing.T) {
	m := NewHashingModel(64, 0, 0)

	out, err := m.Predict([]string{"first text", "second text", "third"})
	require.NoError(t, err)

	require.Len(t, out, 3)
	for _, vec := range out {
		assert.Len(t, vec, 64)
	}
}

func TestHashingModel_Deterministic(t *testing.T) {
	m := NewHashingModel(128, 0, 0)

	a, err := m.Predict([]string{"the quick brown fox"})
	require.NoError(t, err)
	b, err := m.Predict([]string{"the quick brown fox"})
	require.NoError(t, err)

	if diff := cmp.Diff(a[0], b[0]); diff != "" {
		t.Errorf("embeddings differ between runs (-first +second):\n%s", diff)
	}
}

func TestHashingModel_BatchPositionIndependent(t *testing.T) {
	m := NewHashingModel(128, 0, 0)

	solo, err := m.Predict([]string{"hello world"})
	require.NoError(t, err)
	batched, err := m.Predict([]string{"other text", "hello world", "more text"})
	require.NoError(t, err)

	if diff := cmp.Diff(solo[0], batched[1]); diff != "" {
		t.Errorf("embedding depends on batch position (-solo +batched):\n%s", diff)
	}
}

func TestHashingModel_L2Normalized(t *testing.T) {
	m := NewHashingModel(768, 0, 0)

	out, err := m.Predict([]string{"some reasonably long input with several tokens"})
	require.NoError(t, err)

	var norm float64
	for _, v := range out[0] {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestHashingModel_CaseInsensitive(t *testing.T) {
	m := NewHashingModel(128, 0, 0)

	a, err := m.Predict([]string{"Hello World"})
	require.NoError(t, err)
	b, err := m.Predict([]string{"hello world"})
	require.NoError(t, err)

	assert.Equal(t, a[0], b[0])
}

func TestHashingModel_EmptyTextYieldsZeroVector(t *testing.T) {
	m := NewHashingModel(32, 0, 0)

	out, err := m.Predict([]string{"   "})
	require.NoError(t, err)

	for _, v := range out[0] {
		assert.Zero(t, v)
	}
}

func TestHashingModel_EmptyBatch(t *testing.T) {
	m := NewHashingModel(32, 0, 0)

	out, err := m.Predict(nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestHashingModel_SimulatedLatency(t *testing.T) {
	m := NewHashingModel(32, 20*time.Millisecond, 5*time.Millisecond)

	start := time.Now()
	_, err := m.Predict([]string{"a", "b"})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestHashingModel_Metadata(t *testing.T) {
	m := NewHashingModel(256, 0, 0)

	assert.Equal(t, "hashing-encoder", m.Name())
	assert.Equal(t, "cpu", m.Device())
	assert.Equal(t, 256, m.Dim())

	// Non-positive dimension falls back to the default.
	assert.Equal(t, 768, NewHashingModel(0, 0, 0).Dim())
}
