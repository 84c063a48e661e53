// Package model defines the embedding model boundary served by the
// inference process and provides the built-in hashing encoder.
package model

// Model is a blocking embedding model. Predict embeds a batch of texts and
// returns exactly one vector per input, in input order. Implementations are
// expected to be safe for serialized calls; the batching scheduler
// guarantees only one Predict runs at a time.
type Model interface {
	Predict(texts []string) ([][]float32, error)
	Name() string
	Device() string
	Dim() int
}
