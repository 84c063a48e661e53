// Package apikey provides an in-memory API key store. Keys are stored only
// as SHA-256 hashes; the plaintext key exists solely in the client's hands
// and in the process that generated it.
package apikey

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"
)

// Record holds the metadata attached to an API key.
type Record struct {
	UserID          string
	Name            string
	RateLimitMinute int
	RateLimitHour   int
	CreatedAt       time.Time
	Metadata        map[string]string
	Active          bool
}

// Store maps SHA-256 key hashes to key records. All methods are safe for
// concurrent use.
type Store struct {
	mu      sync.RWMutex
	records map[string]*Record
	logger  *slog.Logger
}

// NewStore creates an empty key store.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		records: make(map[string]*Record),
		logger:  logger,
	}
}

// HashKey returns the hex-encoded SHA-256 digest of a plaintext key.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// GenerateKey mints a new plaintext API key of the form
// "{prefix}_{43 url-safe base64 chars}" with 256 bits of entropy.
func GenerateKey(prefix string) string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms.
		panic(err)
	}
	return prefix + "_" + base64.RawURLEncoding.EncodeToString(buf)
}

// Add registers a plaintext key with its record and returns the key hash.
// Only a truncated hash ever reaches the logs.
func (s *Store) Add(key string, record *Record) string {
	hash := HashKey(key)
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	record.Active = true

	s.mu.Lock()
	s.records[hash] = record
	s.mu.Unlock()

	s.logger.Info("api key registered",
		slog.String("key_hash", hash[:16]),
		slog.String("user_id", record.UserID),
		slog.String("name", record.Name))
	return hash
}

// Lookup resolves a plaintext key to its record. Returns nil for unknown or
// revoked keys; callers cannot distinguish the two.
func (s *Store) Lookup(key string) *Record {
	hash := HashKey(key)

	s.mu.RLock()
	record := s.records[hash]
	s.mu.RUnlock()

	if record == nil || !record.Active {
		return nil
	}
	return record
}

// Revoke soft-deletes a key. The record stays in the store for audit but no
// longer authenticates.
func (s *Store) Revoke(key string) bool {
	hash := HashKey(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.records[hash]
	if record == nil || !record.Active {
		return false
	}
	record.Active = false

	s.logger.Info("api key revoked",
		slog.String("key_hash", hash[:16]),
		slog.String("user_id", record.UserID))
	return true
}

// Len returns the number of records, active or revoked.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
