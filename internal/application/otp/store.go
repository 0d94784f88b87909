package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"
)

// Store issues and validates one-time passcodes keyed by an identifier
// (an email address or a phone number). At most one live code exists per
// identifier: issuing again supersedes any earlier unconsumed code.
type Store interface {
	// Issue generates a fresh code for the identifier, replacing any prior
	// one, and returns it. Delivery is the caller's responsibility.
	Issue(ctx context.Context, identifier string) (string, error)
	// Validate reports whether the submitted code matches the live,
	// unexpired code for the identifier. A successful validation consumes
	// the code; a failed one leaves the record untouched.
	Validate(ctx context.Context, identifier, code string) (bool, error)
}

// GenerateCode returns a uniformly random 6-digit code in [100000, 999999].
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

type record struct {
	code      string
	expiresAt time.Time
}

// MemoryStore is a process-wide in-memory Store. Codes do not survive a
// restart. Expired records are not purged eagerly; Validate re-checks
// expiry on every call.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]record
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, entries: make(map[string]record)}
}

func (s *MemoryStore) Issue(_ context.Context, identifier string) (string, error) {
	code, err := GenerateCode()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.entries[identifier] = record{code: code, expiresAt: time.Now().Add(s.ttl)}
	s.mu.Unlock()
	return code, nil
}

func (s *MemoryStore) Validate(_ context.Context, identifier, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.entries[identifier]
	if !ok || rec.code != code || !time.Now().Before(rec.expiresAt) {
		return false, nil
	}
	// Single use: the delete happens under the same lock as the check.
	delete(s.entries, identifier)
	return true, nil
}
