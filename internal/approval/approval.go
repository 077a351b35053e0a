// internal/approval/approval.go
package approval

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// Consume failure modes. Callers map these onto their own error surface.
var (
	ErrUnknownToken = errors.New("unknown or already used approval token")
	ErrExpired      = errors.New("approval token has expired")
	ErrMismatch     = errors.New("approval token was issued for a different query")
)

// Registry hands out one-shot approval tokens bound to the canonical hash of
// a previewed query. A token is consumed by the first execute that presents
// it, whether or not the bound query matches; expired entries are purged on
// every mutation so the registry never grows unbounded.
type Registry struct {
	mu     sync.Mutex
	ttl    time.Duration
	grants map[string]grant

	now  func() time.Time
	rand io.Reader
}

type grant struct {
	hash      [sha256.Size]byte
	expiresAt time.Time
}

// New returns a registry whose tokens live for ttl after issuance.
func New(ttl time.Duration) *Registry {
	return &Registry{
		ttl:    ttl,
		grants: make(map[string]grant),
		now:    time.Now,
		rand:   rand.Reader,
	}
}

// Issue binds a fresh 256-bit token to the given canonical query hash and
// returns the token with its expiry.
func (r *Registry) Issue(queryHash [sha256.Size]byte) (string, time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.purge(now)

	var raw [32]byte
	if _, err := io.ReadFull(r.rand, raw[:]); err != nil {
		return "", time.Time{}, fmt.Errorf("generate approval token: %w", err)
	}
	token := hex.EncodeToString(raw[:])

	expiresAt := now.Add(r.ttl)
	r.grants[token] = grant{hash: queryHash, expiresAt: expiresAt}
	return token, expiresAt, nil
}

// Consume removes the token and checks that it was issued for the given
// query hash. The token is spent by the attempt regardless of outcome; only
// a nil return authorizes execution.
func (r *Registry) Consume(token string, queryHash [sha256.Size]byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	defer r.purge(now)

	g, ok := r.grants[token]
	if !ok {
		return ErrUnknownToken
	}
	delete(r.grants, token)

	if now.After(g.expiresAt) {
		return ErrExpired
	}
	if subtle.ConstantTimeCompare(g.hash[:], queryHash[:]) != 1 {
		return ErrMismatch
	}
	return nil
}

// Pending reports how many unexpired tokens are outstanding.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.purge(r.now())
	return len(r.grants)
}

// purge drops expired grants. Callers hold the lock.
func (r *Registry) purge(now time.Time) {
	for tok, g := range r.grants {
		if now.After(g.expiresAt) {
			delete(r.grants, tok)
		}
	}
}
