// Package credentials holds the pool of interchangeable upstream API keys.
package credentials

import (
	"errors"
	"sync"
)

// ErrEmptyPool is returned when a rotator is created without credentials
var ErrEmptyPool = errors.New("credential pool is empty")

// Credential is an opaque API key
type Credential string

// Rotator is a ring counter over an ordered credential pool. It keeps no
// health state; callers decide when to rotate.
type Rotator struct {
	pool  []Credential
	index int
	mu    sync.Mutex
}

// NewRotator creates a rotator positioned at the first credential
func NewRotator(pool []Credential) (*Rotator, error) {
	if len(pool) == 0 {
		return nil, ErrEmptyPool
	}

	return &Rotator{
		pool: append([]Credential(nil), pool...),
	}, nil
}

// FromStrings builds a rotator from raw keys, skipping blanks
func FromStrings(keys []string) (*Rotator, error) {
	pool := make([]Credential, 0, len(keys))
	for _, key := range keys {
		if key == "" {
			continue
		}
		pool = append(pool, Credential(key))
	}
	return NewRotator(pool)
}

// Current returns the active credential
func (r *Rotator) Current() Credential {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pool[r.index]
}

// Index returns the position of the active credential in the pool
func (r *Rotator) Index() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.index
}

// Rotate advances to the next credential, wrapping at the end of the pool
func (r *Rotator) Rotate() Credential {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.pool) > 1 {
		r.index = (r.index + 1) % len(r.pool)
	}
	return r.pool[r.index]
}

// Size returns the number of credentials in the pool
func (r *Rotator) Size() int {
	return len(r.pool)
}
