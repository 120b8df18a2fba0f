// Package permit implements the binary permit the readers–writers protocol is
// built from.
package permit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	// ErrClosed is returned by Acquire and Release after Close.
	ErrClosed = errors.New("permit closed")
	// ErrNotHeld is returned by Release when the permit is already available.
	ErrNotHeld = errors.New("permit not held")
)

// A Permit is a binary semaphore.
//
// A Permit is not associated with a particular goroutine: one goroutine may
// Acquire it and another goroutine may Release it. The protocol relies on this,
// the first reader of a group takes the access permit and the last one gives it
// back.
type Permit struct {
	name string
	// канал размера 1: токен в канале - permit свободен
	token chan struct{}
	done  chan struct{}
	once  sync.Once

	acquired atomic.Uint64
	released atomic.Uint64
}

// New creates an available Permit.
func New(name string) *Permit {
	p := &Permit{
		name:  name,
		token: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	p.token <- struct{}{}
	return p
}

// Name returns the name the permit was created with.
func (p *Permit) Name() string {
	return p.name
}

// Acquire blocks until the permit is available and takes it.
// It returns ctx.Err() if ctx is done first and ErrClosed if the permit is
// closed while waiting.
func (p *Permit) Acquire(ctx context.Context) error {
	select {
	case <-p.done:
		return p.wrap("acquire", ErrClosed)
	default:
	}

	select {
	case <-p.token:
		p.acquired.Add(1)
		return nil
	case <-p.done:
		return p.wrap("acquire", ErrClosed)
	case <-ctx.Done():
		return p.wrap("acquire", ctx.Err())
	}
}

// Release makes the permit available again, waking one blocked Acquire.
func (p *Permit) Release() error {
	select {
	case <-p.done:
		return p.wrap("release", ErrClosed)
	default:
	}

	select {
	case p.token <- struct{}{}:
		p.released.Add(1)
		return nil
	default:
		return p.wrap("release", ErrNotHeld)
	}
}

// Available reports whether the permit is free at the moment of the call.
func (p *Permit) Available() bool {
	return len(p.token) == 1
}

// Close fails every blocked and future Acquire and Release with ErrClosed.
// Close is idempotent and may be called on a nil Permit.
func (p *Permit) Close() {
	if p == nil {
		return
	}
	p.once.Do(func() {
		close(p.done)
	})
}

// Stats returns how many times the permit was acquired and released.
func (p *Permit) Stats() (acquired, released uint64) {
	return p.acquired.Load(), p.released.Load()
}

func (p *Permit) wrap(op string, err error) error {
	return fmt.Errorf("%s %s: %w", op, p.name, err)
}
