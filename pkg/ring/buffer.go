// Package ring provides a fixed-capacity, thread-safe circular byte queue.
//
// Writes never block and truncate when the buffer is full; reads never block
// and return 0 when it is empty. The internal lock is acquired with a bounded
// wait so a stalled caller cannot wedge the other side of the queue.
package ring

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultLockTimeout bounds how long an operation waits for the internal lock.
const DefaultLockTimeout = 50 * time.Millisecond

// resetAttempts is how many lock waits Reset makes before giving up.
const resetAttempts = 3

// ErrInvalidSize is returned by New for a non-positive capacity.
var ErrInvalidSize = errors.New("ring: capacity must be positive")

// ErrLocked reports that Reset could not take the lock in time.
var ErrLocked = errors.New("ring: buffer lock not acquired")

type Buffer struct {
	sem         *semaphore.Weighted
	lockTimeout time.Duration

	buf []byte
	r   int // read cursor
	w   int // write cursor
	n   int // bytes available
}

type Option func(*Buffer)

// WithLockTimeout overrides DefaultLockTimeout.
func WithLockTimeout(d time.Duration) Option {
	return func(b *Buffer) {
		if d > 0 {
			b.lockTimeout = d
		}
	}
}

// New allocates a buffer holding at most size bytes.
func New(size int, opts ...Option) (*Buffer, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}

	b := &Buffer{
		sem:         semaphore.NewWeighted(1),
		lockTimeout: DefaultLockTimeout,
		buf:         make([]byte, size),
	}
	for _, o := range opts {
		o(b)
	}

	return b, nil
}

func (b *Buffer) lock() bool {
	if b.sem.TryAcquire(1) {
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.lockTimeout)
	defer cancel()

	return b.sem.Acquire(ctx, 1) == nil
}

func (b *Buffer) unlock() {
	b.sem.Release(1)
}

// Write copies as much of p as fits and returns the number of bytes stored.
// A short count means the buffer was full (or the lock timed out) and the
// remainder of p was discarded.
func (b *Buffer) Write(p []byte) int {
	if len(p) == 0 || !b.lock() {
		return 0
	}
	defer b.unlock()

	size := len(b.buf)
	toWrite := min(len(p), size-b.n)
	if toWrite == 0 {
		return 0
	}

	first := copy(b.buf[b.w:], p[:toWrite])
	if first < toWrite {
		copy(b.buf, p[first:toWrite])
	}

	b.w = (b.w + toWrite) % size
	b.n += toWrite

	return toWrite
}

// Read copies up to len(p) available bytes into p. It returns 0 when the
// buffer is empty; that is not an error.
func (b *Buffer) Read(p []byte) int {
	if len(p) == 0 || !b.lock() {
		return 0
	}
	defer b.unlock()

	size := len(b.buf)
	toRead := min(len(p), b.n)
	if toRead == 0 {
		return 0
	}

	first := copy(p[:toRead], b.buf[b.r:])
	if first < toRead {
		copy(p[first:toRead], b.buf)
	}

	b.r = (b.r + toRead) % size
	b.n -= toRead

	return toRead
}

// Available reports the number of buffered bytes, or 0 if the lock could not
// be taken in time.
func (b *Buffer) Available() int {
	if !b.lock() {
		return 0
	}
	defer b.unlock()

	return b.n
}

// Cap returns the fixed capacity.
func (b *Buffer) Cap() int {
	return len(b.buf)
}

// FillPercent returns Available as a percentage of capacity, 0..100.
func (b *Buffer) FillPercent() int {
	return b.Available() * 100 / len(b.buf)
}

// Reset discards all buffered bytes without reallocating. It retries the
// bounded lock wait a few times and reports false if the buffer stayed locked,
// in which case nothing was discarded.
func (b *Buffer) Reset() bool {
	for range resetAttempts {
		if !b.lock() {
			continue
		}

		b.r = 0
		b.w = 0
		b.n = 0
		b.unlock()
		return true
	}

	return false
}
