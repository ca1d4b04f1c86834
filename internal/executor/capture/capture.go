// Package capture provides a bounded io.Writer that keeps only the most
// recent bytes written to it.
package capture

import (
	"fmt"
	"sync"
)

// Tail is a thread-safe ring buffer that retains the last Cap() bytes
// written and counts everything it dropped. It is used as a command's
// stdout/stderr so a chatty process cannot grow memory without bound.
type Tail struct {
	mu      sync.Mutex
	data    []byte
	start   int
	end     int
	full    bool
	written int64
}

// NewTail creates a Tail holding at most size bytes. size must be positive.
func NewTail(size int) *Tail {
	if size <= 0 {
		size = 1
	}
	return &Tail{data: make([]byte, size)}
}

// Write appends p, discarding the oldest bytes once the buffer is full.
// It never returns an error.
func (t *Tail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(p)
	t.written += int64(n)
	size := len(t.data)

	// only the last size bytes of p can survive
	if len(p) >= size {
		copy(t.data, p[len(p)-size:])
		t.start, t.end, t.full = 0, 0, true
		return n, nil
	}

	for _, b := range p {
		t.data[t.end] = b
		t.end = (t.end + 1) % size
		if t.full {
			t.start = (t.start + 1) % size
		}
		if t.end == t.start {
			t.full = true
		}
	}
	return n, nil
}

// Bytes returns a copy of the retained bytes in write order.
func (t *Tail) Bytes() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.full {
		return append([]byte(nil), t.data[t.start:t.end]...)
	}
	out := make([]byte, 0, len(t.data))
	out = append(out, t.data[t.start:]...)
	return append(out, t.data[:t.end]...)
}

// Len returns the number of retained bytes.
func (t *Tail) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.full {
		return len(t.data)
	}
	return t.end - t.start
}

// Written returns the total number of bytes ever written.
func (t *Tail) Written() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.written
}

// Dropped returns how many bytes were discarded.
func (t *Tail) Dropped() int64 {
	return t.Written() - int64(t.Len())
}

// String returns the retained text, prefixed with a truncation marker when
// bytes were dropped.
func (t *Tail) String() string {
	b := t.Bytes()
	if dropped := t.Dropped(); dropped > 0 {
		return fmt.Sprintf("[... %d bytes truncated ...]\n%s", dropped, b)
	}
	return string(b)
}
