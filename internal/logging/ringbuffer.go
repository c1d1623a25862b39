package logging

import (
	"os"
	"sync"
)

// RingBuffer is a fixed-capacity byte log that overwrites its oldest bytes.
// It backs crash dumps: the last few MB of records survive a panic even when
// the rotated file was discarded.
type RingBuffer struct {
	mu   sync.Mutex
	buf  []byte
	pos  int
	full bool
}

// NewRingBuffer creates a ring buffer holding at most size bytes.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 2 * 1024 * 1024
	}
	return &RingBuffer{buf: make([]byte, size)}
}

// Write implements io.Writer. It never fails.
func (rb *RingBuffer) Write(p []byte) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := len(p)
	size := len(rb.buf)
	if n >= size {
		copy(rb.buf, p[n-size:])
		rb.pos = 0
		rb.full = true
		return n, nil
	}

	tail := size - rb.pos
	if n < tail {
		copy(rb.buf[rb.pos:], p)
		rb.pos += n
		return n, nil
	}
	copy(rb.buf[rb.pos:], p[:tail])
	copy(rb.buf, p[tail:])
	rb.pos = n - tail
	rb.full = true
	return n, nil
}

// Bytes returns a copy of the contents, oldest first.
func (rb *RingBuffer) Bytes() []byte {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if !rb.full {
		return append([]byte(nil), rb.buf[:rb.pos]...)
	}
	out := make([]byte, 0, len(rb.buf))
	out = append(out, rb.buf[rb.pos:]...)
	return append(out, rb.buf[:rb.pos]...)
}

// DumpToFile writes the contents to path, oldest first.
func (rb *RingBuffer) DumpToFile(path string) error {
	return os.WriteFile(path, rb.Bytes(), 0o644)
}
