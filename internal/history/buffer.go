// Package history provides the bounded sample store used for every tracked
// metric. A Buffer keeps a fixed number of int64 samples and overwrites the
// oldest one once full, matching the width of a fixed display window.
package history

import "sync"

// DefaultSize is the number of samples kept per metric when no size is
// configured. At the default 1 Hz sampling rate this covers one minute.
const DefaultSize = 60

// Buffer is a fixed-capacity circular buffer of samples.
// It is safe for one writer and any number of readers on different goroutines.
type Buffer struct {
	mu     sync.RWMutex
	values []int64
	start  int // index of the oldest sample
	count  int
}

// NewBuffer creates a Buffer holding at most size samples.
// A non-positive size falls back to DefaultSize.
func NewBuffer(size int) *Buffer {
	if size <= 0 {
		size = DefaultSize
	}
	return &Buffer{values: make([]int64, size)}
}

// Add appends a sample, discarding the oldest one when the buffer is full.
func (b *Buffer) Add(v int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count < len(b.values) {
		b.values[(b.start+b.count)%len(b.values)] = v
		b.count++
		return
	}
	b.values[b.start] = v
	b.start = (b.start + 1) % len(b.values)
}

// Newest returns the most recent sample, or 0 if the buffer is empty.
func (b *Buffer) Newest() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.count == 0 {
		return 0
	}
	return b.values[(b.start+b.count-1)%len(b.values)]
}

// Len returns the number of samples currently stored.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Cap returns the maximum number of samples the buffer can hold.
func (b *Buffer) Cap() int {
	return len(b.values)
}

// Values returns the stored samples ordered from oldest to newest.
func (b *Buffer) Values() []int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]int64, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.values[(b.start+i)%len(b.values)]
	}
	return out
}

// Each calls fn for every sample from oldest to newest.
// Iteration stops early if fn returns false. fn must not call Add.
func (b *Buffer) Each(fn func(index int, v int64) bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for i := 0; i < b.count; i++ {
		if !fn(i, b.values[(b.start+i)%len(b.values)]) {
			return
		}
	}
}

// Max returns the largest stored sample, or 0 if the buffer is empty.
// Graph renderers use it to scale the vertical axis.
func (b *Buffer) Max() int64 {
	var max int64
	b.Each(func(i int, v int64) bool {
		if i == 0 || v > max {
			max = v
		}
		return true
	})
	return max
}

// Copy returns an independent buffer with the same capacity and contents.
func (b *Buffer) Copy() *Buffer {
	b.mu.RLock()
	defer b.mu.RUnlock()

	c := &Buffer{
		values: make([]int64, len(b.values)),
		start:  b.start,
		count:  b.count,
	}
	copy(c.values, b.values)
	return c
}
