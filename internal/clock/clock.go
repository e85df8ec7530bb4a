package clock

import "sync/atomic"

// Tick is one discrete step of the logical clock.
type Tick int64

// Since returns the number of ticks elapsed between t and now.
func (t Tick) Since(now Tick) int64 {
	return int64(now - t)
}

// Clock exposes the current logical time. Nodes only read it; the harness
// that drives them owns advancing it.
type Clock interface {
	Now() Tick
}

// Manual is a Clock advanced explicitly by its owner. It is safe to read
// from several goroutines while a single driver advances it.
type Manual struct {
	now atomic.Int64
}

// NewManual creates a manual clock starting at start.
func NewManual(start Tick) *Manual {
	m := &Manual{}
	m.now.Store(int64(start))
	return m
}

// Now returns the current tick.
func (m *Manual) Now() Tick {
	return Tick(m.now.Load())
}

// Advance moves the clock forward by n ticks and returns the new time.
func (m *Manual) Advance(n int64) Tick {
	return Tick(m.now.Add(n))
}

// Set forces the clock to t.
func (m *Manual) Set(t Tick) {
	m.now.Store(int64(t))
}

// Func adapts a plain function to the Clock interface.
type Func func() Tick

// Now calls f.
func (f Func) Now() Tick {
	return f()
}
