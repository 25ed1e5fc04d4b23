package blockweight

import "sync/atomic"

const (
	// DefaultMultiplier is the multiplier a node starts with absent an override.
	DefaultMultiplier uint32 = 1

	// MaxOverrideMultiplier bounds the startup override (exclusive).
	MaxOverrideMultiplier uint32 = 100000
)

// Multiplier holds the current block weight multiplier. It has exactly one
// writer, the retarget engine, and may be read from any goroutine.
type Multiplier struct {
	v atomic.Uint32
}

// NewMultiplier returns a multiplier initialised to v.
func NewMultiplier(v uint32) *Multiplier {
	m := &Multiplier{}
	m.v.Store(v)
	return m
}

// Load returns the current multiplier.
func (m *Multiplier) Load() uint32 {
	return m.v.Load()
}

func (m *Multiplier) store(v uint32) {
	m.v.Store(v)
}
