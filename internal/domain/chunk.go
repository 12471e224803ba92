package domain

import "time"

const (
	// BufferSize is the largest chunk a single exchange slot holds.
	BufferSize = 4096
	// NumBuffers is the default number of exchange slots.
	NumBuffers = 2
	// MicrovoltsPerCount converts raw amplifier counts to microvolts.
	MicrovoltsPerCount = 0.25
	// DefaultSampleRate is the acquisition rate in Hz.
	DefaultSampleRate = 30000
)

// Chunk is one acquisition cycle's worth of samples in microvolts.
type Chunk struct {
	Channel    int       `json:"channel"`
	Seq        uint64    `json:"seq"`
	AcquiredAt time.Time `json:"acquired_at"`
	Samples    []float64 `json:"samples"`
}

// Clone returns a deep copy so the persistence queue owns its data.
func (c *Chunk) Clone() *Chunk {
	out := *c
	out.Samples = make([]float64, len(c.Samples))
	copy(out.Samples, c.Samples)
	return &out
}

// Len returns the number of samples in the chunk.
func (c *Chunk) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Samples)
}

// ToMicrovolts scales raw counts into dst, growing it when needed.
func ToMicrovolts(dst []float64, raw []int16, scale float64) []float64 {
	if cap(dst) < len(raw) {
		dst = make([]float64, len(raw))
	}
	dst = dst[:len(raw)]
	for i, v := range raw {
		dst[i] = float64(v) * scale
	}
	return dst
}
