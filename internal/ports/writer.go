package ports

// ChunkWriter persists chunk samples in arrival order.
type ChunkWriter interface {
	WriteChunk(samples []float64) error
	Flush() error
	Close() error
	Path() string
	Stats() WriterStats
}

type WriterStats struct {
	Chunks    uint64
	Samples   uint64
	SizeBytes int64
}

// WriterFactory opens the destination for a recording on channel.
type WriterFactory func(channel int) (ChunkWriter, error)
