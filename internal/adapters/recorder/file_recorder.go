package recorder

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/ports"
)

const sampleWidth = 8

// FileRecorder appends samples to a headerless file of little-endian float64 values.
type FileRecorder struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	writer  *bufio.Writer
	scratch []byte
	stats   ports.WriterStats
	closed  bool
}

// FileName returns the recording name for channel started at t.
func FileName(channel int, t time.Time) string {
	return fmt.Sprintf("raw_data_ch%d_%s.bin", channel, t.Format("20060102_150405"))
}

// maxNameCollisions bounds the suffixes tried when a recording of the same
// channel and second already exists.
const maxNameCollisions = 100

// NewFileRecorder creates dir if needed and opens a fresh recording for channel.
// An existing recording is never overwritten: a clash gets a numeric suffix.
func NewFileRecorder(dir string, channel int, startedAt time.Time) (*FileRecorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	name := FileName(channel, startedAt)
	base := strings.TrimSuffix(name, ".bin")

	var (
		path string
		f    *os.File
		err  error
	)
	for i := 0; i < maxNameCollisions; i++ {
		path = filepath.Join(dir, name)
		f, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
		if !errors.Is(err, os.ErrExist) {
			break
		}
		name = fmt.Sprintf("%s_%d.bin", base, i+1)
	}
	if err != nil {
		return nil, err
	}
	return &FileRecorder{
		path:   path,
		file:   f,
		writer: bufio.NewWriterSize(f, 1<<20),
	}, nil
}

// Factory returns a ports.WriterFactory that records into dir.
func Factory(dir string, now func() time.Time) ports.WriterFactory {
	if now == nil {
		now = time.Now
	}
	return func(channel int) (ports.ChunkWriter, error) {
		return NewFileRecorder(dir, channel, now())
	}
}

func (r *FileRecorder) WriteChunk(samples []float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return os.ErrClosed
	}

	need := len(samples) * sampleWidth
	if cap(r.scratch) < need {
		r.scratch = make([]byte, need)
	}
	buf := r.scratch[:need]
	for i, v := range samples {
		binary.LittleEndian.PutUint64(buf[i*sampleWidth:], math.Float64bits(v))
	}
	if _, err := r.writer.Write(buf); err != nil {
		return err
	}

	r.stats.Chunks++
	r.stats.Samples += uint64(len(samples))
	r.stats.SizeBytes += int64(need)
	return nil
}

func (r *FileRecorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	return r.writer.Flush()
}

func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	flushErr := r.writer.Flush()
	syncErr := r.file.Sync()
	closeErr := r.file.Close()
	return errors.Join(flushErr, syncErr, closeErr)
}

func (r *FileRecorder) Path() string { return r.path }

func (r *FileRecorder) Stats() ports.WriterStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Iterate streams a recording back in blocks of up to blockLen samples.
func Iterate(path string, blockLen int, fn func(block []float64) error) error {
	if blockLen <= 0 {
		blockLen = 4096
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	raw := make([]byte, blockLen*sampleWidth)
	block := make([]float64, blockLen)

	for {
		n, err := io.ReadFull(r, raw)
		if n%sampleWidth != 0 {
			return fmt.Errorf("corrupt recording %s: trailing %d bytes", path, n%sampleWidth)
		}
		if n > 0 {
			count := n / sampleWidth
			for i := 0; i < count; i++ {
				block[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*sampleWidth:]))
			}
			if ferr := fn(block[:count]); ferr != nil {
				return ferr
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read recording: %w", err)
		}
	}
}

// ReadFile loads a whole recording into memory.
func ReadFile(path string) ([]float64, error) {
	var out []float64
	err := Iterate(path, 0, func(block []float64) error {
		out = append(out, block...)
		return nil
	})
	return out, err
}

var _ ports.ChunkWriter = (*FileRecorder)(nil)
