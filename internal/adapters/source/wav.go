package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/ports"
)

var ErrInvalidWAV = errors.New("wav is not valid")

// WAVSource replays one channel of a PCM WAV recording as raw 16-bit counts,
// paced at the file's sample rate unless realtime pacing is switched off.
type WAVSource struct {
	cfg        Config
	channel    int
	sampleRate int
	now        func() time.Time

	mu       sync.Mutex
	file     *os.File
	decoder  *wav.Decoder
	buf      *audio.IntBuffer
	numChans int
	bitDepth int
	started  time.Time
	emitted  int64
	limit    int64
}

func NewWAVSource(cfg Config, channel, sampleRate int) *WAVSource {
	cfg.ApplyDefaults()
	return &WAVSource{cfg: cfg, channel: channel, sampleRate: sampleRate, now: time.Now}
}

func (w *WAVSource) Open(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.openFile(); err != nil {
		return err
	}
	if w.sampleRate > 0 && int(w.decoder.SampleRate) != w.sampleRate {
		rate := w.decoder.SampleRate
		w.closeFile()
		return fmt.Errorf("wav sample rate %d does not match configured %d", rate, w.sampleRate)
	}
	if w.cfg.WAV.Channel >= w.numChans {
		w.closeFile()
		return fmt.Errorf("wav channel %d out of range (file has %d)", w.cfg.WAV.Channel, w.numChans)
	}
	if w.cfg.Duration > 0 {
		w.limit = int64(w.cfg.Duration.Seconds() * float64(w.decoder.SampleRate))
	}
	w.started = w.now()
	w.emitted = 0
	return nil
}

func (w *WAVSource) openFile() error {
	f, err := os.Open(w.cfg.WAV.Path)
	if err != nil {
		return err
	}
	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		f.Close()
		return fmt.Errorf("%w: %s", ErrInvalidWAV, w.cfg.WAV.Path)
	}
	format := d.Format()
	w.file = f
	w.decoder = d
	w.numChans = format.NumChannels
	w.bitDepth = int(d.BitDepth)
	w.buf = &audio.IntBuffer{
		Format:         format,
		Data:           make([]int, w.cfg.ChunkSize*format.NumChannels),
		SourceBitDepth: w.bitDepth,
	}
	return nil
}

func (w *WAVSource) closeFile() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	w.decoder = nil
	return err
}

func (w *WAVSource) Next(context.Context) (ports.RawChunk, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.decoder == nil {
		return ports.RawChunk{}, ports.ErrSourceExhausted
	}
	if w.limit > 0 && w.emitted >= w.limit {
		return ports.RawChunk{}, ports.ErrSourceExhausted
	}

	if *w.cfg.WAV.Realtime {
		due := int64(w.now().Sub(w.started).Seconds()*float64(w.decoder.SampleRate)) - w.emitted
		if due < int64(w.cfg.ChunkSize) {
			return ports.RawChunk{Channel: w.channel}, nil
		}
	}

	n, err := w.decoder.PCMBuffer(w.buf)
	if err != nil {
		return ports.RawChunk{}, fmt.Errorf("decode wav: %w", err)
	}
	if n == 0 {
		if !w.cfg.WAV.Loop {
			return ports.RawChunk{}, ports.ErrSourceExhausted
		}
		w.closeFile()
		if err := w.openFile(); err != nil {
			return ports.RawChunk{}, err
		}
		return ports.RawChunk{Channel: w.channel}, nil
	}

	frames := n / w.numChans
	if w.limit > 0 && w.emitted+int64(frames) > w.limit {
		frames = int(w.limit - w.emitted)
	}
	out := make([]int16, frames)
	for i := range out {
		out[i] = toInt16(w.buf.Data[i*w.numChans+w.cfg.WAV.Channel], w.bitDepth)
	}
	w.emitted += int64(frames)
	return ports.RawChunk{Channel: w.channel, Samples: out}, nil
}

func (w *WAVSource) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeFile()
}

func toInt16(v, bitDepth int) int16 {
	switch {
	case bitDepth == 8:
		return int16((v - 128) << 8)
	case bitDepth > 16:
		return int16(v >> (bitDepth - 16))
	default:
		return int16(v)
	}
}

var _ ports.SampleSource = (*WAVSource)(nil)
