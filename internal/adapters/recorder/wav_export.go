package recorder

import (
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavBitDepth = 16

// ExportWAV converts a .bin recording into a mono 16-bit PCM WAV file, turning
// microvolts back into amplifier counts with scale µV/count.
func ExportWAV(in, out string, sampleRate int, scale float64) (int, error) {
	if sampleRate <= 0 {
		return 0, fmt.Errorf("sample rate must be > 0")
	}
	if scale <= 0 {
		return 0, fmt.Errorf("scale must be > 0")
	}

	f, err := os.Create(out)
	if err != nil {
		return 0, err
	}

	enc := wav.NewEncoder(f, sampleRate, wavBitDepth, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		SourceBitDepth: wavBitDepth,
	}

	var written int
	err = Iterate(in, 0, func(block []float64) error {
		if cap(buf.Data) < len(block) {
			buf.Data = make([]int, len(block))
		}
		buf.Data = buf.Data[:len(block)]
		for i, v := range block {
			buf.Data[i] = clampInt16(math.Round(v / scale))
		}
		written += len(block)
		return enc.Write(buf)
	})
	if err != nil {
		enc.Close()
		f.Close()
		return written, err
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return written, err
	}
	return written, f.Close()
}

func clampInt16(v float64) int {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	default:
		return int(v)
	}
}
