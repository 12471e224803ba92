package recorder

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"
)

func TestFileRecorderWritesLittleEndianDoubles(t *testing.T) {
	dir := t.TempDir()
	started := time.Date(2024, 5, 31, 13, 4, 5, 0, time.Local)

	r, err := NewFileRecorder(dir, 65, started)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	if got, want := filepath.Base(r.Path()), "raw_data_ch65_20240531_130405.bin"; got != want {
		t.Fatalf("expected file name %s, got %s", want, got)
	}

	first := []float64{0.25, -1.5, 1e6}
	second := []float64{42}
	if err := r.WriteChunk(first); err != nil {
		t.Fatalf("write first: %v", err)
	}
	if err := r.WriteChunk(second); err != nil {
		t.Fatalf("write second: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	stat, err := os.Stat(r.Path())
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if stat.Size() != 4*8 {
		t.Fatalf("expected 32 bytes on disk, got %d", stat.Size())
	}

	raw, err := os.ReadFile(r.Path())
	if err != nil {
		t.Fatalf("read raw: %v", err)
	}
	// 0.25 == 0x3FD0000000000000, little-endian puts 0xD0 0x3F last
	if raw[6] != 0xD0 || raw[7] != 0x3F {
		t.Fatalf("expected little-endian encoding, got % x", raw[:8])
	}

	got, err := ReadFile(r.Path())
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	want := append(append([]float64{}, first...), second...)
	if len(got) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d: expected %v, got %v", i, want[i], got[i])
		}
	}

	stats := r.Stats()
	if stats.Chunks != 2 || stats.Samples != 4 || stats.SizeBytes != 32 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if err := r.WriteChunk(first); err == nil {
		t.Fatalf("expected write after close to fail")
	}
}

func TestIterateRejectsTruncatedRecording(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.bin")
	if err := os.WriteFile(path, make([]byte, 8*3+5), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadFile(path); err == nil {
		t.Fatalf("expected error for trailing partial sample")
	}
}

func TestNewFileRecorderFailsOnUnwritableDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewFileRecorder(filepath.Join(file, "sub"), 1, time.Now()); err == nil {
		t.Fatalf("expected error when destination cannot be created")
	}
}

func TestNewFileRecorderKeepsExistingRecording(t *testing.T) {
	dir := t.TempDir()
	started := time.Date(2026, 3, 1, 9, 30, 0, 0, time.Local)

	first, err := NewFileRecorder(dir, 5, started)
	if err != nil {
		t.Fatalf("first recorder: %v", err)
	}
	if err := first.WriteChunk([]float64{1, 2, 3}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, err := NewFileRecorder(dir, 5, started)
	if err != nil {
		t.Fatalf("second recorder: %v", err)
	}
	defer second.Close()

	if second.Path() == first.Path() {
		t.Fatalf("second recording reused %s", first.Path())
	}
	if got, want := filepath.Base(second.Path()), "raw_data_ch5_20260301_093000_1.bin"; got != want {
		t.Fatalf("unexpected name %q, want %q", got, want)
	}

	samples, err := ReadFile(first.Path())
	if err != nil {
		t.Fatalf("read first: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("first recording was truncated: %d samples left", len(samples))
	}
}

func TestExportWAV(t *testing.T) {
	dir := t.TempDir()
	r, err := NewFileRecorder(dir, 3, time.Now())
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	samples := []float64{0, 0.25, -0.5, 100000}
	if err := r.WriteChunk(samples); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	out := filepath.Join(dir, "out.wav")
	n, err := ExportWAV(r.Path(), out, 30000, 0.25)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if n != len(samples) {
		t.Fatalf("expected %d exported samples, got %d", len(samples), n)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("open wav: %v", err)
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dec.SampleRate != 30000 || dec.NumChans != 1 || dec.BitDepth != 16 {
		t.Fatalf("unexpected header: rate=%d chans=%d depth=%d", dec.SampleRate, dec.NumChans, dec.BitDepth)
	}
	want := []int{0, 1, -2, 32767}
	for i, v := range want {
		if buf.Data[i] != v {
			t.Fatalf("sample %d: expected %d, got %d", i, v, buf.Data[i])
		}
	}
}
