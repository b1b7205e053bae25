package device

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/opd-ai/fxloop/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder doubles every sample and remembers the block lengths it saw.
type recorder struct {
	mu      sync.Mutex
	lengths []int
}

func (r *recorder) ProcessSamples(samples []int16) {
	r.mu.Lock()
	r.lengths = append(r.lengths, len(samples))
	r.mu.Unlock()
	for i := range samples {
		samples[i] *= 2
	}
}

func (r *recorder) seen() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.lengths...)
}

func writeWAV(t *testing.T, rate, bitDepth, channels int, samples []int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	enc := wav.NewEncoder(f, rate, bitDepth, channels, wavPCM)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Data:           samples,
		Format:         &goaudio.Format{SampleRate: rate, NumChannels: channels},
		SourceBitDepth: bitDepth,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
	return path
}

func readWAV(t *testing.T, path string) *goaudio.IntBuffer {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	buf, err := wav.NewDecoder(f).FullPCMBuffer()
	require.NoError(t, err)
	return buf
}

func waitDone(t *testing.T, d *FileDevice) {
	t.Helper()
	select {
	case <-d.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("file device did not finish")
	}
}

func TestFileDevice_ProcessesWholeFile(t *testing.T) {
	input := []int{1, -1, 2, -2, 3, -3, 4, -4, 5, -5}
	inPath := writeWAV(t, 8000, 16, 2, input)
	outPath := filepath.Join(t.TempDir(), "output.wav")

	rec := &recorder{}
	dev, err := OpenFile(rec, FileConfig{
		InputPath:  inPath,
		OutputPath: outPath,
		BlockSize:  2,
		SampleRate: 8000,
		Channels:   2,
	})
	require.NoError(t, err)
	assert.Equal(t, 8000, dev.SampleRate())
	assert.Equal(t, 2, dev.Channels())

	require.NoError(t, dev.Start())
	assert.Error(t, dev.Start(), "second start")
	waitDone(t, dev)
	require.NoError(t, dev.Err())
	require.NoError(t, dev.Close())
	require.NoError(t, dev.Close())

	assert.Equal(t, []int{4, 4, 2}, rec.seen(), "last block carries the remainder")
	assert.Equal(t, uint64(3), dev.Blocks())

	out := readWAV(t, outPath)
	assert.Equal(t, []int{2, -2, 4, -4, 6, -6, 8, -8, 10, -10}, out.Data)
	assert.Equal(t, 2, out.Format.NumChannels)
	assert.Equal(t, 8000, out.Format.SampleRate)
}

func TestFileDevice_DrivesProcessor(t *testing.T) {
	input := make([]int, 64)
	inPath := writeWAV(t, 8000, 16, 1, input)

	p, err := audio.NewProcessor(audio.ProcessorConfig{SampleRate: 8000, Channels: 1, BlockSize: 16}, nil)
	require.NoError(t, err)

	dev, err := OpenFile(p, FileConfig{InputPath: inPath, BlockSize: 16})
	require.NoError(t, err)
	require.NoError(t, dev.Start())
	waitDone(t, dev)
	require.NoError(t, dev.Close())

	assert.Equal(t, uint64(4), p.Stats().Blocks())
	assert.Zero(t, p.Stats().ShortBlocks())
}

func TestOpenFile_Rejects(t *testing.T) {
	valid := writeWAV(t, 8000, 16, 2, []int{0, 0})
	eightBit := writeWAV(t, 8000, 8, 1, []int{0, 0})

	notWAV := filepath.Join(t.TempDir(), "noise.wav")
	require.NoError(t, os.WriteFile(notWAV, []byte("definitely not RIFF"), 0o600))

	tests := []struct {
		name string
		proc BlockProcessor
		cfg  FileConfig
	}{
		{name: "missing file", proc: &recorder{}, cfg: FileConfig{InputPath: filepath.Join(t.TempDir(), "nope.wav"), BlockSize: 4}},
		{name: "not a wav", proc: &recorder{}, cfg: FileConfig{InputPath: notWAV, BlockSize: 4}},
		{name: "8-bit input", proc: &recorder{}, cfg: FileConfig{InputPath: eightBit, BlockSize: 4}},
		{name: "channel mismatch", proc: &recorder{}, cfg: FileConfig{InputPath: valid, BlockSize: 4, Channels: 1}},
		{name: "negative rate", proc: &recorder{}, cfg: FileConfig{InputPath: valid, BlockSize: 4, SampleRate: -1}},
		{name: "zero block size", proc: &recorder{}, cfg: FileConfig{InputPath: valid}},
		{name: "nil processor", cfg: FileConfig{InputPath: valid, BlockSize: 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := OpenFile(tt.proc, tt.cfg)
			assert.ErrorIs(t, err, audio.ErrDeviceInit)
		})
	}
}

func TestFileDevice_ResamplesToConfiguredRate(t *testing.T) {
	input := []int{0, 1000, 0, 1000, 2000, 3000, 4000, 5000}
	inPath := writeWAV(t, 8000, 16, 2, input)
	outPath := filepath.Join(t.TempDir(), "output.wav")

	var got []int16
	var mu sync.Mutex
	capture := processorFunc(func(samples []int16) {
		mu.Lock()
		got = append(got, samples...)
		mu.Unlock()
	})

	dev, err := OpenFile(capture, FileConfig{
		InputPath:  inPath,
		OutputPath: outPath,
		BlockSize:  4,
		SampleRate: 16000,
	})
	require.NoError(t, err)
	assert.Equal(t, 16000, dev.SampleRate())
	assert.Equal(t, 8000, dev.InputSampleRate())

	require.NoError(t, dev.Start())
	waitDone(t, dev)
	require.NoError(t, dev.Close())

	// Channel 0 ramps 0, 0, 2000, 4000 and channel 1 ramps 1000, 1000,
	// 3000, 5000, each interpolated at half-frame steps. Interpolation needs
	// a following frame, so the final input frame is not emitted.
	expected := []int16{
		0, 1000, 0, 1000, 0, 1000, 1000, 2000,
		2000, 3000, 3000, 4000,
	}
	mu.Lock()
	assert.Equal(t, expected, got)
	mu.Unlock()

	out := readWAV(t, outPath)
	assert.Equal(t, 16000, out.Format.SampleRate)
	assert.Len(t, out.Data, len(expected))
}

type processorFunc func([]int16)

func (f processorFunc) ProcessSamples(samples []int16) { f(samples) }

func TestFileDevice_StopWhilePaced(t *testing.T) {
	// One second of audio delivered in 10ms blocks.
	inPath := writeWAV(t, 8000, 16, 1, make([]int, 8000))

	rec := &recorder{}
	dev, err := OpenFile(rec, FileConfig{InputPath: inPath, BlockSize: 80, Paced: true})
	require.NoError(t, err)

	require.NoError(t, dev.Start())
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, dev.Stop())

	select {
	case <-dev.Done():
	default:
		t.Fatal("Stop returned before the delivery goroutine exited")
	}
	delivered := len(rec.seen())
	assert.Greater(t, delivered, 0)
	assert.Less(t, delivered, 100)

	require.NoError(t, dev.Close())
	assert.Error(t, dev.Start(), "start after close")
	assert.Equal(t, delivered, len(rec.seen()))
}
