package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hajimehoshi/go-mp3"
)

// FileStreamer captures from an MP3 file instead of a microphone. The file
// is decoded, downmixed to mono, resampled to the configured rate and paced
// at real time, one block per buffer period.
type FileStreamer struct {
	path   string
	config Config

	file *os.File
	dec  stereoPCM
	raw  []byte

	step float64   // source samples per output sample
	src  []float32 // decoded mono samples not yet consumed
	pos  float64   // fractional read position in src
	eof  bool
}

var _ AudioStreamer = (*FileStreamer)(nil)

// stereoPCM is a source of 16-bit little-endian stereo PCM, such as
// *mp3.Decoder.
type stereoPCM interface {
	io.Reader
	SampleRate() int
}

func NewFileStreamer(path string, config Config) *FileStreamer {
	return &FileStreamer{path: path, config: config}
}

// Initialize is a no-op; a file needs no host audio context.
func (f *FileStreamer) Initialize() error { return nil }

// Terminate is a no-op.
func (f *FileStreamer) Terminate() error { return nil }

func (f *FileStreamer) Open() error {
	file, err := os.Open(f.path)
	if err != nil {
		return err
	}
	dec, err := mp3.NewDecoder(file)
	if err != nil {
		file.Close()
		return fmt.Errorf("decode %s: %w", f.path, err)
	}
	if err := f.reset(dec); err != nil {
		file.Close()
		return fmt.Errorf("decode %s: %w", f.path, err)
	}
	f.file = file
	return nil
}

func (f *FileStreamer) reset(dec stereoPCM) error {
	if dec.SampleRate() <= 0 || f.config.SampleRate <= 0 {
		return errors.New("invalid sample rate")
	}
	f.dec = dec
	f.raw = make([]byte, 4096)
	f.step = float64(dec.SampleRate()) / f.config.SampleRate
	f.src = f.src[:0]
	f.pos = 0
	f.eof = false
	return nil
}

func (f *FileStreamer) Close() error {
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	f.dec = nil
	return err
}

func (f *FileStreamer) StartCapture(ctx context.Context, enc *Encoder) error {
	if f.dec == nil {
		return errors.New("stream not opened")
	}

	block := make([]float32, f.config.FramesPerBuffer)
	period := time.Duration(float64(time.Second) * float64(len(block)) / f.config.SampleRate)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := f.nextBlock(block)
			if n > 0 {
				clear(block[n:])
				enc.Push(block)
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
		}
	}
}

// nextBlock fills block with resampled mono samples and returns how many
// were written. io.EOF is returned once the source is exhausted.
func (f *FileStreamer) nextBlock(block []float32) (int, error) {
	for i := range block {
		for int(f.pos)+1 >= len(f.src) {
			if f.eof {
				return i, io.EOF
			}
			if err := f.fill(); err != nil {
				return i, err
			}
		}
		idx := int(f.pos)
		frac := float32(f.pos - float64(idx))
		block[i] = f.src[idx]*(1-frac) + f.src[idx+1]*frac
		f.pos += f.step
	}
	return len(block), nil
}

// fill decodes the next chunk of 16-bit stereo PCM into mono floats.
func (f *FileStreamer) fill() error {
	consumed := int(f.pos)
	if consumed > len(f.src) {
		consumed = len(f.src)
	}
	f.src = append(f.src[:0], f.src[consumed:]...)
	f.pos -= float64(consumed)

	n, err := io.ReadFull(f.dec, f.raw)
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		f.eof = true
	case err != nil:
		return err
	}

	// Average L+R per 4-byte stereo frame in int32 so the sum cannot wrap.
	n -= n % 4
	for i := 0; i < n; i += 4 {
		l := int32(int16(binary.LittleEndian.Uint16(f.raw[i:])))
		r := int32(int16(binary.LittleEndian.Uint16(f.raw[i+2:])))
		f.src = append(f.src, float32((l+r)/2)/32768)
	}
	return nil
}
