package audio

import "encoding/binary"

// CaptureSampleRate is the nominal rate of outbound frames in Hz.
const CaptureSampleRate = 16000

// Frame is one block of signed 16-bit little-endian mono PCM. A frame is
// never modified after it has been posted.
type Frame []byte

// Samples returns the number of PCM16 samples in f.
func (f Frame) Samples() int { return len(f) / 2 }

// Quantize clamps s to [-1, 1] and scales it to int16. Negative values
// scale by 32768 and non-negative by 32767 so both ends of the range are
// reachable without overflow. NaN maps to 0.
func Quantize(s float32) int16 {
	if s != s {
		return 0
	}
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	if s < 0 {
		return int16(s * 32768)
	}
	return int16(s * 32767)
}

// Encode quantizes block into a new frame.
func Encode(block []float32) Frame {
	out := make(Frame, len(block)*2)
	for i, s := range block {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(Quantize(s)))
	}
	return out
}
