package sound

import "math"

// Biquad is a second-order IIR filter in transposed direct form II.
type Biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
	z1, z2     float64
}

// NewHighPass returns a high-pass biquad with cutoff hz and quality q at
// sampleRate, using the RBJ audio-EQ cookbook coefficients.
func NewHighPass(hz, q, sampleRate float64) *Biquad {
	w0 := 2 * math.Pi * hz / sampleRate
	cosW0 := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * q)

	a0 := 1 + alpha
	return &Biquad{
		b0: (1 + cosW0) / 2 / a0,
		b1: -(1 + cosW0) / a0,
		b2: (1 + cosW0) / 2 / a0,
		a1: -2 * cosW0 / a0,
		a2: (1 - alpha) / a0,
	}
}

// Process filters buf in place.
func (f *Biquad) Process(buf []float32) {
	for i, s := range buf {
		x := float64(s)
		y := f.b0*x + f.z1
		f.z1 = f.b1*x - f.a1*y + f.z2
		f.z2 = f.b2*x - f.a2*y
		buf[i] = float32(y)
	}
}

// Reset clears the filter state.
func (f *Biquad) Reset() {
	f.z1, f.z2 = 0, 0
}
