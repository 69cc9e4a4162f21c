package awgstream

// Waveform synthesis for the transmit test patterns. Samples are 14-bit DAC
// codes carried in bits 31:18 of a 32-bit transport word; bits 17:0 are
// always zero.

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	// NumSamples is the default frame length, in words.
	NumSamples = 256
	// MaxCount is the largest 14-bit DAC code.
	MaxCount = 0x3FFF
	// SampleShift positions the DAC code within the transport word.
	SampleShift = 18
	// WordBytes is the transmit word size, in bytes.
	WordBytes = 4
)

// InvalidLengthError reports a sample buffer too short to hold a waveform.
// The ramp needs at least 3 samples: the scale divisor is len-2.
type InvalidLengthError struct {
	N int
}

func (e *InvalidLengthError) Error() string {
	return fmt.Sprintf("sample buffer length %d is too short, need at least 3", e.N)
}

// GenerateRamp fills buf in place with one frame of the ramp test pattern:
// DAC codes climbing linearly from 0 to MaxCount over the first len(buf)-1
// samples, with the final sample forced to zero so every frame ends in a
// full-scale drop. A receiver watching for lost bits or reordering keys on
// that discontinuity. For very short buffers the forced zero overlaps the
// ramp region; that asymmetry is intentional.
//
// The same buffer length always yields the identical sequence. Buffers
// shorter than 3 samples are rejected before any element is written.
func GenerateRamp(buf []uint32) error {
	n := len(buf)
	if n < 3 {
		return &InvalidLengthError{N: n}
	}

	// Codes spaced by MaxCount/(n-2), so ramp position i carries i*scale.
	codes := make([]float64, n-1)
	floats.Span(codes, 0, MaxCount)
	for i, c := range codes {
		code := uint32(math.Floor(c + 0.5))
		if code > MaxCount {
			code = MaxCount
		}
		buf[i] = code << SampleShift
	}
	buf[n-1] = 0
	return nil
}

// GenerateTriangle fills buf in place with one frame of a triangle pattern:
// up to full scale at the midpoint, back down to zero. Word packing matches
// GenerateRamp.
func GenerateTriangle(buf []uint32) error {
	n := len(buf)
	if n < 3 {
		return &InvalidLengthError{N: n}
	}

	half := n / 2
	scale := float64(MaxCount) / float64(half)
	for i := range buf {
		pos := i
		if i > half {
			pos = n - i
		}
		code := uint32(math.Floor(float64(pos)*scale + 0.5))
		if code > MaxCount {
			code = MaxCount
		}
		buf[i] = code << SampleShift
	}
	return nil
}

// GenerateSine fills buf in place with one cycle of a sinusoid offset to
// midscale. Word packing matches GenerateRamp.
func GenerateSine(buf []uint32) error {
	n := len(buf)
	if n < 3 {
		return &InvalidLengthError{N: n}
	}

	freq := 2 * math.Pi / float64(n)
	mid := float64(MaxCount) / 2
	for i := range buf {
		code := uint32(math.Floor(mid + mid*math.Sin(freq*float64(i)) + 0.5))
		if code > MaxCount {
			code = MaxCount
		}
		buf[i] = code << SampleShift
	}
	return nil
}
