package medeye

import (
	"encoding/binary"

	"github.com/x448/float16"
)

var f16LookupTable [65536]float32

func init() {
	// precompute float16 lookup table for faster conversion to float32
	for i := range f16LookupTable {
		f16 := float16.Frombits(uint16(i))
		f16LookupTable[i] = f16.Float32()
	}
}

// Float16ToFloat32 converts a float16 output vector, as produced by engines
// that return half precision buffers, into the float32 vector consumed by
// the detection decoder
func Float16ToFloat32(bits []uint16) []float32 {

	out := make([]float32, len(bits))

	for i, b := range bits {
		out[i] = f16LookupTable[b]
	}

	return out
}

// Float16BytesToFloat32 converts a raw little-endian float16 byte buffer
// into a float32 vector.  Buffers with a trailing odd byte have the partial
// value discarded.
func Float16BytesToFloat32(buf []byte) []float32 {

	n := len(buf) / 2
	out := make([]float32, n)

	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint16(buf[i*2:])
		out[i] = f16LookupTable[bits]
	}

	return out
}
