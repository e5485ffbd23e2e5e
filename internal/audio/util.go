package audio

import (
	"encoding/binary"
	"math"
	"slices"
)

// AppendFloat32LE appends src to dst as little-endian float32 bytes.
func AppendFloat32LE(dst []byte, src []float32) []byte {
	dst = slices.Grow(dst, len(src)*4)
	for _, s := range src {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(s))
	}
	return dst
}

// DecodeFloat32LE decodes little-endian float32 bytes into dst. Trailing
// bytes that do not form a whole sample are ignored.
func DecodeFloat32LE(dst []float32, src []byte) []float32 {
	n := len(src) / 4
	dst = slices.Grow(dst, n)
	for i := 0; i < n; i++ {
		dst = append(dst, math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:])))
	}
	return dst
}
