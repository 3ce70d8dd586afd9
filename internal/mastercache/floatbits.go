package mastercache

import "math"

func float32Bits(v float64) uint32 {
	return math.Float32bits(float32(v))
}

func bitsToFloat32(bits uint32) float32 {
	return math.Float32frombits(bits)
}
