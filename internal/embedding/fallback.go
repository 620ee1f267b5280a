package embedding

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// fallbackVector expands seed into a unit vector of length Dim. The same seed
// always yields bit-identical output, which keeps repeated runs over unchanged
// data idempotent when the real extractors are unreachable.
func fallbackVector(seed string) []float32 {
	vec := make([]float32, Dim)

	var counter [4]byte
	buf := make([]byte, 0, len(seed)+4)
	for i := 0; i < Dim; {
		binary.BigEndian.PutUint32(counter[:], uint32(i))
		buf = append(buf[:0], seed...)
		buf = append(buf, counter[:]...)
		sum := sha256.Sum256(buf)
		for j := 0; j < len(sum) && i < Dim; j++ {
			vec[i] = float32(sum[j])/255.0 - 0.5
			i++
		}
	}

	normalize(vec)
	return vec
}

// normalize scales vec to unit Euclidean norm in place. A zero vector is left
// untouched.
func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
}
