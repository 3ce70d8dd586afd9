package mastercache

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// magic identifies the newer .mfc header (magic + version + legacy body).
// Files without this prefix are read as the legacy headerless format,
// which is still accepted on load.
var magic = [4]byte{'M', 'F', 'C', '1'}

const currentVersion uint32 = 1

// defaultCoeffs bounds the sanity check on num_coefficients: a file
// claiming more than 2x this is treated as corrupt rather than trusted.
const defaultCoeffs = 13

// maxSaneCoeffs caps num_coefficients at twice the default coefficient
// count; anything above it is treated as corrupt.
const maxSaneCoeffs = 2 * defaultCoeffs

// Encode serializes vectors (all of equal length) to the newer .mfc format:
// magic, version, then the legacy little-endian body.
func Encode(vectors [][]float64) ([]byte, error) {
	body, err := encodeLegacyBody(vectors)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Write(magic[:])
	var versionBytes [4]byte
	binary.LittleEndian.PutUint32(versionBytes[:], currentVersion)
	buf.Write(versionBytes[:])
	buf.Write(body)
	return buf.Bytes(), nil
}

func encodeLegacyBody(vectors [][]float64) ([]byte, error) {
	numFrames := uint32(len(vectors))
	var numCoeffs uint32
	if numFrames > 0 {
		numCoeffs = uint32(len(vectors[0]))
	}
	for _, v := range vectors {
		if uint32(len(v)) != numCoeffs {
			return nil, fmt.Errorf("mastercache: ragged feature matrix, frame has %d coefficients, want %d", len(v), numCoeffs)
		}
	}

	buf := make([]byte, 8+4*int(numFrames)*int(numCoeffs))
	binary.LittleEndian.PutUint32(buf[0:4], numFrames)
	binary.LittleEndian.PutUint32(buf[4:8], numCoeffs)

	offset := 8
	for _, v := range vectors {
		for _, c := range v {
			binary.LittleEndian.PutUint32(buf[offset:offset+4], float32Bits(c))
			offset += 4
		}
	}
	return buf, nil
}

// Decode parses either the newer magic+version format or the legacy
// headerless format, returning an error for anything that fails the
// validity checks (bad header, truncated, zero counts, coefficient count
// out of sanity bounds).
func Decode(data []byte) ([][]float64, error) {
	if len(data) >= 8 && bytes.Equal(data[0:4], magic[:]) {
		data = data[8:] // skip magic + version; version is currently unused
	}
	return decodeLegacyBody(data)
}

func decodeLegacyBody(data []byte) ([][]float64, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("mastercache: truncated header")
	}
	numFrames := binary.LittleEndian.Uint32(data[0:4])
	numCoeffs := binary.LittleEndian.Uint32(data[4:8])

	if numFrames == 0 || numCoeffs == 0 {
		return nil, fmt.Errorf("mastercache: zero frame or coefficient count")
	}
	if numCoeffs > maxSaneCoeffs {
		return nil, fmt.Errorf("mastercache: coefficient count %d exceeds sanity bound", numCoeffs)
	}

	want := 8 + 4*int(numFrames)*int(numCoeffs)
	if len(data) < want {
		return nil, fmt.Errorf("mastercache: truncated body, want %d bytes, have %d", want, len(data))
	}

	vectors := make([][]float64, numFrames)
	offset := 8
	for i := range vectors {
		vec := make([]float64, numCoeffs)
		for j := range vec {
			bits := binary.LittleEndian.Uint32(data[offset : offset+4])
			vec[j] = float64(bitsToFloat32(bits))
			offset += 4
		}
		vectors[i] = vec
	}
	return vectors, nil
}
