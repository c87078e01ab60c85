package reclog

import (
	"encoding/binary"
	"math"
)

// Record format: [4-byte key length][key bytes][dimension × 4-byte LE float32].
const recordPrefixSize = 4

// recordSize returns the encoded size of a record with the given key
// length and vector dimension.
func recordSize(keyLen, dimension int) int64 {
	return recordPrefixSize + int64(keyLen) + int64(dimension)*4
}

func encodeRecord(key []byte, vector []float32) []byte {
	buf := make([]byte, recordSize(len(key), len(vector)))
	binary.LittleEndian.PutUint32(buf[0:recordPrefixSize], uint32(len(key)))
	copy(buf[recordPrefixSize:], key)

	off := recordPrefixSize + len(key)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[off+i*4:], math.Float32bits(v))
	}

	return buf
}

func decodeVector(buf []byte, dimension int) []float32 {
	vector := make([]float32, dimension)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vector
}
