package memory

import (
	"encoding/binary"
	"math"
)

// encodeEmbedding serializes a float32 vector to a little-endian byte
// blob for SQLite BLOB storage.
func encodeEmbedding(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeEmbedding is the inverse of encodeEmbedding.
func decodeEmbedding(buf []byte) []float32 {
	n := len(buf) / 4
	vec := make([]float32, n)
	for i := 0; i < n; i++ {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}

// encodeStrings joins a string slice with a separator unlikely to
// appear in tool names or task-pattern text.
func encodeStrings(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += "\x1f"
		}
		out += s
	}
	return out
}

func decodeStrings(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\x1f' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
