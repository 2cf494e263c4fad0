package sqlite

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"time"
)

// marshalJSON serializes v, falling back to "[]" on error so a write never
// fails solely because of an unmarshalable aggregate field.
func marshalJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// unmarshalStrings tolerantly decodes a JSON-valued TEXT column into a
// string slice, substituting an empty slice for malformed or absent data
// rather than failing the read.
func unmarshalStrings(s string) []string {
	if s == "" {
		return []string{}
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return []string{}
	}
	if out == nil {
		out = []string{}
	}
	return out
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime tolerantly parses an RFC3339 timestamp, substituting the zero
// time on failure rather than propagating a parse error for a column that
// should never be malformed under normal operation.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// serializeEmbedding encodes a float64 vector as a little-endian BLOB.
func serializeEmbedding(v []float64) []byte {
	buf := make([]byte, 8*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

// deserializeEmbedding decodes a little-endian BLOB into a float64 vector.
// A BLOB whose length is not a multiple of 8 bytes is treated as absent.
func deserializeEmbedding(b []byte) []float64 {
	if len(b) == 0 || len(b)%8 != 0 {
		return nil
	}
	out := make([]float64, len(b)/8)
	for i := range out {
		bits := binary.LittleEndian.Uint64(b[i*8:])
		out[i] = math.Float64frombits(bits)
	}
	return out
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// sanitizeFTSQuery escapes a raw user query for safe use inside an FTS5
// MATCH expression by wrapping the whole query in one pair of double quotes
// (doubling any embedded quote), which disables FTS5's operator syntax
// (AND/OR/NOT/NEAR/column filters) and prevents a malformed or adversarial
// query string from producing a syntax error or unexpected boolean query.
// The result is a single FTS5 phrase: a multi-word query matches only rows
// containing those tokens consecutively and in order.
func sanitizeFTSQuery(q string) string {
	var out []byte
	out = append(out, '"')
	for _, r := range q {
		if r == '"' {
			out = append(out, '"', '"')
			continue
		}
		out = append(out, string(r)...)
	}
	out = append(out, '"')
	return string(out)
}
