package querycache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"math"
)

// Parameter kinds in the canonical encoding.
const (
	kindString byte = 's'
	kindInt    byte = 'i'
	kindFloat  byte = 'f'
)

// Param is one named query parameter with its canonical byte encoding.
type Param struct {
	Name  string
	Value any
	kind  byte
	enc   []byte
}

// String returns a string parameter, encoded as length-prefixed UTF-8.
func String(name, v string) Param {
	enc := binary.BigEndian.AppendUint32(nil, uint32(len(v)))
	return Param{Name: name, Value: v, kind: kindString, enc: append(enc, v...)}
}

// Int returns an integer parameter, encoded as 8 big-endian bytes.
func Int(name string, v int) Param {
	return Param{Name: name, Value: v, kind: kindInt, enc: binary.BigEndian.AppendUint64(nil, uint64(int64(v)))}
}

// Float returns a float parameter, encoded as its 8-byte IEEE 754 bit
// pattern. Negative zero is folded into zero.
func Float(name string, v float64) Param {
	if v == 0 {
		v = 0
	}
	return Param{Name: name, Value: v, kind: kindFloat, enc: binary.BigEndian.AppendUint64(nil, math.Float64bits(v))}
}

// DeriveKey hashes the operation tag and parameters into a 64-character hex
// key. Every field is length-prefixed, so no two distinct parameter lists
// share an encoding.
func DeriveKey(operation string, params ...Param) string {
	h := sha256.New()
	writeField(h, []byte(operation))
	for _, p := range params {
		h.Write([]byte{p.kind})
		writeField(h, []byte(p.Name))
		h.Write(p.enc)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeField(h hash.Hash, b []byte) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(b)))
	h.Write(n[:])
	h.Write(b)
}

// Query is a cacheable operation invocation.
type Query struct {
	Operation string
	Params    []Param
}

// NewQuery builds a query from an operation tag and its parameters in a
// fixed order.
func NewQuery(operation string, params ...Param) Query {
	return Query{Operation: operation, Params: params}
}

// Key returns the query's cache key.
func (q Query) Key() string {
	return DeriveKey(q.Operation, q.Params...)
}

// Echo returns the parameters as a name-to-value map for storage alongside
// the cached result.
func (q Query) Echo() map[string]any {
	m := make(map[string]any, len(q.Params))
	for _, p := range q.Params {
		m[p.Name] = p.Value
	}
	return m
}
