package message

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator hands out request ids that are unique for the process lifetime.
type IDGenerator interface {
	Next() any
}

// UUIDGenerator issues random v4 UUID strings.
type UUIDGenerator struct{}

func (UUIDGenerator) Next() any {
	return uuid.NewString()
}

// SequenceGenerator issues 1, 2, 3, ... It never wraps in practice.
type SequenceGenerator struct {
	seq atomic.Uint64
}

func (g *SequenceGenerator) Next() any {
	return g.seq.Add(1)
}

// Key canonicalises an id into a map key. The id is decoded and re-encoded
// without HTML escaping, so "a<b" and "a\u003cb" share a key while the string
// "1" and the number 1 stay distinct.
func Key(id any) string {
	var raw []byte
	switch v := id.(type) {
	case nil:
		return "null"
	case json.RawMessage:
		raw = v
	default:
		b, err := json.Marshal(id)
		if err != nil {
			return fmt.Sprintf("%v", id)
		}
		raw = b
	}
	return canonical(raw)
}

func canonical(raw []byte) string {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return string(bytes.TrimSpace(raw))
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return string(bytes.TrimSpace(raw))
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
