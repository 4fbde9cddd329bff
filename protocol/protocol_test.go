package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func raws(t *testing.T, f Framer, chunks ...string) []string {
	t.Helper()
	var out []string
	for _, c := range chunks {
		vals, err := f.Consume([]byte(c))
		require.NoError(t, err)
		for _, v := range vals {
			out = append(out, string(v))
		}
	}
	return out
}

func TestStreamFramerConcatenated(t *testing.T) {
	f := NewStreamFramer()
	got := raws(t, f, `{"id":1,"result":[],"error":null}{"method":"t","params":[],"id":null}`+"\n"+` {"a":2}`)
	assert.Equal(t, []string{
		`{"id":1,"result":[],"error":null}`,
		`{"method":"t","params":[],"id":null}`,
		`{"a":2}`,
	}, got)
}

func TestStreamFramerSplitAcrossChunks(t *testing.T) {
	f := NewStreamFramer()
	msg := `{"method":"echo","params":["hi"],"id":"x"}`

	var got []string
	for i := 0; i < len(msg); i++ {
		got = append(got, raws(t, f, msg[i:i+1])...)
		if i < len(msg)-1 {
			assert.Empty(t, got, "value emitted early at byte %d", i)
		}
	}
	assert.Equal(t, []string{msg}, got)
}

func TestStreamFramerPartialThenMore(t *testing.T) {
	f := NewStreamFramer()
	got := raws(t, f, `{"a":1}{"b":`, `2}{"c"`, `:3}`)
	assert.Equal(t, []string{`{"a":1}`, `{"b":2}`, `{"c":3}`}, got)
}

func TestStreamFramerMalformed(t *testing.T) {
	f := NewStreamFramer()
	vals, err := f.Consume([]byte(`{"a":1}}garbage`))
	require.Error(t, err)
	assert.Len(t, vals, 1)
	assert.True(t, errors.Is(err, ErrDecode))

	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, int64(7), de.Offset)
}

func TestStreamFramerOversized(t *testing.T) {
	f := NewStreamFramer()
	f.max = 16
	_, err := f.Consume([]byte(`{"a":"` + strings.Repeat("x", 32)))
	assert.ErrorIs(t, err, ErrDecode)
}

func TestStreamFramerStringsHideBrackets(t *testing.T) {
	f := NewStreamFramer()
	msg := `{"method":"t","params":["}]{\\\"[",{"k":"}"}],"id":"a\"b"}`
	require.True(t, json.Valid([]byte(msg)))

	// cut inside strings and right after backslashes
	var got []string
	prev := 0
	for _, cut := range []int{26, 29, 31, 54} {
		got = append(got, raws(t, f, msg[prev:cut])...)
		prev = cut
		assert.Empty(t, got, "value emitted early at byte %d", cut)
	}
	got = append(got, raws(t, f, msg[prev:]+` "top" 12 `)...)
	assert.Equal(t, []string{msg, `"top"`, `12`}, got)
}

func TestStreamFramerLargeValueInChunks(t *testing.T) {
	const chunkSize = 32 * 1024
	msg := []byte(`{"method":"t","params":["` + strings.Repeat("x", 8<<20) + `"],"id":1}`)

	f := NewStreamFramer()
	var vals []json.RawMessage
	start := time.Now()
	for off := 0; off < len(msg); off += chunkSize {
		end := min(off+chunkSize, len(msg))
		out, err := f.Consume(msg[off:end])
		require.NoError(t, err)
		vals = append(vals, out...)
	}
	elapsed := time.Since(start)

	require.Len(t, vals, 1)
	assert.Equal(t, len(msg), len(vals[0]))
	// a rescan of the buffer per chunk takes tens of seconds at this size
	assert.Less(t, elapsed, 3*time.Second)
}

func TestContentLengthRoundTrip(t *testing.T) {
	f := NewContentLengthFramer()
	a := f.Frame([]byte(`{"method":"a","params":[],"id":1}`))
	b := f.Frame([]byte(`{"id":1,"result":true,"error":null}`))
	assert.True(t, strings.HasPrefix(string(a), "Content-Length: 33\r\n\r\n"))

	wire := string(a) + string(b)
	got := raws(t, f, wire[:10], wire[10:40], wire[40:])
	assert.Equal(t, []string{
		`{"method":"a","params":[],"id":1}`,
		`{"id":1,"result":true,"error":null}`,
	}, got)
}

func TestContentLengthExtraHeaders(t *testing.T) {
	f := NewContentLengthFramer()
	got := raws(t, f, "Content-Type: application/vscode-jsonrpc\r\nContent-Length: 4\r\n\r\ntrue")
	assert.Equal(t, []string{"true"}, got)
}

func TestContentLengthHeaderNameIgnoresCase(t *testing.T) {
	f := NewContentLengthFramer()
	got := raws(t, f, "content-length: 2\r\n\r\n[]", "CONTENT-LENGTH:4\r\n\r\nnull", "Content-length :  1 \r\n\r\n7")
	assert.Equal(t, []string{"[]", "null", "7"}, got)
}

func TestContentLengthInvalid(t *testing.T) {
	for _, wire := range []string{
		"Content-Length: abc\r\n\r\n{}",
		"X: 1\r\n\r\n{}",
		"Content-Length: 3\r\n\r\n{x}",
	} {
		_, err := NewContentLengthFramer().Consume([]byte(wire))
		assert.ErrorIs(t, err, ErrDecode, wire)
	}
}

func TestNewFramer(t *testing.T) {
	f, err := NewFramer("")
	require.NoError(t, err)
	assert.IsType(t, &StreamFramer{}, f)

	f, err = NewFramer(FramingContentLength)
	require.NoError(t, err)
	assert.IsType(t, &ContentLengthFramer{}, f)

	_, err = NewFramer("xml")
	assert.Error(t, err)
}
