package peer

import (
	"testing"
	"time"

	"jsonrpc-peer/message"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(key string, deadline time.Time) *pending {
	return &pending{
		key:      key,
		msg:      &message.Request{Method: key, ID: key},
		deadline: deadline,
	}
}

func TestTableExpiredInDeadlineOrder(t *testing.T) {
	tb := newTable()
	base := time.Unix(0, 0)

	require.True(t, tb.insert(entry("c", base.Add(3*time.Second))))
	require.True(t, tb.insert(entry("a", base.Add(1*time.Second))))
	require.True(t, tb.insert(entry("b1", base.Add(2*time.Second))))
	require.True(t, tb.insert(entry("b2", base.Add(2*time.Second))))
	require.False(t, tb.insert(entry("a", base.Add(9*time.Second))))

	got := tb.expired(base.Add(2 * time.Second))
	var keys []string
	for _, e := range got {
		keys = append(keys, e.key)
	}
	assert.Equal(t, []string{"a", "b1", "b2"}, keys)
	assert.Equal(t, 1, tb.len())
	assert.True(t, tb.has("c"))
	assert.Equal(t, 1, tb.byDeadline.Len())
}

func TestTableTakeKeepsIndexInSync(t *testing.T) {
	tb := newTable()
	base := time.Unix(0, 0)
	tb.insert(entry("x", base))
	tb.insert(entry("y", base))

	e, ok := tb.take("x")
	require.True(t, ok)
	assert.Equal(t, "x", e.key)
	_, ok = tb.take("x")
	assert.False(t, ok)

	assert.Equal(t, 1, tb.byDeadline.Len())
	got := tb.expired(base)
	require.Len(t, got, 1)
	assert.Equal(t, "y", got[0].key)
}

func TestTableDrain(t *testing.T) {
	tb := newTable()
	base := time.Unix(0, 0)
	tb.insert(entry("late", base.Add(time.Hour)))
	tb.insert(entry("soon", base))

	got := tb.drain()
	require.Len(t, got, 2)
	assert.Equal(t, "soon", got[0].key)
	assert.Equal(t, 0, tb.len())
	assert.Equal(t, 0, tb.byDeadline.Len())
	assert.True(t, tb.insert(entry("soon", base)))
}
