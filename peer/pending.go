package peer

import (
	"cmp"
	"time"

	"jsonrpc-peer/message"

	rb "github.com/glycerine/rbtree"
)

// pending is one correlation entry: an issued request waiting for its response.
type pending struct {
	key      string
	msg      *message.Request
	callback Callback
	deadline time.Time
	seq      uint64
}

// table maps request ids to pending entries and keeps a deadline-ordered index
// so a sweep only visits expired entries. Not goroutine safe; the Peer holds
// its mutex around every call.
type table struct {
	entries    map[string]*pending
	byDeadline *rb.Tree
	seq        uint64
}

// order by deadline, then insertion, so equal deadlines never collide
func newTable() *table {
	return &table{
		entries: make(map[string]*pending),
		byDeadline: rb.NewTree(func(a, b rb.Item) int {
			av := a.(*pending)
			bv := b.(*pending)
			if av == bv {
				return 0
			}
			if c := av.deadline.Compare(bv.deadline); c != 0 {
				return c
			}
			return cmp.Compare(av.seq, bv.seq)
		}),
	}
}

func (t *table) len() int {
	return len(t.entries)
}

func (t *table) has(key string) bool {
	_, ok := t.entries[key]
	return ok
}

// insert reports false if key is already pending.
func (t *table) insert(e *pending) bool {
	if _, ok := t.entries[e.key]; ok {
		return false
	}
	t.seq++
	e.seq = t.seq
	t.entries[e.key] = e
	t.byDeadline.Insert(e)
	return true
}

// take removes and returns the entry for key.
func (t *table) take(key string) (*pending, bool) {
	e, ok := t.entries[key]
	if !ok {
		return nil, false
	}
	delete(t.entries, key)
	t.byDeadline.DeleteWithKey(e)
	return e, true
}

// expired removes and returns, earliest first, every entry with
// now >= deadline.
func (t *table) expired(now time.Time) []*pending {
	var out []*pending
	for t.byDeadline.Len() > 0 {
		it := t.byDeadline.Min()
		e := it.Item().(*pending)
		if now.Before(e.deadline) {
			break
		}
		t.byDeadline.DeleteWithIterator(it)
		delete(t.entries, e.key)
		out = append(out, e)
	}
	return out
}

// drain removes and returns every entry, earliest deadline first.
func (t *table) drain() []*pending {
	out := make([]*pending, 0, len(t.entries))
	for it := t.byDeadline.Min(); !it.Limit(); it = it.Next() {
		out = append(out, it.Item().(*pending))
	}
	t.byDeadline.DeleteAll()
	t.entries = make(map[string]*pending)
	return out
}
