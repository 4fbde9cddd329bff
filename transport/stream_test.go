package transport

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	data []byte
	ends int
	err  error
	done chan struct{}
}

func newRecorder() *recorder {
	return &recorder{done: make(chan struct{})}
}

func (r *recorder) OnData(chunk []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = append(r.data, chunk...)
}

func (r *recorder) OnEnd(err error) {
	r.mu.Lock()
	r.ends++
	r.err = err
	r.mu.Unlock()
	close(r.done)
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("OnEnd not called")
	}
}

func TestStreamDataThenEnd(t *testing.T) {
	a, b := Pipe()
	rec := newRecorder()
	go b.Run(rec)

	require.NoError(t, a.Write([]byte(`{"method":"t",`)))
	require.NoError(t, a.Write([]byte(`"params":[],"id":1}`)))
	require.NoError(t, a.Destroy())

	rec.wait(t)
	assert.Equal(t, `{"method":"t","params":[],"id":1}`, string(rec.data))
	assert.Equal(t, 1, rec.ends)
	assert.NoError(t, rec.err)
}

func TestStreamLocalDestroyEndsRun(t *testing.T) {
	_, b := Pipe()
	rec := newRecorder()
	go b.Run(rec)

	require.NoError(t, b.Destroy())
	rec.wait(t)
	assert.NoError(t, rec.err)
	assert.True(t, b.Closed())
}

func TestStreamWriteAfterDestroy(t *testing.T) {
	a, _ := Pipe()
	require.NoError(t, a.Destroy())
	assert.NoError(t, a.Destroy())
	assert.ErrorIs(t, a.Write([]byte("x")), ErrClosed)
}

func TestStreamConcurrentWritesDoNotInterleave(t *testing.T) {
	a, b := Pipe()
	rec := newRecorder()
	go b.Run(rec)

	frame := []byte(`{"method":"x","params":[],"id":null}`)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, a.Write(frame))
		}()
	}
	wg.Wait()
	require.NoError(t, a.Destroy())
	rec.wait(t)

	assert.Len(t, rec.data, 20*len(frame))
	for i := 0; i < 20; i++ {
		assert.Equal(t, string(frame), string(rec.data[i*len(frame):(i+1)*len(frame)]))
	}
}
