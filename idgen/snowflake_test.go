package idgen

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repokit/errors"
)

func TestNew_NodeRange(t *testing.T) {
	_, err := New(-1)
	assert.True(t, errors.IsInvalidArgument(err))
	_, err = New(MaxNode + 1)
	assert.Equal(t, "node", errors.ParamOf(err))

	_, err = New(MaxNode)
	assert.NoError(t, err)
}

func TestNext_MonotonicAndParsable(t *testing.T) {
	g, err := New(7)
	require.NoError(t, err)

	prev := int64(0)
	for i := 0; i < 10000; i++ {
		id, err := g.Next()
		require.NoError(t, err)
		require.Greater(t, id, prev)
		prev = id
	}
	p := Parse(prev)
	assert.Equal(t, int64(7), p.Node)
	assert.WithinDuration(t, time.Now(), p.Time, time.Minute)
}

func TestNext_SequenceWithinMillisecond(t *testing.T) {
	g, err := New(1)
	require.NoError(t, err)
	fixed := epoch + 1000
	g.now = func() int64 { return fixed }

	a := g.MustNext()
	b := g.MustNext()
	assert.Equal(t, int64(0), Parse(a).Sequence)
	assert.Equal(t, int64(1), Parse(b).Sequence)
	assert.Equal(t, Parse(a).Time, Parse(b).Time)
}

func TestNext_ClockBackwards(t *testing.T) {
	g, err := New(1)
	require.NoError(t, err)
	ts := epoch + 5000
	g.now = func() int64 { return ts }
	g.MustNext()

	ts -= 10
	_, err = g.Next()
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeInternal))
}

func TestNext_Concurrent(t *testing.T) {
	g, err := New(3)
	require.NoError(t, err)

	var (
		mu   sync.Mutex
		seen = make(map[int64]bool)
		wg   sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				id := g.MustNext()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 4000)
}
