package debounce

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type flushRecorder struct {
	mu      sync.Mutex
	flushes map[string][][]int
	done    chan string
}

func newRecorder() *flushRecorder {
	return &flushRecorder{
		flushes: make(map[string][][]int),
		done:    make(chan string, 16),
	}
}

func (r *flushRecorder) onFlush(key string, items []int) {
	r.mu.Lock()
	r.flushes[key] = append(r.flushes[key], items)
	r.mu.Unlock()
	r.done <- key
}

func (r *flushRecorder) get(key string) [][]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushes[key]
}

func TestAggregator_CoalescesBurst(t *testing.T) {
	rec := newRecorder()
	a := New(Options[int]{Debounce: 20 * time.Millisecond, OnFlush: rec.onFlush})
	defer a.Stop()

	for i := 0; i < 5; i++ {
		a.Add("presets/a.yaml", i)
	}

	select {
	case key := <-rec.done:
		assert.Equal(t, "presets/a.yaml", key)
	case <-time.After(2 * time.Second):
		t.Fatal("flush did not happen")
	}

	flushes := rec.get("presets/a.yaml")
	require.Len(t, flushes, 1)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, flushes[0])
	assert.Equal(t, 0, a.Pending())
}

func TestAggregator_KeysFlushIndependently(t *testing.T) {
	rec := newRecorder()
	a := New(Options[int]{Debounce: 10 * time.Millisecond, OnFlush: rec.onFlush})
	defer a.Stop()

	a.Add("a", 1)
	a.Add("b", 2)

	seen := map[string]bool{}
	for len(seen) < 2 {
		select {
		case key := <-rec.done:
			seen[key] = true
		case <-time.After(2 * time.Second):
			t.Fatal("flush did not happen")
		}
	}

	assert.Equal(t, [][]int{{1}}, rec.get("a"))
	assert.Equal(t, [][]int{{2}}, rec.get("b"))
}

func TestAggregator_StopCancelsPending(t *testing.T) {
	rec := newRecorder()
	a := New(Options[int]{Debounce: time.Hour, OnFlush: rec.onFlush})

	a.Add("a", 1)
	require.Equal(t, 1, a.Pending())

	a.Stop()
	assert.Equal(t, 0, a.Pending())

	a.Add("a", 2)
	assert.Equal(t, 0, a.Pending())
	assert.Empty(t, rec.get("a"))
}

func TestAggregator_IgnoresEmptyKey(t *testing.T) {
	a := New(Options[int]{Debounce: time.Hour})
	defer a.Stop()

	a.Add("", 1)
	assert.Equal(t, 0, a.Pending())
}
