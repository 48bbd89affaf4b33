package fifo

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/SELKIE-WP7/SELKIELogger/internal/message"
)

func TestInitRefusesReinit(t *testing.T) {
	f := New()
	require.True(t, f.Valid())
	require.False(t, f.Init(), "re-init of a valid queue must fail")
}

func TestPushFailsWhenInvalid(t *testing.T) {
	f := &FIFO{}
	require.False(t, f.Push(message.NewFloat(1, 4, 1.0)))
}

func TestPopEmptyQueue(t *testing.T) {
	f := New()
	m, ok := f.Pop()
	require.False(t, ok)
	require.Nil(t, m)
	require.Equal(t, 0, f.Count())
}

// TestSingleProducerOrder is testable property 4: a single producer's
// pushes come back out in the same order.
func TestSingleProducerOrder(t *testing.T) {
	f := New()
	const n = 1000
	for i := 0; i < n; i++ {
		require.True(t, f.Push(message.NewTimestamp(2, 2, uint32(i))))
	}
	require.Equal(t, n, f.Count())
	for i := 0; i < n; i++ {
		m, ok := f.Pop()
		require.True(t, ok)
		require.Equal(t, uint32(i), m.TimestampVal)
	}
	_, ok := f.Pop()
	require.False(t, ok)
}

// TestMultiProducerNoLoss is testable property 5: total pops equal total
// successful pushes under producer contention.
func TestMultiProducerNoLoss(t *testing.T) {
	f := New()
	const producers = 16
	const perProducer = 500

	var wg sync.WaitGroup
	var pushed int64
	var mu sync.Mutex
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(p int) {
			defer wg.Done()
			local := 0
			for i := 0; i < perProducer; i++ {
				if f.Push(message.NewFloat(uint8(p), 4, float32(i))) {
					local++
				}
			}
			mu.Lock()
			pushed += int64(local)
			mu.Unlock()
		}(p)
	}
	wg.Wait()

	popped := 0
	for {
		_, ok := f.Pop()
		if !ok {
			break
		}
		popped++
	}
	require.EqualValues(t, pushed, popped)
}

func TestDestroyInvalidatesAndReleases(t *testing.T) {
	f := New()
	require.True(t, f.Push(message.NewFloat(1, 4, 1.0)))
	f.Destroy()
	require.False(t, f.Valid())
	require.Equal(t, -1, f.Count())
	require.False(t, f.Push(message.NewFloat(1, 4, 1.0)))
	_, ok := f.Pop()
	require.False(t, ok)
}
