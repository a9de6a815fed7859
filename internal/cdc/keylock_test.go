package cdc

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyLocksSerializesSameAggregate(t *testing.T) {
	locks := NewKeyLocks()

	var (
		wg      sync.WaitGroup
		overlap int32
		active  int32
	)

	for i := 0; i < 20; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			unlock := locks.Lock("agg-1")
			defer unlock()

			if atomic.AddInt32(&active, 1) > 1 {
				atomic.AddInt32(&overlap, 1)
			}

			time.Sleep(time.Millisecond)

			atomic.AddInt32(&active, -1)
		}()
	}

	wg.Wait()

	assert.Zero(t, overlap)
}

func TestKeyLocksAllowsDistinctAggregatesConcurrently(t *testing.T) {
	locks := NewKeyLocks()

	unlockA := locks.Lock("agg-a")
	defer unlockA()

	done := make(chan struct{})

	go func() {
		unlockB := locks.Lock("agg-b")
		defer unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("distinct aggregate locks should not block each other")
	}
}
