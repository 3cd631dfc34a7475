package keylock

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockSerializesSameKey(t *testing.T) {
	m := New()
	key := uuid.New()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock(key)
			defer unlock()
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, counter)
	assert.Equal(t, 0, m.Len(), "entries are released when unused")
}

func TestDifferentKeysDoNotBlock(t *testing.T) {
	m := New()
	unlockA := m.Lock(uuid.New())
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := m.Lock(uuid.New())
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
}

func TestReadersShareWritersExclude(t *testing.T) {
	m := New()
	key := uuid.New()

	r1 := m.RLock(key)
	r2 := m.RLock(key)
	require.Equal(t, 1, m.Len())

	acquired := make(chan struct{})
	go func() {
		unlock := m.Lock(key)
		close(acquired)
		unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("writer acquired while readers held the key")
	case <-time.After(20 * time.Millisecond):
	}

	r1()
	r2()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("writer never acquired")
	}
}
