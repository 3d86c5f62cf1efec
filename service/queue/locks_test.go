package queue

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/sasha-s/go-deadlock"
	"github.com/stretchr/testify/assert"
)

func TestMain(m *testing.M) {
	ConfigureDeadlockDetection(true, 5*time.Second)
	os.Exit(m.Run())
}

func TestConfigureDeadlockDetection(t *testing.T) {
	assert.False(t, ConfigureDeadlockDetection(false, time.Second), "options are applied once per process")
	assert.False(t, deadlock.Opts.Disable)
	assert.Equal(t, 5*time.Second, deadlock.Opts.DeadlockTimeout)
}

func TestLocks(t *testing.T) {
	locks := NewLocks()

	locks.Lock("wf-1")
	locks.Lock("wf-2")
	assert.Equal(t, 2, locks.Len())
	locks.Unlock("wf-2")

	acquired := make(chan struct{})
	go func() {
		locks.Lock("wf-1")
		close(acquired)
		locks.Unlock("wf-1")
	}()
	select {
	case <-acquired:
		t.Fatal("lock acquired while held")
	case <-time.After(20 * time.Millisecond):
	}
	locks.Forget("wf-1")
	assert.Equal(t, 2, locks.Len())
	locks.Unlock("wf-1")
	<-acquired

	assert.Eventually(t, func() bool { return locks.Len() == 1 }, time.Second, 5*time.Millisecond)
	locks.Forget("wf-2")
	assert.Equal(t, 0, locks.Len())
	locks.Unlock("unknown")
}

func TestLocks_Concurrent(t *testing.T) {
	locks := NewLocks()
	counter := map[string]int{}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := []string{"a", "b"}[i%2]
			locks.Lock(id)
			counter[id]++
			locks.Unlock(id)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 25, counter["a"])
	assert.Equal(t, 25, counter["b"])
}
