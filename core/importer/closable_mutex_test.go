package importer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClosableMutexCloseWaitsForHolder(t *testing.T) {
	cm := newClosableMutex()
	require.True(t, cm.Lock())

	closed := make(chan struct{})
	go func() {
		cm.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while the mutex was still held")
	case <-time.After(10 * time.Millisecond):
	}

	cm.Unlock()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close did not return after the holder unlocked")
	}

	require.False(t, cm.Lock(), "Lock must fail once the mutex is closed")
}
