package syncgroup

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSyncGroupRunsAll(t *testing.T) {
	var n int32
	sg := NewSyncGroup()
	for i := 0; i < 5; i++ {
		sg.Add(func() error {
			atomic.AddInt32(&n, 1)
			return nil
		})
	}
	sg.Add(nil)
	sg.Run()
	assert.NoError(t, sg.Wait())
	assert.Equal(t, int32(5), atomic.LoadInt32(&n))

	select {
	case <-sg.Failed():
		t.Fatal("no goroutine failed")
	default:
	}
}

func TestSyncGroupFirstError(t *testing.T) {
	boom := errors.New("boom")
	sg := NewSyncGroup()
	sg.Add(func() error { return boom })
	sg.Add(func() error {
		time.Sleep(10 * time.Millisecond)
		return errors.New("late")
	})
	sg.Run()

	select {
	case <-sg.Failed():
	case <-time.After(time.Second):
		t.Fatal("Failed not closed")
	}
	assert.Equal(t, boom, sg.Wait())
}
