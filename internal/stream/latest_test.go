package stream

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatest_ReplaysCurrentToNewSubscribers(t *testing.T) {
	l := NewLatest("idle")
	l.Publish("validating")

	ch, cancel := l.Subscribe()
	defer cancel()

	assert.Equal(t, "validating", <-ch)
	assert.Equal(t, "validating", l.Current())
}

func TestLatest_SlowSubscriberSeesOnlyNewest(t *testing.T) {
	l := NewLatest(0)
	ch, cancel := l.Subscribe()
	defer cancel()

	for i := 1; i <= 10; i++ {
		l.Publish(i)
	}

	select {
	case v := <-ch:
		assert.Equal(t, 10, v)
	case <-time.After(time.Second):
		t.Fatal("no value delivered")
	}

	select {
	case v := <-ch:
		t.Fatalf("unexpected extra value %d", v)
	default:
	}
}

func TestLatest_CancelClosesChannel(t *testing.T) {
	l := NewLatest(1)
	ch, cancel := l.Subscribe()
	assert.Equal(t, 1, l.Subscribers())

	<-ch
	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, l.Subscribers())

	assert.NotPanics(t, func() { l.Publish(2) })
}

func TestLatest_Close(t *testing.T) {
	l := NewLatest("a")
	ch, cancel := l.Subscribe()
	defer cancel()
	<-ch

	l.Close()
	_, ok := <-ch
	assert.False(t, ok)

	l.Publish("b")
	assert.Equal(t, "a", l.Current())

	late, lateCancel := l.Subscribe()
	defer lateCancel()
	v, ok := <-late
	require.True(t, ok)
	assert.Equal(t, "a", v)
	_, ok = <-late
	assert.False(t, ok)
}

func TestLatest_ConcurrentPublishers(t *testing.T) {
	l := NewLatest(0)
	ch, cancel := l.Subscribe()
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				l.Publish(base*1000 + j)
			}
		}(i)
	}
	wg.Wait()

	last := l.Current()
	got := <-ch
	assert.Equal(t, last, got)
}
