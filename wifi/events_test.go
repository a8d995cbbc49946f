package wifi

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventLoopDeliversInOrder(t *testing.T) {
	l := NewEventLoop(nil)
	defer l.Close()

	got := make(chan Event, 10)
	_, err := l.Subscribe(EventStationDisconnected, func(ev Event) { got <- ev })
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		l.Post(Event{Kind: EventStationDisconnected, Reason: Reason(i)})
	}

	for i := 1; i <= 5; i++ {
		select {
		case ev := <-got:
			assert.Equal(t, Reason(i), ev.Reason)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestEventLoopSerializesHandlers(t *testing.T) {
	l := NewEventLoop(nil)

	var running, overlaps, calls atomic.Int32
	handler := func(Event) {
		if running.Add(1) > 1 {
			overlaps.Add(1)
		}
		time.Sleep(time.Millisecond)
		calls.Add(1)
		running.Add(-1)
	}
	_, err := l.Subscribe(EventScanDone, handler)
	require.NoError(t, err)
	_, err = l.Subscribe(EventStationGotIP, handler)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		go l.Post(Event{Kind: EventScanDone})
		go l.Post(Event{Kind: EventStationGotIP})
	}

	require.Eventually(t, func() bool { return calls.Load() == 20 }, 2*time.Second, 5*time.Millisecond)
	l.Close()
	assert.Zero(t, overlaps.Load())
}

func TestEventLoopPostFromHandler(t *testing.T) {
	l := NewEventLoop(nil)
	defer l.Close()

	gotIP := make(chan string, 1)
	_, err := l.Subscribe(EventStationStart, func(Event) {
		l.Post(Event{Kind: EventStationGotIP, IP: "192.168.1.50"})
	})
	require.NoError(t, err)
	_, err = l.Subscribe(EventStationGotIP, func(ev Event) { gotIP <- ev.IP })
	require.NoError(t, err)

	l.Post(Event{Kind: EventStationStart})

	select {
	case ip := <-gotIP:
		assert.Equal(t, "192.168.1.50", ip)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for chained event")
	}
}

func TestEventLoopUnsubscribe(t *testing.T) {
	l := NewEventLoop(nil)
	defer l.Close()

	sub, err := l.Subscribe(EventAPStationJoined, func(Event) {})
	require.NoError(t, err)
	assert.Equal(t, 1, l.subscribers(EventAPStationJoined))

	require.NoError(t, l.Unsubscribe(sub))
	assert.Equal(t, 0, l.subscribers(EventAPStationJoined))

	err = l.Unsubscribe(sub)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEventLoopClosed(t *testing.T) {
	l := NewEventLoop(nil)
	l.Close()

	_, err := l.Subscribe(EventScanDone, func(Event) {})
	assert.ErrorIs(t, err, ErrClosed)

	// Posting after close is a no-op.
	l.Post(Event{Kind: EventScanDone})
	l.Close()
}
