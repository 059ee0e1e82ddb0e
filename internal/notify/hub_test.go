package notify_test

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytgrab/internal/notify"
)

func newHub() *notify.Hub {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return notify.NewHub(log)
}

func recvEvent(t *testing.T, ch chan notify.Event) notify.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return notify.Event{}
	}
}

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	hub := newHub()

	first := hub.Subscribe()
	second := hub.Subscribe()
	defer hub.Unsubscribe(first)
	defer hub.Unsubscribe(second)

	hub.Broadcast(notify.Event{Type: notify.EventProgressUpdate, TaskID: "t1"})

	for _, ch := range []chan notify.Event{first, second} {
		ev := recvEvent(t, ch)
		assert.Equal(t, notify.EventProgressUpdate, ev.Type)
		assert.Equal(t, "t1", ev.TaskID)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	hub := newHub()

	sub := hub.Subscribe()
	require.Equal(t, 1, hub.SubscriberCount())

	hub.Unsubscribe(sub)
	require.Equal(t, 0, hub.SubscriberCount())

	hub.Broadcast(notify.Event{Type: notify.EventTasksCleared})

	select {
	case ev := <-sub:
		t.Fatalf("unexpected event after unsubscribe: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	hub := newHub()

	slow := hub.Subscribe() // never drained
	healthy := hub.Subscribe()
	defer hub.Unsubscribe(slow)
	defer hub.Unsubscribe(healthy)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			hub.Broadcast(notify.Event{Type: notify.EventProgressUpdate, TaskID: "t1"})
			<-healthy
		}
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("broadcast blocked on a slow subscriber")
	}
}
