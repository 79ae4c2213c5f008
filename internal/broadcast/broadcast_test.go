package broadcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSubscribeReceivesPublishedEvent(t *testing.T) {
	h := NewHub()
	ch, unsubscribe := h.Subscribe()
	defer unsubscribe()

	h.Publish(EventSyncComplete, map[string]string{"target": "repos/r1"})

	select {
	case ev := <-ch:
		assert.Equal(t, EventSyncComplete, ev.Name)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestPublishDropsOldestWhenSubscriberFull(t *testing.T) {
	h := NewHub()
	ch, unsubscribe := h.Subscribe()
	defer unsubscribe()

	for i := 0; i < subscriberBuffer+5; i++ {
		h.Publish(EventFilesChanged, i)
	}

	// Should not block or panic; the channel holds at most its buffer size.
	assert.LessOrEqual(t, len(ch), subscriberBuffer)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	h := NewHub()
	ch, unsubscribe := h.Subscribe()
	unsubscribe()

	_, ok := <-ch
	assert.False(t, ok)
}
