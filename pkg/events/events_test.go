package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testBroker(t *testing.T) *Broker {
	t.Helper()
	b := NewBroker()
	b.Start()
	t.Cleanup(b.Stop)
	return b
}

func receive(t *testing.T, sub Subscriber) *Event {
	t.Helper()
	select {
	case e := <-sub:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := testBroker(t)
	sub1 := b.Subscribe()
	sub2 := b.Subscribe()
	assert.Equal(t, 2, b.SubscriberCount())

	b.Publish(&Event{Type: EventTenantCreated, TenantID: "acme"})

	e1 := receive(t, sub1)
	e2 := receive(t, sub2)
	assert.Equal(t, EventTenantCreated, e1.Type)
	assert.Equal(t, "acme", e1.TenantID)
	assert.Equal(t, e1.ID, e2.ID)
}

func TestPublishFillsIDAndTimestamp(t *testing.T) {
	b := testBroker(t)
	sub := b.Subscribe()

	b.Publish(&Event{Type: EventKeyRotated, TenantID: "acme"})

	e := receive(t, sub)
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.Timestamp.IsZero())
}

func TestPublishPreservesCallerID(t *testing.T) {
	b := testBroker(t)
	sub := b.Subscribe()

	b.Publish(&Event{ID: "fixed-id", Type: EventWorkerStarted})

	assert.Equal(t, "fixed-id", receive(t, sub).ID)
}

func TestUnsubscribe(t *testing.T) {
	b := testBroker(t)
	sub := b.Subscribe()
	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount())

	// The channel is closed so a pending receive unblocks
	_, open := <-sub
	assert.False(t, open)
}

func TestSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	b := testBroker(t)
	slow := b.Subscribe()
	fast := b.Subscribe()

	// Fill the slow subscriber's buffer and keep publishing
	for i := 0; i < cap(slow)+10; i++ {
		b.Publish(&Event{Type: EventCommandFailed, TenantID: "acme"})
	}

	// The fast subscriber still receives events
	receive(t, fast)
	assert.Eventually(t, func() bool {
		return len(slow) == cap(slow)
	}, 2*time.Second, 10*time.Millisecond)
}
