package ws

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMessageAfterClose(t *testing.T) {
	c := NewClient(nil, nil, 1, "s1")
	c.Close()

	// A bridge goroutine may still hold a reference after the hub drops the
	// watcher; sending must be a no-op, never a panic.
	assert.NotPanics(t, func() {
		c.SendMessage(NewMessage(TypeTripUpdate, map[string]string{"k": "v"}))
	})
	assert.Empty(t, c.send)

	assert.NotPanics(t, c.Close)
}

func TestSendMessageQueuesEnvelope(t *testing.T) {
	c := NewClient(nil, nil, 1, "s1")

	c.SendMessage(NewRawMessage(TypeTripUpdate, []byte(`{"deviation_km":0.4}`)))
	require.Len(t, c.send, 1)

	var msg Message
	require.NoError(t, json.Unmarshal(<-c.send, &msg))
	assert.Equal(t, TypeTripUpdate, msg.Type)
	assert.NotZero(t, msg.Timestamp)
}

func TestSendMessageConcurrentWithClose(t *testing.T) {
	c := NewClient(nil, nil, 7, "s2")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 30; j++ {
				c.SendMessage(NewMessage(TypePong, nil))
			}
		}()
	}
	c.Close()
	wg.Wait()
}
