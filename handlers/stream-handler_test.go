package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendLatestKeepsNewestWhenFull(t *testing.T) {
	events := make(chan int, 2)

	for i := 1; i <= 5; i++ {
		sendLatest(events, i)
	}

	// The oldest snapshots are evicted; the newest always survives.
	assert.Equal(t, 4, <-events)
	assert.Equal(t, 5, <-events)
	assert.Empty(t, events)
}

func TestSendLatestDoesNotBlockWithRoomLeft(t *testing.T) {
	events := make(chan string, 2)

	sendLatest(events, "a")
	sendLatest(events, "b")

	require.Len(t, events, 2)
	assert.Equal(t, "a", <-events)
	assert.Equal(t, "b", <-events)
}
