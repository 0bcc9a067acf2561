package realtime

import (
	"testing"

	"github.com/jutuon/afrodite-backend-sub001/internal/identity"
	"github.com/stretchr/testify/assert"
)

func TestDeliverLocalFindsRegisteredAccount(t *testing.T) {
	hub := NewHub(nil, "boot-1")
	c := &Client{hub: hub, handle: "h1", accountID: identity.InternalAccountID(99), send: make(chan EventToClient, 4)}
	hub.register(c)

	ok := hub.DeliverLocal(99, EventToClient{Kind: EventLikesChanged, Account: 99})
	assert.True(t, ok)
	assert.Len(t, c.send, 1)
}

func TestDeliverLocalMissingAccount(t *testing.T) {
	hub := NewHub(nil, "boot-1")
	ok := hub.DeliverLocal(123, EventToClient{Kind: EventLikesChanged})
	assert.False(t, ok)
}

func TestUnregisterRemovesBothIndexes(t *testing.T) {
	hub := NewHub(nil, "boot-1")
	c := &Client{hub: hub, handle: "h2", accountID: identity.InternalAccountID(7), send: make(chan EventToClient, 4)}
	hub.register(c)
	assert.Equal(t, 1, hub.LiveChannelCount())

	hub.unregister(c)
	assert.Equal(t, 0, hub.LiveChannelCount())
	assert.False(t, hub.DeliverLocal(7, EventToClient{}))
}
