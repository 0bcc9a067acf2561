package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoalesceKeyCoalescableKinds(t *testing.T) {
	e := EventToClient{Kind: EventLikesChanged}
	assert.Equal(t, string(EventLikesChanged), e.coalesceKey())
}

func TestCoalesceKeyUncoalescable(t *testing.T) {
	e := EventToClient{Kind: EventNewMessageReceived}
	assert.Empty(t, e.coalesceKey())
}
